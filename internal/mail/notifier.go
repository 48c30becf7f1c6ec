package mail

import (
	"context"
	"sync"
	"time"

	"vedarc.org/internal/obs"
)

// Notifier sends mail in the background. Delivery failures are logged and
// counted but never reported to the caller.
type Notifier struct {
	relay   Relay
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewNotifier wraps relay with a per-message timeout.
func NewNotifier(relay Relay, timeout time.Duration) *Notifier {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Notifier{relay: relay, timeout: timeout}
}

// Notify queues msg for delivery and returns immediately.
func (n *Notifier) Notify(msg Message) {
	if n == nil || n.relay == nil {
		return
	}
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
		defer cancel()
		if err := n.relay.Send(ctx, msg); err != nil {
			obs.MailDeliveries.WithLabelValues("failed").Inc()
			obs.Warn("mail_delivery_failed", map[string]any{"to": msg.To, "subject": msg.Subject, "error": err})
			return
		}
		obs.MailDeliveries.WithLabelValues("sent").Inc()
	}()
}

// Wait blocks until queued messages finish; used on shutdown and in tests.
func (n *Notifier) Wait() {
	if n == nil {
		return
	}
	n.wg.Wait()
}
