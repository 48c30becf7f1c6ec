package stream

import (
	"context"
	"sync"
	"time"
)

const (
	KindNotification = "notification"
	KindAnnouncement = "announcement"
)

// Event is one live update pushed to dashboards. An empty UserID broadcasts
// to every subscriber.
type Event struct {
	Kind      string    `json:"kind"`
	UserID    string    `json:"user_id,omitempty"`
	Payload   any       `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

type subscriber struct {
	userID string
	ch     chan Event
}

// Hub fan-outs events to the active subscribers (SSE clients).
type Hub struct {
	mu   sync.RWMutex
	subs map[int]subscriber
	next int
	now  func() time.Time
}

// New initialises an empty hub.
func New() *Hub {
	return &Hub{
		subs: make(map[int]subscriber),
		now:  time.Now,
	}
}

// Subscribe registers a subscriber for userID's events and broadcasts.
// The channel is closed when the provided context ends.
func (h *Hub) Subscribe(ctx context.Context, userID string) <-chan Event {
	ch := make(chan Event, 16)

	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = subscriber{userID: userID, ch: ch}
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		delete(h.subs, id)
		close(ch)
		h.mu.Unlock()
	}()

	return ch
}

// Publish delivers evt to the matching subscribers. Slow subscribers lose events.
func (h *Hub) Publish(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = h.now().UTC()
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, s := range h.subs {
		if evt.UserID != "" && s.userID != evt.UserID {
			continue
		}
		select {
		case s.ch <- evt:
		default:
		}
	}
}

// Subscribers reports how many clients are connected.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
