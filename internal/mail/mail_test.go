package mail

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"vedarc.org/internal/domain"
)

type stubRelay struct {
	mu   sync.Mutex
	sent []Message
	fn   func(ctx context.Context, msg Message) error
}

func (s *stubRelay) Send(ctx context.Context, msg Message) error {
	if s.fn != nil {
		if err := s.fn(ctx, msg); err != nil {
			return err
		}
	}
	s.mu.Lock()
	s.sent = append(s.sent, msg)
	s.mu.Unlock()
	return nil
}

func TestComposerCredentials(t *testing.T) {
	c := Composer{Company: "VEDARC"}
	acct := domain.Account{UserID: "VEDARC-01H", Email: "asha@example.com", FullName: "Asha <R>", Track: "Frontend Development", PaymentID: "pay_1", OrderID: "order_1"}
	msg, err := c.Credentials(CredentialsPayment, acct, "Xy12ab34", "INR 299.00")
	if err != nil {
		t.Fatalf("Credentials: %v", err)
	}
	if msg.Subject != "Payment Successful - VEDARC Internship (Invoice & Credentials)" {
		t.Fatalf("unexpected subject: %q", msg.Subject)
	}
	for _, want := range []string{"VEDARC-01H", "Xy12ab34", "pay_1", "order_1", "INR 299.00", "Asha &lt;R&gt;"} {
		if !strings.Contains(msg.HTML, want) {
			t.Fatalf("body missing %q:\n%s", want, msg.HTML)
		}
	}
	if msg.To != acct.Email {
		t.Fatalf("unexpected recipient %q", msg.To)
	}

	msg, err = c.Credentials(CredentialsReactivated, acct, "pw", "")
	if err != nil {
		t.Fatalf("Credentials reactivated: %v", err)
	}
	if strings.Contains(msg.HTML, "pay_1") {
		t.Fatal("reactivation mail must not repeat the invoice")
	}
	if _, err := c.Credentials("bogus", acct, "pw", ""); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}

func TestComposerDisabledAndIssued(t *testing.T) {
	c := Composer{Company: "VEDARC"}
	acct := domain.Account{UserID: "VEDARC-2", Email: "s@example.com", FullName: "S"}
	msg, err := c.Disabled(acct, "policy violation")
	if err != nil || !strings.Contains(msg.HTML, "policy violation") {
		t.Fatalf("Disabled: %v\n%s", err, msg.HTML)
	}
	cert := domain.Certificate{Type: domain.CertificateLOR, Track: "Backend", URL: "https://files/x.png", Code: "CERT-ABC"}
	msg, err = c.CredentialIssued(acct, cert, &Attachment{Filename: "lor.png", ContentType: "image/png", Data: []byte{1}})
	if err != nil {
		t.Fatalf("CredentialIssued: %v", err)
	}
	if !strings.Contains(msg.Subject, "Letter of Recommendation") || len(msg.Attachments) != 1 {
		t.Fatalf("unexpected message: %+v", msg)
	}
}

func TestNotifierSwallowsFailures(t *testing.T) {
	relay := &stubRelay{fn: func(ctx context.Context, msg Message) error {
		if msg.To == "bounce@example.com" {
			return errors.New("mailbox unavailable")
		}
		return nil
	}}
	n := NewNotifier(relay, time.Second)
	n.Notify(Message{To: "ok@example.com", Subject: "hi", Text: "x"})
	n.Notify(Message{To: "bounce@example.com", Subject: "hi", Text: "x"})
	n.Wait()

	if len(relay.sent) != 1 || relay.sent[0].To != "ok@example.com" {
		t.Fatalf("unexpected deliveries: %+v", relay.sent)
	}
}

func TestNotifierAppliesTimeout(t *testing.T) {
	relay := &stubRelay{fn: func(ctx context.Context, msg Message) error {
		<-ctx.Done()
		return ctx.Err()
	}}
	n := NewNotifier(relay, 20*time.Millisecond)
	start := time.Now()
	n.Notify(Message{To: "slow@example.com", Subject: "s", Text: "t"})
	n.Wait()
	if time.Since(start) > time.Second {
		t.Fatal("notifier did not honour its timeout")
	}
}

func TestMessageValidate(t *testing.T) {
	if err := (Message{Subject: "s", Text: "t"}).Validate(); err == nil {
		t.Fatal("expected missing recipient error")
	}
	if err := (LogRelay{}).Send(context.Background(), Message{To: "a@b.c", Subject: "s", HTML: "<p>x</p>"}); err != nil {
		t.Fatalf("LogRelay: %v", err)
	}
}
