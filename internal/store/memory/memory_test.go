package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"vedarc.org/internal/domain"
)

var now = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

func seedAccount(t *testing.T, s *Store, id, email string, status domain.AccountStatus) {
	t.Helper()
	err := s.InsertAccount(context.Background(), domain.Account{UserID: id, Email: email, Status: status, CreatedAt: now})
	if err != nil {
		t.Fatalf("InsertAccount: %v", err)
	}
}

func TestCompletePaymentMintsOnce(t *testing.T) {
	s := New()
	ctx := context.Background()
	if err := s.CreatePayment(ctx, domain.Payment{OrderID: "order_1", Email: "a@x.io", Status: domain.PaymentCreated, CreatedAt: now}); err != nil {
		t.Fatalf("CreatePayment: %v", err)
	}
	if err := s.CreatePayment(ctx, domain.Payment{OrderID: "order_2", Email: "A@x.io", Status: domain.PaymentCreated, CreatedAt: now}); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict for second pending order, got %v", err)
	}

	acct := domain.Account{UserID: "u1", Email: "a@x.io", Status: domain.StatusPending}
	got, created, err := s.CompletePayment(ctx, "order_1", "pay_1", acct, now)
	if err != nil || !created || got.UserID != "u1" {
		t.Fatalf("first completion: %+v created=%v err=%v", got, created, err)
	}
	again, created, err := s.CompletePayment(ctx, "order_1", "pay_1", domain.Account{UserID: "u2", Email: "a@x.io"}, now)
	if err != nil || created || again.UserID != "u1" {
		t.Fatalf("replay should return existing account: %+v created=%v err=%v", again, created, err)
	}
	p, _ := s.FindPayment(ctx, "order_1")
	if !p.Verified || p.Status != domain.PaymentCompleted || p.UserID != "u1" {
		t.Fatalf("unexpected payment: %+v", p)
	}
	if _, err := s.FindAccountByEmail(ctx, "A@X.IO"); err != nil {
		t.Fatalf("email lookup should be case-insensitive: %v", err)
	}
}

func TestExpirePendingPaymentsFreesEmail(t *testing.T) {
	s := New()
	ctx := context.Background()
	_ = s.CreatePayment(ctx, domain.Payment{OrderID: "old", Email: "b@x.io", Status: domain.PaymentCreated, CreatedAt: now.Add(-2 * time.Hour)})
	n, err := s.ExpirePendingPayments(ctx, "b@x.io", now.Add(-time.Hour))
	if err != nil || n != 1 {
		t.Fatalf("expected one expired order, got %d err=%v", n, err)
	}
	if err := s.CreatePayment(ctx, domain.Payment{OrderID: "new", Email: "b@x.io", Status: domain.PaymentCreated, CreatedAt: now}); err != nil {
		t.Fatalf("new order after expiry: %v", err)
	}
}

func TestTransitionAccountRequiresFromStatus(t *testing.T) {
	s := New()
	ctx := context.Background()
	seedAccount(t, s, "u1", "c@x.io", domain.StatusPending)

	_, err := s.TransitionAccount(ctx, domain.Transition{UserID: "u1", From: domain.StatusActive, To: domain.StatusDisabled, At: now})
	var se *domain.StateError
	if !errors.As(err, &se) {
		t.Fatalf("expected state error, got %v", err)
	}
	a, err := s.TransitionAccount(ctx, domain.Transition{UserID: "u1", From: domain.StatusPending, To: domain.StatusActive, Actor: "hr1", At: now, PasswordHash: "h"})
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	if a.Status != domain.StatusActive || a.ActivatedBy != "hr1" || a.PasswordHash != "h" {
		t.Fatalf("unexpected account: %+v", a)
	}
}

func TestUnlockGateChecksPreconditions(t *testing.T) {
	s := New()
	ctx := context.Background()
	seedAccount(t, s, "u1", "d@x.io", domain.StatusActive)

	if _, err := s.SetCompletion(ctx, "u1", 100, now); err != nil {
		t.Fatalf("SetCompletion: %v", err)
	}
	if _, ok, _ := s.UnlockGate(ctx, "u1", domain.CertificateCompletion, "mgr", now); ok {
		t.Fatalf("unlock without admin approval must not set the flag")
	}
	if _, err := s.SetApproval(ctx, "u1", domain.CertificateCompletion, true, "admin", now); err != nil {
		t.Fatalf("SetApproval: %v", err)
	}
	a, ok, err := s.UnlockGate(ctx, "u1", domain.CertificateCompletion, "mgr", now)
	if err != nil || !ok || !a.CertificateUnlocked {
		t.Fatalf("expected unlock, got %+v ok=%v err=%v", a, ok, err)
	}

	a, _ = s.SetCompletion(ctx, "u1", 80, now)
	if a.CertificateUnlocked {
		t.Fatalf("dropping below 100%% should withdraw the unlock")
	}
	if _, _, err := s.UnlockGate(ctx, "u1", "badge", "mgr", now); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestRevokingLORKeepsProjectUnlock(t *testing.T) {
	s := New()
	ctx := context.Background()
	seedAccount(t, s, "u1", "e@x.io", domain.StatusActive)
	s.accounts["u1"].ProjectStatus = domain.ProjectCompleted
	s.projects["p1"] = &domain.Project{ID: "p1", UserID: "u1", ReviewStatus: domain.ProjectApproved}

	_, _ = s.SetApproval(ctx, "u1", domain.CertificateLOR, true, "admin", now)
	if _, ok, _ := s.UnlockGate(ctx, "u1", domain.CertificateLOR, "mgr", now); !ok {
		t.Fatalf("expected LOR unlock")
	}
	a, err := s.SetApproval(ctx, "u1", domain.CertificateLOR, false, "admin", now)
	if err != nil {
		t.Fatalf("SetApproval: %v", err)
	}
	if !a.LORUnlocked || a.AdminLORApproval {
		t.Fatalf("approved project should keep the LOR unlocked: %+v", a)
	}
}

func TestDeleteAccountCascades(t *testing.T) {
	s := New()
	ctx := context.Background()
	seedAccount(t, s, "u1", "f@x.io", domain.StatusActive)
	_ = s.CreateSession(ctx, domain.Session{SessionID: "s1", UserID: "u1", IsActive: true, LastActivity: now})
	_ = s.CreateNotification(ctx, domain.Notification{ID: "n1", UserID: "u1"})

	if _, err := s.DeleteAccount(ctx, "u1", domain.StatusDisabled); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("delete of active account should conflict, got %v", err)
	}
	s.accounts["u1"].Status = domain.StatusDisabled
	if _, err := s.DeleteAccount(ctx, "u1", domain.StatusDisabled); err != nil {
		t.Fatalf("DeleteAccount: %v", err)
	}
	if _, err := s.GetSession(ctx, "s1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("session should be gone, got %v", err)
	}
	if notes, _ := s.ListNotifications(ctx, "u1"); len(notes) != 0 {
		t.Fatalf("notifications should be gone: %v", notes)
	}
	seedAccount(t, s, "u9", "f@x.io", domain.StatusPending)
}

func TestSessionSweep(t *testing.T) {
	s := New()
	ctx := context.Background()
	_ = s.CreateSession(ctx, domain.Session{SessionID: "idle", UserID: "u1", IsActive: true, LastActivity: now.Add(-2 * time.Hour)})
	_ = s.CreateSession(ctx, domain.Session{SessionID: "busy", UserID: "u1", IsActive: true, LastActivity: now})

	ids, err := s.DeactivateExpiredSessions(ctx, now.Add(-time.Hour), now)
	if err != nil || len(ids) != 1 || ids[0] != "idle" {
		t.Fatalf("unexpected sweep result %v err=%v", ids, err)
	}
	if err := s.TouchSession(ctx, "idle", now); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("touching an inactive session should fail, got %v", err)
	}
	changed, err := s.DeactivateSession(ctx, "busy", now)
	if err != nil || !changed {
		t.Fatalf("DeactivateSession: changed=%v err=%v", changed, err)
	}
	if changed, _ = s.DeactivateSession(ctx, "busy", now); changed {
		t.Fatalf("second deactivate should be a no-op")
	}
}
