package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestStateErrorMessageAndSentinel(t *testing.T) {
	err := &StateError{Entity: "User", ID: "VEDARC-1", Action: "enabled", Current: "Active", Required: "Disabled"}
	want := "User cannot be enabled from current status: Active. Only 'Disabled' users can be enabled."
	if err.Error() != want {
		t.Fatalf("unexpected message: %q", err.Error())
	}
	wrapped := fmt.Errorf("reactivate: %w", err)
	if !errors.Is(wrapped, ErrConflict) {
		t.Fatalf("state error must match ErrConflict")
	}
	if Message(wrapped) != want {
		t.Fatalf("Message should unwrap state error, got %q", Message(wrapped))
	}
}

func TestMessageStripsSentinelPrefix(t *testing.T) {
	err := Validationf("Reason is required for account deactivation")
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation")
	}
	if got := Message(err); got != "Reason is required for account deactivation" {
		t.Fatalf("unexpected message %q", got)
	}
}

func TestParseCertificateType(t *testing.T) {
	if ct, err := ParseCertificateType(" LOR "); err != nil || ct != CertificateLOR {
		t.Fatalf("expected lor, got %q err=%v", ct, err)
	}
	if _, err := ParseCertificateType("diploma"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := ParseCertificateType(""); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for empty type, got %v", err)
	}
}

func TestProjectCompletionQualifies(t *testing.T) {
	for _, tc := range []struct {
		in   ProjectCompletion
		want bool
	}{
		{ProjectNotStarted, false},
		{ProjectInProgress, false},
		{ProjectCompleted, true},
		{ProjectExcellent, true},
	} {
		if got := tc.in.QualifiesForLOR(); got != tc.want {
			t.Fatalf("%s: got %v want %v", tc.in, got, tc.want)
		}
	}
}

func TestTransitionRejectedMessage(t *testing.T) {
	tr := Transition{UserID: "VEDARC-1", From: StatusDisabled, To: StatusActive}
	err := tr.Rejected(StatusActive)
	want := "User cannot be enabled from current status: Active. Only 'Disabled' users can be enabled."
	if err.Error() != want {
		t.Fatalf("unexpected message:\n got %q\nwant %q", err.Error(), want)
	}
	if !errors.Is(err, ErrConflict) {
		t.Fatal("state error must match ErrConflict")
	}
}

func TestAccountApplyDeactivation(t *testing.T) {
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	a := Account{Status: StatusActive}
	a.Apply(Transition{From: StatusActive, To: StatusDisabled, Actor: "hr", At: now, Reason: "policy violation"})
	if a.Status != StatusDisabled || a.DisabledBy != "hr" || a.DisableReason != "policy violation" || !a.DisabledAt.Equal(now) {
		t.Fatalf("unexpected account after apply: %+v", a)
	}
}

func TestValidateRegistration(t *testing.T) {
	r := Registration{FullName: "Asha", Email: "asha@example.com", WhatsApp: "9", CollegeName: "IIT", Track: "Backend", YearOfStudy: "3"}
	err := Validate(r)
	if !errors.Is(err, ErrValidation) || Message(err) != "Missing required field: passoutYear" {
		t.Fatalf("unexpected error: %v", err)
	}
	r.PassoutYear = "2027"
	r.Email = "not-an-email"
	if err := Validate(r); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected invalid email error, got %v", err)
	}
	r.Email = "asha@example.com"
	if err := Validate(r); err != nil {
		t.Fatalf("unexpected error for valid registration: %v", err)
	}
}
