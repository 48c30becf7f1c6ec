package account

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"vedarc.org/internal/audit"
	"vedarc.org/internal/domain"
	"vedarc.org/internal/mail"
	"vedarc.org/internal/obs"
)

// Activate moves a Pending account with a recorded payment to Active and
// issues fresh credentials.
func (s *Service) Activate(ctx context.Context, userID string) (domain.Account, error) {
	acct, err := s.find(ctx, userID)
	if err != nil {
		return domain.Account{}, err
	}
	t := domain.Transition{UserID: acct.UserID, From: domain.StatusPending, To: domain.StatusActive}
	if acct.Status != t.From {
		return domain.Account{}, t.Rejected(acct.Status)
	}
	if strings.TrimSpace(acct.PaymentID) == "" {
		return domain.Account{}, domain.Validationf("User %s cannot be activated without a valid payment ID. Please ensure payment was completed.", acct.UserID)
	}
	return s.credentialTransition(ctx, t, mail.CredentialsActivated, "activate")
}

// Reactivate moves a Disabled account back to Active with new credentials.
func (s *Service) Reactivate(ctx context.Context, userID string) (domain.Account, error) {
	acct, err := s.find(ctx, userID)
	if err != nil {
		return domain.Account{}, err
	}
	t := domain.Transition{UserID: acct.UserID, From: domain.StatusDisabled, To: domain.StatusActive}
	if acct.Status != t.From {
		return domain.Account{}, t.Rejected(acct.Status)
	}
	if strings.TrimSpace(acct.PaymentID) == "" {
		return domain.Account{}, domain.Validationf("User %s cannot be enabled without a valid payment ID. Please ensure payment was completed.", acct.UserID)
	}
	return s.credentialTransition(ctx, t, mail.CredentialsReactivated, "reactivate")
}

func (s *Service) credentialTransition(ctx context.Context, t domain.Transition, kind mail.CredentialKind, label string) (domain.Account, error) {
	password, hash, err := newCredentials()
	if err != nil {
		return domain.Account{}, err
	}
	t.Actor = audit.Actor(ctx)
	t.At = s.now().UTC()
	t.PasswordHash = hash
	updated, err := s.store.TransitionAccount(ctx, t)
	if err != nil {
		return domain.Account{}, err
	}
	s.recordTransition(ctx, label, t)
	s.sendCredentials(kind, updated, password, "")
	return updated, nil
}

// Deactivate disables an Active account. A non-blank reason is required and
// every session of the account is revoked.
func (s *Service) Deactivate(ctx context.Context, userID, reason string) (domain.Account, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return domain.Account{}, domain.Validationf("Reason is required for account deactivation")
	}
	acct, err := s.find(ctx, userID)
	if err != nil {
		return domain.Account{}, err
	}
	t := domain.Transition{
		UserID: acct.UserID,
		From:   domain.StatusActive,
		To:     domain.StatusDisabled,
		Actor:  audit.Actor(ctx),
		At:     s.now().UTC(),
		Reason: reason,
	}
	updated, err := s.store.TransitionAccount(ctx, t)
	if err != nil {
		return domain.Account{}, err
	}
	s.recordTransition(ctx, "deactivate", t)
	s.revokeSessions(ctx, updated.UserID)
	if msg, err := s.composer.Disabled(updated, reason); err != nil {
		obs.Error("mail_render_failed", map[string]any{"user_id": updated.UserID, "error": err})
	} else {
		s.mailer.Notify(msg)
	}
	return updated, nil
}

// Delete purges a Disabled account and everything it owns after telling the owner.
func (s *Service) Delete(ctx context.Context, userID, reason string) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return domain.Validationf("Reason is required for account deletion")
	}
	acct, err := s.find(ctx, userID)
	if err != nil {
		return err
	}
	if acct.Status != domain.StatusDisabled {
		return &domain.StateError{Entity: "User", ID: acct.UserID, Action: "deleted", Current: string(acct.Status), Required: string(domain.StatusDisabled)}
	}
	s.revokeSessions(ctx, acct.UserID)
	deleted, err := s.store.DeleteAccount(ctx, acct.UserID, domain.StatusDisabled)
	if err != nil {
		return err
	}
	obs.AccountTransitions.WithLabelValues("delete").Inc()
	_ = audit.LogEvent(ctx, "account.deleted", map[string]any{
		"target": deleted.UserID,
		"email":  deleted.Email,
		"reason": reason,
		"actor":  audit.Actor(ctx),
		"at":     s.now().UTC(),
	})
	if msg, err := s.composer.Deleted(deleted, reason); err != nil {
		obs.Error("mail_render_failed", map[string]any{"user_id": deleted.UserID, "error": err})
	} else {
		s.mailer.Notify(msg)
	}
	return nil
}

// ResetPassword issues new credentials to an Active account and logs out its sessions.
func (s *Service) ResetPassword(ctx context.Context, userID string) (domain.Account, error) {
	acct, err := s.find(ctx, userID)
	if err != nil {
		return domain.Account{}, err
	}
	if acct.Status != domain.StatusActive {
		return domain.Account{}, &domain.StateError{Entity: "User", ID: acct.UserID, Action: "reset", Current: string(acct.Status), Required: string(domain.StatusActive)}
	}
	password, hash, err := newCredentials()
	if err != nil {
		return domain.Account{}, err
	}
	if err := s.store.SetPassword(ctx, acct.UserID, hash, s.now().UTC()); err != nil {
		return domain.Account{}, err
	}
	s.revokeSessions(ctx, acct.UserID)
	_ = audit.LogEvent(ctx, "account.password_reset", map[string]any{"target": acct.UserID, "actor": audit.Actor(ctx)})
	s.sendCredentials(mail.CredentialsReset, acct, password, "")
	return acct, nil
}

// FixInconsistent assigns a status to accounts stored without one.
func (s *Service) FixInconsistent(ctx context.Context) ([]string, error) {
	fixed, err := s.store.RepairAccountStatuses(ctx, s.now().UTC())
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(fixed))
	for _, a := range fixed {
		ids = append(ids, a.UserID)
	}
	sort.Strings(ids)
	_ = audit.LogEvent(ctx, "account.repaired", map[string]any{"count": len(ids), "targets": ids})
	return ids, nil
}

// BulkFailure names an account a bulk operation could not process.
type BulkFailure struct {
	UserID string `json:"user_id"`
	Error  string `json:"error"`
}

// BulkOutcome collects per-account results of a bulk operation.
type BulkOutcome struct {
	Successful []string      `json:"successful"`
	Failed     []BulkFailure `json:"failed"`
}

// Summary renders the outcome as a single sentence.
func (o BulkOutcome) Summary() string {
	return fmt.Sprintf("Bulk enable completed. %d activated, %d failed.", len(o.Successful), len(o.Failed))
}

// BulkEnable activates every Pending account. Accounts without a payment are reported as failed.
func (s *Service) BulkEnable(ctx context.Context) (BulkOutcome, error) {
	pending, err := s.store.ListAccounts(ctx, domain.AccountFilter{Status: domain.StatusPending})
	if err != nil {
		return BulkOutcome{}, err
	}
	out := BulkOutcome{Successful: []string{}, Failed: []BulkFailure{}}
	for _, a := range pending {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		if _, err := s.Activate(ctx, a.UserID); err != nil {
			out.Failed = append(out.Failed, BulkFailure{UserID: a.UserID, Error: domain.Message(err)})
			continue
		}
		out.Successful = append(out.Successful, a.UserID)
	}
	return out, nil
}

// Statistics is the HR dashboard summary.
type Statistics struct {
	PendingRegistrations int            `json:"pending_registrations"`
	ActivatedAccounts    int            `json:"activated_accounts"`
	DisabledAccounts     int            `json:"disabled_accounts"`
	TotalRegistrations   int            `json:"total_registrations"`
	RecentActivations    int            `json:"recent_activations_7_days"`
	TodayActivations     int            `json:"today_activations"`
	RecentRegistrations  int            `json:"recent_registrations_7_days"`
	TrackBreakdown       map[string]int `json:"track_breakdown"`
}

// Statistics counts accounts by status, by track and by recency.
func (s *Service) Statistics(ctx context.Context) (Statistics, error) {
	accts, err := s.store.ListAccounts(ctx, domain.AccountFilter{})
	if err != nil {
		return Statistics{}, err
	}
	now := s.now().UTC()
	weekAgo := now.Add(-7 * 24 * time.Hour)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	st := Statistics{TotalRegistrations: len(accts), TrackBreakdown: map[string]int{}}
	for _, a := range accts {
		switch a.Status {
		case domain.StatusPending:
			st.PendingRegistrations++
		case domain.StatusActive:
			st.ActivatedAccounts++
		case domain.StatusDisabled:
			st.DisabledAccounts++
		}
		if a.Track != "" {
			st.TrackBreakdown[a.Track]++
		}
		if !a.CreatedAt.Before(weekAgo) {
			st.RecentRegistrations++
		}
		if a.ActivatedAt != nil {
			if !a.ActivatedAt.Before(weekAgo) {
				st.RecentActivations++
			}
			if !a.ActivatedAt.Before(today) {
				st.TodayActivations++
			}
		}
	}
	return st, nil
}

// List returns accounts matching f, newest first.
func (s *Service) List(ctx context.Context, f domain.AccountFilter) ([]domain.Account, error) {
	if f.Status != "" {
		switch f.Status {
		case domain.StatusPending, domain.StatusActive, domain.StatusDisabled:
		default:
			return nil, domain.Validationf("Invalid status filter %q", f.Status)
		}
	}
	return s.store.ListAccounts(ctx, f)
}

// Get returns one account.
func (s *Service) Get(ctx context.Context, userID string) (domain.Account, error) {
	return s.find(ctx, userID)
}

func (s *Service) find(ctx context.Context, userID string) (domain.Account, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.Account{}, domain.Validationf("Missing required field: user_id")
	}
	return s.store.FindAccount(ctx, userID)
}

func (s *Service) recordTransition(ctx context.Context, label string, t domain.Transition) {
	obs.AccountTransitions.WithLabelValues(label).Inc()
	fields := map[string]any{
		"target": t.UserID,
		"from":   string(t.From),
		"to":     string(t.To),
		"actor":  t.Actor,
		"at":     t.At,
	}
	if t.Reason != "" {
		fields["reason"] = t.Reason
	}
	_ = audit.LogEvent(ctx, "account."+t.Action(), fields)
}

func (s *Service) revokeSessions(ctx context.Context, userID string) {
	if s.sessions == nil {
		return
	}
	if _, err := s.sessions.RevokeAll(ctx, userID); err != nil && !errors.Is(err, domain.ErrNotFound) {
		obs.Warn("session_revoke_failed", map[string]any{"user_id": userID, "error": err})
	}
}

// Payments lists registration orders, optionally of one status.
func (s *Service) Payments(ctx context.Context, status domain.PaymentStatus) ([]domain.Payment, error) {
	switch status {
	case "", domain.PaymentCreated, domain.PaymentCompleted, domain.PaymentExpired:
	default:
		return nil, domain.Validationf("Invalid payment status %q", status)
	}
	return s.store.ListPayments(ctx, status)
}
