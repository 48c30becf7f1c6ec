package gates

import (
	"context"
	"errors"
	"fmt"
	"time"

	"vedarc.org/internal/audit"
	"vedarc.org/internal/domain"
	"vedarc.org/internal/obs"
)

// Store is the account state the engine reads and conditionally writes.
type Store interface {
	FindAccount(ctx context.Context, userID string) (domain.Account, error)
	ListAccounts(ctx context.Context, f domain.AccountFilter) ([]domain.Account, error)
	CountApprovedSubmissions(ctx context.Context, userID string) (int, error)
	CountWeeks(ctx context.Context, track string) (int, error)
	SetCompletion(ctx context.Context, userID string, pct float64, at time.Time) (domain.Account, error)
	UnlockGate(ctx context.Context, userID string, typ domain.CertificateType, actor string, at time.Time) (domain.Account, bool, error)
	SetApproval(ctx context.Context, userID string, typ domain.CertificateType, approved bool, actor string, at time.Time) (domain.Account, error)
}

// Notifier delivers in-app notifications to students.
type Notifier interface {
	Notify(ctx context.Context, userID, title, content, priority string) (domain.Notification, error)
}

// Engine enforces the completion and approval preconditions of the
// certificate and LOR gates.
type Engine struct {
	store Store
	notes Notifier
	now   func() time.Time
}

func NewEngine(store Store, notes Notifier) *Engine {
	return &Engine{store: store, notes: notes, now: time.Now}
}

// Completion returns approved/weeks as a percentage clamped to [0,100].
func Completion(approved, weeks int) float64 {
	if weeks <= 0 || approved <= 0 {
		return 0
	}
	pct := 100 * float64(approved) / float64(weeks)
	if pct > 100 {
		return 100
	}
	return pct
}

// RecalculateCompletion recomputes the student's completion from approved submissions.
func (e *Engine) RecalculateCompletion(ctx context.Context, userID string) (domain.Account, error) {
	acct, err := e.store.FindAccount(ctx, userID)
	if err != nil {
		return domain.Account{}, err
	}
	approved, err := e.store.CountApprovedSubmissions(ctx, userID)
	if err != nil {
		return domain.Account{}, err
	}
	weeks, err := e.store.CountWeeks(ctx, acct.Track)
	if err != nil {
		return domain.Account{}, err
	}
	pct := Completion(approved, weeks)
	if pct == acct.CompletionPercentage {
		return acct, nil
	}
	updated, err := e.store.SetCompletion(ctx, userID, pct, e.now().UTC())
	if err != nil {
		return domain.Account{}, err
	}
	if acct.CertificateUnlocked && !updated.CertificateUnlocked {
		_ = audit.LogEvent(ctx, "gate.certificate_relocked", map[string]any{"target": userID, "completion": pct})
	}
	return updated, nil
}

// RecalculateAll recomputes every active account and returns how many were processed.
func (e *Engine) RecalculateAll(ctx context.Context) (int, error) {
	accts, err := e.store.ListAccounts(ctx, domain.AccountFilter{Status: domain.StatusActive})
	if err != nil {
		return 0, err
	}
	n := 0
	for _, a := range accts {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		if _, err := e.RecalculateCompletion(ctx, a.UserID); err != nil {
			obs.Warn("recalculate_completion_failed", map[string]any{"user_id": a.UserID, "error": err})
			continue
		}
		n++
	}
	return n, nil
}

// UnlockCertificate requires full completion and admin approval.
func (e *Engine) UnlockCertificate(ctx context.Context, userID string) (domain.Account, error) {
	return e.Unlock(ctx, userID, domain.CertificateCompletion)
}

// UnlockLOR requires a completed project and admin approval.
func (e *Engine) UnlockLOR(ctx context.Context, userID string) (domain.Account, error) {
	return e.Unlock(ctx, userID, domain.CertificateLOR)
}

// Unlock opens the gate of the given type. A missing admin approval yields
// domain.ErrRequiresApproval; an unmet progress rule yields ErrConflict.
func (e *Engine) Unlock(ctx context.Context, userID string, typ domain.CertificateType) (domain.Account, error) {
	acct, err := e.store.FindAccount(ctx, userID)
	if err != nil {
		e.count(typ, "failed")
		return domain.Account{}, err
	}
	if err := precondition(acct, typ); err != nil {
		e.count(typ, outcome(err))
		return domain.Account{}, err
	}

	actor := audit.Actor(ctx)
	updated, ok, err := e.store.UnlockGate(ctx, userID, typ, actor, e.now().UTC())
	if err != nil {
		e.count(typ, "failed")
		return domain.Account{}, err
	}
	if !ok {
		// Preconditions changed between read and write.
		err := precondition(updated, typ)
		if err == nil {
			err = domain.Conflictf("%s could not be unlocked, please retry", typ.DisplayName())
		}
		e.count(typ, outcome(err))
		return domain.Account{}, err
	}

	e.count(typ, "unlocked")
	_ = audit.LogEvent(ctx, "gate.unlocked", map[string]any{"target": userID, "gate": string(typ)})
	e.notify(ctx, userID, typ.DisplayName()+" Unlocked!",
		fmt.Sprintf("Your %s has been unlocked by your internship manager. You can now download it from your dashboard.", typ.DisplayName()))
	return updated, nil
}

// AdminApprove grants or revokes the admin approval of a gate. It never unlocks.
func (e *Engine) AdminApprove(ctx context.Context, userID string, typ domain.CertificateType, approved bool) (domain.Account, error) {
	if _, err := domain.ParseCertificateType(string(typ)); err != nil {
		return domain.Account{}, err
	}
	updated, err := e.store.SetApproval(ctx, userID, typ, approved, audit.Actor(ctx), e.now().UTC())
	if err != nil {
		return domain.Account{}, err
	}
	verb, title := "granted", "Granted"
	if !approved {
		verb, title = "revoked", "Revoked"
	}
	_ = audit.LogEvent(ctx, "gate.approval_"+verb, map[string]any{"target": userID, "gate": string(typ)})
	e.notify(ctx, userID, fmt.Sprintf("%s Approval %s", typ.DisplayName(), title),
		fmt.Sprintf("Admin approval for your %s has been %s.", typ.DisplayName(), verb))
	return updated, nil
}

// BulkEntry is one per-id outcome of a bulk operation.
type BulkEntry struct {
	UserID string `json:"user_id"`
	Name   string `json:"name,omitempty"`
	Error  string `json:"error,omitempty"`
}

// BulkResult groups per-id outcomes. Partial failure is normal.
type BulkResult struct {
	Successful            []BulkEntry `json:"successful"`
	Failed                []BulkEntry `json:"failed"`
	RequiresAdminApproval []BulkEntry `json:"requires_admin_approval"`
}

// Summary is the human readable outcome line.
func (r BulkResult) Summary(verb string) string {
	return fmt.Sprintf("Bulk %s completed. %d successful, %d failed, %d require admin approval.",
		verb, len(r.Successful), len(r.Failed), len(r.RequiresAdminApproval))
}

func newBulkResult() BulkResult {
	return BulkResult{Successful: []BulkEntry{}, Failed: []BulkEntry{}, RequiresAdminApproval: []BulkEntry{}}
}

// BulkUnlock applies Unlock to every id independently.
func (e *Engine) BulkUnlock(ctx context.Context, userIDs []string, typ domain.CertificateType) (BulkResult, error) {
	if _, err := domain.ParseCertificateType(string(typ)); err != nil {
		return BulkResult{}, err
	}
	if len(userIDs) == 0 {
		return BulkResult{}, domain.Validationf("Missing user_ids or certificate_type")
	}
	res := newBulkResult()
	for _, id := range userIDs {
		acct, err := e.Unlock(ctx, id, typ)
		switch {
		case err == nil:
			res.Successful = append(res.Successful, BulkEntry{UserID: id, Name: acct.FullName})
		case errors.Is(err, domain.ErrRequiresApproval):
			res.RequiresAdminApproval = append(res.RequiresAdminApproval, BulkEntry{UserID: id, Error: domain.Message(err)})
		default:
			res.Failed = append(res.Failed, BulkEntry{UserID: id, Error: domain.Message(err)})
		}
	}
	return res, nil
}

// BulkApprove applies AdminApprove to every id independently.
func (e *Engine) BulkApprove(ctx context.Context, userIDs []string, typ domain.CertificateType, approved bool) (BulkResult, error) {
	if _, err := domain.ParseCertificateType(string(typ)); err != nil {
		return BulkResult{}, err
	}
	if len(userIDs) == 0 {
		return BulkResult{}, domain.Validationf("user_ids is required")
	}
	res := newBulkResult()
	for _, id := range userIDs {
		acct, err := e.AdminApprove(ctx, id, typ, approved)
		if err != nil {
			res.Failed = append(res.Failed, BulkEntry{UserID: id, Error: domain.Message(err)})
			continue
		}
		res.Successful = append(res.Successful, BulkEntry{UserID: id, Name: acct.FullName})
	}
	return res, nil
}

func precondition(a domain.Account, typ domain.CertificateType) error {
	switch typ {
	case domain.CertificateCompletion:
		if a.CompletionPercentage < 100 {
			return domain.Conflictf("Course completion is %.0f%%. Certificate of Completion requires 100%% completion.", a.CompletionPercentage)
		}
		if !a.AdminCertificateApproval {
			return fmt.Errorf("%w: Certificate of Completion requires admin approval before it can be unlocked", domain.ErrRequiresApproval)
		}
	case domain.CertificateLOR:
		if !a.ProjectStatus.QualifiesForLOR() {
			status := a.ProjectStatus
			if status == "" {
				status = domain.ProjectNotStarted
			}
			return domain.Conflictf("Project status is %s. Letter of Recommendation requires a Completed or Excellent project.", status)
		}
		if !a.AdminLORApproval {
			return fmt.Errorf("%w: Letter of Recommendation requires admin approval before it can be unlocked", domain.ErrRequiresApproval)
		}
	default:
		return domain.Validationf("Invalid certificate type %q", typ)
	}
	return nil
}

func outcome(err error) string {
	if errors.Is(err, domain.ErrRequiresApproval) {
		return "requires_approval"
	}
	return "rejected"
}

func (e *Engine) count(typ domain.CertificateType, outcome string) {
	obs.GateUnlocks.WithLabelValues(string(typ), outcome).Inc()
}

func (e *Engine) notify(ctx context.Context, userID, title, content string) {
	if e.notes == nil {
		return
	}
	if _, err := e.notes.Notify(ctx, userID, title, content, "high"); err != nil {
		obs.Warn("notification_failed", map[string]any{"user_id": userID, "title": title, "error": err})
	}
}
