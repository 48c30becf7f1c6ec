package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"vedarc.org/internal/domain"
)

func (s *Store) CountApprovedSubmissions(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `select count(*) from submissions where user_id = $1 and status = 'approved'`, userID).Scan(&n)
	return n, wrapErr(err)
}

// SetCompletion stores the percentage and clears a certificate unlock that no
// longer has full completion behind it.
func (s *Store) SetCompletion(ctx context.Context, userID string, pct float64, at time.Time) (domain.Account, error) {
	a, err := scanAccount(s.db.QueryRowContext(ctx, `
		update accounts set
			course_completion_percentage = $2,
			certificate_unlocked    = certificate_unlocked and $2 >= 100,
			certificate_unlocked_by = case when $2 >= 100 then certificate_unlocked_by end,
			certificate_unlocked_at = case when $2 >= 100 then certificate_unlocked_at end,
			updated_at = $3
		where user_id = $1
		returning `+accountColumns, userID, pct, at))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Account{}, domain.NotFoundf("User not found")
	}
	return a, wrapErr(err)
}

// UnlockGate sets the flag in one conditional update so the preconditions
// are evaluated against the row as it is written.
func (s *Store) UnlockGate(ctx context.Context, userID string, typ domain.CertificateType, actor string, at time.Time) (domain.Account, bool, error) {
	var q string
	switch typ {
	case domain.CertificateCompletion:
		q = `update accounts set certificate_unlocked = true, certificate_unlocked_by = $2, certificate_unlocked_at = $3, updated_at = $3
			where user_id = $1 and course_completion_percentage >= 100 and admin_certificate_approval`
	case domain.CertificateLOR:
		q = `update accounts set lor_unlocked = true, lor_unlocked_by = $2, lor_unlocked_at = $3, updated_at = $3
			where user_id = $1 and project_completion_status in ('Completed', 'Excellent') and admin_lor_approval`
	default:
		return domain.Account{}, false, domain.Validationf("Invalid certificate type %q", typ)
	}
	a, err := scanAccount(s.db.QueryRowContext(ctx, q+` returning `+accountColumns, userID, actor, at))
	if err == nil {
		return a, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return domain.Account{}, false, wrapErr(err)
	}
	a, err = s.FindAccount(ctx, userID)
	if err != nil {
		return domain.Account{}, false, wrapErr(err)
	}
	return a, false, nil
}

// SetApproval grants or revokes an admin approval. Revoking also withdraws the
// matching unlock, except an LOR unlocked through an approved project.
func (s *Store) SetApproval(ctx context.Context, userID string, typ domain.CertificateType, approved bool, actor string, at time.Time) (domain.Account, error) {
	var q string
	switch typ {
	case domain.CertificateCompletion:
		q = `update accounts set
				admin_certificate_approval = $2, admin_certificate_approval_by = $3, admin_certificate_approval_at = $4,
				certificate_unlocked    = certificate_unlocked and $2,
				certificate_unlocked_by = case when $2 then certificate_unlocked_by end,
				certificate_unlocked_at = case when $2 then certificate_unlocked_at end,
				updated_at = $4
			where user_id = $1`
	case domain.CertificateLOR:
		q = `update accounts a set
				admin_lor_approval = $2, admin_lor_approval_by = $3, admin_lor_approval_at = $4,
				lor_unlocked    = lor_unlocked and ($2 or p.approved),
				lor_unlocked_by = case when $2 or p.approved then lor_unlocked_by end,
				lor_unlocked_at = case when $2 or p.approved then lor_unlocked_at end,
				updated_at = $4
			from (select exists (select 1 from projects where user_id = $1 and review_status = 'Approved') as approved) p
			where a.user_id = $1`
	default:
		return domain.Account{}, domain.Validationf("Invalid certificate type %q", typ)
	}
	a, err := scanAccount(s.db.QueryRowContext(ctx, q+` returning `+accountColumns, userID, approved, actor, at))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Account{}, domain.NotFoundf("User not found")
	}
	return a, wrapErr(err)
}
