package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"vedarc.org/internal/domain"
)

const accountColumns = `user_id, email, full_name, whatsapp, college_name, track, year_of_study, passout_year,
	coalesce(status, ''), payment_id, order_id, password_hash,
	certificate_unlocked, certificate_unlocked_by, certificate_unlocked_at,
	lor_unlocked, lor_unlocked_by, lor_unlocked_at,
	admin_certificate_approval, admin_certificate_approval_by, admin_certificate_approval_at,
	admin_lor_approval, admin_lor_approval_by, admin_lor_approval_at,
	course_completion_percentage, project_completion_status,
	activated_at, activated_by, disabled_at, disabled_by, disable_reason, enabled_at, enabled_by,
	created_at, updated_at`

func scanAccount(row scanner) (domain.Account, error) {
	var (
		a                                  domain.Account
		status, project                    string
		paymentID, orderID                 sql.NullString
		certBy, lorBy, admCertBy, admLORBy sql.NullString
		actBy, disBy, reason, enBy         sql.NullString
		certAt, lorAt, admCertAt, admLORAt sql.NullTime
		actAt, disAt, enAt                 sql.NullTime
	)
	err := row.Scan(
		&a.UserID, &a.Email, &a.FullName, &a.WhatsApp, &a.CollegeName, &a.Track, &a.YearOfStudy, &a.PassoutYear,
		&status, &paymentID, &orderID, &a.PasswordHash,
		&a.CertificateUnlocked, &certBy, &certAt,
		&a.LORUnlocked, &lorBy, &lorAt,
		&a.AdminCertificateApproval, &admCertBy, &admCertAt,
		&a.AdminLORApproval, &admLORBy, &admLORAt,
		&a.CompletionPercentage, &project,
		&actAt, &actBy, &disAt, &disBy, &reason, &enAt, &enBy,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return domain.Account{}, wrapErr(err)
	}
	a.Status = domain.AccountStatus(status)
	a.ProjectStatus = domain.ProjectCompletion(project)
	a.PaymentID, a.OrderID = paymentID.String, orderID.String
	a.CertificateUnlockedBy, a.CertificateUnlockedAt = certBy.String, timePtr(certAt)
	a.LORUnlockedBy, a.LORUnlockedAt = lorBy.String, timePtr(lorAt)
	a.AdminCertificateApprovalBy, a.AdminCertificateApprovalAt = admCertBy.String, timePtr(admCertAt)
	a.AdminLORApprovalBy, a.AdminLORApprovalAt = admLORBy.String, timePtr(admLORAt)
	a.ActivatedBy, a.ActivatedAt = actBy.String, timePtr(actAt)
	a.DisabledBy, a.DisabledAt, a.DisableReason = disBy.String, timePtr(disAt), reason.String
	a.EnabledBy, a.EnabledAt = enBy.String, timePtr(enAt)
	return a, nil
}

func (s *Store) FindAccount(ctx context.Context, userID string) (domain.Account, error) {
	a, err := scanAccount(s.db.QueryRowContext(ctx, `select `+accountColumns+` from accounts where user_id = $1`, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Account{}, domain.NotFoundf("User not found")
	}
	return a, wrapErr(err)
}

func (s *Store) FindAccountByEmail(ctx context.Context, email string) (domain.Account, error) {
	a, err := scanAccount(s.db.QueryRowContext(ctx, `select `+accountColumns+` from accounts where lower(email) = lower($1)`, email))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Account{}, domain.NotFoundf("User not found")
	}
	return a, wrapErr(err)
}

func (s *Store) ListAccounts(ctx context.Context, f domain.AccountFilter) ([]domain.Account, error) {
	var (
		where []string
		args  []any
	)
	if f.Status != "" {
		args = append(args, string(f.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.Track != "" {
		args = append(args, f.Track)
		where = append(where, fmt.Sprintf("track = $%d", len(args)))
	}
	if !f.CreatedFrom.IsZero() {
		args = append(args, f.CreatedFrom)
		where = append(where, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if !f.CreatedBefore.IsZero() {
		args = append(args, f.CreatedBefore)
		where = append(where, fmt.Sprintf("created_at < $%d", len(args)))
	}
	q := `select ` + accountColumns + ` from accounts`
	if len(where) > 0 {
		q += ` where ` + strings.Join(where, " and ")
	}
	q += ` order by created_at desc`
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, wrapErr(err)
	}
	defer rows.Close()
	var out []domain.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, wrapErr(err)
		}
		out = append(out, a)
	}
	return out, wrapErr(rows.Err())
}

// InsertAccount adds an account directly; used by imports and seeding.
func (s *Store) InsertAccount(ctx context.Context, a domain.Account) error {
	return insertAccount(ctx, s.db, a)
}

func insertAccount(ctx context.Context, db execer, a domain.Account) error {
	project := a.ProjectStatus
	if project == "" {
		project = domain.ProjectNotStarted
	}
	_, err := db.ExecContext(ctx, `
		insert into accounts (user_id, email, full_name, whatsapp, college_name, track, year_of_study, passout_year,
			status, payment_id, order_id, password_hash, project_completion_status,
			activated_at, activated_by, created_at, updated_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8,nullif($9,''),$10,$11,$12,$13,$14,$15,$16,$17)
	`, a.UserID, a.Email, a.FullName, a.WhatsApp, a.CollegeName, a.Track, a.YearOfStudy, a.PassoutYear,
		string(a.Status), nullIfEmpty(a.PaymentID), nullIfEmpty(a.OrderID), a.PasswordHash, string(project),
		nullTime(a.ActivatedAt), nullIfEmpty(a.ActivatedBy), a.CreatedAt, a.UpdatedAt)
	if isUniqueViolation(err, "accounts_email_uq") {
		return domain.Conflictf("Email already registered")
	}
	if isUniqueViolation(err, "") {
		return domain.Conflictf("user_id %s already exists", a.UserID)
	}
	return wrapErr(err)
}

// CreatePayment stores a pending order unless the email already belongs to an
// account. The partial unique index rejects a second pending order per email.
func (s *Store) CreatePayment(ctx context.Context, p domain.Payment) error {
	reg, err := json.Marshal(p.Registration)
	if err != nil {
		return fmt.Errorf("encode registration: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		insert into payments (order_id, email, amount, currency, status, registration, created_at)
		select $1, $2, $3, $4, $5, $6, $7
		where not exists (select 1 from accounts where lower(email) = lower($2))
	`, p.OrderID, p.Email, p.Amount, p.Currency, string(domain.PaymentCreated), reg, p.CreatedAt)
	switch {
	case isUniqueViolation(err, "payments_pending_email_uq"):
		return domain.Conflictf("A registration for this email is already awaiting payment")
	case isUniqueViolation(err, ""):
		return domain.Conflictf("order %s already exists", p.OrderID)
	case err != nil:
		return wrapErr(err)
	}
	n, err := affected(res)
	if err != nil {
		return wrapErr(err)
	}
	if n == 0 {
		return domain.Conflictf("Email already registered")
	}
	return nil
}

func (s *Store) ExpirePendingPayments(ctx context.Context, email string, before time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		update payments set status = 'expired'
		where lower(email) = lower($1) and status = 'created' and created_at < $2
	`, email, before)
	if err != nil {
		return 0, wrapErr(err)
	}
	n, err := affected(res)
	return int(n), wrapErr(err)
}

const paymentColumns = `order_id, email, amount, currency, status, registration, payment_id, verified, user_id, created_at, verified_at`

func scanPayment(row scanner) (domain.Payment, error) {
	var (
		p                 domain.Payment
		status            string
		reg               []byte
		paymentID, userID sql.NullString
		verifiedAt        sql.NullTime
	)
	if err := row.Scan(&p.OrderID, &p.Email, &p.Amount, &p.Currency, &status, &reg, &paymentID, &p.Verified, &userID, &p.CreatedAt, &verifiedAt); err != nil {
		return domain.Payment{}, wrapErr(err)
	}
	if len(reg) > 0 {
		if err := json.Unmarshal(reg, &p.Registration); err != nil {
			return domain.Payment{}, fmt.Errorf("decode registration: %w", err)
		}
	}
	p.Status = domain.PaymentStatus(status)
	p.PaymentID, p.UserID, p.VerifiedAt = paymentID.String, userID.String, timePtr(verifiedAt)
	return p, nil
}

func (s *Store) ListPayments(ctx context.Context, status domain.PaymentStatus) ([]domain.Payment, error) {
	q, args := `select `+paymentColumns+` from payments`, []any(nil)
	if status != "" {
		q, args = q+` where status = $1`, append(args, string(status))
	}
	rows, err := s.db.QueryContext(ctx, q+` order by created_at desc`, args...)
	if err != nil {
		return nil, wrapErr(err)
	}
	defer rows.Close()
	var out []domain.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, wrapErr(rows.Err())
}

func (s *Store) FindPayment(ctx context.Context, orderID string) (domain.Payment, error) {
	p, err := scanPayment(s.db.QueryRowContext(ctx, `select `+paymentColumns+` from payments where order_id = $1`, orderID))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Payment{}, domain.NotFoundf("Order %s not found", orderID)
	}
	return p, wrapErr(err)
}

// CompletePayment locks the order row, and either returns the account minted
// by an earlier confirmation or inserts acct and marks the order verified.
func (s *Store) CompletePayment(ctx context.Context, orderID, paymentID string, acct domain.Account, at time.Time) (domain.Account, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Account{}, false, wrapErr(err)
	}
	defer func() { _ = tx.Rollback() }()

	var (
		verified bool
		userID   sql.NullString
	)
	err = tx.QueryRowContext(ctx, `select verified, user_id from payments where order_id = $1 for update`, orderID).Scan(&verified, &userID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Account{}, false, domain.NotFoundf("Order %s not found", orderID)
	}
	if err != nil {
		return domain.Account{}, false, wrapErr(err)
	}
	if verified {
		existing, err := scanAccount(tx.QueryRowContext(ctx, `select `+accountColumns+` from accounts where user_id = $1`, userID.String))
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Account{}, false, domain.NotFoundf("User not found")
		}
		if err != nil {
			return domain.Account{}, false, wrapErr(err)
		}
		return existing, false, wrapErr(tx.Commit())
	}

	if err := insertAccount(ctx, tx, acct); err != nil {
		return domain.Account{}, false, wrapErr(err)
	}
	if _, err := tx.ExecContext(ctx, `
		update payments
		set verified = true, status = 'completed', payment_id = $2, user_id = $3, verified_at = $4
		where order_id = $1
	`, orderID, paymentID, acct.UserID, at); err != nil {
		return domain.Account{}, false, wrapErr(err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Account{}, false, wrapErr(err)
	}
	return acct, true, nil
}

// TransitionAccount locks the account, checks it is still in t.From and
// writes the new status with its audit fields.
func (s *Store) TransitionAccount(ctx context.Context, t domain.Transition) (domain.Account, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Account{}, wrapErr(err)
	}
	defer func() { _ = tx.Rollback() }()

	a, err := scanAccount(tx.QueryRowContext(ctx, `select `+accountColumns+` from accounts where user_id = $1 for update`, t.UserID))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Account{}, domain.NotFoundf("User not found")
	}
	if err != nil {
		return domain.Account{}, wrapErr(err)
	}
	if a.Status != t.From {
		return domain.Account{}, t.Rejected(a.Status)
	}
	a.Apply(t)
	if _, err := tx.ExecContext(ctx, `
		update accounts set
			status = $3, password_hash = $4,
			activated_at = $5, activated_by = $6,
			enabled_at = $7, enabled_by = $8,
			disabled_at = $9, disabled_by = $10, disable_reason = $11,
			updated_at = $12
		where user_id = $1 and status = $2
	`, a.UserID, string(t.From), string(a.Status), a.PasswordHash,
		nullTime(a.ActivatedAt), nullIfEmpty(a.ActivatedBy),
		nullTime(a.EnabledAt), nullIfEmpty(a.EnabledBy),
		nullTime(a.DisabledAt), nullIfEmpty(a.DisabledBy), nullIfEmpty(a.DisableReason),
		a.UpdatedAt); err != nil {
		return domain.Account{}, wrapErr(err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Account{}, wrapErr(err)
	}
	return a, nil
}

func (s *Store) SetPassword(ctx context.Context, userID, hash string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `update accounts set password_hash = $2, updated_at = $3 where user_id = $1`, userID, hash, at)
	if err != nil {
		return wrapErr(err)
	}
	n, err := affected(res)
	if err != nil {
		return wrapErr(err)
	}
	if n == 0 {
		return domain.NotFoundf("User not found")
	}
	return nil
}

// RepairAccountStatuses assigns a status to accounts that lack one.
func (s *Store) RepairAccountStatuses(ctx context.Context, at time.Time) ([]domain.Account, error) {
	rows, err := s.db.QueryContext(ctx, `
		update accounts
		set status = case when activated_at is not null then 'Active' else 'Pending' end, updated_at = $1
		where status is null or status = ''
		returning `+accountColumns, at)
	if err != nil {
		return nil, wrapErr(err)
	}
	defer rows.Close()
	var out []domain.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, wrapErr(err)
		}
		out = append(out, a)
	}
	return out, wrapErr(rows.Err())
}

// DeleteAccount removes the account while it is in the required status.
// Owned rows go with it through on-delete-cascade; sessions carry no foreign
// key and are removed explicitly.
func (s *Store) DeleteAccount(ctx context.Context, userID string, required domain.AccountStatus) (domain.Account, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Account{}, wrapErr(err)
	}
	defer func() { _ = tx.Rollback() }()

	a, err := scanAccount(tx.QueryRowContext(ctx, `select `+accountColumns+` from accounts where user_id = $1 for update`, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Account{}, domain.NotFoundf("User not found")
	}
	if err != nil {
		return domain.Account{}, wrapErr(err)
	}
	if a.Status != required {
		return domain.Account{}, &domain.StateError{Entity: "User", ID: userID, Action: "deleted", Current: string(a.Status), Required: string(required)}
	}
	if _, err := tx.ExecContext(ctx, `delete from sessions where user_id = $1`, userID); err != nil {
		return domain.Account{}, wrapErr(err)
	}
	if _, err := tx.ExecContext(ctx, `delete from accounts where user_id = $1`, userID); err != nil {
		return domain.Account{}, wrapErr(err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Account{}, wrapErr(err)
	}
	return a, nil
}

func (s *Store) FindOperator(ctx context.Context, username string) (domain.Operator, error) {
	var (
		op   domain.Operator
		role string
	)
	err := s.db.QueryRowContext(ctx, `
		select username, full_name, role, password_hash, created_at from operators where username = lower($1)
	`, username).Scan(&op.Username, &op.FullName, &role, &op.PasswordHash, &op.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Operator{}, domain.NotFoundf("operator %s not found", username)
	}
	if err != nil {
		return domain.Operator{}, wrapErr(err)
	}
	op.Role = domain.Role(role)
	return op, nil
}

func (s *Store) CreateOperator(ctx context.Context, op domain.Operator) error {
	_, err := s.db.ExecContext(ctx, `
		insert into operators (username, full_name, role, password_hash, created_at)
		values (lower($1), $2, $3, $4, $5)
	`, op.Username, op.FullName, string(op.Role), op.PasswordHash, op.CreatedAt)
	if isUniqueViolation(err, "") {
		return domain.Conflictf("operator %s already exists", op.Username)
	}
	return wrapErr(err)
}
