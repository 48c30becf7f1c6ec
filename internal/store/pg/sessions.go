package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"vedarc.org/internal/domain"
)

const sessionColumns = `session_id, user_id, user_type, token, created_at, last_activity, is_active, deactivated_at`

func scanSession(row scanner) (domain.Session, error) {
	var (
		s     domain.Session
		role  string
		deact sql.NullTime
	)
	if err := row.Scan(&s.SessionID, &s.UserID, &role, &s.Token, &s.CreatedAt, &s.LastActivity, &s.IsActive, &deact); err != nil {
		return domain.Session{}, wrapErr(err)
	}
	s.UserType = domain.Role(role)
	s.DeactivatedAt = timePtr(deact)
	return s, nil
}

func (s *Store) CreateSession(ctx context.Context, sess domain.Session) error {
	_, err := s.db.ExecContext(ctx, `
		insert into sessions (session_id, user_id, user_type, token, created_at, last_activity, is_active)
		values ($1, $2, $3, $4, $5, $6, $7)
	`, sess.SessionID, sess.UserID, string(sess.UserType), sess.Token, sess.CreatedAt, sess.LastActivity, sess.IsActive)
	if isUniqueViolation(err, "") {
		return domain.Conflictf("session %s already exists", sess.SessionID)
	}
	return wrapErr(err)
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (domain.Session, error) {
	sess, err := scanSession(s.db.QueryRowContext(ctx, `select `+sessionColumns+` from sessions where session_id = $1`, sessionID))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Session{}, domain.NotFoundf("session not found")
	}
	return sess, wrapErr(err)
}

func (s *Store) TouchSession(ctx context.Context, sessionID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `update sessions set last_activity = $2 where session_id = $1 and is_active`, sessionID, at)
	if err != nil {
		return wrapErr(err)
	}
	n, err := affected(res)
	if err != nil {
		return wrapErr(err)
	}
	if n == 0 {
		return domain.NotFoundf("active session not found")
	}
	return nil
}

// DeactivateSession reports false when the session was already inactive.
func (s *Store) DeactivateSession(ctx context.Context, sessionID string, at time.Time) (bool, error) {
	var active bool
	err := s.db.QueryRowContext(ctx, `
		with prev as (select is_active from sessions where session_id = $1 for update)
		update sessions set is_active = false, deactivated_at = coalesce(deactivated_at, $2)
		where session_id = $1
		returning (select is_active from prev)
	`, sessionID, at).Scan(&active)
	if errors.Is(err, sql.ErrNoRows) {
		return false, domain.NotFoundf("session not found")
	}
	if err != nil {
		return false, wrapErr(err)
	}
	return active, nil
}

func (s *Store) DeactivateExpiredSessions(ctx context.Context, cutoff, at time.Time) ([]string, error) {
	return s.deactivateWhere(ctx, `is_active and last_activity < $1`, cutoff, at)
}

func (s *Store) DeactivateUserSessions(ctx context.Context, userID string, at time.Time) ([]string, error) {
	return s.deactivateWhere(ctx, `is_active and user_id = $1`, userID, at)
}

func (s *Store) deactivateWhere(ctx context.Context, cond string, arg any, at time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		update sessions set is_active = false, deactivated_at = $2
		where `+cond+`
		returning session_id
	`, arg, at)
	if err != nil {
		return nil, wrapErr(err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, wrapErr(err)
		}
		ids = append(ids, id)
	}
	return ids, wrapErr(rows.Err())
}

func (s *Store) ListUserSessions(ctx context.Context, userID string) ([]domain.Session, error) {
	rows, err := s.db.QueryContext(ctx, `select `+sessionColumns+` from sessions where user_id = $1 order by created_at desc`, userID)
	if err != nil {
		return nil, wrapErr(err)
	}
	defer rows.Close()
	var out []domain.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, wrapErr(err)
		}
		out = append(out, sess)
	}
	return out, wrapErr(rows.Err())
}
