package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"vedarc.org/internal/audit"
	"vedarc.org/internal/auth"
	"vedarc.org/internal/domain"
	"vedarc.org/internal/obs"
)

// Grant is the result of a successful login.
type Grant struct {
	Token     string          `json:"access_token"`
	TokenType string          `json:"token_type"`
	ExpiresAt time.Time       `json:"expires_at"`
	SessionID string          `json:"session_id"`
	UserType  domain.Role     `json:"user_type"`
	Subject   string          `json:"user_id"`
	Account   *domain.Account `json:"user,omitempty"`
}

var errBadCredentials = fmt.Errorf("%w: Invalid credentials", domain.ErrInvalidCredentials)

// Login authenticates a student. Account status is checked before the password.
func (s *Service) Login(ctx context.Context, userID, password string) (Grant, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" || password == "" {
		return Grant{}, domain.Validationf("user_id and password are required")
	}
	acct, err := s.store.FindAccount(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return Grant{}, errBadCredentials
		}
		return Grant{}, err
	}
	switch acct.Status {
	case domain.StatusActive:
	case domain.StatusDisabled:
		return Grant{}, fmt.Errorf("%w: Account has been disabled. Please contact HR for assistance.", domain.ErrInvalidCredentials)
	default:
		return Grant{}, fmt.Errorf("%w: Account not activated. Please contact HR.", domain.ErrInvalidCredentials)
	}
	if err := auth.VerifyPassword(acct.PasswordHash, password); err != nil {
		_ = audit.LogEvent(ctx, "auth.login_failed", map[string]any{"target": userID, "role": string(domain.RoleStudent)})
		return Grant{}, errBadCredentials
	}
	g, err := s.grant(ctx, acct.UserID, domain.RoleStudent)
	if err != nil {
		return Grant{}, err
	}
	g.Account = &acct
	return g, nil
}

// OperatorLogin authenticates a staff member for the dashboard of role.
func (s *Service) OperatorLogin(ctx context.Context, username, password string, role domain.Role) (Grant, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return Grant{}, domain.Validationf("username and password are required")
	}
	op, err := s.store.FindOperator(ctx, username)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return Grant{}, errBadCredentials
		}
		return Grant{}, err
	}
	if op.Role != role {
		return Grant{}, errBadCredentials
	}
	if err := auth.VerifyPassword(op.PasswordHash, password); err != nil {
		_ = audit.LogEvent(ctx, "auth.login_failed", map[string]any{"target": username, "role": string(role)})
		return Grant{}, errBadCredentials
	}
	return s.grant(ctx, op.Username, op.Role)
}

func (s *Service) grant(ctx context.Context, subject string, role domain.Role) (Grant, error) {
	token, exp, err := s.tokens.Generate(subject, role)
	if err != nil {
		return Grant{}, fmt.Errorf("issue token: %w", err)
	}
	sess, err := s.sessions.Create(ctx, subject, role, token)
	if err != nil {
		return Grant{}, err
	}
	if n, err := s.sessions.SweepExpired(ctx); err != nil {
		obs.Warn("session_sweep_failed", map[string]any{"error": err})
	} else if n > 0 {
		obs.Info("sessions_swept", map[string]any{"count": n, "trigger": "login"})
	}
	_ = audit.LogEvent(ctx, "auth.login", map[string]any{"target": subject, "role": string(role), "session_id": sess.SessionID})
	return Grant{
		Token:     token,
		TokenType: "bearer",
		ExpiresAt: exp,
		SessionID: sess.SessionID,
		UserType:  role,
		Subject:   subject,
	}, nil
}
