package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"vedarc.org/internal/domain"
	"vedarc.org/internal/obs"
)

// DefaultTTL is the rolling inactivity window after which a session expires.
const DefaultTTL = 24 * time.Hour

// Store persists session records.
type Store interface {
	CreateSession(ctx context.Context, s domain.Session) error
	GetSession(ctx context.Context, sessionID string) (domain.Session, error)
	// TouchSession updates last_activity of an active session. It returns
	// ErrNotFound when the session is missing or no longer active.
	TouchSession(ctx context.Context, sessionID string, at time.Time) error
	// DeactivateSession reports whether an active session was switched off.
	DeactivateSession(ctx context.Context, sessionID string, at time.Time) (bool, error)
	// DeactivateExpiredSessions switches off active sessions idle since before cutoff.
	DeactivateExpiredSessions(ctx context.Context, cutoff, at time.Time) ([]string, error)
	ListUserSessions(ctx context.Context, userID string) ([]domain.Session, error)
	DeactivateUserSessions(ctx context.Context, userID string, at time.Time) ([]string, error)
}

// Cache keeps recently validated active sessions close to the API.
// A revoked id reads back as an inactive session and refuses Put until
// the marker expires.
type Cache interface {
	Get(ctx context.Context, sessionID string) (domain.Session, bool, error)
	Put(ctx context.Context, s domain.Session, ttl time.Duration) error
	Revoke(ctx context.Context, ttl time.Duration, sessionIDs ...string) error
}

// Service implements session tracking on top of stateless tokens.
type Service struct {
	store Store
	cache Cache
	ttl   time.Duration
	now   func() time.Time
}

// Option configures Service.
type Option func(*Service)

// WithCache enables the read-through session cache.
func WithCache(c Cache) Option {
	return func(s *Service) { s.cache = c }
}

// WithTTL overrides the inactivity window.
func WithTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService constructs a session service.
func NewService(store Store, opts ...Option) *Service {
	s := &Service{store: store, ttl: DefaultTTL, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TTL returns the configured inactivity window.
func (s *Service) TTL() time.Duration { return s.ttl }

// Create records a new active session. Earlier sessions of the same user stay active.
func (s *Service) Create(ctx context.Context, userID string, role domain.Role, token string) (domain.Session, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.Session{}, domain.Validationf("user_id is required")
	}
	if _, err := domain.ParseRole(string(role)); err != nil {
		return domain.Session{}, err
	}
	now := s.now().UTC()
	sess := domain.Session{
		SessionID:    uuid.NewString(),
		UserID:       userID,
		UserType:     role,
		Token:        token,
		CreatedAt:    now,
		LastActivity: now,
		IsActive:     true,
	}
	if err := s.store.CreateSession(ctx, sess); err != nil {
		return domain.Session{}, err
	}
	s.cachePut(ctx, sess)
	return sess, nil
}

// Touch refreshes last_activity.
func (s *Service) Touch(ctx context.Context, sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return domain.Validationf("session_id is required")
	}
	now := s.now().UTC()
	if err := s.store.TouchSession(ctx, sessionID, now); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.cacheRevoke(ctx, sessionID)
		}
		return err
	}
	if s.cache != nil {
		if cached, ok, err := s.cache.Get(ctx, sessionID); err == nil && ok && cached.IsActive {
			cached.LastActivity = now
			s.cachePut(ctx, cached)
		}
	}
	return nil
}

// Deactivate switches a session off. Repeated calls succeed.
func (s *Service) Deactivate(ctx context.Context, sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return domain.Validationf("session_id is required")
	}
	if _, err := s.store.DeactivateSession(ctx, sessionID, s.now().UTC()); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	// маркер после записи в БД: конкурентный lookup не вернёт активную сессию в кэш
	s.cacheRevoke(ctx, sessionID)
	return nil
}

// SweepExpired deactivates every session idle for longer than the TTL.
func (s *Service) SweepExpired(ctx context.Context) (int, error) {
	now := s.now().UTC()
	ids, err := s.store.DeactivateExpiredSessions(ctx, now.Add(-s.ttl), now)
	if err != nil {
		return 0, err
	}
	if len(ids) > 0 {
		s.cacheRevoke(ctx, ids...)
		obs.SessionsSwept.Add(float64(len(ids)))
	}
	return len(ids), nil
}

// Validate checks that the session exists, is active, has not idled past the
// TTL and belongs to the claimed identity.
func (s *Service) Validate(ctx context.Context, sessionID, userID string, role domain.Role) (domain.Session, error) {
	if strings.TrimSpace(sessionID) == "" {
		return domain.Session{}, domain.Validationf("session_id is required")
	}
	sess, err := s.lookup(ctx, sessionID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Session{}, invalid("session not found")
		}
		return domain.Session{}, err
	}
	if !sess.IsActive {
		return domain.Session{}, invalid("session is no longer active")
	}
	if s.expired(sess) {
		return domain.Session{}, invalid("session expired")
	}
	if sess.UserID != userID || sess.UserType != role {
		return domain.Session{}, invalid("session does not belong to the authenticated user")
	}
	return sess, nil
}

// List returns all sessions recorded for the user.
func (s *Service) List(ctx context.Context, userID string) ([]domain.Session, error) {
	sessions, err := s.store.ListUserSessions(ctx, userID)
	if err != nil {
		return nil, err
	}
	for i := range sessions {
		if sessions[i].IsActive && s.expired(sessions[i]) {
			sessions[i].IsActive = false
		}
	}
	return sessions, nil
}

// RevokeAll deactivates every session of the user and reports how many were active.
func (s *Service) RevokeAll(ctx context.Context, userID string) (int, error) {
	ids, err := s.store.DeactivateUserSessions(ctx, userID, s.now().UTC())
	if err != nil {
		return 0, err
	}
	s.cacheRevoke(ctx, ids...)
	return len(ids), nil
}

func (s *Service) lookup(ctx context.Context, sessionID string) (domain.Session, error) {
	if s.cache != nil {
		sess, ok, err := s.cache.Get(ctx, sessionID)
		if err != nil {
			obs.Warn("session cache read failed", map[string]any{"session_id": sessionID, "error": err})
		} else if ok {
			return sess, nil
		}
	}
	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return domain.Session{}, err
	}
	if sess.IsActive && !s.expired(sess) {
		s.cachePut(ctx, sess)
	}
	return sess, nil
}

func (s *Service) expired(sess domain.Session) bool {
	return s.now().UTC().Sub(sess.LastActivity) > s.ttl
}

func (s *Service) cachePut(ctx context.Context, sess domain.Session) {
	if s.cache == nil {
		return
	}
	remaining := s.ttl - s.now().UTC().Sub(sess.LastActivity)
	if remaining <= 0 {
		return
	}
	if err := s.cache.Put(ctx, sess, remaining); err != nil {
		obs.Warn("session cache write failed", map[string]any{"session_id": sess.SessionID, "error": err})
	}
}

func (s *Service) cacheRevoke(ctx context.Context, ids ...string) {
	if s.cache == nil || len(ids) == 0 {
		return
	}
	if err := s.cache.Revoke(ctx, s.ttl, ids...); err != nil {
		obs.Warn("session cache invalidation failed", map[string]any{"count": len(ids), "error": err})
	}
}

func invalid(reason string) error {
	return fmt.Errorf("%w: %s", domain.ErrUnauthorized, reason)
}
