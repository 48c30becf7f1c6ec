package memory

import (
	"context"
	"sort"
	"time"

	"vedarc.org/internal/domain"
)

func (s *Store) CreateSession(ctx context.Context, sess domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sess.SessionID]; ok {
		return domain.Conflictf("session %s already exists", sess.SessionID)
	}
	cp := sess
	s.sessions[sess.SessionID] = &cp
	return nil
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return domain.Session{}, domain.NotFoundf("session not found")
	}
	return *sess, nil
}

func (s *Store) TouchSession(ctx context.Context, sessionID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok || !sess.IsActive {
		return domain.NotFoundf("active session not found")
	}
	sess.LastActivity = at
	return nil
}

func (s *Store) DeactivateSession(ctx context.Context, sessionID string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return false, domain.NotFoundf("session not found")
	}
	if !sess.IsActive {
		return false, nil
	}
	sess.IsActive = false
	sess.DeactivatedAt = timePtr(at)
	return true, nil
}

func (s *Store) DeactivateExpiredSessions(ctx context.Context, cutoff, at time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for id, sess := range s.sessions {
		if sess.IsActive && sess.LastActivity.Before(cutoff) {
			sess.IsActive = false
			sess.DeactivatedAt = timePtr(at)
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *Store) ListUserSessions(ctx context.Context, userID string) ([]domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Session
	for _, sess := range s.sessions {
		if sess.UserID == userID {
			out = append(out, *sess)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) DeactivateUserSessions(ctx context.Context, userID string, at time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for id, sess := range s.sessions {
		if sess.UserID == userID && sess.IsActive {
			sess.IsActive = false
			sess.DeactivatedAt = timePtr(at)
			ids = append(ids, id)
		}
	}
	return ids, nil
}
