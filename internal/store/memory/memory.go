// Package memory is a mutex-guarded in-process implementation of every
// repository interface. It backs tests and single-node development runs.
package memory

import (
	"context"
	"sync"
	"time"

	"vedarc.org/internal/domain"
)

// Store keeps all records in maps under one lock, so compound operations
// (claim-and-mint, approve-and-unlock) are atomic like their SQL counterparts.
type Store struct {
	mu sync.RWMutex

	accounts    map[string]*domain.Account // user_id ->
	emails      map[string]string          // lower(email) -> user_id
	payments    map[string]*domain.Payment // order_id ->
	operators   map[string]domain.Operator
	sessions    map[string]*domain.Session
	submissions map[string]*domain.Submission
	templates   map[string]*domain.ProjectTemplate
	projects    map[string]*domain.Project
	internships map[string]*domain.Internship
	weeks       map[string][]domain.Week // track ->
	daily       map[dailyKey]domain.DailyCompletion
	notes       map[string]*domain.Notification
	news        []domain.Announcement
	certs       map[string]*domain.Certificate
}

type dailyKey struct {
	userID string
	week   int
	day    int
}

// New returns an empty store.
func New() *Store {
	return &Store{
		accounts:    make(map[string]*domain.Account),
		emails:      make(map[string]string),
		payments:    make(map[string]*domain.Payment),
		operators:   make(map[string]domain.Operator),
		sessions:    make(map[string]*domain.Session),
		submissions: make(map[string]*domain.Submission),
		templates:   make(map[string]*domain.ProjectTemplate),
		projects:    make(map[string]*domain.Project),
		internships: make(map[string]*domain.Internship),
		weeks:       make(map[string][]domain.Week),
		daily:       make(map[dailyKey]domain.DailyCompletion),
		notes:       make(map[string]*domain.Notification),
		certs:       make(map[string]*domain.Certificate),
	}
}

// Ping always succeeds.
func (s *Store) Ping(ctx context.Context) error { return nil }

func timePtr(t time.Time) *time.Time { return &t }
