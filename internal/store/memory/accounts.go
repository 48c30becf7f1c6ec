package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"vedarc.org/internal/domain"
)

func (s *Store) FindAccount(ctx context.Context, userID string) (domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[userID]
	if !ok {
		return domain.Account{}, domain.NotFoundf("User not found")
	}
	return *a, nil
}

func (s *Store) FindAccountByEmail(ctx context.Context, email string) (domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.emails[strings.ToLower(email)]
	if !ok {
		return domain.Account{}, domain.NotFoundf("User not found")
	}
	return *s.accounts[id], nil
}

func (s *Store) ListAccounts(ctx context.Context, f domain.AccountFilter) ([]domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		if f.Matches(*a) {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// InsertAccount adds an account directly; used by seeding and tests.
func (s *Store) InsertAccount(ctx context.Context, a domain.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertAccountLocked(a)
}

func (s *Store) insertAccountLocked(a domain.Account) error {
	email := strings.ToLower(a.Email)
	if _, ok := s.emails[email]; ok {
		return domain.Conflictf("Email already registered")
	}
	if _, ok := s.accounts[a.UserID]; ok {
		return domain.Conflictf("user_id %s already exists", a.UserID)
	}
	cp := a
	s.accounts[a.UserID] = &cp
	s.emails[email] = a.UserID
	return nil
}

func (s *Store) CreatePayment(ctx context.Context, p domain.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.payments[p.OrderID]; ok {
		return domain.Conflictf("order %s already exists", p.OrderID)
	}
	email := strings.ToLower(p.Email)
	if _, ok := s.emails[email]; ok {
		return domain.Conflictf("Email already registered")
	}
	for _, existing := range s.payments {
		if existing.Status == domain.PaymentCreated && strings.ToLower(existing.Email) == email {
			return domain.Conflictf("A registration for this email is already awaiting payment")
		}
	}
	cp := p
	s.payments[p.OrderID] = &cp
	return nil
}

func (s *Store) ExpirePendingPayments(ctx context.Context, email string, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	email = strings.ToLower(email)
	n := 0
	for _, p := range s.payments {
		if p.Status == domain.PaymentCreated && strings.ToLower(p.Email) == email && p.CreatedAt.Before(before) {
			p.Status = domain.PaymentExpired
			n++
		}
	}
	return n, nil
}

// ListPayments returns orders newest first, optionally of one status.
func (s *Store) ListPayments(ctx context.Context, status domain.PaymentStatus) ([]domain.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Payment, 0, len(s.payments))
	for _, p := range s.payments {
		if status == "" || p.Status == status {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) FindPayment(ctx context.Context, orderID string) (domain.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.payments[orderID]
	if !ok {
		return domain.Payment{}, domain.NotFoundf("Order %s not found", orderID)
	}
	return *p, nil
}

// CompletePayment claims the order and mints its account in one step. When the
// order was already claimed it returns the existing account and false.
func (s *Store) CompletePayment(ctx context.Context, orderID, paymentID string, acct domain.Account, at time.Time) (domain.Account, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[orderID]
	if !ok {
		return domain.Account{}, false, domain.NotFoundf("Order %s not found", orderID)
	}
	if p.Verified {
		existing, ok := s.accounts[p.UserID]
		if !ok {
			return domain.Account{}, false, domain.NotFoundf("User not found")
		}
		return *existing, false, nil
	}
	if err := s.insertAccountLocked(acct); err != nil {
		return domain.Account{}, false, err
	}
	p.Verified = true
	p.Status = domain.PaymentCompleted
	p.PaymentID = paymentID
	p.UserID = acct.UserID
	p.VerifiedAt = timePtr(at)
	return acct, true, nil
}

func (s *Store) TransitionAccount(ctx context.Context, t domain.Transition) (domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[t.UserID]
	if !ok {
		return domain.Account{}, domain.NotFoundf("User not found")
	}
	if a.Status != t.From {
		return domain.Account{}, t.Rejected(a.Status)
	}
	a.Apply(t)
	return *a, nil
}

func (s *Store) SetPassword(ctx context.Context, userID, hash string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[userID]
	if !ok {
		return domain.NotFoundf("User not found")
	}
	a.PasswordHash = hash
	a.UpdatedAt = at
	return nil
}

// RepairAccountStatuses assigns a status to accounts that lack one.
func (s *Store) RepairAccountStatuses(ctx context.Context, at time.Time) ([]domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var fixed []domain.Account
	for _, a := range s.accounts {
		if a.Status != "" {
			continue
		}
		if a.ActivatedAt != nil {
			a.Status = domain.StatusActive
		} else {
			a.Status = domain.StatusPending
		}
		a.UpdatedAt = at
		fixed = append(fixed, *a)
	}
	return fixed, nil
}

// DeleteAccount removes the account and every record owned by it, provided
// the account is still in the required status.
func (s *Store) DeleteAccount(ctx context.Context, userID string, required domain.AccountStatus) (domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[userID]
	if !ok {
		return domain.Account{}, domain.NotFoundf("User not found")
	}
	if a.Status != required {
		return domain.Account{}, &domain.StateError{Entity: "User", ID: userID, Action: "deleted", Current: string(a.Status), Required: string(required)}
	}
	delete(s.accounts, userID)
	delete(s.emails, strings.ToLower(a.Email))
	for id, sess := range s.sessions {
		if sess.UserID == userID {
			delete(s.sessions, id)
		}
	}
	for id, sub := range s.submissions {
		if sub.UserID == userID {
			delete(s.submissions, id)
		}
	}
	for id, p := range s.projects {
		if p.UserID == userID {
			delete(s.projects, id)
		}
	}
	for id, n := range s.notes {
		if n.UserID == userID {
			delete(s.notes, id)
		}
	}
	for k := range s.daily {
		if k.userID == userID {
			delete(s.daily, k)
		}
	}
	for id, c := range s.certs {
		if c.UserID == userID {
			delete(s.certs, id)
		}
	}
	return *a, nil
}

func (s *Store) FindOperator(ctx context.Context, username string) (domain.Operator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	op, ok := s.operators[strings.ToLower(username)]
	if !ok {
		return domain.Operator{}, domain.NotFoundf("operator %s not found", username)
	}
	return op, nil
}

func (s *Store) CreateOperator(ctx context.Context, op domain.Operator) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.ToLower(op.Username)
	if _, ok := s.operators[key]; ok {
		return domain.Conflictf("operator %s already exists", op.Username)
	}
	s.operators[key] = op
	return nil
}
