package memory

import (
	"context"
	"sort"

	"vedarc.org/internal/domain"
)

func (s *Store) CreateCertificate(ctx context.Context, c domain.Certificate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.certs {
		if existing.UserID == c.UserID && existing.Type == c.Type {
			return domain.Conflictf("%s has already been issued for this student", c.Type.DisplayName())
		}
	}
	cp := c
	s.certs[c.ID] = &cp
	return nil
}

func (s *Store) ListCertificates(ctx context.Context, userID string) ([]domain.Certificate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Certificate
	for _, c := range s.certs {
		if c.UserID == userID {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IssuedAt.Before(out[j].IssuedAt) })
	return out, nil
}

func (s *Store) FindCertificateByCode(ctx context.Context, code string) (domain.Certificate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.certs {
		if c.Code == code {
			return *c, nil
		}
	}
	return domain.Certificate{}, domain.NotFoundf("Certificate not found")
}
