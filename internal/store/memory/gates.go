package memory

import (
	"context"
	"time"

	"vedarc.org/internal/domain"
)

func (s *Store) CountApprovedSubmissions(ctx context.Context, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, sub := range s.submissions {
		if sub.UserID == userID && sub.Status == domain.SubmissionApproved {
			n++
		}
	}
	return n, nil
}

// SetCompletion stores the percentage and drops a certificate unlock that no
// longer has full completion behind it.
func (s *Store) SetCompletion(ctx context.Context, userID string, pct float64, at time.Time) (domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[userID]
	if !ok {
		return domain.Account{}, domain.NotFoundf("User not found")
	}
	a.CompletionPercentage = pct
	if pct < 100 && a.CertificateUnlocked {
		a.CertificateUnlocked = false
		a.CertificateUnlockedBy = ""
		a.CertificateUnlockedAt = nil
	}
	a.UpdatedAt = at
	return *a, nil
}

// UnlockGate sets the unlocked flag only if the gate's preconditions hold at
// the moment of the write. It reports whether the flag was set.
func (s *Store) UnlockGate(ctx context.Context, userID string, typ domain.CertificateType, actor string, at time.Time) (domain.Account, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[userID]
	if !ok {
		return domain.Account{}, false, domain.NotFoundf("User not found")
	}
	switch typ {
	case domain.CertificateCompletion:
		if a.CompletionPercentage < 100 || !a.AdminCertificateApproval {
			return *a, false, nil
		}
		a.CertificateUnlocked = true
		a.CertificateUnlockedBy = actor
		a.CertificateUnlockedAt = timePtr(at)
	case domain.CertificateLOR:
		if !a.ProjectStatus.QualifiesForLOR() || !a.AdminLORApproval {
			return *a, false, nil
		}
		a.LORUnlocked = true
		a.LORUnlockedBy = actor
		a.LORUnlockedAt = timePtr(at)
	default:
		return domain.Account{}, false, domain.Validationf("Invalid certificate type %q", typ)
	}
	a.UpdatedAt = at
	return *a, true, nil
}

// SetApproval grants or revokes an admin approval. Revoking also withdraws the
// matching unlock, except an LOR unlocked through an approved project.
func (s *Store) SetApproval(ctx context.Context, userID string, typ domain.CertificateType, approved bool, actor string, at time.Time) (domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[userID]
	if !ok {
		return domain.Account{}, domain.NotFoundf("User not found")
	}
	switch typ {
	case domain.CertificateCompletion:
		a.AdminCertificateApproval = approved
		a.AdminCertificateApprovalBy = actor
		a.AdminCertificateApprovalAt = timePtr(at)
		if !approved {
			a.CertificateUnlocked = false
			a.CertificateUnlockedBy = ""
			a.CertificateUnlockedAt = nil
		}
	case domain.CertificateLOR:
		a.AdminLORApproval = approved
		a.AdminLORApprovalBy = actor
		a.AdminLORApprovalAt = timePtr(at)
		if !approved && !s.hasApprovedProjectLocked(userID) {
			a.LORUnlocked = false
			a.LORUnlockedBy = ""
			a.LORUnlockedAt = nil
		}
	default:
		return domain.Account{}, domain.Validationf("Invalid certificate type %q", typ)
	}
	a.UpdatedAt = at
	return *a, nil
}

func (s *Store) hasApprovedProjectLocked(userID string) bool {
	for _, p := range s.projects {
		if p.UserID == userID && p.ReviewStatus == domain.ProjectApproved {
			return true
		}
	}
	return false
}
