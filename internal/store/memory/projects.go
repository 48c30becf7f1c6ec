package memory

import (
	"context"
	"sort"
	"time"

	"vedarc.org/internal/domain"
)

func (s *Store) CreateTemplate(ctx context.Context, t domain.ProjectTemplate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := t
	s.templates[t.ID] = &cp
	return nil
}

func (s *Store) UpdateTemplate(ctx context.Context, t domain.ProjectTemplate) (domain.ProjectTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.templates[t.ID]
	if !ok {
		return domain.ProjectTemplate{}, domain.NotFoundf("Project template not found")
	}
	cur.Title = t.Title
	cur.Description = t.Description
	cur.UploadLink = t.UploadLink
	cur.UpdatedAt = t.UpdatedAt
	return *cur, nil
}

func (s *Store) DeleteTemplate(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.templates[id]; !ok {
		return domain.NotFoundf("Project template not found")
	}
	delete(s.templates, id)
	return nil
}

func (s *Store) FindTemplate(ctx context.Context, id string) (domain.ProjectTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.templates[id]
	if !ok {
		return domain.ProjectTemplate{}, domain.NotFoundf("Project template not found")
	}
	return *t, nil
}

// ListTemplates returns templates of an internship, oldest first.
func (s *Store) ListTemplates(ctx context.Context, internshipID string) ([]domain.ProjectTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.ProjectTemplate
	for _, t := range s.templates {
		if internshipID == "" || t.InternshipID == internshipID {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) userProjectLocked(userID, internshipID string) *domain.Project {
	for _, p := range s.projects {
		if p.UserID == userID && p.InternshipID == internshipID {
			return p
		}
	}
	return nil
}

// OptInProject records interest without a template.
func (s *Store) OptInProject(ctx context.Context, p domain.Project) (domain.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing := s.userProjectLocked(p.UserID, p.InternshipID); existing != nil {
		return *existing, domain.Conflictf("Student already has a project for this internship")
	}
	cp := p
	s.projects[p.ID] = &cp
	return cp, nil
}

// AssignProject inserts the assignment or upgrades an opted-in record, and
// moves the owner's project status to In Progress.
func (s *Store) AssignProject(ctx context.Context, p domain.Project) (domain.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[p.UserID]
	if !ok {
		return domain.Project{}, domain.NotFoundf("User not found")
	}
	existing := s.userProjectLocked(p.UserID, p.InternshipID)
	if existing != nil && existing.Status != domain.ProjectOptedIn {
		return domain.Project{}, domain.Conflictf("Student already has a project assigned for this internship")
	}
	if existing != nil {
		p.ID = existing.ID
		p.CreatedAt = existing.CreatedAt
	}
	cp := p
	s.projects[p.ID] = &cp
	if a.ProjectStatus == "" || a.ProjectStatus == domain.ProjectNotStarted {
		a.ProjectStatus = domain.ProjectInProgress
		if p.AssignedAt != nil {
			a.UpdatedAt = *p.AssignedAt
		}
	}
	return cp, nil
}

func (s *Store) FindProject(ctx context.Context, id string) (domain.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[id]
	if !ok {
		return domain.Project{}, domain.NotFoundf("Project not found")
	}
	return *p, nil
}

func (s *Store) FindUserProject(ctx context.Context, userID, internshipID string) (domain.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p := s.userProjectLocked(userID, internshipID); p != nil {
		return *p, nil
	}
	return domain.Project{}, domain.NotFoundf("No project found for this internship")
}

func (s *Store) ListProjects(ctx context.Context, internshipID string) ([]domain.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Project
	for _, p := range s.projects {
		if internshipID == "" || p.InternshipID == internshipID {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) SubmitProject(ctx context.Context, id, userID, link string, at time.Time) (domain.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[id]
	if !ok {
		return domain.Project{}, domain.NotFoundf("Project not found")
	}
	if p.UserID != userID {
		return domain.Project{}, domain.NotFoundf("Project not found")
	}
	if p.Status != domain.ProjectAssigned && p.Status != domain.ProjectRejected {
		return domain.Project{}, &domain.StateError{Entity: "Project", ID: id, Action: "submitted", Current: string(p.Status), Required: string(domain.ProjectAssigned)}
	}
	p.Status = domain.ProjectSubmitted
	p.UploadLink = link
	p.SubmittedAt = timePtr(at)
	return *p, nil
}

// ReviewProject records the decision on a submitted project. Approval unlocks
// the owner's LOR and completes the project status in the same step.
func (s *Store) ReviewProject(ctx context.Context, id string, decision domain.ProjectStatus, feedback, actor string, at time.Time) (domain.Project, domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[id]
	if !ok {
		return domain.Project{}, domain.Account{}, domain.NotFoundf("Project not found")
	}
	if p.Status != domain.ProjectSubmitted {
		return domain.Project{}, domain.Account{}, &domain.StateError{Entity: "Project", ID: id, Action: "reviewed", Current: string(p.Status), Required: string(domain.ProjectSubmitted)}
	}
	a, ok := s.accounts[p.UserID]
	if !ok {
		return domain.Project{}, domain.Account{}, domain.NotFoundf("User not found")
	}
	p.Status = decision
	p.ReviewStatus = decision
	p.ReviewFeedback = feedback
	p.ReviewedBy = actor
	p.ReviewedAt = timePtr(at)
	if decision == domain.ProjectApproved {
		a.LORUnlocked = true
		a.LORUnlockedBy = actor
		a.LORUnlockedAt = timePtr(at)
		a.ProjectStatus = domain.ProjectCompleted
		a.UpdatedAt = at
	}
	return *p, *a, nil
}
