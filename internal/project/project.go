package project

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"vedarc.org/internal/audit"
	"vedarc.org/internal/domain"
	"vedarc.org/internal/ids"
	"vedarc.org/internal/obs"
)

// Store persists templates and per-student projects.
type Store interface {
	FindAccount(ctx context.Context, userID string) (domain.Account, error)
	FindInternship(ctx context.Context, id string) (domain.Internship, error)
	FindInternshipByTrack(ctx context.Context, track string) (domain.Internship, error)

	CreateTemplate(ctx context.Context, t domain.ProjectTemplate) error
	UpdateTemplate(ctx context.Context, t domain.ProjectTemplate) (domain.ProjectTemplate, error)
	DeleteTemplate(ctx context.Context, id string) error
	FindTemplate(ctx context.Context, id string) (domain.ProjectTemplate, error)
	ListTemplates(ctx context.Context, internshipID string) ([]domain.ProjectTemplate, error)

	OptInProject(ctx context.Context, p domain.Project) (domain.Project, error)
	// AssignProject inserts p or upgrades an opted-in record of the same
	// student and internship, and marks the owner's project In Progress.
	AssignProject(ctx context.Context, p domain.Project) (domain.Project, error)
	FindProject(ctx context.Context, id string) (domain.Project, error)
	FindUserProject(ctx context.Context, userID, internshipID string) (domain.Project, error)
	ListProjects(ctx context.Context, internshipID string) ([]domain.Project, error)
	SubmitProject(ctx context.Context, id, userID, link string, at time.Time) (domain.Project, error)
	// ReviewProject applies the decision to a submitted project. Approval
	// unlocks the owner's LOR and completes its project status atomically.
	ReviewProject(ctx context.Context, id string, decision domain.ProjectStatus, feedback, actor string, at time.Time) (domain.Project, domain.Account, error)
}

// Notifier tells students about assignments and reviews.
type Notifier interface {
	Notify(ctx context.Context, userID, title, content, priority string) (domain.Notification, error)
}

// TemplateInput describes a reusable project.
type TemplateInput struct {
	InternshipID string `json:"internship_id" validate:"required"`
	Title        string `json:"title" validate:"required,max=200"`
	Description  string `json:"description" validate:"required"`
	UploadLink   string `json:"upload_link" validate:"omitempty,url"`
}

func (in TemplateInput) trimmed() TemplateInput {
	return TemplateInput{
		InternshipID: strings.TrimSpace(in.InternshipID),
		Title:        strings.TrimSpace(in.Title),
		Description:  strings.TrimSpace(in.Description),
		UploadLink:   strings.TrimSpace(in.UploadLink),
	}
}

type Service struct {
	store Store
	notes Notifier
	now   func() time.Time
}

func NewService(store Store, notes Notifier) *Service {
	return &Service{store: store, notes: notes, now: time.Now}
}

func (s *Service) CreateTemplate(ctx context.Context, in TemplateInput) (domain.ProjectTemplate, error) {
	in = in.trimmed()
	if err := domain.Validate(in); err != nil {
		return domain.ProjectTemplate{}, err
	}
	if _, err := s.store.FindInternship(ctx, in.InternshipID); err != nil {
		return domain.ProjectTemplate{}, err
	}
	t := domain.ProjectTemplate{
		ID:           ids.New(),
		InternshipID: in.InternshipID,
		Title:        in.Title,
		Description:  in.Description,
		UploadLink:   in.UploadLink,
		CreatedBy:    audit.Actor(ctx),
		CreatedAt:    s.now().UTC(),
	}
	if err := s.store.CreateTemplate(ctx, t); err != nil {
		return domain.ProjectTemplate{}, err
	}
	_ = audit.LogEvent(ctx, "project.template_created", map[string]any{"template_id": t.ID, "internship_id": t.InternshipID})
	return t, nil
}

func (s *Service) UpdateTemplate(ctx context.Context, id string, in TemplateInput) (domain.ProjectTemplate, error) {
	cur, err := s.store.FindTemplate(ctx, id)
	if err != nil {
		return domain.ProjectTemplate{}, err
	}
	in = in.trimmed()
	in.InternshipID = cur.InternshipID
	if err := domain.Validate(in); err != nil {
		return domain.ProjectTemplate{}, err
	}
	now := s.now().UTC()
	cur.Title, cur.Description, cur.UploadLink, cur.UpdatedAt = in.Title, in.Description, in.UploadLink, &now
	updated, err := s.store.UpdateTemplate(ctx, cur)
	if err != nil {
		return domain.ProjectTemplate{}, err
	}
	_ = audit.LogEvent(ctx, "project.template_updated", map[string]any{"template_id": id})
	return updated, nil
}

// DeleteTemplate removes a template. Projects already assigned from it keep their copy.
func (s *Service) DeleteTemplate(ctx context.Context, id string) error {
	if err := s.store.DeleteTemplate(ctx, id); err != nil {
		return err
	}
	_ = audit.LogEvent(ctx, "project.template_deleted", map[string]any{"template_id": id})
	return nil
}

func (s *Service) ListTemplates(ctx context.Context, internshipID string) ([]domain.ProjectTemplate, error) {
	return s.store.ListTemplates(ctx, internshipID)
}

// AssignFromTemplate gives the student a copy of the template.
func (s *Service) AssignFromTemplate(ctx context.Context, userID, templateID string) (domain.Project, error) {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(templateID) == "" {
		return domain.Project{}, domain.Validationf("user_id and template_id are required")
	}
	acct, err := s.activeStudent(ctx, userID)
	if err != nil {
		return domain.Project{}, err
	}
	t, err := s.store.FindTemplate(ctx, templateID)
	if err != nil {
		return domain.Project{}, err
	}
	in, err := s.store.FindInternship(ctx, t.InternshipID)
	if err != nil {
		return domain.Project{}, err
	}
	if !strings.EqualFold(in.TrackName, acct.Track) {
		return domain.Project{}, domain.Validationf("Template belongs to the %s internship, student is enrolled in %s", in.TrackName, acct.Track)
	}
	return s.assign(ctx, acct, t, false)
}

// AutoAssign picks the oldest template of the internship for a student who
// has completed the course. An empty internshipID resolves to the student's track.
func (s *Service) AutoAssign(ctx context.Context, userID, internshipID string) (domain.Project, error) {
	acct, err := s.activeStudent(ctx, userID)
	if err != nil {
		return domain.Project{}, err
	}
	if acct.CompletionPercentage < 100 {
		return domain.Project{}, domain.Conflictf("Course must be 100%% complete before a project is assigned (current: %.0f%%)", acct.CompletionPercentage)
	}
	internshipID, err = s.resolveInternship(ctx, acct, internshipID)
	if err != nil {
		return domain.Project{}, err
	}
	templates, err := s.store.ListTemplates(ctx, internshipID)
	if err != nil {
		return domain.Project{}, err
	}
	if len(templates) == 0 {
		return domain.Project{}, domain.NotFoundf("No project templates available for this internship")
	}
	return s.assign(ctx, acct, templates[0], true)
}

func (s *Service) assign(ctx context.Context, acct domain.Account, t domain.ProjectTemplate, auto bool) (domain.Project, error) {
	now := s.now().UTC()
	p := domain.Project{
		ID:           ids.New(),
		UserID:       acct.UserID,
		InternshipID: t.InternshipID,
		TemplateID:   t.ID,
		Title:        t.Title,
		Description:  t.Description,
		UploadLink:   t.UploadLink,
		Status:       domain.ProjectAssigned,
		AutoAssigned: auto,
		AssignedAt:   &now,
		CreatedAt:    now,
	}
	assigned, err := s.store.AssignProject(ctx, p)
	if err != nil {
		return domain.Project{}, err
	}
	_ = audit.LogEvent(ctx, "project.assigned", map[string]any{
		"project_id":  assigned.ID,
		"target":      acct.UserID,
		"template_id": t.ID,
		"auto":        auto,
	})
	s.notify(ctx, acct.UserID, "Final Project Assigned", fmt.Sprintf("You have been assigned the project %q.", t.Title))
	return assigned, nil
}

// OptIn records the student's interest in a final project.
func (s *Service) OptIn(ctx context.Context, userID, internshipID string) (domain.Project, error) {
	acct, err := s.activeStudent(ctx, userID)
	if err != nil {
		return domain.Project{}, err
	}
	internshipID, err = s.resolveInternship(ctx, acct, internshipID)
	if err != nil {
		return domain.Project{}, err
	}
	now := s.now().UTC()
	p, err := s.store.OptInProject(ctx, domain.Project{
		ID:           ids.New(),
		UserID:       acct.UserID,
		InternshipID: internshipID,
		Status:       domain.ProjectOptedIn,
		CreatedAt:    now,
	})
	if err != nil {
		return domain.Project{}, err
	}
	_ = audit.LogEvent(ctx, "project.opted_in", map[string]any{"project_id": p.ID, "internship_id": internshipID})
	return p, nil
}

// Submit hands in the owner's project.
func (s *Service) Submit(ctx context.Context, userID, projectID, uploadLink string) (domain.Project, error) {
	in := struct {
		ProjectID  string `json:"project_id" validate:"required"`
		UploadLink string `json:"upload_link" validate:"required,url"`
	}{strings.TrimSpace(projectID), strings.TrimSpace(uploadLink)}
	if err := domain.Validate(in); err != nil {
		return domain.Project{}, err
	}
	p, err := s.store.SubmitProject(ctx, in.ProjectID, userID, in.UploadLink, s.now().UTC())
	if err != nil {
		return domain.Project{}, err
	}
	_ = audit.LogEvent(ctx, "project.submitted", map[string]any{"project_id": p.ID})
	return p, nil
}

// Review records the manager's decision. Approval completes the project and
// unlocks the LOR in the same write.
func (s *Service) Review(ctx context.Context, projectID string, decision domain.ProjectStatus, feedback string) (domain.Project, error) {
	switch domain.ProjectStatus(strings.TrimSpace(string(decision))) {
	case domain.ProjectApproved:
		decision = domain.ProjectApproved
	case domain.ProjectRejected:
		decision = domain.ProjectRejected
	default:
		return domain.Project{}, domain.Validationf("decision must be 'Approved' or 'Rejected'")
	}
	if strings.TrimSpace(projectID) == "" {
		return domain.Project{}, domain.Validationf("Missing required field: project_id")
	}
	actor := audit.Actor(ctx)
	p, acct, err := s.store.ReviewProject(ctx, projectID, decision, strings.TrimSpace(feedback), actor, s.now().UTC())
	if err != nil {
		return domain.Project{}, err
	}
	_ = audit.LogEvent(ctx, "project.reviewed", map[string]any{
		"project_id": p.ID,
		"target":     p.UserID,
		"decision":   string(decision),
	})
	if decision == domain.ProjectApproved {
		obs.GateUnlocks.WithLabelValues(string(domain.CertificateLOR), "project_approved").Inc()
		_ = audit.LogEvent(ctx, "gate.lor_unlocked", map[string]any{"target": acct.UserID, "path": "project", "project_status": string(acct.ProjectStatus)})
		s.notify(ctx, p.UserID, "Final Project Approved", "Your final project was approved and your Letter of Recommendation is now unlocked.")
	} else {
		s.notify(ctx, p.UserID, "Final Project Needs Changes", p.ReviewFeedback)
	}
	return p, nil
}

// Status returns the student's project for the internship.
func (s *Service) Status(ctx context.Context, userID, internshipID string) (domain.Project, error) {
	acct, err := s.store.FindAccount(ctx, userID)
	if err != nil {
		return domain.Project{}, err
	}
	internshipID, err = s.resolveInternship(ctx, acct, internshipID)
	if err != nil {
		return domain.Project{}, err
	}
	return s.store.FindUserProject(ctx, userID, internshipID)
}

func (s *Service) List(ctx context.Context, internshipID string) ([]domain.Project, error) {
	return s.store.ListProjects(ctx, internshipID)
}

func (s *Service) activeStudent(ctx context.Context, userID string) (domain.Account, error) {
	acct, err := s.store.FindAccount(ctx, userID)
	if err != nil {
		return domain.Account{}, err
	}
	if acct.Status != domain.StatusActive {
		return domain.Account{}, domain.Conflictf("Projects can only be assigned to active students")
	}
	return acct, nil
}

func (s *Service) resolveInternship(ctx context.Context, acct domain.Account, internshipID string) (string, error) {
	if id := strings.TrimSpace(internshipID); id != "" {
		return id, nil
	}
	in, err := s.store.FindInternshipByTrack(ctx, acct.Track)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return "", domain.NotFoundf("No internship found for track %s", acct.Track)
		}
		return "", err
	}
	return in.ID, nil
}

func (s *Service) notify(ctx context.Context, userID, title, content string) {
	if s.notes == nil {
		return
	}
	if _, err := s.notes.Notify(ctx, userID, title, content, "high"); err != nil {
		obs.Warn("notification_failed", map[string]any{"user_id": userID, "error": err})
	}
}
