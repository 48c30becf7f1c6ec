package submission

import (
	"context"
	"fmt"
	"strings"
	"time"

	"vedarc.org/internal/audit"
	"vedarc.org/internal/domain"
	"vedarc.org/internal/ids"
	"vedarc.org/internal/obs"
)

// Store persists weekly submissions.
type Store interface {
	FindAccount(ctx context.Context, userID string) (domain.Account, error)
	CountWeeks(ctx context.Context, track string) (int, error)
	CreateSubmission(ctx context.Context, sub domain.Submission) error
	FindSubmission(ctx context.Context, id string) (domain.Submission, error)
	ReviewSubmission(ctx context.Context, r domain.Review) (domain.Submission, error)
	ListUserSubmissions(ctx context.Context, userID string) ([]domain.Submission, error)
	ListSubmissions(ctx context.Context, f domain.SubmissionFilter) ([]domain.Submission, error)
}

// Recalculator refreshes the owner's completion after a review.
type Recalculator interface {
	RecalculateCompletion(ctx context.Context, userID string) (domain.Account, error)
}

// Notifier tells the student about the review.
type Notifier interface {
	Notify(ctx context.Context, userID, title, content, priority string) (domain.Notification, error)
}

// Input is the student's weekly assignment.
type Input struct {
	Week         int    `json:"week" validate:"required,min=1"`
	GithubLink   string `json:"githubLink" validate:"required,url"`
	DeployedLink string `json:"deployedLink" validate:"omitempty,url"`
	Description  string `json:"description" validate:"max=4000"`
}

// Decision is a reviewer verdict.
type Decision struct {
	Status   domain.SubmissionStatus `json:"status" validate:"required,oneof=approved rejected needs_revision"`
	Feedback string                  `json:"feedback" validate:"max=4000"`
	Score    *int                    `json:"score" validate:"omitempty,min=0,max=100"`
}

// Service runs the submit and review workflow.
type Service struct {
	store Store
	gates Recalculator
	notes Notifier
	now   func() time.Time
}

func NewService(store Store, gates Recalculator, notes Notifier) *Service {
	return &Service{store: store, gates: gates, notes: notes, now: time.Now}
}

// Submit records the week's assignment. Each week accepts one submission.
func (s *Service) Submit(ctx context.Context, userID string, in Input) (domain.Submission, error) {
	in.GithubLink = strings.TrimSpace(in.GithubLink)
	in.DeployedLink = strings.TrimSpace(in.DeployedLink)
	in.Description = strings.TrimSpace(in.Description)
	if err := domain.Validate(in); err != nil {
		return domain.Submission{}, err
	}
	acct, err := s.store.FindAccount(ctx, userID)
	if err != nil {
		return domain.Submission{}, err
	}
	if acct.Status != domain.StatusActive {
		return domain.Submission{}, fmt.Errorf("%w: Only active students can submit assignments", domain.ErrUnauthorized)
	}
	weeks, err := s.store.CountWeeks(ctx, acct.Track)
	if err != nil {
		return domain.Submission{}, err
	}
	if weeks > 0 && in.Week > weeks {
		return domain.Submission{}, domain.Validationf("week must be between 1 and %d", weeks)
	}
	sub := domain.Submission{
		ID:           ids.New(),
		UserID:       acct.UserID,
		FullName:     acct.FullName,
		Track:        acct.Track,
		Week:         in.Week,
		GithubLink:   in.GithubLink,
		DeployedLink: in.DeployedLink,
		Description:  in.Description,
		Status:       domain.SubmissionPending,
		SubmittedAt:  s.now().UTC(),
	}
	if err := s.store.CreateSubmission(ctx, sub); err != nil {
		return domain.Submission{}, err
	}
	_ = audit.LogEvent(ctx, "submission.created", map[string]any{"submission_id": sub.ID, "week": sub.Week})
	return sub, nil
}

// Review records the verdict and recomputes the owner's completion.
func (s *Service) Review(ctx context.Context, submissionID string, d Decision) (domain.Submission, error) {
	d.Status = domain.SubmissionStatus(strings.ToLower(strings.TrimSpace(string(d.Status))))
	d.Feedback = strings.TrimSpace(d.Feedback)
	if err := domain.Validate(d); err != nil {
		return domain.Submission{}, err
	}
	if strings.TrimSpace(submissionID) == "" {
		return domain.Submission{}, domain.Validationf("Missing required field: submission_id")
	}
	reviewed, err := s.store.ReviewSubmission(ctx, domain.Review{
		SubmissionID: submissionID,
		Status:       d.Status,
		Feedback:     d.Feedback,
		Score:        d.Score,
		Reviewer:     audit.Actor(ctx),
		At:           s.now().UTC(),
	})
	if err != nil {
		return domain.Submission{}, err
	}
	fields := map[string]any{
		"submission_id": reviewed.ID,
		"target":        reviewed.UserID,
		"week":          reviewed.Week,
		"status":        string(reviewed.Status),
	}
	if reviewed.Score != nil {
		fields["score"] = *reviewed.Score
	}
	_ = audit.LogEvent(ctx, "submission.reviewed", fields)

	// ревью уже сохранено: процент догонит следующий пересчёт
	if _, err := s.gates.RecalculateCompletion(ctx, reviewed.UserID); err != nil {
		obs.Warn("completion_recalc_failed", map[string]any{"user_id": reviewed.UserID, "submission_id": reviewed.ID, "error": err})
	}
	if s.notes != nil {
		title := fmt.Sprintf("Week %d submission %s", reviewed.Week, reviewLabel(reviewed.Status))
		if _, err := s.notes.Notify(ctx, reviewed.UserID, title, reviewed.Feedback, "normal"); err != nil {
			obs.Warn("notification_failed", map[string]any{"user_id": reviewed.UserID, "error": err})
		}
	}
	return reviewed, nil
}

func reviewLabel(st domain.SubmissionStatus) string {
	switch st {
	case domain.SubmissionApproved:
		return "approved"
	case domain.SubmissionRejected:
		return "rejected"
	default:
		return "needs revision"
	}
}

// ListOwn returns the student's submissions ordered by week.
func (s *Service) ListOwn(ctx context.Context, userID string) ([]domain.Submission, error) {
	return s.store.ListUserSubmissions(ctx, userID)
}

// ListForTrack returns submissions for reviewers, newest first.
func (s *Service) ListForTrack(ctx context.Context, f domain.SubmissionFilter) ([]domain.Submission, error) {
	if f.Status != "" {
		switch f.Status {
		case domain.SubmissionPending, domain.SubmissionApproved, domain.SubmissionRejected, domain.SubmissionNeedsRevision:
		default:
			return nil, domain.Validationf("Invalid status filter %q", f.Status)
		}
	}
	if f.Week < 0 {
		return nil, domain.Validationf("week must be positive")
	}
	return s.store.ListSubmissions(ctx, f)
}

// Get returns a single submission.
func (s *Service) Get(ctx context.Context, id string) (domain.Submission, error) {
	return s.store.FindSubmission(ctx, id)
}
