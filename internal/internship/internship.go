package internship

import (
	"context"
	"sort"
	"strings"
	"time"

	"vedarc.org/internal/audit"
	"vedarc.org/internal/domain"
	"vedarc.org/internal/ids"
)

// Store persists tracks, course weeks and daily progress.
type Store interface {
	FindAccount(ctx context.Context, userID string) (domain.Account, error)
	ListAccounts(ctx context.Context, f domain.AccountFilter) ([]domain.Account, error)

	CreateInternship(ctx context.Context, in domain.Internship) error
	UpdateInternship(ctx context.Context, in domain.Internship) (domain.Internship, error)
	FindInternship(ctx context.Context, id string) (domain.Internship, error)
	FindInternshipByTrack(ctx context.Context, track string) (domain.Internship, error)
	ListInternships(ctx context.Context, activeOnly bool) ([]domain.Internship, error)
	DeleteInternship(ctx context.Context, id string) error

	CreateWeek(ctx context.Context, w domain.Week) error
	UpdateWeek(ctx context.Context, w domain.Week) (domain.Week, error)
	DeleteWeek(ctx context.Context, track string, number int) error
	ListWeeks(ctx context.Context, track string) ([]domain.Week, error)

	SetDailyCompletion(ctx context.Context, c domain.DailyCompletion, completed bool) error
	ListDailyCompletions(ctx context.Context, userID string, week int) ([]domain.DailyCompletion, error)
}

// Input creates or replaces an internship track.
type Input struct {
	TrackName   string `json:"track_name" validate:"required,max=120"`
	Description string `json:"description"`
	Duration    string `json:"duration"`
	IsActive    *bool  `json:"is_active"`
}

// WeekInput adds a week of content to a track.
type WeekInput struct {
	WeekNumber  int                 `json:"week_number" validate:"required,min=1"`
	Title       string              `json:"title" validate:"required"`
	Description string              `json:"description"`
	Days        []domain.DayContent `json:"daily_content" validate:"dive"`
}

// Progress summarises the completed days of one week.
type Progress struct {
	Week      int   `json:"week_number"`
	Completed []int `json:"completed_days"`
	TotalDays int   `json:"total_days"`
}

type Service struct {
	store Store
	now   func() time.Time
}

func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

func (s *Service) Create(ctx context.Context, in Input) (domain.Internship, error) {
	in.TrackName = strings.TrimSpace(in.TrackName)
	if err := domain.Validate(in); err != nil {
		return domain.Internship{}, err
	}
	active := true
	if in.IsActive != nil {
		active = *in.IsActive
	}
	rec := domain.Internship{
		ID:          ids.New(),
		TrackName:   in.TrackName,
		Description: strings.TrimSpace(in.Description),
		Duration:    strings.TrimSpace(in.Duration),
		IsActive:    active,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.store.CreateInternship(ctx, rec); err != nil {
		return domain.Internship{}, err
	}
	_ = audit.LogEvent(ctx, "internship.created", map[string]any{"internship_id": rec.ID, "track": rec.TrackName})
	return rec, nil
}

func (s *Service) Update(ctx context.Context, id string, in Input) (domain.Internship, error) {
	cur, err := s.store.FindInternship(ctx, id)
	if err != nil {
		return domain.Internship{}, err
	}
	in.TrackName = strings.TrimSpace(in.TrackName)
	if err := domain.Validate(in); err != nil {
		return domain.Internship{}, err
	}
	cur.TrackName = in.TrackName
	cur.Description = strings.TrimSpace(in.Description)
	cur.Duration = strings.TrimSpace(in.Duration)
	if in.IsActive != nil {
		cur.IsActive = *in.IsActive
	}
	updated, err := s.store.UpdateInternship(ctx, cur)
	if err != nil {
		return domain.Internship{}, err
	}
	_ = audit.LogEvent(ctx, "internship.updated", map[string]any{"internship_id": id, "is_active": updated.IsActive})
	return updated, nil
}

func (s *Service) List(ctx context.Context, activeOnly bool) ([]domain.Internship, error) {
	return s.store.ListInternships(ctx, activeOnly)
}

func (s *Service) Get(ctx context.Context, id string) (domain.Internship, error) {
	return s.store.FindInternship(ctx, id)
}

// ForStudent returns the internship of the student's track.
func (s *Service) ForStudent(ctx context.Context, userID string) (domain.Internship, error) {
	acct, err := s.store.FindAccount(ctx, userID)
	if err != nil {
		return domain.Internship{}, err
	}
	return s.store.FindInternshipByTrack(ctx, acct.Track)
}

// Delete removes an internship that no student is enrolled on.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.DeleteInternship(ctx, id); err != nil {
		return err
	}
	_ = audit.LogEvent(ctx, "internship.deleted", map[string]any{"internship_id": id})
	return nil
}

// AddWeek appends course content to the internship's track.
func (s *Service) AddWeek(ctx context.Context, internshipID string, in WeekInput) (domain.Week, error) {
	w, err := s.buildWeek(ctx, internshipID, in)
	if err != nil {
		return domain.Week{}, err
	}
	if err := s.store.CreateWeek(ctx, w); err != nil {
		return domain.Week{}, err
	}
	_ = audit.LogEvent(ctx, "internship.week_created", map[string]any{"track": w.Track, "week": w.WeekNumber})
	return w, nil
}

// UpdateWeek replaces the content of an existing week. The week number in
// the path wins over the one in the body.
func (s *Service) UpdateWeek(ctx context.Context, internshipID string, number int, in WeekInput) (domain.Week, error) {
	in.WeekNumber = number
	w, err := s.buildWeek(ctx, internshipID, in)
	if err != nil {
		return domain.Week{}, err
	}
	updated, err := s.store.UpdateWeek(ctx, w)
	if err != nil {
		return domain.Week{}, err
	}
	_ = audit.LogEvent(ctx, "internship.week_updated", map[string]any{"track": w.Track, "week": w.WeekNumber})
	return updated, nil
}

// DeleteWeek drops a week. Completion percentages pick up the new week
// count on the next recalculation.
func (s *Service) DeleteWeek(ctx context.Context, internshipID string, number int) error {
	rec, err := s.store.FindInternship(ctx, internshipID)
	if err != nil {
		return err
	}
	if number < 1 {
		return domain.Validationf("week must be positive")
	}
	if err := s.store.DeleteWeek(ctx, rec.TrackName, number); err != nil {
		return err
	}
	_ = audit.LogEvent(ctx, "internship.week_deleted", map[string]any{"track": rec.TrackName, "week": number})
	return nil
}

func (s *Service) buildWeek(ctx context.Context, internshipID string, in WeekInput) (domain.Week, error) {
	rec, err := s.store.FindInternship(ctx, internshipID)
	if err != nil {
		return domain.Week{}, err
	}
	in.Title = strings.TrimSpace(in.Title)
	if err := domain.Validate(in); err != nil {
		return domain.Week{}, err
	}
	seen := make(map[int]bool, len(in.Days))
	for _, d := range in.Days {
		if d.Day < 1 || d.Day > 7 {
			return domain.Week{}, domain.Validationf("day must be between 1 and 7")
		}
		if seen[d.Day] {
			return domain.Week{}, domain.Validationf("day %d is listed twice", d.Day)
		}
		seen[d.Day] = true
	}
	days := append([]domain.DayContent(nil), in.Days...)
	sort.Slice(days, func(i, j int) bool { return days[i].Day < days[j].Day })
	return domain.Week{
		Track:       rec.TrackName,
		WeekNumber:  in.WeekNumber,
		Title:       in.Title,
		Description: strings.TrimSpace(in.Description),
		Days:        days,
	}, nil
}

func (s *Service) Weeks(ctx context.Context, track string) ([]domain.Week, error) {
	return s.store.ListWeeks(ctx, track)
}

// WeeksForStudent lists the weeks of the student's own track.
func (s *Service) WeeksForStudent(ctx context.Context, userID string) ([]domain.Week, error) {
	acct, err := s.store.FindAccount(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.store.ListWeeks(ctx, acct.Track)
}

// MarkDay sets or clears completion of one day of the student's track.
func (s *Service) MarkDay(ctx context.Context, userID string, week, day int, completed bool) (Progress, error) {
	acct, err := s.store.FindAccount(ctx, userID)
	if err != nil {
		return Progress{}, err
	}
	w, err := s.week(ctx, acct.Track, week)
	if err != nil {
		return Progress{}, err
	}
	if len(w.Days) > 0 && !w.HasDay(day) {
		return Progress{}, domain.Validationf("Day %d is not part of week %d", day, week)
	}
	if day < 1 {
		return Progress{}, domain.Validationf("day must be positive")
	}
	err = s.store.SetDailyCompletion(ctx, domain.DailyCompletion{
		UserID:      acct.UserID,
		WeekNumber:  week,
		Day:         day,
		CompletedAt: s.now().UTC(),
	}, completed)
	if err != nil {
		return Progress{}, err
	}
	return s.progress(ctx, acct.UserID, w)
}

// DailyProgress returns the completed days of one week.
func (s *Service) DailyProgress(ctx context.Context, userID string, week int) (Progress, error) {
	acct, err := s.store.FindAccount(ctx, userID)
	if err != nil {
		return Progress{}, err
	}
	w, err := s.week(ctx, acct.Track, week)
	if err != nil {
		return Progress{}, err
	}
	return s.progress(ctx, acct.UserID, w)
}

func (s *Service) progress(ctx context.Context, userID string, w domain.Week) (Progress, error) {
	done, err := s.store.ListDailyCompletions(ctx, userID, w.WeekNumber)
	if err != nil {
		return Progress{}, err
	}
	p := Progress{Week: w.WeekNumber, Completed: make([]int, 0, len(done)), TotalDays: len(w.Days)}
	for _, c := range done {
		p.Completed = append(p.Completed, c.Day)
	}
	return p, nil
}

func (s *Service) week(ctx context.Context, track string, number int) (domain.Week, error) {
	if number < 1 {
		return domain.Week{}, domain.Validationf("week must be positive")
	}
	weeks, err := s.store.ListWeeks(ctx, track)
	if err != nil {
		return domain.Week{}, err
	}
	for _, w := range weeks {
		if w.WeekNumber == number {
			return w, nil
		}
	}
	return domain.Week{}, domain.NotFoundf("Week %d not found for %s", number, track)
}

// Students lists the accounts enrolled in the internship's track.
func (s *Service) Students(ctx context.Context, internshipID string) ([]domain.Account, error) {
	rec, err := s.store.FindInternship(ctx, internshipID)
	if err != nil {
		return nil, err
	}
	return s.store.ListAccounts(ctx, domain.AccountFilter{Track: rec.TrackName})
}
