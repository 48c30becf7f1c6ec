package memory

import (
	"context"
	"sort"
	"strings"

	"vedarc.org/internal/domain"
)

func (s *Store) CreateInternship(ctx context.Context, in domain.Internship) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.trackTakenLocked(in.TrackName, "") {
		return domain.Conflictf("Internship track %q already exists", in.TrackName)
	}
	cp := in
	s.internships[in.ID] = &cp
	return nil
}

func (s *Store) UpdateInternship(ctx context.Context, in domain.Internship) (domain.Internship, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.internships[in.ID]
	if !ok {
		return domain.Internship{}, domain.NotFoundf("Internship not found")
	}
	if s.trackTakenLocked(in.TrackName, in.ID) {
		return domain.Internship{}, domain.Conflictf("Internship track %q already exists", in.TrackName)
	}
	cur.TrackName = in.TrackName
	cur.Description = in.Description
	cur.Duration = in.Duration
	cur.IsActive = in.IsActive
	return *cur, nil
}

// DeleteInternship removes a track with its weeks and templates. A track that
// still has enrolled students cannot be deleted.
func (s *Store) DeleteInternship(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	in, ok := s.internships[id]
	if !ok {
		return domain.NotFoundf("Internship not found")
	}
	for _, a := range s.accounts {
		if strings.EqualFold(a.Track, in.TrackName) {
			return domain.Conflictf("Internship %q still has enrolled students", in.TrackName)
		}
	}
	for tid, t := range s.templates {
		if t.InternshipID == id {
			delete(s.templates, tid)
		}
	}
	delete(s.weeks, in.TrackName)
	delete(s.internships, id)
	return nil
}

func (s *Store) trackTakenLocked(track, exceptID string) bool {
	for id, in := range s.internships {
		if id != exceptID && strings.EqualFold(in.TrackName, track) {
			return true
		}
	}
	return false
}

func (s *Store) FindInternship(ctx context.Context, id string) (domain.Internship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	in, ok := s.internships[id]
	if !ok {
		return domain.Internship{}, domain.NotFoundf("Internship not found")
	}
	return *in, nil
}

func (s *Store) FindInternshipByTrack(ctx context.Context, track string) (domain.Internship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, in := range s.internships {
		if strings.EqualFold(in.TrackName, track) {
			return *in, nil
		}
	}
	return domain.Internship{}, domain.NotFoundf("Internship track %q not found", track)
}

func (s *Store) ListInternships(ctx context.Context, activeOnly bool) ([]domain.Internship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Internship, 0, len(s.internships))
	for _, in := range s.internships {
		if activeOnly && !in.IsActive {
			continue
		}
		out = append(out, *in)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TrackName < out[j].TrackName })
	return out, nil
}

func (s *Store) CreateWeek(ctx context.Context, w domain.Week) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.weeks[w.Track] {
		if existing.WeekNumber == w.WeekNumber {
			return domain.Conflictf("Week %d already exists for %s", w.WeekNumber, w.Track)
		}
	}
	s.weeks[w.Track] = append(s.weeks[w.Track], w)
	return nil
}

func (s *Store) UpdateWeek(ctx context.Context, w domain.Week) (domain.Week, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.weeks[w.Track] {
		if existing.WeekNumber == w.WeekNumber {
			s.weeks[w.Track][i] = w
			return w, nil
		}
	}
	return domain.Week{}, domain.NotFoundf("Week %d not found for %s", w.WeekNumber, w.Track)
}

func (s *Store) DeleteWeek(ctx context.Context, track string, number int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	weeks := s.weeks[track]
	for i, existing := range weeks {
		if existing.WeekNumber == number {
			s.weeks[track] = append(weeks[:i:i], weeks[i+1:]...)
			return nil
		}
	}
	return domain.NotFoundf("Week %d not found for %s", number, track)
}

func (s *Store) ListWeeks(ctx context.Context, track string) ([]domain.Week, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := append([]domain.Week(nil), s.weeks[track]...)
	sort.Slice(out, func(i, j int) bool { return out[i].WeekNumber < out[j].WeekNumber })
	return out, nil
}

func (s *Store) CountWeeks(ctx context.Context, track string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.weeks[track]), nil
}

func (s *Store) SetDailyCompletion(ctx context.Context, c domain.DailyCompletion, completed bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := dailyKey{userID: c.UserID, week: c.WeekNumber, day: c.Day}
	if completed {
		if _, ok := s.daily[k]; !ok {
			s.daily[k] = c
		}
		return nil
	}
	delete(s.daily, k)
	return nil
}

func (s *Store) ListDailyCompletions(ctx context.Context, userID string, week int) ([]domain.DailyCompletion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.DailyCompletion
	for k, c := range s.daily {
		if k.userID == userID && (week == 0 || k.week == week) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].WeekNumber != out[j].WeekNumber {
			return out[i].WeekNumber < out[j].WeekNumber
		}
		return out[i].Day < out[j].Day
	})
	return out, nil
}

func (s *Store) CreateSubmission(ctx context.Context, sub domain.Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.submissions {
		if existing.UserID == sub.UserID && existing.Week == sub.Week {
			return domain.Conflictf("Submission for week %d already exists", sub.Week)
		}
	}
	cp := sub
	s.submissions[sub.ID] = &cp
	return nil
}

func (s *Store) FindSubmission(ctx context.Context, id string) (domain.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.submissions[id]
	if !ok {
		return domain.Submission{}, domain.NotFoundf("Submission not found")
	}
	return *sub, nil
}

func (s *Store) ReviewSubmission(ctx context.Context, r domain.Review) (domain.Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.submissions[r.SubmissionID]
	if !ok {
		return domain.Submission{}, domain.NotFoundf("Submission not found")
	}
	sub.Status = r.Status
	sub.Feedback = r.Feedback
	sub.Score = r.Score
	sub.ReviewedBy = r.Reviewer
	sub.ReviewedAt = timePtr(r.At)
	return *sub, nil
}

func (s *Store) ListUserSubmissions(ctx context.Context, userID string) ([]domain.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Submission
	for _, sub := range s.submissions {
		if sub.UserID == userID {
			out = append(out, *sub)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Week < out[j].Week })
	return out, nil
}

func (s *Store) ListSubmissions(ctx context.Context, f domain.SubmissionFilter) ([]domain.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Submission
	for _, sub := range s.submissions {
		if f.Track != "" && sub.Track != f.Track {
			continue
		}
		if f.Week != 0 && sub.Week != f.Week {
			continue
		}
		if f.Status != "" && sub.Status != f.Status {
			continue
		}
		out = append(out, *sub)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.After(out[j].SubmittedAt) })
	return out, nil
}
