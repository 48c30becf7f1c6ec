package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"vedarc.org/internal/domain"
)

const internshipColumns = `id, track_name, description, duration, is_active, created_at`

func scanInternship(row scanner) (domain.Internship, error) {
	var in domain.Internship
	err := row.Scan(&in.ID, &in.TrackName, &in.Description, &in.Duration, &in.IsActive, &in.CreatedAt)
	return in, wrapErr(err)
}

func (s *Store) CreateInternship(ctx context.Context, in domain.Internship) error {
	_, err := s.db.ExecContext(ctx, `
		insert into internships (id, track_name, description, duration, is_active, created_at)
		values ($1, $2, $3, $4, $5, $6)
	`, in.ID, in.TrackName, in.Description, in.Duration, in.IsActive, in.CreatedAt)
	if isUniqueViolation(err, "internships_track_uq") {
		return domain.Conflictf("Internship track %q already exists", in.TrackName)
	}
	return wrapErr(err)
}

func (s *Store) UpdateInternship(ctx context.Context, in domain.Internship) (domain.Internship, error) {
	out, err := scanInternship(s.db.QueryRowContext(ctx, `
		update internships set track_name = $2, description = $3, duration = $4, is_active = $5
		where id = $1
		returning `+internshipColumns, in.ID, in.TrackName, in.Description, in.Duration, in.IsActive))
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return domain.Internship{}, domain.NotFoundf("Internship not found")
	case isUniqueViolation(err, "internships_track_uq"):
		return domain.Internship{}, domain.Conflictf("Internship track %q already exists", in.TrackName)
	}
	return out, wrapErr(err)
}

// DeleteInternship removes the track and its weeks; templates cascade. It
// refuses while any account is still enrolled on the track.
func (s *Store) DeleteInternship(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapErr(err)
	}
	defer func() { _ = tx.Rollback() }()

	var track string
	err = tx.QueryRowContext(ctx, `select track_name from internships where id = $1 for update`, id).Scan(&track)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.NotFoundf("Internship not found")
	}
	if err != nil {
		return wrapErr(err)
	}
	var enrolled bool
	if err := tx.QueryRowContext(ctx, `select exists(select 1 from accounts where lower(track) = lower($1))`, track).Scan(&enrolled); err != nil {
		return wrapErr(err)
	}
	if enrolled {
		return domain.Conflictf("Internship %q still has enrolled students", track)
	}
	if _, err := tx.ExecContext(ctx, `delete from weeks where track = $1`, track); err != nil {
		return wrapErr(err)
	}
	if _, err := tx.ExecContext(ctx, `delete from internships where id = $1`, id); err != nil {
		return wrapErr(err)
	}
	return wrapErr(tx.Commit())
}

func (s *Store) FindInternship(ctx context.Context, id string) (domain.Internship, error) {
	in, err := scanInternship(s.db.QueryRowContext(ctx, `select `+internshipColumns+` from internships where id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Internship{}, domain.NotFoundf("Internship not found")
	}
	return in, wrapErr(err)
}

func (s *Store) FindInternshipByTrack(ctx context.Context, track string) (domain.Internship, error) {
	in, err := scanInternship(s.db.QueryRowContext(ctx, `select `+internshipColumns+` from internships where lower(track_name) = lower($1)`, track))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Internship{}, domain.NotFoundf("Internship track %q not found", track)
	}
	return in, wrapErr(err)
}

func (s *Store) ListInternships(ctx context.Context, activeOnly bool) ([]domain.Internship, error) {
	q := `select ` + internshipColumns + ` from internships`
	if activeOnly {
		q += ` where is_active`
	}
	rows, err := s.db.QueryContext(ctx, q+` order by track_name`)
	if err != nil {
		return nil, wrapErr(err)
	}
	defer rows.Close()
	var out []domain.Internship
	for rows.Next() {
		in, err := scanInternship(rows)
		if err != nil {
			return nil, wrapErr(err)
		}
		out = append(out, in)
	}
	return out, wrapErr(rows.Err())
}

func (s *Store) CreateWeek(ctx context.Context, w domain.Week) error {
	days, err := json.Marshal(w.Days)
	if err != nil {
		return fmt.Errorf("encode days: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		insert into weeks (track, week_number, title, description, days) values ($1, $2, $3, $4, $5)
	`, w.Track, w.WeekNumber, w.Title, w.Description, days)
	if isUniqueViolation(err, "") {
		return domain.Conflictf("Week %d already exists for %s", w.WeekNumber, w.Track)
	}
	return wrapErr(err)
}

func (s *Store) UpdateWeek(ctx context.Context, w domain.Week) (domain.Week, error) {
	days, err := json.Marshal(w.Days)
	if err != nil {
		return domain.Week{}, fmt.Errorf("encode days: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		update weeks set title = $3, description = $4, days = $5 where track = $1 and week_number = $2
	`, w.Track, w.WeekNumber, w.Title, w.Description, days)
	if err != nil {
		return domain.Week{}, wrapErr(err)
	}
	n, err := affected(res)
	if err != nil {
		return domain.Week{}, wrapErr(err)
	}
	if n == 0 {
		return domain.Week{}, domain.NotFoundf("Week %d not found for %s", w.WeekNumber, w.Track)
	}
	return w, nil
}

func (s *Store) DeleteWeek(ctx context.Context, track string, number int) error {
	res, err := s.db.ExecContext(ctx, `delete from weeks where track = $1 and week_number = $2`, track, number)
	if err != nil {
		return wrapErr(err)
	}
	n, err := affected(res)
	if err != nil {
		return wrapErr(err)
	}
	if n == 0 {
		return domain.NotFoundf("Week %d not found for %s", number, track)
	}
	return nil
}

func (s *Store) ListWeeks(ctx context.Context, track string) ([]domain.Week, error) {
	rows, err := s.db.QueryContext(ctx, `
		select track, week_number, title, description, days from weeks where track = $1 order by week_number
	`, track)
	if err != nil {
		return nil, wrapErr(err)
	}
	defer rows.Close()
	var out []domain.Week
	for rows.Next() {
		var (
			w    domain.Week
			days []byte
		)
		if err := rows.Scan(&w.Track, &w.WeekNumber, &w.Title, &w.Description, &days); err != nil {
			return nil, wrapErr(err)
		}
		if len(days) > 0 {
			if err := json.Unmarshal(days, &w.Days); err != nil {
				return nil, fmt.Errorf("decode days of week %d: %w", w.WeekNumber, err)
			}
		}
		out = append(out, w)
	}
	return out, wrapErr(rows.Err())
}

func (s *Store) CountWeeks(ctx context.Context, track string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `select count(*) from weeks where track = $1`, track).Scan(&n)
	return n, wrapErr(err)
}

func (s *Store) SetDailyCompletion(ctx context.Context, c domain.DailyCompletion, completed bool) error {
	if !completed {
		_, err := s.db.ExecContext(ctx, `
			delete from daily_completions where user_id = $1 and week_number = $2 and day = $3
		`, c.UserID, c.WeekNumber, c.Day)
		return wrapErr(err)
	}
	_, err := s.db.ExecContext(ctx, `
		insert into daily_completions (user_id, week_number, day, completed_at) values ($1, $2, $3, $4)
		on conflict (user_id, week_number, day) do nothing
	`, c.UserID, c.WeekNumber, c.Day, c.CompletedAt)
	if isForeignKeyViolation(err) {
		return domain.NotFoundf("User not found")
	}
	return wrapErr(err)
}

// ListDailyCompletions returns every completed day, or one week's when week > 0.
func (s *Store) ListDailyCompletions(ctx context.Context, userID string, week int) ([]domain.DailyCompletion, error) {
	rows, err := s.db.QueryContext(ctx, `
		select user_id, week_number, day, completed_at from daily_completions
		where user_id = $1 and ($2 = 0 or week_number = $2)
		order by week_number, day
	`, userID, week)
	if err != nil {
		return nil, wrapErr(err)
	}
	defer rows.Close()
	var out []domain.DailyCompletion
	for rows.Next() {
		var c domain.DailyCompletion
		if err := rows.Scan(&c.UserID, &c.WeekNumber, &c.Day, &c.CompletedAt); err != nil {
			return nil, wrapErr(err)
		}
		out = append(out, c)
	}
	return out, wrapErr(rows.Err())
}

const submissionColumns = `id, user_id, full_name, track, week, github_link, deployed_link, description,
	status, feedback, score, submitted_at, reviewed_at, reviewed_by`

func scanSubmission(row scanner) (domain.Submission, error) {
	var (
		sub        domain.Submission
		status     string
		score      sql.NullInt32
		reviewedAt sql.NullTime
		reviewedBy sql.NullString
	)
	err := row.Scan(&sub.ID, &sub.UserID, &sub.FullName, &sub.Track, &sub.Week, &sub.GithubLink, &sub.DeployedLink, &sub.Description,
		&status, &sub.Feedback, &score, &sub.SubmittedAt, &reviewedAt, &reviewedBy)
	if err != nil {
		return domain.Submission{}, wrapErr(err)
	}
	sub.Status = domain.SubmissionStatus(status)
	if score.Valid {
		v := int(score.Int32)
		sub.Score = &v
	}
	sub.ReviewedAt, sub.ReviewedBy = timePtr(reviewedAt), reviewedBy.String
	return sub, nil
}

func nullScore(score *int) sql.NullInt32 {
	if score == nil {
		return sql.NullInt32{}
	}
	return sql.NullInt32{Int32: int32(*score), Valid: true}
}

func (s *Store) CreateSubmission(ctx context.Context, sub domain.Submission) error {
	_, err := s.db.ExecContext(ctx, `
		insert into submissions (id, user_id, full_name, track, week, github_link, deployed_link, description, status, submitted_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, sub.ID, sub.UserID, sub.FullName, sub.Track, sub.Week, sub.GithubLink, sub.DeployedLink, sub.Description,
		string(sub.Status), sub.SubmittedAt)
	if isUniqueViolation(err, "") {
		return domain.Conflictf("Submission for week %d already exists", sub.Week)
	}
	if isForeignKeyViolation(err) {
		return domain.NotFoundf("User not found")
	}
	return wrapErr(err)
}

func (s *Store) FindSubmission(ctx context.Context, id string) (domain.Submission, error) {
	sub, err := scanSubmission(s.db.QueryRowContext(ctx, `select `+submissionColumns+` from submissions where id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Submission{}, domain.NotFoundf("Submission not found")
	}
	return sub, wrapErr(err)
}

func (s *Store) ReviewSubmission(ctx context.Context, r domain.Review) (domain.Submission, error) {
	sub, err := scanSubmission(s.db.QueryRowContext(ctx, `
		update submissions set status = $2, feedback = $3, score = $4, reviewed_by = $5, reviewed_at = $6
		where id = $1
		returning `+submissionColumns,
		r.SubmissionID, string(r.Status), r.Feedback, nullScore(r.Score), r.Reviewer, r.At))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Submission{}, domain.NotFoundf("Submission not found")
	}
	return sub, wrapErr(err)
}

func (s *Store) ListUserSubmissions(ctx context.Context, userID string) ([]domain.Submission, error) {
	return s.querySubmissions(ctx, `select `+submissionColumns+` from submissions where user_id = $1 order by week`, userID)
}

func (s *Store) ListSubmissions(ctx context.Context, f domain.SubmissionFilter) ([]domain.Submission, error) {
	var (
		where []string
		args  []any
	)
	if f.Track != "" {
		args = append(args, f.Track)
		where = append(where, fmt.Sprintf("track = $%d", len(args)))
	}
	if f.Week != 0 {
		args = append(args, f.Week)
		where = append(where, fmt.Sprintf("week = $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	q := `select ` + submissionColumns + ` from submissions`
	if len(where) > 0 {
		q += ` where ` + strings.Join(where, " and ")
	}
	return s.querySubmissions(ctx, q+` order by submitted_at desc`, args...)
}

func (s *Store) querySubmissions(ctx context.Context, q string, args ...any) ([]domain.Submission, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, wrapErr(err)
	}
	defer rows.Close()
	var out []domain.Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, wrapErr(err)
		}
		out = append(out, sub)
	}
	return out, wrapErr(rows.Err())
}
