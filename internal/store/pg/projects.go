package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"vedarc.org/internal/domain"
)

const templateColumns = `id, internship_id, title, description, upload_link, created_by, created_at, updated_at`

func scanTemplate(row scanner) (domain.ProjectTemplate, error) {
	var (
		t       domain.ProjectTemplate
		updated sql.NullTime
	)
	if err := row.Scan(&t.ID, &t.InternshipID, &t.Title, &t.Description, &t.UploadLink, &t.CreatedBy, &t.CreatedAt, &updated); err != nil {
		return domain.ProjectTemplate{}, wrapErr(err)
	}
	t.UpdatedAt = timePtr(updated)
	return t, nil
}

func (s *Store) CreateTemplate(ctx context.Context, t domain.ProjectTemplate) error {
	_, err := s.db.ExecContext(ctx, `
		insert into project_templates (id, internship_id, title, description, upload_link, created_by, created_at)
		values ($1, $2, $3, $4, $5, $6, $7)
	`, t.ID, t.InternshipID, t.Title, t.Description, t.UploadLink, t.CreatedBy, t.CreatedAt)
	if isForeignKeyViolation(err) {
		return domain.NotFoundf("Internship not found")
	}
	return wrapErr(err)
}

func (s *Store) UpdateTemplate(ctx context.Context, t domain.ProjectTemplate) (domain.ProjectTemplate, error) {
	out, err := scanTemplate(s.db.QueryRowContext(ctx, `
		update project_templates set title = $2, description = $3, upload_link = $4, updated_at = $5
		where id = $1
		returning `+templateColumns, t.ID, t.Title, t.Description, t.UploadLink, nullTime(t.UpdatedAt)))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ProjectTemplate{}, domain.NotFoundf("Project template not found")
	}
	return out, wrapErr(err)
}

func (s *Store) DeleteTemplate(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from project_templates where id = $1`, id)
	if err != nil {
		return wrapErr(err)
	}
	n, err := affected(res)
	if err != nil {
		return wrapErr(err)
	}
	if n == 0 {
		return domain.NotFoundf("Project template not found")
	}
	return nil
}

func (s *Store) FindTemplate(ctx context.Context, id string) (domain.ProjectTemplate, error) {
	t, err := scanTemplate(s.db.QueryRowContext(ctx, `select `+templateColumns+` from project_templates where id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ProjectTemplate{}, domain.NotFoundf("Project template not found")
	}
	return t, wrapErr(err)
}

// ListTemplates returns templates of an internship, oldest first. An empty
// internshipID lists all of them.
func (s *Store) ListTemplates(ctx context.Context, internshipID string) ([]domain.ProjectTemplate, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+templateColumns+` from project_templates
		where $1 = '' or internship_id = $1
		order by created_at, id
	`, internshipID)
	if err != nil {
		return nil, wrapErr(err)
	}
	defer rows.Close()
	var out []domain.ProjectTemplate
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, wrapErr(err)
		}
		out = append(out, t)
	}
	return out, wrapErr(rows.Err())
}

const projectColumns = `id, user_id, internship_id, template_id, title, description, upload_link, status, auto_assigned,
	assigned_at, submitted_at, reviewed_at, reviewed_by, review_status, review_feedback, created_at`

func scanProject(row scanner) (domain.Project, error) {
	var (
		p                              domain.Project
		status                         string
		templateID, reviewedBy, review sql.NullString
		assigned, submitted, reviewed  sql.NullTime
	)
	err := row.Scan(&p.ID, &p.UserID, &p.InternshipID, &templateID, &p.Title, &p.Description, &p.UploadLink, &status, &p.AutoAssigned,
		&assigned, &submitted, &reviewed, &reviewedBy, &review, &p.ReviewFeedback, &p.CreatedAt)
	if err != nil {
		return domain.Project{}, wrapErr(err)
	}
	p.Status = domain.ProjectStatus(status)
	p.TemplateID = templateID.String
	p.AssignedAt, p.SubmittedAt, p.ReviewedAt = timePtr(assigned), timePtr(submitted), timePtr(reviewed)
	p.ReviewedBy, p.ReviewStatus = reviewedBy.String, domain.ProjectStatus(review.String)
	return p, nil
}

// OptInProject records interest without a template. On conflict the
// existing record is returned alongside the error.
func (s *Store) OptInProject(ctx context.Context, p domain.Project) (domain.Project, error) {
	_, err := s.db.ExecContext(ctx, `
		insert into projects (id, user_id, internship_id, status, created_at)
		values ($1, $2, $3, $4, $5)
	`, p.ID, p.UserID, p.InternshipID, string(p.Status), p.CreatedAt)
	switch {
	case isUniqueViolation(err, ""):
		existing, ferr := s.FindUserProject(ctx, p.UserID, p.InternshipID)
		if ferr != nil {
			return domain.Project{}, wrapErr(ferr)
		}
		return existing, domain.Conflictf("Student already has a project for this internship")
	case isForeignKeyViolation(err):
		return domain.Project{}, domain.NotFoundf("User not found")
	case err != nil:
		return domain.Project{}, wrapErr(err)
	}
	return p, nil
}

// AssignProject inserts the assignment or upgrades an opted-in record, and
// moves the owner's project status to In Progress, in one transaction.
func (s *Store) AssignProject(ctx context.Context, p domain.Project) (domain.Project, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, wrapErr(err)
	}
	defer func() { _ = tx.Rollback() }()

	var found bool
	if err := tx.QueryRowContext(ctx, `select true from accounts where user_id = $1 for update`, p.UserID).Scan(&found); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Project{}, domain.NotFoundf("User not found")
		}
		return domain.Project{}, wrapErr(err)
	}

	existing, err := scanProject(tx.QueryRowContext(ctx, `
		select `+projectColumns+` from projects where user_id = $1 and internship_id = $2 for update
	`, p.UserID, p.InternshipID))
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = tx.ExecContext(ctx, `
			insert into projects (id, user_id, internship_id, template_id, title, description, upload_link, status, auto_assigned, assigned_at, created_at)
			values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		`, p.ID, p.UserID, p.InternshipID, nullIfEmpty(p.TemplateID), p.Title, p.Description, p.UploadLink,
			string(p.Status), p.AutoAssigned, nullTime(p.AssignedAt), p.CreatedAt)
		if isUniqueViolation(err, "") {
			return domain.Project{}, domain.Conflictf("Student already has a project assigned for this internship")
		}
	case err != nil:
		return domain.Project{}, wrapErr(err)
	case existing.Status != domain.ProjectOptedIn:
		return domain.Project{}, domain.Conflictf("Student already has a project assigned for this internship")
	default:
		p.ID, p.CreatedAt = existing.ID, existing.CreatedAt
		_, err = tx.ExecContext(ctx, `
			update projects set template_id = $2, title = $3, description = $4, upload_link = $5,
				status = $6, auto_assigned = $7, assigned_at = $8
			where id = $1
		`, p.ID, nullIfEmpty(p.TemplateID), p.Title, p.Description, p.UploadLink,
			string(p.Status), p.AutoAssigned, nullTime(p.AssignedAt))
	}
	if err != nil {
		return domain.Project{}, wrapErr(err)
	}

	at := time.Now().UTC()
	if p.AssignedAt != nil {
		at = *p.AssignedAt
	}
	if _, err := tx.ExecContext(ctx, `
		update accounts set project_completion_status = 'In Progress', updated_at = $2
		where user_id = $1 and project_completion_status = 'Not Started'
	`, p.UserID, at); err != nil {
		return domain.Project{}, wrapErr(err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, wrapErr(err)
	}
	return p, nil
}

func (s *Store) FindProject(ctx context.Context, id string) (domain.Project, error) {
	p, err := scanProject(s.db.QueryRowContext(ctx, `select `+projectColumns+` from projects where id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Project{}, domain.NotFoundf("Project not found")
	}
	return p, wrapErr(err)
}

func (s *Store) FindUserProject(ctx context.Context, userID, internshipID string) (domain.Project, error) {
	p, err := scanProject(s.db.QueryRowContext(ctx, `
		select `+projectColumns+` from projects where user_id = $1 and internship_id = $2
	`, userID, internshipID))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Project{}, domain.NotFoundf("No project found for this internship")
	}
	return p, wrapErr(err)
}

func (s *Store) ListProjects(ctx context.Context, internshipID string) ([]domain.Project, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+projectColumns+` from projects
		where $1 = '' or internship_id = $1
		order by created_at desc
	`, internshipID)
	if err != nil {
		return nil, wrapErr(err)
	}
	defer rows.Close()
	var out []domain.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, wrapErr(err)
		}
		out = append(out, p)
	}
	return out, wrapErr(rows.Err())
}

// SubmitProject accepts a link while the project is Assigned or Rejected.
func (s *Store) SubmitProject(ctx context.Context, id, userID, link string, at time.Time) (domain.Project, error) {
	p, err := scanProject(s.db.QueryRowContext(ctx, `
		update projects set status = 'Submitted', upload_link = $3, submitted_at = $4
		where id = $1 and user_id = $2 and status in ('Assigned', 'Rejected')
		returning `+projectColumns, id, userID, link, at))
	if !errors.Is(err, sql.ErrNoRows) {
		return p, wrapErr(err)
	}
	cur, err := s.FindProject(ctx, id)
	if err != nil {
		return domain.Project{}, wrapErr(err)
	}
	if cur.UserID != userID {
		return domain.Project{}, domain.NotFoundf("Project not found")
	}
	return domain.Project{}, &domain.StateError{Entity: "Project", ID: id, Action: "submitted", Current: string(cur.Status), Required: string(domain.ProjectAssigned)}
}

// ReviewProject records the decision on a submitted project. Approval unlocks
// the owner's LOR and completes the project status in the same transaction.
func (s *Store) ReviewProject(ctx context.Context, id string, decision domain.ProjectStatus, feedback, actor string, at time.Time) (domain.Project, domain.Account, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, domain.Account{}, wrapErr(err)
	}
	defer func() { _ = tx.Rollback() }()

	p, err := scanProject(tx.QueryRowContext(ctx, `select `+projectColumns+` from projects where id = $1 for update`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Project{}, domain.Account{}, domain.NotFoundf("Project not found")
	}
	if err != nil {
		return domain.Project{}, domain.Account{}, wrapErr(err)
	}
	if p.Status != domain.ProjectSubmitted {
		return domain.Project{}, domain.Account{}, &domain.StateError{Entity: "Project", ID: id, Action: "reviewed", Current: string(p.Status), Required: string(domain.ProjectSubmitted)}
	}
	if _, err := tx.ExecContext(ctx, `
		update projects set status = $2, review_status = $2, review_feedback = $3, reviewed_by = $4, reviewed_at = $5
		where id = $1
	`, id, string(decision), feedback, actor, at); err != nil {
		return domain.Project{}, domain.Account{}, wrapErr(err)
	}
	p.Status, p.ReviewStatus, p.ReviewFeedback, p.ReviewedBy = decision, decision, feedback, actor
	p.ReviewedAt = &at

	q := `select ` + accountColumns + ` from accounts where user_id = $1`
	args := []any{p.UserID}
	if decision == domain.ProjectApproved {
		q = `update accounts set lor_unlocked = true, lor_unlocked_by = $2, lor_unlocked_at = $3,
				project_completion_status = 'Completed', updated_at = $3
			where user_id = $1
			returning ` + accountColumns
		args = append(args, actor, at)
	}
	a, err := scanAccount(tx.QueryRowContext(ctx, q, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Project{}, domain.Account{}, domain.NotFoundf("User not found")
	}
	if err != nil {
		return domain.Project{}, domain.Account{}, wrapErr(err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, domain.Account{}, wrapErr(err)
	}
	return p, a, nil
}
