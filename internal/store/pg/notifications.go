package pg

import (
	"context"
	"database/sql"
	"errors"

	"vedarc.org/internal/domain"
)

func (s *Store) CreateNotification(ctx context.Context, n domain.Notification) error {
	_, err := s.db.ExecContext(ctx, `
		insert into notifications (id, user_id, title, content, priority, is_read, created_at)
		values ($1, $2, $3, $4, $5, $6, $7)
	`, n.ID, n.UserID, n.Title, n.Content, n.Priority, n.IsRead, n.CreatedAt)
	if isForeignKeyViolation(err) {
		return domain.NotFoundf("User not found")
	}
	return wrapErr(err)
}

func (s *Store) ListNotifications(ctx context.Context, userID string) ([]domain.Notification, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, user_id, title, content, priority, is_read, created_at
		from notifications where user_id = $1
		order by created_at desc, id desc
	`, userID)
	if err != nil {
		return nil, wrapErr(err)
	}
	defer rows.Close()
	var out []domain.Notification
	for rows.Next() {
		var n domain.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Title, &n.Content, &n.Priority, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, wrapErr(err)
		}
		out = append(out, n)
	}
	return out, wrapErr(rows.Err())
}

func (s *Store) MarkNotificationRead(ctx context.Context, userID, id string) error {
	res, err := s.db.ExecContext(ctx, `update notifications set is_read = true where id = $1 and user_id = $2`, id, userID)
	if err != nil {
		return wrapErr(err)
	}
	n, err := affected(res)
	if err != nil {
		return wrapErr(err)
	}
	if n == 0 {
		return domain.NotFoundf("Notification not found")
	}
	return nil
}

func (s *Store) MarkAllNotificationsRead(ctx context.Context, userID string) (int, error) {
	res, err := s.db.ExecContext(ctx, `update notifications set is_read = true where user_id = $1 and not is_read`, userID)
	if err != nil {
		return 0, wrapErr(err)
	}
	n, err := affected(res)
	return int(n), wrapErr(err)
}

func (s *Store) CreateAnnouncement(ctx context.Context, a domain.Announcement) error {
	_, err := s.db.ExecContext(ctx, `
		insert into announcements (id, title, content, created_by, created_at) values ($1, $2, $3, $4, $5)
	`, a.ID, a.Title, a.Content, a.CreatedBy, a.CreatedAt)
	return wrapErr(err)
}

const announcementColumns = `id, title, content, created_by, created_at, updated_by, updated_at`

func scanAnnouncement(row scanner) (domain.Announcement, error) {
	var (
		a         domain.Announcement
		updatedBy sql.NullString
		updatedAt sql.NullTime
	)
	if err := row.Scan(&a.ID, &a.Title, &a.Content, &a.CreatedBy, &a.CreatedAt, &updatedBy, &updatedAt); err != nil {
		return domain.Announcement{}, wrapErr(err)
	}
	a.UpdatedBy, a.UpdatedAt = updatedBy.String, timePtr(updatedAt)
	return a, nil
}

func (s *Store) ListAnnouncements(ctx context.Context) ([]domain.Announcement, error) {
	rows, err := s.db.QueryContext(ctx, `select `+announcementColumns+` from announcements order by created_at desc`)
	if err != nil {
		return nil, wrapErr(err)
	}
	defer rows.Close()
	var out []domain.Announcement
	for rows.Next() {
		a, err := scanAnnouncement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, wrapErr(rows.Err())
}

func (s *Store) UpdateAnnouncement(ctx context.Context, a domain.Announcement) (domain.Announcement, error) {
	out, err := scanAnnouncement(s.db.QueryRowContext(ctx, `
		update announcements set title = $2, content = $3, updated_by = $4, updated_at = $5
		where id = $1
		returning `+announcementColumns, a.ID, a.Title, a.Content, nullIfEmpty(a.UpdatedBy), nullTime(a.UpdatedAt)))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Announcement{}, domain.NotFoundf("Announcement not found")
	}
	return out, err
}

func (s *Store) DeleteAnnouncement(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from announcements where id = $1`, id)
	if err != nil {
		return wrapErr(err)
	}
	n, err := affected(res)
	if err != nil {
		return wrapErr(err)
	}
	if n == 0 {
		return domain.NotFoundf("Announcement not found")
	}
	return nil
}
