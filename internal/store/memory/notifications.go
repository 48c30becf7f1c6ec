package memory

import (
	"context"
	"sort"

	"vedarc.org/internal/domain"
)

func (s *Store) CreateNotification(ctx context.Context, n domain.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := n
	s.notes[n.ID] = &cp
	return nil
}

func (s *Store) ListNotifications(ctx context.Context, userID string) ([]domain.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Notification
	for _, n := range s.notes {
		if n.UserID == userID {
			out = append(out, *n)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) MarkNotificationRead(ctx context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notes[id]
	if !ok || n.UserID != userID {
		return domain.NotFoundf("Notification not found")
	}
	n.IsRead = true
	return nil
}

// MarkAllNotificationsRead reports how many unread notifications it flipped.
func (s *Store) MarkAllNotificationsRead(ctx context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, note := range s.notes {
		if note.UserID == userID && !note.IsRead {
			note.IsRead = true
			n++
		}
	}
	return n, nil
}

func (s *Store) CreateAnnouncement(ctx context.Context, a domain.Announcement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.news = append(s.news, a)
	return nil
}

func (s *Store) ListAnnouncements(ctx context.Context) ([]domain.Announcement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := append([]domain.Announcement(nil), s.news...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) UpdateAnnouncement(ctx context.Context, a domain.Announcement) (domain.Announcement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.news {
		if s.news[i].ID == a.ID {
			cur := &s.news[i]
			cur.Title, cur.Content = a.Title, a.Content
			cur.UpdatedBy, cur.UpdatedAt = a.UpdatedBy, a.UpdatedAt
			return *cur, nil
		}
	}
	return domain.Announcement{}, domain.NotFoundf("Announcement not found")
}

func (s *Store) DeleteAnnouncement(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.news {
		if s.news[i].ID == id {
			s.news = append(s.news[:i], s.news[i+1:]...)
			return nil
		}
	}
	return domain.NotFoundf("Announcement not found")
}
