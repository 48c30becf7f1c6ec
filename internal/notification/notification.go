package notification

import (
	"context"
	"strings"
	"time"

	"vedarc.org/internal/domain"
	"vedarc.org/internal/ids"
	"vedarc.org/internal/stream"
)

const (
	PriorityNormal = "normal"
	PriorityHigh   = "high"
)

// Store persists notifications and announcements.
type Store interface {
	CreateNotification(ctx context.Context, n domain.Notification) error
	ListNotifications(ctx context.Context, userID string) ([]domain.Notification, error)
	MarkNotificationRead(ctx context.Context, userID, id string) error
	MarkAllNotificationsRead(ctx context.Context, userID string) (int, error)
	CreateAnnouncement(ctx context.Context, a domain.Announcement) error
	ListAnnouncements(ctx context.Context) ([]domain.Announcement, error)
	UpdateAnnouncement(ctx context.Context, a domain.Announcement) (domain.Announcement, error)
	DeleteAnnouncement(ctx context.Context, id string) error
}

// Publisher pushes stored messages to live dashboards.
type Publisher interface {
	Publish(evt stream.Event)
}

// Service manages in-app messages for students.
type Service struct {
	store Store
	live  Publisher
	now   func() time.Time
}

type Option func(*Service)

// WithPublisher pushes every stored notification and announcement to p.
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.live = p }
}

func NewService(store Store, opts ...Option) *Service {
	s := &Service{store: store, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) publish(kind, userID string, payload any, at time.Time) {
	if s.live != nil {
		s.live.Publish(stream.Event{Kind: kind, UserID: userID, Payload: payload, Timestamp: at})
	}
}

// Notify stores a message for one student.
func (s *Service) Notify(ctx context.Context, userID, title, content, priority string) (domain.Notification, error) {
	if strings.TrimSpace(userID) == "" {
		return domain.Notification{}, domain.Validationf("user_id is required")
	}
	if strings.TrimSpace(title) == "" {
		return domain.Notification{}, domain.Validationf("title is required")
	}
	if priority == "" {
		priority = PriorityNormal
	}
	n := domain.Notification{
		ID:        ids.New(),
		UserID:    userID,
		Title:     title,
		Content:   content,
		Priority:  priority,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.CreateNotification(ctx, n); err != nil {
		return domain.Notification{}, err
	}
	s.publish(stream.KindNotification, n.UserID, n, n.CreatedAt)
	return n, nil
}

func (s *Service) List(ctx context.Context, userID string) ([]domain.Notification, error) {
	return s.store.ListNotifications(ctx, userID)
}

func (s *Service) MarkRead(ctx context.Context, userID, id string) error {
	return s.store.MarkNotificationRead(ctx, userID, id)
}

// MarkAllRead returns the number of notifications that were unread.
func (s *Service) MarkAllRead(ctx context.Context, userID string) (int, error) {
	return s.store.MarkAllNotificationsRead(ctx, userID)
}

// Announce publishes a message visible to every student.
func (s *Service) Announce(ctx context.Context, title, content, actor string) (domain.Announcement, error) {
	title, content = strings.TrimSpace(title), strings.TrimSpace(content)
	if title == "" || content == "" {
		return domain.Announcement{}, domain.Validationf("title and content are required")
	}
	a := domain.Announcement{
		ID:        ids.New(),
		Title:     title,
		Content:   content,
		CreatedBy: actor,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.CreateAnnouncement(ctx, a); err != nil {
		return domain.Announcement{}, err
	}
	s.publish(stream.KindAnnouncement, "", a, a.CreatedAt)
	return a, nil
}

func (s *Service) Announcements(ctx context.Context) ([]domain.Announcement, error) {
	return s.store.ListAnnouncements(ctx)
}

// AnnouncementInput edits an announcement; nil fields keep their value.
type AnnouncementInput struct {
	Title   *string `json:"title"`
	Content *string `json:"content"`
}

func (s *Service) UpdateAnnouncement(ctx context.Context, id string, in AnnouncementInput, actor string) (domain.Announcement, error) {
	list, err := s.store.ListAnnouncements(ctx)
	if err != nil {
		return domain.Announcement{}, err
	}
	var cur *domain.Announcement
	for i := range list {
		if list[i].ID == id {
			cur = &list[i]
			break
		}
	}
	if cur == nil {
		return domain.Announcement{}, domain.NotFoundf("Announcement not found")
	}
	if in.Title != nil {
		cur.Title = strings.TrimSpace(*in.Title)
	}
	if in.Content != nil {
		cur.Content = strings.TrimSpace(*in.Content)
	}
	if cur.Title == "" || cur.Content == "" {
		return domain.Announcement{}, domain.Validationf("title and content are required")
	}
	at := s.now().UTC()
	cur.UpdatedBy, cur.UpdatedAt = actor, &at
	return s.store.UpdateAnnouncement(ctx, *cur)
}

func (s *Service) DeleteAnnouncement(ctx context.Context, id string) error {
	return s.store.DeleteAnnouncement(ctx, id)
}
