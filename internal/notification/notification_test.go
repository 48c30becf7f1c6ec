package notification

import (
	"context"
	"errors"
	"testing"

	"vedarc.org/internal/domain"
	"vedarc.org/internal/store/memory"
	"vedarc.org/internal/stream"
)

type recordingPublisher struct {
	events []stream.Event
}

func (p *recordingPublisher) Publish(evt stream.Event) { p.events = append(p.events, evt) }

func TestNotifyListAndMarkRead(t *testing.T) {
	svc := NewService(memory.New())
	ctx := context.Background()

	n, err := svc.Notify(ctx, "VEDARC-1", "Certificate of Completion Unlocked!", "ready", PriorityHigh)
	if err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if _, err := svc.Notify(ctx, "VEDARC-2", "other", "x", ""); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	list, err := svc.List(ctx, "VEDARC-1")
	if err != nil || len(list) != 1 || list[0].Priority != PriorityHigh {
		t.Fatalf("unexpected list: %+v err=%v", list, err)
	}
	if err := svc.MarkRead(ctx, "VEDARC-2", n.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("foreign mark-read must fail, got %v", err)
	}
	if err := svc.MarkRead(ctx, "VEDARC-1", n.ID); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	list, _ = svc.List(ctx, "VEDARC-1")
	if !list[0].IsRead {
		t.Fatal("expected notification to be read")
	}
}

func TestAnnouncementsRequireContent(t *testing.T) {
	svc := NewService(memory.New())
	ctx := context.Background()
	if _, err := svc.Announce(ctx, " ", "body", "mgr"); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := svc.Announce(ctx, "Week 2 live", "Join at 6pm", "mgr"); err != nil {
		t.Fatalf("Announce: %v", err)
	}
	list, err := svc.Announcements(ctx)
	if err != nil || len(list) != 1 || list[0].CreatedBy != "mgr" {
		t.Fatalf("unexpected announcements: %+v err=%v", list, err)
	}
}

func TestStoredMessagesArePublished(t *testing.T) {
	pub := &recordingPublisher{}
	svc := NewService(memory.New(), WithPublisher(pub))
	ctx := context.Background()

	if _, err := svc.Notify(ctx, "VEDARC-1", "Week 1 submission approved", "", ""); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if _, err := svc.Notify(ctx, "", "no owner", "", ""); err == nil {
		t.Fatal("expected validation error")
	}
	if _, err := svc.Announce(ctx, "Demo day", "Friday 5pm", "mgr"); err != nil {
		t.Fatalf("Announce: %v", err)
	}
	if len(pub.events) != 2 {
		t.Fatalf("expected 2 published events, got %+v", pub.events)
	}
	if pub.events[0].Kind != stream.KindNotification || pub.events[0].UserID != "VEDARC-1" {
		t.Fatalf("unexpected notification event: %+v", pub.events[0])
	}
	if pub.events[1].Kind != stream.KindAnnouncement || pub.events[1].UserID != "" {
		t.Fatalf("unexpected announcement event: %+v", pub.events[1])
	}
}
