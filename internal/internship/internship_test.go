package internship

import (
	"context"
	"errors"
	"testing"
	"time"

	"vedarc.org/internal/domain"
	"vedarc.org/internal/store/memory"
)

func setup(t *testing.T) (*memory.Store, *Service, domain.Internship) {
	t.Helper()
	st := memory.New()
	svc := NewService(st)
	ctx := context.Background()
	rec, err := svc.Create(ctx, Input{TrackName: " Cloud Engineering ", Duration: "8 weeks"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	err = st.InsertAccount(ctx, domain.Account{UserID: "S1", Email: "s1@example.com", Track: "Cloud Engineering", Status: domain.StatusActive, CreatedAt: time.Now()})
	if err != nil {
		t.Fatalf("InsertAccount: %v", err)
	}
	return st, svc, rec
}

func TestCreateAndUpdate(t *testing.T) {
	_, svc, rec := setup(t)
	ctx := context.Background()
	if rec.TrackName != "Cloud Engineering" || !rec.IsActive {
		t.Fatalf("unexpected internship: %+v", rec)
	}
	if _, err := svc.Create(ctx, Input{TrackName: "cloud engineering"}); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected duplicate track conflict, got %v", err)
	}
	if _, err := svc.Create(ctx, Input{}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	off := false
	updated, err := svc.Update(ctx, rec.ID, Input{TrackName: "Cloud Engineering", Description: "AWS + GCP", IsActive: &off})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.IsActive || updated.Description != "AWS + GCP" {
		t.Fatalf("unexpected update: %+v", updated)
	}
	active, _ := svc.List(ctx, true)
	if len(active) != 0 {
		t.Fatalf("inactive internship must be hidden, got %d", len(active))
	}
}

func TestWeeksAndDailyProgress(t *testing.T) {
	_, svc, rec := setup(t)
	ctx := context.Background()
	_, err := svc.AddWeek(ctx, rec.ID, WeekInput{
		WeekNumber: 1,
		Title:      "Foundations",
		Days:       []domain.DayContent{{Day: 2, Title: "IAM"}, {Day: 1, Title: "Intro"}},
	})
	if err != nil {
		t.Fatalf("AddWeek: %v", err)
	}
	if _, err := svc.AddWeek(ctx, rec.ID, WeekInput{WeekNumber: 1, Title: "Again"}); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected duplicate week conflict, got %v", err)
	}
	if _, err := svc.AddWeek(ctx, rec.ID, WeekInput{WeekNumber: 2, Title: "Bad", Days: []domain.DayContent{{Day: 9}}}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected day range error, got %v", err)
	}
	weeks, err := svc.WeeksForStudent(ctx, "S1")
	if err != nil || len(weeks) != 1 || weeks[0].Days[0].Day != 1 {
		t.Fatalf("WeeksForStudent = %+v, %v", weeks, err)
	}

	p, err := svc.MarkDay(ctx, "S1", 1, 2, true)
	if err != nil {
		t.Fatalf("MarkDay: %v", err)
	}
	if len(p.Completed) != 1 || p.Completed[0] != 2 || p.TotalDays != 2 {
		t.Fatalf("unexpected progress: %+v", p)
	}
	if _, err := svc.MarkDay(ctx, "S1", 1, 5, true); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected unknown day error, got %v", err)
	}
	if _, err := svc.MarkDay(ctx, "S1", 3, 1, true); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected unknown week error, got %v", err)
	}
	p, err = svc.MarkDay(ctx, "S1", 1, 2, false)
	if err != nil || len(p.Completed) != 0 {
		t.Fatalf("unmark = %+v, %v", p, err)
	}
}

func TestStudentsAndForStudent(t *testing.T) {
	_, svc, rec := setup(t)
	ctx := context.Background()
	students, err := svc.Students(ctx, rec.ID)
	if err != nil || len(students) != 1 || students[0].UserID != "S1" {
		t.Fatalf("Students = %+v, %v", students, err)
	}
	got, err := svc.ForStudent(ctx, "S1")
	if err != nil || got.ID != rec.ID {
		t.Fatalf("ForStudent = %+v, %v", got, err)
	}
}
