package project

import (
	"context"
	"errors"
	"testing"
	"time"

	"vedarc.org/internal/auth"
	"vedarc.org/internal/domain"
	"vedarc.org/internal/notification"
	"vedarc.org/internal/store/memory"
)

const (
	track        = "Data Science"
	internshipID = "int-ds"
)

func setup(t *testing.T) (*memory.Store, *Service, context.Context) {
	t.Helper()
	st := memory.New()
	ctx := auth.ContextWithPrincipal(context.Background(), auth.NewPrincipal("mgr", domain.RoleManager))
	if err := st.CreateInternship(ctx, domain.Internship{ID: internshipID, TrackName: track, IsActive: true}); err != nil {
		t.Fatalf("CreateInternship: %v", err)
	}
	for _, id := range []string{"S1", "S2"} {
		err := st.InsertAccount(ctx, domain.Account{
			UserID: id, Email: id + "@example.com", Track: track, Status: domain.StatusActive,
			PaymentID: "pay_" + id, ProjectStatus: domain.ProjectNotStarted, CreatedAt: time.Now(),
		})
		if err != nil {
			t.Fatalf("InsertAccount: %v", err)
		}
	}
	return st, NewService(st, notification.NewService(st)), ctx
}

func newTemplate(t *testing.T, svc *Service, ctx context.Context, title string) domain.ProjectTemplate {
	t.Helper()
	tpl, err := svc.CreateTemplate(ctx, TemplateInput{InternshipID: internshipID, Title: title, Description: "Build it"})
	if err != nil {
		t.Fatalf("CreateTemplate: %v", err)
	}
	return tpl
}

func TestApprovedProjectUnlocksLOR(t *testing.T) {
	st, svc, ctx := setup(t)
	tpl := newTemplate(t, svc, ctx, "Churn model")

	p, err := svc.AssignFromTemplate(ctx, "S1", tpl.ID)
	if err != nil {
		t.Fatalf("AssignFromTemplate: %v", err)
	}
	if p.Status != domain.ProjectAssigned || p.Title != "Churn model" || p.AutoAssigned {
		t.Fatalf("unexpected project: %+v", p)
	}
	acct, _ := st.FindAccount(ctx, "S1")
	if acct.ProjectStatus != domain.ProjectInProgress {
		t.Fatalf("assignment must mark the project in progress, got %s", acct.ProjectStatus)
	}
	if _, err := svc.AssignFromTemplate(ctx, "S1", tpl.ID); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("second assignment must conflict, got %v", err)
	}

	if _, err := svc.Review(ctx, p.ID, domain.ProjectApproved, ""); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("review before submission must conflict, got %v", err)
	}
	if _, err := svc.Submit(ctx, "S2", p.ID, "https://github.com/s1/churn"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("only the owner may submit, got %v", err)
	}
	if _, err := svc.Submit(ctx, "S1", p.ID, "nope"); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected invalid link error, got %v", err)
	}
	if _, err := svc.Submit(ctx, "S1", p.ID, "https://github.com/s1/churn"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	reviewed, err := svc.Review(ctx, p.ID, domain.ProjectApproved, "Great work")
	if err != nil {
		t.Fatalf("Review: %v", err)
	}
	if reviewed.ReviewStatus != domain.ProjectApproved || reviewed.ReviewedBy != "mgr" {
		t.Fatalf("unexpected review: %+v", reviewed)
	}
	acct, _ = st.FindAccount(ctx, "S1")
	if !acct.LORUnlocked || acct.ProjectStatus != domain.ProjectCompleted || acct.AdminLORApproval {
		t.Fatalf("approval must unlock the LOR without admin approval: %+v", acct)
	}
	notes, _ := st.ListNotifications(ctx, "S1")
	if len(notes) != 2 {
		t.Fatalf("expected assignment and approval notifications, got %d", len(notes))
	}
}

func TestRejectedProjectCanBeResubmitted(t *testing.T) {
	st, svc, ctx := setup(t)
	tpl := newTemplate(t, svc, ctx, "Dashboard")
	p, err := svc.AssignFromTemplate(ctx, "S1", tpl.ID)
	if err != nil {
		t.Fatalf("AssignFromTemplate: %v", err)
	}
	if _, err := svc.Submit(ctx, "S1", p.ID, "https://example.com/v1"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := svc.Review(ctx, p.ID, "Maybe", ""); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected invalid decision, got %v", err)
	}
	if _, err := svc.Review(ctx, p.ID, domain.ProjectRejected, "Add tests"); err != nil {
		t.Fatalf("Review: %v", err)
	}
	acct, _ := st.FindAccount(ctx, "S1")
	if acct.LORUnlocked {
		t.Fatal("rejection must not unlock the LOR")
	}
	again, err := svc.Submit(ctx, "S1", p.ID, "https://example.com/v2")
	if err != nil {
		t.Fatalf("resubmit after rejection: %v", err)
	}
	if again.Status != domain.ProjectSubmitted || again.UploadLink != "https://example.com/v2" {
		t.Fatalf("unexpected resubmission: %+v", again)
	}
}

func TestAutoAssignPicksOldestTemplate(t *testing.T) {
	st, svc, ctx := setup(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return base }
	first := newTemplate(t, svc, ctx, "First")
	svc.now = func() time.Time { return base.Add(time.Hour) }
	newTemplate(t, svc, ctx, "Second")

	if _, err := svc.AutoAssign(ctx, "S1", ""); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("incomplete course must block auto-assign, got %v", err)
	}
	if _, err := st.SetCompletion(ctx, "S1", 100, time.Now()); err != nil {
		t.Fatalf("SetCompletion: %v", err)
	}
	if _, err := svc.OptIn(ctx, "S1", ""); err != nil {
		t.Fatalf("OptIn: %v", err)
	}
	p, err := svc.AutoAssign(ctx, "S1", "")
	if err != nil {
		t.Fatalf("AutoAssign: %v", err)
	}
	if p.TemplateID != first.ID || !p.AutoAssigned || p.Status != domain.ProjectAssigned {
		t.Fatalf("unexpected auto assignment: %+v", p)
	}
	status, err := svc.Status(ctx, "S1", "")
	if err != nil || status.ID != p.ID {
		t.Fatalf("Status = %+v, %v", status, err)
	}
	all, _ := svc.List(ctx, internshipID)
	if len(all) != 1 {
		t.Fatalf("opt-in must be upgraded in place, got %d projects", len(all))
	}
}

func TestTemplateMaintenance(t *testing.T) {
	_, svc, ctx := setup(t)
	if _, err := svc.CreateTemplate(ctx, TemplateInput{InternshipID: internshipID, Description: "x"}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected missing title error, got %v", err)
	}
	if _, err := svc.CreateTemplate(ctx, TemplateInput{InternshipID: "missing", Title: "x", Description: "x"}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected unknown internship, got %v", err)
	}
	tpl := newTemplate(t, svc, ctx, "Old")
	updated, err := svc.UpdateTemplate(ctx, tpl.ID, TemplateInput{Title: "New", Description: "Better"})
	if err != nil {
		t.Fatalf("UpdateTemplate: %v", err)
	}
	if updated.Title != "New" || updated.UpdatedAt == nil || updated.InternshipID != internshipID {
		t.Fatalf("unexpected update: %+v", updated)
	}
	if err := svc.DeleteTemplate(ctx, tpl.ID); err != nil {
		t.Fatalf("DeleteTemplate: %v", err)
	}
	if _, err := svc.AutoAssign(ctx, "S2", internshipID); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected completion conflict, got %v", err)
	}
	list, _ := svc.ListTemplates(ctx, internshipID)
	if len(list) != 0 {
		t.Fatalf("expected no templates, got %d", len(list))
	}
}

func TestAssignRejectsTemplateFromAnotherTrack(t *testing.T) {
	st, svc, ctx := setup(t)
	if err := st.CreateInternship(ctx, domain.Internship{ID: "int-fe", TrackName: "Frontend Development", IsActive: true}); err != nil {
		t.Fatalf("CreateInternship: %v", err)
	}
	tpl, err := svc.CreateTemplate(ctx, TemplateInput{InternshipID: "int-fe", Title: "Landing page", Description: "Ship it"})
	if err != nil {
		t.Fatalf("CreateTemplate: %v", err)
	}

	if _, err := svc.AssignFromTemplate(ctx, "S1", tpl.ID); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for cross-track template, got %v", err)
	}
	if _, err := st.FindUserProject(ctx, "S1", "int-fe"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("no project should be stored, got %v", err)
	}
	acct, _ := st.FindAccount(ctx, "S1")
	if acct.ProjectStatus != domain.ProjectNotStarted {
		t.Fatalf("project status must stay untouched, got %s", acct.ProjectStatus)
	}
}
