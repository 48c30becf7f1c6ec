package gates

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"vedarc.org/internal/auth"
	"vedarc.org/internal/domain"
	"vedarc.org/internal/notification"
	"vedarc.org/internal/store/memory"
)

const track = "Frontend Development"

type fixture struct {
	store  *memory.Store
	engine *Engine
	notes  *notification.Service
}

func newFixture(t *testing.T, weeks int) fixture {
	t.Helper()
	st := memory.New()
	ctx := context.Background()
	for i := 1; i <= weeks; i++ {
		if err := st.CreateWeek(ctx, domain.Week{Track: track, WeekNumber: i, Title: fmt.Sprintf("Week %d", i)}); err != nil {
			t.Fatalf("CreateWeek: %v", err)
		}
	}
	notes := notification.NewService(st)
	return fixture{store: st, engine: NewEngine(st, notes), notes: notes}
}

func (f fixture) student(t *testing.T, id string, mutate func(*domain.Account)) {
	t.Helper()
	a := domain.Account{
		UserID:        id,
		Email:         id + "@example.com",
		FullName:      "Student " + id,
		Track:         track,
		Status:        domain.StatusActive,
		PaymentID:     "pay_" + id,
		ProjectStatus: domain.ProjectNotStarted,
		CreatedAt:     time.Now().UTC(),
	}
	if mutate != nil {
		mutate(&a)
	}
	if err := f.store.InsertAccount(context.Background(), a); err != nil {
		t.Fatalf("InsertAccount: %v", err)
	}
}

func (f fixture) approveWeeks(t *testing.T, userID string, weeks ...int) {
	t.Helper()
	ctx := context.Background()
	for _, w := range weeks {
		id := fmt.Sprintf("%s-w%d", userID, w)
		if err := f.store.CreateSubmission(ctx, domain.Submission{ID: id, UserID: userID, Track: track, Week: w, Status: domain.SubmissionPending}); err != nil {
			t.Fatalf("CreateSubmission: %v", err)
		}
		if _, err := f.store.ReviewSubmission(ctx, domain.Review{SubmissionID: id, Status: domain.SubmissionApproved, Reviewer: "mgr", At: time.Now()}); err != nil {
			t.Fatalf("ReviewSubmission: %v", err)
		}
	}
}

func managerCtx() context.Context {
	return auth.ContextWithPrincipal(context.Background(), auth.NewPrincipal("manager", domain.RoleManager))
}

func adminCtx() context.Context {
	return auth.ContextWithPrincipal(context.Background(), auth.NewPrincipal("admin", domain.RoleAdmin))
}

func assertGateInvariants(t *testing.T, st *memory.Store, userID string) {
	t.Helper()
	a, err := st.FindAccount(context.Background(), userID)
	if err != nil {
		t.Fatalf("FindAccount: %v", err)
	}
	if a.CertificateUnlocked && (a.CompletionPercentage != 100 || !a.AdminCertificateApproval) {
		t.Fatalf("certificate invariant broken: %+v", a)
	}
	if a.LORUnlocked && !(a.ProjectStatus.QualifiesForLOR() && a.AdminLORApproval) {
		p, err := st.ListProjects(context.Background(), "")
		if err != nil {
			t.Fatalf("ListProjects: %v", err)
		}
		for _, proj := range p {
			if proj.UserID == userID && proj.ReviewStatus == domain.ProjectApproved {
				return
			}
		}
		t.Fatalf("lor invariant broken: %+v", a)
	}
}

func TestCompletion(t *testing.T) {
	cases := []struct {
		approved, weeks int
		want            float64
	}{
		{0, 4, 0},
		{1, 4, 25},
		{4, 4, 100},
		{5, 4, 100},
		{3, 0, 0},
		{-1, 4, 0},
	}
	for _, tc := range cases {
		if got := Completion(tc.approved, tc.weeks); got != tc.want {
			t.Fatalf("Completion(%d,%d) = %v, want %v", tc.approved, tc.weeks, got, tc.want)
		}
	}
}

func TestRecalculateCompletionIsStable(t *testing.T) {
	f := newFixture(t, 4)
	f.student(t, "S1", nil)
	f.approveWeeks(t, "S1", 1, 3)

	for i := 0; i < 3; i++ {
		a, err := f.engine.RecalculateCompletion(context.Background(), "S1")
		if err != nil {
			t.Fatalf("RecalculateCompletion: %v", err)
		}
		if a.CompletionPercentage != 50 {
			t.Fatalf("run %d: expected 50%%, got %v", i, a.CompletionPercentage)
		}
	}
}

func TestUnlockCertificateRequiresApprovalThenSucceeds(t *testing.T) {
	f := newFixture(t, 2)
	f.student(t, "S2", nil)
	f.approveWeeks(t, "S2", 1, 2)
	if _, err := f.engine.RecalculateCompletion(context.Background(), "S2"); err != nil {
		t.Fatalf("RecalculateCompletion: %v", err)
	}

	_, err := f.engine.UnlockCertificate(managerCtx(), "S2")
	if !errors.Is(err, domain.ErrRequiresApproval) {
		t.Fatalf("expected ErrRequiresApproval, got %v", err)
	}
	a, _ := f.store.FindAccount(context.Background(), "S2")
	if a.CertificateUnlocked {
		t.Fatal("certificate must stay locked without approval")
	}
	assertGateInvariants(t, f.store, "S2")

	if _, err := f.engine.AdminApprove(adminCtx(), "S2", domain.CertificateCompletion, true); err != nil {
		t.Fatalf("AdminApprove: %v", err)
	}
	a, _ = f.store.FindAccount(context.Background(), "S2")
	if a.CertificateUnlocked {
		t.Fatal("approval alone must not unlock")
	}

	a, err = f.engine.UnlockCertificate(managerCtx(), "S2")
	if err != nil {
		t.Fatalf("UnlockCertificate: %v", err)
	}
	if !a.CertificateUnlocked || a.CertificateUnlockedBy != "manager" || a.CertificateUnlockedAt == nil {
		t.Fatalf("unexpected gate fields: %+v", a)
	}
	assertGateInvariants(t, f.store, "S2")

	notes, _ := f.notes.List(context.Background(), "S2")
	found := false
	for _, n := range notes {
		if n.Title == "Certificate of Completion Unlocked!" && n.Priority == "high" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected unlock notification, got %+v", notes)
	}
}

func TestUnlockCertificateBelowFullCompletionIsConflict(t *testing.T) {
	f := newFixture(t, 4)
	f.student(t, "S3", func(a *domain.Account) { a.AdminCertificateApproval = true })
	f.approveWeeks(t, "S3", 1)
	f.engine.RecalculateCompletion(context.Background(), "S3")

	_, err := f.engine.UnlockCertificate(managerCtx(), "S3")
	if !errors.Is(err, domain.ErrConflict) || errors.Is(err, domain.ErrRequiresApproval) {
		t.Fatalf("expected plain conflict, got %v", err)
	}
}

func TestRecalculateBelowFullRelocksCertificate(t *testing.T) {
	f := newFixture(t, 2)
	f.student(t, "S4", func(a *domain.Account) { a.AdminCertificateApproval = true })
	f.approveWeeks(t, "S4", 1, 2)
	f.engine.RecalculateCompletion(context.Background(), "S4")
	if _, err := f.engine.UnlockCertificate(managerCtx(), "S4"); err != nil {
		t.Fatalf("UnlockCertificate: %v", err)
	}

	// A third week appears; completion drops to 66%.
	if err := f.store.CreateWeek(context.Background(), domain.Week{Track: track, WeekNumber: 3}); err != nil {
		t.Fatalf("CreateWeek: %v", err)
	}
	a, err := f.engine.RecalculateCompletion(context.Background(), "S4")
	if err != nil {
		t.Fatalf("RecalculateCompletion: %v", err)
	}
	if a.CertificateUnlocked {
		t.Fatalf("expected certificate to be re-locked at %v%%", a.CompletionPercentage)
	}
	assertGateInvariants(t, f.store, "S4")
}

func TestRevokingApprovalClearsUnlock(t *testing.T) {
	f := newFixture(t, 1)
	f.student(t, "S5", func(a *domain.Account) {
		a.ProjectStatus = domain.ProjectExcellent
		a.AdminLORApproval = true
	})
	if _, err := f.engine.UnlockLOR(managerCtx(), "S5"); err != nil {
		t.Fatalf("UnlockLOR: %v", err)
	}
	a, err := f.engine.AdminApprove(adminCtx(), "S5", domain.CertificateLOR, false)
	if err != nil {
		t.Fatalf("AdminApprove revoke: %v", err)
	}
	if a.LORUnlocked {
		t.Fatal("revoking approval must clear the LOR unlock")
	}
	assertGateInvariants(t, f.store, "S5")
}

func TestUnlockLORNeedsQualifyingProject(t *testing.T) {
	f := newFixture(t, 1)
	f.student(t, "S6", func(a *domain.Account) {
		a.ProjectStatus = domain.ProjectInProgress
		a.AdminLORApproval = true
	})
	if _, err := f.engine.UnlockLOR(managerCtx(), "S6"); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict for in-progress project, got %v", err)
	}
}

func TestBulkUnlockBuckets(t *testing.T) {
	f := newFixture(t, 1)
	f.student(t, "OK", func(a *domain.Account) { a.AdminCertificateApproval = true })
	f.student(t, "WAIT", nil)
	f.student(t, "LOW", func(a *domain.Account) { a.AdminCertificateApproval = true })
	f.approveWeeks(t, "OK", 1)
	f.approveWeeks(t, "WAIT", 1)
	for _, id := range []string{"OK", "WAIT", "LOW"} {
		f.engine.RecalculateCompletion(context.Background(), id)
	}

	res, err := f.engine.BulkUnlock(managerCtx(), []string{"OK", "WAIT", "LOW", "GHOST"}, domain.CertificateCompletion)
	if err != nil {
		t.Fatalf("BulkUnlock: %v", err)
	}
	if len(res.Successful) != 1 || res.Successful[0].UserID != "OK" {
		t.Fatalf("unexpected successful bucket: %+v", res.Successful)
	}
	if len(res.RequiresAdminApproval) != 1 || res.RequiresAdminApproval[0].UserID != "WAIT" {
		t.Fatalf("unexpected approval bucket: %+v", res.RequiresAdminApproval)
	}
	if len(res.Failed) != 2 {
		t.Fatalf("unexpected failed bucket: %+v", res.Failed)
	}
	if got := res.Summary("unlock"); got != "Bulk unlock completed. 1 successful, 2 failed, 1 require admin approval." {
		t.Fatalf("unexpected summary %q", got)
	}
	for _, id := range []string{"OK", "WAIT", "LOW"} {
		assertGateInvariants(t, f.store, id)
	}
}

func TestBulkUnlockValidatesInput(t *testing.T) {
	f := newFixture(t, 1)
	if _, err := f.engine.BulkUnlock(managerCtx(), nil, domain.CertificateLOR); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := f.engine.BulkUnlock(managerCtx(), []string{"x"}, "diploma"); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for type, got %v", err)
	}
}

func TestBulkApprove(t *testing.T) {
	f := newFixture(t, 1)
	f.student(t, "A1", nil)
	res, err := f.engine.BulkApprove(adminCtx(), []string{"A1", "missing"}, domain.CertificateCompletion, true)
	if err != nil {
		t.Fatalf("BulkApprove: %v", err)
	}
	if len(res.Successful) != 1 || len(res.Failed) != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
	a, _ := f.store.FindAccount(context.Background(), "A1")
	if !a.AdminCertificateApproval || a.AdminCertificateApprovalBy != "admin" {
		t.Fatalf("approval not recorded: %+v", a)
	}
}

func TestRecalculateAll(t *testing.T) {
	f := newFixture(t, 2)
	f.student(t, "R1", nil)
	f.student(t, "R2", func(a *domain.Account) { a.Status = domain.StatusDisabled })
	f.approveWeeks(t, "R1", 1)
	n, err := f.engine.RecalculateAll(context.Background())
	if err != nil {
		t.Fatalf("RecalculateAll: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 active account processed, got %d", n)
	}
	a, _ := f.store.FindAccount(context.Background(), "R1")
	if a.CompletionPercentage != 50 {
		t.Fatalf("unexpected completion %v", a.CompletionPercentage)
	}
}
