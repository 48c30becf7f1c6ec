package account

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"vedarc.org/internal/auth"
	"vedarc.org/internal/domain"
	"vedarc.org/internal/mail"
	"vedarc.org/internal/payment"
	"vedarc.org/internal/session"
	"vedarc.org/internal/store/memory"
)

const track = "Frontend Development"

type recordingMailer struct {
	mu   sync.Mutex
	sent []mail.Message
}

func (m *recordingMailer) Notify(msg mail.Message) {
	m.mu.Lock()
	m.sent = append(m.sent, msg)
	m.mu.Unlock()
}

func (m *recordingMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

func (m *recordingMailer) last() mail.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sent[len(m.sent)-1]
}

type fixture struct {
	store    *memory.Store
	gateway  *payment.Sandbox
	sessions *session.Service
	mailer   *recordingMailer
	svc      *Service
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	st := memory.New()
	ctx := context.Background()
	if err := st.CreateInternship(ctx, domain.Internship{ID: "int-1", TrackName: track, IsActive: true, CreatedAt: time.Now()}); err != nil {
		t.Fatalf("CreateInternship: %v", err)
	}
	tokens, err := auth.NewTokens("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("NewTokens: %v", err)
	}
	gw := payment.NewSandbox("sandbox-secret")
	sessions := session.NewService(st)
	mailer := &recordingMailer{}
	svc := NewService(st, gw, sessions, tokens, mailer, Config{
		UserIDPrefix: "VEDARC",
		Company:      "VEDARC",
		Amount:       29900,
		Currency:     "INR",
	})
	return fixture{store: st, gateway: gw, sessions: sessions, mailer: mailer, svc: svc}
}

func registration(email string) domain.Registration {
	return domain.Registration{
		FullName:    "Asha Rao",
		Email:       email,
		WhatsApp:    "+91 90000 00000",
		CollegeName: "IIT Madras",
		Track:       track,
		YearOfStudy: "3",
		PassoutYear: "2027",
	}
}

// paid registers and confirms a student and returns its user_id.
func (f fixture) paid(t *testing.T, email string) string {
	t.Helper()
	ctx := context.Background()
	res, err := f.svc.Register(ctx, registration(email))
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	pid, sig, err := f.gateway.Capture(res.Order.ID)
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	conf, err := f.svc.ConfirmPayment(ctx, res.Order.ID, pid, sig)
	if err != nil {
		t.Fatalf("ConfirmPayment: %v", err)
	}
	return conf.UserID
}

func TestRegisterAndConfirmCreatesActiveAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.Register(ctx, registration("  Asha@Example.com "))
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if res.Email != "asha@example.com" || res.Order.Amount != 29900 || res.Order.Currency != "INR" {
		t.Fatalf("unexpected register result: %+v", res)
	}
	if _, err := f.store.FindAccountByEmail(ctx, "asha@example.com"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("account must not exist before payment, got %v", err)
	}

	pid, sig, err := f.gateway.Capture(res.Order.ID)
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	conf, err := f.svc.ConfirmPayment(ctx, res.Order.ID, pid, sig)
	if err != nil {
		t.Fatalf("ConfirmPayment: %v", err)
	}
	if conf.Replayed || !strings.HasPrefix(conf.UserID, "VEDARC-") {
		t.Fatalf("unexpected confirmation: %+v", conf)
	}
	acct, err := f.store.FindAccount(ctx, conf.UserID)
	if err != nil {
		t.Fatalf("FindAccount: %v", err)
	}
	if acct.Status != domain.StatusActive || acct.PaymentID != pid || acct.OrderID != res.Order.ID {
		t.Fatalf("unexpected account: %+v", acct)
	}
	if acct.PasswordHash == "" || acct.ActivatedAt == nil || acct.ProjectStatus != domain.ProjectNotStarted {
		t.Fatalf("account missing credentials or audit fields: %+v", acct)
	}
	if f.mailer.count() != 1 {
		t.Fatalf("expected one credentials email, got %d", f.mailer.count())
	}
	msg := f.mailer.last()
	if msg.To != "asha@example.com" || !strings.Contains(msg.HTML, conf.UserID) || !strings.Contains(msg.HTML, "299.00 INR") {
		t.Fatalf("unexpected email: %+v", msg)
	}

	again, err := f.svc.ConfirmPayment(ctx, res.Order.ID, pid, sig)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if !again.Replayed || again.UserID != conf.UserID {
		t.Fatalf("replay must return the same user: %+v", again)
	}
	if f.mailer.count() != 1 {
		t.Fatalf("replay must not send mail, got %d messages", f.mailer.count())
	}
	accts, _ := f.store.ListAccounts(ctx, domain.AccountFilter{})
	if len(accts) != 1 {
		t.Fatalf("expected exactly one account, got %d", len(accts))
	}
}

func TestConfirmPaymentRejectsBadSignature(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res, err := f.svc.Register(ctx, registration("bad@example.com"))
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	pid, _, err := f.gateway.Capture(res.Order.ID)
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if _, err := f.svc.ConfirmPayment(ctx, res.Order.ID, pid, "deadbeef"); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := f.svc.ConfirmPayment(ctx, res.Order.ID, pid, ""); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for empty signature, got %v", err)
	}
	if _, err := f.store.FindAccountByEmail(ctx, "bad@example.com"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("no account may be created, got %v", err)
	}
	if f.mailer.count() != 0 {
		t.Fatal("no mail expected")
	}
}

func TestConfirmPaymentConcurrentReplays(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res, err := f.svc.Register(ctx, registration("race@example.com"))
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	pid, sig, err := f.gateway.Capture(res.Order.ID)
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	const n = 8
	var wg sync.WaitGroup
	results := make([]Confirmation, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.svc.ConfirmPayment(ctx, res.Order.ID, pid, sig)
		}(i)
	}
	wg.Wait()
	fresh := 0
	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("confirmation %d: %v", i, errs[i])
		}
		if results[i].UserID != results[0].UserID {
			t.Fatalf("confirmations disagree: %q vs %q", results[i].UserID, results[0].UserID)
		}
		if !results[i].Replayed {
			fresh++
		}
	}
	if fresh != 1 || f.mailer.count() != 1 {
		t.Fatalf("expected exactly one fresh confirmation and email, got %d/%d", fresh, f.mailer.count())
	}
}

func TestHandleWebhookCompletesOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res, err := f.svc.Register(ctx, registration("hook@example.com"))
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	pid, _, err := f.gateway.Capture(res.Order.ID)
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	payload, err := f.gateway.WebhookPayload(pid)
	if err != nil {
		t.Fatalf("WebhookPayload: %v", err)
	}
	if _, err := f.svc.HandleWebhook(ctx, payload, "bogus"); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected signature failure, got %v", err)
	}
	conf, err := f.svc.HandleWebhook(ctx, payload, f.gateway.SignWebhook(payload))
	if err != nil {
		t.Fatalf("HandleWebhook: %v", err)
	}
	if conf.UserID == "" || conf.Replayed {
		t.Fatalf("unexpected webhook confirmation: %+v", conf)
	}
	again, err := f.svc.ConfirmPayment(ctx, res.Order.ID, pid, f.gateway.Sign(res.Order.ID, pid))
	if err != nil {
		t.Fatalf("ConfirmPayment after webhook: %v", err)
	}
	if !again.Replayed || again.UserID != conf.UserID {
		t.Fatalf("client confirmation must replay the webhook result: %+v", again)
	}
}

func TestRegisterValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	r := registration("x@example.com")
	r.PassoutYear = " "
	_, err := f.svc.Register(ctx, r)
	if !errors.Is(err, domain.ErrValidation) || domain.Message(err) != "Missing required field: passoutYear" {
		t.Fatalf("unexpected error: %v", err)
	}

	r = registration("x@example.com")
	r.Track = "Underwater Basket Weaving"
	if _, err := f.svc.Register(ctx, r); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected unknown track error, got %v", err)
	}

	f.paid(t, "taken@example.com")
	_, err = f.svc.Register(ctx, registration("TAKEN@example.com"))
	if !errors.Is(err, domain.ErrConflict) || domain.Message(err) != "Email already registered" {
		t.Fatalf("expected duplicate email conflict, got %v", err)
	}
}

func TestRegisterConcurrentSameEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Register(ctx, registration("twin@example.com"))
		}(i)
	}
	wg.Wait()
	ok, conflicts := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, domain.ErrConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 || conflicts != 1 {
		t.Fatalf("expected one success and one conflict, got %d/%d", ok, conflicts)
	}
}

func TestRegisterExpiresStaleOrders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	f.svc.now = func() time.Time { return base }
	first, err := f.svc.Register(ctx, registration("slow@example.com"))
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	f.svc.now = func() time.Time { return base.Add(time.Hour) }
	if _, err := f.svc.Register(ctx, registration("slow@example.com")); err != nil {
		t.Fatalf("second Register after TTL: %v", err)
	}
	p, err := f.store.FindPayment(ctx, first.Order.ID)
	if err != nil {
		t.Fatalf("FindPayment: %v", err)
	}
	if p.Status != domain.PaymentExpired {
		t.Fatalf("stale order must be expired, got %s", p.Status)
	}
}

func TestLifecycleStateMachine(t *testing.T) {
	f := newFixture(t)
	ctx := auth.ContextWithPrincipal(context.Background(), auth.NewPrincipal("hr.lead", domain.RoleHR))
	id := f.paid(t, "cycle@example.com")

	if _, err := f.svc.Activate(ctx, id); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("activate from Active must conflict, got %v", err)
	}
	if _, err := f.svc.Reactivate(ctx, id); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("reactivate from Active must conflict, got %v", err)
	} else if !strings.Contains(domain.Message(err), "Only 'Disabled' users can be enabled") {
		t.Fatalf("unexpected message: %s", domain.Message(err))
	}
	if err := f.svc.Delete(ctx, id, "spam"); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("delete from Active must conflict, got %v", err)
	}

	before := f.mailer.count()
	if _, err := f.svc.Deactivate(ctx, id, "   "); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("blank reason must fail, got %v", err)
	}
	acct, _ := f.store.FindAccount(ctx, id)
	if acct.Status != domain.StatusActive || f.mailer.count() != before {
		t.Fatal("failed deactivation must not change state or send mail")
	}

	acct, err := f.svc.Deactivate(ctx, id, "Fee dispute")
	if err != nil {
		t.Fatalf("Deactivate: %v", err)
	}
	if acct.Status != domain.StatusDisabled || acct.DisabledBy != "hr.lead" || acct.DisableReason != "Fee dispute" || acct.DisabledAt == nil {
		t.Fatalf("unexpected disabled account: %+v", acct)
	}
	if _, err := f.svc.Deactivate(ctx, id, "again"); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("deactivate from Disabled must conflict, got %v", err)
	}

	oldHash := acct.PasswordHash
	acct, err = f.svc.Reactivate(ctx, id)
	if err != nil {
		t.Fatalf("Reactivate: %v", err)
	}
	if acct.Status != domain.StatusActive || acct.EnabledBy != "hr.lead" || acct.PasswordHash == oldHash {
		t.Fatalf("reactivation must rotate credentials: %+v", acct)
	}
	if got := f.mailer.last().Subject; got != "VEDARC Internship Account Re-activated" {
		t.Fatalf("unexpected subject %q", got)
	}

	if _, err := f.svc.Deactivate(ctx, id, "Left program"); err != nil {
		t.Fatalf("Deactivate: %v", err)
	}
	if err := f.svc.Delete(ctx, id, ""); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("blank delete reason must fail, got %v", err)
	}
	if err := f.svc.Delete(ctx, id, "Left program"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := f.store.FindAccount(ctx, id); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("account must be gone, got %v", err)
	}
	if got := f.mailer.last().Subject; got != "VEDARC Internship Account Deleted" {
		t.Fatalf("unexpected subject %q", got)
	}
}

func TestActivateRequiresPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, a := range []domain.Account{
		{UserID: "VEDARC-P1", Email: "p1@example.com", Status: domain.StatusPending, PaymentID: "pay_1", CreatedAt: time.Now()},
		{UserID: "VEDARC-P2", Email: "p2@example.com", Status: domain.StatusPending, CreatedAt: time.Now()},
	} {
		if err := f.store.InsertAccount(ctx, a); err != nil {
			t.Fatalf("InsertAccount: %v", err)
		}
	}
	if _, err := f.svc.Activate(ctx, "VEDARC-P2"); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected payment requirement, got %v", err)
	}
	out, err := f.svc.BulkEnable(ctx)
	if err != nil {
		t.Fatalf("BulkEnable: %v", err)
	}
	if len(out.Successful) != 1 || out.Successful[0] != "VEDARC-P1" || len(out.Failed) != 1 || out.Failed[0].UserID != "VEDARC-P2" {
		t.Fatalf("unexpected bulk outcome: %+v", out)
	}
	if out.Summary() != "Bulk enable completed. 1 activated, 1 failed." {
		t.Fatalf("unexpected summary %q", out.Summary())
	}
	acct, _ := f.store.FindAccount(ctx, "VEDARC-P1")
	if acct.Status != domain.StatusActive || acct.PasswordHash == "" {
		t.Fatalf("activation must issue credentials: %+v", acct)
	}
}

func TestLoginMessages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.paid(t, "login@example.com")
	hash, err := auth.HashPassword("s3cret99")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if err := f.store.SetPassword(ctx, id, hash, time.Now()); err != nil {
		t.Fatalf("SetPassword: %v", err)
	}

	g, err := f.svc.Login(ctx, id, "s3cret99")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if g.Token == "" || g.SessionID == "" || g.UserType != domain.RoleStudent || g.Account == nil {
		t.Fatalf("unexpected grant: %+v", g)
	}
	if _, err := f.sessions.Validate(ctx, g.SessionID, id, domain.RoleStudent); err != nil {
		t.Fatalf("session must validate: %v", err)
	}

	if _, err := f.svc.Login(ctx, id, "wrong"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if _, err := f.svc.Login(ctx, "VEDARC-NOPE", "x"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials for unknown user, got %v", err)
	}

	if _, err := f.svc.Deactivate(ctx, id, "Paused"); err != nil {
		t.Fatalf("Deactivate: %v", err)
	}
	if _, err := f.sessions.Validate(ctx, g.SessionID, id, domain.RoleStudent); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("deactivation must revoke sessions, got %v", err)
	}
	_, err = f.svc.Login(ctx, id, "s3cret99")
	if got := domain.Message(err); got != "Account has been disabled. Please contact HR for assistance." {
		t.Fatalf("unexpected disabled message %q", got)
	}

	pending := domain.Account{UserID: "VEDARC-PEND", Email: "pend@example.com", Status: domain.StatusPending, PasswordHash: hash, CreatedAt: time.Now()}
	if err := f.store.InsertAccount(ctx, pending); err != nil {
		t.Fatalf("InsertAccount: %v", err)
	}
	_, err = f.svc.Login(ctx, "VEDARC-PEND", "s3cret99")
	if got := domain.Message(err); got != "Account not activated. Please contact HR." {
		t.Fatalf("unexpected pending message %q", got)
	}
}

func TestOperatorLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	hash, _ := auth.HashPassword("manager-pw")
	if err := f.store.CreateOperator(ctx, domain.Operator{Username: "mgr", Role: domain.RoleManager, PasswordHash: hash}); err != nil {
		t.Fatalf("CreateOperator: %v", err)
	}
	g, err := f.svc.OperatorLogin(ctx, "MGR", "manager-pw", domain.RoleManager)
	if err != nil {
		t.Fatalf("OperatorLogin: %v", err)
	}
	if g.UserType != domain.RoleManager || g.Subject != "mgr" {
		t.Fatalf("unexpected grant: %+v", g)
	}
	if _, err := f.svc.OperatorLogin(ctx, "mgr", "manager-pw", domain.RoleAdmin); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("role mismatch must fail, got %v", err)
	}
}

func TestStatisticsAndRepair(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
	f.svc.now = func() time.Time { return now }
	activated := now.Add(-2 * time.Hour)
	old := now.Add(-30 * 24 * time.Hour)
	for _, a := range []domain.Account{
		{UserID: "A1", Email: "a1@x.io", Track: track, Status: domain.StatusActive, ActivatedAt: &activated, CreatedAt: activated},
		{UserID: "A2", Email: "a2@x.io", Track: "Backend", Status: domain.StatusDisabled, ActivatedAt: &old, CreatedAt: old},
		{UserID: "A3", Email: "a3@x.io", Track: track, Status: domain.StatusPending, CreatedAt: old},
		{UserID: "A4", Email: "a4@x.io", Track: track, ActivatedAt: &old, CreatedAt: old},
	} {
		if err := f.store.InsertAccount(ctx, a); err != nil {
			t.Fatalf("InsertAccount: %v", err)
		}
	}
	fixed, err := f.svc.FixInconsistent(ctx)
	if err != nil {
		t.Fatalf("FixInconsistent: %v", err)
	}
	if len(fixed) != 1 || fixed[0] != "A4" {
		t.Fatalf("unexpected repair: %v", fixed)
	}
	st, err := f.svc.Statistics(ctx)
	if err != nil {
		t.Fatalf("Statistics: %v", err)
	}
	if st.TotalRegistrations != 4 || st.ActivatedAccounts != 2 || st.DisabledAccounts != 1 || st.PendingRegistrations != 1 {
		t.Fatalf("unexpected totals: %+v", st)
	}
	if st.TodayActivations != 1 || st.RecentActivations != 1 || st.TrackBreakdown[track] != 3 {
		t.Fatalf("unexpected recency stats: %+v", st)
	}
	if _, err := f.svc.List(ctx, domain.AccountFilter{Status: "Bogus"}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected invalid filter error, got %v", err)
	}
}
