package httpapi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"vedarc.org/internal/account"
	"vedarc.org/internal/auth"
	"vedarc.org/internal/certificate"
	"vedarc.org/internal/domain"
	"vedarc.org/internal/filestore"
	"vedarc.org/internal/gates"
	"vedarc.org/internal/internship"
	"vedarc.org/internal/mail"
	"vedarc.org/internal/notification"
	"vedarc.org/internal/payment"
	"vedarc.org/internal/project"
	"vedarc.org/internal/session"
	"vedarc.org/internal/store/memory"
	"vedarc.org/internal/stream"
	"vedarc.org/internal/submission"
)

const testTrack = "Frontend Development"

type apiClient struct {
	baseURL string
	client  *http.Client
	t       *testing.T
	store   *memory.Store
	gateway *payment.Sandbox
}

type memMailer struct {
	mu   sync.Mutex
	sent []mail.Message
}

func (m *memMailer) Notify(msg mail.Message) {
	m.mu.Lock()
	m.sent = append(m.sent, msg)
	m.mu.Unlock()
}

type pngRenderer struct{}

func (pngRenderer) Render(typ domain.CertificateType, p certificate.Placeholders) ([]byte, error) {
	return []byte("png:" + p.Code), nil
}

type memFiles struct{}

func (memFiles) Store(ctx context.Context, data []byte, meta filestore.Meta) (string, error) {
	return "https://files.example.com/" + meta.Folder + "/" + meta.Filename, nil
}

func newTestAPI(t *testing.T) *apiClient {
	t.Helper()

	st := memory.New()
	tokens, err := auth.NewTokens("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("NewTokens: %v", err)
	}
	gw := payment.NewSandbox("sandbox-secret")
	mailer := &memMailer{}
	live := stream.New()
	notes := notification.NewService(st, notification.WithPublisher(live))
	sessions := session.NewService(st)
	engine := gates.NewEngine(st, notes)

	svc := Services{
		Accounts: account.NewService(st, gw, sessions, tokens, mailer, account.Config{
			UserIDPrefix: "VEDARC", Company: "VEDARC", Amount: 29900, Currency: "INR",
		}),
		Sessions:      sessions,
		Tokens:        tokens,
		Gates:         engine,
		Submissions:   submission.NewService(st, engine, notes),
		Projects:      project.NewService(st, notes),
		Internships:   internship.NewService(st),
		Notifications: notes,
		Live:          live,
		Certificates:  certificate.NewService(st, pngRenderer{}, memFiles{}, notes, mailer, certificate.Config{Company: "VEDARC", CodePrefix: "VED"}),
	}
	api := New(svc, ReadyProbe{Store: st}, "test", WithRateLimit(1000, 1000), WithSessionRequired(true))

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	return &apiClient{
		baseURL: srv.URL,
		client:  srv.Client(),
		t:       t,
		store:   st,
		gateway: gw,
	}
}

// caller carries the headers of a logged-in principal.
type caller map[string]string

func (c *apiClient) do(method, path string, body any, headers map[string]string) *http.Response {
	c.t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
	}
	req, err := http.NewRequest(method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("do request: %v", err)
	}
	return resp
}

func (c *apiClient) post(path string, body any, headers map[string]string) *http.Response {
	c.t.Helper()
	return c.do(http.MethodPost, path, body, headers)
}

func (c *apiClient) get(path string, params url.Values, headers map[string]string) *http.Response {
	c.t.Helper()
	if params != nil {
		path += "?" + params.Encode()
	}
	return c.do(http.MethodGet, path, nil, headers)
}

func (c *apiClient) expect(resp *http.Response, code int) map[string]any {
	c.t.Helper()
	body := decode[map[string]any](c.t, resp)
	if resp.StatusCode != code {
		c.t.Fatalf("%s %s: expected %d, got %d: %v", resp.Request.Method, resp.Request.URL.Path, code, resp.StatusCode, body)
	}
	return body
}

func decode[T any](t *testing.T, r *http.Response) T {
	t.Helper()
	defer r.Body.Close()
	var v T
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func (c *apiClient) operator(username string, role domain.Role) caller {
	c.t.Helper()
	hash, err := auth.HashPassword(username + "-pw")
	if err != nil {
		c.t.Fatalf("HashPassword: %v", err)
	}
	if err := c.store.CreateOperator(context.Background(), domain.Operator{
		Username: username, FullName: username, Role: role, PasswordHash: hash, CreatedAt: time.Now(),
	}); err != nil {
		c.t.Fatalf("CreateOperator: %v", err)
	}
	resp := c.post("/api/"+string(role)+"/login", map[string]string{"username": username, "password": username + "-pw"}, nil)
	return c.sessionFrom(resp)
}

func (c *apiClient) sessionFrom(resp *http.Response) caller {
	c.t.Helper()
	body := c.expect(resp, http.StatusOK)
	token, _ := body["access_token"].(string)
	sid, _ := body["session_id"].(string)
	if token == "" || sid == "" || resp.Header.Get(sessionHeader) != sid {
		c.t.Fatalf("incomplete login grant: %v", body)
	}
	return caller{authHeader: "Bearer " + token, sessionHeader: sid}
}

// enroll registers, pays and logs in a student and returns its user_id.
func (c *apiClient) enroll(email string) (string, caller) {
	c.t.Helper()
	reg := c.expect(c.post("/api/register", domain.Registration{
		FullName: "Asha Rao", Email: email, WhatsApp: "+91 90000 00000", CollegeName: "IIT Madras",
		Track: testTrack, YearOfStudy: "3", PassoutYear: "2027",
	}, nil), http.StatusCreated)
	order, _ := reg["payment_order"].(map[string]any)
	orderID, _ := order["order_id"].(string)
	pid, sig, err := c.gateway.Capture(orderID)
	if err != nil {
		c.t.Fatalf("Capture: %v", err)
	}
	verified := c.expect(c.post("/api/verify-payment", map[string]string{
		"razorpay_order_id": orderID, "razorpay_payment_id": pid, "razorpay_signature": sig,
	}, nil), http.StatusOK)
	userID, _ := verified["user_id"].(string)
	if userID == "" {
		c.t.Fatalf("no user_id in %v", verified)
	}

	hash, err := auth.HashPassword("student-pw")
	if err != nil {
		c.t.Fatalf("HashPassword: %v", err)
	}
	if err := c.store.SetPassword(context.Background(), userID, hash, time.Now()); err != nil {
		c.t.Fatalf("SetPassword: %v", err)
	}
	return userID, c.sessionFrom(c.post("/api/student/login", map[string]string{"user_id": userID, "password": "student-pw"}, nil))
}

func (c *apiClient) seedTrack(mgr caller) string {
	c.t.Helper()
	created := c.expect(c.post("/api/manager/internships", map[string]any{
		"track_name": testTrack, "description": "React and friends", "duration": "8 weeks",
	}, mgr), http.StatusCreated)
	id, _ := created["internship"].(map[string]any)["id"].(string)
	if id == "" {
		c.t.Fatalf("internship id missing: %v", created)
	}
	c.expect(c.post("/api/manager/internships/"+id+"/weeks", map[string]any{
		"week_number": 1, "title": "Foundations",
		"daily_content": []map[string]any{{"day": 1, "title": "HTML"}, {"day": 2, "title": "CSS"}},
	}, mgr), http.StatusCreated)
	return id
}

func TestAPIHealthAndFallbacks(t *testing.T) {
	c := newTestAPI(t)

	health := c.expect(c.get("/healthz", nil, nil), http.StatusOK)
	if health["service"] != serviceName {
		t.Fatalf("unexpected health payload: %v", health)
	}
	c.expect(c.get("/readyz", nil, nil), http.StatusOK)

	missing := c.expect(c.get("/api/nowhere", nil, nil), http.StatusNotFound)
	if missing["request_id"] == "" {
		t.Fatalf("expected request_id in error body: %v", missing)
	}
	c.expect(c.get("/api/student/weeks", nil, nil), http.StatusUnauthorized)
}

func TestAPIInternshipFlow(t *testing.T) {
	c := newTestAPI(t)
	mgr := c.operator("manager.one", domain.RoleManager)
	admin := c.operator("admin.one", domain.RoleAdmin)
	hr := c.operator("hr.one", domain.RoleHR)
	c.seedTrack(mgr)

	public := c.expect(c.get("/api/internships", nil, nil), http.StatusOK)
	if list, _ := public["internships"].([]any); len(list) != 1 {
		t.Fatalf("expected one public internship, got %v", public)
	}

	userID, student := c.enroll("asha@example.com")

	weeks := c.expect(c.get("/api/student/weeks", nil, student), http.StatusOK)
	if list, _ := weeks["weeks"].([]any); len(list) != 1 {
		t.Fatalf("expected one week, got %v", weeks)
	}
	progress := c.expect(c.post("/api/student/daily-completion", map[string]any{"week_number": 1, "day": 1}, student), http.StatusOK)
	if done, _ := progress["completed_days"].([]any); len(done) != 1 {
		t.Fatalf("unexpected daily progress: %v", progress)
	}

	sub := map[string]any{"week": 1, "githubLink": "https://github.com/asha/week1"}
	c.expect(c.post("/api/student/submit-assignment", sub, student), http.StatusCreated)
	dup := c.expect(c.post("/api/student/submit-assignment", sub, student), http.StatusConflict)
	if dup["code"] != "conflict" {
		t.Fatalf("unexpected duplicate payload: %v", dup)
	}
	c.expect(c.post("/api/student/submit-assignment", map[string]any{"week": 2, "githubLink": "https://github.com/asha/week2"}, student), http.StatusBadRequest)

	// manager-only routes stay closed to students and HR
	c.expect(c.get("/api/manager/submissions", nil, student), http.StatusForbidden)
	c.expect(c.get("/api/manager/submissions", nil, hr), http.StatusForbidden)

	listed := c.expect(c.get("/api/manager/submissions", url.Values{"track": {testTrack}, "week": {"1"}}, mgr), http.StatusOK)
	subs, _ := listed["submissions"].([]any)
	if len(subs) != 1 {
		t.Fatalf("expected one submission, got %v", listed)
	}
	subID, _ := subs[0].(map[string]any)["id"].(string)
	c.expect(c.post("/api/manager/submissions/"+subID+"/review", map[string]any{
		"status": "approved", "feedback": "Clean work", "score": 92,
	}, mgr), http.StatusOK)

	certs := c.expect(c.get("/api/student/certificates", nil, student), http.StatusOK)
	if certs["course_completion_percentage"] != float64(100) || certs["certificate_unlocked"] != false {
		t.Fatalf("unexpected gate state: %v", certs)
	}

	gate := map[string]any{"user_id": userID, "certificate_type": "completion"}
	blocked := c.expect(c.post("/api/manager/certificates/unlock", gate, mgr), http.StatusPreconditionRequired)
	if blocked["code"] != "requires_admin_approval" {
		t.Fatalf("unexpected unlock refusal: %v", blocked)
	}
	c.expect(c.post("/api/admin/certificate-approval", gate, hr), http.StatusForbidden)
	c.expect(c.post("/api/admin/certificate-approval", gate, admin), http.StatusOK)
	c.expect(c.post("/api/manager/certificates/unlock", gate, mgr), http.StatusOK)

	issued := c.expect(c.post("/api/admin/certificates/issue", gate, admin), http.StatusCreated)
	code, _ := issued["certificate"].(map[string]any)["certificate_code"].(string)
	if code == "" {
		t.Fatalf("certificate code missing: %v", issued)
	}
	c.expect(c.post("/api/admin/certificates/issue", gate, admin), http.StatusConflict)

	verified := c.expect(c.get("/api/certificate/verify/"+code, nil, nil), http.StatusOK)
	if verified["valid"] != true {
		t.Fatalf("certificate did not verify: %v", verified)
	}
	c.expect(c.get("/api/certificate/verify/VED-NOPE", nil, nil), http.StatusNotFound)

	notes := c.expect(c.get("/api/student/notifications", nil, student), http.StatusOK)
	if list, _ := notes["notifications"].([]any); len(list) < 3 {
		t.Fatalf("expected review, approval and unlock notifications, got %v", notes)
	}
}

func TestAPILoginErrors(t *testing.T) {
	c := newTestAPI(t)
	mgr := c.operator("manager.one", domain.RoleManager)
	c.seedTrack(mgr)
	userID, _ := c.enroll("ravi@example.com")

	missing := c.expect(c.post("/api/student/login", map[string]string{"user_id": userID}, nil), http.StatusBadRequest)
	if missing["error"] != "Missing user_id or password" {
		t.Fatalf("unexpected message: %v", missing)
	}
	bad := c.expect(c.post("/api/student/login", map[string]string{"user_id": userID, "password": "wrong"}, nil), http.StatusUnauthorized)
	if bad["code"] != "invalid_credentials" {
		t.Fatalf("unexpected code: %v", bad)
	}
	// a manager cannot sign in on the admin dashboard
	c.expect(c.post("/api/admin/login", map[string]string{"username": "manager.one", "password": "manager.one-pw"}, nil), http.StatusUnauthorized)
}

func TestAPIAccountLifecycle(t *testing.T) {
	c := newTestAPI(t)
	mgr := c.operator("manager.one", domain.RoleManager)
	hr := c.operator("hr.one", domain.RoleHR)
	admin := c.operator("admin.one", domain.RoleAdmin)
	c.seedTrack(mgr)
	userID, student := c.enroll("meera@example.com")

	c.expect(c.post("/api/hr/deactivate-user", map[string]string{"user_id": userID}, hr), http.StatusBadRequest)
	c.expect(c.post("/api/hr/delete-user", map[string]string{"user_id": userID, "reason": "spam"}, hr), http.StatusConflict)
	c.expect(c.post("/api/hr/deactivate-user", map[string]string{"user_id": userID, "reason": "Policy violation"}, hr), http.StatusOK)

	// the student's session was revoked
	c.expect(c.get("/api/student/weeks", nil, student), http.StatusUnauthorized)
	disabled := c.expect(c.post("/api/student/login", map[string]string{"user_id": userID, "password": "student-pw"}, nil), http.StatusUnauthorized)
	if disabled["error"] != "Account has been disabled. Please contact HR for assistance." {
		t.Fatalf("unexpected disabled message: %v", disabled)
	}

	stats := c.expect(c.get("/api/hr/statistics", nil, hr), http.StatusOK)
	if stats["disabled_accounts"] != float64(1) {
		t.Fatalf("unexpected statistics: %v", stats)
	}

	c.expect(c.post("/api/hr/reactivate-user", map[string]string{"user_id": userID}, hr), http.StatusOK)
	c.expect(c.post("/api/hr/reactivate-user", map[string]string{"user_id": userID}, hr), http.StatusConflict)

	users := c.expect(c.get("/api/admin/users", url.Values{"status": {string(domain.StatusActive)}}, admin), http.StatusOK)
	if users["total"] != float64(1) {
		t.Fatalf("unexpected user listing: %v", users)
	}
}

func TestAPILogout(t *testing.T) {
	c := newTestAPI(t)
	mgr := c.operator("manager.one", domain.RoleManager)

	sessions := c.expect(c.get("/api/sessions", nil, mgr), http.StatusOK)
	if list, _ := sessions["sessions"].([]any); len(list) != 1 {
		t.Fatalf("expected one session, got %v", sessions)
	}
	c.expect(c.post("/api/manager/logout", nil, mgr), http.StatusOK)
	c.expect(c.get("/api/manager/internships", nil, mgr), http.StatusUnauthorized)
}

func TestAPINotificationStream(t *testing.T) {
	c := newTestAPI(t)
	mgr := c.operator("manager.one", domain.RoleManager)
	c.seedTrack(mgr)
	_, student := c.enroll("sse@example.com")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/student/notifications/stream", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	for k, v := range student {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}

	lines := bufio.NewReader(resp.Body)
	first, err := lines.ReadString('\n')
	if err != nil || !strings.HasPrefix(first, ": stream started") {
		t.Fatalf("unexpected preamble %q err=%v", first, err)
	}

	c.expect(c.post("/api/manager/announcements", map[string]string{"title": "Demo day", "content": "Friday 5pm"}, mgr), http.StatusCreated)

	for {
		line, err := lines.ReadString('\n')
		if err != nil {
			t.Fatalf("read stream: %v", err)
		}
		if strings.HasPrefix(line, "event: ") {
			if kind := strings.TrimSpace(strings.TrimPrefix(line, "event: ")); kind != stream.KindAnnouncement {
				t.Fatalf("unexpected event kind %q", kind)
			}
			return
		}
	}
}
