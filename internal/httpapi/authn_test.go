package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"vedarc.org/internal/auth"
	"vedarc.org/internal/domain"
	"vedarc.org/internal/session"
	"vedarc.org/internal/store/memory"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequirePermissionAllowsGrantedRole(t *testing.T) {
	handler := RequirePermission(auth.PermSubmissionsReview)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/manager/submissions", nil)
	req = req.WithContext(auth.ContextWithPrincipal(req.Context(), auth.NewPrincipal("manager", domain.RoleManager)))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestRequirePermissionRejectsOtherRole(t *testing.T) {
	handler := RequirePermission(auth.PermGatesApprove)(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/api/admin/certificate-approval", nil)
	req = req.WithContext(auth.ContextWithPrincipal(req.Context(), auth.NewPrincipal("hr", domain.RoleHR)))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
}

func TestRequirePermissionRejectsMissingPrincipal(t *testing.T) {
	handler := RequirePermission(auth.PermStudentSelf)(okHandler())

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/student/weeks", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	if got := rr.Header().Get("WWW-Authenticate"); got == "" {
		t.Fatalf("expected WWW-Authenticate header set")
	}
}

func newAuthAPI(t *testing.T, sessionRequired bool) (*API, *auth.Tokens, *session.Service) {
	t.Helper()
	tokens, err := auth.NewTokens("authn-test-secret", time.Hour)
	if err != nil {
		t.Fatalf("NewTokens: %v", err)
	}
	sessions := session.NewService(memory.New(), session.WithTTL(time.Hour))
	api := New(Services{Tokens: tokens, Sessions: sessions}, ReadyProbe{}, "test", WithSessionRequired(sessionRequired))
	return api, tokens, sessions
}

func TestAuthenticateRejectsMissingToken(t *testing.T) {
	api, _, _ := newAuthAPI(t, false)
	rr := httptest.NewRecorder()
	api.authenticate(okHandler()).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestAuthenticateSessionChecks(t *testing.T) {
	api, tokens, sessions := newAuthAPI(t, true)
	token, _, err := tokens.Generate("VEDARC-1", domain.RoleStudent)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	sess, err := sessions.Create(context.Background(), "VEDARC-1", domain.RoleStudent, token)
	if err != nil {
		t.Fatalf("Create session: %v", err)
	}

	var seen auth.Principal
	handler := api.authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = principalOf(r)
		w.WriteHeader(http.StatusOK)
	}))

	call := func(sid string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(authHeader, "Bearer "+token)
		if sid != "" {
			req.Header.Set(sessionHeader, sid)
		}
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr.Code
	}

	if code := call(""); code != http.StatusUnauthorized {
		t.Fatalf("missing session: expected 401, got %d", code)
	}
	if code := call("nope"); code != http.StatusUnauthorized {
		t.Fatalf("unknown session: expected 401, got %d", code)
	}
	if code := call(sess.SessionID); code != http.StatusOK {
		t.Fatalf("valid session: expected 200, got %d", code)
	}
	if seen.Subject != "VEDARC-1" || seen.SessionID != sess.SessionID || !seen.HasPermission(auth.PermStudentSelf) {
		t.Fatalf("unexpected principal: %+v", seen)
	}

	if err := sessions.Deactivate(context.Background(), sess.SessionID); err != nil {
		t.Fatalf("Deactivate: %v", err)
	}
	if code := call(sess.SessionID); code != http.StatusUnauthorized {
		t.Fatalf("deactivated session: expected 401, got %d", code)
	}
}

func TestAuthenticateRejectsForeignSession(t *testing.T) {
	api, tokens, sessions := newAuthAPI(t, false)
	token, _, _ := tokens.Generate("VEDARC-1", domain.RoleStudent)
	other, err := sessions.Create(context.Background(), "VEDARC-2", domain.RoleStudent, "x")
	if err != nil {
		t.Fatalf("Create session: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(authHeader, "Bearer "+token)
	req.Header.Set(sessionHeader, other.SessionID)
	rr := httptest.NewRecorder()
	api.authenticate(okHandler()).ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestExtractBearerToken(t *testing.T) {
	if _, err := extractBearerToken("Basic abc"); err == nil {
		t.Fatal("expected error for non-bearer scheme")
	}
	tok, err := extractBearerToken("Bearer  abc.def ")
	if err != nil || tok != "abc.def" {
		t.Fatalf("unexpected token %q err=%v", tok, err)
	}
}
