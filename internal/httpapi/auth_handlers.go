package httpapi

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"vedarc.org/internal/domain"
)

const (
	roleHR      = domain.RoleHR
	roleManager = domain.RoleManager
	roleAdmin   = domain.RoleAdmin
)

type studentLoginRequest struct {
	UserID   string `json:"user_id"`
	Password string `json:"password"`
}

type operatorLoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (a *API) studentLogin(w http.ResponseWriter, r *http.Request) {
	var req studentLoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, r, err)
		return
	}
	if strings.TrimSpace(req.UserID) == "" || req.Password == "" {
		writeErrorCode(w, r, http.StatusBadRequest, "validation_failed", "Missing user_id or password")
		return
	}
	grant, err := a.svc.Accounts.Login(r.Context(), req.UserID, req.Password)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.Header().Set(sessionHeader, grant.SessionID)
	writeJSON(w, http.StatusOK, grant)
}

func (a *API) operatorLogin(role domain.Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req operatorLoginRequest
		if err := decodeJSON(w, r, &req); err != nil {
			badRequest(w, r, err)
			return
		}
		if strings.TrimSpace(req.Username) == "" || req.Password == "" {
			writeErrorCode(w, r, http.StatusBadRequest, "validation_failed", "Missing username or password")
			return
		}
		grant, err := a.svc.Accounts.OperatorLogin(r.Context(), req.Username, req.Password, role)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		w.Header().Set(sessionHeader, grant.SessionID)
		writeJSON(w, http.StatusOK, grant)
	}
}

func (a *API) sessionRoutes(r chi.Router) {
	for _, role := range []string{"student", "hr", "manager", "admin"} {
		r.Post("/"+role+"/logout", a.logout)
	}
	r.Get("/sessions", a.listSessions)
}

// logout deactivates the session named by X-Session-ID. Without one the
// stateless token simply expires on its own.
func (a *API) logout(w http.ResponseWriter, r *http.Request) {
	sid := principalOf(r).SessionID
	if sid == "" {
		sid = strings.TrimSpace(r.Header.Get(sessionHeader))
	}
	if sid != "" {
		if err := a.svc.Sessions.Deactivate(r.Context(), sid); err != nil {
			writeDomainError(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Logged out successfully"})
}

func (a *API) listSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := a.svc.Sessions.List(r.Context(), principalOf(r).Subject)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": nonNil(sessions)})
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
