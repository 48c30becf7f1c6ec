package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"vedarc.org/internal/auth"
	"vedarc.org/internal/domain"
)

func (a *API) hrRoutes(r chi.Router) {
	r.With(RequirePermission(auth.PermAccountsRead)).Get("/users", a.listUsers)
	r.With(RequirePermission(auth.PermAccountsRead)).Get("/statistics", a.statistics)
	r.With(RequirePermission(auth.PermAccountsRead)).Get("/pending-registrations", a.pendingRegistrations)
	r.With(RequirePermission(auth.PermPaymentsRead)).Get("/payments", a.listPayments)

	r.Group(func(r chi.Router) {
		r.Use(RequirePermission(auth.PermAccountsLifecycle))
		r.Post("/activate-user", a.accountAction(a.svc.Accounts.Activate, "activated"))
		r.Post("/reactivate-user", a.accountAction(a.svc.Accounts.Reactivate, "enabled"))
		r.Post("/reset-student-password", a.resetPassword)
		r.Post("/deactivate-user", a.deactivateUser)
	})
	r.With(RequirePermission(auth.PermAccountsDelete)).Post("/delete-user", a.deleteUser)

	r.Group(func(r chi.Router) {
		r.Use(RequirePermission(auth.PermAccountsMaintenance))
		r.Post("/fix-inconsistent-users", a.fixInconsistent)
		r.Post("/bulk-enable", a.bulkEnable)
	})
}

func (a *API) listUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	list, err := a.svc.Accounts.List(r.Context(), domain.AccountFilter{
		Status: domain.AccountStatus(q.Get("status")),
		Track:  q.Get("track"),
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": nonNil(list), "total": len(list)})
}

// pendingRegistrations filters the account list by track, signup day and
// status, where status "all" (the default) disables the status filter.
func (a *API) pendingRegistrations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := domain.AccountFilter{Track: q.Get("track")}
	switch status := strings.ToLower(strings.TrimSpace(q.Get("status"))); status {
	case "", "all":
	case "pending", "active", "disabled":
		f.Status = domain.AccountStatus(strings.ToUpper(status[:1]) + status[1:])
	default:
		writeErrorCode(w, r, http.StatusBadRequest, "validation_failed", fmt.Sprintf("Invalid status filter %q", status))
		return
	}
	if raw := strings.TrimSpace(q.Get("date")); raw != "" {
		day, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			writeErrorCode(w, r, http.StatusBadRequest, "validation_failed", "date must be YYYY-MM-DD")
			return
		}
		f.CreatedFrom, f.CreatedBefore = day, day.AddDate(0, 0, 1)
	}
	list, err := a.svc.Accounts.List(r.Context(), f)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"registrations": nonNil(list), "total": len(list)})
}

func (a *API) listPayments(w http.ResponseWriter, r *http.Request) {
	list, err := a.svc.Accounts.Payments(r.Context(), domain.PaymentStatus(r.URL.Query().Get("status")))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"payments": nonNil(list), "total": len(list)})
}

func (a *API) statistics(w http.ResponseWriter, r *http.Request) {
	stats, err := a.svc.Accounts.Statistics(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

type accountFn func(ctx context.Context, userID string) (domain.Account, error)

func (a *API) accountAction(fn accountFn, verb string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req userRequest
		if err := decodeJSON(w, r, &req); err != nil {
			badRequest(w, r, err)
			return
		}
		if err := req.validate(); err != nil {
			writeDomainError(w, r, err)
			return
		}
		acct, err := fn(r.Context(), req.UserID)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"message": fmt.Sprintf("User %s %s successfully. Login credentials have been sent to %s.", acct.UserID, verb, acct.Email),
			"user":    acct,
		})
	}
}

func (a *API) resetPassword(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, r, err)
		return
	}
	if err := req.validate(); err != nil {
		writeDomainError(w, r, err)
		return
	}
	acct, err := a.svc.Accounts.ResetPassword(r.Context(), req.UserID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": fmt.Sprintf("Password reset for %s. New credentials have been sent to %s.", acct.UserID, acct.Email),
		"user":    acct,
	})
}

func (a *API) deactivateUser(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, r, err)
		return
	}
	if err := req.validate(); err != nil {
		writeDomainError(w, r, err)
		return
	}
	acct, err := a.svc.Accounts.Deactivate(r.Context(), req.UserID, req.Reason)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": fmt.Sprintf("User %s disabled successfully", acct.UserID),
		"user":    acct,
	})
}

func (a *API) deleteUser(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, r, err)
		return
	}
	if err := req.validate(); err != nil {
		writeDomainError(w, r, err)
		return
	}
	if err := a.svc.Accounts.Delete(r.Context(), req.UserID, req.Reason); err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": fmt.Sprintf("User %s deleted successfully", req.UserID),
	})
}

func (a *API) fixInconsistent(w http.ResponseWriter, r *http.Request) {
	fixed, err := a.svc.Accounts.FixInconsistent(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":     fmt.Sprintf("Fixed %d users with inconsistent status", len(fixed)),
		"fixed_users": nonNil(fixed),
	})
}

func (a *API) bulkEnable(w http.ResponseWriter, r *http.Request) {
	out, err := a.svc.Accounts.BulkEnable(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": out.Summary(),
		"results": out,
	})
}
