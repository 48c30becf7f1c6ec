package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"vedarc.org/internal/auth"
	"vedarc.org/internal/domain"
)

func (a *API) adminRoutes(r chi.Router) {
	r.With(RequirePermission(auth.PermAccountsRead)).Get("/users", a.listUsers)
	r.With(RequirePermission(auth.PermAccountsDelete)).Post("/delete-user", a.deleteUser)

	r.Group(func(r chi.Router) {
		r.Use(RequirePermission(auth.PermGatesApprove))
		r.Post("/certificate-approval", a.certificateApproval)
		r.Post("/certificate-approval/bulk", a.bulkCertificateApproval)
	})
	r.With(RequirePermission(auth.PermCertificatesIssue)).Post("/certificates/issue", a.issueCertificate)
	r.With(RequirePermission(auth.PermPaymentsRead)).Get("/payments", a.listPayments)

	r.Group(func(r chi.Router) {
		r.Use(RequirePermission(auth.PermSubmissionsReview))
		r.Get("/submissions", a.listSubmissions)
		r.Put("/submissions/{id}", a.reviewSubmission)
		r.Post("/submissions/{id}/review", a.reviewSubmission)
	})
}

func (a *API) certificateApproval(w http.ResponseWriter, r *http.Request) {
	var req gateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, r, err)
		return
	}
	typ, err := req.certificateType()
	if err == nil && strings.TrimSpace(req.UserID) == "" {
		err = domain.Validationf("Missing user_id or certificate_type")
	}
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	approved := req.Approved == nil || *req.Approved
	acct, err := a.svc.Gates.AdminApprove(r.Context(), req.UserID, typ, approved)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	verb := "approved"
	if !approved {
		verb = "revoked"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": fmt.Sprintf("%s %s for %s", typ.DisplayName(), verb, acct.UserID),
		"user":    acct,
	})
}

func (a *API) bulkCertificateApproval(w http.ResponseWriter, r *http.Request) {
	var req gateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, r, err)
		return
	}
	typ, err := req.certificateType()
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	approved := req.Approved == nil || *req.Approved
	res, err := a.svc.Gates.BulkApprove(r.Context(), req.UserIDs, typ, approved)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": res.Summary("approval"), "results": res})
}

func (a *API) issueCertificate(w http.ResponseWriter, r *http.Request) {
	var req gateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, r, err)
		return
	}
	typ, err := req.certificateType()
	if err == nil && strings.TrimSpace(req.UserID) == "" {
		err = domain.Validationf("Missing user_id or certificate_type")
	}
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	cert, err := a.svc.Certificates.Issue(r.Context(), req.UserID, typ)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"message":     fmt.Sprintf("%s issued", typ.DisplayName()),
		"certificate": cert,
	})
}
