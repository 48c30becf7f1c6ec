package httpapi

import (
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"vedarc.org/internal/domain"
)

// verifyPaymentRequest accepts the checkout callback fields under either the
// Razorpay names or the provider-neutral ones.
type verifyPaymentRequest struct {
	RazorpayOrderID   string `json:"razorpay_order_id"`
	RazorpayPaymentID string `json:"razorpay_payment_id"`
	RazorpaySignature string `json:"razorpay_signature"`
	OrderID           string `json:"order_id"`
	PaymentID         string `json:"payment_id"`
	Signature         string `json:"signature"`
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func (a *API) register(w http.ResponseWriter, r *http.Request) {
	var req domain.Registration
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, r, err)
		return
	}
	res, err := a.svc.Accounts.Register(r.Context(), req)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"success":       true,
		"message":       "Please complete the payment to complete your registration.",
		"payment_order": res.Order,
		"email":         res.Email,
	})
}

func (a *API) verifyPayment(w http.ResponseWriter, r *http.Request) {
	var req verifyPaymentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, r, err)
		return
	}
	conf, err := a.svc.Accounts.ConfirmPayment(r.Context(),
		firstNonEmpty(req.RazorpayOrderID, req.OrderID),
		firstNonEmpty(req.RazorpayPaymentID, req.PaymentID),
		firstNonEmpty(req.RazorpaySignature, req.Signature),
	)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	msg := "Payment verified. Your login credentials have been sent to your email."
	if conf.Replayed {
		msg = "Payment already verified. Your login credentials were sent to your email."
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"message":  msg,
		"user_id":  conf.UserID,
		"replayed": conf.Replayed,
	})
}

// paymentWebhook reads the raw body because the signature covers its bytes.
func (a *API) paymentWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		badRequest(w, r, err)
		return
	}
	signature := firstNonEmpty(r.Header.Get("X-Razorpay-Signature"), r.Header.Get("X-Signature"))
	conf, err := a.svc.Accounts.HandleWebhook(r.Context(), payload, signature)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"user_id":  conf.UserID,
		"replayed": conf.Replayed,
		"ignored":  conf.Ignored,
	})
}

func (a *API) publicInternships(w http.ResponseWriter, r *http.Request) {
	list, err := a.svc.Internships.List(r.Context(), true)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"internships": nonNil(list)})
}

func (a *API) verifyCertificate(w http.ResponseWriter, r *http.Request) {
	cert, err := a.svc.Certificates.Verify(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"valid":       true,
		"certificate": cert,
	})
}
