package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"vedarc.org/internal/account"
	"vedarc.org/internal/auth"
	"vedarc.org/internal/certificate"
	"vedarc.org/internal/gates"
	"vedarc.org/internal/internship"
	"vedarc.org/internal/notification"
	"vedarc.org/internal/obs"
	"vedarc.org/internal/project"
	"vedarc.org/internal/session"
	"vedarc.org/internal/stream"
	"vedarc.org/internal/submission"
)

const serviceName = "vedarc-api"

type pinger interface {
	Ping(ctx context.Context) error
}

// ReadyProbe: проверка готовности: БД и (опционально) Redis.
type ReadyProbe struct {
	Store pinger
	Cache pinger
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.Store != nil {
		if err := rp.Store.Ping(ctx); err != nil {
			return err
		}
	}
	if rp.Cache != nil {
		return rp.Cache.Ping(ctx)
	}
	return nil
}

// Services bundles the domain services the handlers call into.
type Services struct {
	Accounts      *account.Service
	Sessions      *session.Service
	Tokens        *auth.Tokens
	Gates         *gates.Engine
	Submissions   *submission.Service
	Projects      *project.Service
	Internships   *internship.Service
	Notifications *notification.Service
	Certificates  *certificate.Service
	Live          *stream.Hub
}

// API — HTTP слой.
type API struct {
	svc             Services
	readyProbe      ReadyProbe
	version         string
	sessionRequired bool
	rateBurst       int
	ratePerSec      int
	maxBodyBytes    int64
	files           http.Handler
}

type Option func(*API)

// WithRateLimit sets the per-client token bucket.
func WithRateLimit(burst, perSecond int) Option {
	return func(a *API) {
		if burst > 0 && perSecond > 0 {
			a.rateBurst, a.ratePerSec = burst, perSecond
		}
	}
}

// WithSessionRequired makes X-Session-ID mandatory on authenticated routes.
func WithSessionRequired(required bool) Option {
	return func(a *API) { a.sessionRequired = required }
}

// WithFiles serves stored documents under /files/.
func WithFiles(h http.Handler) Option {
	return func(a *API) { a.files = h }
}

func New(svc Services, rp ReadyProbe, version string, opts ...Option) *API {
	a := &API{
		svc:          svc,
		readyProbe:   rp,
		version:      version,
		rateBurst:    40,
		ratePerSec:   20,
		maxBodyBytes: 1 << 20,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Handler собирает chi-роутер со всей цепочкой middleware.
func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(RequestID, LoggingJSON, SecurityHeaders, CORS, obs.Instrument)
	r.Use(func(next http.Handler) http.Handler { return RateLimit(next, a.rateBurst, a.ratePerSec) })
	r.Use(func(next http.Handler) http.Handler { return MaxBodyBytes(next, a.maxBodyBytes) })

	// health/ready/info
	r.Get("/healthz", a.Healthz)
	r.Get("/readyz", a.Ready)
	r.Get("/v1/info", a.Info)
	r.Handle("/metrics", obs.Handler())
	if a.files != nil {
		r.Handle("/files/*", http.StripPrefix("/files/", a.files))
	}

	r.Route("/api", func(r chi.Router) {
		a.publicRoutes(r)
		r.Group(func(r chi.Router) {
			r.Use(a.authenticate)
			a.sessionRoutes(r)
			r.Route("/student", a.studentRoutes)
			r.Route("/hr", a.hrRoutes)
			r.Route("/manager", a.managerRoutes)
			r.Route("/admin", a.adminRoutes)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeErrorCode(w, r, http.StatusNotFound, "not_found", "resource not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeErrorCode(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})
	return r
}

func (a *API) publicRoutes(r chi.Router) {
	r.Post("/register", a.register)
	r.Post("/verify-payment", a.verifyPayment)
	r.Post("/payment/webhook", a.paymentWebhook)
	r.Post("/razorpay-webhook", a.paymentWebhook)
	r.Get("/internships", a.publicInternships)
	r.Get("/certificate/verify/{code}", a.verifyCertificate)

	r.Post("/student/login", a.studentLogin)
	r.Post("/hr/login", a.operatorLogin(roleHR))
	r.Post("/manager/login", a.operatorLogin(roleManager))
	r.Post("/admin/login", a.operatorLogin(roleAdmin))
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    serviceName,
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
