package obs

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Общие HTTP-метрики
var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets, // [0.005..10]
		},
		[]string{"method", "path", "status"},
	)
)

// Доменные метрики
var (
	AccountTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "account_transitions_total",
			Help: "Student account status transitions.",
		},
		[]string{"transition"},
	)

	PaymentConfirmations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_confirmations_total",
			Help: "Payment confirmation attempts by outcome.",
		},
		[]string{"outcome"},
	)

	GateUnlocks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gate_unlocks_total",
			Help: "Certificate and LOR unlock attempts by outcome.",
		},
		[]string{"gate", "outcome"},
	)

	SessionsSwept = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sessions_swept_total",
		Help: "Sessions deactivated by the expiry sweep.",
	})

	MailDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mail_deliveries_total",
			Help: "Outbound email attempts by outcome.",
		},
		[]string{"outcome"},
	)

	JobRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "job_runs_total",
			Help: "Scheduled job executions by outcome.",
		},
		[]string{"job", "outcome"},
	)
)

var initOnce sync.Once

// Регистрация метрик в default-регистре.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			httpInFlight, httpRequestsTotal, httpRequestDuration,
			AccountTransitions, PaymentConfirmations, GateUnlocks, SessionsSwept, MailDeliveries, JobRuns,
		)
	})
}

// Хэндлер Prometheus.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Обёртка для измерения RPS/latency/в полёте.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

// CanonicalPath folds identifier segments so metric label cardinality stays bounded.
func CanonicalPath(raw string) string {
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		raw = raw[:i]
	}
	if raw == "" || raw == "/" {
		return "/"
	}
	parts := strings.Split(raw, "/")
	for i, p := range parts {
		if looksLikeID(p) {
			parts[i] = ":id"
		}
	}
	return strings.Join(parts, "/")
}

func looksLikeID(seg string) bool {
	if seg == "" {
		return false
	}
	if len(seg) >= 20 {
		return true
	}
	return strings.ContainsAny(seg, "0123456789")
}

// statusWriter — локальная копия, чтобы знать код ответа.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }
