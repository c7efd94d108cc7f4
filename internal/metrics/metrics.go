// Package metrics exposes Prometheus metrics for the API and the security
// core.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts total HTTP requests by method, path, and status
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tulsimart",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by method, path, and status code",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration measures HTTP request duration in seconds
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tulsimart",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	// HTTPRequestsInFlight tracks current in-flight requests
	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "tulsimart",
			Subsystem: "http",
			Name:      "requests_in_flight",
			Help:      "Current number of HTTP requests being processed",
		},
	)
)

var (
	// LoginAttemptsTotal counts login outcomes
	LoginAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tulsimart",
			Subsystem: "auth",
			Name:      "login_attempts_total",
			Help:      "Login attempts by outcome (success, failure, locked, otp_required)",
		},
		[]string{"outcome"},
	)

	// AccountLockoutsTotal counts accounts locked by the failure threshold
	AccountLockoutsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "tulsimart",
			Subsystem: "auth",
			Name:      "account_lockouts_total",
			Help:      "Accounts locked after repeated failed login attempts",
		},
	)

	// OTPIssuedTotal counts issued one-time codes by purpose
	OTPIssuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tulsimart",
			Subsystem: "auth",
			Name:      "otp_issued_total",
			Help:      "One-time codes issued by purpose",
		},
		[]string{"purpose"},
	)

	// SessionsRevokedTotal counts revoked sessions by reason
	SessionsRevokedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tulsimart",
			Subsystem: "auth",
			Name:      "sessions_revoked_total",
			Help:      "Sessions revoked by reason (logout, logout_all, expired)",
		},
		[]string{"reason"},
	)
)

// Middleware records request count, latency, and in-flight gauge per route
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		HTTPRequestsInFlight.Inc()
		defer HTTPRequestsInFlight.Dec()

		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		// The chi route pattern keeps the path label cardinality bounded
		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			path = rctx.RoutePattern()
		}

		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(ww.Status())).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
