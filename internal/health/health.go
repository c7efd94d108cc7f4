// Package health exposes the health and probe endpoints.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// DependencyStatus reports one backing service
type DependencyStatus struct {
	Status  string `json:"status"`
	Latency string `json:"latency,omitempty"`
	Error   string `json:"error,omitempty"`
}

type check struct {
	name string
	ping func(ctx context.Context) error
}

// Handler serves /health, /ready, and /live
type Handler struct {
	checks  []check
	version string
	timeout time.Duration
	// ready flips to 0 when shutdown begins so load balancers drain first
	ready atomic.Bool
}

// NewHandler creates a health handler probing the database and Redis
func NewHandler(pool *pgxpool.Pool, rdb redis.UniversalClient, version string) *Handler {
	h := &Handler{
		checks: []check{
			{name: "database", ping: pool.Ping},
			{name: "redis", ping: func(ctx context.Context) error { return rdb.Ping(ctx).Err() }},
		},
		version: version,
		timeout: 5 * time.Second,
	}
	h.ready.Store(true)
	return h
}

// SetReady flips the readiness state, used during graceful shutdown
func (h *Handler) SetReady(ready bool) {
	h.ready.Store(ready)
}

func (h *Handler) run(ctx context.Context, c check) DependencyStatus {
	start := time.Now()
	err := c.ping(ctx)
	latency := time.Since(start).String()

	if err != nil {
		return DependencyStatus{Status: "down", Latency: latency, Error: err.Error()}
	}
	return DependencyStatus{Status: "up", Latency: latency}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// Health handles GET /health: every dependency with its ping latency
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	deps := make(map[string]DependencyStatus, len(h.checks))
	status, httpStatus := "healthy", http.StatusOK
	for _, c := range h.checks {
		result := h.run(ctx, c)
		deps[c.name] = result
		if result.Status != "up" {
			status, httpStatus = "degraded", http.StatusServiceUnavailable
		}
	}

	writeJSON(w, httpStatus, map[string]interface{}{
		"status":    status,
		"version":   h.version,
		"services":  deps,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// Readiness handles GET /ready. Not ready during shutdown or while the
// database is unreachable.
func (h *Handler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	ready := h.ready.Load() && h.run(ctx, h.checks[0]).Status == "up"

	httpStatus := http.StatusOK
	if !ready {
		httpStatus = http.StatusServiceUnavailable
	}
	writeJSON(w, httpStatus, map[string]interface{}{
		"ready":     ready,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// Liveness handles GET /live
func (h *Handler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"alive":     true,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
