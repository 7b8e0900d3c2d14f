package handlers

import (
	"context"
	"net/http"
	"time"
)

// ReadinessProbe reports whether a dependency is ready to serve.
type ReadinessProbe func(ctx context.Context) error

// HealthHandlers serves liveness and readiness endpoints.
type HealthHandlers struct {
	started time.Time
	probe   ReadinessProbe
}

// NewHealthHandlers constructs health handlers. A nil probe means readiness
// always succeeds.
func NewHealthHandlers(probe ReadinessProbe) *HealthHandlers {
	return &HealthHandlers{started: time.Now(), probe: probe}
}

// Healthz responds as long as the process is running.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"uptime":    time.Since(h.started).String(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// Readyz verifies the session store is reachable before reporting ready.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	if h.probe != nil {
		if err := h.probe(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}
