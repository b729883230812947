package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/drfirst/go-draftguard/pkg/circuitbreaker"
)

const readyTimeout = 2 * time.Second

// Check reports whether a dependency is usable
type Check func(ctx context.Context) error

// HealthHandler serves liveness and readiness
type HealthHandler struct {
	service  string
	version  string
	checks   map[string]Check
	breakers *circuitbreaker.Manager
}

// NewHealthHandler creates a health handler. breakers may be nil.
func NewHealthHandler(service, version string, checks map[string]Check, breakers *circuitbreaker.Manager) *HealthHandler {
	return &HealthHandler{service: service, version: version, checks: checks, breakers: breakers}
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": h.service,
		"version": h.version,
	})
}

type readiness struct {
	Status   string                        `json:"status"`
	Checks   map[string]string             `json:"checks"`
	Breakers []circuitbreaker.HealthStatus `json:"breakers,omitempty"`
}

// Ready handles GET /ready. Any failing check makes the service unready;
// open breakers are reported but do not.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	resp := readiness{Status: "ready", Checks: make(map[string]string, len(names))}
	status := http.StatusOK
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			resp.Checks[name] = err.Error()
			resp.Status = "not ready"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}
	if h.breakers != nil {
		resp.Breakers = h.breakers.Health()
	}

	writeJSON(w, status, resp)
}
