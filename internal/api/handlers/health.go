package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/drfirst/go-rxportal/pkg/circuitbreaker"
	"github.com/drfirst/go-rxportal/pkg/workerpool"
)

// CheckFunc probes one dependency
type CheckFunc func(ctx context.Context) error

// HealthHandler serves liveness and readiness
type HealthHandler struct {
	service  string
	version  string
	checks   map[string]CheckFunc
	breakers *circuitbreaker.Manager
	pool     *workerpool.Pool
	logger   *zap.Logger
}

// HealthConfig wires the readiness probes. Every field is optional.
type HealthConfig struct {
	Service  string
	Version  string
	Checks   map[string]CheckFunc
	Breakers *circuitbreaker.Manager
	Pool     *workerpool.Pool
}

// NewHealthHandler creates a new handler
func NewHealthHandler(cfg HealthConfig, logger *zap.Logger) *HealthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthHandler{
		service:  cfg.Service,
		version:  cfg.Version,
		checks:   cfg.Checks,
		breakers: cfg.Breakers,
		pool:     cfg.Pool,
		logger:   logger,
	}
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
	Ready    bool                          `json:"ready"`
	Checks   map[string]string             `json:"checks"`
	Breakers []circuitbreaker.HealthStatus `json:"breakers,omitempty"`
	Workers  *workerpool.Stats             `json:"workers,omitempty"`
}

// Ready handles GET /ready
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := readiness{Ready: true, Checks: make(map[string]string, len(h.checks))}

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			h.logger.Warn("readiness check failed", zap.String("check", name), zap.Error(err))
			resp.Checks[name] = err.Error()
			resp.Ready = false
			continue
		}
		resp.Checks[name] = "ok"
	}

	if h.breakers != nil {
		resp.Breakers = h.breakers.Health()
	}
	if h.pool != nil {
		stats := h.pool.Stats()
		resp.Workers = &stats
		if !h.pool.IsHealthy() {
			resp.Checks["workers"] = "degraded"
			resp.Ready = false
		}
	}

	code := http.StatusOK
	if !resp.Ready {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}
