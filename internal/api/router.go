// Package api assembles the portal's HTTP surface.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/drfirst/go-rxportal/internal/api/handlers"
	"github.com/drfirst/go-rxportal/internal/api/middleware"
	"github.com/drfirst/go-rxportal/internal/delivery"
	"github.com/drfirst/go-rxportal/internal/domain/queue"
	"github.com/drfirst/go-rxportal/internal/observability/metrics"
	"github.com/drfirst/go-rxportal/internal/portal"
)

// Config holds what the router needs. Metrics and Alerts are optional.
type Config struct {
	ServiceName string
	ActingUser  string
	APIKeys     []string
	Service     *portal.Service
	Queue       *queue.Simulator
	Alerts      *delivery.ToastFeed
	Metrics     *metrics.Metrics
	Health      handlers.HealthConfig
}

// NewRouter builds the chi router with global middleware, probes and the
// /api/v1 routes
func NewRouter(cfg Config, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "portal-api"
	}
	if cfg.Alerts == nil {
		cfg.Alerts = delivery.NewToastFeed(0)
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS)
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logger(logger))
	if cfg.Metrics != nil {
		r.Use(middleware.Metrics(cfg.Metrics))
	}
	r.Use(middleware.Tracing(cfg.ServiceName))

	// Probes (no auth)
	health := handlers.NewHealthHandler(cfg.Health, logger)
	r.Get("/health", health.Health)
	r.Get("/ready", health.Ready)
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(cfg.APIKeys))
		r.Use(middleware.ActingUser(cfg.ActingUser))

		notifications := handlers.NewNotificationHandler(cfg.Service, logger)
		r.Mount("/prescriptions", handlers.NewPrescriptionHandler(cfg.Service, logger).Routes())
		r.Mount("/notifications", notifications.Routes())
		r.Mount("/preferences/notifications", notifications.PreferenceRoutes())
		r.Mount("/consultations", handlers.NewConsultationHandler(cfg.Service, logger).Routes())
		r.Mount("/queue", handlers.NewQueueHandler(cfg.Queue, logger).Routes())
		r.Mount("/accessibility", handlers.NewAccessibilityHandler(cfg.Service, logger).Routes())
		r.Mount("/disposal", handlers.NewDisposalHandler(cfg.Service, logger).Routes())
		r.Get("/alerts", handlers.NewAlertHandler(cfg.Alerts).Drain)
	})

	return r
}
