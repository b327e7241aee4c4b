// Package metrics provides Prometheus metrics for the patient portal.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application metrics
type Metrics struct {
	PrescriptionsCreated prometheus.Counter
	RefillsRequested     *prometheus.CounterVec
	PrescriptionsReady   prometheus.Counter
	NotificationsCreated *prometheus.CounterVec
	UnreadNotifications  prometheus.Gauge
	QueuePosition        prometheus.Gauge
	LifecyclePending     prometheus.Gauge
	HTTPDuration         *prometheus.HistogramVec
	EventsPublished      *prometheus.CounterVec
	DeliveriesSent       *prometheus.CounterVec
	OutboxPending        prometheus.Gauge
	CircuitBreakerState  *prometheus.GaugeVec

	gatherer prometheus.Gatherer
}

// New creates the metrics and registers them on reg. A nil reg uses a fresh
// registry with the Go and process collectors.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	m := &Metrics{
		PrescriptionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rxportal_prescriptions_created_total",
			Help: "Total prescriptions created",
		}),
		RefillsRequested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rxportal_refills_requested_total",
			Help: "Refill requests by outcome",
		}, []string{"outcome"}),
		PrescriptionsReady: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rxportal_prescriptions_ready_total",
			Help: "Prescriptions that reached ready for pickup",
		}),
		NotificationsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rxportal_notifications_created_total",
			Help: "Notifications created by type",
		}, []string{"type", "urgent"}),
		UnreadNotifications: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rxportal_notifications_unread",
			Help: "Unread notifications for the acting user",
		}),
		QueuePosition: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rxportal_queue_position",
			Help: "Current pickup queue position",
		}),
		LifecyclePending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rxportal_lifecycle_pending_timers",
			Help: "Prescriptions with a scheduled ready timer",
		}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rxportal_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"method", "route", "status"}),
		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rxportal_events_published_total",
			Help: "Domain events handed to the publisher by type and result",
		}, []string{"type", "result"}),
		DeliveriesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rxportal_notification_deliveries_total",
			Help: "Notification deliveries by channel and result",
		}, []string{"channel", "result"}),
		OutboxPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rxportal_outbox_pending_entries",
			Help: "Pending outbox entries",
		}),
		CircuitBreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "rxportal_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		}, []string{"name"}),
		gatherer: reg,
	}

	reg.MustRegister(
		m.PrescriptionsCreated,
		m.RefillsRequested,
		m.PrescriptionsReady,
		m.NotificationsCreated,
		m.UnreadNotifications,
		m.QueuePosition,
		m.LifecyclePending,
		m.HTTPDuration,
		m.EventsPublished,
		m.DeliveriesSent,
		m.OutboxPending,
		m.CircuitBreakerState,
	)

	return m
}

// Handler returns the Prometheus HTTP handler for this registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// BreakerStateChanged records a circuit breaker transition
func (m *Metrics) BreakerStateChanged(name string, state int) {
	m.CircuitBreakerState.WithLabelValues(name).Set(float64(state))
}
