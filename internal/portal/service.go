// Package portal coordinates the patient-facing operations: it applies store
// mutations, emits the resulting notifications, re-arms the lifecycle
// simulator and publishes domain events.
package portal

import (
	"context"
	"fmt"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/drfirst/go-rxportal/internal/apperror"
	"github.com/drfirst/go-rxportal/internal/domain/accessibility"
	"github.com/drfirst/go-rxportal/internal/domain/consultation"
	"github.com/drfirst/go-rxportal/internal/domain/disposal"
	"github.com/drfirst/go-rxportal/internal/domain/notification"
	"github.com/drfirst/go-rxportal/internal/domain/prescription"
	"github.com/drfirst/go-rxportal/internal/events"
	"github.com/drfirst/go-rxportal/internal/observability/metrics"
)

// Rearmer schedules lifecycle timers for in-progress prescriptions
type Rearmer interface {
	Arm(ctx context.Context) int
}

// CorrelationFunc extracts a correlation id, usually the request id, from ctx
type CorrelationFunc func(ctx context.Context) string

// Config wires the service's collaborators. The stores are required.
type Config struct {
	Prescriptions *prescription.Store
	Notifications *notification.Store
	Consultations *consultation.Store
	Pickups       *accessibility.Store
	// Lifecycle may be set later with SetLifecycle
	Lifecycle   Rearmer
	Publisher   events.Publisher
	Metrics     *metrics.Metrics
	Correlation CorrelationFunc
}

// Service is the portal's application layer
type Service struct {
	prescriptions *prescription.Store
	notifications *notification.Store
	consultations *consultation.Store
	pickups       *accessibility.Store
	lifecycle     Rearmer
	publisher     events.Publisher
	metrics       *metrics.Metrics
	correlation   CorrelationFunc
	logger        *zap.Logger
	tracer        trace.Tracer
}

// New creates the service and subscribes it to notification creation so every
// notification is published as an event
func New(cfg Config, logger *zap.Logger) (*Service, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Prescriptions == nil || cfg.Notifications == nil {
		return nil, fmt.Errorf("portal service requires prescription and notification stores")
	}
	if cfg.Consultations == nil {
		cfg.Consultations = consultation.NewStore()
	}
	if cfg.Pickups == nil {
		cfg.Pickups = accessibility.NewStore()
	}
	if cfg.Publisher == nil {
		cfg.Publisher = events.Nop
	}

	s := &Service{
		prescriptions: cfg.Prescriptions,
		notifications: cfg.Notifications,
		consultations: cfg.Consultations,
		pickups:       cfg.Pickups,
		lifecycle:     cfg.Lifecycle,
		publisher:     cfg.Publisher,
		metrics:       cfg.Metrics,
		correlation:   cfg.Correlation,
		logger:        logger,
		tracer:        otel.Tracer("portal-service"),
	}
	s.notifications.OnCreate(s.notificationCreated)
	s.refreshUnread()
	return s, nil
}

// SetLifecycle attaches the lifecycle simulator once it has been built
func (s *Service) SetLifecycle(r Rearmer) {
	s.lifecycle = r
}

// UserID returns the acting user
func (s *Service) UserID() string { return s.notifications.UserID() }

// Prescriptions lists prescriptions matching filter
func (s *Service) Prescriptions(filter prescription.Filter) []prescription.Prescription {
	return s.prescriptions.List(filter)
}

// Prescription returns one prescription
func (s *Service) Prescription(id string) (prescription.Prescription, error) {
	return s.prescriptions.Get(id)
}

// CreatePrescription stores a new prescription and schedules its lifecycle
func (s *Service) CreatePrescription(ctx context.Context, d prescription.Draft) (prescription.Prescription, error) {
	ctx, span := s.tracer.Start(ctx, "create_prescription")
	defer span.End()

	rx, err := s.prescriptions.Create(d)
	if err != nil {
		span.RecordError(err)
		return prescription.Prescription{}, err
	}
	span.SetAttributes(attribute.String("prescription_id", rx.ID))

	if s.metrics != nil {
		s.metrics.PrescriptionsCreated.Inc()
	}
	s.rearm(ctx)
	s.publish(ctx, events.AggregatePrescription, rx.ID, events.PrescriptionCreated,
		events.PrescriptionData{Prescription: rx})

	s.logger.Info("prescription created",
		zap.String("id", rx.ID),
		zap.String("status", string(rx.Status)))
	return rx, nil
}

// UpdateStatus sets a prescription's status
func (s *Service) UpdateStatus(ctx context.Context, id string, status prescription.Status) (prescription.Prescription, error) {
	return s.mutate(ctx, "update_status", id, func() (prescription.Prescription, prescription.Status, error) {
		return s.prescriptions.UpdateStatus(id, status)
	})
}

// UpdatePrescription merges patch into a prescription
func (s *Service) UpdatePrescription(ctx context.Context, id string, patch prescription.Patch) (prescription.Prescription, error) {
	return s.mutate(ctx, "update_prescription", id, func() (prescription.Prescription, prescription.Status, error) {
		return s.prescriptions.Update(id, patch)
	})
}

// mutate runs apply and emits the ready notification only on the transition
// into readyForPickup. apply reports the status it replaced so concurrent
// writers never both observe the transition.
func (s *Service) mutate(ctx context.Context, op, id string, apply func() (prescription.Prescription, prescription.Status, error)) (prescription.Prescription, error) {
	ctx, span := s.tracer.Start(ctx, op, trace.WithAttributes(attribute.String("prescription_id", id)))
	defer span.End()

	rx, prev, err := apply()
	if err != nil {
		span.RecordError(err)
		return prescription.Prescription{}, err
	}

	if rx.Status == prescription.StatusReadyForPickup && prev != prescription.StatusReadyForPickup {
		s.notify(ctx, readyDraft(rx))
		s.PrescriptionReady(ctx, rx)
	}
	s.rearm(ctx)
	s.publish(ctx, events.AggregatePrescription, rx.ID, events.PrescriptionUpdated,
		events.PrescriptionData{Prescription: rx, PreviousStatus: prev})
	return rx, nil
}

// RequestRefill consumes a refill. The patient is notified only when the
// request is accepted.
func (s *Service) RequestRefill(ctx context.Context, id string) (prescription.Prescription, error) {
	ctx, span := s.tracer.Start(ctx, "request_refill", trace.WithAttributes(attribute.String("prescription_id", id)))
	defer span.End()

	rx, err := s.prescriptions.RequestRefill(id)
	if err != nil {
		span.RecordError(err)
		if s.metrics != nil {
			s.metrics.RefillsRequested.WithLabelValues("rejected").Inc()
		}
		return prescription.Prescription{}, err
	}
	if s.metrics != nil {
		s.metrics.RefillsRequested.WithLabelValues("accepted").Inc()
	}

	s.notify(ctx, notification.Draft{
		Title:   "Refill Requested",
		Message: fmt.Sprintf("Your refill request for %s has been submitted.", rx.Name),
		Type:    notification.TypeRefill,
		Urgent:  rx.Urgent,
	})
	s.rearm(ctx)
	s.publish(ctx, events.AggregatePrescription, rx.ID, events.PrescriptionRefillRequested,
		events.PrescriptionData{Prescription: rx})

	s.logger.Info("refill requested",
		zap.String("id", rx.ID),
		zap.Int("refills_remaining", rx.RefillsRemaining))
	return rx, nil
}

// Pickup records that the patient is on the way to the counter
func (s *Service) Pickup(ctx context.Context, id string) (prescription.Prescription, error) {
	ctx, span := s.tracer.Start(ctx, "initiate_pickup", trace.WithAttributes(attribute.String("prescription_id", id)))
	defer span.End()

	rx, err := s.prescriptions.Get(id)
	if err != nil {
		return prescription.Prescription{}, err
	}
	if !rx.CanPickup() {
		return prescription.Prescription{}, apperror.Validation("status",
			"prescription is not ready for pickup (status "+string(rx.Status)+")")
	}

	s.notify(ctx, notification.Draft{
		Title:   "Pickup Initiated",
		Message: fmt.Sprintf("You've initiated pickup for %s. Please proceed to the pharmacy counter.", rx.Name),
		Type:    notification.TypePrescription,
	})
	s.publish(ctx, events.AggregatePrescription, rx.ID, events.PrescriptionPickupInitiated,
		events.PrescriptionData{Prescription: rx})
	return rx, nil
}

// PrescriptionReady records a prescription reaching ready for pickup. The
// lifecycle simulator calls it after emitting its own notification.
func (s *Service) PrescriptionReady(ctx context.Context, rx prescription.Prescription) {
	if s.metrics != nil {
		s.metrics.PrescriptionsReady.Inc()
	}
	s.publish(ctx, events.AggregatePrescription, rx.ID, events.PrescriptionReady,
		events.PrescriptionData{Prescription: rx, PreviousStatus: prescription.StatusInProgress})
}

func readyDraft(rx prescription.Prescription) notification.Draft {
	return notification.Draft{
		Title:   "Prescription Ready",
		Message: fmt.Sprintf("Your %s is now ready for pickup.", rx.Name),
		Type:    notification.TypePrescription,
		Urgent:  rx.Urgent,
	}
}

// Notifications lists the inbox with its unread count
func (s *Service) Notifications(filter notification.Filter) ([]notification.Notification, int) {
	return s.notifications.List(filter), s.notifications.UnreadCount()
}

// CreateNotification adds a notification supplied by a client
func (s *Service) CreateNotification(ctx context.Context, d notification.Draft) (notification.Notification, error) {
	return s.notifications.Create(ctx, d)
}

// MarkRead flags one notification as read
func (s *Service) MarkRead(id string) (notification.Notification, error) {
	n, err := s.notifications.MarkRead(id)
	if err != nil {
		return notification.Notification{}, err
	}
	s.refreshUnread()
	return n, nil
}

// MarkAllRead flags every notification as read
func (s *Service) MarkAllRead() int {
	changed := s.notifications.MarkAllRead()
	s.refreshUnread()
	return changed
}

// UnreadCount returns the number of unread notifications
func (s *Service) UnreadCount() int { return s.notifications.UnreadCount() }

// Preferences returns the notification preferences
func (s *Service) Preferences() notification.Preferences { return s.notifications.Preferences() }

// SetPreferences replaces the notification preferences
func (s *Service) SetPreferences(p notification.Preferences) notification.Preferences {
	return s.notifications.SetPreferences(p)
}

// Consultations lists the acting user's consultations
func (s *Service) Consultations(filter consultation.Filter) []consultation.Consultation {
	return s.consultations.List(s.UserID(), filter)
}

// BookConsultation schedules a consultation and tells the patient
func (s *Service) BookConsultation(ctx context.Context, d consultation.Draft) (consultation.Consultation, error) {
	if d.UserID == "" {
		d.UserID = s.UserID()
	}
	c, err := s.consultations.Create(d)
	if err != nil {
		return consultation.Consultation{}, err
	}

	s.notify(ctx, notification.Draft{
		Title: "Consultation Scheduled",
		Message: fmt.Sprintf("Your %s consultation with %s is booked for %s.",
			c.Type, c.Provider, c.ScheduledTime.Format("Jan 2, 2006 3:04 PM")),
		Type: notification.TypeAppointment,
	})
	s.publish(ctx, events.AggregateConsultation, c.ID, events.ConsultationBooked,
		events.ConsultationData{Consultation: c})
	return c, nil
}

// UpdateConsultation merges patch into a consultation
func (s *Service) UpdateConsultation(id string, patch consultation.Patch) (consultation.Consultation, error) {
	return s.consultations.Update(id, patch)
}

// PickupRequests lists curbside pickup requests
func (s *Service) PickupRequests() []accessibility.PickupRequest {
	return s.pickups.List()
}

// RequestCurbsidePickup books a curbside pickup and confirms it to the patient
func (s *Service) RequestCurbsidePickup(ctx context.Context, d accessibility.Draft) (accessibility.PickupRequest, error) {
	req, err := s.pickups.Create(d)
	if err != nil {
		return accessibility.PickupRequest{}, err
	}

	msg := fmt.Sprintf("Curbside pickup for prescription %s is scheduled for the %s window.",
		req.PrescriptionNumber, req.PickupWindow.Label())
	if req.NeedsAssistance {
		msg += " A staff member will assist you."
	}
	s.notify(ctx, notification.Draft{
		Title:   "Curbside Pickup Requested",
		Message: msg,
		Type:    notification.TypeSystem,
	})
	s.publish(ctx, events.AggregatePickupRequest, req.ID, events.PickupRequested,
		events.PickupRequestData{Request: req})
	return req, nil
}

// CompletePickup marks a curbside request as handed over
func (s *Service) CompletePickup(id string) (accessibility.PickupRequest, error) {
	return s.pickups.Complete(id)
}

// SendDisposalReminder emits the expired-medication reminder
func (s *Service) SendDisposalReminder(ctx context.Context) (notification.Notification, error) {
	return s.notifications.Create(ctx, notification.Draft{
		Title:   "Disposal Reminder",
		Message: disposal.ReminderMessage,
		Type:    notification.TypeDisposal,
	})
}

// notify creates a notification produced as a side effect of an operation
// that has already committed, so a failure is logged rather than returned
func (s *Service) notify(ctx context.Context, d notification.Draft) {
	if _, err := s.notifications.Create(ctx, d); err != nil {
		s.logger.Error("failed to create notification",
			zap.String("title", d.Title),
			zap.Error(err))
	}
}

func (s *Service) notificationCreated(ctx context.Context, n notification.Notification, prefs notification.Preferences) {
	if s.metrics != nil {
		s.metrics.NotificationsCreated.WithLabelValues(string(n.Type), strconv.FormatBool(n.Urgent)).Inc()
	}
	s.refreshUnread()
	s.publish(ctx, events.AggregateNotification, n.ID, events.NotificationCreated,
		events.NotificationCreatedData{Notification: n, Preferences: prefs})
}

func (s *Service) refreshUnread() {
	if s.metrics != nil {
		s.metrics.UnreadNotifications.Set(float64(s.notifications.UnreadCount()))
	}
}

func (s *Service) rearm(ctx context.Context) {
	if s.lifecycle == nil {
		return
	}
	if n := s.lifecycle.Arm(ctx); n > 0 {
		s.logger.Debug("lifecycle timers armed", zap.Int("count", n))
	}
}

func (s *Service) publish(ctx context.Context, aggregateType, aggregateID string, t events.Type, data any) {
	e, err := events.New(aggregateType, aggregateID, t, data)
	if err != nil {
		s.logger.Error("failed to build event", zap.String("type", string(t)), zap.Error(err))
		return
	}
	if s.correlation != nil {
		e.WithCorrelation(s.correlation(ctx))
	}

	result := "ok"
	if err := s.publisher.Publish(ctx, e); err != nil {
		result = "error"
		s.logger.Warn("event publication failed",
			zap.String("event_id", e.ID),
			zap.String("type", string(t)),
			zap.Error(err))
	}
	if s.metrics != nil {
		s.metrics.EventsPublished.WithLabelValues(string(t), result).Inc()
	}
}
