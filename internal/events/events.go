// Package events defines the outbound domain events emitted by the portal and
// the Publisher abstraction used to ship them.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/drfirst/go-rxportal/internal/domain/accessibility"
	"github.com/drfirst/go-rxportal/internal/domain/consultation"
	"github.com/drfirst/go-rxportal/internal/domain/notification"
	"github.com/drfirst/go-rxportal/internal/domain/prescription"
)

// Type represents the type of domain event
type Type string

const (
	PrescriptionCreated         Type = "prescription.created"
	PrescriptionUpdated         Type = "prescription.updated"
	PrescriptionRefillRequested Type = "prescription.refill_requested"
	PrescriptionReady           Type = "prescription.ready"
	PrescriptionPickupInitiated Type = "prescription.pickup_initiated"
	NotificationCreated         Type = "notification.created"
	ConsultationBooked          Type = "consultation.booked"
	PickupRequested             Type = "accessibility.pickup_requested"
)

// Aggregate types
const (
	AggregatePrescription  = "Prescription"
	AggregateNotification  = "Notification"
	AggregateConsultation  = "Consultation"
	AggregatePickupRequest = "PickupRequest"
)

// Topic names
const (
	TopicPrescriptionEvents = "portal.prescription.events"
	TopicNotificationEvents = "portal.notification.events"
	TopicActivityEvents     = "portal.activity.events"
	TopicDeadLetter         = "portal.dead.letter"
)

// Topic returns the stream an event of this type is written to
func (t Type) Topic() string {
	switch t {
	case NotificationCreated:
		return TopicNotificationEvents
	case ConsultationBooked, PickupRequested:
		return TopicActivityEvents
	default:
		return TopicPrescriptionEvents
	}
}

// Event is an outbound domain event
type Event struct {
	ID            string          `json:"id"`
	Type          Type            `json:"type"`
	AggregateID   string          `json:"aggregateId"`
	AggregateType string          `json:"aggregateType"`
	Payload       json.RawMessage `json:"payload"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlationId,omitempty"`
}

// New creates an event with a fresh id
func New(aggregateType, aggregateID string, t Type, data any) (*Event, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", t, err)
	}
	return &Event{
		ID:            uuid.New().String(),
		Type:          t,
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		Payload:       payload,
		Timestamp:     time.Now().UTC(),
	}, nil
}

// WithCorrelation sets the correlation id, usually the HTTP request id
func (e *Event) WithCorrelation(id string) *Event {
	e.CorrelationID = id
	return e
}

// Decode unmarshals the payload into v
func (e *Event) Decode(v any) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return nil
}

// PrescriptionData is the payload of prescription events
type PrescriptionData struct {
	Prescription   prescription.Prescription `json:"prescription"`
	PreviousStatus prescription.Status       `json:"previousStatus,omitempty"`
}

// NotificationCreatedData is the payload of notification.created. It carries
// the preferences in force at creation so relays can route without calling back.
type NotificationCreatedData struct {
	Notification notification.Notification `json:"notification"`
	Preferences  notification.Preferences  `json:"preferences"`
}

// ConsultationData is the payload of consultation events
type ConsultationData struct {
	Consultation consultation.Consultation `json:"consultation"`
}

// PickupRequestData is the payload of accessibility events
type PickupRequestData struct {
	Request accessibility.PickupRequest `json:"request"`
}

// Publisher ships events to a downstream
type Publisher interface {
	Publish(ctx context.Context, e *Event) error
}

// PublisherFunc adapts a function to Publisher
type PublisherFunc func(ctx context.Context, e *Event) error

// Publish calls f
func (f PublisherFunc) Publish(ctx context.Context, e *Event) error { return f(ctx, e) }

// Nop discards every event
var Nop Publisher = PublisherFunc(func(context.Context, *Event) error { return nil })

type multi []Publisher

// Multi fans an event out to every publisher and joins their errors
func Multi(publishers ...Publisher) Publisher {
	return multi(publishers)
}

func (m multi) Publish(ctx context.Context, e *Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
