// Package accessibility handles curbside and assisted pickup requests.
package accessibility

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/drfirst/go-rxportal/internal/apperror"
)

const resourceName = "pickup request"

// Window is the preferred pickup time slot
type Window string

const (
	WindowMorning   Window = "morning"
	WindowAfternoon Window = "afternoon"
	WindowEvening   Window = "evening"
)

// Valid reports whether w is a known slot
func (w Window) Valid() bool {
	switch w {
	case WindowMorning, WindowAfternoon, WindowEvening:
		return true
	}
	return false
}

// Label returns the slot's opening hours
func (w Window) Label() string {
	switch w {
	case WindowMorning:
		return "9am - 12pm"
	case WindowAfternoon:
		return "12pm - 5pm"
	case WindowEvening:
		return "5pm - 9pm"
	}
	return ""
}

// Aid is a kind of in-person assistance staff can provide
type Aid string

const (
	AidMobility     Aid = "mobility"
	AidCarrying     Aid = "carrying"
	AidConsultation Aid = "consultation"
)

// Valid reports whether a is a known aid
func (a Aid) Valid() bool {
	switch a {
	case AidMobility, AidCarrying, AidConsultation:
		return true
	}
	return false
}

// Status is the request state
type Status string

const (
	StatusRequested Status = "requested"
	StatusCompleted Status = "completed"
)

// PickupRequest is a curbside pickup booking
type PickupRequest struct {
	ID                 string    `json:"id"`
	PrescriptionNumber string    `json:"prescriptionNumber"`
	VehicleDescription string    `json:"vehicleDescription"`
	PickupWindow       Window    `json:"pickupWindow"`
	NeedsAssistance    bool      `json:"needsAssistance"`
	MobilityAids       []Aid     `json:"mobilityAids"`
	Instructions       string    `json:"instructions"`
	Status             Status    `json:"status"`
	CreatedAt          time.Time `json:"createdAt"`
}

// Draft is the input for a new pickup request
type Draft struct {
	PrescriptionNumber string `json:"prescriptionNumber"`
	VehicleDescription string `json:"vehicleDescription"`
	PickupWindow       Window `json:"pickupWindow"`
	MobilityAids       []Aid  `json:"mobilityAids"`
	Instructions       string `json:"instructions"`
}

// Validate checks required fields
func (d Draft) Validate() error {
	if d.PrescriptionNumber == "" {
		return apperror.Required("prescriptionNumber")
	}
	if d.VehicleDescription == "" {
		return apperror.Required("vehicleDescription")
	}
	if d.PickupWindow == "" {
		return apperror.Required("pickupWindow")
	}
	if !d.PickupWindow.Valid() {
		return apperror.Validation("pickupWindow", "must be morning, afternoon or evening")
	}
	for _, a := range d.MobilityAids {
		if !a.Valid() {
			return apperror.Validation("mobilityAids", "unknown aid "+string(a))
		}
	}
	return nil
}

// Store keeps pickup requests in submission order
type Store struct {
	mu    sync.RWMutex
	items []*PickupRequest
	index map[string]*PickupRequest
	now   func() time.Time
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		index: make(map[string]*PickupRequest),
		now:   time.Now,
	}
}

// Create records a new request
func (s *Store) Create(d Draft) (PickupRequest, error) {
	if err := d.Validate(); err != nil {
		return PickupRequest{}, err
	}

	r := &PickupRequest{
		ID:                 "pickup-" + uuid.NewString(),
		PrescriptionNumber: d.PrescriptionNumber,
		VehicleDescription: d.VehicleDescription,
		PickupWindow:       d.PickupWindow,
		NeedsAssistance:    len(d.MobilityAids) > 0,
		MobilityAids:       append([]Aid{}, d.MobilityAids...),
		Instructions:       d.Instructions,
		Status:             StatusRequested,
		CreatedAt:          s.now().UTC(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, r)
	s.index[r.ID] = r
	return r.copy(), nil
}

// List returns every request, oldest first
func (s *Store) List() []PickupRequest {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]PickupRequest, 0, len(s.items))
	for _, r := range s.items {
		out = append(out, r.copy())
	}
	return out
}

// Complete marks the request as handed over. Completing twice is allowed.
func (s *Store) Complete(id string) (PickupRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.index[id]
	if !ok {
		return PickupRequest{}, apperror.NotFound(resourceName, id)
	}
	r.Status = StatusCompleted
	return r.copy(), nil
}

func (r *PickupRequest) copy() PickupRequest {
	c := *r
	c.MobilityAids = append([]Aid{}, r.MobilityAids...)
	return c
}
