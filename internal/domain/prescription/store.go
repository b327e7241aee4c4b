package prescription

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/drfirst/go-rxportal/internal/apperror"
)

const resourceName = "prescription"

// Store holds the session's prescriptions in insertion order.
// All methods are safe for concurrent use and return copies.
type Store struct {
	mu    sync.RWMutex
	items []*Prescription
	index map[string]*Prescription
	now   func() time.Time
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		index: make(map[string]*Prescription),
		now:   time.Now,
	}
}

// Seed loads existing prescriptions, e.g. demo data at startup
func (s *Store) Seed(items ...Prescription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range items {
		if p.ID == "" {
			return apperror.Required("id")
		}
		if _, exists := s.index[p.ID]; exists {
			return apperror.Validation("id", "duplicate id "+p.ID)
		}
		if !p.Status.Valid() {
			return apperror.Validation("status", "unknown status "+string(p.Status))
		}
		if p.RefillsRemaining < 0 {
			return apperror.Validation("refillsRemaining", "must not be negative")
		}
		rx := p.clone()
		s.items = append(s.items, &rx)
		s.index[rx.ID] = &rx
	}
	return nil
}

// List returns prescriptions matching the filter, in insertion order
func (s *Store) List(filter Filter) []Prescription {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Prescription, 0, len(s.items))
	for _, p := range s.items {
		if filter.matches(p) {
			out = append(out, p.clone())
		}
	}
	return out
}

// Get returns a prescription by ID
func (s *Store) Get(id string) (Prescription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.index[id]
	if !ok {
		return Prescription{}, apperror.NotFound(resourceName, id)
	}
	return p.clone(), nil
}

// Create validates the draft and stores a new prescription
func (s *Store) Create(d Draft) (Prescription, error) {
	if err := d.Validate(); err != nil {
		return Prescription{}, err
	}

	rx := Prescription{
		ID:             "rx-" + uuid.New().String(),
		Name:           d.Name,
		Dosage:         d.Dosage,
		Instructions:   d.Instructions,
		Status:         StatusInProgress,
		LastFilled:     d.LastFilled,
		NextRefillDate: d.NextRefillDate,
		Pharmacy:       d.Pharmacy,
		Doctor:         d.Doctor,
		SideEffects:    d.SideEffects,
		Allergies:      d.Allergies,
		Cost:           d.Cost,
	}
	if d.Status != nil {
		rx.Status = *d.Status
	}
	if d.RefillsRemaining != nil {
		rx.RefillsRemaining = *d.RefillsRemaining
	}
	if d.Urgent != nil {
		rx.Urgent = *d.Urgent
	}
	if rx.LastFilled == "" {
		rx.LastFilled = s.now().Format(DateLayout)
	}
	rx = rx.clone()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, &rx)
	s.index[rx.ID] = &rx
	return rx.clone(), nil
}

// UpdateStatus replaces the status of a prescription and returns the
// status it replaced
func (s *Store) UpdateStatus(id string, status Status) (Prescription, Status, error) {
	if !status.Valid() {
		return Prescription{}, "", apperror.Validation("status", "unknown status "+string(status))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.index[id]
	if !ok {
		return Prescription{}, "", apperror.NotFound(resourceName, id)
	}
	prev := p.Status
	p.Status = status
	return p.clone(), prev, nil
}

// Update merges the provided fields into the prescription and returns the
// status held before the merge. Validation failures leave the record
// untouched.
func (s *Store) Update(id string, patch Patch) (Prescription, Status, error) {
	if err := patch.Validate(); err != nil {
		return Prescription{}, "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.index[id]
	if !ok {
		return Prescription{}, "", apperror.NotFound(resourceName, id)
	}
	prev := p.Status
	patch.apply(p)
	return p.clone(), prev, nil
}

// RequestRefill consumes one refill and sends the prescription back into
// fulfillment
func (s *Store) RequestRefill(id string) (Prescription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.index[id]
	if !ok {
		return Prescription{}, apperror.NotFound(resourceName, id)
	}
	if !p.RefillEligible() {
		return Prescription{}, apperror.ErrNoRefillsRemaining
	}
	p.Status = StatusInProgress
	p.RefillsRemaining--
	return p.clone(), nil
}

// AdvanceIfStatus moves a prescription from one status to another only when it
// is still in the expected status. The bool reports whether it changed; a
// missing id is not an error.
func (s *Store) AdvanceIfStatus(id string, from, to Status) (Prescription, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.index[id]
	if !ok || p.Status != from {
		return Prescription{}, false
	}
	p.Status = to
	return p.clone(), true
}

// Len returns the number of stored prescriptions
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}
