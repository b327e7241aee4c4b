// Package consultation manages virtual consultation bookings with providers.
package consultation

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/drfirst/go-rxportal/internal/apperror"
)

const resourceName = "consultation"

// Type is the consultation medium
type Type string

const (
	TypeVideo Type = "video"
	TypeChat  Type = "chat"
)

// Valid reports whether t is a known type
func (t Type) Valid() bool {
	return t == TypeVideo || t == TypeChat
}

// Status is the booking state
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Valid reports whether s is a known status
func (s Status) Valid() bool {
	switch s {
	case StatusScheduled, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Consultation is a booked session with a provider
type Consultation struct {
	ID            string    `json:"id"`
	UserID        string    `json:"userId"`
	Type          Type      `json:"type"`
	Status        Status    `json:"status"`
	ScheduledTime time.Time `json:"scheduledTime"`
	Provider      string    `json:"provider"`
	Notes         string    `json:"notes"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Draft is the input for booking a consultation
type Draft struct {
	UserID        string `json:"userId"`
	Type          Type   `json:"type"`
	ScheduledTime string `json:"scheduledTime"`
	Provider      string `json:"provider"`
	Notes         string `json:"notes"`
}

func (d Draft) parse() (time.Time, error) {
	if d.UserID == "" {
		return time.Time{}, apperror.Required("userId")
	}
	if d.Type == "" {
		return time.Time{}, apperror.Required("type")
	}
	if !d.Type.Valid() {
		return time.Time{}, apperror.Validation("type", "unknown type "+string(d.Type))
	}
	if d.ScheduledTime == "" {
		return time.Time{}, apperror.Required("scheduledTime")
	}
	if d.Provider == "" {
		return time.Time{}, apperror.Required("provider")
	}
	return parseTime(d.ScheduledTime)
}

// Patch carries a partial update. Nil fields are left untouched.
type Patch struct {
	Type          *Type   `json:"type,omitempty"`
	Status        *Status `json:"status,omitempty"`
	ScheduledTime *string `json:"scheduledTime,omitempty"`
	Provider      *string `json:"provider,omitempty"`
	Notes         *string `json:"notes,omitempty"`
}

// Filter narrows List results. Nil fields match everything.
type Filter struct {
	Type   *Type
	Status *Status
}

func (f Filter) matches(c *Consultation) bool {
	if f.Type != nil && c.Type != *f.Type {
		return false
	}
	if f.Status != nil && c.Status != *f.Status {
		return false
	}
	return true
}

// Store holds the session's consultations in booking order
type Store struct {
	mu    sync.RWMutex
	items []*Consultation
	index map[string]*Consultation
	now   func() time.Time
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		index: make(map[string]*Consultation),
		now:   time.Now,
	}
}

// Seed loads existing consultations
func (s *Store) Seed(items ...Consultation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range items {
		if c.ID == "" {
			return apperror.Required("id")
		}
		if _, exists := s.index[c.ID]; exists {
			return apperror.Validation("id", "duplicate id "+c.ID)
		}
		s.items = append(s.items, &c)
		s.index[c.ID] = &c
	}
	return nil
}

// List returns consultations for userID matching the filter
func (s *Store) List(userID string, filter Filter) []Consultation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Consultation, 0, len(s.items))
	for _, c := range s.items {
		if c.UserID == userID && filter.matches(c) {
			out = append(out, *c)
		}
	}
	return out
}

// Create books a consultation in the scheduled state
func (s *Store) Create(d Draft) (Consultation, error) {
	at, err := d.parse()
	if err != nil {
		return Consultation{}, err
	}

	c := &Consultation{
		ID:            "consult-" + uuid.NewString(),
		UserID:        d.UserID,
		Type:          d.Type,
		Status:        StatusScheduled,
		ScheduledTime: at,
		Provider:      d.Provider,
		Notes:         d.Notes,
		CreatedAt:     s.now().UTC(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, c)
	s.index[c.ID] = c
	return *c, nil
}

// Update merges the patch into the consultation
func (s *Store) Update(id string, p Patch) (Consultation, error) {
	var at *time.Time
	if p.Type != nil && !p.Type.Valid() {
		return Consultation{}, apperror.Validation("type", "unknown type "+string(*p.Type))
	}
	if p.Status != nil && !p.Status.Valid() {
		return Consultation{}, apperror.Validation("status", "unknown status "+string(*p.Status))
	}
	if p.ScheduledTime != nil {
		t, err := parseTime(*p.ScheduledTime)
		if err != nil {
			return Consultation{}, err
		}
		at = &t
	}
	if p.Provider != nil && *p.Provider == "" {
		return Consultation{}, apperror.Required("provider")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.index[id]
	if !ok {
		return Consultation{}, apperror.NotFound(resourceName, id)
	}
	if p.Type != nil {
		c.Type = *p.Type
	}
	if p.Status != nil {
		c.Status = *p.Status
	}
	if at != nil {
		c.ScheduledTime = *at
	}
	if p.Provider != nil {
		c.Provider = *p.Provider
	}
	if p.Notes != nil {
		c.Notes = *p.Notes
	}
	return *c, nil
}

func parseTime(raw string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, apperror.Validation("scheduledTime", "must be an RFC3339 timestamp")
	}
	return t.UTC(), nil
}

// DemoConsultations returns the starter booking shown on first load
func DemoConsultations(userID string, now time.Time) []Consultation {
	return []Consultation{
		{
			ID:            "consult-1",
			UserID:        userID,
			Type:          TypeVideo,
			Status:        StatusScheduled,
			ScheduledTime: now.Add(24 * time.Hour).UTC(),
			Provider:      "Dr. Smith",
			Notes:         "Discuss medication side effects",
			CreatedAt:     now.UTC(),
		},
	}
}
