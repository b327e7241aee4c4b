// Package notification implements the patient notification inbox, read state
// and delivery preferences.
package notification

import (
	"context"
	"time"

	"github.com/drfirst/go-rxportal/internal/apperror"
)

// Type categorizes a notification
type Type string

const (
	TypePrescription Type = "prescription"
	TypeRefill       Type = "refill"
	TypeAppointment  Type = "appointment"
	TypeQueue        Type = "queue"
	TypeDisposal     Type = "disposal"
	TypeSystem       Type = "system"
)

// Valid reports whether t is a known type
func (t Type) Valid() bool {
	switch t {
	case TypePrescription, TypeRefill, TypeAppointment, TypeQueue, TypeDisposal, TypeSystem:
		return true
	}
	return false
}

// Notification is a message in the patient's inbox
type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Type      Type      `json:"type"`
	Urgent    bool      `json:"urgent"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"createdAt"`
}

// Draft is the producer-supplied part of a notification
type Draft struct {
	UserID  string `json:"userId,omitempty"`
	Title   string `json:"title"`
	Message string `json:"message"`
	Type    Type   `json:"type"`
	Urgent  bool   `json:"urgent,omitempty"`
}

// Validate checks the required fields
func (d Draft) Validate() error {
	if d.Title == "" {
		return apperror.Required("title")
	}
	if d.Message == "" {
		return apperror.Required("message")
	}
	if d.Type == "" {
		return apperror.Required("type")
	}
	if !d.Type.Valid() {
		return apperror.Validation("type", "unknown type "+string(d.Type))
	}
	return nil
}

// Filter narrows a listing
type Filter struct {
	Type       *Type
	UrgentOnly bool
}

func (f Filter) matches(n *Notification) bool {
	if f.Type != nil && n.Type != *f.Type {
		return false
	}
	if f.UrgentOnly && !n.Urgent {
		return false
	}
	return true
}

// Preferences controls which channels a patient receives notifications on
type Preferences struct {
	Email      bool `json:"email"`
	SMS        bool `json:"sms"`
	Push       bool `json:"push"`
	UrgentOnly bool `json:"urgentOnly"`
}

// DefaultPreferences returns the preferences a new patient starts with
func DefaultPreferences() Preferences {
	return Preferences{Email: true, Push: true}
}

// Allows reports whether a channel that is switched on should carry a
// notification with the given urgency
func (p Preferences) Allows(channelEnabled, urgent bool) bool {
	return channelEnabled && (!p.UrgentOnly || urgent)
}

// AllowsPush reports whether a transient alert should be raised
func (p Preferences) AllowsPush(urgent bool) bool { return p.Allows(p.Push, urgent) }

// Alerter raises a transient, user-visible alert for a freshly created
// notification. Implementations must not block.
type Alerter interface {
	Alert(ctx context.Context, n Notification) error
}

// Listener observes created notifications, e.g. to publish events
type Listener func(ctx context.Context, n Notification, prefs Preferences)
