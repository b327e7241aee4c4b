// Package prescription implements the patient-side prescription model and its
// in-memory store.
package prescription

import (
	"time"

	"github.com/drfirst/go-rxportal/internal/apperror"
)

// Status represents prescription fulfillment status
type Status string

const (
	StatusFilled         Status = "filled"
	StatusInProgress     Status = "inProgress"
	StatusPartial        Status = "partial"
	StatusReadyForPickup Status = "readyForPickup"
)

// DateLayout is the calendar date format used for fill dates
const DateLayout = "2006-01-02"

// Valid reports whether s is a known status
func (s Status) Valid() bool {
	switch s {
	case StatusFilled, StatusInProgress, StatusPartial, StatusReadyForPickup:
		return true
	}
	return false
}

// ParseStatus converts a raw value into a Status
func ParseStatus(raw string) (Status, error) {
	s := Status(raw)
	if !s.Valid() {
		return "", apperror.Validation("status", "unknown status "+raw)
	}
	return s, nil
}

// Cost holds the price breakdown shown to the patient
type Cost struct {
	Retail        float64 `json:"retail"`
	WithInsurance float64 `json:"withInsurance"`
	Copay         float64 `json:"copay"`
}

// Prescription is a single medication order tracked for the patient
type Prescription struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	Dosage           string   `json:"dosage"`
	Instructions     string   `json:"instructions"`
	Status           Status   `json:"status"`
	RefillsRemaining int      `json:"refillsRemaining"`
	LastFilled       string   `json:"lastFilled"`
	NextRefillDate   string   `json:"nextRefillDate"`
	Pharmacy         string   `json:"pharmacy"`
	Doctor           string   `json:"doctor"`
	Urgent           bool     `json:"urgent"`
	SideEffects      []string `json:"sideEffects,omitempty"`
	Allergies        []string `json:"allergies,omitempty"`
	Cost             *Cost    `json:"cost,omitempty"`
}

// CanPickup reports whether the prescription can be collected at the counter
func (p Prescription) CanPickup() bool {
	return p.Status == StatusFilled || p.Status == StatusReadyForPickup
}

// RefillEligible reports whether a refill request would be accepted.
// nextRefillDate is deliberately not consulted.
func (p Prescription) RefillEligible() bool {
	return p.RefillsRemaining > 0
}

func (p Prescription) clone() Prescription {
	c := p
	if p.SideEffects != nil {
		c.SideEffects = append([]string(nil), p.SideEffects...)
	}
	if p.Allergies != nil {
		c.Allergies = append([]string(nil), p.Allergies...)
	}
	if p.Cost != nil {
		cost := *p.Cost
		c.Cost = &cost
	}
	return c
}

// Draft is the input for creating a prescription. Pointer fields are optional
// and fall back to defaults when nil.
type Draft struct {
	Name             string   `json:"name"`
	Dosage           string   `json:"dosage"`
	Instructions     string   `json:"instructions"`
	Status           *Status  `json:"status,omitempty"`
	RefillsRemaining *int     `json:"refillsRemaining,omitempty"`
	LastFilled       string   `json:"lastFilled,omitempty"`
	NextRefillDate   string   `json:"nextRefillDate,omitempty"`
	Pharmacy         string   `json:"pharmacy,omitempty"`
	Doctor           string   `json:"doctor,omitempty"`
	Urgent           *bool    `json:"urgent,omitempty"`
	SideEffects      []string `json:"sideEffects,omitempty"`
	Allergies        []string `json:"allergies,omitempty"`
	Cost             *Cost    `json:"cost,omitempty"`
}

// Validate checks required fields and optional field formats
func (d *Draft) Validate() error {
	if d.Name == "" {
		return apperror.Required("name")
	}
	if d.Dosage == "" {
		return apperror.Required("dosage")
	}
	if d.Instructions == "" {
		return apperror.Required("instructions")
	}
	if d.Status != nil && !d.Status.Valid() {
		return apperror.Validation("status", "unknown status "+string(*d.Status))
	}
	if d.RefillsRemaining != nil && *d.RefillsRemaining < 0 {
		return apperror.Validation("refillsRemaining", "must not be negative")
	}
	if err := validateDate("lastFilled", d.LastFilled); err != nil {
		return err
	}
	if err := validateDate("nextRefillDate", d.NextRefillDate); err != nil {
		return err
	}
	return validateCost(d.Cost)
}

// Patch carries a partial update. Nil fields are left untouched.
type Patch struct {
	Name             *string   `json:"name,omitempty"`
	Dosage           *string   `json:"dosage,omitempty"`
	Instructions     *string   `json:"instructions,omitempty"`
	Status           *Status   `json:"status,omitempty"`
	RefillsRemaining *int      `json:"refillsRemaining,omitempty"`
	LastFilled       *string   `json:"lastFilled,omitempty"`
	NextRefillDate   *string   `json:"nextRefillDate,omitempty"`
	Pharmacy         *string   `json:"pharmacy,omitempty"`
	Doctor           *string   `json:"doctor,omitempty"`
	Urgent           *bool     `json:"urgent,omitempty"`
	SideEffects      *[]string `json:"sideEffects,omitempty"`
	Allergies        *[]string `json:"allergies,omitempty"`
	Cost             *Cost     `json:"cost,omitempty"`
}

// Validate checks every provided field
func (p *Patch) Validate() error {
	for _, f := range []struct {
		name string
		v    *string
	}{
		{"name", p.Name},
		{"dosage", p.Dosage},
		{"instructions", p.Instructions},
	} {
		if f.v != nil && *f.v == "" {
			return apperror.Validation(f.name, "must not be empty")
		}
	}
	if p.Status != nil && !p.Status.Valid() {
		return apperror.Validation("status", "unknown status "+string(*p.Status))
	}
	if p.RefillsRemaining != nil && *p.RefillsRemaining < 0 {
		return apperror.Validation("refillsRemaining", "must not be negative")
	}
	if p.LastFilled != nil {
		if err := validateDate("lastFilled", *p.LastFilled); err != nil {
			return err
		}
	}
	if p.NextRefillDate != nil {
		if err := validateDate("nextRefillDate", *p.NextRefillDate); err != nil {
			return err
		}
	}
	return validateCost(p.Cost)
}

func (p *Patch) apply(rx *Prescription) {
	if p.Name != nil {
		rx.Name = *p.Name
	}
	if p.Dosage != nil {
		rx.Dosage = *p.Dosage
	}
	if p.Instructions != nil {
		rx.Instructions = *p.Instructions
	}
	if p.Status != nil {
		rx.Status = *p.Status
	}
	if p.RefillsRemaining != nil {
		rx.RefillsRemaining = *p.RefillsRemaining
	}
	if p.LastFilled != nil {
		rx.LastFilled = *p.LastFilled
	}
	if p.NextRefillDate != nil {
		rx.NextRefillDate = *p.NextRefillDate
	}
	if p.Pharmacy != nil {
		rx.Pharmacy = *p.Pharmacy
	}
	if p.Doctor != nil {
		rx.Doctor = *p.Doctor
	}
	if p.Urgent != nil {
		rx.Urgent = *p.Urgent
	}
	if p.SideEffects != nil {
		rx.SideEffects = append([]string(nil), (*p.SideEffects)...)
	}
	if p.Allergies != nil {
		rx.Allergies = append([]string(nil), (*p.Allergies)...)
	}
	if p.Cost != nil {
		cost := *p.Cost
		rx.Cost = &cost
	}
}

// Filter narrows a listing. All set predicates must match.
type Filter struct {
	Status *Status
	Urgent *bool
}

func (f Filter) matches(p *Prescription) bool {
	if f.Status != nil && p.Status != *f.Status {
		return false
	}
	if f.Urgent != nil && p.Urgent != *f.Urgent {
		return false
	}
	return true
}

func validateDate(field, value string) error {
	if value == "" {
		return nil
	}
	if _, err := time.Parse(DateLayout, value); err != nil {
		return apperror.Validation(field, "must be a YYYY-MM-DD date")
	}
	return nil
}

func validateCost(c *Cost) error {
	if c == nil {
		return nil
	}
	if c.Retail < 0 || c.WithInsurance < 0 || c.Copay < 0 {
		return apperror.Validation("cost", "amounts must not be negative")
	}
	return nil
}
