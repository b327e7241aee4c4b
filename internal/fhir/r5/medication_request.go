package r5

import (
	"encoding/json"
	"strings"

	"github.com/drfirst/go-rxportal/internal/domain/prescription"
)

// MedicationRequest represents a FHIR R5 MedicationRequest resource.
type MedicationRequest struct {
	ResourceType string       `json:"resourceType"`
	ID           string       `json:"id,omitempty"`
	Identifier   []Identifier `json:"identifier,omitempty"`
	Extension    []Extension  `json:"extension,omitempty"`

	Status   string `json:"status"` // active | on-hold | ended | stopped | completed | cancelled | entered-in-error | draft | unknown
	Intent   string `json:"intent"`
	Priority string `json:"priority,omitempty"` // routine | urgent | asap | stat

	// Medication being requested (R5 uses CodeableReference)
	Medication CodeableReference `json:"medication"`
	Subject    Reference         `json:"subject"`
	Requester  *Reference        `json:"requester,omitempty"`
	Performer  []Reference       `json:"performer,omitempty"`
	Note       []Annotation      `json:"note,omitempty"`

	RenderedDosageInstruction string           `json:"renderedDosageInstruction,omitempty"`
	DosageInstruction         []Dosage         `json:"dosageInstruction,omitempty"`
	DispenseRequest           *DispenseRequest `json:"dispenseRequest,omitempty"`
}

// DispenseRequest contains information about the requested dispensing.
type DispenseRequest struct {
	NumberOfRepeatsAllowed int        `json:"numberOfRepeatsAllowed"`
	ValidityPeriod         *Period    `json:"validityPeriod,omitempty"`
	Dispenser              *Reference `json:"dispenser,omitempty"`
}

// Dosage is a dosage instruction.
type Dosage struct {
	Text               string `json:"text,omitempty"`
	PatientInstruction string `json:"patientInstruction,omitempty"`
}

// FromPrescription renders a portal prescription for patientID.
func FromPrescription(rx prescription.Prescription, patientID string) *MedicationRequest {
	m := &MedicationRequest{
		ResourceType: "MedicationRequest",
		ID:           rx.ID,
		Identifier:   []Identifier{{Use: "official", System: SystemPortalRx, Value: rx.ID}},
		Status:       StatusActive,
		Intent:       IntentOrder,
		Priority:     "routine",
		Medication: CodeableReference{
			Concept: &CodeableConcept{Text: strings.TrimSpace(rx.Name + " " + rx.Dosage)},
		},
		Subject:                   Reference{Reference: "Patient/" + patientID},
		RenderedDosageInstruction: rx.Instructions,
		DosageInstruction:         []Dosage{{Text: rx.Instructions}},
		DispenseRequest:           &DispenseRequest{NumberOfRepeatsAllowed: rx.RefillsRemaining},
		Extension: []Extension{
			{URL: ExtFulfillmentStatus, ValueCode: string(rx.Status)},
		},
	}

	if rx.Urgent {
		m.Priority = "urgent"
	}
	if rx.Status == prescription.StatusFilled && rx.RefillsRemaining == 0 {
		m.Status = StatusCompleted
	}
	if rx.Doctor != "" {
		m.Requester = &Reference{Type: "Practitioner", Display: "Dr. " + rx.Doctor}
	}
	if rx.Pharmacy != "" {
		pharmacy := Reference{Type: "Organization", Display: rx.Pharmacy}
		m.Performer = []Reference{pharmacy}
		m.DispenseRequest.Dispenser = &pharmacy
	}
	if rx.LastFilled != "" {
		m.Extension = append(m.Extension, Extension{URL: ExtLastFilled, ValueDate: rx.LastFilled})
	}
	if rx.NextRefillDate != "" {
		m.Extension = append(m.Extension, Extension{URL: ExtNextRefillDate, ValueDate: rx.NextRefillDate})
		m.DispenseRequest.ValidityPeriod = &Period{Start: rx.LastFilled, End: rx.NextRefillDate}
	}
	if rx.Cost != nil {
		m.Extension = append(m.Extension, Extension{
			URL:        ExtPatientCost,
			ValueMoney: &Money{Value: rx.Cost.Copay, Currency: "USD"},
		})
	}
	for _, s := range rx.SideEffects {
		m.Note = append(m.Note, Annotation{Text: "Side effect: " + s})
	}
	for _, a := range rx.Allergies {
		m.Note = append(m.Note, Annotation{Text: "Interaction: " + a})
	}
	return m
}

// GetPatientID extracts the patient ID from the subject reference.
func (m *MedicationRequest) GetPatientID() string {
	return extractIDFromReference(m.Subject.Reference)
}

// GetRefillsAllowed returns the number of refills authorized.
func (m *MedicationRequest) GetRefillsAllowed() int {
	if m.DispenseRequest == nil {
		return 0
	}
	return m.DispenseRequest.NumberOfRepeatsAllowed
}

// GetSigText returns the rendered dosage instruction (sig).
func (m *MedicationRequest) GetSigText() string {
	if m.RenderedDosageInstruction != "" {
		return m.RenderedDosageInstruction
	}
	if len(m.DosageInstruction) > 0 {
		return m.DosageInstruction[0].Text
	}
	return ""
}

// ExtensionValue returns the code or date of the first extension with url.
func (m *MedicationRequest) ExtensionValue(url string) string {
	for _, e := range m.Extension {
		if e.URL == url {
			if e.ValueCode != "" {
				return e.ValueCode
			}
			return e.ValueDate
		}
	}
	return ""
}

// ToJSON serializes the MedicationRequest to JSON.
func (m *MedicationRequest) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// extractIDFromReference extracts the ID from a FHIR reference string.
func extractIDFromReference(ref string) string {
	// Handle references like "Patient/123" or "urn:uuid:123"
	for i := len(ref) - 1; i >= 0; i-- {
		if ref[i] == '/' || ref[i] == ':' {
			return ref[i+1:]
		}
	}
	return ref
}
