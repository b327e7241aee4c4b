// Package r5 provides the FHIR R5 resources the portal exports so a
// prescription can be handed to other systems in a standard shape.
package r5

// Identifier represents a FHIR Identifier.
type Identifier struct {
	Use    string `json:"use,omitempty"` // usual | official | temp | secondary | old
	System string `json:"system,omitempty"`
	Value  string `json:"value,omitempty"`
}

// CodeableConcept represents a concept with text and codings.
type CodeableConcept struct {
	Coding []Coding `json:"coding,omitempty"`
	Text   string   `json:"text,omitempty"`
}

// Coding represents a code from a terminology system.
type Coding struct {
	System  string `json:"system,omitempty"`
	Code    string `json:"code,omitempty"`
	Display string `json:"display,omitempty"`
}

// Reference represents a reference to another resource.
type Reference struct {
	Reference string `json:"reference,omitempty"`
	Type      string `json:"type,omitempty"`
	Display   string `json:"display,omitempty"`
}

// CodeableReference is new in FHIR R5 - can be either a CodeableConcept or a Reference.
type CodeableReference struct {
	Concept   *CodeableConcept `json:"concept,omitempty"`
	Reference *Reference       `json:"reference,omitempty"`
}

// Period represents a date range. Bounds are FHIR date strings.
type Period struct {
	Start string `json:"start,omitempty"`
	End   string `json:"end,omitempty"`
}

// Money is an amount in a currency.
type Money struct {
	Value    float64 `json:"value"`
	Currency string  `json:"currency"`
}

// Annotation represents a note or comment.
type Annotation struct {
	Text string `json:"text"`
}

// Extension represents a FHIR extension.
type Extension struct {
	URL        string `json:"url"`
	ValueCode  string `json:"valueCode,omitempty"`
	ValueDate  string `json:"valueDate,omitempty"`
	ValueMoney *Money `json:"valueMoney,omitempty"`
}

// OperationOutcome represents errors and warnings from FHIR operations.
type OperationOutcome struct {
	ResourceType string                  `json:"resourceType"`
	Issue        []OperationOutcomeIssue `json:"issue"`
}

// OperationOutcomeIssue represents a single issue in an OperationOutcome.
type OperationOutcomeIssue struct {
	Severity    string `json:"severity"` // fatal | error | warning | information
	Code        string `json:"code"`
	Diagnostics string `json:"diagnostics,omitempty"`
}

// NewErrorOutcome creates an OperationOutcome with a single error issue.
func NewErrorOutcome(code, diagnostics string) *OperationOutcome {
	return &OperationOutcome{
		ResourceType: "OperationOutcome",
		Issue: []OperationOutcomeIssue{{
			Severity:    "error",
			Code:        code,
			Diagnostics: diagnostics,
		}},
	}
}

// Code systems and extension URLs
const (
	SystemPortalRx       = "https://rxportal.dev/fhir/sid/prescription"
	ExtFulfillmentStatus = "https://rxportal.dev/fhir/StructureDefinition/fulfillment-status"
	ExtLastFilled        = "https://rxportal.dev/fhir/StructureDefinition/last-filled"
	ExtNextRefillDate    = "https://rxportal.dev/fhir/StructureDefinition/next-refill-date"
	ExtPatientCost       = "https://rxportal.dev/fhir/StructureDefinition/patient-cost"
)

// Medication request statuses
const (
	StatusActive    = "active"
	StatusCompleted = "completed"
)

// Medication request intents
const (
	IntentOrder = "order"
)
