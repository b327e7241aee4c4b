package r5

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drfirst/go-rxportal/internal/domain/prescription"
)

func TestFromPrescription(t *testing.T) {
	rx := prescription.DemoPrescriptions()[1] // Metformin, urgent, inProgress

	m := FromPrescription(rx, "user-1")

	assert.Equal(t, "MedicationRequest", m.ResourceType)
	assert.Equal(t, "rx-1002", m.ID)
	assert.Equal(t, StatusActive, m.Status)
	assert.Equal(t, IntentOrder, m.Intent)
	assert.Equal(t, "urgent", m.Priority)
	assert.Equal(t, "Metformin 500mg", m.Medication.Concept.Text)
	assert.Equal(t, "user-1", m.GetPatientID())
	assert.Equal(t, 2, m.GetRefillsAllowed())
	assert.Equal(t, "Take twice daily with meals", m.GetSigText())
	assert.Equal(t, "Dr. Johnson", m.Requester.Display)
	assert.Equal(t, "HealthRx", m.DispenseRequest.Dispenser.Display)
	assert.Equal(t, "inProgress", m.ExtensionValue(ExtFulfillmentStatus))
	assert.Equal(t, "2023-03-01", m.ExtensionValue(ExtNextRefillDate))
	assert.Len(t, m.Note, 3)
}

func TestFromPrescription_CompletedWhenNoRefillsLeft(t *testing.T) {
	rx := prescription.Prescription{
		ID:           "rx-9",
		Name:         "Azithromycin",
		Dosage:       "250mg",
		Instructions: "Take daily",
		Status:       prescription.StatusFilled,
	}

	m := FromPrescription(rx, "user-1")
	assert.Equal(t, StatusCompleted, m.Status)
	assert.Equal(t, "routine", m.Priority)
	assert.Nil(t, m.Requester)
	assert.Empty(t, m.Performer)

	data, err := m.ToJSON()
	require.NoError(t, err)
	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, float64(0), raw["dispenseRequest"].(map[string]any)["numberOfRepeatsAllowed"])
}

func TestNewErrorOutcome(t *testing.T) {
	o := NewErrorOutcome("not-found", "prescription not found: rx-1")
	require.Len(t, o.Issue, 1)
	assert.Equal(t, "OperationOutcome", o.ResourceType)
	assert.Equal(t, "error", o.Issue[0].Severity)
}
