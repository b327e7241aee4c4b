package accessibility

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drfirst/go-rxportal/internal/apperror"
)

func TestCreate(t *testing.T) {
	s := NewStore()
	now := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	r, err := s.Create(Draft{
		PrescriptionNumber: "rx-1001",
		VehicleDescription: "Blue Honda Civic",
		PickupWindow:       WindowAfternoon,
		MobilityAids:       []Aid{AidMobility, AidCarrying},
	})
	require.NoError(t, err)

	assert.Contains(t, r.ID, "pickup-")
	assert.Equal(t, StatusRequested, r.Status)
	assert.True(t, r.NeedsAssistance)
	assert.Equal(t, now, r.CreatedAt)
	assert.Equal(t, "12pm - 5pm", r.PickupWindow.Label())

	plain, err := s.Create(Draft{PrescriptionNumber: "rx-1002", VehicleDescription: "Red truck", PickupWindow: WindowMorning})
	require.NoError(t, err)
	assert.False(t, plain.NeedsAssistance)
	assert.NotNil(t, plain.MobilityAids)

	list := s.List()
	require.Len(t, list, 2)
	assert.Equal(t, r.ID, list[0].ID)
}

func TestCreate_Validation(t *testing.T) {
	tests := []struct {
		name  string
		draft Draft
		field string
	}{
		{"missing number", Draft{VehicleDescription: "car", PickupWindow: WindowMorning}, "prescriptionNumber"},
		{"missing vehicle", Draft{PrescriptionNumber: "rx-1", PickupWindow: WindowMorning}, "vehicleDescription"},
		{"missing window", Draft{PrescriptionNumber: "rx-1", VehicleDescription: "car"}, "pickupWindow"},
		{"bad window", Draft{PrescriptionNumber: "rx-1", VehicleDescription: "car", PickupWindow: "midnight"}, "pickupWindow"},
		{"bad aid", Draft{PrescriptionNumber: "rx-1", VehicleDescription: "car", PickupWindow: WindowEvening, MobilityAids: []Aid{"jetpack"}}, "mobilityAids"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStore()
			_, err := s.Create(tt.draft)
			var verr *apperror.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
			assert.Empty(t, s.List())
		})
	}
}

func TestComplete(t *testing.T) {
	s := NewStore()
	r, err := s.Create(Draft{PrescriptionNumber: "rx-1", VehicleDescription: "car", PickupWindow: WindowEvening})
	require.NoError(t, err)

	done, err := s.Complete(r.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, done.Status)

	_, err = s.Complete(r.ID)
	assert.NoError(t, err)

	_, err = s.Complete("pickup-missing")
	assert.True(t, apperror.IsNotFound(err))
}

func TestList_ReturnsCopies(t *testing.T) {
	s := NewStore()
	_, err := s.Create(Draft{PrescriptionNumber: "rx-1", VehicleDescription: "car", PickupWindow: WindowEvening, MobilityAids: []Aid{AidMobility}})
	require.NoError(t, err)

	list := s.List()
	list[0].MobilityAids[0] = AidCarrying
	list[0].Status = StatusCompleted

	fresh := s.List()
	assert.Equal(t, AidMobility, fresh[0].MobilityAids[0])
	assert.Equal(t, StatusRequested, fresh[0].Status)
}
