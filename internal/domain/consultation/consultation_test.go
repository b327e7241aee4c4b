package consultation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drfirst/go-rxportal/internal/apperror"
)

var fixedNow = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func newSeededStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore()
	s.now = func() time.Time { return fixedNow }
	require.NoError(t, s.Seed(DemoConsultations("user-1", fixedNow)...))
	return s
}

func TestCreate(t *testing.T) {
	s := newSeededStore(t)

	c, err := s.Create(Draft{
		UserID:        "user-1",
		Type:          TypeChat,
		ScheduledTime: "2024-03-02T15:30:00Z",
		Provider:      "Dr. Patel",
	})
	require.NoError(t, err)

	assert.Contains(t, c.ID, "consult-")
	assert.Equal(t, StatusScheduled, c.Status)
	assert.Equal(t, time.Date(2024, 3, 2, 15, 30, 0, 0, time.UTC), c.ScheduledTime)
	assert.Equal(t, fixedNow, c.CreatedAt)
	assert.Empty(t, c.Notes)
	assert.Len(t, s.List("user-1", Filter{}), 2)
}

func TestCreate_Validation(t *testing.T) {
	valid := Draft{UserID: "user-1", Type: TypeVideo, ScheduledTime: "2024-03-02T15:30:00Z", Provider: "Dr. Smith"}

	tests := []struct {
		name   string
		mutate func(d *Draft)
		field  string
	}{
		{"missing user", func(d *Draft) { d.UserID = "" }, "userId"},
		{"missing type", func(d *Draft) { d.Type = "" }, "type"},
		{"unknown type", func(d *Draft) { d.Type = "phone" }, "type"},
		{"missing time", func(d *Draft) { d.ScheduledTime = "" }, "scheduledTime"},
		{"bad time", func(d *Draft) { d.ScheduledTime = "tomorrow" }, "scheduledTime"},
		{"missing provider", func(d *Draft) { d.Provider = "" }, "provider"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStore()
			d := valid
			tt.mutate(&d)

			_, err := s.Create(d)
			var verr *apperror.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
			assert.Empty(t, s.List("user-1", Filter{}))
		})
	}
}

func TestList_Filters(t *testing.T) {
	s := newSeededStore(t)
	_, err := s.Create(Draft{UserID: "user-1", Type: TypeChat, ScheduledTime: "2024-03-05T10:00:00Z", Provider: "Dr. Lee"})
	require.NoError(t, err)
	_, err = s.Create(Draft{UserID: "user-2", Type: TypeChat, ScheduledTime: "2024-03-05T10:00:00Z", Provider: "Dr. Lee"})
	require.NoError(t, err)

	chat := TypeChat
	assert.Len(t, s.List("user-1", Filter{Type: &chat}), 1)

	cancelled := StatusCancelled
	assert.Empty(t, s.List("user-1", Filter{Status: &cancelled}))

	scheduled := StatusScheduled
	video := TypeVideo
	got := s.List("user-1", Filter{Type: &video, Status: &scheduled})
	require.Len(t, got, 1)
	assert.Equal(t, "consult-1", got[0].ID)
}

func TestUpdate(t *testing.T) {
	s := newSeededStore(t)
	status := StatusCancelled
	notes := "Rescheduling"

	c, err := s.Update("consult-1", Patch{Status: &status, Notes: &notes})
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, c.Status)
	assert.Equal(t, "Rescheduling", c.Notes)
	assert.Equal(t, "Dr. Smith", c.Provider)

	_, err = s.Update("consult-404", Patch{Notes: &notes})
	assert.True(t, apperror.IsNotFound(err))

	bad := Status("postponed")
	_, err = s.Update("consult-1", Patch{Status: &bad, Notes: &notes})
	assert.True(t, apperror.IsValidation(err))
	assert.Equal(t, StatusCancelled, s.List("user-1", Filter{})[0].Status)
}
