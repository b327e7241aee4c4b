package notification

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/drfirst/go-rxportal/internal/apperror"
)

// MockAlerter is a mock implementation of Alerter
type MockAlerter struct {
	mock.Mock
}

func (m *MockAlerter) Alert(ctx context.Context, n Notification) error {
	args := m.Called(ctx, n)
	return args.Error(0)
}

func newSeededStore(t *testing.T, alerter Alerter) *Store {
	t.Helper()
	s := NewStore("user-1", alerter, nil)
	require.NoError(t, s.Seed(DemoNotifications("user-1", time.Now())...))
	return s
}

func TestStore_SeedOrderAndUnread(t *testing.T) {
	s := newSeededStore(t, nil)

	list := s.List(Filter{})
	require.Len(t, list, 3)
	assert.Equal(t, "notif-1", list[0].ID)
	assert.Equal(t, "notif-3", list[2].ID)
	assert.Equal(t, 2, s.UnreadCount())
}

func TestStore_CreatePrependsAndDefaults(t *testing.T) {
	s := newSeededStore(t, nil)

	n, err := s.Create(context.Background(), Draft{
		Title:   "Refill Requested",
		Message: "Your refill request for Lisinopril has been submitted.",
		Type:    TypeRefill,
	})
	require.NoError(t, err)

	assert.NotEmpty(t, n.ID)
	assert.False(t, n.Read)
	assert.False(t, n.Urgent)
	assert.Equal(t, "user-1", n.UserID)
	assert.False(t, n.CreatedAt.IsZero())

	list := s.List(Filter{})
	require.Len(t, list, 4)
	assert.Equal(t, n.ID, list[0].ID)
	assert.Equal(t, 3, s.UnreadCount())
}

func TestStore_CreateIgnoresForeignUserID(t *testing.T) {
	s := newSeededStore(t, nil)

	n, err := s.Create(context.Background(), Draft{
		UserID:  "user-2",
		Title:   "Appointment Reminder",
		Message: "Your consultation starts in 30 minutes.",
		Type:    TypeAppointment,
	})
	require.NoError(t, err)
	assert.Equal(t, "user-1", n.UserID)

	list := s.List(Filter{})
	require.Len(t, list, 4)
	for _, got := range list {
		assert.Equal(t, "user-1", got.UserID)
	}
	assert.Equal(t, 3, s.UnreadCount())
	assert.Equal(t, 3, s.MarkAllRead())
}

func TestStore_CreateValidation(t *testing.T) {
	s := NewStore("user-1", nil, nil)
	ctx := context.Background()

	for name, d := range map[string]Draft{
		"no title":     {Message: "m", Type: TypeSystem},
		"no message":   {Title: "t", Type: TypeSystem},
		"no type":      {Title: "t", Message: "m"},
		"unknown type": {Title: "t", Message: "m", Type: Type("general")},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := s.Create(ctx, d)
			assert.True(t, apperror.IsValidation(err))
		})
	}
	assert.Empty(t, s.List(Filter{}))
}

func TestStore_CreateIDsMonotonic(t *testing.T) {
	s := NewStore("user-1", nil, nil)
	ctx := context.Background()

	seen := make(map[string]bool)
	prev := ""
	for i := 0; i < 200; i++ {
		n, err := s.Create(ctx, Draft{Title: "t", Message: "m", Type: TypeSystem})
		require.NoError(t, err)
		require.False(t, seen[n.ID])
		seen[n.ID] = true
		assert.Greater(t, n.ID, prev)
		prev = n.ID
	}
}

func TestStore_ListFilters(t *testing.T) {
	s := newSeededStore(t, nil)
	queue := TypeQueue

	assert.Len(t, s.List(Filter{Type: &queue}), 1)
	urgent := s.List(Filter{UrgentOnly: true})
	require.Len(t, urgent, 1)
	assert.Equal(t, "notif-2", urgent[0].ID)
	assert.Empty(t, s.List(Filter{Type: &queue, UrgentOnly: true}))
}

func TestStore_MarkReadIdempotent(t *testing.T) {
	s := newSeededStore(t, nil)

	first, err := s.MarkRead("notif-1")
	require.NoError(t, err)
	assert.True(t, first.Read)
	stateAfterFirst := s.List(Filter{})

	second, err := s.MarkRead("notif-1")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, stateAfterFirst, s.List(Filter{}))
	assert.Equal(t, 1, s.UnreadCount())

	_, err = s.MarkRead("missing")
	assert.True(t, apperror.IsNotFound(err))
}

func TestStore_MarkAllRead(t *testing.T) {
	s := newSeededStore(t, nil)
	_, err := s.Create(context.Background(), Draft{Title: "t", Message: "m", Type: TypeQueue, Urgent: true})
	require.NoError(t, err)

	assert.Equal(t, 3, s.MarkAllRead())
	assert.Equal(t, 0, s.UnreadCount())
	assert.Equal(t, 0, s.MarkAllRead())

	empty := NewStore("user-1", nil, nil)
	assert.Equal(t, 0, empty.MarkAllRead())
	assert.Equal(t, 0, empty.UnreadCount())
}

func TestStore_AlertRespectsPreferences(t *testing.T) {
	ctx := context.Background()

	t.Run("push enabled", func(t *testing.T) {
		alerter := &MockAlerter{}
		alerter.On("Alert", ctx, mock.AnythingOfType("notification.Notification")).Return(nil).Once()
		s := NewStore("user-1", alerter, nil)

		_, err := s.Create(ctx, Draft{Title: "t", Message: "m", Type: TypeSystem})
		require.NoError(t, err)
		alerter.AssertExpectations(t)
	})

	t.Run("push disabled", func(t *testing.T) {
		alerter := &MockAlerter{}
		s := NewStore("user-1", alerter, nil)
		s.SetPreferences(Preferences{Email: true})

		_, err := s.Create(ctx, Draft{Title: "t", Message: "m", Type: TypeSystem, Urgent: true})
		require.NoError(t, err)
		alerter.AssertNotCalled(t, "Alert", mock.Anything, mock.Anything)
	})

	t.Run("urgent only", func(t *testing.T) {
		alerter := &MockAlerter{}
		alerter.On("Alert", ctx, mock.MatchedBy(func(n Notification) bool { return n.Urgent })).Return(nil).Once()
		s := NewStore("user-1", alerter, nil)
		s.SetPreferences(Preferences{Push: true, UrgentOnly: true})

		_, err := s.Create(ctx, Draft{Title: "routine", Message: "m", Type: TypeSystem})
		require.NoError(t, err)
		_, err = s.Create(ctx, Draft{Title: "urgent", Message: "m", Type: TypeQueue, Urgent: true})
		require.NoError(t, err)
		alerter.AssertExpectations(t)
		alerter.AssertNumberOfCalls(t, "Alert", 1)
	})

	t.Run("alert failure does not fail create", func(t *testing.T) {
		alerter := &MockAlerter{}
		alerter.On("Alert", ctx, mock.Anything).Return(errors.New("offline"))
		s := NewStore("user-1", alerter, nil)

		n, err := s.Create(ctx, Draft{Title: "t", Message: "m", Type: TypeSystem})
		require.NoError(t, err)
		assert.Len(t, s.List(Filter{}), 1)
		assert.Equal(t, n.ID, s.List(Filter{})[0].ID)
	})
}

func TestStore_ListenersSeeCreatedNotification(t *testing.T) {
	s := NewStore("user-1", nil, nil)
	var got []Notification
	var gotPrefs Preferences
	s.OnCreate(func(_ context.Context, n Notification, p Preferences) {
		got = append(got, n)
		gotPrefs = p
	})

	n, err := s.Create(context.Background(), Draft{Title: "t", Message: "m", Type: TypeDisposal})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, n, got[0])
	assert.Equal(t, DefaultPreferences(), gotPrefs)
}

func TestPreferences_Allows(t *testing.T) {
	p := Preferences{Push: true, SMS: false, UrgentOnly: true}
	assert.True(t, p.AllowsPush(true))
	assert.False(t, p.AllowsPush(false))
	assert.False(t, p.Allows(p.SMS, true))

	assert.True(t, DefaultPreferences().AllowsPush(false))
}
