package events

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drfirst/go-rxportal/internal/domain/notification"
	"github.com/drfirst/go-rxportal/internal/domain/prescription"
	"github.com/drfirst/go-rxportal/pkg/workerpool"
)

func TestNew(t *testing.T) {
	rx := prescription.Prescription{ID: "rx-1", Name: "Metformin", Status: prescription.StatusInProgress}

	e, err := New(AggregatePrescription, rx.ID, PrescriptionRefillRequested, PrescriptionData{Prescription: rx})
	require.NoError(t, err)

	assert.NotEmpty(t, e.ID)
	assert.Equal(t, "rx-1", e.AggregateID)
	assert.Equal(t, TopicPrescriptionEvents, e.Type.Topic())
	assert.False(t, e.Timestamp.IsZero())

	var got PrescriptionData
	require.NoError(t, e.Decode(&got))
	assert.Equal(t, rx.Name, got.Prescription.Name)
}

func TestNew_RejectsUnmarshalable(t *testing.T) {
	_, err := New(AggregatePrescription, "rx-1", PrescriptionCreated, make(chan int))
	assert.Error(t, err)
}

func TestTopic(t *testing.T) {
	assert.Equal(t, TopicNotificationEvents, NotificationCreated.Topic())
	assert.Equal(t, TopicActivityEvents, ConsultationBooked.Topic())
	assert.Equal(t, TopicActivityEvents, PickupRequested.Topic())
	assert.Equal(t, TopicPrescriptionEvents, PrescriptionReady.Topic())
}

type recorder struct {
	mu     sync.Mutex
	events []*Event
	err    error
}

func (r *recorder) Publish(_ context.Context, e *Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return r.err
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func TestMulti(t *testing.T) {
	ok := &recorder{}
	failing := &recorder{err: errors.New("broker down")}

	e, err := New(AggregateNotification, "notif-1", NotificationCreated, NotificationCreatedData{
		Notification: notification.Notification{ID: "notif-1"},
		Preferences:  notification.DefaultPreferences(),
	})
	require.NoError(t, err)

	err = Multi(ok, failing).Publish(context.Background(), e)
	assert.ErrorContains(t, err, "broker down")
	assert.Equal(t, 1, ok.count())
	assert.Equal(t, 1, failing.count())

	assert.NoError(t, Multi(ok, Nop).Publish(context.Background(), e))
}

func TestAsyncPublisher(t *testing.T) {
	pool := workerpool.New(workerpool.Config{Workers: 1, QueueSize: 4}, nil)
	pool.Start()

	rec := &recorder{}
	pub := NewAsyncPublisher(rec, pool, nil)

	e, err := New(AggregatePrescription, "rx-1", PrescriptionCreated, PrescriptionData{})
	require.NoError(t, err)
	require.NoError(t, pub.Publish(context.Background(), e))

	pool.Stop()
	assert.Equal(t, 1, rec.count())

	assert.ErrorIs(t, pub.Publish(context.Background(), e), workerpool.ErrClosed)
}
