package postgres

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drfirst/go-rxportal/internal/domain/notification"
	"github.com/drfirst/go-rxportal/internal/events"
)

func TestEntryFromEvent(t *testing.T) {
	e, err := events.New(events.AggregateNotification, "notif-1", events.NotificationCreated, events.NotificationCreatedData{
		Notification: notification.Notification{ID: "notif-1", Title: "Refill Requested"},
		Preferences:  notification.DefaultPreferences(),
	})
	require.NoError(t, err)

	entry, err := entryFromEvent(e)
	require.NoError(t, err)

	assert.Equal(t, e.ID, entry.EventID)
	assert.Equal(t, events.TopicNotificationEvents, entry.Topic)
	assert.Equal(t, "notif-1", entry.Key)
	assert.Equal(t, string(events.NotificationCreated), entry.EventType)

	var decoded events.Event
	require.NoError(t, json.Unmarshal(entry.Payload, &decoded))
	assert.Equal(t, e.ID, decoded.ID)
}

func TestDeadLetterPayload(t *testing.T) {
	lastErr := "broker unreachable"
	created := time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC)

	body, err := deadLetterPayload(&Entry{
		EventID:    "evt-1",
		EventType:  string(events.PrescriptionCreated),
		Topic:      events.TopicPrescriptionEvents,
		Payload:    json.RawMessage(`{"id":"evt-1"}`),
		RetryCount: 5,
		LastError:  &lastErr,
		CreatedAt:  created,
	})
	require.NoError(t, err)

	var dl deadLetter
	require.NoError(t, json.Unmarshal(body, &dl))
	assert.Equal(t, events.TopicPrescriptionEvents, dl.OriginalTopic)
	assert.Equal(t, "broker unreachable", dl.LastError)
	assert.Equal(t, 5, dl.RetryCount)
	assert.JSONEq(t, `{"id":"evt-1"}`, string(dl.Payload))
}

func TestNewRelay_AppliesDefaults(t *testing.T) {
	r := NewRelay(nil, nil, RelayConfig{}, nil)
	assert.Equal(t, DefaultRelayConfig().BatchSize, r.config.BatchSize)
	assert.Equal(t, DefaultRelayConfig().MaxRetries, r.config.MaxRetries)
}
