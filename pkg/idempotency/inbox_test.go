package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestInbox() (*Inbox, *MemoryStore) {
	store := NewMemoryStore()
	return New(store, DefaultConfig(), nil), store
}

func TestProcess_RunsOnce(t *testing.T) {
	inbox, _ := newTestInbox()
	ctx := context.Background()
	key := Key("evt-1", "email")

	calls := 0
	handler := func(context.Context, json.RawMessage) (json.RawMessage, error) {
		calls++
		return json.RawMessage(`{"status":202}`), nil
	}

	first, err := inbox.Process(ctx, key, "email", json.RawMessage(`{}`), handler)
	require.NoError(t, err)
	assert.False(t, first.Duplicate)

	second, err := inbox.Process(ctx, key, "email", json.RawMessage(`{}`), handler)
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.JSONEq(t, `{"status":202}`, string(second.Output))
	assert.Equal(t, 1, calls)

	st, err := inbox.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), st.Finished)
}

func TestProcess_RecoverableErrorRetries(t *testing.T) {
	inbox, _ := newTestInbox()
	ctx := context.Background()
	key := Key("evt-2", "sms")

	_, err := inbox.Process(ctx, key, "sms", nil, func(context.Context, json.RawMessage) (json.RawMessage, error) {
		return nil, errors.New("gateway timeout")
	})
	require.Error(t, err)

	res, err := inbox.Process(ctx, key, "sms", nil, func(context.Context, json.RawMessage) (json.RawMessage, error) {
		return nil, nil
	})
	require.NoError(t, err)
	assert.True(t, res.WasRecovered)
}

func TestProcess_PermanentErrorIsNotRetried(t *testing.T) {
	inbox, _ := newTestInbox()
	ctx := context.Background()
	key := Key("evt-3", "email")

	_, err := inbox.Process(ctx, key, "email", nil, func(context.Context, json.RawMessage) (json.RawMessage, error) {
		return nil, Permanent(errors.New("invalid recipient"))
	})
	require.Error(t, err)
	assert.True(t, IsPermanent(err))

	_, err = inbox.Process(ctx, key, "email", nil, func(context.Context, json.RawMessage) (json.RawMessage, error) {
		t.Fatal("handler must not run for a failed key")
		return nil, nil
	})
	assert.ErrorContains(t, err, "previously failed")
}

func TestProcess_InProgressAndStaleRecovery(t *testing.T) {
	inbox, store := newTestInbox()
	ctx := context.Background()
	key := Key("evt-4", "email")

	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.Claim(ctx, Entry{Key: key, Handler: "email", UpdatedAt: now, ExpiresAt: now.Add(time.Hour)}))

	inbox.now = func() time.Time { return now.Add(time.Minute) }
	_, err := inbox.Process(ctx, key, "email", nil, func(context.Context, json.RawMessage) (json.RawMessage, error) {
		return nil, nil
	})
	assert.ErrorIs(t, err, ErrMessageInProgress)

	inbox.now = func() time.Time { return now.Add(time.Hour) }
	res, err := inbox.Process(ctx, key, "email", nil, func(context.Context, json.RawMessage) (json.RawMessage, error) {
		return nil, nil
	})
	require.NoError(t, err)
	assert.True(t, res.WasRecovered)
}

func TestKey(t *testing.T) {
	assert.Equal(t, Key("evt-1", "email"), Key("evt-1", "email"))
	assert.NotEqual(t, Key("evt-1", "email"), Key("evt-1", "sms"))
	assert.Len(t, Key("evt-1", "email"), 64)
}

func TestSweep(t *testing.T) {
	inbox, store := newTestInbox()
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	inbox.now = func() time.Time { return now }

	require.NoError(t, store.Claim(ctx, Entry{Key: "stale", UpdatedAt: now.Add(-time.Hour), ExpiresAt: now.Add(time.Hour)}))
	require.NoError(t, store.Claim(ctx, Entry{Key: "expired", UpdatedAt: now, ExpiresAt: now.Add(-time.Second)}))

	inbox.sweep(ctx)

	st, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), st.Total)
	assert.Equal(t, int64(1), st.Recoverable)
}
