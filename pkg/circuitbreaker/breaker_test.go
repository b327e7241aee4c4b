package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errDownstream = errors.New("smtp 503")

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	var mu sync.Mutex
	var transitions []State

	cfg := DefaultConfig("email")
	cfg.FailureThreshold = 2
	cfg.Timeout = time.Hour
	cfg.OnStateChange = func(name string, to State) {
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, "email", name)
		transitions = append(transitions, to)
	}

	cb, err := New(cfg, nil)
	require.NoError(t, err)

	failing := func(context.Context) error { return errDownstream }
	assert.ErrorIs(t, cb.Execute(context.Background(), failing), errDownstream)
	assert.Equal(t, StateClosed, cb.State())
	assert.ErrorIs(t, cb.Execute(context.Background(), failing), errDownstream)
	assert.Equal(t, StateOpen, cb.State())

	called := false
	err = cb.Execute(context.Background(), func(context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called)

	mu.Lock()
	assert.Equal(t, []State{StateOpen}, transitions)
	mu.Unlock()
}

func TestBreaker_HalfOpenRecovers(t *testing.T) {
	cfg := DefaultConfig("sms")
	cfg.FailureThreshold = 1
	cfg.Timeout = 10 * time.Millisecond

	cb, err := New(cfg, nil)
	require.NoError(t, err)

	_ = cb.Execute(context.Background(), func(context.Context) error { return errDownstream })
	require.Equal(t, StateOpen, cb.State())

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, cb.Execute(context.Background(), func(context.Context) error { return nil }))
	assert.Equal(t, StateClosed, cb.State())
}

func TestBreaker_CancellationIsNotAFailure(t *testing.T) {
	cfg := DefaultConfig("events")
	cfg.FailureThreshold = 1

	cb, err := New(cfg, nil)
	require.NoError(t, err)

	err = cb.Execute(context.Background(), func(context.Context) error { return context.Canceled })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateClosed, cb.State())
}

func TestStateGauge(t *testing.T) {
	assert.Equal(t, 0, StateClosed.Gauge())
	assert.Equal(t, 1, StateOpen.Gauge())
	assert.Equal(t, 2, StateHalfOpen.Gauge())
}

func TestManager(t *testing.T) {
	base := DefaultConfig("")
	base.FailureThreshold = 1
	base.Timeout = time.Hour
	m := NewManager(base, nil)

	email, err := m.Get("email")
	require.NoError(t, err)
	again, err := m.Get("email")
	require.NoError(t, err)
	assert.Same(t, email, again)
	assert.Equal(t, "email", email.Name())

	_, err = m.Get("sms")
	require.NoError(t, err)

	_ = email.Execute(context.Background(), func(context.Context) error { return errDownstream })

	health := m.Health()
	require.Len(t, health, 2)
	assert.Equal(t, "email", health[0].Name)
	assert.False(t, health[0].Healthy)
	assert.Equal(t, StateOpen, health[0].State)
	assert.Equal(t, "sms", health[1].Name)
	assert.True(t, health[1].Healthy)
}
