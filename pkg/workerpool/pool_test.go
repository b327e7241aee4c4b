package workerpool

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_RunsJobs(t *testing.T) {
	p := New(Config{Workers: 2, QueueSize: 10}, nil)
	p.Start()

	var ran int64
	for i := 0; i < 5; i++ {
		require.NoError(t, p.Submit(Job{Name: "count", Run: func(context.Context) error {
			atomic.AddInt64(&ran, 1)
			return nil
		}}))
	}

	p.Stop()
	assert.Equal(t, int64(5), atomic.LoadInt64(&ran))

	s := p.Stats()
	assert.Equal(t, int64(5), s.Submitted)
	assert.Equal(t, int64(5), s.Completed)
	assert.Equal(t, int64(0), s.QueueDepth)
}

func TestPool_RetriesThenReportsFailure(t *testing.T) {
	var failedJob string
	var attempts int64
	p := New(Config{
		Workers:    1,
		QueueSize:  1,
		MaxRetries: 2,
		RetryDelay: time.Millisecond,
		OnFailure:  func(job Job, _ error) { failedJob = job.Name },
	}, nil)
	p.Start()

	require.NoError(t, p.Submit(Job{Name: "flaky", Run: func(context.Context) error {
		atomic.AddInt64(&attempts, 1)
		return errors.New("downstream unavailable")
	}}))
	p.Stop()

	assert.Equal(t, int64(3), atomic.LoadInt64(&attempts))
	assert.Equal(t, "flaky", failedJob)
	assert.Equal(t, int64(1), p.Stats().Failed)
	assert.Equal(t, int64(2), p.Stats().Retried)
}

func TestPool_RetrySucceeds(t *testing.T) {
	var attempts int64
	p := New(Config{Workers: 1, QueueSize: 1, MaxRetries: 3, RetryDelay: time.Millisecond}, nil)
	p.Start()

	require.NoError(t, p.Submit(Job{Name: "second-try", Run: func(context.Context) error {
		if atomic.AddInt64(&attempts, 1) < 2 {
			return errors.New("try again")
		}
		return nil
	}}))
	p.Stop()

	assert.Equal(t, int64(1), p.Stats().Completed)
	assert.Equal(t, int64(0), p.Stats().Failed)
}

func TestPool_SubmitAfterStop(t *testing.T) {
	p := New(Config{Workers: 1, QueueSize: 1}, nil)
	p.Start()
	p.Stop()
	p.Stop()

	err := p.Submit(Job{Name: "late", Run: func(context.Context) error { return nil }})
	assert.ErrorIs(t, err, ErrClosed)
	assert.False(t, p.IsHealthy())
}

func TestPool_QueueFull(t *testing.T) {
	p := New(Config{Workers: 1, QueueSize: 1}, nil)
	// Workers not started, so the queue fills.
	noop := func(context.Context) error { return nil }

	require.NoError(t, p.Submit(Job{Name: "first", Run: noop}))
	assert.ErrorIs(t, p.Submit(Job{Name: "second", Run: noop}), ErrQueueFull)
	assert.False(t, p.IsHealthy())

	p.Start()
	p.Stop()
}

func TestPool_RejectsJobWithoutRun(t *testing.T) {
	p := New(DefaultConfig(), nil)
	assert.Error(t, p.Submit(Job{Name: "empty"}))
}
