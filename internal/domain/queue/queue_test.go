package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drfirst/go-rxportal/internal/apperror"
	"github.com/drfirst/go-rxportal/internal/domain/notification"
)

type recordingNotifier struct {
	mu     sync.Mutex
	drafts []notification.Draft
}

func (r *recordingNotifier) Create(_ context.Context, d notification.Draft) (notification.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drafts = append(r.drafts, d)
	return notification.Notification{Title: d.Title, Message: d.Message, Type: d.Type, Urgent: d.Urgent}, nil
}

func (r *recordingNotifier) all() []notification.Draft {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notification.Draft(nil), r.drafts...)
}

func newTestSimulator(t *testing.T, info Info, cfg Config) (*Simulator, *recordingNotifier) {
	t.Helper()
	n := &recordingNotifier{}
	s, err := NewSimulator(info, n, cfg, nil)
	require.NoError(t, err)
	return s, n
}

func TestTick_ScenarioWithAlertEnabled(t *testing.T) {
	s, n := newTestSimulator(t, Info{Position: 3, TotalInQueue: 8, EstimatedWaitTime: 15, AlertEnabled: true}, DefaultConfig())
	ctx := context.Background()

	got := s.Tick(ctx)
	assert.Equal(t, Info{Position: 2, TotalInQueue: 8, EstimatedWaitTime: 10, AlertEnabled: true}, got)
	assert.Empty(t, n.all())

	got = s.Tick(ctx)
	assert.Equal(t, 1, got.Position)
	assert.Equal(t, 5, got.EstimatedWaitTime)

	got = s.Tick(ctx)
	assert.Equal(t, 0, got.Position)
	assert.Equal(t, 0, got.EstimatedWaitTime)
	assert.True(t, got.YourTurn())

	drafts := n.all()
	require.Len(t, drafts, 2)
	assert.Equal(t, "You're Next in Queue", drafts[0].Title)
	assert.Equal(t, "It's Your Turn", drafts[1].Title)
	for _, d := range drafts {
		assert.True(t, d.Urgent)
		assert.Equal(t, notification.TypeQueue, d.Type)
	}
}

func TestTick_NextInQueueRequiresAlert(t *testing.T) {
	s, n := newTestSimulator(t, Info{Position: 2, TotalInQueue: 8, EstimatedWaitTime: 10}, DefaultConfig())

	s.Tick(context.Background())
	assert.Empty(t, n.all())

	s.Tick(context.Background())
	drafts := n.all()
	require.Len(t, drafts, 1)
	assert.Equal(t, "It's Your Turn", drafts[0].Title)
}

func TestTick_NoOpAtZero(t *testing.T) {
	s, n := newTestSimulator(t, Info{Position: 1, TotalInQueue: 8, EstimatedWaitTime: 5}, DefaultConfig())

	got := s.Tick(context.Background())
	assert.Equal(t, 0, got.Position)
	require.Len(t, n.all(), 1)

	again := s.Tick(context.Background())
	assert.Equal(t, got, again)
	assert.Len(t, n.all(), 1)
}

func TestTick_WaitTimeClampsAtZero(t *testing.T) {
	s, _ := newTestSimulator(t, Info{Position: 4, TotalInQueue: 8, EstimatedWaitTime: 3}, DefaultConfig())

	got := s.Tick(context.Background())
	assert.Equal(t, 0, got.EstimatedWaitTime)
	assert.Equal(t, 3, got.Position)
}

func TestToggleAlert(t *testing.T) {
	s, n := newTestSimulator(t, DefaultInfo(), DefaultConfig())

	on := s.ToggleAlert(context.Background())
	assert.True(t, on.AlertEnabled)
	drafts := n.all()
	require.Len(t, drafts, 1)
	assert.Equal(t, "Queue Alert Enabled", drafts[0].Title)
	assert.False(t, drafts[0].Urgent)

	off := s.ToggleAlert(context.Background())
	assert.False(t, off.AlertEnabled)
	assert.Len(t, n.all(), 1)
}

func TestProgress(t *testing.T) {
	tests := []struct {
		name string
		info Info
		want float64
	}{
		{"start of line", Info{Position: 8, TotalInQueue: 8}, 0},
		{"midway", Info{Position: 4, TotalInQueue: 8}, 50},
		{"at counter", Info{Position: 0, TotalInQueue: 8}, 100},
		{"empty queue", Info{Position: 0, TotalInQueue: 0}, 100},
		{"default", DefaultInfo(), 62.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, tt.info.Progress(), 0.001)
		})
	}
}

func TestNewSimulator_RejectsInvalidSeed(t *testing.T) {
	_, err := NewSimulator(Info{Position: 5, TotalInQueue: 2}, nil, DefaultConfig(), nil)
	require.Error(t, err)
	assert.True(t, apperror.IsValidation(err))

	_, err = NewSimulator(Info{Position: -1}, nil, DefaultConfig(), nil)
	assert.True(t, apperror.IsValidation(err))
}

func TestSeed(t *testing.T) {
	var observed []Info
	cfg := DefaultConfig()
	cfg.Observer = func(i Info) { observed = append(observed, i) }
	s, _ := newTestSimulator(t, DefaultInfo(), cfg)

	next := Info{Position: 6, TotalInQueue: 10, EstimatedWaitTime: 30}
	require.NoError(t, s.Seed(next))
	assert.Equal(t, next, s.Snapshot())
	assert.Equal(t, []Info{next}, observed)

	assert.Error(t, s.Seed(Info{Position: 3, TotalInQueue: 1}))
	assert.Equal(t, next, s.Snapshot())
}

func TestStartRunsUntilTurn(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Interval = 5 * time.Millisecond
	s, n := newTestSimulator(t, Info{Position: 3, TotalInQueue: 8, EstimatedWaitTime: 15, AlertEnabled: true}, cfg)

	s.Start()
	require.Eventually(t, func() bool { return !s.Running() }, time.Second, 5*time.Millisecond)

	assert.Equal(t, 0, s.Snapshot().Position)
	assert.Len(t, n.all(), 2)

	// Nothing left to do once the patient is at the counter.
	s.Start()
	assert.False(t, s.Running())
	s.Stop()
}

func TestStopHaltsLoop(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Interval = time.Hour
	s, _ := newTestSimulator(t, DefaultInfo(), cfg)

	s.Start()
	assert.True(t, s.Running())
	s.Start()

	s.Stop()
	assert.False(t, s.Running())
	assert.Equal(t, DefaultInfo(), s.Snapshot())

	s.Stop()
}
