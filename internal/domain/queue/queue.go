// Package queue simulates the patient's place in the pharmacy pickup line.
package queue

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/drfirst/go-rxportal/internal/apperror"
	"github.com/drfirst/go-rxportal/internal/domain/notification"
)

// Info is the patient's queue record
type Info struct {
	Position          int  `json:"position"`
	EstimatedWaitTime int  `json:"estimatedWaitTime"`
	TotalInQueue      int  `json:"totalInQueue"`
	AlertEnabled      bool `json:"alertEnabled"`
}

// YourTurn reports whether the patient has reached the counter
func (i Info) YourTurn() bool { return i.Position == 0 }

// Progress returns how far through the line the patient is, as a percentage
func (i Info) Progress() float64 {
	if i.TotalInQueue <= 0 {
		return 100
	}
	p := float64(i.TotalInQueue-i.Position) / float64(i.TotalInQueue) * 100
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	}
	return p
}

// Validate checks the record's invariants
func (i Info) Validate() error {
	if i.Position < 0 {
		return apperror.Validation("position", "must not be negative")
	}
	if i.EstimatedWaitTime < 0 {
		return apperror.Validation("estimatedWaitTime", "must not be negative")
	}
	if i.TotalInQueue < i.Position {
		return apperror.Validation("totalInQueue", "must be at least position")
	}
	return nil
}

// DefaultInfo is the queue record a session starts with
func DefaultInfo() Info {
	return Info{Position: 3, EstimatedWaitTime: 15, TotalInQueue: 8}
}

// Notifier receives the notifications the simulator emits
type Notifier interface {
	Create(ctx context.Context, d notification.Draft) (notification.Notification, error)
}

// Config holds simulator configuration
type Config struct {
	// Interval between position updates
	Interval time.Duration
	// WaitStep is the number of minutes removed from the estimate per update
	WaitStep int
	// Observer is called with the new record after every change
	Observer func(Info)
}

// DefaultConfig returns the reference timing
func DefaultConfig() Config {
	return Config{
		Interval: 10 * time.Second,
		WaitStep: 5,
	}
}

// Simulator advances the queue on a fixed interval until the patient's turn
type Simulator struct {
	mu       sync.Mutex
	info     Info
	config   Config
	notifier Notifier
	logger   *zap.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewSimulator creates a simulator seeded with info
func NewSimulator(info Info, notifier Notifier, cfg Config, logger *zap.Logger) (*Simulator, error) {
	if err := info.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	if cfg.WaitStep <= 0 {
		cfg.WaitStep = DefaultConfig().WaitStep
	}
	return &Simulator{
		info:     info,
		config:   cfg,
		notifier: notifier,
		logger:   logger,
	}, nil
}

// Snapshot returns the current record
func (s *Simulator) Snapshot() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info
}

// Seed replaces the record, e.g. when the patient joins a new line. The
// periodic loop is not restarted; call Start again.
func (s *Simulator) Seed(info Info) error {
	if err := info.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.info = info
	s.mu.Unlock()
	s.observe(info)
	return nil
}

// Tick moves the patient one place forward. Once the position is zero it
// does nothing.
func (s *Simulator) Tick(ctx context.Context) Info {
	s.mu.Lock()
	prev := s.info
	if prev.Position == 0 {
		s.mu.Unlock()
		return prev
	}

	next := prev
	next.Position = max(prev.Position-1, 0)
	next.EstimatedWaitTime = max(prev.EstimatedWaitTime-s.config.WaitStep, 0)
	s.info = next
	s.mu.Unlock()

	s.observe(next)

	if next.Position == 1 && prev.AlertEnabled {
		s.emit(ctx, notification.Draft{
			Title:   "You're Next in Queue",
			Message: "Please proceed to the pharmacy counter. Your turn is coming up!",
			Type:    notification.TypeQueue,
			Urgent:  true,
		})
	}
	if next.Position == 0 {
		s.emit(ctx, notification.Draft{
			Title:   "It's Your Turn",
			Message: "Please proceed to the pharmacy counter immediately.",
			Type:    notification.TypeQueue,
			Urgent:  true,
		})
	}

	return next
}

// ToggleAlert flips the "notify me when I'm next" flag
func (s *Simulator) ToggleAlert(ctx context.Context) Info {
	s.mu.Lock()
	s.info.AlertEnabled = !s.info.AlertEnabled
	info := s.info
	s.mu.Unlock()

	s.observe(info)

	if info.AlertEnabled {
		s.emit(ctx, notification.Draft{
			Title:   "Queue Alert Enabled",
			Message: "You will be notified when it's your turn.",
			Type:    notification.TypeQueue,
		})
	}
	return info
}

// Start launches the periodic loop. It is a no-op if the loop is already
// running or the patient is already at the counter.
func (s *Simulator) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil || s.info.Position == 0 {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done

	go s.run(ctx, cancel, done)

	s.logger.Info("queue simulator started",
		zap.Int("position", s.info.Position),
		zap.Duration("interval", s.config.Interval))
}

// Stop cancels the periodic loop and waits for it to exit
func (s *Simulator) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.logger.Info("queue simulator stopped")
}

// Running reports whether the periodic loop is active
func (s *Simulator) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

func (s *Simulator) run(ctx context.Context, cancel context.CancelFunc, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if info := s.Tick(ctx); info.Position > 0 {
				continue
			}
			// Reached the counter: nothing left to schedule.
			s.mu.Lock()
			if s.done == done {
				s.cancel, s.done = nil, nil
			}
			s.mu.Unlock()
			cancel()
			s.logger.Info("queue simulator finished")
			return
		}
	}
}

func (s *Simulator) emit(ctx context.Context, d notification.Draft) {
	if s.notifier == nil {
		return
	}
	if _, err := s.notifier.Create(ctx, d); err != nil {
		s.logger.Error("queue notification failed",
			zap.String("title", d.Title),
			zap.Error(err))
	}
}

func (s *Simulator) observe(info Info) {
	if s.config.Observer != nil {
		s.config.Observer(info)
	}
}
