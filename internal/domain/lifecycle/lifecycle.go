// Package lifecycle moves in-progress prescriptions to ready-for-pickup after
// a randomized processing delay.
package lifecycle

import (
	"context"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/drfirst/go-rxportal/internal/domain/notification"
	"github.com/drfirst/go-rxportal/internal/domain/prescription"
)

// Store is the subset of the prescription store the simulator needs
type Store interface {
	List(filter prescription.Filter) []prescription.Prescription
	AdvanceIfStatus(id string, from, to prescription.Status) (prescription.Prescription, bool)
}

// Notifier receives the notifications the simulator emits
type Notifier interface {
	Create(ctx context.Context, d notification.Draft) (notification.Notification, error)
}

// Config holds simulator configuration
type Config struct {
	MinDelay time.Duration
	MaxDelay time.Duration
	// OnReady is called after a prescription has been advanced
	OnReady func(ctx context.Context, rx prescription.Prescription)
}

// DefaultConfig returns the reference 5-15 second processing window
func DefaultConfig() Config {
	return Config{
		MinDelay: 5 * time.Second,
		MaxDelay: 15 * time.Second,
	}
}

// Simulator keeps at most one pending timer per in-progress prescription
type Simulator struct {
	mu       sync.Mutex
	pending  map[string]*time.Timer
	stopped  bool
	store    Store
	notifier Notifier
	config   Config
	logger   *zap.Logger
}

// NewSimulator creates a lifecycle simulator
func NewSimulator(store Store, notifier Notifier, cfg Config, logger *zap.Logger) *Simulator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MinDelay <= 0 {
		cfg.MinDelay = DefaultConfig().MinDelay
	}
	if cfg.MaxDelay < cfg.MinDelay {
		cfg.MaxDelay = cfg.MinDelay
	}
	return &Simulator{
		pending:  make(map[string]*time.Timer),
		store:    store,
		notifier: notifier,
		config:   cfg,
		logger:   logger,
	}
}

// Arm schedules a timer for every in-progress prescription that does not
// already have one. It returns the number of timers scheduled.
func (s *Simulator) Arm(ctx context.Context) int {
	status := prescription.StatusInProgress
	candidates := s.store.List(prescription.Filter{Status: &status})

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return 0
	}

	armed := 0
	for _, rx := range candidates {
		if _, ok := s.pending[rx.ID]; ok {
			continue
		}
		id := rx.ID
		delay := s.delay()
		s.pending[id] = time.AfterFunc(delay, func() { s.fire(context.WithoutCancel(ctx), id) })
		armed++
		s.logger.Debug("prescription timer armed",
			zap.String("prescription_id", id),
			zap.Duration("delay", delay))
	}
	return armed
}

// Pending returns the ids with a scheduled timer, sorted
func (s *Simulator) Pending() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.pending))
	for id := range s.pending {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Stop cancels every pending timer. Arm is a no-op afterwards.
func (s *Simulator) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopped = true
	for id, t := range s.pending {
		t.Stop()
		delete(s.pending, id)
	}
	s.logger.Info("lifecycle simulator stopped")
}

func (s *Simulator) fire(ctx context.Context, id string) {
	// Clear the entry before advancing so an Arm racing with the advance
	// can schedule the next timer.
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	delete(s.pending, id)
	s.mu.Unlock()

	rx, changed := s.store.AdvanceIfStatus(id, prescription.StatusInProgress, prescription.StatusReadyForPickup)

	if !changed {
		s.logger.Debug("prescription timer fired without change", zap.String("prescription_id", id))
		return
	}

	s.logger.Info("prescription ready for pickup",
		zap.String("prescription_id", rx.ID),
		zap.String("name", rx.Name))

	if s.notifier != nil {
		_, err := s.notifier.Create(ctx, notification.Draft{
			Title:   "Prescription Ready",
			Message: "Your " + rx.Name + " is now ready for pickup.",
			Type:    notification.TypePrescription,
			Urgent:  rx.Urgent,
		})
		if err != nil {
			s.logger.Error("ready notification failed",
				zap.String("prescription_id", rx.ID),
				zap.Error(err))
		}
	}
	if s.config.OnReady != nil {
		s.config.OnReady(ctx, rx)
	}
}

func (s *Simulator) delay() time.Duration {
	spread := s.config.MaxDelay - s.config.MinDelay
	if spread <= 0 {
		return s.config.MinDelay
	}
	return s.config.MinDelay + rand.N(spread)
}
