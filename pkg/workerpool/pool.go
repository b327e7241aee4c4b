// Package workerpool runs background jobs on a fixed set of goroutines with a
// bounded queue. Event publication and notification delivery use it so a slow
// downstream never blocks the request path.
package workerpool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrClosed is returned by Submit after Stop has been called
	ErrClosed = errors.New("worker pool is stopped")
	// ErrQueueFull is returned by Submit when the queue has no free slot
	ErrQueueFull = errors.New("worker pool queue is full")
)

// Job is a unit of background work
type Job struct {
	// Name identifies the job in logs, e.g. "publish:notification.created"
	Name string
	// Context is used for the job run; the pool context is used when nil
	Context context.Context
	Run     func(ctx context.Context) error
}

// Config holds worker pool configuration
type Config struct {
	// Workers is the number of concurrent workers
	Workers int
	// QueueSize is the number of jobs that may wait for a worker
	QueueSize int
	// MaxRetries is the number of extra attempts after a failed run
	MaxRetries int
	// RetryDelay is multiplied by the attempt number between retries
	RetryDelay time.Duration
	// ShutdownTimeout bounds how long Stop waits for queued jobs to drain
	ShutdownTimeout time.Duration
	// OnFailure is called once a job has exhausted its retries
	OnFailure func(job Job, err error)
}

// DefaultConfig returns defaults sized for a single portal process
func DefaultConfig() Config {
	return Config{
		Workers:         4,
		QueueSize:       1024,
		MaxRetries:      2,
		RetryDelay:      100 * time.Millisecond,
		ShutdownTimeout: 10 * time.Second,
	}
}

// Pool manages a set of workers draining a job queue
type Pool struct {
	config Config
	logger *zap.Logger

	mu     sync.RWMutex
	closed bool
	jobs   chan Job
	wg     sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc

	submitted int64
	completed int64
	failed    int64
	retried   int64
	active    int64
	depth     int64
}

// New creates a pool. Call Start to launch the workers.
func New(cfg Config, logger *zap.Logger) *Pool {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = def.ShutdownTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		config: cfg,
		logger: logger,
		jobs:   make(chan Job, cfg.QueueSize),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start launches all workers
func (p *Pool) Start() {
	for i := 0; i < p.config.Workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	p.logger.Info("worker pool started",
		zap.Int("workers", p.config.Workers),
		zap.Int("queue_size", p.config.QueueSize))
}

// Submit enqueues a job without blocking
func (p *Pool) Submit(job Job) error {
	if job.Run == nil {
		return fmt.Errorf("job %q has no run function", job.Name)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrClosed
	}

	select {
	case p.jobs <- job:
		atomic.AddInt64(&p.submitted, 1)
		atomic.AddInt64(&p.depth, 1)
		return nil
	default:
		return ErrQueueFull
	}
}

// Stop rejects new jobs, lets queued jobs finish and waits for the workers,
// up to the shutdown timeout. Calling Stop twice is safe.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()

	p.logger.Info("stopping worker pool", zap.Int64("queued", atomic.LoadInt64(&p.depth)))

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool stopped gracefully")
	case <-time.After(p.config.ShutdownTimeout):
		p.cancel()
		p.logger.Warn("worker pool shutdown timed out, cancelling in-flight jobs")
		<-done
	}
	p.cancel()
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	atomic.AddInt64(&p.active, 1)
	defer atomic.AddInt64(&p.active, -1)

	for job := range p.jobs {
		atomic.AddInt64(&p.depth, -1)
		p.run(id, job)
	}
}

func (p *Pool) run(workerID int, job Job) {
	ctx := job.Context
	if ctx == nil {
		ctx = p.ctx
	}

	var err error
	for attempt := 0; attempt <= p.config.MaxRetries; attempt++ {
		if err = ctx.Err(); err != nil {
			break
		}
		if err = job.Run(ctx); err == nil {
			atomic.AddInt64(&p.completed, 1)
			return
		}
		if attempt == p.config.MaxRetries {
			break
		}

		atomic.AddInt64(&p.retried, 1)
		p.logger.Debug("retrying job",
			zap.String("job", job.Name),
			zap.Int("attempt", attempt+1),
			zap.Error(err))

		select {
		case <-ctx.Done():
		case <-time.After(p.config.RetryDelay * time.Duration(attempt+1)):
		}
	}

	atomic.AddInt64(&p.failed, 1)
	p.logger.Error("job failed",
		zap.String("job", job.Name),
		zap.Int("worker_id", workerID),
		zap.Error(err))
	if p.config.OnFailure != nil {
		p.config.OnFailure(job, err)
	}
}

// Stats is a point-in-time view of the pool counters
type Stats struct {
	Submitted     int64 `json:"submitted"`
	Completed     int64 `json:"completed"`
	Failed        int64 `json:"failed"`
	Retried       int64 `json:"retried"`
	ActiveWorkers int64 `json:"activeWorkers"`
	QueueDepth    int64 `json:"queueDepth"`
	QueueCapacity int   `json:"queueCapacity"`
}

// Stats returns current pool statistics
func (p *Pool) Stats() Stats {
	return Stats{
		Submitted:     atomic.LoadInt64(&p.submitted),
		Completed:     atomic.LoadInt64(&p.completed),
		Failed:        atomic.LoadInt64(&p.failed),
		Retried:       atomic.LoadInt64(&p.retried),
		ActiveWorkers: atomic.LoadInt64(&p.active),
		QueueDepth:    atomic.LoadInt64(&p.depth),
		QueueCapacity: p.config.QueueSize,
	}
}

// IsHealthy reports whether the pool is accepting work and not backing up
func (p *Pool) IsHealthy() bool {
	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()
	if closed {
		return false
	}
	s := p.Stats()
	return float64(s.QueueDepth)/float64(s.QueueCapacity) < 0.9
}
