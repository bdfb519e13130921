// Package workerpool provides a bounded worker pool for slow outbound calls.
// Jobs run at most once; a failed job reports its error and is never retried.
package workerpool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Job is a unit of work. Run executes on a worker; Done, when set,
// receives Run's outcome on the same worker.
type Job struct {
	ID      string
	Context context.Context
	Run     func(ctx context.Context) (interface{}, error)
	Done    func(result interface{}, err error)
}

// Config holds worker pool configuration
type Config struct {
	// Workers is the number of concurrent workers
	Workers int
	// QueueSize is the size of the job queue
	QueueSize int
	// GracefulShutdownTimeout bounds how long Stop waits for running jobs
	GracefulShutdownTimeout time.Duration
}

// DefaultConfig returns defaults sized for a handful of long-running model calls
func DefaultConfig() Config {
	return Config{
		Workers:                 8,
		QueueSize:               64,
		GracefulShutdownTimeout: 30 * time.Second,
	}
}

var (
	// ErrQueueFull is returned when the queue cannot take another job
	ErrQueueFull = errors.New("job queue is full")
	// ErrStopped is returned when submitting to a stopped pool
	ErrStopped = errors.New("pool is shutting down")
)

// Pool manages a fixed set of workers
type Pool struct {
	config Config
	logger *zap.Logger

	jobs chan *Job
	wg   sync.WaitGroup

	mu      sync.RWMutex
	stopped bool

	ctx    context.Context
	cancel context.CancelFunc

	submitted int64
	completed int64
	failed    int64
	active    int64
}

// New creates a new worker pool
func New(cfg Config, logger *zap.Logger) *Pool {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultConfig().Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultConfig().QueueSize
	}
	if cfg.GracefulShutdownTimeout <= 0 {
		cfg.GracefulShutdownTimeout = DefaultConfig().GracefulShutdownTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		config: cfg,
		logger: logger,
		jobs:   make(chan *Job, cfg.QueueSize),
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
func (p *Pool) Submit(job *Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.stopped {
		return ErrStopped
	}

	select {
	case p.jobs <- job:
		atomic.AddInt64(&p.submitted, 1)
		return nil
	default:
		return ErrQueueFull
	}
}

// Stop stops accepting jobs, cancels running ones after the grace period
// and waits for the workers to exit.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.jobs)
	p.mu.Unlock()

	p.logger.Info("stopping worker pool")

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool stopped gracefully")
	case <-time.After(p.config.GracefulShutdownTimeout):
		p.logger.Warn("worker pool shutdown timed out, cancelling jobs")
		p.cancel()
		<-done
	}
	p.cancel()
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for job := range p.jobs {
		p.run(id, job)
	}
}

func (p *Pool) run(workerID int, job *Job) {
	atomic.AddInt64(&p.active, 1)
	defer atomic.AddInt64(&p.active, -1)

	ctx := job.Context
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := mergeCancel(ctx, p.ctx)
	defer stop()

	var (
		result interface{}
		err    error
	)
	if ctx.Err() != nil {
		err = ctx.Err()
	} else {
		result, err = p.safeRun(ctx, job)
	}

	if err != nil {
		atomic.AddInt64(&p.failed, 1)
		p.logger.Debug("job failed",
			zap.String("job_id", job.ID),
			zap.Int("worker_id", workerID),
			zap.Error(err))
	} else {
		atomic.AddInt64(&p.completed, 1)
	}

	if job.Done != nil {
		job.Done(result, err)
	}
}

func (p *Pool) safeRun(ctx context.Context, job *Job) (result interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("job panicked", zap.String("job_id", job.ID), zap.Any("panic", r))
			err = errors.New("job panicked")
		}
	}()
	return job.Run(ctx)
}

// mergeCancel returns a context cancelled when either parent is done
func mergeCancel(ctx, other context.Context) (context.Context, context.CancelFunc) {
	merged, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(other, cancel)
	return merged, func() {
		stop()
		cancel()
	}
}

// Stats returns current pool statistics
type Stats struct {
	Submitted     int64 `json:"submitted"`
	Completed     int64 `json:"completed"`
	Failed        int64 `json:"failed"`
	Active        int64 `json:"active"`
	QueueDepth    int   `json:"queue_depth"`
	QueueCapacity int   `json:"queue_capacity"`
	Workers       int   `json:"workers"`
}

// Stats returns current pool statistics
func (p *Pool) Stats() Stats {
	return Stats{
		Submitted:     atomic.LoadInt64(&p.submitted),
		Completed:     atomic.LoadInt64(&p.completed),
		Failed:        atomic.LoadInt64(&p.failed),
		Active:        atomic.LoadInt64(&p.active),
		QueueDepth:    len(p.jobs),
		QueueCapacity: p.config.QueueSize,
		Workers:       p.config.Workers,
	}
}

// IsHealthy returns true if the queue isn't backing up
func (p *Pool) IsHealthy() bool {
	stats := p.Stats()
	return float64(stats.QueueDepth)/float64(stats.QueueCapacity) < 0.9
}
