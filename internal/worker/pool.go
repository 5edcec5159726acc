package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/harrisong/VideoStreaming-sub000/internal/domain"
	"github.com/harrisong/VideoStreaming-sub000/internal/logger"
)

// ErrShutdownTimeout is returned when in-flight jobs outlive the shutdown timeout.
var ErrShutdownTimeout = errors.New("worker pool shutdown timed out")

// Claimer hands out the next queued job.
type Claimer interface {
	ClaimNext(ctx context.Context, workerID string) (*domain.Job, error)
}

// Processor runs a claimed job to a terminal state.
type Processor interface {
	Process(ctx context.Context, job *domain.Job) (*domain.JobResult, error)
}

// Config holds worker pool configuration.
type Config struct {
	Workers      int
	PollInterval time.Duration
	// ShutdownTimeout is how long in-flight jobs may run after Stop before
	// their context is cancelled.
	ShutdownTimeout time.Duration
}

// Pool runs a fixed number of workers that claim jobs from the store and hand
// them to the ingest pipeline.
type Pool struct {
	workers         int
	pollInterval    time.Duration
	shutdownTimeout time.Duration
	claimer         Claimer
	processor       Processor
	tag             string

	wg sync.WaitGroup
	// ctx stops the claim loops; runCtx is given to in-flight jobs.
	ctx       context.Context
	cancel    context.CancelFunc
	runCtx    context.Context
	runCancel context.CancelFunc
	startOnce sync.Once
	stopOnce  sync.Once
}

// NewPool creates a new worker pool.
func NewPool(cfg Config, claimer Claimer, processor Processor) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	runCtx, runCancel := context.WithCancel(context.Background())

	return &Pool{
		workers:         cfg.Workers,
		pollInterval:    cfg.PollInterval,
		shutdownTimeout: cfg.ShutdownTimeout,
		claimer:         claimer,
		processor:       processor,
		tag:             hostTag(),
		ctx:             ctx,
		cancel:          cancel,
		runCtx:          runCtx,
		runCancel:       runCancel,
	}
}

// Start launches all workers. Calling it twice has no effect.
func (p *Pool) Start() {
	p.startOnce.Do(func() {
		logger.With(logger.Fields{logger.FieldCount: p.workers}).Info(context.Background(), "Starting worker pool")
		for i := 0; i < p.workers; i++ {
			p.wg.Add(1)
			go p.worker(i)
		}
	})
}

// Stop stops claiming new jobs and waits for in-flight jobs. Jobs still running
// after the shutdown timeout are cancelled, which records them as failed.
func (p *Pool) Stop() error {
	var err error
	p.stopOnce.Do(func() {
		err = p.stop()
	})
	return err
}

func (p *Pool) stop() error {
	log := logger.GetDefault()
	log.Info("Stopping worker pool")
	p.cancel()

	if p.wait(p.shutdownTimeout) {
		p.runCancel()
		log.Info("Worker pool stopped gracefully")
		return nil
	}

	log.Warn("Shutdown timeout reached, cancelling in-flight jobs")
	p.runCancel()

	// Cancelled jobs still write their failure, so give them one more window.
	if !p.wait(p.shutdownTimeout) {
		return ErrShutdownTimeout
	}
	return fmt.Errorf("%w: in-flight jobs were cancelled", ErrShutdownTimeout)
}

func (p *Pool) wait(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// WorkerID returns the tag stored on jobs claimed by worker n.
func (p *Pool) WorkerID(n int) string {
	return fmt.Sprintf("%s-%d", p.tag, n)
}

func (p *Pool) worker(n int) {
	defer p.wg.Done()

	workerID := p.WorkerID(n)
	ctx := logger.WithField(p.ctx, logger.FieldWorkerID, workerID)
	ctx = logger.SetComponent(ctx, "worker")
	logger.CtxInfo(ctx, "Worker started")

	for {
		if p.ctx.Err() != nil {
			logger.CtxInfo(ctx, "Worker stopping")
			return
		}

		if p.runOnce(ctx, workerID) {
			continue
		}

		select {
		case <-p.ctx.Done():
			logger.CtxInfo(ctx, "Worker stopping")
			return
		case <-time.After(p.pollInterval):
		}
	}
}

// runOnce claims and processes one job. It reports whether a job was claimed,
// so the caller can skip the poll wait while the queue is non-empty.
func (p *Pool) runOnce(ctx context.Context, workerID string) bool {
	job, err := p.claimer.ClaimNext(ctx, workerID)
	if err != nil {
		if !errors.Is(err, domain.ErrNoJobs) && ctx.Err() == nil {
			logger.FromContext(ctx).WithError(err).Error("Failed to claim job")
		}
		return false
	}

	// The job keeps running when the claim loop stops; only runCtx cancels it.
	jobCtx := logger.FromContext(ctx).WithContext(p.runCtx)
	if _, err := p.processor.Process(jobCtx, job); err != nil {
		logger.FromContext(ctx).WithField(logger.FieldJobID, job.ID).WithError(err).Debug("Job finished with failure")
	}
	return true
}

func hostTag() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}
