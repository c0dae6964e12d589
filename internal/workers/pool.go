package workers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"call-relay/internal/admission"
	"call-relay/internal/observability"
)

// ProcessingResult represents the result of processing a call.
type ProcessingResult struct {
	Job   CallJob
	Error error
}

// ResultCallback is called after each call is processed.
// The callback receives the job and any error that occurred.
type ResultCallback func(result ProcessingResult)

// WorkerPoolConfig holds configuration for the worker pool.
type WorkerPoolConfig struct {
	// NumWorkers is the number of concurrent workers to run.
	NumWorkers int

	// QueueSize is the size of the job queue buffer.
	// If the queue is full, Submit() will block.
	QueueSize int

	// DrainTimeout is the maximum time to wait for in-flight calls
	// to complete during graceful shutdown.
	DrainTimeout time.Duration

	// PacingDelay is how long a worker idles after finishing a call
	// before picking up the next one.
	PacingDelay time.Duration

	// OnResult is called after each call is processed (optional).
	OnResult ResultCallback
}

// DefaultWorkerPoolConfig returns sensible defaults for a worker pool.
func DefaultWorkerPoolConfig() WorkerPoolConfig {
	return WorkerPoolConfig{
		NumWorkers:   3,
		QueueSize:    100,
		DrainTimeout: 30 * time.Second,
		PacingDelay:  2 * time.Second,
	}
}

// pool implements the WorkerPool interface.
type pool struct {
	config    WorkerPoolConfig
	processor CallProcessor
	gate      *admission.Gate
	logger    *observability.Logger

	// Job distribution
	jobChan chan CallJob
	wg      sync.WaitGroup

	// Lifecycle management
	mu       sync.Mutex
	started  bool
	draining bool
	stopped  bool
	cancelFn context.CancelFunc
}

// NewWorkerPool creates a new worker pool for processing admitted calls.
// Every pipeline run holds a slot from the gate for its whole duration, so
// the gate bounds processing concurrency even if the pool is larger.
func NewWorkerPool(
	config WorkerPoolConfig,
	processor CallProcessor,
	gate *admission.Gate,
	logger *observability.Logger,
) WorkerPool {
	if config.NumWorkers <= 0 {
		config.NumWorkers = DefaultWorkerPoolConfig().NumWorkers
	}
	if config.QueueSize <= 0 {
		config.QueueSize = DefaultWorkerPoolConfig().QueueSize
	}
	if config.DrainTimeout <= 0 {
		config.DrainTimeout = DefaultWorkerPoolConfig().DrainTimeout
	}

	return &pool{
		config:    config,
		processor: processor,
		gate:      gate,
		logger:    logger,
		jobChan:   make(chan CallJob, config.QueueSize),
	}
}

// Start initializes the worker pool with N workers.
func (p *pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return fmt.Errorf("worker pool already started")
	}
	if p.stopped {
		return fmt.Errorf("worker pool already stopped")
	}

	// Create cancellable context for workers
	workerCtx, cancel := context.WithCancel(ctx)
	p.cancelFn = cancel
	p.started = true

	// Start worker goroutines
	for i := 0; i < p.config.NumWorkers; i++ {
		p.wg.Add(1)
		go p.worker(workerCtx, i)
	}

	p.logger.Info(ctx, fmt.Sprintf("Started %d workers for %s processor",
		p.config.NumWorkers, p.processor.Name()))

	return nil
}

// Submit adds a call to the worker pool for processing.
func (p *pool) Submit(ctx context.Context, job CallJob) error {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return fmt.Errorf("worker pool not started")
	}
	if p.draining || p.stopped {
		p.mu.Unlock()
		return fmt.Errorf("worker pool is shutting down")
	}
	p.mu.Unlock()

	// Block until the job can be queued or context cancelled
	select {
	case p.jobChan <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Drain stops accepting new calls and waits for in-flight calls to complete.
func (p *pool) Drain(ctx context.Context) error {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return fmt.Errorf("worker pool not started")
	}
	if p.draining {
		p.mu.Unlock()
		return fmt.Errorf("worker pool already draining")
	}
	p.draining = true
	p.mu.Unlock()

	p.logger.Info(ctx, fmt.Sprintf("Draining worker pool for %s processor, waiting for %d queued calls",
		p.processor.Name(), len(p.jobChan)))

	// Close job channel to signal no more calls will be submitted
	close(p.jobChan)

	// Wait for all workers to finish with timeout
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	// Apply drain timeout
	drainCtx, cancel := context.WithTimeout(ctx, p.config.DrainTimeout)
	defer cancel()

	select {
	case <-done:
		p.logger.Info(ctx, fmt.Sprintf("Successfully drained worker pool for %s processor",
			p.processor.Name()))
		return nil
	case <-drainCtx.Done():
		p.logger.Warn(ctx, fmt.Sprintf("Drain timeout exceeded for %s processor, forcing shutdown",
			p.processor.Name()))
		p.Stop()
		return fmt.Errorf("drain timeout exceeded")
	}
}

// Stop immediately stops all workers.
func (p *pool) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return
	}
	p.stopped = true

	if p.cancelFn != nil {
		p.cancelFn()
	}

	// Close channel if not already closed
	if !p.draining {
		close(p.jobChan)
	}
}

// worker is the main worker loop that processes calls from the queue.
func (p *pool) worker(ctx context.Context, workerID int) {
	defer p.wg.Done()

	workerCtx := observability.WithFields(ctx,
		observability.Field{Key: "worker_id", Value: workerID},
		observability.Field{Key: "processor", Value: p.processor.Name()},
	)

	p.logger.Info(workerCtx, fmt.Sprintf("Worker %d started for %s processor",
		workerID, p.processor.Name()))

	for {
		select {
		case <-ctx.Done():
			p.logger.Info(workerCtx, fmt.Sprintf("Worker %d stopping: context cancelled",
				workerID))
			return

		case job, ok := <-p.jobChan:
			if !ok {
				p.logger.Info(workerCtx, fmt.Sprintf("Worker %d stopping: job channel closed",
					workerID))
				return
			}

			jobCtx := observability.WithFields(workerCtx,
				observability.Field{Key: "call_id", Value: job.CallID},
				observability.Field{Key: "from_number", Value: job.FromNumber},
			)

			// Hold a processing slot for the whole run. If the slot never
			// frees before shutdown, the claim times out and the call
			// becomes reclaimable on redelivery.
			if err := p.gate.Acquire(ctx); err != nil {
				p.logger.InfoWithError(jobCtx, fmt.Sprintf("Worker %d stopping: gate acquire cancelled",
					workerID), err)
				return
			}

			err := func() error {
				defer p.gate.Release()
				return p.processor.Process(jobCtx, job)
			}()

			if err != nil {
				p.logger.Error(jobCtx, fmt.Sprintf("Worker %d failed to process call",
					workerID), err)
			} else {
				p.logger.Info(jobCtx, fmt.Sprintf("Worker %d successfully processed call",
					workerID))
			}

			// Notify result callback if configured
			if p.config.OnResult != nil {
				p.config.OnResult(ProcessingResult{
					Job:   job,
					Error: err,
				})
			}

			if p.config.PacingDelay > 0 {
				select {
				case <-time.After(p.config.PacingDelay):
				case <-ctx.Done():
					p.logger.Info(workerCtx, fmt.Sprintf("Worker %d stopping: context cancelled",
						workerID))
					return
				}
			}
		}
	}
}
