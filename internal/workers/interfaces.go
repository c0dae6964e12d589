package workers

import (
	"context"

	"call-relay/internal/calls"
)

// CallJob is an alias for the admitted call event type.
// This allows worker packages to reference CallJob without importing calls directly.
type CallJob = calls.Job

// CallProcessor defines the interface for running the processing pipeline on a call.
// Implementations should be idempotent as webhook events may be redelivered.
type CallProcessor interface {
	// Process handles a single admitted call. The claim for the call is
	// already held; Process must settle it with exactly one outcome commit.
	Process(ctx context.Context, job CallJob) error

	// Name returns the processor name for logging and metrics.
	Name() string
}

// WorkerPool defines the interface for managing a pool of call processing workers.
type WorkerPool interface {
	// Start initializes the worker pool with N workers.
	// Each worker will process calls by calling the CallProcessor.
	Start(ctx context.Context) error

	// Submit adds a call to the worker pool for processing.
	// Blocks if the job queue is full.
	Submit(ctx context.Context, job CallJob) error

	// Drain stops accepting new calls and waits for in-flight calls to complete.
	// Returns after all workers have finished processing or context is cancelled.
	Drain(ctx context.Context) error

	// Stop immediately stops all workers.
	Stop()
}
