package admission

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Gate bounds how many call pipelines run at once. Every worker must
// acquire a slot before processing and give it back when done.
type Gate struct {
	sem *semaphore.Weighted
}

// NewGate creates a gate with the given number of slots.
func NewGate(maxConcurrent int) *Gate {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Gate{sem: semaphore.NewWeighted(int64(maxConcurrent))}
}

// Acquire blocks until a slot frees up or ctx is done.
func (g *Gate) Acquire(ctx context.Context) error {
	return g.sem.Acquire(ctx, 1)
}

// Release returns a slot to the gate.
func (g *Gate) Release() {
	g.sem.Release(1)
}
