package roster

import (
	"context"
	"time"

	"call-relay/internal/observability"
)

// Refresher reloads the agent mapping on an interval so directory edits are
// picked up without a restart.
type Refresher struct {
	roster   *Roster
	logger   *observability.Logger
	stopChan chan bool
	interval time.Duration
}

func NewRefresher(roster *Roster, logger *observability.Logger, interval time.Duration) *Refresher {
	return &Refresher{
		roster:   roster,
		logger:   logger,
		stopChan: make(chan bool),
		interval: interval,
	}
}

// Start begins the reload loop. Blocks until Stop is called or the context
// is cancelled.
func (w *Refresher) Start(ctx context.Context) {
	w.logger.Info(ctx, "starting roster refresher")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	// Reload immediately on start
	w.reload(ctx)

	for {
		select {
		case <-ticker.C:
			w.reload(ctx)
		case <-w.stopChan:
			w.logger.Info(ctx, "roster refresher stopped")
			return
		case <-ctx.Done():
			w.logger.Info(ctx, "roster refresher context cancelled")
			return
		}
	}
}

// Stop signals the refresher to stop.
func (w *Refresher) Stop() {
	close(w.stopChan)
}

func (w *Refresher) reload(ctx context.Context) {
	if err := w.roster.Load(ctx); err != nil {
		w.logger.InfoWithError(ctx, "agent mapping reload failed, keeping previous directory", err)
	}
}
