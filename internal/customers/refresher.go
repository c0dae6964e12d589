package customers

import (
	"context"
	"time"

	"call-relay/internal/observability"
)

// Refresher re-pulls the customer sheet on an interval so the cache tracks
// sheet edits without restarts.
type Refresher struct {
	directory *Directory
	logger    *observability.Logger
	stopChan  chan bool
	interval  time.Duration
}

func NewRefresher(directory *Directory, logger *observability.Logger, interval time.Duration) *Refresher {
	return &Refresher{
		directory: directory,
		logger:    logger,
		stopChan:  make(chan bool),
		interval:  interval,
	}
}

// Start begins the refresh loop. Blocks until Stop is called or the context
// is cancelled.
func (w *Refresher) Start(ctx context.Context) {
	w.logger.Info(ctx, "starting customer directory refresher")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	// Refresh immediately on start
	w.refresh(ctx)

	for {
		select {
		case <-ticker.C:
			w.refresh(ctx)
		case <-w.stopChan:
			w.logger.Info(ctx, "customer directory refresher stopped")
			return
		case <-ctx.Done():
			w.logger.Info(ctx, "customer directory refresher context cancelled")
			return
		}
	}
}

// Stop signals the refresher to stop.
func (w *Refresher) Stop() {
	close(w.stopChan)
}

func (w *Refresher) refresh(ctx context.Context) {
	if err := w.directory.Refresh(ctx); err != nil {
		w.logger.InfoWithError(ctx, "customer directory refresh failed, keeping previous cache", err)
	}
}
