package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/aryan0dhankhar/clinicdesk/internal/observability/metrics"
)

// Refresher reloads the local mirror from the backend.
type Refresher interface {
	Bootstrap(ctx context.Context) error
}

// SyncWorker periodically refreshes programs and clients so a long-running
// session sees changes made elsewhere.
type SyncWorker struct {
	refresher Refresher
	logger    *slog.Logger
	interval  time.Duration
	onSync    func(error)
}

// NewSyncWorker creates a new sync worker
func NewSyncWorker(refresher Refresher, logger *slog.Logger, interval time.Duration) *SyncWorker {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &SyncWorker{
		refresher: refresher,
		logger:    logger,
		interval:  interval,
	}
}

// OnSync registers a callback run after every sync with its result.
func (w *SyncWorker) OnSync(fn func(error)) {
	w.onSync = fn
}

// Start runs a sync immediately and then on every tick until ctx is done.
func (w *SyncWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("sync worker started", slog.Duration("interval", w.interval))
	w.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("sync worker stopped")
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single refresh.
func (w *SyncWorker) RunOnce(ctx context.Context) {
	start := time.Now()
	err := w.refresher.Bootstrap(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		metrics.ObserveSync("error")
		w.logger.Warn("sync failed",
			slog.String("error", err.Error()),
			slog.Duration("duration", time.Since(start)),
		)
	} else {
		metrics.ObserveSync("success")
		w.logger.Debug("sync complete", slog.Duration("duration", time.Since(start)))
	}
	if w.onSync != nil {
		w.onSync(err)
	}
}
