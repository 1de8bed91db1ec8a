// Package worker contains background workers that keep derived state tidy.
package worker

import (
	"context"
	"time"

	"github.com/matthewbaird/accountdesk/internal/logger"
)

// Sweeper drops expired cache entries.
type Sweeper interface {
	SweepExpired() int
}

// Cleaner drops idle wizard sessions.
type Cleaner interface {
	Cleanup(ctx context.Context) (int, error)
}

// MaintenanceWorker periodically sweeps the entity cache and the session
// store. The cache also sweeps itself on reads; this covers idle periods.
type MaintenanceWorker struct {
	cache    Sweeper
	sessions Cleaner
	interval time.Duration
	log      *logger.Logger
}

// NewMaintenanceWorker creates a worker ticking every interval. Either
// target may be nil.
func NewMaintenanceWorker(cache Sweeper, sessions Cleaner, interval time.Duration, log *logger.Logger) *MaintenanceWorker {
	if log == nil {
		log = logger.NewNop()
	}
	return &MaintenanceWorker{
		cache:    cache,
		sessions: sessions,
		interval: interval,
		log:      log.With("component", "maintenance"),
	}
}

// Run ticks until ctx is cancelled. It always returns nil.
func (w *MaintenanceWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.Tick(ctx)
		}
	}
}

// Tick runs one maintenance pass and reports what it removed.
func (w *MaintenanceWorker) Tick(ctx context.Context) (swept, cleaned int) {
	if w.cache != nil {
		swept = w.cache.SweepExpired()
	}
	if w.sessions != nil {
		n, err := w.sessions.Cleanup(ctx)
		if err != nil {
			w.log.Warn("session cleanup failed", "error", err)
		}
		cleaned = n
	}
	if swept > 0 || cleaned > 0 {
		w.log.Debug("maintenance pass", "cache_swept", swept, "sessions_cleaned", cleaned)
	}
	return swept, cleaned
}
