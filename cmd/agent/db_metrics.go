package main

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/blueberrycongee/murmur/internal/metrics"
)

type poolStatser interface {
	Stats() sql.DBStats
}

// poolWatcher samples the memory store pool and warns when callers start queueing for
// connections, which precedes the acquire timeouts the store reports as storage errors.
type poolWatcher struct {
	src       poolStatser
	logger    *slog.Logger
	lastWaits int64
}

func (w *poolWatcher) sample() {
	stats := w.src.Stats()
	metrics.ObserveStorePool(stats)

	if waited := stats.WaitCount - w.lastWaits; waited > 0 {
		w.logger.Warn("memory store pool saturated",
			"new_waits", waited,
			"in_use", stats.InUse,
			"limit", stats.MaxOpenConnections,
		)
	}
	w.lastWaits = stats.WaitCount
}

// watchStorePool samples src every interval until ctx is done.
func watchStorePool(ctx context.Context, src poolStatser, logger *slog.Logger, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	w := &poolWatcher{src: src, logger: logger}
	w.sample()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sample()
		}
	}
}
