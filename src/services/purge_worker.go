package services

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/username/splitfolio/backend/src/logger"
	"github.com/username/splitfolio/backend/src/model"
)

// RequestPurgeWorker deletes confirmation requests older than the retention
// window on a fixed interval. Pending requests past the window are purged
// too; a request that was never answered within the window is treated as
// abandoned.
type RequestPurgeWorker struct {
	db        *sql.DB
	retention time.Duration
	interval  time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewRequestPurgeWorker(db *sql.DB, retention, interval time.Duration) *RequestPurgeWorker {
	return &RequestPurgeWorker{db: db, retention: retention, interval: interval}
}

// Start launches the background loop. One sweep runs immediately so a
// long-stopped server catches up on restart.
func (w *RequestPurgeWorker) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()

		w.sweep()
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				w.sweep()
			}
		}
	}()
	logger.L.Info("Request purge worker started", "retention", w.retention.String(), "interval", w.interval.String())
}

// Stop cancels the loop and waits for an in-flight sweep to finish.
func (w *RequestPurgeWorker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
	logger.L.Info("Request purge worker stopped")
}

func (w *RequestPurgeWorker) sweep() {
	cutoff := time.Now().Add(-w.retention)
	purged, err := model.DeleteRequestsBefore(w.db, cutoff)
	if err != nil {
		logger.L.Error("Request purge sweep failed", "error", err)
		return
	}
	if purged > 0 {
		logger.L.Info("Purged expired confirmation requests", "count", purged, "cutoff", cutoff.Format(time.RFC3339))
	}
}
