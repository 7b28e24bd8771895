package reputation

import (
	"context"
	"log/slog"
	"time"
)

// Worker periodically recomputes reputation for users whose score has gone
// stale. Manual awards and event-driven recomputes keep most users fresh;
// the worker is the backstop for the rest.
type Worker struct {
	service  *Service
	interval time.Duration
	maxAge   time.Duration
	batch    int
	logger   *slog.Logger
	now      func() time.Time

	stop chan struct{}
}

// NewWorker creates a recompute worker. Users untouched for maxAge are
// refreshed in batches of batch per tick.
func NewWorker(service *Service, interval, maxAge time.Duration, batch int, logger *slog.Logger) *Worker {
	return &Worker{
		service:  service,
		interval: interval,
		maxAge:   maxAge,
		batch:    batch,
		logger:   logger,
		now:      time.Now,
		stop:     make(chan struct{}, 1),
	}
}

// Start runs the recompute loop until Stop is called or ctx is done.
// Call in a goroutine.
func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("reputation worker started", "interval", w.interval, "max_age", w.maxAge)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// Stop signals the loop to exit. Safe to call more than once.
func (w *Worker) Stop() {
	select {
	case w.stop <- struct{}{}:
	default:
	}
}

// RunOnce refreshes one batch of stale users. Individual failures are logged
// and skipped.
func (w *Worker) RunOnce(ctx context.Context) {
	cutoff := w.now().Add(-w.maxAge)
	stale, err := w.service.users.ListStaleReputation(ctx, cutoff, w.batch)
	if err != nil {
		w.logger.Error("stale reputation query failed", "error", err)
		return
	}
	if len(stale) == 0 {
		return
	}

	w.logger.Debug("refreshing stale reputations", "count", len(stale))
	for _, u := range stale {
		if _, err := w.service.Compute(ctx, u.ID); err != nil {
			w.logger.Error("reputation refresh failed", "user_id", u.ID, "error", err)
		}
	}
}
