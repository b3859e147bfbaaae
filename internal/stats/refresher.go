package stats

import (
	"context"
	"time"

	"statements-backend/internal/processing"
	"statements-backend/internal/shared/metrics"
	"statements-backend/internal/shared/telemetry"
)

// DefaultRefreshInterval matches the dashboard polling cadence.
const DefaultRefreshInterval = 30 * time.Second

// Counter reads the current per-status counts.
type Counter interface {
	CountsByStatus(ctx context.Context) (processing.Counts, error)
}

// Refresher recomputes today's snapshot and the queue depth gauges on a fixed
// interval. Each refresh overwrites the previous result, so running it more
// often only changes freshness.
type Refresher struct {
	Stats    *Service
	Counts   Counter
	Interval time.Duration
}

// NewRefresher constructs a Refresher. A non-positive interval uses
// DefaultRefreshInterval.
func NewRefresher(stats *Service, counts Counter, interval time.Duration) *Refresher {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	return &Refresher{Stats: stats, Counts: counts, Interval: interval}
}

// Run refreshes immediately and then on every tick until ctx is done.
func (r *Refresher) Run(ctx context.Context) {
	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()

	r.refreshLogged(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.refreshLogged(ctx)
		}
	}
}

func (r *Refresher) refreshLogged(ctx context.Context) {
	if err := r.Refresh(ctx); err != nil && ctx.Err() == nil {
		telemetry.Warn("stats.refresh_failed", map[string]any{"error": err})
	}
}

// Refresh runs one refresh cycle.
func (r *Refresher) Refresh(ctx context.Context) error {
	if r.Counts != nil {
		c, err := r.Counts.CountsByStatus(ctx)
		if err != nil {
			return err
		}
		metrics.SetQueueDepth(c.Pending, c.Processing, c.Completed, c.Failed)
	}

	snap, err := r.Stats.ComputeMetrics(ctx, r.Stats.now())
	if err != nil {
		return err
	}
	r.Stats.store(ctx, snap)
	return nil
}
