package stats

import (
	"context"
	"fmt"
	"sort"
	"time"

	"statements-backend/internal/processing"
	"statements-backend/internal/shared/apperr"
	"statements-backend/internal/shared/telemetry"
)

// MaxRangeDays bounds a series request.
const MaxRangeDays = 366

// ItemSource reads queue items by update time.
type ItemSource interface {
	ItemsUpdatedBetween(ctx context.Context, from, to time.Time) ([]processing.QueueItem, error)
}

// Service computes snapshots over the queue store. MaxAge bounds how old a
// cached snapshot Today may return; zero uses DefaultRefreshInterval.
type Service struct {
	Items  ItemSource
	Cache  SnapshotCache
	Now    func() time.Time
	MaxAge time.Duration
}

// NewService constructs a Service. cache may be nil.
func NewService(items ItemSource, cache SnapshotCache) *Service {
	return &Service{Items: items, Cache: cache}
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// ComputeMetrics returns the snapshot for the UTC day of date.
func (s *Service) ComputeMetrics(ctx context.Context, date time.Time) (Snapshot, error) {
	day := truncateDay(date)
	items, err := s.Items.ItemsUpdatedBetween(ctx, day, day.AddDate(0, 0, 1))
	if err != nil {
		return Snapshot{}, fmt.Errorf("compute metrics %s: %w", DayKey(day), err)
	}
	return Compute(day, items), nil
}

// Series returns one snapshot per day in [from, to], days without updates
// zero-filled.
func (s *Service) Series(ctx context.Context, from, to time.Time) ([]Snapshot, error) {
	start, end := truncateDay(from), truncateDay(to)
	if end.Before(start) {
		return nil, apperr.Validation("to", "must not be before from")
	}
	if end.Sub(start) > MaxRangeDays*24*time.Hour {
		return nil, apperr.Validation("to", fmt.Sprintf("range must not exceed %d days", MaxRangeDays))
	}

	items, err := s.Items.ItemsUpdatedBetween(ctx, start, end.AddDate(0, 0, 1))
	if err != nil {
		return nil, fmt.Errorf("compute metrics series: %w", err)
	}
	byDay := make(map[string][]processing.QueueItem)
	for _, item := range items {
		key := DayKey(item.UpdatedAt)
		byDay[key] = append(byDay[key], item)
	}
	days := make([]string, 0, len(byDay))
	for key := range byDay {
		days = append(days, key)
	}
	sort.Strings(days)

	snaps := make([]Snapshot, 0, len(days))
	for _, key := range days {
		day, _ := time.Parse(time.DateOnly, key)
		snaps = append(snaps, Compute(day, byDay[key]))
	}
	return ZeroFill(start, end, snaps), nil
}

func (s *Service) maxAge() time.Duration {
	if s.MaxAge > 0 {
		return s.MaxAge
	}
	return DefaultRefreshInterval
}

// Today returns the cached snapshot for the current day, computing and
// caching it on a miss or when the cached one is older than MaxAge. Without a
// running Refresher the snapshot is recomputed on read.
func (s *Service) Today(ctx context.Context) (Snapshot, error) {
	today := s.now()
	key := DayKey(today)
	if s.Cache != nil {
		entry, ok, err := s.Cache.Get(ctx, key)
		switch {
		case err != nil:
			telemetry.Warn("stats.cache_get_failed", map[string]any{"date": key, "error": err})
		case ok && fresh(entry.ComputedAt, today, s.maxAge()):
			return entry.Snapshot, nil
		}
	}
	snap, err := s.ComputeMetrics(ctx, today)
	if err != nil {
		return Snapshot{}, err
	}
	s.store(ctx, snap)
	return snap, nil
}

func fresh(computedAt, now time.Time, maxAge time.Duration) bool {
	age := now.Sub(computedAt)
	return age >= 0 && age < maxAge
}

func (s *Service) store(ctx context.Context, snap Snapshot) {
	if s.Cache == nil {
		return
	}
	if err := s.Cache.Put(ctx, CachedSnapshot{Snapshot: snap, ComputedAt: s.now()}); err != nil {
		telemetry.Warn("stats.cache_put_failed", map[string]any{"date": snap.Date, "error": err})
	}
}
