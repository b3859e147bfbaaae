// Package stats computes daily processing snapshots from queue records.
package stats

import (
	"sort"
	"time"

	"statements-backend/internal/processing"
)

// Snapshot summarizes the items whose UpdatedAt fell on Date.
type Snapshot struct {
	Date                     string  `json:"date"`
	PendingCount             int     `json:"pendingCount"`
	ProcessingCount          int     `json:"processingCount"`
	CompletedCount           int     `json:"completedCount"`
	FailedCount              int     `json:"failedCount"`
	TotalCount               int     `json:"totalCount"`
	AvgProcessingTimeSeconds float64 `json:"avgProcessingTimeSeconds"`
	SuccessRate              float64 `json:"successRate"`
}

// DayKey formats t as the UTC date used for snapshot keys.
func DayKey(t time.Time) string {
	return t.UTC().Format(time.DateOnly)
}

// Compute builds the snapshot for date from items. It does not filter items by
// date. Items are summed in id order so repeated calls give identical floats.
func Compute(date time.Time, items []processing.QueueItem) Snapshot {
	sorted := make([]processing.QueueItem, len(items))
	copy(sorted, items)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	snap := Snapshot{Date: DayKey(date)}
	var durSum float64
	var durN int
	for _, item := range sorted {
		switch item.Status {
		case processing.StatusPending:
			snap.PendingCount++
		case processing.StatusProcessing:
			snap.ProcessingCount++
		case processing.StatusCompleted:
			snap.CompletedCount++
		case processing.StatusFailed:
			snap.FailedCount++
		default:
			continue
		}
		snap.TotalCount++
		if !item.Status.Terminal() {
			continue
		}
		if d, ok := duration(item); ok {
			durSum += d
			durN++
		}
	}

	if durN > 0 {
		snap.AvgProcessingTimeSeconds = durSum / float64(durN)
	}
	if finished := snap.CompletedCount + snap.FailedCount; finished > 0 {
		snap.SuccessRate = float64(snap.CompletedCount) / float64(finished)
	}
	return snap
}

func duration(item processing.QueueItem) (float64, bool) {
	if item.StartedAt != nil && item.CompletedAt != nil && !item.CompletedAt.Before(*item.StartedAt) {
		return item.CompletedAt.Sub(*item.StartedAt).Seconds(), true
	}
	if item.ProcessingDurationSeconds != nil {
		return *item.ProcessingDurationSeconds, true
	}
	return 0, false
}

// ZeroFill returns one snapshot per day in [from, to], taking existing
// snapshots by date and an empty snapshot for every missing day.
func ZeroFill(from, to time.Time, snaps []Snapshot) []Snapshot {
	byDate := make(map[string]Snapshot, len(snaps))
	for _, s := range snaps {
		byDate[s.Date] = s
	}
	start := truncateDay(from)
	end := truncateDay(to)
	var out []Snapshot
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		key := DayKey(d)
		if s, ok := byDate[key]; ok {
			out = append(out, s)
			continue
		}
		out = append(out, Snapshot{Date: key})
	}
	return out
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
