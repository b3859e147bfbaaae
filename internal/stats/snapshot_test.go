package stats

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"statements-backend/internal/processing"
)

var day = time.Date(2026, 5, 4, 0, 0, 0, 0, time.UTC)

func finished(id string, status processing.Status, seconds int) processing.QueueItem {
	start := day.Add(9 * time.Hour)
	end := start.Add(time.Duration(seconds) * time.Second)
	return processing.QueueItem{ID: id, Status: status, StartedAt: &start, CompletedAt: &end, UpdatedAt: end}
}

func twelveItems() []processing.QueueItem {
	var items []processing.QueueItem
	for i, secs := range []int{10, 20, 30, 40, 50} {
		items = append(items, finished(fmt.Sprintf("c-%d", i), processing.StatusCompleted, secs))
	}
	for i := 0; i < 3; i++ {
		items = append(items, finished(fmt.Sprintf("f-%d", i), processing.StatusFailed, 5))
	}
	for i := 0; i < 2; i++ {
		items = append(items,
			processing.QueueItem{ID: fmt.Sprintf("p-%d", i), Status: processing.StatusProcessing, UpdatedAt: day.Add(time.Hour)},
			processing.QueueItem{ID: fmt.Sprintf("q-%d", i), Status: processing.StatusPending, UpdatedAt: day.Add(time.Hour)},
		)
	}
	return items
}

func TestComputeCountsAndRates(t *testing.T) {
	snap := Compute(day, twelveItems())

	assert.Equal(t, Snapshot{
		Date:                     "2026-05-04",
		PendingCount:             2,
		ProcessingCount:          2,
		CompletedCount:           5,
		FailedCount:              3,
		TotalCount:               12,
		AvgProcessingTimeSeconds: 20.625,
		SuccessRate:              0.625,
	}, snap)
}

func TestComputeIsDeterministic(t *testing.T) {
	items := twelveItems()
	d := 0.1
	items = append(items, processing.QueueItem{ID: "z-1", Status: processing.StatusCompleted, ProcessingDurationSeconds: &d})
	first := Compute(day, items)

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 20; i++ {
		rng.Shuffle(len(items), func(a, b int) { items[a], items[b] = items[b], items[a] })
		require.Equal(t, first, Compute(day, items))
	}
}

func TestComputeEmptyDay(t *testing.T) {
	snap := Compute(day, nil)
	assert.Equal(t, Snapshot{Date: "2026-05-04"}, snap)
}

func TestComputeFallsBackToReportedDuration(t *testing.T) {
	d := 12.5
	snap := Compute(day, []processing.QueueItem{{ID: "a", Status: processing.StatusFailed, ProcessingDurationSeconds: &d}})
	assert.Equal(t, 12.5, snap.AvgProcessingTimeSeconds)
	assert.Equal(t, 0.0, snap.SuccessRate)
}

func TestZeroFill(t *testing.T) {
	got := ZeroFill(day, day.AddDate(0, 0, 3), []Snapshot{
		{Date: "2026-05-05", CompletedCount: 1, TotalCount: 1, SuccessRate: 1},
	})
	require.Len(t, got, 4)
	assert.Equal(t, "2026-05-04", got[0].Date)
	assert.Equal(t, 1, got[1].CompletedCount)
	assert.Equal(t, Snapshot{Date: "2026-05-07"}, got[3])
}
