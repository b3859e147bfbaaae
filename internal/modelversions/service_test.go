package modelversions

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"statements-backend/internal/audit"
	"statements-backend/internal/shared/apperr"
)

var base = time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)

func newService(t *testing.T) (*Service, *audit.MemoryRecorder) {
	t.Helper()
	rec := audit.NewMemoryRecorder()
	svc, err := NewService(NewMemoryRepo(), rec)
	require.NoError(t, err)
	svc.Now = func() time.Time { return base }
	return svc, rec
}

func register(t *testing.T, svc *Service, name string, deployed time.Time) ModelVersion {
	t.Helper()
	mv, err := svc.Register(context.Background(), "admin-1", NewModelVersion{
		VersionName: name,
		DeployedAt:  &deployed,
		Scores:      Scores{Accuracy: 0.9, Precision: 0.8, Recall: 0.85, F1: 0.82},
	})
	require.NoError(t, err)
	return mv
}

func activeCount(t *testing.T, svc *Service) int {
	t.Helper()
	versions, err := svc.List(context.Background())
	require.NoError(t, err)
	n := 0
	for _, v := range versions {
		if v.IsActive {
			n++
		}
	}
	return n
}

func TestActivateSwitchesActiveVersion(t *testing.T) {
	svc, rec := newService(t)
	v2 := register(t, svc, "v2", base)
	v3 := register(t, svc, "v3", base.Add(24*time.Hour))

	_, err := svc.Activate(context.Background(), "admin-1", v2.ID)
	require.NoError(t, err)
	_, err = svc.Activate(context.Background(), "admin-1", v3.ID)
	require.NoError(t, err)

	versions, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, "v2", versions[0].VersionName)
	assert.False(t, versions[0].IsActive)
	assert.Equal(t, "v3", versions[1].VersionName)
	assert.True(t, versions[1].IsActive)

	active, err := svc.GetActive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, v3.ID, active.ID)

	events := rec.ByAction(ActionActivate)
	require.Len(t, events, 2)
	assert.Equal(t, "v2", events[1].Payload["previous"])
}

func TestActivateKeepsExactlyOneActive(t *testing.T) {
	svc, _ := newService(t)
	var ids []string
	for i := 0; i < 5; i++ {
		ids = append(ids, register(t, svc, fmt.Sprintf("v%d", i), base.Add(time.Duration(i)*time.Hour)).ID)
	}

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 50; i++ {
		_, err := svc.Activate(context.Background(), "admin-1", ids[rng.Intn(len(ids))])
		require.NoError(t, err)
		require.Equal(t, 1, activeCount(t, svc))
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, _ = svc.Activate(context.Background(), "admin-1", id)
		}(id)
	}
	wg.Wait()
	assert.Equal(t, 1, activeCount(t, svc))
}

func TestActivateUnknownVersion(t *testing.T) {
	svc, rec := newService(t)
	v1 := register(t, svc, "v1", base)
	_, err := svc.Activate(context.Background(), "admin-1", v1.ID)
	require.NoError(t, err)

	_, err = svc.Activate(context.Background(), "admin-1", "missing")
	require.True(t, errors.Is(err, apperr.ErrNotFound))
	assert.Equal(t, 1, activeCount(t, svc))

	events := rec.ByAction(ActionActivate)
	assert.Equal(t, audit.OutcomeFailure, events[len(events)-1].Outcome)
}

func TestGetActiveWithoutActivation(t *testing.T) {
	svc, _ := newService(t)
	register(t, svc, "v1", base)
	_, err := svc.GetActive(context.Background())
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestRegisterValidation(t *testing.T) {
	svc, _ := newService(t)
	register(t, svc, "v1", base)

	_, err := svc.Register(context.Background(), "admin-1", NewModelVersion{VersionName: "v1"})
	assert.True(t, errors.Is(err, apperr.ErrConflict))

	_, err = svc.Register(context.Background(), "admin-1", NewModelVersion{VersionName: "v9", Scores: Scores{Accuracy: 1.2}})
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	_, err = svc.Register(context.Background(), "admin-1", NewModelVersion{VersionName: "  "})
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	mv, err := svc.Register(context.Background(), "admin-1", NewModelVersion{VersionName: "v2"})
	require.NoError(t, err)
	assert.Equal(t, base, mv.DeployedAt)
	assert.False(t, mv.IsActive)
}

func TestGetByNameRefreshesAfterActivation(t *testing.T) {
	svc, _ := newService(t)
	v1 := register(t, svc, "v1", base)

	got, err := svc.GetByName(context.Background(), "v1")
	require.NoError(t, err)
	assert.False(t, got.IsActive)

	_, err = svc.Activate(context.Background(), "admin-1", v1.ID)
	require.NoError(t, err)

	got, err = svc.GetByName(context.Background(), "v1")
	require.NoError(t, err)
	assert.True(t, got.IsActive)

	_, err = svc.GetByName(context.Background(), "v404")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}
