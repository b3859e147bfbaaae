package modelversions

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"statements-backend/internal/audit"
	"statements-backend/internal/shared/apperr"
	"statements-backend/internal/shared/cache"
	"statements-backend/internal/shared/metrics"
	"statements-backend/internal/shared/telemetry"
)

const (
	ActionRegister = "model.register"
	ActionActivate = "model.activate"

	entityModelVersion = "model_version"
	nameCacheSize      = 256
)

// Service manages the registry.
type Service struct {
	Repo  Repo
	Audit audit.Recorder
	Now   func() time.Time

	byName *cache.LoaderCache[ModelVersion]
}

// NewService wires a Service with a name lookup cache.
func NewService(repo Repo, recorder audit.Recorder) (*Service, error) {
	byName, err := cache.NewLoaderCache[ModelVersion](nameCacheSize)
	if err != nil {
		return nil, err
	}
	return &Service{Repo: repo, Audit: recorder, byName: byName}, nil
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// Register adds an inactive version.
func (s *Service) Register(ctx context.Context, actorID string, in NewModelVersion) (mv ModelVersion, err error) {
	defer func() {
		audit.Emit(ctx, s.Audit, audit.NewEvent(actorID, ActionRegister, entityModelVersion, mv.ID, map[string]any{
			"versionName": in.VersionName,
		}, err))
	}()

	in.VersionName = strings.TrimSpace(in.VersionName)
	if err := validateVersionName(in.VersionName); err != nil {
		return ModelVersion{}, err
	}
	if err := in.Scores.Validate(""); err != nil {
		return ModelVersion{}, err
	}

	now := s.now()
	mv = ModelVersion{
		ID:          uuid.NewString(),
		VersionName: in.VersionName,
		DeployedAt:  now,
		Scores:      in.Scores,
		CreatedAt:   now,
	}
	if in.DeployedAt != nil {
		mv.DeployedAt = in.DeployedAt.UTC()
	}
	if err := s.Repo.Create(ctx, mv); err != nil {
		if errors.Is(err, ErrDuplicate) {
			return ModelVersion{}, apperr.Conflict("model version " + in.VersionName + " is already registered")
		}
		return ModelVersion{}, fmt.Errorf("create model version: %w", err)
	}
	return mv, nil
}

// Get returns a version by id.
func (s *Service) Get(ctx context.Context, id string) (ModelVersion, error) {
	mv, err := s.Repo.Get(ctx, id)
	if err != nil {
		return ModelVersion{}, mapErr(err, id)
	}
	return mv, nil
}

// GetByName resolves a version name through the lookup cache. The IsActive
// flag of the result reflects the last activation seen by this process.
func (s *Service) GetByName(ctx context.Context, name string) (ModelVersion, error) {
	name = strings.TrimSpace(name)
	if err := validateVersionName(name); err != nil {
		return ModelVersion{}, err
	}
	mv, err := s.byName.Get(ctx, name, func(ctx context.Context) (ModelVersion, error) {
		return s.Repo.GetByName(ctx, name)
	})
	if err != nil {
		return ModelVersion{}, mapErr(err, name)
	}
	return mv, nil
}

// GetActive returns the active version or a NotFoundError when none is active.
func (s *Service) GetActive(ctx context.Context) (ModelVersion, error) {
	mv, err := s.Repo.GetActive(ctx)
	if err != nil {
		return ModelVersion{}, mapErr(err, "active")
	}
	return mv, nil
}

// List returns every version ordered by DeployedAt ascending.
func (s *Service) List(ctx context.Context) ([]ModelVersion, error) {
	out, err := s.Repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list model versions: %w", err)
	}
	if out == nil {
		out = []ModelVersion{}
	}
	return out, nil
}

// Activate makes id the only active version.
func (s *Service) Activate(ctx context.Context, actorID, id string) (mv ModelVersion, err error) {
	var previous string
	defer func() {
		audit.Emit(ctx, s.Audit, audit.NewEvent(actorID, ActionActivate, entityModelVersion, id, map[string]any{
			"versionName": mv.VersionName,
			"previous":    previous,
		}, err))
	}()

	if strings.TrimSpace(id) == "" {
		return ModelVersion{}, apperr.Validation("id", "is required")
	}
	if prev, err := s.Repo.GetActive(ctx); err == nil {
		previous = prev.VersionName
	}

	mv, err = s.Repo.Activate(ctx, id)
	if err != nil {
		return ModelVersion{}, mapErr(err, id)
	}
	s.byName.InvalidateAll()
	metrics.ModelActivationsTotal.Inc()
	telemetry.Info("model.activated", map[string]any{
		"actor_id":     actorID,
		"version_id":   mv.ID,
		"version_name": mv.VersionName,
		"previous":     previous,
	})
	return mv, nil
}

func mapErr(err error, id string) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return apperr.NotFound("model version", id)
	case errors.Is(err, ErrNoActive):
		return apperr.NotFound("model version", "active")
	case errors.Is(err, ErrConflict):
		return apperr.Conflict("model version " + id + " lost a concurrent activation")
	default:
		return fmt.Errorf("model version %s: %w", id, err)
	}
}
