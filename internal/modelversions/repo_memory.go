package modelversions

import (
	"context"
	"sort"
	"sync"
)

// MemoryRepo is an in-memory Repo.
type MemoryRepo struct {
	mu       sync.RWMutex
	versions map[string]ModelVersion
}

// NewMemoryRepo constructs an empty MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{versions: make(map[string]ModelVersion)}
}

func (r *MemoryRepo) Create(ctx context.Context, mv ModelVersion) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.versions[mv.ID]; ok {
		return ErrDuplicate
	}
	for _, existing := range r.versions {
		if existing.VersionName == mv.VersionName {
			return ErrDuplicate
		}
	}
	if mv.IsActive {
		for id, existing := range r.versions {
			existing.IsActive = false
			r.versions[id] = existing
		}
	}
	r.versions[mv.ID] = mv
	return nil
}

func (r *MemoryRepo) Get(ctx context.Context, id string) (ModelVersion, error) {
	if err := ctx.Err(); err != nil {
		return ModelVersion{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	mv, ok := r.versions[id]
	if !ok {
		return ModelVersion{}, ErrNotFound
	}
	return mv, nil
}

func (r *MemoryRepo) GetByName(ctx context.Context, name string) (ModelVersion, error) {
	if err := ctx.Err(); err != nil {
		return ModelVersion{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, mv := range r.versions {
		if mv.VersionName == name {
			return mv, nil
		}
	}
	return ModelVersion{}, ErrNotFound
}

func (r *MemoryRepo) GetActive(ctx context.Context) (ModelVersion, error) {
	if err := ctx.Err(); err != nil {
		return ModelVersion{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, mv := range r.versions {
		if mv.IsActive {
			return mv, nil
		}
	}
	return ModelVersion{}, ErrNoActive
}

func (r *MemoryRepo) List(ctx context.Context) ([]ModelVersion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	out := make([]ModelVersion, 0, len(r.versions))
	for _, mv := range r.versions {
		out = append(out, mv)
	}
	r.mu.RUnlock()
	sortByDeployedAt(out)
	return out, nil
}

// Activate flips every flag under one write lock.
func (r *MemoryRepo) Activate(ctx context.Context, id string) (ModelVersion, error) {
	if err := ctx.Err(); err != nil {
		return ModelVersion{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	target, ok := r.versions[id]
	if !ok {
		return ModelVersion{}, ErrNotFound
	}
	for vid, mv := range r.versions {
		mv.IsActive = vid == id
		r.versions[vid] = mv
	}
	target.IsActive = true
	return target, nil
}

func sortByDeployedAt(versions []ModelVersion) {
	sort.Slice(versions, func(i, j int) bool {
		if !versions[i].DeployedAt.Equal(versions[j].DeployedAt) {
			return versions[i].DeployedAt.Before(versions[j].DeployedAt)
		}
		return versions[i].ID < versions[j].ID
	})
}

var _ Repo = (*MemoryRepo)(nil)
