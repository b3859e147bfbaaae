package training

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory Repo.
type MemoryRepo struct {
	mu         sync.RWMutex
	examples   map[string]Example
	byFeedback map[string]string
}

// NewMemoryRepo constructs an empty MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		examples:   make(map[string]Example),
		byFeedback: make(map[string]string),
	}
}

func (r *MemoryRepo) Create(ctx context.Context, ex Example) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if ex.LinkedFeedbackID != nil {
		if _, ok := r.byFeedback[*ex.LinkedFeedbackID]; ok {
			return ErrDuplicate
		}
		r.byFeedback[*ex.LinkedFeedbackID] = ex.ID
	}
	r.examples[ex.ID] = clone(ex)
	return nil
}

func (r *MemoryRepo) Get(ctx context.Context, id string) (Example, error) {
	if err := ctx.Err(); err != nil {
		return Example{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	ex, ok := r.examples[id]
	if !ok {
		return Example{}, ErrNotFound
	}
	return clone(ex), nil
}

func (r *MemoryRepo) GetByFeedbackID(ctx context.Context, feedbackID string) (Example, error) {
	if err := ctx.Err(); err != nil {
		return Example{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byFeedback[feedbackID]
	if !ok {
		return Example{}, ErrNotFound
	}
	return clone(r.examples[id]), nil
}

func (r *MemoryRepo) SetVerified(ctx context.Context, id string, verified bool, updatedAt time.Time) (Example, error) {
	if err := ctx.Err(); err != nil {
		return Example{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	ex, ok := r.examples[id]
	if !ok {
		return Example{}, ErrNotFound
	}
	ex.IsVerified = verified
	ex.UpdatedAt = updatedAt
	r.examples[id] = ex
	return clone(ex), nil
}

func (r *MemoryRepo) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	ex, ok := r.examples[id]
	if !ok {
		return ErrNotFound
	}
	if ex.LinkedFeedbackID != nil {
		delete(r.byFeedback, *ex.LinkedFeedbackID)
	}
	delete(r.examples, id)
	return nil
}

func (r *MemoryRepo) List(ctx context.Context, f ListFilter) ([]Example, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	r.mu.RLock()
	var matched []Example
	for _, ex := range r.examples {
		if f.Verified != nil && ex.IsVerified != *f.Verified {
			continue
		}
		matched = append(matched, clone(ex))
	}
	r.mu.RUnlock()

	sortByCreated(matched)
	total := len(matched)
	if f.Offset >= total {
		return []Example{}, total, nil
	}
	end := total
	if f.Limit > 0 && f.Offset+f.Limit < end {
		end = f.Offset + f.Limit
	}
	return matched[f.Offset:end], total, nil
}

func (r *MemoryRepo) ListVerified(ctx context.Context) ([]Example, error) {
	verified := true
	out, _, err := r.List(ctx, ListFilter{Verified: &verified})
	return out, err
}

func sortByCreated(examples []Example) {
	sort.Slice(examples, func(i, j int) bool {
		if !examples[i].CreatedAt.Equal(examples[j].CreatedAt) {
			return examples[i].CreatedAt.Before(examples[j].CreatedAt)
		}
		return examples[i].ID < examples[j].ID
	})
}

func clone(ex Example) Example {
	if ex.LinkedFeedbackID != nil {
		id := *ex.LinkedFeedbackID
		ex.LinkedFeedbackID = &id
	}
	return ex
}

var _ Repo = (*MemoryRepo)(nil)
