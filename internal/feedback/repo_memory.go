package feedback

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory Repo.
type MemoryRepo struct {
	mu           sync.RWMutex
	feedback     map[string]Feedback
	improvements []Improvement
}

// NewMemoryRepo constructs an empty MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{feedback: make(map[string]Feedback)}
}

func (r *MemoryRepo) CreateFeedback(ctx context.Context, f Feedback) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.feedback[f.ID] = cloneFeedback(f)
	return nil
}

func (r *MemoryRepo) GetFeedback(ctx context.Context, id string) (Feedback, error) {
	if err := ctx.Err(); err != nil {
		return Feedback{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.feedback[id]
	if !ok {
		return Feedback{}, ErrNotFound
	}
	return cloneFeedback(f), nil
}

func (r *MemoryRepo) MarkReviewed(ctx context.Context, id string, u ReviewUpdate) (Feedback, error) {
	if err := ctx.Err(); err != nil {
		return Feedback{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.feedback[id]
	if !ok {
		return Feedback{}, ErrNotFound
	}
	by, at := u.ReviewedBy, u.ReviewedAt
	f.Reviewed = true
	f.ReviewedBy = &by
	f.ReviewedAt = &at
	if u.TrainingExampleID != nil {
		exID := *u.TrainingExampleID
		f.AddedToTraining = true
		f.TrainingExampleID = &exID
	}
	r.feedback[id] = f
	return cloneFeedback(f), nil
}

func (r *MemoryRepo) ListFeedback(ctx context.Context, reviewed *bool, limit, offset int) ([]Feedback, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	r.mu.RLock()
	var out []Feedback
	for _, f := range r.feedback {
		if reviewed != nil && f.Reviewed != *reviewed {
			continue
		}
		out = append(out, cloneFeedback(f))
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	total := len(out)
	if offset >= total {
		return []Feedback{}, total, nil
	}
	end := total
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return out[offset:end], total, nil
}

func (r *MemoryRepo) CountByDay(ctx context.Context, from, to time.Time) ([]DayCount, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	type key struct {
		day      time.Time
		category Category
	}
	counts := make(map[key]int)
	r.mu.RLock()
	for _, f := range r.feedback {
		if f.CreatedAt.Before(from) || !f.CreatedAt.Before(to) {
			continue
		}
		c := f.CreatedAt.UTC()
		counts[key{time.Date(c.Year(), c.Month(), c.Day(), 0, 0, 0, 0, time.UTC), f.Category}]++
	}
	r.mu.RUnlock()

	out := make([]DayCount, 0, len(counts))
	for k, n := range counts {
		out = append(out, DayCount{Day: k.day, Category: k.category, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Day.Equal(out[j].Day) {
			return out[i].Day.Before(out[j].Day)
		}
		return out[i].Category < out[j].Category
	})
	return out, nil
}

func (r *MemoryRepo) CreateImprovement(ctx context.Context, imp Improvement) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.improvements = append(r.improvements, imp)
	return nil
}

func (r *MemoryRepo) ListImprovements(ctx context.Context, modelVersion string) ([]Improvement, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	out := make([]Improvement, 0, len(r.improvements))
	for _, imp := range r.improvements {
		if modelVersion == "" || imp.ModelVersion == modelVersion {
			out = append(out, imp)
		}
	}
	r.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].TrainingDate.Equal(out[j].TrainingDate) {
			return out[i].TrainingDate.Before(out[j].TrainingDate)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func cloneFeedback(f Feedback) Feedback {
	if f.ReviewedBy != nil {
		v := *f.ReviewedBy
		f.ReviewedBy = &v
	}
	if f.ReviewedAt != nil {
		v := *f.ReviewedAt
		f.ReviewedAt = &v
	}
	if f.TrainingExampleID != nil {
		v := *f.TrainingExampleID
		f.TrainingExampleID = &v
	}
	return f
}

var _ Repo = (*MemoryRepo)(nil)
