package training

import (
	"context"
	"time"
)

// Repo persists training examples.
type Repo interface {
	// Create fails with ErrDuplicate when LinkedFeedbackID is already used.
	Create(ctx context.Context, ex Example) error
	Get(ctx context.Context, id string) (Example, error)
	GetByFeedbackID(ctx context.Context, feedbackID string) (Example, error)
	SetVerified(ctx context.Context, id string, verified bool, updatedAt time.Time) (Example, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, f ListFilter) ([]Example, int, error)
	// ListVerified returns every verified example ordered by CreatedAt, then ID.
	ListVerified(ctx context.Context) ([]Example, error)
}
