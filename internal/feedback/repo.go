package feedback

import (
	"context"
	"time"
)

// ReviewUpdate describes the fields written by a review.
type ReviewUpdate struct {
	ReviewedBy        string
	ReviewedAt        time.Time
	TrainingExampleID *string
}

// Repo persists feedback and model improvements.
type Repo interface {
	CreateFeedback(ctx context.Context, f Feedback) error
	GetFeedback(ctx context.Context, id string) (Feedback, error)
	// MarkReviewed sets reviewed. A non-nil TrainingExampleID also sets
	// AddedToTraining; a nil one keeps any earlier link.
	MarkReviewed(ctx context.Context, id string, u ReviewUpdate) (Feedback, error)
	ListFeedback(ctx context.Context, reviewed *bool, limit, offset int) ([]Feedback, int, error)
	// CountByDay groups feedback created in [from, to) by UTC day and category.
	CountByDay(ctx context.Context, from, to time.Time) ([]DayCount, error)

	CreateImprovement(ctx context.Context, imp Improvement) error
	// ListImprovements returns improvements ordered by TrainingDate, then
	// CreatedAt. An empty modelVersion lists all.
	ListImprovements(ctx context.Context, modelVersion string) ([]Improvement, error)
}
