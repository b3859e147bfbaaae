// Package feedback closes the loop between reviewers and the extraction model:
// it records feedback, promotes it into training examples, tracks model
// improvements and reports feedback trends.
package feedback

import (
	"errors"
	"time"

	"statements-backend/internal/modelversions"
	"statements-backend/internal/shared/apperr"
)

var ErrNotFound = errors.New("feedback not found")

// Category classifies a piece of feedback.
type Category string

const (
	CategoryHelpful    Category = "helpful"
	CategoryNotHelpful Category = "not_helpful"
	CategoryCorrect    Category = "correct"
	CategoryIncorrect  Category = "incorrect"
	CategoryOther      Category = "other"
)

// ParseCategory validates raw.
func ParseCategory(raw string) (Category, error) {
	switch c := Category(raw); c {
	case CategoryHelpful, CategoryNotHelpful, CategoryCorrect, CategoryIncorrect, CategoryOther:
		return c, nil
	}
	return "", apperr.Validation("category", "must be one of helpful, not_helpful, correct, incorrect, other")
}

// Positive reports whether c counts towards positive feedback.
func (c Category) Positive() bool { return c == CategoryHelpful || c == CategoryCorrect }

// Negative reports whether c counts towards negative feedback.
func (c Category) Negative() bool { return c == CategoryNotHelpful || c == CategoryIncorrect }

// Feedback is a reviewer or user signal about one model result.
type Feedback struct {
	ID                string     `json:"id"`
	Category          Category   `json:"category"`
	SubjectReference  string     `json:"subjectReference"`
	Comment           string     `json:"comment,omitempty"`
	Correction        string     `json:"correction,omitempty"`
	SubmittedBy       string     `json:"submittedBy"`
	Reviewed          bool       `json:"reviewed"`
	ReviewedBy        *string    `json:"reviewedBy,omitempty"`
	ReviewedAt        *time.Time `json:"reviewedAt,omitempty"`
	AddedToTraining   bool       `json:"addedToTraining"`
	TrainingExampleID *string    `json:"trainingExampleId,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
}

// NewFeedback is the input to RecordFeedback.
type NewFeedback struct {
	Category         string `json:"category"`
	SubjectReference string `json:"subjectReference"`
	Comment          string `json:"comment"`
	Correction       string `json:"correction"`
}

// Improvement is an immutable before/after comparison of two model versions.
type Improvement struct {
	ID                   string               `json:"id"`
	ModelVersion         string               `json:"modelVersion"`
	PreviousVersion      string               `json:"previousVersion"`
	TrainingExampleCount int                  `json:"trainingExampleCount"`
	Before               modelversions.Scores `json:"before"`
	After                modelversions.Scores `json:"after"`
	TrainingDate         time.Time            `json:"trainingDate"`
	CreatedAt            time.Time            `json:"createdAt"`
}

// NewImprovement is the input to RecordImprovement.
type NewImprovement struct {
	ModelVersion         string               `json:"modelVersion"`
	PreviousVersion      string               `json:"previousVersion"`
	TrainingExampleCount int                  `json:"trainingExampleCount"`
	Before               modelversions.Scores `json:"before"`
	After                modelversions.Scores `json:"after"`
	TrainingDate         *time.Time           `json:"trainingDate"`
}

// Direction of a metric change.
type Direction string

const (
	DirectionImprovement Direction = "improvement"
	DirectionRegression  Direction = "regression"
	DirectionNeutral     Direction = "neutral"
)

// Delta is the signed change of one metric.
type Delta struct {
	Before        float64   `json:"before"`
	After         float64   `json:"after"`
	Change        float64   `json:"change"`
	ChangePercent float64   `json:"changePercent"`
	Direction     Direction `json:"direction"`
}

// Deltas holds one Delta per score.
type Deltas struct {
	Accuracy  Delta `json:"accuracy"`
	Precision Delta `json:"precision"`
	Recall    Delta `json:"recall"`
	F1        Delta `json:"f1"`
}

// Deltas computes after minus before for every score. ChangePercent is relative
// to Before; with a zero baseline it is the change in percentage points.
func (imp Improvement) Deltas() Deltas {
	return Deltas{
		Accuracy:  newDelta(imp.Before.Accuracy, imp.After.Accuracy),
		Precision: newDelta(imp.Before.Precision, imp.After.Precision),
		Recall:    newDelta(imp.Before.Recall, imp.After.Recall),
		F1:        newDelta(imp.Before.F1, imp.After.F1),
	}
}

func newDelta(before, after float64) Delta {
	d := Delta{Before: before, After: after, Change: after - before}
	if before != 0 {
		d.ChangePercent = d.Change / before * 100
	} else {
		d.ChangePercent = d.Change * 100
	}
	switch {
	case d.Change > 0:
		d.Direction = DirectionImprovement
	case d.Change < 0:
		d.Direction = DirectionRegression
	default:
		d.Direction = DirectionNeutral
	}
	return d
}

// ImprovementView pairs an improvement with its computed deltas.
type ImprovementView struct {
	Improvement
	Changes Deltas `json:"deltas"`
}

// TrendPoint aggregates one day of feedback.
type TrendPoint struct {
	Date               string `json:"date"`
	TotalFeedback      int    `json:"totalFeedback"`
	PositiveFeedback   int    `json:"positiveFeedback"`
	NegativeFeedback   int    `json:"negativeFeedback"`
	Misclassifications int    `json:"misclassifications"`
}

// DayCount is a grouped count of feedback for one UTC day and category.
type DayCount struct {
	Day      time.Time
	Category Category
	Count    int
}
