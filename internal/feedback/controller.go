package feedback

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"statements-backend/internal/audit"
	"statements-backend/internal/modelversions"
	"statements-backend/internal/shared/apperr"
	"statements-backend/internal/shared/metrics"
	"statements-backend/internal/shared/pagination"
	"statements-backend/internal/training"
)

const (
	ActionRecord      = "feedback.record"
	ActionReview      = "feedback.review"
	ActionImprovement = "model.improvement"

	DefaultTrendWindowDays = 30
	MaxTrendWindowDays     = 365

	maxSubjectReferenceLen = 256
	maxCommentLen          = 4000
)

// ModelLookup resolves registered model versions by name.
type ModelLookup interface {
	GetByName(ctx context.Context, name string) (modelversions.ModelVersion, error)
}

// Controller coordinates feedback review, training examples and improvement
// history.
type Controller struct {
	Repo     Repo
	Training *training.Service
	Models   ModelLookup
	Audit    audit.Recorder
	Now      func() time.Time

	// TrendWindowDays is used when GetTrends is called with a non-positive window.
	TrendWindowDays int
}

// NewController wires a Controller.
func NewController(repo Repo, examples *training.Service, models ModelLookup, recorder audit.Recorder) *Controller {
	return &Controller{
		Repo:            repo,
		Training:        examples,
		Models:          models,
		Audit:           recorder,
		TrendWindowDays: DefaultTrendWindowDays,
	}
}

func (c *Controller) now() time.Time {
	if c.Now != nil {
		return c.Now().UTC()
	}
	return time.Now().UTC()
}

// RecordFeedback stores a new unreviewed feedback entry.
func (c *Controller) RecordFeedback(ctx context.Context, actorID string, in NewFeedback) (f Feedback, err error) {
	defer func() {
		c.audit(ctx, actorID, ActionRecord, "feedback", f.ID, map[string]any{
			"category":         in.Category,
			"subjectReference": in.SubjectReference,
		}, err)
	}()

	category, err := ParseCategory(strings.TrimSpace(in.Category))
	if err != nil {
		return Feedback{}, err
	}
	subject := strings.TrimSpace(in.SubjectReference)
	if subject == "" {
		return Feedback{}, apperr.Validation("subjectReference", "is required")
	}
	if len(subject) > maxSubjectReferenceLen {
		return Feedback{}, apperr.Validation("subjectReference", fmt.Sprintf("must be at most %d characters", maxSubjectReferenceLen))
	}
	if len(in.Comment) > maxCommentLen || len(in.Correction) > maxCommentLen {
		return Feedback{}, apperr.Validation("comment", fmt.Sprintf("must be at most %d characters", maxCommentLen))
	}

	f = Feedback{
		ID:               uuid.NewString(),
		Category:         category,
		SubjectReference: subject,
		Comment:          in.Comment,
		Correction:       in.Correction,
		SubmittedBy:      actorID,
		CreatedAt:        c.now(),
	}
	if err := c.Repo.CreateFeedback(ctx, f); err != nil {
		return Feedback{}, fmt.Errorf("create feedback: %w", err)
	}
	metrics.FeedbackRecordedTotal.WithLabelValues(string(category)).Inc()
	return f, nil
}

// GetFeedback returns one feedback entry.
func (c *Controller) GetFeedback(ctx context.Context, id string) (Feedback, error) {
	f, err := c.Repo.GetFeedback(ctx, id)
	if err != nil {
		return Feedback{}, mapErr(err, id)
	}
	return f, nil
}

// ListFeedback returns one page of feedback, newest first.
func (c *Controller) ListFeedback(ctx context.Context, reviewed *bool, page pagination.Page) (pagination.Result[Feedback], error) {
	items, total, err := c.Repo.ListFeedback(ctx, reviewed, page.Limit, page.Offset)
	if err != nil {
		return pagination.Result[Feedback]{}, fmt.Errorf("list feedback: %w", err)
	}
	return pagination.Result[Feedback]{Items: items, Total: total, Limit: page.Limit, Offset: page.Offset}, nil
}

// ReviewRequest carries the reviewer's decision. The example fields default
// to the feedback's subject reference, correction and category.
type ReviewRequest struct {
	AddToTraining  bool   `json:"addToTraining"`
	InputData      string `json:"inputData"`
	ExpectedOutput string `json:"expectedOutput"`
	Category       string `json:"category"`
}

// ReviewResult is the reviewed feedback and, when promoted, its example.
type ReviewResult struct {
	Feedback        Feedback          `json:"feedback"`
	TrainingExample *training.Example `json:"trainingExample,omitempty"`
}

// ReviewFeedback marks feedback reviewed and optionally promotes it into an
// unverified training example. Promotion is idempotent per feedback id.
func (c *Controller) ReviewFeedback(ctx context.Context, actorID, id string, req ReviewRequest) (res ReviewResult, err error) {
	defer func() {
		payload := map[string]any{"addToTraining": req.AddToTraining}
		if res.TrainingExample != nil {
			payload["trainingExampleId"] = res.TrainingExample.ID
		}
		c.audit(ctx, actorID, ActionReview, "feedback", id, payload, err)
	}()

	f, err := c.Repo.GetFeedback(ctx, id)
	if err != nil {
		return ReviewResult{}, mapErr(err, id)
	}

	update := ReviewUpdate{ReviewedBy: actorID, ReviewedAt: c.now()}
	if req.AddToTraining {
		ex, _, err := c.Training.CreateForFeedback(ctx, actorID, f.ID, exampleFrom(f, req))
		if err != nil {
			return ReviewResult{}, err
		}
		update.TrainingExampleID = &ex.ID
		res.TrainingExample = &ex
	}

	f, err = c.Repo.MarkReviewed(ctx, id, update)
	if err != nil {
		return ReviewResult{}, mapErr(err, id)
	}
	res.Feedback = f
	return res, nil
}

func exampleFrom(f Feedback, req ReviewRequest) training.NewExample {
	in := training.NewExample{
		InputData:      req.InputData,
		ExpectedOutput: req.ExpectedOutput,
		Category:       req.Category,
	}
	if strings.TrimSpace(in.InputData) == "" {
		in.InputData = f.SubjectReference
	}
	if in.ExpectedOutput == "" {
		in.ExpectedOutput = f.Correction
	}
	if strings.TrimSpace(in.Category) == "" {
		in.Category = string(f.Category)
	}
	return in
}

// VerifyTrainingExample flips the verified flag of an example in place.
func (c *Controller) VerifyTrainingExample(ctx context.Context, actorID, exampleID string, verified bool) (training.Example, error) {
	return c.Training.SetVerified(ctx, actorID, exampleID, verified)
}

// DeleteTrainingExample removes an example from future exports. Recorded
// improvements are left as they are.
func (c *Controller) DeleteTrainingExample(ctx context.Context, actorID, exampleID string) error {
	return c.Training.Delete(ctx, actorID, exampleID)
}

// ExportVerifiedDataset returns every verified example.
func (c *Controller) ExportVerifiedDataset(ctx context.Context) ([]training.Example, error) {
	return c.Training.ExportVerifiedDataset(ctx)
}

// CreateTrainingExample adds a manually authored, unverified example.
func (c *Controller) CreateTrainingExample(ctx context.Context, actorID string, in training.NewExample) (training.Example, error) {
	return c.Training.Create(ctx, actorID, in)
}

// ListTrainingExamples returns one page of examples.
func (c *Controller) ListTrainingExamples(ctx context.Context, verified *bool, page pagination.Page) (pagination.Result[training.Example], error) {
	return c.Training.List(ctx, verified, page)
}

// WriteDatasetExport stores the verified dataset in object storage.
func (c *Controller) WriteDatasetExport(ctx context.Context, actorID, name string) (training.Export, error) {
	return c.Training.WriteDatasetExport(ctx, actorID, name)
}

// RecordImprovement stores an immutable before/after comparison. Both versions
// must be registered.
func (c *Controller) RecordImprovement(ctx context.Context, actorID string, in NewImprovement) (view ImprovementView, err error) {
	defer func() {
		c.audit(ctx, actorID, ActionImprovement, "model_improvement", view.ID, map[string]any{
			"modelVersion":    in.ModelVersion,
			"previousVersion": in.PreviousVersion,
		}, err)
	}()

	in.ModelVersion = strings.TrimSpace(in.ModelVersion)
	in.PreviousVersion = strings.TrimSpace(in.PreviousVersion)
	if in.ModelVersion == "" {
		return ImprovementView{}, apperr.Validation("modelVersion", "is required")
	}
	if in.PreviousVersion == "" {
		return ImprovementView{}, apperr.Validation("previousVersion", "is required")
	}
	if in.ModelVersion == in.PreviousVersion {
		return ImprovementView{}, apperr.Validation("previousVersion", "must differ from modelVersion")
	}
	if in.TrainingExampleCount < 0 {
		return ImprovementView{}, apperr.Validation("trainingExampleCount", "must not be negative")
	}
	if err := in.Before.Validate("before."); err != nil {
		return ImprovementView{}, err
	}
	if err := in.After.Validate("after."); err != nil {
		return ImprovementView{}, err
	}
	for _, name := range []string{in.ModelVersion, in.PreviousVersion} {
		if _, err := c.Models.GetByName(ctx, name); err != nil {
			return ImprovementView{}, err
		}
	}

	now := c.now()
	imp := Improvement{
		ID:                   uuid.NewString(),
		ModelVersion:         in.ModelVersion,
		PreviousVersion:      in.PreviousVersion,
		TrainingExampleCount: in.TrainingExampleCount,
		Before:               in.Before,
		After:                in.After,
		TrainingDate:         now,
		CreatedAt:            now,
	}
	if in.TrainingDate != nil {
		imp.TrainingDate = in.TrainingDate.UTC()
	}
	if err := c.Repo.CreateImprovement(ctx, imp); err != nil {
		return ImprovementView{}, fmt.Errorf("create improvement: %w", err)
	}
	return ImprovementView{Improvement: imp, Changes: imp.Deltas()}, nil
}

// ListImprovements returns recorded improvements with their deltas, oldest
// training date first.
func (c *Controller) ListImprovements(ctx context.Context, modelVersion string) ([]ImprovementView, error) {
	imps, err := c.Repo.ListImprovements(ctx, strings.TrimSpace(modelVersion))
	if err != nil {
		return nil, fmt.Errorf("list improvements: %w", err)
	}
	out := make([]ImprovementView, 0, len(imps))
	for _, imp := range imps {
		out = append(out, ImprovementView{Improvement: imp, Changes: imp.Deltas()})
	}
	return out, nil
}

// GetTrends returns one point per UTC day for the last windowDays days,
// today included, oldest first. Days without feedback are zero.
func (c *Controller) GetTrends(ctx context.Context, windowDays int) ([]TrendPoint, error) {
	if windowDays <= 0 {
		windowDays = c.TrendWindowDays
		if windowDays <= 0 {
			windowDays = DefaultTrendWindowDays
		}
	}
	if windowDays > MaxTrendWindowDays {
		return nil, apperr.Validation("windowDays", fmt.Sprintf("must be at most %d", MaxTrendWindowDays))
	}

	now := c.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	from := today.AddDate(0, 0, -(windowDays - 1))
	counts, err := c.Repo.CountByDay(ctx, from, today.AddDate(0, 0, 1))
	if err != nil {
		return nil, fmt.Errorf("count feedback by day: %w", err)
	}

	points := make([]TrendPoint, windowDays)
	index := make(map[string]int, windowDays)
	for i := range points {
		key := from.AddDate(0, 0, i).Format(time.DateOnly)
		points[i].Date = key
		index[key] = i
	}
	for _, dc := range counts {
		i, ok := index[dc.Day.UTC().Format(time.DateOnly)]
		if !ok {
			continue
		}
		p := &points[i]
		p.TotalFeedback += dc.Count
		if dc.Category.Positive() {
			p.PositiveFeedback += dc.Count
		}
		if dc.Category.Negative() {
			p.NegativeFeedback += dc.Count
		}
		if dc.Category == CategoryIncorrect {
			p.Misclassifications += dc.Count
		}
	}
	return points, nil
}

func (c *Controller) audit(ctx context.Context, actorID, action, entityType, entityID string, payload map[string]any, err error) {
	audit.Emit(ctx, c.Audit, audit.NewEvent(actorID, action, entityType, entityID, payload, err))
}

func mapErr(err error, id string) error {
	if errors.Is(err, ErrNotFound) {
		return apperr.NotFound("feedback", id)
	}
	return fmt.Errorf("feedback %s: %w", id, err)
}
