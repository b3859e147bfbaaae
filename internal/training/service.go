package training

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"statements-backend/internal/audit"
	"statements-backend/internal/shared/apperr"
	"statements-backend/internal/shared/pagination"
	"statements-backend/internal/shared/storage/object"
	"statements-backend/internal/shared/telemetry"
	"statements-backend/internal/shared/util"
)

const (
	ActionCreate = "training.create"
	ActionVerify = "training.verify"
	ActionDelete = "training.delete"
	ActionExport = "training.export"

	entityExample = "training_example"
	entityDataset = "training_dataset"

	datasetContentType = "application/x-ndjson"
	defaultDatasetName = "verified"
)

// Service manages training examples.
type Service struct {
	Repo  Repo
	Store object.ObjectStore
	Audit audit.Recorder
	Now   func() time.Time
}

// NewService constructs a Service. store may be nil when exports to object
// storage are not configured.
func NewService(repo Repo, store object.ObjectStore, recorder audit.Recorder) *Service {
	return &Service{Repo: repo, Store: store, Audit: recorder}
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// Create adds an unverified example.
func (s *Service) Create(ctx context.Context, actorID string, in NewExample) (ex Example, err error) {
	defer func() {
		s.audit(ctx, actorID, ActionCreate, ex.ID, map[string]any{"category": in.Category}, err)
	}()
	return s.create(ctx, actorID, in, nil)
}

// CreateForFeedback adds the example promoted from feedbackID. A second call
// for the same feedback returns the existing example with created=false.
func (s *Service) CreateForFeedback(ctx context.Context, actorID, feedbackID string, in NewExample) (ex Example, created bool, err error) {
	defer func() {
		if created || err != nil {
			s.audit(ctx, actorID, ActionCreate, ex.ID, map[string]any{
				"category":   in.Category,
				"feedbackId": feedbackID,
			}, err)
		}
	}()

	if strings.TrimSpace(feedbackID) == "" {
		return Example{}, false, apperr.Validation("feedbackId", "is required")
	}
	existing, err := s.Repo.GetByFeedbackID(ctx, feedbackID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Example{}, false, fmt.Errorf("lookup example for feedback %s: %w", feedbackID, err)
	}

	ex, err = s.create(ctx, actorID, in, &feedbackID)
	if errors.Is(err, ErrDuplicate) {
		existing, getErr := s.Repo.GetByFeedbackID(ctx, feedbackID)
		if getErr != nil {
			return Example{}, false, fmt.Errorf("lookup example for feedback %s: %w", feedbackID, getErr)
		}
		return existing, false, nil
	}
	if err != nil {
		return Example{}, false, err
	}
	return ex, true, nil
}

func (s *Service) create(ctx context.Context, actorID string, in NewExample, feedbackID *string) (Example, error) {
	if err := in.normalize(); err != nil {
		return Example{}, err
	}
	now := s.now()
	ex := Example{
		ID:               uuid.NewString(),
		InputData:        in.InputData,
		ExpectedOutput:   in.ExpectedOutput,
		Category:         in.Category,
		CreatedBy:        actorID,
		LinkedFeedbackID: feedbackID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.Repo.Create(ctx, ex); err != nil {
		if errors.Is(err, ErrDuplicate) {
			return Example{}, err
		}
		return Example{}, fmt.Errorf("create training example: %w", err)
	}
	return ex, nil
}

// Get returns one example.
func (s *Service) Get(ctx context.Context, id string) (Example, error) {
	ex, err := s.Repo.Get(ctx, id)
	if err != nil {
		return Example{}, mapErr(err, id)
	}
	return ex, nil
}

// SetVerified flips the verified flag in place.
func (s *Service) SetVerified(ctx context.Context, actorID, id string, verified bool) (ex Example, err error) {
	defer func() {
		s.audit(ctx, actorID, ActionVerify, id, map[string]any{"verified": verified}, err)
	}()
	ex, err = s.Repo.SetVerified(ctx, id, verified, s.now())
	if err != nil {
		return Example{}, mapErr(err, id)
	}
	return ex, nil
}

// Delete removes an example from every later export.
func (s *Service) Delete(ctx context.Context, actorID, id string) (err error) {
	defer func() {
		s.audit(ctx, actorID, ActionDelete, id, nil, err)
	}()
	if err := s.Repo.Delete(ctx, id); err != nil {
		return mapErr(err, id)
	}
	return nil
}

// List returns one page of examples, optionally filtered by verified state.
func (s *Service) List(ctx context.Context, verified *bool, page pagination.Page) (pagination.Result[Example], error) {
	items, total, err := s.Repo.List(ctx, ListFilter{Verified: verified, Limit: page.Limit, Offset: page.Offset})
	if err != nil {
		return pagination.Result[Example]{}, fmt.Errorf("list training examples: %w", err)
	}
	return pagination.Result[Example]{Items: items, Total: total, Limit: page.Limit, Offset: page.Offset}, nil
}

// ExportVerifiedDataset returns every verified example. Deleted examples are
// never included.
func (s *Service) ExportVerifiedDataset(ctx context.Context) ([]Example, error) {
	out, err := s.Repo.ListVerified(ctx)
	if err != nil {
		return nil, fmt.Errorf("export verified dataset: %w", err)
	}
	if out == nil {
		out = []Example{}
	}
	return out, nil
}

// Export describes one dataset written to object storage.
type Export struct {
	Key          string    `json:"key"`
	ExampleCount int       `json:"exampleCount"`
	SizeBytes    int64     `json:"sizeBytes"`
	Checksum     string    `json:"sha256"`
	CreatedAt    time.Time `json:"createdAt"`
}

type datasetRecord struct {
	ID       string `json:"id"`
	Input    string `json:"input"`
	Output   string `json:"output"`
	Category string `json:"category"`
}

// WriteDatasetExport writes the verified dataset as JSON lines to the object
// store under a timestamped key.
func (s *Service) WriteDatasetExport(ctx context.Context, actorID, name string) (exp Export, err error) {
	defer func() {
		s.audit(ctx, actorID, ActionExport, exp.Key, map[string]any{
			"exampleCount": exp.ExampleCount,
			"sha256":       exp.Checksum,
		}, err)
	}()

	if s.Store == nil {
		return Export{}, apperr.Validation("store", "dataset export storage is not configured")
	}
	if strings.TrimSpace(name) == "" {
		name = defaultDatasetName
	}
	examples, err := s.ExportVerifiedDataset(ctx)
	if err != nil {
		return Export{}, err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, ex := range examples {
		if err := enc.Encode(datasetRecord{ID: ex.ID, Input: ex.InputData, Output: ex.ExpectedOutput, Category: ex.Category}); err != nil {
			return Export{}, fmt.Errorf("encode example %s: %w", ex.ID, err)
		}
	}

	now := s.now()
	key, err := object.DatasetKey(name, now)
	if err != nil {
		return Export{}, apperr.Validation("name", err.Error())
	}
	exists, err := s.Store.Exists(ctx, key)
	if err != nil {
		return Export{}, fmt.Errorf("check dataset %s: %w", key, err)
	}
	if exists {
		return Export{Key: key}, apperr.Conflict("dataset export " + key + " already exists")
	}

	checksum := util.Checksum(buf.Bytes())
	size, err := s.Store.Put(ctx, key, bytes.NewReader(buf.Bytes()), object.PutOptions{
		ContentType: datasetContentType,
		Metadata: map[string]string{
			"sha256":        checksum,
			"example-count": strconv.Itoa(len(examples)),
		},
	})
	if err != nil {
		return Export{}, fmt.Errorf("store dataset %s: %w", key, err)
	}

	exp = Export{Key: key, ExampleCount: len(examples), SizeBytes: size, Checksum: checksum, CreatedAt: now}
	telemetry.Info("training.dataset_exported", map[string]any{
		"key":           key,
		"example_count": exp.ExampleCount,
		"size_bytes":    size,
	})
	return exp, nil
}

func (s *Service) audit(ctx context.Context, actorID, action, entityID string, payload map[string]any, err error) {
	entity := entityExample
	if action == ActionExport {
		entity = entityDataset
	}
	audit.Emit(ctx, s.Audit, audit.NewEvent(actorID, action, entity, entityID, payload, err))
}

func mapErr(err error, id string) error {
	if errors.Is(err, ErrNotFound) {
		return apperr.NotFound("training example", id)
	}
	return fmt.Errorf("training example %s: %w", id, err)
}
