package processing

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"statements-backend/internal/audit"
	"statements-backend/internal/queue"
	"statements-backend/internal/shared/apperr"
	"statements-backend/internal/shared/metrics"
	"statements-backend/internal/shared/pagination"
	"statements-backend/internal/shared/telemetry"
)

const entityQueueItem = "queue_item"

// Audit actions emitted by Service.
const (
	ActionEnqueue   = "queue.enqueue"
	ActionReprocess = "queue.reprocess"
	ActionTag       = "queue.tag"
	ActionStart     = "queue.start"
	ActionResult    = "queue.result"
)

// Service owns the queue state machine. Every mutating call takes the acting
// identity and is audited whatever its outcome.
type Service struct {
	Repo   Repo
	Signal queue.Client
	Audit  audit.Recorder
	Now    func() time.Time
}

// NewService wires a Service with the system clock.
func NewService(repo Repo, signal queue.Client, recorder audit.Recorder) *Service {
	return &Service{Repo: repo, Signal: signal, Audit: recorder}
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// Enqueue creates a pending item for a new document and signals the worker.
func (s *Service) Enqueue(ctx context.Context, actorID string, doc NewDocument) (item QueueItem, err error) {
	defer func() {
		s.audit(ctx, actorID, ActionEnqueue, doc.DocumentID, map[string]any{
			"fileName":     doc.FileName,
			"modelVersion": doc.ModelVersion,
		}, err)
	}()

	doc.DocumentID = strings.TrimSpace(doc.DocumentID)
	doc.FileName = strings.TrimSpace(doc.FileName)
	if err := ValidateDocumentID(doc.DocumentID); err != nil {
		return QueueItem{}, err
	}
	if doc.FileName == "" {
		return QueueItem{}, apperr.Validation("fileName", "is required")
	}
	if doc.FileSizeBytes < 0 {
		return QueueItem{}, apperr.Validation("fileSizeBytes", "must not be negative")
	}
	if strings.TrimSpace(doc.UserID) == "" {
		return QueueItem{}, apperr.Validation("userId", "is required")
	}
	if err := doc.Metadata.Validate(); err != nil {
		return QueueItem{}, err
	}

	now := s.now()
	item = QueueItem{
		ID:            uuid.NewString(),
		DocumentID:    doc.DocumentID,
		FileName:      doc.FileName,
		FileSizeBytes: doc.FileSizeBytes,
		UserID:        doc.UserID,
		UserName:      doc.UserName,
		Status:        StatusPending,
		ModelVersion:  doc.ModelVersion,
		Metadata:      doc.Metadata.Clone(),
		Attempt:       1,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	entry := s.newEntry(item, "", ReasonEnqueued, actorID, now)

	if err := s.Repo.Create(ctx, item, entry); err != nil {
		if errors.Is(err, ErrDuplicate) {
			return QueueItem{}, apperr.Conflict("document " + doc.DocumentID + " is already queued")
		}
		return QueueItem{}, fmt.Errorf("create queue item: %w", err)
	}
	metrics.QueueEnqueuedTotal.Inc()
	noteTransition(ctx, entry)

	if err := s.publish(ctx, item, actorID); err != nil {
		return item, err
	}
	return item, nil
}

// Get returns the current record for documentID.
func (s *Service) Get(ctx context.Context, documentID string) (QueueItem, error) {
	if err := ValidateDocumentID(documentID); err != nil {
		return QueueItem{}, err
	}
	item, err := s.Repo.GetByDocumentID(ctx, documentID)
	if err != nil {
		return QueueItem{}, s.mapRepoErr(err, documentID)
	}
	return item, nil
}

// List returns one page of items matching f.
func (s *Service) List(ctx context.Context, f ListFilter) (pagination.Result[QueueItem], error) {
	if err := f.Normalize(); err != nil {
		return pagination.Result[QueueItem]{}, err
	}
	items, total, err := s.Repo.List(ctx, f)
	if err != nil {
		return pagination.Result[QueueItem]{}, fmt.Errorf("list queue items: %w", err)
	}
	return pagination.Result[QueueItem]{
		Items:  items,
		Total:  total,
		Limit:  f.Page.Limit,
		Offset: f.Page.Offset,
	}, nil
}

// History returns every recorded transition for documentID, oldest first.
func (s *Service) History(ctx context.Context, documentID string) ([]HistoryEntry, error) {
	if err := ValidateDocumentID(documentID); err != nil {
		return nil, err
	}
	entries, err := s.Repo.History(ctx, documentID)
	if err != nil {
		return nil, s.mapRepoErr(err, documentID)
	}
	return entries, nil
}

// CountsByStatus returns per-status counts. It is not read under the same
// snapshot as List, so the two may briefly disagree.
func (s *Service) CountsByStatus(ctx context.Context) (Counts, error) {
	c, err := s.Repo.CountByStatus(ctx)
	if err != nil {
		return Counts{}, fmt.Errorf("count queue items: %w", err)
	}
	return c, nil
}

// ItemsUpdatedOn returns the items whose UpdatedAt falls on the UTC day of date.
func (s *Service) ItemsUpdatedOn(ctx context.Context, date time.Time) ([]QueueItem, error) {
	from := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	return s.ItemsUpdatedBetween(ctx, from, from.AddDate(0, 0, 1))
}

// ItemsUpdatedBetween returns the items whose UpdatedAt falls in [from, to).
func (s *Service) ItemsUpdatedBetween(ctx context.Context, from, to time.Time) ([]QueueItem, error) {
	if !to.After(from) {
		return nil, apperr.Validation("to", "must be after from")
	}
	items, err := s.Repo.ListUpdatedBetween(ctx, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("list items updated between %s and %s: %w", from.Format(time.RFC3339), to.Format(time.RFC3339), err)
	}
	return items, nil
}

// Reprocess resets a document to pending for a new attempt. A document that is
// currently processing is rejected with a ConflictError and left untouched, as
// is a write that loses the version race to a concurrent mutation.
func (s *Service) Reprocess(ctx context.Context, actorID, documentID string) (item QueueItem, err error) {
	var prior Status
	defer func() {
		outcome := "accepted"
		switch {
		case errors.Is(err, apperr.ErrConflict):
			outcome = "conflict"
		case err != nil:
			outcome = "error"
		}
		metrics.ReprocessTotal.WithLabelValues(outcome).Inc()
		s.audit(ctx, actorID, ActionReprocess, documentID, map[string]any{
			"fromStatus": string(prior),
			"attempt":    item.Attempt,
		}, err)
	}()

	if err := ValidateDocumentID(documentID); err != nil {
		return QueueItem{}, err
	}
	current, err := s.Repo.GetByDocumentID(ctx, documentID)
	if err != nil {
		return QueueItem{}, s.mapRepoErr(err, documentID)
	}
	prior = current.Status
	if current.Status == StatusProcessing {
		return QueueItem{}, apperr.Conflict("document " + documentID + " is already processing")
	}

	now := s.now()
	entry := s.newEntry(current, current.Status, ReasonReprocessRequested, actorID, now)
	entry.Attempt = current.Attempt + 1
	entry.ToStatus = StatusPending

	next := current.Clone()
	next.Status = StatusPending
	next.Attempt = current.Attempt + 1
	next.ErrorMessage = nil
	next.ProcessingDurationSeconds = nil
	next.StartedAt = nil
	next.CompletedAt = nil
	next.UpdatedAt = now

	if err := s.Repo.CompareAndSwap(ctx, next, current.Version, entry); err != nil {
		return QueueItem{}, s.mapRepoErr(err, documentID)
	}
	next.Version = current.Version + 1
	noteTransition(ctx, entry)

	if err := s.publish(ctx, next, actorID); err != nil {
		return next, err
	}
	return next, nil
}

// ManuallyTag overwrites descriptive metadata without changing status.
// Concurrent tags resolve last-write-wins.
func (s *Service) ManuallyTag(ctx context.Context, actorID, documentID string, md Metadata) (item QueueItem, err error) {
	defer func() {
		s.audit(ctx, actorID, ActionTag, documentID, map[string]any{"keys": md.Keys()}, err)
	}()

	if err := ValidateDocumentID(documentID); err != nil {
		return QueueItem{}, err
	}
	if md == nil {
		return QueueItem{}, apperr.Validation("metadata", "is required")
	}
	if err := md.Validate(); err != nil {
		return QueueItem{}, err
	}
	if err := s.Repo.UpdateMetadata(ctx, documentID, md, s.now()); err != nil {
		return QueueItem{}, s.mapRepoErr(err, documentID)
	}
	item, err = s.Repo.GetByDocumentID(ctx, documentID)
	if err != nil {
		return QueueItem{}, s.mapRepoErr(err, documentID)
	}
	return item, nil
}

// MarkProcessing records that the worker picked up a pending document.
func (s *Service) MarkProcessing(ctx context.Context, actorID, documentID, modelVersion string) (item QueueItem, err error) {
	defer func() {
		s.audit(ctx, actorID, ActionStart, documentID, map[string]any{"modelVersion": modelVersion}, err)
	}()

	if err := ValidateDocumentID(documentID); err != nil {
		return QueueItem{}, err
	}
	current, err := s.Repo.GetByDocumentID(ctx, documentID)
	if err != nil {
		return QueueItem{}, s.mapRepoErr(err, documentID)
	}
	if current.Status != StatusPending {
		return QueueItem{}, apperr.Conflict(fmt.Sprintf("document %s is %s, not pending", documentID, current.Status))
	}

	now := s.now()
	next := current.Clone()
	next.Status = StatusProcessing
	if modelVersion != "" {
		next.ModelVersion = modelVersion
	}
	next.StartedAt = &now
	next.UpdatedAt = now

	entry := s.newEntry(next, current.Status, ReasonProcessingStarted, actorID, now)
	if err := s.Repo.CompareAndSwap(ctx, next, current.Version, entry); err != nil {
		return QueueItem{}, s.mapRepoErr(err, documentID)
	}
	next.Version = current.Version + 1
	noteTransition(ctx, entry)
	return next, nil
}

// ApplyResult stores the worker's outcome for the current attempt. Only a
// processing document accepts a result; MarkProcessing must run first. A
// failure reported by the worker is kept on the record as errorMessage and is
// not an error for the caller.
func (s *Service) ApplyResult(ctx context.Context, actorID string, res WorkerResult) (item QueueItem, err error) {
	defer func() {
		s.audit(ctx, actorID, ActionResult, res.DocumentID, map[string]any{
			"status":       string(res.Status),
			"attempt":      res.Attempt,
			"payloadBytes": res.PayloadBytes,
		}, err)
	}()

	if err := ValidateDocumentID(res.DocumentID); err != nil {
		return QueueItem{}, err
	}
	if !res.Status.Terminal() {
		return QueueItem{}, apperr.Validation("status", "must be completed or failed")
	}
	if res.DurationSeconds != nil && (*res.DurationSeconds < 0 || math.IsNaN(*res.DurationSeconds) || math.IsInf(*res.DurationSeconds, 0)) {
		return QueueItem{}, apperr.Validation("durationSeconds", "must be a non-negative number")
	}

	current, err := s.Repo.GetByDocumentID(ctx, res.DocumentID)
	if err != nil {
		return QueueItem{}, s.mapRepoErr(err, res.DocumentID)
	}
	if current.Status != StatusProcessing {
		return QueueItem{}, apperr.Conflict(fmt.Sprintf("document %s is %s, not processing", res.DocumentID, current.Status))
	}
	if res.Attempt != 0 && res.Attempt != current.Attempt {
		return QueueItem{}, apperr.Conflict(fmt.Sprintf("stale result for attempt %d, current attempt is %d", res.Attempt, current.Attempt))
	}

	now := s.now()
	next := current.Clone()
	next.Status = res.Status
	if res.ModelVersion != "" {
		next.ModelVersion = res.ModelVersion
	}
	next.CompletedAt = &now
	next.UpdatedAt = now

	switch {
	case res.DurationSeconds != nil:
		d := *res.DurationSeconds
		next.ProcessingDurationSeconds = &d
		if next.StartedAt == nil {
			started := now.Add(-time.Duration(d * float64(time.Second)))
			next.StartedAt = &started
		}
	case next.StartedAt != nil:
		d := now.Sub(*next.StartedAt).Seconds()
		next.ProcessingDurationSeconds = &d
	}

	reason := ReasonCompleted
	next.ErrorMessage = nil
	if res.Status == StatusFailed {
		reason = ReasonFailed
		extErr := apperr.ExternalProcessing(res.DocumentID, strings.TrimSpace(res.ErrorMessage))
		next.ErrorMessage = stringPtr(extErr.Error())
	}

	entry := s.newEntry(next, current.Status, reason, actorID, now)
	if err := s.Repo.CompareAndSwap(ctx, next, current.Version, entry); err != nil {
		return QueueItem{}, s.mapRepoErr(err, res.DocumentID)
	}
	next.Version = current.Version + 1
	noteTransition(ctx, entry)

	metrics.WorkerResultsTotal.WithLabelValues(string(res.Status)).Inc()
	if next.ProcessingDurationSeconds != nil {
		metrics.ObserveProcessingSeconds(*next.ProcessingDurationSeconds)
	}
	if res.Status == StatusFailed {
		telemetry.Warn("queue.processing_failed", map[string]any{
			"document_id": res.DocumentID,
			"attempt":     next.Attempt,
			"error":       *next.ErrorMessage,
		})
	}
	return next, nil
}

func (s *Service) newEntry(item QueueItem, from Status, reason, actorID string, at time.Time) HistoryEntry {
	e := HistoryEntry{
		ID:           uuid.NewString(),
		QueueItemID:  item.ID,
		DocumentID:   item.DocumentID,
		Attempt:      item.Attempt,
		FromStatus:   from,
		ToStatus:     item.Status,
		Reason:       reason,
		ModelVersion: item.ModelVersion,
		ActorID:      actorID,
		CreatedAt:    at,
	}
	if item.ErrorMessage != nil {
		e.ErrorMessage = stringPtr(*item.ErrorMessage)
	}
	if item.ProcessingDurationSeconds != nil {
		d := *item.ProcessingDurationSeconds
		e.DurationSeconds = &d
	}
	return e
}

// publish sends the reprocess signal. The item stays pending on failure, so a
// later Reprocess can re-signal it.
func (s *Service) publish(ctx context.Context, item QueueItem, actorID string) error {
	if s.Signal == nil {
		return nil
	}
	msg := queue.NewMessage(item.DocumentID, item.ID, item.Attempt, actorID, requestIDFromContext(ctx), s.now())
	if err := s.Signal.Send(ctx, msg); err != nil {
		telemetry.Error("queue.signal_failed", map[string]any{
			"document_id": item.DocumentID,
			"attempt":     item.Attempt,
			"error":       err,
		})
		return &SignalError{DocumentID: item.DocumentID, Attempt: item.Attempt, Err: err}
	}
	return nil
}

// SignalError reports that a transition to pending was stored but the worker
// signal was not sent. The item stays pending at Attempt.
type SignalError struct {
	DocumentID string
	Attempt    int
	Err        error
}

func (e *SignalError) Error() string {
	return fmt.Sprintf("publish reprocess signal for %s attempt %d: %v", e.DocumentID, e.Attempt, e.Err)
}

func (e *SignalError) Unwrap() error { return e.Err }

// Reject audits a request that failed before reaching the state machine, such
// as an undecodable body, and returns err unchanged.
func (s *Service) Reject(ctx context.Context, actorID, action, documentID string, err error) error {
	s.audit(ctx, actorID, action, documentID, nil, err)
	return err
}

func (s *Service) audit(ctx context.Context, actorID, action, documentID string, payload map[string]any, err error) {
	audit.Emit(ctx, s.Audit, audit.NewEvent(actorID, action, entityQueueItem, documentID, payload, err))
}

func (s *Service) mapRepoErr(err error, documentID string) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return apperr.NotFound("document", documentID)
	case errors.Is(err, ErrVersionConflict):
		return apperr.Conflict("document " + documentID + " was modified concurrently")
	default:
		return err
	}
}

type requestIDKey struct{}

// WithRequestID tags ctx so published signals carry the originating request id.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

func requestIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey{}).(string); ok {
		return v
	}
	return ""
}

// Transition is the status change committed while serving one request.
type Transition struct {
	From Status
	To   Status
}

func (t *Transition) String() string {
	if t == nil || t.To == "" {
		return ""
	}
	return string(t.From) + "->" + string(t.To)
}

type transitionKey struct{}

// WithTransition returns a context under which the service records the
// transition it commits into the returned Transition.
func WithTransition(ctx context.Context) (context.Context, *Transition) {
	t := &Transition{}
	return context.WithValue(ctx, transitionKey{}, t), t
}

func noteTransition(ctx context.Context, entry HistoryEntry) {
	if t, ok := ctx.Value(transitionKey{}).(*Transition); ok {
		t.From, t.To = entry.FromStatus, entry.ToStatus
	}
}
