// Package batch applies one queue action to many documents, isolating
// failures per item.
package batch

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"statements-backend/internal/audit"
	"statements-backend/internal/processing"
	"statements-backend/internal/shared/apperr"
	"statements-backend/internal/shared/metrics"
	"statements-backend/internal/shared/telemetry"
)

// Action names accepted by Apply.
const (
	ActionReprocess = "reprocess"
	ActionTag       = "tag"
)

// MaxDocuments bounds a single request.
const MaxDocuments = 500

const (
	auditAction = "queue.batch"
	entityBatch = "queue_batch"
)

// CodeSignalFailed marks a reprocess that moved the document to pending but
// could not signal the worker. Reprocessing it again re-sends the signal and
// starts a further attempt.
const CodeSignalFailed = "signal_failed"

// Queue is the subset of the queue service the coordinator drives.
type Queue interface {
	Reprocess(ctx context.Context, actorID, documentID string) (processing.QueueItem, error)
	ManuallyTag(ctx context.Context, actorID, documentID string, md processing.Metadata) (processing.QueueItem, error)
}

// Request describes one batch call.
type Request struct {
	DocumentIDs []string            `json:"documentIds"`
	Action      string              `json:"action"`
	Metadata    processing.Metadata `json:"metadata,omitempty"`
}

// ItemError reports why one document failed.
type ItemError struct {
	Index      int    `json:"index"`
	DocumentID string `json:"documentId"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

// Result aggregates per-item outcomes. An item reported with CodeSignalFailed
// counts as a failure even though its state change was stored.
type Result struct {
	SuccessCount int         `json:"successCount"`
	FailureCount int         `json:"failureCount"`
	Errors       []ItemError `json:"errors"`
}

// Coordinator runs batch actions against the queue.
type Coordinator struct {
	Queue Queue
	Audit audit.Recorder
}

// NewCoordinator constructs a Coordinator.
func NewCoordinator(q Queue, recorder audit.Recorder) *Coordinator {
	return &Coordinator{Queue: q, Audit: recorder}
}

// Apply runs req.Action for every id. Only a malformed request fails the whole
// call; item failures are collected into the result.
func (c *Coordinator) Apply(ctx context.Context, actorID string, req Request) (res Result, err error) {
	defer func() {
		audit.Emit(ctx, c.Audit, audit.NewEvent(actorID, auditAction, entityBatch, req.Action, map[string]any{
			"documentCount": len(req.DocumentIDs),
			"successCount":  res.SuccessCount,
			"failureCount":  res.FailureCount,
		}, err))
	}()

	if err := validate(req); err != nil {
		return Result{}, err
	}

	res.Errors = []ItemError{}
	seen := make(map[string]struct{}, len(req.DocumentIDs))
	for i, raw := range req.DocumentIDs {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		id := strings.TrimSpace(raw)
		if _, dup := seen[id]; dup {
			res.fail(i, id, apperr.Conflict("document "+id+" appears more than once in this request"), req.Action)
			continue
		}
		seen[id] = struct{}{}

		var itemErr error
		switch req.Action {
		case ActionReprocess:
			_, itemErr = c.Queue.Reprocess(ctx, actorID, id)
		case ActionTag:
			_, itemErr = c.Queue.ManuallyTag(ctx, actorID, id, req.Metadata)
		}
		if itemErr != nil {
			res.fail(i, id, itemErr, req.Action)
			continue
		}
		res.SuccessCount++
		metrics.BatchItemsTotal.WithLabelValues(req.Action, "success").Inc()
	}

	if res.FailureCount > 0 {
		telemetry.Warn("batch.partial_failure", map[string]any{
			"action":        req.Action,
			"actor_id":      actorID,
			"success_count": res.SuccessCount,
			"failure_count": res.FailureCount,
		})
	}
	return res, nil
}

// Reject audits a request that could not be decoded and returns err unchanged.
func (c *Coordinator) Reject(ctx context.Context, actorID string, err error) error {
	audit.Emit(ctx, c.Audit, audit.NewEvent(actorID, auditAction, entityBatch, "", nil, err))
	return err
}

func (r *Result) fail(index int, documentID string, err error, action string) {
	code := apperr.Code(err)
	msg := err.Error()
	var sigErr *processing.SignalError
	if errors.As(err, &sigErr) {
		code = CodeSignalFailed
		msg = "document is pending at attempt " + strconv.Itoa(sigErr.Attempt) + " but the worker was not signalled"
	} else if code == "internal_error" {
		msg = "internal error"
	}
	if code == "internal_error" || code == CodeSignalFailed {
		telemetry.Error("batch.item_failed", map[string]any{
			"action":      action,
			"document_id": documentID,
			"error":       err,
		})
	}
	r.FailureCount++
	r.Errors = append(r.Errors, ItemError{Index: index, DocumentID: documentID, Code: code, Message: msg})
	metrics.BatchItemsTotal.WithLabelValues(action, code).Inc()
}

func validate(req Request) error {
	if len(req.DocumentIDs) == 0 {
		return apperr.Validation("documentIds", "must not be empty")
	}
	if len(req.DocumentIDs) > MaxDocuments {
		return apperr.Validation("documentIds", "must not exceed 500 ids")
	}
	switch req.Action {
	case ActionReprocess:
	case ActionTag:
		if len(req.Metadata) == 0 {
			return apperr.Validation("metadata", "is required for tag")
		}
		if err := req.Metadata.Validate(); err != nil {
			return err
		}
	default:
		return apperr.Validation("action", "must be reprocess or tag")
	}
	return nil
}
