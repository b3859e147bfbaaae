// Package workerproc decodes extraction results delivered over the results
// queue and applies them to the queue store.
package workerproc

import (
	"context"
	"errors"
	"strings"

	"statements-backend/internal/processing"
	"statements-backend/internal/queue"
	"statements-backend/internal/shared/apperr"
	"statements-backend/internal/shared/util"
)

// ActorID attributes worker write-backs in the audit log.
const ActorID = "extraction-worker"

// MessageMeta captures details useful for logging and diagnostics.
type MessageMeta struct {
	BodyLen int
	BodySHA string
}

// ComputeMeta returns the body length and SHA-256 hash.
func ComputeMeta(body string) MessageMeta {
	if body == "" {
		return MessageMeta{}
	}
	return MessageMeta{BodyLen: len(body), BodySHA: util.Checksum([]byte(body))}
}

// ErrEmptyBody indicates an empty queue payload.
type ErrEmptyBody struct {
	Meta MessageMeta
}

func (e ErrEmptyBody) Error() string { return "empty message body" }

// ErrDecode indicates a JSON decode failure.
type ErrDecode struct {
	Meta MessageMeta
	Err  error
}

func (e ErrDecode) Error() string {
	if e.Err == nil {
		return "decode message"
	}
	return "decode message: " + e.Err.Error()
}

func (e ErrDecode) Unwrap() error { return e.Err }

// ErrMissingDocumentID indicates a result without a document id.
type ErrMissingDocumentID struct {
	Meta      MessageMeta
	RequestID string
}

func (e ErrMissingDocumentID) Error() string { return "missing document id" }

// ErrRejected indicates the queue refused the result for good. The document may
// be unknown, not in the state the result expects, or on a newer attempt, or the
// result itself is malformed.
// Redelivering the message cannot succeed.
type ErrRejected struct {
	DocumentID string
	RequestID  string
	Err        error
}

func (e ErrRejected) Error() string { return "result rejected: " + e.Err.Error() }

func (e ErrRejected) Unwrap() error { return e.Err }

// ErrProcess indicates applying the result failed after successful parsing and
// may succeed on redelivery.
type ErrProcess struct {
	DocumentID string
	RequestID  string
	Err        error
}

func (e ErrProcess) Error() string {
	if e.Err == nil {
		return "apply result"
	}
	return "apply result: " + e.Err.Error()
}

func (e ErrProcess) Unwrap() error { return e.Err }

// ParseMessage validates and decodes a result payload.
func ParseMessage(body string) (queue.Result, MessageMeta, error) {
	meta := ComputeMeta(body)
	if strings.TrimSpace(body) == "" {
		return queue.Result{}, meta, ErrEmptyBody{Meta: meta}
	}

	res, err := queue.DecodeResult([]byte(body))
	if err != nil {
		return queue.Result{}, meta, ErrDecode{Meta: meta, Err: err}
	}
	if strings.TrimSpace(res.DocumentID) == "" {
		return res, meta, ErrMissingDocumentID{Meta: meta, RequestID: res.RequestID}
	}
	return res, meta, nil
}

// ResultApplier stores worker progress and outcomes.
type ResultApplier interface {
	MarkProcessing(ctx context.Context, actorID, documentID, modelVersion string) (processing.QueueItem, error)
	ApplyResult(ctx context.Context, actorID string, res processing.WorkerResult) (processing.QueueItem, error)
}

// Apply hands a decoded result to the queue. A processing status marks the
// pickup; any other status is an outcome, validated and audited by the queue.
func Apply(ctx context.Context, applier ResultApplier, res queue.Result) (processing.QueueItem, error) {
	if applier == nil {
		return processing.QueueItem{}, errors.New("result applier not configured")
	}

	ctx = processing.WithRequestID(ctx, res.RequestID)
	status := processing.NormalizeStatus(res.Status)

	var (
		item processing.QueueItem
		err  error
	)
	if status == processing.StatusProcessing {
		item, err = applier.MarkProcessing(ctx, ActorID, res.DocumentID, res.ModelVersion)
	} else {
		item, err = applier.ApplyResult(ctx, ActorID, processing.WorkerResult{
			DocumentID:      res.DocumentID,
			Attempt:         res.Attempt,
			Status:          status,
			ModelVersion:    res.ModelVersion,
			DurationSeconds: res.DurationSeconds,
			ErrorMessage:    res.ErrorMessage,
			PayloadBytes:    len(res.ExtractedResultPayload),
		})
	}
	if err != nil {
		if permanent(err) {
			return processing.QueueItem{}, ErrRejected{DocumentID: res.DocumentID, RequestID: res.RequestID, Err: err}
		}
		return processing.QueueItem{}, ErrProcess{DocumentID: res.DocumentID, RequestID: res.RequestID, Err: err}
	}
	return item, nil
}

// HandleMessage parses body and applies the result.
func HandleMessage(ctx context.Context, applier ResultApplier, body string) (queue.Result, error) {
	res, _, err := ParseMessage(body)
	if err != nil {
		return res, err
	}
	if _, err := Apply(ctx, applier, res); err != nil {
		return res, err
	}
	return res, nil
}

func permanent(err error) bool {
	return errors.Is(err, apperr.ErrValidation) ||
		errors.Is(err, apperr.ErrNotFound) ||
		errors.Is(err, apperr.ErrConflict)
}

// Retryable reports whether the message behind err should be delivered again.
// Unreadable payloads and rejected results never succeed on redelivery.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	var (
		emptyErr    ErrEmptyBody
		decodeErr   ErrDecode
		missingErr  ErrMissingDocumentID
		rejectedErr ErrRejected
	)
	switch {
	case errors.As(err, &emptyErr), errors.As(err, &decodeErr),
		errors.As(err, &missingErr), errors.As(err, &rejectedErr):
		return false
	default:
		return true
	}
}
