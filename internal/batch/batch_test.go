package batch

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"statements-backend/internal/audit"
	"statements-backend/internal/processing"
	"statements-backend/internal/queue"
	"statements-backend/internal/shared/apperr"
)

func newQueue(t *testing.T, ids ...string) *processing.Service {
	t.Helper()
	svc := processing.NewService(processing.NewMemoryRepo(), queue.NewMemoryClient(), audit.NewMemoryRecorder())
	for _, id := range ids {
		_, err := svc.Enqueue(context.Background(), "admin-1", processing.NewDocument{DocumentID: id, FileName: id + ".pdf", UserID: "u-1"})
		require.NoError(t, err)
	}
	return svc
}

func codesByDocument(res Result) map[string][]string {
	out := map[string][]string{}
	for _, e := range res.Errors {
		out[e.DocumentID] = append(out[e.DocumentID], e.Code)
	}
	return out
}

func TestApplyReprocessIsolatesFailures(t *testing.T) {
	svc := newQueue(t, "doc-1", "doc-2", "doc-3", "doc-4")
	_, err := svc.MarkProcessing(context.Background(), "worker", "doc-3", "v2")
	require.NoError(t, err)

	rec := audit.NewMemoryRecorder()
	c := NewCoordinator(svc, rec)
	res, err := c.Apply(context.Background(), "admin-1", Request{
		DocumentIDs: []string{"doc-1", "doc-2", "doc-3", "missing", "doc-1"},
		Action:      ActionReprocess,
	})
	require.NoError(t, err)

	assert.Equal(t, 2, res.SuccessCount)
	assert.Equal(t, 3, res.FailureCount)
	assert.Len(t, res.Errors, 3)

	codes := codesByDocument(res)
	assert.ElementsMatch(t, []string{"conflict"}, codes["doc-3"])
	assert.ElementsMatch(t, []string{"not_found"}, codes["missing"])
	assert.ElementsMatch(t, []string{"conflict"}, codes["doc-1"])

	item, err := svc.Get(context.Background(), "doc-3")
	require.NoError(t, err)
	assert.Equal(t, processing.StatusProcessing, item.Status)

	item, err = svc.Get(context.Background(), "doc-2")
	require.NoError(t, err)
	assert.Equal(t, 2, item.Attempt)

	events := rec.ByAction("queue.batch")
	require.Len(t, events, 1)
	assert.Equal(t, audit.OutcomeSuccess, events[0].Outcome)
}

func TestApplyTagOverwritesMetadata(t *testing.T) {
	svc := newQueue(t, "doc-1", "doc-2")
	c := NewCoordinator(svc, nil)

	md := processing.Metadata{"bank": processing.SelectValue("acme", "acme", "other")}
	res, err := c.Apply(context.Background(), "admin-1", Request{
		DocumentIDs: []string{"doc-1", "doc-2", "doc-9"},
		Action:      ActionTag,
		Metadata:    md,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.SuccessCount)
	assert.Equal(t, 1, res.FailureCount)

	for _, id := range []string{"doc-1", "doc-2"} {
		item, err := svc.Get(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, processing.StatusPending, item.Status)
		assert.Equal(t, "acme", *item.Metadata["bank"].Choice)
	}
}

func TestApplyRejectsMalformedRequests(t *testing.T) {
	rec := audit.NewMemoryRecorder()
	c := NewCoordinator(newQueue(t), rec)

	cases := map[string]Request{
		"empty ids":      {Action: ActionReprocess},
		"unknown action": {DocumentIDs: []string{"doc-1"}, Action: "delete"},
		"tag without md": {DocumentIDs: []string{"doc-1"}, Action: ActionTag},
		"tag invalid md": {
			DocumentIDs: []string{"doc-1"},
			Action:      ActionTag,
			Metadata:    processing.Metadata{"bank": processing.SelectValue("nope", "acme")},
		},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := c.Apply(context.Background(), "admin-1", req)
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperr.ErrValidation))
		})
	}
	for _, ev := range rec.ByAction("queue.batch") {
		assert.Equal(t, audit.OutcomeFailure, ev.Outcome)
	}
}

type brokenQueue struct{}

func (brokenQueue) Reprocess(context.Context, string, string) (processing.QueueItem, error) {
	return processing.QueueItem{}, errors.New("connection reset")
}

func (brokenQueue) ManuallyTag(context.Context, string, string, processing.Metadata) (processing.QueueItem, error) {
	return processing.QueueItem{}, errors.New("connection reset")
}

func TestApplyHidesInternalErrors(t *testing.T) {
	c := NewCoordinator(brokenQueue{}, nil)
	res, err := c.Apply(context.Background(), "admin-1", Request{DocumentIDs: []string{"a", "b"}, Action: ActionReprocess})
	require.NoError(t, err)
	assert.Equal(t, 0, res.SuccessCount)
	assert.Equal(t, 2, res.FailureCount)
	for _, e := range res.Errors {
		assert.Equal(t, "internal_error", e.Code)
		assert.Equal(t, "internal error", e.Message)
	}
}

type downSignal struct{}

func (downSignal) Send(context.Context, queue.Message) error {
	return errors.New("queue unavailable")
}

func TestApplyReportsSignalFailureSeparately(t *testing.T) {
	svc := newQueue(t, "doc-1")
	_, err := svc.MarkProcessing(context.Background(), "worker", "doc-1", "")
	require.NoError(t, err)
	_, err = svc.ApplyResult(context.Background(), "worker", processing.WorkerResult{DocumentID: "doc-1", Status: processing.StatusFailed})
	require.NoError(t, err)
	svc.Signal = downSignal{}

	res, err := NewCoordinator(svc, nil).Apply(context.Background(), "admin-1", Request{DocumentIDs: []string{"doc-1"}, Action: ActionReprocess})
	require.NoError(t, err)
	assert.Equal(t, 0, res.SuccessCount)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, CodeSignalFailed, res.Errors[0].Code)
	assert.Contains(t, res.Errors[0].Message, "pending at attempt 2")

	item, err := svc.Get(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Equal(t, processing.StatusPending, item.Status)
	assert.Equal(t, 2, item.Attempt)
}
