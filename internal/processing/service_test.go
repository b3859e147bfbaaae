package processing

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"statements-backend/internal/audit"
	"statements-backend/internal/queue"
	"statements-backend/internal/shared/apperr"
)

type fixture struct {
	svc    *Service
	repo   *MemoryRepo
	signal *queue.MemoryClient
	audit  *audit.MemoryRecorder
	now    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:   NewMemoryRepo(),
		signal: queue.NewMemoryClient(),
		audit:  audit.NewMemoryRecorder(),
		now:    time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC),
	}
	f.svc = NewService(f.repo, f.signal, f.audit)
	f.svc.Now = func() time.Time { return f.now }
	return f
}

func (f *fixture) enqueue(t *testing.T, id string) QueueItem {
	t.Helper()
	item, err := f.svc.Enqueue(context.Background(), "admin", NewDocument{
		DocumentID: id, FileName: id + ".pdf", FileSizeBytes: 2048, UserID: "user-1", UserName: "Ana", ModelVersion: "v1",
	})
	require.NoError(t, err)
	return item
}

func (f *fixture) finish(t *testing.T, id string, status Status) {
	t.Helper()
	ctx := context.Background()
	_, err := f.svc.MarkProcessing(ctx, "worker", id, "")
	require.NoError(t, err)
	f.now = f.now.Add(4 * time.Second)
	_, err = f.svc.ApplyResult(ctx, "worker", WorkerResult{DocumentID: id, Status: status, ErrorMessage: "ocr timeout"})
	require.NoError(t, err)
}

func TestEnqueueCreatesPendingItemAndSignals(t *testing.T) {
	f := newFixture(t)
	item := f.enqueue(t, "doc-1")

	assert.Equal(t, StatusPending, item.Status)
	assert.Equal(t, 1, item.Attempt)
	assert.Equal(t, int64(1), item.Version)

	msgs := f.signal.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "doc-1", msgs[0].DocumentID)
	assert.Equal(t, 1, msgs[0].Attempt)

	history, err := f.svc.History(context.Background(), "doc-1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, ReasonEnqueued, history[0].Reason)

	_, err = f.svc.Enqueue(context.Background(), "admin", NewDocument{DocumentID: "doc-1", FileName: "x.pdf", UserID: "u"})
	assert.True(t, errors.Is(err, apperr.ErrConflict))
}

func TestEnqueueValidatesInput(t *testing.T) {
	f := newFixture(t)
	cases := []NewDocument{
		{DocumentID: "", FileName: "a.pdf", UserID: "u"},
		{DocumentID: "has space", FileName: "a.pdf", UserID: "u"},
		{DocumentID: "d", FileName: "", UserID: "u"},
		{DocumentID: "d", FileName: "a.pdf", UserID: ""},
		{DocumentID: "d", FileName: "a.pdf", UserID: "u", FileSizeBytes: -1},
		{DocumentID: "d", FileName: "a.pdf", UserID: "u", Metadata: Metadata{"s": SelectValue("x", "a")}},
	}
	for i, doc := range cases {
		_, err := f.svc.Enqueue(context.Background(), "admin", doc)
		assert.True(t, errors.Is(err, apperr.ErrValidation), "case %d: %v", i, err)
	}
	assert.Len(t, f.audit.ByAction(ActionEnqueue), len(cases), "failed attempts are audited")
}

func TestCountsByStatusMatchesExample(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 12; i++ {
		f.enqueue(t, fmt.Sprintf("doc-%02d", i))
	}
	for i := 0; i < 5; i++ {
		f.finish(t, fmt.Sprintf("doc-%02d", i), StatusCompleted)
	}
	for i := 5; i < 8; i++ {
		f.finish(t, fmt.Sprintf("doc-%02d", i), StatusFailed)
	}
	for i := 8; i < 10; i++ {
		_, err := f.svc.MarkProcessing(context.Background(), "worker", fmt.Sprintf("doc-%02d", i), "v2")
		require.NoError(t, err)
	}

	counts, err := f.svc.CountsByStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Counts{Pending: 2, Processing: 2, Completed: 5, Failed: 3, Total: 12}, counts)
	assert.Equal(t, counts.Pending+counts.Processing+counts.Completed+counts.Failed, counts.Total)
}

func TestReprocessWhileProcessingConflicts(t *testing.T) {
	f := newFixture(t)
	f.enqueue(t, "doc-1")
	before, err := f.svc.MarkProcessing(context.Background(), "worker", "doc-1", "")
	require.NoError(t, err)

	_, err = f.svc.Reprocess(context.Background(), "admin", "doc-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrConflict))

	after, err := f.svc.Get(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, after.Status)
	assert.Equal(t, before.Version, after.Version)

	events := f.audit.ByAction(ActionReprocess)
	require.Len(t, events, 1)
	assert.Equal(t, audit.OutcomeFailure, events[0].Outcome)
	assert.Equal(t, "conflict", events[0].ErrorCode)
}

func TestReprocessFailedAppendsHistory(t *testing.T) {
	f := newFixture(t)
	f.enqueue(t, "doc-1")
	f.finish(t, "doc-1", StatusFailed)

	failed, err := f.svc.Get(context.Background(), "doc-1")
	require.NoError(t, err)
	require.NotNil(t, failed.ErrorMessage)
	assert.Equal(t, "ocr timeout", *failed.ErrorMessage)

	historyBefore, err := f.svc.History(context.Background(), "doc-1")
	require.NoError(t, err)

	item, err := f.svc.Reprocess(context.Background(), "admin", "doc-1")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, item.Status)
	assert.Equal(t, 2, item.Attempt)
	assert.Nil(t, item.ErrorMessage)

	historyAfter, err := f.svc.History(context.Background(), "doc-1")
	require.NoError(t, err)
	require.Len(t, historyAfter, len(historyBefore)+1)
	assert.Equal(t, historyBefore, historyAfter[:len(historyBefore)], "earlier entries are never rewritten")

	last := historyAfter[len(historyAfter)-1]
	assert.Equal(t, ReasonReprocessRequested, last.Reason)
	assert.Equal(t, StatusFailed, last.FromStatus)
	assert.Equal(t, StatusPending, last.ToStatus)
	require.NotNil(t, last.ErrorMessage, "prior failure is snapshotted")
	assert.Equal(t, "ocr timeout", *last.ErrorMessage)

	msgs := f.signal.Messages()
	assert.Equal(t, 2, msgs[len(msgs)-1].Attempt)
}

// staleRepo lets a concurrent reprocess win between the read and the write.
type staleRepo struct {
	*MemoryRepo
	interfere func()
}

func (r *staleRepo) GetByDocumentID(ctx context.Context, id string) (QueueItem, error) {
	item, err := r.MemoryRepo.GetByDocumentID(ctx, id)
	if r.interfere != nil {
		fn := r.interfere
		r.interfere = nil
		fn()
	}
	return item, err
}

func TestReprocessLostUpdateIsConflict(t *testing.T) {
	f := newFixture(t)
	f.enqueue(t, "doc-1")
	f.finish(t, "doc-1", StatusCompleted)

	other := NewService(f.repo, nil, nil)
	repo := &staleRepo{MemoryRepo: f.repo}
	repo.interfere = func() {
		_, err := other.Reprocess(context.Background(), "admin-2", "doc-1")
		require.NoError(t, err)
	}
	f.svc.Repo = repo

	_, err := f.svc.Reprocess(context.Background(), "admin-1", "doc-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrConflict))

	item, err := f.repo.GetByDocumentID(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Equal(t, 2, item.Attempt, "only the winning reprocess is applied")
}

func TestReprocessUnknownDocument(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Reprocess(context.Background(), "admin", "missing")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

type failingSignal struct{}

func (failingSignal) Send(context.Context, queue.Message) error {
	return errors.New("queue unavailable")
}

func TestReprocessSignalFailureKeepsPendingState(t *testing.T) {
	f := newFixture(t)
	f.enqueue(t, "doc-1")
	f.finish(t, "doc-1", StatusFailed)
	f.svc.Signal = failingSignal{}

	_, err := f.svc.Reprocess(context.Background(), "admin", "doc-1")
	var sigErr *SignalError
	require.True(t, errors.As(err, &sigErr))
	assert.Equal(t, 2, sigErr.Attempt)

	item, err := f.svc.Get(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, item.Status)

	f.svc.Signal = f.signal
	_, err = f.svc.Reprocess(context.Background(), "admin", "doc-1")
	assert.NoError(t, err, "a pending document can be re-signalled")
}

func TestManuallyTagKeepsStatus(t *testing.T) {
	f := newFixture(t)
	f.enqueue(t, "doc-1")
	f.finish(t, "doc-1", StatusCompleted)

	item, err := f.svc.ManuallyTag(context.Background(), "admin", "doc-1", Metadata{"bank": SelectValue("acme", "acme", "other")})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, item.Status)
	assert.Equal(t, "acme", *item.Metadata["bank"].Choice)

	item, err = f.svc.ManuallyTag(context.Background(), "admin-2", "doc-1", Metadata{"note": TextValue("checked")})
	require.NoError(t, err)
	assert.NotContains(t, item.Metadata, "bank", "last write wins")

	_, err = f.svc.ManuallyTag(context.Background(), "admin", "doc-1", Metadata{"n": NumberValue(1), "": TextValue("x")})
	assert.True(t, errors.Is(err, apperr.ErrValidation))
	_, err = f.svc.ManuallyTag(context.Background(), "admin", "nope", Metadata{"n": NumberValue(1)})
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	events := f.audit.ByAction(ActionTag)
	require.Len(t, events, 4)
	assert.Equal(t, audit.OutcomeFailure, events[3].Outcome)
}

func TestApplyResultStoresWorkerFailure(t *testing.T) {
	f := newFixture(t)
	f.enqueue(t, "doc-1")
	_, err := f.svc.MarkProcessing(context.Background(), "worker", "doc-1", "v2")
	require.NoError(t, err)

	dur := 7.5
	item, err := f.svc.ApplyResult(context.Background(), "worker", WorkerResult{
		DocumentID: "doc-1", Attempt: 1, Status: StatusFailed, DurationSeconds: &dur, ErrorMessage: "unreadable scan",
	})
	require.NoError(t, err, "worker failures are stored, not returned")
	assert.Equal(t, StatusFailed, item.Status)
	assert.Equal(t, "unreadable scan", *item.ErrorMessage)
	assert.Equal(t, 7.5, *item.ProcessingDurationSeconds)
	assert.Equal(t, "v2", item.ModelVersion)

	_, err = f.svc.ApplyResult(context.Background(), "worker", WorkerResult{DocumentID: "doc-1", Status: StatusCompleted})
	assert.True(t, errors.Is(err, apperr.ErrConflict), "terminal records are not overwritten")
}

func TestApplyResultRequiresProcessing(t *testing.T) {
	f := newFixture(t)
	before := f.enqueue(t, "doc-1")

	_, err := f.svc.ApplyResult(context.Background(), "worker", WorkerResult{DocumentID: "doc-1", Attempt: 1, Status: StatusCompleted})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrConflict))

	item, err := f.svc.Get(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, item.Status)
	assert.Equal(t, before.Version, item.Version)
	assert.Nil(t, item.CompletedAt)

	history, err := f.svc.History(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Len(t, history, 1)

	events := f.audit.ByAction(ActionResult)
	require.Len(t, events, 1)
	assert.Equal(t, audit.OutcomeFailure, events[0].Outcome)
	assert.Equal(t, "conflict", events[0].ErrorCode)
}

func TestRejectAuditsFailure(t *testing.T) {
	f := newFixture(t)
	want := apperr.Validation("body", "invalid request body")

	err := f.svc.Reject(context.Background(), "admin", ActionTag, "doc-1", want)
	assert.Equal(t, want, err)

	events := f.audit.ByAction(ActionTag)
	require.Len(t, events, 1)
	assert.Equal(t, audit.OutcomeFailure, events[0].Outcome)
	assert.Equal(t, "doc-1", events[0].EntityID)
}

func TestApplyResultRejectsStaleAttempt(t *testing.T) {
	f := newFixture(t)
	f.enqueue(t, "doc-1")
	f.finish(t, "doc-1", StatusFailed)
	_, err := f.svc.Reprocess(context.Background(), "admin", "doc-1")
	require.NoError(t, err)

	_, err = f.svc.ApplyResult(context.Background(), "worker", WorkerResult{DocumentID: "doc-1", Attempt: 1, Status: StatusCompleted})
	assert.True(t, errors.Is(err, apperr.ErrConflict))

	_, err = f.svc.ApplyResult(context.Background(), "worker", WorkerResult{DocumentID: "doc-1", Status: StatusPending})
	assert.True(t, errors.Is(err, apperr.ErrValidation))
}

func TestApplyResultDerivesDurationFromStart(t *testing.T) {
	f := newFixture(t)
	f.enqueue(t, "doc-1")
	f.finish(t, "doc-1", StatusCompleted)

	item, err := f.svc.Get(context.Background(), "doc-1")
	require.NoError(t, err)
	require.NotNil(t, item.ProcessingDurationSeconds)
	assert.Equal(t, 4.0, *item.ProcessingDurationSeconds)
	assert.Nil(t, item.ErrorMessage)
}

func TestListFiltersAndPages(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 5; i++ {
		f.enqueue(t, fmt.Sprintf("doc-%d", i))
		f.now = f.now.Add(time.Minute)
	}
	f.finish(t, "doc-0", StatusFailed)
	f.finish(t, "doc-3", StatusFailed)

	page, err := f.svc.List(context.Background(), ListFilter{Statuses: []Status{StatusFailed}})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "doc-3", page.Items[0].DocumentID, "newest first by default")

	page, err = f.svc.List(context.Background(), ListFilter{SortBy: "createdAt"})
	require.NoError(t, err)
	assert.Equal(t, 5, page.Total)

	_, err = f.svc.List(context.Background(), ListFilter{SortBy: "nope"})
	assert.True(t, errors.Is(err, apperr.ErrValidation))
}
