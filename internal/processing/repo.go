package processing

import (
	"context"
	"time"
)

// Repo persists queue items and their append-only history.
type Repo interface {
	// Create inserts a new item with its first history entry. It returns
	// ErrDuplicate when the document is already queued.
	Create(ctx context.Context, item QueueItem, entry HistoryEntry) error
	GetByDocumentID(ctx context.Context, documentID string) (QueueItem, error)
	// List returns one page of matching items and the unpaged match count.
	List(ctx context.Context, f ListFilter) ([]QueueItem, int, error)
	// ListUpdatedBetween returns items whose UpdatedAt is in [from, to).
	ListUpdatedBetween(ctx context.Context, from, to time.Time) ([]QueueItem, error)
	CountByStatus(ctx context.Context) (Counts, error)
	// CompareAndSwap writes item's lifecycle fields when the stored version
	// equals expectedVersion, bumps the version, and appends entry in the same
	// write. It returns ErrVersionConflict when the version moved.
	CompareAndSwap(ctx context.Context, item QueueItem, expectedVersion int64, entry HistoryEntry) error
	// UpdateMetadata overwrites metadata without touching status or version.
	UpdateMetadata(ctx context.Context, documentID string, md Metadata, updatedAt time.Time) error
	History(ctx context.Context, documentID string) ([]HistoryEntry, error)
}
