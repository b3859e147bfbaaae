package processing

import (
	"context"
	"sync"
	"time"

	"statements-backend/internal/shared/pagination"
)

// MemoryRepo is an in-memory implementation of Repo.
type MemoryRepo struct {
	mu      sync.RWMutex
	items   map[string]QueueItem      // documentId -> item
	history map[string][]HistoryEntry // documentId -> entries
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		items:   make(map[string]QueueItem),
		history: make(map[string][]HistoryEntry),
	}
}

// Create stores a new item and its first history entry.
func (r *MemoryRepo) Create(ctx context.Context, item QueueItem, entry HistoryEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.items[item.DocumentID]; exists {
		return ErrDuplicate
	}
	r.items[item.DocumentID] = item.Clone()
	r.history[item.DocumentID] = append(r.history[item.DocumentID], entry)
	return nil
}

// GetByDocumentID returns the item for documentID.
func (r *MemoryRepo) GetByDocumentID(ctx context.Context, documentID string) (QueueItem, error) {
	if err := ctx.Err(); err != nil {
		return QueueItem{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	item, ok := r.items[documentID]
	if !ok {
		return QueueItem{}, ErrNotFound
	}
	return item.Clone(), nil
}

// List filters, sorts and pages a snapshot of the items.
func (r *MemoryRepo) List(ctx context.Context, f ListFilter) ([]QueueItem, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	r.mu.RLock()
	matched := make([]QueueItem, 0, len(r.items))
	for _, item := range r.items {
		if f.Matches(item) {
			matched = append(matched, item.Clone())
		}
	}
	r.mu.RUnlock()

	f.SortItems(matched)
	return pagination.Slice(matched, f.Page), len(matched), nil
}

// ListUpdatedBetween returns items with UpdatedAt in [from, to).
func (r *MemoryRepo) ListUpdatedBetween(ctx context.Context, from, to time.Time) ([]QueueItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []QueueItem
	for _, item := range r.items {
		if !item.UpdatedAt.Before(from) && item.UpdatedAt.Before(to) {
			out = append(out, item.Clone())
		}
	}
	return out, nil
}

// CountByStatus counts items per status under one read lock.
func (r *MemoryRepo) CountByStatus(ctx context.Context) (Counts, error) {
	if err := ctx.Err(); err != nil {
		return Counts{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var c Counts
	for _, item := range r.items {
		c.Add(item.Status, 1)
	}
	return c, nil
}

// CompareAndSwap replaces the item when its version still matches.
func (r *MemoryRepo) CompareAndSwap(ctx context.Context, item QueueItem, expectedVersion int64, entry HistoryEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.items[item.DocumentID]
	if !ok {
		return ErrNotFound
	}
	if current.Version != expectedVersion {
		return ErrVersionConflict
	}
	next := item.Clone()
	next.Metadata = current.Metadata
	next.Version = expectedVersion + 1
	r.items[item.DocumentID] = next
	r.history[item.DocumentID] = append(r.history[item.DocumentID], entry)
	return nil
}

// UpdateMetadata overwrites the metadata map.
func (r *MemoryRepo) UpdateMetadata(ctx context.Context, documentID string, md Metadata, updatedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.items[documentID]
	if !ok {
		return ErrNotFound
	}
	current.Metadata = md.Clone()
	current.UpdatedAt = updatedAt
	r.items[documentID] = current
	return nil
}

// History returns the entries for documentID in append order.
func (r *MemoryRepo) History(ctx context.Context, documentID string) ([]HistoryEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.items[documentID]; !ok {
		return nil, ErrNotFound
	}
	entries := r.history[documentID]
	out := make([]HistoryEntry, len(entries))
	copy(out, entries)
	return out, nil
}

var _ Repo = (*MemoryRepo)(nil)
