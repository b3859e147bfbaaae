package processing

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"statements-backend/internal/shared/storage/db"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

const queueItemColumns = `id, document_id, file_name, file_size_bytes, user_id, user_name, status, model_version,
       error_message, processing_duration_seconds, metadata, attempt, version, started_at, completed_at, created_at, updated_at`

// Create inserts the item and its first history entry in one transaction.
func (r *PGRepo) Create(ctx context.Context, item QueueItem, entry HistoryEntry) error {
	const query = `
INSERT INTO queue_items (
    id,
    document_id,
    file_name,
    file_size_bytes,
    user_id,
    user_name,
    status,
    model_version,
    metadata,
    attempt,
    version,
    created_at,
    updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	md, err := encodeMetadata(item.Metadata)
	if err != nil {
		return err
	}

	err = db.WithTx(ctx, r.DB, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, query,
			item.ID,
			item.DocumentID,
			item.FileName,
			item.FileSizeBytes,
			item.UserID,
			item.UserName,
			string(item.Status),
			item.ModelVersion,
			md,
			item.Attempt,
			item.Version,
			item.CreatedAt,
			item.UpdatedAt,
		); err != nil {
			return err
		}
		return insertHistory(ctx, tx, entry)
	})
	if db.IsUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

// GetByDocumentID returns the item for documentID.
func (r *PGRepo) GetByDocumentID(ctx context.Context, documentID string) (QueueItem, error) {
	query := `SELECT ` + queueItemColumns + `
FROM queue_items
WHERE document_id = $1`

	item, err := scanQueueItem(r.DB.QueryRowContext(ctx, query, documentID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return QueueItem{}, ErrNotFound
		}
		return QueueItem{}, err
	}
	return item, nil
}

// List runs a count and a page query built from the same predicates.
func (r *PGRepo) List(ctx context.Context, f ListFilter) ([]QueueItem, int, error) {
	where, args := buildListWhere(f)

	var total int
	countQuery := `SELECT COUNT(*) FROM queue_items` + where
	if err := r.DB.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + queueItemColumns + `
FROM queue_items` + where + orderClause(f) +
		fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, f.Page.Limit, f.Page.Offset)

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	items := make([]QueueItem, 0, f.Page.Limit)
	for rows.Next() {
		item, err := scanQueueItem(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// ListUpdatedBetween returns items with updated_at in [from, to).
func (r *PGRepo) ListUpdatedBetween(ctx context.Context, from, to time.Time) ([]QueueItem, error) {
	query := `SELECT ` + queueItemColumns + `
FROM queue_items
WHERE updated_at >= $1 AND updated_at < $2
ORDER BY id`

	rows, err := r.DB.QueryContext(ctx, query, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []QueueItem
	for rows.Next() {
		item, err := scanQueueItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// CountByStatus aggregates in one grouped query.
func (r *PGRepo) CountByStatus(ctx context.Context) (Counts, error) {
	const query = `
SELECT status, COUNT(*)
FROM queue_items
GROUP BY status`

	rows, err := r.DB.QueryContext(ctx, query)
	if err != nil {
		return Counts{}, err
	}
	defer rows.Close()

	var c Counts
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return Counts{}, err
		}
		c.Add(Status(status), n)
	}
	return c, rows.Err()
}

// CompareAndSwap updates the lifecycle columns guarded by the version column
// and appends the history row in the same transaction.
func (r *PGRepo) CompareAndSwap(ctx context.Context, item QueueItem, expectedVersion int64, entry HistoryEntry) error {
	const query = `
UPDATE queue_items
SET status = $2,
    model_version = $3,
    error_message = $4,
    processing_duration_seconds = $5,
    attempt = $6,
    started_at = $7,
    completed_at = $8,
    updated_at = $9,
    version = version + 1
WHERE document_id = $1 AND version = $10`

	return db.WithTx(ctx, r.DB, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, query,
			item.DocumentID,
			string(item.Status),
			item.ModelVersion,
			nullString(item.ErrorMessage),
			nullFloat(item.ProcessingDurationSeconds),
			item.Attempt,
			nullTime(item.StartedAt),
			nullTime(item.CompletedAt),
			item.UpdatedAt,
			expectedVersion,
		)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			var exists bool
			if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM queue_items WHERE document_id = $1)`, item.DocumentID).Scan(&exists); err != nil {
				return err
			}
			if !exists {
				return ErrNotFound
			}
			return ErrVersionConflict
		}
		return insertHistory(ctx, tx, entry)
	})
}

// UpdateMetadata overwrites metadata; last write wins.
func (r *PGRepo) UpdateMetadata(ctx context.Context, documentID string, md Metadata, updatedAt time.Time) error {
	const query = `
UPDATE queue_items
SET metadata = $2, updated_at = $3
WHERE document_id = $1`

	encoded, err := encodeMetadata(md)
	if err != nil {
		return err
	}
	res, err := r.DB.ExecContext(ctx, query, documentID, encoded, updatedAt)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// History returns entries oldest first.
func (r *PGRepo) History(ctx context.Context, documentID string) ([]HistoryEntry, error) {
	const query = `
SELECT id, queue_item_id, document_id, attempt, from_status, to_status, reason, model_version,
       error_message, duration_seconds, actor_id, created_at
FROM processing_history
WHERE document_id = $1
ORDER BY created_at, id`

	rows, err := r.DB.QueryContext(ctx, query, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []HistoryEntry{}
	for rows.Next() {
		var e HistoryEntry
		var from, to string
		var errMsg sql.NullString
		var dur sql.NullFloat64
		if err := rows.Scan(
			&e.ID,
			&e.QueueItemID,
			&e.DocumentID,
			&e.Attempt,
			&from,
			&to,
			&e.Reason,
			&e.ModelVersion,
			&errMsg,
			&dur,
			&e.ActorID,
			&e.CreatedAt,
		); err != nil {
			return nil, err
		}
		e.FromStatus = Status(from)
		e.ToStatus = Status(to)
		if errMsg.Valid {
			e.ErrorMessage = &errMsg.String
		}
		if dur.Valid {
			e.DurationSeconds = &dur.Float64
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		if _, err := r.GetByDocumentID(ctx, documentID); err != nil {
			return nil, err
		}
	}
	return entries, nil
}

func insertHistory(ctx context.Context, tx *sql.Tx, e HistoryEntry) error {
	const query = `
INSERT INTO processing_history (
    id,
    queue_item_id,
    document_id,
    attempt,
    from_status,
    to_status,
    reason,
    model_version,
    error_message,
    duration_seconds,
    actor_id,
    created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := tx.ExecContext(ctx, query,
		e.ID,
		e.QueueItemID,
		e.DocumentID,
		e.Attempt,
		string(e.FromStatus),
		string(e.ToStatus),
		e.Reason,
		e.ModelVersion,
		nullString(e.ErrorMessage),
		nullFloat(e.DurationSeconds),
		e.ActorID,
		e.CreatedAt,
	)
	return err
}

func buildListWhere(f ListFilter) (string, []any) {
	var clauses []string
	var args []any
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			statuses[i] = string(s)
		}
		clauses = append(clauses, "status = ANY("+next(pq.Array(statuses))+")")
	}
	if f.From != nil {
		clauses = append(clauses, "created_at >= "+next(*f.From))
	}
	if f.To != nil {
		clauses = append(clauses, "created_at < "+next(*f.To))
	}
	if f.Search != "" {
		p := next("%" + escapeLike(f.Search) + "%")
		clauses = append(clauses, "(file_name ILIKE "+p+" OR user_name ILIKE "+p+" OR user_id ILIKE "+p+")")
	}

	if len(clauses) == 0 {
		return "", args
	}
	return "\nWHERE " + strings.Join(clauses, " AND "), args
}

func orderClause(f ListFilter) string {
	col, ok := sortColumns[f.SortBy]
	if !ok {
		col = sortColumns[defaultSortBy]
	}
	dir := "ASC NULLS FIRST"
	idDir := "ASC"
	if f.SortDesc {
		dir = "DESC NULLS LAST"
		idDir = "DESC"
	}
	return fmt.Sprintf("\nORDER BY %s %s, id %s", col, dir, idDir)
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanQueueItem(row rowScanner) (QueueItem, error) {
	var item QueueItem
	var status string
	var errMsg sql.NullString
	var dur sql.NullFloat64
	var md []byte
	var startedAt, completedAt sql.NullTime
	if err := row.Scan(
		&item.ID,
		&item.DocumentID,
		&item.FileName,
		&item.FileSizeBytes,
		&item.UserID,
		&item.UserName,
		&status,
		&item.ModelVersion,
		&errMsg,
		&dur,
		&md,
		&item.Attempt,
		&item.Version,
		&startedAt,
		&completedAt,
		&item.CreatedAt,
		&item.UpdatedAt,
	); err != nil {
		return QueueItem{}, err
	}
	item.Status = Status(status)
	if errMsg.Valid {
		item.ErrorMessage = &errMsg.String
	}
	if dur.Valid {
		item.ProcessingDurationSeconds = &dur.Float64
	}
	if startedAt.Valid {
		item.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		item.CompletedAt = &completedAt.Time
	}
	if len(md) > 0 {
		if err := json.Unmarshal(md, &item.Metadata); err != nil {
			return QueueItem{}, fmt.Errorf("decode metadata for %s: %w", item.DocumentID, err)
		}
	}
	return item, nil
}

func encodeMetadata(md Metadata) (string, error) {
	if len(md) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(md)
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}
	return string(b), nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

var _ Repo = (*PGRepo)(nil)
