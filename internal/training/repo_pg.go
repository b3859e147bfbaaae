package training

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"statements-backend/internal/shared/storage/db"
)

// PGRepo stores training examples in Postgres.
type PGRepo struct {
	DB *sql.DB
}

const selectColumns = `id, input_data, expected_output, category, created_by, is_verified, linked_feedback_id, created_at, updated_at`

func (r *PGRepo) Create(ctx context.Context, ex Example) error {
	const query = `
INSERT INTO training_examples (id, input_data, expected_output, category, created_by, is_verified, linked_feedback_id, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	var linked sql.NullString
	if ex.LinkedFeedbackID != nil {
		linked = sql.NullString{String: *ex.LinkedFeedbackID, Valid: true}
	}
	_, err := r.DB.ExecContext(ctx, query,
		ex.ID, ex.InputData, ex.ExpectedOutput, ex.Category, ex.CreatedBy,
		ex.IsVerified, linked, ex.CreatedAt, ex.UpdatedAt,
	)
	if db.IsUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (r *PGRepo) Get(ctx context.Context, id string) (Example, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM training_examples WHERE id = $1`, id)
	return scanOne(row)
}

func (r *PGRepo) GetByFeedbackID(ctx context.Context, feedbackID string) (Example, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM training_examples WHERE linked_feedback_id = $1`, feedbackID)
	return scanOne(row)
}

func (r *PGRepo) SetVerified(ctx context.Context, id string, verified bool, updatedAt time.Time) (Example, error) {
	row := r.DB.QueryRowContext(ctx,
		`UPDATE training_examples SET is_verified = $2, updated_at = $3 WHERE id = $1 RETURNING `+selectColumns,
		id, verified, updatedAt)
	return scanOne(row)
}

func (r *PGRepo) Delete(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM training_examples WHERE id = $1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PGRepo) List(ctx context.Context, f ListFilter) ([]Example, int, error) {
	var where []string
	var args []any
	if f.Verified != nil {
		args = append(args, *f.Verified)
		where = append(where, fmt.Sprintf("is_verified = $%d", len(args)))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM training_examples`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + selectColumns + ` FROM training_examples` + clause + ` ORDER BY created_at ASC, id ASC`
	if f.Limit > 0 {
		args = append(args, f.Limit, f.Offset)
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}
	out, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *PGRepo) ListVerified(ctx context.Context) ([]Example, error) {
	return r.query(ctx, `SELECT `+selectColumns+` FROM training_examples WHERE is_verified ORDER BY created_at ASC, id ASC`)
}

func (r *PGRepo) query(ctx context.Context, query string, args ...any) ([]Example, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Example{}
	for rows.Next() {
		ex, err := scanExample(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ex)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOne(row scanner) (Example, error) {
	ex, err := scanExample(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Example{}, ErrNotFound
	}
	return ex, err
}

func scanExample(row scanner) (Example, error) {
	var (
		ex     Example
		linked sql.NullString
	)
	if err := row.Scan(
		&ex.ID, &ex.InputData, &ex.ExpectedOutput, &ex.Category, &ex.CreatedBy,
		&ex.IsVerified, &linked, &ex.CreatedAt, &ex.UpdatedAt,
	); err != nil {
		return Example{}, err
	}
	if linked.Valid {
		ex.LinkedFeedbackID = &linked.String
	}
	ex.CreatedAt = ex.CreatedAt.UTC()
	ex.UpdatedAt = ex.UpdatedAt.UTC()
	return ex, nil
}

var _ Repo = (*PGRepo)(nil)
