package modelversions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"statements-backend/internal/shared/storage/db"
)

// PGRepo stores model versions in Postgres.
type PGRepo struct {
	DB *sql.DB
}

const selectColumns = `id, version_name, deployed_at, accuracy, precision, recall, f1, is_active, created_at`

func (r *PGRepo) Create(ctx context.Context, mv ModelVersion) error {
	const query = `
INSERT INTO model_versions (id, version_name, deployed_at, accuracy, precision, recall, f1, is_active, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := r.DB.ExecContext(ctx, query,
		mv.ID, mv.VersionName, mv.DeployedAt,
		mv.Accuracy, mv.Precision, mv.Recall, mv.F1,
		mv.IsActive, mv.CreatedAt,
	)
	if db.IsUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (r *PGRepo) Get(ctx context.Context, id string) (ModelVersion, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM model_versions WHERE id = $1`, id)
	return scanOne(row, ErrNotFound)
}

func (r *PGRepo) GetByName(ctx context.Context, name string) (ModelVersion, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM model_versions WHERE version_name = $1`, name)
	return scanOne(row, ErrNotFound)
}

func (r *PGRepo) GetActive(ctx context.Context) (ModelVersion, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM model_versions WHERE is_active`)
	return scanOne(row, ErrNoActive)
}

func (r *PGRepo) List(ctx context.Context) ([]ModelVersion, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+selectColumns+` FROM model_versions ORDER BY deployed_at ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ModelVersion
	for rows.Next() {
		mv, err := scanModelVersion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, mv)
	}
	return out, rows.Err()
}

// Activate runs under a table lock so concurrent activations serialize; the
// partial unique index on is_active backs the single-active rule.
func (r *PGRepo) Activate(ctx context.Context, id string) (ModelVersion, error) {
	var activated ModelVersion
	err := db.WithTx(ctx, r.DB, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `SET LOCAL lock_timeout = '5s'`); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `LOCK TABLE model_versions IN SHARE ROW EXCLUSIVE MODE`); err != nil {
			return fmt.Errorf("lock model_versions: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE model_versions SET is_active = FALSE WHERE is_active AND id <> $1`, id); err != nil {
			return err
		}
		row := tx.QueryRowContext(ctx, `UPDATE model_versions SET is_active = TRUE WHERE id = $1 RETURNING `+selectColumns, id)
		mv, err := scanOne(row, ErrNotFound)
		if err != nil {
			return err
		}
		activated = mv
		return nil
	})
	if db.IsUniqueViolation(err) || db.IsLockNotAvailable(err) {
		return ModelVersion{}, ErrConflict
	}
	if err != nil {
		return ModelVersion{}, err
	}
	return activated, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOne(row scanner, missing error) (ModelVersion, error) {
	mv, err := scanModelVersion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ModelVersion{}, missing
	}
	return mv, err
}

func scanModelVersion(row scanner) (ModelVersion, error) {
	var mv ModelVersion
	err := row.Scan(
		&mv.ID, &mv.VersionName, &mv.DeployedAt,
		&mv.Accuracy, &mv.Precision, &mv.Recall, &mv.F1,
		&mv.IsActive, &mv.CreatedAt,
	)
	if err != nil {
		return ModelVersion{}, err
	}
	mv.DeployedAt = mv.DeployedAt.UTC()
	mv.CreatedAt = mv.CreatedAt.UTC()
	return mv, nil
}

var _ Repo = (*PGRepo)(nil)
