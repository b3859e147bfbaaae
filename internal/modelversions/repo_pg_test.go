package modelversions

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var columns = []string{"id", "version_name", "deployed_at", "accuracy", "precision", "recall", "f1", "is_active", "created_at"}

func newMock(t *testing.T) (*PGRepo, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return &PGRepo{DB: conn}, mock
}

func TestPGActivateSingleTransaction(t *testing.T) {
	repo, mock := newMock(t)
	now := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec("SET LOCAL lock_timeout").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("LOCK TABLE model_versions").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`UPDATE model_versions SET is_active = FALSE WHERE is_active AND id <> \$1`).
		WithArgs("id-3").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`UPDATE model_versions SET is_active = TRUE WHERE id = \$1 RETURNING`).
		WithArgs("id-3").
		WillReturnRows(sqlmock.NewRows(columns).AddRow("id-3", "v3", now, 0.9, 0.8, 0.7, 0.75, true, now))
	mock.ExpectCommit()

	mv, err := repo.Activate(context.Background(), "id-3")
	require.NoError(t, err)
	assert.Equal(t, "v3", mv.VersionName)
	assert.True(t, mv.IsActive)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPGActivateUnknownRollsBack(t *testing.T) {
	repo, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec("SET LOCAL lock_timeout").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("LOCK TABLE model_versions").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("UPDATE model_versions SET is_active = FALSE").WithArgs("missing").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("UPDATE model_versions SET is_active = TRUE").WithArgs("missing").WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err := repo.Activate(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPGActivateUniqueViolationIsConflict(t *testing.T) {
	repo, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec("SET LOCAL lock_timeout").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("LOCK TABLE model_versions").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("UPDATE model_versions SET is_active = FALSE").WithArgs("id-4").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("UPDATE model_versions SET is_active = TRUE").WithArgs("id-4").WillReturnError(&pgconn.PgError{Code: "23505"})
	mock.ExpectRollback()

	_, err := repo.Activate(context.Background(), "id-4")
	assert.ErrorIs(t, err, ErrConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPGActivateLockTimeoutIsConflict(t *testing.T) {
	repo, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec("SET LOCAL lock_timeout").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("LOCK TABLE model_versions").WillReturnError(&pgconn.PgError{Code: "55P03"})
	mock.ExpectRollback()

	_, err := repo.Activate(context.Background(), "id-5")
	assert.ErrorIs(t, err, ErrConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPGCreateDuplicate(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectExec("INSERT INTO model_versions").WillReturnError(&pgconn.PgError{Code: "23505"})

	err := repo.Create(context.Background(), ModelVersion{ID: "id-1", VersionName: "v1"})
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestPGListOrdersByDeployedAt(t *testing.T) {
	repo, mock := newMock(t)
	t1 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := t1.Add(48 * time.Hour)

	mock.ExpectQuery(`ORDER BY deployed_at ASC, id ASC`).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("id-2", "v2", t1, 0.8, 0.8, 0.8, 0.8, false, t1).
			AddRow("id-3", "v3", t2, 0.9, 0.9, 0.9, 0.9, true, t2))

	versions, err := repo.List(context.Background())
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, "v2", versions[0].VersionName)
	assert.True(t, versions[1].IsActive)
}

func TestPGGetActiveNone(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectQuery("WHERE is_active").WillReturnRows(sqlmock.NewRows(columns))

	_, err := repo.GetActive(context.Background())
	assert.ErrorIs(t, err, ErrNoActive)
}
