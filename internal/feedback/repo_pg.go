package feedback

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// PGRepo stores feedback and improvements in Postgres.
type PGRepo struct {
	DB *sql.DB
}

const feedbackColumns = `id, category, subject_reference, comment, correction, submitted_by, reviewed, reviewed_by, reviewed_at, added_to_training, training_example_id, created_at`

func (r *PGRepo) CreateFeedback(ctx context.Context, f Feedback) error {
	const query = `
INSERT INTO feedback (id, category, subject_reference, comment, correction, submitted_by, reviewed, added_to_training, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := r.DB.ExecContext(ctx, query,
		f.ID, string(f.Category), f.SubjectReference, f.Comment, f.Correction, f.SubmittedBy,
		f.Reviewed, f.AddedToTraining, f.CreatedAt,
	)
	return err
}

func (r *PGRepo) GetFeedback(ctx context.Context, id string) (Feedback, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+feedbackColumns+` FROM feedback WHERE id = $1`, id)
	return scanOneFeedback(row)
}

func (r *PGRepo) MarkReviewed(ctx context.Context, id string, u ReviewUpdate) (Feedback, error) {
	const query = `
UPDATE feedback
SET reviewed = TRUE,
    reviewed_by = $2,
    reviewed_at = $3,
    added_to_training = added_to_training OR $4::text IS NOT NULL,
    training_example_id = COALESCE($4, training_example_id)
WHERE id = $1
RETURNING ` + feedbackColumns
	var exID sql.NullString
	if u.TrainingExampleID != nil {
		exID = sql.NullString{String: *u.TrainingExampleID, Valid: true}
	}
	row := r.DB.QueryRowContext(ctx, query, id, u.ReviewedBy, u.ReviewedAt, exID)
	return scanOneFeedback(row)
}

func (r *PGRepo) ListFeedback(ctx context.Context, reviewed *bool, limit, offset int) ([]Feedback, int, error) {
	var filter sql.NullBool
	if reviewed != nil {
		filter = sql.NullBool{Bool: *reviewed, Valid: true}
	}

	var total int
	if err := r.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM feedback WHERE ($1::boolean IS NULL OR reviewed = $1)`, filter,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.DB.QueryContext(ctx, `SELECT `+feedbackColumns+` FROM feedback
WHERE ($1::boolean IS NULL OR reviewed = $1)
ORDER BY created_at DESC, id DESC
LIMIT $2 OFFSET $3`, filter, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := []Feedback{}
	for rows.Next() {
		f, err := scanFeedback(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, f)
	}
	return out, total, rows.Err()
}

func (r *PGRepo) CountByDay(ctx context.Context, from, to time.Time) ([]DayCount, error) {
	const query = `
SELECT date_trunc('day', created_at AT TIME ZONE 'UTC') AS day, category, COUNT(*)
FROM feedback
WHERE created_at >= $1 AND created_at < $2
GROUP BY day, category
ORDER BY day ASC, category ASC`
	rows, err := r.DB.QueryContext(ctx, query, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DayCount
	for rows.Next() {
		var (
			dc       DayCount
			category string
		)
		if err := rows.Scan(&dc.Day, &category, &dc.Count); err != nil {
			return nil, err
		}
		d := dc.Day
		dc.Day = time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
		dc.Category = Category(category)
		out = append(out, dc)
	}
	return out, rows.Err()
}

func (r *PGRepo) CreateImprovement(ctx context.Context, imp Improvement) error {
	const query = `
INSERT INTO model_improvements (
    id, model_version, previous_version, training_example_count,
    accuracy_before, accuracy_after, precision_before, precision_after,
    recall_before, recall_after, f1_before, f1_after,
    training_date, created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
	_, err := r.DB.ExecContext(ctx, query,
		imp.ID, imp.ModelVersion, imp.PreviousVersion, imp.TrainingExampleCount,
		imp.Before.Accuracy, imp.After.Accuracy,
		imp.Before.Precision, imp.After.Precision,
		imp.Before.Recall, imp.After.Recall,
		imp.Before.F1, imp.After.F1,
		imp.TrainingDate, imp.CreatedAt,
	)
	return err
}

func (r *PGRepo) ListImprovements(ctx context.Context, modelVersion string) ([]Improvement, error) {
	const query = `
SELECT id, model_version, previous_version, training_example_count,
       accuracy_before, accuracy_after, precision_before, precision_after,
       recall_before, recall_after, f1_before, f1_after,
       training_date, created_at
FROM model_improvements
WHERE ($1 = '' OR model_version = $1)
ORDER BY training_date ASC, created_at ASC`
	rows, err := r.DB.QueryContext(ctx, query, modelVersion)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Improvement{}
	for rows.Next() {
		var imp Improvement
		if err := rows.Scan(
			&imp.ID, &imp.ModelVersion, &imp.PreviousVersion, &imp.TrainingExampleCount,
			&imp.Before.Accuracy, &imp.After.Accuracy,
			&imp.Before.Precision, &imp.After.Precision,
			&imp.Before.Recall, &imp.After.Recall,
			&imp.Before.F1, &imp.After.F1,
			&imp.TrainingDate, &imp.CreatedAt,
		); err != nil {
			return nil, err
		}
		imp.TrainingDate = imp.TrainingDate.UTC()
		imp.CreatedAt = imp.CreatedAt.UTC()
		out = append(out, imp)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOneFeedback(row scanner) (Feedback, error) {
	f, err := scanFeedback(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Feedback{}, ErrNotFound
	}
	return f, err
}

func scanFeedback(row scanner) (Feedback, error) {
	var (
		f          Feedback
		category   string
		reviewedBy sql.NullString
		reviewedAt sql.NullTime
		exampleID  sql.NullString
	)
	if err := row.Scan(
		&f.ID, &category, &f.SubjectReference, &f.Comment, &f.Correction, &f.SubmittedBy,
		&f.Reviewed, &reviewedBy, &reviewedAt, &f.AddedToTraining, &exampleID, &f.CreatedAt,
	); err != nil {
		return Feedback{}, err
	}
	f.Category = Category(category)
	if reviewedBy.Valid {
		f.ReviewedBy = &reviewedBy.String
	}
	if reviewedAt.Valid {
		t := reviewedAt.Time.UTC()
		f.ReviewedAt = &t
	}
	if exampleID.Valid {
		f.TrainingExampleID = &exampleID.String
	}
	f.CreatedAt = f.CreatedAt.UTC()
	return f, nil
}

var _ Repo = (*PGRepo)(nil)
