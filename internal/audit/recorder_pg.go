package audit

import (
	"context"
	"database/sql"
)

// PGRecorder appends events to the audit_events table.
type PGRecorder struct {
	DB *sql.DB
}

// Record implements Recorder.
func (r *PGRecorder) Record(ctx context.Context, ev Event) error {
	const query = `
INSERT INTO audit_events (actor_id, action, entity_type, entity_id, payload, outcome, error, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	payload, err := marshalPayload(ev.Payload)
	if err != nil {
		return err
	}
	var payloadArg any
	if payload != nil {
		payloadArg = string(payload)
	}
	var errArg sql.NullString
	if ev.Error != "" {
		errArg = sql.NullString{String: ev.Error, Valid: true}
	}

	_, err = r.DB.ExecContext(ctx, query,
		ev.ActorID,
		ev.Action,
		ev.EntityType,
		ev.EntityID,
		payloadArg,
		ev.Outcome,
		errArg,
		ev.Timestamp,
	)
	return err
}

var _ Recorder = (*PGRecorder)(nil)
