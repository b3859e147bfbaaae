// Package audit records every mutating call made against the queue, model
// registry and feedback services, including failed attempts.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"statements-backend/internal/shared/apperr"
	"statements-backend/internal/shared/telemetry"
)

const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Event is one audited mutation.
type Event struct {
	ActorID    string         `json:"actorId"`
	Action     string         `json:"action"`
	EntityType string         `json:"entityType"`
	EntityID   string         `json:"entityId"`
	Payload    map[string]any `json:"payload,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
	Outcome    string         `json:"outcome"`
	Error      string         `json:"error,omitempty"`
	ErrorCode  string         `json:"errorCode,omitempty"`
}

// Recorder persists audit events.
type Recorder interface {
	Record(ctx context.Context, event Event) error
}

// NewEvent builds an event whose outcome follows err.
func NewEvent(actorID, action, entityType, entityID string, payload map[string]any, err error) Event {
	ev := Event{
		ActorID:    actorID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Payload:    payload,
		Timestamp:  time.Now().UTC(),
		Outcome:    OutcomeSuccess,
	}
	if err != nil {
		ev.Outcome = OutcomeFailure
		ev.Error = err.Error()
		ev.ErrorCode = apperr.Code(err)
	}
	return ev
}

// Emit records the event and logs recorder failures instead of returning them;
// an audit outage must not change the outcome of the audited call.
func Emit(ctx context.Context, r Recorder, ev Event) {
	if r == nil {
		return
	}
	if err := r.Record(ctx, ev); err != nil {
		telemetry.Error("audit.record_failed", map[string]any{
			"action":      ev.Action,
			"entity_type": ev.EntityType,
			"entity_id":   ev.EntityID,
			"error":       err,
		})
	}
}

// LogRecorder writes events to the structured log.
type LogRecorder struct{}

// Record implements Recorder.
func (LogRecorder) Record(ctx context.Context, ev Event) error {
	fields := map[string]any{
		"actor_id":    ev.ActorID,
		"action":      ev.Action,
		"entity_type": ev.EntityType,
		"entity_id":   ev.EntityID,
		"outcome":     ev.Outcome,
		"occurred_at": ev.Timestamp.Format(time.RFC3339Nano),
	}
	if len(ev.Payload) > 0 {
		fields["payload"] = ev.Payload
	}
	if ev.Error != "" {
		fields["error"] = ev.Error
		fields["error_code"] = ev.ErrorCode
	}
	telemetry.Info("audit", fields)
	return nil
}

// Multi fans an event out to several recorders and returns the first error.
type Multi []Recorder

// Record implements Recorder.
func (m Multi) Record(ctx context.Context, ev Event) error {
	var first error
	for _, r := range m {
		if r == nil {
			continue
		}
		if err := r.Record(ctx, ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func marshalPayload(payload map[string]any) ([]byte, error) {
	if len(payload) == 0 {
		return nil, nil
	}
	return json.Marshal(payload)
}
