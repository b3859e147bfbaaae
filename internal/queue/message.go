package queue

import (
	"encoding/json"
	"time"
)

// Message is the "reprocess requested" signal consumed by the extraction worker.
type Message struct {
	DocumentID  string `json:"documentId"`
	QueueItemID string `json:"queueItemId"`
	Attempt     int    `json:"attempt"`
	ActorID     string `json:"actorId,omitempty"`
	RequestID   string `json:"requestId,omitempty"`
	EnqueuedAt  string `json:"enqueuedAt"`
	Version     int    `json:"version"`
}

// MessageVersion is the current signal schema version.
const MessageVersion = 1

// NewMessage stamps a signal for documentID with the current schema version.
func NewMessage(documentID, queueItemID string, attempt int, actorID, requestID string, at time.Time) Message {
	return Message{
		DocumentID:  documentID,
		QueueItemID: queueItemID,
		Attempt:     attempt,
		ActorID:     actorID,
		RequestID:   requestID,
		EnqueuedAt:  at.UTC().Format(time.RFC3339),
		Version:     MessageVersion,
	}
}

// EncodeMessage returns the JSON representation of a message.
func EncodeMessage(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}

// DecodeMessage parses a JSON payload into a Message.
func DecodeMessage(payload []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Message{}, err
	}
	return msg, nil
}

// Result is the write-back the extraction worker publishes when an attempt ends.
type Result struct {
	DocumentID             string          `json:"documentId"`
	Attempt                int             `json:"attempt,omitempty"`
	Status                 string          `json:"status"`
	ModelVersion           string          `json:"modelVersion,omitempty"`
	DurationSeconds        *float64        `json:"durationSeconds,omitempty"`
	ErrorMessage           string          `json:"errorMessage,omitempty"`
	ExtractedResultPayload json.RawMessage `json:"extractedResultPayload,omitempty"`
	RequestID              string          `json:"requestId,omitempty"`
}

// DecodeResult parses a worker result payload.
func DecodeResult(payload []byte) (Result, error) {
	var res Result
	if err := json.Unmarshal(payload, &res); err != nil {
		return Result{}, err
	}
	return res, nil
}
