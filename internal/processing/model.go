package processing

import (
	"errors"
	"strings"
	"time"

	"statements-backend/internal/shared/apperr"
)

var (
	ErrNotFound        = errors.New("queue item not found")
	ErrDuplicate       = errors.New("queue item already exists")
	ErrVersionConflict = errors.New("queue item version conflict")
)

// Status is a queue item's position in the processing lifecycle.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{StatusPending, StatusProcessing, StatusCompleted, StatusFailed}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether s ends an attempt.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ParseStatus converts raw input into a Status.
func ParseStatus(raw string) (Status, error) {
	s := NormalizeStatus(raw)
	if !s.Valid() {
		return "", apperr.Validation("status", "unknown status "+raw)
	}
	return s, nil
}

// NormalizeStatus lower-cases and trims raw without checking it.
func NormalizeStatus(raw string) Status {
	return Status(strings.ToLower(strings.TrimSpace(raw)))
}

// History reasons.
const (
	ReasonEnqueued           = "enqueued"
	ReasonReprocessRequested = "reprocess_requested"
	ReasonProcessingStarted  = "processing_started"
	ReasonCompleted          = "completed"
	ReasonFailed             = "failed"
)

// QueueItem is one document's current processing-attempt record.
type QueueItem struct {
	ID                        string     `json:"id"`
	DocumentID                string     `json:"documentId"`
	FileName                  string     `json:"fileName"`
	FileSizeBytes             int64      `json:"fileSizeBytes"`
	UserID                    string     `json:"userId"`
	UserName                  string     `json:"userName"`
	Status                    Status     `json:"status"`
	ModelVersion              string     `json:"modelVersion"`
	ErrorMessage              *string    `json:"errorMessage,omitempty"`
	ProcessingDurationSeconds *float64   `json:"processingDurationSeconds,omitempty"`
	Metadata                  Metadata   `json:"metadata"`
	Attempt                   int        `json:"attempt"`
	Version                   int64      `json:"version"`
	StartedAt                 *time.Time `json:"startedAt,omitempty"`
	CompletedAt               *time.Time `json:"completedAt,omitempty"`
	CreatedAt                 time.Time  `json:"createdAt"`
	UpdatedAt                 time.Time  `json:"updatedAt"`
}

// Clone returns a deep copy so callers cannot mutate stored state.
func (q QueueItem) Clone() QueueItem {
	out := q
	if q.ErrorMessage != nil {
		v := *q.ErrorMessage
		out.ErrorMessage = &v
	}
	if q.ProcessingDurationSeconds != nil {
		v := *q.ProcessingDurationSeconds
		out.ProcessingDurationSeconds = &v
	}
	if q.StartedAt != nil {
		v := *q.StartedAt
		out.StartedAt = &v
	}
	if q.CompletedAt != nil {
		v := *q.CompletedAt
		out.CompletedAt = &v
	}
	out.Metadata = q.Metadata.Clone()
	return out
}

// HistoryEntry is an append-only record of one state transition.
type HistoryEntry struct {
	ID              string    `json:"id"`
	QueueItemID     string    `json:"queueItemId"`
	DocumentID      string    `json:"documentId"`
	Attempt         int       `json:"attempt"`
	FromStatus      Status    `json:"fromStatus,omitempty"`
	ToStatus        Status    `json:"toStatus"`
	Reason          string    `json:"reason"`
	ModelVersion    string    `json:"modelVersion,omitempty"`
	ErrorMessage    *string   `json:"errorMessage,omitempty"`
	DurationSeconds *float64  `json:"durationSeconds,omitempty"`
	ActorID         string    `json:"actorId,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}

// NewDocument is the input to Enqueue.
type NewDocument struct {
	DocumentID    string   `json:"documentId"`
	FileName      string   `json:"fileName"`
	FileSizeBytes int64    `json:"fileSizeBytes"`
	UserID        string   `json:"userId"`
	UserName      string   `json:"userName"`
	ModelVersion  string   `json:"modelVersion"`
	Metadata      Metadata `json:"metadata,omitempty"`
}

// Counts is the per-status aggregation. Total always equals the sum of the
// four status counts.
type Counts struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Total      int `json:"total"`
}

// Add increments the count for s and the total.
func (c *Counts) Add(s Status, n int) {
	switch s {
	case StatusPending:
		c.Pending += n
	case StatusProcessing:
		c.Processing += n
	case StatusCompleted:
		c.Completed += n
	case StatusFailed:
		c.Failed += n
	default:
		return
	}
	c.Total += n
}

// WorkerResult is the extraction worker's write-back for one attempt.
type WorkerResult struct {
	DocumentID      string
	Attempt         int
	Status          Status
	ModelVersion    string
	DurationSeconds *float64
	ErrorMessage    string
	PayloadBytes    int
}

const maxDocumentIDLen = 128

// ValidateDocumentID rejects empty, oversized, or whitespace-bearing ids.
func ValidateDocumentID(id string) error {
	if id == "" {
		return apperr.Validation("documentId", "is required")
	}
	if len(id) > maxDocumentIDLen {
		return apperr.Validation("documentId", "is too long")
	}
	for _, r := range id {
		if r <= ' ' || r == 0x7f {
			return apperr.Validation("documentId", "contains whitespace or control characters")
		}
	}
	return nil
}

func stringPtr(s string) *string {
	return &s
}
