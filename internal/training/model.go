// Package training stores labeled examples and exports the verified ones as
// retraining datasets.
package training

import (
	"errors"
	"strings"
	"time"

	"statements-backend/internal/shared/apperr"
)

var (
	ErrNotFound  = errors.New("training example not found")
	ErrDuplicate = errors.New("training example already exists for feedback")
)

// Example is one labeled input/output pair.
type Example struct {
	ID               string    `json:"id"`
	InputData        string    `json:"inputData"`
	ExpectedOutput   string    `json:"expectedOutput"`
	Category         string    `json:"category"`
	CreatedBy        string    `json:"createdBy"`
	IsVerified       bool      `json:"isVerified"`
	LinkedFeedbackID *string   `json:"linkedFeedbackId,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// NewExample is the input to Create.
type NewExample struct {
	InputData      string `json:"inputData"`
	ExpectedOutput string `json:"expectedOutput"`
	Category       string `json:"category"`
}

const (
	maxInputBytes    = 1 << 20
	maxCategoryChars = 64
)

func (n *NewExample) normalize() error {
	n.Category = strings.TrimSpace(n.Category)
	if strings.TrimSpace(n.InputData) == "" {
		return apperr.Validation("inputData", "is required")
	}
	if len(n.InputData) > maxInputBytes || len(n.ExpectedOutput) > maxInputBytes {
		return apperr.Validation("inputData", "must be at most 1 MiB")
	}
	if n.Category == "" {
		n.Category = "general"
	}
	if len(n.Category) > maxCategoryChars {
		return apperr.Validation("category", "must be at most 64 characters")
	}
	return nil
}

// ListFilter narrows List. A nil Verified matches both states.
type ListFilter struct {
	Verified *bool
	Limit    int
	Offset   int
}
