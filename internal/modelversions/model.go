// Package modelversions is the registry of deployed extraction model versions
// and their recorded scores. At most one version is active at a time.
package modelversions

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"statements-backend/internal/shared/apperr"
)

var (
	ErrNotFound  = errors.New("model version not found")
	ErrDuplicate = errors.New("model version already registered")
	ErrNoActive  = errors.New("no active model version")
	ErrConflict  = errors.New("concurrent activation")
)

// Scores are evaluation metrics in [0, 1].
type Scores struct {
	Accuracy  float64 `json:"accuracy"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
}

// Validate checks every score lies in [0, 1]. prefix names the fields in errors.
func (s Scores) Validate(prefix string) error {
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"accuracy", s.Accuracy},
		{"precision", s.Precision},
		{"recall", s.Recall},
		{"f1", s.F1},
	} {
		if math.IsNaN(f.v) || f.v < 0 || f.v > 1 {
			return apperr.Validation(prefix+f.name, "must be between 0 and 1")
		}
	}
	return nil
}

// ModelVersion is one registered deployment.
type ModelVersion struct {
	ID          string    `json:"id"`
	VersionName string    `json:"versionName"`
	DeployedAt  time.Time `json:"deployedAt"`
	Scores
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewModelVersion is the input to Register.
type NewModelVersion struct {
	VersionName string     `json:"versionName"`
	DeployedAt  *time.Time `json:"deployedAt"`
	Scores
}

const maxVersionNameLen = 64

func validateVersionName(name string) error {
	if name == "" {
		return apperr.Validation("versionName", "is required")
	}
	if len(name) > maxVersionNameLen {
		return apperr.Validation("versionName", fmt.Sprintf("must be at most %d characters", maxVersionNameLen))
	}
	if strings.ContainsAny(name, " \t\r\n/") {
		return apperr.Validation("versionName", "must not contain whitespace or slashes")
	}
	return nil
}
