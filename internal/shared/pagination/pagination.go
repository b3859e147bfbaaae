// Package pagination clamps limit/offset pairs shared by list endpoints.
package pagination

import (
	"strconv"
	"strings"

	"statements-backend/internal/shared/apperr"
)

const (
	DefaultLimit = 50
	MaxLimit     = 200
)

// Page is a validated limit/offset window.
type Page struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// Result is one page of items plus the unpaged total.
type Result[T any] struct {
	Items  []T `json:"items"`
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// New validates limit and offset. A zero limit selects DefaultLimit and
// anything above MaxLimit is clamped.
func New(limit, offset int) (Page, error) {
	if limit < 0 {
		return Page{}, apperr.Validation("limit", "must not be negative")
	}
	if offset < 0 {
		return Page{}, apperr.Validation("offset", "must not be negative")
	}
	if limit == 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return Page{Limit: limit, Offset: offset}, nil
}

// Parse builds a Page from raw query values.
func Parse(limitRaw, offsetRaw string) (Page, error) {
	limit, err := parseInt("limit", limitRaw)
	if err != nil {
		return Page{}, err
	}
	offset, err := parseInt("offset", offsetRaw)
	if err != nil {
		return Page{}, err
	}
	return New(limit, offset)
}

// Slice applies the page to an in-memory slice.
func Slice[T any](items []T, p Page) []T {
	if p.Offset >= len(items) {
		return []T{}
	}
	end := p.Offset + p.Limit
	if end > len(items) {
		end = len(items)
	}
	return items[p.Offset:end]
}

func parseInt(field, raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperr.Validation(field, "must be an integer")
	}
	return n, nil
}
