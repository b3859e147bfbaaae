package processing

import (
	"net/url"
	"sort"
	"strings"
	"time"

	"statements-backend/internal/shared/apperr"
	"statements-backend/internal/shared/pagination"
)

// sortColumns whitelists sortable fields and their SQL columns.
var sortColumns = map[string]string{
	"createdAt":                 "created_at",
	"updatedAt":                 "updated_at",
	"fileName":                  "file_name",
	"fileSizeBytes":             "file_size_bytes",
	"status":                    "status",
	"userName":                  "user_name",
	"processingDurationSeconds": "processing_duration_seconds",
}

const (
	defaultSortBy = "createdAt"
	maxSearchLen  = 200
)

// ListFilter selects and orders queue items. From is inclusive, To exclusive,
// both applied to CreatedAt.
type ListFilter struct {
	Statuses []Status
	From     *time.Time
	To       *time.Time
	Search   string
	SortBy   string
	SortDesc bool
	Page     pagination.Page
}

// Normalize fills defaults and rejects malformed filters.
func (f *ListFilter) Normalize() error {
	seen := make(map[Status]struct{}, len(f.Statuses))
	statuses := f.Statuses[:0:0]
	for _, s := range f.Statuses {
		if !s.Valid() {
			return apperr.Validation("status", "unknown status "+string(s))
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		statuses = append(statuses, s)
	}
	f.Statuses = statuses

	if f.From != nil && f.To != nil && !f.From.Before(*f.To) {
		return apperr.Validation("from", "must be before to")
	}

	f.Search = strings.TrimSpace(f.Search)
	if len(f.Search) > maxSearchLen {
		return apperr.Validation("q", "search text too long")
	}

	if f.SortBy == "" {
		f.SortBy = defaultSortBy
		f.SortDesc = true
	}
	if _, ok := sortColumns[f.SortBy]; !ok {
		return apperr.Validation("sortBy", "unsupported sort field "+f.SortBy)
	}

	page, err := pagination.New(f.Page.Limit, f.Page.Offset)
	if err != nil {
		return err
	}
	f.Page = page
	return nil
}

// Matches reports whether item passes the status, date and search predicates.
func (f ListFilter) Matches(item QueueItem) bool {
	if len(f.Statuses) > 0 {
		found := false
		for _, s := range f.Statuses {
			if item.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.From != nil && item.CreatedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && !item.CreatedAt.Before(*f.To) {
		return false
	}
	if f.Search != "" {
		needle := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(item.FileName), needle) &&
			!strings.Contains(strings.ToLower(item.UserName), needle) &&
			!strings.Contains(strings.ToLower(item.UserID), needle) {
			return false
		}
	}
	return true
}

// SortItems orders items by the filter's sort field with id as tie-break.
func (f ListFilter) SortItems(items []QueueItem) {
	less := func(a, b QueueItem) int {
		switch f.SortBy {
		case "updatedAt":
			return a.UpdatedAt.Compare(b.UpdatedAt)
		case "fileName":
			return strings.Compare(a.FileName, b.FileName)
		case "fileSizeBytes":
			return cmpInt64(a.FileSizeBytes, b.FileSizeBytes)
		case "status":
			return strings.Compare(string(a.Status), string(b.Status))
		case "userName":
			return strings.Compare(a.UserName, b.UserName)
		case "processingDurationSeconds":
			return cmpDuration(a.ProcessingDurationSeconds, b.ProcessingDurationSeconds)
		default:
			return a.CreatedAt.Compare(b.CreatedAt)
		}
	}
	sort.SliceStable(items, func(i, j int) bool {
		c := less(items[i], items[j])
		if c == 0 {
			c = strings.Compare(items[i].ID, items[j].ID)
		}
		if f.SortDesc {
			return c > 0
		}
		return c < 0
	})
}

// ParseListFilter reads status, from, to, q, sortBy, order, limit and offset.
// Dates accept RFC3339 or YYYY-MM-DD; a date-only "to" includes that whole day.
func ParseListFilter(q url.Values) (ListFilter, error) {
	var f ListFilter
	for _, raw := range q["status"] {
		for _, part := range strings.Split(raw, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			s, err := ParseStatus(part)
			if err != nil {
				return ListFilter{}, err
			}
			f.Statuses = append(f.Statuses, s)
		}
	}

	if raw := strings.TrimSpace(q.Get("from")); raw != "" {
		t, _, err := parseTime(raw)
		if err != nil {
			return ListFilter{}, apperr.Validation("from", "must be RFC3339 or YYYY-MM-DD")
		}
		f.From = &t
	}
	if raw := strings.TrimSpace(q.Get("to")); raw != "" {
		t, dateOnly, err := parseTime(raw)
		if err != nil {
			return ListFilter{}, apperr.Validation("to", "must be RFC3339 or YYYY-MM-DD")
		}
		if dateOnly {
			t = t.AddDate(0, 0, 1)
		}
		f.To = &t
	}

	f.Search = q.Get("q")
	f.SortBy = strings.TrimSpace(q.Get("sortBy"))
	switch strings.ToLower(strings.TrimSpace(q.Get("order"))) {
	case "", "desc":
		f.SortDesc = true
	case "asc":
		f.SortDesc = false
	default:
		return ListFilter{}, apperr.Validation("order", "must be asc or desc")
	}

	page, err := pagination.Parse(q.Get("limit"), q.Get("offset"))
	if err != nil {
		return ListFilter{}, err
	}
	f.Page = page

	if err := f.Normalize(); err != nil {
		return ListFilter{}, err
	}
	return f, nil
}

func parseTime(raw string) (time.Time, bool, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), false, nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, false, err
	}
	return t.UTC(), true, nil
}

func cmpInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// cmpDuration sorts missing durations first.
func cmpDuration(a, b *float64) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	case *a < *b:
		return -1
	case *a > *b:
		return 1
	}
	return 0
}
