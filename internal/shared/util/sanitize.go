package util

import (
	"errors"
	"strings"
)

const maxKeySegmentLen = 64

// SanitizeKeySegment turns a caller-supplied name into a single object-store
// path segment: lower case, runs of characters outside [a-z0-9._-] collapsed
// to one underscore. Traversal patterns and empty results are rejected.
func SanitizeKeySegment(name string) (string, error) {
	s := strings.ToLower(strings.TrimSpace(name))
	if strings.Contains(s, "..") {
		return "", errors.New("invalid name")
	}

	var b strings.Builder
	pendingSep := false
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
		default:
			pendingSep = true
		}
	}

	out := b.String()
	if len(out) > maxKeySegmentLen {
		out = out[:maxKeySegmentLen]
	}
	if out == "" || out == "." {
		return "", errors.New("invalid name")
	}
	return out, nil
}
