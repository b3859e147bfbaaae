package util

import (
	"strings"
	"testing"
)

func TestSanitizeKeySegment(t *testing.T) {
	cases := map[string]string{
		"nightly":             "nightly",
		" March Run ":         "march_run",
		"verified/extraction": "verified_extraction",
		`a/b\c.v2`:            "a_b_c.v2",
		"bank -- acme":        "bank_--_acme",
		"///lead":             "lead",
	}
	for in, want := range cases {
		got, err := SanitizeKeySegment(in)
		if err != nil {
			t.Fatalf("SanitizeKeySegment(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("SanitizeKeySegment(%q) = %q, want %q", in, got, want)
		}
	}

	long, err := SanitizeKeySegment(strings.Repeat("x", 100))
	if err != nil || len(long) != maxKeySegmentLen {
		t.Fatalf("expected truncation to %d, got %d (%v)", maxKeySegmentLen, len(long), err)
	}

	for _, bad := range []string{"", "   ", "../x", "///", "."} {
		if _, err := SanitizeKeySegment(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}
