package internal

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestStatusTerminal(t *testing.T) {
	cases := map[Status]bool{
		StatusCompleted: true,
		StatusSkipped:   true,
		StatusFailed:    false,
		StatusDryRun:    false,
		StatusPending:   false,
	}
	for status, want := range cases {
		if got := status.Terminal(); got != want {
			t.Errorf("%s.Terminal() = %v, want %v", status, got, want)
		}
	}
}

func TestCutAtRuneBoundary(t *testing.T) {
	cases := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{"shorter than max", "abc", 10, "abc"},
		{"exactly max", "abcde", 5, "abcde"},
		{"ascii cut", "abcdef", 3, "abc"},
		{"boundary between runes", strings.Repeat("ü", 3), 4, "üü"},
		{"mid-rune backs off", strings.Repeat("日", 3), 5, "日"},
		{"zero max", "abc", 0, ""},
	}
	for _, tc := range cases {
		got := cutAtRuneBoundary(tc.in, tc.max)
		if got != tc.want {
			t.Errorf("%s: cutAtRuneBoundary(%q, %d) = %q, want %q", tc.name, tc.in, tc.max, got, tc.want)
		}
		if !utf8.ValidString(got) {
			t.Errorf("%s: result %q is not valid UTF-8", tc.name, got)
		}
	}
}
