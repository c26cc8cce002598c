package pos

import (
	"testing"
	"time"
)

func TestParseTimeNormalizesToUTC(t *testing.T) {
	fallback := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	want := time.Date(2026, 10, 19, 3, 0, 0, 0, time.UTC)
	cases := []struct {
		name string
		raw  string
	}{
		{name: "rfc3339 offset", raw: "2026-10-19T12:00:00+09:00"},
		{name: "rfc3339 utc", raw: "2026-10-19T03:00:00Z"},
		{name: "unix seconds", raw: "1792378800"},
		{name: "unix millis", raw: "1792378800000"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ParseTime(tc.raw, fallback)
			if got.Location() != time.UTC {
				t.Fatalf("expected utc location, got %v", got.Location())
			}
			if !got.Equal(want) {
				t.Fatalf("expected %v, got %v", want, got)
			}
		})
	}
	if got := ParseTime("not-a-time", fallback); !got.Equal(fallback) {
		t.Fatalf("expected fallback, got %v", got)
	}
}
