package cmd

import (
	"testing"
	"time"
)

func TestParseTimeFlag(t *testing.T) {
	got, err := parseTimeFlag("2024-06-01T12:00:00Z")
	if err != nil {
		t.Fatalf("parseTimeFlag: %v", err)
	}
	want := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}

	got, err = parseTimeFlag("")
	if err != nil || !got.IsZero() {
		t.Errorf("empty flag: got %v, %v", got, err)
	}

	if _, err = parseTimeFlag("yesterday"); err == nil {
		t.Error("expected error for non-RFC3339 input")
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("got %q", got)
	}
	if got := truncate("a very long model name", 10); got != "a very l.." {
		t.Errorf("got %q", got)
	}
}
