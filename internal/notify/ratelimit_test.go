package notify

import (
	"testing"
	"time"

	"github.com/calm-red-fox/aitrail/internal/clock"
)

func TestRateLimiterSlidingWindow(t *testing.T) {
	clk := clock.NewFake(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	r := NewRateLimiter(RateLimitConfig{
		MaxPerWindow: 3,
		Window:       time.Minute,
		Enabled:      true,
		Clock:        clk,
	})

	for i := 0; i < 3; i++ {
		if !r.Allow() {
			t.Fatalf("call %d denied under limit", i)
		}
	}
	if r.Allow() {
		t.Fatal("fourth call allowed within window")
	}
	if r.Dropped() != 1 {
		t.Errorf("dropped = %d, want 1", r.Dropped())
	}

	// Half a window later, still full.
	clk.Advance(30 * time.Second)
	if r.Allow() {
		t.Fatal("allowed while window still holds 3")
	}

	// Once the window slides past the oldest entries, capacity returns.
	clk.Advance(31 * time.Second)
	if !r.Allow() {
		t.Fatal("denied after window slid")
	}
}

func TestRateLimiterDisabled(t *testing.T) {
	r := NewRateLimiter(RateLimitConfig{MaxPerWindow: 1, Window: time.Minute, Enabled: false})
	for i := 0; i < 10; i++ {
		if !r.Allow() {
			t.Fatal("disabled limiter denied a call")
		}
	}
	if r.Dropped() != 0 {
		t.Errorf("dropped = %d", r.Dropped())
	}
}

func TestRateLimiterRelease(t *testing.T) {
	clk := clock.NewFake(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	r := NewRateLimiter(RateLimitConfig{MaxPerWindow: 1, Window: time.Minute, Enabled: true, Clock: clk})

	if !r.Allow() {
		t.Fatal("first call denied")
	}
	r.Release()
	if !r.Allow() {
		t.Fatal("call denied after release refunded the slot")
	}
}

func TestRateLimiterDefaults(t *testing.T) {
	r := NewRateLimiter(RateLimitConfig{Enabled: true})
	stats := r.Stats()
	if stats.MaxPerWindow != 10 || stats.Window != time.Minute {
		t.Errorf("defaults = %+v", stats)
	}
}

func TestRateLimiterReset(t *testing.T) {
	r := NewRateLimiter(RateLimitConfig{MaxPerWindow: 1, Window: time.Minute, Enabled: true})
	r.Allow()
	r.Allow()
	r.Reset()
	stats := r.Stats()
	if stats.CurrentCount != 0 || stats.Dropped != 0 {
		t.Errorf("stats after reset = %+v", stats)
	}
	if !r.Allow() {
		t.Error("denied after reset")
	}
}
