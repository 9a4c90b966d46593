package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/calm-red-fox/aitrail/internal/models"
)

// fakeNotifier records payloads and optionally fails.
type fakeNotifier struct {
	name   string
	sent   []*Payload
	err    error
	closed bool
}

func (f *fakeNotifier) Name() string { return f.name }

func (f *fakeNotifier) Send(_ context.Context, p *Payload) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, p)
	return nil
}

func (f *fakeNotifier) Close() error {
	f.closed = true
	return nil
}

func testPayload() *Payload {
	return PayloadFromAlert(&models.Alert{
		ID:        "alert-1",
		Type:      models.AlertHighErrorRate,
		Severity:  models.SeverityCritical,
		Title:     "error rate spike",
		Message:   "42% of operations failing",
		ModelName: "gpt-4",
		CreatedAt: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	})
}

func TestPayloadFromAlert(t *testing.T) {
	p := testPayload()
	if p.AlertID != "alert-1" || p.Severity != models.SeverityCritical {
		t.Errorf("payload = %+v", p)
	}
	if p.Timestamp != "2024-06-01T12:00:00Z" {
		t.Errorf("timestamp = %q, want RFC3339", p.Timestamp)
	}
}

func TestDispatchFanOut(t *testing.T) {
	d := NewDispatcherWithRateLimit(RateLimitConfig{Enabled: false})
	a := &fakeNotifier{name: "a"}
	b := &fakeNotifier{name: "b"}
	d.Register(a)
	d.Register(b)

	sent, errs := d.Dispatch(context.Background(), []string{"a", "b"}, testPayload())
	if len(errs) != 0 {
		t.Fatalf("errs = %v", errs)
	}
	if sent != 2 || len(a.sent) != 1 || len(b.sent) != 1 {
		t.Errorf("sent = %d, a=%d b=%d", sent, len(a.sent), len(b.sent))
	}
}

func TestDispatchFailingChannelDoesNotAbortOthers(t *testing.T) {
	d := NewDispatcherWithRateLimit(RateLimitConfig{Enabled: false})
	broken := &fakeNotifier{name: "broken", err: errors.New("boom")}
	ok := &fakeNotifier{name: "ok"}
	d.Register(broken)
	d.Register(ok)

	sent, errs := d.Dispatch(context.Background(), []string{"broken", "ok", "missing"}, testPayload())
	if sent != 1 {
		t.Errorf("sent = %d, want 1", sent)
	}
	if len(errs) != 2 {
		t.Fatalf("errs = %v, want broken + missing", errs)
	}
	if len(ok.sent) != 1 {
		t.Error("healthy channel skipped")
	}
	var found bool
	for _, err := range errs {
		if strings.Contains(err.Error(), "not registered") {
			found = true
		}
	}
	if !found {
		t.Errorf("no unknown-channel error in %v", errs)
	}
}

func TestDispatchEmptyChannels(t *testing.T) {
	d := NewDispatcher()
	n := &fakeNotifier{name: "a"}
	d.Register(n)

	sent, errs := d.Dispatch(context.Background(), nil, testPayload())
	if sent != 0 || errs != nil {
		t.Errorf("sent=%d errs=%v, want nothing dispatched", sent, errs)
	}
}

func TestDispatchRateLimited(t *testing.T) {
	d := NewDispatcherWithRateLimit(RateLimitConfig{MaxPerWindow: 2, Window: time.Minute, Enabled: true})
	n := &fakeNotifier{name: "a"}
	d.Register(n)

	for i := 0; i < 2; i++ {
		if _, errs := d.Dispatch(context.Background(), []string{"a"}, testPayload()); len(errs) != 0 {
			t.Fatalf("dispatch %d: %v", i, errs)
		}
	}
	_, errs := d.Dispatch(context.Background(), []string{"a"}, testPayload())
	if len(errs) != 1 || !errors.Is(errs[0], ErrRateLimited) {
		t.Fatalf("errs = %v, want ErrRateLimited", errs)
	}
	if len(n.sent) != 2 {
		t.Errorf("sent = %d, want 2", len(n.sent))
	}
	if d.RateLimitStats().Dropped != 1 {
		t.Errorf("dropped = %d, want 1", d.RateLimitStats().Dropped)
	}
}

func TestDispatcherClose(t *testing.T) {
	d := NewDispatcher()
	n := &fakeNotifier{name: "a"}
	d.Register(n)

	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !n.closed {
		t.Error("notifier not closed")
	}
	if _, ok := d.Get("a"); ok {
		t.Error("notifier still registered after close")
	}
}

func TestInAppRingBuffer(t *testing.T) {
	n := NewInAppNotifier(3)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		p := testPayload()
		p.AlertID = fmt.Sprintf("alert-%d", i)
		if err := n.Send(ctx, p); err != nil {
			t.Fatalf("Send: %v", err)
		}
	}

	recent := n.Recent(0)
	if len(recent) != 3 {
		t.Fatalf("recent = %d, want capacity 3", len(recent))
	}
	// Newest first, oldest two evicted.
	for i, want := range []string{"alert-5", "alert-4", "alert-3"} {
		if recent[i].AlertID != want {
			t.Errorf("recent[%d] = %q, want %q", i, recent[i].AlertID, want)
		}
	}

	if got := n.Recent(1); len(got) != 1 || got[0].AlertID != "alert-5" {
		t.Errorf("Recent(1) = %v", got)
	}
}

func TestInAppRecentBeforeFull(t *testing.T) {
	n := NewInAppNotifier(10)
	if got := n.Recent(5); len(got) != 0 {
		t.Errorf("recent on empty buffer = %v", got)
	}
	if err := n.Send(context.Background(), testPayload()); err != nil {
		t.Fatal(err)
	}
	if got := n.Recent(5); len(got) != 1 {
		t.Errorf("recent = %d, want 1", len(got))
	}
}
