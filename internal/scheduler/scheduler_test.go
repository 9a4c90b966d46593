package scheduler

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/calm-red-fox/aitrail/internal/activity"
	"github.com/calm-red-fox/aitrail/internal/alerts"
	"github.com/calm-red-fox/aitrail/internal/clock"
	"github.com/calm-red-fox/aitrail/internal/integrity"
	"github.com/calm-red-fox/aitrail/internal/models"
	"github.com/calm-red-fox/aitrail/internal/retention"
	"github.com/calm-red-fox/aitrail/internal/storage"
)

var testBase = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	store   *storage.MemoryStore
	clk     *clock.Fake
	engine  *retention.Engine
	manager *alerts.Manager
	sched   *Scheduler
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	store := storage.NewMemoryStore()
	clk := clock.NewFake(testBase)
	engine := retention.NewEngine(store.Activity(), clk, t.TempDir())
	auditor := integrity.NewAuditor(store.Activity(), clk)
	detector := activity.NewDetector(store.Activity(), clk)
	manager := alerts.NewManager(store.Alerts(), clk, nil, nil)

	sched := New(engine, auditor, detector, manager, store.PolicyRuns(), clk, cfg)
	return &fixture{store: store, clk: clk, engine: engine, manager: manager, sched: sched}
}

func seedAged(t *testing.T, store *storage.MemoryStore, prefix string, n, ageDays int, mutate func(*models.ActivityRecord)) {
	t.Helper()
	for i := 0; i < n; i++ {
		rec := &models.ActivityRecord{
			ID:            fmt.Sprintf("%s-%04d", prefix, i),
			Timestamp:     testBase.AddDate(0, 0, -ageDays).Add(time.Duration(i) * time.Second),
			UserID:        "user-1",
			ModelName:     "gpt-4",
			OperationType: models.OpCompletion,
			Status:        models.StatusSuccess,
			InputData:     `{"prompt":"hello"}`,
		}
		if mutate != nil {
			mutate(rec)
		}
		if err := store.Activity().Insert(context.Background(), rec); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}
}

func dailyPolicy() *models.RetentionPolicy {
	return &models.RetentionPolicy{
		ID:            "expire-30d",
		Name:          "expire after thirty days",
		RetentionDays: 30,
		Enabled:       true,
		Schedule:      models.ScheduleDaily,
	}
}

// waitFor polls cond in real time while stepping the fake clock, so
// loop goroutines that register fresh timers between steps still get
// woken.
func waitFor(t *testing.T, clk *clock.Fake, step time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		clk.Advance(step)
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}

func activityCount(t *testing.T, store *storage.MemoryStore, clk *clock.Fake) int64 {
	t.Helper()
	n, err := store.Activity().Count(context.Background(), &models.ActivityFilter{
		EndTime: clk.Now().Add(24 * time.Hour),
	})
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	return n
}

func TestMissedPolicyRunExecutesOnStartup(t *testing.T) {
	policy := dailyPolicy()
	f := newFixture(t, Config{Policies: []*models.RetentionPolicy{policy}})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	seedAged(t, f.store, "old", 10, 35, nil)

	// The last run is two days back, one full interval overdue.
	err := f.store.PolicyRuns().Upsert(ctx, &models.PolicyRun{
		PolicyID:    policy.ID,
		LastRunAt:   testBase.Add(-48 * time.Hour),
		LastSuccess: true,
	})
	if err != nil {
		t.Fatal(err)
	}

	go f.sched.Run(ctx)

	ok := waitFor(t, f.clk, 0, func() bool {
		return activityCount(t, f.store, f.clk) == 0
	})
	if !ok {
		t.Fatal("overdue policy did not run on startup")
	}

	run, err := f.store.PolicyRuns().Get(ctx, policy.ID)
	if err != nil {
		t.Fatalf("PolicyRuns.Get: %v", err)
	}
	if !run.LastSuccess {
		t.Errorf("last run = %+v, want success", run)
	}
	if !run.LastRunAt.Equal(f.clk.Now()) {
		t.Errorf("last run at = %v, want fake clock time %v", run.LastRunAt, f.clk.Now())
	}
}

func TestPolicyRunsOnDailyCadence(t *testing.T) {
	policy := dailyPolicy()
	f := newFixture(t, Config{Policies: []*models.RetentionPolicy{policy}})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	seedAged(t, f.store, "old", 5, 35, nil)

	// Just ran: the next run is a full interval out.
	err := f.store.PolicyRuns().Upsert(ctx, &models.PolicyRun{
		PolicyID:    policy.ID,
		LastRunAt:   testBase,
		LastSuccess: true,
	})
	if err != nil {
		t.Fatal(err)
	}

	go f.sched.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	if got := activityCount(t, f.store, f.clk); got != 5 {
		t.Fatalf("records = %d before the interval elapsed, want 5", got)
	}

	ok := waitFor(t, f.clk, time.Hour, func() bool {
		return activityCount(t, f.store, f.clk) == 0
	})
	if !ok {
		t.Fatal("policy did not run after its interval elapsed")
	}
}

func TestDisabledPolicyNeverRuns(t *testing.T) {
	policy := dailyPolicy()
	policy.Enabled = false
	f := newFixture(t, Config{Policies: []*models.RetentionPolicy{policy}})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	seedAged(t, f.store, "old", 5, 35, nil)
	go f.sched.Run(ctx)

	f.clk.Advance(48 * time.Hour)
	time.Sleep(100 * time.Millisecond)
	if got := activityCount(t, f.store, f.clk); got != 5 {
		t.Errorf("records = %d, disabled policy must not delete", got)
	}
}

// gateRepo blocks BulkDelete until released, to hold a policy run in
// flight deterministically.
type gateRepo struct {
	storage.ActivityRepository
	entered chan struct{}
	release chan struct{}
}

func (g *gateRepo) BulkDelete(ctx context.Context, ids []string) (int64, error) {
	g.entered <- struct{}{}
	<-g.release
	return g.ActivityRepository.BulkDelete(ctx, ids)
}

func TestRunPolicyInFlightGuard(t *testing.T) {
	store := storage.NewMemoryStore()
	clk := clock.NewFake(testBase)
	gated := &gateRepo{
		ActivityRepository: store.Activity(),
		entered:            make(chan struct{}),
		release:            make(chan struct{}),
	}
	engine := retention.NewEngine(gated, clk, t.TempDir())
	sched := New(engine, nil, nil, nil, store.PolicyRuns(), clk, Config{})

	seedAged(t, store, "old", 3, 35, nil)
	policy := dailyPolicy()
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := sched.RunPolicy(ctx, policy)
		done <- err
	}()
	<-gated.entered

	if _, err := sched.RunPolicy(ctx, policy); !errors.Is(err, ErrPolicyBusy) {
		t.Errorf("concurrent run err = %v, want ErrPolicyBusy", err)
	}

	close(gated.release)
	if err := <-done; err != nil {
		t.Fatalf("first run: %v", err)
	}

	// The guard clears once the run finishes.
	if _, err := sched.RunPolicy(ctx, policy); err != nil {
		t.Errorf("run after release: %v", err)
	}
}

func TestRunPolicyRecordsFailure(t *testing.T) {
	policy := dailyPolicy()
	f := newFixture(t, Config{Policies: []*models.RetentionPolicy{policy}})
	ctx := context.Background()

	seedAged(t, f.store, "old", 3, 35, nil)
	f.store.FailNextBulkDelete(errors.New("disk full"))

	result, err := f.sched.RunPolicy(ctx, policy)
	if err != nil {
		t.Fatalf("RunPolicy: %v", err)
	}
	if len(result.Errors) == 0 {
		t.Fatal("result carries no errors")
	}

	run, err := f.store.PolicyRuns().Get(ctx, policy.ID)
	if err != nil {
		t.Fatal(err)
	}
	if run.LastSuccess {
		t.Error("failed run recorded as success")
	}
	if run.LastError == "" {
		t.Error("failed run recorded without error detail")
	}
}

func TestPolicyLookup(t *testing.T) {
	policy := dailyPolicy()
	f := newFixture(t, Config{Policies: []*models.RetentionPolicy{policy}})

	got, err := f.sched.Policy(policy.ID)
	if err != nil || got.ID != policy.ID {
		t.Errorf("Policy = %v, %v", got, err)
	}
	if _, err := f.sched.Policy("nope"); !errors.Is(err, ErrUnknownPolicy) {
		t.Errorf("err = %v, want ErrUnknownPolicy", err)
	}
}

func TestSnoozeSweepLoop(t *testing.T) {
	f := newFixture(t, Config{SnoozeSweepInterval: time.Minute})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	id, err := f.manager.Create(ctx, &alerts.CreateParams{
		Type:  models.AlertHighErrorRate,
		Title: "error rate spike",
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := f.manager.Snooze(ctx, id, "oncall", 30); err != nil {
		t.Fatal(err)
	}

	go f.sched.Run(ctx)

	ok := waitFor(t, f.clk, 5*time.Minute, func() bool {
		alert, err := f.manager.Get(ctx, id)
		return err == nil && alert.Status == models.AlertActive
	})
	if !ok {
		t.Fatal("snoozed alert was not reactivated after expiry")
	}
}

func TestIntegrityLoopRaisesAlert(t *testing.T) {
	f := newFixture(t, Config{IntegrityInterval: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	seedAged(t, f.store, "bad", 1, 1, func(r *models.ActivityRecord) {
		r.UserID = ""
	})

	go f.sched.Run(ctx)

	ok := waitFor(t, f.clk, time.Hour, func() bool {
		history, err := f.manager.History(ctx, nil)
		if err != nil {
			return false
		}
		for _, alert := range history {
			if alert.Type == models.AlertCustom && alert.Severity == models.SeverityHigh {
				return true
			}
		}
		return false
	})
	if !ok {
		t.Fatal("integrity findings raised no alert")
	}
}

func TestAnomalySweepLoopRaisesAlert(t *testing.T) {
	f := newFixture(t, Config{AnomalySweepInterval: time.Hour, AnomalyLookbackHours: 24})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Every recent operation failing is an unmissable error-rate
	// anomaly for the sweep.
	seedAged(t, f.store, "err", 12, 0, func(r *models.ActivityRecord) {
		r.Status = models.StatusError
		r.ErrorMessage = "model unavailable"
	})

	go f.sched.Run(ctx)

	ok := waitFor(t, f.clk, time.Hour, func() bool {
		history, err := f.manager.History(ctx, nil)
		if err != nil {
			return false
		}
		for _, alert := range history {
			if alert.Type == models.AlertAnomalyDetected {
				return true
			}
		}
		return false
	})
	if !ok {
		t.Fatal("anomaly sweep raised no alert")
	}
}
