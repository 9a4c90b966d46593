package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/calm-red-fox/aitrail/internal/models"
)

// openStores returns each Store implementation under test.
func openStores(t *testing.T) map[string]Store {
	t.Helper()

	sqlite := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err := sqlite.Open(); err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := sqlite.Migrate(); err != nil {
		t.Fatalf("migrate sqlite: %v", err)
	}
	t.Cleanup(func() { sqlite.Close() })

	return map[string]Store{
		"sqlite": sqlite,
		"memory": NewMemoryStore(),
	}
}

func testRecord(id string, ts time.Time) *models.ActivityRecord {
	conf := 85.0
	cost := 0.0123
	return &models.ActivityRecord{
		ID:              id,
		Timestamp:       ts,
		UserID:          "user-1",
		ModelName:       "gpt-4",
		ModelVersion:    "2024-05",
		OperationType:   models.OpCompletion,
		InputData:       `{"prompt":"hello"}`,
		OutputData:      `{"text":"world"}`,
		Status:          models.StatusSuccess,
		ExecutionTimeMs: 420,
		ConfidenceScore: &conf,
		EstimatedCost:   &cost,
	}
}

func TestActivityInsertGet(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			rec := testRecord("rec-1", now)
			if err := store.Activity().Insert(ctx, rec); err != nil {
				t.Fatalf("insert: %v", err)
			}

			got, err := store.Activity().Get(ctx, "rec-1")
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if got.ModelName != "gpt-4" || got.Status != models.StatusSuccess {
				t.Errorf("got %+v", got)
			}
			if got.ConfidenceScore == nil || *got.ConfidenceScore != 85.0 {
				t.Errorf("confidence not round-tripped: %v", got.ConfidenceScore)
			}

			// Duplicate insert must be rejected, not merged.
			if err := store.Activity().Insert(ctx, rec); !errors.Is(err, ErrDuplicateID) {
				t.Errorf("duplicate insert: got %v, want ErrDuplicateID", err)
			}

			if _, err := store.Activity().Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
				t.Errorf("get missing: got %v, want ErrNotFound", err)
			}
		})
	}
}

func TestActivityQueryFilters(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			repo := store.Activity()

			for i := 0; i < 10; i++ {
				rec := testRecord(string(rune('a'+i)), base.Add(time.Duration(i)*time.Minute))
				if i%2 == 0 {
					rec.ModelName = "claude-3"
					rec.Status = models.StatusError
					rec.ErrorMessage = "boom"
					low := 30.0
					rec.ConfidenceScore = &low
				}
				if err := repo.Insert(ctx, rec); err != nil {
					t.Fatalf("insert %d: %v", i, err)
				}
			}

			byModel, err := repo.Query(ctx, &models.ActivityFilter{ModelName: "claude-3"})
			if err != nil {
				t.Fatalf("query by model: %v", err)
			}
			if len(byModel) != 5 {
				t.Errorf("by model: got %d, want 5", len(byModel))
			}

			// Default ordering is newest first.
			all, err := repo.Query(ctx, nil)
			if err != nil {
				t.Fatalf("query all: %v", err)
			}
			for i := 1; i < len(all); i++ {
				if all[i].Timestamp.After(all[i-1].Timestamp) {
					t.Errorf("not newest-first at index %d", i)
				}
			}

			min, max := 20.0, 40.0
			lowConf, err := repo.Query(ctx, &models.ActivityFilter{MinConfidence: &min, MaxConfidence: &max})
			if err != nil {
				t.Fatalf("query confidence: %v", err)
			}
			if len(lowConf) != 5 {
				t.Errorf("confidence range: got %d, want 5", len(lowConf))
			}

			page, err := repo.Query(ctx, &models.ActivityFilter{Limit: 3, Offset: 8})
			if err != nil {
				t.Fatalf("query page: %v", err)
			}
			if len(page) != 2 {
				t.Errorf("pagination: got %d, want 2", len(page))
			}

			count, err := repo.Count(ctx, &models.ActivityFilter{Status: models.StatusError})
			if err != nil {
				t.Fatalf("count: %v", err)
			}
			if count != 5 {
				t.Errorf("count errors: got %d, want 5", count)
			}
		})
	}
}

func TestActivityBulkDeleteAndUpdate(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			repo := store.Activity()
			for _, id := range []string{"a", "b", "c"} {
				if err := repo.Insert(ctx, testRecord(id, now)); err != nil {
					t.Fatalf("insert: %v", err)
				}
			}

			deleted, err := repo.BulkDelete(ctx, []string{"a", "c", "missing"})
			if err != nil {
				t.Fatalf("bulk delete: %v", err)
			}
			if deleted != 2 {
				t.Errorf("deleted: got %d, want 2", deleted)
			}

			newData := `{"compressed":true}`
			enc := models.EncodingGzipBase64
			err = repo.Update(ctx, "b", &RecordPatch{InputData: &newData, InputEncoding: &enc})
			if err != nil {
				t.Fatalf("update: %v", err)
			}
			got, err := repo.Get(ctx, "b")
			if err != nil {
				t.Fatalf("get after update: %v", err)
			}
			if got.InputData != newData || got.InputEncoding != models.EncodingGzipBase64 {
				t.Errorf("patch not applied: %+v", got)
			}
			// Untouched fields survive.
			if got.OutputData != `{"text":"world"}` {
				t.Errorf("output data clobbered: %q", got.OutputData)
			}
			if got.OutputEncoding != models.EncodingPlain {
				t.Errorf("output encoding clobbered: %q", got.OutputEncoding)
			}

			if err := repo.Update(ctx, "missing", &RecordPatch{InputData: &newData}); !errors.Is(err, ErrNotFound) {
				t.Errorf("update missing: got %v, want ErrNotFound", err)
			}
		})
	}
}

func TestAlertRepo(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			repo := store.Alerts()

			mk := func(id string, sev models.Severity, status models.AlertStatus, created time.Time) *models.Alert {
				a := models.NewAlert(models.AlertHighErrorRate, sev, "t", "m")
				a.ID = id
				a.Status = status
				a.ModelName = "gpt-4"
				a.CreatedAt = created
				a.NotificationChannels = []string{"in_app"}
				return a
			}

			if err := repo.Create(ctx, mk("a1", models.SeverityLow, models.AlertActive, now)); err != nil {
				t.Fatalf("create: %v", err)
			}
			if err := repo.Create(ctx, mk("a2", models.SeverityCritical, models.AlertActive, now.Add(-time.Hour))); err != nil {
				t.Fatalf("create: %v", err)
			}
			if err := repo.Create(ctx, mk("a3", models.SeverityHigh, models.AlertResolved, now)); err != nil {
				t.Fatalf("create: %v", err)
			}

			active, err := repo.ListActive(ctx, nil)
			if err != nil {
				t.Fatalf("list active: %v", err)
			}
			if len(active) != 2 {
				t.Fatalf("active: got %d, want 2", len(active))
			}
			// Critical sorts before low, despite being older.
			if active[0].ID != "a2" {
				t.Errorf("severity order: got %s first", active[0].ID)
			}

			count, err := repo.CountSince(ctx, models.AlertHighErrorRate, "gpt-4", now.Add(-30*time.Minute))
			if err != nil {
				t.Fatalf("count since: %v", err)
			}
			if count != 2 {
				t.Errorf("count since: got %d, want 2", count)
			}

			got, err := repo.Get(ctx, "a1")
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			resolvedAt := now.Add(time.Minute)
			got.Status = models.AlertResolved
			got.ResolvedAt = &resolvedAt
			got.ResolvedBy = "operator"
			if err := repo.Update(ctx, got); err != nil {
				t.Fatalf("update: %v", err)
			}
			back, err := repo.Get(ctx, "a1")
			if err != nil {
				t.Fatalf("get after update: %v", err)
			}
			if back.Status != models.AlertResolved || back.ResolvedAt == nil {
				t.Errorf("update not persisted: %+v", back)
			}
		})
	}
}

func TestPolicyRunRepo(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			repo := store.PolicyRuns()

			if _, err := repo.Get(ctx, "p1"); !errors.Is(err, ErrNotFound) {
				t.Errorf("get missing: got %v, want ErrNotFound", err)
			}

			run := &models.PolicyRun{PolicyID: "p1", LastRunAt: now, LastSuccess: true}
			if err := repo.Upsert(ctx, run); err != nil {
				t.Fatalf("upsert: %v", err)
			}

			run.LastRunAt = now.Add(24 * time.Hour)
			run.LastSuccess = false
			run.LastError = "archive failed"
			if err := repo.Upsert(ctx, run); err != nil {
				t.Fatalf("second upsert: %v", err)
			}

			got, err := repo.Get(ctx, "p1")
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if got.LastSuccess || got.LastError != "archive failed" {
				t.Errorf("got %+v", got)
			}
		})
	}
}
