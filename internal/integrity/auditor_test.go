package integrity

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/calm-red-fox/aitrail/internal/clock"
	"github.com/calm-red-fox/aitrail/internal/models"
	"github.com/calm-red-fox/aitrail/internal/storage"
)

var testBase = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestAuditor(t *testing.T) (*Auditor, *storage.MemoryStore) {
	t.Helper()
	store := storage.NewMemoryStore()
	return NewAuditor(store.Activity(), clock.NewFake(testBase)), store
}

func goodRecord(id string) *models.ActivityRecord {
	return &models.ActivityRecord{
		ID:            id,
		Timestamp:     testBase.Add(-time.Hour),
		UserID:        "user-1",
		ModelName:     "gpt-4",
		OperationType: models.OpCompletion,
		Status:        models.StatusSuccess,
		InputData:     `{"prompt":"hello"}`,
		OutputData:    `{"answer":"hi"}`,
	}
}

func TestRunCheckHealthyStore(t *testing.T) {
	auditor, store := newTestAuditor(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		if err := store.Activity().Insert(ctx, goodRecord(id)); err != nil {
			t.Fatal(err)
		}
	}
	// Free-text payloads are fine.
	rec := goodRecord("d")
	rec.OutputData = "plain prose answer"
	if err := store.Activity().Insert(ctx, rec); err != nil {
		t.Fatal(err)
	}

	report, err := auditor.RunCheck(ctx)
	if err != nil {
		t.Fatalf("RunCheck: %v", err)
	}
	if report.TotalRecords != 4 {
		t.Errorf("total = %d, want 4", report.TotalRecords)
	}
	if !report.Healthy() {
		t.Errorf("report not healthy: %+v", report.Issues)
	}
}

func TestRunCheckFindings(t *testing.T) {
	auditor, store := newTestAuditor(t)
	ctx := context.Background()

	seed := []func(*models.ActivityRecord){
		func(r *models.ActivityRecord) { r.UserID = "" },
		func(r *models.ActivityRecord) { r.ModelName = ""; r.Status = "" },
		func(r *models.ActivityRecord) { r.Timestamp = time.Time{} },
		func(r *models.ActivityRecord) { r.Timestamp = testBase.Add(time.Hour) },
		func(r *models.ActivityRecord) { r.InputData = `{"prompt": truncat` },
		func(r *models.ActivityRecord) { r.ConfidenceScore = floatPtr(150) },
		func(r *models.ActivityRecord) { r.ExecutionTimeMs = -10 },
	}
	for i, mutate := range seed {
		rec := goodRecord(string(rune('a' + i)))
		mutate(rec)
		if err := store.Activity().Insert(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}

	report, err := auditor.RunCheck(ctx)
	if err != nil {
		t.Fatalf("RunCheck: %v", err)
	}
	if report.Healthy() {
		t.Fatal("report claims healthy")
	}
	if report.MissingFieldsCount != 3 {
		t.Errorf("missing fields = %d, want 3 (one + two on the same record)", report.MissingFieldsCount)
	}
	if report.InvalidTimestampCount != 2 {
		t.Errorf("invalid timestamps = %d, want 2", report.InvalidTimestampCount)
	}
	// Corruption: unparseable input, out-of-range confidence, negative
	// execution time.
	if report.CorruptedCount != 3 {
		t.Errorf("corrupted = %d, want 3", report.CorruptedCount)
	}
	if report.DuplicateIDCount != 0 {
		t.Errorf("duplicates = %d, want 0", report.DuplicateIDCount)
	}
}

func TestRunCheckDuplicateIDs(t *testing.T) {
	auditor, store := newTestAuditor(t)
	ctx := context.Background()

	// Bulk insert bypasses per-insert duplicate checks, which is
	// exactly the failure mode the audit exists to catch.
	recs := []*models.ActivityRecord{
		goodRecord("dup"),
		goodRecord("dup"),
		goodRecord("dup"),
		goodRecord("unique"),
	}
	if err := store.Activity().BulkInsert(ctx, recs); err != nil {
		t.Fatalf("BulkInsert: %v", err)
	}

	report, err := auditor.RunCheck(ctx)
	if err != nil {
		t.Fatalf("RunCheck: %v", err)
	}
	if report.TotalRecords != 4 {
		t.Errorf("total = %d, want 4", report.TotalRecords)
	}
	// Each repeat beyond the first counts once.
	if report.DuplicateIDCount != 2 {
		t.Errorf("duplicates = %d, want 2", report.DuplicateIDCount)
	}
	var dupIssues int
	for _, issue := range report.Issues {
		if strings.Contains(issue.Issue, "duplicate") {
			dupIssues++
			if issue.Severity != models.IssueHigh {
				t.Errorf("duplicate severity = %q, want high", issue.Severity)
			}
			if issue.RecordID != "dup" {
				t.Errorf("duplicate record id = %q", issue.RecordID)
			}
		}
	}
	if dupIssues != 2 {
		t.Errorf("duplicate issues = %d, want 2", dupIssues)
	}
}

func TestRunCheckIsReadOnly(t *testing.T) {
	auditor, store := newTestAuditor(t)
	ctx := context.Background()

	rec := goodRecord("broken")
	rec.InputData = `{"bad`
	if err := store.Activity().Insert(ctx, rec); err != nil {
		t.Fatal(err)
	}

	if _, err := auditor.RunCheck(ctx); err != nil {
		t.Fatalf("RunCheck: %v", err)
	}

	after, err := store.Activity().Get(ctx, "broken")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if after.InputData != `{"bad` {
		t.Error("audit mutated a stored record")
	}
}

func TestRunCheckSkipsCompressedPayloadParse(t *testing.T) {
	auditor, store := newTestAuditor(t)
	ctx := context.Background()

	rec := goodRecord("gz")
	rec.InputData = "H4sIAAAAAAAA/someopaquebase64"
	rec.InputEncoding = models.EncodingGzipBase64
	if err := store.Activity().Insert(ctx, rec); err != nil {
		t.Fatal(err)
	}

	report, err := auditor.RunCheck(ctx)
	if err != nil {
		t.Fatalf("RunCheck: %v", err)
	}
	if !report.Healthy() {
		t.Errorf("compressed payload flagged: %+v", report.Issues)
	}
}

func floatPtr(v float64) *float64 { return &v }
