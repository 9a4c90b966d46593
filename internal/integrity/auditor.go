// Package integrity audits stored activity records for corruption:
// missing required fields, invalid timestamps, unparseable payloads,
// out-of-range values, and duplicate ids. The audit is strictly
// read-only.
package integrity

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/calm-red-fox/aitrail/internal/clock"
	"github.com/calm-red-fox/aitrail/internal/metrics"
	"github.com/calm-red-fox/aitrail/internal/models"
	"github.com/calm-red-fox/aitrail/internal/storage"
)

const auditChunkSize = 1000

// Auditor runs integrity checks over the activity store.
type Auditor struct {
	store storage.ActivityRepository
	clock clock.Clock
}

// NewAuditor creates an auditor over the given store.
func NewAuditor(store storage.ActivityRepository, clk clock.Clock) *Auditor {
	return &Auditor{store: store, clock: clk}
}

// RunCheck performs a full chunked pass over every stored record. It
// fails only on store I/O errors; findings about the data itself are
// reported, never returned as errors.
func (a *Auditor) RunCheck(ctx context.Context) (*models.IntegrityReport, error) {
	metrics.IntegrityChecks.Inc()

	report := &models.IntegrityReport{
		Issues: []models.IntegrityIssue{},
	}
	now := a.clock.Now()
	seen := make(map[string]bool)

	filter := &models.ActivityFilter{
		Limit:    auditChunkSize,
		OrderAsc: true,
	}
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page, err := a.store.Query(ctx, filter)
		if err != nil {
			return nil, fmt.Errorf("audit query: %w", err)
		}
		for _, rec := range page {
			report.TotalRecords++

			if seen[rec.ID] {
				report.DuplicateIDCount++
				a.addIssue(report, rec.ID, "duplicate record id", models.IssueHigh)
			}
			seen[rec.ID] = true

			a.checkRecord(report, rec, now)
		}
		if len(page) < filter.Limit {
			break
		}
		filter.Offset += filter.Limit
	}

	return report, nil
}

func (a *Auditor) checkRecord(report *models.IntegrityReport, rec *models.ActivityRecord, now time.Time) {
	missing := func(field string) {
		report.MissingFieldsCount++
		a.addIssue(report, rec.ID, "missing required field: "+field, models.IssueHigh)
	}
	if rec.ID == "" {
		missing("id")
	}
	if rec.UserID == "" {
		missing("user_id")
	}
	if rec.ModelName == "" {
		missing("model_name")
	}
	if rec.OperationType == "" {
		missing("operation_type")
	}
	if rec.Status == "" {
		missing("status")
	}

	if rec.Timestamp.IsZero() {
		report.InvalidTimestampCount++
		a.addIssue(report, rec.ID, "zero timestamp", models.IssueHigh)
	} else if rec.Timestamp.After(now) {
		report.InvalidTimestampCount++
		a.addIssue(report, rec.ID, "timestamp in the future", models.IssueMedium)
	}

	// Compressed payloads are validated by their encoding flag; only
	// plain payloads are expected to be JSON.
	if rec.InputEncoding == models.EncodingPlain && !validPayload(rec.InputData) {
		report.CorruptedCount++
		a.addIssue(report, rec.ID, "input payload is not valid JSON", models.IssueMedium)
	}
	if rec.OutputEncoding == models.EncodingPlain && !validPayload(rec.OutputData) {
		report.CorruptedCount++
		a.addIssue(report, rec.ID, "output payload is not valid JSON", models.IssueMedium)
	}

	if rec.ConfidenceScore != nil && (*rec.ConfidenceScore < 0 || *rec.ConfidenceScore > 100) {
		report.CorruptedCount++
		a.addIssue(report, rec.ID, fmt.Sprintf("confidence score %.2f out of range", *rec.ConfidenceScore), models.IssueMedium)
	}
	if rec.ExecutionTimeMs < 0 {
		report.CorruptedCount++
		a.addIssue(report, rec.ID, "negative execution time", models.IssueLow)
	}
}

func (a *Auditor) addIssue(report *models.IntegrityReport, recordID, issue string, sev models.IssueSeverity) {
	report.Issues = append(report.Issues, models.IntegrityIssue{
		RecordID: recordID,
		Issue:    issue,
		Severity: sev,
	})
	metrics.IntegrityIssues.WithLabelValues(string(sev)).Inc()
}

// validPayload accepts empty payloads, free text, and well-formed
// JSON. A payload that starts like JSON but fails to parse is the
// corruption signature: it means a structured payload was truncated or
// mangled after write.
func validPayload(s string) bool {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return true
	}
	switch trimmed[0] {
	case '{', '[', '"':
		return json.Valid([]byte(trimmed))
	default:
		return true
	}
}
