// Package retention ages out activity records according to named
// policies: optional archival to versioned bundles, batched deletion,
// in-place payload compression, and storage statistics.
package retention

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/calm-red-fox/aitrail/internal/clock"
	"github.com/calm-red-fox/aitrail/internal/metrics"
	"github.com/calm-red-fox/aitrail/internal/models"
	"github.com/calm-red-fox/aitrail/internal/storage"
)

const (
	// deleteBatchSize bounds each deletion batch. Cancellation is
	// honored between batches, never inside one.
	deleteBatchSize = 1000

	// selectChunkSize bounds each selection page.
	selectChunkSize = 1000
)

// Engine executes retention policies against the activity store.
type Engine struct {
	store      storage.ActivityRepository
	clock      clock.Clock
	archiveDir string
}

// NewEngine creates a retention engine writing archives under dir.
func NewEngine(store storage.ActivityRepository, clk clock.Clock, archiveDir string) *Engine {
	return &Engine{
		store:      store,
		clock:      clk,
		archiveDir: archiveDir,
	}
}

// ExecutePolicy runs one policy to completion: select expired records,
// archive them if the policy says so, then delete in batches. Any
// archival failure aborts before the first delete; the records stay
// untouched and the failure lands in the result's error list.
func (e *Engine) ExecutePolicy(ctx context.Context, policy *models.RetentionPolicy) (*models.ArchivalResult, error) {
	if policy == nil {
		return nil, models.Validationf("policy", "is required")
	}
	if policy.RetentionDays <= 0 {
		return nil, models.Validationf("retention_days", "must be > 0")
	}

	started := e.clock.Now()
	result := &models.ArchivalResult{
		PolicyID:   policy.ID,
		PolicyName: policy.Name,
	}
	outcome := "success"
	defer func() {
		elapsed := e.clock.Now().Sub(started)
		result.ExecutionTimeMs = elapsed.Milliseconds()
		metrics.RetentionRuns.WithLabelValues(policy.ID, outcome).Inc()
		metrics.RetentionDuration.WithLabelValues(policy.ID).Observe(elapsed.Seconds())
	}()

	cutoff := started.AddDate(0, 0, -policy.RetentionDays)
	expired, err := e.selectExpired(ctx, policy, cutoff)
	if err != nil {
		outcome = "error"
		return nil, fmt.Errorf("select expired records: %w", err)
	}
	result.TotalLogs = int64(len(expired))
	if len(expired) == 0 {
		return result, nil
	}

	if policy.ArchiveBeforeDelete {
		location, size, ratio, err := e.writeArchive(expired, policy, started)
		if err != nil {
			outcome = "error"
			result.Errors = append(result.Errors, fmt.Sprintf("archive: %v", err))
			return result, nil
		}
		result.ArchivedLogs = int64(len(expired))
		result.ArchiveLocation = location
		result.ArchiveSizeBytes = size
		result.CompressionRatio = ratio
		metrics.RecordsArchived.Add(float64(len(expired)))
	}

	deleted, err := e.deleteBatched(ctx, expired)
	result.DeletedLogs = deleted
	metrics.RecordsDeleted.Add(float64(deleted))
	if err != nil {
		outcome = "error"
		result.Errors = append(result.Errors, fmt.Sprintf("delete: %v", err))
	}

	return result, nil
}

// selectExpired pages through records older than the cutoff that match
// the policy's filters.
func (e *Engine) selectExpired(ctx context.Context, policy *models.RetentionPolicy, cutoff time.Time) ([]*models.ActivityRecord, error) {
	filter := &models.ActivityFilter{
		EndTime:  cutoff,
		Limit:    selectChunkSize,
		OrderAsc: true,
	}

	var expired []*models.ActivityRecord
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page, err := e.store.Query(ctx, filter)
		if err != nil {
			return nil, err
		}
		for _, rec := range page {
			if policy.Matches(rec) {
				expired = append(expired, rec)
			}
		}
		if len(page) < filter.Limit {
			return expired, nil
		}
		filter.Offset += filter.Limit
	}
}

// writeArchive encodes the bundle to a temp file and renames it into
// place so a crash never leaves a partial archive behind.
func (e *Engine) writeArchive(records []*models.ActivityRecord, policy *models.RetentionPolicy, now time.Time) (location string, size int64, ratio float64, err error) {
	if err := os.MkdirAll(e.archiveDir, 0o755); err != nil {
		return "", 0, 0, fmt.Errorf("create archive dir: %w", err)
	}

	name := fmt.Sprintf("%s-%s.json", policy.ID, now.UTC().Format("20060102T150405Z"))
	if policy.CompressionEnabled {
		name += ".gz"
	}
	location = filepath.Join(e.archiveDir, name)

	bundle := buildBundle(records, policy.Name, now)

	tmp, err := os.CreateTemp(e.archiveDir, name+".tmp-*")
	if err != nil {
		return "", 0, 0, fmt.Errorf("create archive file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := EncodeBundle(tmp, bundle, policy.CompressionEnabled); err != nil {
		tmp.Close()
		return "", 0, 0, err
	}
	if err := tmp.Close(); err != nil {
		return "", 0, 0, fmt.Errorf("close archive file: %w", err)
	}

	info, err := os.Stat(tmp.Name())
	if err != nil {
		return "", 0, 0, err
	}
	size = info.Size()

	if policy.CompressionEnabled && size > 0 {
		var raw int64
		for _, rec := range records {
			if data, err := rec.JSON(); err == nil {
				raw += int64(len(data))
			}
		}
		if raw > 0 {
			ratio = float64(raw) / float64(size)
		}
	}

	if err := os.Rename(tmp.Name(), location); err != nil {
		return "", 0, 0, fmt.Errorf("rename archive into place: %w", err)
	}
	return location, size, ratio, nil
}

// deleteBatched removes records in fixed-size batches, checking for
// cancellation between batches.
func (e *Engine) deleteBatched(ctx context.Context, records []*models.ActivityRecord) (int64, error) {
	ids := make([]string, len(records))
	for i, rec := range records {
		ids[i] = rec.ID
	}

	var total int64
	for start := 0; start < len(ids); start += deleteBatchSize {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		end := start + deleteBatchSize
		if end > len(ids) {
			end = len(ids)
		}
		n, err := e.store.BulkDelete(ctx, ids[start:end])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// PurgeOlderThan deletes every record older than the cutoff with no
// archival and no policy filters. Operator tooling only.
func (e *Engine) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	expired, err := e.selectExpired(ctx, &models.RetentionPolicy{RetentionDays: 1}, cutoff)
	if err != nil {
		return 0, fmt.Errorf("select records to purge: %w", err)
	}
	deleted, err := e.deleteBatched(ctx, expired)
	metrics.RecordsDeleted.Add(float64(deleted))
	return deleted, err
}

// Import loads a decoded archive bundle back into the store, skipping
// records whose ids already exist.
func (e *Engine) Import(ctx context.Context, bundle *models.ArchiveBundle) (*models.ImportResult, error) {
	if bundle == nil {
		return nil, models.Validationf("bundle", "is required")
	}

	result := &models.ImportResult{}
	if bundle.Version != models.ArchiveFormatVersion {
		result.Errors = append(result.Errors, fmt.Sprintf(
			"archive version %q differs from current %q", bundle.Version, models.ArchiveFormatVersion))
	}

	var batch []*models.ActivityRecord
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := e.store.BulkInsert(ctx, batch); err != nil {
			return err
		}
		result.Imported += int64(len(batch))
		batch = batch[:0]
		return nil
	}

	for _, rec := range bundle.Records {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		_, err := e.store.Get(ctx, rec.ID)
		switch {
		case err == nil:
			result.Skipped++
			continue
		case !errors.Is(err, storage.ErrNotFound):
			return result, fmt.Errorf("check existing record %s: %w", rec.ID, err)
		}
		batch = append(batch, rec)
		if len(batch) >= deleteBatchSize {
			if err := flush(); err != nil {
				return result, fmt.Errorf("insert batch: %w", err)
			}
		}
	}
	if err := flush(); err != nil {
		return result, fmt.Errorf("insert batch: %w", err)
	}
	return result, nil
}
