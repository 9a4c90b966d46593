package retention

import (
	"context"
	"fmt"

	"github.com/calm-red-fox/aitrail/internal/models"
)

// StorageStats summarizes the stored record population in one chunked
// pass.
func (e *Engine) StorageStats(ctx context.Context) (*models.StorageStats, error) {
	stats := &models.StorageStats{
		CountsByModel:  make(map[string]int64),
		CountsByStatus: make(map[models.OperationStatus]int64),
	}

	filter := &models.ActivityFilter{
		Limit:    selectChunkSize,
		OrderAsc: true,
	}
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page, err := e.store.Query(ctx, filter)
		if err != nil {
			return nil, fmt.Errorf("query records: %w", err)
		}
		for _, rec := range page {
			stats.TotalRecords++
			stats.CountsByModel[rec.ModelName]++
			stats.CountsByStatus[rec.Status]++

			if data, err := rec.JSON(); err == nil {
				stats.TotalSizeBytes += int64(len(data))
			}

			ts := rec.Timestamp
			if stats.OldestRecord == nil || ts.Before(*stats.OldestRecord) {
				t := ts
				stats.OldestRecord = &t
			}
			if stats.NewestRecord == nil || ts.After(*stats.NewestRecord) {
				t := ts
				stats.NewestRecord = &t
			}
		}
		if len(page) < filter.Limit {
			break
		}
		filter.Offset += filter.Limit
	}

	if stats.TotalRecords > 0 {
		stats.AverageRecordSizeBytes = stats.TotalSizeBytes / stats.TotalRecords
	}
	return stats, nil
}
