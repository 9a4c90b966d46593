package activity

import (
	"context"
	"sort"

	"github.com/calm-red-fox/aitrail/internal/models"
)

// analyticsChunkSize bounds each page of the analytics scan.
const analyticsChunkSize = 1000

// Analytics aggregates the filtered record set. An empty set yields a
// zero-valued result; averages are only computed over records that
// report the relevant field.
func (l *Logger) Analytics(ctx context.Context, filter *models.ActivityFilter) (*models.ActivityAnalytics, error) {
	result := models.NewActivityAnalytics()

	var (
		successCount int64
		errorCount   int64
		confSum      float64
		confCount    int64
		execSum      float64
		errCounts    = make(map[string]int64)
		hourCounts   = make(map[int]int64)
	)

	err := l.scan(ctx, filter, func(rec *models.ActivityRecord) {
		result.TotalOperations++
		result.ByOperationType[rec.OperationType]++
		result.ByModel[rec.ModelName]++
		result.ByStatus[rec.Status]++
		hourCounts[rec.Timestamp.Hour()]++

		if rec.Status == models.StatusSuccess {
			successCount++
		}
		if rec.IsError() {
			errorCount++
			if rec.ErrorMessage != "" {
				errCounts[rec.ErrorMessage]++
			}
		}

		if rec.ConfidenceScore != nil {
			score := *rec.ConfidenceScore
			confSum += score
			confCount++
			switch {
			case score >= 80:
				result.ConfidenceHistogram.High++
			case score >= 50:
				result.ConfidenceHistogram.Medium++
			default:
				result.ConfidenceHistogram.Low++
			}
		}

		execSum += float64(rec.ExecutionTimeMs)
		if rec.EstimatedCost != nil {
			result.TotalCost += *rec.EstimatedCost
		}
		if rec.InputTokens != nil {
			result.TotalInputTokens += *rec.InputTokens
		}
	})
	if err != nil {
		return nil, err
	}

	if result.TotalOperations > 0 {
		result.SuccessRate = float64(successCount) / float64(result.TotalOperations) * 100
		result.ErrorRate = float64(errorCount) / float64(result.TotalOperations) * 100
		result.AvgExecutionMs = execSum / float64(result.TotalOperations)
	}
	if confCount > 0 {
		result.AvgConfidence = confSum / float64(confCount)
	}

	result.TopErrors = topErrors(errCounts, 10)
	result.BusiestHours = topHours(hourCounts, 5)

	return result, nil
}

// scan pages through the filtered set in bounded chunks.
func (l *Logger) scan(ctx context.Context, filter *models.ActivityFilter, fn func(*models.ActivityRecord)) error {
	f := models.ActivityFilter{}
	if filter != nil {
		f = *filter
	}
	f.Limit = analyticsChunkSize
	f.Offset = 0

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		page, err := l.store.Query(ctx, &f)
		if err != nil {
			return err
		}
		for _, rec := range page {
			fn(rec)
		}
		if len(page) < f.Limit {
			return nil
		}
		f.Offset += f.Limit
	}
}

func topErrors(counts map[string]int64, n int) []models.ErrorCount {
	if len(counts) == 0 {
		return nil
	}
	out := make([]models.ErrorCount, 0, len(counts))
	for msg, count := range counts {
		out = append(out, models.ErrorCount{Message: msg, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Message < out[j].Message
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func topHours(counts map[int]int64, n int) []models.HourCount {
	if len(counts) == 0 {
		return nil
	}
	out := make([]models.HourCount, 0, len(counts))
	for hour, count := range counts {
		out = append(out, models.HourCount{Hour: hour, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Hour < out[j].Hour
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}
