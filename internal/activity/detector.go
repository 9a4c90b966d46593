package activity

import (
	"context"
	"fmt"
	"time"

	"github.com/calm-red-fox/aitrail/internal/clock"
	"github.com/calm-red-fox/aitrail/internal/models"
	"github.com/calm-red-fox/aitrail/internal/storage"
)

// Detection thresholds.
const (
	lowConfidenceScore    = 50.0
	lowConfidenceMinCount = 5
	recentErrorMinCount   = 10
	errorRateThreshold    = 20.0
	errorRateHighWater    = 50.0
	repeatedOpsThreshold  = 50
	costPerOpThreshold    = 0.10
	costPerOpHighWater    = 0.50
	oversizedInputBytes   = 50 * 1024
	oversizedMinCount     = 5
)

// Detector flags statistically suspicious activity over a rolling
// window. Findings are returned, never persisted.
type Detector struct {
	store storage.ActivityRepository
	clock clock.Clock
}

// NewDetector creates a detector over the given store.
func NewDetector(store storage.ActivityRepository, clk clock.Clock) *Detector {
	return &Detector{store: store, clock: clk}
}

// CheckRecent runs the cheap per-write probe over the hour preceding a
// freshly logged record: a low-confidence cluster for the record's
// model, and the system-wide error count.
func (d *Detector) CheckRecent(ctx context.Context, modelName string, at time.Time) ([]models.AnomalousActivity, error) {
	windowStart := at.Add(-time.Hour)
	var anomalies []models.AnomalousActivity

	max := lowConfidenceScore
	lowConf, err := d.store.Query(ctx, &models.ActivityFilter{
		StartTime:     windowStart,
		EndTime:       at,
		ModelName:     modelName,
		MaxConfidence: &max,
	})
	if err != nil {
		return nil, fmt.Errorf("query low-confidence records: %w", err)
	}
	// MaxConfidence is inclusive; the cluster definition is strict.
	lowConf = filterBelow(lowConf, lowConfidenceScore)
	if len(lowConf) >= lowConfidenceMinCount {
		anomalies = append(anomalies, lowConfidenceAnomaly(modelName, lowConf))
	}

	errCount, err := d.store.Count(ctx, &models.ActivityFilter{
		StartTime: windowStart,
		EndTime:   at,
		Status:    models.StatusError,
	})
	if err != nil {
		return nil, fmt.Errorf("count recent errors: %w", err)
	}
	if errCount >= recentErrorMinCount {
		anomalies = append(anomalies, models.AnomalousActivity{
			Category:       models.AnomalyErrorRate,
			Severity:       models.SeverityHigh,
			Description:    fmt.Sprintf("%d error-status operations in the last hour", errCount),
			Recommendation: models.RecommendationFor(models.AnomalyErrorRate),
		})
	}

	return anomalies, nil
}

// Sweep is the operator-invoked pass over the lookback window. It
// evaluates every detection rule against the whole window.
func (d *Detector) Sweep(ctx context.Context, lookbackHours int) ([]models.AnomalousActivity, error) {
	if lookbackHours <= 0 {
		lookbackHours = 24
	}
	now := d.clock.Now()
	filter := &models.ActivityFilter{
		StartTime: now.Add(-time.Duration(lookbackHours) * time.Hour),
		EndTime:   now,
		Limit:     analyticsChunkSize,
	}

	type tripleKey struct {
		user, op, entity string
	}

	var (
		total       int64
		errorIDs    []string
		costSum     float64
		costCount   int64
		costlyIDs   []string
		oversized   []string
		lowByModel  = make(map[string][]*models.ActivityRecord)
		tripleCount = make(map[tripleKey][]string)
	)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page, err := d.store.Query(ctx, filter)
		if err != nil {
			return nil, fmt.Errorf("sweep query: %w", err)
		}
		for _, rec := range page {
			total++
			if rec.Status == models.StatusError {
				errorIDs = append(errorIDs, rec.ID)
			}
			if rec.ConfidenceScore != nil && *rec.ConfidenceScore < lowConfidenceScore {
				lowByModel[rec.ModelName] = append(lowByModel[rec.ModelName], rec)
			}
			if rec.EstimatedCost != nil {
				costSum += *rec.EstimatedCost
				costCount++
				costlyIDs = append(costlyIDs, rec.ID)
			}
			if len(rec.InputData) > oversizedInputBytes {
				oversized = append(oversized, rec.ID)
			}
			if rec.EntityID != "" {
				k := tripleKey{rec.UserID, string(rec.OperationType), rec.EntityType + "/" + rec.EntityID}
				tripleCount[k] = append(tripleCount[k], rec.ID)
			}
		}
		if len(page) < filter.Limit {
			break
		}
		filter.Offset += filter.Limit
	}

	var anomalies []models.AnomalousActivity

	for model, recs := range lowByModel {
		if len(recs) >= lowConfidenceMinCount {
			anomalies = append(anomalies, lowConfidenceAnomaly(model, recs))
		}
	}

	if total > 0 {
		rate := float64(len(errorIDs)) / float64(total) * 100
		if rate > errorRateThreshold {
			sev := models.SeverityMedium
			if rate > errorRateHighWater {
				sev = models.SeverityHigh
			}
			anomalies = append(anomalies, models.AnomalousActivity{
				Category:       models.AnomalyErrorRate,
				Severity:       sev,
				Description:    fmt.Sprintf("error rate %.1f%% over %d operations", rate, total),
				AffectedIDs:    truncateIDs(errorIDs),
				Recommendation: models.RecommendationFor(models.AnomalyErrorRate),
			})
		}
	}

	for k, ids := range tripleCount {
		if len(ids) > repeatedOpsThreshold {
			anomalies = append(anomalies, models.AnomalousActivity{
				Category: models.AnomalyRepeatedOps,
				Severity: models.SeverityHigh,
				Description: fmt.Sprintf("user %s repeated %s on %s %d times",
					k.user, k.op, k.entity, len(ids)),
				AffectedIDs:    truncateIDs(ids),
				Recommendation: models.RecommendationFor(models.AnomalyRepeatedOps),
			})
		}
	}

	if costCount > 0 {
		meanCost := costSum / float64(costCount)
		if meanCost > costPerOpThreshold {
			sev := models.SeverityMedium
			if meanCost > costPerOpHighWater {
				sev = models.SeverityHigh
			}
			anomalies = append(anomalies, models.AnomalousActivity{
				Category:       models.AnomalyHighCost,
				Severity:       sev,
				Description:    fmt.Sprintf("mean cost per operation $%.4f across %d operations", meanCost, costCount),
				AffectedIDs:    truncateIDs(costlyIDs),
				Recommendation: models.RecommendationFor(models.AnomalyHighCost),
			})
		}
	}

	if len(oversized) > oversizedMinCount {
		anomalies = append(anomalies, models.AnomalousActivity{
			Category:       models.AnomalyOversizedInput,
			Severity:       models.SeverityMedium,
			Description:    fmt.Sprintf("%d operations with input payloads over %dKB", len(oversized), oversizedInputBytes/1024),
			AffectedIDs:    truncateIDs(oversized),
			Recommendation: models.RecommendationFor(models.AnomalyOversizedInput),
		})
	}

	return anomalies, nil
}

func lowConfidenceAnomaly(model string, recs []*models.ActivityRecord) models.AnomalousActivity {
	sev := models.SeverityMedium
	if len(recs) >= 2*lowConfidenceMinCount {
		sev = models.SeverityHigh
	}
	ids := make([]string, len(recs))
	for i, rec := range recs {
		ids[i] = rec.ID
	}
	return models.AnomalousActivity{
		Category:       models.AnomalyLowConfidence,
		Severity:       sev,
		Description:    fmt.Sprintf("%d low-confidence results from %s within the window", len(recs), model),
		ModelName:      model,
		AffectedIDs:    truncateIDs(ids),
		Recommendation: models.RecommendationFor(models.AnomalyLowConfidence),
	}
}

func filterBelow(recs []*models.ActivityRecord, limit float64) []*models.ActivityRecord {
	out := recs[:0]
	for _, rec := range recs {
		if rec.ConfidenceScore != nil && *rec.ConfidenceScore < limit {
			out = append(out, rec)
		}
	}
	return out
}

// truncateIDs caps affected-id lists so a finding stays readable.
func truncateIDs(ids []string) []string {
	const maxIDs = 100
	if len(ids) > maxIDs {
		return ids[:maxIDs]
	}
	return ids
}
