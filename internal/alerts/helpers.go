package alerts

import (
	"fmt"
	"strconv"

	"github.com/calm-red-fox/aitrail/internal/models"
)

// Preset constructors for the common alert shapes. Callers still go
// through Manager.Create, so aggregation and notification rules apply
// uniformly.

// ModelFailureParams builds params for a model that stopped serving.
func ModelFailureParams(modelName, detail string, affectedOps []string) *CreateParams {
	return &CreateParams{
		Type:               models.AlertModelFailure,
		Severity:           models.SeverityCritical,
		Title:              fmt.Sprintf("Model failure: %s", modelName),
		Message:            detail,
		ModelName:          modelName,
		AffectedOperations: affectedOps,
	}
}

// HighErrorRateParams builds params for an elevated error rate.
func HighErrorRateParams(modelName string, ratePercent float64, windowHours int) *CreateParams {
	severity := models.SeverityHigh
	if ratePercent > 50 {
		severity = models.SeverityCritical
	}
	return &CreateParams{
		Type:      models.AlertHighErrorRate,
		Severity:  severity,
		Title:     fmt.Sprintf("High error rate: %.1f%%", ratePercent),
		Message:   fmt.Sprintf("%.1f%% of operations failed over the last %dh", ratePercent, windowHours),
		ModelName: modelName,
		Metadata: map[string]string{
			"error_rate":   strconv.FormatFloat(ratePercent, 'f', 1, 64),
			"window_hours": strconv.Itoa(windowHours),
		},
	}
}

// BudgetExceededParams builds params for a blown spending budget.
func BudgetExceededParams(spent, budget float64) *CreateParams {
	return &CreateParams{
		Type:     models.AlertBudgetExceeded,
		Severity: models.SeverityHigh,
		Title:    "Budget exceeded",
		Message:  fmt.Sprintf("Spent $%.2f against a budget of $%.2f", spent, budget),
		Metadata: map[string]string{
			"spent":  strconv.FormatFloat(spent, 'f', 2, 64),
			"budget": strconv.FormatFloat(budget, 'f', 2, 64),
		},
	}
}

// SecurityIncidentParams builds params for suspicious activity.
func SecurityIncidentParams(detail string, affectedOps []string) *CreateParams {
	return &CreateParams{
		Type:               models.AlertSecurityIncident,
		Severity:           models.SeverityCritical,
		Title:              "Security incident detected",
		Message:            detail,
		AffectedOperations: affectedOps,
	}
}

// PerformanceDegradationParams builds params for slow operations.
func PerformanceDegradationParams(modelName string, avgMs, baselineMs float64) *CreateParams {
	return &CreateParams{
		Type:      models.AlertPerfDegradation,
		Severity:  models.SeverityMedium,
		Title:     fmt.Sprintf("Performance degradation: %s", modelName),
		Message:   fmt.Sprintf("Average latency %.0fms against a %.0fms baseline", avgMs, baselineMs),
		ModelName: modelName,
	}
}

// RateLimitWarningParams builds params for upstream rate limiting.
func RateLimitWarningParams(modelName string, count int64, windowHours int) *CreateParams {
	return &CreateParams{
		Type:      models.AlertRateLimit,
		Severity:  models.SeverityMedium,
		Title:     fmt.Sprintf("Rate limiting: %s", modelName),
		Message:   fmt.Sprintf("%d rate-limited operations over the last %dh", count, windowHours),
		ModelName: modelName,
	}
}

// AnomalyParams converts a detector finding into alert params.
func AnomalyParams(anomaly models.AnomalousActivity) *CreateParams {
	return &CreateParams{
		Type:               models.AlertAnomalyDetected,
		Severity:           anomaly.Severity,
		Title:              fmt.Sprintf("Anomaly detected: %s", anomaly.Category),
		Message:            anomaly.Description + "\n\n" + anomaly.Recommendation,
		ModelName:          anomaly.ModelName,
		AffectedOperations: anomaly.AffectedIDs,
		Metadata: map[string]string{
			"category": string(anomaly.Category),
		},
	}
}
