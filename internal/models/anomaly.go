package models

// AnomalyCategory names a class of suspicious activity.
type AnomalyCategory string

const (
	AnomalyLowConfidence  AnomalyCategory = "low_confidence_cluster"
	AnomalyErrorRate      AnomalyCategory = "high_error_rate"
	AnomalyRepeatedOps    AnomalyCategory = "repeated_operations"
	AnomalyHighCost       AnomalyCategory = "high_cost"
	AnomalyOversizedInput AnomalyCategory = "oversized_input"
)

// anomalyRecommendations maps each category to a fixed operator-facing
// recommendation string.
var anomalyRecommendations = map[AnomalyCategory]string{
	AnomalyLowConfidence:  "Review recent model outputs and consider retraining or adjusting the confidence threshold.",
	AnomalyErrorRate:      "Check model service health, upstream credentials, and recent deployments.",
	AnomalyRepeatedOps:    "Inspect the calling code for a retry or automation loop hitting the same entity.",
	AnomalyHighCost:       "Audit prompt sizes and model selection; consider routing to a cheaper model.",
	AnomalyOversizedInput: "Trim or chunk large inputs before submission; oversized payloads inflate cost and latency.",
}

// RecommendationFor returns the fixed recommendation for a category.
func RecommendationFor(c AnomalyCategory) string {
	return anomalyRecommendations[c]
}

// AnomalousActivity is one detected anomaly condition. These findings
// are not persisted by the detector; the alert manager or caller
// decides whether to escalate them into alerts.
type AnomalousActivity struct {
	Category       AnomalyCategory `json:"category"`
	Severity       Severity        `json:"severity"`
	Description    string          `json:"description"`
	ModelName      string          `json:"model_name,omitempty"`
	AffectedIDs    []string        `json:"affected_ids,omitempty"`
	Recommendation string          `json:"recommendation"`
}
