package models

import "time"

// AlertType classifies what condition an alert reports.
type AlertType string

const (
	AlertModelFailure    AlertType = "model_failure"
	AlertHighErrorRate   AlertType = "high_error_rate"
	AlertBudgetExceeded  AlertType = "budget_exceeded"
	AlertSecurityIncident AlertType = "security_incident"
	AlertPerfDegradation AlertType = "performance_degradation"
	AlertRateLimit       AlertType = "rate_limit_warning"
	AlertAnomalyDetected AlertType = "anomaly_detected"
	AlertCustom          AlertType = "custom"
)

// Severity represents alert severity level.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank orders severities for sorting, critical highest.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityHigh:
		return 2
	case SeverityMedium:
		return 1
	default:
		return 0
	}
}

// ParseSeverity converts a string to Severity.
func ParseSeverity(s string) Severity {
	switch s {
	case "low", "LOW":
		return SeverityLow
	case "medium", "MEDIUM":
		return SeverityMedium
	case "high", "HIGH":
		return SeverityHigh
	case "critical", "CRITICAL":
		return SeverityCritical
	default:
		return SeverityMedium
	}
}

// AlertStatus is the lifecycle state of an alert.
//
// Transitions: active -> acknowledged | resolved | snoozed, and
// snoozed -> active automatically once the snooze expires. Acknowledged
// and resolved are terminal for the manager; ResolvedAt and
// AcknowledgedAt are set at most once and never cleared.
type AlertStatus string

const (
	AlertActive       AlertStatus = "active"
	AlertAcknowledged AlertStatus = "acknowledged"
	AlertResolved     AlertStatus = "resolved"
	AlertSnoozed      AlertStatus = "snoozed"
)

// Alert is a unit of operator-facing notification.
type Alert struct {
	ID        string      `json:"id"`
	Type      AlertType   `json:"type"`
	Severity  Severity    `json:"severity"`
	Status    AlertStatus `json:"status"`
	Title     string      `json:"title"`
	Message   string      `json:"message"`
	ModelName string      `json:"model_name,omitempty"`

	// AffectedOperations lists activity record ids the alert refers to.
	AffectedOperations []string `json:"affected_operations,omitempty"`

	Metadata map[string]string `json:"metadata,omitempty"`

	// NotificationChannels lists channel names to dispatch to.
	NotificationChannels []string `json:"notification_channels,omitempty"`

	// NotificationsSent counts dispatch attempts across all channels.
	NotificationsSent int `json:"notifications_sent"`

	// EscalationLevel counts re-notifications at increasing urgency.
	EscalationLevel int `json:"escalation_level"`

	CreatedAt      time.Time  `json:"created_at"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
	AcknowledgedBy string     `json:"acknowledged_by,omitempty"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
	ResolvedBy     string     `json:"resolved_by,omitempty"`
	ResolutionNotes string    `json:"resolution_notes,omitempty"`
	SnoozedUntil   *time.Time `json:"snoozed_until,omitempty"`
	SnoozedBy      string     `json:"snoozed_by,omitempty"`
}

// NewAlert creates an active alert with initialized metadata.
func NewAlert(alertType AlertType, severity Severity, title, message string) *Alert {
	return &Alert{
		Type:     alertType,
		Severity: severity,
		Status:   AlertActive,
		Title:    title,
		Message:  message,
		Metadata: make(map[string]string),
	}
}

// AlertFilter defines query parameters for alert retrieval.
type AlertFilter struct {
	StartTime time.Time
	EndTime   time.Time
	Type      AlertType
	Severity  Severity
	Status    AlertStatus
	ModelName string
	Limit     int
	Offset    int
}

// AlertAnalytics summarizes a filtered set of alerts.
type AlertAnalytics struct {
	TotalAlerts           int64               `json:"total_alerts"`
	ActiveAlerts          int64               `json:"active_alerts"`
	ResolvedAlerts        int64               `json:"resolved_alerts"`
	MeanResolutionMinutes float64             `json:"mean_resolution_minutes"`
	CountsByType          map[AlertType]int64 `json:"counts_by_type"`
	CountsBySeverity      map[Severity]int64  `json:"counts_by_severity"`
	CountsByModel         map[string]int64    `json:"counts_by_model"`
	DailyTrend            []DailyAlertTrend   `json:"daily_trend,omitempty"`
}

// DailyAlertTrend is one day's created-vs-resolved counts.
type DailyAlertTrend struct {
	Date     string `json:"date"` // YYYY-MM-DD
	Created  int64  `json:"created"`
	Resolved int64  `json:"resolved"`
}

// NewAlertAnalytics returns an analytics value with initialized maps.
func NewAlertAnalytics() *AlertAnalytics {
	return &AlertAnalytics{
		CountsByType:     make(map[AlertType]int64),
		CountsBySeverity: make(map[Severity]int64),
		CountsByModel:    make(map[string]int64),
	}
}

// AlertAggregation groups recent alerts by (type, severity).
type AlertAggregation struct {
	Type           AlertType `json:"type"`
	Severity       Severity  `json:"severity"`
	Count          int64     `json:"count"`
	FirstOccurrence time.Time `json:"first_occurrence"`
	LastOccurrence time.Time `json:"last_occurrence"`
	AffectedModels []string  `json:"affected_models,omitempty"`
}
