// Package metrics provides Prometheus metrics for AITrail.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "aitrail"
)

// Activity metrics
var (
	// RecordsLogged counts persisted activity records by status.
	RecordsLogged = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "activity",
			Name:      "records_logged_total",
			Help:      "Total activity records persisted",
		},
		[]string{"status"},
	)

	// AnomalyProbes counts background anomaly probes.
	AnomalyProbes = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "activity",
			Name:      "anomaly_probes_total",
			Help:      "Total background anomaly probes executed",
		},
	)

	// AnomalyProbesDropped counts probes dropped because the queue was full.
	AnomalyProbesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "activity",
			Name:      "anomaly_probes_dropped_total",
			Help:      "Anomaly probes dropped due to a full queue",
		},
	)

	// AnomaliesFound counts detected anomalies by category.
	AnomaliesFound = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "activity",
			Name:      "anomalies_found_total",
			Help:      "Total anomalies detected",
		},
		[]string{"category"},
	)
)

// Alert metrics
var (
	// AlertsCreated counts persisted alerts by severity.
	AlertsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "created_total",
			Help:      "Total alerts persisted",
		},
		[]string{"severity"},
	)

	// AlertsSuppressed counts alerts suppressed by aggregation windows.
	AlertsSuppressed = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "suppressed_total",
			Help:      "Alerts suppressed by aggregation windows",
		},
	)

	// NotificationsSent counts notification dispatches by channel and outcome.
	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "notifications_total",
			Help:      "Notification dispatch attempts",
		},
		[]string{"channel", "outcome"},
	)
)

// Retention metrics
var (
	// RetentionRuns counts policy executions by outcome.
	RetentionRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retention",
			Name:      "runs_total",
			Help:      "Retention policy executions",
		},
		[]string{"policy", "outcome"},
	)

	// RecordsArchived counts records written to archive bundles.
	RecordsArchived = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retention",
			Name:      "records_archived_total",
			Help:      "Records written to archive bundles",
		},
	)

	// RecordsDeleted counts records removed by retention.
	RecordsDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retention",
			Name:      "records_deleted_total",
			Help:      "Records deleted by retention policies",
		},
	)

	// RetentionDuration tracks policy execution latency.
	RetentionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "retention",
			Name:      "run_duration_seconds",
			Help:      "Retention policy execution latency in seconds",
			Buckets:   []float64{.1, .5, 1, 5, 15, 60, 300},
		},
		[]string{"policy"},
	)
)

// Integrity metrics
var (
	// IntegrityChecks counts audit passes.
	IntegrityChecks = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "integrity",
			Name:      "checks_total",
			Help:      "Integrity audit passes executed",
		},
	)

	// IntegrityIssues counts issues found by severity.
	IntegrityIssues = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "integrity",
			Name:      "issues_total",
			Help:      "Integrity issues found",
		},
		[]string{"severity"},
	)
)

// HTTP metrics
var (
	// HTTPRequestsTotal counts API requests by method, route, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP API requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration tracks API request latency.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP API request duration",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// HTTPRequestsInFlight gauges concurrent API requests.
	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_in_flight",
			Help:      "HTTP API requests currently being served",
		},
	)
)
