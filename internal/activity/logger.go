// Package activity provides the activity logger: validated, sanitized
// persistence of AI operation records, filtered query and analytics,
// export, and anomaly detection over the recent window.
package activity

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/calm-red-fox/aitrail/internal/clock"
	"github.com/calm-red-fox/aitrail/internal/metrics"
	"github.com/calm-red-fox/aitrail/internal/models"
	"github.com/calm-red-fox/aitrail/internal/sanitize"
	"github.com/calm-red-fox/aitrail/internal/storage"
)

// AnomalySink receives anomalies found by background probes. The alert
// manager typically implements this to escalate findings into alerts.
type AnomalySink func(ctx context.Context, anomalies []models.AnomalousActivity)

// LoggerOptions configures the activity logger.
type LoggerOptions struct {
	// ProbeBufferSize is the size of the anomaly probe queue.
	ProbeBufferSize int
}

// DefaultLoggerOptions returns default logger options.
func DefaultLoggerOptions() *LoggerOptions {
	return &LoggerOptions{
		ProbeBufferSize: 100,
	}
}

// Logger is the activity logging service. Construct with NewLogger and
// share by reference; there is no global instance.
type Logger struct {
	store    storage.ActivityRepository
	clock    clock.Clock
	detector *Detector
	sink     AnomalySink

	// probes is the queue feeding the background anomaly worker.
	probes chan probe

	closed  atomic.Bool
	dropped atomic.Int64
}

// probe asks the background worker to examine the last hour around one
// freshly written record.
type probe struct {
	modelName string
	loggedAt  time.Time
}

// NewLogger creates an activity logger with injected dependencies.
// sink may be nil, in which case probe findings are only logged.
func NewLogger(store storage.ActivityRepository, clk clock.Clock, sink AnomalySink, opts *LoggerOptions) *Logger {
	if opts == nil {
		opts = DefaultLoggerOptions()
	}
	return &Logger{
		store:    store,
		clock:    clk,
		detector: NewDetector(store, clk),
		sink:     sink,
		probes:   make(chan probe, opts.ProbeBufferSize),
	}
}

// LogParams are the caller-supplied fields for one operation.
type LogParams struct {
	UserID               string
	ModelName            string
	ModelVersion         string
	OperationType        models.OperationType
	OperationDescription string
	EntityType           string
	EntityID             string

	// Input and Output are serialized to JSON and sanitized before
	// persistence. Strings are treated as pre-serialized payloads.
	Input  any
	Output any

	Status       models.OperationStatus
	ErrorMessage string
	ErrorCode    string

	ExecutionTimeMs int64
	ConfidenceScore *float64
	InputTokens     *int64
	OutputTokens    *int64
	EstimatedCost   *float64

	// Timestamp defaults to the current time. It must not be in the
	// future relative to ingestion.
	Timestamp time.Time
}

// LogOperation validates, sanitizes, and persists one activity record,
// then triggers a non-blocking anomaly probe. Probe failures never fail
// or delay the logging call.
func (l *Logger) LogOperation(ctx context.Context, params *LogParams) (string, error) {
	now := l.clock.Now()

	if err := validateParams(params, now); err != nil {
		return "", err
	}

	input, err := encodePayload(params.Input)
	if err != nil {
		return "", models.Validationf("input", "serialize: %v", err)
	}
	output, err := encodePayload(params.Output)
	if err != nil {
		return "", models.Validationf("output", "serialize: %v", err)
	}

	ts := params.Timestamp
	if ts.IsZero() {
		ts = now
	}

	rec := &models.ActivityRecord{
		ID:                   uuid.NewString(),
		Timestamp:            ts,
		UserID:               params.UserID,
		ModelName:            params.ModelName,
		ModelVersion:         params.ModelVersion,
		OperationType:        params.OperationType,
		OperationDescription: params.OperationDescription,
		EntityType:           params.EntityType,
		EntityID:             params.EntityID,
		InputData:            sanitize.SanitizeJSON(input),
		OutputData:           sanitize.SanitizeJSON(output),
		Status:               params.Status,
		ErrorMessage:         sanitize.Sanitize(params.ErrorMessage),
		ErrorCode:            params.ErrorCode,
		ExecutionTimeMs:      params.ExecutionTimeMs,
		ConfidenceScore:      params.ConfidenceScore,
		InputTokens:          params.InputTokens,
		OutputTokens:         params.OutputTokens,
		EstimatedCost:        params.EstimatedCost,
	}

	if err := l.store.Insert(ctx, rec); err != nil {
		return "", fmt.Errorf("persist record: %w", err)
	}
	metrics.RecordsLogged.WithLabelValues(string(rec.Status)).Inc()

	// Fire-and-forget: the probe must never block or fail the caller.
	if !l.closed.Load() {
		select {
		case l.probes <- probe{modelName: rec.ModelName, loggedAt: ts}:
		default:
			dropped := l.dropped.Add(1)
			metrics.AnomalyProbesDropped.Inc()
			if dropped == 1 || dropped%100 == 0 {
				log.Printf("warning: anomaly probe queue full, dropped %d probes total", dropped)
			}
		}
	}

	return rec.ID, nil
}

// Run consumes the probe queue until ctx is cancelled or Close is
// called. Probe errors are swallowed and logged; they are a side effect
// of logging, never part of its contract.
func (l *Logger) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case p, ok := <-l.probes:
			if !ok {
				return
			}
			l.runProbe(ctx, p)
		}
	}
}

func (l *Logger) runProbe(ctx context.Context, p probe) {
	metrics.AnomalyProbes.Inc()

	anomalies, err := l.detector.CheckRecent(ctx, p.modelName, p.loggedAt)
	if err != nil {
		log.Printf("warning: anomaly probe failed: %v", err)
		return
	}
	if len(anomalies) == 0 {
		return
	}
	for _, a := range anomalies {
		metrics.AnomaliesFound.WithLabelValues(string(a.Category)).Inc()
	}
	if l.sink != nil {
		l.sink(ctx, anomalies)
	}
}

// Close stops accepting probes and closes the queue.
func (l *Logger) Close() {
	if l.closed.Swap(true) {
		return
	}
	close(l.probes)
}

// DroppedProbes returns how many probes were dropped on a full queue.
func (l *Logger) DroppedProbes() int64 {
	return l.dropped.Load()
}

// Query retrieves records matching the filter, newest first by default.
func (l *Logger) Query(ctx context.Context, filter *models.ActivityFilter) ([]*models.ActivityRecord, error) {
	return l.store.Query(ctx, filter)
}

// Get retrieves a single record by id.
func (l *Logger) Get(ctx context.Context, id string) (*models.ActivityRecord, error) {
	return l.store.Get(ctx, id)
}

// Count returns the number of records in the optional time range.
func (l *Logger) Count(ctx context.Context, start, end *time.Time) (int64, error) {
	filter := &models.ActivityFilter{}
	if start != nil {
		filter.StartTime = *start
	}
	if end != nil {
		filter.EndTime = *end
	}
	return l.store.Count(ctx, filter)
}

// CountMatching returns the number of records matching the full filter,
// ignoring its pagination fields.
func (l *Logger) CountMatching(ctx context.Context, filter *models.ActivityFilter) (int64, error) {
	return l.store.Count(ctx, filter)
}

// DetectAnomalies runs the operator-invoked sweep over the lookback
// window.
func (l *Logger) DetectAnomalies(ctx context.Context, lookbackHours int) ([]models.AnomalousActivity, error) {
	return l.detector.Sweep(ctx, lookbackHours)
}

func validateParams(params *LogParams, now time.Time) error {
	if params == nil {
		return models.Validationf("", "params are required")
	}
	if params.UserID == "" {
		return models.Validationf("user_id", "is required")
	}
	if params.ModelName == "" {
		return models.Validationf("model_name", "is required")
	}
	if params.OperationType == "" || params.OperationType == models.OpUnknown {
		return models.Validationf("operation_type", "is required")
	}
	if params.Status == "" {
		return models.Validationf("status", "is required")
	}
	if params.ExecutionTimeMs < 0 {
		return models.Validationf("execution_time_ms", "must be >= 0")
	}
	if params.ConfidenceScore != nil && (*params.ConfidenceScore < 0 || *params.ConfidenceScore > 100) {
		return models.Validationf("confidence_score", "must be between 0 and 100")
	}
	if params.EstimatedCost != nil && *params.EstimatedCost < 0 {
		return models.Validationf("estimated_cost", "must be >= 0")
	}
	if !params.Timestamp.IsZero() && params.Timestamp.After(now) {
		return models.Validationf("timestamp", "must not be in the future")
	}
	return nil
}

// encodePayload serializes a payload for storage. Strings pass through
// as-is; everything else is marshalled to JSON.
func encodePayload(v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return t, nil
	default:
		data, err := json.Marshal(t)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
}
