// Package models contains the core data structures for AITrail.
package models

import (
	"encoding/json"
	"time"
)

// OperationType classifies the kind of AI operation that was logged.
type OperationType string

const (
	OpCompletion     OperationType = "completion"
	OpClassification OperationType = "classification"
	OpExtraction     OperationType = "extraction"
	OpSummarization  OperationType = "summarization"
	OpEmbedding      OperationType = "embedding"
	OpModeration     OperationType = "moderation"
	OpUnknown        OperationType = "unknown"
)

// OperationStatus is the outcome of a logged operation.
type OperationStatus string

const (
	StatusSuccess     OperationStatus = "success"
	StatusError       OperationStatus = "error"
	StatusTimeout     OperationStatus = "timeout"
	StatusRateLimited OperationStatus = "rate_limited"
)

// PayloadEncoding identifies how a payload field is stored. Each
// payload field carries its own encoding: the retention engine only
// compresses fields above its size threshold, so one field of a record
// can be compressed while the other stays plain.
type PayloadEncoding string

const (
	// EncodingPlain means the payload is stored as-is.
	EncodingPlain PayloadEncoding = ""
	// EncodingGzipBase64 means the payload was gzip-compressed and
	// base64-encoded by the retention engine's in-place compression.
	EncodingGzipBase64 PayloadEncoding = "gzip+base64"
)

// ActivityRecord represents a single logged AI operation.
type ActivityRecord struct {
	// ID is the unique identifier for the record.
	ID string `json:"id"`

	// Timestamp is when the operation was logged. Immutable.
	Timestamp time.Time `json:"timestamp"`

	// UserID identifies the user on whose behalf the operation ran.
	UserID string `json:"user_id"`

	// ModelName is the AI model that served the operation.
	ModelName string `json:"model_name"`

	// ModelVersion is the optional model version string.
	ModelVersion string `json:"model_version,omitempty"`

	// OperationType classifies the operation.
	OperationType OperationType `json:"operation_type"`

	// OperationDescription is free-text detail about the operation.
	OperationDescription string `json:"operation_description,omitempty"`

	// EntityType and EntityID reference the business entity the
	// operation acted on, if any.
	EntityType string `json:"entity_type,omitempty"`
	EntityID   string `json:"entity_id,omitempty"`

	// InputData and OutputData are sanitized JSON payloads.
	InputData  string `json:"input_data"`
	OutputData string `json:"output_data"`

	// InputEncoding and OutputEncoding are set per field when the
	// retention engine compressed that payload in place.
	InputEncoding  PayloadEncoding `json:"input_encoding,omitempty"`
	OutputEncoding PayloadEncoding `json:"output_encoding,omitempty"`

	// Status is the operation outcome.
	Status OperationStatus `json:"status"`

	// ErrorMessage and ErrorCode describe a failed operation.
	ErrorMessage string `json:"error_message,omitempty"`
	ErrorCode    string `json:"error_code,omitempty"`

	// ExecutionTimeMs is the wall-clock duration of the operation.
	ExecutionTimeMs int64 `json:"execution_time_ms"`

	// ConfidenceScore is the model's self-reported confidence, 0-100.
	// Nil when the operation does not report one.
	ConfidenceScore *float64 `json:"confidence_score,omitempty"`

	// Token accounting and cost estimate.
	InputTokens   *int64   `json:"input_tokens,omitempty"`
	OutputTokens  *int64   `json:"output_tokens,omitempty"`
	EstimatedCost *float64 `json:"estimated_cost,omitempty"`
}

// JSON returns the record as JSON bytes.
func (r *ActivityRecord) JSON() ([]byte, error) {
	return json.Marshal(r)
}

// HasConfidence reports whether the record carries a confidence score.
func (r *ActivityRecord) HasConfidence() bool {
	return r.ConfidenceScore != nil
}

// IsError returns true for error, timeout, and rate-limited outcomes.
func (r *ActivityRecord) IsError() bool {
	return r.Status == StatusError || r.Status == StatusTimeout || r.Status == StatusRateLimited
}

// ParseOperationType converts a string to OperationType.
func ParseOperationType(s string) OperationType {
	switch s {
	case "completion":
		return OpCompletion
	case "classification":
		return OpClassification
	case "extraction":
		return OpExtraction
	case "summarization":
		return OpSummarization
	case "embedding":
		return OpEmbedding
	case "moderation":
		return OpModeration
	default:
		return OpUnknown
	}
}

// ParseOperationStatus converts a string to OperationStatus.
// Unrecognized values map to StatusError.
func ParseOperationStatus(s string) OperationStatus {
	switch s {
	case "success":
		return StatusSuccess
	case "error":
		return StatusError
	case "timeout":
		return StatusTimeout
	case "rate_limited", "rate-limited":
		return StatusRateLimited
	default:
		return StatusError
	}
}

// ActivityFilter defines query parameters for activity retrieval.
type ActivityFilter struct {
	// Time range.
	StartTime time.Time
	EndTime   time.Time

	// Optional filters.
	UserID        string
	ModelName     string
	OperationType OperationType
	Status        OperationStatus
	EntityType    string
	EntityID      string

	// Confidence score range (inclusive). Nil means unbounded.
	MinConfidence *float64
	MaxConfidence *float64

	// Pagination.
	Limit  int
	Offset int

	// OrderAsc flips the default newest-first ordering.
	OrderAsc bool
}

// ActivityAnalytics summarizes a filtered set of activity records.
type ActivityAnalytics struct {
	TotalOperations  int64   `json:"total_operations"`
	SuccessRate      float64 `json:"success_rate"`
	ErrorRate        float64 `json:"error_rate"`
	AvgConfidence    float64 `json:"avg_confidence"`
	AvgExecutionMs   float64 `json:"avg_execution_ms"`
	TotalCost        float64 `json:"total_cost"`
	TotalInputTokens int64   `json:"total_input_tokens"`

	ByOperationType map[OperationType]int64   `json:"by_operation_type"`
	ByModel         map[string]int64          `json:"by_model"`
	ByStatus        map[OperationStatus]int64 `json:"by_status"`

	// TopErrors lists the most frequent error messages, most first.
	TopErrors []ErrorCount `json:"top_errors,omitempty"`

	// BusiestHours lists the top hours-of-day (0-23) by record count.
	BusiestHours []HourCount `json:"busiest_hours,omitempty"`

	// ConfidenceHistogram buckets records that report a confidence
	// score: high >= 80, medium 50-79, low < 50.
	ConfidenceHistogram ConfidenceHistogram `json:"confidence_histogram"`
}

// ErrorCount pairs an error message with its occurrence count.
type ErrorCount struct {
	Message string `json:"message"`
	Count   int64  `json:"count"`
}

// HourCount pairs an hour-of-day with its record count.
type HourCount struct {
	Hour  int   `json:"hour"`
	Count int64 `json:"count"`
}

// ConfidenceHistogram is the 3-bucket confidence distribution.
type ConfidenceHistogram struct {
	High   int64 `json:"high"`
	Medium int64 `json:"medium"`
	Low    int64 `json:"low"`
}

// NewActivityAnalytics returns an analytics value with initialized maps.
func NewActivityAnalytics() *ActivityAnalytics {
	return &ActivityAnalytics{
		ByOperationType: make(map[OperationType]int64),
		ByModel:         make(map[string]int64),
		ByStatus:        make(map[OperationStatus]int64),
	}
}
