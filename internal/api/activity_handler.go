package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/calm-red-fox/aitrail/internal/activity"
	"github.com/calm-red-fox/aitrail/internal/models"
)

// logActivityRequest is the POST /activity body.
type logActivityRequest struct {
	UserID               string          `json:"user_id"`
	ModelName            string          `json:"model_name"`
	ModelVersion         string          `json:"model_version,omitempty"`
	OperationType        string          `json:"operation_type"`
	OperationDescription string          `json:"operation_description,omitempty"`
	EntityType           string          `json:"entity_type,omitempty"`
	EntityID             string          `json:"entity_id,omitempty"`
	Input                json.RawMessage `json:"input,omitempty"`
	Output               json.RawMessage `json:"output,omitempty"`
	Status               string          `json:"status"`
	ErrorMessage         string          `json:"error_message,omitempty"`
	ErrorCode            string          `json:"error_code,omitempty"`
	ExecutionTimeMs      int64           `json:"execution_time_ms,omitempty"`
	ConfidenceScore      *float64        `json:"confidence_score,omitempty"`
	InputTokens          *int64          `json:"input_tokens,omitempty"`
	OutputTokens         *int64          `json:"output_tokens,omitempty"`
	EstimatedCost        *float64        `json:"estimated_cost,omitempty"`
	Timestamp            time.Time       `json:"timestamp,omitempty"`
}

func (s *Server) handleLogActivity(w http.ResponseWriter, r *http.Request) {
	var req logActivityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		JSONError(w, NewBadRequest("invalid JSON body"))
		return
	}

	params := &activity.LogParams{
		UserID:               req.UserID,
		ModelName:            req.ModelName,
		ModelVersion:         req.ModelVersion,
		OperationType:        models.OperationType(req.OperationType),
		OperationDescription: req.OperationDescription,
		EntityType:           req.EntityType,
		EntityID:             req.EntityID,
		Status:               models.OperationStatus(req.Status),
		ErrorMessage:         req.ErrorMessage,
		ErrorCode:            req.ErrorCode,
		ExecutionTimeMs:      req.ExecutionTimeMs,
		ConfidenceScore:      req.ConfidenceScore,
		InputTokens:          req.InputTokens,
		OutputTokens:         req.OutputTokens,
		EstimatedCost:        req.EstimatedCost,
		Timestamp:            req.Timestamp,
	}
	if len(req.Input) > 0 {
		params.Input = string(req.Input)
	}
	if len(req.Output) > 0 {
		params.Output = string(req.Output)
	}

	ctx, cancel := s.queryContext(r)
	defer cancel()

	id, err := s.deps.Logger.LogOperation(ctx, params)
	if err != nil {
		JSONError(w, FromErr(err))
		return
	}
	Created(w, map[string]string{"id": id})
}

func (s *Server) handleQueryActivity(w http.ResponseWriter, r *http.Request) {
	filter, apiErr := s.activityFilter(r)
	if apiErr != nil {
		JSONError(w, apiErr)
		return
	}

	ctx, cancel := s.queryContext(r)
	defer cancel()

	records, err := s.deps.Logger.Query(ctx, filter)
	if err != nil {
		log.Printf("activity query failed: %v", err)
		JSONError(w, FromErr(err))
		return
	}

	countFilter := *filter
	countFilter.Limit = 0
	countFilter.Offset = 0
	total, err := s.deps.Logger.CountMatching(ctx, &countFilter)
	if err != nil {
		log.Printf("activity count failed: %v", err)
		JSONError(w, FromErr(err))
		return
	}

	perPage := filter.Limit
	page := filter.Offset/perPage + 1
	totalPages := int((total + int64(perPage) - 1) / int64(perPage))
	OK(w, PaginatedResponse{
		Items:      records,
		Total:      total,
		Page:       page,
		PerPage:    perPage,
		TotalPages: totalPages,
	})
}

func (s *Server) handleGetActivity(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.queryContext(r)
	defer cancel()

	record, err := s.deps.Logger.Get(ctx, chi.URLParam(r, "id"))
	if err != nil {
		JSONError(w, FromErr(err))
		return
	}
	OK(w, record)
}

func (s *Server) handleActivityAnalytics(w http.ResponseWriter, r *http.Request) {
	filter, apiErr := s.activityFilter(r)
	if apiErr != nil {
		JSONError(w, apiErr)
		return
	}
	filter.Limit = 0
	filter.Offset = 0

	ctx, cancel := s.queryContext(r)
	defer cancel()

	analytics, err := s.deps.Logger.Analytics(ctx, filter)
	if err != nil {
		log.Printf("activity analytics failed: %v", err)
		JSONError(w, FromErr(err))
		return
	}
	OK(w, analytics)
}

func (s *Server) handleDetectAnomalies(w http.ResponseWriter, r *http.Request) {
	hours, apiErr := intParam(r, "hours", 24)
	if apiErr != nil {
		JSONError(w, apiErr)
		return
	}

	ctx, cancel := s.queryContext(r)
	defer cancel()

	anomalies, err := s.deps.Logger.DetectAnomalies(ctx, hours)
	if err != nil {
		log.Printf("anomaly sweep failed: %v", err)
		JSONError(w, FromErr(err))
		return
	}
	if anomalies == nil {
		anomalies = []models.AnomalousActivity{}
	}
	OK(w, anomalies)
}

func (s *Server) handleExportActivity(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("format")
	if raw == "" {
		raw = "json"
	}
	format, ok := activity.ParseExportFormat(raw)
	if !ok {
		JSONError(w, NewBadRequest(fmt.Sprintf("unsupported export format %q", raw)))
		return
	}

	filter, apiErr := s.activityFilter(r)
	if apiErr != nil {
		JSONError(w, apiErr)
		return
	}

	ctx, cancel := s.queryContext(r)
	defer cancel()

	records, qerr := s.deps.Logger.Query(ctx, filter)
	if qerr != nil {
		log.Printf("export query failed: %v", qerr)
		JSONError(w, FromErr(qerr))
		return
	}

	filename := fmt.Sprintf("aitrail-export-%s.%s", time.Now().UTC().Format("20060102"), format)
	w.Header().Set("Content-Type", exportContentType(format))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))

	exporter := activity.NewExporter(format, w)
	if err := exporter.Export(records); err != nil {
		// Headers are out; all we can do is log.
		log.Printf("export write failed: %v", err)
	}
}

func exportContentType(format activity.ExportFormat) string {
	switch format {
	case activity.ExportCSV:
		return "text/csv"
	case activity.ExportXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "application/json"
	}
}

// activityFilter parses the shared activity query parameters.
func (s *Server) activityFilter(r *http.Request) (*models.ActivityFilter, *Error) {
	q := r.URL.Query()
	filter := &models.ActivityFilter{
		UserID:        q.Get("user_id"),
		ModelName:     q.Get("model"),
		OperationType: models.OperationType(q.Get("operation_type")),
		Status:        models.OperationStatus(q.Get("status")),
		EntityType:    q.Get("entity_type"),
		EntityID:      q.Get("entity_id"),
	}

	var apiErr *Error
	if filter.StartTime, apiErr = timeParam(r, "start"); apiErr != nil {
		return nil, apiErr
	}
	if filter.EndTime, apiErr = timeParam(r, "end"); apiErr != nil {
		return nil, apiErr
	}
	if filter.MinConfidence, apiErr = floatParam(r, "min_confidence"); apiErr != nil {
		return nil, apiErr
	}
	if filter.MaxConfidence, apiErr = floatParam(r, "max_confidence"); apiErr != nil {
		return nil, apiErr
	}
	if filter.Limit, apiErr = intParam(r, "limit", 100); apiErr != nil {
		return nil, apiErr
	}
	if filter.Offset, apiErr = intParam(r, "offset", 0); apiErr != nil {
		return nil, apiErr
	}

	if filter.Limit < 1 || filter.Limit > s.config.MaxPageSize {
		return nil, NewBadRequest(fmt.Sprintf("limit must be between 1 and %d", s.config.MaxPageSize))
	}
	if filter.Offset < 0 {
		return nil, NewBadRequest("offset must be >= 0")
	}
	return filter, nil
}

func timeParam(r *http.Request, name string) (time.Time, *Error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, NewBadRequest(fmt.Sprintf("%s must be RFC3339", name))
	}
	return t, nil
}

func floatParam(r *http.Request, name string) (*float64, *Error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, NewBadRequest(fmt.Sprintf("%s must be a number", name))
	}
	return &v, nil
}

func intParam(r *http.Request, name string, def int) (int, *Error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, NewBadRequest(fmt.Sprintf("%s must be an integer", name))
	}
	return v, nil
}
