package api

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/calm-red-fox/aitrail/internal/models"
)

// alertFilter parses the shared alert query parameters.
func alertFilter(r *http.Request) (*models.AlertFilter, *Error) {
	q := r.URL.Query()
	filter := &models.AlertFilter{
		Type:      models.AlertType(q.Get("type")),
		Severity:  models.Severity(q.Get("severity")),
		ModelName: q.Get("model"),
	}

	var apiErr *Error
	if filter.StartTime, apiErr = timeParam(r, "start"); apiErr != nil {
		return nil, apiErr
	}
	if filter.EndTime, apiErr = timeParam(r, "end"); apiErr != nil {
		return nil, apiErr
	}
	return filter, nil
}

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	filter, apiErr := alertFilter(r)
	if apiErr != nil {
		JSONError(w, apiErr)
		return
	}

	ctx, cancel := s.queryContext(r)
	defer cancel()

	var (
		alerts []*models.Alert
		err    error
	)
	if r.URL.Query().Get("history") == "true" {
		alerts, err = s.deps.Alerts.History(ctx, filter)
	} else {
		alerts, err = s.deps.Alerts.ListActive(ctx, filter)
	}
	if err != nil {
		log.Printf("alert list failed: %v", err)
		JSONError(w, FromErr(err))
		return
	}
	if alerts == nil {
		alerts = []*models.Alert{}
	}
	OK(w, alerts)
}

func (s *Server) handleGetAlert(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.queryContext(r)
	defer cancel()

	alert, err := s.deps.Alerts.Get(ctx, chi.URLParam(r, "id"))
	if err != nil {
		JSONError(w, FromErr(err))
		return
	}
	OK(w, alert)
}

// alertActionRequest is the shared body for alert state transitions.
type alertActionRequest struct {
	By              string `json:"by"`
	Notes           string `json:"notes,omitempty"`
	DurationMinutes int    `json:"duration_minutes,omitempty"`
}

func decodeAlertAction(r *http.Request) (*alertActionRequest, *Error) {
	var req alertActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, NewBadRequest("invalid JSON body")
	}
	if req.By == "" {
		return nil, NewValidationError("by is required")
	}
	return &req, nil
}

func (s *Server) handleAcknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	req, apiErr := decodeAlertAction(r)
	if apiErr != nil {
		JSONError(w, apiErr)
		return
	}

	ctx, cancel := s.queryContext(r)
	defer cancel()

	if err := s.deps.Alerts.Acknowledge(ctx, chi.URLParam(r, "id"), req.By); err != nil {
		JSONError(w, FromErr(err))
		return
	}
	NoContent(w)
}

func (s *Server) handleResolveAlert(w http.ResponseWriter, r *http.Request) {
	req, apiErr := decodeAlertAction(r)
	if apiErr != nil {
		JSONError(w, apiErr)
		return
	}

	ctx, cancel := s.queryContext(r)
	defer cancel()

	if err := s.deps.Alerts.Resolve(ctx, chi.URLParam(r, "id"), req.By, req.Notes); err != nil {
		JSONError(w, FromErr(err))
		return
	}
	NoContent(w)
}

func (s *Server) handleSnoozeAlert(w http.ResponseWriter, r *http.Request) {
	req, apiErr := decodeAlertAction(r)
	if apiErr != nil {
		JSONError(w, apiErr)
		return
	}
	if req.DurationMinutes <= 0 {
		JSONError(w, NewValidationError("duration_minutes must be > 0"))
		return
	}

	ctx, cancel := s.queryContext(r)
	defer cancel()

	if err := s.deps.Alerts.Snooze(ctx, chi.URLParam(r, "id"), req.By, req.DurationMinutes); err != nil {
		JSONError(w, FromErr(err))
		return
	}
	NoContent(w)
}

func (s *Server) handleAlertAnalytics(w http.ResponseWriter, r *http.Request) {
	filter, apiErr := alertFilter(r)
	if apiErr != nil {
		JSONError(w, apiErr)
		return
	}

	ctx, cancel := s.queryContext(r)
	defer cancel()

	analytics, err := s.deps.Alerts.Analytics(ctx, filter)
	if err != nil {
		log.Printf("alert analytics failed: %v", err)
		JSONError(w, FromErr(err))
		return
	}
	OK(w, analytics)
}

func (s *Server) handleAggregateAlerts(w http.ResponseWriter, r *http.Request) {
	hours, apiErr := intParam(r, "hours", 24)
	if apiErr != nil {
		JSONError(w, apiErr)
		return
	}

	ctx, cancel := s.queryContext(r)
	defer cancel()

	groups, err := s.deps.Alerts.Aggregate(ctx, hours)
	if err != nil {
		log.Printf("alert aggregation failed: %v", err)
		JSONError(w, FromErr(err))
		return
	}
	if groups == nil {
		groups = []models.AlertAggregation{}
	}
	OK(w, groups)
}

func (s *Server) handleRecentNotifications(w http.ResponseWriter, r *http.Request) {
	limit, apiErr := intParam(r, "limit", 20)
	if apiErr != nil {
		JSONError(w, apiErr)
		return
	}
	OK(w, s.deps.InApp.Recent(limit))
}
