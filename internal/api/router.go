package api

import (
	"github.com/go-chi/chi/v5"

	"github.com/calm-red-fox/aitrail/internal/api/middleware"
)

// setupRouter builds the chi router with all routes and middleware.
func (s *Server) setupRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestLogger(s.config.Verbose))
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Prometheus)

	r.Get("/health", s.healthHandler.Health)
	r.Get("/ready", s.healthHandler.Ready)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/activity", func(r chi.Router) {
			r.Post("/", s.handleLogActivity)
			r.Get("/", s.handleQueryActivity)
			r.Get("/analytics", s.handleActivityAnalytics)
			r.Get("/anomalies", s.handleDetectAnomalies)
			r.Get("/export", s.handleExportActivity)
			r.Get("/{id}", s.handleGetActivity)
		})

		r.Route("/alerts", func(r chi.Router) {
			r.Get("/", s.handleListAlerts)
			r.Get("/analytics", s.handleAlertAnalytics)
			r.Get("/aggregate", s.handleAggregateAlerts)
			r.Get("/{id}", s.handleGetAlert)
			r.Post("/{id}/acknowledge", s.handleAcknowledgeAlert)
			r.Post("/{id}/resolve", s.handleResolveAlert)
			r.Post("/{id}/snooze", s.handleSnoozeAlert)
		})

		r.Get("/integrity/check", s.handleIntegrityCheck)

		r.Route("/retention", func(r chi.Router) {
			r.Post("/run/{policy}", s.handleRunPolicy)
			r.Post("/compress", s.handleCompress)
			r.Get("/stats", s.handleStorageStats)
		})

		if s.deps.InApp != nil {
			r.Get("/notifications", s.handleRecentNotifications)
		}
	})

	return r
}
