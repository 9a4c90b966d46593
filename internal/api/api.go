// Package api provides the HTTP REST API server.
package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/calm-red-fox/aitrail/internal/activity"
	"github.com/calm-red-fox/aitrail/internal/alerts"
	"github.com/calm-red-fox/aitrail/internal/api/health"
	"github.com/calm-red-fox/aitrail/internal/integrity"
	"github.com/calm-red-fox/aitrail/internal/notify"
	"github.com/calm-red-fox/aitrail/internal/retention"
	"github.com/calm-red-fox/aitrail/internal/scheduler"
)

// Config contains HTTP API server configuration.
type Config struct {
	Address      string
	QueryTimeout time.Duration // timeout for storage-backed API calls
	MaxPageSize  int           // cap on per-request record listing
	Verbose      bool
}

// SetDefaults applies default values for missing configuration.
func (c *Config) SetDefaults() {
	if c.Address == "" {
		c.Address = ":8080"
	}
	if c.QueryTimeout == 0 {
		c.QueryTimeout = 10 * time.Second
	}
	if c.MaxPageSize == 0 {
		c.MaxPageSize = 1000
	}
}

// Deps are the domain services the API exposes.
type Deps struct {
	Logger    *activity.Logger
	Engine    *retention.Engine
	Auditor   *integrity.Auditor
	Alerts    *alerts.Manager
	Scheduler *scheduler.Scheduler
	InApp     *notify.InAppNotifier // nil disables GET /notifications
}

// Server is the HTTP API server.
type Server struct {
	config        *Config
	deps          Deps
	server        *http.Server
	healthHandler *health.Handler
}

// New creates a new API server.
func New(cfg *Config, deps Deps) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("activity logger is required")
	}
	if deps.Engine == nil {
		return nil, fmt.Errorf("retention engine is required")
	}
	if deps.Auditor == nil {
		return nil, fmt.Errorf("integrity auditor is required")
	}
	if deps.Alerts == nil {
		return nil, fmt.Errorf("alert manager is required")
	}

	cfg.SetDefaults()

	s := &Server{
		config:        cfg,
		deps:          deps,
		healthHandler: health.NewHandler(),
	}

	s.server = &http.Server{
		Addr:         cfg.Address,
		Handler:      s.setupRouter(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// Run starts the HTTP server and blocks until context is canceled.
func (s *Server) Run(ctx context.Context) error {
	errChan := make(chan error, 1)

	go func() {
		log.Printf("HTTP API listening on %s", s.config.Address)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Printf("shutting down HTTP API server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	case err := <-errChan:
		return err
	}
}

// Address returns the configured listen address.
func (s *Server) Address() string {
	return s.config.Address
}

// RegisterHealthChecker adds a health checker to the server.
func (s *Server) RegisterHealthChecker(c health.Checker) {
	s.healthHandler.RegisterChecker(c)
}

// queryContext bounds a storage-backed request.
func (s *Server) queryContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), s.config.QueryTimeout)
}
