package api

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (s *Server) handleIntegrityCheck(w http.ResponseWriter, r *http.Request) {
	// A full audit scans every record; give it more room than the
	// regular query timeout.
	report, err := s.deps.Auditor.RunCheck(r.Context())
	if err != nil {
		log.Printf("integrity check failed: %v", err)
		JSONError(w, FromErr(err))
		return
	}
	OK(w, report)
}

func (s *Server) handleRunPolicy(w http.ResponseWriter, r *http.Request) {
	if s.deps.Scheduler == nil {
		JSONError(w, NewNotFound("retention scheduling is not enabled"))
		return
	}

	policy, err := s.deps.Scheduler.Policy(chi.URLParam(r, "policy"))
	if err != nil {
		JSONError(w, FromErr(err))
		return
	}

	result, err := s.deps.Scheduler.RunPolicy(r.Context(), policy)
	if err != nil {
		log.Printf("manual policy run failed: %v", err)
		JSONError(w, FromErr(err))
		return
	}
	OK(w, result)
}

func (s *Server) handleCompress(w http.ResponseWriter, r *http.Request) {
	result, err := s.deps.Engine.CompressInPlace(r.Context())
	if err != nil {
		log.Printf("in-place compression failed: %v", err)
		JSONError(w, FromErr(err))
		return
	}
	OK(w, result)
}

func (s *Server) handleStorageStats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.queryContext(r)
	defer cancel()

	stats, err := s.deps.Engine.StorageStats(ctx)
	if err != nil {
		log.Printf("storage stats failed: %v", err)
		JSONError(w, FromErr(err))
		return
	}
	OK(w, stats)
}
