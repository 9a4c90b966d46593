// Package scheduler drives the periodic background work: retention
// policy runs on their configured cadence, integrity audits, anomaly
// sweeps, and snooze-expiry sweeps. All loops take their time from an
// injected clock and stop on context cancellation.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/calm-red-fox/aitrail/internal/activity"
	"github.com/calm-red-fox/aitrail/internal/alerts"
	"github.com/calm-red-fox/aitrail/internal/clock"
	"github.com/calm-red-fox/aitrail/internal/integrity"
	"github.com/calm-red-fox/aitrail/internal/models"
	"github.com/calm-red-fox/aitrail/internal/retention"
	"github.com/calm-red-fox/aitrail/internal/storage"
)

const (
	defaultIntegrityInterval   = 6 * time.Hour
	defaultSnoozeSweepInterval = time.Minute
	defaultAnomalyInterval     = time.Hour
	defaultAnomalyLookback     = 24
)

// ErrPolicyBusy is returned when a policy run is requested while a
// previous run of the same policy is still in flight.
var ErrPolicyBusy = errors.New("policy run already in flight")

// ErrUnknownPolicy is returned when a run is requested for a policy id
// the scheduler does not know.
var ErrUnknownPolicy = errors.New("unknown retention policy")

// Config contains scheduler configuration.
type Config struct {
	// Policies are the retention policies to run on their schedules.
	Policies []*models.RetentionPolicy

	// IntegrityInterval is how often the integrity audit runs
	// (default: 6h).
	IntegrityInterval time.Duration

	// SnoozeSweepInterval is how often snoozed alerts are checked for
	// expiry (default: 1m).
	SnoozeSweepInterval time.Duration

	// AnomalySweepInterval is how often the anomaly sweep runs
	// (default: 1h).
	AnomalySweepInterval time.Duration

	// AnomalyLookbackHours is the sweep window (default: 24).
	AnomalyLookbackHours int

	// AlertChannels are the notification channels for alerts the
	// scheduler raises itself (integrity findings, swept anomalies).
	AlertChannels []string
}

func (c *Config) setDefaults() {
	if c.IntegrityInterval <= 0 {
		c.IntegrityInterval = defaultIntegrityInterval
	}
	if c.SnoozeSweepInterval <= 0 {
		c.SnoozeSweepInterval = defaultSnoozeSweepInterval
	}
	if c.AnomalySweepInterval <= 0 {
		c.AnomalySweepInterval = defaultAnomalyInterval
	}
	if c.AnomalyLookbackHours <= 0 {
		c.AnomalyLookbackHours = defaultAnomalyLookback
	}
}

// Scheduler runs the background loops. Any of auditor, detector, and
// manager may be nil; the corresponding loop is skipped.
type Scheduler struct {
	engine   *retention.Engine
	auditor  *integrity.Auditor
	detector *activity.Detector
	manager  *alerts.Manager
	runs     storage.PolicyRunRepository
	clock    clock.Clock
	config   Config

	// inFlight enforces at most one run per policy id at a time.
	mu       sync.Mutex
	inFlight map[string]bool
}

// New creates a scheduler.
func New(engine *retention.Engine, auditor *integrity.Auditor, detector *activity.Detector, manager *alerts.Manager, runs storage.PolicyRunRepository, clk clock.Clock, cfg Config) *Scheduler {
	cfg.setDefaults()
	return &Scheduler{
		engine:   engine,
		auditor:  auditor,
		detector: detector,
		manager:  manager,
		runs:     runs,
		clock:    clk,
		config:   cfg,
		inFlight: make(map[string]bool),
	}
}

// Run starts all loops and blocks until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	for _, policy := range s.config.Policies {
		if !policy.Enabled {
			continue
		}
		wg.Add(1)
		go func(p *models.RetentionPolicy) {
			defer wg.Done()
			s.policyLoop(ctx, p)
		}(policy)
	}

	if s.auditor != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.every(ctx, s.config.IntegrityInterval, s.runIntegrityCheck)
		}()
	}

	if s.detector != nil && s.manager != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.every(ctx, s.config.AnomalySweepInterval, s.runAnomalySweep)
		}()
	}

	if s.manager != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.every(ctx, s.config.SnoozeSweepInterval, s.sweepSnoozed)
		}()
	}

	wg.Wait()
	return ctx.Err()
}

// Policy returns the configured policy with the given id.
func (s *Scheduler) Policy(id string) (*models.RetentionPolicy, error) {
	for _, p := range s.config.Policies {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownPolicy, id)
}

// policyLoop runs one policy on its schedule. A persisted last-run
// older than one interval means a run was missed while the daemon was
// down; it executes immediately on startup.
func (s *Scheduler) policyLoop(ctx context.Context, policy *models.RetentionPolicy) {
	interval := policy.Schedule.Interval()
	next := s.nextRun(ctx, policy.ID, interval)

	for {
		wait := next.Sub(s.clock.Now())
		if wait < 0 {
			wait = 0
		}
		timer := s.clock.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C():
		}

		if _, err := s.RunPolicy(ctx, policy); err != nil && !errors.Is(err, ErrPolicyBusy) {
			log.Printf("warning: retention policy %s run failed: %v", policy.ID, err)
		}
		next = s.clock.Now().Add(interval)
	}
}

// nextRun computes when the policy should run next from its persisted
// last-run record. No record means the policy has never run.
func (s *Scheduler) nextRun(ctx context.Context, policyID string, interval time.Duration) time.Time {
	now := s.clock.Now()

	run, err := s.runs.Get(ctx, policyID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			log.Printf("warning: last-run lookup for policy %s failed: %v", policyID, err)
		}
		return now
	}

	next := run.LastRunAt.Add(interval)
	if next.Before(now) {
		return now
	}
	return next
}

// RunPolicy executes a policy immediately, outside its schedule. The
// manual trigger and the policy loop share the in-flight guard, so a
// policy never runs twice concurrently.
func (s *Scheduler) RunPolicy(ctx context.Context, policy *models.RetentionPolicy) (*models.ArchivalResult, error) {
	s.mu.Lock()
	if s.inFlight[policy.ID] {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrPolicyBusy, policy.ID)
	}
	s.inFlight[policy.ID] = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.inFlight, policy.ID)
		s.mu.Unlock()
	}()

	result, err := s.engine.ExecutePolicy(ctx, policy)
	s.recordRun(ctx, policy.ID, result, err)
	if err != nil {
		return result, err
	}

	log.Printf("retention policy %s: archived %d, deleted %d of %d expired records",
		policy.ID, result.ArchivedLogs, result.DeletedLogs, result.TotalLogs)
	return result, nil
}

func (s *Scheduler) recordRun(ctx context.Context, policyID string, result *models.ArchivalResult, runErr error) {
	run := &models.PolicyRun{
		PolicyID:    policyID,
		LastRunAt:   s.clock.Now(),
		LastSuccess: runErr == nil,
	}
	if runErr != nil {
		run.LastError = runErr.Error()
	} else if result != nil && len(result.Errors) > 0 {
		run.LastSuccess = false
		run.LastError = strings.Join(result.Errors, "; ")
	}
	if err := s.runs.Upsert(ctx, run); err != nil {
		log.Printf("warning: persisting last run of policy %s failed: %v", policyID, err)
	}
}

func (s *Scheduler) runIntegrityCheck(ctx context.Context) {
	report, err := s.auditor.RunCheck(ctx)
	if err != nil {
		log.Printf("warning: integrity check failed: %v", err)
		return
	}
	if report.Healthy() {
		return
	}

	log.Printf("integrity check: %d issues in %d records (corrupted %d, missing fields %d, bad timestamps %d, duplicate ids %d)",
		len(report.Issues), report.TotalRecords, report.CorruptedCount,
		report.MissingFieldsCount, report.InvalidTimestampCount, report.DuplicateIDCount)

	if s.manager == nil {
		return
	}
	_, err = s.manager.Create(ctx, &alerts.CreateParams{
		Type:     models.AlertCustom,
		Severity: models.SeverityHigh,
		Title:    "log store integrity issues detected",
		Message: fmt.Sprintf("integrity audit found %d issues across %d records",
			len(report.Issues), report.TotalRecords),
		Channels: s.config.AlertChannels,
		Metadata: map[string]string{
			"corrupted":          fmt.Sprintf("%d", report.CorruptedCount),
			"missing_fields":     fmt.Sprintf("%d", report.MissingFieldsCount),
			"invalid_timestamps": fmt.Sprintf("%d", report.InvalidTimestampCount),
			"duplicate_ids":      fmt.Sprintf("%d", report.DuplicateIDCount),
		},
	})
	if err != nil && !errors.Is(err, alerts.ErrSuppressed) {
		log.Printf("warning: integrity alert failed: %v", err)
	}
}

func (s *Scheduler) runAnomalySweep(ctx context.Context) {
	anomalies, err := s.detector.Sweep(ctx, s.config.AnomalyLookbackHours)
	if err != nil {
		log.Printf("warning: anomaly sweep failed: %v", err)
		return
	}

	for _, anomaly := range anomalies {
		params := alerts.AnomalyParams(anomaly)
		params.Channels = s.config.AlertChannels
		if _, err := s.manager.Create(ctx, params); err != nil && !errors.Is(err, alerts.ErrSuppressed) {
			log.Printf("warning: anomaly alert failed: %v", err)
		}
	}
}

func (s *Scheduler) sweepSnoozed(ctx context.Context) {
	n, err := s.manager.SweepSnoozed(ctx)
	if err != nil {
		log.Printf("warning: snooze sweep failed: %v", err)
		return
	}
	if n > 0 {
		log.Printf("snooze sweep: reactivated %d alerts", n)
	}
}

// every runs fn each interval until the context is cancelled.
func (s *Scheduler) every(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	for {
		timer := s.clock.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C():
		}
		fn(ctx)
	}
}
