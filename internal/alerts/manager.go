package alerts

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/calm-red-fox/aitrail/internal/clock"
	"github.com/calm-red-fox/aitrail/internal/metrics"
	"github.com/calm-red-fox/aitrail/internal/models"
	"github.com/calm-red-fox/aitrail/internal/notify"
	"github.com/calm-red-fox/aitrail/internal/storage"
)

// ManagerOptions configures alert aggregation.
type ManagerOptions struct {
	// AggregationWindow is the look-back window for suppression.
	AggregationWindow time.Duration
	// MaxAlertsPerWindow is how many alerts of the same (type, model)
	// may be created inside one window before suppression kicks in.
	MaxAlertsPerWindow int
}

// DefaultManagerOptions returns the default aggregation settings.
func DefaultManagerOptions() *ManagerOptions {
	return &ManagerOptions{
		AggregationWindow:  15 * time.Minute,
		MaxAlertsPerWindow: 3,
	}
}

// Manager owns the alert lifecycle: creation with aggregation
// suppression, notification dispatch, acknowledge/resolve/snooze
// transitions, and reporting.
type Manager struct {
	store      storage.AlertRepository
	clock      clock.Clock
	dispatcher *notify.Dispatcher
	opts       ManagerOptions

	// snoozed maps alert id to snooze expiry. The scheduler sweeps it;
	// entries are authoritative for reactivation, the stored
	// SnoozedUntil field is for display.
	mu      sync.Mutex
	snoozed map[string]time.Time
}

// NewManager creates an alert manager. dispatcher may be nil, in which
// case alerts are persisted but never notified.
func NewManager(store storage.AlertRepository, clk clock.Clock, dispatcher *notify.Dispatcher, opts *ManagerOptions) *Manager {
	if opts == nil {
		opts = DefaultManagerOptions()
	}
	return &Manager{
		store:      store,
		clock:      clk,
		dispatcher: dispatcher,
		opts:       *opts,
		snoozed:    make(map[string]time.Time),
	}
}

// CreateParams are the caller-supplied fields for a new alert.
type CreateParams struct {
	Type               models.AlertType
	Severity           models.Severity
	Title              string
	Message            string
	ModelName          string
	AffectedOperations []string
	Metadata           map[string]string
	Channels           []string

	// AggregationWindow and MaxAlertsPerWindow override the manager's
	// suppression settings when positive. Rules carry their own window
	// and cap through these.
	AggregationWindow  time.Duration
	MaxAlertsPerWindow int
}

// ErrSuppressed is returned by Create when the aggregation window for
// the alert's (type, model) pair is already saturated.
var ErrSuppressed = fmt.Errorf("alert suppressed by aggregation window")

// Create persists a new active alert and dispatches notifications.
// When the aggregation window already holds the maximum number of
// alerts for the same (type, model) pair, nothing is persisted and
// ErrSuppressed is returned.
func (m *Manager) Create(ctx context.Context, params *CreateParams) (string, error) {
	if params == nil {
		return "", models.Validationf("", "params are required")
	}
	if params.Type == "" {
		return "", models.Validationf("type", "is required")
	}
	if params.Title == "" {
		return "", models.Validationf("title", "is required")
	}
	if params.Severity == "" {
		params.Severity = models.SeverityMedium
	}

	now := m.clock.Now()

	window := m.opts.AggregationWindow
	if params.AggregationWindow > 0 {
		window = params.AggregationWindow
	}
	maxPerWindow := m.opts.MaxAlertsPerWindow
	if params.MaxAlertsPerWindow > 0 {
		maxPerWindow = params.MaxAlertsPerWindow
	}

	windowStart := now.Add(-window)
	recent, err := m.store.CountSince(ctx, params.Type, params.ModelName, windowStart)
	if err != nil {
		return "", fmt.Errorf("check aggregation window: %w", err)
	}
	if recent >= int64(maxPerWindow) {
		metrics.AlertsSuppressed.Inc()
		return "", ErrSuppressed
	}

	alert := models.NewAlert(params.Type, params.Severity, params.Title, params.Message)
	alert.ID = uuid.NewString()
	alert.ModelName = params.ModelName
	alert.AffectedOperations = params.AffectedOperations
	alert.NotificationChannels = params.Channels
	alert.CreatedAt = now
	for k, v := range params.Metadata {
		alert.Metadata[k] = v
	}

	if err := m.store.Create(ctx, alert); err != nil {
		return "", fmt.Errorf("persist alert: %w", err)
	}
	metrics.AlertsCreated.WithLabelValues(string(alert.Severity)).Inc()

	m.notifyAlert(ctx, alert)
	return alert.ID, nil
}

// notifyAlert dispatches the alert and records delivery accounting.
// Channel failures are logged, never propagated: an alert that failed
// to notify is still an alert.
func (m *Manager) notifyAlert(ctx context.Context, alert *models.Alert) {
	if m.dispatcher == nil || len(alert.NotificationChannels) == 0 {
		return
	}

	payload := notify.PayloadFromAlert(alert)
	sent, errs := m.dispatcher.Dispatch(ctx, alert.NotificationChannels, payload)
	for _, err := range errs {
		log.Printf("warning: alert %s notification failed: %v", alert.ID, err)
	}
	if sent == 0 {
		return
	}

	alert.NotificationsSent += sent
	if err := m.store.Update(ctx, alert); err != nil {
		log.Printf("warning: alert %s delivery accounting failed: %v", alert.ID, err)
	}
}

// Acknowledge marks an active or snoozed alert as acknowledged.
func (m *Manager) Acknowledge(ctx context.Context, id, by string) error {
	alert, err := m.store.Get(ctx, id)
	if err != nil {
		return err
	}
	switch alert.Status {
	case models.AlertResolved:
		return models.Validationf("status", "alert %s is already resolved", id)
	case models.AlertAcknowledged:
		return models.Validationf("status", "alert %s is already acknowledged", id)
	}

	now := m.clock.Now()
	alert.Status = models.AlertAcknowledged
	if alert.AcknowledgedAt == nil {
		alert.AcknowledgedAt = &now
		alert.AcknowledgedBy = by
	}
	m.forgetSnooze(id)
	return m.store.Update(ctx, alert)
}

// Resolve marks an alert as resolved. Resolving an already resolved
// alert is an error; ResolvedAt is set exactly once.
func (m *Manager) Resolve(ctx context.Context, id, by, notes string) error {
	alert, err := m.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if alert.Status == models.AlertResolved {
		return models.Validationf("status", "alert %s is already resolved", id)
	}

	now := m.clock.Now()
	alert.Status = models.AlertResolved
	if alert.ResolvedAt == nil {
		alert.ResolvedAt = &now
		alert.ResolvedBy = by
		alert.ResolutionNotes = notes
	}
	m.forgetSnooze(id)
	return m.store.Update(ctx, alert)
}

// Snooze silences an active alert for the given duration. The expiry
// is registered for the scheduler's sweep; SweepSnoozed reactivates
// expired entries.
func (m *Manager) Snooze(ctx context.Context, id, by string, durationMinutes int) error {
	if durationMinutes <= 0 {
		return models.Validationf("duration_minutes", "must be > 0")
	}

	alert, err := m.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if alert.Status != models.AlertActive {
		return models.Validationf("status", "only active alerts can be snoozed, alert %s is %s", id, alert.Status)
	}

	until := m.clock.Now().Add(time.Duration(durationMinutes) * time.Minute)
	alert.Status = models.AlertSnoozed
	alert.SnoozedUntil = &until
	alert.SnoozedBy = by
	if err := m.store.Update(ctx, alert); err != nil {
		return err
	}

	m.mu.Lock()
	m.snoozed[id] = until
	m.mu.Unlock()
	return nil
}

// SweepSnoozed reactivates snoozed alerts whose expiry has passed and
// re-sends their notifications. The scheduler calls this periodically.
func (m *Manager) SweepSnoozed(ctx context.Context) (int, error) {
	now := m.clock.Now()

	m.mu.Lock()
	var due []string
	for id, until := range m.snoozed {
		if !until.After(now) {
			due = append(due, id)
		}
	}
	for _, id := range due {
		delete(m.snoozed, id)
	}
	m.mu.Unlock()

	var reactivated int
	for _, id := range due {
		alert, err := m.store.Get(ctx, id)
		if err != nil {
			log.Printf("warning: snooze sweep lost alert %s: %v", id, err)
			continue
		}
		// Acknowledged or resolved while snoozing registry lagged.
		if alert.Status != models.AlertSnoozed {
			continue
		}
		alert.Status = models.AlertActive
		alert.SnoozedUntil = nil
		alert.EscalationLevel++
		if err := m.store.Update(ctx, alert); err != nil {
			return reactivated, fmt.Errorf("reactivate alert %s: %w", id, err)
		}
		reactivated++
		m.notifyAlert(ctx, alert)
	}
	return reactivated, nil
}

// SnoozedCount returns how many alerts are currently registered as
// snoozed.
func (m *Manager) SnoozedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.snoozed)
}

func (m *Manager) forgetSnooze(id string) {
	m.mu.Lock()
	delete(m.snoozed, id)
	m.mu.Unlock()
}

// Get returns an alert by id.
func (m *Manager) Get(ctx context.Context, id string) (*models.Alert, error) {
	return m.store.Get(ctx, id)
}

// ListActive returns active alerts, critical first, then most recent.
func (m *Manager) ListActive(ctx context.Context, filter *models.AlertFilter) ([]*models.Alert, error) {
	return m.store.ListActive(ctx, filter)
}

// History returns alerts in any state matching the filter.
func (m *Manager) History(ctx context.Context, filter *models.AlertFilter) ([]*models.Alert, error) {
	return m.store.List(ctx, filter)
}

// Analytics summarizes alerts matching the filter.
func (m *Manager) Analytics(ctx context.Context, filter *models.AlertFilter) (*models.AlertAnalytics, error) {
	alerts, err := m.store.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	result := models.NewAlertAnalytics()
	var resolutionSum float64
	var resolutionCount int64
	daily := make(map[string]*models.DailyAlertTrend)

	for _, alert := range alerts {
		result.TotalAlerts++
		result.CountsByType[alert.Type]++
		result.CountsBySeverity[alert.Severity]++
		if alert.ModelName != "" {
			result.CountsByModel[alert.ModelName]++
		}

		switch alert.Status {
		case models.AlertActive, models.AlertSnoozed:
			result.ActiveAlerts++
		case models.AlertResolved:
			result.ResolvedAlerts++
		}

		if alert.ResolvedAt != nil {
			resolutionSum += alert.ResolvedAt.Sub(alert.CreatedAt).Minutes()
			resolutionCount++
		}

		day := alert.CreatedAt.UTC().Format("2006-01-02")
		trend := daily[day]
		if trend == nil {
			trend = &models.DailyAlertTrend{Date: day}
			daily[day] = trend
		}
		trend.Created++
		if alert.ResolvedAt != nil {
			resolvedDay := alert.ResolvedAt.UTC().Format("2006-01-02")
			rt := daily[resolvedDay]
			if rt == nil {
				rt = &models.DailyAlertTrend{Date: resolvedDay}
				daily[resolvedDay] = rt
			}
			rt.Resolved++
		}
	}

	if resolutionCount > 0 {
		result.MeanResolutionMinutes = resolutionSum / float64(resolutionCount)
	}

	for _, trend := range daily {
		result.DailyTrend = append(result.DailyTrend, *trend)
	}
	sort.Slice(result.DailyTrend, func(i, j int) bool {
		return result.DailyTrend[i].Date < result.DailyTrend[j].Date
	})

	return result, nil
}

// Aggregate groups recent alerts by (type, severity) with occurrence
// bounds and the distinct models involved.
func (m *Manager) Aggregate(ctx context.Context, lookbackHours int) ([]models.AlertAggregation, error) {
	if lookbackHours <= 0 {
		lookbackHours = 24
	}
	now := m.clock.Now()
	alerts, err := m.store.List(ctx, &models.AlertFilter{
		StartTime: now.Add(-time.Duration(lookbackHours) * time.Hour),
		EndTime:   now,
	})
	if err != nil {
		return nil, err
	}

	type key struct {
		t models.AlertType
		s models.Severity
	}
	groups := make(map[key]*models.AlertAggregation)
	groupModels := make(map[key]map[string]bool)

	for _, alert := range alerts {
		k := key{alert.Type, alert.Severity}
		agg := groups[k]
		if agg == nil {
			agg = &models.AlertAggregation{
				Type:            alert.Type,
				Severity:        alert.Severity,
				FirstOccurrence: alert.CreatedAt,
				LastOccurrence:  alert.CreatedAt,
			}
			groups[k] = agg
			groupModels[k] = make(map[string]bool)
		}
		agg.Count++
		if alert.CreatedAt.Before(agg.FirstOccurrence) {
			agg.FirstOccurrence = alert.CreatedAt
		}
		if alert.CreatedAt.After(agg.LastOccurrence) {
			agg.LastOccurrence = alert.CreatedAt
		}
		if alert.ModelName != "" && !groupModels[k][alert.ModelName] {
			groupModels[k][alert.ModelName] = true
			agg.AffectedModels = append(agg.AffectedModels, alert.ModelName)
		}
	}

	out := make([]models.AlertAggregation, 0, len(groups))
	for _, agg := range groups {
		out = append(out, *agg)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Severity.Rank() > out[j].Severity.Rank()
	})
	return out, nil
}
