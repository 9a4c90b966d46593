package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/calm-red-fox/aitrail/internal/models"
)

// MemoryStore is an in-memory Store implementation used in tests and as
// a fallback backend. It mirrors the durability model of the real
// stores: individual calls are atomic, nothing more.
type MemoryStore struct {
	activity   *memActivityRepo
	alerts     *memAlertRepo
	policyRuns *memPolicyRunRepo
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		activity:   &memActivityRepo{},
		alerts:     &memAlertRepo{alerts: make(map[string]*models.Alert)},
		policyRuns: &memPolicyRunRepo{runs: make(map[string]*models.PolicyRun)},
	}
}

func (s *MemoryStore) Open() error    { return nil }
func (s *MemoryStore) Close() error   { return nil }
func (s *MemoryStore) Migrate() error { return nil }

func (s *MemoryStore) Activity() ActivityRepository    { return s.activity }
func (s *MemoryStore) Alerts() AlertRepository         { return s.alerts }
func (s *MemoryStore) PolicyRuns() PolicyRunRepository { return s.policyRuns }

// FailNextBulkDelete makes the next BulkDelete call fail. Test hook.
func (s *MemoryStore) FailNextBulkDelete(err error) {
	s.activity.mu.Lock()
	defer s.activity.mu.Unlock()
	s.activity.failDelete = err
}

type memActivityRepo struct {
	mu         sync.RWMutex
	records    []*models.ActivityRecord
	failDelete error
}

func (r *memActivityRepo) Insert(ctx context.Context, rec *models.ActivityRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.records {
		if existing.ID == rec.ID {
			return fmt.Errorf("insert record %s: %w", rec.ID, ErrDuplicateID)
		}
	}
	c := *rec
	r.records = append(r.records, &c)
	return nil
}

// BulkInsert appends without checking for duplicates, like a bulk load
// into a store without cross-call isolation. Callers that need
// deduplication (the archive importer) do it themselves; the integrity
// auditor exists to catch what slips through.
func (r *memActivityRepo) BulkInsert(ctx context.Context, recs []*models.ActivityRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, rec := range recs {
		c := *rec
		r.records = append(r.records, &c)
	}
	return nil
}

func (r *memActivityRepo) Get(ctx context.Context, id string) (*models.ActivityRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, rec := range r.records {
		if rec.ID == id {
			c := *rec
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

func (r *memActivityRepo) Query(ctx context.Context, filter *models.ActivityFilter) ([]*models.ActivityRecord, error) {
	r.mu.RLock()
	var matched []*models.ActivityRecord
	for _, rec := range r.records {
		if matchesActivityFilter(rec, filter) {
			c := *rec
			matched = append(matched, &c)
		}
	}
	r.mu.RUnlock()

	asc := filter != nil && filter.OrderAsc
	sort.SliceStable(matched, func(i, j int) bool {
		if asc {
			return matched[i].Timestamp.Before(matched[j].Timestamp)
		}
		return matched[i].Timestamp.After(matched[j].Timestamp)
	})

	limit := DefaultQueryLimit
	offset := 0
	if filter != nil {
		if filter.Limit > 0 {
			limit = filter.Limit
		}
		if filter.Offset > 0 {
			offset = filter.Offset
		}
	}
	if offset >= len(matched) {
		return nil, nil
	}
	matched = matched[offset:]
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (r *memActivityRepo) Count(ctx context.Context, filter *models.ActivityFilter) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var count int64
	for _, rec := range r.records {
		if matchesActivityFilter(rec, filter) {
			count++
		}
	}
	return count, nil
}

func (r *memActivityRepo) BulkDelete(ctx context.Context, ids []string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failDelete != nil {
		err := r.failDelete
		r.failDelete = nil
		return 0, err
	}

	idSet := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		idSet[id] = struct{}{}
	}

	var deleted int64
	kept := r.records[:0]
	for _, rec := range r.records {
		if _, ok := idSet[rec.ID]; ok {
			deleted++
			continue
		}
		kept = append(kept, rec)
	}
	r.records = kept
	return deleted, nil
}

func (r *memActivityRepo) Update(ctx context.Context, id string, patch *RecordPatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, rec := range r.records {
		if rec.ID != id {
			continue
		}
		if patch.InputData != nil {
			rec.InputData = *patch.InputData
		}
		if patch.OutputData != nil {
			rec.OutputData = *patch.OutputData
		}
		if patch.InputEncoding != nil {
			rec.InputEncoding = *patch.InputEncoding
		}
		if patch.OutputEncoding != nil {
			rec.OutputEncoding = *patch.OutputEncoding
		}
		return nil
	}
	return ErrNotFound
}

func matchesActivityFilter(rec *models.ActivityRecord, filter *models.ActivityFilter) bool {
	if filter == nil {
		return true
	}
	if !filter.StartTime.IsZero() && rec.Timestamp.Before(filter.StartTime) {
		return false
	}
	if !filter.EndTime.IsZero() && rec.Timestamp.After(filter.EndTime) {
		return false
	}
	if filter.UserID != "" && rec.UserID != filter.UserID {
		return false
	}
	if filter.ModelName != "" && rec.ModelName != filter.ModelName {
		return false
	}
	if filter.OperationType != "" && rec.OperationType != filter.OperationType {
		return false
	}
	if filter.Status != "" && rec.Status != filter.Status {
		return false
	}
	if filter.EntityType != "" && rec.EntityType != filter.EntityType {
		return false
	}
	if filter.EntityID != "" && rec.EntityID != filter.EntityID {
		return false
	}
	if filter.MinConfidence != nil && (rec.ConfidenceScore == nil || *rec.ConfidenceScore < *filter.MinConfidence) {
		return false
	}
	if filter.MaxConfidence != nil && (rec.ConfidenceScore == nil || *rec.ConfidenceScore > *filter.MaxConfidence) {
		return false
	}
	return true
}

type memAlertRepo struct {
	mu     sync.RWMutex
	alerts map[string]*models.Alert
	order  []string
}

func (r *memAlertRepo) Create(ctx context.Context, alert *models.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.alerts[alert.ID]; ok {
		return fmt.Errorf("insert alert %s: %w", alert.ID, ErrDuplicateID)
	}
	c := cloneAlert(alert)
	r.alerts[alert.ID] = c
	r.order = append(r.order, alert.ID)
	return nil
}

func (r *memAlertRepo) Get(ctx context.Context, id string) (*models.Alert, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	alert, ok := r.alerts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneAlert(alert), nil
}

func (r *memAlertRepo) Update(ctx context.Context, alert *models.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.alerts[alert.ID]; !ok {
		return ErrNotFound
	}
	r.alerts[alert.ID] = cloneAlert(alert)
	return nil
}

func (r *memAlertRepo) ListActive(ctx context.Context, filter *models.AlertFilter) ([]*models.Alert, error) {
	f := models.AlertFilter{}
	if filter != nil {
		f = *filter
	}
	f.Status = models.AlertActive

	alerts, err := r.List(ctx, &f)
	if err != nil {
		return nil, err
	}
	sortAlertsBySeverity(alerts)
	return alerts, nil
}

func (r *memAlertRepo) List(ctx context.Context, filter *models.AlertFilter) ([]*models.Alert, error) {
	r.mu.RLock()
	var matched []*models.Alert
	for _, id := range r.order {
		alert := r.alerts[id]
		if matchesAlertFilter(alert, filter) {
			matched = append(matched, cloneAlert(alert))
		}
	}
	r.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	limit := DefaultQueryLimit
	offset := 0
	if filter != nil {
		if filter.Limit > 0 {
			limit = filter.Limit
		}
		if filter.Offset > 0 {
			offset = filter.Offset
		}
	}
	if offset >= len(matched) {
		return nil, nil
	}
	matched = matched[offset:]
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (r *memAlertRepo) CountSince(ctx context.Context, alertType models.AlertType, modelName string, since time.Time) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var count int64
	for _, alert := range r.alerts {
		if alert.Type == alertType && alert.ModelName == modelName && !alert.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func matchesAlertFilter(alert *models.Alert, filter *models.AlertFilter) bool {
	if filter == nil {
		return true
	}
	if !filter.StartTime.IsZero() && alert.CreatedAt.Before(filter.StartTime) {
		return false
	}
	if !filter.EndTime.IsZero() && alert.CreatedAt.After(filter.EndTime) {
		return false
	}
	if filter.Type != "" && alert.Type != filter.Type {
		return false
	}
	if filter.Severity != "" && alert.Severity != filter.Severity {
		return false
	}
	if filter.Status != "" && alert.Status != filter.Status {
		return false
	}
	if filter.ModelName != "" && !strings.EqualFold(alert.ModelName, filter.ModelName) {
		return false
	}
	return true
}

func cloneAlert(a *models.Alert) *models.Alert {
	c := *a
	c.AffectedOperations = append([]string(nil), a.AffectedOperations...)
	c.NotificationChannels = append([]string(nil), a.NotificationChannels...)
	if a.Metadata != nil {
		c.Metadata = make(map[string]string, len(a.Metadata))
		for k, v := range a.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

type memPolicyRunRepo struct {
	mu   sync.RWMutex
	runs map[string]*models.PolicyRun
}

func (r *memPolicyRunRepo) Get(ctx context.Context, policyID string) (*models.PolicyRun, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	run, ok := r.runs[policyID]
	if !ok {
		return nil, ErrNotFound
	}
	c := *run
	return &c, nil
}

func (r *memPolicyRunRepo) Upsert(ctx context.Context, run *models.PolicyRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := *run
	r.runs[run.PolicyID] = &c
	return nil
}
