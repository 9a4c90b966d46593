// Package storage provides persistence interfaces and implementations
// for activity records, alerts, and scheduler metadata.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/calm-red-fox/aitrail/internal/models"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicateID is returned when an insert collides with an existing id.
var ErrDuplicateID = errors.New("duplicate id")

// Store is the main interface for database operations.
type Store interface {
	// Open initializes the database connection.
	Open() error
	// Close closes the database connection.
	Close() error
	// Migrate runs database migrations.
	Migrate() error

	// Repository accessors
	Activity() ActivityRepository
	Alerts() AlertRepository
	PolicyRuns() PolicyRunRepository
}

// RecordPatch holds the mutable subset of an activity record. Only the
// retention engine's in-place compression pass uses it; nil fields are
// left untouched.
type RecordPatch struct {
	InputData      *string
	OutputData     *string
	InputEncoding  *models.PayloadEncoding
	OutputEncoding *models.PayloadEncoding
}

// ActivityRepository defines activity record persistence. Individual
// calls are atomic; no cross-call transactional isolation is assumed.
type ActivityRepository interface {
	// Insert persists a single record. Returns ErrDuplicateID when the
	// id already exists.
	Insert(ctx context.Context, rec *models.ActivityRecord) error

	// BulkInsert persists multiple records in one batch.
	BulkInsert(ctx context.Context, recs []*models.ActivityRecord) error

	// Get retrieves a record by id. Returns ErrNotFound when absent.
	Get(ctx context.Context, id string) (*models.ActivityRecord, error)

	// Query retrieves records matching the filter, newest first unless
	// the filter says otherwise.
	Query(ctx context.Context, filter *models.ActivityFilter) ([]*models.ActivityRecord, error)

	// Count returns the number of records matching the filter.
	Count(ctx context.Context, filter *models.ActivityFilter) (int64, error)

	// BulkDelete removes the records with the given ids and returns
	// how many were deleted.
	BulkDelete(ctx context.Context, ids []string) (int64, error)

	// Update applies a patch to a record. Returns ErrNotFound when the
	// id does not exist.
	Update(ctx context.Context, id string, patch *RecordPatch) error
}

// AlertRepository defines alert persistence.
type AlertRepository interface {
	Create(ctx context.Context, alert *models.Alert) error
	Get(ctx context.Context, id string) (*models.Alert, error)
	Update(ctx context.Context, alert *models.Alert) error
	ListActive(ctx context.Context, filter *models.AlertFilter) ([]*models.Alert, error)
	List(ctx context.Context, filter *models.AlertFilter) ([]*models.Alert, error)
	CountSince(ctx context.Context, alertType models.AlertType, modelName string, since time.Time) (int64, error)
}

// PolicyRunRepository tracks when retention policies last executed.
type PolicyRunRepository interface {
	Get(ctx context.Context, policyID string) (*models.PolicyRun, error)
	Upsert(ctx context.Context, run *models.PolicyRun) error
}
