package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/calm-red-fox/aitrail/internal/models"
)

type sqlitePolicyRunRepo struct {
	db *sql.DB
}

func (r *sqlitePolicyRunRepo) Get(ctx context.Context, policyID string) (*models.PolicyRun, error) {
	var run models.PolicyRun
	var success int
	var lastErr sql.NullString

	err := r.db.QueryRowContext(ctx,
		"SELECT policy_id, last_run_at, last_success, last_error FROM policy_runs WHERE policy_id = ?",
		policyID,
	).Scan(&run.PolicyID, &run.LastRunAt, &success, &lastErr)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get policy run: %w", err)
	}

	run.LastSuccess = success == 1
	run.LastError = lastErr.String
	return &run, nil
}

func (r *sqlitePolicyRunRepo) Upsert(ctx context.Context, run *models.PolicyRun) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO policy_runs (policy_id, last_run_at, last_success, last_error)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(policy_id) DO UPDATE SET
			last_run_at = excluded.last_run_at,
			last_success = excluded.last_success,
			last_error = excluded.last_error
	`, run.PolicyID, run.LastRunAt, boolToInt(run.LastSuccess), nullString(run.LastError))
	if err != nil {
		return fmt.Errorf("upsert policy run: %w", err)
	}
	return nil
}
