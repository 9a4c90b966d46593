package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// Migration represents a database migration.
type Migration struct {
	Version int
	Name    string
	Up      string
}

// migrations holds all database migrations in order.
var migrations = []Migration{
	{
		Version: 1,
		Name:    "initial_schema",
		Up: `
			-- Activity records table
			CREATE TABLE IF NOT EXISTS activity_records (
				id TEXT PRIMARY KEY,
				timestamp DATETIME NOT NULL,
				user_id TEXT NOT NULL,
				model_name TEXT NOT NULL,
				model_version TEXT,
				operation_type TEXT NOT NULL,
				operation_description TEXT,
				entity_type TEXT,
				entity_id TEXT,
				input_data TEXT NOT NULL DEFAULT '',
				output_data TEXT NOT NULL DEFAULT '',
				input_encoding TEXT NOT NULL DEFAULT '',
				output_encoding TEXT NOT NULL DEFAULT '',
				status TEXT NOT NULL,
				error_message TEXT,
				error_code TEXT,
				execution_time_ms INTEGER NOT NULL DEFAULT 0,
				confidence_score REAL,
				input_tokens INTEGER,
				output_tokens INTEGER,
				estimated_cost REAL
			);
			CREATE INDEX IF NOT EXISTS idx_activity_timestamp ON activity_records(timestamp);
			CREATE INDEX IF NOT EXISTS idx_activity_model ON activity_records(model_name, timestamp);
			CREATE INDEX IF NOT EXISTS idx_activity_user ON activity_records(user_id, timestamp);
			CREATE INDEX IF NOT EXISTS idx_activity_status ON activity_records(status, timestamp);

			-- Alerts table
			CREATE TABLE IF NOT EXISTS alerts (
				id TEXT PRIMARY KEY,
				type TEXT NOT NULL,
				severity TEXT NOT NULL,
				status TEXT NOT NULL,
				title TEXT NOT NULL,
				message TEXT NOT NULL,
				model_name TEXT,
				affected_operations_json TEXT,
				metadata_json TEXT,
				channels_json TEXT,
				notifications_sent INTEGER NOT NULL DEFAULT 0,
				escalation_level INTEGER NOT NULL DEFAULT 0,
				created_at DATETIME NOT NULL,
				acknowledged_at DATETIME,
				acknowledged_by TEXT,
				resolved_at DATETIME,
				resolved_by TEXT,
				resolution_notes TEXT,
				snoozed_until DATETIME,
				snoozed_by TEXT
			);
			CREATE INDEX IF NOT EXISTS idx_alerts_status ON alerts(status, created_at);
			CREATE INDEX IF NOT EXISTS idx_alerts_type_model ON alerts(type, model_name, created_at);

			-- Retention policy run metadata
			CREATE TABLE IF NOT EXISTS policy_runs (
				policy_id TEXT PRIMARY KEY,
				last_run_at DATETIME NOT NULL,
				last_success INTEGER NOT NULL DEFAULT 1,
				last_error TEXT
			);
		`,
	},
}

// runMigrations applies all pending migrations.
func runMigrations(db *sql.DB) error {
	// Create migrations table
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at DATETIME NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	// Get current version
	var currentVersion int
	err = db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("get current version: %w", err)
	}

	// Apply pending migrations
	for _, m := range migrations {
		if m.Version <= currentVersion {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.Up); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration %d (%s): %w", m.Version, m.Name, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)",
			m.Version, m.Name, time.Now(),
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}
