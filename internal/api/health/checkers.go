package health

import (
	"context"
	"database/sql"
	"fmt"
	"os"
)

// SQLiteChecker checks SQLite database connectivity.
type SQLiteChecker struct {
	db *sql.DB
}

// NewSQLiteChecker creates a new SQLite health checker.
func NewSQLiteChecker(db *sql.DB) *SQLiteChecker {
	return &SQLiteChecker{db: db}
}

// Name returns the checker name.
func (c *SQLiteChecker) Name() string {
	return "sqlite"
}

// Check verifies the SQLite database is accessible.
func (c *SQLiteChecker) Check(ctx context.Context) error {
	if c.db == nil {
		return fmt.Errorf("database not initialized")
	}
	return c.db.PingContext(ctx)
}

// Pinger interface for databases that support ping.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ClickHouseChecker checks ClickHouse connectivity.
type ClickHouseChecker struct {
	pinger Pinger
}

// NewClickHouseChecker creates a new ClickHouse health checker.
func NewClickHouseChecker(p Pinger) *ClickHouseChecker {
	return &ClickHouseChecker{pinger: p}
}

// Name returns the checker name.
func (c *ClickHouseChecker) Name() string {
	return "clickhouse"
}

// Check verifies ClickHouse is accessible.
func (c *ClickHouseChecker) Check(ctx context.Context) error {
	if c.pinger == nil {
		return fmt.Errorf("clickhouse not configured")
	}
	return c.pinger.Ping(ctx)
}

// ArchiveDirChecker verifies the retention archive directory is
// writable, so policy runs will not fail at archive time.
type ArchiveDirChecker struct {
	dir string
}

// NewArchiveDirChecker creates a new archive directory checker.
func NewArchiveDirChecker(dir string) *ArchiveDirChecker {
	return &ArchiveDirChecker{dir: dir}
}

// Name returns the checker name.
func (c *ArchiveDirChecker) Name() string {
	return "archive_dir"
}

// Check verifies the archive directory exists and is writable.
func (c *ArchiveDirChecker) Check(ctx context.Context) error {
	if c.dir == "" {
		return fmt.Errorf("archive directory not configured")
	}
	f, err := os.CreateTemp(c.dir, ".healthcheck-*")
	if err != nil {
		return fmt.Errorf("archive dir not writable: %w", err)
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}
