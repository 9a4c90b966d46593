package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"

	"github.com/calm-red-fox/aitrail/internal/models"
)

// ClickHouseConfig holds ClickHouse connection settings.
type ClickHouseConfig struct {
	// Addresses are the ClickHouse server addresses (host:port).
	Addresses []string

	// Database is the ClickHouse database name.
	Database string

	// Username for authentication.
	Username string

	// Password for authentication.
	Password string

	// MaxOpenConns is the maximum number of open connections.
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections.
	MaxIdleConns int

	// DialTimeout is the connection timeout.
	DialTimeout time.Duration

	// Compression enables LZ4 compression.
	Compression bool
}

// ClickHouseActivityStore implements ActivityRepository on ClickHouse.
// It is the high-volume backend for activity records; alerts and
// scheduler metadata always live in SQLite.
type ClickHouseActivityStore struct {
	config *ClickHouseConfig
	db     *sql.DB
}

// NewClickHouseActivityStore creates a new ClickHouse-backed store.
func NewClickHouseActivityStore(config *ClickHouseConfig) *ClickHouseActivityStore {
	if config.MaxOpenConns == 0 {
		config.MaxOpenConns = 5
	}
	if config.MaxIdleConns == 0 {
		config.MaxIdleConns = 5
	}
	if config.DialTimeout == 0 {
		config.DialTimeout = 5 * time.Second
	}

	return &ClickHouseActivityStore{config: config}
}

// Open initializes the ClickHouse connection.
func (s *ClickHouseActivityStore) Open() error {
	opts := &clickhouse.Options{
		Addr: s.config.Addresses,
		Auth: clickhouse.Auth{
			Database: s.config.Database,
			Username: s.config.Username,
			Password: s.config.Password,
		},
		DialTimeout:  s.config.DialTimeout,
		MaxOpenConns: s.config.MaxOpenConns,
		MaxIdleConns: s.config.MaxIdleConns,
	}

	if s.config.Compression {
		opts.Compression = &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		}
	}

	db := clickhouse.OpenDB(opts)

	ctx, cancel := context.WithTimeout(context.Background(), s.config.DialTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping clickhouse: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection.
func (s *ClickHouseActivityStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping checks the connection health.
func (s *ClickHouseActivityStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Migrate creates the activity_records table if it doesn't exist.
// Deletion is owned by the retention engine, so no TTL clause here.
func (s *ClickHouseActivityStore) Migrate() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	createTable := `
		CREATE TABLE IF NOT EXISTS activity_records (
			id String,
			timestamp DateTime64(3, 'UTC'),
			user_id String,
			model_name LowCardinality(String),
			model_version LowCardinality(String) DEFAULT '',
			operation_type LowCardinality(String),
			operation_description String DEFAULT '',
			entity_type LowCardinality(String) DEFAULT '',
			entity_id String DEFAULT '',
			input_data String,
			output_data String,
			input_encoding LowCardinality(String) DEFAULT '',
				output_encoding LowCardinality(String) DEFAULT '',
			status LowCardinality(String),
			error_message String DEFAULT '',
			error_code LowCardinality(String) DEFAULT '',
			execution_time_ms Int64 DEFAULT 0,
			confidence_score Nullable(Float64),
			input_tokens Nullable(Int64),
			output_tokens Nullable(Int64),
			estimated_cost Nullable(Float64),
			_date Date DEFAULT toDate(timestamp)
		)
		ENGINE = MergeTree()
		PARTITION BY toYYYYMM(_date)
		ORDER BY (model_name, operation_type, status, timestamp, id)
		SETTINGS index_granularity = 8192
	`

	if _, err := s.db.ExecContext(ctx, createTable); err != nil {
		return fmt.Errorf("create activity_records table: %w", err)
	}
	return nil
}

const chActivityColumns = `id, timestamp, user_id, model_name, model_version,
	operation_type, operation_description, entity_type, entity_id,
	input_data, output_data, input_encoding, output_encoding, status,
	error_message, error_code, execution_time_ms, confidence_score,
	input_tokens, output_tokens, estimated_cost`

func (s *ClickHouseActivityStore) Insert(ctx context.Context, rec *models.ActivityRecord) error {
	return s.BulkInsert(ctx, []*models.ActivityRecord{rec})
}

func (s *ClickHouseActivityStore) BulkInsert(ctx context.Context, recs []*models.ActivityRecord) error {
	if len(recs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO activity_records (%s)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, chActivityColumns)

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare batch: %w", err)
	}
	defer stmt.Close()

	for _, rec := range recs {
		_, err := stmt.ExecContext(ctx,
			rec.ID, rec.Timestamp, rec.UserID, rec.ModelName, rec.ModelVersion,
			string(rec.OperationType), rec.OperationDescription,
			rec.EntityType, rec.EntityID,
			rec.InputData, rec.OutputData, string(rec.InputEncoding),
			string(rec.OutputEncoding),
			string(rec.Status), rec.ErrorMessage, rec.ErrorCode,
			rec.ExecutionTimeMs, rec.ConfidenceScore,
			rec.InputTokens, rec.OutputTokens, rec.EstimatedCost,
		)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("append record %s: %w", rec.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

func (s *ClickHouseActivityStore) Get(ctx context.Context, id string) (*models.ActivityRecord, error) {
	query := fmt.Sprintf("SELECT %s FROM activity_records WHERE id = ? LIMIT 1", chActivityColumns)
	rec, err := scanCHActivity(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	return rec, nil
}

func (s *ClickHouseActivityStore) Query(ctx context.Context, filter *models.ActivityFilter) ([]*models.ActivityRecord, error) {
	where, args := buildActivityWhere(filter)

	order := "DESC"
	if filter != nil && filter.OrderAsc {
		order = "ASC"
	}
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

	query := fmt.Sprintf(
		"SELECT %s FROM activity_records %s ORDER BY timestamp %s, id %s LIMIT ? OFFSET ?",
		chActivityColumns, where, order, order,
	)
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var recs []*models.ActivityRecord
	for rows.Next() {
		rec, err := scanCHActivity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func (s *ClickHouseActivityStore) Count(ctx context.Context, filter *models.ActivityFilter) (int64, error) {
	where, args := buildActivityWhere(filter)

	var count int64
	query := "SELECT COUNT(*) FROM activity_records " + where
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return count, nil
}

// BulkDelete uses lightweight deletes. ClickHouse does not report rows
// affected for these, so the count of matching rows is read first.
func (s *ClickHouseActivityStore) BulkDelete(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	placeholders := strings.Repeat("?,", len(ids)-1) + "?"
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	var count int64
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM activity_records WHERE id IN ("+placeholders+")", args...,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count before delete: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		"DELETE FROM activity_records WHERE id IN ("+placeholders+")", args...)
	if err != nil {
		return 0, fmt.Errorf("bulk delete: %w", err)
	}
	return count, nil
}

// Update issues a mutation. ClickHouse mutations are asynchronous;
// readers may briefly observe the old payload.
func (s *ClickHouseActivityStore) Update(ctx context.Context, id string, patch *RecordPatch) error {
	var sets []string
	var args []any

	if patch.InputData != nil {
		sets = append(sets, "input_data = ?")
		args = append(args, *patch.InputData)
	}
	if patch.OutputData != nil {
		sets = append(sets, "output_data = ?")
		args = append(args, *patch.OutputData)
	}
	if patch.InputEncoding != nil {
		sets = append(sets, "input_encoding = ?")
		args = append(args, string(*patch.InputEncoding))
	}
	if patch.OutputEncoding != nil {
		sets = append(sets, "output_encoding = ?")
		args = append(args, string(*patch.OutputEncoding))
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)

	_, err := s.db.ExecContext(ctx,
		"ALTER TABLE activity_records UPDATE "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return fmt.Errorf("update record: %w", err)
	}
	return nil
}

func scanCHActivity(row rowScanner) (*models.ActivityRecord, error) {
	var rec models.ActivityRecord
	var opType, status, inEncoding, outEncoding string
	var confidence, cost *float64
	var inTokens, outTokens *int64

	err := row.Scan(
		&rec.ID, &rec.Timestamp, &rec.UserID, &rec.ModelName, &rec.ModelVersion,
		&opType, &rec.OperationDescription, &rec.EntityType, &rec.EntityID,
		&rec.InputData, &rec.OutputData, &inEncoding, &outEncoding, &status,
		&rec.ErrorMessage, &rec.ErrorCode, &rec.ExecutionTimeMs, &confidence,
		&inTokens, &outTokens, &cost,
	)
	if err != nil {
		return nil, err
	}

	rec.OperationType = models.OperationType(opType)
	rec.Status = models.OperationStatus(status)
	rec.InputEncoding = models.PayloadEncoding(inEncoding)
	rec.OutputEncoding = models.PayloadEncoding(outEncoding)
	rec.ConfidenceScore = confidence
	rec.InputTokens = inTokens
	rec.OutputTokens = outTokens
	rec.EstimatedCost = cost
	return &rec, nil
}
