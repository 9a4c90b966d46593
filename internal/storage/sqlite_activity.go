package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/calm-red-fox/aitrail/internal/models"
)

// DefaultQueryLimit caps unbounded queries.
const DefaultQueryLimit = 1000

type sqliteActivityRepo struct {
	db *sql.DB
}

const activityColumns = `id, timestamp, user_id, model_name, model_version,
	operation_type, operation_description, entity_type, entity_id,
	input_data, output_data, input_encoding, output_encoding, status,
	error_message, error_code, execution_time_ms, confidence_score,
	input_tokens, output_tokens, estimated_cost`

func (r *sqliteActivityRepo) Insert(ctx context.Context, rec *models.ActivityRecord) error {
	query := fmt.Sprintf(`
		INSERT INTO activity_records (%s)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, activityColumns)

	_, err := r.db.ExecContext(ctx, query, insertArgs(rec)...)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return fmt.Errorf("insert record %s: %w", rec.ID, ErrDuplicateID)
		}
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

func (r *sqliteActivityRepo) BulkInsert(ctx context.Context, recs []*models.ActivityRecord) error {
	if len(recs) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin bulk insert: %w", err)
	}
	defer tx.Rollback()

	query := fmt.Sprintf(`
		INSERT INTO activity_records (%s)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, activityColumns)

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("prepare bulk insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range recs {
		if _, err := stmt.ExecContext(ctx, insertArgs(rec)...); err != nil {
			if strings.Contains(err.Error(), "UNIQUE constraint") {
				return fmt.Errorf("bulk insert record %s: %w", rec.ID, ErrDuplicateID)
			}
			return fmt.Errorf("bulk insert record %s: %w", rec.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit bulk insert: %w", err)
	}
	return nil
}

func insertArgs(rec *models.ActivityRecord) []any {
	return []any{
		rec.ID, rec.Timestamp, rec.UserID, rec.ModelName, nullString(rec.ModelVersion),
		string(rec.OperationType), nullString(rec.OperationDescription),
		nullString(rec.EntityType), nullString(rec.EntityID),
		rec.InputData, rec.OutputData, string(rec.InputEncoding), string(rec.OutputEncoding),
		string(rec.Status), nullString(rec.ErrorMessage), nullString(rec.ErrorCode),
		rec.ExecutionTimeMs, nullFloat(rec.ConfidenceScore),
		nullInt(rec.InputTokens), nullInt(rec.OutputTokens), nullFloat(rec.EstimatedCost),
	}
}

func (r *sqliteActivityRepo) Get(ctx context.Context, id string) (*models.ActivityRecord, error) {
	query := fmt.Sprintf("SELECT %s FROM activity_records WHERE id = ?", activityColumns)
	rec, err := scanActivity(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	return rec, nil
}

func (r *sqliteActivityRepo) Query(ctx context.Context, filter *models.ActivityFilter) ([]*models.ActivityRecord, error) {
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
		activityColumns, where, order, order,
	)
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var recs []*models.ActivityRecord
	for rows.Next() {
		rec, err := scanActivity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func (r *sqliteActivityRepo) Count(ctx context.Context, filter *models.ActivityFilter) (int64, error) {
	where, args := buildActivityWhere(filter)

	var count int64
	query := "SELECT COUNT(*) FROM activity_records " + where
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return count, nil
}

func (r *sqliteActivityRepo) BulkDelete(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	placeholders := strings.Repeat("?,", len(ids)-1) + "?"
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	result, err := r.db.ExecContext(ctx,
		"DELETE FROM activity_records WHERE id IN ("+placeholders+")", args...)
	if err != nil {
		return 0, fmt.Errorf("bulk delete: %w", err)
	}
	deleted, _ := result.RowsAffected()
	return deleted, nil
}

func (r *sqliteActivityRepo) Update(ctx context.Context, id string, patch *RecordPatch) error {
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

	result, err := r.db.ExecContext(ctx,
		"UPDATE activity_records SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return fmt.Errorf("update record: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// buildActivityWhere translates a filter into a WHERE clause.
func buildActivityWhere(filter *models.ActivityFilter) (string, []any) {
	if filter == nil {
		return "", nil
	}

	var conds []string
	var args []any

	if !filter.StartTime.IsZero() {
		conds = append(conds, "timestamp >= ?")
		args = append(args, filter.StartTime)
	}
	if !filter.EndTime.IsZero() {
		conds = append(conds, "timestamp <= ?")
		args = append(args, filter.EndTime)
	}
	if filter.UserID != "" {
		conds = append(conds, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.ModelName != "" {
		conds = append(conds, "model_name = ?")
		args = append(args, filter.ModelName)
	}
	if filter.OperationType != "" {
		conds = append(conds, "operation_type = ?")
		args = append(args, string(filter.OperationType))
	}
	if filter.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.EntityType != "" {
		conds = append(conds, "entity_type = ?")
		args = append(args, filter.EntityType)
	}
	if filter.EntityID != "" {
		conds = append(conds, "entity_id = ?")
		args = append(args, filter.EntityID)
	}
	if filter.MinConfidence != nil {
		conds = append(conds, "confidence_score >= ?")
		args = append(args, *filter.MinConfidence)
	}
	if filter.MaxConfidence != nil {
		conds = append(conds, "confidence_score <= ?")
		args = append(args, *filter.MaxConfidence)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(conds, " AND "), args
}

// rowScanner abstracts *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanActivity(row rowScanner) (*models.ActivityRecord, error) {
	var rec models.ActivityRecord
	var modelVersion, opDesc, entityType, entityID sql.NullString
	var errMsg, errCode, inEncoding, outEncoding sql.NullString
	var opType, status string
	var confidence, cost sql.NullFloat64
	var inTokens, outTokens sql.NullInt64

	err := row.Scan(
		&rec.ID, &rec.Timestamp, &rec.UserID, &rec.ModelName, &modelVersion,
		&opType, &opDesc, &entityType, &entityID,
		&rec.InputData, &rec.OutputData, &inEncoding, &outEncoding, &status,
		&errMsg, &errCode, &rec.ExecutionTimeMs, &confidence, &inTokens,
		&outTokens, &cost,
	)
	if err != nil {
		return nil, err
	}

	rec.ModelVersion = modelVersion.String
	rec.OperationType = models.OperationType(opType)
	rec.OperationDescription = opDesc.String
	rec.EntityType = entityType.String
	rec.EntityID = entityID.String
	rec.InputEncoding = models.PayloadEncoding(inEncoding.String)
	rec.OutputEncoding = models.PayloadEncoding(outEncoding.String)
	rec.Status = models.OperationStatus(status)
	rec.ErrorMessage = errMsg.String
	rec.ErrorCode = errCode.String
	if confidence.Valid {
		rec.ConfidenceScore = &confidence.Float64
	}
	if inTokens.Valid {
		rec.InputTokens = &inTokens.Int64
	}
	if outTokens.Valid {
		rec.OutputTokens = &outTokens.Int64
	}
	if cost.Valid {
		rec.EstimatedCost = &cost.Float64
	}
	return &rec, nil
}
