package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/calm-red-fox/aitrail/internal/models"
)

type sqliteAlertRepo struct {
	db *sql.DB
}

const alertColumns = `id, type, severity, status, title, message, model_name,
	affected_operations_json, metadata_json, channels_json,
	notifications_sent, escalation_level, created_at, acknowledged_at,
	acknowledged_by, resolved_at, resolved_by, resolution_notes,
	snoozed_until, snoozed_by`

func (r *sqliteAlertRepo) Create(ctx context.Context, alert *models.Alert) error {
	affected, metadata, channels, err := marshalAlertJSON(alert)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`
		INSERT INTO alerts (%s)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, alertColumns)

	_, err = r.db.ExecContext(ctx, query,
		alert.ID, string(alert.Type), string(alert.Severity), string(alert.Status),
		alert.Title, alert.Message, nullString(alert.ModelName),
		affected, metadata, channels,
		alert.NotificationsSent, alert.EscalationLevel, alert.CreatedAt,
		nullTime(alert.AcknowledgedAt), nullString(alert.AcknowledgedBy),
		nullTime(alert.ResolvedAt), nullString(alert.ResolvedBy),
		nullString(alert.ResolutionNotes),
		nullTime(alert.SnoozedUntil), nullString(alert.SnoozedBy),
	)
	if err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

func (r *sqliteAlertRepo) Get(ctx context.Context, id string) (*models.Alert, error) {
	query := fmt.Sprintf("SELECT %s FROM alerts WHERE id = ?", alertColumns)
	alert, err := scanAlert(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get alert: %w", err)
	}
	return alert, nil
}

func (r *sqliteAlertRepo) Update(ctx context.Context, alert *models.Alert) error {
	affected, metadata, channels, err := marshalAlertJSON(alert)
	if err != nil {
		return err
	}

	query := `
		UPDATE alerts SET type = ?, severity = ?, status = ?, title = ?,
			message = ?, model_name = ?, affected_operations_json = ?,
			metadata_json = ?, channels_json = ?, notifications_sent = ?,
			escalation_level = ?, acknowledged_at = ?, acknowledged_by = ?,
			resolved_at = ?, resolved_by = ?, resolution_notes = ?,
			snoozed_until = ?, snoozed_by = ?
		WHERE id = ?
	`
	result, err := r.db.ExecContext(ctx, query,
		string(alert.Type), string(alert.Severity), string(alert.Status),
		alert.Title, alert.Message, nullString(alert.ModelName),
		affected, metadata, channels,
		alert.NotificationsSent, alert.EscalationLevel,
		nullTime(alert.AcknowledgedAt), nullString(alert.AcknowledgedBy),
		nullTime(alert.ResolvedAt), nullString(alert.ResolvedBy),
		nullString(alert.ResolutionNotes),
		nullTime(alert.SnoozedUntil), nullString(alert.SnoozedBy),
		alert.ID,
	)
	if err != nil {
		return fmt.Errorf("update alert: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *sqliteAlertRepo) ListActive(ctx context.Context, filter *models.AlertFilter) ([]*models.Alert, error) {
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

func (r *sqliteAlertRepo) List(ctx context.Context, filter *models.AlertFilter) ([]*models.Alert, error) {
	where, args := buildAlertWhere(filter)

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
		"SELECT %s FROM alerts %s ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?",
		alertColumns, where,
	)
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

	var alerts []*models.Alert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		alerts = append(alerts, alert)
	}
	return alerts, rows.Err()
}

func (r *sqliteAlertRepo) CountSince(ctx context.Context, alertType models.AlertType, modelName string, since time.Time) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM alerts WHERE type = ? AND COALESCE(model_name, '') = ? AND created_at >= ?",
		string(alertType), modelName, since,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count alerts: %w", err)
	}
	return count, nil
}

func buildAlertWhere(filter *models.AlertFilter) (string, []any) {
	if filter == nil {
		return "", nil
	}

	var conds []string
	var args []any

	if !filter.StartTime.IsZero() {
		conds = append(conds, "created_at >= ?")
		args = append(args, filter.StartTime)
	}
	if !filter.EndTime.IsZero() {
		conds = append(conds, "created_at <= ?")
		args = append(args, filter.EndTime)
	}
	if filter.Type != "" {
		conds = append(conds, "type = ?")
		args = append(args, string(filter.Type))
	}
	if filter.Severity != "" {
		conds = append(conds, "severity = ?")
		args = append(args, string(filter.Severity))
	}
	if filter.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.ModelName != "" {
		conds = append(conds, "model_name = ?")
		args = append(args, filter.ModelName)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(conds, " AND "), args
}

func marshalAlertJSON(alert *models.Alert) (affected, metadata, channels string, err error) {
	a, err := json.Marshal(alert.AffectedOperations)
	if err != nil {
		return "", "", "", fmt.Errorf("marshal affected operations: %w", err)
	}
	m, err := json.Marshal(alert.Metadata)
	if err != nil {
		return "", "", "", fmt.Errorf("marshal metadata: %w", err)
	}
	c, err := json.Marshal(alert.NotificationChannels)
	if err != nil {
		return "", "", "", fmt.Errorf("marshal channels: %w", err)
	}
	return string(a), string(m), string(c), nil
}

func scanAlert(row rowScanner) (*models.Alert, error) {
	var alert models.Alert
	var alertType, severity, status string
	var modelName, ackBy, resolvedBy, notes, snoozedBy sql.NullString
	var affected, metadata, channels sql.NullString
	var ackAt, resolvedAt, snoozedUntil sql.NullTime

	err := row.Scan(
		&alert.ID, &alertType, &severity, &status, &alert.Title,
		&alert.Message, &modelName, &affected, &metadata, &channels,
		&alert.NotificationsSent, &alert.EscalationLevel, &alert.CreatedAt,
		&ackAt, &ackBy, &resolvedAt, &resolvedBy, &notes,
		&snoozedUntil, &snoozedBy,
	)
	if err != nil {
		return nil, err
	}

	alert.Type = models.AlertType(alertType)
	alert.Severity = models.Severity(severity)
	alert.Status = models.AlertStatus(status)
	alert.ModelName = modelName.String
	alert.AcknowledgedBy = ackBy.String
	alert.ResolvedBy = resolvedBy.String
	alert.ResolutionNotes = notes.String
	alert.SnoozedBy = snoozedBy.String

	if ackAt.Valid {
		alert.AcknowledgedAt = &ackAt.Time
	}
	if resolvedAt.Valid {
		alert.ResolvedAt = &resolvedAt.Time
	}
	if snoozedUntil.Valid {
		alert.SnoozedUntil = &snoozedUntil.Time
	}

	if affected.Valid && affected.String != "" {
		if err := json.Unmarshal([]byte(affected.String), &alert.AffectedOperations); err != nil {
			return nil, fmt.Errorf("unmarshal affected operations: %w", err)
		}
	}
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &alert.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	if channels.Valid && channels.String != "" {
		if err := json.Unmarshal([]byte(channels.String), &alert.NotificationChannels); err != nil {
			return nil, fmt.Errorf("unmarshal channels: %w", err)
		}
	}

	return &alert, nil
}

// sortAlertsBySeverity orders alerts critical-first, then newest-first.
func sortAlertsBySeverity(alerts []*models.Alert) {
	sort.SliceStable(alerts, func(i, j int) bool {
		if alerts[i].Severity.Rank() != alerts[j].Severity.Rank() {
			return alerts[i].Severity.Rank() > alerts[j].Severity.Rank()
		}
		return alerts[i].CreatedAt.After(alerts[j].CreatedAt)
	})
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
