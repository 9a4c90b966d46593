package activity

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/calm-red-fox/aitrail/internal/models"
)

// ExportFormat defines the output format for activity exports.
type ExportFormat string

const (
	ExportJSON ExportFormat = "json"
	ExportCSV  ExportFormat = "csv"
	ExportXLSX ExportFormat = "xlsx"
)

// ErrUnsupportedFormat is returned for an export format the exporter
// does not recognize.
var ErrUnsupportedFormat = errors.New("unsupported export format")

// ParseExportFormat parses a string to ExportFormat.
func ParseExportFormat(s string) (ExportFormat, bool) {
	switch s {
	case "json":
		return ExportJSON, true
	case "csv":
		return ExportCSV, true
	case "xlsx", "excel":
		return ExportXLSX, true
	default:
		return "", false
	}
}

// Exporter writes activity records in a chosen format.
type Exporter struct {
	format ExportFormat
	writer io.Writer
}

// NewExporter creates an exporter for the given format.
func NewExporter(format ExportFormat, w io.Writer) *Exporter {
	return &Exporter{
		format: format,
		writer: w,
	}
}

// Export writes the records in the configured format.
func (e *Exporter) Export(records []*models.ActivityRecord) error {
	switch e.format {
	case ExportJSON:
		return e.exportJSON(records)
	case ExportCSV:
		return e.exportCSV(records)
	case ExportXLSX:
		return e.exportXLSX(records)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, e.format)
	}
}

func (e *Exporter) exportJSON(records []*models.ActivityRecord) error {
	encoder := json.NewEncoder(e.writer)
	encoder.SetIndent("", "  ")
	if records == nil {
		records = []*models.ActivityRecord{}
	}
	return encoder.Encode(records)
}

var exportColumns = []string{
	"id", "timestamp", "user_id", "model_name", "model_version",
	"operation_type", "operation_description", "entity_type", "entity_id",
	"status", "error_message", "error_code", "execution_time_ms",
	"confidence_score", "input_tokens", "output_tokens", "estimated_cost",
}

func recordRow(rec *models.ActivityRecord) []string {
	return []string{
		rec.ID,
		rec.Timestamp.Format(time.RFC3339),
		rec.UserID,
		rec.ModelName,
		rec.ModelVersion,
		string(rec.OperationType),
		rec.OperationDescription,
		rec.EntityType,
		rec.EntityID,
		string(rec.Status),
		rec.ErrorMessage,
		rec.ErrorCode,
		strconv.FormatInt(rec.ExecutionTimeMs, 10),
		formatFloat(rec.ConfidenceScore, 2),
		formatInt(rec.InputTokens),
		formatInt(rec.OutputTokens),
		formatFloat(rec.EstimatedCost, 4),
	}
}

func (e *Exporter) exportCSV(records []*models.ActivityRecord) error {
	w := csv.NewWriter(e.writer)
	defer w.Flush()

	if err := w.Write(exportColumns); err != nil {
		return err
	}
	for _, rec := range records {
		if err := w.Write(recordRow(rec)); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// xlsxHeaders are the human-readable column titles for spreadsheet
// exports, positionally matched to exportColumns.
var xlsxHeaders = []string{
	"ID", "Timestamp", "User", "Model", "Model Version",
	"Operation", "Description", "Entity Type", "Entity ID",
	"Status", "Error Message", "Error Code", "Execution Time (ms)",
	"Confidence", "Input Tokens", "Output Tokens", "Estimated Cost ($)",
}

func (e *Exporter) exportXLSX(records []*models.ActivityRecord) error {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Activity"
	f.SetSheetName("Sheet1", sheet)

	for col, title := range xlsxHeaders {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, title); err != nil {
			return err
		}
	}

	for i, rec := range records {
		for col, val := range recordRow(rec) {
			cell, err := excelize.CoordinatesToCellName(col+1, i+2)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, val); err != nil {
				return err
			}
		}
	}

	return f.Write(e.writer)
}

func formatFloat(v *float64, prec int) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', prec, 64)
}

func formatInt(v *int64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatInt(*v, 10)
}
