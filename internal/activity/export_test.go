package activity

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/calm-red-fox/aitrail/internal/models"
)

func exportRecords() []*models.ActivityRecord {
	return []*models.ActivityRecord{
		{
			ID:              "rec-1",
			Timestamp:       time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC),
			UserID:          "user-1",
			ModelName:       "gpt-4",
			OperationType:   models.OpCompletion,
			Status:          models.StatusSuccess,
			ExecutionTimeMs: 340,
			ConfidenceScore: floatPtr(91.256),
			InputTokens:     intPtr(120),
			OutputTokens:    intPtr(80),
			EstimatedCost:   floatPtr(0.003456),
		},
		{
			ID:            "rec-2",
			Timestamp:     time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC),
			UserID:        "user-2",
			ModelName:     "claude-3",
			OperationType: models.OpClassification,
			Status:        models.StatusError,
			ErrorMessage:  "upstream unavailable",
		},
	}
}

func TestExportCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := NewExporter(ExportCSV, &buf).Export(exportRecords()); err != nil {
		t.Fatalf("Export: %v", err)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("parse output: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want header + 2", len(rows))
	}
	if rows[0][0] != "id" || rows[0][len(rows[0])-1] != "estimated_cost" {
		t.Errorf("header = %v", rows[0])
	}

	first := rows[1]
	if first[0] != "rec-1" {
		t.Errorf("id = %q", first[0])
	}
	if first[1] != "2024-06-01T09:30:00Z" {
		t.Errorf("timestamp = %q", first[1])
	}
	if first[13] != "91.26" {
		t.Errorf("confidence = %q, want two decimal places", first[13])
	}
	if first[16] != "0.0035" {
		t.Errorf("cost = %q, want four decimal places", first[16])
	}

	// Absent optional values stay empty, not zero.
	second := rows[2]
	if second[13] != "" || second[16] != "" {
		t.Errorf("optional fields = %q/%q, want empty", second[13], second[16])
	}
}

func TestExportJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := NewExporter(ExportJSON, &buf).Export(exportRecords()); err != nil {
		t.Fatalf("Export: %v", err)
	}

	var decoded []models.ActivityRecord
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("parse output: %v", err)
	}
	if len(decoded) != 2 {
		t.Fatalf("records = %d, want 2", len(decoded))
	}
	if decoded[1].ErrorMessage != "upstream unavailable" {
		t.Errorf("error message = %q", decoded[1].ErrorMessage)
	}
	if !strings.Contains(buf.String(), "\n  ") {
		t.Error("expected indented output")
	}
}

func TestExportJSONEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := NewExporter(ExportJSON, &buf).Export(nil); err != nil {
		t.Fatalf("Export: %v", err)
	}
	if got := strings.TrimSpace(buf.String()); got != "[]" {
		t.Errorf("output = %q, want empty array", got)
	}
}

func TestExportXLSX(t *testing.T) {
	var buf bytes.Buffer
	if err := NewExporter(ExportXLSX, &buf).Export(exportRecords()); err != nil {
		t.Fatalf("Export: %v", err)
	}
	// xlsx files are zip archives.
	if !bytes.HasPrefix(buf.Bytes(), []byte("PK")) {
		t.Errorf("output does not look like a spreadsheet: % x", buf.Bytes()[:4])
	}
}

func TestExportUnsupportedFormat(t *testing.T) {
	var buf bytes.Buffer
	err := NewExporter(ExportFormat("parquet"), &buf).Export(exportRecords())
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("err = %v, want ErrUnsupportedFormat", err)
	}
}

func TestParseExportFormat(t *testing.T) {
	tests := []struct {
		in   string
		want ExportFormat
		ok   bool
	}{
		{"json", ExportJSON, true},
		{"csv", ExportCSV, true},
		{"xlsx", ExportXLSX, true},
		{"excel", ExportXLSX, true},
		{"yaml", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseExportFormat(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseExportFormat(%q) = %q,%v; want %q,%v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}
