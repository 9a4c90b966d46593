package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/calm-red-fox/aitrail/internal/activity"
	"github.com/calm-red-fox/aitrail/internal/models"
)

var (
	exportFormat string
	exportOut    string
	exportStart  string
	exportEnd    string
	exportUser   string
	exportModel  string
	exportStatus string
	exportLimit  int
)

// exportCmd writes stored activity records to a file or stdout.
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export activity records",
	Long: `Export activity records in JSON, CSV, or XLSX format.

Examples:
  # Everything, newest first, as JSON to stdout
  trailctl export

  # One model's June operations as a spreadsheet
  trailctl export --model gpt-4 \
    --start 2024-06-01T00:00:00Z --end 2024-07-01T00:00:00Z \
    --format xlsx --out june.xlsx`,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, ok := activity.ParseExportFormat(exportFormat)
		if !ok {
			return fmt.Errorf("unsupported format %q (json, csv, xlsx)", exportFormat)
		}

		filter := &models.ActivityFilter{
			UserID:    exportUser,
			ModelName: exportModel,
			Status:    models.OperationStatus(exportStatus),
			Limit:     exportLimit,
		}
		var err error
		if filter.StartTime, err = parseTimeFlag(exportStart); err != nil {
			return fmt.Errorf("--start: %w", err)
		}
		if filter.EndTime, err = parseTimeFlag(exportEnd); err != nil {
			return fmt.Errorf("--end: %w", err)
		}

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		records, err := store.Activity().Query(context.Background(), filter)
		if err != nil {
			return fmt.Errorf("query records: %w", err)
		}
		PrintVerbose("exporting %d record(s)", len(records))

		out := os.Stdout
		if exportOut != "" {
			out, err = os.Create(exportOut)
			if err != nil {
				return fmt.Errorf("create output file: %w", err)
			}
			defer out.Close()
		}

		if err := activity.NewExporter(format, out).Export(records); err != nil {
			return fmt.Errorf("export: %w", err)
		}
		if exportOut != "" {
			fmt.Printf("Exported %d record(s) to %s\n", len(records), exportOut)
		}
		return nil
	},
}

func parseTimeFlag(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, s)
}

func init() {
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "json", "export format (json, csv, xlsx)")
	exportCmd.Flags().StringVar(&exportOut, "out", "", "output file (default stdout)")
	exportCmd.Flags().StringVar(&exportStart, "start", "", "start time (RFC3339)")
	exportCmd.Flags().StringVar(&exportEnd, "end", "", "end time (RFC3339)")
	exportCmd.Flags().StringVar(&exportUser, "user", "", "filter by user id")
	exportCmd.Flags().StringVar(&exportModel, "model", "", "filter by model name")
	exportCmd.Flags().StringVar(&exportStatus, "status", "", "filter by operation status")
	exportCmd.Flags().IntVar(&exportLimit, "limit", 100000, "maximum records to export")

	rootCmd.AddCommand(exportCmd)
}
