package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/calm-red-fox/aitrail/internal/integrity"
)

// integrityCmd audits every stored record.
var integrityCmd = &cobra.Command{
	Use:   "integrity",
	Short: "Audit stored records for corruption",
	Long: `Scan every activity record for malformed payloads, missing
required fields, impossible timestamps, and duplicate ids. Exits
non-zero when issues are found, so the command works in cron jobs.

Example:
  trailctl integrity --output json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		auditor := integrity.NewAuditor(store.Activity(), sysClock)
		report, err := auditor.RunCheck(context.Background())
		if err != nil {
			return fmt.Errorf("integrity check: %w", err)
		}

		if GetOutput() == "json" {
			data, _ := json.MarshalIndent(report, "", "  ")
			fmt.Println(string(data))
		} else {
			fmt.Printf("\nRecords scanned:    %d\n", report.TotalRecords)
			fmt.Printf("Corrupted payloads: %d\n", report.CorruptedCount)
			fmt.Printf("Missing fields:     %d\n", report.MissingFieldsCount)
			fmt.Printf("Bad timestamps:     %d\n", report.InvalidTimestampCount)
			fmt.Printf("Duplicate ids:      %d\n", report.DuplicateIDCount)

			if len(report.Issues) > 0 {
				fmt.Printf("\n%-36s  %-8s  %s\n", "RECORD", "SEVERITY", "ISSUE")
				fmt.Println(strings.Repeat("-", 80))
				for _, issue := range report.Issues {
					fmt.Printf("%-36s  %-8s  %s\n", issue.RecordID, issue.Severity, issue.Issue)
				}
			}
		}

		if !report.Healthy() {
			return fmt.Errorf("%d integrity issue(s) found", len(report.Issues))
		}
		fmt.Println("\nNo issues found.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(integrityCmd)
}
