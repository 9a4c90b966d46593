package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/calm-red-fox/aitrail/internal/alerts"
	"github.com/calm-red-fox/aitrail/internal/models"
	"github.com/calm-red-fox/aitrail/internal/storage"
)

var (
	alertsHistory  bool
	alertsBy       string
	alertsNotes    string
	alertsDuration int
)

// alertsCmd is the alert management command group.
var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Alert management commands",
	Long: `Commands for listing and transitioning alerts directly against
the database.

Examples:
  # List active alerts
  trailctl alerts list

  # Acknowledge an alert
  trailctl alerts ack 3f2a... --by oncall

  # Resolve with notes
  trailctl alerts resolve 3f2a... --by oncall --notes "restarted the pool"

  # Snooze for two hours
  trailctl alerts snooze 3f2a... --by oncall --for 120`,
}

var alertsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List alerts",
	Long: `List active alerts, most severe first. With --history, list all
alerts newest first instead.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		manager := newAlertManager(store)
		ctx := context.Background()

		var list []*models.Alert
		if alertsHistory {
			list, err = manager.History(ctx, &models.AlertFilter{})
		} else {
			list, err = manager.ListActive(ctx, &models.AlertFilter{})
		}
		if err != nil {
			return fmt.Errorf("list alerts: %w", err)
		}

		if GetOutput() == "json" {
			data, _ := json.MarshalIndent(list, "", "  ")
			fmt.Println(string(data))
			return nil
		}

		if len(list) == 0 {
			fmt.Println("No alerts found.")
			return nil
		}

		fmt.Printf("\n%-36s  %-8s  %-12s  %-30s  %s\n",
			"ID", "SEVERITY", "STATUS", "TITLE", "CREATED")
		fmt.Println(strings.Repeat("-", 110))
		for _, a := range list {
			fmt.Printf("%-36s  %-8s  %-12s  %-30s  %s\n",
				a.ID,
				a.Severity,
				a.Status,
				truncate(a.Title, 30),
				a.CreatedAt.Format("2006-01-02 15:04"),
			)
		}
		fmt.Printf("\nTotal: %d alert(s)\n", len(list))
		return nil
	},
}

var alertsAckCmd = &cobra.Command{
	Use:   "ack <alert-id>",
	Short: "Acknowledge an alert",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if alertsBy == "" {
			return fmt.Errorf("--by is required")
		}
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		if err := newAlertManager(store).Acknowledge(context.Background(), args[0], alertsBy); err != nil {
			return fmt.Errorf("acknowledge: %w", err)
		}
		fmt.Println("Alert acknowledged.")
		return nil
	},
}

var alertsResolveCmd = &cobra.Command{
	Use:   "resolve <alert-id>",
	Short: "Resolve an alert",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if alertsBy == "" {
			return fmt.Errorf("--by is required")
		}
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		if err := newAlertManager(store).Resolve(context.Background(), args[0], alertsBy, alertsNotes); err != nil {
			return fmt.Errorf("resolve: %w", err)
		}
		fmt.Println("Alert resolved.")
		return nil
	},
}

var alertsSnoozeCmd = &cobra.Command{
	Use:   "snooze <alert-id>",
	Short: "Snooze an alert",
	Long: `Silence an alert for a number of minutes. When the snooze
expires the daemon reactivates the alert at a higher escalation level.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if alertsBy == "" {
			return fmt.Errorf("--by is required")
		}
		if alertsDuration <= 0 {
			return fmt.Errorf("--for must be a positive number of minutes")
		}
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		if err := newAlertManager(store).Snooze(context.Background(), args[0], alertsBy, alertsDuration); err != nil {
			return fmt.Errorf("snooze: %w", err)
		}
		fmt.Printf("Alert snoozed for %d minute(s).\n", alertsDuration)
		return nil
	},
}

// newAlertManager builds a manager with no notification channels; the
// CLI transitions alerts, it never dispatches.
func newAlertManager(store *storage.SQLiteStore) *alerts.Manager {
	return alerts.NewManager(store.Alerts(), sysClock, nil, nil)
}

func init() {
	alertsListCmd.Flags().BoolVar(&alertsHistory, "history", false, "list all alerts, not just active ones")
	for _, c := range []*cobra.Command{alertsAckCmd, alertsResolveCmd, alertsSnoozeCmd} {
		c.Flags().StringVar(&alertsBy, "by", "", "who is acting on the alert (required)")
	}
	alertsResolveCmd.Flags().StringVar(&alertsNotes, "notes", "", "resolution notes")
	alertsSnoozeCmd.Flags().IntVar(&alertsDuration, "for", 0, "snooze duration in minutes (required)")

	alertsCmd.AddCommand(alertsListCmd)
	alertsCmd.AddCommand(alertsAckCmd)
	alertsCmd.AddCommand(alertsResolveCmd)
	alertsCmd.AddCommand(alertsSnoozeCmd)
	rootCmd.AddCommand(alertsCmd)
}
