// Package cmd contains the CLI commands for aitrail.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/calm-red-fox/aitrail/internal/clock"
	"github.com/calm-red-fox/aitrail/internal/storage"
)

// defaultDBPath is the default database path, can be overridden via
// the AITRAIL_DB_PATH env var or the --db flag.
var defaultDBPath = "aitrail.db"

func init() {
	if envPath := os.Getenv("AITRAIL_DB_PATH"); envPath != "" {
		defaultDBPath = envPath
	}
}

var (
	// Used for flags
	dbPath  string
	verbose bool
	output  string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "trailctl",
	Short: "trailctl - AI operation audit trail toolkit",
	Long: `trailctl manages an aitrail database directly: exporting and
importing records, running retention maintenance, auditing record
integrity, and working with alerts.

Examples:
  # Export the last week of operations as CSV
  trailctl export --format csv --start 2024-06-01T00:00:00Z --out ops.csv

  # Import a previously written archive bundle
  trailctl import archives/expire-30d-20240601.json.zst

  # Audit stored records for corruption
  trailctl integrity

  # List active alerts
  trailctl alerts list`,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", defaultDBPath, "database file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "table", "output format (table, json)")
}

// GetOutput returns the output format.
func GetOutput() string {
	return output
}

// PrintVerbose prints a message only if verbose mode is enabled.
func PrintVerbose(format string, args ...interface{}) {
	if verbose {
		fmt.Printf(format+"\n", args...)
	}
}

// openStore opens the SQLite database the commands operate on. Migrate
// is idempotent, so running it here keeps the CLI usable against a
// database the daemon has not touched yet.
func openStore() (*storage.SQLiteStore, error) {
	store := storage.NewSQLiteStore(dbPath)
	if err := store.Open(); err != nil {
		return nil, fmt.Errorf("open database at %s: %w", dbPath, err)
	}
	if err := store.Migrate(); err != nil {
		store.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return store, nil
}

var sysClock = clock.New()

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-2] + ".."
}
