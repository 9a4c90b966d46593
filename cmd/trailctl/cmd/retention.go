package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/calm-red-fox/aitrail/internal/retention"
)

var (
	archiveDir     string
	purgeOlderDays int
	purgeForce     bool
)

// importCmd restores records from an archive bundle file.
var importCmd = &cobra.Command{
	Use:   "import <bundle-file>",
	Short: "Import an archive bundle",
	Long: `Import activity records from an archive bundle written by a
retention policy run or a previous export. Records whose ids already
exist in the database are skipped, so importing the same bundle twice
is safe.

Example:
  trailctl import archives/expire-30d-20240601.json.zst`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("open bundle: %w", err)
		}
		defer f.Close()

		bundle, warning, err := retention.DecodeBundle(f)
		if err != nil {
			return fmt.Errorf("decode bundle: %w", err)
		}
		if warning != "" {
			fmt.Fprintf(os.Stderr, "Warning: %s\n", warning)
		}
		PrintVerbose("bundle holds %d record(s) exported at %s",
			bundle.TotalRecords, bundle.ExportedAt.Format(time.RFC3339))

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		engine := retention.NewEngine(store.Activity(), sysClock, archiveDir)
		result, err := engine.Import(context.Background(), bundle)
		if err != nil {
			return fmt.Errorf("import: %w", err)
		}

		fmt.Printf("Imported %d record(s), skipped %d\n", result.Imported, result.Skipped)
		for _, e := range result.Errors {
			fmt.Fprintf(os.Stderr, "Warning: %s\n", e)
		}
		return nil
	},
}

// purgeCmd deletes records older than a cutoff without archiving them.
var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete records older than a cutoff",
	Long: `Permanently delete activity records older than the given number
of days. No archive is written; export first if the records matter.

Example:
  trailctl purge --older-than 365`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if purgeOlderDays <= 0 {
			return fmt.Errorf("--older-than must be a positive number of days")
		}

		cutoff := sysClock.Now().AddDate(0, 0, -purgeOlderDays)
		if !purgeForce {
			fmt.Printf("Delete all records older than %s? [y/N] ", cutoff.Format("2006-01-02"))
			reader := bufio.NewReader(os.Stdin)
			answer, _ := reader.ReadString('\n')
			if a := strings.ToLower(strings.TrimSpace(answer)); a != "y" && a != "yes" {
				fmt.Println("Aborted.")
				return nil
			}
		}

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		engine := retention.NewEngine(store.Activity(), sysClock, archiveDir)
		deleted, err := engine.PurgeOlderThan(context.Background(), cutoff)
		if err != nil {
			return fmt.Errorf("purge: %w", err)
		}

		fmt.Printf("Deleted %d record(s)\n", deleted)
		return nil
	},
}

// compressCmd compresses large stored payloads in place.
var compressCmd = &cobra.Command{
	Use:   "compress",
	Short: "Compress large record payloads in place",
	Long: `Compress oversized input and output payloads of stored records
without deleting anything. Reads stay transparent; payloads are
decompressed on the way out.

Example:
  trailctl compress`,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		engine := retention.NewEngine(store.Activity(), sysClock, archiveDir)
		result, err := engine.CompressInPlace(context.Background())
		if err != nil {
			return fmt.Errorf("compress: %w", err)
		}

		fmt.Printf("Examined %d record(s), compressed %d, saved %d bytes\n",
			result.Examined, result.Compressed, result.BytesSaved)
		return nil
	},
}

// statsCmd summarizes the stored record population.
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show storage statistics",
	Long: `Show record counts, estimated sizes, and the stored time range.

Example:
  trailctl stats --output json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		engine := retention.NewEngine(store.Activity(), sysClock, archiveDir)
		stats, err := engine.StorageStats(context.Background())
		if err != nil {
			return fmt.Errorf("storage stats: %w", err)
		}

		if GetOutput() == "json" {
			data, _ := json.MarshalIndent(stats, "", "  ")
			fmt.Println(string(data))
			return nil
		}

		fmt.Printf("\nTotal records:  %d\n", stats.TotalRecords)
		fmt.Printf("Total size:     %d bytes\n", stats.TotalSizeBytes)
		fmt.Printf("Average record: %d bytes\n", stats.AverageRecordSizeBytes)
		if stats.OldestRecord != nil {
			fmt.Printf("Oldest record:  %s\n", stats.OldestRecord.Format(time.RFC3339))
		}
		if stats.NewestRecord != nil {
			fmt.Printf("Newest record:  %s\n", stats.NewestRecord.Format(time.RFC3339))
		}

		if len(stats.CountsByModel) > 0 {
			fmt.Printf("\n%-30s  %s\n", "MODEL", "RECORDS")
			fmt.Println(strings.Repeat("-", 40))
			for model, count := range stats.CountsByModel {
				fmt.Printf("%-30s  %d\n", truncate(model, 30), count)
			}
		}
		if len(stats.CountsByStatus) > 0 {
			fmt.Printf("\n%-30s  %s\n", "STATUS", "RECORDS")
			fmt.Println(strings.Repeat("-", 40))
			for status, count := range stats.CountsByStatus {
				fmt.Printf("%-30s  %d\n", string(status), count)
			}
		}
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{importCmd, purgeCmd, compressCmd, statsCmd} {
		c.Flags().StringVar(&archiveDir, "archive-dir", "archives", "archive directory")
	}
	purgeCmd.Flags().IntVar(&purgeOlderDays, "older-than", 0, "age cutoff in days (required)")
	purgeCmd.Flags().BoolVar(&purgeForce, "force", false, "skip the confirmation prompt")

	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(purgeCmd)
	rootCmd.AddCommand(compressCmd)
	rootCmd.AddCommand(statsCmd)
}
