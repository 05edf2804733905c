package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"transaction-import-service/cmd/importer/config"
	"transaction-import-service/internal/reporter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	sessionLimit  int
	pruneAge      time.Duration
	cancelReason  string
	sessionFormat string
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List recent import sessions",
	Long: `Sessions lists recent import sessions, newest first. Each session
records one import run: the file, its row counts, and whether the run
completed or failed.

Examples:
  importer sessions --db ledger.db
  importer sessions --db ledger.db --limit 5 --output-format json
  importer sessions prune --db ledger.db --older-than 720h
  importer sessions cancel 12 --db ledger.db`,
	RunE: runSessionsList,
}

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete finished sessions older than a retention window",
	RunE:  runSessionsPrune,
}

var cancelCmd = &cobra.Command{
	Use:   "cancel <id>",
	Short: "Mark a pending session as failed",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsCancel,
}

func init() {
	rootCmd.AddCommand(sessionsCmd)
	sessionsCmd.AddCommand(pruneCmd)
	sessionsCmd.AddCommand(cancelCmd)

	sessionsCmd.Flags().IntVar(&sessionLimit, "limit", 20, "maximum number of sessions to list")
	sessionsCmd.Flags().StringVarP(&sessionFormat, "output-format", "f", "console", "output format (console, json)")
	pruneCmd.Flags().DurationVar(&pruneAge, "older-than", 30*24*time.Hour, "delete finished sessions started longer ago than this")
	cancelCmd.Flags().StringVar(&cancelReason, "reason", "cancelled by operator", "failure reason to record")
}

func runSessionsList(cmd *cobra.Command, args []string) error {
	store, closeStore, err := config.OpenStore(viper.GetString("db"))
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer closeStore()

	sessions, err := store.RecentSessions(context.Background(), sessionLimit)
	if err != nil {
		return err
	}

	reportConfig := reporter.DefaultReportConfig()
	if sessionFormat == "json" {
		reportConfig.Format = reporter.FormatJSON
	}
	reportGenerator, err := reporter.NewReportGenerator(reportConfig)
	if err != nil {
		return err
	}
	return reportGenerator.WriteSessionList(sessions, os.Stdout)
}

func runSessionsPrune(cmd *cobra.Command, args []string) error {
	if pruneAge <= 0 {
		return fmt.Errorf("retention window must be positive")
	}

	store, closeStore, err := config.OpenStore(viper.GetString("db"))
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer closeStore()

	cutoff := time.Now().UTC().Add(-pruneAge)
	deleted, err := store.DeleteSessionsOlderThan(context.Background(), cutoff)
	if err != nil {
		return err
	}

	fmt.Printf("Deleted %d session(s) started before %s\n", deleted, cutoff.Format(time.RFC3339))
	return nil
}

func runSessionsCancel(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid session id '%s'", args[0])
	}

	store, closeStore, err := config.OpenStore(viper.GetString("db"))
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer closeStore()

	if err := store.MarkFailed(context.Background(), id, cancelReason); err != nil {
		return err
	}

	fmt.Printf("Session #%d marked as failed: %s\n", id, cancelReason)
	return nil
}
