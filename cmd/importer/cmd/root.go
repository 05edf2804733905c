package cmd

import (
	"fmt"
	"os"

	"transaction-import-service/pkg/logger"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	verbose bool
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "importer",
	Short: "Transaction CSV import tool",
	Long: `Importer is a command-line tool for loading transaction CSV exports
into a transaction store. It maps common export column layouts, skips exact
duplicates, flags likely duplicates for review, and records every run as an
auditable import session.

Examples:
  importer import transactions.csv
  importer import transactions.csv --db ledger.db --fuzzy --output-format json
  importer preview transactions.csv
  importer sessions --db ledger.db`,
	Version: getVersionString(),
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main(). It returns the process
// exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		return NewCLIErrorHandler().HandleError(err)
	}
	return 0
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (optional)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().String("db", "", "SQLite database path (defaults to an in-memory store)")

	// Bind flags to viper
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag("db", rootCmd.PersistentFlags().Lookup("db"))

	// RunE errors are rendered by the CLI error handler
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
}

// initConfig reads in config file and ENV variables.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)

		// If a config file is specified, read it in.
		if err := viper.ReadInConfig(); err != nil {
			fmt.Fprintf(os.Stderr, "Error reading config file: %s\n", err)
			os.Exit(1)
		}

		if viper.GetBool("verbose") {
			fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
		}
	}

	// Read environment variables that match
	viper.SetEnvPrefix("IMPORTER")
	viper.AutomaticEnv()

	if viper.GetBool("verbose") {
		if log, err := logger.NewLogger(logger.DebugConfig()); err == nil {
			logger.SetGlobalLogger(log)
		}
	}
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = getVersionString()
}

func getVersionString() string {
	if version == "dev" {
		return fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)
	}
	return version
}
