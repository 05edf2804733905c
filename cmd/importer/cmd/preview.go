package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"transaction-import-service/internal/parsers"
	"transaction-import-service/internal/reporter"

	"github.com/spf13/cobra"
)

var previewCmd = &cobra.Command{
	Use:   "preview <file>",
	Short: "Preview a transaction CSV export without importing it",
	Long: `Preview checks whether a CSV export is importable and shows the
detected column layout along with a few sample rows. Nothing is stored.

Examples:
  importer preview transactions.csv
  importer preview transactions.csv --output-format json`,
	Args: cobra.ExactArgs(1),
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return validateFileExists(args[0], "input file")
	},
	RunE: runPreview,
}

func init() {
	rootCmd.AddCommand(previewCmd)

	previewCmd.Flags().StringVarP(&outputFormat, "output-format", "f", "console", "output format (console, json)")
}

func runPreview(cmd *cobra.Command, args []string) error {
	inputFile := args[0]

	data, err := os.ReadFile(inputFile)
	if err != nil {
		return fmt.Errorf("failed to read input file: %w", err)
	}

	parser := parsers.NewCSVParser(parsers.DefaultConfig())
	preview := parser.Preview(data, filepath.Base(inputFile))

	reportConfig := reporter.DefaultReportConfig()
	if outputFormat == "json" {
		reportConfig.Format = reporter.FormatJSON
	}

	reportGenerator, err := reporter.NewReportGenerator(reportConfig)
	if err != nil {
		return err
	}
	return reportGenerator.WritePreviewReport(preview, os.Stdout)
}
