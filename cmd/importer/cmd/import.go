package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"transaction-import-service/cmd/importer/config"
	"transaction-import-service/internal/importer"
	"transaction-import-service/internal/reporter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	noSkipDuplicates bool
	validateOnly     bool
	fuzzyMatching    bool
	dateTolerance    int
	minConfidence    float64
	outputFormat     string
	outputFile       string
)

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import a transaction CSV export",
	Long: `Import parses a transaction CSV export, rejects rows that already
exist in the store, and persists the rest. Every run is recorded as an
import session whose counts account for every data row in the file.

Exact duplicates are matched on date, amount, and description. By default
duplicate rows are skipped and reported; with --no-skip-duplicates each row
is stored individually and duplicates are resolved against the existing
record. With --fuzzy, near-matches in stored history are flagged for review
without blocking the import.

Examples:
  importer import transactions.csv
  importer import transactions.csv --db ledger.db
  importer import transactions.csv --validate-only
  importer import transactions.csv --fuzzy --date-tolerance 2 --confidence 0.85
  importer import transactions.csv --output-format csv --output-file report.csv`,
	Args:    cobra.ExactArgs(1),
	PreRunE: validateImportFlags,
	RunE:    runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().BoolVar(&noSkipDuplicates, "no-skip-duplicates", false, "store rows one at a time instead of skipping duplicates in bulk")
	importCmd.Flags().BoolVar(&validateOnly, "validate-only", false, "parse and validate without storing anything")
	importCmd.Flags().BoolVar(&fuzzyMatching, "fuzzy", false, "flag likely duplicates in stored history for review")
	importCmd.Flags().IntVar(&dateTolerance, "date-tolerance", 3, "date tolerance in days for fuzzy matching")
	importCmd.Flags().Float64Var(&minConfidence, "confidence", 0.8, "minimum confidence score for fuzzy matches (0.0-1.0)")
	importCmd.Flags().StringVarP(&outputFormat, "output-format", "f", "console", "output format (console, json, csv)")
	importCmd.Flags().StringVarP(&outputFile, "output-file", "o", "", "output file (default: stdout)")

	viper.BindPFlag("no_skip_duplicates", importCmd.Flags().Lookup("no-skip-duplicates"))
	viper.BindPFlag("validate_only", importCmd.Flags().Lookup("validate-only"))
	viper.BindPFlag("fuzzy", importCmd.Flags().Lookup("fuzzy"))
	viper.BindPFlag("date_tolerance", importCmd.Flags().Lookup("date-tolerance"))
	viper.BindPFlag("confidence", importCmd.Flags().Lookup("confidence"))
	viper.BindPFlag("output_format", importCmd.Flags().Lookup("output-format"))
	viper.BindPFlag("output_file", importCmd.Flags().Lookup("output-file"))
}

func validateImportFlags(cmd *cobra.Command, args []string) error {
	noSkipDuplicates = viper.GetBool("no_skip_duplicates")
	validateOnly = viper.GetBool("validate_only")
	fuzzyMatching = viper.GetBool("fuzzy")
	dateTolerance = viper.GetInt("date_tolerance")
	minConfidence = viper.GetFloat64("confidence")
	outputFormat = viper.GetString("output_format")
	outputFile = viper.GetString("output_file")

	if err := validateFileExists(args[0], "input file"); err != nil {
		return err
	}

	if !reporter.OutputFormat(outputFormat).IsValid() {
		return fmt.Errorf("invalid output format '%s'. Valid formats: console, json, csv", outputFormat)
	}

	if dateTolerance < 0 {
		return fmt.Errorf("date tolerance cannot be negative")
	}
	if minConfidence < 0.0 || minConfidence > 1.0 {
		return fmt.Errorf("confidence must be between 0.0 and 1.0")
	}

	// Validate output file directory exists if specified
	if outputFile != "" {
		dir := filepath.Dir(outputFile)
		if dir != "." {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				return fmt.Errorf("output directory does not exist: %s", dir)
			}
		}
	}

	return nil
}

func validateFileExists(filePath, description string) error {
	if filePath == "" {
		return fmt.Errorf("%s path cannot be empty", description)
	}

	info, err := os.Stat(filePath)
	if os.IsNotExist(err) {
		return fmt.Errorf("%s does not exist: %s", description, filePath)
	}
	if err != nil {
		return fmt.Errorf("error accessing %s: %w", description, err)
	}

	if info.IsDir() {
		return fmt.Errorf("%s is a directory, expected a file: %s", description, filePath)
	}

	return nil
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	inputFile := args[0]

	if viper.GetBool("verbose") {
		fmt.Fprintf(os.Stderr, "Importing %s\n", inputFile)
		fmt.Fprintf(os.Stderr, "Output format: %s\n", outputFormat)
		if outputFile != "" {
			fmt.Fprintf(os.Stderr, "Output file: %s\n", outputFile)
		}
	}

	data, err := os.ReadFile(inputFile)
	if err != nil {
		return fmt.Errorf("failed to read input file: %w", err)
	}

	store, closeStore, err := config.OpenStore(viper.GetString("db"))
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer closeStore()

	importerConfig := config.CreateImporterConfig(fuzzyMatching, dateTolerance, minConfidence)
	service, err := importer.NewImportService(store, store, importerConfig)
	if err != nil {
		return fmt.Errorf("failed to create import service: %w", err)
	}

	options := &importer.ImportOptions{
		SkipDuplicates: !noSkipDuplicates,
		ValidateOnly:   validateOnly,
		FuzzyMatching:  fuzzyMatching,
	}

	result, err := service.ImportCSV(ctx, data, filepath.Base(inputFile), options)
	if err != nil {
		return err
	}

	// Generate report
	reportConfig := config.CreateReportConfig(outputFormat)
	reportGenerator, err := reporter.NewReportGenerator(reportConfig)
	if err != nil {
		return fmt.Errorf("failed to create report generator: %w", err)
	}

	output, closeOutput, err := openOutput(outputFile)
	if err != nil {
		return err
	}
	defer closeOutput()

	if err := reportGenerator.WriteImportReport(result, output); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	if outputFile != "" && viper.GetBool("verbose") {
		fmt.Fprintf(os.Stderr, "Report written to %s\n", outputFile)
	}

	return nil
}

func openOutput(path string) (*os.File, func() error, error) {
	if path == "" {
		return os.Stdout, func() error { return nil }, nil
	}

	output, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return output, output.Close, nil
}
