// Package reporter renders import results for terminal and machine
// consumption.
//
// Supported output formats:
//   - Console: Human-readable output for terminal display
//   - JSON: Structured data format for programmatic consumption
//   - CSV: Row-level outcome listing for spreadsheet applications
//
// Example usage:
//
//	generator, err := reporter.NewReportGenerator(nil)
//	err = generator.WriteImportReport(result, os.Stdout)
package reporter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"transaction-import-service/internal/importer"
	"transaction-import-service/internal/models"
	"transaction-import-service/internal/parsers"
)

// OutputFormat represents the supported report output formats.
type OutputFormat string

const (
	FormatConsole OutputFormat = "console"
	FormatJSON    OutputFormat = "json"
	FormatCSV     OutputFormat = "csv"
)

// IsValid checks if the output format is supported
func (f OutputFormat) IsValid() bool {
	switch f {
	case FormatConsole, FormatJSON, FormatCSV:
		return true
	default:
		return false
	}
}

// ReportConfig holds configuration options for report generation
type ReportConfig struct {
	Format OutputFormat `json:"format"`

	// Detail level options
	IncludeImported   bool `json:"include_imported"`
	IncludeDuplicates bool `json:"include_duplicates"`
	IncludeErrors     bool `json:"include_errors"`
	IncludeFuzzy      bool `json:"include_fuzzy"`

	// Console options
	MaxListedRows int `json:"max_listed_rows"`

	// CSV options
	CSVDelimiter rune `json:"csv_delimiter"`
	CSVHeaders   bool `json:"csv_headers"`
}

// DefaultReportConfig returns a default report configuration
func DefaultReportConfig() *ReportConfig {
	return &ReportConfig{
		Format:            FormatConsole,
		IncludeImported:   false,
		IncludeDuplicates: true,
		IncludeErrors:     true,
		IncludeFuzzy:      true,
		MaxListedRows:     50,
		CSVDelimiter:      ',',
		CSVHeaders:        true,
	}
}

// Validate validates the report configuration
func (c *ReportConfig) Validate() error {
	if !c.Format.IsValid() {
		return fmt.Errorf("invalid output format: %s", c.Format)
	}
	if c.MaxListedRows < 1 {
		return fmt.Errorf("max listed rows must be positive, got %d", c.MaxListedRows)
	}
	return nil
}

// ReportGenerator renders import results in the configured format.
type ReportGenerator struct {
	config *ReportConfig
}

// NewReportGenerator creates a report generator with the specified
// configuration.
func NewReportGenerator(config *ReportConfig) (*ReportGenerator, error) {
	if config == nil {
		config = DefaultReportConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid report configuration: %w", err)
	}

	return &ReportGenerator{
		config: config,
	}, nil
}

// WriteImportReport renders one import result to the writer.
func (rg *ReportGenerator) WriteImportReport(result *importer.ImportResult, writer io.Writer) error {
	if result == nil {
		return fmt.Errorf("import result cannot be nil")
	}

	switch rg.config.Format {
	case FormatConsole:
		return rg.writeConsoleReport(result, writer)
	case FormatJSON:
		return writeJSON(result, writer)
	case FormatCSV:
		return rg.writeCSVReport(result, writer)
	default:
		return fmt.Errorf("unsupported output format: %s", rg.config.Format)
	}
}

// WritePreviewReport renders a dry-run preview to the writer.
func (rg *ReportGenerator) WritePreviewReport(preview *parsers.PreviewResult, writer io.Writer) error {
	if preview == nil {
		return fmt.Errorf("preview result cannot be nil")
	}

	if rg.config.Format == FormatJSON {
		return writeJSON(preview, writer)
	}

	if !preview.IsValid {
		fmt.Fprintf(writer, "FILE NOT IMPORTABLE\n")
		for _, msg := range preview.Errors {
			fmt.Fprintf(writer, "  - %s\n", msg)
		}
		return nil
	}

	fmt.Fprintf(writer, "PREVIEW\n")
	fmt.Fprintf(writer, "Columns:        %v\n", preview.Headers)
	fmt.Fprintf(writer, "Estimated rows: %d\n", preview.EstimatedRowCount)
	if len(preview.SampleRows) > 0 {
		fmt.Fprintf(writer, "Sample:\n")
		for _, row := range preview.SampleRows {
			fmt.Fprintf(writer, "  %v\n", row)
		}
	}
	return nil
}

// WriteSessionList renders recent sessions to the writer.
func (rg *ReportGenerator) WriteSessionList(sessions []*models.ImportSession, writer io.Writer) error {
	if rg.config.Format == FormatJSON {
		return writeJSON(sessions, writer)
	}

	if len(sessions) == 0 {
		fmt.Fprintf(writer, "No import sessions found.\n")
		return nil
	}

	fmt.Fprintf(writer, "%-6s %-30s %-10s %8s %8s %8s %8s  %s\n",
		"ID", "FILE", "STATUS", "ROWS", "NEW", "DUPS", "ERRORS", "STARTED")
	for _, session := range sessions {
		fmt.Fprintf(writer, "%-6d %-30s %-10s %8d %8d %8d %8d  %s\n",
			session.ID,
			truncate(session.Filename, 30),
			session.Status,
			session.TotalRows,
			session.ImportedCount,
			session.DuplicateCount,
			session.ErrorCount,
			session.StartedAt.Format(time.RFC3339))
		if session.FailureReason != "" {
			fmt.Fprintf(writer, "       reason: %s\n", session.FailureReason)
		}
	}
	return nil
}

func (rg *ReportGenerator) writeConsoleReport(result *importer.ImportResult, writer io.Writer) error {
	session := result.Session

	fmt.Fprintf(writer, "IMPORT REPORT\n")
	if session != nil {
		fmt.Fprintf(writer, "Session:  #%d (%s)\n", session.ID, session.Status)
		fmt.Fprintf(writer, "File:     %s\n", session.Filename)
		fmt.Fprintf(writer, "Started:  %s\n", session.StartedAt.Format(time.RFC3339))
	}
	fmt.Fprintf(writer, "\n")

	fmt.Fprintf(writer, "=== SUMMARY ===\n")
	fmt.Fprintf(writer, "  Imported:   %d\n", len(result.Imported))
	fmt.Fprintf(writer, "  Duplicates: %d\n", len(result.Duplicates))
	fmt.Fprintf(writer, "  Errors:     %d\n", len(result.Errors))
	if session != nil {
		fmt.Fprintf(writer, "  Total rows: %d\n", session.TotalRows)
	}
	fmt.Fprintf(writer, "\n")

	if rg.config.IncludeDuplicates && len(result.Duplicates) > 0 {
		fmt.Fprintf(writer, "=== SKIPPED DUPLICATES ===\n")
		for i, dup := range result.Duplicates {
			if i >= rg.config.MaxListedRows {
				fmt.Fprintf(writer, "  ... and %d more\n", len(result.Duplicates)-i)
				break
			}
			ref := fmt.Sprintf("existing #%d", dup.ExistingID)
			if dup.ExistingID == models.BatchDuplicateID {
				ref = "earlier row in this file"
			}
			fmt.Fprintf(writer, "  row %d: %s %s %q (%s)\n",
				dup.Row, dup.Date, dup.Amount.String(), dup.Description, ref)
		}
		fmt.Fprintf(writer, "\n")
	}

	if rg.config.IncludeErrors && len(result.Errors) > 0 {
		fmt.Fprintf(writer, "=== ROW ERRORS ===\n")
		for i, rowErr := range result.Errors {
			if i >= rg.config.MaxListedRows {
				fmt.Fprintf(writer, "  ... and %d more\n", len(result.Errors)-i)
				break
			}
			fmt.Fprintf(writer, "  row %d: %s\n", rowErr.Row, rowErr.Message)
		}
		fmt.Fprintf(writer, "\n")
	}

	if rg.config.IncludeFuzzy && len(result.PotentialDuplicates) > 0 {
		fmt.Fprintf(writer, "=== POTENTIAL DUPLICATES (review suggested) ===\n")
		for row, matches := range result.PotentialDuplicates {
			for _, match := range matches {
				fmt.Fprintf(writer, "  row %d: %.0f%% similar to existing #%d (%s: %v)\n",
					row, match.Confidence*100, match.ExistingID, match.MatchType, match.MatchedFields)
			}
		}
		fmt.Fprintf(writer, "\n")
	}

	if rg.config.IncludeImported && len(result.Imported) > 0 {
		fmt.Fprintf(writer, "=== IMPORTED TRANSACTIONS ===\n")
		for i, tx := range result.Imported {
			if i >= rg.config.MaxListedRows {
				fmt.Fprintf(writer, "  ... and %d more\n", len(result.Imported)-i)
				break
			}
			fmt.Fprintf(writer, "  #%d %s %s %q\n", tx.ID, tx.DateString(), tx.Amount.String(), tx.Description)
		}
	}

	return nil
}

func (rg *ReportGenerator) writeCSVReport(result *importer.ImportResult, writer io.Writer) error {
	csvWriter := csv.NewWriter(writer)
	csvWriter.Comma = rg.config.CSVDelimiter
	defer csvWriter.Flush()

	if rg.config.CSVHeaders {
		headers := []string{"Outcome", "Row", "Date", "Amount", "Description", "Existing_ID", "Detail"}
		if err := csvWriter.Write(headers); err != nil {
			return fmt.Errorf("failed to write CSV headers: %w", err)
		}
	}

	for _, tx := range result.Imported {
		record := []string{
			"imported",
			"",
			tx.DateString(),
			tx.Amount.String(),
			tx.Description,
			strconv.FormatInt(tx.ID, 10),
			"",
		}
		if err := csvWriter.Write(record); err != nil {
			return fmt.Errorf("failed to write imported record: %w", err)
		}
	}

	for _, dup := range result.Duplicates {
		record := []string{
			"duplicate",
			strconv.Itoa(dup.Row),
			dup.Date,
			dup.Amount.String(),
			dup.Description,
			strconv.FormatInt(dup.ExistingID, 10),
			"",
		}
		if err := csvWriter.Write(record); err != nil {
			return fmt.Errorf("failed to write duplicate record: %w", err)
		}
	}

	for _, rowErr := range result.Errors {
		record := []string{
			"error",
			strconv.Itoa(rowErr.Row),
			"", "", "", "",
			rowErr.Message,
		}
		if err := csvWriter.Write(record); err != nil {
			return fmt.Errorf("failed to write error record: %w", err)
		}
	}

	return csvWriter.Error()
}

func writeJSON(v interface{}, writer io.Writer) error {
	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
