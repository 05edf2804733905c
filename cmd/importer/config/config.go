// Package config translates CLI flags into component configurations.
package config

import (
	"transaction-import-service/internal/dedup"
	"transaction-import-service/internal/importer"
	"transaction-import-service/internal/parsers"
	"transaction-import-service/internal/reporter"
	"transaction-import-service/internal/storage"
	"transaction-import-service/internal/storage/memory"
	"transaction-import-service/internal/storage/sqlitestore"
)

// CreateParserConfig creates a default CSV parser configuration
func CreateParserConfig() *parsers.Config {
	return parsers.DefaultConfig()
}

// CreateDetectorConfig creates a detector configuration with the specified
// CLI overrides applied
func CreateDetectorConfig(fuzzy bool, dateTolerance int, minConfidence float64) *dedup.DetectorConfig {
	config := dedup.DefaultDetectorConfig()
	if fuzzy {
		config = dedup.FuzzyDetectorConfig()
	}

	// Apply CLI overrides
	if dateTolerance >= 0 {
		config.DateToleranceDays = dateTolerance
	}
	if minConfidence > 0 {
		config.MinConfidenceScore = minConfidence
	}

	return config
}

// CreateImporterConfig creates an import service configuration
func CreateImporterConfig(fuzzy bool, dateTolerance int, minConfidence float64) *importer.Config {
	return &importer.Config{
		Parser:   CreateParserConfig(),
		Detector: CreateDetectorConfig(fuzzy, dateTolerance, minConfidence),
	}
}

// CreateReportConfig creates a report configuration for the specified
// output format
func CreateReportConfig(format string) *reporter.ReportConfig {
	config := reporter.DefaultReportConfig()

	switch format {
	case "console":
		config.Format = reporter.FormatConsole
	case "json":
		config.Format = reporter.FormatJSON
		config.IncludeImported = true
	case "csv":
		config.Format = reporter.FormatCSV
		config.CSVHeaders = true
		config.CSVDelimiter = ','
		config.IncludeImported = true
	}

	return config
}

// OpenStore opens the transaction store selected by the --db flag. An
// empty path selects an in-memory store that lives for one invocation.
// The returned closer must be called when the store is no longer needed.
func OpenStore(path string) (storage.Store, func() error, error) {
	if path == "" {
		return memory.NewStore(), func() error { return nil }, nil
	}

	store, err := sqlitestore.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return store, store.Close, nil
}
