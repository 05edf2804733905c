// Package parsers turns raw CSV exports into normalized transaction
// candidates.
//
// Parsing is deliberately forgiving at the row level and strict at the file
// level: a export whose structure cannot be understood (wrong extension,
// oversized, unmappable header, malformed CSV framing) fails fast before any
// session exists, while individual bad rows are collected as row errors and
// never abort the batch. Column roles are inferred from header text with an
// ordered-rule matcher, so exports from different institutions map onto the
// same candidate shape without per-bank configuration.
package parsers

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"transaction-import-service/internal/models"
	"transaction-import-service/internal/normalize"
	pkgerrors "transaction-import-service/pkg/errors"
	"transaction-import-service/pkg/logger"
)

const (
	// MaxFileSize caps accepted uploads at 10MB
	MaxFileSize = 10 * 1024 * 1024
	// MinHeaderColumns is the fewest columns a mappable export can carry
	MinHeaderColumns = 3
)

// Config holds configuration for CSV parsing
type Config struct {
	MaxFileSize      int64
	Delimiter        rune
	TrimLeadingSpace bool
	SampleRows       int
	// Now supplies the future-date cutoff; tests pin it
	Now func() time.Time
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		MaxFileSize:      MaxFileSize,
		Delimiter:        ',',
		TrimLeadingSpace: true,
		SampleRows:       5,
		Now:              time.Now,
	}
}

// ParseResult is everything the parser learned about one export.
type ParseResult struct {
	Candidates []*models.Candidate
	Errors     []*models.RowError
	TotalRows  int
	ValidRows  int
	Headers    []string
	Mapping    *ColumnMapping
}

// PreviewResult is the dry-run view of an export for callers that want to
// show users what an import would do before committing to it.
type PreviewResult struct {
	IsValid           bool       `json:"is_valid"`
	Errors            []string   `json:"errors"`
	Headers           []string   `json:"headers"`
	SampleRows        [][]string `json:"sample_rows"`
	EstimatedRowCount int        `json:"estimated_row_count"`
}

// CSVParser parses transaction CSV exports from a byte buffer.
type CSVParser struct {
	config *Config
	logger logger.Logger
}

// NewCSVParser creates a parser with the given configuration
func NewCSVParser(config *Config) *CSVParser {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	return &CSVParser{
		config: config,
		logger: logger.GetGlobalLogger().WithComponent("csv_parser"),
	}
}

// Parse validates the file and converts its data rows into candidates.
// File-level problems return a fatal error and no result; row-level problems
// are collected into the result and counted toward TotalRows.
func (p *CSVParser) Parse(data []byte, filename string) (*ParseResult, error) {
	if err := p.validateFile(data, filename); err != nil {
		return nil, err
	}

	reader := p.newReader(data)

	headers, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, pkgerrors.FileError(pkgerrors.CodeEmptyFile, filename, nil)
		}
		return nil, pkgerrors.ParseError(pkgerrors.CodeInvalidFormat, filename, "unreadable header row", err)
	}

	headers = cleanHeaders(headers)
	if len(headers) < MinHeaderColumns {
		return nil, pkgerrors.ParseError(
			pkgerrors.CodeTooFewColumns,
			filename,
			fmt.Sprintf("found %d column(s), need at least %d", len(headers), MinHeaderColumns),
			nil,
		)
	}

	mapping, err := MapColumns(headers, filename)
	if err != nil {
		p.logger.WithError(err).WithField("headers", headers).Warn("Column mapping failed")
		return nil, err
	}

	result := &ParseResult{
		Headers: headers,
		Mapping: mapping,
	}

	now := p.config.Now()
	rowNumber := 1 // header occupies row 1

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Malformed CSV framing aborts the whole file
			return nil, pkgerrors.ParseError(pkgerrors.CodeInvalidFormat, filename,
				fmt.Sprintf("malformed record near row %d", rowNumber+1), err)
		}

		rowNumber++
		// Blank records keep their physical row number but are not data rows
		if isEmptyRecord(record) {
			continue
		}

		result.TotalRows++

		candidate, rowErr := p.parseRow(record, mapping, rowNumber, now)
		if rowErr != nil {
			result.Errors = append(result.Errors, rowErr)
			continue
		}

		result.Candidates = append(result.Candidates, candidate)
	}

	result.ValidRows = len(result.Candidates)

	p.logger.WithFields(logger.Fields{
		"filename":   filename,
		"total_rows": result.TotalRows,
		"valid_rows": result.ValidRows,
		"row_errors": len(result.Errors),
	}).Debug("Parsed CSV export")

	return result, nil
}

// Preview runs file validation and column mapping without normalizing every
// row, returning headers, a sample of raw rows and the estimated row count.
func (p *CSVParser) Preview(data []byte, filename string) *PreviewResult {
	preview := &PreviewResult{
		IsValid: true,
		Errors:  []string{},
	}

	if err := p.validateFile(data, filename); err != nil {
		preview.IsValid = false
		preview.Errors = append(preview.Errors, err.Error())
		return preview
	}

	reader := p.newReader(data)

	headers, err := reader.Read()
	if err != nil {
		preview.IsValid = false
		preview.Errors = append(preview.Errors, pkgerrors.FileError(pkgerrors.CodeEmptyFile, filename, nil).Error())
		return preview
	}

	preview.Headers = cleanHeaders(headers)
	if len(preview.Headers) < MinHeaderColumns {
		preview.IsValid = false
		preview.Errors = append(preview.Errors, pkgerrors.ParseError(
			pkgerrors.CodeTooFewColumns,
			filename,
			fmt.Sprintf("found %d column(s), need at least %d", len(preview.Headers), MinHeaderColumns),
			nil,
		).Error())
	}

	if _, err := MapColumns(preview.Headers, filename); err != nil {
		preview.IsValid = false
		preview.Errors = append(preview.Errors, err.Error())
	}

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			preview.IsValid = false
			preview.Errors = append(preview.Errors, err.Error())
			break
		}
		if isEmptyRecord(record) {
			continue
		}

		preview.EstimatedRowCount++
		if len(preview.SampleRows) < p.config.SampleRows {
			preview.SampleRows = append(preview.SampleRows, record)
		}
	}

	return preview
}

func (p *CSVParser) validateFile(data []byte, filename string) error {
	if len(data) == 0 {
		return pkgerrors.FileError(pkgerrors.CodeEmptyFile, filename, nil)
	}

	if !strings.EqualFold(filepath.Ext(filename), ".csv") {
		return pkgerrors.FileError(pkgerrors.CodeInvalidExtension, filename, nil)
	}

	if int64(len(data)) > p.config.MaxFileSize {
		return pkgerrors.FileError(pkgerrors.CodeFileTooLarge, filename,
			fmt.Errorf("%d bytes exceeds limit of %d", len(data), p.config.MaxFileSize))
	}

	return nil
}

func (p *CSVParser) newReader(data []byte) *csv.Reader {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = p.config.Delimiter
	reader.TrimLeadingSpace = p.config.TrimLeadingSpace
	reader.FieldsPerRecord = -1
	return reader
}

// parseRow converts one data record into a candidate, or a row error naming
// what failed. The returned candidate carries its source row number.
func (p *CSVParser) parseRow(record []string, mapping *ColumnMapping, rowNumber int, now time.Time) (*models.Candidate, *models.RowError) {
	fail := func(message string) *models.RowError {
		return &models.RowError{
			Row:     rowNumber,
			Message: message,
			RawRow:  strings.Join(record, ","),
		}
	}

	rawDate, ok := fieldAt(record, mapping.Date)
	if !ok || rawDate == "" {
		return nil, fail("missing date")
	}

	rawAmount, ok := fieldAt(record, mapping.Amount)
	if !ok || rawAmount == "" {
		return nil, fail("missing amount")
	}

	description, ok := fieldAt(record, mapping.Description)
	if !ok || description == "" {
		return nil, fail("missing description")
	}
	if utf8.RuneCountInString(description) > models.MaxDescriptionLength {
		return nil, fail(fmt.Sprintf("description exceeds %d characters", models.MaxDescriptionLength))
	}

	category := ""
	if mapping.HasCategory() {
		category, _ = fieldAt(record, mapping.Category)
		if utf8.RuneCountInString(category) > models.MaxCategoryLength {
			return nil, fail(fmt.Sprintf("category exceeds %d characters", models.MaxCategoryLength))
		}
	}

	hint := normalize.SignNone
	if mapping.HasTypeHint() {
		if rawType, ok := fieldAt(record, mapping.TypeHint); ok {
			hint = normalize.ParseSignHint(rawType)
		}
	}

	date, err := normalize.DateAt(rawDate, now)
	if err != nil {
		return nil, fail(fmt.Sprintf("invalid date %q: %s", rawDate, rootMessage(err)))
	}

	amount, err := normalize.Amount(rawAmount, hint)
	if err != nil {
		return nil, fail(fmt.Sprintf("invalid amount %q: %s", rawAmount, rootMessage(err)))
	}

	candidate := models.NewCandidate(date, amount, description, category)
	candidate.Row = rowNumber
	return candidate, nil
}

// fieldAt returns the trimmed field value at index, reporting whether the
// record is wide enough to hold it.
func fieldAt(record []string, index int) (string, bool) {
	if index < 0 || index >= len(record) {
		return "", false
	}
	return strings.TrimSpace(record[index]), true
}

// rootMessage strips the structured-error wrapping down to the message,
// keeping row errors readable in user-facing listings.
func rootMessage(err error) string {
	if importErr, ok := pkgerrors.AsImportError(err); ok {
		return importErr.Message
	}
	return err.Error()
}

func cleanHeaders(headers []string) []string {
	cleaned := make([]string, len(headers))
	for i, header := range headers {
		cleaned[i] = strings.TrimSpace(header)
	}
	return cleaned
}

func isEmptyRecord(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}
