// Package importer coordinates the full import workflow: parsing, duplicate
// handling, persistence, and the import-session lifecycle.
//
// Each call to ImportCSV processes one file start to finish:
//  1. File validation and parsing into normalized candidates
//  2. Session creation in pending state
//  3. Persistence with exact-duplicate handling (skip or per-row mode)
//  4. Optional advisory fuzzy matching against stored history
//  5. Session finalization to completed or failed
//
// Fatal problems with the file itself (oversized, unmappable columns,
// malformed CSV) surface before any session exists. Once a session has been
// created it is always driven to a terminal state before the call returns.
//
// Example usage:
//
//	service, err := importer.NewImportService(store, store, nil)
//	result, err := service.ImportCSV(ctx, data, "january.csv", importer.DefaultImportOptions())
package importer

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"transaction-import-service/internal/dedup"
	"transaction-import-service/internal/models"
	"transaction-import-service/internal/parsers"
	"transaction-import-service/internal/storage"
	pkgerrors "transaction-import-service/pkg/errors"
	"transaction-import-service/pkg/logger"
)

// Config bundles the tunables of the import service.
type Config struct {
	Parser   *parsers.Config
	Detector *dedup.DetectorConfig
}

// DefaultConfig returns a configuration with default parser and detector
// settings.
func DefaultConfig() *Config {
	return &Config{
		Parser:   parsers.DefaultConfig(),
		Detector: dedup.DefaultDetectorConfig(),
	}
}

// ImportOptions control how one import run behaves.
type ImportOptions struct {
	// SkipDuplicates selects bulk persistence with per-row duplicate
	// skipping. When false, candidates are persisted one at a time and
	// duplicates are re-resolved through an exact-match lookup.
	SkipDuplicates bool `json:"skip_duplicates"`

	// ValidateOnly stops after parsing: the session completes immediately
	// with zero imported and duplicate counts.
	ValidateOnly bool `json:"validate_only"`

	// FuzzyMatching enables advisory similarity scanning of the batch
	// against stored history. Fuzzy results are reported, never enforced.
	FuzzyMatching bool `json:"fuzzy_matching"`
}

// DefaultImportOptions returns the standard options: skip duplicates,
// persist everything else.
func DefaultImportOptions() *ImportOptions {
	return &ImportOptions{
		SkipDuplicates: true,
	}
}

// ImportResult is the outcome of one import run.
type ImportResult struct {
	Session    *models.ImportSession   `json:"session"`
	Imported   []*models.Transaction   `json:"imported"`
	Duplicates []*models.DuplicateInfo `json:"duplicates"`
	Errors     []*models.RowError      `json:"errors"`

	// PotentialDuplicates holds advisory fuzzy matches keyed by CSV row
	// number, populated only when fuzzy matching was requested.
	PotentialDuplicates map[int][]*models.DuplicateMatch `json:"potential_duplicates,omitempty"`
}

// ImportService coordinates parsing, duplicate detection and persistence.
type ImportService struct {
	transactions storage.TransactionStore
	sessions     storage.SessionStore
	parser       *parsers.CSVParser
	detectorCfg  *dedup.DetectorConfig
	logger       logger.Logger
}

// NewImportService creates an import service backed by the given stores.
func NewImportService(transactions storage.TransactionStore, sessions storage.SessionStore, config *Config) (*ImportService, error) {
	if transactions == nil {
		return nil, pkgerrors.ValidationError(pkgerrors.CodeMissingField, "transaction_store", nil, nil).
			WithSuggestion("provide a transaction store implementation")
	}
	if sessions == nil {
		return nil, pkgerrors.ValidationError(pkgerrors.CodeMissingField, "session_store", nil, nil).
			WithSuggestion("provide a session store implementation")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.Detector != nil {
		if err := config.Detector.Validate(); err != nil {
			return nil, pkgerrors.InternalError(pkgerrors.CodeInvalidConfig, "import service", err)
		}
	}

	return &ImportService{
		transactions: transactions,
		sessions:     sessions,
		parser:       parsers.NewCSVParser(config.Parser),
		detectorCfg:  config.Detector,
		logger:       logger.GetGlobalLogger().WithComponent("import_service"),
	}, nil
}

// ImportCSV runs one complete import of the given file contents.
func (s *ImportService) ImportCSV(ctx context.Context, data []byte, filename string, options *ImportOptions) (*ImportResult, error) {
	if options == nil {
		options = DefaultImportOptions()
	}

	runID := uuid.NewString()
	log := s.logger.WithFields(logger.Fields{
		"run_id":   runID,
		"filename": filename,
	})
	log.Info("Starting import")

	parseResult, err := s.parser.Parse(data, filename)
	if err != nil {
		log.WithError(err).Error("Import aborted during parsing")
		return nil, err
	}

	if len(parseResult.Candidates) == 0 && len(parseResult.Errors) == 0 {
		log.Warn("File contains no transaction data")
		return nil, pkgerrors.SessionError(pkgerrors.CodeNoValidData, filename, nil)
	}

	session, err := s.sessions.CreateSession(ctx, &models.ImportSession{
		Filename:  filename,
		TotalRows: parseResult.TotalRows,
	})
	if err != nil {
		log.WithError(err).Error("Failed to create import session")
		return nil, err
	}
	log = log.WithField("session_id", session.ID)

	result := &ImportResult{
		Errors: append([]*models.RowError{}, parseResult.Errors...),
	}

	if options.ValidateOnly {
		return s.finalizeValidateOnly(ctx, log, session.ID, result)
	}

	if options.FuzzyMatching {
		if err := s.scanForPotentialDuplicates(ctx, log, parseResult.Candidates, result); err != nil {
			// Advisory scanning must not sink an otherwise healthy import.
			log.WithError(err).Warn("Fuzzy duplicate scan failed; continuing without advisory matches")
		}
	}

	if options.SkipDuplicates {
		err = s.importBulk(ctx, log, parseResult.Candidates, result)
	} else {
		err = s.importRowByRow(ctx, log, parseResult.Candidates, result)
	}
	if err != nil {
		s.failSession(ctx, log, session.ID, err)
		return nil, err
	}

	sortRowErrors(result.Errors)

	if err := s.sessions.MarkCompleted(ctx, session.ID, len(result.Imported), len(result.Duplicates), len(result.Errors)); err != nil {
		log.WithError(err).Error("Failed to finalize import session")
		s.failSession(ctx, log, session.ID, err)
		return nil, err
	}

	final, err := s.sessions.FindSession(ctx, session.ID)
	if err != nil {
		return nil, err
	}
	result.Session = final

	log.WithFields(logger.Fields{
		"imported":   final.ImportedCount,
		"duplicates": final.DuplicateCount,
		"errors":     final.ErrorCount,
	}).Info("Import completed")

	return result, nil
}

// finalizeValidateOnly completes a dry-run session with parse results only.
func (s *ImportService) finalizeValidateOnly(ctx context.Context, log logger.Logger, sessionID int64, result *ImportResult) (*ImportResult, error) {
	if err := s.sessions.MarkCompleted(ctx, sessionID, 0, 0, len(result.Errors)); err != nil {
		log.WithError(err).Error("Failed to finalize validate-only session")
		s.failSession(ctx, log, sessionID, err)
		return nil, err
	}
	final, err := s.sessions.FindSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	result.Session = final
	log.WithField("errors", len(result.Errors)).Info("Validation-only import completed")
	return result, nil
}

// importBulk persists candidates through the store's bulk operation, which
// applies the exact-duplicate check per row.
func (s *ImportService) importBulk(ctx context.Context, log logger.Logger, candidates []*models.Candidate, result *ImportResult) error {
	if len(candidates) == 0 {
		return nil
	}

	bulk, err := s.transactions.CreateMany(ctx, candidates)
	if err != nil {
		return err
	}

	result.Imported = append(result.Imported, bulk.Created...)
	for _, dup := range bulk.Duplicates {
		result.Duplicates = append(result.Duplicates, duplicateInfo(dup.Candidate, dup.ExistingID))
	}
	for _, rowErr := range bulk.Errors {
		result.Errors = append(result.Errors, &models.RowError{
			Row:     rowErr.Candidate.Row,
			Message: rowErr.Err.Error(),
			RawRow:  rowErr.Candidate.String(),
		})
	}
	return nil
}

// importRowByRow persists candidates one at a time. Duplicate signals from
// the store are re-resolved into the existing transaction id; row-level
// failures are collected while storage outages abort the run.
func (s *ImportService) importRowByRow(ctx context.Context, log logger.Logger, candidates []*models.Candidate, result *ImportResult) error {
	progress := logger.NewRowProgress(log, "import", len(candidates))
	defer progress.Complete()

	for _, candidate := range candidates {
		tx, err := s.transactions.Create(ctx, candidate)
		if err != nil {
			if pkgerrors.IsDuplicate(err) {
				existingID := s.resolveExistingID(ctx, candidate, err)
				result.Duplicates = append(result.Duplicates, duplicateInfo(candidate, existingID))
				progress.Increment()
				continue
			}
			if isStorageFailure(err) {
				return err
			}
			result.Errors = append(result.Errors, &models.RowError{
				Row:     candidate.Row,
				Message: err.Error(),
				RawRow:  candidate.String(),
			})
			progress.Increment()
			continue
		}
		result.Imported = append(result.Imported, tx)
		progress.Increment()
	}
	return nil
}

// resolveExistingID extracts the colliding transaction id from a duplicate
// signal, falling back to an exact-match lookup when the signal carries none.
func (s *ImportService) resolveExistingID(ctx context.Context, candidate *models.Candidate, dupErr error) int64 {
	if importErr, ok := pkgerrors.AsImportError(dupErr); ok {
		if id := importErr.ExistingID(); id != 0 {
			return id
		}
	}
	id, ok, err := s.transactions.Exists(ctx, candidate.Date, candidate.Amount, candidate.Description)
	if err != nil || !ok {
		return 0
	}
	return id
}

// scanForPotentialDuplicates runs the fuzzy detector over the batch against
// stored transactions within the date tolerance window.
func (s *ImportService) scanForPotentialDuplicates(ctx context.Context, log logger.Logger, candidates []*models.Candidate, result *ImportResult) error {
	if len(candidates) == 0 {
		return nil
	}

	cfg := s.detectorCfg.Clone()
	if cfg == nil {
		cfg = dedup.DefaultDetectorConfig()
	}
	cfg.EnableFuzzyMatching = true

	detector, err := dedup.NewDetector(cfg)
	if err != nil {
		return err
	}

	from, to := candidateDateWindow(candidates, cfg.DateToleranceDays)
	stored, err := s.transactions.ListByDateRange(ctx, from, to, 0)
	if err != nil {
		return err
	}
	detector.LoadTransactions(stored)

	detection := detector.DetectBulk(candidates)
	if len(detection.Matches) == 0 {
		return nil
	}

	result.PotentialDuplicates = make(map[int][]*models.DuplicateMatch, len(detection.Matches))
	for idx, matches := range detection.Matches {
		result.PotentialDuplicates[candidates[idx].Row] = matches
	}
	log.WithField("flagged_rows", len(detection.Matches)).Info("Fuzzy scan flagged potential duplicates")
	return nil
}

// Cancel transitions a pending session to failed with the supplied reason.
func (s *ImportService) Cancel(ctx context.Context, sessionID int64, reason string) error {
	if strings.TrimSpace(reason) == "" {
		reason = "cancelled by caller"
	}
	if err := s.sessions.MarkFailed(ctx, sessionID, reason); err != nil {
		return err
	}
	s.logger.WithFields(logger.Fields{
		"session_id": sessionID,
		"reason":     reason,
	}).Info("Import session cancelled")
	return nil
}

// PreviewCSV validates the file and returns headers plus sample rows
// without creating a session or persisting anything.
func (s *ImportService) PreviewCSV(data []byte, filename string) *parsers.PreviewResult {
	return s.parser.Preview(data, filename)
}

// GetSession retrieves one import session by id.
func (s *ImportService) GetSession(ctx context.Context, id int64) (*models.ImportSession, error) {
	return s.sessions.FindSession(ctx, id)
}

// RecentSessions returns the most recently started sessions, newest first.
func (s *ImportService) RecentSessions(ctx context.Context, limit int) ([]*models.ImportSession, error) {
	return s.sessions.RecentSessions(ctx, limit)
}

// PruneSessions removes terminal sessions older than the given age.
func (s *ImportService) PruneSessions(ctx context.Context, age time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-age)
	removed, err := s.sessions.DeleteSessionsOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		s.logger.WithField("removed", removed).Info("Pruned old import sessions")
	}
	return removed, nil
}

// failSession drives a session to failed state after an unrecoverable
// error, so no session is ever left pending.
func (s *ImportService) failSession(ctx context.Context, log logger.Logger, sessionID int64, cause error) {
	reason := cause.Error()
	if err := s.sessions.MarkFailed(ctx, sessionID, reason); err != nil {
		log.WithError(err).Error("Failed to mark session as failed")
		return
	}
	log.WithField("reason", reason).Warn("Import session failed")
}

func duplicateInfo(candidate *models.Candidate, existingID int64) *models.DuplicateInfo {
	return &models.DuplicateInfo{
		Row:         candidate.Row,
		Date:        candidate.DateString(),
		Amount:      candidate.Amount,
		Description: candidate.Description,
		ExistingID:  existingID,
	}
}

func candidateDateWindow(candidates []*models.Candidate, toleranceDays int) (time.Time, time.Time) {
	min, max := candidates[0].Date, candidates[0].Date
	for _, c := range candidates[1:] {
		if c.Date.Before(min) {
			min = c.Date
		}
		if c.Date.After(max) {
			max = c.Date
		}
	}
	return min.AddDate(0, 0, -toleranceDays), max.AddDate(0, 0, toleranceDays)
}

func sortRowErrors(errs []*models.RowError) {
	sort.SliceStable(errs, func(i, j int) bool {
		return errs[i].Row < errs[j].Row
	})
}

func isStorageFailure(err error) bool {
	importErr, ok := pkgerrors.AsImportError(err)
	if !ok {
		return false
	}
	return importErr.Category == pkgerrors.CategoryStorage
}
