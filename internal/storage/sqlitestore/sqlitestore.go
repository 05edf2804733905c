// Package sqlitestore implements the storage interfaces on SQLite through
// GORM. The exact-duplicate key is enforced by a unique index, so the
// atomicity requirement of CreateMany falls out of running the batch inside
// one database transaction.
package sqlitestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"transaction-import-service/internal/models"
	"transaction-import-service/internal/storage"
	pkgerrors "transaction-import-service/pkg/errors"
)

// transactionRecord is the GORM mapping for a stored transaction. Amounts
// are persisted as canonical decimal strings so no precision is lost to
// floating point, and ExactKey carries the unique (date, amount,
// description) constraint.
type transactionRecord struct {
	ID          int64  `gorm:"primaryKey;autoIncrement"`
	Date        string `gorm:"index;not null"`
	Amount      string `gorm:"not null"`
	Description string `gorm:"not null"`
	Category    string
	ExactKey    string    `gorm:"uniqueIndex;not null"`
	CreatedAt   time.Time `gorm:"not null"`
}

func (transactionRecord) TableName() string { return "transactions" }

// sessionRecord is the GORM mapping for an import session.
type sessionRecord struct {
	ID             int64  `gorm:"primaryKey;autoIncrement"`
	Filename       string `gorm:"not null"`
	TotalRows      int
	ImportedCount  int
	DuplicateCount int
	ErrorCount     int
	Status         string `gorm:"index;not null"`
	FailureReason  string
	StartedAt      time.Time `gorm:"index;not null"`
	CompletedAt    *time.Time
}

func (sessionRecord) TableName() string { return "import_sessions" }

// Store is a SQLite-backed implementation of storage.Store.
type Store struct {
	db              *gorm.DB
	maxTransactions int64
	now             func() time.Time
}

var _ storage.Store = (*Store)(nil)

// Open connects to the SQLite database at path, running migrations. Passing
// ":memory:" yields a throwaway database, which the tests use.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, pkgerrors.StorageError(pkgerrors.CodeStorageFailure, "open database", err)
	}

	if err := db.AutoMigrate(&transactionRecord{}, &sessionRecord{}); err != nil {
		return nil, pkgerrors.StorageError(pkgerrors.CodeStorageFailure, "migrate schema", err)
	}

	return &Store{
		db:              db,
		maxTransactions: storage.MaxTransactions,
		now:             time.Now,
	}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func exactKey(date string, amount, description string) string {
	return date + "|" + amount + "|" + description
}

func toTransaction(rec *transactionRecord) (*models.Transaction, error) {
	amount, err := decimal.NewFromString(rec.Amount)
	if err != nil {
		return nil, pkgerrors.StorageError(pkgerrors.CodeStorageFailure, "decode amount",
			fmt.Errorf("record %d: %w", rec.ID, err))
	}
	parsed, err := time.ParseInLocation(models.DateLayout, rec.Date, time.UTC)
	if err != nil {
		return nil, pkgerrors.StorageError(pkgerrors.CodeStorageFailure, "decode date",
			fmt.Errorf("record %d: %w", rec.ID, err))
	}
	return &models.Transaction{
		ID:          rec.ID,
		Date:        parsed,
		Amount:      amount,
		Description: rec.Description,
		Category:    rec.Category,
		CreatedAt:   rec.CreatedAt,
	}, nil
}

// Create persists a single candidate, rejecting exact duplicates.
func (s *Store) Create(ctx context.Context, candidate *models.Candidate) (*models.Transaction, error) {
	var created *models.Transaction
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		created, err = s.createInTx(ctx, tx, candidate)
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *Store) createInTx(ctx context.Context, tx *gorm.DB, candidate *models.Candidate) (*models.Transaction, error) {
	if err := candidate.Validate(); err != nil {
		return nil, err
	}

	var count int64
	if err := tx.Model(&transactionRecord{}).Count(&count).Error; err != nil {
		return nil, pkgerrors.StorageError(pkgerrors.CodeStorageFailure, "count transactions", err)
	}
	if count >= s.maxTransactions {
		return nil, pkgerrors.StorageError(pkgerrors.CodeStoreFull, "create", nil)
	}

	rec := &transactionRecord{
		Date:        candidate.DateString(),
		Amount:      candidate.Amount.String(),
		Description: candidate.Description,
		Category:    candidate.Category,
		ExactKey:    candidate.Key(),
		CreatedAt:   s.now().UTC(),
	}
	if err := tx.Create(rec).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			var existing transactionRecord
			if lookupErr := tx.Where("exact_key = ?", rec.ExactKey).First(&existing).Error; lookupErr != nil {
				return nil, pkgerrors.StorageError(pkgerrors.CodeStorageFailure, "resolve duplicate", lookupErr)
			}
			return nil, pkgerrors.DuplicateError(existing.ID, candidate.DateString(), candidate.Amount.String(), candidate.Description)
		}
		return nil, pkgerrors.StorageError(pkgerrors.CodeStorageFailure, "create transaction", err)
	}

	return toTransaction(rec)
}

// CreateMany persists candidates in order within one database transaction.
func (s *Store) CreateMany(ctx context.Context, candidates []*models.Candidate) (*storage.BulkCreateResult, error) {
	result := &storage.BulkCreateResult{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i, candidate := range candidates {
			created, err := s.createInTx(ctx, tx, candidate)
			if err != nil {
				if pkgerrors.IsDuplicate(err) {
					importErr, _ := pkgerrors.AsImportError(err)
					result.Duplicates = append(result.Duplicates, storage.BulkDuplicate{
						Index:      i,
						Candidate:  candidate,
						ExistingID: importErr.ExistingID(),
					})
					continue
				}
				if importErr, ok := pkgerrors.AsImportError(err); ok && importErr.Category == pkgerrors.CategoryStorage && importErr.Code == pkgerrors.CodeStorageFailure {
					return err
				}
				result.Errors = append(result.Errors, storage.BulkError{Index: i, Candidate: candidate, Err: err})
				continue
			}
			result.Created = append(result.Created, created)
		}
		return nil
	})
	if err != nil {
		return nil, pkgerrors.WrapIfNeeded(err, pkgerrors.CategoryStorage, pkgerrors.CodeStorageFailure, "bulk create failed")
	}
	return result, nil
}

// Exists resolves the exact-match key against stored transactions.
func (s *Store) Exists(ctx context.Context, date time.Time, amount decimal.Decimal, description string) (int64, bool, error) {
	key := exactKey(models.TruncateToDay(date).Format(models.DateLayout), amount.String(), description)

	var rec transactionRecord
	err := s.db.WithContext(ctx).Where("exact_key = ?", key).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, pkgerrors.StorageError(pkgerrors.CodeStorageFailure, "exists lookup", err)
	}
	return rec.ID, true, nil
}

// ListByDateRange returns transactions dated within [from, to], ordered by
// date then id, capped at limit.
func (s *Store) ListByDateRange(ctx context.Context, from, to time.Time, limit int) ([]*models.Transaction, error) {
	fromStr := models.TruncateToDay(from).Format(models.DateLayout)
	toStr := models.TruncateToDay(to).Format(models.DateLayout)

	query := s.db.WithContext(ctx).
		Where("date >= ? AND date <= ?", fromStr, toStr).
		Order("date, id")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var recs []transactionRecord
	if err := query.Find(&recs).Error; err != nil {
		return nil, pkgerrors.StorageError(pkgerrors.CodeStorageFailure, "list transactions", err)
	}

	out := make([]*models.Transaction, 0, len(recs))
	for i := range recs {
		tx, err := toTransaction(&recs[i])
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, nil
}

// Count reports how many transactions the store holds.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&transactionRecord{}).Count(&count).Error; err != nil {
		return 0, pkgerrors.StorageError(pkgerrors.CodeStorageFailure, "count transactions", err)
	}
	return count, nil
}

func toSession(rec *sessionRecord) *models.ImportSession {
	return &models.ImportSession{
		ID:             rec.ID,
		Filename:       rec.Filename,
		TotalRows:      rec.TotalRows,
		ImportedCount:  rec.ImportedCount,
		DuplicateCount: rec.DuplicateCount,
		ErrorCount:     rec.ErrorCount,
		Status:         models.SessionStatus(rec.Status),
		FailureReason:  rec.FailureReason,
		StartedAt:      rec.StartedAt,
		CompletedAt:    rec.CompletedAt,
	}
}

// CreateSession records a new pending session.
func (s *Store) CreateSession(ctx context.Context, session *models.ImportSession) (*models.ImportSession, error) {
	rec := &sessionRecord{
		Filename:  session.Filename,
		TotalRows: session.TotalRows,
		Status:    string(session.Status),
		StartedAt: session.StartedAt,
	}
	if rec.Status == "" {
		rec.Status = string(models.SessionPending)
	}
	if rec.StartedAt.IsZero() {
		rec.StartedAt = s.now().UTC()
	}

	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return nil, pkgerrors.StorageError(pkgerrors.CodeStorageFailure, "create session", err)
	}
	return toSession(rec), nil
}

// MarkCompleted transitions a pending session to completed with final counts.
func (s *Store) MarkCompleted(ctx context.Context, id int64, imported, duplicates, errCount int) error {
	return s.transition(ctx, id, models.SessionCompleted, func(rec *sessionRecord) {
		rec.ImportedCount = imported
		rec.DuplicateCount = duplicates
		rec.ErrorCount = errCount
	})
}

// MarkFailed transitions a pending session to failed with the reason.
func (s *Store) MarkFailed(ctx context.Context, id int64, reason string) error {
	return s.transition(ctx, id, models.SessionFailed, func(rec *sessionRecord) {
		rec.FailureReason = reason
	})
}

func (s *Store) transition(ctx context.Context, id int64, to models.SessionStatus, apply func(*sessionRecord)) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec sessionRecord
		if err := tx.First(&rec, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.SessionError(pkgerrors.CodeSessionNotFound, fmt.Sprintf("id %d", id), nil)
			}
			return pkgerrors.StorageError(pkgerrors.CodeStorageFailure, "load session", err)
		}

		current := models.SessionStatus(rec.Status)
		if !current.CanTransitionTo(to) {
			return pkgerrors.SessionError(pkgerrors.CodeInvalidTransition,
				fmt.Sprintf("session %d: %s -> %s", id, current, to), nil)
		}

		apply(&rec)
		rec.Status = string(to)
		completed := s.now().UTC()
		rec.CompletedAt = &completed

		if err := tx.Save(&rec).Error; err != nil {
			return pkgerrors.StorageError(pkgerrors.CodeStorageFailure, "update session", err)
		}
		return nil
	})
}

// FindSession retrieves a session by id.
func (s *Store) FindSession(ctx context.Context, id int64) (*models.ImportSession, error) {
	var rec sessionRecord
	err := s.db.WithContext(ctx).First(&rec, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.SessionError(pkgerrors.CodeSessionNotFound, fmt.Sprintf("id %d", id), nil)
	}
	if err != nil {
		return nil, pkgerrors.StorageError(pkgerrors.CodeStorageFailure, "load session", err)
	}
	return toSession(&rec), nil
}

// RecentSessions returns the most recently started sessions, newest first.
func (s *Store) RecentSessions(ctx context.Context, limit int) ([]*models.ImportSession, error) {
	query := s.db.WithContext(ctx).Order("started_at DESC, id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var recs []sessionRecord
	if err := query.Find(&recs).Error; err != nil {
		return nil, pkgerrors.StorageError(pkgerrors.CodeStorageFailure, "list sessions", err)
	}

	out := make([]*models.ImportSession, 0, len(recs))
	for i := range recs {
		out = append(out, toSession(&recs[i]))
	}
	return out, nil
}

// DeleteSessionsOlderThan prunes terminal sessions started before the cutoff.
func (s *Store) DeleteSessionsOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("started_at < ? AND status IN ?", cutoff,
			[]string{string(models.SessionCompleted), string(models.SessionFailed)}).
		Delete(&sessionRecord{})
	if result.Error != nil {
		return 0, pkgerrors.StorageError(pkgerrors.CodeStorageFailure, "prune sessions", result.Error)
	}
	return result.RowsAffected, nil
}
