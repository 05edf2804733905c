// Package memory provides map-backed implementations of the storage
// interfaces, used by the CLI's default mode and throughout the test suite.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"transaction-import-service/internal/models"
	"transaction-import-service/internal/storage"
	pkgerrors "transaction-import-service/pkg/errors"
)

// Store holds transactions and sessions in memory behind a single mutex,
// so a CreateMany call observes and mutates the exact-key index atomically.
type Store struct {
	mu sync.Mutex

	transactions map[int64]*models.Transaction
	byKey        map[string]int64
	nextTxID     int64

	sessions      map[int64]*models.ImportSession
	nextSessionID int64

	maxTransactions int
	now             func() time.Time
}

// Option customizes a Store.
type Option func(*Store)

// WithMaxTransactions overrides the transaction cap.
func WithMaxTransactions(n int) Option {
	return func(s *Store) { s.maxTransactions = n }
}

// WithClock overrides the time source. Tests use this to pin CreatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore returns an empty in-memory store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		transactions:    make(map[int64]*models.Transaction),
		byKey:           make(map[string]int64),
		nextTxID:        1,
		sessions:        make(map[int64]*models.ImportSession),
		nextSessionID:   1,
		maxTransactions: storage.MaxTransactions,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ storage.Store = (*Store)(nil)

// Create persists a single candidate, rejecting exact duplicates.
func (s *Store) Create(ctx context.Context, candidate *models.Candidate) (*models.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, pkgerrors.StorageError(pkgerrors.CodeStorageFailure, "store access", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.createLocked(candidate)
}

func (s *Store) createLocked(candidate *models.Candidate) (*models.Transaction, error) {
	if err := candidate.Validate(); err != nil {
		return nil, err
	}
	if len(s.transactions) >= s.maxTransactions {
		return nil, pkgerrors.StorageError(pkgerrors.CodeStoreFull, "create", nil)
	}

	key := candidate.Key()
	if existing, ok := s.byKey[key]; ok {
		return nil, pkgerrors.DuplicateError(existing, candidate.DateString(), candidate.Amount.String(), candidate.Description)
	}

	tx := &models.Transaction{
		ID:          s.nextTxID,
		Date:        candidate.Date,
		Amount:      candidate.Amount,
		Description: candidate.Description,
		Category:    candidate.Category,
		CreatedAt:   s.now().UTC(),
	}
	s.nextTxID++
	s.transactions[tx.ID] = tx
	s.byKey[key] = tx.ID
	return tx, nil
}

// CreateMany persists candidates in order under one lock acquisition. Rows
// that collide with stored records, or with an earlier row of the same call,
// are reported as duplicates rather than created.
func (s *Store) CreateMany(ctx context.Context, candidates []*models.Candidate) (*storage.BulkCreateResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, pkgerrors.StorageError(pkgerrors.CodeStorageFailure, "store access", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	result := &storage.BulkCreateResult{}
	for i, candidate := range candidates {
		tx, err := s.createLocked(candidate)
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
			result.Errors = append(result.Errors, storage.BulkError{Index: i, Candidate: candidate, Err: err})
			continue
		}
		result.Created = append(result.Created, tx)
	}
	return result, nil
}

// Exists resolves the exact-match key against stored transactions.
func (s *Store) Exists(ctx context.Context, date time.Time, amount decimal.Decimal, description string) (int64, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, pkgerrors.StorageError(pkgerrors.CodeStorageFailure, "store access", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := models.TruncateToDay(date).Format(models.DateLayout) + "|" + amount.String() + "|" + description
	id, ok := s.byKey[key]
	return id, ok, nil
}

// ListByDateRange returns transactions dated within [from, to], ordered by
// date then id, capped at limit.
func (s *Store) ListByDateRange(ctx context.Context, from, to time.Time, limit int) ([]*models.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, pkgerrors.StorageError(pkgerrors.CodeStorageFailure, "store access", err)
	}

	from = models.TruncateToDay(from)
	to = models.TruncateToDay(to)

	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*models.Transaction
	for _, tx := range s.transactions {
		if tx.Date.Before(from) || tx.Date.After(to) {
			continue
		}
		out = append(out, tx)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Count reports how many transactions the store holds.
func (s *Store) Count(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, pkgerrors.StorageError(pkgerrors.CodeStorageFailure, "store access", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.transactions)), nil
}

// CreateSession records a new pending session.
func (s *Store) CreateSession(ctx context.Context, session *models.ImportSession) (*models.ImportSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, pkgerrors.StorageError(pkgerrors.CodeStorageFailure, "store access", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *session
	stored.ID = s.nextSessionID
	s.nextSessionID++
	if stored.Status == "" {
		stored.Status = models.SessionPending
	}
	if stored.StartedAt.IsZero() {
		stored.StartedAt = s.now().UTC()
	}
	s.sessions[stored.ID] = &stored

	out := stored
	return &out, nil
}

// MarkCompleted transitions a pending session to completed with final counts.
func (s *Store) MarkCompleted(ctx context.Context, id int64, imported, duplicates, errors int) error {
	return s.transition(ctx, id, models.SessionCompleted, func(session *models.ImportSession) {
		session.ImportedCount = imported
		session.DuplicateCount = duplicates
		session.ErrorCount = errors
	})
}

// MarkFailed transitions a pending session to failed with the reason.
func (s *Store) MarkFailed(ctx context.Context, id int64, reason string) error {
	return s.transition(ctx, id, models.SessionFailed, func(session *models.ImportSession) {
		session.FailureReason = reason
	})
}

func (s *Store) transition(ctx context.Context, id int64, to models.SessionStatus, apply func(*models.ImportSession)) error {
	if err := ctx.Err(); err != nil {
		return pkgerrors.StorageError(pkgerrors.CodeStorageFailure, "store access", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return pkgerrors.SessionError(pkgerrors.CodeSessionNotFound, fmt.Sprintf("id %d", id), nil)
	}
	if !session.Status.CanTransitionTo(to) {
		return pkgerrors.SessionError(pkgerrors.CodeInvalidTransition,
			fmt.Sprintf("session %d: %s -> %s", id, session.Status, to), nil)
	}
	apply(session)
	session.Status = to
	completed := s.now().UTC()
	session.CompletedAt = &completed
	return nil
}

// FindSession retrieves a session by id.
func (s *Store) FindSession(ctx context.Context, id int64) (*models.ImportSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, pkgerrors.StorageError(pkgerrors.CodeStorageFailure, "store access", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return nil, pkgerrors.SessionError(pkgerrors.CodeSessionNotFound, fmt.Sprintf("id %d", id), nil)
	}
	out := *session
	return &out, nil
}

// RecentSessions returns the most recently started sessions, newest first.
func (s *Store) RecentSessions(ctx context.Context, limit int) ([]*models.ImportSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, pkgerrors.StorageError(pkgerrors.CodeStorageFailure, "store access", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*models.ImportSession, 0, len(s.sessions))
	for _, session := range s.sessions {
		copied := *session
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.After(out[j].StartedAt)
		}
		return out[i].ID > out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// DeleteSessionsOlderThan prunes terminal sessions started before the cutoff.
func (s *Store) DeleteSessionsOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, pkgerrors.StorageError(pkgerrors.CodeStorageFailure, "store access", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	for id, session := range s.sessions {
		if session.Status.IsTerminal() && session.StartedAt.Before(cutoff) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed, nil
}
