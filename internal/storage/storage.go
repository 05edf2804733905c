// Package storage defines the collaborator interfaces the import pipeline
// persists through. Implementations must make the exact-duplicate check
// atomic relative to concurrent bulk inserts; an importer that only checks
// before inserting would race against a concurrent session.
package storage

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"transaction-import-service/internal/models"
)

// MaxTransactions caps how many transactions a store will hold.
const MaxTransactions = 100000

// BulkCreateResult reports what happened to each candidate of a CreateMany
// call. Duplicate and error entries reference candidates by their position
// in the input slice.
type BulkCreateResult struct {
	Created    []*models.Transaction
	Duplicates []BulkDuplicate
	Errors     []BulkError
}

// BulkDuplicate identifies one skipped candidate and the stored record it
// collided with.
type BulkDuplicate struct {
	Index      int
	Candidate  *models.Candidate
	ExistingID int64
}

// BulkError identifies one candidate the store rejected for a reason other
// than duplication.
type BulkError struct {
	Index     int
	Candidate *models.Candidate
	Err       error
}

// TransactionStore persists canonical transactions.
type TransactionStore interface {
	// Create persists a single candidate. When the exact-match key already
	// exists it returns a duplicate classification error carrying the
	// existing id.
	Create(ctx context.Context, candidate *models.Candidate) (*models.Transaction, error)

	// CreateMany persists candidates in order, applying the exact-duplicate
	// check per row atomically with respect to concurrent bulk inserts.
	// Candidates that duplicate a stored record, or an earlier row of the
	// same call, land in Duplicates rather than Created.
	CreateMany(ctx context.Context, candidates []*models.Candidate) (*BulkCreateResult, error)

	// Exists resolves the id of the stored transaction matching the exact
	// key, or reports that none does.
	Exists(ctx context.Context, date time.Time, amount decimal.Decimal, description string) (int64, bool, error)

	// ListByDateRange returns stored transactions dated within [from, to],
	// capped at limit, for fuzzy-candidate lookups.
	ListByDateRange(ctx context.Context, from, to time.Time, limit int) ([]*models.Transaction, error)

	// Count reports how many transactions the store holds.
	Count(ctx context.Context) (int64, error)
}

// SessionStore persists import-session audit records.
type SessionStore interface {
	// CreateSession records the start of an import attempt in pending state.
	CreateSession(ctx context.Context, session *models.ImportSession) (*models.ImportSession, error)

	// MarkCompleted transitions a pending session to completed with final
	// counts. Transitioning a terminal session is an error.
	MarkCompleted(ctx context.Context, id int64, imported, duplicates, errors int) error

	// MarkFailed transitions a pending session to failed with the reason.
	MarkFailed(ctx context.Context, id int64, reason string) error

	// FindSession retrieves a session by id.
	FindSession(ctx context.Context, id int64) (*models.ImportSession, error)

	// RecentSessions returns the most recently started sessions, newest
	// first, capped at limit.
	RecentSessions(ctx context.Context, limit int) ([]*models.ImportSession, error)

	// DeleteSessionsOlderThan prunes terminal sessions started before the
	// cutoff, returning how many were removed.
	DeleteSessionsOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Store bundles both collaborator interfaces for callers that own a single
// backing database.
type Store interface {
	TransactionStore
	SessionStore
}
