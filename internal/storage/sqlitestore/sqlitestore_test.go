package sqlitestore

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"transaction-import-service/internal/models"
	pkgerrors "transaction-import-service/pkg/errors"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func candidate(t *testing.T, day, amount, description string) *models.Candidate {
	t.Helper()
	parsed, err := time.Parse(models.DateLayout, day)
	if err != nil {
		t.Fatalf("bad test date %q: %v", day, err)
	}
	return models.NewCandidate(parsed, decimal.RequireFromString(amount), description, "")
}

func TestCreateAndExists(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	created, err := store.Create(ctx, candidate(t, "2025-01-15", "42.50", "Coffee"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created.ID == 0 {
		t.Error("expected a store-assigned id")
	}
	if created.DateString() != "2025-01-15" {
		t.Errorf("expected date round-trip, got %s", created.DateString())
	}
	if !created.Amount.Equal(decimal.RequireFromString("42.50")) {
		t.Errorf("expected amount round-trip, got %s", created.Amount)
	}

	when, _ := time.Parse(models.DateLayout, "2025-01-15")
	id, ok, err := store.Exists(ctx, when, decimal.RequireFromString("42.50"), "Coffee")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok || id != created.ID {
		t.Errorf("expected to find id %d, got (%d, %v)", created.ID, id, ok)
	}
}

func TestUniqueIndexRejectsDuplicates(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	original, err := store.Create(ctx, candidate(t, "2025-01-15", "42.50", "Coffee"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = store.Create(ctx, candidate(t, "2025-01-15", "42.50", "Coffee"))
	if !pkgerrors.IsDuplicate(err) {
		t.Fatalf("expected duplicate classification, got %v", err)
	}
	importErr, _ := pkgerrors.AsImportError(err)
	if importErr.ExistingID() != original.ID {
		t.Errorf("expected existing id %d, got %d", original.ID, importErr.ExistingID())
	}
}

func TestCreateManyPartitionsBatch(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if _, err := store.Create(ctx, candidate(t, "2025-01-10", "5.00", "Stored")); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	result, err := store.CreateMany(ctx, []*models.Candidate{
		candidate(t, "2025-01-15", "42.50", "Coffee"),
		candidate(t, "2025-01-10", "5.00", "Stored"),
		candidate(t, "2025-01-15", "42.50", "Coffee"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(result.Created) != 1 {
		t.Errorf("expected 1 created, got %d", len(result.Created))
	}
	if len(result.Duplicates) != 2 {
		t.Fatalf("expected 2 duplicates, got %d", len(result.Duplicates))
	}
	if result.Duplicates[1].Index != 2 {
		t.Errorf("expected batch-internal duplicate at index 2, got %d", result.Duplicates[1].Index)
	}

	count, _ := store.Count(ctx)
	if count != 2 {
		t.Errorf("expected 2 stored transactions, got %d", count)
	}
}

func TestListByDateRange(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for _, day := range []string{"2025-01-05", "2025-01-10", "2025-01-15"} {
		if _, err := store.Create(ctx, candidate(t, day, "10.00", "Tx "+day)); err != nil {
			t.Fatalf("seed failed: %v", err)
		}
	}

	from, _ := time.Parse(models.DateLayout, "2025-01-08")
	to, _ := time.Parse(models.DateLayout, "2025-01-31")
	got, err := store.ListByDateRange(ctx, from, to, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(got))
	}
	if got[0].DateString() != "2025-01-10" {
		t.Errorf("expected earliest in-range first, got %s", got[0].DateString())
	}
}

func TestSessionRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	session, err := store.CreateSession(ctx, &models.ImportSession{Filename: "jan.csv", TotalRows: 5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if session.Status != models.SessionPending {
		t.Errorf("expected pending status, got %s", session.Status)
	}

	if err := store.MarkCompleted(ctx, session.ID, 3, 1, 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	found, err := store.FindSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found.Status != models.SessionCompleted || !found.CountsConsistent() {
		t.Errorf("unexpected session state: %s", found)
	}

	err = store.MarkFailed(ctx, session.ID, "too late")
	importErr, ok := pkgerrors.AsImportError(err)
	if !ok || importErr.Code != pkgerrors.CodeInvalidTransition {
		t.Errorf("expected invalid-transition error, got %v", err)
	}
}
