package memory

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"transaction-import-service/internal/models"
	pkgerrors "transaction-import-service/pkg/errors"
)

func date(t *testing.T, raw string) time.Time {
	t.Helper()
	parsed, err := time.Parse(models.DateLayout, raw)
	if err != nil {
		t.Fatalf("bad test date %q: %v", raw, err)
	}
	return parsed
}

func candidate(t *testing.T, day, amount, description string) *models.Candidate {
	t.Helper()
	return models.NewCandidate(date(t, day), decimal.RequireFromString(amount), description, "")
}

func TestCreateAssignsSequentialIDs(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	first, err := store.Create(ctx, candidate(t, "2025-01-15", "42.50", "Coffee"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := store.Create(ctx, candidate(t, "2025-01-16", "10.00", "Lunch"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if first.ID != 1 || second.ID != 2 {
		t.Errorf("expected ids 1 and 2, got %d and %d", first.ID, second.ID)
	}
	if first.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set")
	}
}

func TestCreateRejectsExactDuplicate(t *testing.T) {
	store := NewStore()
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

	count, _ := store.Count(ctx)
	if count != 1 {
		t.Errorf("expected 1 stored transaction, got %d", count)
	}
}

func TestCreateAllowsNearMisses(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	seeds := []*models.Candidate{
		candidate(t, "2025-01-15", "42.50", "Coffee"),
		candidate(t, "2025-01-16", "42.50", "Coffee"),
		candidate(t, "2025-01-15", "42.51", "Coffee"),
		candidate(t, "2025-01-15", "42.50", "coffee"),
	}
	for i, c := range seeds {
		if _, err := store.Create(ctx, c); err != nil {
			t.Fatalf("candidate %d unexpectedly rejected: %v", i, err)
		}
	}

	count, _ := store.Count(ctx)
	if count != int64(len(seeds)) {
		t.Errorf("expected %d transactions, got %d", len(seeds), count)
	}
}

func TestCreateCanonicalizesTrailingZeros(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	if _, err := store.Create(ctx, candidate(t, "2025-01-15", "50.00", "Rent")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err := store.Create(ctx, candidate(t, "2025-01-15", "50.0", "Rent"))
	if !pkgerrors.IsDuplicate(err) {
		t.Errorf("expected 50.00 and 50.0 to share an exact key, got %v", err)
	}
}

func TestCreateManyPartitionsBatch(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	if _, err := store.Create(ctx, candidate(t, "2025-01-10", "5.00", "Stored")); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	batch := []*models.Candidate{
		candidate(t, "2025-01-15", "42.50", "Coffee"),
		candidate(t, "2025-01-10", "5.00", "Stored"),   // collides with stored record
		candidate(t, "2025-01-15", "42.50", "Coffee"),  // collides with row 0 of this batch
		candidate(t, "2025-01-20", "99.99", "Groceries"),
	}

	result, err := store.CreateMany(ctx, batch)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(result.Created) != 2 {
		t.Errorf("expected 2 created, got %d", len(result.Created))
	}
	if len(result.Duplicates) != 2 {
		t.Fatalf("expected 2 duplicates, got %d", len(result.Duplicates))
	}
	if result.Duplicates[0].Index != 1 || result.Duplicates[1].Index != 2 {
		t.Errorf("expected duplicate indexes [1 2], got [%d %d]",
			result.Duplicates[0].Index, result.Duplicates[1].Index)
	}
	if result.Duplicates[0].ExistingID != 1 {
		t.Errorf("expected first duplicate to reference stored id 1, got %d", result.Duplicates[0].ExistingID)
	}
	if len(result.Errors) != 0 {
		t.Errorf("expected no errors, got %d", len(result.Errors))
	}
}

func TestCreateManyCollectsValidationErrors(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	bad := candidate(t, "2025-01-15", "42.50", "Coffee")
	bad.Description = ""

	result, err := store.CreateMany(ctx, []*models.Candidate{
		candidate(t, "2025-01-15", "42.50", "Coffee"),
		bad,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Created) != 1 || len(result.Errors) != 1 {
		t.Fatalf("expected 1 created and 1 error, got %d and %d", len(result.Created), len(result.Errors))
	}
	if result.Errors[0].Index != 1 {
		t.Errorf("expected error index 1, got %d", result.Errors[0].Index)
	}
}

func TestExists(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	created, err := store.Create(ctx, candidate(t, "2025-01-15", "42.50", "Coffee"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	id, ok, err := store.Exists(ctx, date(t, "2025-01-15"), decimal.RequireFromString("42.50"), "Coffee")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok || id != created.ID {
		t.Errorf("expected to find id %d, got (%d, %v)", created.ID, id, ok)
	}

	_, ok, err = store.Exists(ctx, date(t, "2025-01-15"), decimal.RequireFromString("42.50"), "coffee")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("description comparison should be case-sensitive")
	}
}

func TestListByDateRange(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	days := []string{"2025-01-05", "2025-01-10", "2025-01-15", "2025-01-20"}
	for i, day := range days {
		if _, err := store.Create(ctx, candidate(t, day, "10.00", "Tx"+day)); err != nil {
			t.Fatalf("seed %d failed: %v", i, err)
		}
	}

	got, err := store.ListByDateRange(ctx, date(t, "2025-01-10"), date(t, "2025-01-15"), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 transactions in range, got %d", len(got))
	}
	if !got[0].Date.Before(got[1].Date) {
		t.Error("expected results ordered by date ascending")
	}

	capped, err := store.ListByDateRange(ctx, date(t, "2025-01-01"), date(t, "2025-01-31"), 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(capped) != 3 {
		t.Errorf("expected limit to cap results at 3, got %d", len(capped))
	}
}

func TestStoreCapacity(t *testing.T) {
	store := NewStore(WithMaxTransactions(2))
	ctx := context.Background()

	if _, err := store.Create(ctx, candidate(t, "2025-01-01", "1.00", "A")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := store.Create(ctx, candidate(t, "2025-01-02", "2.00", "B")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err := store.Create(ctx, candidate(t, "2025-01-03", "3.00", "C"))
	importErr, ok := pkgerrors.AsImportError(err)
	if !ok || importErr.Code != pkgerrors.CodeStoreFull {
		t.Errorf("expected store-full error, got %v", err)
	}
}

func TestSessionLifecycle(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	created, err := store.CreateSession(ctx, &models.ImportSession{Filename: "jan.csv", TotalRows: 10})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created.Status != models.SessionPending {
		t.Errorf("expected pending status, got %s", created.Status)
	}
	if created.StartedAt.IsZero() {
		t.Error("expected StartedAt to be set")
	}

	if err := store.MarkCompleted(ctx, created.ID, 7, 2, 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	found, err := store.FindSession(ctx, created.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found.Status != models.SessionCompleted {
		t.Errorf("expected completed status, got %s", found.Status)
	}
	if found.ImportedCount != 7 || found.DuplicateCount != 2 || found.ErrorCount != 1 {
		t.Errorf("unexpected counts: %d/%d/%d", found.ImportedCount, found.DuplicateCount, found.ErrorCount)
	}
	if !found.CountsConsistent() {
		t.Error("expected counts to partition total rows")
	}
	if found.CompletedAt == nil {
		t.Error("expected CompletedAt to be set")
	}
}

func TestSessionTerminalStatesAreFinal(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	session, err := store.CreateSession(ctx, &models.ImportSession{Filename: "jan.csv", TotalRows: 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := store.MarkFailed(ctx, session.ID, "storage unavailable"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err = store.MarkCompleted(ctx, session.ID, 3, 0, 0)
	importErr, ok := pkgerrors.AsImportError(err)
	if !ok || importErr.Code != pkgerrors.CodeInvalidTransition {
		t.Errorf("expected invalid-transition error, got %v", err)
	}

	found, _ := store.FindSession(ctx, session.ID)
	if found.Status != models.SessionFailed {
		t.Errorf("failed session must stay failed, got %s", found.Status)
	}
	if found.FailureReason != "storage unavailable" {
		t.Errorf("unexpected failure reason %q", found.FailureReason)
	}
}

func TestSessionNotFound(t *testing.T) {
	store := NewStore()

	_, err := store.FindSession(context.Background(), 404)
	importErr, ok := pkgerrors.AsImportError(err)
	if !ok || importErr.Code != pkgerrors.CodeSessionNotFound {
		t.Errorf("expected session-not-found error, got %v", err)
	}
}

func TestRecentSessions(t *testing.T) {
	base := date(t, "2025-01-01")
	current := base
	store := NewStore(WithClock(func() time.Time {
		current = current.Add(time.Hour)
		return current
	}))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := store.CreateSession(ctx, &models.ImportSession{Filename: "batch.csv"}); err != nil {
			t.Fatalf("seed %d failed: %v", i, err)
		}
	}

	recent, err := store.RecentSessions(ctx, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(recent) != 3 {
		t.Fatalf("expected 3 sessions, got %d", len(recent))
	}
	if recent[0].ID != 5 || recent[2].ID != 3 {
		t.Errorf("expected newest first [5 4 3], got [%d %d %d]", recent[0].ID, recent[1].ID, recent[2].ID)
	}
}

func TestDeleteSessionsOlderThan(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	old, _ := store.CreateSession(ctx, &models.ImportSession{Filename: "old.csv", StartedAt: date(t, "2024-01-01")})
	pending, _ := store.CreateSession(ctx, &models.ImportSession{Filename: "pending.csv", StartedAt: date(t, "2024-01-01")})
	fresh, _ := store.CreateSession(ctx, &models.ImportSession{Filename: "fresh.csv"})

	if err := store.MarkCompleted(ctx, old.ID, 0, 0, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	removed, err := store.DeleteSessionsOlderThan(ctx, date(t, "2025-01-01"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if removed != 1 {
		t.Errorf("expected 1 removed session, got %d", removed)
	}

	if _, err := store.FindSession(ctx, pending.ID); err != nil {
		t.Error("pending sessions must survive pruning")
	}
	if _, err := store.FindSession(ctx, fresh.ID); err != nil {
		t.Error("recent sessions must survive pruning")
	}
}

func TestCancelledContext(t *testing.T) {
	store := NewStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := store.Create(ctx, candidate(t, "2025-01-15", "42.50", "Coffee")); err == nil {
		t.Error("expected error for cancelled context")
	}
}
