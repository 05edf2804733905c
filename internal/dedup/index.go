package dedup

import (
	"transaction-import-service/internal/models"
)

// TransactionIndex provides lookups over stored transactions for duplicate
// detection.
type TransactionIndex struct {
	// ExactKeyIndex maps the verbatim (date, amount, description) key to
	// the stored transaction id.
	ExactKeyIndex map[string]int64

	// DateIndex maps date strings (YYYY-MM-DD) to transaction slices for
	// date-window candidate selection.
	DateIndex map[string][]*models.Transaction

	// AllTransactions holds all indexed transactions
	AllTransactions []*models.Transaction
}

// NewTransactionIndex creates an index from a slice of stored transactions.
func NewTransactionIndex(transactions []*models.Transaction) *TransactionIndex {
	index := &TransactionIndex{
		ExactKeyIndex:   make(map[string]int64),
		DateIndex:       make(map[string][]*models.Transaction),
		AllTransactions: transactions,
	}

	for _, tx := range transactions {
		index.ExactKeyIndex[tx.Key()] = tx.ID
		dateKey := tx.DateString()
		index.DateIndex[dateKey] = append(index.DateIndex[dateKey], tx)
	}

	return index
}

// Add inserts one stored transaction into the index.
func (ti *TransactionIndex) Add(tx *models.Transaction) {
	ti.ExactKeyIndex[tx.Key()] = tx.ID
	dateKey := tx.DateString()
	ti.DateIndex[dateKey] = append(ti.DateIndex[dateKey], tx)
	ti.AllTransactions = append(ti.AllTransactions, tx)
}

// LookupExact resolves the stored transaction id matching the exact key.
func (ti *TransactionIndex) LookupExact(key string) (int64, bool) {
	id, ok := ti.ExactKeyIndex[key]
	return id, ok
}

// GetCandidates returns stored transactions dated within toleranceDays of
// the candidate's date, capped at limit.
func (ti *TransactionIndex) GetCandidates(candidate *models.Candidate, toleranceDays, limit int) []*models.Transaction {
	var result []*models.Transaction

	for offset := -toleranceDays; offset <= toleranceDays; offset++ {
		day := candidate.Date.AddDate(0, 0, offset)
		dateKey := day.Format(models.DateLayout)
		for _, tx := range ti.DateIndex[dateKey] {
			result = append(result, tx)
			if limit > 0 && len(result) >= limit {
				return result
			}
		}
	}

	return result
}

// Size reports how many transactions the index holds.
func (ti *TransactionIndex) Size() int {
	return len(ti.AllTransactions)
}
