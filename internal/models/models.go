package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// DateLayout is the canonical wire format for transaction dates.
const DateLayout = "2006-01-02"

// MaxDescriptionLength is the longest description a candidate may carry.
const MaxDescriptionLength = 500

// MaxCategoryLength is the longest category a candidate may carry.
const MaxCategoryLength = 100

// Candidate is a parsed, normalized, not-yet-persisted transaction row.
// Row records the 1-based position within the source CSV, counting the
// header as row 1, so errors and duplicates can be reported against the
// original file even when invalid rows interleave with valid ones.
type Candidate struct {
	Date        time.Time       `json:"date"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	Category    string          `json:"category,omitempty"`
	Row         int             `json:"row"`
}

// NewCandidate creates a Candidate with the date truncated to UTC midnight.
func NewCandidate(date time.Time, amount decimal.Decimal, description, category string) *Candidate {
	return &Candidate{
		Date:        TruncateToDay(date),
		Amount:      amount,
		Description: description,
		Category:    category,
	}
}

// DateString returns the candidate date in the canonical YYYY-MM-DD form.
func (c *Candidate) DateString() string {
	return c.Date.Format(DateLayout)
}

// Key returns the exact-duplicate key: (date, amount, description) verbatim.
// The description keeps its case; only surrounding whitespace was trimmed by
// the parser, so case-only variants hash to different keys.
func (c *Candidate) Key() string {
	return c.DateString() + "|" + c.Amount.String() + "|" + c.Description
}

// Validate performs basic validation on the Candidate
func (c *Candidate) Validate() error {
	if c.Date.IsZero() {
		return fmt.Errorf("candidate date cannot be zero")
	}

	if c.Amount.IsZero() {
		return fmt.Errorf("candidate amount cannot be zero")
	}

	if strings.TrimSpace(c.Description) == "" {
		return fmt.Errorf("candidate description cannot be empty")
	}

	if utf8.RuneCountInString(c.Description) > MaxDescriptionLength {
		return fmt.Errorf("candidate description exceeds %d characters", MaxDescriptionLength)
	}

	if utf8.RuneCountInString(c.Category) > MaxCategoryLength {
		return fmt.Errorf("candidate category exceeds %d characters", MaxCategoryLength)
	}

	return nil
}

// String returns a string representation of the Candidate
func (c *Candidate) String() string {
	return fmt.Sprintf("Candidate{Date: %s, Amount: %s, Description: %q}",
		c.DateString(), c.Amount.String(), c.Description)
}

// MarshalJSON implements custom JSON marshaling for Candidate
func (c *Candidate) MarshalJSON() ([]byte, error) {
	type Alias Candidate
	return json.Marshal(&struct {
		Date   string `json:"date"`
		Amount string `json:"amount"`
		*Alias
	}{
		Date:   c.DateString(),
		Amount: c.Amount.String(),
		Alias:  (*Alias)(c),
	})
}

// UnmarshalJSON implements custom JSON unmarshaling for Candidate
func (c *Candidate) UnmarshalJSON(data []byte) error {
	type Alias Candidate
	aux := &struct {
		Date   string `json:"date"`
		Amount string `json:"amount"`
		*Alias
	}{
		Alias: (*Alias)(c),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	var err error
	c.Amount, err = decimal.NewFromString(aux.Amount)
	if err != nil {
		return fmt.Errorf("invalid amount format: %w", err)
	}

	c.Date, err = time.ParseInLocation(DateLayout, aux.Date, time.UTC)
	if err != nil {
		return fmt.Errorf("invalid date format: %w", err)
	}

	return nil
}

// Transaction is a persisted transaction record: a candidate plus the
// store-assigned identifier and creation timestamp.
type Transaction struct {
	ID          int64           `json:"id"`
	Date        time.Time       `json:"date"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	Category    string          `json:"category,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// DateString returns the transaction date in the canonical YYYY-MM-DD form.
func (t *Transaction) DateString() string {
	return t.Date.Format(DateLayout)
}

// Key returns the exact-duplicate key for the stored record.
func (t *Transaction) Key() string {
	return t.DateString() + "|" + t.Amount.String() + "|" + t.Description
}

// String returns a string representation of the Transaction
func (t *Transaction) String() string {
	return fmt.Sprintf("Transaction{ID: %d, Date: %s, Amount: %s, Description: %q}",
		t.ID, t.DateString(), t.Amount.String(), t.Description)
}

// MarshalJSON implements custom JSON marshaling for Transaction
func (t *Transaction) MarshalJSON() ([]byte, error) {
	type Alias Transaction
	return json.Marshal(&struct {
		Date   string `json:"date"`
		Amount string `json:"amount"`
		*Alias
	}{
		Date:   t.DateString(),
		Amount: t.Amount.String(),
		Alias:  (*Alias)(t),
	})
}

// SessionStatus represents the lifecycle state of an import session
type SessionStatus string

const (
	// SessionPending marks a session whose import is still running
	SessionPending SessionStatus = "pending"
	// SessionCompleted marks a session whose import finished normally
	SessionCompleted SessionStatus = "completed"
	// SessionFailed marks a session whose import was aborted or cancelled
	SessionFailed SessionStatus = "failed"
)

// IsValid checks if the session status is a known state
func (s SessionStatus) IsValid() bool {
	return s == SessionPending || s == SessionCompleted || s == SessionFailed
}

// IsTerminal reports whether the status admits no further transitions
func (s SessionStatus) IsTerminal() bool {
	return s == SessionCompleted || s == SessionFailed
}

// CanTransitionTo reports whether the state machine allows moving to next.
// The only legal transitions are pending -> completed and pending -> failed.
func (s SessionStatus) CanTransitionTo(next SessionStatus) bool {
	return s == SessionPending && next.IsTerminal()
}

// ImportSession is the audit record of one import attempt.
type ImportSession struct {
	ID             int64         `json:"id"`
	Filename       string        `json:"filename"`
	TotalRows      int           `json:"total_rows"`
	ImportedCount  int           `json:"imported_count"`
	DuplicateCount int           `json:"duplicate_count"`
	ErrorCount     int           `json:"error_count"`
	Status         SessionStatus `json:"status"`
	FailureReason  string        `json:"failure_reason,omitempty"`
	StartedAt      time.Time     `json:"started_at"`
	CompletedAt    *time.Time    `json:"completed_at,omitempty"`
}

// CountsConsistent verifies the completed-session invariant
// imported + duplicates + errors == total rows.
func (s *ImportSession) CountsConsistent() bool {
	return s.ImportedCount+s.DuplicateCount+s.ErrorCount == s.TotalRows
}

// String returns a string representation of the ImportSession
func (s *ImportSession) String() string {
	return fmt.Sprintf("ImportSession{ID: %d, File: %s, Status: %s, Rows: %d, Imported: %d, Duplicates: %d, Errors: %d}",
		s.ID, s.Filename, s.Status, s.TotalRows, s.ImportedCount, s.DuplicateCount, s.ErrorCount)
}

// MatchType classifies how a duplicate was identified
type MatchType string

const (
	// MatchExact is a verbatim (date, amount, description) match
	MatchExact MatchType = "exact"
	// MatchFuzzy is a weighted multi-field similarity match
	MatchFuzzy MatchType = "fuzzy"
)

// BatchDuplicateID is the sentinel ExistingID for a candidate that
// duplicates another row within the same batch rather than a stored record.
const BatchDuplicateID int64 = -1

// DuplicateMatch describes one stored (or batch-internal) record a
// candidate was judged to duplicate.
type DuplicateMatch struct {
	Candidate     *Candidate `json:"candidate"`
	ExistingID    int64      `json:"existing_id"`
	Confidence    float64    `json:"confidence"`
	MatchType     MatchType  `json:"match_type"`
	MatchedFields []string   `json:"matched_fields"`
}

// IsBatchDuplicate reports whether the match points at another row of the
// same batch rather than a stored transaction.
func (m *DuplicateMatch) IsBatchDuplicate() bool {
	return m.ExistingID == BatchDuplicateID
}

// RowError records a non-fatal problem with a single CSV row. Row is
// 1-based and counts the header as row 1.
type RowError struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
	RawRow  string `json:"raw_row,omitempty"`
}

// Error implements the error interface
func (e *RowError) Error() string {
	return fmt.Sprintf("row %d: %s", e.Row, e.Message)
}

// DuplicateInfo is the outward-facing record of one skipped duplicate row.
type DuplicateInfo struct {
	Row         int             `json:"row"`
	Date        string          `json:"date"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	ExistingID  int64           `json:"existing_id"`
}

// TruncateToDay normalizes a timestamp to UTC midnight of the same date.
func TruncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
