package errors

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// ErrorCategory represents different categories of errors
type ErrorCategory string

const (
	CategoryFile       ErrorCategory = "file"
	CategoryParse      ErrorCategory = "parse"
	CategoryValidation ErrorCategory = "validation"
	CategoryDuplicate  ErrorCategory = "duplicate"
	CategorySession    ErrorCategory = "session"
	CategoryStorage    ErrorCategory = "storage"
	CategoryInternal   ErrorCategory = "internal"
)

// ErrorCode represents specific error codes within categories
type ErrorCode string

const (
	// File errors (fatal, raised before a session exists)
	CodeFileTooLarge     ErrorCode = "file_too_large"
	CodeInvalidExtension ErrorCode = "invalid_extension"
	CodeEmptyFile        ErrorCode = "empty_file"
	CodeFileNotFound     ErrorCode = "file_not_found"

	// Parse errors (fatal)
	CodeUnmappableColumns ErrorCode = "unmappable_columns"
	CodeTooFewColumns     ErrorCode = "too_few_columns"
	CodeInvalidFormat     ErrorCode = "invalid_format"

	// Validation errors (per-row, collected rather than raised)
	CodeRowValidation   ErrorCode = "row_validation"
	CodeInvalidDate     ErrorCode = "invalid_date"
	CodeInvalidAmount   ErrorCode = "invalid_amount"
	CodeValueOutOfRange ErrorCode = "value_out_of_range"
	CodeMissingField    ErrorCode = "missing_field"

	// Duplicate classification (an outcome, not a failure)
	CodeDuplicateEntry ErrorCode = "duplicate_entry"

	// Session errors
	CodeInvalidTransition ErrorCode = "invalid_transition"
	CodeSessionNotFound   ErrorCode = "session_not_found"
	CodeNoValidData       ErrorCode = "no_valid_data"

	// Storage errors
	CodeStorageFailure ErrorCode = "storage_failure"
	CodeStoreFull      ErrorCode = "store_full"

	// Internal errors
	CodeInvalidConfig   ErrorCode = "invalid_config"
	CodeUnexpectedError ErrorCode = "unexpected_error"
)

// ImportError is the base error type for all application errors
type ImportError struct {
	Category   ErrorCategory     `json:"category"`
	Code       ErrorCode         `json:"code"`
	Message    string            `json:"message"`
	Suggestion string            `json:"suggestion,omitempty"`
	Context    Context           `json:"context,omitempty"`
	Cause      error             `json:"-"`
	StackTrace errors.StackTrace `json:"-"`
}

// Context provides additional information about the error
type Context map[string]interface{}

// Error implements the error interface
func (e *ImportError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("%s (suggestion: %s)", e.Message, e.Suggestion)
	}
	return e.Message
}

// Unwrap returns the underlying cause error
func (e *ImportError) Unwrap() error {
	return e.Cause
}

// IsFatal reports whether the error aborts an import before a session exists.
// Row-level validation and duplicate classifications are never fatal.
func (e *ImportError) IsFatal() bool {
	switch e.Category {
	case CategoryFile, CategoryParse:
		return true
	case CategoryValidation, CategoryDuplicate:
		return false
	default:
		return true
	}
}

// GetExitCode returns an appropriate exit code for the error
func (e *ImportError) GetExitCode() int {
	switch e.Category {
	case CategoryFile:
		return 2
	case CategoryParse, CategoryValidation:
		return 3
	case CategorySession:
		return 4
	case CategoryStorage:
		return 5
	case CategoryDuplicate:
		return 0
	default:
		return 1
	}
}

// WithContext adds context information to the error
func (e *ImportError) WithContext(key string, value interface{}) *ImportError {
	if e.Context == nil {
		e.Context = make(Context)
	}
	e.Context[key] = value
	return e
}

// WithSuggestion adds a suggestion for fixing the error
func (e *ImportError) WithSuggestion(suggestion string) *ImportError {
	e.Suggestion = suggestion
	return e
}

// New creates a new ImportError
func New(category ErrorCategory, code ErrorCode, message string) *ImportError {
	return &ImportError{
		Category:   category,
		Code:       code,
		Message:    message,
		StackTrace: errors.New("").(stackTracer).StackTrace(),
	}
}

// Wrap wraps an existing error with ImportError context
func Wrap(err error, category ErrorCategory, code ErrorCode, message string) *ImportError {
	if err == nil {
		return nil
	}

	return &ImportError{
		Category:   category,
		Code:       code,
		Message:    message,
		Cause:      err,
		StackTrace: errors.WithStack(err).(stackTracer).StackTrace(),
	}
}

// stackTracer interface for extracting stack traces
type stackTracer interface {
	StackTrace() errors.StackTrace
}

// Specific error constructors

// FileError creates a file-level validation error for the named upload
func FileError(code ErrorCode, filename string, err error) *ImportError {
	var message string
	var suggestion string

	switch code {
	case CodeFileTooLarge:
		message = fmt.Sprintf("file exceeds the maximum allowed size: %s", filename)
		suggestion = "split the export into smaller files and import them separately"
	case CodeInvalidExtension:
		message = fmt.Sprintf("file must have a .csv extension: %s", filename)
		suggestion = "export the data as CSV and try again"
	case CodeEmptyFile:
		message = fmt.Sprintf("file is empty: %s", filename)
		suggestion = "check that the export completed and the file contains data"
	case CodeFileNotFound:
		message = fmt.Sprintf("file not found: %s", filename)
		suggestion = "check if the file path is correct and the file exists"
	default:
		message = fmt.Sprintf("file error: %s", filename)
		suggestion = "check the file and try again"
	}

	var result *ImportError
	if err != nil {
		result = Wrap(err, CategoryFile, code, message)
	} else {
		result = New(CategoryFile, code, message)
	}

	return result.
		WithSuggestion(suggestion).
		WithContext("filename", filename)
}

// ParseError creates a file-fatal parsing error
func ParseError(code ErrorCode, filename string, detail string, err error) *ImportError {
	var message string
	var suggestion string

	switch code {
	case CodeUnmappableColumns:
		message = fmt.Sprintf("unable to map required columns in %s: %s", filename, detail)
		suggestion = "ensure the header row names date, amount and description columns"
	case CodeTooFewColumns:
		message = fmt.Sprintf("too few columns in %s: %s", filename, detail)
		suggestion = "a transaction export needs at least date, amount and description columns"
	case CodeInvalidFormat:
		message = fmt.Sprintf("malformed CSV structure in %s: %s", filename, detail)
		suggestion = "check the file format and ensure it's a valid CSV"
	default:
		message = fmt.Sprintf("parse error in %s: %s", filename, detail)
		suggestion = "check the file format and data integrity"
	}

	var result *ImportError
	if err != nil {
		result = Wrap(err, CategoryParse, code, message)
	} else {
		result = New(CategoryParse, code, message)
	}

	return result.
		WithSuggestion(suggestion).
		WithContext("filename", filename).
		WithContext("detail", detail)
}

// ValidationError creates a row-level validation error
func ValidationError(code ErrorCode, field string, value interface{}, err error) *ImportError {
	var message string
	var suggestion string

	switch code {
	case CodeInvalidAmount:
		message = fmt.Sprintf("invalid amount in field '%s': %v", field, value)
		suggestion = "ensure amounts are decimal numbers, optionally with a currency symbol or parentheses"
	case CodeInvalidDate:
		message = fmt.Sprintf("invalid date in field '%s': %v", field, value)
		suggestion = "use a date format such as YYYY-MM-DD or MM/DD/YYYY"
	case CodeMissingField:
		message = fmt.Sprintf("required field '%s' is missing or empty", field)
		suggestion = "provide a value for this required field"
	case CodeValueOutOfRange:
		message = fmt.Sprintf("value out of range in field '%s': %v", field, value)
		suggestion = "ensure the value is within the acceptable range"
	default:
		message = fmt.Sprintf("validation error in field '%s': %v", field, value)
		suggestion = "check the field value and format"
	}

	var result *ImportError
	if err != nil {
		result = Wrap(err, CategoryValidation, code, message)
	} else {
		result = New(CategoryValidation, code, message)
	}

	return result.
		WithSuggestion(suggestion).
		WithContext("field", field).
		WithContext("value", value)
}

// DuplicateError creates a duplicate classification outcome for a candidate.
// Stores return this from Create when the exact-match key already exists.
func DuplicateError(existingID int64, date, amount, description string) *ImportError {
	return New(CategoryDuplicate, CodeDuplicateEntry,
		fmt.Sprintf("transaction already exists (id %d): %s %s %q", existingID, date, amount, description)).
		WithContext("existing_id", existingID).
		WithContext("date", date).
		WithContext("amount", amount)
}

// ExistingID returns the stored transaction id a duplicate classification
// collided with, or zero when the error carries none.
func (e *ImportError) ExistingID() int64 {
	if e.Context == nil {
		return 0
	}
	if id, ok := e.Context["existing_id"].(int64); ok {
		return id
	}
	return 0
}

// SessionError creates an import-session lifecycle error
func SessionError(code ErrorCode, detail string, err error) *ImportError {
	var message string
	var suggestion string

	switch code {
	case CodeInvalidTransition:
		message = fmt.Sprintf("invalid session state transition: %s", detail)
		suggestion = "a completed or failed session cannot change state; start a fresh import to retry"
	case CodeSessionNotFound:
		message = fmt.Sprintf("import session not found: %s", detail)
		suggestion = "verify the session id"
	case CodeNoValidData:
		message = "no valid transaction data found in file"
		suggestion = "check that the file contains data rows below the header"
	default:
		message = fmt.Sprintf("session error: %s", detail)
		suggestion = "check the session state and try again"
	}

	var result *ImportError
	if err != nil {
		result = Wrap(err, CategorySession, code, message)
	} else {
		result = New(CategorySession, code, message)
	}

	return result.WithSuggestion(suggestion)
}

// StorageError creates a storage-collaborator error
func StorageError(code ErrorCode, operation string, err error) *ImportError {
	var message string
	var suggestion string

	switch code {
	case CodeStoreFull:
		message = fmt.Sprintf("transaction store is at capacity during %s", operation)
		suggestion = "prune old transactions before importing more"
	default:
		message = fmt.Sprintf("storage failure during %s", operation)
		suggestion = "check the store connection and try again"
	}

	var result *ImportError
	if err != nil {
		result = Wrap(err, CategoryStorage, code, message)
	} else {
		result = New(CategoryStorage, code, message)
	}

	return result.
		WithSuggestion(suggestion).
		WithContext("operation", operation)
}

// InternalError creates an internal error
func InternalError(code ErrorCode, operation string, err error) *ImportError {
	var message string
	var suggestion string

	switch code {
	case CodeInvalidConfig:
		message = fmt.Sprintf("invalid configuration for %s", operation)
		suggestion = "check the configuration values for valid ranges"
	default:
		message = fmt.Sprintf("unexpected error during %s", operation)
		suggestion = "this is likely a bug - please report it with the error details"
	}

	var result *ImportError
	if err != nil {
		result = Wrap(err, CategoryInternal, code, message)
	} else {
		result = New(CategoryInternal, code, message)
	}

	return result.
		WithSuggestion(suggestion).
		WithContext("operation", operation)
}

// ErrorSummary provides a summary of multiple errors
type ErrorSummary struct {
	Total        int                   `json:"total"`
	ByCategory   map[ErrorCategory]int `json:"by_category"`
	ByCode       map[ErrorCode]int     `json:"by_code"`
	Errors       []*ImportError        `json:"errors"`
	SampleErrors []*ImportError        `json:"sample_errors,omitempty"`
}

// NewErrorSummary creates a new error summary
func NewErrorSummary(errs []*ImportError) *ErrorSummary {
	if len(errs) == 0 {
		return &ErrorSummary{
			Total:      0,
			ByCategory: make(map[ErrorCategory]int),
			ByCode:     make(map[ErrorCode]int),
			Errors:     []*ImportError{},
		}
	}

	summary := &ErrorSummary{
		Total:      len(errs),
		ByCategory: make(map[ErrorCategory]int),
		ByCode:     make(map[ErrorCode]int),
		Errors:     errs,
	}

	for _, err := range errs {
		summary.ByCategory[err.Category]++
		summary.ByCode[err.Code]++
	}

	// Include sample errors (max 5)
	maxSamples := 5
	if len(errs) > maxSamples {
		summary.SampleErrors = errs[:maxSamples]
	} else {
		summary.SampleErrors = errs
	}

	return summary
}

// Error returns a formatted error message for the summary
func (es *ErrorSummary) Error() string {
	if es.Total == 0 {
		return "no errors"
	}

	if es.Total == 1 {
		return es.Errors[0].Error()
	}

	var categories []string
	for category, count := range es.ByCategory {
		categories = append(categories, fmt.Sprintf("%s: %d", category, count))
	}

	return fmt.Sprintf("%d errors occurred (%s)", es.Total, strings.Join(categories, ", "))
}

// HasCategory checks if the summary contains errors of the given category
func (es *ErrorSummary) HasCategory(category ErrorCategory) bool {
	count, exists := es.ByCategory[category]
	return exists && count > 0
}

// HasCode checks if the summary contains errors with the given code
func (es *ErrorSummary) HasCode(code ErrorCode) bool {
	count, exists := es.ByCode[code]
	return exists && count > 0
}

// Utility functions

// IsImportError checks if an error is an ImportError
func IsImportError(err error) bool {
	_, ok := err.(*ImportError)
	return ok
}

// AsImportError extracts an ImportError from an error chain
func AsImportError(err error) (*ImportError, bool) {
	var importErr *ImportError
	if errors.As(err, &importErr) {
		return importErr, true
	}
	return nil, false
}

// IsDuplicate reports whether the error chain carries a duplicate classification
func IsDuplicate(err error) bool {
	if importErr, ok := AsImportError(err); ok {
		return importErr.Code == CodeDuplicateEntry
	}
	return false
}

// WrapIfNeeded wraps an error if it's not already an ImportError
func WrapIfNeeded(err error, category ErrorCategory, code ErrorCode, message string) *ImportError {
	if err == nil {
		return nil
	}

	if importErr, ok := AsImportError(err); ok {
		return importErr
	}

	return Wrap(err, category, code, message)
}
