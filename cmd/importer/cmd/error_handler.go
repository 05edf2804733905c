package cmd

import (
	"fmt"
	"os"
	"strings"

	"transaction-import-service/pkg/errors"
	"transaction-import-service/pkg/logger"

	"github.com/spf13/viper"
)

// CLIErrorHandler provides user-friendly error handling for CLI operations
type CLIErrorHandler struct {
	logger  logger.Logger
	verbose bool
}

// NewCLIErrorHandler creates a new CLI error handler
func NewCLIErrorHandler() *CLIErrorHandler {
	return &CLIErrorHandler{
		logger:  logger.GetGlobalLogger().WithComponent("cli"),
		verbose: viper.GetBool("verbose"),
	}
}

// HandleError handles errors and provides user-friendly messages
func (h *CLIErrorHandler) HandleError(err error) int {
	if err == nil {
		return 0
	}

	// Log the error
	h.logger.WithError(err).Error("Command failed")

	// Handle ImportError with detailed information
	if importErr, ok := errors.AsImportError(err); ok {
		return h.handleImportError(importErr)
	}

	// Handle other error types
	return h.handleGenericError(err)
}

// handleImportError handles ImportError with detailed context
func (h *CLIErrorHandler) handleImportError(err *errors.ImportError) int {
	// Print the main error message
	fmt.Fprintf(os.Stderr, "Error: %s\n", err.Message)

	// Add context information if available
	if len(err.Context) > 0 {
		fmt.Fprintf(os.Stderr, "\nContext:\n")
		for key, value := range err.Context {
			fmt.Fprintf(os.Stderr, "  %s: %v\n", key, value)
		}
	}

	// Add suggestion if available
	if err.Suggestion != "" {
		fmt.Fprintf(os.Stderr, "\nSuggestion: %s\n", err.Suggestion)
	}

	// Add category-specific help
	fmt.Fprintf(os.Stderr, "\n%s\n", h.getCategoryHelp(err.Category))

	// Show underlying error in verbose mode
	if h.verbose && err.Cause != nil {
		fmt.Fprintf(os.Stderr, "\nUnderlying error: %v\n", err.Cause)
	}

	return err.GetExitCode()
}

// handleGenericError handles non-ImportError types
func (h *CLIErrorHandler) handleGenericError(err error) int {
	// Check for common system errors and provide better messages
	if h.isFileNotFoundError(err) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		fmt.Fprintf(os.Stderr, "Suggestion: Check if the file path is correct and the file exists\n")
		return 2
	}

	if h.isPermissionError(err) {
		fmt.Fprintf(os.Stderr, "Error: Permission denied\n")
		fmt.Fprintf(os.Stderr, "Suggestion: Check file permissions and ensure you have read access\n")
		return 2
	}

	// Generic error handling
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)

	if !h.verbose {
		fmt.Fprintf(os.Stderr, "\nFor more details, run with --verbose\n")
	}

	return 1
}

// getCategoryHelp returns category-specific help text
func (h *CLIErrorHandler) getCategoryHelp(category errors.ErrorCategory) string {
	switch category {
	case errors.CategoryFile:
		return `File error help:
• Check if the file exists and is readable
• Verify the file path is correct (use absolute paths if needed)
• Ensure the file is a CSV export and not empty`

	case errors.CategoryParse:
		return `Parse error help:
• Verify the CSV file has a header row with date, amount, and description columns
• Check that the file uses UTF-8 encoding
• Use 'importer preview <file>' to inspect the detected column layout`

	case errors.CategoryValidation:
		return `Validation error help:
• Check that all required fields have values
• Verify dates use a supported format such as YYYY-MM-DD
• Ensure amounts are decimal numbers without currency symbols`

	case errors.CategorySession:
		return `Session error help:
• Use 'importer sessions' to inspect recent import runs
• A file with no valid rows cannot be imported; fix the data and retry
• Finished sessions cannot be modified`

	case errors.CategoryStorage:
		return `Storage error help:
• Check that the database path is writable
• Verify the store has capacity for the import
• Retry the import; the session for the failed run is marked as failed`

	default:
		return `For more help:
• Use 'importer --help' for general help
• Use 'importer import --help' for command-specific help`
	}
}

// Error detection helpers

func (h *CLIErrorHandler) isFileNotFoundError(err error) bool {
	return os.IsNotExist(err) || strings.Contains(err.Error(), "no such file or directory") ||
		strings.Contains(err.Error(), "does not exist")
}

func (h *CLIErrorHandler) isPermissionError(err error) bool {
	return os.IsPermission(err) ||
		strings.Contains(err.Error(), "permission denied") ||
		strings.Contains(err.Error(), "access denied")
}
