package cmd

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"syscall"

	"github.com/spf13/viper"

	"golang-bookkeeping-service/pkg/errors"
	"golang-bookkeeping-service/pkg/logger"
)

// CLIErrorHandler turns command errors into operator messages and exit codes
type CLIErrorHandler struct {
	logger  logger.Logger
	verbose bool
	out     io.Writer
}

// NewCLIErrorHandler creates a handler that writes to stderr
func NewCLIErrorHandler() *CLIErrorHandler {
	return &CLIErrorHandler{
		logger:  logger.GetGlobalLogger().WithComponent("cli"),
		verbose: viper.GetBool("verbose"),
		out:     os.Stderr,
	}
}

// HandleError prints err and returns the process exit code
func (h *CLIErrorHandler) HandleError(err error) int {
	if err == nil {
		return 0
	}

	h.logger.WithError(err).Debug("Command failed")

	if bkErr, ok := errors.AsBookkeepingError(err); ok {
		return h.handleBookkeepingError(bkErr)
	}
	return h.handleGenericError(err)
}

func (h *CLIErrorHandler) handleBookkeepingError(err *errors.BookkeepingError) int {
	fmt.Fprintf(h.out, "Error: %s\n", err.Message)

	if len(err.Context) > 0 {
		keys := make([]string, 0, len(err.Context))
		for key := range err.Context {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		fmt.Fprintf(h.out, "\nContext:\n")
		for _, key := range keys {
			fmt.Fprintf(h.out, "  %s: %v\n", key, err.Context[key])
		}
	}

	if err.Suggestion != "" {
		fmt.Fprintf(h.out, "\nSuggestion: %s\n", err.Suggestion)
	}

	if help := getCategoryHelp(err.Category); help != "" {
		fmt.Fprintf(h.out, "\n%s\n", help)
	}

	if h.verbose && err.Cause != nil {
		fmt.Fprintf(h.out, "\nUnderlying error: %v\n", err.Cause)
	}

	return err.GetExitCode()
}

func (h *CLIErrorHandler) handleGenericError(err error) int {
	switch {
	case isFileNotFoundError(err):
		fmt.Fprintf(h.out, "Error: File not found\n")
		fmt.Fprintf(h.out, "Suggestion: Check if the file path is correct and the file exists\n")
		return 2
	case isPermissionError(err):
		fmt.Fprintf(h.out, "Error: Permission denied\n")
		fmt.Fprintf(h.out, "Suggestion: Check permissions on the file and the database directory\n")
		return 2
	case isDiskFullError(err):
		fmt.Fprintf(h.out, "Error: Insufficient disk space\n")
		fmt.Fprintf(h.out, "Suggestion: Free up disk space and try again\n")
		return 2
	}

	fmt.Fprintf(h.out, "Error: %v\n", err)
	if !h.verbose {
		fmt.Fprintf(h.out, "\nRun with --verbose for more detail\n")
	}
	return 1
}

// getCategoryHelp returns category-specific help text
func getCategoryHelp(category errors.ErrorCategory) string {
	switch category {
	case errors.CategoryParse:
		return `Parse error help:
• Check the delimiter and pick the matching layout with --format
• The file needs a date and an amount column
• Save the export as UTF-8`

	case errors.CategoryValidation:
		return `Validation error help:
• Dates use YYYY-MM-DD
• Amounts are plain numbers, a decimal comma is accepted
• Account references are codes from 'bookkeeper accounts list'`

	case errors.CategoryConfiguration:
		return `Configuration error help:
• Check the config file passed with --config
• BOOKKEEPER_ environment variables override the file
• The chart of accounts needs bank, suspense, creditors, debtors and VAT accounts`

	case errors.CategoryStore:
		return `Database error help:
• Check that the database file is writable (--db or database.path)
• Use the list commands to look up ids`

	case errors.CategoryProvider:
		return `Provider error help:
• Check the search and LLM API keys
• Without keys the enrichment stage runs a local simulation
• Raise enrichment.timeout for slow networks`

	case errors.CategoryInvariant, errors.CategoryPosting:
		return `Booking error help:
• Depreciation (4200-4299) and allocation (4900-4999) accounts cannot be booked on
• A transaction or invoice can only be booked once
• Use 'bookkeeper resolve <id>' to see the current suggestion`

	case errors.CategoryBatch:
		return `Some transactions failed. They keep their status and can be retried
with 'bookkeeper batch --ids ...' after fixing the cause.`

	default:
		return ""
	}
}

func isFileNotFoundError(err error) bool {
	return os.IsNotExist(err) || errors.Is(err, os.ErrNotExist) ||
		strings.Contains(err.Error(), "no such file or directory")
}

func isPermissionError(err error) bool {
	return os.IsPermission(err) || errors.Is(err, os.ErrPermission) ||
		strings.Contains(err.Error(), "permission denied")
}

func isDiskFullError(err error) bool {
	if errors.Is(err, syscall.ENOSPC) {
		return true
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "no space left") || strings.Contains(errStr, "disk full")
}
