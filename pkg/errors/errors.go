// Package errors defines the typed error taxonomy shared by every bookkeeping
// component.
//
// Each error carries a category (what kind of failure), a code (which failure),
// a human-readable message, an optional suggestion for the operator and a map
// of context values. Categories map onto CLI exit codes so scripts can react to
// a missing suspense account differently from an unreachable search provider.
//
// Example usage:
//
//	acct, err := store.AccountBySystemRole(ctx, models.RoleSuspense)
//	if acct == nil {
//		return errors.MissingAccountError("suspense")
//	}
//
//	if be, ok := errors.AsBookkeepingError(err); ok {
//		os.Exit(be.GetExitCode())
//	}
package errors

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// ErrorCategory represents different categories of errors
type ErrorCategory string

const (
	CategoryValidation    ErrorCategory = "validation"
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryStore         ErrorCategory = "store"
	CategoryProvider      ErrorCategory = "provider"
	CategoryInvariant     ErrorCategory = "invariant"
	CategoryPosting       ErrorCategory = "posting"
	CategoryBatch         ErrorCategory = "batch"
	CategoryParse         ErrorCategory = "parse"
	CategoryInternal      ErrorCategory = "internal"
)

// ErrorCode represents specific error codes within categories
type ErrorCode string

const (
	// Validation errors
	CodeInvalidAmount ErrorCode = "invalid_amount"
	CodeInvalidDate   ErrorCode = "invalid_date"
	CodeMissingField  ErrorCode = "missing_field"
	CodeOutOfRange    ErrorCode = "out_of_range"
	CodeInvalidState  ErrorCode = "invalid_state"

	// Configuration errors
	CodeInvalidConfig  ErrorCode = "invalid_config"
	CodeMissingConfig  ErrorCode = "missing_config"
	CodeMissingAccount ErrorCode = "missing_account"

	// Store errors
	CodeNotFound     ErrorCode = "not_found"
	CodeQueryFailed  ErrorCode = "query_failed"
	CodeWriteFailed  ErrorCode = "write_failed"
	CodeDecodeFailed ErrorCode = "decode_failed"

	// Provider errors
	CodeProviderUnavailable ErrorCode = "provider_unavailable"
	CodeProviderTimeout     ErrorCode = "provider_timeout"
	CodeMalformedResponse   ErrorCode = "malformed_response"

	// Invariant errors
	CodeUnbalancedEntry    ErrorCode = "unbalanced_entry"
	CodeBlacklistedAccount ErrorCode = "blacklisted_account"

	// Posting errors
	CodeAlreadyBooked   ErrorCode = "already_booked"
	CodeIncompleteInput ErrorCode = "incomplete_suggestion"
	CodeInvoiceClaimed  ErrorCode = "invoice_claimed"

	// Parse errors
	CodeInvalidFormat ErrorCode = "invalid_format"
	CodeMissingColumn ErrorCode = "missing_column"

	// Batch and internal errors
	CodeItemFailed      ErrorCode = "item_failed"
	CodeCancelled       ErrorCode = "cancelled"
	CodeUnexpectedError ErrorCode = "unexpected_error"
)

// BookkeepingError is the base error type for all application errors
type BookkeepingError struct {
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
func (e *BookkeepingError) Error() string {
	msg := e.Message
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	if e.Suggestion != "" {
		return fmt.Sprintf("%s (suggestion: %s)", msg, e.Suggestion)
	}
	return msg
}

// Unwrap returns the underlying cause error
func (e *BookkeepingError) Unwrap() error {
	return e.Cause
}

// GetExitCode returns an appropriate exit code for the error
func (e *BookkeepingError) GetExitCode() int {
	switch e.Category {
	case CategoryParse, CategoryValidation:
		return 3
	case CategoryConfiguration:
		return 4
	case CategoryInvariant, CategoryPosting, CategoryInternal:
		return 5
	case CategoryProvider:
		return 6
	case CategoryStore:
		return 7
	case CategoryBatch:
		return 8
	default:
		return 1
	}
}

// WithContext adds context information to the error
func (e *BookkeepingError) WithContext(key string, value interface{}) *BookkeepingError {
	if e.Context == nil {
		e.Context = make(Context)
	}
	e.Context[key] = value
	return e
}

// WithSuggestion adds a suggestion for fixing the error
func (e *BookkeepingError) WithSuggestion(suggestion string) *BookkeepingError {
	e.Suggestion = suggestion
	return e
}

// New creates a new BookkeepingError
func New(category ErrorCategory, code ErrorCode, message string) *BookkeepingError {
	return &BookkeepingError{
		Category:   category,
		Code:       code,
		Message:    message,
		StackTrace: errors.New("").(stackTracer).StackTrace(),
	}
}

// Wrap wraps an existing error with BookkeepingError context
func Wrap(err error, category ErrorCategory, code ErrorCode, message string) *BookkeepingError {
	if err == nil {
		return nil
	}

	return &BookkeepingError{
		Category:   category,
		Code:       code,
		Message:    message,
		Cause:      err,
		StackTrace: errors.WithStack(err).(stackTracer).StackTrace(),
	}
}

type stackTracer interface {
	StackTrace() errors.StackTrace
}

func newOrWrap(err error, category ErrorCategory, code ErrorCode, message string) *BookkeepingError {
	if err != nil {
		return Wrap(err, category, code, message)
	}
	return New(category, code, message)
}

// ValidationError creates a validation-related error
func ValidationError(code ErrorCode, field string, value interface{}, err error) *BookkeepingError {
	var message, suggestion string

	switch code {
	case CodeInvalidAmount:
		message = fmt.Sprintf("invalid amount in field '%s': %v", field, value)
		suggestion = "amounts are signed decimals, negative for money out (e.g. '-45.30')"
	case CodeInvalidDate:
		message = fmt.Sprintf("invalid date in field '%s': %v", field, value)
		suggestion = "use date format YYYY-MM-DD"
	case CodeMissingField:
		message = fmt.Sprintf("required field '%s' is missing or empty", field)
		suggestion = "provide a value for this required field"
	case CodeOutOfRange:
		message = fmt.Sprintf("value out of range in field '%s': %v", field, value)
		suggestion = "ensure the value is within the acceptable range"
	case CodeInvalidState:
		message = fmt.Sprintf("'%s' is in state %v which does not allow this operation", field, value)
		suggestion = "check the transaction or invoice status before retrying"
	default:
		message = fmt.Sprintf("validation error in field '%s': %v", field, value)
		suggestion = "check the field value and format"
	}

	return newOrWrap(err, CategoryValidation, code, message).
		WithSuggestion(suggestion).
		WithContext("field", field).
		WithContext("value", value)
}

// ConfigurationError creates a configuration-related error
func ConfigurationError(code ErrorCode, setting string, value interface{}, err error) *BookkeepingError {
	var message, suggestion string

	switch code {
	case CodeInvalidConfig:
		message = fmt.Sprintf("invalid configuration for '%s': %v", setting, value)
		suggestion = "check the configuration documentation for valid values"
	case CodeMissingConfig:
		message = fmt.Sprintf("missing required configuration: %s", setting)
		suggestion = "provide this setting in the config file or as a BOOKKEEPER_ environment variable"
	default:
		message = fmt.Sprintf("configuration error: %s", setting)
		suggestion = "check your configuration and try again"
	}

	return newOrWrap(err, CategoryConfiguration, code, message).
		WithSuggestion(suggestion).
		WithContext("setting", setting).
		WithContext("value", value)
}

// MissingAccountError reports that no active account fills the given role.
// Postings never substitute another account for a missing role.
func MissingAccountError(role string) *BookkeepingError {
	return New(CategoryConfiguration, CodeMissingAccount,
		fmt.Sprintf("no active %s account found in the chart of accounts", role)).
		WithSuggestion(fmt.Sprintf("create an active account with system role '%s' or re-run the default seed", role)).
		WithContext("role", role)
}

// StoreError wraps a failure of the relational store
func StoreError(code ErrorCode, operation string, err error) *BookkeepingError {
	var message string

	switch code {
	case CodeNotFound:
		message = fmt.Sprintf("%s: record not found", operation)
	case CodeDecodeFailed:
		message = fmt.Sprintf("%s: stored row could not be decoded", operation)
	case CodeWriteFailed:
		message = fmt.Sprintf("%s: write failed", operation)
	default:
		message = fmt.Sprintf("%s: query failed", operation)
	}

	return newOrWrap(err, CategoryStore, code, message).
		WithContext("operation", operation)
}

// ProviderError wraps a failure of an external provider. These are recovered
// locally by the enrichment client and never abort a pipeline run.
func ProviderError(code ErrorCode, provider string, err error) *BookkeepingError {
	var message, suggestion string

	switch code {
	case CodeProviderTimeout:
		message = fmt.Sprintf("%s did not answer in time", provider)
		suggestion = "raise enrichment.timeout or check network connectivity"
	case CodeMalformedResponse:
		message = fmt.Sprintf("%s returned a response that could not be interpreted", provider)
		suggestion = "the local fallback was used instead"
	default:
		message = fmt.Sprintf("%s is unavailable", provider)
		suggestion = "check the provider credentials; local simulation is used when none are configured"
	}

	return newOrWrap(err, CategoryProvider, code, message).
		WithSuggestion(suggestion).
		WithContext("provider", provider)
}

// InvariantError reports a journal entry whose debit and credit totals differ
func InvariantError(entry string, debit, credit decimal.Decimal) *BookkeepingError {
	return New(CategoryInvariant, CodeUnbalancedEntry,
		fmt.Sprintf("journal entry %q is unbalanced: debit %s, credit %s", entry, debit.StringFixed(2), credit.StringFixed(2))).
		WithSuggestion("this is a bug in entry construction; nothing was persisted").
		WithContext("entry", entry).
		WithContext("debit_total", debit.StringFixed(2)).
		WithContext("credit_total", credit.StringFixed(2))
}

// PostingError creates a posting-related error
func PostingError(code ErrorCode, transactionID string, err error) *BookkeepingError {
	var message, suggestion string

	switch code {
	case CodeAlreadyBooked:
		message = fmt.Sprintf("transaction %s is already booked", transactionID)
		suggestion = "booked transactions cannot be posted again"
	case CodeIncompleteInput:
		message = fmt.Sprintf("suggestion for transaction %s has no target account", transactionID)
		suggestion = "book the transaction manually with an explicit account"
	case CodeBlacklistedAccount:
		message = fmt.Sprintf("transaction %s targets a blacklisted account", transactionID)
		suggestion = "depreciation (4200-4299) and allocation (4900-4999) accounts cannot receive bank postings"
	case CodeInvoiceClaimed:
		message = fmt.Sprintf("invoice for transaction %s is already paid by another transaction", transactionID)
		suggestion = "resolve the transaction again or book it manually"
	default:
		message = fmt.Sprintf("posting failed for transaction %s", transactionID)
		suggestion = "check the journal and try again"
	}

	return newOrWrap(err, CategoryPosting, code, message).
		WithSuggestion(suggestion).
		WithContext("transaction_id", transactionID)
}

// ParseError creates an import parsing error
func ParseError(code ErrorCode, file string, line int, column string, value string, err error) *BookkeepingError {
	var message, suggestion string

	switch code {
	case CodeMissingColumn:
		message = fmt.Sprintf("missing required column '%s' in file %s", column, file)
		suggestion = "the import file needs date, amount and description columns"
	default:
		message = fmt.Sprintf("invalid value in file %s at line %d, column '%s': '%s'", file, line, column, value)
		suggestion = "correct the value or remove the row"
	}

	return newOrWrap(err, CategoryParse, code, message).
		WithSuggestion(suggestion).
		WithContext("file", file).
		WithContext("line", line).
		WithContext("column", column)
}

// InternalError creates an internal error
func InternalError(code ErrorCode, operation string, err error) *BookkeepingError {
	var message, suggestion string

	switch code {
	case CodeCancelled:
		message = fmt.Sprintf("%s was cancelled", operation)
		suggestion = "re-run the operation; already booked transactions are skipped"
	default:
		message = fmt.Sprintf("unexpected error during %s", operation)
		suggestion = "this is likely a bug - please report it with the error details"
	}

	return newOrWrap(err, CategoryInternal, code, message).
		WithSuggestion(suggestion).
		WithContext("operation", operation)
}

// ErrorSummary provides a summary of multiple errors
type ErrorSummary struct {
	Total      int                   `json:"total"`
	ByCategory map[ErrorCategory]int `json:"by_category"`
	ByCode     map[ErrorCode]int     `json:"by_code"`
	Errors     []*BookkeepingError   `json:"-"`
}

// NewErrorSummary creates a new error summary
func NewErrorSummary(errs []*BookkeepingError) *ErrorSummary {
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

	categories := make([]string, 0, len(es.ByCategory))
	for category, count := range es.ByCategory {
		categories = append(categories, fmt.Sprintf("%s: %d", category, count))
	}
	sort.Strings(categories)

	return fmt.Sprintf("%d errors occurred (%s)", es.Total, strings.Join(categories, ", "))
}

// HasCategory checks if the summary contains errors of the given category
func (es *ErrorSummary) HasCategory(category ErrorCategory) bool {
	return es.ByCategory[category] > 0
}

// GetExitCode returns the highest priority exit code from all errors
func (es *ErrorSummary) GetExitCode() int {
	if es.Total == 0 {
		return 0
	}

	maxCode := 1
	for _, err := range es.Errors {
		if code := err.GetExitCode(); code > maxCode {
			maxCode = code
		}
	}
	return maxCode
}

// AsBookkeepingError extracts a BookkeepingError from an error chain
func AsBookkeepingError(err error) (*BookkeepingError, bool) {
	var be *BookkeepingError
	if errors.As(err, &be) {
		return be, true
	}
	return nil, false
}

// IsCategory reports whether err is a BookkeepingError of the given category
func IsCategory(err error, category ErrorCategory) bool {
	be, ok := AsBookkeepingError(err)
	return ok && be.Category == category
}

// WrapIfNeeded wraps an error if it's not already a BookkeepingError
func WrapIfNeeded(err error, category ErrorCategory, code ErrorCode, message string) *BookkeepingError {
	if err == nil {
		return nil
	}
	if be, ok := AsBookkeepingError(err); ok {
		return be
	}
	return Wrap(err, category, code, message)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}
