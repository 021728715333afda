package errors

import (
	"errors"
	"fmt"
)

// Error is the structured error type returned by engine-level calls.
// Callers inspect Code (or use errors.Is against the sentinels below)
// instead of parsing messages.
type Error struct {
	// Code is the unique error code (e.g., "ERR_402_TEXT_TOO_LONG").
	Code string

	// Message is the human-readable error message.
	Message string

	Category Category
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error, if any.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable hint for the user.
	Suggestion string
}

// Sentinels for errors.Is comparisons. Matching is by code, so any
// Error created with the same code matches its sentinel.
var (
	ErrNotInitialized    = &Error{Code: ErrCodeNotInitialized}
	ErrModelNotFound     = &Error{Code: ErrCodeModelNotFound}
	ErrModelLoad         = &Error{Code: ErrCodeModelLoad}
	ErrTextTooLong       = &Error{Code: ErrCodeTextTooLong}
	ErrUnsupportedFormat = &Error{Code: ErrCodeUnsupportedFormat}
	ErrFileUnreadable    = &Error{Code: ErrCodeFileUnreadable}
	ErrInference         = &Error{Code: ErrCodeInference}
	ErrMemory            = &Error{Code: ErrCodeMemory}
	ErrStore             = &Error{Code: ErrCodeStore}
	ErrNotFound          = &Error{Code: ErrCodeNotFound}
	ErrNoEmbedding       = &Error{Code: ErrCodeNoEmbedding}
	ErrCancelled         = &Error{Code: ErrCodeCancelled}
	ErrTooManyItems      = &Error{Code: ErrCodeTooManyItems}
	ErrQueryEmpty        = &Error{Code: ErrCodeQueryEmpty}
	ErrInvalidInput      = &Error{Code: ErrCodeInvalidInput}
)

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches another *Error by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail and returns the error for chaining.
func (e *Error) WithDetail(key, value string) *Error {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion sets an actionable suggestion and returns the error for chaining.
func (e *Error) WithSuggestion(suggestion string) *Error {
	e.Suggestion = suggestion
	return e
}

// New creates an Error. Category, severity and the retryable flag are
// derived from the code.
func New(code string, message string, cause error) *Error {
	return &Error{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Newf is New with a formatted message and no cause.
func Newf(code string, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...), nil)
}

// Wrap creates an Error from an existing error, reusing its message.
// An err that already is an *Error is returned unchanged.
func Wrap(code string, err error) *Error {
	if err == nil {
		return nil
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe
	}
	return New(code, err.Error(), err)
}

// IsRetryable reports whether err carries a retryable Error.
func IsRetryable(err error) bool {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Retryable
	}
	return false
}

// IsFatal reports whether err carries an Error with fatal severity.
func IsFatal(err error) bool {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the code of the first Error in err's chain,
// or "" if there is none.
func GetCode(err error) string {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return ""
}
