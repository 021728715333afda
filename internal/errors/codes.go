// Package errors provides structured error handling for amanfind.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: IO errors (files, models, the store)
//   - 3XX: Network errors
//   - 4XX: Validation errors
//   - 5XX: Engine errors (inference, memory, lifecycle)
package errors

// Category defines error categories for classification.
type Category string

const (
	CategoryConfig     Category = "CONFIG"
	CategoryIO         Category = "IO"
	CategoryNetwork    Category = "NETWORK"
	CategoryValidation Category = "VALIDATION"
	CategoryEngine     Category = "ENGINE"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates an unrecoverable error; the current operation must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates the operation failed but the caller can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// IO errors (200-299)
	ErrCodeModelNotFound     = "ERR_201_MODEL_NOT_FOUND"
	ErrCodeModelLoad         = "ERR_202_MODEL_LOAD"
	ErrCodeFileUnreadable    = "ERR_203_FILE_UNREADABLE"
	ErrCodeUnsupportedFormat = "ERR_204_UNSUPPORTED_FORMAT"
	ErrCodeStore             = "ERR_205_STORE"
	ErrCodeNotFound          = "ERR_206_NOT_FOUND"
	ErrCodeCorruptStore      = "ERR_207_CORRUPT_STORE"

	// Network errors (300-399)
	ErrCodeNetworkTimeout     = "ERR_301_NETWORK_TIMEOUT"
	ErrCodeNetworkUnavailable = "ERR_302_NETWORK_UNAVAILABLE"
	ErrCodeModelDownload      = "ERR_303_MODEL_DOWNLOAD"

	// Validation errors (400-499)
	ErrCodeInvalidInput      = "ERR_401_INVALID_INPUT"
	ErrCodeTextTooLong       = "ERR_402_TEXT_TOO_LONG"
	ErrCodeDimensionMismatch = "ERR_403_DIMENSION_MISMATCH"
	ErrCodeQueryEmpty        = "ERR_404_QUERY_EMPTY"
	ErrCodeTooManyItems      = "ERR_405_TOO_MANY_ITEMS"
	ErrCodeNoEmbedding       = "ERR_406_NO_EMBEDDING"

	// Engine errors (500-599)
	ErrCodeInternal       = "ERR_501_INTERNAL"
	ErrCodeNotInitialized = "ERR_502_NOT_INITIALIZED"
	ErrCodeInference      = "ERR_503_INFERENCE"
	ErrCodeMemory         = "ERR_504_MEMORY"
	ErrCodeCancelled      = "ERR_505_CANCELLED"
)

// categoryFromCode extracts the category from the hundreds digit of a code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryEngine
	}

	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryIO
	case '3':
		return CategoryNetwork
	case '4':
		return CategoryValidation
	default:
		return CategoryEngine
	}
}

func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeCorruptStore, ErrCodeMemory:
		return SeverityFatal
	}

	if isRetryableCode(code) {
		return SeverityWarning
	}
	return SeverityError
}

func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeNetworkTimeout, ErrCodeNetworkUnavailable, ErrCodeModelDownload:
		return true
	default:
		return false
	}
}
