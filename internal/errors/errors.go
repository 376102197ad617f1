package errors

import "fmt"

// ErrorType classifies application errors by failure domain.
type ErrorType string

const (
	ErrTypeLink          ErrorType = "INVALID_LINK"
	ErrTypeFetch         ErrorType = "FETCH"
	ErrTypeParsing       ErrorType = "PARSING"
	ErrTypeMissingColumn ErrorType = "MISSING_COLUMN"
	ErrTypeValidation    ErrorType = "VALIDATION"
	ErrTypeNotFound      ErrorType = "NOT_FOUND"
	ErrTypeNoDataset     ErrorType = "NO_DATASET"
	ErrTypeStorage       ErrorType = "STORAGE"
	ErrTypeConfig        ErrorType = "CONFIG"
)

// AppError is the application-level error carried between the loader,
// services, and transport. Load-time kinds (link, fetch, parsing) are fatal
// to the current load attempt; MissingColumn is advisory and turns into a
// per-feature skip at the page level.
type AppError struct {
	Type    ErrorType
	Message string
	Cause   error
	Context map[string]any
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap lets errors.Is and errors.As see the cause chain.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithContext attaches a key/value pair for structured logging.
func (e *AppError) WithContext(key string, value any) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// NewAppError creates a typed application error wrapping an optional cause.
func NewAppError(errType ErrorType, message string, cause error) *AppError {
	return &AppError{Type: errType, Message: message, Cause: cause}
}

// NewLinkError reports an unparseable share-link.
func NewLinkError(message string) *AppError {
	return NewAppError(ErrTypeLink, message, nil)
}

// NewFetchError reports a failed download (network failure or non-success
// HTTP status).
func NewFetchError(message string, cause error) *AppError {
	return NewAppError(ErrTypeFetch, message, cause)
}

// NewParsingError reports malformed tabular content.
func NewParsingError(message string, cause error) *AppError {
	return NewAppError(ErrTypeParsing, message, cause)
}

// NewMissingColumnError reports that an operation needs a column the loaded
// table does not carry.
func NewMissingColumnError(column string) *AppError {
	return NewAppError(ErrTypeMissingColumn, fmt.Sprintf("column %s not present in dataset", column), nil).
		WithContext("column", column)
}

// NewValidationError reports an invalid request or parameter.
func NewValidationError(message string) *AppError {
	return NewAppError(ErrTypeValidation, message, nil)
}

// NewNotFoundError reports an absent resource.
func NewNotFoundError(resource string) *AppError {
	return NewAppError(ErrTypeNotFound, fmt.Sprintf("%s not found", resource), nil)
}

// NewNoDatasetError reports that an operation requires a loaded dataset and
// none has been loaded yet.
func NewNoDatasetError() *AppError {
	return NewAppError(ErrTypeNoDataset, "no dataset has been loaded", nil)
}

// NewStorageError reports a filesystem failure.
func NewStorageError(message string, cause error) *AppError {
	return NewAppError(ErrTypeStorage, message, cause)
}

// NewConfigError reports an invalid configuration.
func NewConfigError(message string, cause error) *AppError {
	return NewAppError(ErrTypeConfig, message, cause)
}
