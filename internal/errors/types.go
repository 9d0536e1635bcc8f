package errors

import (
	"fmt"
)

// ErrorCode categorizes ingestion failures so transport adapters can map
// them to responses without string matching.
type ErrorCode string

const (
	// Transport/auth
	ErrCodeAuthentication ErrorCode = "AUTHENTICATION"
	ErrCodeInvalidInput   ErrorCode = "INVALID_INPUT"

	// Resolution
	ErrCodeUnknownInstance ErrorCode = "UNKNOWN_INSTANCE"

	// Persistence
	ErrCodeDatabaseQuery ErrorCode = "DATABASE_QUERY"

	// Best-effort side channels
	ErrCodeProviderAPI  ErrorCode = "PROVIDER_API"
	ErrCodeMediaFetch   ErrorCode = "MEDIA_FETCH"
	ErrCodeStorageWrite ErrorCode = "STORAGE_WRITE"

	ErrCodeInternalError ErrorCode = "INTERNAL_ERROR"
)

// AppError is a categorized application error.
type AppError struct {
	Code    ErrorCode              `json:"code"`
	Message string                 `json:"message"`
	Cause   error                  `json:"-"`
	Context map[string]interface{} `json:"context,omitempty"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithContext attaches a key/value pair for structured logging.
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

func Wrap(err error, code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// GetCode extracts the error code; unclassified errors are internal.
func GetCode(err error) ErrorCode {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code
	}
	return ErrCodeInternalError
}

// Is reports whether the error carries the given code.
func Is(err error, code ErrorCode) bool {
	return GetCode(err) == code
}
