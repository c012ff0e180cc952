package core

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors for handling decisions.
type ErrorCategory string

const (
	ErrCatValidation ErrorCategory = "validation" // Invalid input
	ErrCatNotFound   ErrorCategory = "not_found"  // Resource not found
	ErrCatConflict   ErrorCategory = "conflict"   // Illegal state transition
	ErrCatState      ErrorCategory = "state"      // State corruption
	ErrCatStorage    ErrorCategory = "storage"    // Durable write/read failure
	ErrCatInternal   ErrorCategory = "internal"   // Unexpected internal error
)

// DomainError represents a structured error from the domain layer.
type DomainError struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Retryable bool
	Cause     error
	Details   map[string]interface{}
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %s (%v)", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches a target.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Category == t.Category && e.Code == t.Code
}

// WithCause wraps an underlying error.
func (e *DomainError) WithCause(cause error) *DomainError {
	e.Cause = cause
	return e
}

// WithDetail adds contextual information.
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// ErrValidation creates a validation error.
func ErrValidation(code, message string) *DomainError {
	return &DomainError{
		Category:  ErrCatValidation,
		Code:      code,
		Message:   message,
		Retryable: false,
	}
}

// ErrNotFound creates a not found error.
func ErrNotFound(resource, id string) *DomainError {
	return &DomainError{
		Category:  ErrCatNotFound,
		Code:      "NOT_FOUND",
		Message:   fmt.Sprintf("%s not found: %s", resource, id),
		Retryable: false,
	}
}

// ErrInvalidTransition creates an illegal state transition error.
func ErrInvalidTransition(code, message string) *DomainError {
	return &DomainError{
		Category:  ErrCatConflict,
		Code:      code,
		Message:   message,
		Retryable: false,
	}
}

// ErrState creates a state error.
func ErrState(code, message string) *DomainError {
	return &DomainError{
		Category:  ErrCatState,
		Code:      code,
		Message:   message,
		Retryable: false,
	}
}

// ErrStorage creates a storage error. Storage failures are generally
// transient, so callers may retry.
func ErrStorage(message string, cause error) *DomainError {
	return &DomainError{
		Category:  ErrCatStorage,
		Code:      "STORAGE_FAILED",
		Message:   message,
		Retryable: true,
		Cause:     cause,
	}
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var domErr *DomainError
	if errors.As(err, &domErr) {
		return domErr.Retryable
	}
	return false
}

// GetCategory extracts the error category.
func GetCategory(err error) ErrorCategory {
	var domErr *DomainError
	if errors.As(err, &domErr) {
		return domErr.Category
	}
	return ErrCatInternal
}

// IsCategory checks if an error belongs to a category.
func IsCategory(err error, cat ErrorCategory) bool {
	return GetCategory(err) == cat
}

// Predefined error codes
const (
	CodeExecutionNotFound = "EXECUTION_NOT_FOUND"
	CodeStepNotFound      = "STEP_NOT_FOUND"
	CodeSessionNotFound   = "SESSION_NOT_FOUND"
	CodeCommandNotFound   = "COMMAND_NOT_FOUND"
	CodeInvalidState      = "INVALID_STATE"
	CodeExecutionTerminal = "EXECUTION_TERMINAL"
	CodeStepRegression    = "STEP_STATUS_REGRESSION"
	CodeStepOutOfOrder    = "STEP_OUT_OF_ORDER"
	CodeStateCorrupted    = "STATE_CORRUPTED"

	// Validation error codes
	CodeMissingKey       = "MISSING_KEY"
	CodeMissingSteps     = "MISSING_STEPS"
	CodeInvalidStatus    = "INVALID_STATUS"
	CodeInvalidPattern   = "INVALID_PATTERN"
	CodeInvalidOperation = "INVALID_OPERATION"
	CodeInvalidRole      = "INVALID_ROLE"
	CodeEmptyContent     = "EMPTY_CONTENT"
	CodeEmptyCommand     = "EMPTY_COMMAND"
)
