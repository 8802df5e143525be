package errors

import (
	"fmt"
)

// Error types for the different categories of failures
const (
	// Input errors
	ErrInputRead        = "INPUT_READ_ERROR"
	ErrSchemaValidation = "SCHEMA_VALIDATION_ERROR"

	// Markup errors
	ErrSyntax = "SYNTAX_ERROR"

	// Declaration errors
	ErrInvalidSelector = "INVALID_SELECTOR"
	ErrReservedField   = "RESERVED_FIELD"
	ErrInvalidField    = "INVALID_FIELD"
	ErrFinalField      = "FINAL_FIELD"
	ErrRegistrySealed  = "REGISTRY_SEALED"
	ErrHandlerNotFound = "HANDLER_NOT_FOUND"

	// Resolution errors
	ErrInheritanceCycle = "INHERITANCE_CYCLE"

	// Component errors
	ErrAbstractInstantiation = "ABSTRACT_INSTANTIATION"
	ErrUnknownMethod         = "UNKNOWN_METHOD"
	ErrHandlerFailed         = "HANDLER_FAILED"
	ErrUnresolvedReference   = "UNRESOLVED_REFERENCE"

	// Build errors
	ErrBuildFailed = "BUILD_FAILED"
)

// BeastError represents a structured error with type and context
type BeastError struct {
	Type    string
	Message string
	Cause   error
	Context map[string]interface{}
}

// Error implements the error interface
func (e *BeastError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap allows error unwrapping
func (e *BeastError) Unwrap() error {
	return e.Cause
}

// New creates a new BeastError
func New(errorType, message string) *BeastError {
	return &BeastError{
		Type:    errorType,
		Message: message,
		Context: make(map[string]interface{}),
	}
}

// Newf creates a new BeastError with a formatted message
func Newf(errorType, format string, args ...interface{}) *BeastError {
	return New(errorType, fmt.Sprintf(format, args...))
}

// Wrap creates a new BeastError wrapping an existing error
func Wrap(errorType, message string, cause error) *BeastError {
	return &BeastError{
		Type:    errorType,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

// WithContext adds context information to the error
func (e *BeastError) WithContext(key string, value interface{}) *BeastError {
	e.Context[key] = value
	return e
}

// GetType returns the error type
func (e *BeastError) GetType() string {
	return e.Type
}

// GetContext returns context value by key
func (e *BeastError) GetContext(key string) (interface{}, bool) {
	value, exists := e.Context[key]
	return value, exists
}

// Helper functions for common error scenarios

// NewInputError creates an input-related error
func NewInputError(message string, cause error) *BeastError {
	return Wrap(ErrInputRead, message, cause)
}

// NewReservedFieldError reports a declaration key that belongs to the framework
func NewReservedFieldError(selector, field string) *BeastError {
	return Newf(ErrReservedField, "field '%s' of '%s' is reserved", field, selector).
		WithContext("selector", selector).
		WithContext("field", field)
}

// NewInvalidFieldError reports a framework field with a value of the wrong shape
func NewInvalidFieldError(selector, field, want string, got interface{}) *BeastError {
	return Newf(ErrInvalidField, "field '%s' of '%s' must be %s, got %T", field, selector, want, got).
		WithContext("selector", selector).
		WithContext("field", field)
}

// NewCycleError reports an inheritance cycle with the full path
func NewCycleError(path []string) *BeastError {
	return Newf(ErrInheritanceCycle, "inheritance cycle: %s", joinPath(path)).
		WithContext("path", path)
}

// NewBuildError creates a build-related error
func NewBuildError(message string, cause error) *BeastError {
	return Wrap(ErrBuildFailed, message, cause)
}

// IsErrorType checks if an error is of a specific type. Wrapped errors are
// inspected too.
func IsErrorType(err error, errorType string) bool {
	for err != nil {
		if beastErr, ok := err.(*BeastError); ok && beastErr.Type == errorType {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

func joinPath(path []string) string {
	s := ""
	for i, p := range path {
		if i > 0 {
			s += " -> "
		}
		s += p
	}
	return s
}
