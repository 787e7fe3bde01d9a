package server

import (
	"errors"
	"fmt"
	"net/http"
)

// Error types for server operations
const (
	ErrTypeHTTP       = "http_error"
	ErrTypeConfig     = "config_error"
	ErrTypeDatabase   = "database_error"
	ErrTypeDependency = "dependency_error"
	ErrTypeInternal   = "internal_error"
)

// ServerError represents a structured error
type ServerError struct {
	Type       string // Error type category
	Message    string // Human-readable message
	Op         string // Operation name
	StatusCode int    // HTTP status code
	Err        error  // Original error
}

// Error implements error interface
func (e *ServerError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s failed: %v", e.Type, e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %s failed: %s", e.Type, e.Op, e.Message)
}

// Unwrap returns the wrapped error
func (e *ServerError) Unwrap() error {
	return e.Err
}

// NewHTTPError creates an HTTP error
func NewHTTPError(op string, message string, statusCode int, err error) *ServerError {
	return &ServerError{
		Type:       ErrTypeHTTP,
		Message:    message,
		Op:         op,
		StatusCode: statusCode,
		Err:        err,
	}
}

// NewConfigError creates a configuration error
func NewConfigError(op string, message string, err error) *ServerError {
	return &ServerError{
		Type:    ErrTypeConfig,
		Message: message,
		Op:      op,
		Err:     err,
	}
}

// NewDatabaseError creates a database error
func NewDatabaseError(op string, message string, err error) *ServerError {
	return &ServerError{
		Type:       ErrTypeDatabase,
		Message:    message,
		Op:         op,
		StatusCode: http.StatusInternalServerError,
		Err:        err,
	}
}

// NewDependencyError reports an optional backing service (redis, geoip)
// that could not be reached
func NewDependencyError(op string, message string, err error) *ServerError {
	return &ServerError{
		Type:       ErrTypeDependency,
		Message:    message,
		Op:         op,
		StatusCode: http.StatusServiceUnavailable,
		Err:        err,
	}
}

// NewInternalError creates an internal server error
func NewInternalError(op string, message string, err error) *ServerError {
	return &ServerError{
		Type:       ErrTypeInternal,
		Message:    message,
		Op:         op,
		StatusCode: http.StatusInternalServerError,
		Err:        err,
	}
}

// IsErrorType reports whether err wraps a ServerError of errorType
func IsErrorType(err error, errorType string) bool {
	var srvErr *ServerError
	if errors.As(err, &srvErr) {
		return srvErr.Type == errorType
	}
	return false
}

// IsHTTPError checks if error is an HTTP error
func IsHTTPError(err error) bool {
	return IsErrorType(err, ErrTypeHTTP)
}

// IsConfigError checks if error is a config error
func IsConfigError(err error) bool {
	return IsErrorType(err, ErrTypeConfig)
}

// IsDatabaseError checks if error is a database error
func IsDatabaseError(err error) bool {
	return IsErrorType(err, ErrTypeDatabase)
}

// IsDependencyError checks if error is a dependency error
func IsDependencyError(err error) bool {
	return IsErrorType(err, ErrTypeDependency)
}

// IsInternalError checks if error is an internal error
func IsInternalError(err error) bool {
	return IsErrorType(err, ErrTypeInternal)
}
