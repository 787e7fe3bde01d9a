package monitoring

import (
	"errors"
	"fmt"
)

// Error types for stats collection
const (
	ErrTypeSystem      = "system_error"
	ErrTypeTimeout     = "timeout_error"
	ErrTypeUnsupported = "unsupported_error"
)

// MonitoringError describes a failed stats probe
type MonitoringError struct {
	Type    string // Error type category
	Message string // Human-readable message
	Op      string // Probe name
	Err     error  // Original error
}

// Error implements error interface
func (e *MonitoringError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s failed: %v", e.Type, e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %s failed: %s", e.Type, e.Op, e.Message)
}

// Unwrap returns the wrapped error
func (e *MonitoringError) Unwrap() error {
	return e.Err
}

// NewSystemError creates a system error
func NewSystemError(op string, message string, err error) *MonitoringError {
	return &MonitoringError{Type: ErrTypeSystem, Message: message, Op: op, Err: err}
}

// NewTimeoutError creates a timeout error
func NewTimeoutError(op string, message string) *MonitoringError {
	return &MonitoringError{Type: ErrTypeTimeout, Message: message, Op: op}
}

// NewUnsupportedError marks a probe the platform cannot answer
func NewUnsupportedError(op string, err error) *MonitoringError {
	return &MonitoringError{Type: ErrTypeUnsupported, Message: "not supported on this platform", Op: op, Err: err}
}

// IsErrorType reports whether err wraps a MonitoringError of errorType
func IsErrorType(err error, errorType string) bool {
	var monErr *MonitoringError
	if errors.As(err, &monErr) {
		return monErr.Type == errorType
	}
	return false
}

// IsTimeout checks if error is a timeout error
func IsTimeout(err error) bool {
	return IsErrorType(err, ErrTypeTimeout)
}

// IsSystemError checks if error is a system error
func IsSystemError(err error) bool {
	return IsErrorType(err, ErrTypeSystem)
}
