package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ValidationError represents parameter validation errors
type ValidationError struct {
	Parameter string `json:"parameter"`
	Message   string `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for parameter '%s': %s", e.Parameter, e.Message)
}

// TimeoutError represents a bounded read or request that exceeded its budget
type TimeoutError struct {
	Operation string        `json:"operation"`
	Budget    time.Duration `json:"budget,omitempty"`
	Cause     error         `json:"cause,omitempty"`
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout error for %s operation (budget: %v)", e.Operation, e.Budget)
}

func (e *TimeoutError) Unwrap() error {
	return e.Cause
}

// ProcessError represents analysis session process errors
type ProcessError struct {
	Command string `json:"command"`
	Type    string `json:"type"` // "start", "stop", "communication"
	Cause   error  `json:"cause,omitempty"`
}

func (e *ProcessError) Error() string {
	return fmt.Sprintf("process error for session (%s): %s - %v", e.Type, e.Command, e.Cause)
}

func (e *ProcessError) Unwrap() error {
	return e.Cause
}

// NewValidationError creates a new validation error for the specified parameter
func NewValidationError(parameter, message string) *ValidationError {
	return &ValidationError{
		Parameter: parameter,
		Message:   message,
	}
}

// NewTimeoutError creates a new timeout error for the specified operation
func NewTimeoutError(operation string, budget time.Duration, cause error) *TimeoutError {
	return &TimeoutError{
		Operation: operation,
		Budget:    budget,
		Cause:     cause,
	}
}

// NewProcessError creates a new process error for session operations
func NewProcessError(command, errorType string, cause error) *ProcessError {
	return &ProcessError{
		Command: command,
		Type:    errorType,
		Cause:   cause,
	}
}

// IsValidationError checks if the error is a validation error
func IsValidationError(err error) bool {
	if err == nil {
		return false
	}

	var vErr *ValidationError
	return errors.As(err, &vErr)
}

// IsTimeoutError checks if the error is a timeout error
func IsTimeoutError(err error) bool {
	if err == nil {
		return false
	}

	var tErr *TimeoutError
	if errors.As(err, &tErr) {
		return true
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	errMsg := strings.ToLower(err.Error())
	return strings.Contains(errMsg, "timeout") ||
		strings.Contains(errMsg, "deadline exceeded")
}

// IsCancellationError checks if the error is a cancellation error
func IsCancellationError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) {
		return true
	}

	errMsg := strings.ToLower(err.Error())
	return strings.Contains(errMsg, "canceled") ||
		strings.Contains(errMsg, "cancelled")
}

// IsProcessError checks if the error is a process-related error
func IsProcessError(err error) bool {
	if err == nil {
		return false
	}

	var pErr *ProcessError
	return errors.As(err, &pErr)
}

// WrapWithContext wraps an error with operation context
func WrapWithContext(operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", operation, err)
}
