package utils

import (
	"errors"
	"fmt"
)

// ValidationError represents an error occurring during configuration validation.
type ValidationError struct {
	Message string
}

// Error returns the error message string.
func (e *ValidationError) Error() string {
	return e.Message
}

// NewValidationError creates a new ValidationError with a specific message.
//
// Parameters:
//   - message: The validation error message.
//
// Returns:
//   - An error interface wrapping the ValidationError.
func NewValidationError(message string) error {
	return &ValidationError{
		Message: message,
	}
}

// NewValidationErrorf creates a new ValidationError with a formatted message.
//
// Parameters:
//   - format: The format string.
//   - args: Arguments for the format string.
//
// Returns:
//   - An error interface wrapping the ValidationError.
func NewValidationErrorf(format string, args ...interface{}) error {
	return &ValidationError{
		Message: fmt.Sprintf(format, args...),
	}
}

// PreconditionError is raised when input data violates a requirement of the
// windowing engine: missing values, regions too short to train on, or indices
// outside the series. It is never repaired silently.
type PreconditionError struct {
	Message string
}

func (e *PreconditionError) Error() string {
	return "precondition violated: " + e.Message
}

// NewPreconditionErrorf creates a PreconditionError with a formatted message.
func NewPreconditionErrorf(format string, args ...interface{}) error {
	return &PreconditionError{Message: fmt.Sprintf(format, args...)}
}

// ConsistencyError signals an internal bug, such as predictions and ground
// truth with different shapes. Both shapes are kept for diagnostics.
type ConsistencyError struct {
	Message  string
	Expected []int
	Actual   []int
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("internal consistency violated: %s (expected shape %v, got %v)", e.Message, e.Expected, e.Actual)
}

// NewConsistencyError creates a ConsistencyError carrying both shapes.
func NewConsistencyError(message string, expected, actual []int) error {
	return &ConsistencyError{
		Message:  message,
		Expected: append([]int(nil), expected...),
		Actual:   append([]int(nil), actual...),
	}
}

// IsValidation reports whether err wraps a ValidationError.
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// IsPrecondition reports whether err wraps a PreconditionError.
func IsPrecondition(err error) bool {
	var target *PreconditionError
	return errors.As(err, &target)
}

// IsConsistency reports whether err wraps a ConsistencyError.
func IsConsistency(err error) bool {
	var target *ConsistencyError
	return errors.As(err, &target)
}
