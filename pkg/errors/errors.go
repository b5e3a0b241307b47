// Package errors provides custom error types for the unitwise engine.
// These errors enable programmatic error checking and keep the read-only
// reconciliation pass cleanly separated from apply-time failures.
package errors

import (
	"errors"
	"fmt"
)

// New returns an error that formats as the given text.
// It's an alias for the standard library errors.New for convenience.
var New = errors.New

// Common sentinel errors for the unitwise engine
var (
	// ErrNotFound indicates that a requested record was not found
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates that provided input was invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrReadOnly indicates an attempt to modify a read-only store
	ErrReadOnly = errors.New("read only")

	// ErrUnconvertible indicates a proposed value could not be coerced
	// to a field's native storage type
	ErrUnconvertible = errors.New("unconvertible value")
)

// NotFoundError represents an error when a record is not found
type NotFoundError struct {
	Resource string
	ID       string
}

// Error implements the error interface
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with ID %s not found", e.Resource, e.ID)
}

// Is implements errors.Is support
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// NewNotFoundError creates a new NotFoundError
func NewNotFoundError(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

// ConvertError represents a failure to coerce a proposed string value to a
// field's native storage type. It is only produced at apply time, never
// during the read-only diff pass.
type ConvertError struct {
	Field string
	Value string
	Err   error
}

// Error implements the error interface
func (e *ConvertError) Error() string {
	return fmt.Sprintf("cannot convert %q for storage in field %s", e.Value, e.Field)
}

// Unwrap implements errors.Unwrap
func (e *ConvertError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support
func (e *ConvertError) Is(target error) bool {
	return target == ErrUnconvertible
}

// NewConvertError creates a new ConvertError
func NewConvertError(field, value string, err error) *ConvertError {
	return &ConvertError{Field: field, Value: value, Err: err}
}

// StoreError represents a storage round-trip failure
type StoreError struct {
	Operation string // "read", "update", "create", "delete", "reject"
	Resource  string // "apartment", "unit", "submission", "reject marker"
	ID        string
	Err       error
}

// Error implements the error interface
func (e *StoreError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("failed to %s %s %s: %v", e.Operation, e.Resource, e.ID, e.Err)
	}
	return fmt.Sprintf("failed to %s %s: %v", e.Operation, e.Resource, e.Err)
}

// Unwrap implements errors.Unwrap
func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError creates a new StoreError
func NewStoreError(operation, resource, id string, err error) *StoreError {
	return &StoreError{Operation: operation, Resource: resource, ID: id, Err: err}
}

// ParseError represents an error when parsing data formats
type ParseError struct {
	Format  string // "json", "yaml"
	Source  string
	Message string
	Err     error
}

// Error implements the error interface
func (e *ParseError) Error() string {
	if e.Source != "" {
		return fmt.Sprintf("parse error in %s %s: %s", e.Format, e.Source, e.Message)
	}
	return fmt.Sprintf("%s parse error: %s", e.Format, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *ParseError) Unwrap() error {
	return e.Err
}

// NewParseError creates a new ParseError
func NewParseError(format, source, message string, err error) *ParseError {
	return &ParseError{Format: format, Source: source, Message: message, Err: err}
}

// ValidationError represents a validation failure
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for field %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// Is implements errors.Is support
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// NewValidationError creates a new ValidationError
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{Field: field, Value: value, Message: message}
}

// Helper functions for error checking

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsUnconvertible checks if an error is a conversion error
func IsUnconvertible(err error) bool {
	return errors.Is(err, ErrUnconvertible)
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// Helper wrapping functions for common patterns

// WrapStore wraps an error as a StoreError
func WrapStore(operation, resource, id string, err error) error {
	if err == nil {
		return nil
	}
	return NewStoreError(operation, resource, id, err)
}

// WrapParse wraps an error as a ParseError
func WrapParse(format, source string, err error) error {
	if err == nil {
		return nil
	}
	return NewParseError(format, source, err.Error(), err)
}
