// Package proxyerr defines the error kinds surfaced by gproxy endpoints and
// the helpers that map domain failures onto them. Every error carries a Type
// tag so transport layers (HTTP, CLI) can translate it without string
// matching.
package proxyerr

import (
	"errors"
	"fmt"
)

// Error types
const (
	// ErrValidation is returned when request parameters fail schema validation
	ErrValidation = "validation"

	// ErrNotFound is returned when a record or method is not found
	ErrNotFound = "not_found"

	// ErrInvalidToken is returned when an API token is unknown or expired
	ErrInvalidToken = "invalid_token"

	// ErrForbidden is returned when a token lacks the required privilege
	ErrForbidden = "forbidden"

	// ErrDuplicate is returned when a lookup expecting one record finds several
	ErrDuplicate = "duplicate_record"

	// ErrConfiguration is returned when the service is misconfigured or misused
	ErrConfiguration = "configuration"

	// ErrUnavailable is returned when the storage backend cannot be reached
	ErrUnavailable = "unavailable"

	// ErrInternal is returned when there is an unhandled internal error
	ErrInternal = "internal"
)

// FieldError describes a single invalid request parameter.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error represents an error in the application
type Error struct {
	// Type is the error type
	Type string

	// Message is the error message
	Message string

	// Fields holds per-parameter details for validation errors
	Fields []FieldError

	// Cause is the underlying error
	Cause error
}

// Error returns the error message
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new error
func NewError(errorType, message string, cause error) *Error {
	return &Error{
		Type:    errorType,
		Message: message,
		Cause:   cause,
	}
}

// NewValidationError creates a new validation error with field details
func NewValidationError(message string, fields []FieldError) *Error {
	return &Error{
		Type:    ErrValidation,
		Message: message,
		Fields:  fields,
	}
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(message string, cause error) *Error {
	return NewError(ErrNotFound, message, cause)
}

// NewInvalidTokenError creates a new invalid token error
func NewInvalidTokenError(message string) *Error {
	return NewError(ErrInvalidToken, message, nil)
}

// NewForbiddenError creates a new forbidden error
func NewForbiddenError(message string) *Error {
	return NewError(ErrForbidden, message, nil)
}

// NewDuplicateError creates a new duplicate record error
func NewDuplicateError(message string, cause error) *Error {
	return NewError(ErrDuplicate, message, cause)
}

// NewConfigurationError creates a new configuration error
func NewConfigurationError(message string, cause error) *Error {
	return NewError(ErrConfiguration, message, cause)
}

// NewUnavailableError creates a new backend unavailable error
func NewUnavailableError(message string, cause error) *Error {
	return NewError(ErrUnavailable, message, cause)
}

// NewInternalError creates a new internal error
func NewInternalError(message string, cause error) *Error {
	return NewError(ErrInternal, message, cause)
}

// typeOf extracts the Type tag from err, unwrapping as needed.
func typeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Type
	}
	return ""
}

// FieldsOf returns the field details of a validation error, or nil.
func FieldsOf(err error) []FieldError {
	var e *Error
	if errors.As(err, &e) {
		return e.Fields
	}
	return nil
}

// MessageOf returns the tagged error's message without its type prefix,
// or err.Error() for untagged errors.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	if err != nil {
		return err.Error()
	}
	return ""
}

// IsValidation checks if the error is a validation error
func IsValidation(err error) bool {
	return typeOf(err) == ErrValidation
}

// IsNotFound checks if the error is a not found error
func IsNotFound(err error) bool {
	return typeOf(err) == ErrNotFound
}

// IsInvalidToken checks if the error is an invalid token error
func IsInvalidToken(err error) bool {
	return typeOf(err) == ErrInvalidToken
}

// IsForbidden checks if the error is a forbidden error
func IsForbidden(err error) bool {
	return typeOf(err) == ErrForbidden
}

// IsDuplicate checks if the error is a duplicate record error
func IsDuplicate(err error) bool {
	return typeOf(err) == ErrDuplicate
}

// IsConfiguration checks if the error is a configuration error
func IsConfiguration(err error) bool {
	return typeOf(err) == ErrConfiguration
}

// IsUnavailable checks if the error is a backend unavailable error
func IsUnavailable(err error) bool {
	return typeOf(err) == ErrUnavailable
}

// IsInternal checks if the error is an internal error
func IsInternal(err error) bool {
	return typeOf(err) == ErrInternal
}
