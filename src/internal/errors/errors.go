// Package errors provides domain-specific error types for dnsdivert.
//
// Errors carry a code so that callers can decide between dropping a single query,
// answering it negatively, or aborting the process.
package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a category of error that can occur in the application.
type ErrorCode string

const (
	// ErrCodeMalformedPacket indicates an inbound datagram that could not be decoded.
	ErrCodeMalformedPacket ErrorCode = "MALFORMED_PACKET"

	// ErrCodeResolution indicates that no upstream strategy produced an address.
	ErrCodeResolution ErrorCode = "RESOLUTION_FAILURE"

	// ErrCodeBind indicates the listener socket could not be bound.
	ErrCodeBind ErrorCode = "BIND_ERROR"

	// ErrCodeConfig indicates a configuration-related error.
	ErrCodeConfig ErrorCode = "CONFIG_ERROR"

	// ErrCodeValidation indicates a validation error.
	ErrCodeValidation ErrorCode = "VALIDATION_ERROR"

	// ErrCodeInternal indicates an unexpected internal error.
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

// Error represents a domain-specific error with an error code and optional cause.
type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause of the error for errors.Is and errors.As support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target error code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// New creates a new domain error with the specified code and message.
func New(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Wrap creates a new domain error wrapping an existing error.
func Wrap(code ErrorCode, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// Sentinels usable as errors.Is targets; only the code is compared.
var (
	ErrMalformedPacket = New(ErrCodeMalformedPacket, "malformed packet")
	ErrResolution      = New(ErrCodeResolution, "resolution failure")
	ErrBind            = New(ErrCodeBind, "bind failure")
	ErrConfig          = New(ErrCodeConfig, "configuration error")
)

// NewMalformedPacketError creates a new decode error.
func NewMalformedPacketError(message string, cause error) *Error {
	return Wrap(ErrCodeMalformedPacket, message, cause)
}

// NewBindError creates a new listener bind error.
func NewBindError(message string, cause error) *Error {
	return Wrap(ErrCodeBind, message, cause)
}

// NewConfigError creates a new configuration error.
func NewConfigError(message string, cause error) *Error {
	return Wrap(ErrCodeConfig, message, cause)
}

// NewValidationError creates a new validation error.
func NewValidationError(message string, cause error) *Error {
	return Wrap(ErrCodeValidation, message, cause)
}

// NewInternalError creates a new internal error.
func NewInternalError(message string, cause error) *Error {
	return Wrap(ErrCodeInternal, message, cause)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}

// CodeOf returns the code of the first *Error in err's chain, or ErrCodeInternal.
func CodeOf(err error) ErrorCode {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	if stderrors.Is(err, ErrResolution) {
		return ErrCodeResolution
	}
	return ErrCodeInternal
}
