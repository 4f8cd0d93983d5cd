// Package apperr defines the tagged error values used across the control
// plane. Handlers map a Code to an HTTP status at the edge; nothing below
// the handler layer should translate an error to a status code directly.
package apperr

import (
	"errors"
	"fmt"
)

// Code is a stable error taxonomy string, per the error handling design.
type Code string

const (
	CodeInvalidInput     Code = "invalid_input"
	CodeNotFound         Code = "not_found"
	CodeConflict         Code = "conflict"
	CodeInfraUnavailable Code = "infra_unavailable"
	CodeInternal         Code = "internal"
)

// Error is a tagged application error. Message is safe to surface to
// clients; Details carries optional structured context for logs.
type Error struct {
	Code    Code
	Message string
	Details map[string]interface{}
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

func Invalid(message string) *Error     { return New(CodeInvalidInput, message) }
func NotFound(message string) *Error    { return New(CodeNotFound, message) }
func Conflict(message string) *Error    { return New(CodeConflict, message) }
func Internal(err error) *Error         { return Wrap(CodeInternal, "internal error", err) }
func InfraUnavailable(err error) *Error { return Wrap(CodeInfraUnavailable, "infrastructure unavailable", err) }

// As extracts an *Error from err, returning a generic internal Error if err
// is not already tagged.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	if e, ok := err.(*Error); ok {
		return e
	}
	var e *Error
	if ok := errors.As(err, &e); ok {
		return e
	}
	return Internal(err)
}
