// Package domainerrors carries the error kinds produced by the resolution core.
// Every error is scoped to a single incoming record or a single review action.
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

type Code string

const (
	// CodeInvalidRecord is an incoming record rejected before any store interaction.
	CodeInvalidRecord Code = "invalid_record"
	// CodeValidation is an alias or entity write that violates a store invariant.
	CodeValidation Code = "validation"
	// CodeConcurrentWriteConflict is a uniqueness collision with a concurrent writer.
	CodeConcurrentWriteConflict Code = "concurrent_write_conflict"
	// CodeStaleResolution is a review action against a match that is no longer pending.
	CodeStaleResolution Code = "stale_resolution"
	CodeNotFound        Code = "not_found"
	CodeInternal        Code = "internal"
)

type Error struct {
	Code    Code
	Message string
	Err     error
}

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error with the same code, so sentinels like ErrStaleResolution work with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code && t.Message == ""
}

// Sentinels for errors.Is checks.
var (
	ErrInvalidRecord           = &Error{Code: CodeInvalidRecord}
	ErrValidation              = &Error{Code: CodeValidation}
	ErrConcurrentWriteConflict = &Error{Code: CodeConcurrentWriteConflict}
	ErrStaleResolution         = &Error{Code: CodeStaleResolution}
	ErrNotFound                = &Error{Code: CodeNotFound}
)

// CodeOf returns the code of the outermost *Error in the chain, or CodeInternal.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

func HasCode(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// StatusCode maps a code onto the HTTP status used by the review API.
func StatusCode(code Code) int {
	switch code {
	case CodeInvalidRecord:
		return http.StatusBadRequest
	case CodeValidation:
		return http.StatusUnprocessableEntity
	case CodeConcurrentWriteConflict, CodeStaleResolution:
		return http.StatusConflict
	case CodeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
