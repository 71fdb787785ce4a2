// Package domainerrors carries coded errors across layer boundaries.
//
// Services translate store sentinels and invariant failures into a Code so
// callers can branch on the category of a failure without string matching.
// Import with the dErrors alias:
//
//	import dErrors "opgate/pkg/domain-errors"
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies a domain error.
type Code string

const (
	CodeInvalidInput       Code = "invalid_input"
	CodeInvariantViolation Code = "invariant_violation"
	CodeNotFound           Code = "not_found"
	CodeConflict           Code = "conflict"
	CodeForbidden          Code = "forbidden"
	CodeInternal           Code = "internal"
)

// Error is a coded domain error. Cause is optional and is exposed through Unwrap.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New builds a coded error without a cause.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying error.
// Returns nil when err is nil.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Cause: err}
}

// Coder is implemented by typed errors outside this package that belong to a
// domain category.
type Coder interface {
	DomainCode() Code
}

// CodeOf returns the code of the outermost domain error in the chain, or "".
// *Error values take precedence over Coder implementations.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	var c Coder
	if errors.As(err, &c) {
		return c.DomainCode()
	}
	return ""
}

// HasCode reports whether the outermost domain error in err's chain has the code.
func HasCode(err error, code Code) bool {
	return CodeOf(err) == code
}

// Is is an alias for HasCode kept for call sites that read better with it.
func Is(err error, code Code) bool {
	return HasCode(err, code)
}
