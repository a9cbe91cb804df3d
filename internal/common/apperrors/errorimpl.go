package apperrors

import (
	"errors"
)

// appError is the concrete implementation of Error. Instances are immutable;
// every deriving method returns a fresh value so sentinel errors declared at
// package level are never mutated by call sites.
type appError struct {
	msg        string
	base       error
	wrapped    []error
	statuscode int
}

// New creates a root-level error with the given message. Packages declare
// their sentinel errors with this and derive the rest with Error.New.
func New(msg string) Error {
	return &appError{msg: msg}
}

func (e *appError) Error() string {
	return e.msg
}

// Unwrap returns the base error so errors.Is can walk the derivation chain.
func (e *appError) Unwrap() error {
	return e.base
}

// UnwrapAll returns every wrapped error in the order it was attached.
func (e *appError) UnwrapAll() []error {
	return e.wrapped
}

// New derives a fresh error from the current one. The derived error inherits
// the status code and treats the current error as its base, so
// errors.Is(derived, parent) holds.
func (e *appError) New(msg string) Error {
	return &appError{
		msg:        msg,
		base:       e,
		statuscode: e.statuscode,
	}
}

// Msg creates a new error with the given message that wraps the current error.
func (e *appError) Msg(msg string) Error {
	return &appError{
		msg:        msg,
		base:       e,
		wrapped:    append([]error{e}, e.wrapped...),
		statuscode: e.statuscode,
	}
}

// MsgErr creates a new error with the given message and attaches additional
// causes alongside the current error.
func (e *appError) MsgErr(msg string, errs ...error) Error {
	return &appError{
		msg:        msg,
		base:       e,
		wrapped:    append([]error{e}, errs...),
		statuscode: e.statuscode,
	}
}

// Err attaches additional causes while keeping the current message.
func (e *appError) Err(errs ...error) Error {
	return &appError{
		msg:        e.msg,
		base:       e,
		wrapped:    append([]error{e}, errs...),
		statuscode: e.statuscode,
	}
}

// SetStatusCode returns a copy with the given HTTP status code.
func (e *appError) SetStatusCode(code int) Error {
	cp := *e
	cp.statuscode = code
	return &cp
}

// StatusCode returns the HTTP status code for this error.
func (e *appError) StatusCode() int {
	return e.statuscode
}

// Is reports whether target matches this error, its base, or any wrapped cause.
func (e *appError) Is(target error) bool {
	if target == nil {
		return false
	}
	if errors.Is(e.base, target) {
		return true
	}
	for _, err := range e.wrapped {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
