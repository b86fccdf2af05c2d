package apperrors

import (
	"errors"
)

// appError is the concrete implementation of Error. Sentinel errors are
// declared at package level with New and derived per call site, so every
// instance keeps a pointer to the sentinel it descends from in base.
type appError struct {
	msg        string
	base       error
	wrapped    []error
	statusCode int
}

// New creates a root-level error with the given message. Packages declare
// their sentinel hierarchies with New at init time.
func New(msg string) Error {
	return &appError{msg: msg}
}

func (e *appError) Error() string {
	return e.msg
}

// Unwrap returns the base error so errors.Is can walk the sentinel chain.
func (e *appError) Unwrap() error {
	return e.base
}

// UnwrapAll returns the wrapped errors in the order they were attached.
func (e *appError) UnwrapAll() []error {
	return e.wrapped
}

// New derives a fresh error that inherits the status code and keeps the
// current error as its base, forming a sentinel hierarchy.
func (e *appError) New(msg string) Error {
	return &appError{
		msg:        msg,
		base:       e,
		statusCode: e.statusCode,
	}
}

// Msg derives an error carrying a new message and wrapping the original.
func (e *appError) Msg(msg string) Error {
	return &appError{
		msg:        msg,
		base:       e,
		wrapped:    append([]error{e}, e.wrapped...),
		statusCode: e.statusCode,
	}
}

// MsgErr derives an error carrying a new message and wrapping the original
// plus any additional errors.
func (e *appError) MsgErr(msg string, errs ...error) Error {
	return &appError{
		msg:        msg,
		base:       e,
		wrapped:    append([]error{e}, errs...),
		statusCode: e.statusCode,
	}
}

// Err derives an error keeping the current message and attaching errs.
func (e *appError) Err(errs ...error) Error {
	return &appError{
		msg:        e.msg,
		base:       e,
		wrapped:    append([]error{e}, errs...),
		statusCode: e.statusCode,
	}
}

// SetStatusCode returns a copy with the status code updated.
func (e *appError) SetStatusCode(code int) Error {
	cp := *e
	cp.statusCode = code
	return &cp
}

func (e *appError) StatusCode() int {
	return e.statusCode
}

// Is reports whether target matches this error, its base chain, or any
// wrapped error.
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
