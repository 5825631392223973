package game

import (
	"errors"
	"fmt"
)

// Kind classifies a domain error so callers can tell a bad request from an
// impossible transition or a missing entity.
type Kind string

const (
	KindValidation  Kind = "validation"
	KindNotFound    Kind = "not_found"
	KindState       Kind = "state"
	KindUnavailable Kind = "unavailable"
)

// Error is the error type returned by the engine, registry and dispatcher.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches any *Error with the same kind, so errors.Is(err, ErrNotFound) works.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

var (
	ErrValidation  = &Error{Kind: KindValidation, Message: "validation failed"}
	ErrNotFound    = &Error{Kind: KindNotFound, Message: "not found"}
	ErrState       = &Error{Kind: KindState, Message: "invalid state"}
	ErrUnavailable = &Error{Kind: KindUnavailable, Message: "dependency unavailable"}
)

func validationf(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func notFoundf(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func statef(format string, args ...any) *Error {
	return &Error{Kind: KindState, Message: fmt.Sprintf(format, args...)}
}

// NotFoundf builds a not-found error for collaborators outside the package.
func NotFoundf(format string, args ...any) error {
	return notFoundf(format, args...)
}

// Statef builds a state error for collaborators outside the package.
func Statef(format string, args ...any) error {
	return statef(format, args...)
}

// Unavailable wraps a collaborator fault (storage, cache). Domain errors pass
// through untouched so a store can return NotFound without it being masked.
func Unavailable(op string, cause error) error {
	if cause == nil {
		return nil
	}
	var de *Error
	if errors.As(cause, &de) {
		return cause
	}
	return &Error{Kind: KindUnavailable, Message: op, Cause: cause}
}

// KindOf returns the kind of err, or "" for foreign errors.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}
