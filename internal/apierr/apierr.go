// Package apierr defines the error taxonomy every adapter and service
// classifies its failures into. The pipeline and the RAG engine never
// let a raw error escape to a caller uninspected; they wrap it in one
// of these kinds first.
package apierr

import (
	"errors"
	"fmt"
)

// Kind is one of the system's error categories.
type Kind string

const (
	Validation       Kind = "validation"
	NotFound         Kind = "not_found"
	Conflict         Kind = "conflict"
	UnsupportedMedia Kind = "unsupported_media"
	PayloadTooLarge  Kind = "payload_too_large"
	Transient        Kind = "transient"
	Permanent        Kind = "permanent"
	Internal         Kind = "internal"
)

// Error is a classified error carrying a human-readable message and
// the underlying cause, if any.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

func newErr(k Kind, msg string, cause error) *Error {
	return &Error{Kind: k, Msg: msg, Err: cause}
}

func Validationf(format string, args ...any) *Error {
	return newErr(Validation, fmt.Sprintf(format, args...), nil)
}

func NotFoundf(format string, args ...any) *Error {
	return newErr(NotFound, fmt.Sprintf(format, args...), nil)
}

func Conflictf(format string, args ...any) *Error {
	return newErr(Conflict, fmt.Sprintf(format, args...), nil)
}

func UnsupportedMediaf(format string, args ...any) *Error {
	return newErr(UnsupportedMedia, fmt.Sprintf(format, args...), nil)
}

func PayloadTooLargef(format string, args ...any) *Error {
	return newErr(PayloadTooLarge, fmt.Sprintf(format, args...), nil)
}

func Transientf(format string, args ...any) *Error {
	return newErr(Transient, fmt.Sprintf(format, args...), nil)
}

// Wrap classifies an existing error as a given kind, preserving it as
// the cause for errors.Is/As chains.
func Wrap(k Kind, msg string, cause error) *Error {
	return newErr(k, msg, cause)
}

// As extracts the *Error from err, if any error in its chain is one.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// ClassOf returns the Kind of err, defaulting to Internal when err
// carries no classification.
func ClassOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return Internal
}

// IsTransient reports whether err should be retried by the caller.
func IsTransient(err error) bool {
	return ClassOf(err) == Transient
}
