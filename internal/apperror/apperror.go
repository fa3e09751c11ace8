package apperror

import (
	"errors"
	"fmt"
)

// Kind classifies an error for logging and for the HTTP status it maps to
type Kind string

const (
	KindValidation    Kind = "VALIDATION_ERROR"
	KindAuthorization Kind = "FORBIDDEN"
	KindNotFound      Kind = "NOT_FOUND"
	KindConflict      Kind = "CONFLICT"
	KindStorage       Kind = "STORAGE_ERROR"
	KindPersistence   Kind = "PERSISTENCE_ERROR"
)

// Error is the error type returned by every core operation
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match on kind alone, e.g. errors.Is(err, apperror.ErrConflict)
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Message == "" && t.Err == nil && t.Kind == e.Kind
}

// Sentinels for errors.Is comparisons
var (
	ErrValidation    = &Error{Kind: KindValidation}
	ErrAuthorization = &Error{Kind: KindAuthorization}
	ErrNotFound      = &Error{Kind: KindNotFound}
	ErrConflict      = &Error{Kind: KindConflict}
	ErrStorage       = &Error{Kind: KindStorage}
	ErrPersistence   = &Error{Kind: KindPersistence}
)

func newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...interface{}) *Error {
	return newf(KindValidation, format, args...)
}

func Authorization(format string, args ...interface{}) *Error {
	return newf(KindAuthorization, format, args...)
}

func NotFound(format string, args ...interface{}) *Error {
	return newf(KindNotFound, format, args...)
}

func Conflict(format string, args ...interface{}) *Error {
	return newf(KindConflict, format, args...)
}

// Storage wraps a filesystem or object-store failure
func Storage(err error, format string, args ...interface{}) *Error {
	e := newf(KindStorage, format, args...)
	e.Err = err
	return e
}

// Persistence wraps a database failure that forced a rollback
func Persistence(err error, format string, args ...interface{}) *Error {
	e := newf(KindPersistence, format, args...)
	e.Err = err
	return e
}

// KindOf returns the kind of the first *Error in err's chain.
// Errors that carry no kind are reported as persistence failures.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindPersistence
}

// Wrap turns an arbitrary error into a persistence error unless it already has a kind
func Wrap(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return Persistence(err, format, args...)
}
