// Package apperr classifies domain failures so HTTP handlers and webhook
// receivers can map them onto status codes and retry decisions.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind identifies the class of a failure.
type Kind string

const (
	KindUnknown    Kind = ""
	KindValidation Kind = "validation"
	KindNotFound   Kind = "not_found"
	KindDependency Kind = "dependency"
)

// Error carries a Kind, a caller-facing message and the wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
	// Fields holds extra identifiers worth returning to the caller (e.g. a
	// patient id that was created before a later step failed).
	Fields map[string]string
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil && e.Message != "":
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	case e.Err != nil:
		return e.Err.Error()
	default:
		return e.Message
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Validation reports malformed or illegal input. Never retried.
func Validation(msg string, cause error) *Error {
	return &Error{Kind: KindValidation, Message: msg, Err: cause}
}

// NotFound reports a missing target entity.
func NotFound(msg string, cause error) *Error {
	return &Error{Kind: KindNotFound, Message: msg, Err: cause}
}

// Dependency reports a storage or external-service failure. Callers may retry.
func Dependency(msg string, cause error) *Error {
	return &Error{Kind: KindDependency, Message: msg, Err: cause}
}

// With attaches a caller-facing field and returns e.
func (e *Error) With(key, value string) *Error {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	e.Fields[key] = value
	return e
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindUnknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Message returns the caller-facing message, or fallback when err is not classified.
func Message(err error, fallback string) string {
	var appErr *Error
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	return fallback
}

// FieldsOf returns the caller-facing fields attached to err, if any.
func FieldsOf(err error) map[string]string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Fields
	}
	return nil
}

// HTTPStatus maps err onto a response status code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
