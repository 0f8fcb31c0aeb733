// Package apperr defines the error kinds returned by the marketplace core and
// their HTTP mapping.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error kinds. Every failed operation returns exactly one of these, wrapped.
var (
	ErrValidation = errors.New("validation failed")
	ErrPermission = errors.New("permission denied")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
)

// Error carries a human-readable message and the kind it belongs to.
type Error struct {
	Kind error
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

func (e *Error) Unwrap() error { return e.Kind }

func newf(kind error, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Validation reports malformed or missing input.
func Validation(format string, args ...any) error { return newf(ErrValidation, format, args...) }

// Permission reports a caller that is not allowed to perform the action.
func Permission(format string, args ...any) error { return newf(ErrPermission, format, args...) }

// NotFound reports a referenced entity that does not exist.
func NotFound(format string, args ...any) error { return newf(ErrNotFound, format, args...) }

// Conflict reports a state that does not allow the action.
func Conflict(format string, args ...any) error { return newf(ErrConflict, format, args...) }

// Status maps an error to the HTTP status the API answers with.
func Status(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrPermission):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Message returns the text safe to show to a client. Unclassified errors are
// hidden behind a generic message.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Msg
	}
	return "internal error"
}
