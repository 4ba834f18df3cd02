package core

import "github.com/pkg/errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrForbidden         = errors.New("permission denied")
	ErrConflict          = errors.New("conflict")
	ErrLocked            = errors.New("grades are locked by a pending or approved submission")
	ErrInvalidTransition = errors.New("submission has already been reviewed")
)

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

// NewFieldError is a shortcut for a ValidationError on a single field.
func NewFieldError(field, msg string) error {
	return &ValidationError{Err: errors.New(msg), Fields: []FieldError{{Field: field, Error: msg}}}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		if len(err.Fields) > 0 {
			return err.Fields[0].Field + ": " + err.Fields[0].Error
		}
		return ""
	}
	return err.Err.Error()
}

// NotFoundError is returned when a resource does not exist.
type NotFoundError struct {
	Resource string
}

func NewNotFoundError(resource string) error {
	return &NotFoundError{Resource: resource}
}

func (err NotFoundError) Error() string { return err.Resource + " not found" }

// IsNotFound reports whether err is, or wraps, a missing resource error.
func IsNotFound(err error) bool {
	cause := errors.Cause(err)
	if cause == ErrNotFound {
		return true
	}
	_, ok := cause.(*NotFoundError)
	return ok
}

// ConflictError carries a human readable reason for an ErrConflict.
type ConflictError struct {
	Reason string
}

func NewConflictError(reason string) error {
	return &ConflictError{Reason: reason}
}

func (err ConflictError) Error() string { return err.Reason }

// IsConflict reports whether err is, or wraps, a conflict.
func IsConflict(err error) bool {
	switch cause := errors.Cause(err); cause {
	case ErrConflict, ErrLocked, ErrInvalidTransition:
		return true
	default:
		_, ok := cause.(*ConflictError)
		return ok
	}
}

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
