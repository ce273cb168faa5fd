package errs

import (
	"errors"
	"fmt"
)

// Kind classifies a caller-facing failure.
type Kind string

const (
	KindValidation        Kind = "validation_error"
	KindNoValidRecipients Kind = "no_valid_recipients"
	KindTemplateNotFound  Kind = "template_not_found"
	KindTemplateInactive  Kind = "template_inactive"
	KindTransportFailure  Kind = "transport_failure"
	KindInvalidState      Kind = "invalid_state"
	KindNotFound          Kind = "not_found"
	KindInternal          Kind = "internal"
)

var (
	// ErrNotFound is returned by stores when a record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrVersionConflict is returned by stores when an optimistic update lost the race.
	ErrVersionConflict = errors.New("version conflict")
	// ErrAlreadyExists is returned by stores on a duplicate unique key.
	ErrAlreadyExists = errors.New("record already exists")
)

// Error is a classified error with a message that is safe to show to end users.
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

// New builds a classified error.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds a classified error around a cause.
func Wrap(kind Kind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

func Validation(format string, args ...interface{}) *Error {
	return New(KindValidation, format, args...)
}

func InvalidState(format string, args ...interface{}) *Error {
	return New(KindInvalidState, format, args...)
}

func NotFound(format string, args ...interface{}) *Error {
	return Wrap(KindNotFound, ErrNotFound, format, args...)
}

// KindOf returns the Kind of err. Store sentinels map to their natural kinds,
// anything else is internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrVersionConflict):
		return KindInvalidState
	case errors.Is(err, ErrAlreadyExists):
		return KindValidation
	}
	return KindInternal
}

// MessageOf returns the user-facing message for err.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	switch KindOf(err) {
	case KindNotFound:
		return "Record not found"
	case KindInvalidState:
		return "Record was modified concurrently"
	case KindValidation:
		return "Record already exists"
	}
	return "Internal server error"
}
