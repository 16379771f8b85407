package apperrors

import (
	"errors"
	"fmt"
)

// Kind classifies an error so callers can decide whether to retry, reject or mark an event failed.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindNotFound      Kind = "not_found"
	KindProvider      Kind = "provider"
	KindInvalidState  Kind = "invalid_state"
	KindConfiguration Kind = "configuration"
	KindStorage       Kind = "storage"
	KindConflict      Kind = "conflict"
)

// Error is the error type shared by the signature packages.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	if e.Op == "" {
		return fmt.Sprintf("%s: %s", e.Kind, msg)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error of the same kind, so errors.Is(err, apperrors.ErrNotFound) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Msg == "" && t.Err == nil && t.Kind == e.Kind
}

// Sentinels usable with errors.Is.
var (
	ErrValidation    = &Error{Kind: KindValidation}
	ErrNotFound      = &Error{Kind: KindNotFound}
	ErrProvider      = &Error{Kind: KindProvider}
	ErrInvalidState  = &Error{Kind: KindInvalidState}
	ErrConfiguration = &Error{Kind: KindConfiguration}
	ErrStorage       = &Error{Kind: KindStorage}
	ErrConflict      = &Error{Kind: KindConflict}
)

func newError(kind Kind, op, msg string, err error) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg, Err: err}
}

func Validation(op, msg string, err error) error {
	return newError(KindValidation, op, msg, err)
}

func NotFound(op, msg string) error {
	return newError(KindNotFound, op, msg, nil)
}

func Provider(op, msg string, err error) error {
	return newError(KindProvider, op, msg, err)
}

func InvalidState(op, msg string) error {
	return newError(KindInvalidState, op, msg, nil)
}

func Configuration(op, msg string) error {
	return newError(KindConfiguration, op, msg, nil)
}

func Storage(op, msg string, err error) error {
	return newError(KindStorage, op, msg, err)
}

func Conflict(op, msg string) error {
	return newError(KindConflict, op, msg, nil)
}

// KindOf returns the kind of the first *Error in err's chain, or "" if there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// MarksEventFailed reports whether a task-driven failure must move the event to ERROR.
func MarksEventFailed(err error) bool {
	switch KindOf(err) {
	case KindProvider, KindStorage:
		return true
	}
	return false
}

// Retryable reports whether a dispatcher should redeliver the task that produced err.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindValidation, KindNotFound, KindInvalidState, KindConfiguration:
		return false
	}
	return true
}
