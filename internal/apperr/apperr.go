// Package apperr defines the closed set of error kinds returned by the quest,
// ledger, invitation and identity services. Callers branch on Kind, never on
// message text.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind string

const (
	KindUnknown             Kind = ""
	KindForbidden           Kind = "forbidden"
	KindInvalidTransition   Kind = "invalid_transition"
	KindNotFound            Kind = "not_found"
	KindExpired             Kind = "expired"
	KindAlreadyUsed         Kind = "already_used"
	KindInsufficientBalance Kind = "insufficient_balance"
	KindTransient           Kind = "transient_store_failure"
	KindDuplicateEffect     Kind = "duplicate_effect"
	KindInvalid             Kind = "invalid"
)

// Error is the typed error carried across service boundaries.
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

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error of the same kind, so sentinels such
// as ErrForbidden work with errors.Is.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Kind == t.Kind
	}
	return false
}

// Sentinels for errors.Is comparisons.
var (
	ErrForbidden           = &Error{Kind: KindForbidden, Message: "forbidden"}
	ErrInvalidTransition   = &Error{Kind: KindInvalidTransition, Message: "invalid transition"}
	ErrNotFound            = &Error{Kind: KindNotFound, Message: "not found"}
	ErrExpired             = &Error{Kind: KindExpired, Message: "expired"}
	ErrAlreadyUsed         = &Error{Kind: KindAlreadyUsed, Message: "already used"}
	ErrInsufficientBalance = &Error{Kind: KindInsufficientBalance, Message: "insufficient balance"}
	ErrTransient           = &Error{Kind: KindTransient, Message: "transient store failure"}
	ErrDuplicateEffect     = &Error{Kind: KindDuplicateEffect, Message: "duplicate effect"}
	ErrInvalid             = &Error{Kind: KindInvalid, Message: "invalid input"}
)

// New creates an error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates an error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an error of the given kind around cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Transient wraps a raw store error. Errors that already carry a kind pass
// through untouched.
func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	return &Error{Kind: KindTransient, Message: op, Cause: err}
}

// KindOf returns the kind of err, or KindUnknown if err carries none.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindUnknown
}

// IsRetryable reports whether the caller may safely repeat the operation.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindTransient, KindInvalidTransition:
		return true
	}
	return false
}
