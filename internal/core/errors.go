package core

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a domain failure so transport adapters can map it to a
// status code without parsing messages.
type ErrorKind string

const (
	KindNotFound           ErrorKind = "NOT_FOUND"
	KindValidation         ErrorKind = "VALIDATION"
	KindInvalidState       ErrorKind = "INVALID_STATE"
	KindInsufficientAmount ErrorKind = "INSUFFICIENT_AMOUNT"
	KindFundsNotEscrowed   ErrorKind = "FUNDS_NOT_ESCROWED"
	KindInternal           ErrorKind = "INTERNAL"
)

// Error is the structured error returned by all core services.
type Error struct {
	Kind    ErrorKind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// KindOf returns the ErrorKind of err, or KindInternal for non-domain errors.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func notFoundf(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func validationf(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func invalidStatef(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidState, Message: fmt.Sprintf(format, args...)}
}

func insufficientf(format string, args ...any) *Error {
	return &Error{Kind: KindInsufficientAmount, Message: fmt.Sprintf(format, args...)}
}

func notEscrowedf(format string, args ...any) *Error {
	return &Error{Kind: KindFundsNotEscrowed, Message: fmt.Sprintf(format, args...)}
}

func internalErr(msg string, cause error) *Error {
	return &Error{Kind: KindInternal, Message: msg, cause: cause}
}
