package kg

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies an error for retry and surfacing decisions.
type ErrorKind string

const (
	// KindTransientIO — connection-level failure; retry with backoff, max 3.
	KindTransientIO ErrorKind = "TRANSIENT_IO"
	// KindRateLimited — retry after the server-indicated delay.
	KindRateLimited ErrorKind = "RATE_LIMITED"
	// KindTimeout — retry once unless the request deadline is already gone.
	KindTimeout ErrorKind = "TIMEOUT"
	// KindValidation — never retried; surfaced with the offending field.
	KindValidation ErrorKind = "VALIDATION"
	// KindNotFound — surfaced, not retried.
	KindNotFound ErrorKind = "NOT_FOUND"
	// KindPermissionDenied — surfaced, never retried, never logged with the
	// failing API key.
	KindPermissionDenied ErrorKind = "PERMISSION_DENIED"
	// KindInjectionDetected — blocked and audited.
	KindInjectionDetected ErrorKind = "INJECTION_DETECTED"
	// KindConflictingState — invariant violation, e.g. on merge.
	KindConflictingState ErrorKind = "CONFLICTING_STATE"
	// KindFatal — unrecoverable; the operation fails but the process stays up.
	KindFatal ErrorKind = "FATAL"
)

// Public four-digit error codes. The leading digit is the kind class:
// 1xxx validation, 2xxx connectivity, 3xxx authorisation, 4xxx quota,
// 5xxx internal.
const (
	CodeValidation        = 1000
	CodeInjectionDetected = 1100
	CodeTransientIO       = 2000
	CodeTimeout           = 2001
	CodeNotFound          = 2404
	CodePermissionDenied  = 3000
	CodeRateLimited       = 4000
	CodeConflictingState  = 5000
	CodeFatal             = 5999
)

var kindCodes = map[ErrorKind]int{
	KindValidation:        CodeValidation,
	KindInjectionDetected: CodeInjectionDetected,
	KindTransientIO:       CodeTransientIO,
	KindTimeout:           CodeTimeout,
	KindNotFound:          CodeNotFound,
	KindPermissionDenied:  CodePermissionDenied,
	KindRateLimited:       CodeRateLimited,
	KindConflictingState:  CodeConflictingState,
	KindFatal:             CodeFatal,
}

// Error is the engine-wide error type. It carries the kind, the public
// four-digit code, an optional offending field for validation failures, and
// an optional server-indicated retry delay.
type Error struct {
	Kind       ErrorKind
	Message    string
	Field      string
	RetryAfter time.Duration
	Err        error
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Err != nil && e.Field != "":
		return fmt.Sprintf("%s [%s]: %s: %v", e.Kind, e.Field, e.Message, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	case e.Field != "":
		return fmt.Sprintf("%s [%s]: %s", e.Kind, e.Field, e.Message)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
}

// Unwrap allows errors.Is and errors.As to reach the cause.
func (e *Error) Unwrap() error { return e.Err }

// Code returns the public four-digit code for the error's kind.
func (e *Error) Code() int {
	if c, ok := kindCodes[e.Kind]; ok {
		return c
	}
	return CodeFatal
}

// Retryable reports whether a caller may retry the failed operation.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindTransientIO, KindRateLimited, KindTimeout:
		return true
	default:
		return false
	}
}

// Constructor functions, one per kind.

// NewValidation creates a validation error naming the offending field.
func NewValidation(field, message string) error {
	return &Error{Kind: KindValidation, Field: field, Message: message}
}

// NewNotFound creates a not-found error naming the resource and identifier.
func NewNotFound(resource, id string) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("%s %q not found", resource, id)}
}

// NewTransient creates a retryable connection-level error.
func NewTransient(message string, err error) error {
	return &Error{Kind: KindTransientIO, Message: message, Err: err}
}

// NewRateLimited creates a rate-limit error carrying the retry delay.
func NewRateLimited(message string, retryAfter time.Duration) error {
	return &Error{Kind: KindRateLimited, Message: message, RetryAfter: retryAfter}
}

// NewTimeout creates a timeout error.
func NewTimeout(message string, err error) error {
	return &Error{Kind: KindTimeout, Message: message, Err: err}
}

// NewPermissionDenied creates an authorisation error.
func NewPermissionDenied(message string) error {
	return &Error{Kind: KindPermissionDenied, Message: message}
}

// NewInjectionDetected creates a blocked-input error naming the field.
func NewInjectionDetected(field, message string) error {
	return &Error{Kind: KindInjectionDetected, Field: field, Message: message}
}

// NewConflict creates an invariant-violation error with a diagnostic.
func NewConflict(message string) error {
	return &Error{Kind: KindConflictingState, Message: message}
}

// NewFatal creates an unrecoverable error.
func NewFatal(message string, err error) error {
	return &Error{Kind: KindFatal, Message: message, Err: err}
}

// Wrap adds context to err, preserving its kind when it is already an
// *Error and classifying it as fatal otherwise.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return &Error{
			Kind:       e.Kind,
			Message:    message + ": " + e.Message,
			Field:      e.Field,
			RetryAfter: e.RetryAfter,
			Err:        e.Err,
		}
	}
	return &Error{Kind: KindFatal, Message: message, Err: err}
}

// KindOf returns the kind of err, or KindFatal for foreign errors.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindFatal
}

// CodeOf returns the public code of err, or CodeFatal for foreign errors.
func CodeOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Code()
	}
	return CodeFatal
}

// IsRetryable reports whether err may be retried.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable()
	}
	return false
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
