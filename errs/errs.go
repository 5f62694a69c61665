// Package errs defines the closed set of error kinds the orchestrator
// surfaces to callers.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an error for retry and propagation decisions.
type Kind string

const (
	InvalidRequest          Kind = "invalid_request"
	TransientBackendFailure Kind = "transient_backend_failure"
	RateLimited             Kind = "rate_limited"
	QuotaExhausted          Kind = "quota_exhausted"
	Cancelled               Kind = "cancelled"
	DeadlineExceeded        Kind = "deadline_exceeded"
	SynthesisFailed         Kind = "synthesis_failed"
)

// Error is a tagged error carrying a Kind and an optional wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates an *Error of the given kind with a message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates an *Error of the given kind wrapping cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf extracts the Kind from err, or "" if err is not a tagged Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsTransient reports whether err should be retried by the cascade:
// transient backend failures and rate limits.
func IsTransient(err error) bool {
	k := KindOf(err)
	return k == TransientBackendFailure || k == RateLimited
}

// IsTerminal reports whether err should stop the cascade immediately
// without trying further fallbacks.
func IsTerminal(err error) bool {
	k := KindOf(err)
	return k == InvalidRequest || k == Cancelled || k == DeadlineExceeded
}

// IsQuotaExhausted reports whether err should advance the cascade to the
// next fallback immediately, skipping the exponential backoff applied to
// transient failures: a backend that is out of
// quota will not recover within the retry window, so waiting on it only
// burns the per-request deadline.
func IsQuotaExhausted(err error) bool {
	return KindOf(err) == QuotaExhausted
}
