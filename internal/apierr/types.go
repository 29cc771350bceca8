// Package apierr classifies failures from the remote note service and the
// streaming endpoint so callers can pick the right recovery path: retry,
// roll back, re-authenticate, or surface a validation rejection.
package apierr

import (
	"errors"
	"fmt"
)

// Kind partitions errors by the recovery they demand.
type Kind int

const (
	// Transport covers network failures and server-side errors that may
	// succeed on retry (unreachable host, 5xx, timeouts, rate limiting).
	Transport Kind = iota

	// Protocol marks malformed responses or stream frames. The payload is
	// discarded; the operation is not retried.
	Protocol

	// Validation marks requests the backend rejected as invalid. Retrying
	// the same payload cannot succeed.
	Validation

	// Auth marks a missing or expired credential (401/403). The caller
	// should clear the credential and reset local state.
	Auth
)

// String returns a human-readable representation of the kind.
func (k Kind) String() string {
	switch k {
	case Transport:
		return "Transport"
	case Protocol:
		return "Protocol"
	case Validation:
		return "Validation"
	case Auth:
		return "Auth"
	default:
		return fmt.Sprintf("Unknown(%d)", int(k))
	}
}

// Error wraps a failure with its classification.
type Error struct {
	Kind       Kind
	StatusCode int    // HTTP status code (0 for non-HTTP errors)
	Op         string // operation that failed, e.g. "list notes"
	Body       string // response body for debugging
	Err        error  // the underlying error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("[%s] %s: HTTP %d: %v", e.Kind, e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Op, e.Err)
}

// Unwrap returns the underlying error for error chain compatibility.
func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether the failure may succeed on a later attempt.
func (e *Error) Retryable() bool { return e.Kind == Transport }

// KindOf extracts the classification from err, if it carries one.
func KindOf(err error) (Kind, bool) {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind, true
	}
	return 0, false
}

// IsAuth reports whether err is a credential failure.
func IsAuth(err error) bool {
	k, ok := KindOf(err)
	return ok && k == Auth
}

// IsRetryable reports whether err should be retried with backoff.
// Unclassified errors are not retried.
func IsRetryable(err error) bool {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Retryable()
	}
	return false
}
