package dairy

import (
	"errors"

	"github.com/dairynotes/dairy-client/internal/apierr"
	"github.com/dairynotes/dairy-client/internal/syncqueue"
)

// ErrNoCredential is returned when an operation that requires a bearer
// token runs while none is present. Distinct from a network failure.
var ErrNoCredential = errors.New("no credential present")

// ErrNotFound is returned when a note identity is absent from the cache.
var ErrNotFound = errors.New("note not found")

// ErrCreateInFlight rejects a second create while one is still awaiting
// backend confirmation.
var ErrCreateInFlight = errors.New("note create already in flight")

// ErrNotConnected is returned by Send while the stream transport is not
// open. Messages are not queued.
var ErrNotConnected = errors.New("stream session not connected")

// ErrSessionClosed is returned after an intentional session shutdown.
var ErrSessionClosed = errors.New("stream session closed")

// ErrContentTooShort rejects suggestion requests for notes below the
// configured minimum length.
var ErrContentTooShort = errors.New("note content too short for a suggestion")

// ErrSuggestionInProgress rejects a suggestion request while another
// stream is active for this session.
var ErrSuggestionInProgress = errors.New("suggestion already in progress")

// ErrBackPressure is returned when the client's internal write queue is
// full.
var ErrBackPressure = syncqueue.ErrQueueFull

// IsBackPressure reports whether err is a back-pressure error.
func IsBackPressure(err error) bool { return errors.Is(err, ErrBackPressure) }

// IsAuthError reports whether err was caused by a missing or expired
// credential (HTTP 401/403).
func IsAuthError(err error) bool { return apierr.IsAuth(err) }
