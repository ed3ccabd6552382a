package lastfm

import (
	"errors"
	"fmt"
	"net"
)

// Error represents a Last.fm API error.
//
// The Error type provides structured error information including
// the Last.fm error code and message. It is returned whenever the
// service answers but rejects the call.
type Error struct {
	Code    int    // Last.fm error code
	Message string // Error message from Last.fm
}

// Error returns the error message.
func (e *Error) Error() string {
	return fmt.Sprintf("lastfm: error %d: %s", e.Code, e.Message)
}

// Is checks if the target error is a Last.fm error with the same code.
//
// This allows errors.Is() to work with *Error types.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Temporary returns true if the service reported itself as temporarily
// unavailable. The client never retries on its own; callers may use this
// to decide whether a later attempt is worthwhile.
//
// The following Last.fm error codes are considered temporary:
//   - 11: Service Offline - temporarily unavailable
//   - 16: Service Temporarily Unavailable
//   - 29: Rate Limit Exceeded
func (e *Error) Temporary() bool {
	switch e.Code {
	case ErrCodeServiceOffline, ErrCodeTempUnavailable, ErrCodeRateLimitExceeded:
		return true
	default:
		return false
	}
}

// TransportError is returned when a request never produced a usable
// response: the network was unreachable, the request timed out, or the
// body could not be decoded.
type TransportError struct {
	Method string // Last.fm method being called
	Err    error  // Underlying cause
}

// Error returns the error message.
func (e *TransportError) Error() string {
	return fmt.Sprintf("lastfm: %s: transport: %v", e.Method, e.Err)
}

// Unwrap returns the underlying cause.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the underlying cause was a timeout.
func (e *TransportError) Timeout() bool {
	var netErr net.Error
	return errors.As(e.Err, &netErr) && netErr.Timeout()
}

// Common Last.fm error codes.
const (
	ErrCodeInvalidService       = 2
	ErrCodeInvalidMethod        = 3
	ErrCodeAuthenticationFailed = 4
	ErrCodeInvalidFormat        = 5
	ErrCodeInvalidParameters    = 6
	ErrCodeInvalidResourceSpec  = 7
	ErrCodeOperationFailed      = 8
	ErrCodeInvalidSessionKey    = 9
	ErrCodeInvalidAPIKey        = 10
	ErrCodeServiceOffline       = 11
	ErrCodeSubscribersOnly      = 12
	ErrCodeInvalidSignature     = 13
	ErrCodeUnauthorizedToken    = 14
	ErrCodeExpiredToken         = 15
	ErrCodeTempUnavailable      = 16
	ErrCodeRateLimitExceeded    = 29
)

// Predefined errors for common cases.
var (
	// ErrNoSessionKey is returned when an operation requires authentication
	// but no session key has been set.
	ErrNoSessionKey = errors.New("lastfm: session key required")

	// ErrNoAPISecret is returned when a signed request is attempted
	// without an API secret.
	ErrNoAPISecret = errors.New("lastfm: API secret required for signed requests")

	// ErrInvalidConfig is returned when client configuration is invalid.
	ErrInvalidConfig = errors.New("lastfm: invalid configuration")

	// ErrMalformedResponse is wrapped by TransportError when a response body
	// is not the JSON document Last.fm promises.
	ErrMalformedResponse = errors.New("malformed response")

	// ErrBatchTooLarge is returned when more than MaxBatchSize scrobbles
	// are submitted in one call.
	ErrBatchTooLarge = errors.New("lastfm: too many scrobbles in one batch")
)
