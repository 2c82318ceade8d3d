package errors

import (
	"errors"
	"fmt"
)

// Common error types for the chamados synchronization client
var (
	// Authentication errors
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNetworkUnreachable = errors.New("network unreachable")
	ErrServerFault        = errors.New("server fault")

	// Session errors
	ErrNoSession      = errors.New("no active session")
	ErrSessionChanged = errors.New("session changed while request was in flight")
	ErrInvalidToken   = errors.New("invalid token")

	// Channel errors
	ErrMissingCredential = errors.New("missing credential")
	ErrConnectFailed     = errors.New("connect failed")
	ErrClosedByServer    = errors.New("connection closed by server")
	ErrNotConnected      = errors.New("channel not connected")

	// Fetch errors
	ErrUnauthorized      = errors.New("unauthorized")
	ErrForbidden         = errors.New("forbidden")
	ErrMalformedResponse = errors.New("malformed response")
	ErrStaleResponse     = errors.New("stale response discarded")

	// General errors
	ErrNotFound       = errors.New("not found")
	ErrInvalidRequest = errors.New("invalid request")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Join marks err with kind so callers can match either with Is, while keeping
// err's message as the detail.
func Join(kind, err error) error {
	if err == nil {
		return kind
	}
	return fmt.Errorf("%w: %w", kind, err)
}
