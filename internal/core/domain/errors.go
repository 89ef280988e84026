package domain

import "errors"

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates an entity already exists.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnsupportedType indicates an unknown document kind or field type.
	ErrUnsupportedType = errors.New("unsupported type")

	// Authentication Errors.

	// ErrAuthRequired indicates a request carried no bearer credential.
	ErrAuthRequired = errors.New("authentication required")

	// ErrAuthInvalid indicates the bearer credential could not be verified.
	ErrAuthInvalid = errors.New("authentication invalid")

	// Collaboration Errors.

	// ErrAuthorizationUnavailable indicates the permission check itself failed.
	// No session is attempted and there is no built-in retry.
	ErrAuthorizationUnavailable = errors.New("authorization unavailable")

	// ErrPermissionDenied indicates the credential lacks edit rights, either at
	// connect time or because access was revoked mid-session. Terminal.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrTransport indicates the connection failed or dropped unexpectedly.
	// Recovered automatically up to the reconnect cap.
	ErrTransport = errors.New("transport error")

	// ErrFlushFailure indicates the pending buffer could not be persisted.
	// The buffer is retained for the next attempt.
	ErrFlushFailure = errors.New("flush failure")

	// ErrConnectionClosed indicates the peer closed the connection cleanly.
	ErrConnectionClosed = errors.New("connection closed")

	// ErrSessionClosed indicates an operation on a session that was closed.
	ErrSessionClosed = errors.New("session closed")

	// ErrRateLimited indicates a peer sent messages faster than allowed.
	ErrRateLimited = errors.New("rate limited")
)

// IsTerminal reports whether err ends a collaborative session for good.
// Permission and authorization failures are terminal; transport and flush
// failures are recoverable.
func IsTerminal(err error) bool {
	return errors.Is(err, ErrPermissionDenied) || errors.Is(err, ErrAuthorizationUnavailable)
}
