package session

import "errors"

var (
	// ErrNetworkMismatch is returned when the session is not on the target
	// chain. All writes are blocked until the chain is switched.
	ErrNetworkMismatch = errors.New("wallet is not on the target network")

	// ErrNotConnected is returned when no account is authorized.
	ErrNotConnected = errors.New("wallet is not connected")

	// ErrSessionInvalidated is returned when the session was reset while
	// an operation was waiting on a remote result.
	ErrSessionInvalidated = errors.New("session invalidated by chain " +
		"change")
)
