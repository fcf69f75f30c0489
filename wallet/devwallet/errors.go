package devwallet

import "errors"

var (
	// ErrKeyRingRequired is returned when no keyring is configured.
	ErrKeyRingRequired = errors.New("key ring is required")

	// ErrApproverRequired is returned when no approver is configured.
	ErrApproverRequired = errors.New("approver is required")

	// ErrUnknownDefaultChain is returned when the default chain is not
	// among the configured chains.
	ErrUnknownDefaultChain = errors.New("default chain is not configured")

	// ErrInvalidParams is returned for malformed request parameters.
	ErrInvalidParams = errors.New("invalid request parameters")
)
