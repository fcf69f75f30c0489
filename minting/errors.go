package minting

import "errors"

var (
	// ErrValidation is returned for input rejected before any remote call.
	ErrValidation = errors.New("validation failed")

	// ErrPartialMint is the warning of a mint whose name was registered
	// but whose record write failed. The registration is kept.
	ErrPartialMint = errors.New("name registered but record not set")

	// ErrWriteInFlight is returned when a write for the same name is
	// already in flight.
	ErrWriteInFlight = errors.New("a write for this name is already in " +
		"flight")

	// ErrNotOwner is returned when editing a name the account does not
	// own.
	ErrNotOwner = errors.New("account does not own this name")

	// ErrUnknownName is returned when editing a name that is not in the
	// current view.
	ErrUnknownName = errors.New("name not found")

	// ErrNotEditing is returned when submitting an edit that was never
	// started.
	ErrNotEditing = errors.New("no edit in progress")
)
