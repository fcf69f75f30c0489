package registry

import "errors"

var (
	// ErrNameTooShort is returned when a name has fewer than
	// MinNameLength characters.
	ErrNameTooShort = errors.New("name is too short")

	// ErrTransactionReverted is returned when a write was mined with a
	// failure status.
	ErrTransactionReverted = errors.New("transaction reverted")

	// ErrUnexpectedResult is returned when a contract call returns data
	// that does not match the interface.
	ErrUnexpectedResult = errors.New("unexpected contract result")
)
