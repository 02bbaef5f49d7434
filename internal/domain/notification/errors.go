package notification

import (
	"errors"
	"fmt"
)

var (
	ErrEntryNotFound = errors.New("notification queue entry not found")
	// ErrInvalidTransition is a soft error: the entry exists but is not in a
	// state that allows the requested transition.
	ErrInvalidTransition = errors.New("invalid notification status transition")
	ErrInvalidEntry      = errors.New("invalid notification queue entry")
)

func invalid(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidEntry, msg)
}
