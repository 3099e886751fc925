package slot

import "errors"

// Precondition errors returned by Stage. Callers are expected to switch on
// these with errors.Is; they are recoverable operator errors, not engine
// failures.
var (
	ErrInvalidSlot         = errors.New("invalid slot")
	ErrInvalidVersion      = errors.New("version must be a non-empty string")
	ErrUpdateInProgress    = errors.New("an update trial is already in progress")
	ErrUpdateAlreadyStaged = errors.New("an update is already staged")
)
