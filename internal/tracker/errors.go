package tracker

import "errors"

// Domain errors are expected and recoverable; the command layer maps
// them verbatim to user-facing replies.
var (
	ErrDuplicateActiveETA = errors.New("participant already has an active eta")
	ErrNoActiveETA        = errors.New("participant has no active eta")
	ErrAlreadyTerminal    = errors.New("eta is already in a terminal state")
	ErrUnknownContext     = errors.New("no session exists for this context")
	ErrTargetInPast       = errors.New("target arrival time is before the declaration time")
)
