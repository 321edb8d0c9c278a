package physics

import "errors"

var (
	// ErrInvalidShape rejects degenerate geometry at registration time. The
	// registration fails; the world is left unchanged.
	ErrInvalidShape = errors.New("physics: invalid shape")

	// ErrUnknownBody reports a reference to a removed or never-registered
	// body. This is a programming error and is always surfaced to the caller.
	ErrUnknownBody = errors.New("physics: unknown body")

	// ErrStepFailure reports a numerical failure inside Step. The step
	// recovers before returning (velocities clamped, positions restored) so
	// callers observe a consistent world alongside this error.
	ErrStepFailure = errors.New("physics: step failure")
)
