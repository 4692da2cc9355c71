package domain

import "errors"

// Error taxonomy shared by the mutating operations. Callers classify
// with errors.Is; packages wrap these with context via fmt.Errorf %w.
var (
	// ErrInvalidInput marks a malformed request: missing required
	// field, bad timestamp, bad cron syntax, ambiguous target.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound marks an unknown contact, group, job or schedule id.
	ErrNotFound = errors.New("not found")

	// ErrInvalidState marks an illegal lifecycle transition, e.g.
	// pausing a schedule that is not active.
	ErrInvalidState = errors.New("invalid state")
)
