package domain

import "errors"

// Error taxonomy shared by the store, codecs and batch operations. Per-item
// failures are counted by callers; only ErrInvariantViolation aborts a
// project-level mutation.
var (
	ErrNotFound           = errors.New("not found")
	ErrMalformedInput     = errors.New("malformed input")
	ErrIOFailure          = errors.New("io failure")
	ErrInvariantViolation = errors.New("invariant violation")
)
