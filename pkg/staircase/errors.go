package staircase

import "errors"

// Sentinel errors for staircase operations.
var (
	// ErrFinished is returned when a response is added to a finished staircase.
	ErrFinished = errors.New("staircase: already finished")

	// ErrNoReversals is returned when a threshold is requested before any reversal.
	ErrNoReversals = errors.New("staircase: no reversals recorded")
)
