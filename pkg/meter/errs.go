package meter

import "errors"

var (
	// ErrSessionOpen indicates Begin was called while a window is
	// already open on this meter.
	ErrSessionOpen = errors.New("meter: session already open")

	// ErrNoSession indicates End was called with no open window.
	ErrNoSession = errors.New("meter: no open session")

	// ErrNotMeasured indicates an estimator was asked for results
	// before any session was closed.
	ErrNotMeasured = errors.New("meter: session not measured yet")

	// ErrEmptyWindow indicates no power samples fell inside the
	// measurement window, so the mean is undefined.
	ErrEmptyWindow = errors.New("meter: no samples in window")

	// ErrBadModel indicates the disk model constants are unusable.
	ErrBadModel = errors.New("meter: invalid disk model")
)
