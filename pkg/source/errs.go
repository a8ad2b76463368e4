package source

import "errors"

var (
	// ErrBadHeader indicates that a power log is missing the required
	// timestamp or power columns.
	ErrBadHeader = errors.New("source: power log missing required columns")

	// ErrBadRecord indicates a malformed row in one of the logs.
	ErrBadRecord = errors.New("source: malformed record")
)
