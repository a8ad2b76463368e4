package rapl

import "errors"

var (
	// ErrNoZones indicates that the powercap root exists but exposes no
	// usable energy zones (no RAPL support, or the driver is not loaded).
	ErrNoZones = errors.New("rapl: no powercap zones found")

	// ErrNotBegun indicates Snapshot was called without a prior Begin,
	// so there is no baseline to diff against.
	ErrNotBegun = errors.New("rapl: snapshot without begin")
)
