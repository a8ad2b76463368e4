//go:build linux

package rapl

import "github.com/ja7ad/joulemeter/pkg/types"

// wrapDelta returns now-prev for a monotonic counter that wraps at max.
// When the counter went backwards and the range is known, the delta is
// taken across the wrap; with an unknown range there is nothing sound to
// report, so the delta is dropped.
func wrapDelta(now, prev, max types.Energy) types.Energy {
	if now >= prev {
		return now - prev
	}
	if max > 0 {
		return max - prev + now
	}
	// counter wrapped but range unknown
	return 0
}
