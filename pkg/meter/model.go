package meter

import (
	"fmt"
	"time"

	"github.com/ja7ad/joulemeter/pkg/types"
)

// DiskModel holds the analytical disk constants the operator measured
// for the host.
// Units:
//   - Throughput: bytes per second (average sustained read+write rate,
//     from a disk speed benchmark)
//   - ActivePower/IdlePower: Watts (from the drive's spec sheet)
//
// The storage estimate is only as accurate as these three constants;
// calibrating them is outside this package.
type DiskModel struct {
	Throughput  types.Bytes
	ActivePower float64
	IdlePower   float64
}

func (m DiskModel) validate() error {
	if m.Throughput == 0 {
		return fmt.Errorf("%w: throughput must be positive", ErrBadModel)
	}
	if m.ActivePower < 0 || m.IdlePower < 0 {
		return fmt.Errorf("%w: power draw must not be negative", ErrBadModel)
	}
	return nil
}

// DiskUsage is the storage estimator's full result: the byte total that
// drove the model, the active/idle time split, and the energy charge.
type DiskUsage struct {
	Bytes      types.Bytes   `json:"bytes"`
	ActiveTime time.Duration `json:"active_time"`
	IdleTime   time.Duration `json:"idle_time"`
	Joules     float64       `json:"joules"`

	// Clamped reports that the model's active time exceeded the window
	// and idle time was clamped to zero: either the throughput constant
	// is miscalibrated or foreign transfers leaked into the window.
	Clamped bool `json:"clamped,omitempty"`
}
