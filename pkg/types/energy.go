package types

import "fmt"

// Energy is an amount of energy in microjoules, the unit the powercap
// sysfs counters report in.
type Energy uint64

// Microjoules returns the raw microjoule count.
func (e Energy) Microjoules() uint64 { return uint64(e) }

// Joules converts the microjoule count to joules.
func (e Energy) Joules() float64 { return float64(e) * 1e-6 }

// String renders the energy in joules with a fixed precision suitable
// for table output.
func (e Energy) String() string {
	return fmt.Sprintf("%.3f J", e.Joules())
}
