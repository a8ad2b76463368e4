//go:build linux

package rapl

import (
	"fmt"
	"sync"
	"time"

	"github.com/ja7ad/joulemeter/pkg/types"
)

// Reading is one zone's wrap-corrected energy delta over a window.
type Reading struct {
	Zone   string       `json:"zone"`
	Energy types.Energy `json:"energy_uj"`
}

// Snapshot carries the per-domain counter deltas accumulated between
// Begin and the Snapshot call, plus the elapsed wall time between them.
// Package and DRAM keep one reading per zone (one per socket on
// multi-socket hosts) rather than collapsing to a single scalar.
type Snapshot struct {
	Package  []Reading
	DRAM     []Reading
	Duration time.Duration
}

// Source captures counter baselines at the opening of a measurement
// window and produces the deltas at its close. The powercap counters are
// one global resource, so a Source must not serve overlapping windows;
// callers serialize Begin/Snapshot pairs.
type Source interface {
	Begin() error
	Snapshot() (Snapshot, error)
}

// SysfsSource reads RAPL counters through the powercap sysfs tree.
type SysfsSource struct {
	pkgs []Zone
	dram []Zone

	// Baselines captured by Begin
	begun    bool
	start    time.Time
	pkgBase  []types.Energy
	dramBase []types.Energy
}

var _ Source = (*SysfsSource)(nil)

// NewSysfsSource discovers zones under root and wires a counter source
// over them. Roots other than DefaultRoot exist for tests.
func NewSysfsSource(root string) (*SysfsSource, error) {
	zones, err := Discover(root)
	if err != nil {
		return nil, err
	}
	return &SysfsSource{pkgs: Packages(zones), dram: DRAM(zones)}, nil
}

// Zones returns the names of the package and dram zones the source reads.
func (s *SysfsSource) Zones() (pkgs, dram []string) {
	for _, z := range s.pkgs {
		pkgs = append(pkgs, z.Name)
	}
	for _, z := range s.dram {
		dram = append(dram, z.Name)
	}
	return pkgs, dram
}

// Begin captures the counter baselines and the window start instant.
// Calling Begin again discards the previous baseline.
func (s *SysfsSource) Begin() error {
	pkgBase, err := readAll(s.pkgs)
	if err != nil {
		return fmt.Errorf("rapl: package baseline: %w", err)
	}
	dramBase, err := readAll(s.dram)
	if err != nil {
		return fmt.Errorf("rapl: dram baseline: %w", err)
	}
	s.pkgBase, s.dramBase = pkgBase, dramBase
	s.start = time.Now()
	s.begun = true
	return nil
}

// Snapshot reads the counters again and returns the wrap-corrected
// deltas since Begin along with the elapsed duration. The baseline is
// consumed: a second Snapshot without a new Begin fails with ErrNotBegun.
func (s *SysfsSource) Snapshot() (Snapshot, error) {
	if !s.begun {
		return Snapshot{}, ErrNotBegun
	}
	elapsed := time.Since(s.start)

	pkgNow, err := readAll(s.pkgs)
	if err != nil {
		return Snapshot{}, fmt.Errorf("rapl: package snapshot: %w", err)
	}
	dramNow, err := readAll(s.dram)
	if err != nil {
		return Snapshot{}, fmt.Errorf("rapl: dram snapshot: %w", err)
	}
	s.begun = false

	snap := Snapshot{Duration: elapsed}
	for i, z := range s.pkgs {
		snap.Package = append(snap.Package, Reading{
			Zone:   z.Name,
			Energy: wrapDelta(pkgNow[i], s.pkgBase[i], z.MaxEnergy()),
		})
	}
	for i, z := range s.dram {
		snap.DRAM = append(snap.DRAM, Reading{
			Zone:   z.Name,
			Energy: wrapDelta(dramNow[i], s.dramBase[i], z.MaxEnergy()),
		})
	}
	return snap, nil
}

func readAll(zs []Zone) ([]types.Energy, error) {
	out := make([]types.Energy, len(zs))
	for i, z := range zs {
		v, err := z.Energy()
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

//
// Process-wide default source
//

var (
	defOnce   sync.Once
	defSource *SysfsSource
	defErr    error
)

// Default returns the process-wide source over DefaultRoot. Zone
// discovery runs exactly once no matter how many sessions use it; every
// caller after the first sees the same source (and the same error, if
// discovery failed).
func Default() (*SysfsSource, error) {
	defOnce.Do(func() {
		defSource, defErr = NewSysfsSource(DefaultRoot)
	})
	return defSource, defErr
}

// Setup runs the one-time process-wide discovery behind Default and
// reports its outcome. The first call fixes the result; later calls
// return it unchanged. Call it eagerly to fail fast before opening a
// session, or let Default run it on demand.
func Setup() error {
	_, err := Default()
	return err
}
