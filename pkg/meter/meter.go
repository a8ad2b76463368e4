//go:build linux

package meter

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ja7ad/joulemeter/pkg/source"
	"github.com/ja7ad/joulemeter/pkg/system/rapl"
	"github.com/ja7ad/joulemeter/pkg/timeseries"
)

// Config wires a Meter: the disk model constants, the counter source,
// and the two externally sampled streams. Immutable once handed to New.
type Config struct {
	// Disk holds the analytical disk model constants. Required.
	Disk DiskModel

	// Label names sessions begun without an explicit label. Optional;
	// a per-session identifier is generated when both are empty.
	Label string

	// Comm filters disk events down to the measured process (as the
	// kernel reports it, 15 bytes). Empty keeps every event.
	Comm string

	// Counters supplies the CPU/DRAM energy deltas. Nil selects the
	// process-wide powercap source.
	Counters rapl.Source

	// PowerLog and IOLog supply the external measurement streams.
	// Either may be nil; that component then degrades to zero with a
	// warning at report time.
	PowerLog source.PowerLog
	IOLog    source.IOLog
}

// Meter owns at most one measurement window at a time. Begin/End bound
// the window; the estimators and Report read the closed session. A
// closed session is immutable until the next Begin, so concurrent
// readers are safe.
type Meter struct {
	cfg *Config

	mu       sync.Mutex
	open     bool
	measured bool
	label    string
	window   timeseries.Window
	snap     rapl.Snapshot
}

// New validates cfg and binds a meter to its counter source. A nil
// Counters falls back to the process-wide powercap source; a host
// without usable counters fails here, not at report time.
func New(cfg Config) (*Meter, error) {
	if err := cfg.Disk.validate(); err != nil {
		return nil, err
	}
	if cfg.Counters == nil {
		src, err := rapl.Default()
		if err != nil {
			return nil, fmt.Errorf("meter: counter source: %w", err)
		}
		cfg.Counters = src
	}
	return &Meter{cfg: &cfg}, nil
}

// Begin opens a measurement window: captures the counter baselines and
// the start instant. It fails with ErrSessionOpen while a window is
// open; the energy counters are one global resource, and overlapping
// windows would attribute the same microjoules twice. The external
// sampling agents should already be running.
func (m *Meter) Begin(label string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.open {
		return ErrSessionOpen
	}

	if label == "" {
		label = m.cfg.Label
	}
	if label == "" {
		label = "meter-" + uuid.NewString()[:8]
	}

	if err := m.cfg.Counters.Begin(); err != nil {
		return fmt.Errorf("meter: begin counters: %w", err)
	}
	m.label = label
	m.window = timeseries.Window{Start: time.Now()}
	m.open = true
	m.measured = false
	return nil
}

// End closes the window: fixes its duration and captures the counter
// deltas as close to this instant as possible, since the snapshot's
// validity is defined by the window itself. A counter read failure is
// fatal; the session is aborted and the meter holds no measurement.
func (m *Meter) End() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.open {
		return ErrNoSession
	}
	m.open = false

	snap, err := m.cfg.Counters.Snapshot()
	if err != nil {
		return fmt.Errorf("meter: end counters: %w", err)
	}
	m.snap = snap
	// The source clocks the elapsed time between its own counter reads,
	// which is the tightest bracket around the deltas.
	m.window.Duration = snap.Duration
	m.measured = true
	return nil
}

// Label returns the label of the current or last session.
func (m *Meter) Label() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.label
}

// Window returns the closed measurement window.
func (m *Meter) Window() (timeseries.Window, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.measured {
		return timeseries.Window{}, ErrNotMeasured
	}
	return m.window, nil
}

// Domain is one counter zone's attributed energy in joules.
type Domain struct {
	Zone   string  `json:"zone"`
	Joules float64 `json:"joules"`
}

// CPUEnergy returns the per-package energy for the closed window,
// converted from the counters' microjoules. One entry per package zone:
// multi-socket hosts keep per-socket detail, and the caller reduces
// with SumDomains when it wants a scalar. Once a session is closed this
// is a pure read that cannot fail.
func (m *Meter) CPUEnergy() ([]Domain, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.measured {
		return nil, ErrNotMeasured
	}
	return domains(m.snap.Package), nil
}

// DRAMEnergy returns the per-zone memory energy for the closed window
// in joules, shaped like CPUEnergy.
func (m *Meter) DRAMEnergy() ([]Domain, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.measured {
		return nil, ErrNotMeasured
	}
	return domains(m.snap.DRAM), nil
}

func domains(rs []rapl.Reading) []Domain {
	out := make([]Domain, 0, len(rs))
	for _, r := range rs {
		out = append(out, Domain{Zone: r.Zone, Joules: r.Energy.Joules()})
	}
	return out
}

// SumDomains reduces per-zone readings to a single scalar.
func SumDomains(ds []Domain) float64 {
	var total float64
	for _, d := range ds {
		total += d.Joules
	}
	return total
}
