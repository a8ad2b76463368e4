//go:build linux

package meter

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/ja7ad/joulemeter/pkg/timeseries"
)

// Report is the per-component energy accounting for one closed window.
// Every component key is always present: an unavailable source degrades
// to zero with a warning, never to a missing value.
type Report struct {
	Label    string        `json:"label"`
	Start    time.Time     `json:"start"`
	Duration time.Duration `json:"duration"`

	// CPU and DRAM keep per-zone detail; Total uses their sums.
	CPU  []Domain `json:"cpu"`
	DRAM []Domain `json:"dram"`

	GPU      float64   `json:"gpu_joules"`
	GPUState GPUStatus `json:"gpu_state"`

	Disk DiskUsage `json:"disk"`

	Total float64 `json:"total_joules"`

	// Warnings records the degradations that did not abort the report:
	// missing streams and model inconsistencies.
	Warnings []string `json:"warnings,omitempty"`
}

// Report assembles the component report for the closed window. The two
// external streams degrade per component: a missing or unparseable log
// zeroes that component and appends a warning instead of failing the
// whole report, since partial accounting still tells the caller
// something. The counter-backed components cannot fail once End
// succeeded. An empty accelerator window is not a warning; the GPUState
// tri-state already says the zero was substituted.
func (m *Meter) Report(ctx context.Context) (*Report, error) {
	m.mu.Lock()
	if !m.measured {
		m.mu.Unlock()
		return nil, ErrNotMeasured
	}
	label, window, snap := m.label, m.window, m.snap
	m.mu.Unlock()

	r := &Report{
		Label:    label,
		Start:    window.Start,
		Duration: window.Duration,
		CPU:      domains(snap.Package),
		DRAM:     domains(snap.DRAM),
		GPUState: GPUAbsent,
	}

	if m.cfg.PowerLog == nil {
		r.warnf("gpu: no power log configured; substituting 0 J")
	} else if samples, err := m.cfg.PowerLog.PowerRecords(ctx); err != nil {
		r.warnf("gpu: %v; substituting 0 J", err)
	} else {
		clipped := timeseries.Clip(samples, window)
		if e, err := GPUEnergy(clipped, window.Duration); err == nil {
			r.GPU = e
			r.GPUState = gpuStatus(clipped)
		}
	}

	if m.cfg.IOLog == nil {
		r.warnf("disk: no io log configured; substituting 0 J")
	} else if events, err := m.cfg.IOLog.IOEvents(ctx); err != nil {
		r.warnf("disk: %v; substituting 0 J", err)
	} else {
		r.Disk = m.cfg.Disk.Energy(timeseries.Clip(events, window), window.Duration, m.cfg.Comm)
		if r.Disk.Clamped {
			r.warnf("disk: model active time exceeds window, idle clamped to 0; check the throughput constant")
		}
	}

	r.Total = SumDomains(r.CPU) + SumDomains(r.DRAM) + r.GPU + r.Disk.Joules
	return r, nil
}

func (r *Report) warnf(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// componentOrder fixes the rendering and map iteration order.
var componentOrder = []string{"cpu", "dram", "gpu", "disk", "total"}

// Components flattens the report into the canonical name-to-joules
// mapping, reducing the per-zone cpu and dram sequences to scalars.
func (r *Report) Components() map[string]float64 {
	return map[string]float64{
		"cpu":   SumDomains(r.CPU),
		"dram":  SumDomains(r.DRAM),
		"gpu":   r.GPU,
		"disk":  r.Disk.Joules,
		"total": r.Total,
	}
}

// barWidth is the length of a full bar in the rendered chart.
const barWidth = 40

// Render writes a bar-chart view of the report, one row per component,
// bars scaled against the largest value.
func (r *Report) Render(w io.Writer) error {
	comps := r.Components()
	max := 0.0
	for _, name := range componentOrder {
		if comps[name] > max {
			max = comps[name]
		}
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "%s\t(%.3f s)\t\n", r.Label, r.Duration.Seconds())
	for _, name := range componentOrder {
		v := comps[name]
		fmt.Fprintf(tw, "%s\t%12.3f J\t%s\n", name, v, bar(v, max))
	}
	for _, warn := range r.Warnings {
		fmt.Fprintf(tw, "warning\t%s\t\n", warn)
	}
	return tw.Flush()
}

func bar(v, max float64) string {
	if max <= 0 || v <= 0 {
		return ""
	}
	n := int(v / max * barWidth)
	if n < 1 {
		n = 1
	}
	return strings.Repeat("█", n)
}
