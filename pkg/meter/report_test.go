//go:build linux

package meter

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ja7ad/joulemeter/pkg/source"
	"github.com/ja7ad/joulemeter/pkg/timeseries"
	"github.com/ja7ad/joulemeter/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type powerLogFunc func(ctx context.Context) ([]timeseries.PowerSample, error)

func (f powerLogFunc) PowerRecords(ctx context.Context) ([]timeseries.PowerSample, error) {
	return f(ctx)
}

type ioLogFunc func(ctx context.Context) ([]timeseries.IOEvent, error)

func (f ioLogFunc) IOEvents(ctx context.Context) ([]timeseries.IOEvent, error) {
	return f(ctx)
}

var reportBase = time.Date(2024, 5, 14, 10, 0, 0, 0, time.Local)

// closedMeter builds a meter holding an already measured 10 s session,
// so report math is exact and hermetic.
func closedMeter(cfg Config) *Meter {
	return &Meter{
		cfg:      &cfg,
		measured: true,
		label:    "test-session",
		window:   timeseries.Window{Start: reportBase, Duration: 10 * time.Second},
		snap:     testSnapshot(),
	}
}

func staticPower(samples ...timeseries.PowerSample) powerLogFunc {
	return func(context.Context) ([]timeseries.PowerSample, error) { return samples, nil }
}

func staticIO(events ...timeseries.IOEvent) ioLogFunc {
	return func(context.Context) ([]timeseries.IOEvent, error) { return events, nil }
}

func TestReport_Scenario(t *testing.T) {
	// 10 s window, no accelerator rows inside it, two transfers of
	// 500 MB and 300 MB at 200 MB/s with 6 W active and 1 W idle.
	m := closedMeter(Config{
		Disk: testModel(),
		Comm: "python",
		PowerLog: staticPower(
			timeseries.PowerSample{At: reportBase.Add(-time.Minute), Watts: 80},
		),
		IOLog: staticIO(
			timeseries.IOEvent{At: reportBase.Add(1 * time.Second), Comm: "python", Bytes: 500_000_000},
			timeseries.IOEvent{At: reportBase.Add(3 * time.Second), Comm: "python", Bytes: 300_000_000},
		),
	})

	r, err := m.Report(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4*time.Second, r.Disk.ActiveTime)
	assert.Equal(t, 6*time.Second, r.Disk.IdleTime)
	assert.InDelta(t, 30.0, r.Disk.Joules, 1e-9)
	assert.False(t, r.Disk.Clamped)

	assert.Zero(t, r.GPU, "empty accelerator window falls back to zero")
	assert.Equal(t, GPUAbsent, r.GPUState)
	assert.Empty(t, r.Warnings, "the zero fallback is policy, not a degradation")

	cpu, dram := SumDomains(r.CPU), SumDomains(r.DRAM)
	assert.InDelta(t, cpu+dram+0+30.0, r.Total, 1e-9)
	assert.InDelta(t, 195.0, r.Total, 1e-9) // 150 + 15 + 0 + 30

	t.Log("---- attribution ----")
	t.Logf("cpu   : %8.3f J", cpu)
	t.Logf("dram  : %8.3f J", dram)
	t.Logf("gpu   : %8.3f J (%s)", r.GPU, r.GPUState)
	t.Logf("disk  : %8.3f J (%v active, %v idle)", r.Disk.Joules, r.Disk.ActiveTime, r.Disk.IdleTime)
	t.Logf("total : %8.3f J over %v", r.Total, r.Duration)
}

func TestReport_TotalConsistency(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
	}{
		{
			name: "all_sources",
			cfg: Config{
				Disk:     testModel(),
				PowerLog: staticPower(timeseries.PowerSample{At: reportBase.Add(time.Second), Watts: 50}),
				IOLog:    staticIO(timeseries.IOEvent{At: reportBase.Add(time.Second), Comm: "dd", Bytes: 100_000_000}),
			},
		},
		{name: "no_sources", cfg: Config{Disk: testModel()}},
		{
			name: "failing_sources",
			cfg: Config{
				Disk:     testModel(),
				PowerLog: powerLogFunc(func(context.Context) ([]timeseries.PowerSample, error) { return nil, os.ErrNotExist }),
				IOLog:    ioLogFunc(func(context.Context) ([]timeseries.IOEvent, error) { return nil, os.ErrNotExist }),
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r, err := closedMeter(tc.cfg).Report(context.Background())
			require.NoError(t, err)
			want := SumDomains(r.CPU) + SumDomains(r.DRAM) + r.GPU + r.Disk.Joules
			assert.InDelta(t, want, r.Total, 1e-9)

			comps := r.Components()
			for _, key := range []string{"cpu", "dram", "gpu", "disk", "total"} {
				_, ok := comps[key]
				assert.True(t, ok, "component %q must always be present", key)
			}
		})
	}
}

func TestReport_GPUMeasured(t *testing.T) {
	m := closedMeter(Config{
		Disk: testModel(),
		PowerLog: staticPower(
			timeseries.PowerSample{At: reportBase.Add(1 * time.Second), Watts: 90},
			timeseries.PowerSample{At: reportBase.Add(2 * time.Second), Watts: 110},
			// at the exclusive end boundary, must not count
			timeseries.PowerSample{At: reportBase.Add(10 * time.Second), Watts: 1000},
		),
	})

	r, err := m.Report(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 1000.0, r.GPU, 1e-9) // mean 100 W × 10 s
	assert.Equal(t, GPUMeasured, r.GPUState)
}

func TestReport_GPUIdleVsAbsent(t *testing.T) {
	// Sampler running, accelerator idle at 0 W: a trustworthy zero.
	idle := closedMeter(Config{
		Disk: testModel(),
		PowerLog: staticPower(
			timeseries.PowerSample{At: reportBase.Add(1 * time.Second), Watts: 0},
			timeseries.PowerSample{At: reportBase.Add(2 * time.Second), Watts: 0},
		),
	})
	r, err := idle.Report(context.Background())
	require.NoError(t, err)
	assert.Zero(t, r.GPU)
	assert.Equal(t, GPUIdle, r.GPUState)

	// Sampler not covering the window: the same zero, different meaning.
	absent := closedMeter(Config{Disk: testModel(), PowerLog: staticPower()})
	r, err = absent.Report(context.Background())
	require.NoError(t, err)
	assert.Zero(t, r.GPU)
	assert.Equal(t, GPUAbsent, r.GPUState)
}

func TestReport_DegradesPerComponent(t *testing.T) {
	m := closedMeter(Config{
		Disk:     testModel(),
		PowerLog: powerLogFunc(func(context.Context) ([]timeseries.PowerSample, error) { return nil, fmt.Errorf("open gpu_stats.csv: %w", os.ErrNotExist) }),
		IOLog:    staticIO(timeseries.IOEvent{At: reportBase.Add(time.Second), Comm: "dd", Bytes: 200_000_000}),
	})

	r, err := m.Report(context.Background())
	require.NoError(t, err, "one failing source must not abort the report")

	assert.Zero(t, r.GPU)
	assert.Equal(t, GPUAbsent, r.GPUState)
	require.Len(t, r.Warnings, 1)
	assert.Contains(t, r.Warnings[0], "gpu")
	assert.Contains(t, r.Warnings[0], "substituting 0 J")

	// The disk side still measured.
	assert.InDelta(t, 1*6+9*1, r.Disk.Joules, 1e-9)
}

func TestReport_NoSourcesConfigured(t *testing.T) {
	r, err := closedMeter(Config{Disk: testModel()}).Report(context.Background())
	require.NoError(t, err)

	assert.Zero(t, r.GPU)
	assert.Zero(t, r.Disk.Joules)
	require.Len(t, r.Warnings, 2)
	assert.InDelta(t, SumDomains(r.CPU)+SumDomains(r.DRAM), r.Total, 1e-9)
}

func TestReport_ClampWarning(t *testing.T) {
	m := closedMeter(Config{
		Disk:  DiskModel{Throughput: 1_000_000, ActivePower: 6, IdlePower: 1},
		IOLog: staticIO(timeseries.IOEvent{At: reportBase.Add(time.Second), Comm: "dd", Bytes: 100_000_000}),
	})

	r, err := m.Report(context.Background())
	require.NoError(t, err)
	assert.True(t, r.Disk.Clamped)
	require.NotEmpty(t, r.Warnings)
	assert.Contains(t, r.Warnings[len(r.Warnings)-1], "clamped")
}

func TestReport_NotMeasured(t *testing.T) {
	m := newTestMeter(t, &fakeSource{snap: testSnapshot()})
	_, err := m.Report(context.Background())
	require.ErrorIs(t, err, ErrNotMeasured)
}

// TestReport_StatsDir drives the whole pipeline through real files laid
// out the way the sampling agents write them.
func TestReport_StatsDir(t *testing.T) {
	dir := t.TempDir()
	stamp := func(offset time.Duration) string {
		return reportBase.Add(offset).Format("2006-01-02 15:04:05.000")
	}

	power := "timestamp,power_usage(W)\n" +
		stamp(1*time.Second) + ",20.0\n" +
		stamp(3*time.Second) + ",30.0\n" +
		stamp(11*time.Second) + ",99.0\n" // outside the window
	require.NoError(t, os.WriteFile(filepath.Join(dir, source.PowerLogName), []byte(power), 0o644))

	iolog := "Attaching 2 probes...\n" +
		stamp(1*time.Second) + ";python;500000000\n" +
		stamp(3*time.Second) + ";python;300000000\n" +
		stamp(4*time.Second) + ";kworker/u8:2;999999999\n" + // foreign comm
		stamp(12*time.Second) + ";python;777777777\n" // outside the window
	require.NoError(t, os.WriteFile(filepath.Join(dir, source.IOLogName), []byte(iolog), 0o644))

	logs := source.Dir{Path: dir}
	m := closedMeter(Config{
		Disk:     testModel(),
		Comm:     "python",
		PowerLog: logs,
		IOLog:    logs,
	})

	r, err := m.Report(context.Background())
	require.NoError(t, err)
	assert.Empty(t, r.Warnings)

	t.Logf("window: %v from %s", r.Duration, r.Start.Format("15:04:05.000"))
	t.Logf("gpu   : %8.3f J (%s)", r.GPU, r.GPUState)
	t.Logf("disk  : %s moved, %8.3f J", r.Disk.Bytes.Humanized(), r.Disk.Joules)
	t.Logf("total : %8.3f J", r.Total)

	assert.InDelta(t, 250.0, r.GPU, 1e-9) // mean 25 W × 10 s
	assert.Equal(t, GPUMeasured, r.GPUState)

	assert.Equal(t, types.Bytes(800_000_000), r.Disk.Bytes)
	assert.InDelta(t, 30.0, r.Disk.Joules, 1e-9)

	assert.InDelta(t, 150.0+15.0+250.0+30.0, r.Total, 1e-9)
}

func TestReport_Render(t *testing.T) {
	m := closedMeter(Config{
		Disk:  testModel(),
		IOLog: staticIO(timeseries.IOEvent{At: reportBase.Add(time.Second), Comm: "dd", Bytes: 400_000_000}),
	})
	r, err := m.Report(context.Background())
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, r.Render(&buf))
	out := buf.String()

	for _, name := range []string{"cpu", "dram", "gpu", "disk", "total", "test-session"} {
		assert.Contains(t, out, name)
	}
	assert.Contains(t, out, "█", "non-zero components should draw a bar")
	assert.Contains(t, out, "warning", "the missing power log degradation must be visible")
}
