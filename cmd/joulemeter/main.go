//go:build linux

package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/spf13/cobra"

	"github.com/ja7ad/joulemeter/pkg/meter"
	"github.com/ja7ad/joulemeter/pkg/source"
	"github.com/ja7ad/joulemeter/pkg/types"
)

type opts struct {
	// disk model
	throughput string
	activeW    float64
	idleW      float64

	// session
	label string
	comm  string

	// stream sources
	stats        string
	gcsBucket    string
	gcsPrefix    string
	promAddr     string
	promQuery    string
	promStep     time.Duration
	promLookback time.Duration
	promToken    string

	// outputs
	render   bool
	csvPath  string
	jsonPath string
	htmlPath string
	pushURL  string
}

func main() {
	var o opts

	root := &cobra.Command{
		Use:   "joulemeter [flags] -- command [args...]",
		Short: "Per-component energy metering for a bounded command run",
		Long: `joulemeter runs a command inside a measurement window and attributes the
energy it consumed to CPU package, DRAM, GPU and disk. CPU and DRAM come
from the RAPL powercap counters; GPU comes from a power log an external
sampler wrote while the command ran; disk comes from an active/idle model
over the transfer events a trace probe recorded.

Start the sampling agents before the run and point --stats at the
directory they write (gpu_stats.csv, disk_stats.csv). The three disk
constants are host-specific: measure the throughput with a disk speed
benchmark and take the power draws from the drive's spec sheet.

Examples:
  joulemeter -- python train.py
  joulemeter --disk-throughput 450MB --disk-active-power 4.2 --disk-idle-power 0.9 --stats run42 -- python train.py
  joulemeter --gcs-bucket ml-runs --gcs-prefix run42 --json report.json -- make bench
  joulemeter --prom-addr http://prom:9090 --push-url http://gateway:9091 -- ./encode.sh`,
		Args:         cobra.MinimumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), o, args)
		},
	}

	root.Flags().StringVar(&o.throughput, "disk-throughput", "200MB", "average disk read+write speed per second (e.g. 450MB)")
	root.Flags().Float64Var(&o.activeW, "disk-active-power", 6.0, "disk power draw when active, in Watts")
	root.Flags().Float64Var(&o.idleW, "disk-idle-power", 1.0, "disk power draw when idle, in Watts")

	root.Flags().StringVarP(&o.label, "label", "l", "", "session label (defaults to a generated identifier)")
	root.Flags().StringVar(&o.comm, "comm", "", "process name filter for disk events (defaults to the command's base name)")

	root.Flags().StringVar(&o.stats, "stats", "energy_stats", "directory the sampling agents write their logs into")
	root.Flags().StringVar(&o.gcsBucket, "gcs-bucket", "", "read the logs from this GCS bucket instead of --stats")
	root.Flags().StringVar(&o.gcsPrefix, "gcs-prefix", "", "object prefix inside the GCS bucket")
	root.Flags().StringVar(&o.promAddr, "prom-addr", "", "query GPU power from this Prometheus server instead of the power log file")
	root.Flags().StringVar(&o.promQuery, "prom-query", "", "PromQL expression for GPU watts (default "+source.DefaultPowerQuery+")")
	root.Flags().DurationVar(&o.promStep, "prom-step", 0, "range query resolution (default 500ms)")
	root.Flags().DurationVar(&o.promLookback, "prom-lookback", 0, "how far back the range query reaches; must exceed the session length (default 1h)")
	root.Flags().StringVar(&o.promToken, "prom-token-file", "", "file holding a bearer token for Prometheus")

	root.Flags().BoolVar(&o.render, "render", true, "draw the per-component bar chart")
	root.Flags().StringVar(&o.csvPath, "csv", "", "write the report to a CSV file")
	root.Flags().StringVar(&o.jsonPath, "json", "", "write the report to a JSON file")
	root.Flags().StringVar(&o.htmlPath, "html", "", "write the report to an HTML file")
	root.Flags().StringVar(&o.pushURL, "push-url", "", "push the report to this Pushgateway")

	if err := root.Execute(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			// mirror the measured command's exit code
			os.Exit(exitErr.ExitCode())
		}
		slog.Error(err.Error())
		os.Exit(1)
	}
}

func run(ctx context.Context, o opts, args []string) error {
	throughput, err := types.ParseBytes(o.throughput)
	if err != nil {
		return fmt.Errorf("disk-throughput: %w", err)
	}

	comm := o.comm
	if comm == "" {
		comm = filepath.Base(args[0])
	}

	powerLog, ioLog, err := buildSources(o)
	if err != nil {
		return err
	}

	m, err := meter.New(meter.Config{
		Disk: meter.DiskModel{
			Throughput:  throughput,
			ActivePower: o.activeW,
			IdlePower:   o.idleW,
		},
		Label:    o.label,
		Comm:     comm,
		PowerLog: powerLog,
		IOLog:    ioLog,
	})
	if err != nil {
		return err
	}

	printHeader()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := m.Begin(o.label); err != nil {
		return err
	}
	cmdErr := runCommand(ctx, args)
	if err := m.End(); err != nil {
		return err
	}
	if cmdErr != nil {
		slog.Warn("measured command failed; reporting anyway", "err", cmdErr)
	}

	// The report still has to read the streams even when the run was
	// interrupted, so it gets its own deadline instead of the canceled
	// command context.
	rctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	report, err := m.Report(rctx)
	if err != nil {
		return err
	}

	printDetail(report)
	if o.render {
		fmt.Println()
		if err := report.Render(os.Stdout); err != nil {
			return err
		}
	}

	if o.csvPath != "" {
		if err := writeCSV(o.csvPath, report); err != nil {
			slog.Error("write csv", "err", err)
		}
	}
	if o.jsonPath != "" {
		if err := writeJSON(o.jsonPath, report); err != nil {
			slog.Error("write json", "err", err)
		}
	}
	if o.htmlPath != "" {
		if err := writeHTML(o.htmlPath, report); err != nil {
			slog.Error("write html", "err", err)
		}
	}
	if o.pushURL != "" {
		if err := pushReport(o.pushURL, report); err != nil {
			slog.Error("push report", "err", err)
		}
	}

	return cmdErr
}

func runCommand(ctx context.Context, args []string) error {
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// buildSources wires the stream backends: GCS replaces the local stats
// directory wholesale, Prometheus replaces only the power side.
func buildSources(o opts) (source.PowerLog, source.IOLog, error) {
	var power source.PowerLog
	var iolog source.IOLog

	if o.gcsBucket != "" {
		g := source.GCS{Bucket: o.gcsBucket, Prefix: o.gcsPrefix}
		power, iolog = g, g
	} else {
		d := source.Dir{Path: o.stats}
		power, iolog = d, d
	}

	if o.promAddr != "" {
		p, err := source.NewProm(source.PromConfig{
			Address:         o.promAddr,
			Query:           o.promQuery,
			Step:            o.promStep,
			Lookback:        o.promLookback,
			BearerTokenFile: o.promToken,
		})
		if err != nil {
			return nil, nil, err
		}
		power = p
	}
	return power, iolog, nil
}

func printHeader() {
	hostName, kernel := "unknown", "unknown"
	if info, err := host.Info(); err == nil {
		hostName, kernel = info.Hostname, info.KernelVersion
	}
	cpus, _ := cpu.Counts(true)
	memTotal := "unknown"
	if vm, err := mem.VirtualMemory(); err == nil {
		memTotal = types.Bytes(vm.Total).Humanized()
	}
	fmt.Printf(_console, hostName, kernel, cpus, memTotal, time.Now().Format("2006-01-02 15:04:05"))
}

func printDetail(r *meter.Report) {
	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "COMPONENT\tZONE\tENERGY (J)")
	fmt.Fprintln(tw, "---------\t----\t----------")
	for _, d := range r.CPU {
		fmt.Fprintf(tw, "cpu\t%s\t%.3f\n", d.Zone, d.Joules)
	}
	for _, d := range r.DRAM {
		fmt.Fprintf(tw, "dram\t%s\t%.3f\n", d.Zone, d.Joules)
	}
	fmt.Fprintf(tw, "gpu\t%s\t%.3f\n", r.GPUState, r.GPU)
	fmt.Fprintf(tw, "disk\t%s\t%.3f\n", r.Disk.Bytes.Humanized(), r.Disk.Joules)
	fmt.Fprintf(tw, "total\t\t%.3f\n", r.Total)
	tw.Flush()

	for _, w := range r.Warnings {
		slog.Warn(w)
	}
}

func writeCSV(path string, r *meter.Report) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	_ = w.Write([]string{"component", "zone", "joules"})
	for _, d := range r.CPU {
		_ = w.Write([]string{"cpu", d.Zone, fmtJ(d.Joules)})
	}
	for _, d := range r.DRAM {
		_ = w.Write([]string{"dram", d.Zone, fmtJ(d.Joules)})
	}
	_ = w.Write([]string{"gpu", string(r.GPUState), fmtJ(r.GPU)})
	_ = w.Write([]string{"disk", "", fmtJ(r.Disk.Joules)})
	_ = w.Write([]string{"total", "", fmtJ(r.Total)})
	w.Flush()
	return w.Error()
}

func fmtJ(v float64) string { return strconv.FormatFloat(v, 'f', 6, 64) }

func writeJSON(path string, r *meter.Report) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(b, '\n'), 0o644)
}

type compRow struct {
	Name   string
	Detail string
	Joules float64
	Pct    float64
}

func writeHTML(path string, r *meter.Report) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	comps := r.Components()
	rows := []compRow{
		{Name: "cpu", Joules: comps["cpu"]},
		{Name: "dram", Joules: comps["dram"]},
		{Name: "gpu", Detail: string(r.GPUState), Joules: comps["gpu"]},
		{Name: "disk", Detail: r.Disk.Bytes.Humanized(), Joules: comps["disk"]},
	}
	for i := range rows {
		if r.Total > 0 {
			rows[i].Pct = rows[i].Joules / r.Total * 100
		}
	}

	type view struct {
		Report *meter.Report
		Rows   []compRow
	}

	var buf bytes.Buffer
	if err := tpl.Execute(&buf, view{Report: r, Rows: rows}); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

// pushReport publishes the component energies to a Pushgateway, grouped
// by session label so repeated runs stay distinguishable.
func pushReport(url string, r *meter.Report) error {
	joules := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "joulemeter_component_joules",
		Help: "Energy attributed to one component over the measured window.",
	}, []string{"component"})
	for name, v := range r.Components() {
		joules.WithLabelValues(name).Set(v)
	}

	seconds := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "joulemeter_window_seconds",
		Help: "Length of the measured window.",
	})
	seconds.Set(r.Duration.Seconds())

	return push.New(url, "joulemeter").
		Collector(joules).
		Collector(seconds).
		Grouping("label", r.Label).
		Push()
}

var tpl = template.Must(template.New("rep").Parse(`<!doctype html>
<html lang="en"><meta charset="utf-8">
<title>joulemeter report</title>
<style>
body{font-family:system-ui,Segoe UI,Roboto,Helvetica,Arial,sans-serif;margin:20px}
h1,h2{margin:0 0 8px}
table{border-collapse:collapse;width:100%;font-size:14px}
th,td{border:1px solid #ddd;padding:6px 8px;text-align:right}
th:first-child,td:first-child{text-align:left}
.small{color:#555}
.bar{background:#4a90d9;height:14px;display:inline-block}
.warn{color:#a40;margin:4px 0}
</style>

<h1>joulemeter report</h1>

<p class="small">
Session: <b>{{.Report.Label}}</b> &nbsp;|&nbsp;
Start: {{.Report.Start.Format "2006-01-02 15:04:05"}} &nbsp;|&nbsp;
Window: {{printf "%.3f" .Report.Duration.Seconds}} s &nbsp;|&nbsp;
Total: {{printf "%.3f" .Report.Total}} J
</p>

{{range .Report.Warnings}}<p class="warn">⚠ {{.}}</p>{{end}}

<h2>Components</h2>
<table>
<thead><tr><th>component</th><th>detail</th><th>energy (J)</th><th>share</th></tr></thead>
<tbody>
{{range .Rows}}
<tr>
<td>{{.Name}}</td>
<td>{{.Detail}}</td>
<td>{{printf "%.3f" .Joules}}</td>
<td><span class="bar" style="width:{{printf "%.0f" .Pct}}px"></span> {{printf "%.1f" .Pct}}%</td>
</tr>
{{end}}
</tbody>
</table>

<h2>Counter zones</h2>
<table>
<thead><tr><th>domain</th><th>zone</th><th>energy (J)</th></tr></thead>
<tbody>
{{range .Report.CPU}}<tr><td>cpu</td><td>{{.Zone}}</td><td>{{printf "%.3f" .Joules}}</td></tr>{{end}}
{{range .Report.DRAM}}<tr><td>dram</td><td>{{.Zone}}</td><td>{{printf "%.3f" .Joules}}</td></tr>{{end}}
</tbody>
</table>
</html>`))

const _console = `Joulemeter - Per-Component Energy Attribution Tool
Copyright (c) 2025 Javad Rajabzadeh Inc. All rights reserved.

* GitHub: https://github.com/ja7ad/joulemeter

       Host: %s
       Kernel: %s
       CPUs: %d
       Mem: %s

Energy report as of %s:

`
