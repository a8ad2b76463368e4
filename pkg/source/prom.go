package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/api"
	promapi "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"

	"github.com/ja7ad/joulemeter/pkg/timeseries"
)

// DefaultPowerQuery is the accelerator power series the DCGM exporter
// publishes, in watts per device.
const DefaultPowerQuery = "DCGM_FI_DEV_POWER_USAGE"

// PromConfig configures a Prometheus-backed power log, for fleets where
// the accelerator sampler scrapes into a time-series database instead
// of writing files.
type PromConfig struct {
	Address string

	// Query is an instant-vector expression yielding watts, one series
	// per device. Defaults to DefaultPowerQuery.
	Query string

	// Step is the range-query resolution. Defaults to 500ms, matching
	// the file samplers' cadence.
	Step time.Duration

	// Lookback bounds how far back PowerRecords ranges. A measurement
	// longer than the lookback loses its earliest samples, and the
	// mean-power integral then extrapolates the surviving tail across
	// the whole window. Size it above the longest expected session.
	// Defaults to 1h.
	Lookback time.Duration

	Timeout         time.Duration
	BearerTokenFile string
}

// Prom queries accelerator power out of a Prometheus server.
type Prom struct {
	api promapi.API
	cfg PromConfig
}

var _ PowerLog = (*Prom)(nil)

// NewProm validates cfg, applies defaults and builds the query client.
func NewProm(cfg PromConfig) (*Prom, error) {
	if cfg.Address == "" {
		return nil, errors.New("source: prometheus address required")
	}
	if cfg.Query == "" {
		cfg.Query = DefaultPowerQuery
	}
	if cfg.Step <= 0 {
		cfg.Step = 500 * time.Millisecond
	}
	if cfg.Lookback <= 0 {
		cfg.Lookback = time.Hour
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}

	client, err := api.NewClient(api.Config{
		Address: cfg.Address,
		RoundTripper: &bearerAuthRoundTripper{
			parent: api.DefaultRoundTripper,
			token:  readTokenFile(cfg.BearerTokenFile),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("source: prometheus client: %w", err)
	}
	return &Prom{api: promapi.NewAPI(client), cfg: cfg}, nil
}

func (p *Prom) PowerRecords(ctx context.Context) ([]timeseries.PowerSample, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	end := time.Now()
	r := promapi.Range{Start: end.Add(-p.cfg.Lookback), End: end, Step: p.cfg.Step}
	value, _, err := p.api.QueryRange(ctx, p.cfg.Query, r)
	if err != nil {
		return nil, fmt.Errorf("source: prometheus range query: %w", err)
	}
	matrix, ok := value.(model.Matrix)
	if !ok {
		return nil, fmt.Errorf("source: unexpected prometheus result type %T", value)
	}
	return samplesFromMatrix(matrix), nil
}

// samplesFromMatrix flattens a range-query result into power samples,
// summing across series (one per device) at each timestamp so a
// multi-accelerator host reports total board power, and returning the
// samples in time order.
func samplesFromMatrix(m model.Matrix) []timeseries.PowerSample {
	totals := make(map[int64]float64)
	for _, series := range m {
		for _, pt := range series.Values {
			totals[int64(pt.Timestamp)] += float64(pt.Value)
		}
	}

	stamps := make([]int64, 0, len(totals))
	for ms := range totals {
		stamps = append(stamps, ms)
	}
	sort.Slice(stamps, func(i, j int) bool { return stamps[i] < stamps[j] })

	out := make([]timeseries.PowerSample, 0, len(stamps))
	for _, ms := range stamps {
		out = append(out, timeseries.PowerSample{At: time.UnixMilli(ms), Watts: totals[ms]})
	}
	return out
}

type bearerAuthRoundTripper struct {
	parent http.RoundTripper
	token  string
}

func (rt *bearerAuthRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if rt.token != "" {
		req.Header.Set("Authorization", "Bearer "+rt.token)
	}
	parent := rt.parent
	if parent == nil {
		parent = http.DefaultTransport
	}
	return parent.RoundTrip(req)
}

func readTokenFile(path string) string {
	if path == "" {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
