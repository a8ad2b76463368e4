package source

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/common/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSamplesFromMatrix_SumsAcrossDevices(t *testing.T) {
	t0 := model.Time(1715680800000) // ms
	t1 := t0.Add(500 * time.Millisecond)

	m := model.Matrix{
		&model.SampleStream{
			Metric: model.Metric{"gpu": "0"},
			Values: []model.SamplePair{
				{Timestamp: t0, Value: 100},
				{Timestamp: t1, Value: 110},
			},
		},
		&model.SampleStream{
			Metric: model.Metric{"gpu": "1"},
			Values: []model.SamplePair{
				{Timestamp: t0, Value: 50},
				{Timestamp: t1, Value: 40},
			},
		},
	}

	samples := samplesFromMatrix(m)
	require.Len(t, samples, 2)
	assert.InDelta(t, 150.0, samples[0].Watts, 1e-9)
	assert.InDelta(t, 150.0, samples[1].Watts, 1e-9)
	assert.True(t, samples[0].At.Before(samples[1].At), "samples must come out in time order")
	assert.Equal(t, time.UnixMilli(int64(t0)), samples[0].At)
}

func TestSamplesFromMatrix_Empty(t *testing.T) {
	samples := samplesFromMatrix(model.Matrix{})
	require.NotNil(t, samples)
	assert.Empty(t, samples)
}

func TestNewProm_Validation(t *testing.T) {
	_, err := NewProm(PromConfig{})
	require.Error(t, err)

	p, err := NewProm(PromConfig{Address: "http://prom.local:9090"})
	require.NoError(t, err)
	assert.Equal(t, DefaultPowerQuery, p.cfg.Query)
	assert.Equal(t, 500*time.Millisecond, p.cfg.Step)
	assert.Equal(t, time.Hour, p.cfg.Lookback)
	assert.Equal(t, 15*time.Second, p.cfg.Timeout)
}

type captureRT struct{ req *http.Request }

func (c *captureRT) RoundTrip(req *http.Request) (*http.Response, error) {
	c.req = req
	return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody}, nil
}

func TestBearerAuthRoundTripper(t *testing.T) {
	parent := &captureRT{}
	rt := &bearerAuthRoundTripper{parent: parent, token: "s3cret"}

	req, err := http.NewRequest(http.MethodGet, "http://prom.local/api/v1/query", nil)
	require.NoError(t, err)
	_, err = rt.RoundTrip(req)
	require.NoError(t, err)
	require.NotNil(t, parent.req)
	assert.Equal(t, "Bearer s3cret", parent.req.Header.Get("Authorization"))

	// Without a token the header stays untouched.
	parent.req = nil
	rt = &bearerAuthRoundTripper{parent: parent}
	req, _ = http.NewRequest(http.MethodGet, "http://prom.local/api/v1/query", nil)
	_, err = rt.RoundTrip(req)
	require.NoError(t, err)
	assert.Empty(t, parent.req.Header.Get("Authorization"))
}

func TestReadTokenFile(t *testing.T) {
	assert.Empty(t, readTokenFile(""))
	assert.Empty(t, readTokenFile(filepath.Join(t.TempDir(), "missing")))

	p := filepath.Join(t.TempDir(), "token")
	require.NoError(t, os.WriteFile(p, []byte("  abc123\n"), 0o600))
	assert.Equal(t, "abc123", readTokenFile(p))
}
