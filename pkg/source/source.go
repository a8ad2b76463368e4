// Package source loads the measurement streams that external sampling
// agents produce while a measurement window is open: the accelerator
// power log and the disk transfer log. Backends exist for a local stats
// directory, a GCS bucket, and a Prometheus range query; all of them
// decode into the same timeseries types so the estimators never care
// where a stream came from.
package source

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ja7ad/joulemeter/pkg/timeseries"
)

// PowerLog yields the instantaneous accelerator power samples an
// external sampler recorded at its own cadence.
type PowerLog interface {
	PowerRecords(ctx context.Context) ([]timeseries.PowerSample, error)
}

// IOLog yields the disk transfer events an external trace probe
// recorded.
type IOLog interface {
	IOEvents(ctx context.Context) ([]timeseries.IOEvent, error)
}

var tsLayouts = []string{
	"2006-01-02 15:04:05.999999999",
	"2006/01/02 15:04:05.999999999",
	time.RFC3339Nano,
}

// ParseTimestamp parses one log timestamp. The sampling agents write
// timezone-naive local wall-clock stamps, so naive layouts resolve in
// the local zone, which is the clock the measurement window is captured
// with. Zone-aware RFC 3339 stamps are accepted as-is.
func ParseTimestamp(s string) (time.Time, error) {
	v := strings.TrimSpace(s)
	for _, layout := range tsLayouts {
		if t, err := time.ParseInLocation(layout, v, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: bad timestamp %q", ErrBadRecord, s)
}

// readCloser bundles a decoded stream with everything beneath it that
// needs closing (gzip layer, object reader, client), closed in order.
type readCloser struct {
	io.Reader
	closers []io.Closer
}

func (r *readCloser) Close() error {
	var first error
	for _, c := range r.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
