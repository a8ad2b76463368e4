package source

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ja7ad/joulemeter/pkg/timeseries"
)

const (
	// PowerLogName is the accelerator power log file name the sampling
	// agent writes into the stats directory.
	PowerLogName = "gpu_stats.csv"

	// IOLogName is the disk transfer log file name the trace probe
	// writes into the stats directory.
	IOLogName = "disk_stats.csv"
)

// Dir reads both measurement streams from a local stats directory, the
// layout the sampling agents produce. Files may be stored gzipped with
// a .gz suffix; the twin is tried transparently.
type Dir struct {
	Path string

	// PowerFile and IOFile override the default file names.
	PowerFile string
	IOFile    string
}

var (
	_ PowerLog = Dir{}
	_ IOLog    = Dir{}
)

func (d Dir) PowerRecords(ctx context.Context) ([]timeseries.PowerSample, error) {
	rc, err := d.open(d.PowerFile, PowerLogName)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return ParsePowerLog(rc)
}

func (d Dir) IOEvents(ctx context.Context) ([]timeseries.IOEvent, error) {
	rc, err := d.open(d.IOFile, IOLogName)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return ParseIOLog(rc)
}

func (d Dir) open(name, fallback string) (io.ReadCloser, error) {
	if name == "" {
		name = fallback
	}
	p := filepath.Join(d.Path, name)

	f, err := os.Open(p)
	if err == nil {
		if !strings.HasSuffix(p, ".gz") {
			return f, nil
		}
		return gunzip(f, p)
	}

	// The agents sometimes compress finished logs in place.
	if gz, gzErr := os.Open(p + ".gz"); gzErr == nil {
		return gunzip(gz, p+".gz")
	}
	return nil, fmt.Errorf("source: open %s: %w", p, err)
}

func gunzip(f *os.File, p string) (io.ReadCloser, error) {
	zr, err := gzip.NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("source: gunzip %s: %w", p, err)
	}
	return &readCloser{Reader: zr, closers: []io.Closer{zr, f}}, nil
}
