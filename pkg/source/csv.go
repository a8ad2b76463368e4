package source

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/ja7ad/joulemeter/pkg/timeseries"
)

// ParsePowerLog decodes an accelerator power log: a comma-separated
// file whose header row names at least the timestamp and power_usage(W)
// columns. Column order is free and extra columns are ignored, so logs
// from samplers that record temperature or utilization alongside power
// parse unchanged. Power values may carry the sampler's " W" suffix.
func ParsePowerLog(r io.Reader) ([]timeseries.PowerSample, error) {
	cr := csv.NewReader(bufio.NewReader(r))
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%w: empty log", ErrBadHeader)
	}
	if err != nil {
		return nil, fmt.Errorf("source: power log header: %w", err)
	}

	tsCol, powerCol := -1, -1
	for i, col := range header {
		switch strings.ToLower(strings.TrimSpace(col)) {
		case "timestamp":
			tsCol = i
		case "power_usage(w)":
			powerCol = i
		}
	}
	if tsCol < 0 || powerCol < 0 {
		return nil, fmt.Errorf("%w: header %v", ErrBadHeader, header)
	}

	samples := make([]timeseries.PowerSample, 0, 64)
	line := 1
	for {
		rec, err := cr.Read()
		line++
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("source: power log line %d: %w", line, err)
		}

		at, err := ParseTimestamp(rec[tsCol])
		if err != nil {
			return nil, fmt.Errorf("power log line %d: %w", line, err)
		}
		watts, err := parseWatts(rec[powerCol])
		if err != nil {
			return nil, fmt.Errorf("%w: power log line %d: bad power %q", ErrBadRecord, line, rec[powerCol])
		}
		samples = append(samples, timeseries.PowerSample{At: at, Watts: watts})
	}
	return samples, nil
}

func parseWatts(s string) (float64, error) {
	v := strings.TrimSpace(s)
	v = strings.TrimSuffix(v, " W")
	return strconv.ParseFloat(v, 64)
}

// ParseIOLog decodes a disk transfer log. The first line is the trace
// probe's banner and is always skipped; every following non-blank line
// is `timestamp;comm;bytes`, where comm is the issuing process name as
// the kernel reports it (truncated to 15 bytes) and bytes is the
// transfer size. Any row that does not fit the schema fails the whole
// parse rather than being guessed around.
func ParseIOLog(r io.Reader) ([]timeseries.IOEvent, error) {
	sc := bufio.NewScanner(r)
	events := make([]timeseries.IOEvent, 0, 64)
	line := 0
	for sc.Scan() {
		line++
		if line == 1 {
			// probe banner, e.g. "Attaching 2 probes..."
			continue
		}
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}

		parts := strings.Split(text, ";")
		if len(parts) != 3 {
			return nil, fmt.Errorf("%w: io log line %d: %q", ErrBadRecord, line, text)
		}
		at, err := ParseTimestamp(parts[0])
		if err != nil {
			return nil, fmt.Errorf("io log line %d: %w", line, err)
		}
		n, err := strconv.ParseUint(strings.TrimSpace(parts[2]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: io log line %d: bad byte count %q", ErrBadRecord, line, parts[2])
		}
		events = append(events, timeseries.IOEvent{
			At:    at,
			Comm:  strings.TrimSpace(parts[1]),
			Bytes: n,
		})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("source: scan io log: %w", err)
	}
	return events, nil
}
