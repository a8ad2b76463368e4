package types

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrBadSize indicates that a byte-size string could not be parsed.
var ErrBadSize = errors.New("types: malformed byte size")

// Bytes is a uint64 wrapper representing a size in bytes.
type Bytes uint64

// Humanized returns a human-readable string with automatic unit (B, KB, MB, GB, TB).
func (b Bytes) Humanized() string {
	const unit = 1024
	v := float64(b)
	switch {
	case b >= 1<<40:
		return fmt.Sprintf("%.2f TB", v/(1<<40))
	case b >= 1<<30:
		return fmt.Sprintf("%.2f GB", v/(1<<30))
	case b >= 1<<20:
		return fmt.Sprintf("%.2f MB", v/(1<<20))
	case b >= 1<<10:
		return fmt.Sprintf("%.2f KB", v/(1<<10))
	default:
		return fmt.Sprintf("%d B", b)
	}
}

// KB returns the number of kilobytes (1024 base).
func (b Bytes) KB() float64 { return float64(b) / 1024 }

// MB returns the number of megabytes (1024 base).
func (b Bytes) MB() float64 { return float64(b) / (1024 * 1024) }

// GB returns the number of gigabytes (1024 base).
func (b Bytes) GB() float64 { return float64(b) / (1024 * 1024 * 1024) }

// ParseBytes parses a human byte-size string such as "512", "64KB",
// "1.5GB" or "200 MB" (1024 base, case-insensitive, optional space
// before the unit). It is the inverse of Humanized for round figures
// and is used for operator-supplied sizes like disk throughput.
func ParseBytes(s string) (Bytes, error) {
	t := strings.TrimSpace(s)
	if t == "" {
		return 0, fmt.Errorf("%w: empty", ErrBadSize)
	}

	units := []struct {
		suffix string
		mult   float64
	}{
		{"TB", 1 << 40},
		{"GB", 1 << 30},
		{"MB", 1 << 20},
		{"KB", 1 << 10},
		{"B", 1},
	}

	upper := strings.ToUpper(t)
	mult := 1.0
	num := t
	for _, u := range units {
		if strings.HasSuffix(upper, u.suffix) {
			mult = u.mult
			num = strings.TrimSpace(t[:len(t)-len(u.suffix)])
			break
		}
	}

	v, err := strconv.ParseFloat(num, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: %q", ErrBadSize, s)
	}
	if v < 0 {
		return 0, fmt.Errorf("%w: negative size %q", ErrBadSize, s)
	}
	// Conversion of an out-of-range float to uint64 is not defined, so
	// sizes past 2^64 bytes are rejected rather than converted.
	if v*mult >= float64(math.MaxUint64) {
		return 0, fmt.Errorf("%w: %q overflows", ErrBadSize, s)
	}
	return Bytes(v * mult), nil
}
