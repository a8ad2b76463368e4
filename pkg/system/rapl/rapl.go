//go:build linux

package rapl

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/ja7ad/joulemeter/pkg/types"
)

// DefaultRoot is where the kernel powercap interface exposes RAPL zones.
const DefaultRoot = "/sys/class/powercap"

// Zone is one RAPL power domain directory (e.g. intel-rapl:0 for a CPU
// package, intel-rapl:0:0 for its dram subzone). Its energy_uj file is a
// monotonic microjoule counter that wraps at max_energy_range_uj.
type Zone struct {
	Name string // kernel zone name, e.g. "package-0", "dram"
	Path string // absolute zone directory

	max types.Energy // counter range; 0 when max_energy_range_uj is unreadable
}

// Energy reads the zone's current counter value in microjoules.
func (z Zone) Energy() (types.Energy, error) {
	v, err := readUint(filepath.Join(z.Path, "energy_uj"))
	if err != nil {
		return 0, fmt.Errorf("rapl: read %s: %w", z.Name, err)
	}
	return types.Energy(v), nil
}

// MaxEnergy returns the counter range in microjoules, used to correct
// deltas across a wraparound. Zero means the range is unknown.
func (z Zone) MaxEnergy() types.Energy { return z.max }

// IsPackage reports whether the zone is a top-level CPU package domain.
func (z Zone) IsPackage() bool { return strings.HasPrefix(z.Name, "package") }

// IsDRAM reports whether the zone is a memory-controller subzone.
func (z Zone) IsDRAM() bool { return z.Name == "dram" }

// Discover enumerates the RAPL zones under root, including one level of
// subzones (where dram lives). Zones whose name file cannot be read are
// skipped; the result is sorted by path so readings come out in a stable
// order.
//
// Notes:
//   - The glob only matches the MSR-backed intel-rapl:* hierarchy; the
//     newer intel-rapl-mmio mirror duplicates the same packages and would
//     double-count.
//   - Reading energy_uj typically requires root; discovery itself only
//     needs the name files.
func Discover(root string) ([]Zone, error) {
	if _, err := os.Stat(root); err != nil {
		return nil, fmt.Errorf("rapl: powercap root: %w", err)
	}

	tops, _ := filepath.Glob(filepath.Join(root, "intel-rapl:*"))
	var dirs []string
	for _, top := range tops {
		dirs = append(dirs, top)
		subs, _ := filepath.Glob(filepath.Join(top, "intel-rapl:*"))
		dirs = append(dirs, subs...)
	}
	sort.Strings(dirs)

	var zones []Zone
	for _, dir := range dirs {
		name, err := readLine(filepath.Join(dir, "name"))
		if err != nil {
			continue
		}
		max, _ := readUint(filepath.Join(dir, "max_energy_range_uj"))
		zones = append(zones, Zone{Name: name, Path: dir, max: types.Energy(max)})
	}
	if len(zones) == 0 {
		return nil, ErrNoZones
	}
	return zones, nil
}

// Packages returns the package-level zones in zs, order preserved.
func Packages(zs []Zone) []Zone {
	var out []Zone
	for _, z := range zs {
		if z.IsPackage() {
			out = append(out, z)
		}
	}
	return out
}

// DRAM returns the dram subzones in zs, order preserved.
func DRAM(zs []Zone) []Zone {
	var out []Zone
	for _, z := range zs {
		if z.IsDRAM() {
			out = append(out, z)
		}
	}
	return out
}

func readLine(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

func readUint(path string) (uint64, error) {
	s, err := readLine(path)
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(s, 10, 64)
}
