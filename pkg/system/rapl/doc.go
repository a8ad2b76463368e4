// Package rapl reads the kernel powercap (RAPL) energy counters that
// attribute energy to CPU package and DRAM domains on Linux.
//
// Overview
//
//   - Zone: one powercap directory (intel-rapl:N for a package,
//     intel-rapl:N:M for a subzone such as dram). Energy() reads the
//     monotonic energy_uj microjoule counter; MaxEnergy() exposes the
//     wrap range from max_energy_range_uj.
//
//   - Discover(root): enumerates zones two levels deep under root
//     (DefaultRoot is /sys/class/powercap) and returns them in stable
//     path order. ErrNoZones when the tree holds no readable zones.
//
//   - Source interface:
//     Begin() error
//     Snapshot() (Snapshot, error)
//
//     Begin fixes counter baselines at window open; Snapshot diffs the
//     counters at window close, corrects wraparounds against each zone's
//     range, and reports the elapsed wall time. The baseline is consumed
//     by Snapshot, so a Begin/Snapshot pair maps onto exactly one
//     measurement window.
//
//   - Default(): the process-wide SysfsSource over DefaultRoot,
//     constructed once per process regardless of how many measurement
//     sessions run. Setup() runs that discovery eagerly and reports its
//     outcome; every call sees the result of the first.
//
// The powercap counters are a single global resource: two overlapping
// Begin/Snapshot windows on the same host would attribute the same
// microjoules twice. Callers keep at most one window open at a time.
//
// Permissions: reading energy_uj requires root on most kernels (the
// files are 0400 since the PLATYPUS side channel); discovery alone only
// needs the world-readable name files.
package rapl
