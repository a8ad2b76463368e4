// Package meter attributes the energy consumed by a bounded span of
// execution to four physical components (CPU package, DRAM,
// accelerator, disk) by reconciling three measurement modalities under
// one window.
//
// Overview
//
//   - Session lifecycle:
//     Begin(label) opens the measurement window and fixes the counter
//     baselines; End() closes it, fixing the duration and the counter
//     deltas. One window at a time per meter; Begin while open and End
//     while closed both fail. After End the session is immutable and
//     safe for concurrent readers until the next Begin.
//
//   - CPU/DRAM (counter deltas): the powercap counters already encode
//     the energy accumulated across the window; CPUEnergy and
//     DRAMEnergy convert their microjoules to joules, keeping one
//     value per zone so multi-socket hosts stay inspectable.
//
//   - GPU (sampled time series): GPUEnergy averages the power samples
//     clipped to the window and multiplies by the elapsed seconds. No
//     samples in the window is ErrEmptyWindow; Report substitutes zero
//     and marks the tri-state GPUState absent, so an absent sampler is
//     never confused with an idle accelerator.
//
//   - Disk (analytical model): DiskModel.Energy splits the window into
//     active time (bytes moved over the configured throughput) and idle
//     time, each charged at its own power draw. Negative idle time is
//     clamped to zero and flagged.
//
//   - Report: one call producing every component plus the grand total,
//     degrading per component: a missing stream zeroes that component
//     and appends a warning rather than failing the report.
//
// The external sampling agents (accelerator power sampler, disk trace
// probe) run outside this process; this package only consumes the
// streams they leave behind, through the pkg/source backends.
package meter
