package meter

import (
	"math"
	"time"

	"github.com/ja7ad/joulemeter/pkg/timeseries"
	"github.com/ja7ad/joulemeter/pkg/types"
)

// taskCommLen is the kernel's TASK_COMM_LEN minus the trailing NUL:
// trace probes report at most 15 bytes of process name.
const taskCommLen = 15

// Energy runs the active/idle model over an event set already clipped
// to a window of duration d. Events whose comm does not match are
// ignored; an empty comm keeps every event. The byte total divided by
// the model throughput gives device-busy time, the rest of the window
// idles, and each side is charged at its own power draw. When the model
// says the disk was busy longer than the window itself, idle time is
// clamped to zero and the result is flagged instead of going negative.
func (m DiskModel) Energy(events []timeseries.IOEvent, d time.Duration, comm string) DiskUsage {
	var total uint64
	for _, e := range events {
		if matchComm(e.Comm, comm) {
			total += e.Bytes
		}
	}

	// The split is kept in float seconds: a tiny throughput can push the
	// model's active time past the int64 nanosecond range, and the energy
	// charge must stay non-negative even then.
	activeSec := float64(total) / float64(m.Throughput)
	idleSec := d.Seconds() - activeSec
	clamped := false
	if idleSec < 0 {
		idleSec = 0
		clamped = true
	}

	return DiskUsage{
		Bytes:      types.Bytes(total),
		ActiveTime: durationFromSeconds(activeSec),
		IdleTime:   durationFromSeconds(idleSec),
		Joules:     activeSec*m.ActivePower + idleSec*m.IdlePower,
		Clamped:    clamped,
	}
}

// durationFromSeconds saturates at the largest representable Duration
// instead of letting the conversion wrap negative.
func durationFromSeconds(s float64) time.Duration {
	ns := s * float64(time.Second)
	if ns >= float64(math.MaxInt64) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(ns)
}

// matchComm compares a logged comm against the wanted process name,
// honoring the kernel truncation: a filter of "tensorflow_serving"
// must match the logged "tensorflow_serv".
func matchComm(got, want string) bool {
	if want == "" {
		return true
	}
	if len(want) > taskCommLen {
		want = want[:taskCommLen]
	}
	return got == want
}
