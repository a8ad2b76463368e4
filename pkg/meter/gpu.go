package meter

import (
	"time"

	"github.com/ja7ad/joulemeter/pkg/timeseries"
)

// GPUStatus distinguishes an absent sampler from a sampler that watched
// an idle accelerator: both yield zero joules, but only one of the two
// zeros is a trustworthy measurement.
type GPUStatus string

const (
	// GPUAbsent means no samples fell inside the window and zero was
	// substituted by policy.
	GPUAbsent GPUStatus = "absent"

	// GPUIdle means the sampler covered the window and read 0 W
	// throughout.
	GPUIdle GPUStatus = "idle"

	// GPUMeasured means the sampler covered the window with non-zero
	// power.
	GPUMeasured GPUStatus = "measured"
)

// GPUEnergy approximates the accelerator's energy over a window of
// duration d as the mean sampled power times the elapsed seconds, a
// rectangle-rule integral that is exact under uniform sampling. The
// sampler's cadence is not ours to control, so the approximation is the
// accepted accuracy bound. samples must already be clipped to the
// window. An empty set makes the mean undefined and is reported as
// ErrEmptyWindow rather than a silent zero, so the caller chooses the
// fallback.
func GPUEnergy(samples []timeseries.PowerSample, d time.Duration) (float64, error) {
	if len(samples) == 0 {
		return 0, ErrEmptyWindow
	}
	var sum float64
	for _, s := range samples {
		sum += s.Watts
	}
	return sum / float64(len(samples)) * d.Seconds(), nil
}

// gpuStatus classifies a clipped sample set for the report tri-state.
func gpuStatus(samples []timeseries.PowerSample) GPUStatus {
	if len(samples) == 0 {
		return GPUAbsent
	}
	for _, s := range samples {
		if s.Watts > 0 {
			return GPUMeasured
		}
	}
	return GPUIdle
}
