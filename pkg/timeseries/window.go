// Package timeseries defines the measurement window and the timestamped
// sample types the attribution pipeline clips against it.
package timeseries

import "time"

// Window is a half-open time interval [Start, Start+Duration). A sample
// stamped exactly at Start belongs to the window; one stamped exactly at
// the end does not, so back-to-back windows never share a sample.
type Window struct {
	Start    time.Time
	Duration time.Duration
}

// End returns the exclusive end of the window.
func (w Window) End() time.Time { return w.Start.Add(w.Duration) }

// Contains reports whether t falls inside the half-open interval.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End())
}

// Seconds returns the window length in seconds.
func (w Window) Seconds() float64 { return w.Duration.Seconds() }

// PowerSample is one reading from an externally sampled power log.
type PowerSample struct {
	At    time.Time
	Watts float64
}

// When implements Timestamped.
func (s PowerSample) When() time.Time { return s.At }

// IOEvent is one forwarded disk transfer: which process issued it and
// how many bytes moved.
type IOEvent struct {
	At    time.Time
	Comm  string
	Bytes uint64
}

// When implements Timestamped.
func (e IOEvent) When() time.Time { return e.At }

// Timestamped is anything carrying a single observation time.
type Timestamped interface {
	When() time.Time
}

// Clip returns the samples whose timestamps fall inside w, preserving
// input order. The result is never nil, so an empty clip ranges cleanly.
func Clip[T Timestamped](samples []T, w Window) []T {
	out := make([]T, 0, len(samples))
	for _, s := range samples {
		if w.Contains(s.When()) {
			out = append(out, s)
		}
	}
	return out
}
