// Package clock models positions on an audio timeline and maps them onto
// a monotonic wall clock for output scheduling.
package clock

import "time"

// Clock supplies the current instant. The standard implementation reads
// the system monotonic clock; tests substitute a fixed one.
type Clock interface {
	Now() time.Time
}

// System is the default Clock backed by time.Now.
type System struct{}

func (System) Now() time.Time { return time.Now() }

// Time locates a moment on an audio timeline as a sample position at a
// rate, optionally anchored to a host (wall-clock) instant.
type Time struct {
	SampleTime int64
	SampleRate int

	host      time.Time
	hostValid bool
}

// AtSampleTime returns a Time holding only a sample position. Used for
// pass-through buffers whose scheduling is left to the consumer.
func AtSampleTime(sampleTime int64, rate int) Time {
	return Time{SampleTime: sampleTime, SampleRate: rate}
}

// AtHostTime returns a Time that pins sampleTime to the host instant.
func AtHostTime(host time.Time, sampleTime int64, rate int) Time {
	return Time{SampleTime: sampleTime, SampleRate: rate, host: host, hostValid: true}
}

// HostTime returns the anchored wall-clock instant, if any.
func (t Time) HostTime() (time.Time, bool) {
	return t.host, t.hostValid
}

// Duration converts the sample position to elapsed time at the rate.
func (t Time) Duration() time.Duration {
	if t.SampleRate <= 0 {
		return 0
	}
	return time.Duration(t.SampleTime) * time.Second / time.Duration(t.SampleRate)
}

// Extrapolate projects this anchor forward (or back) to sampleTime,
// carrying the host instant along by the elapsed sample count.
func (t Time) Extrapolate(sampleTime int64) Time {
	out := Time{SampleTime: sampleTime, SampleRate: t.SampleRate}
	if t.hostValid && t.SampleRate > 0 {
		elapsed := time.Duration(sampleTime-t.SampleTime) * time.Second / time.Duration(t.SampleRate)
		out.host = t.host.Add(elapsed)
		out.hostValid = true
	}
	return out
}

// SamplesOf converts a duration to a sample count at the given rate.
func SamplesOf(d time.Duration, rate int) int64 {
	return int64(d * time.Duration(rate) / time.Second)
}
