package detector

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/relabs-tech/step_detector/internal/imu"
)

// Magnitude is the Euclidean norm of the accelerometer vector, gravity
// included.
func Magnitude(s imu.Sample) float64 {
	return math.Sqrt(s.AccelX*s.AccelX + s.AccelY*s.AccelY + s.AccelZ*s.AccelZ)
}

// MagnitudeFilter gates candidate events by accelerometer amplitude. With
// adaptive magnitude enabled it owns a rolling history from which the floor
// follows recent activity.
type MagnitudeFilter struct {
	cfg     ThresholdConfig
	history *ring[float64]
	floor   float64
}

// NewMagnitudeFilter builds a filter for cfg. The config is assumed valid.
func NewMagnitudeFilter(cfg ThresholdConfig) *MagnitudeFilter {
	f := &MagnitudeFilter{cfg: cfg, floor: cfg.MagnitudeThreshold}
	if cfg.AdaptiveMagnitude {
		f.history = newRing[float64](cfg.AdaptiveHistorySize)
	}
	return f
}

// Compute returns the magnitude of s.
func (f *MagnitudeFilter) Compute(s imu.Sample) float64 {
	return Magnitude(s)
}

// UpdateAdaptive records m and recomputes the floor. No-op unless adaptive
// magnitude is enabled.
func (f *MagnitudeFilter) UpdateAdaptive(m float64) {
	if f.history == nil {
		return
	}
	f.history.push(m)
	floor := f.cfg.AdaptiveFactor * stat.Mean(f.history.slice(), nil)
	f.floor = math.Min(math.Max(floor, f.cfg.MinMagnitudeThreshold), f.cfg.MaxMagnitudeThreshold)
}

// Floor is the effective lower bound: the adaptive floor once history exists,
// otherwise the static magnitude threshold.
func (f *MagnitudeFilter) Floor() float64 { return f.floor }

// Passes reports whether m is inside [floor, max]. Always true when the
// magnitude filter is disabled.
func (f *MagnitudeFilter) Passes(m float64) bool {
	if !f.cfg.EnableMagnitudeFilter {
		return true
	}
	return m >= f.floor && m <= f.cfg.MaxMagnitudeThreshold
}

// Reset clears the adaptive history.
func (f *MagnitudeFilter) Reset() {
	if f.history != nil {
		f.history.reset()
	}
	f.floor = f.cfg.MagnitudeThreshold
}
