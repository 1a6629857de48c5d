package detector

import (
	"github.com/relabs-tech/step_detector/internal/imu"
)

// FeatureLen is the classifier input width: 3 accel + 3 gyro channels.
const FeatureLen = 6

// FeatureVector is one classifier input, in imu.Sample.Channels order.
type FeatureVector [FeatureLen]float64

// FeaturesOf returns the single-reading feature vector for s.
func FeaturesOf(s imu.Sample) FeatureVector {
	return FeatureVector(s.Channels())
}

// Window is the bounded history of recent samples. Its size drives window
// statistics only; the classifier always sees the latest sample.
type Window struct {
	buf *ring[imu.Sample]
}

// NewWindow creates a window holding at most size samples.
func NewWindow(size int) *Window {
	return &Window{buf: newRing[imu.Sample](size)}
}

// Push appends s, evicting the oldest sample at capacity, and returns the
// feature vector of s.
func (w *Window) Push(s imu.Sample) FeatureVector {
	w.buf.push(s)
	return FeaturesOf(s)
}

// Len returns the number of buffered samples.
func (w *Window) Len() int { return w.buf.len() }

// Size returns the configured capacity.
func (w *Window) Size() int { return w.buf.capacity() }

// Samples returns the buffered samples, oldest first.
func (w *Window) Samples() []imu.Sample { return w.buf.slice() }

// Latest returns the most recently pushed sample.
func (w *Window) Latest() (imu.Sample, bool) { return w.buf.last() }

// MeanMagnitude is the average accelerometer magnitude across the window,
// 0 when empty.
func (w *Window) MeanMagnitude() float64 {
	samples := w.buf.slice()
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += Magnitude(s)
	}
	return sum / float64(len(samples))
}

// Reset drops every buffered sample.
func (w *Window) Reset() { w.buf.reset() }
