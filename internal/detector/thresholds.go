package detector

import (
	"fmt"
	"math"
)

// DefaultWindowSize is the number of recent samples kept per session.
const DefaultWindowSize = 50

// ThresholdConfig holds every knob of the decision pipeline. It is a value:
// sessions copy it at construction and never mutate it.
type ThresholdConfig struct {
	ConfidenceThreshold     float64 `json:"confidence_threshold"`
	MagnitudeThreshold      float64 `json:"magnitude_threshold"`
	PredictionConfidenceMin float64 `json:"prediction_confidence_min"`
	StepClassThreshold      float64 `json:"step_class_threshold"`
	MinMagnitudeThreshold   float64 `json:"min_magnitude_threshold"`
	MaxMagnitudeThreshold   float64 `json:"max_magnitude_threshold"`

	EnableMagnitudeFilter  bool `json:"enable_magnitude_filter"`
	EnableConfidenceFilter bool `json:"enable_confidence_filter"`
	AdaptiveMagnitude      bool `json:"adaptive_magnitude"`

	// Adaptive floor = AdaptiveFactor * mean(last AdaptiveHistorySize
	// magnitudes), clamped to [MinMagnitudeThreshold, MaxMagnitudeThreshold].
	AdaptiveHistorySize int     `json:"adaptive_history_size"`
	AdaptiveFactor      float64 `json:"adaptive_factor"`
}

// DefaultThresholdConfig returns the thresholds used when the config file is
// silent.
func DefaultThresholdConfig() ThresholdConfig {
	return ThresholdConfig{
		ConfidenceThreshold:     0.7,
		MagnitudeThreshold:      8.0,
		PredictionConfidenceMin: 0.5,
		StepClassThreshold:      0.7,
		MinMagnitudeThreshold:   5.0,
		MaxMagnitudeThreshold:   40.0,
		EnableMagnitudeFilter:   true,
		EnableConfidenceFilter:  true,
		AdaptiveMagnitude:       false,
		AdaptiveHistorySize:     20,
		AdaptiveFactor:          0.9,
	}
}

// Validate returns a *ConfigError for the first unusable field.
func (c ThresholdConfig) Validate() error {
	probs := []struct {
		name string
		v    float64
	}{
		{"confidence_threshold", c.ConfidenceThreshold},
		{"prediction_confidence_min", c.PredictionConfidenceMin},
		{"step_class_threshold", c.StepClassThreshold},
	}
	for _, p := range probs {
		if math.IsNaN(p.v) || p.v < 0 || p.v > 1 {
			return &ConfigError{Field: p.name, Reason: fmt.Sprintf("must be in [0,1], got %v", p.v)}
		}
	}

	mags := []struct {
		name string
		v    float64
	}{
		{"magnitude_threshold", c.MagnitudeThreshold},
		{"min_magnitude_threshold", c.MinMagnitudeThreshold},
		{"max_magnitude_threshold", c.MaxMagnitudeThreshold},
	}
	for _, m := range mags {
		if math.IsNaN(m.v) || math.IsInf(m.v, 0) || m.v < 0 {
			return &ConfigError{Field: m.name, Reason: fmt.Sprintf("must be a finite non-negative value, got %v", m.v)}
		}
	}
	if c.MaxMagnitudeThreshold == 0 {
		return &ConfigError{Field: "max_magnitude_threshold", Reason: "must be > 0"}
	}
	if c.MinMagnitudeThreshold > c.MaxMagnitudeThreshold {
		return &ConfigError{Field: "min_magnitude_threshold",
			Reason: fmt.Sprintf("%v exceeds max_magnitude_threshold %v", c.MinMagnitudeThreshold, c.MaxMagnitudeThreshold)}
	}
	if c.EnableMagnitudeFilter && c.MagnitudeThreshold > c.MaxMagnitudeThreshold {
		return &ConfigError{Field: "magnitude_threshold",
			Reason: fmt.Sprintf("%v exceeds max_magnitude_threshold %v, nothing would pass", c.MagnitudeThreshold, c.MaxMagnitudeThreshold)}
	}
	if c.AdaptiveMagnitude {
		if c.AdaptiveHistorySize < 1 {
			return &ConfigError{Field: "adaptive_history_size", Reason: fmt.Sprintf("must be >= 1, got %d", c.AdaptiveHistorySize)}
		}
		if !(c.AdaptiveFactor > 0) || math.IsInf(c.AdaptiveFactor, 0) {
			return &ConfigError{Field: "adaptive_factor", Reason: fmt.Sprintf("must be > 0, got %v", c.AdaptiveFactor)}
		}
	}
	return nil
}
