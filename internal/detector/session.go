package detector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/relabs-tech/step_detector/internal/imu"
	"github.com/relabs-tech/step_detector/internal/monitoring"
)

// Result is the per-reading outcome handed back to the transport.
type Result struct {
	StepStart        bool       `json:"step_start"`
	StepEnd          bool       `json:"step_end"`
	StartProbability float64    `json:"start_probability"`
	EndProbability   float64    `json:"end_probability"`
	StepCount        uint64     `json:"step_count"`
	Magnitude        float64    `json:"magnitude"`
	Timestamp        time.Time  `json:"timestamp"`
	Decision         Decision   `json:"-"`
	Event            *StepEvent `json:"event,omitempty"`
}

// Session is one continuous run of step detection. All methods are safe for
// concurrent use; each call holds the session lock for its whole duration so
// readings are processed strictly one at a time.
type Session struct {
	mu sync.Mutex

	cfg        ThresholdConfig
	classifier Classifier
	now        func() time.Time

	window  *Window
	filter  *MagnitudeFilter
	policy  *ThresholdPolicy
	machine *StepMachine
	agg     *Aggregator
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithClock overrides time.Now, used to stamp readings and measure duration.
func WithClock(now func() time.Time) SessionOption {
	return func(s *Session) {
		if now != nil {
			s.now = now
		}
	}
}

// NewSession validates cfg and builds an isolated session.
func NewSession(cfg ThresholdConfig, windowSize int, c Classifier, opts ...SessionOption) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if windowSize <= 0 {
		return nil, &ConfigError{Field: "window_size", Reason: fmt.Sprintf("must be > 0, got %d", windowSize)}
	}
	if c == nil {
		return nil, &ConfigError{Field: "classifier", Reason: "is required"}
	}

	s := &Session{
		cfg:        cfg,
		classifier: c,
		now:        time.Now,
		window:     NewWindow(windowSize),
		machine:    NewStepMachine(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.filter = NewMagnitudeFilter(cfg)
	s.policy = NewThresholdPolicy(cfg, s.filter)
	s.agg = NewAggregator(s.now())
	return s, nil
}

// ProcessReading stamps the six channels with the session clock and
// processes them.
func (s *Session) ProcessReading(ctx context.Context, ax, ay, az, gx, gy, gz float64) (Result, error) {
	return s.Process(ctx, imu.Sample{
		AccelX: ax, AccelY: ay, AccelZ: az,
		GyroX: gx, GyroY: gy, GyroZ: gz,
	})
}

// Process runs one sample through the pipeline. A zero timestamp is replaced
// by the session clock. Invalid samples and classifier failures return an
// error and leave the session untouched.
func (s *Session) Process(ctx context.Context, sample imu.Sample) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := sample.Validate(); err != nil {
		return Result{}, err
	}
	if sample.Timestamp.IsZero() {
		sample.Timestamp = s.now()
	}

	probs, err := s.infer(ctx, FeaturesOf(sample))
	if err != nil {
		return Result{}, err
	}

	s.window.Push(sample)
	mag := s.filter.Compute(sample)
	s.filter.UpdateAdaptive(mag)
	decision := s.policy.Decide(probs, mag)
	ev := s.machine.Apply(decision, mag, sample.Timestamp)

	s.agg.CountReading()
	res := Result{
		StartProbability: probs.Start,
		EndProbability:   probs.End,
		Magnitude:        mag,
		Timestamp:        sample.Timestamp,
		Decision:         decision,
		Event:            ev,
	}
	if ev != nil {
		s.agg.Record(*ev)
		res.StepStart = ev.Kind == EventStart
		res.StepEnd = ev.Kind == EventEnd
		monitoring.Logf("detector: step %s count=%d p=%.3f |a|=%.2f", ev.Kind, s.machine.Count(), ev.Probability, mag)
	}
	res.StepCount = s.machine.Count()
	return res, nil
}

func (s *Session) infer(ctx context.Context, fv FeatureVector) (ProbabilityVector, error) {
	if !s.classifier.Ready() {
		return ProbabilityVector{}, &ClassifierError{Op: "infer", Err: ErrNotReady}
	}
	probs, err := s.classifier.Infer(ctx, fv)
	if err != nil {
		var ce *ClassifierError
		if errors.As(err, &ce) {
			return ProbabilityVector{}, err
		}
		return ProbabilityVector{}, &ClassifierError{Op: "infer", Err: err}
	}
	if err := probs.Validate(); err != nil {
		return ProbabilityVector{}, &ClassifierError{Op: "infer", Err: err}
	}
	return probs, nil
}

// Count returns the current step count.
func (s *Session) Count() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machine.Count()
}

// Phase returns the current step phase.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machine.Phase()
}

// Reset returns the session to Idle with a zero count, clears timestamps,
// the sample window and adaptive magnitude history.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.machine.Reset()
	s.window.Reset()
	s.filter.Reset()
	s.agg.Reset(s.now())
}

// Summary reports totals for the session so far.
func (s *Session) Summary() SessionSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	sum := s.agg.Summary(s.now())
	sum.MeanMagnitude = s.window.MeanMagnitude()
	return sum
}

// Reconfigure swaps in new thresholds. The step count, phase and window are
// kept; adaptive magnitude history starts over.
func (s *Session) Reconfigure(cfg ThresholdConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
	s.filter = NewMagnitudeFilter(cfg)
	s.policy = NewThresholdPolicy(cfg, s.filter)
	return nil
}

// Config returns the active thresholds.
func (s *Session) Config() ThresholdConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// MagnitudeFloor returns the current effective magnitude floor.
func (s *Session) MagnitudeFloor() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filter.Floor()
}

// Ready reports whether the classifier can serve readings.
func (s *Session) Ready() bool {
	return s.classifier.Ready()
}
