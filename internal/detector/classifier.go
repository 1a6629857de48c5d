package detector

import (
	"context"
	"fmt"
	"math"
)

// Class indices as emitted by the step model: [no-label, start, end].
const (
	classNone = iota
	classStart
	classEnd
	numClasses
)

// ProbabilityVector is the classifier output, named by class so nothing
// downstream depends on array positions.
type ProbabilityVector struct {
	None  float64 `json:"p_none"`
	Start float64 `json:"p_start"`
	End   float64 `json:"p_end"`
}

// Max returns the largest of the three probabilities.
func (p ProbabilityVector) Max() float64 {
	return math.Max(p.None, math.Max(p.Start, p.End))
}

// Validate rejects NaN and anything outside [0,1].
func (p ProbabilityVector) Validate() error {
	for i, x := range [numClasses]float64{p.None, p.Start, p.End} {
		if math.IsNaN(x) || x < 0 || x > 1 {
			return fmt.Errorf("probability %d out of range: %v", i, x)
		}
	}
	return nil
}

// ProbabilitiesFromSlice converts the model's positional output. It rejects
// anything that is not exactly three values in [0,1].
func ProbabilitiesFromSlice(v []float64) (ProbabilityVector, error) {
	if len(v) != numClasses {
		return ProbabilityVector{}, fmt.Errorf("expected %d class probabilities, got %d", numClasses, len(v))
	}
	p := ProbabilityVector{None: v[classNone], Start: v[classStart], End: v[classEnd]}
	if err := p.Validate(); err != nil {
		return ProbabilityVector{}, err
	}
	return p, nil
}

// Classifier maps one feature vector to class probabilities. Implementations
// may block (remote inference) and must be safe to call from one goroutine
// per session.
type Classifier interface {
	Infer(ctx context.Context, fv FeatureVector) (ProbabilityVector, error)
	Ready() bool
}

// ClassifierFunc adapts a plain function to Classifier. It is always ready.
type ClassifierFunc func(ctx context.Context, fv FeatureVector) (ProbabilityVector, error)

func (f ClassifierFunc) Infer(ctx context.Context, fv FeatureVector) (ProbabilityVector, error) {
	return f(ctx, fv)
}

func (f ClassifierFunc) Ready() bool { return true }
