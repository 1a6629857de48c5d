// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"

	"gonum.org/v1/gonum/mat"

	"github.com/relabs-tech/step_detector/internal/detector"
)

// Activation names accepted in a model file.
const (
	ActivationReLU    = "relu"
	ActivationSoftmax = "softmax"
	ActivationLinear  = "linear"
)

// Layer is one dense layer as stored on disk. Weights are out x in.
type Layer struct {
	Weights    [][]float64 `json:"weights"`
	Bias       []float64   `json:"bias"`
	Activation string      `json:"activation"`
}

// ModelFile is the JSON layout read by LoadMLP.
type ModelFile struct {
	Name   string  `json:"name"`
	Layers []Layer `json:"layers"`
}

type dense struct {
	w   *mat.Dense
	b   *mat.VecDense
	act string
}

// MLP runs a small feed-forward network over one feature vector. It is safe
// for concurrent use; weights are read-only after construction.
type MLP struct {
	name   string
	source string
	layers []dense
}

// LoadMLP reads model weights from a JSON file.
func LoadMLP(path string) (*MLP, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model file: %w", err)
	}
	var mf ModelFile
	if err := json.Unmarshal(data, &mf); err != nil {
		return nil, fmt.Errorf("failed to parse model file %s: %w", path, err)
	}
	m, err := NewMLP(mf)
	if err != nil {
		return nil, fmt.Errorf("model %s: %w", path, err)
	}
	m.source = path
	return m, nil
}

// NewMLP checks layer shapes and builds the network. The input width must be
// detector.FeatureLen and the output width must be 3.
func NewMLP(mf ModelFile) (*MLP, error) {
	if len(mf.Layers) == 0 {
		return nil, fmt.Errorf("model has no layers")
	}
	m := &MLP{name: mf.Name}
	in := detector.FeatureLen
	for i, l := range mf.Layers {
		out := len(l.Weights)
		if out == 0 {
			return nil, fmt.Errorf("layer %d: empty weights", i)
		}
		if len(l.Bias) != out {
			return nil, fmt.Errorf("layer %d: bias has %d values, want %d", i, len(l.Bias), out)
		}
		switch l.Activation {
		case ActivationReLU, ActivationSoftmax, ActivationLinear:
		default:
			return nil, fmt.Errorf("layer %d: unknown activation %q", i, l.Activation)
		}
		w := mat.NewDense(out, in, nil)
		for r, row := range l.Weights {
			if len(row) != in {
				return nil, fmt.Errorf("layer %d row %d: %d weights, want %d", i, r, len(row), in)
			}
			w.SetRow(r, row)
		}
		b := mat.NewVecDense(out, append([]float64(nil), l.Bias...))
		m.layers = append(m.layers, dense{w: w, b: b, act: l.Activation})
		in = out
	}
	if in != 3 {
		return nil, fmt.Errorf("output layer has %d units, want 3", in)
	}
	return m, nil
}

// Infer runs the forward pass.
func (m *MLP) Infer(ctx context.Context, fv detector.FeatureVector) (detector.ProbabilityVector, error) {
	if err := ctx.Err(); err != nil {
		return detector.ProbabilityVector{}, &detector.ClassifierError{Op: "mlp infer", Err: err}
	}
	x := mat.NewVecDense(detector.FeatureLen, fv[:])
	for _, l := range m.layers {
		rows, _ := l.w.Dims()
		y := mat.NewVecDense(rows, nil)
		y.MulVec(l.w, x)
		y.AddVec(y, l.b)
		activate(y, l.act)
		x = y
	}
	probs, err := detector.ProbabilitiesFromSlice(x.RawVector().Data)
	if err != nil {
		return detector.ProbabilityVector{}, &detector.ClassifierError{Op: "mlp infer", Err: err}
	}
	return probs, nil
}

// Ready is always true once the weights are loaded.
func (m *MLP) Ready() bool { return true }

// Describe reports the layer widths.
func (m *MLP) Describe() Info {
	shape := []int{detector.FeatureLen}
	params := 0
	for _, l := range m.layers {
		r, c := l.w.Dims()
		shape = append(shape, r)
		params += r*c + r
	}
	return Info{
		Kind:       KindMLP,
		Name:       m.name,
		Source:     m.source,
		Shape:      shape,
		Parameters: params,
		Loaded:     true,
	}
}

// Close is a no-op.
func (m *MLP) Close() error { return nil }

func activate(v *mat.VecDense, act string) {
	n := v.Len()
	switch act {
	case ActivationReLU:
		for i := 0; i < n; i++ {
			if v.AtVec(i) < 0 {
				v.SetVec(i, 0)
			}
		}
	case ActivationSoftmax:
		hi := mat.Max(v)
		sum := 0.0
		for i := 0; i < n; i++ {
			e := math.Exp(v.AtVec(i) - hi)
			v.SetVec(i, e)
			sum += e
		}
		v.ScaleVec(1/sum, v)
	}
}
