// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package classifier provides the step classifiers the detector can run
// against: a local MLP and a remote gRPC inference service.
package classifier

import (
	"context"
	"fmt"
	"time"

	"github.com/relabs-tech/step_detector/internal/config"
	"github.com/relabs-tech/step_detector/internal/detector"
	"github.com/relabs-tech/step_detector/internal/monitoring"
)

// Kinds reported by Describe.
const (
	KindMLP         = "mlp"
	KindRemote      = "grpc"
	KindUnavailable = "unavailable"
)

// Info describes a loaded model for the model_info endpoint.
type Info struct {
	Kind       string `json:"kind"`
	Name       string `json:"name,omitempty"`
	Source     string `json:"source,omitempty"`
	Shape      []int  `json:"shape,omitempty"`
	Parameters int    `json:"parameters,omitempty"`
	Loaded     bool   `json:"loaded"`
	Reason     string `json:"reason,omitempty"`
}

// Model is a classifier the services can describe and release.
type Model interface {
	detector.Classifier
	Describe() Info
	Close() error
}

// Unavailable stands in when no model could be loaded. Every Infer fails with
// detector.ErrNotReady.
type Unavailable struct {
	Reason string
}

func (u Unavailable) Infer(context.Context, detector.FeatureVector) (detector.ProbabilityVector, error) {
	return detector.ProbabilityVector{}, &detector.ClassifierError{Op: "infer", Err: detector.ErrNotReady}
}

func (u Unavailable) Ready() bool { return false }

func (u Unavailable) Describe() Info {
	return Info{Kind: KindUnavailable, Reason: u.Reason}
}

func (u Unavailable) Close() error { return nil }

// New picks a classifier from the config. CLASSIFIER_ADDR takes precedence
// over CLASSIFIER_MODEL. If neither is set an error is returned.
func New(cfg *config.Config) (Model, error) {
	timeout := time.Duration(cfg.ClassifierTimeoutMS) * time.Millisecond
	switch {
	case cfg.ClassifierAddr != "":
		monitoring.Logf("classifier: using remote inference at %s (timeout %v)", cfg.ClassifierAddr, timeout)
		return Dial(cfg.ClassifierAddr, timeout)
	case cfg.ClassifierModel != "":
		m, err := LoadMLP(cfg.ClassifierModel)
		if err != nil {
			return nil, err
		}
		monitoring.Logf("classifier: loaded MLP from %s", cfg.ClassifierModel)
		return m, nil
	default:
		return nil, fmt.Errorf("no classifier configured: set CLASSIFIER_ADDR or CLASSIFIER_MODEL")
	}
}

// NewOrUnavailable is New but degrades to Unavailable so services can start
// and report the missing model instead of exiting.
func NewOrUnavailable(cfg *config.Config) Model {
	m, err := New(cfg)
	if err != nil {
		monitoring.Logf("classifier: model not loaded: %v", err)
		return Unavailable{Reason: err.Error()}
	}
	return m
}
