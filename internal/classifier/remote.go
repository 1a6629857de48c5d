// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package classifier

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/relabs-tech/step_detector/internal/detector"
)

const (
	serviceName = "stepdetect.v1.Classifier"
	inferMethod = "/" + serviceName + "/Infer"
)

// Remote calls an inference service over gRPC. A request is a ListValue of
// the six feature values; the reply is a ListValue of three probabilities.
type Remote struct {
	conn    *grpc.ClientConn
	addr    string
	timeout time.Duration
}

// Dial creates a lazy client connection. No I/O happens until the first call.
func Dial(addr string, timeout time.Duration, opts ...grpc.DialOption) (*Remote, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create classifier client for %s: %w", addr, err)
	}
	return &Remote{conn: conn, addr: addr, timeout: timeout}, nil
}

// Infer sends one feature vector. Transport and decode failures come back as
// *detector.ClassifierError.
func (r *Remote) Infer(ctx context.Context, fv detector.FeatureVector) (detector.ProbabilityVector, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	req := &structpb.ListValue{Values: make([]*structpb.Value, 0, detector.FeatureLen)}
	for _, v := range fv {
		req.Values = append(req.Values, structpb.NewNumberValue(v))
	}
	resp := new(structpb.ListValue)
	if err := r.conn.Invoke(ctx, inferMethod, req, resp); err != nil {
		return detector.ProbabilityVector{}, &detector.ClassifierError{Op: "remote infer", Err: err}
	}

	out := make([]float64, len(resp.GetValues()))
	for i, v := range resp.GetValues() {
		out[i] = v.GetNumberValue()
	}
	probs, err := detector.ProbabilitiesFromSlice(out)
	if err != nil {
		return detector.ProbabilityVector{}, &detector.ClassifierError{Op: "remote infer", Err: err}
	}
	return probs, nil
}

// Ready reports false once the channel has failed or been closed.
func (r *Remote) Ready() bool {
	switch r.conn.GetState() {
	case connectivity.TransientFailure, connectivity.Shutdown:
		return false
	}
	return true
}

func (r *Remote) Describe() Info {
	return Info{Kind: KindRemote, Source: r.addr, Loaded: r.Ready()}
}

func (r *Remote) Close() error { return r.conn.Close() }
