// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package classifier

import (
	"context"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/relabs-tech/step_detector/internal/detector"
)

type inferServer interface {
	infer(context.Context, *structpb.ListValue) (*structpb.ListValue, error)
}

type server struct {
	c detector.Classifier
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*inferServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Infer", Handler: inferHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "stepdetect/v1/classifier.proto",
}

// RegisterServer exposes c as the Classifier service on s.
func RegisterServer(s grpc.ServiceRegistrar, c detector.Classifier) {
	s.RegisterService(&serviceDesc, &server{c: c})
}

func (s *server) infer(ctx context.Context, req *structpb.ListValue) (*structpb.ListValue, error) {
	if !s.c.Ready() {
		return nil, status.Error(codes.Unavailable, "model not loaded")
	}
	vals := req.GetValues()
	if len(vals) != detector.FeatureLen {
		return nil, status.Errorf(codes.InvalidArgument, "want %d features, got %d", detector.FeatureLen, len(vals))
	}
	var fv detector.FeatureVector
	for i, v := range vals {
		fv[i] = v.GetNumberValue()
	}
	probs, err := s.c.Infer(ctx, fv)
	if err != nil {
		if errors.Is(err, detector.ErrNotReady) {
			return nil, status.Error(codes.Unavailable, err.Error())
		}
		return nil, status.Error(codes.Internal, err.Error())
	}
	return &structpb.ListValue{Values: []*structpb.Value{
		structpb.NewNumberValue(probs.None),
		structpb.NewNumberValue(probs.Start),
		structpb.NewNumberValue(probs.End),
	}}, nil
}

func inferHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.ListValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(inferServer).infer(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: inferMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(inferServer).infer(ctx, req.(*structpb.ListValue))
	}
	return interceptor(ctx, in, info, handler)
}
