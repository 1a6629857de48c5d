// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"fmt"
	"log"
	"net"

	"google.golang.org/grpc"

	"github.com/relabs-tech/step_detector/internal/classifier"
	"github.com/relabs-tech/step_detector/internal/config"
)

// RunClassifierService serves the local MLP from CLASSIFIER_MODEL over gRPC
// on addr, for detectors configured with CLASSIFIER_ADDR.
func RunClassifierService(cfg *config.Config, addr string) error {
	if cfg.ClassifierModel == "" {
		return fmt.Errorf("classifier service: CLASSIFIER_MODEL is not set")
	}
	model, err := classifier.LoadMLP(cfg.ClassifierModel)
	if err != nil {
		return err
	}

	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("classifier service: listen %s: %w", addr, err)
	}

	srv := grpc.NewServer()
	classifier.RegisterServer(srv, model)
	log.Printf("classifier service: serving %s on %s", cfg.ClassifierModel, lis.Addr())
	return srv.Serve(lis)
}
