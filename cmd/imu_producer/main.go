// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"flag"
	"log"

	"github.com/relabs-tech/step_detector/internal/app"
	"github.com/relabs-tech/step_detector/internal/config"
)

func main() {
	configPath := flag.String("config", "./step_config.txt", "path to configuration file")
	mock := flag.Bool("mock", false, "publish a synthetic walking gait instead of reading the MPU9250")
	flag.Parse()

	log.Println("starting step-detector IMU producer (MPU9250 → MQTT)")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := app.RunIMUProducer(cfg, *mock); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
