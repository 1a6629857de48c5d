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
	flag.Parse()

	log.Println("starting step-detector serial producer ($INIMU → MQTT)")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := app.RunSerialProducer(cfg); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
