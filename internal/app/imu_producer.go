// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/relabs-tech/step_detector/internal/config"
	"github.com/relabs-tech/step_detector/internal/detector"
	"github.com/relabs-tech/step_detector/internal/imu"
	"github.com/relabs-tech/step_detector/internal/sensors"
)

// RunIMUProducer reads the on-board MPU9250 (or a synthetic gait when mock is
// set) every IMU_SAMPLE_INTERVAL and publishes samples to TOPIC_IMU.
func RunIMUProducer(cfg *config.Config, mock bool) error {
	var src imu.Source
	if mock {
		log.Println("imu producer: using mock walking source")
		src = sensors.NewMockSource(1.8)
	} else {
		var err error
		src, err = sensors.NewMPU9250Source(cfg)
		if err != nil {
			return fmt.Errorf("failed to initialize IMU: %w", err)
		}
	}

	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDProducer, "imu producer")
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	ticker := time.NewTicker(time.Duration(cfg.IMUSampleInterval) * time.Millisecond)
	defer ticker.Stop()

	log.Println("imu producer: starting publish loop")
	return publishSamples(src, mqttPublisher{client: client}, cfg.TopicIMU, ticker.C)
}

// RunSerialProducer reads $INIMU sentences from SERIAL_PORT and publishes
// each one to TOPIC_IMU as it arrives.
func RunSerialProducer(cfg *config.Config) error {
	src, err := sensors.OpenSerialSource(cfg.SerialPort, cfg.SerialBaudRate)
	if err != nil {
		return err
	}
	defer src.Close()

	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDProducer, "serial producer")
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	log.Println("serial producer: starting publish loop")
	return publishSamples(src, mqttPublisher{client: client}, cfg.TopicIMU, nil)
}

// publishSamples reads from src and publishes JSON samples. With a nil tick
// it reads back to back, letting the source pace the loop. It returns nil
// when the source reports io.EOF or the tick channel closes.
func publishSamples(src imu.Source, pub publisher, topic string, tick <-chan time.Time) error {
	var published, dropped int
	for {
		if tick != nil {
			if _, ok := <-tick; !ok {
				return nil
			}
		}

		s, err := src.Next()
		if errors.Is(err, io.EOF) {
			log.Printf("imu producer: source exhausted after %d samples", published)
			return nil
		}
		if err != nil {
			return fmt.Errorf("read sample: %w", err)
		}
		if err := s.Validate(); err != nil {
			dropped++
			log.Printf("imu producer: dropping sample: %v (%d dropped)", err, dropped)
			continue
		}

		payload, err := json.Marshal(s)
		if err != nil {
			log.Printf("imu producer: json marshal error: %v", err)
			continue
		}
		if err := pub.publish(topic, false, payload); err != nil {
			log.Printf("imu producer: MQTT publish error: %v", err)
			continue
		}
		published++
		if published%500 == 0 {
			log.Printf("imu producer: %d samples published, |a|=%.2f", published,
				detector.Magnitude(s))
		}
	}
}
