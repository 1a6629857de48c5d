// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/relabs-tech/step_detector/internal/detector"
)

// Config holds all application configuration values. It is loaded once per
// process and passed explicitly to whatever needs it.
type Config struct {
	// MQTT
	MQTTBroker           string
	MQTTClientIDProducer string
	MQTTClientIDDetector string
	MQTTClientIDDisplay  string

	// Topics
	TopicIMU        string
	TopicStepEvents string
	TopicStepCount  string

	// IMU Hardware
	IMUSPIDevice string
	IMUCSPin     string

	// IMU Sensor Ranges
	// Accelerometer: 0=±2g, 1=±4g, 2=±8g, 3=±16g
	IMUAccelRange byte
	// Gyroscope: 0=±250°/s, 1=±500°/s, 2=±1000°/s, 3=±2000°/s
	IMUGyroRange byte

	IMUSampleInterval int // milliseconds

	// Serial IMU
	SerialPort     string
	SerialBaudRate int

	// Web Server
	WebServerPort int

	// Classifier
	ClassifierAddr      string // gRPC inference service, host:port
	ClassifierModel     string // JSON weights for the in-process MLP
	ClassifierTimeoutMS int

	// Display
	DisplayI2CBus         string
	DisplayUpdateInterval int // milliseconds

	// Detection
	WindowSize int
	Thresholds detector.ThresholdConfig

	stepClassSet bool
}

// Default returns a config with every optional value filled in.
func Default() *Config {
	return &Config{
		MQTTBroker:           "tcp://localhost:1883",
		MQTTClientIDProducer: "step-imu-producer",
		MQTTClientIDDetector: "step-detector",
		MQTTClientIDDisplay:  "step-display",

		TopicIMU:        "step/imu",
		TopicStepEvents: "step/events",
		TopicStepCount:  "step/count",

		IMUSPIDevice:      "/dev/spidev0.0",
		IMUCSPin:          "18",
		IMUAccelRange:     2,
		IMUGyroRange:      1,
		IMUSampleInterval: 20,

		SerialPort:     "/dev/ttyUSB0",
		SerialBaudRate: 115200,

		WebServerPort: 8000,

		ClassifierTimeoutMS: 500,

		DisplayUpdateInterval: 200,

		WindowSize: detector.DefaultWindowSize,
		Thresholds: detector.DefaultThresholdConfig(),
	}
}

// Load reads the configuration file and returns a Config struct.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	return Parse(file)
}

// Parse reads KEY=VALUE lines from r on top of Default().
func Parse(r io.Reader) (*Config, error) {
	cfg := Default()
	scanner := bufio.NewScanner(r)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if err := cfg.setValue(key, value); err != nil {
			return nil, fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Legacy configs only carry the single confidence threshold.
	if !cfg.stepClassSet {
		cfg.Thresholds.StepClassThreshold = cfg.Thresholds.ConfidenceThreshold
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	t := &c.Thresholds
	switch key {
	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID_PRODUCER":
		c.MQTTClientIDProducer = value
	case "MQTT_CLIENT_ID_DETECTOR":
		c.MQTTClientIDDetector = value
	case "MQTT_CLIENT_ID_DISPLAY":
		c.MQTTClientIDDisplay = value

	// Topics
	case "TOPIC_IMU":
		c.TopicIMU = value
	case "TOPIC_STEP_EVENTS":
		c.TopicStepEvents = value
	case "TOPIC_STEP_COUNT":
		c.TopicStepCount = value

	// IMU Hardware
	case "IMU_SPI_DEVICE":
		c.IMUSPIDevice = value
	case "IMU_CS_PIN":
		c.IMUCSPin = value
	case "IMU_ACCEL_RANGE":
		v, err := parseRange(key, value, 3)
		if err != nil {
			return err
		}
		c.IMUAccelRange = v
	case "IMU_GYRO_RANGE":
		v, err := parseRange(key, value, 3)
		if err != nil {
			return err
		}
		c.IMUGyroRange = v
	case "IMU_SAMPLE_INTERVAL":
		return parseInt(key, value, &c.IMUSampleInterval)

	// Serial IMU
	case "SERIAL_PORT":
		c.SerialPort = value
	case "SERIAL_BAUD_RATE":
		return parseInt(key, value, &c.SerialBaudRate)

	// Web Server
	case "WEB_SERVER_PORT":
		return parseInt(key, value, &c.WebServerPort)

	// Classifier
	case "CLASSIFIER_ADDR":
		c.ClassifierAddr = value
	case "CLASSIFIER_MODEL":
		c.ClassifierModel = value
	case "CLASSIFIER_TIMEOUT_MS":
		return parseInt(key, value, &c.ClassifierTimeoutMS)

	// Display
	case "DISPLAY_I2C_BUS":
		c.DisplayI2CBus = value
	case "DISPLAY_UPDATE_INTERVAL":
		return parseInt(key, value, &c.DisplayUpdateInterval)

	// Detection
	case "WINDOW_SIZE":
		return parseInt(key, value, &c.WindowSize)
	case "CONFIDENCE_THRESHOLD":
		return parseFloat(key, value, &t.ConfidenceThreshold)
	case "MAGNITUDE_THRESHOLD":
		return parseFloat(key, value, &t.MagnitudeThreshold)
	case "PREDICTION_CONFIDENCE_MIN":
		return parseFloat(key, value, &t.PredictionConfidenceMin)
	case "STEP_CLASS_THRESHOLD":
		c.stepClassSet = true
		return parseFloat(key, value, &t.StepClassThreshold)
	case "MIN_MAGNITUDE_THRESHOLD":
		return parseFloat(key, value, &t.MinMagnitudeThreshold)
	case "MAX_MAGNITUDE_THRESHOLD":
		return parseFloat(key, value, &t.MaxMagnitudeThreshold)
	case "ENABLE_MAGNITUDE_FILTER":
		return parseBool(key, value, &t.EnableMagnitudeFilter)
	case "ENABLE_CONFIDENCE_FILTER":
		return parseBool(key, value, &t.EnableConfidenceFilter)
	case "ADAPTIVE_MAGNITUDE":
		return parseBool(key, value, &t.AdaptiveMagnitude)
	case "ADAPTIVE_HISTORY_SIZE":
		return parseInt(key, value, &t.AdaptiveHistorySize)
	case "ADAPTIVE_MAGNITUDE_FACTOR":
		return parseFloat(key, value, &t.AdaptiveFactor)

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return nil
}

func parseInt(key, value string, dst *int) error {
	v, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	*dst = v
	return nil
}

func parseFloat(key, value string, dst *float64) error {
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	*dst = v
	return nil
}

func parseBool(key, value string, dst *bool) error {
	v, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	*dst = v
	return nil
}

func parseRange(key, value string, max int) (byte, error) {
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if v < 0 || v > max {
		return 0, fmt.Errorf("%s must be 0-%d, got %d", key, max, v)
	}
	return byte(v), nil
}

// validate checks cross-field constraints. Threshold problems come back as
// *detector.ConfigError.
func (c *Config) validate() error {
	if c.WindowSize <= 0 {
		return &detector.ConfigError{Field: "window_size", Reason: fmt.Sprintf("must be > 0, got %d", c.WindowSize)}
	}
	if err := c.Thresholds.Validate(); err != nil {
		return err
	}
	if c.IMUSampleInterval <= 0 {
		return fmt.Errorf("IMU_SAMPLE_INTERVAL must be > 0")
	}
	if c.ClassifierTimeoutMS <= 0 {
		return fmt.Errorf("CLASSIFIER_TIMEOUT_MS must be > 0")
	}
	if c.WebServerPort <= 0 || c.WebServerPort > 65535 {
		return fmt.Errorf("WEB_SERVER_PORT must be 1-65535, got %d", c.WebServerPort)
	}
	return nil
}
