// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package imu

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Physical limits for a wearable 6-axis IMU. Readings beyond these are
// treated as transport corruption rather than motion.
const (
	MaxAccel = 16 * StandardGravity // m/s², ±16g full scale
	MaxGyro  = 2000.0               // deg/s, ±2000°/s full scale

	StandardGravity = 9.80665
)

// ErrInvalidSample is matched by every *InvalidSampleError.
var ErrInvalidSample = errors.New("invalid sensor sample")

// InvalidSampleError reports the first channel that failed validation.
type InvalidSampleError struct {
	Field string
	Value float64
}

func (e *InvalidSampleError) Error() string {
	return fmt.Sprintf("invalid sensor sample: %s=%v", e.Field, e.Value)
}

func (e *InvalidSampleError) Is(target error) bool { return target == ErrInvalidSample }

// Sample is a single 6-axis reading. Accel in m/s² (gravity included),
// gyro in deg/s.
type Sample struct {
	AccelX float64 `json:"accel_x"`
	AccelY float64 `json:"accel_y"`
	AccelZ float64 `json:"accel_z"`

	GyroX float64 `json:"gyro_x"`
	GyroY float64 `json:"gyro_y"`
	GyroZ float64 `json:"gyro_z"`

	Timestamp time.Time `json:"timestamp"`
}

// Channels returns the six channel values in feature order
// (accel x/y/z, gyro x/y/z).
func (s Sample) Channels() [6]float64 {
	return [6]float64{s.AccelX, s.AccelY, s.AccelZ, s.GyroX, s.GyroY, s.GyroZ}
}

// Validate rejects non-finite values and anything outside the physical range.
func (s Sample) Validate() error {
	accel := []struct {
		name string
		v    float64
	}{{"accel_x", s.AccelX}, {"accel_y", s.AccelY}, {"accel_z", s.AccelZ}}
	for _, c := range accel {
		if !finite(c.v) || math.Abs(c.v) > MaxAccel {
			return &InvalidSampleError{Field: c.name, Value: c.v}
		}
	}
	gyro := []struct {
		name string
		v    float64
	}{{"gyro_x", s.GyroX}, {"gyro_y", s.GyroY}, {"gyro_z", s.GyroZ}}
	for _, c := range gyro {
		if !finite(c.v) || math.Abs(c.v) > MaxGyro {
			return &InvalidSampleError{Field: c.name, Value: c.v}
		}
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Source is anything that can provide samples over time: the MPU9250 over
// SPI, a serial IMU, a replay file.
type Source interface {
	Next() (Sample, error)
}
