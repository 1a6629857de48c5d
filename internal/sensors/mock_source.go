// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"math"
	"time"

	"github.com/relabs-tech/step_detector/internal/imu"
)

type mockSource struct {
	start   time.Time
	cadence float64 // steps per second
	now     func() time.Time
}

// NewMockSource creates a mock IMU source that generates a walking gait at
// the given cadence, for running the pipeline without hardware.
func NewMockSource(cadence float64) imu.Source {
	return &mockSource{start: time.Now(), cadence: cadence, now: time.Now}
}

func (m *mockSource) Next() (imu.Sample, error) {
	now := m.now()
	elapsed := now.Sub(m.start).Seconds()
	phase := 2 * math.Pi * m.cadence * elapsed

	return imu.Sample{
		AccelX:    1.5 * math.Sin(phase),
		AccelY:    0.8 * math.Cos(phase/2),
		AccelZ:    imu.StandardGravity + 3.0*math.Sin(phase),
		GyroX:     25 * math.Cos(phase),
		GyroY:     10 * math.Sin(phase/2),
		GyroZ:     5 * math.Sin(phase),
		Timestamp: now,
	}, nil
}
