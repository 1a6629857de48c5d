package imu

import (
	"fmt"
	"time"
)

// Raw represents a single raw accel+gyro register readout.
type Raw struct {
	Source string `json:"source"`

	Ax int16 `json:"ax"` // accel
	Ay int16 `json:"ay"`
	Az int16 `json:"az"`

	Gx int16 `json:"gx"` // gyro
	Gy int16 `json:"gy"`
	Gz int16 `json:"gz"`
}

// Full-scale selections as written to the MPU9250 config registers.
var (
	accelRangesG    = []float64{2, 4, 8, 16}
	gyroRangesDegPS = []float64{250, 500, 1000, 2000}
)

// Scale converts raw register counts to physical units for a given
// accelerometer (0=±2g .. 3=±16g) and gyroscope (0=±250°/s .. 3=±2000°/s) range.
type Scale struct {
	AccelPerCount float64 // m/s² per LSB
	GyroPerCount  float64 // deg/s per LSB
}

// NewScale returns the conversion for the given range selectors.
func NewScale(accelRange, gyroRange byte) (Scale, error) {
	if int(accelRange) >= len(accelRangesG) {
		return Scale{}, fmt.Errorf("accel range must be 0-3, got %d", accelRange)
	}
	if int(gyroRange) >= len(gyroRangesDegPS) {
		return Scale{}, fmt.Errorf("gyro range must be 0-3, got %d", gyroRange)
	}
	return Scale{
		AccelPerCount: accelRangesG[accelRange] * StandardGravity / 32768.0,
		GyroPerCount:  gyroRangesDegPS[gyroRange] / 32768.0,
	}, nil
}

// Sample converts the raw readout into a Sample stamped at ts.
func (r Raw) Sample(sc Scale, ts time.Time) Sample {
	return Sample{
		AccelX:    float64(r.Ax) * sc.AccelPerCount,
		AccelY:    float64(r.Ay) * sc.AccelPerCount,
		AccelZ:    float64(r.Az) * sc.AccelPerCount,
		GyroX:     float64(r.Gx) * sc.GyroPerCount,
		GyroY:     float64(r.Gy) * sc.GyroPerCount,
		GyroZ:     float64(r.Gz) * sc.GyroPerCount,
		Timestamp: ts,
	}
}
