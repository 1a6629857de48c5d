// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"fmt"
	"log"
	"time"

	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/devices/v3/mpu9250"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/step_detector/internal/config"
	"github.com/relabs-tech/step_detector/internal/imu"
)

type mpuSource struct {
	dev   *mpu9250.MPU9250
	scale imu.Scale
	now   func() time.Time
}

// NewMPU9250Source initializes the body-worn MPU9250 over SPI and returns it
// as a sample source in m/s² and deg/s.
func NewMPU9250Source(cfg *config.Config) (imu.Source, error) {
	scale, err := imu.NewScale(cfg.IMUAccelRange, cfg.IMUGyroRange)
	if err != nil {
		return nil, fmt.Errorf("IMU: %w", err)
	}

	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("IMU: periph host init: %w", err)
	}

	cs := gpioreg.ByName(cfg.IMUCSPin)
	if cs == nil {
		return nil, fmt.Errorf("IMU: CS pin %q not found", cfg.IMUCSPin)
	}

	tr, err := mpu9250.NewSpiTransport(cfg.IMUSPIDevice, cs)
	if err != nil {
		return nil, fmt.Errorf("IMU: SPI transport (%s): %w", cfg.IMUSPIDevice, err)
	}

	dev, err := mpu9250.New(*tr)
	if err != nil {
		return nil, fmt.Errorf("IMU: device creation: %w", err)
	}

	if err := dev.Init(); err != nil {
		return nil, fmt.Errorf("IMU: initialization: %w", err)
	}

	if err := dev.SetAccelRange(cfg.IMUAccelRange); err != nil {
		return nil, fmt.Errorf("IMU: set accel range: %w", err)
	}
	log.Printf("IMU: accelerometer range set to %d (±%dg)", cfg.IMUAccelRange, []int{2, 4, 8, 16}[cfg.IMUAccelRange])

	if err := dev.SetGyroRange(cfg.IMUGyroRange); err != nil {
		return nil, fmt.Errorf("IMU: set gyro range: %w", err)
	}
	log.Printf("IMU: gyroscope range set to %d (±%d°/s)", cfg.IMUGyroRange, []int{250, 500, 1000, 2000}[cfg.IMUGyroRange])

	// Calibration is best effort; a wearable is rarely still at boot.
	if err := dev.Calibrate(); err != nil {
		log.Printf("Warning: IMU calibration failed: %v", err)
	} else {
		log.Printf("IMU calibration complete")
	}

	return &mpuSource{dev: dev, scale: scale, now: time.Now}, nil
}

// Next reads accelerometer and gyroscope registers and converts them.
func (s *mpuSource) Next() (imu.Sample, error) {
	raw, err := s.readRaw()
	if err != nil {
		return imu.Sample{}, err
	}
	return raw.Sample(s.scale, s.now()), nil
}

func (s *mpuSource) readRaw() (imu.Raw, error) {
	ax, err := s.dev.GetAccelerationX()
	if err != nil {
		return imu.Raw{}, fmt.Errorf("IMU accel X: %w", err)
	}
	ay, err := s.dev.GetAccelerationY()
	if err != nil {
		return imu.Raw{}, fmt.Errorf("IMU accel Y: %w", err)
	}
	az, err := s.dev.GetAccelerationZ()
	if err != nil {
		return imu.Raw{}, fmt.Errorf("IMU accel Z: %w", err)
	}

	gx, err := s.dev.GetRotationX()
	if err != nil {
		return imu.Raw{}, fmt.Errorf("IMU gyro X: %w", err)
	}
	gy, err := s.dev.GetRotationY()
	if err != nil {
		return imu.Raw{}, fmt.Errorf("IMU gyro Y: %w", err)
	}
	gz, err := s.dev.GetRotationZ()
	if err != nil {
		return imu.Raw{}, fmt.Errorf("IMU gyro Z: %w", err)
	}

	return imu.Raw{
		Source: "mpu9250",
		Ax:     ax,
		Ay:     ay,
		Az:     az,
		Gx:     gx,
		Gy:     gy,
		Gz:     gz,
	}, nil
}
