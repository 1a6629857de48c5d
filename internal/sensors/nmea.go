// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"fmt"
	"strconv"
	"time"

	nmea "github.com/adrianmo/go-nmea"

	"github.com/relabs-tech/step_detector/internal/imu"
)

// TypeIMU is the sentence type for one inertial reading:
//
//	$INIMU,<ax>,<ay>,<az>,<gx>,<gy>,<gz>*hh
//
// Accelerations are in m/s², rotations in deg/s.
const (
	TypeIMU   = "IMU"
	TalkerIMU = "IN"
)

// IMUSentence is a parsed $xxIMU sentence.
type IMUSentence struct {
	nmea.BaseSentence
	AccelX float64
	AccelY float64
	AccelZ float64
	GyroX  float64
	GyroY  float64
	GyroZ  float64
}

// Sample converts the sentence to a Sample stamped at ts.
func (s IMUSentence) Sample(ts time.Time) imu.Sample {
	return imu.Sample{
		AccelX:    s.AccelX,
		AccelY:    s.AccelY,
		AccelZ:    s.AccelZ,
		GyroX:     s.GyroX,
		GyroY:     s.GyroY,
		GyroZ:     s.GyroZ,
		Timestamp: ts,
	}
}

func parseIMU(s nmea.BaseSentence) (nmea.Sentence, error) {
	if len(s.Fields) != 6 {
		return nil, fmt.Errorf("nmea: %s expects 6 fields, got %d", s.Prefix(), len(s.Fields))
	}
	p := nmea.NewParser(s)
	m := IMUSentence{
		BaseSentence: s,
		AccelX:       p.Float64(0, "accel x"),
		AccelY:       p.Float64(1, "accel y"),
		AccelZ:       p.Float64(2, "accel z"),
		GyroX:        p.Float64(3, "gyro x"),
		GyroY:        p.Float64(4, "gyro y"),
		GyroZ:        p.Float64(5, "gyro z"),
	}
	return m, p.Err()
}

// NewSentenceParser returns a parser that understands IMU sentences on top of
// the standard NMEA set.
func NewSentenceParser() *nmea.SentenceParser {
	return &nmea.SentenceParser{
		CustomParsers: map[string]nmea.ParserFunc{
			TypeIMU: parseIMU,
		},
	}
}

// FormatIMUSentence encodes a sample as an $INIMU sentence with checksum.
func FormatIMUSentence(s imu.Sample) string {
	body := fmt.Sprintf("%s%s,%s,%s,%s,%s,%s,%s", TalkerIMU, TypeIMU,
		formatField(s.AccelX), formatField(s.AccelY), formatField(s.AccelZ),
		formatField(s.GyroX), formatField(s.GyroY), formatField(s.GyroZ))
	return fmt.Sprintf("$%s*%02X", body, xorChecksum(body))
}

func formatField(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}

func xorChecksum(body string) byte {
	var sum byte
	for i := 0; i < len(body); i++ {
		sum ^= body[i]
	}
	return sum
}
