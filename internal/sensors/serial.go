// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	nmea "github.com/adrianmo/go-nmea"
	serial "github.com/jacobsa/go-serial/serial"

	"github.com/relabs-tech/step_detector/internal/imu"
)

// LineSource reads IMU sentences from a line-oriented stream. Lines that are
// not IMU sentences are skipped.
type LineSource struct {
	reader  *bufio.Reader
	closer  io.Closer
	parser  *nmea.SentenceParser
	now     func() time.Time
	skipped int
}

// NewLineSource wraps r. Samples are stamped on arrival.
func NewLineSource(r io.Reader) *LineSource {
	return &LineSource{
		reader: bufio.NewReader(r),
		parser: NewSentenceParser(),
		now:    time.Now,
	}
}

// OpenSerialSource opens a serial port that streams IMU sentences.
func OpenSerialSource(portName string, baudRate int) (*LineSource, error) {
	serialOpts := serial.OpenOptions{
		PortName:              portName,
		BaudRate:              uint(baudRate),
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       1,
		ParityMode:            serial.PARITY_NONE,
		InterCharacterTimeout: 0,
	}

	port, err := serial.Open(serialOpts)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", portName, err)
	}
	log.Printf("IMU serial port opened on %s at %d baud", portName, baudRate)

	src := NewLineSource(port)
	src.closer = port
	return src, nil
}

// Next blocks until the next IMU sentence is read. Read errors, including
// io.EOF, are returned as is.
func (s *LineSource) Next() (imu.Sample, error) {
	for {
		line, readErr := s.reader.ReadString('\n')
		line = strings.TrimSpace(line)

		if strings.HasPrefix(line, "$") {
			sentence, err := s.parser.Parse(line)
			if err == nil {
				if m, ok := sentence.(IMUSentence); ok {
					return m.Sample(s.now()), nil
				}
			}
			// noisy link or partial sentences
			s.skipped++
		}

		if readErr != nil {
			return imu.Sample{}, readErr
		}
	}
}

// Skipped reports how many '$' lines failed to parse as IMU sentences.
func (s *LineSource) Skipped() int { return s.skipped }

// Close releases the underlying port, if any.
func (s *LineSource) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}
