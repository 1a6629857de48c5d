// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"fmt"
	"image"
	"log"
	"sync"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/step_detector/internal/config"
	"github.com/relabs-tech/step_detector/internal/detector"
)

const (
	displayWidth  = 128
	displayHeight = 64
)

// DisplayData holds the latest count message for the display.
type DisplayData struct {
	mu      sync.RWMutex
	count   StepCountMessage
	haveMsg bool
}

func (d *DisplayData) update(payload []byte) error {
	var m StepCountMessage
	if err := json.Unmarshal(payload, &m); err != nil {
		return err
	}
	d.mu.Lock()
	d.count = m
	d.haveMsg = true
	d.mu.Unlock()
	return nil
}

func (d *DisplayData) snapshot() (StepCountMessage, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.count, d.haveMsg
}

// RunDisplay shows the step count published on TOPIC_STEP_COUNT on an SSD1306
// OLED.
func RunDisplay(cfg *config.Config) error {
	// Initialize periph
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("failed to initialize periph: %w", err)
	}

	// Open I2C bus
	bus, err := i2creg.Open(cfg.DisplayI2CBus)
	if err != nil {
		return fmt.Errorf("failed to open I2C bus: %w", err)
	}
	defer bus.Close()

	dev, err := ssd1306.NewI2C(bus, &ssd1306.DefaultOpts)
	if err != nil {
		return fmt.Errorf("failed to initialize display: %w", err)
	}
	log.Printf("display: initialized on I2C bus %q", cfg.DisplayI2CBus)

	if err := dev.Draw(dev.Bounds(), RenderSplash(), image.Point{}); err != nil {
		log.Printf("display: error showing splash: %v", err)
	}

	data := &DisplayData{}

	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDDisplay, "display")
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	if err := subscribe(client, cfg.TopicStepCount, "display", func(payload []byte) {
		if err := data.update(payload); err != nil {
			log.Printf("display: step count unmarshal error: %v", err)
		}
	}); err != nil {
		return err
	}

	// Display update loop
	ticker := time.NewTicker(time.Duration(cfg.DisplayUpdateInterval) * time.Millisecond)
	defer ticker.Stop()

	log.Println("display: starting update loop")

	for range ticker.C {
		msg, ok := data.snapshot()
		img := RenderStepFrame(msg.StepCount, msg.Phase == detector.PhaseStepOpen, ok)
		if err := dev.Draw(dev.Bounds(), img, image.Point{}); err != nil {
			log.Printf("display: error updating display: %v", err)
		}
	}

	return nil
}

func newFrame() (*image1bit.VerticalLSB, *font.Drawer) {
	img := image1bit.NewVerticalLSB(image.Rect(0, 0, displayWidth, displayHeight))
	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{image1bit.On},
		Face: basicfont.Face7x13,
	}
	return img, drawer
}

// RenderStepFrame draws the step count and whether a step is in progress.
// Without data it shows a waiting message.
func RenderStepFrame(count uint64, open, haveData bool) *image1bit.VerticalLSB {
	img, drawer := newFrame()

	drawer.Dot = fixed.P(0, 13)
	drawer.DrawString("Steps")

	if !haveData {
		drawer.Dot = fixed.P(0, 39)
		drawer.DrawString("Waiting for data")
		return img
	}

	drawer.Dot = fixed.P(0, 39)
	drawer.DrawString(fmt.Sprintf("%d", count))

	if open {
		drawer.Dot = fixed.P(0, 60)
		drawer.DrawString("stepping")
		// Filled marker in the top right corner while a step is open.
		for x := displayWidth - 10; x < displayWidth-2; x++ {
			for y := 3; y < 11; y++ {
				img.SetBit(x, y, image1bit.On)
			}
		}
	}
	return img
}

// RenderSplash is shown while waiting for the broker.
func RenderSplash() *image1bit.VerticalLSB {
	img, drawer := newFrame()

	drawer.Dot = fixed.P(10, 26)
	drawer.DrawString("Step Detector")

	drawer.Dot = fixed.P(5, 43)
	drawer.DrawString("Connecting...")

	return img
}
