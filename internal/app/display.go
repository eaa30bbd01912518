// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"fmt"
	"image"
	"log"
	"sync"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/motion_classifier/internal/classifier"
	"github.com/relabs-tech/motion_classifier/internal/config"
	"github.com/relabs-tech/motion_classifier/internal/detection"
)

// Display shows the current mode and the latest detection on an SSD1306.
type Display struct {
	dev      *ssd1306.Dev
	bus      i2c.BusCloser
	interval time.Duration

	mu      sync.RWMutex
	mode    Mode
	last    detection.Result
	haveDet bool
}

// NewDisplay opens the I2C display and registers its observers on the bus
// channels. Must run during wiring, before the first publish.
func NewDisplay(cfg *config.Config, ch *Channels) (*Display, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("display: periph host init: %w", err)
	}

	bus, err := i2creg.Open("")
	if err != nil {
		return nil, fmt.Errorf("display: failed to open I2C bus: %w", err)
	}

	dev, err := ssd1306.NewI2C(bus, &ssd1306.DefaultOpts)
	if err != nil {
		bus.Close()
		return nil, fmt.Errorf("display: failed to initialize display: %w", err)
	}
	log.Println("display: initialized")

	d := &Display{
		dev:      dev,
		bus:      bus,
		interval: time.Duration(cfg.DisplayUpdateIntervalMS) * time.Millisecond,
		mode:     ModeIdle,
	}

	if err := ch.Modes.Subscribe("display", 100*time.Millisecond, func(m Mode) {
		d.mu.Lock()
		d.mode = m
		d.mu.Unlock()
	}); err != nil {
		return nil, err
	}
	if err := ch.Detections.Subscribe("display", 100*time.Millisecond, func(r detection.Result) {
		d.mu.Lock()
		d.last = r
		d.haveDet = true
		d.mu.Unlock()
	}); err != nil {
		return nil, err
	}

	return d, nil
}

// Run refreshes the display until ctx is cancelled.
func (d *Display) Run(ctx context.Context) error {
	defer d.bus.Close()

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	log.Println("display: starting update loop")
	for {
		select {
		case <-ticker.C:
			if err := d.render(); err != nil {
				log.Printf("display: update error: %v", err)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (d *Display) render() error {
	d.mu.RLock()
	mode := d.mode
	last := d.last
	haveDet := d.haveDet
	d.mu.RUnlock()

	img := image1bit.NewVerticalLSB(image.Rect(0, 0, 128, 64))

	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{image1bit.On},
		Face: basicfont.Face7x13,
	}

	drawer.Dot = fixed.P(0, 13)
	drawer.DrawString("Mode:")
	drawer.Dot = fixed.P(0, 26)
	drawer.DrawString(mode.String())

	if haveDet {
		drawer.Dot = fixed.P(0, 45)
		drawer.DrawString(classifier.ClassName(last.PredictedClass))
		drawer.Dot = fixed.P(0, 58)
		drawer.DrawString(fmt.Sprintf("%d%%", int(last.Confidence*100)))
	} else {
		drawer.Dot = fixed.P(0, 45)
		drawer.DrawString("No detection")
	}

	return d.dev.Draw(d.dev.Bounds(), img, image.Point{})
}
