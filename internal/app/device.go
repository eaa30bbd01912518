// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	serial "github.com/jacobsa/go-serial/serial"
	"golang.org/x/sync/errgroup"

	"github.com/relabs-tech/motion_classifier/internal/bus"
	"github.com/relabs-tech/motion_classifier/internal/button"
	"github.com/relabs-tech/motion_classifier/internal/classifier"
	"github.com/relabs-tech/motion_classifier/internal/config"
	"github.com/relabs-tech/motion_classifier/internal/detection"
	"github.com/relabs-tech/motion_classifier/internal/imu"
	"github.com/relabs-tech/motion_classifier/internal/sampling"
	"github.com/relabs-tech/motion_classifier/internal/sensors"
)

// Channels groups the process-wide bus channels. They are created once at
// startup and never destroyed; every subscription happens during wiring,
// before the first publish.
type Channels struct {
	Buttons    *bus.Channel[button.Event]
	Samples    *bus.Channel[imu.Sample]
	Detections *bus.Channel[detection.Result]
	Modes      *bus.Channel[Mode]
}

func NewChannels() *Channels {
	return &Channels{
		Buttons:    bus.NewChannel[button.Event]("buttons"),
		Samples:    bus.NewChannel[imu.Sample]("imu_samples"),
		Detections: bus.NewChannel[detection.Result]("detections"),
		Modes:      bus.NewChannel[Mode]("modes"),
	}
}

// RunDevice wires the full device and blocks until ctx is cancelled: sensor,
// sampling pipeline, detection feed, gesture recognizer, mode controller,
// and the optional MQTT mirror, web status server, and display.
func RunDevice(ctx context.Context) error {
	cfg := config.Get()

	// --- sensor collaborator ---
	var sensor sampling.Sensor
	if cfg.IMUMock {
		log.Println("device: using mock IMU")
		sensor = sensors.NewMock()
	} else {
		dev, err := sensors.NewMPU6500(cfg.IMUSPIDevice, cfg.IMUAccelRange, cfg.IMUGyroRange)
		if err != nil {
			return fmt.Errorf("device: IMU init: %w", err)
		}
		defer dev.Close()
		sensor = dev
	}

	// --- raw echo side output ---
	echo, closeEcho, err := openEchoWriter(cfg)
	if err != nil {
		return err
	}
	defer closeEcho()

	ch := NewChannels()

	sampler := sampling.New(sensor, ch.Samples, cfg.SamplingFrequencyHz, echo)
	if err := sampler.SetFrequency(cfg.SamplingFrequencyHz); err != nil {
		return fmt.Errorf("device: %w", err)
	}

	detector := detection.New(classifier.NewMagnitude(cfg.DetectionWindowSize), ch.Detections)

	recognizer := button.NewRecognizer(button.Config{
		Mask:         button.Btn1Mask,
		Debounce:     time.Duration(cfg.ButtonDebounceMS) * time.Millisecond,
		LongPress:    time.Duration(cfg.ButtonLongPressTimeoutMS) * time.Millisecond,
		SettleWindow: time.Duration(cfg.ButtonDoublePressTimeoutMS) * time.Millisecond,
	}, ch.Buttons)

	controller := NewController(sampler, detector, ch.Modes)

	// --- fixed observer registry ---
	if err := ch.Samples.Subscribe("detection", 100*time.Millisecond, detector.HandleSample); err != nil {
		return err
	}
	if err := ch.Buttons.Subscribe("controller", 100*time.Millisecond, controller.HandleButtonEvent); err != nil {
		return err
	}
	if err := ch.Detections.Subscribe("detection_log", 100*time.Millisecond, logDetection); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)

	if cfg.MQTTBroker != "" {
		bridge, err := NewBridge(cfg, ch)
		if err != nil {
			return err
		}
		defer bridge.Close()
	}

	if cfg.WebServerPort > 0 {
		web, err := NewWebStatus(ch)
		if err != nil {
			return err
		}
		port := cfg.WebServerPort
		g.Go(func() error { return web.Run(ctx, port) })
	}

	if cfg.DisplayEnabled {
		disp, err := NewDisplay(cfg, ch)
		if err != nil {
			// The device keeps running without a display.
			log.Printf("device: display init failed: %v", err)
		} else {
			g.Go(func() error { return disp.Run(ctx) })
		}
	}

	if edges, err := button.NewEdgeSource(cfg.ButtonGPIOPin, button.Btn1Mask); err != nil {
		log.Printf("device: button edge source unavailable: %v", err)
	} else {
		g.Go(func() error { return edges.Run(ctx, recognizer.HandleEdge) })
	}

	g.Go(func() error { return controller.Run(ctx) })

	log.Println("device: running")
	return g.Wait()
}

func logDetection(r detection.Result) {
	log.Printf("%s (%d%%)", classifier.ClassName(r.PredictedClass), int(r.Confidence*100))
}

// openEchoWriter selects the destination of the raw sample echo: stdout by
// default, or the configured UART for external capture tooling.
func openEchoWriter(cfg *config.Config) (io.Writer, func(), error) {
	if cfg.RawEchoSerialPort == "" {
		return os.Stdout, func() {}, nil
	}

	opts := serial.OpenOptions{
		PortName:        cfg.RawEchoSerialPort,
		BaudRate:        uint(cfg.RawEchoBaudRate),
		DataBits:        8,
		StopBits:        1,
		MinimumReadSize: 1,
		ParityMode:      serial.PARITY_NONE,
	}
	port, err := serial.Open(opts)
	if err != nil {
		return nil, nil, fmt.Errorf("device: raw echo serial open: %w", err)
	}

	log.Printf("device: raw echo on %s at %d baud", cfg.RawEchoSerialPort, cfg.RawEchoBaudRate)
	return port, func() { port.Close() }, nil
}
