// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"log"
	"time"

	"github.com/relabs-tech/motion_classifier/internal/bus"
	"github.com/relabs-tech/motion_classifier/internal/button"
)

// Mode is the device's top-level operating mode.
type Mode int

const (
	ModeIdle Mode = iota
	ModeDetecting
	ModeRawSampling
)

func (m Mode) String() string {
	switch m {
	case ModeIdle:
		return "idle"
	case ModeDetecting:
		return "detecting"
	case ModeRawSampling:
		return "raw sampling"
	default:
		return "unknown"
	}
}

// pipeline is the sampling collaborator the controller drives.
type pipeline interface {
	Start() error
	Stop() error
	SetPrintEnabled(enabled bool)
}

// resetter clears per-session detection state on entry into detecting.
type resetter interface {
	Reset()
}

// Controller owns the mode state machine. Every transition runs the exit
// action of the old mode before the entry action of the new one; a gesture
// targeting the current mode still re-runs both, restarting the session.
type Controller struct {
	sampler  pipeline
	detector resetter
	modes    *bus.Channel[Mode]

	mode   Mode
	events chan button.Event
}

func NewController(sampler pipeline, detector resetter, modes *bus.Channel[Mode]) *Controller {
	return &Controller{
		sampler:  sampler,
		detector: detector,
		modes:    modes,
		mode:     ModeIdle,
		events:   make(chan button.Event, 4),
	}
}

// HandleButtonEvent is the button-channel observer. It hands the event to the
// controller goroutine; a full mailbox drops the gesture rather than stalling
// the publisher.
func (c *Controller) HandleButtonEvent(ev button.Event) {
	select {
	case c.events <- ev:
	default:
		log.Printf("controller: event mailbox full, dropping %s", ev)
	}
}

// Run drives the state machine until ctx is cancelled. The loop wakes on each
// gesture and otherwise polls on a bounded interval, slow while idle.
func (c *Controller) Run(ctx context.Context) error {
	log.Println("controller: starting in idle")
	c.announce()

	for {
		select {
		case ev := <-c.events:
			c.transition(targetMode(ev))
		case <-time.After(c.runInterval()):
		case <-ctx.Done():
			c.exit(c.mode)
			return ctx.Err()
		}
	}
}

// targetMode maps a gesture to its destination mode, independent of the
// current mode.
func targetMode(ev button.Event) Mode {
	switch ev {
	case button.SinglePress:
		return ModeDetecting
	case button.DoublePress:
		return ModeRawSampling
	default:
		return ModeIdle
	}
}

func (c *Controller) runInterval() time.Duration {
	if c.mode == ModeIdle {
		return time.Second
	}
	return 100 * time.Millisecond
}

// transition runs exit(old), then entry(next). A failed entry falls back to
// idle through the same exit/entry discipline.
func (c *Controller) transition(next Mode) {
	c.exit(c.mode)
	c.mode = next

	if err := c.enter(next); err != nil {
		log.Printf("controller: enter %s failed: %v", next, err)
		c.exit(next)
		c.mode = ModeIdle
		c.enter(ModeIdle)
	}

	c.announce()
}

func (c *Controller) enter(m Mode) error {
	switch m {
	case ModeDetecting:
		log.Println("controller: detection started")
		c.detector.Reset()
		c.sampler.SetPrintEnabled(false)
		return c.sampler.Start()

	case ModeRawSampling:
		log.Println("controller: raw sampling started")
		c.sampler.SetPrintEnabled(true)
		return c.sampler.Start()

	default:
		log.Println("controller: idle")
		return nil
	}
}

func (c *Controller) exit(m Mode) {
	switch m {
	case ModeDetecting:
		log.Println("controller: detection stopped")
		if err := c.sampler.Stop(); err != nil {
			log.Printf("controller: sampling stop failed: %v", err)
		}

	case ModeRawSampling:
		log.Println("controller: raw sampling stopped")
		if err := c.sampler.Stop(); err != nil {
			log.Printf("controller: sampling stop failed: %v", err)
		}

	default:
	}
}

func (c *Controller) announce() {
	if c.modes == nil {
		return
	}
	if err := c.modes.Publish(c.mode); err != nil {
		log.Printf("controller: publish mode: %v", err)
	}
}
