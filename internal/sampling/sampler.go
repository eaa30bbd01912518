// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sampling

import (
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/relabs-tech/motion_classifier/internal/bus"
	"github.com/relabs-tech/motion_classifier/internal/imu"
)

// Idempotency violations. Non-fatal: the caller logs and carries on.
var (
	ErrAlreadyActive = errors.New("sampling already active")
	ErrNotActive     = errors.New("sampling not active")
)

// Sensor is the inertial device collaborator.
type Sensor interface {
	// Configure sets the sensor's output data rate.
	Configure(rateHz int) error
	// ReadSample performs one blocking 6-axis read.
	ReadSample() (imu.Sample, error)
}

// Sampler reads one sample per timer tick while active and publishes it on
// the sample channel. Ticks reach the worker through a single-token trigger:
// a tick firing before the worker consumed the previous token coalesces, so
// overload costs at most one skipped sample and never queues up or deadlocks.
type Sampler struct {
	sensor  Sensor
	samples *bus.Channel[imu.Sample]
	echo    io.Writer

	printEnabled atomic.Bool
	active       atomic.Bool

	mu          sync.Mutex
	frequencyHz int
	ticker      *time.Ticker
	tickStop    chan struct{}

	trigger chan struct{}
}

// New creates the sampler and starts its worker goroutine. The worker runs
// for the process lifetime; Start and Stop only gate the tick source. Raw
// values are echoed to echo as text when print is enabled.
func New(sensor Sensor, samples *bus.Channel[imu.Sample], frequencyHz int, echo io.Writer) *Sampler {
	s := &Sampler{
		sensor:      sensor,
		samples:     samples,
		frequencyHz: frequencyHz,
		echo:        echo,
		trigger:     make(chan struct{}, 1),
	}
	go s.worker()
	return s
}

// SetFrequency configures the sensor output data rate and the tick period
// used by subsequent Start calls.
func (s *Sampler) SetFrequency(rateHz int) error {
	if rateHz <= 0 {
		return fmt.Errorf("sampling: invalid frequency %d Hz", rateHz)
	}
	if err := s.sensor.Configure(rateHz); err != nil {
		return fmt.Errorf("sampling: set frequency %d Hz: %w", rateHz, err)
	}

	s.mu.Lock()
	s.frequencyHz = rateHz
	s.mu.Unlock()

	log.Printf("sampling: frequency set to %d Hz", rateHz)
	return nil
}

// Start arms the periodic tick source. Calling it while already active is a
// no-op error, never a double-armed timer.
func (s *Sampler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active.Load() {
		return ErrAlreadyActive
	}

	log.Printf("sampling: starting continuous sampling at %d Hz", s.frequencyHz)
	s.active.Store(true)
	s.ticker = time.NewTicker(time.Second / time.Duration(s.frequencyHz))
	s.tickStop = make(chan struct{})
	go s.forwardTicks(s.ticker, s.tickStop)
	return nil
}

// Stop disarms the tick source. After it returns, at most one sample already
// past the worker's active check may still publish.
func (s *Sampler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active.Load() {
		return ErrNotActive
	}

	log.Println("sampling: stopping continuous sampling")
	s.active.Store(false)
	s.ticker.Stop()
	close(s.tickStop)
	return nil
}

// SetPrintEnabled toggles the diagnostic echo of raw values. It may be
// flipped at any time, including mid-session; it never affects the published
// channel contents.
func (s *Sampler) SetPrintEnabled(enabled bool) {
	s.printEnabled.Store(enabled)
}

func (s *Sampler) forwardTicks(ticker *time.Ticker, stop chan struct{}) {
	for {
		select {
		case <-ticker.C:
			select {
			case s.trigger <- struct{}{}:
			default:
				// Worker still busy with the previous tick, coalesce.
			}
		case <-stop:
			return
		}
	}
}

func (s *Sampler) worker() {
	for range s.trigger {
		if !s.active.Load() {
			// A stop raced this tick, drop the token.
			continue
		}

		sample, err := s.sensor.ReadSample()
		if err != nil {
			log.Printf("sampling: read sample: %v", err)
			continue
		}

		if err := s.samples.Publish(sample); err != nil {
			log.Printf("sampling: publish: %v", err)
		}

		if s.printEnabled.Load() {
			fmt.Fprintf(s.echo, "%f,%f,%f,%f,%f,%f\n",
				sample.AccelX, sample.AccelY, sample.AccelZ,
				sample.GyroX, sample.GyroY, sample.GyroZ)
		}
	}
}
