// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"log"
	"math"
	"time"

	"github.com/relabs-tech/motion_classifier/internal/imu"
)

// Mock generates smooth synthetic motion around gravity for off-hardware
// runs. It implements sampling.Sensor.
type Mock struct {
	start time.Time
}

func NewMock() *Mock {
	return &Mock{start: time.Now()}
}

func (m *Mock) Configure(rateHz int) error {
	log.Printf("imu: mock sensor, sample rate %d Hz", rateHz)
	return nil
}

func (m *Mock) ReadSample() (imu.Sample, error) {
	elapsed := time.Since(m.start).Seconds()

	return imu.Sample{
		AccelX: 0.6 * math.Sin(elapsed),
		AccelY: 0.4 * math.Cos(elapsed*0.7),
		AccelZ: 9.80665 + 0.2*math.Sin(elapsed*1.3),
		GyroX:  0.05 * math.Sin(elapsed*0.9),
		GyroY:  0.05 * math.Cos(elapsed*1.1),
		GyroZ:  0.02 * math.Sin(elapsed*0.5),
	}, nil
}
