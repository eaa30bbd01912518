// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"encoding/binary"
	"fmt"
	"log"
	"math"

	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/motion_classifier/internal/imu"
)

// MPU-6500 register addresses used by this driver.
const (
	regSmplrtDiv    = 0x19 // Sample Rate = Internal_Sample_Rate / (1 + SMPLRT_DIV)
	regConfig       = 0x1A // gyro DLPF
	regGyroConfig   = 0x1B
	regAccelConfig  = 0x1C
	regAccelConfig2 = 0x1D // accel DLPF
	regAccelXoutH   = 0x3B // start of the 14-byte accel/temp/gyro block
	regPwrMgmt1     = 0x6B
	regWhoAmI       = 0x75

	spiReadFlag = 0x80
)

// MPU6500 reads 6-axis samples over SPI. It implements sampling.Sensor.
type MPU6500 struct {
	port spi.PortCloser
	conn spi.Conn

	accelScale float64 // m/s² per LSB
	gyroScale  float64 // rad/s per LSB
}

// NewMPU6500 opens the SPI device, wakes the sensor, and applies the
// configured full-scale ranges. accelRange and gyroRange use the register
// encoding: 0=±2g..3=±16g and 0=±250°/s..3=±2000°/s.
func NewMPU6500(spiDev string, accelRange, gyroRange byte) (*MPU6500, error) {
	if accelRange > 3 || gyroRange > 3 {
		return nil, fmt.Errorf("imu: range out of bounds (accel=%d gyro=%d)", accelRange, gyroRange)
	}

	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("imu: periph host init: %w", err)
	}

	port, err := spireg.Open(spiDev)
	if err != nil {
		return nil, fmt.Errorf("imu: SPI open (%s): %w", spiDev, err)
	}
	conn, err := port.Connect(physic.MegaHertz, spi.Mode3, 8)
	if err != nil {
		port.Close()
		return nil, fmt.Errorf("imu: SPI connect: %w", err)
	}
	d := &MPU6500{port: port, conn: conn}

	id, err := d.readReg(regWhoAmI)
	if err != nil {
		port.Close()
		return nil, fmt.Errorf("imu: WHO_AM_I read: %w", err)
	}
	switch id {
	case 0x70, 0x71, 0x68: // MPU-6500 / MPU-9250 / MPU-6050
		log.Printf("imu: device ID 0x%02X on %s", id, spiDev)
	default:
		log.Printf("imu: WARNING: unexpected device ID 0x%02X on %s", id, spiDev)
	}

	// Wake from sleep, auto-select the best available clock source.
	if err := d.writeReg(regPwrMgmt1, 0x01); err != nil {
		port.Close()
		return nil, fmt.Errorf("imu: wake: %w", err)
	}

	if err := d.writeReg(regAccelConfig, accelRange<<3); err != nil {
		port.Close()
		return nil, fmt.Errorf("imu: set accel range: %w", err)
	}
	if err := d.writeReg(regGyroConfig, gyroRange<<3); err != nil {
		port.Close()
		return nil, fmt.Errorf("imu: set gyro range: %w", err)
	}

	accelFS := []float64{2, 4, 8, 16}[accelRange]        // g
	gyroFS := []float64{250, 500, 1000, 2000}[gyroRange] // °/s
	d.accelScale = accelFS * 9.80665 / 32768.0
	d.gyroScale = gyroFS * math.Pi / 180.0 / 32768.0

	log.Printf("imu: accelerometer range ±%gg, gyroscope range ±%g°/s", accelFS, gyroFS)
	return d, nil
}

// Configure sets the output data rate. The DLPF keeps the internal rate at
// 1 kHz, so the divider is 1000/rate - 1.
func (d *MPU6500) Configure(rateHz int) error {
	if rateHz < 4 || rateHz > 1000 {
		return fmt.Errorf("imu: unsupported sample rate %d Hz", rateHz)
	}

	if err := d.writeReg(regConfig, 0x03); err != nil { // gyro DLPF 41 Hz
		return fmt.Errorf("imu: set gyro DLPF: %w", err)
	}
	if err := d.writeReg(regAccelConfig2, 0x03); err != nil { // accel DLPF 41 Hz
		return fmt.Errorf("imu: set accel DLPF: %w", err)
	}

	div := byte(1000/rateHz - 1)
	if err := d.writeReg(regSmplrtDiv, div); err != nil {
		return fmt.Errorf("imu: set sample rate divider: %w", err)
	}

	log.Printf("imu: sample rate set to %d Hz (divider %d)", rateHz, div)
	return nil
}

// ReadSample burst-reads accelerometer, temperature, and gyroscope registers
// in one transaction and converts to m/s² and rad/s.
func (d *MPU6500) ReadSample() (imu.Sample, error) {
	w := make([]byte, 15)
	r := make([]byte, 15)
	w[0] = regAccelXoutH | spiReadFlag
	if err := d.conn.Tx(w, r); err != nil {
		return imu.Sample{}, fmt.Errorf("imu: burst read: %w", err)
	}

	raw := r[1:] // 14 bytes: accel xyz, temp, gyro xyz, big-endian int16 each
	ax := int16(binary.BigEndian.Uint16(raw[0:2]))
	ay := int16(binary.BigEndian.Uint16(raw[2:4]))
	az := int16(binary.BigEndian.Uint16(raw[4:6]))
	gx := int16(binary.BigEndian.Uint16(raw[8:10]))
	gy := int16(binary.BigEndian.Uint16(raw[10:12]))
	gz := int16(binary.BigEndian.Uint16(raw[12:14]))

	return imu.Sample{
		AccelX: float64(ax) * d.accelScale,
		AccelY: float64(ay) * d.accelScale,
		AccelZ: float64(az) * d.accelScale,
		GyroX:  float64(gx) * d.gyroScale,
		GyroY:  float64(gy) * d.gyroScale,
		GyroZ:  float64(gz) * d.gyroScale,
	}, nil
}

// Close releases the SPI port.
func (d *MPU6500) Close() error {
	return d.port.Close()
}

func (d *MPU6500) readReg(reg byte) (byte, error) {
	w := []byte{reg | spiReadFlag, 0}
	r := make([]byte, 2)
	if err := d.conn.Tx(w, r); err != nil {
		return 0, err
	}
	return r[1], nil
}

func (d *MPU6500) writeReg(reg, val byte) error {
	return d.conn.Tx([]byte{reg, val}, nil)
}
