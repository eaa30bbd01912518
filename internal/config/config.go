// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
)

// Config holds all application configuration values.
type Config struct {
	// MQTT mirror (disabled when MQTTBroker is empty)
	MQTTBroker          string
	MQTTClientIDDevice  string
	MQTTClientIDConsole string

	// Topics
	TopicIMUSamples string
	TopicDetections string
	TopicMode       string

	// Button
	ButtonGPIOPin              string
	ButtonDebounceMS           int
	ButtonLongPressTimeoutMS   int
	ButtonDoublePressTimeoutMS int

	// Sampling
	SamplingFrequencyHz int

	// IMU hardware
	IMUMock      bool
	IMUSPIDevice string
	// Accelerometer: 0=±2g, 1=±4g, 2=±8g, 3=±16g
	IMUAccelRange byte
	// Gyroscope: 0=±250°/s, 1=±500°/s, 2=±1000°/s, 3=±2000°/s
	IMUGyroRange byte

	// Detection
	DetectionWindowSize int

	// Raw echo side output (stdout when RawEchoSerialPort is empty)
	RawEchoSerialPort string
	RawEchoBaudRate   int

	// Web status server (disabled when 0)
	WebServerPort int

	// Display
	DisplayEnabled          bool
	DisplayUpdateIntervalMS int
}

// Package-level unexported variables for the singleton pattern: globalConfig
// is only settable through InitGlobal (sync.Once) and read through Get under
// the RWMutex, so goroutines never observe a half-built config.
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// defaults returns a Config pre-filled with the device defaults; a config
// file only needs the keys it wants to override.
func defaults() *Config {
	return &Config{
		MQTTClientIDDevice:  "motion-classifier-device",
		MQTTClientIDConsole: "motion-classifier-console",

		TopicIMUSamples: "motion/imu",
		TopicDetections: "motion/detections",
		TopicMode:       "motion/mode",

		ButtonGPIOPin:              "GPIO17",
		ButtonDebounceMS:           30,
		ButtonLongPressTimeoutMS:   600,
		ButtonDoublePressTimeoutMS: 300,

		SamplingFrequencyHz: 100,

		IMUSPIDevice: "/dev/spidev0.0",

		DetectionWindowSize: 50,

		RawEchoBaudRate: 115200,

		WebServerPort: 8080,

		DisplayUpdateIntervalMS: 500,
	}
}

// Load reads the configuration file and returns a Config struct.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	cfg := defaults()
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=VALUE
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if err := cfg.setValue(key, value); err != nil {
			return nil, fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	switch key {
	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID_DEVICE":
		c.MQTTClientIDDevice = value
	case "MQTT_CLIENT_ID_CONSOLE":
		c.MQTTClientIDConsole = value

	// Topics
	case "TOPIC_IMU_SAMPLES":
		c.TopicIMUSamples = value
	case "TOPIC_DETECTIONS":
		c.TopicDetections = value
	case "TOPIC_MODE":
		c.TopicMode = value

	// Button
	case "BUTTON_GPIO_PIN":
		c.ButtonGPIOPin = value
	case "BUTTON_DEBOUNCE_MS":
		ms, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid BUTTON_DEBOUNCE_MS %q: %w", value, err)
		}
		c.ButtonDebounceMS = ms
	case "BUTTON_LONG_PRESS_TIMEOUT_MS":
		ms, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid BUTTON_LONG_PRESS_TIMEOUT_MS %q: %w", value, err)
		}
		c.ButtonLongPressTimeoutMS = ms
	case "BUTTON_DOUBLE_PRESS_TIMEOUT_MS":
		ms, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid BUTTON_DOUBLE_PRESS_TIMEOUT_MS %q: %w", value, err)
		}
		c.ButtonDoublePressTimeoutMS = ms

	// Sampling
	case "SAMPLING_FREQUENCY_HZ":
		hz, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid SAMPLING_FREQUENCY_HZ %q: %w", value, err)
		}
		c.SamplingFrequencyHz = hz

	// IMU hardware
	case "IMU_MOCK":
		mock, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid IMU_MOCK %q: %w", value, err)
		}
		c.IMUMock = mock
	case "IMU_SPI_DEVICE":
		c.IMUSPIDevice = value
	case "IMU_ACCEL_RANGE":
		rangeVal, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid IMU_ACCEL_RANGE %q: %w", value, err)
		}
		if rangeVal < 0 || rangeVal > 3 {
			return fmt.Errorf("IMU_ACCEL_RANGE must be 0-3 (0=±2g, 1=±4g, 2=±8g, 3=±16g), got %d", rangeVal)
		}
		c.IMUAccelRange = byte(rangeVal)
	case "IMU_GYRO_RANGE":
		rangeVal, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid IMU_GYRO_RANGE %q: %w", value, err)
		}
		if rangeVal < 0 || rangeVal > 3 {
			return fmt.Errorf("IMU_GYRO_RANGE must be 0-3 (0=±250°/s, 1=±500°/s, 2=±1000°/s, 3=±2000°/s), got %d", rangeVal)
		}
		c.IMUGyroRange = byte(rangeVal)

	// Detection
	case "DETECTION_WINDOW_SIZE":
		size, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid DETECTION_WINDOW_SIZE %q: %w", value, err)
		}
		if size <= 0 {
			return fmt.Errorf("DETECTION_WINDOW_SIZE must be positive, got %d", size)
		}
		c.DetectionWindowSize = size

	// Raw echo
	case "RAW_ECHO_SERIAL_PORT":
		c.RawEchoSerialPort = value
	case "RAW_ECHO_BAUD_RATE":
		rate, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid RAW_ECHO_BAUD_RATE %q: %w", value, err)
		}
		c.RawEchoBaudRate = rate

	// Web server
	case "WEB_SERVER_PORT":
		port, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid WEB_SERVER_PORT %q: %w", value, err)
		}
		c.WebServerPort = port

	// Display
	case "DISPLAY_ENABLED":
		enabled, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid DISPLAY_ENABLED %q: %w", value, err)
		}
		c.DisplayEnabled = enabled
	case "DISPLAY_UPDATE_INTERVAL_MS":
		interval, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid DISPLAY_UPDATE_INTERVAL_MS %q: %w", value, err)
		}
		c.DisplayUpdateIntervalMS = interval

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return nil
}

// validate checks that the configured values are usable.
func (c *Config) validate() error {
	if c.ButtonDebounceMS <= 0 {
		return fmt.Errorf("BUTTON_DEBOUNCE_MS must be positive")
	}
	if c.ButtonLongPressTimeoutMS <= 0 {
		return fmt.Errorf("BUTTON_LONG_PRESS_TIMEOUT_MS must be positive")
	}
	if c.ButtonDoublePressTimeoutMS <= 0 {
		return fmt.Errorf("BUTTON_DOUBLE_PRESS_TIMEOUT_MS must be positive")
	}
	if c.ButtonLongPressTimeoutMS <= c.ButtonDoublePressTimeoutMS {
		return fmt.Errorf("BUTTON_LONG_PRESS_TIMEOUT_MS must exceed BUTTON_DOUBLE_PRESS_TIMEOUT_MS")
	}
	if c.SamplingFrequencyHz <= 0 || c.SamplingFrequencyHz > 1000 {
		return fmt.Errorf("SAMPLING_FREQUENCY_HZ must be 1-1000, got %d", c.SamplingFrequencyHz)
	}
	if !c.IMUMock && c.IMUSPIDevice == "" {
		return fmt.Errorf("IMU_SPI_DEVICE is required unless IMU_MOCK is set")
	}
	if c.RawEchoBaudRate <= 0 {
		return fmt.Errorf("RAW_ECHO_BAUD_RATE must be positive")
	}
	return nil
}

// InitGlobal initializes the global configuration from file. Uses sync.Once
// so this only runs once, even if called multiple times.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance. InitGlobal must be called
// first, or this will return nil.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
