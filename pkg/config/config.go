// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads the atbridge YAML configuration file
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/Thermoquad/atbridge/pkg/hspi"
	"gopkg.in/yaml.v3"
)

// Link drivers
const (
	DriverSim    = "sim"
	DriverSerial = "serial"
	DriverSpidev = "spidev"
)

// Config is the file layout
type Config struct {
	Link    Link    `yaml:"link"`
	WiFi    WiFi    `yaml:"wifi"`
	MQTT    MQTT    `yaml:"mqtt"`
	Serve   Serve   `yaml:"serve"`
	Capture Capture `yaml:"capture"`
}

// Link selects and tunes the hardware behind the engine
type Link struct {
	Driver           string        `yaml:"driver"`
	Port             string        `yaml:"port,omitempty"`
	Baud             int           `yaml:"baud"`
	Spidev           string        `yaml:"spidev,omitempty"`
	HandshakePin     string        `yaml:"handshake_pin,omitempty"`
	SPIClockHz       uint32        `yaml:"spi_clock_hz"`
	CPUFrequencyHz   uint32        `yaml:"cpu_frequency_hz"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	SettleIterations uint32        `yaml:"settle_iterations"`
	LegacySendOnly   bool          `yaml:"legacy_send_only,omitempty"`
}

// WiFi holds the access point used by the join command
type WiFi struct {
	SSID     string `yaml:"ssid,omitempty"`
	Password string `yaml:"password,omitempty"`
}

// MQTT configures the mqtt bridge command
type MQTT struct {
	Broker   string `yaml:"broker"`
	Topic    string `yaml:"topic"`
	ClientID string `yaml:"client_id,omitempty"`
	Username string `yaml:"username,omitempty"`
	QoS      byte   `yaml:"qos"`
}

// Serve configures the websocket console server
type Serve struct {
	Listen     string `yaml:"listen"`
	Username   string `yaml:"username,omitempty"`
	MaxClients int    `yaml:"max_clients"`
}

// Capture names a file that records every engine event
type Capture struct {
	File string `yaml:"file,omitempty"`
}

// Default returns the configuration used when no file exists
func Default() *Config {
	return &Config{
		Link: Link{
			Driver:           DriverSerial,
			Baud:             hspi.DefaultUARTBaudRate,
			HandshakePin:     "GPIO25",
			SPIClockHz:       hspi.DefaultSPIClockHz,
			CPUFrequencyHz:   hspi.DefaultCPUFrequencyHz,
			SettleIterations: hspi.DelayLong,
		},
		MQTT: MQTT{
			Broker: "tcp://localhost:1883",
			Topic:  "atbridge",
		},
		Serve: Serve{
			Listen:     ":8080",
			MaxClients: 4,
		},
	}
}

// DefaultPath returns ~/.config/atbridge/config.yaml
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		home, _ := os.UserHomeDir()
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "atbridge", "config.yaml")
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks values the engine cannot work with
func (c *Config) Validate() error {
	switch c.Link.Driver {
	case DriverSim, DriverSerial, DriverSpidev:
	default:
		return fmt.Errorf("unknown link driver %q (use sim, serial or spidev)", c.Link.Driver)
	}
	if _, err := hspi.Divider(c.Link.CPUFrequencyHz, c.Link.SPIClockHz); err != nil {
		return fmt.Errorf("link: %w", err)
	}
	if c.Link.HandshakeTimeout < 0 {
		return fmt.Errorf("link: negative handshake_timeout")
	}
	if c.Serve.MaxClients < 1 {
		return fmt.Errorf("serve: max_clients must be at least 1")
	}
	if c.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt: qos must be 0, 1 or 2")
	}
	return nil
}

// Marshal encodes the configuration as YAML
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// Save writes the configuration to path, creating its directory
func (c *Config) Save(path string) error {
	data, err := c.Marshal()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	// The file may hold the WiFi password
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
