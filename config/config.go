/*
	i2c-fwupdater
	Copyright (c) 2024 Arduino LLC.  All right reserved.

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU Affero General Public License as published
	by the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU Affero General Public License for more details.

	You should have received a copy of the GNU Affero General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

// Package config loads the updater settings from a YAML file:
//
//	address: 0x55
//	platform_id: 0x4612
//	page_size: 128
//	sector_size: 4096
//	transport_retry:
//	  attempts: 3
//	  interval: 5s
//	start_settle: 1s
//	sector_settle: 100ms
//	busy_interval: 10s
//	busy_timeout: 5m
//	progress_interval: 5s
//	progress_timeout: 30m
//
// Missing keys keep their default value.
package config

import (
	"fmt"
	"time"

	"github.com/arduino/go-paths-helper"
	"github.com/arduino/i2c-fwupdater/flasher"
	"github.com/arduino/i2c-fwupdater/protocol"
	"gopkg.in/yaml.v3"
)

type Retry struct {
	Attempts int      `yaml:"attempts"`
	Interval Duration `yaml:"interval"`
}

type Config struct {
	Address          uint16   `yaml:"address"`
	PlatformID       uint16   `yaml:"platform_id"`
	PageSize         int      `yaml:"page_size"`
	SectorSize       int      `yaml:"sector_size"`
	TransportRetry   Retry    `yaml:"transport_retry"`
	StartSettle      Duration `yaml:"start_settle"`
	SectorSettle     Duration `yaml:"sector_settle"`
	BusyInterval     Duration `yaml:"busy_interval"`
	BusyTimeout      Duration `yaml:"busy_timeout"`
	ProgressInterval Duration `yaml:"progress_interval"`
	ProgressTimeout  Duration `yaml:"progress_timeout"`
}

// Duration is a time.Duration written as "5s" in YAML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: invalid duration %q", value.Line, s)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Default returns the settings matching the device firmware.
func Default() *Config {
	return FromUpdaterConfig(flasher.DefaultConfig())
}

// FromUpdaterConfig converts cfg into its file representation.
func FromUpdaterConfig(cfg flasher.Config) *Config {
	return &Config{
		Address:    cfg.Address,
		PlatformID: uint16(cfg.PlatformID),
		PageSize:   cfg.PageSize,
		SectorSize: cfg.SectorSize,
		TransportRetry: Retry{
			Attempts: cfg.Retry.Attempts,
			Interval: Duration(cfg.Retry.Interval),
		},
		StartSettle:      Duration(cfg.StartSettle),
		SectorSettle:     Duration(cfg.SectorSettle),
		BusyInterval:     Duration(cfg.BusyInterval),
		BusyTimeout:      Duration(cfg.BusyTimeout),
		ProgressInterval: Duration(cfg.ProgressInterval),
		ProgressTimeout:  Duration(cfg.ProgressTimeout),
	}
}

// Load reads the config file at path on top of the defaults.
func Load(path *paths.Path) (*Config, error) {
	data, err := path.ReadFile()
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the config to path.
func (c *Config) Save(path *paths.Path) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return path.WriteFile(data)
}

func (c *Config) Validate() error {
	if c.Address == 0 || c.Address > 0x7f {
		return fmt.Errorf("device address 0x%02x is not a 7-bit I2C address", c.Address)
	}
	if c.PageSize <= 0 {
		return fmt.Errorf("page size must be positive")
	}
	if c.PageSize > protocol.MaxPageSize {
		return fmt.Errorf("page size %d exceeds the maximum of %d bytes per I2C transfer", c.PageSize, protocol.MaxPageSize)
	}
	if c.SectorSize < c.PageSize || c.SectorSize%c.PageSize != 0 {
		return fmt.Errorf("sector size %d is not a multiple of the page size %d", c.SectorSize, c.PageSize)
	}
	if c.TransportRetry.Attempts < 1 {
		return fmt.Errorf("transport retry attempts must be at least 1")
	}
	for name, d := range map[string]Duration{
		"transport_retry.interval": c.TransportRetry.Interval,
		"start_settle":             c.StartSettle,
		"sector_settle":            c.SectorSettle,
		"busy_interval":            c.BusyInterval,
		"progress_interval":        c.ProgressInterval,
	} {
		if d < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	return nil
}

// UpdaterConfig converts the settings for flasher.New.
func (c *Config) UpdaterConfig() flasher.Config {
	return flasher.Config{
		Address:    c.Address,
		PlatformID: protocol.PlatformID(c.PlatformID),
		PageSize:   c.PageSize,
		SectorSize: c.SectorSize,
		Retry: flasher.RetryPolicy{
			Attempts: c.TransportRetry.Attempts,
			Interval: time.Duration(c.TransportRetry.Interval),
		},
		StartSettle:      time.Duration(c.StartSettle),
		SectorSettle:     time.Duration(c.SectorSettle),
		BusyInterval:     time.Duration(c.BusyInterval),
		BusyTimeout:      time.Duration(c.BusyTimeout),
		ProgressInterval: time.Duration(c.ProgressInterval),
		ProgressTimeout:  time.Duration(c.ProgressTimeout),
	}
}
