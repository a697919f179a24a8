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

package common

import (
	"fmt"

	"github.com/arduino/go-paths-helper"
	"github.com/arduino/i2c-fwupdater/cli/arguments"
	"github.com/arduino/i2c-fwupdater/cli/feedback"
	"github.com/arduino/i2c-fwupdater/config"
	"github.com/arduino/i2c-fwupdater/flasher"
	"github.com/arduino/i2c-fwupdater/transport"
	"github.com/sirupsen/logrus"
)

// CheckFlags runs a basic check, errors if the flags are not defined
func CheckFlags(flags *arguments.Flags) {
	if flags.Bus < 0 {
		feedback.Fatal("Error: missing I2C bus number", feedback.ErrBadArgument)
	}
	logrus.Debugf("bus: %d, address: 0x%02x", flags.Bus, flags.Address)
}

// LoadConfig returns the defaults, overridden by the config file and then
// by the command line flags.
func LoadConfig(flags *arguments.Flags) (*config.Config, error) {
	cfg := config.Default()
	if flags.ConfigFile != "" {
		loaded, err := config.Load(paths.New(flags.ConfigFile))
		if err != nil {
			return nil, err
		}
		logrus.Infof("Using config file %s", flags.ConfigFile)
		cfg = loaded
	}
	if flags.Address != 0 {
		cfg.Address = flags.Address
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// OpenUpdater opens the I2C bus selected by flags and returns an updater
// configured for it.
func OpenUpdater(flags *arguments.Flags, opts ...flasher.Option) *flasher.Updater {
	CheckFlags(flags)
	cfg, err := LoadConfig(flags)
	if err != nil {
		feedback.Fatal(fmt.Sprintf("Error loading configuration: %s", err), feedback.ErrNoConfigFile)
	}
	bus, err := transport.Open(flags.Bus)
	if err != nil {
		feedback.Fatal(fmt.Sprintf("Error opening I2C bus %d: %s", flags.Bus, err), feedback.ErrGeneric)
	}
	opts = append([]flasher.Option{flasher.WithConfig(cfg.UpdaterConfig())}, opts...)
	return flasher.New(bus, opts...)
}
