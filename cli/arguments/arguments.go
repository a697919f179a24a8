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

package arguments

import (
	"github.com/spf13/cobra"
)

// Flags contains various common flags.
// This is useful so all flags used by commands that need
// this information are consistent with each other.
type Flags struct {
	Bus        int
	Address    uint16
	ConfigFile string
}

// AddToCommand adds the flags used to reach the device to the specified Command
func (f *Flags) AddToCommand(cmd *cobra.Command) {
	cmd.Flags().IntVarP(&f.Bus, "bus", "b", -1, "I2C bus number, e.g.: 1 for /dev/i2c-1")
	cmd.Flags().Uint16VarP(&f.Address, "address", "a", 0, "Device address on the bus, e.g.: 0x55 (defaults to the configured one)")
	cmd.Flags().StringVarP(&f.ConfigFile, "config", "c", "", "Path of a YAML file with the updater settings")
	cmd.MarkFlagRequired("bus")
}
