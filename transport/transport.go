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

// Package transport gives access to the register-addressed bus the device
// sits on. A Bus only moves bytes: framing, checksums and retries belong to
// the callers.
package transport

import "fmt"

// DefaultDeviceAddress is the 7-bit bus address of the update agent.
const DefaultDeviceAddress = 0x55

// Bus is an open bus handle. Implementations are not safe for concurrent use
// and must be held exclusively for the whole update session.
type Bus interface {
	// Write performs a write-only transaction to the device at addr.
	Write(addr uint16, w []byte) error
	// WriteRead writes w and then reads len(r) bytes into r in a single
	// combined transaction (repeated start, no stop in between).
	WriteRead(addr uint16, w []byte, r []byte) error
	// Close releases the bus.
	Close() error
}

// ErrUnsupported is returned by Open on platforms without a bus driver.
type ErrUnsupported struct {
	OS string
}

func (e ErrUnsupported) Error() string {
	return fmt.Sprintf("i2c bus access is not supported on %s", e.OS)
}
