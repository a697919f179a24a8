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

package protocol

import (
	"fmt"
	"math"
)

// Register is a 16 bit register address of the device. It is sent on the
// wire most-significant byte first.
type Register uint16

// Registers used by the update protocol.
const (
	// RegPlatformID holds the platform identifier (read only)
	RegPlatformID Register = 0x0
	// RegCommandPort receives command frames (write only)
	RegCommandPort Register = 0x3
	// RegCommandStatus reflects the outcome of the last command
	RegCommandStatus Register = 0x4
	// RegUpdateStatus reflects the progress of the firmware commit
	RegUpdateStatus Register = 0x5
)

func (r Register) String() string {
	switch r {
	case RegPlatformID:
		return "PLATFORM_ID"
	case RegCommandPort:
		return "COMMAND_PORT"
	case RegCommandStatus:
		return "COMMAND_STATUS"
	case RegUpdateStatus:
		return "UPDATE_STATUS"
	default:
		return fmt.Sprintf("0x%04x", uint16(r))
	}
}

// Command header constants.
const (
	HeaderMajorVersion = 1
	HeaderMinorVersion = 0

	// HeaderSize is major(1) + minor(1) + command(1) + reserved(1) + length(4)
	HeaderSize = 8

	// WriteOverhead is register(2) + checksum(1) in front of every written frame
	WriteOverhead = 3

	// MaxPageSize is the largest page whose UPLOAD_BLOCK write fits in a
	// single I2C message.
	MaxPageSize = math.MaxUint16 - HeaderSize - WriteOverhead
)

// Response sizes, checksum byte included.
const (
	PlatformIDSize    = 3
	CommandStatusSize = 4
	UpdateStatusSize  = 3
)

// CommandCode identifies a command written to the command port.
type CommandCode byte

const (
	// CmdStartFWUpdate announces a new image with its type and size
	CmdStartFWUpdate CommandCode = 0x0
	// CmdUploadBlock carries one page of the image
	CmdUploadBlock CommandCode = 0x1
)

func (c CommandCode) String() string {
	switch c {
	case CmdStartFWUpdate:
		return "START_FW_UPDATE"
	case CmdUploadBlock:
		return "UPLOAD_BLOCK"
	default:
		return fmt.Sprintf("CMD(0x%02x)", byte(c))
	}
}

// Status is the command status code reported in the command status register.
type Status byte

const (
	StatusOK                 Status = 0x0
	StatusChecksumError      Status = 0x1
	StatusLengthMismatch     Status = 0x2
	StatusUnsupportedVersion Status = 0x3
	StatusBusy               Status = 0x4
	StatusFlashError         Status = 0x5
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "success"
	case StatusChecksumError:
		return "command checksum error"
	case StatusLengthMismatch:
		return "header/payload length mismatch"
	case StatusUnsupportedVersion:
		return "unsupported command header version"
	case StatusBusy:
		return "busy, a backend task is running"
	case StatusFlashError:
		return "flash error"
	default:
		return fmt.Sprintf("unknown status 0x%02x", byte(s))
	}
}

// UpdateCode is the status code reported in the update status register.
type UpdateCode byte

const (
	UpdateComplete           UpdateCode = 0x0a
	UpdateInProgress         UpdateCode = 0x0b
	UpdateInvalidHeader      UpdateCode = 0x0c
	UpdateFirmwareIDMismatch UpdateCode = 0x0d
	UpdateInit               UpdateCode = 0x16
)

func (c UpdateCode) String() string {
	switch c {
	case UpdateComplete:
		return "complete"
	case UpdateInProgress:
		return "in progress"
	case UpdateInvalidHeader:
		return "invalid firmware header"
	case UpdateFirmwareIDMismatch:
		return "firmware ID mismatch"
	case UpdateInit:
		return "initializing"
	default:
		return fmt.Sprintf("unknown update status 0x%02x", byte(c))
	}
}
