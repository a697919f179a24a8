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

package flasher

import (
	"errors"
	"fmt"
	"time"

	"github.com/arduino/i2c-fwupdater/protocol"
)

var (
	// ErrDeviceBusy is returned when a backend task is already running on the
	// device before START_FW_UPDATE is sent.
	ErrDeviceBusy = errors.New("device busy: a backend task is running, try again later")
	// ErrInvalidFirmwareHeader is reported by the device after the upload.
	ErrInvalidFirmwareHeader = errors.New("firmware header is not valid")
	// ErrFirmwareIDMismatch is reported by the device when the image does not
	// match the firmware type sent with START_FW_UPDATE.
	ErrFirmwareIDMismatch = errors.New("firmware ID of the image doesn't match the firmware type of START_FW_UPDATE")
)

// TransportError is a bus failure that survived the retry policy.
type TransportError struct {
	Op       string
	Register protocol.Register
	Attempts int
	Err      error
}

func (e *TransportError) Error() string {
	if e.Attempts > 1 {
		return fmt.Sprintf("%s %s failed after %d attempts: %v", e.Op, e.Register, e.Attempts, e.Err)
	}
	return fmt.Sprintf("%s %s failed: %v", e.Op, e.Register, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ChecksumMismatchError means the device acknowledged something other than
// the command that was sent.
type ChecksumMismatchError struct {
	Page          int
	Command       protocol.CommandCode
	EchoedCommand protocol.CommandCode
	Sent          byte
	Echoed        byte
}

func (e *ChecksumMismatchError) Error() string {
	return fmt.Sprintf("%s for page %d not acknowledged: sent checksum 0x%02x, device echoed %s with checksum 0x%02x",
		e.Command, e.Page, e.Sent, e.EchoedCommand, e.Echoed)
}

type PlatformMismatchError struct {
	Expected protocol.PlatformID
	Actual   protocol.PlatformID
}

func (e *PlatformMismatchError) Error() string {
	return fmt.Sprintf("platform ID %s doesn't match the expected %s", e.Actual, e.Expected)
}

// StartRejectedError is returned when START_FW_UPDATE is not acknowledged.
type StartRejectedError struct {
	Status       protocol.CommandStatus
	ChecksumSent byte
}

func (e *StartRejectedError) Error() string {
	return fmt.Sprintf("START_FW_UPDATE rejected (%s, sent checksum 0x%02x)", e.Status, e.ChecksumSent)
}

// BlockRejectedError is returned when the device reports an error status for
// an UPLOAD_BLOCK command.
type BlockRejectedError struct {
	Page   int
	Status protocol.Status
}

func (e *BlockRejectedError) Error() string {
	return fmt.Sprintf("page %d rejected: %s", e.Page, e.Status)
}

// UnknownDeviceError carries an update status code with no known meaning.
type UnknownDeviceError struct {
	Code protocol.UpdateCode
}

func (e *UnknownDeviceError) Error() string {
	return fmt.Sprintf("firmware update failed with device error code 0x%02x", byte(e.Code))
}

// TimeoutError is returned when a polling loop exceeds its deadline.
type TimeoutError struct {
	Op    string
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout waiting for %s after %s", e.Op, e.After)
}

// FlasherError tells which phase of the update failed.
type FlasherError struct {
	Phase Phase
	Err   error
}

func (e *FlasherError) Error() string {
	return fmt.Sprintf("%s: %v", e.Phase, e.Err)
}

func (e *FlasherError) Unwrap() error {
	return e.Err
}
