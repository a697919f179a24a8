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

import "fmt"

// CommandStatus is the content of RegCommandStatus:
//
//	[CHECKSUM][ECHOED_CHECKSUM][COMMAND][STATUS]
//
// Checksum protects the three following bytes; EchoedChecksum is the
// checksum the device computed over the last command it received.
type CommandStatus struct {
	Checksum       byte
	EchoedChecksum byte
	Command        CommandCode
	Status         Status
}

func (s CommandStatus) String() string {
	return fmt.Sprintf("command=%s status=%s echoed_checksum=0x%02x", s.Command, s.Status, s.EchoedChecksum)
}

// UpdateStatus is the content of RegUpdateStatus:
//
//	[CHECKSUM][COUNTER][CODE]
type UpdateStatus struct {
	Checksum byte
	Counter  byte
	Code     UpdateCode
}

func (s UpdateStatus) String() string {
	return fmt.Sprintf("code=%s counter=%d", s.Code, s.Counter)
}

// PlatformID identifies the board family.
type PlatformID uint16

func (id PlatformID) String() string {
	return fmt.Sprintf("0x%04x", uint16(id))
}

// DecodeCommandStatus parses a RegCommandStatus readback. Only the length is
// validated.
func DecodeCommandStatus(data []byte) (CommandStatus, error) {
	if len(data) != CommandStatusSize {
		return CommandStatus{}, fmt.Errorf("invalid command status length: got %d bytes, expected %d", len(data), CommandStatusSize)
	}
	return CommandStatus{
		Checksum:       data[0],
		EchoedChecksum: data[1],
		Command:        CommandCode(data[2]),
		Status:         Status(data[3]),
	}, nil
}

// DecodeUpdateStatus parses a RegUpdateStatus readback. Only the length is
// validated.
func DecodeUpdateStatus(data []byte) (UpdateStatus, error) {
	if len(data) != UpdateStatusSize {
		return UpdateStatus{}, fmt.Errorf("invalid update status length: got %d bytes, expected %d", len(data), UpdateStatusSize)
	}
	return UpdateStatus{
		Checksum: data[0],
		Counter:  data[1],
		Code:     UpdateCode(data[2]),
	}, nil
}

// DecodePlatformID parses a RegPlatformID readback: [CHECKSUM][MSB][LSB].
func DecodePlatformID(data []byte) (PlatformID, error) {
	if len(data) != PlatformIDSize {
		return 0, fmt.Errorf("invalid platform ID length: got %d bytes, expected %d", len(data), PlatformIDSize)
	}
	return PlatformID(uint16(data[1])<<8 | uint16(data[2])), nil
}

// EncodeResponse prefixes data with its checksum, the way the device frames
// every register readback.
func EncodeResponse(data ...byte) []byte {
	return append([]byte{Checksum(data)}, data...)
}
