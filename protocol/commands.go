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
	"encoding/binary"
	"fmt"
)

// Command is a logical command written to RegCommandPort.
type Command struct {
	Code     CommandCode
	Reserved byte
	Payload  []byte
}

func (c *Command) String() string {
	return fmt.Sprintf("%s, reserved=%d, payload_length=%d", c.Code, c.Reserved, len(c.Payload))
}

// Bytes returns the command frame:
//
//	[MAJOR][MINOR][CMD][RESERVED][LEN(4, big-endian)][PAYLOAD...]
func (c *Command) Bytes() []byte {
	frame := make([]byte, HeaderSize, HeaderSize+len(c.Payload))
	frame[0] = HeaderMajorVersion
	frame[1] = HeaderMinorVersion
	frame[2] = byte(c.Code)
	frame[3] = c.Reserved
	binary.BigEndian.PutUint32(frame[4:HeaderSize], uint32(len(c.Payload)))
	return append(frame, c.Payload...)
}

// NewStartUpdateCommand builds the START_FW_UPDATE command. The payload is
//
//	[FW_TYPE][0][IMAGE_SIZE(4, big-endian)]
//
// for a frame of 14 bytes in total.
func NewStartUpdateCommand(fwType FirmwareType, imageSize uint32) *Command {
	payload := make([]byte, 6)
	payload[0] = byte(fwType)
	binary.BigEndian.PutUint32(payload[2:], imageSize)
	return &Command{Code: CmdStartFWUpdate, Payload: payload}
}

// NewUploadBlockCommand builds the UPLOAD_BLOCK command carrying block.
func NewUploadBlockCommand(block []byte) *Command {
	return &Command{Code: CmdUploadBlock, Payload: block}
}

// DecodeCommand parses a command frame produced by Command.Bytes.
func DecodeCommand(frame []byte) (*Command, error) {
	if len(frame) < HeaderSize {
		return nil, fmt.Errorf("command frame too short: got %d bytes, minimum is %d", len(frame), HeaderSize)
	}
	if frame[0] != HeaderMajorVersion || frame[1] != HeaderMinorVersion {
		return nil, fmt.Errorf("unsupported command header version %d.%d", frame[0], frame[1])
	}
	length := binary.BigEndian.Uint32(frame[4:HeaderSize])
	if int(length) != len(frame)-HeaderSize {
		return nil, fmt.Errorf("command payload length mismatch: header says %d, got %d", length, len(frame)-HeaderSize)
	}
	return &Command{
		Code:     CommandCode(frame[2]),
		Reserved: frame[3],
		Payload:  frame[HeaderSize:],
	}, nil
}

// EncodeReadHeader returns the address bytes sent before reading reg.
func EncodeReadHeader(reg Register) []byte {
	return []byte{byte(reg >> 8), byte(reg)}
}

// EncodeWrite returns the bytes of a write transaction to reg:
//
//	[REG_MSB][REG_LSB][CHECKSUM][PAYLOAD...]
//
// The checksum covers payload only and is returned so that it can be
// compared with the value echoed by the device.
func EncodeWrite(reg Register, payload []byte) ([]byte, byte) {
	checksum := Checksum(payload)
	data := make([]byte, 0, WriteOverhead+len(payload))
	data = append(data, byte(reg>>8), byte(reg), checksum)
	return append(data, payload...), checksum
}

// DecodeWrite splits a write transaction produced by EncodeWrite.
func DecodeWrite(data []byte) (reg Register, checksum byte, payload []byte, err error) {
	if len(data) < 3 {
		return 0, 0, nil, fmt.Errorf("write transaction too short: %d bytes", len(data))
	}
	return Register(binary.BigEndian.Uint16(data[0:2])), data[2], data[3:], nil
}
