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
	"github.com/arduino/i2c-fwupdater/transport"
)

// fakeDevice simulates the register file of the device.
type fakeDevice struct {
	platform protocol.PlatformID

	// status reported before any command is written
	initialStatus protocol.Status
	// status reported after START_FW_UPDATE
	startStatus protocol.Status
	// status reported after the UPLOAD_BLOCK of a given block
	blockStatus map[int]protocol.Status
	// number of busy readbacks after the UPLOAD_BLOCK of a given block
	busyOnBlock map[int]int
	// blocks whose echoed checksum is altered
	corruptEcho map[int]bool
	// update status codes returned by successive polls, the last one repeats
	updateCodes []protocol.UpdateCode

	// number of upcoming reads failing at bus level
	readErrors int
	// number of upcoming readbacks with a wrong checksum byte
	corruptReads int

	commands    []*protocol.Command
	status      protocol.CommandStatus
	busyLeft    int
	updateReads int
	reads       []protocol.Register
	closed      bool
}

var _ transport.Bus = (*fakeDevice)(nil)

func newFakeDevice() *fakeDevice {
	return &fakeDevice{
		platform:    DefaultPlatformID,
		blockStatus: map[int]protocol.Status{},
		busyOnBlock: map[int]int{},
		corruptEcho: map[int]bool{},
		updateCodes: []protocol.UpdateCode{protocol.UpdateComplete},
	}
}

func (f *fakeDevice) blocks() []*protocol.Command {
	res := []*protocol.Command{}
	for _, cmd := range f.commands {
		if cmd.Code == protocol.CmdUploadBlock {
			res = append(res, cmd)
		}
	}
	return res
}

func (f *fakeDevice) Write(addr uint16, w []byte) error {
	if addr != transport.DefaultDeviceAddress {
		return fmt.Errorf("no device at 0x%02x", addr)
	}
	reg, checksum, payload, err := protocol.DecodeWrite(w)
	if err != nil {
		return err
	}
	if reg != protocol.RegCommandPort {
		return fmt.Errorf("register %s is read only", reg)
	}
	cmd, err := protocol.DecodeCommand(payload)
	if err != nil {
		return err
	}
	if checksum != protocol.Checksum(payload) {
		return errors.New("bad frame checksum")
	}

	status := protocol.CommandStatus{Command: cmd.Code, EchoedChecksum: checksum}
	switch cmd.Code {
	case protocol.CmdStartFWUpdate:
		status.Status = f.startStatus
	case protocol.CmdUploadBlock:
		block := len(f.blocks())
		status.Status = f.blockStatus[block]
		if f.corruptEcho[block] {
			status.EchoedChecksum ^= 0xff
		}
		f.busyLeft = f.busyOnBlock[block]
	}
	f.commands = append(f.commands, cmd)
	f.status = status
	return nil
}

func (f *fakeDevice) WriteRead(addr uint16, w []byte, r []byte) error {
	if addr != transport.DefaultDeviceAddress {
		return fmt.Errorf("no device at 0x%02x", addr)
	}
	if f.readErrors > 0 {
		f.readErrors--
		return errors.New("remote I/O error")
	}
	if len(w) != 2 {
		return fmt.Errorf("invalid read header % x", w)
	}
	reg := protocol.Register(uint16(w[0])<<8 | uint16(w[1]))
	f.reads = append(f.reads, reg)

	var data []byte
	switch reg {
	case protocol.RegPlatformID:
		data = protocol.EncodeResponse(byte(f.platform>>8), byte(f.platform))
	case protocol.RegCommandStatus:
		st := f.status
		if len(f.commands) == 0 {
			st.Status = f.initialStatus
		}
		if f.busyLeft > 0 {
			f.busyLeft--
			st.Status = protocol.StatusBusy
		}
		data = protocol.EncodeResponse(st.EchoedChecksum, byte(st.Command), byte(st.Status))
	case protocol.RegUpdateStatus:
		idx := f.updateReads
		if idx >= len(f.updateCodes) {
			idx = len(f.updateCodes) - 1
		}
		f.updateReads++
		data = protocol.EncodeResponse(byte(f.updateReads), byte(f.updateCodes[idx]))
	default:
		return fmt.Errorf("register %s is not readable", reg)
	}

	if f.corruptReads > 0 {
		f.corruptReads--
		data[0] ^= 0xff
	}
	if len(data) != len(r) {
		return fmt.Errorf("read of %d bytes from %s, %d available", len(r), reg, len(data))
	}
	copy(r, data)
	return nil
}

func (f *fakeDevice) Close() error {
	f.closed = true
	return nil
}

type fakeClock struct {
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) Sleep(d time.Duration) {
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
}

func (c *fakeClock) count(d time.Duration) int {
	n := 0
	for _, s := range c.sleeps {
		if s == d {
			n++
		}
	}
	return n
}
