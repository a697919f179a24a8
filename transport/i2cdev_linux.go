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

//go:build linux

package transport

import (
	"fmt"
	"math"
	"runtime"
	"unsafe"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// from <linux/i2c-dev.h> and <linux/i2c.h>
const (
	i2cRdwr   = 0x0707
	i2cFlagRd = 0x0001
)

// i2cMsg mirrors struct i2c_msg.
type i2cMsg struct {
	addr  uint16
	flags uint16
	len   uint16
	buf   unsafe.Pointer
}

// i2cRdwrData mirrors struct i2c_rdwr_ioctl_data.
type i2cRdwrData struct {
	msgs  unsafe.Pointer
	nmsgs uint32
}

// I2CDev is a Linux i2c-dev character device (/dev/i2c-N).
type I2CDev struct {
	path string
	fd   int
}

// Open opens /dev/i2c-<busID>.
func Open(busID int) (Bus, error) {
	path := fmt.Sprintf("/dev/i2c-%d", busID)
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	logrus.Infof("Opened i2c bus %s", path)
	return &I2CDev{path: path, fd: fd}, nil
}

// Write implements Bus
func (d *I2CDev) Write(addr uint16, w []byte) error {
	msg, err := message(addr, 0, w)
	if err != nil {
		return err
	}
	return d.transfer([]i2cMsg{msg})
}

// WriteRead implements Bus
func (d *I2CDev) WriteRead(addr uint16, w []byte, r []byte) error {
	wmsg, err := message(addr, 0, w)
	if err != nil {
		return err
	}
	rmsg, err := message(addr, i2cFlagRd, r)
	if err != nil {
		return err
	}
	return d.transfer([]i2cMsg{wmsg, rmsg})
}

// Close implements Bus
func (d *I2CDev) Close() error {
	if d.fd < 0 {
		return nil
	}
	err := unix.Close(d.fd)
	d.fd = -1
	return err
}

func (d *I2CDev) String() string {
	return d.path
}

func message(addr uint16, flags uint16, buf []byte) (i2cMsg, error) {
	if len(buf) > math.MaxUint16 {
		return i2cMsg{}, fmt.Errorf("i2c message of %d bytes exceeds the maximum of %d", len(buf), math.MaxUint16)
	}
	msg := i2cMsg{addr: addr, flags: flags, len: uint16(len(buf))}
	if len(buf) > 0 {
		msg.buf = unsafe.Pointer(&buf[0])
	}
	return msg, nil
}

func (d *I2CDev) transfer(msgs []i2cMsg) error {
	if d.fd < 0 {
		return fmt.Errorf("%s: bus closed", d.path)
	}
	data := i2cRdwrData{
		msgs:  unsafe.Pointer(&msgs[0]),
		nmsgs: uint32(len(msgs)),
	}
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(d.fd), i2cRdwr, uintptr(unsafe.Pointer(&data)))
	runtime.KeepAlive(msgs)
	runtime.KeepAlive(&data)
	if errno != 0 {
		return fmt.Errorf("i2c transfer on %s: %w", d.path, errno)
	}
	return nil
}
