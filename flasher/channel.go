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
	"context"

	"github.com/arduino/i2c-fwupdater/metrics"
	"github.com/arduino/i2c-fwupdater/protocol"
	"github.com/arduino/i2c-fwupdater/transport"
	"github.com/sirupsen/logrus"
)

// Channel performs register transactions with the device.
type Channel struct {
	bus     transport.Bus
	address uint16
	retry   RetryPolicy
	clock   Clock
	metrics *metrics.Metrics
	log     *logrus.Entry
}

// NewChannel returns a Channel talking to the device at address on bus.
func NewChannel(bus transport.Bus, address uint16, retry RetryPolicy, clock Clock, m *metrics.Metrics, log *logrus.Entry) *Channel {
	if clock == nil {
		clock = SystemClock{}
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Channel{
		bus:     bus,
		address: address,
		retry:   retry,
		clock:   clock,
		metrics: m,
		log:     log,
	}
}

// ReadRegister reads n bytes from reg. Bus errors are retried according to
// the retry policy. A readback whose first byte is not the checksum of the
// others is logged and returned anyway.
func (c *Channel) ReadRegister(ctx context.Context, reg protocol.Register, n int) ([]byte, error) {
	header := protocol.EncodeReadHeader(reg)
	attempts := c.retry.attempts()

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data := make([]byte, n)
		err := c.bus.WriteRead(c.address, header, data)
		if err == nil {
			if n > 0 && data[0] != protocol.Checksum(data[1:]) {
				c.log.Warnf("Readback of %s doesn't match its checksum: % x", reg, data)
				c.metrics.ChecksumWarning()
			}
			c.log.Debugf("Read %s: % x", reg, data)
			return data, nil
		}
		lastErr = err
		if attempt < attempts {
			c.log.Warnf("Reading %s failed (attempt %d/%d), retrying in %s: %s", reg, attempt, attempts, c.retry.Interval, err)
			c.metrics.TransportRetry()
			c.clock.Sleep(c.retry.Interval)
		}
	}
	return nil, &TransportError{Op: "read", Register: reg, Attempts: attempts, Err: lastErr}
}

// WriteRegister writes payload to reg and returns the checksum sent with it.
func (c *Channel) WriteRegister(ctx context.Context, reg protocol.Register, payload []byte) (byte, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	data, checksum := protocol.EncodeWrite(reg, payload)
	if err := c.bus.Write(c.address, data); err != nil {
		return 0, &TransportError{Op: "write", Register: reg, Attempts: 1, Err: err}
	}
	c.log.Debugf("Wrote %d bytes to %s, checksum 0x%02x", len(payload), reg, checksum)
	return checksum, nil
}
