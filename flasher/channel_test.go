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
	"testing"
	"time"

	"github.com/arduino/i2c-fwupdater/metrics"
	"github.com/arduino/i2c-fwupdater/protocol"
	"github.com/arduino/i2c-fwupdater/transport"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

func newTestChannel(dev *fakeDevice, clock *fakeClock, m *metrics.Metrics) (*Channel, *test.Hook) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	policy := RetryPolicy{Attempts: 3, Interval: 5 * time.Second}
	return NewChannel(dev, transport.DefaultDeviceAddress, policy, clock, m, logrus.NewEntry(logger)), hook
}

func TestReadRegisterRecoversFromTransientErrors(t *testing.T) {
	dev := newFakeDevice()
	dev.readErrors = 2
	clock := newFakeClock()
	ch, _ := newTestChannel(dev, clock, nil)

	data, err := ch.ReadRegister(context.Background(), protocol.RegPlatformID, protocol.PlatformIDSize)
	require.NoError(t, err)
	require.Equal(t, []byte{0x58, 0x46, 0x12}, data)
	require.Equal(t, []time.Duration{5 * time.Second, 5 * time.Second}, clock.sleeps)
}

func TestReadRegisterChecksumWarning(t *testing.T) {
	dev := newFakeDevice()
	dev.corruptReads = 1
	m := metrics.New("")
	ch, hook := newTestChannel(dev, newFakeClock(), m)

	data, err := ch.ReadRegister(context.Background(), protocol.RegPlatformID, protocol.PlatformIDSize)
	require.NoError(t, err)
	// the data is returned as read
	require.Equal(t, []byte{0x58 ^ 0xff, 0x46, 0x12}, data)

	warnings := 0
	for _, entry := range hook.AllEntries() {
		if entry.Level == logrus.WarnLevel {
			warnings++
		}
	}
	require.Equal(t, 1, warnings)
	require.Equal(t, 1.0, metricValue(t, m, "fwupdater_transport_checksum_warnings_total"))

	// next readback is clean
	hook.Reset()
	_, err = ch.ReadRegister(context.Background(), protocol.RegPlatformID, protocol.PlatformIDSize)
	require.NoError(t, err)
	for _, entry := range hook.AllEntries() {
		require.NotEqual(t, logrus.WarnLevel, entry.Level)
	}
}

func TestReadRegisterSingleAttempt(t *testing.T) {
	dev := newFakeDevice()
	dev.readErrors = 1
	clock := newFakeClock()
	logger, _ := test.NewNullLogger()
	ch := NewChannel(dev, transport.DefaultDeviceAddress, RetryPolicy{}, clock, nil, logrus.NewEntry(logger))

	_, err := ch.ReadRegister(context.Background(), protocol.RegUpdateStatus, protocol.UpdateStatusSize)
	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
	require.Equal(t, 1, transportErr.Attempts)
	require.Equal(t, "read UPDATE_STATUS failed: remote I/O error", transportErr.Error())
	require.Empty(t, clock.sleeps)
}

func TestWriteRegister(t *testing.T) {
	dev := newFakeDevice()
	ch, _ := newTestChannel(dev, newFakeClock(), nil)

	frame := protocol.NewUploadBlockCommand([]byte{1, 2, 3}).Bytes()
	checksum, err := ch.WriteRegister(context.Background(), protocol.RegCommandPort, frame)
	require.NoError(t, err)
	require.Equal(t, protocol.Checksum(frame), checksum)
	require.Len(t, dev.commands, 1)
	require.Equal(t, []byte{1, 2, 3}, dev.commands[0].Payload)

	// writes are not retried
	_, err = ch.WriteRegister(context.Background(), protocol.RegUpdateStatus, []byte{1})
	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
	require.Equal(t, "write", transportErr.Op)
	require.Len(t, dev.commands, 1)
}

func TestWrongAddress(t *testing.T) {
	dev := newFakeDevice()
	logger, _ := test.NewNullLogger()
	ch := NewChannel(dev, 0x20, RetryPolicy{Attempts: 2}, newFakeClock(), nil, logrus.NewEntry(logger))
	_, err := ch.ReadRegister(context.Background(), protocol.RegPlatformID, protocol.PlatformIDSize)
	require.Error(t, err)
}
