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
	"errors"
	"testing"
	"time"

	"github.com/arduino/i2c-fwupdater/fwimage"
	"github.com/arduino/i2c-fwupdater/metrics"
	"github.com/arduino/i2c-fwupdater/protocol"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

func testFirmware(size int) *fwimage.Image {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i)
	}
	return fwimage.FromBytes("fw.bin", data)
}

func newTestUpdater(dev *fakeDevice, clock *fakeClock, opts ...Option) *Updater {
	logger, _ := test.NewNullLogger()
	opts = append([]Option{WithClock(clock), WithLogger(logrus.NewEntry(logger))}, opts...)
	return New(dev, opts...)
}

func metricValue(t *testing.T, m *metrics.Metrics, name string) float64 {
	families, err := m.Registry().Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		metric := family.GetMetric()[0]
		if c := metric.GetCounter(); c != nil {
			return c.GetValue()
		}
		return metric.GetGauge().GetValue()
	}
	require.FailNow(t, "metric not found", name)
	return 0
}

func TestFlashFirmwareComplete(t *testing.T) {
	dev := newFakeDevice()
	dev.updateCodes = []protocol.UpdateCode{protocol.UpdateInProgress, protocol.UpdateInProgress, protocol.UpdateComplete}
	clock := newFakeClock()
	m := metrics.New("")
	progress := []Progress{}
	u := newTestUpdater(dev, clock,
		WithMetrics(m),
		WithProgressCallback(func(p Progress) { progress = append(progress, p) }))

	img := testFirmware(4096)
	res, err := u.FlashFirmware(context.Background(), img, protocol.FirmwareRTU)
	require.NoError(t, err)

	// START_FW_UPDATE followed by exactly one UPLOAD_BLOCK per page
	require.Len(t, dev.commands, 33)
	start := dev.commands[0]
	require.Equal(t, protocol.CmdStartFWUpdate, start.Code)
	require.Equal(t, []byte{1, 0, 0x00, 0x00, 0x10, 0x00}, start.Payload)

	blocks := dev.blocks()
	require.Len(t, blocks, 32)
	var uploaded []byte
	for _, b := range blocks {
		require.Len(t, b.Payload, 128)
		uploaded = append(uploaded, b.Payload...)
	}
	data := make([]byte, 4096)
	for i := range data {
		data[i] = byte(i)
	}
	require.Equal(t, data, uploaded)

	// one sector: the only settle is on page 31
	require.Equal(t, []time.Duration{
		time.Second,
		100 * time.Millisecond,
		5 * time.Second, 5 * time.Second, 5 * time.Second,
	}, clock.sleeps)
	require.Equal(t, 3, dev.updateReads)

	require.Equal(t, DefaultPlatformID, res.PlatformID)
	require.Equal(t, protocol.FirmwareRTU, res.FirmwareType)
	require.Equal(t, 32, res.Pages)
	require.Equal(t, int64(4096), res.Bytes)
	require.Equal(t, byte(3), res.DeviceCounter)
	require.Equal(t, 1100*time.Millisecond, res.UploadTime)
	require.Equal(t, 15*time.Second, res.DeviceTime)
	require.Equal(t, 16100*time.Millisecond, res.TotalTime)
	require.NotEmpty(t, res.Session)
	require.Contains(t, res.String(), "Total time: 16.1s")

	require.Len(t, progress, 35)
	require.Equal(t, Progress{Phase: PhaseUpload, PagesDone: 1, TotalPages: 32}, progress[0])
	require.Equal(t, Progress{Phase: PhaseUpload, PagesDone: 32, TotalPages: 32}, progress[31])
	require.Equal(t, PhaseProgress, progress[34].Phase)
	require.Equal(t, protocol.UpdateComplete, progress[34].Code)

	require.Equal(t, 32.0, metricValue(t, m, "fwupdater_upload_blocks_sent_total"))
	require.Equal(t, 4096.0, metricValue(t, m, "fwupdater_upload_bytes_sent_total"))
	require.Equal(t, 3.0, metricValue(t, m, "fwupdater_device_progress_polls_total"))
	require.Equal(t, 1.0, metricValue(t, m, "fwupdater_session_success"))
}

func TestFlashFirmwareSectorSettles(t *testing.T) {
	dev := newFakeDevice()
	clock := newFakeClock()
	u := newTestUpdater(dev, clock)

	// 100 pages, the last one short
	_, err := u.FlashFirmware(context.Background(), testFirmware(99*128+10), protocol.FirmwareFPGA)
	require.NoError(t, err)
	require.Len(t, dev.blocks(), 100)
	require.Len(t, dev.blocks()[99].Payload, 10)
	// pages 31, 63, 95 and 99
	require.Equal(t, 4, clock.count(100*time.Millisecond))
}

func TestPlatformMismatch(t *testing.T) {
	dev := newFakeDevice()
	dev.platform = 0x0102
	u := newTestUpdater(dev, newFakeClock())

	res, err := u.FlashFirmware(context.Background(), testFirmware(256), protocol.FirmwareFPGA)
	require.Nil(t, res)
	var mismatch *PlatformMismatchError
	require.ErrorAs(t, err, &mismatch)
	require.Equal(t, protocol.PlatformID(0x0102), mismatch.Actual)
	require.Equal(t, DefaultPlatformID, mismatch.Expected)

	var flasherErr *FlasherError
	require.ErrorAs(t, err, &flasherErr)
	require.Equal(t, PhaseVerifyPlatform, flasherErr.Phase)
	require.Empty(t, dev.commands)
}

func TestVerifyPlatform(t *testing.T) {
	dev := newFakeDevice()
	u := newTestUpdater(dev, newFakeClock())
	id, err := u.VerifyPlatform(context.Background())
	require.NoError(t, err)
	require.Equal(t, protocol.PlatformID(0x4612), id)

	cfg := DefaultConfig()
	cfg.PlatformID = 0x1234
	u = newTestUpdater(dev, newFakeClock(), WithConfig(cfg))
	_, err = u.VerifyPlatform(context.Background())
	require.Error(t, err)
}

func TestDeviceBusyBeforeStart(t *testing.T) {
	dev := newFakeDevice()
	dev.initialStatus = protocol.StatusBusy
	u := newTestUpdater(dev, newFakeClock())

	_, err := u.FlashFirmware(context.Background(), testFirmware(256), protocol.FirmwareFPGA)
	require.ErrorIs(t, err, ErrDeviceBusy)
	require.Empty(t, dev.commands)
}

func TestStartRejected(t *testing.T) {
	dev := newFakeDevice()
	dev.startStatus = protocol.StatusUnsupportedVersion
	u := newTestUpdater(dev, newFakeClock())

	_, err := u.FlashFirmware(context.Background(), testFirmware(256), protocol.FirmwareFPGA)
	var rejected *StartRejectedError
	require.ErrorAs(t, err, &rejected)
	require.Equal(t, protocol.StatusUnsupportedVersion, rejected.Status.Status)
	require.Len(t, dev.commands, 1)

	var flasherErr *FlasherError
	require.ErrorAs(t, err, &flasherErr)
	require.Equal(t, PhaseStartUpdate, flasherErr.Phase)
}

func TestBlockChecksumMismatch(t *testing.T) {
	dev := newFakeDevice()
	dev.corruptEcho[0] = true
	clock := newFakeClock()
	u := newTestUpdater(dev, clock)

	_, err := u.FlashFirmware(context.Background(), testFirmware(1024), protocol.FirmwareFPGA)
	var mismatch *ChecksumMismatchError
	require.ErrorAs(t, err, &mismatch)
	require.Equal(t, 0, mismatch.Page)
	require.Equal(t, mismatch.Sent^0xff, mismatch.Echoed)
	// no further block is sent, the failed one is not resent
	require.Len(t, dev.blocks(), 1)
	require.Zero(t, dev.updateReads)
}

func TestBlockRejected(t *testing.T) {
	dev := newFakeDevice()
	dev.blockStatus[2] = protocol.StatusFlashError
	u := newTestUpdater(dev, newFakeClock())

	_, err := u.FlashFirmware(context.Background(), testFirmware(1024), protocol.FirmwareFPGA)
	var rejected *BlockRejectedError
	require.ErrorAs(t, err, &rejected)
	require.Equal(t, 2, rejected.Page)
	require.Equal(t, protocol.StatusFlashError, rejected.Status)
	require.Len(t, dev.blocks(), 3)

	var flasherErr *FlasherError
	require.ErrorAs(t, err, &flasherErr)
	require.Equal(t, PhaseUpload, flasherErr.Phase)
}

func TestBlockBusyRepolls(t *testing.T) {
	dev := newFakeDevice()
	dev.busyOnBlock[0] = 2
	clock := newFakeClock()
	m := metrics.New("")
	u := newTestUpdater(dev, clock, WithMetrics(m))

	_, err := u.FlashFirmware(context.Background(), testFirmware(200), protocol.FirmwareFPGA)
	require.NoError(t, err)
	require.Len(t, dev.blocks(), 2)
	require.Equal(t, []time.Duration{
		time.Second,
		10 * time.Second, 10 * time.Second,
		100 * time.Millisecond,
		5 * time.Second,
	}, clock.sleeps)
	require.Equal(t, 2.0, metricValue(t, m, "fwupdater_upload_busy_polls_total"))
}

func TestBlockBusyTimeout(t *testing.T) {
	dev := newFakeDevice()
	dev.busyOnBlock[0] = 1000
	clock := newFakeClock()
	cfg := DefaultConfig()
	cfg.BusyTimeout = 30 * time.Second
	u := newTestUpdater(dev, clock, WithConfig(cfg))

	_, err := u.FlashFirmware(context.Background(), testFirmware(200), protocol.FirmwareFPGA)
	var timeout *TimeoutError
	require.ErrorAs(t, err, &timeout)
	require.Equal(t, 30*time.Second, timeout.After)
	require.Len(t, dev.blocks(), 1)
	require.Equal(t, 3, clock.count(10*time.Second))
}

func TestProgressTimeout(t *testing.T) {
	dev := newFakeDevice()
	dev.updateCodes = []protocol.UpdateCode{protocol.UpdateInit, protocol.UpdateInProgress}
	clock := newFakeClock()
	cfg := DefaultConfig()
	cfg.ProgressTimeout = 12 * time.Second
	u := newTestUpdater(dev, clock, WithConfig(cfg))

	_, err := u.FlashFirmware(context.Background(), testFirmware(128), protocol.FirmwareFPGA)
	var timeout *TimeoutError
	require.ErrorAs(t, err, &timeout)
	require.Equal(t, 3, dev.updateReads)

	var flasherErr *FlasherError
	require.ErrorAs(t, err, &flasherErr)
	require.Equal(t, PhaseProgress, flasherErr.Phase)
}

func TestUpdateFailures(t *testing.T) {
	tests := []struct {
		code protocol.UpdateCode
		err  error
	}{
		{protocol.UpdateInvalidHeader, ErrInvalidFirmwareHeader},
		{protocol.UpdateFirmwareIDMismatch, ErrFirmwareIDMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.code.String(), func(t *testing.T) {
			dev := newFakeDevice()
			dev.updateCodes = []protocol.UpdateCode{protocol.UpdateInProgress, tt.code}
			u := newTestUpdater(dev, newFakeClock())
			_, err := u.FlashFirmware(context.Background(), testFirmware(128), protocol.FirmwareFPGA)
			require.ErrorIs(t, err, tt.err)
			require.Equal(t, 2, dev.updateReads)
		})
	}

	dev := newFakeDevice()
	dev.updateCodes = []protocol.UpdateCode{0x42}
	u := newTestUpdater(dev, newFakeClock())
	_, err := u.FlashFirmware(context.Background(), testFirmware(128), protocol.FirmwareFPGA)
	var unknown *UnknownDeviceError
	require.ErrorAs(t, err, &unknown)
	require.Equal(t, protocol.UpdateCode(0x42), unknown.Code)
}

func TestEmptyFirmware(t *testing.T) {
	dev := newFakeDevice()
	u := newTestUpdater(dev, newFakeClock())
	_, err := u.FlashFirmware(context.Background(), testFirmware(0), protocol.FirmwareFPGA)
	require.Error(t, err)
	require.Empty(t, dev.reads)
}

func TestCanceledContext(t *testing.T) {
	dev := newFakeDevice()
	u := newTestUpdater(dev, newFakeClock())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := u.FlashFirmware(ctx, testFirmware(128), protocol.FirmwareFPGA)
	require.True(t, errors.Is(err, context.Canceled))
	require.Empty(t, dev.reads)
}

func TestTransportRetryExhausted(t *testing.T) {
	dev := newFakeDevice()
	dev.readErrors = 10
	clock := newFakeClock()
	m := metrics.New("")
	u := newTestUpdater(dev, clock, WithMetrics(m))

	_, err := u.FlashFirmware(context.Background(), testFirmware(128), protocol.FirmwareFPGA)
	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
	require.Equal(t, 3, transportErr.Attempts)
	require.Equal(t, protocol.RegPlatformID, transportErr.Register)
	require.Equal(t, []time.Duration{5 * time.Second, 5 * time.Second}, clock.sleeps)
	require.Equal(t, 2.0, metricValue(t, m, "fwupdater_transport_retries_total"))
	require.Equal(t, 0.0, metricValue(t, m, "fwupdater_session_success"))
}

func TestClose(t *testing.T) {
	dev := newFakeDevice()
	u := newTestUpdater(dev, newFakeClock())
	require.NoError(t, u.Close())
	require.True(t, dev.closed)
}
