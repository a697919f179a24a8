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
	"fmt"
	"math"
	"time"

	"github.com/arduino/i2c-fwupdater/fwimage"
	"github.com/arduino/i2c-fwupdater/metrics"
	"github.com/arduino/i2c-fwupdater/protocol"
	"github.com/arduino/i2c-fwupdater/transport"
	"github.com/sirupsen/logrus"
)

// DefaultPlatformID is the platform ID of the supported baseboard.
const DefaultPlatformID protocol.PlatformID = 0x4612

// Config holds the device geometry and the protocol timings. A zero or
// negative timeout disables the corresponding deadline.
type Config struct {
	Address    uint16
	PlatformID protocol.PlatformID
	PageSize   int
	SectorSize int
	Retry      RetryPolicy

	// StartSettle is the wait between START_FW_UPDATE and its status readback
	StartSettle time.Duration
	// SectorSettle is the wait after the last page of a sector
	SectorSettle time.Duration
	// BusyInterval is the wait between two polls of a busy command status
	BusyInterval time.Duration
	BusyTimeout  time.Duration
	// ProgressInterval is the wait before every update status poll
	ProgressInterval time.Duration
	ProgressTimeout  time.Duration
}

func DefaultConfig() Config {
	return Config{
		Address:          transport.DefaultDeviceAddress,
		PlatformID:       DefaultPlatformID,
		PageSize:         fwimage.DefaultPageSize,
		SectorSize:       fwimage.DefaultSectorSize,
		Retry:            DefaultRetryPolicy(),
		StartSettle:      time.Second,
		SectorSettle:     100 * time.Millisecond,
		BusyInterval:     10 * time.Second,
		BusyTimeout:      5 * time.Minute,
		ProgressInterval: 5 * time.Second,
		ProgressTimeout:  30 * time.Minute,
	}
}

type Option func(*Updater)

func WithConfig(cfg Config) Option {
	return func(u *Updater) {
		u.cfg = cfg
	}
}

func WithClock(clock Clock) Option {
	return func(u *Updater) {
		u.clock = clock
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(u *Updater) {
		u.metrics = m
	}
}

func WithProgressCallback(callback ProgressCallback) Option {
	return func(u *Updater) {
		u.progress = callback
	}
}

func WithLogger(log *logrus.Entry) Option {
	return func(u *Updater) {
		u.log = log
	}
}

// Updater drives the firmware update state machine of the device:
// platform check, START_FW_UPDATE, one UPLOAD_BLOCK per page and then
// polling of the update status until the device reports the outcome.
type Updater struct {
	bus      transport.Bus
	cfg      Config
	clock    Clock
	metrics  *metrics.Metrics
	progress ProgressCallback
	log      *logrus.Entry
	channel  *Channel
}

var _ Flasher = (*Updater)(nil)

// New returns an Updater using bus. The bus is owned by the Updater and
// released by Close.
func New(bus transport.Bus, opts ...Option) *Updater {
	u := &Updater{
		bus:   bus,
		cfg:   DefaultConfig(),
		clock: SystemClock{},
		log:   logrus.NewEntry(logrus.StandardLogger()),
	}
	for _, opt := range opts {
		opt(u)
	}
	if u.cfg.PageSize <= 0 {
		u.cfg.PageSize = fwimage.DefaultPageSize
	}
	if u.cfg.SectorSize <= 0 {
		u.cfg.SectorSize = fwimage.DefaultSectorSize
	}
	u.channel = NewChannel(bus, u.cfg.Address, u.cfg.Retry, u.clock, u.metrics, u.log)
	return u
}

// Config returns the configuration in use.
func (u *Updater) Config() Config {
	return u.cfg
}

func (u *Updater) Close() error {
	return u.bus.Close()
}

// withLog returns a copy of u logging through log.
func (u *Updater) withLog(log *logrus.Entry) *Updater {
	c := *u
	c.log = log
	ch := *u.channel
	ch.log = log
	c.channel = &ch
	return &c
}

func (u *Updater) reportProgress(p Progress) {
	if u.progress != nil {
		u.progress(p)
	}
}

func (u *Updater) ReadPlatformID(ctx context.Context) (protocol.PlatformID, error) {
	data, err := u.channel.ReadRegister(ctx, protocol.RegPlatformID, protocol.PlatformIDSize)
	if err != nil {
		return 0, err
	}
	return protocol.DecodePlatformID(data)
}

// VerifyPlatform reads the platform ID and checks it against the configured
// one.
func (u *Updater) VerifyPlatform(ctx context.Context) (protocol.PlatformID, error) {
	id, err := u.ReadPlatformID(ctx)
	if err != nil {
		return 0, err
	}
	u.log.Infof("Platform ID: %s", id)
	if id != u.cfg.PlatformID {
		return id, &PlatformMismatchError{Expected: u.cfg.PlatformID, Actual: id}
	}
	return id, nil
}

func (u *Updater) ReadCommandStatus(ctx context.Context) (protocol.CommandStatus, error) {
	data, err := u.channel.ReadRegister(ctx, protocol.RegCommandStatus, protocol.CommandStatusSize)
	if err != nil {
		return protocol.CommandStatus{}, err
	}
	return protocol.DecodeCommandStatus(data)
}

func (u *Updater) ReadUpdateStatus(ctx context.Context) (protocol.UpdateStatus, error) {
	data, err := u.channel.ReadRegister(ctx, protocol.RegUpdateStatus, protocol.UpdateStatusSize)
	if err != nil {
		return protocol.UpdateStatus{}, err
	}
	return protocol.DecodeUpdateStatus(data)
}

// StartUpdate sends START_FW_UPDATE announcing an image of imageSize bytes.
// It fails with ErrDeviceBusy if the device is running another task.
func (u *Updater) StartUpdate(ctx context.Context, fwType protocol.FirmwareType, imageSize uint32) error {
	status, err := u.ReadCommandStatus(ctx)
	if err != nil {
		return err
	}
	if status.Status == protocol.StatusBusy {
		return ErrDeviceBusy
	}

	cmd := protocol.NewStartUpdateCommand(fwType, imageSize)
	u.log.Debugf("Sending %s", cmd)
	sent, err := u.channel.WriteRegister(ctx, protocol.RegCommandPort, cmd.Bytes())
	if err != nil {
		return err
	}
	u.clock.Sleep(u.cfg.StartSettle)

	status, err = u.ReadCommandStatus(ctx)
	if err != nil {
		return err
	}
	if _, err := ClassifyStartStatus(status, sent); err != nil {
		return err
	}
	u.log.Infof("START_FW_UPDATE acknowledged, %s firmware of %d bytes", fwType, imageSize)
	return nil
}

// UploadBlock sends page with UPLOAD_BLOCK and waits for its
// acknowledgment. A busy device is polled again without resending the
// block. settle pauses before the first status readback.
func (u *Updater) UploadBlock(ctx context.Context, page fwimage.Page, settle bool) error {
	cmd := protocol.NewUploadBlockCommand(page.Data)
	sent, err := u.channel.WriteRegister(ctx, protocol.RegCommandPort, cmd.Bytes())
	if err != nil {
		return err
	}
	if settle {
		u.clock.Sleep(u.cfg.SectorSettle)
	}

	start := u.clock.Now()
	for {
		status, err := u.ReadCommandStatus(ctx)
		if err != nil {
			return err
		}
		outcome, err := ClassifyBlockStatus(page.Index, status, sent)
		switch outcome {
		case OutcomeAcknowledged:
			u.log.Debugf("Page %d acknowledged", page.Index)
			return nil
		case OutcomeBusy:
			if timeout := u.cfg.BusyTimeout; timeout > 0 && u.clock.Now().Sub(start) >= timeout {
				return &TimeoutError{Op: fmt.Sprintf("page %d busy status to clear", page.Index), After: timeout}
			}
			u.metrics.BusyPoll()
			u.log.Infof("Device busy on page %d, polling again in %s", page.Index, u.cfg.BusyInterval)
			u.clock.Sleep(u.cfg.BusyInterval)
		default:
			return err
		}
	}
}

// UploadImage sends every page of img in order and returns the number of
// acknowledged pages. The upload stops at the first failing page.
func (u *Updater) UploadImage(ctx context.Context, img *fwimage.Image) (int, error) {
	total := img.TotalPages()
	it, err := img.Pages()
	if err != nil {
		return 0, err
	}
	defer it.Close()

	sent := 0
	for it.Next() {
		if err := ctx.Err(); err != nil {
			return sent, err
		}
		page := it.Page()
		settle := fwimage.NeedsDelay(page.Index, total, img.PageSize(), u.cfg.SectorSize)
		if err := u.UploadBlock(ctx, page, settle); err != nil {
			return sent, err
		}
		sent++
		u.metrics.BlockSent(len(page.Data))
		u.reportProgress(Progress{Phase: PhaseUpload, PagesDone: sent, TotalPages: total})
	}
	if err := it.Err(); err != nil {
		return sent, err
	}
	return sent, nil
}

// WaitForCompletion polls the update status until the device reports that
// the firmware has been committed or that the update failed.
func (u *Updater) WaitForCompletion(ctx context.Context) (protocol.UpdateStatus, error) {
	start := u.clock.Now()
	for {
		if err := ctx.Err(); err != nil {
			return protocol.UpdateStatus{}, err
		}
		u.clock.Sleep(u.cfg.ProgressInterval)
		status, err := u.ReadUpdateStatus(ctx)
		if err != nil {
			return status, err
		}
		u.metrics.ProgressPoll(byte(status.Code), status.Counter)
		u.reportProgress(Progress{Phase: PhaseProgress, Counter: status.Counter, Code: status.Code})

		outcome, err := ClassifyUpdateStatus(status.Code)
		switch outcome {
		case OutcomeComplete:
			u.log.Info("The firmware update finished")
			return status, nil
		case OutcomeInProgress:
			u.log.Infof("Firmware update %s, counter %d", status.Code, status.Counter)
			if timeout := u.cfg.ProgressTimeout; timeout > 0 && u.clock.Now().Sub(start) >= timeout {
				return status, &TimeoutError{Op: "firmware update to complete", After: timeout}
			}
		default:
			return status, err
		}
	}
}

// FlashFirmware runs the whole update sequence for img.
func (u *Updater) FlashFirmware(ctx context.Context, img *fwimage.Image, fwType protocol.FirmwareType) (*FlashResult, error) {
	img = img.WithPageSize(u.cfg.PageSize)
	if img.Size() == 0 {
		return nil, fmt.Errorf("firmware %s is empty", img)
	}
	if img.Size() > math.MaxUint32 {
		return nil, fmt.Errorf("firmware %s is too big: %d bytes", img, img.Size())
	}

	s := newSession(u.clock.Now(), img.TotalPages(), img.Size())
	su := u.withLog(u.log.WithField("session", s.ID))
	fail := func(phase Phase, err error) error {
		su.metrics.Result(false)
		su.log.Errorf("Firmware update failed during %s: %s", phase, err)
		return &FlasherError{Phase: phase, Err: err}
	}

	id, err := su.VerifyPlatform(ctx)
	if err != nil {
		return nil, fail(PhaseVerifyPlatform, err)
	}

	su.log.Infof("Flashing %s (%d bytes, %d pages)", img, img.Size(), s.TotalPages)
	s.started = su.clock.Now()
	if err := su.StartUpdate(ctx, fwType, uint32(img.Size())); err != nil {
		return nil, fail(PhaseStartUpdate, err)
	}

	s.PagesDone, err = su.UploadImage(ctx, img)
	if err != nil {
		return nil, fail(PhaseUpload, err)
	}
	s.markUploaded(su.clock.Now())
	su.metrics.PhaseDuration("upload", s.UploadTime())
	su.log.Infof("Total UPLOAD_BLOCK time: %s", s.UploadTime())

	status, err := su.WaitForCompletion(ctx)
	if err != nil {
		return nil, fail(PhaseProgress, err)
	}
	s.markFinished(su.clock.Now())
	su.metrics.PhaseDuration("device", s.DeviceTime())
	su.metrics.PhaseDuration("total", s.TotalTime())
	su.metrics.Result(true)

	return &FlashResult{
		Session:       s.ID,
		PlatformID:    id,
		FirmwareType:  fwType,
		Pages:         s.PagesDone,
		Bytes:         s.TotalBytes,
		DeviceCounter: status.Counter,
		UploadTime:    s.UploadTime(),
		DeviceTime:    s.DeviceTime(),
		TotalTime:     s.TotalTime(),
	}, nil
}
