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
	"strings"
	"time"

	"github.com/arduino/i2c-fwupdater/fwimage"
	"github.com/arduino/i2c-fwupdater/protocol"
)

// Flasher pushes a firmware image to a device.
type Flasher interface {
	FlashFirmware(ctx context.Context, img *fwimage.Image, fwType protocol.FirmwareType) (*FlashResult, error)
	ReadPlatformID(ctx context.Context) (protocol.PlatformID, error)
	Close() error
}

// Phase is a step of the update sequence.
type Phase string

const (
	PhaseVerifyPlatform Phase = "verify platform"
	PhaseStartUpdate    Phase = "start update"
	PhaseUpload         Phase = "upload blocks"
	PhaseProgress       Phase = "device processing"
)

// Progress is reported after every acknowledged page and every update
// status poll.
type Progress struct {
	Phase      Phase
	// PagesDone counts the acknowledged pages, starting from 1 for the
	// first one. Zero outside of the upload phase.
	PagesDone  int
	TotalPages int
	Counter    byte
	Code       protocol.UpdateCode
}

type ProgressCallback func(Progress)

// FlashResult summarizes a completed update.
type FlashResult struct {
	Session       string                `json:"session"`
	PlatformID    protocol.PlatformID   `json:"platform_id"`
	FirmwareType  protocol.FirmwareType `json:"firmware_type"`
	Pages         int                   `json:"pages"`
	Bytes         int64                 `json:"bytes"`
	DeviceCounter byte                  `json:"device_counter"`
	UploadTime    time.Duration         `json:"upload_time"`
	DeviceTime    time.Duration         `json:"device_time"`
	TotalTime     time.Duration         `json:"total_time"`
}

func (r *FlashResult) String() string {
	b := &strings.Builder{}
	fmt.Fprintf(b, "%s firmware update completed on platform %s\n", r.FirmwareType, r.PlatformID)
	fmt.Fprintf(b, "Uploaded %d bytes in %d pages\n", r.Bytes, r.Pages)
	fmt.Fprintf(b, "Upload time: %s\n", r.UploadTime)
	fmt.Fprintf(b, "Authentication and update time: %s\n", r.DeviceTime)
	fmt.Fprintf(b, "Total time: %s", r.TotalTime)
	return b.String()
}

func (r *FlashResult) Data() interface{} {
	return r
}
