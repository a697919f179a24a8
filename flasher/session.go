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
	"time"

	"github.com/google/uuid"
)

// Session tracks a single update, from START_FW_UPDATE to the final status.
type Session struct {
	ID         string
	PagesDone  int
	TotalPages int
	TotalBytes int64

	started  time.Time
	uploaded time.Time
	finished time.Time
}

func newSession(started time.Time, totalPages int, totalBytes int64) *Session {
	return &Session{
		ID:         uuid.New().String(),
		TotalPages: totalPages,
		TotalBytes: totalBytes,
		started:    started,
	}
}

func (s *Session) markUploaded(t time.Time) { s.uploaded = t }
func (s *Session) markFinished(t time.Time) { s.finished = t }

// UploadTime is the time spent from START_FW_UPDATE to the last
// acknowledged page.
func (s *Session) UploadTime() time.Duration {
	if s.uploaded.IsZero() {
		return 0
	}
	return s.uploaded.Sub(s.started)
}

// DeviceTime is the time the device took to authenticate and commit the
// image after the upload.
func (s *Session) DeviceTime() time.Duration {
	if s.uploaded.IsZero() || s.finished.IsZero() {
		return 0
	}
	return s.finished.Sub(s.uploaded)
}

func (s *Session) TotalTime() time.Duration {
	if s.finished.IsZero() {
		return 0
	}
	return s.finished.Sub(s.started)
}
