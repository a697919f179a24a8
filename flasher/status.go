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

import "github.com/arduino/i2c-fwupdater/protocol"

// Outcome is the decision taken on a status readback.
type Outcome int

const (
	// OutcomeFailed ends the session, the accompanying error tells why
	OutcomeFailed Outcome = iota
	// OutcomeAcknowledged lets the upload move to the next page
	OutcomeAcknowledged
	// OutcomeBusy means the same status must be polled again
	OutcomeBusy
	// OutcomeInProgress means the device is still processing the image
	OutcomeInProgress
	// OutcomeComplete means the device committed the firmware
	OutcomeComplete
)

func (o Outcome) String() string {
	switch o {
	case OutcomeFailed:
		return "failed"
	case OutcomeAcknowledged:
		return "acknowledged"
	case OutcomeBusy:
		return "busy"
	case OutcomeInProgress:
		return "in progress"
	case OutcomeComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// ClassifyStartStatus checks the readback following START_FW_UPDATE.
func ClassifyStartStatus(status protocol.CommandStatus, checksumSent byte) (Outcome, error) {
	if status.Status != protocol.StatusOK ||
		status.Command != protocol.CmdStartFWUpdate ||
		status.EchoedChecksum != checksumSent {
		return OutcomeFailed, &StartRejectedError{Status: status, ChecksumSent: checksumSent}
	}
	return OutcomeAcknowledged, nil
}

// ClassifyBlockStatus checks the readback following the UPLOAD_BLOCK of
// page. Every status other than OK and busy rejects the block.
func ClassifyBlockStatus(page int, status protocol.CommandStatus, checksumSent byte) (Outcome, error) {
	switch status.Status {
	case protocol.StatusBusy:
		return OutcomeBusy, nil
	case protocol.StatusOK:
	default:
		return OutcomeFailed, &BlockRejectedError{Page: page, Status: status.Status}
	}
	if status.Command != protocol.CmdUploadBlock || status.EchoedChecksum != checksumSent {
		return OutcomeFailed, &ChecksumMismatchError{
			Page:          page,
			Command:       protocol.CmdUploadBlock,
			EchoedCommand: status.Command,
			Sent:          checksumSent,
			Echoed:        status.EchoedChecksum,
		}
	}
	return OutcomeAcknowledged, nil
}

// ClassifyUpdateStatus maps an update status code to the next step.
func ClassifyUpdateStatus(code protocol.UpdateCode) (Outcome, error) {
	switch code {
	case protocol.UpdateComplete:
		return OutcomeComplete, nil
	case protocol.UpdateInProgress, protocol.UpdateInit:
		return OutcomeInProgress, nil
	case protocol.UpdateInvalidHeader:
		return OutcomeFailed, ErrInvalidFirmwareHeader
	case protocol.UpdateFirmwareIDMismatch:
		return OutcomeFailed, ErrFirmwareIDMismatch
	default:
		return OutcomeFailed, &UnknownDeviceError{Code: code}
	}
}
