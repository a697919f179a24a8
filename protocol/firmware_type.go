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
	"fmt"
	"strings"
)

// FirmwareType selects which device component the image targets.
type FirmwareType byte

const (
	FirmwareFPGA FirmwareType = 0
	FirmwareRTU  FirmwareType = 1
)

func (t FirmwareType) String() string {
	switch t {
	case FirmwareFPGA:
		return "FPGA"
	case FirmwareRTU:
		return "RTU"
	default:
		return fmt.Sprintf("TYPE(%d)", byte(t))
	}
}

// ParseFirmwareType accepts either the numeric selector ("0", "1") or the
// component name ("fpga", "rtu"), case insensitive.
func ParseFirmwareType(s string) (FirmwareType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "0", "fpga":
		return FirmwareFPGA, nil
	case "1", "rtu":
		return FirmwareRTU, nil
	}
	return 0, fmt.Errorf("invalid firmware type %q: must be one of 0 (FPGA), 1 (RTU)", s)
}
