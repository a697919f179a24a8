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

package firmware

import (
	"os"

	"github.com/spf13/cobra"
)

// NewCommand created a new `firmware` command
func NewCommand() *cobra.Command {
	firmwareCommand := &cobra.Command{
		Use:     "firmware",
		Short:   "Commands to operate on the device firmware.",
		Long:    "A subset of commands to flash a firmware and inspect the update registers of the device.",
		Example: "  " + os.Args[0] + " firmware ...",
		Args:    cobra.NoArgs,
	}

	firmwareCommand.AddCommand(NewFlashCommand())
	firmwareCommand.AddCommand(NewPlatformIDCommand())
	firmwareCommand.AddCommand(NewStatusCommand())
	return firmwareCommand
}
