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
	"context"
	"fmt"
	"os"

	"github.com/arduino/arduino-cli/table"
	"github.com/arduino/i2c-fwupdater/cli/common"
	"github.com/arduino/i2c-fwupdater/cli/feedback"
	"github.com/arduino/i2c-fwupdater/protocol"
	"github.com/spf13/cobra"
)

// NewStatusCommand creates a new `status` command
func NewStatusCommand() *cobra.Command {
	command := &cobra.Command{
		Use:     "status",
		Short:   "Reads the command and update status of the device.",
		Long:    "Reads once the command status and the firmware update status registers of the device.",
		Example: "  " + os.Args[0] + " firmware status --bus 1\n",
		Args:    cobra.NoArgs,
		Run:     runStatus,
	}
	commonFlags.AddToCommand(command)
	return command
}

type statusResult struct {
	Command        string `json:"command"`
	CommandStatus  string `json:"command_status"`
	EchoedChecksum byte   `json:"echoed_checksum"`
	UpdateStatus   string `json:"update_status"`
	UpdateCounter  byte   `json:"update_counter"`
}

func newStatusResult(cmd protocol.CommandStatus, update protocol.UpdateStatus) *statusResult {
	return &statusResult{
		Command:        cmd.Command.String(),
		CommandStatus:  cmd.Status.String(),
		EchoedChecksum: cmd.EchoedChecksum,
		UpdateStatus:   update.Code.String(),
		UpdateCounter:  update.Counter,
	}
}

func (r *statusResult) String() string {
	t := table.New()
	t.SetHeader("Register", "Field", "Value")
	t.AddRow(protocol.RegCommandStatus.String(), "Last command", r.Command)
	t.AddRow("", "Status", r.CommandStatus)
	t.AddRow("", "Checksum", fmt.Sprintf("0x%02x", r.EchoedChecksum))
	t.AddRow(protocol.RegUpdateStatus.String(), "Firmware update", r.UpdateStatus)
	t.AddRow("", "Counter", fmt.Sprint(r.UpdateCounter))
	return t.Render()
}

func (r *statusResult) Data() interface{} {
	return r
}

func runStatus(cmd *cobra.Command, args []string) {
	f := common.OpenUpdater(&commonFlags)
	ctx := context.Background()
	cmdStatus, cmdErr := f.ReadCommandStatus(ctx)
	updateStatus, updateErr := f.ReadUpdateStatus(ctx)
	f.Close()

	if cmdErr != nil {
		feedback.Fatal(fmt.Sprintf("Error reading command status: %s", cmdErr), feedback.ErrGeneric)
	}
	if updateErr != nil {
		feedback.Fatal(fmt.Sprintf("Error reading update status: %s", updateErr), feedback.ErrGeneric)
	}
	feedback.PrintResult(newStatusResult(cmdStatus, updateStatus))
}
