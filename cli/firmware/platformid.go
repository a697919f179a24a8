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
	"github.com/spf13/cobra"
)

// NewPlatformIDCommand creates a new `platform-id` command
func NewPlatformIDCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   "platform-id",
		Short: "Reads the platform ID of the device.",
		Long:  "Reads the platform ID register of the device and checks it against the supported one.",
		Example: "" +
			"  " + os.Args[0] + " firmware platform-id --bus 1\n" +
			"  " + os.Args[0] + " firmware platform-id -b 1 -a 0x55\n",
		Args: cobra.NoArgs,
		Run:  runPlatformID,
	}
	commonFlags.AddToCommand(command)
	return command
}

type platformIDResult struct {
	PlatformID string `json:"platform_id"`
	Expected   string `json:"expected"`
	Supported  bool   `json:"supported"`
}

func (r *platformIDResult) String() string {
	supported := "no"
	if r.Supported {
		supported = "yes"
	}
	t := table.New()
	t.SetHeader("Platform ID", "Expected", "Supported")
	t.AddRow(r.PlatformID, r.Expected, supported)
	return t.Render()
}

func (r *platformIDResult) Data() interface{} {
	return r
}

func runPlatformID(cmd *cobra.Command, args []string) {
	f := common.OpenUpdater(&commonFlags)
	id, err := f.ReadPlatformID(context.Background())
	f.Close()
	if err != nil {
		feedback.Fatal(fmt.Sprintf("Error reading platform ID: %s", err), feedback.ErrGeneric)
	}
	expected := f.Config().PlatformID
	feedback.PrintResult(&platformIDResult{
		PlatformID: id.String(),
		Expected:   expected.String(),
		Supported:  id == expected,
	})
}
