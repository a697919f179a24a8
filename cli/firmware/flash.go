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
	"os/signal"

	"github.com/arduino/go-paths-helper"
	"github.com/arduino/i2c-fwupdater/cli/arguments"
	"github.com/arduino/i2c-fwupdater/cli/common"
	"github.com/arduino/i2c-fwupdater/cli/feedback"
	"github.com/arduino/i2c-fwupdater/cli/globals"
	"github.com/arduino/i2c-fwupdater/download"
	"github.com/arduino/i2c-fwupdater/flasher"
	"github.com/arduino/i2c-fwupdater/fwimage"
	"github.com/arduino/i2c-fwupdater/metrics"
	"github.com/arduino/i2c-fwupdater/protocol"
	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	commonFlags arguments.Flags // contains bus, address and config file
	fwFile      string
	fwType      string
	fwURL       string
	fwChecksum  string
	fwSize      int64
	metricsFile string
)

// NewFlashCommand creates a new `flash` command
func NewFlashCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   "flash",
		Short: "Flashes a firmware to the device.",
		Long:  "Uploads the firmware image to the device on the given I2C bus and waits until the device has authenticated and committed it.",
		Example: "" +
			"  " + os.Args[0] + " firmware flash --bus 1 --input-file ota_fpga.bin --type fpga\n" +
			"  " + os.Args[0] + " firmware flash -b 1 -i ota_rtu.hex -t 1\n" +
			"  " + os.Args[0] + " firmware flash -b 1 -t fpga --url https://example.com/ota_fpga.bin --checksum SHA-256:<digest>\n",
		Args: cobra.NoArgs,
		Run:  runFlash,
	}
	commonFlags.AddToCommand(command)
	command.Flags().StringVarP(&fwFile, "input-file", "i", "", "Path of the firmware to upload (.bin or Intel .hex)")
	command.Flags().StringVarP(&fwType, "type", "t", "", "Firmware type: fpga (0) or rtu (1)")
	command.Flags().StringVar(&fwURL, "url", "", "URL of the firmware to download and upload")
	command.Flags().StringVar(&fwChecksum, "checksum", "", "Checksum of the downloaded firmware, e.g.: SHA-256:<digest>")
	command.Flags().Int64Var(&fwSize, "size", 0, "Expected size in bytes of the downloaded firmware")
	command.Flags().StringVar(&metricsFile, "metrics-file", "", "Write the update metrics to this file in the Prometheus text format")
	command.MarkFlagRequired("type")
	return command
}

func runFlash(cmd *cobra.Command, args []string) {
	// at the end cleanup the fwupdater temp dir
	defer globals.FwUpdaterPath.RemoveAll()

	common.CheckFlags(&commonFlags)
	firmwareType, err := protocol.ParseFirmwareType(fwType)
	if err != nil {
		feedback.Fatal(fmt.Sprintf("Error: %s", err), feedback.ErrBadArgument)
	}

	firmwareFilePath := getFirmwarePath()
	img, err := fwimage.Open(firmwareFilePath)
	if err != nil {
		feedback.Fatal(fmt.Sprintf("Error reading firmware: %s", err), feedback.ErrGeneric)
	}

	m := metrics.New("")
	res, err := updateFirmware(img, firmwareType, m)
	if metricsFile != "" {
		if err := m.WriteToTextfile(metricsFile); err != nil {
			logrus.Error(err)
		}
	}
	if err != nil {
		feedback.Fatal(fmt.Sprintf("Error during firmware flashing: %s", err), feedback.ErrGeneric)
	}
	feedback.PrintResult(res)
	logrus.Info("Operation completed: success! :-)")
}

// getFirmwarePath returns the local firmware file, downloading it first if
// an URL has been given.
func getFirmwarePath() *paths.Path {
	switch {
	case fwFile != "" && fwURL != "":
		feedback.Fatal("Error: --input-file and --url can't be used together", feedback.ErrBadArgument)
	case fwFile != "":
		firmwareFilePath := paths.New(fwFile)
		if !firmwareFilePath.Exist() {
			feedback.Fatal(fmt.Sprintf("firmware file not found in %s", firmwareFilePath), feedback.ErrGeneric)
		}
		return firmwareFilePath
	case fwURL != "":
		firmware := &download.Firmware{URL: fwURL, Checksum: fwChecksum, Size: fwSize}
		firmwareFilePath, err := download.DownloadFirmware(firmware, globals.FwUpdaterPath.Join("firmwares"))
		if err != nil {
			feedback.Fatal(fmt.Sprintf("Error downloading firmware from %s: %s", fwURL, err), feedback.ErrNetwork)
		}
		logrus.Debugf("firmware file downloaded in %s", firmwareFilePath)
		return firmwareFilePath
	}
	feedback.Fatal("Error: missing firmware, use --input-file or --url", feedback.ErrBadArgument)
	return nil
}

func updateFirmware(img *fwimage.Image, firmwareType protocol.FirmwareType, m *metrics.Metrics) (*flasher.FlashResult, error) {
	opts := []flasher.Option{flasher.WithMetrics(m)}
	if feedback.GetFormat() == feedback.Text {
		opts = append(opts, flasher.WithProgressCallback((&progressPrinter{}).print))
	}
	f := common.OpenUpdater(&commonFlags, opts...)
	defer f.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	logrus.Infof("Uploading %s firmware %s", firmwareType, img)
	res, err := f.FlashFirmware(ctx, img, firmwareType)
	if err != nil {
		logrus.Error(err)
		return nil, err
	}
	return res, nil
}

// progressPrinter shows the upload on a progress bar and then every device
// status poll on its own line
type progressPrinter struct {
	bar *progressbar.ProgressBar
}

func (p *progressPrinter) print(progress flasher.Progress) {
	switch progress.Phase {
	case flasher.PhaseUpload:
		if p.bar == nil {
			p.bar = progressbar.NewOptions(progress.TotalPages,
				progressbar.OptionSetWidth(40),
				progressbar.OptionSetDescription("Uploading"),
				progressbar.OptionShowCount(),
				progressbar.OptionOnCompletion(func() { fmt.Println() }),
			)
		}
		p.bar.Set(progress.PagesDone)
	case flasher.PhaseProgress:
		fmt.Printf("Device status: %s, counter %d\n", progress.Code, progress.Counter)
	}
}
