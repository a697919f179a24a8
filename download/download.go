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

package download

import (
	"bytes"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/arduino/go-paths-helper"
	"github.com/sirupsen/logrus"
	"go.bug.st/downloader/v2"
)

// Firmware is a remote firmware image. Size is optional, a zero value skips
// the size check.
type Firmware struct {
	URL      string
	Checksum string
	Size     int64
}

// DownloadFirmware fetches firmware into destDir and verifies it.
func DownloadFirmware(firmware *Firmware, destDir *paths.Path) (*paths.Path, error) {
	u, err := url.Parse(firmware.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid firmware URL: %w", err)
	}
	name := path.Base(u.Path)
	if name == "" || name == "." || name == "/" {
		return nil, fmt.Errorf("invalid firmware URL: %s has no file name", firmware.URL)
	}
	firmwarePath := destDir.Join(name)
	if err := firmwarePath.Parent().MkdirAll(); err != nil {
		logrus.Error(err)
		return nil, err
	}
	if err := firmwarePath.WriteFile(nil); err != nil {
		logrus.Error(err)
		return nil, err
	}
	d, err := downloader.Download(firmwarePath.String(), firmware.URL)
	if err != nil {
		logrus.Error(err)
		return nil, err
	}
	if err := Download(d); err != nil {
		logrus.Error(err)
		return nil, err
	}
	if err := VerifyFileChecksum(firmware.Checksum, firmwarePath); err != nil {
		logrus.Error(err)
		return nil, err
	}
	if firmware.Size > 0 {
		if err := VerifyFileSize(firmware.Size, firmwarePath); err != nil {
			logrus.Error(err)
			return nil, err
		}
	}
	logrus.Infof("Downloaded %s to %s", firmware.URL, firmwarePath)
	return firmwarePath, nil
}

// Download runs d until the whole file has been fetched.
func Download(d *downloader.Downloader) error {
	if d == nil {
		// This signal means that the file is already downloaded
		return nil
	}
	if err := d.Run(); err != nil {
		return fmt.Errorf("failed to download file from %s : %s", d.URL, err)
	}
	// The URL is not reachable for some reason
	if d.Resp.StatusCode >= 400 && d.Resp.StatusCode <= 599 {
		return fmt.Errorf("failed to download file from %s : %s", d.URL, d.Resp.Status)
	}
	return nil
}

// VerifyFileChecksum checks filePath against checksum, in the form
// "ALGO:hexdigest" with ALGO one of SHA-256, SHA-1 or MD5.
func VerifyFileChecksum(checksum string, filePath *paths.Path) error {
	if checksum == "" {
		return fmt.Errorf("missing checksum for: %s", filePath)
	}
	split := strings.SplitN(checksum, ":", 2)
	if len(split) != 2 {
		return fmt.Errorf("invalid checksum format: %s", checksum)
	}
	digest, err := hex.DecodeString(split[1])
	if err != nil {
		return fmt.Errorf("invalid hash '%s': %s", split[1], err)
	}

	var algo hash.Hash
	switch split[0] {
	case "SHA-256":
		algo = sha256.New()
	case "SHA-1":
		algo = sha1.New()
	case "MD5":
		algo = md5.New()
	default:
		return fmt.Errorf("unsupported hash algorithm: %s", split[0])
	}

	file, err := filePath.Open()
	if err != nil {
		return fmt.Errorf("opening file: %s", err)
	}
	defer file.Close()
	if _, err := io.Copy(algo, file); err != nil {
		return fmt.Errorf("computing hash: %s", err)
	}
	if !bytes.Equal(algo.Sum(nil), digest) {
		return fmt.Errorf("firmware hash differs from the expected one")
	}
	return nil
}

func VerifyFileSize(size int64, filePath *paths.Path) error {
	info, err := filePath.Stat()
	if err != nil {
		return fmt.Errorf("getting firmware info: %s", err)
	}
	if info.Size() != size {
		return fmt.Errorf("fetched firmware size %d differs from the expected %d", info.Size(), size)
	}
	return nil
}
