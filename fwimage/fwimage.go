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

// Package fwimage splits a firmware image into the pages sent with
// UPLOAD_BLOCK and tells where the device flash sectors end.
package fwimage

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/arduino/go-paths-helper"
	"github.com/marcinbor85/gohex"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultPageSize is the payload size of one UPLOAD_BLOCK command
	DefaultPageSize = 128
	// DefaultSectorSize is the flash erase/commit unit of the device
	DefaultSectorSize = 4096

	// hexPadding fills the gaps between Intel HEX segments (erased flash)
	hexPadding = 0xFF
)

// TotalPages returns ceil(size / pageSize).
func TotalPages(size int64, pageSize int) int {
	if size <= 0 || pageSize <= 0 {
		return 0
	}
	return int((size + int64(pageSize) - 1) / int64(pageSize))
}

// PagesPerSector returns how many pages fit in a flash sector.
func PagesPerSector(pageSize, sectorSize int) int {
	if pageSize <= 0 || sectorSize < pageSize {
		return 1
	}
	return sectorSize / pageSize
}

// NeedsDelay reports whether the device needs time to settle after page
// index has been written: that is the case for the last page of each sector
// and for the last page of the image.
func NeedsDelay(index, totalPages, pageSize, sectorSize int) bool {
	perSector := PagesPerSector(pageSize, sectorSize)
	return index%perSector == perSector-1 || index+1 == totalPages
}

// Page is one upload unit of the image.
type Page struct {
	Index int
	Data  []byte
}

// Image is a firmware image ready to be paged out.
type Image struct {
	name     string
	size     int64
	pageSize int
	open     func() (io.ReadCloser, error)
}

// Open prepares the firmware file at path. Intel HEX files (".hex", ".ihex")
// are decoded and flattened into a contiguous binary; any other file is
// sent as is and read lazily.
func Open(path *paths.Path) (*Image, error) {
	info, err := path.Stat()
	if err != nil {
		return nil, fmt.Errorf("opening firmware: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("opening firmware: %s is a directory", path)
	}

	switch strings.ToLower(path.Ext()) {
	case ".hex", ".ihex":
		data, err := readIntelHex(path)
		if err != nil {
			return nil, err
		}
		logrus.Debugf("Decoded Intel HEX %s into %d bytes", path, len(data))
		img := FromBytes(path.String(), data)
		return img, nil
	}

	return &Image{
		name:     path.String(),
		size:     info.Size(),
		pageSize: DefaultPageSize,
		open: func() (io.ReadCloser, error) {
			return path.Open()
		},
	}, nil
}

// FromBytes wraps an in-memory image.
func FromBytes(name string, data []byte) *Image {
	return &Image{
		name:     name,
		size:     int64(len(data)),
		pageSize: DefaultPageSize,
		open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}

// WithPageSize returns a copy of the image paged with pageSize.
func (img *Image) WithPageSize(pageSize int) *Image {
	c := *img
	if pageSize > 0 {
		c.pageSize = pageSize
	}
	return &c
}

func (img *Image) String() string {
	return img.name
}

// Size is the image size in bytes.
func (img *Image) Size() int64 {
	return img.size
}

// PageSize is the size of every page except possibly the last one.
func (img *Image) PageSize() int {
	return img.pageSize
}

// TotalPages is the number of pages Pages will produce.
func (img *Image) TotalPages() int {
	return TotalPages(img.size, img.pageSize)
}

// Pages starts a new sequential pass over the image. Each call restarts from
// page 0. The returned iterator must be closed.
func (img *Image) Pages() (*PageIterator, error) {
	r, err := img.open()
	if err != nil {
		return nil, fmt.Errorf("reading firmware %s: %w", img.name, err)
	}
	return &PageIterator{
		r:     r,
		size:  img.pageSize,
		total: img.TotalPages(),
		index: -1,
	}, nil
}

// PageIterator reads an image one page at a time.
//
//	it, err := img.Pages()
//	...
//	defer it.Close()
//	for it.Next() {
//		page := it.Page()
//	}
//	if err := it.Err(); err != nil { ... }
type PageIterator struct {
	r     io.ReadCloser
	size  int
	total int
	index int
	page  Page
	err   error
}

// Next advances to the next page and reports whether there is one.
func (it *PageIterator) Next() bool {
	if it.err != nil || it.index+1 >= it.total {
		return false
	}
	buf := make([]byte, it.size)
	n, err := io.ReadFull(it.r, buf)
	switch {
	case err == nil:
	case errors.Is(err, io.ErrUnexpectedEOF) && n > 0:
		// short last page
	case errors.Is(err, io.EOF):
		it.err = fmt.Errorf("firmware ended at page %d, %d pages expected", it.index+1, it.total)
		return false
	default:
		it.err = err
		return false
	}
	it.index++
	it.page = Page{Index: it.index, Data: buf[:n]}
	return true
}

// Page returns the current page.
func (it *PageIterator) Page() Page {
	return it.page
}

// Err returns the first read error, if any.
func (it *PageIterator) Err() error {
	return it.err
}

// Close releases the underlying file.
func (it *PageIterator) Close() error {
	return it.r.Close()
}

func readIntelHex(path *paths.Path) ([]byte, error) {
	file, err := path.Open()
	if err != nil {
		return nil, fmt.Errorf("opening firmware: %w", err)
	}
	defer file.Close()

	mem := gohex.NewMemory()
	if err := mem.ParseIntelHex(file); err != nil {
		return nil, fmt.Errorf("parsing Intel HEX %s: %w", path, err)
	}
	segments := mem.GetDataSegments()
	if len(segments) == 0 {
		return nil, fmt.Errorf("parsing Intel HEX %s: no data", path)
	}
	sort.Slice(segments, func(i, j int) bool {
		return segments[i].Address < segments[j].Address
	})
	start := segments[0].Address
	last := segments[len(segments)-1]
	end := last.Address + uint32(len(last.Data))
	return mem.ToBinary(start, end-start, hexPadding), nil
}
