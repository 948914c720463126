package disk

import (
	"fmt"
	"os"

	. "github.com/chainfs/chainfs/pkg/types"
)

// ImageDevice is a Device backed by a disk-image file.
type ImageDevice struct {
	file    *os.File
	sectors Sector
}

var _ Device = (*ImageDevice)(nil)

// CreateImage creates (or truncates) a disk image of `sectors`
// sectors at `path`.
func CreateImage(path string, sectors Sector) (*ImageDevice, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating image `%s`: %w", path, err)
	}
	if err := file.Truncate(int64(Byte(sectors) * SectorSize)); err != nil {
		file.Close()
		return nil, fmt.Errorf(
			"sizing image `%s` to `%d` sectors: %w",
			path,
			sectors,
			err,
		)
	}
	return &ImageDevice{file: file, sectors: sectors}, nil
}

// OpenImage opens an existing disk image. The image size must be a
// whole number of sectors.
func OpenImage(path string) (*ImageDevice, error) {
	file, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("opening image `%s`: %w", path, err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("opening image `%s`: %w", path, err)
	}
	if Byte(info.Size())%SectorSize != 0 {
		file.Close()
		return nil, fmt.Errorf(
			"opening image `%s`: size `%d` is not a whole number of "+
				"`%d`-byte sectors: %w",
			path,
			info.Size(),
			SectorSize,
			MisalignedImageErr,
		)
	}
	return &ImageDevice{
		file:    file,
		sectors: Sector(Byte(info.Size()) / SectorSize),
	}, nil
}

func (device *ImageDevice) ReadSector(sector Sector, p []byte) error {
	checkTransfer(device, sector, p)
	if _, err := device.file.ReadAt(
		p,
		int64(Byte(sector)*SectorSize),
	); err != nil {
		return fmt.Errorf(
			"reading sector `%d` from image `%s`: %w",
			sector,
			device.file.Name(),
			err,
		)
	}
	return nil
}

func (device *ImageDevice) WriteSector(sector Sector, p []byte) error {
	checkTransfer(device, sector, p)
	if _, err := device.file.WriteAt(
		p,
		int64(Byte(sector)*SectorSize),
	); err != nil {
		return fmt.Errorf(
			"writing sector `%d` to image `%s`: %w",
			sector,
			device.file.Name(),
			err,
		)
	}
	return nil
}

func (device *ImageDevice) Size() Sector { return device.sectors }

func (device *ImageDevice) Close() error { return device.file.Close() }

const (
	MisalignedImageErr ConstError = "image size not sector aligned"
)
