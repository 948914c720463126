package disk

import (
	"fmt"

	. "github.com/chainfs/chainfs/pkg/types"
)

// Device is a sector-addressed block device. Transfers are always
// whole sectors; callers that need sub-sector access bounce through a
// scratch buffer.
type Device interface {
	// ReadSector reads sector `sector` into `p`. `p` must be exactly
	// `SectorSize` bytes.
	ReadSector(sector Sector, p []byte) error

	// WriteSector writes `p` to sector `sector`. `p` must be exactly
	// `SectorSize` bytes.
	WriteSector(sector Sector, p []byte) error

	// Size returns the device capacity in sectors.
	Size() Sector
}

func checkTransfer(device Device, sector Sector, p []byte) {
	if Byte(len(p)) != SectorSize {
		panic(fmt.Sprintf(
			"sector transfer buffer must be `%d` bytes; found `%d`",
			SectorSize,
			len(p),
		))
	}
	if sector >= device.Size() {
		panic(fmt.Sprintf(
			"sector `%d` out of range for device of `%d` sectors",
			sector,
			device.Size(),
		))
	}
}
