package disk

import (
	. "github.com/chainfs/chainfs/pkg/types"
)

// MemDevice is a byte-slice backed Device, mostly for tests.
type MemDevice struct {
	buf []byte
}

var _ Device = (*MemDevice)(nil)

func NewMemDevice(sectors Sector) *MemDevice {
	return &MemDevice{buf: make([]byte, Byte(sectors)*SectorSize)}
}

func (device *MemDevice) ReadSector(sector Sector, p []byte) error {
	checkTransfer(device, sector, p)
	offset := Byte(sector) * SectorSize
	copy(p, device.buf[offset:offset+SectorSize])
	return nil
}

func (device *MemDevice) WriteSector(sector Sector, p []byte) error {
	checkTransfer(device, sector, p)
	offset := Byte(sector) * SectorSize
	copy(device.buf[offset:offset+SectorSize], p)
	return nil
}

func (device *MemDevice) Size() Sector {
	return Sector(Byte(len(device.buf)) / SectorSize)
}
