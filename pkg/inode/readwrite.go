package inode

import (
	"fmt"

	"github.com/chainfs/chainfs/pkg/math"
	. "github.com/chainfs/chainfs/pkg/types"
)

// ReadAt reads up to `len(p)` bytes from the file starting at byte
// `offset`. It returns the number of bytes read, which is short of
// `len(p)` at end of file; a short read is not an error. The device
// only moves whole sectors, so partial-sector chunks bounce through
// a scratch buffer.
func ReadAt(fs *FileSystem, inode *Inode, p []byte, offset Byte) (Byte, error) {
	if offset < 0 {
		panic(fmt.Sprintf("reading at negative offset `%d`", offset))
	}

	size := Byte(len(p))
	read := Byte(0)
	var bounce []byte

	for size > 0 {
		sectorOfs := offset % SectorSize

		// bytes left in the file, bytes left in the sector, lesser
		// of the two.
		fileLeft := inode.rec.Length - offset
		sectorLeft := SectorSize - sectorOfs
		chunk := math.Min(size, math.Min(fileLeft, sectorLeft))
		if chunk <= 0 {
			break
		}

		sector, ok := byteToSector(fs, inode, offset)
		if !ok {
			break
		}

		if sectorOfs == 0 && chunk == SectorSize {
			// full aligned sector, straight into the caller's
			// buffer.
			if err := fs.Device.ReadSector(
				sector,
				p[read:read+SectorSize],
			); err != nil {
				return read, fmt.Errorf(
					"reading inode `%d` at offset `%d`: %w",
					inode.sector,
					offset,
					err,
				)
			}
		} else {
			if bounce == nil {
				bounce = make([]byte, SectorSize)
			}
			if err := fs.Device.ReadSector(sector, bounce); err != nil {
				return read, fmt.Errorf(
					"reading inode `%d` at offset `%d`: %w",
					inode.sector,
					offset,
					err,
				)
			}
			copy(p[read:read+chunk], bounce[sectorOfs:sectorOfs+chunk])
		}

		size -= chunk
		offset += chunk
		read += chunk
	}
	return read, nil
}

// WriteAt writes `p` into the file starting at byte `offset`,
// growing the file first when the write lands past the current end.
// A write-denied inode transfers zero bytes; that is a normal
// outcome, not an error. The count comes back short only when the
// allocator could not back the requested growth.
func WriteAt(fs *FileSystem, inode *Inode, p []byte, offset Byte) (Byte, error) {
	if offset < 0 {
		panic(fmt.Sprintf("writing at negative offset `%d`", offset))
	}

	if inode.denyWriteCount > 0 {
		return 0, nil
	}

	size := Byte(len(p))
	written := Byte(0)
	var bounce []byte

	if offset+size > inode.rec.Length {
		// a failed grow rolls the length back to the committed
		// boundary; the chunk loop below then stops there on its
		// own.
		if _, err := grow(fs, inode, offset+size); err != nil {
			return 0, fmt.Errorf(
				"writing inode `%d` at offset `%d`: %w",
				inode.sector,
				offset,
				err,
			)
		}
	}

	for size > 0 {
		sectorOfs := offset % SectorSize

		fileLeft := inode.rec.Length - offset
		sectorLeft := SectorSize - sectorOfs
		chunk := math.Min(size, math.Min(fileLeft, sectorLeft))
		if chunk <= 0 {
			break
		}

		sector, ok := byteToSector(fs, inode, offset)
		if !ok {
			break
		}

		if sectorOfs == 0 && chunk == SectorSize {
			// full aligned sector, straight from the caller's
			// buffer.
			if err := fs.Device.WriteSector(
				sector,
				p[written:written+SectorSize],
			); err != nil {
				return written, fmt.Errorf(
					"writing inode `%d` at offset `%d`: %w",
					inode.sector,
					offset,
					err,
				)
			}
		} else {
			if bounce == nil {
				bounce = make([]byte, SectorSize)
			}

			// if the sector holds data outside the chunk, read it
			// in first; otherwise start from zeros.
			if sectorOfs > 0 || chunk < sectorLeft {
				if err := fs.Device.ReadSector(sector, bounce); err != nil {
					return written, fmt.Errorf(
						"writing inode `%d` at offset `%d`: %w",
						inode.sector,
						offset,
						err,
					)
				}
			} else {
				for i := range bounce {
					bounce[i] = 0
				}
			}
			copy(bounce[sectorOfs:sectorOfs+chunk], p[written:written+chunk])
			if err := fs.Device.WriteSector(sector, bounce); err != nil {
				return written, fmt.Errorf(
					"writing inode `%d` at offset `%d`: %w",
					inode.sector,
					offset,
					err,
				)
			}
		}

		size -= chunk
		offset += chunk
		written += chunk
	}
	return written, nil
}
