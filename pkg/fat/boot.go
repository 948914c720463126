package fat

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"

	. "github.com/chainfs/chainfs/pkg/types"
)

// Magic identifies a formatted volume. It occupies the first four
// bytes of the boot record.
const Magic uint32 = 0x43464154 // "CFAT"

// BootRecord is the volume header stored in sector 0. The FAT region
// begins at sector 1 and the data region immediately after it.
type BootRecord struct {
	Magic             uint32
	VolumeID          uuid.UUID
	TotalSectors      Sector
	SectorsPerCluster Sector
	FATSectors        Sector
	Clusters          Cluster
}

func EncodeBootRecord(boot *BootRecord, b *[SectorSize]byte) {
	p := b[:]
	binary.LittleEndian.PutUint32(p[bootMagicStart:], boot.Magic)
	copy(p[bootVolumeIDStart:bootVolumeIDEnd], boot.VolumeID[:])
	binary.LittleEndian.PutUint32(
		p[bootTotalSectorsStart:],
		uint32(boot.TotalSectors),
	)
	binary.LittleEndian.PutUint32(
		p[bootSectorsPerClusterStart:],
		uint32(boot.SectorsPerCluster),
	)
	binary.LittleEndian.PutUint32(
		p[bootFATSectorsStart:],
		uint32(boot.FATSectors),
	)
	binary.LittleEndian.PutUint32(
		p[bootClustersStart:],
		uint32(boot.Clusters),
	)
}

func DecodeBootRecord(boot *BootRecord, b *[SectorSize]byte) error {
	p := b[:]

	// validate the magic before touching the pointee so a bad sector
	// never leaves a half-decoded record behind.
	magic := binary.LittleEndian.Uint32(p[bootMagicStart:])
	if magic != Magic {
		return fmt.Errorf(
			"decoding boot record: found magic `%#x`: %w",
			magic,
			BadMagicErr,
		)
	}

	boot.Magic = magic
	copy(boot.VolumeID[:], p[bootVolumeIDStart:bootVolumeIDEnd])
	boot.TotalSectors = Sector(
		binary.LittleEndian.Uint32(p[bootTotalSectorsStart:]),
	)
	boot.SectorsPerCluster = Sector(
		binary.LittleEndian.Uint32(p[bootSectorsPerClusterStart:]),
	)
	boot.FATSectors = Sector(
		binary.LittleEndian.Uint32(p[bootFATSectorsStart:]),
	)
	boot.Clusters = Cluster(
		binary.LittleEndian.Uint32(p[bootClustersStart:]),
	)
	return nil
}

const (
	bootMagicStart = 0
	bootMagicSize  = 4
	bootMagicEnd   = bootMagicStart + bootMagicSize

	bootVolumeIDStart = bootMagicEnd
	bootVolumeIDSize  = 16
	bootVolumeIDEnd   = bootVolumeIDStart + bootVolumeIDSize

	bootTotalSectorsStart = bootVolumeIDEnd
	bootTotalSectorsSize  = 4
	bootTotalSectorsEnd   = bootTotalSectorsStart + bootTotalSectorsSize

	bootSectorsPerClusterStart = bootTotalSectorsEnd
	bootSectorsPerClusterSize  = 4
	bootSectorsPerClusterEnd   = bootSectorsPerClusterStart +
		bootSectorsPerClusterSize

	bootFATSectorsStart = bootSectorsPerClusterEnd
	bootFATSectorsSize  = 4
	bootFATSectorsEnd   = bootFATSectorsStart + bootFATSectorsSize

	bootClustersStart = bootFATSectorsEnd
	bootClustersSize  = 4
	bootClustersEnd   = bootClustersStart + bootClustersSize
)

const (
	BadMagicErr ConstError = "bad boot record magic"
)
