package fat

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"

	"github.com/chainfs/chainfs/pkg/disk"
	"github.com/chainfs/chainfs/pkg/math"
	. "github.com/chainfs/chainfs/pkg/types"
)

// entrySize is the on-device width of one FAT entry.
const entrySize Byte = 4

// bootSector is where the boot record lives.
const bootSector Sector = 0

// Table is the in-memory chain allocation table for one volume.
// Entry `c` holds the successor of cluster `c`: `ClusterNil` if `c`
// is free, `ClusterEOC` if `c` ends its chain. Cluster 0 is reserved
// and never allocated.
type Table struct {
	device  disk.Device
	boot    BootRecord
	entries []Cluster
}

type FormatParams struct {
	SectorsPerCluster Sector
}

// Format stamps a fresh volume onto `device` and returns its table.
// All clusters start free.
func Format(device disk.Device, params *FormatParams) (*Table, error) {
	spc := params.SectorsPerCluster
	if spc == 0 {
		spc = 1
	}
	total := device.Size()

	// sector 0 is the boot record; everything after the FAT region is
	// data. Sizing the FAT from the pre-FAT sector count wastes a few
	// entries but never undersizes the table.
	avail := total - 1
	maxClusters := Cluster(avail / spc)
	fatSectors := Sector(math.DivRoundUp(
		Byte(maxClusters+1)*entrySize,
		SectorSize,
	))
	if fatSectors >= avail {
		return nil, fmt.Errorf(
			"formatting volume of `%d` sectors: %w",
			total,
			VolumeTooSmallErr,
		)
	}
	clusters := Cluster((avail - fatSectors) / spc)
	if clusters == 0 {
		return nil, fmt.Errorf(
			"formatting volume of `%d` sectors: %w",
			total,
			VolumeTooSmallErr,
		)
	}

	table := &Table{
		device: device,
		boot: BootRecord{
			Magic:             Magic,
			VolumeID:          uuid.New(),
			TotalSectors:      total,
			SectorsPerCluster: spc,
			FATSectors:        fatSectors,
			Clusters:          clusters,
		},
		entries: make([]Cluster, clusters+1),
	}
	if err := table.Flush(); err != nil {
		return nil, fmt.Errorf("formatting volume: %w", err)
	}
	return table, nil
}

// Load reads the boot record and table of an already formatted
// volume.
func Load(device disk.Device) (*Table, error) {
	table := &Table{device: device}

	var buf [SectorSize]byte
	if err := device.ReadSector(bootSector, buf[:]); err != nil {
		return nil, fmt.Errorf("loading allocation table: %w", err)
	}
	if err := DecodeBootRecord(&table.boot, &buf); err != nil {
		return nil, fmt.Errorf("loading allocation table: %w", err)
	}

	table.entries = make([]Cluster, table.boot.Clusters+1)
	for i := Sector(0); i < table.boot.FATSectors; i++ {
		if err := device.ReadSector(1+i, buf[:]); err != nil {
			return nil, fmt.Errorf("loading allocation table: %w", err)
		}
		base := Cluster(Byte(i) * SectorSize / entrySize)
		for j := Byte(0); j < SectorSize/entrySize; j++ {
			entry := base + Cluster(j)
			if entry > table.boot.Clusters {
				break
			}
			table.entries[entry] = Cluster(
				binary.LittleEndian.Uint32(buf[j*entrySize:]),
			)
		}
	}
	return table, nil
}

// Flush writes the boot record and the table back to the device.
func (table *Table) Flush() error {
	var buf [SectorSize]byte
	EncodeBootRecord(&table.boot, &buf)
	if err := table.device.WriteSector(bootSector, buf[:]); err != nil {
		return fmt.Errorf("flushing allocation table: %w", err)
	}

	for i := Sector(0); i < table.boot.FATSectors; i++ {
		buf = [SectorSize]byte{}
		base := Cluster(Byte(i) * SectorSize / entrySize)
		for j := Byte(0); j < SectorSize/entrySize; j++ {
			entry := base + Cluster(j)
			if entry > table.boot.Clusters {
				break
			}
			binary.LittleEndian.PutUint32(
				buf[j*entrySize:],
				uint32(table.entries[entry]),
			)
		}
		if err := table.device.WriteSector(1+i, buf[:]); err != nil {
			return fmt.Errorf("flushing allocation table: %w", err)
		}
	}
	return nil
}

// CreateChain allocates a free cluster. If `after` is `ClusterNil`
// the new cluster starts a chain; otherwise it is appended to
// `after`, which must currently end its chain. Returns false when no
// cluster is free.
func (table *Table) CreateChain(after Cluster) (Cluster, bool) {
	if after != ClusterNil {
		table.checkCluster(after)
		if table.entries[after] != ClusterEOC {
			panic(fmt.Sprintf(
				"appending to cluster `%d` which is not a chain tail",
				after,
			))
		}
	}

	for c := Cluster(1); c <= table.boot.Clusters; c++ {
		if table.entries[c] == ClusterNil {
			table.entries[c] = ClusterEOC
			if after != ClusterNil {
				table.entries[after] = c
			}
			return c, true
		}
	}
	return ClusterNil, false
}

// Follow returns the cluster after `c` in its chain, or `ClusterEOC`
// if `c` is the last one.
func (table *Table) Follow(c Cluster) Cluster {
	table.checkCluster(c)
	next := table.entries[c]
	if next == ClusterNil {
		panic(fmt.Sprintf("following free cluster `%d`", c))
	}
	return next
}

// RemoveChain frees every cluster in the chain starting at `start`.
func (table *Table) RemoveChain(start Cluster) {
	c := start
	for c != ClusterEOC {
		table.checkCluster(c)
		next := table.entries[c]
		if next == ClusterNil {
			panic(fmt.Sprintf("removing free cluster `%d`", c))
		}
		table.entries[c] = ClusterNil
		c = next
	}
}

// ClusterToSector returns the first device sector of cluster `c`.
func (table *Table) ClusterToSector(c Cluster) Sector {
	table.checkCluster(c)
	return table.dataStart() + Sector(c-1)*table.boot.SectorsPerCluster
}

// SectorToCluster returns the cluster containing data sector
// `sector`.
func (table *Table) SectorToCluster(sector Sector) Cluster {
	start := table.dataStart()
	if sector < start || sector >= table.boot.TotalSectors {
		panic(fmt.Sprintf(
			"sector `%d` outside the data region [`%d`, `%d`)",
			sector,
			start,
			table.boot.TotalSectors,
		))
	}
	return Cluster((sector-start)/table.boot.SectorsPerCluster) + 1
}

func (table *Table) SectorsPerCluster() Sector {
	return table.boot.SectorsPerCluster
}

// ClusterBytes returns the size of one cluster in bytes.
func (table *Table) ClusterBytes() Byte {
	return Byte(table.boot.SectorsPerCluster) * SectorSize
}

func (table *Table) Boot() *BootRecord { return &table.boot }

// FreeClusters returns the number of unallocated clusters.
func (table *Table) FreeClusters() Cluster {
	free := Cluster(0)
	for c := Cluster(1); c <= table.boot.Clusters; c++ {
		if table.entries[c] == ClusterNil {
			free++
		}
	}
	return free
}

func (table *Table) dataStart() Sector {
	return 1 + table.boot.FATSectors
}

func (table *Table) checkCluster(c Cluster) {
	if c < 1 || c > table.boot.Clusters {
		panic(fmt.Sprintf(
			"cluster `%d` out of range [1, `%d`]",
			c,
			table.boot.Clusters,
		))
	}
}

const (
	VolumeTooSmallErr ConstError = "volume too small to format"
)
