package inode

import (
	"fmt"

	"github.com/chainfs/chainfs/pkg/disk"
	"github.com/chainfs/chainfs/pkg/fat"
	. "github.com/chainfs/chainfs/pkg/types"
)

// Inode is the live handle for one open file. All opens of the same
// root sector share a single Inode; the registry in FileSystem
// dedups them.
type Inode struct {
	// sector is where the record lives on device; it identifies the
	// inode.
	sector Sector

	openCount      int
	removed        bool
	denyWriteCount int

	rec Record
}

// Length returns the file size in bytes.
func (inode *Inode) Length() Byte { return inode.rec.Length }

// Inumber returns the root sector identifying the inode.
func (inode *Inode) Inumber() Sector { return inode.sector }

// FileSystem binds a device and its allocation table to the set of
// currently open inodes. The registry is weak: an inode leaves it as
// soon as its last opener closes.
type FileSystem struct {
	Device disk.Device
	FAT    *fat.Table

	open map[Sector]*Inode
}

func NewFileSystem(device disk.Device, table *fat.Table) *FileSystem {
	return &FileSystem{
		Device: device,
		FAT:    table,
		open:   make(map[Sector]*Inode),
	}
}

// Create writes a fresh record of `length` bytes to `sector` and
// allocates its zero-filled data chain. A failed create releases
// whatever it had allocated and leaves no file behind.
func Create(fs *FileSystem, sector Sector, length Byte) error {
	if length < 0 {
		panic(fmt.Sprintf("creating inode with negative length `%d`", length))
	}

	// one cluster beyond the last data byte, so the end-of-file
	// position is always translatable.
	clusters := length/fs.FAT.ClusterBytes() + 1

	var head, tail Cluster
	for i := Byte(0); i < clusters; i++ {
		next, ok := fs.FAT.CreateChain(tail)
		if !ok {
			if head != ClusterNil {
				fs.FAT.RemoveChain(head)
			}
			return fmt.Errorf(
				"creating inode at sector `%d` with length `%d`: %w",
				sector,
				length,
				OutOfClustersErr,
			)
		}
		if head == ClusterNil {
			head = next
		}
		tail = next
		if err := zeroFillCluster(fs, next); err != nil {
			fs.FAT.RemoveChain(head)
			return fmt.Errorf(
				"creating inode at sector `%d`: %w",
				sector,
				err,
			)
		}
	}

	rec := Record{
		Start:  fs.FAT.ClusterToSector(head),
		Length: length,
		Magic:  RecordMagic,
	}
	var buf [SectorSize]byte
	EncodeRecord(&rec, &buf)
	if err := fs.Device.WriteSector(sector, buf[:]); err != nil {
		fs.FAT.RemoveChain(head)
		return fmt.Errorf("creating inode at sector `%d`: %w", sector, err)
	}
	return nil
}

// Open returns a handle for the inode whose record lives at
// `sector`. Opening an already open root sector returns the
// registered instance with its open count bumped.
func Open(fs *FileSystem, sector Sector) (*Inode, error) {
	if inode, exists := fs.open[sector]; exists {
		return Reopen(inode), nil
	}

	var buf [SectorSize]byte
	if err := fs.Device.ReadSector(sector, buf[:]); err != nil {
		return nil, fmt.Errorf("opening inode at sector `%d`: %w", sector, err)
	}

	inode := &Inode{sector: sector, openCount: 1}
	DecodeRecord(&inode.rec, &buf)
	fs.open[sector] = inode
	return inode, nil
}

// Reopen bumps the open count of an already open inode. No I/O.
func Reopen(inode *Inode) *Inode {
	if inode != nil {
		inode.openCount++
	}
	return inode
}

// Close drops one opener. The last close unregisters the inode and
// flushes its record; if the inode was removed, the data chain and
// the record's own storage go back to the allocator. Closing nil is
// a no-op.
func Close(fs *FileSystem, inode *Inode) error {
	if inode == nil {
		return nil
	}
	if inode.openCount <= 0 {
		panic(fmt.Sprintf(
			"closing inode `%d` with open count `%d`",
			inode.sector,
			inode.openCount,
		))
	}

	inode.openCount--
	if inode.openCount > 0 {
		return nil
	}

	delete(fs.open, inode.sector)

	var buf [SectorSize]byte
	EncodeRecord(&inode.rec, &buf)
	if err := fs.Device.WriteSector(inode.sector, buf[:]); err != nil {
		return fmt.Errorf("closing inode `%d`: %w", inode.sector, err)
	}

	if inode.removed {
		fs.FAT.RemoveChain(fs.FAT.SectorToCluster(inode.rec.Start))
		fs.FAT.RemoveChain(fs.FAT.SectorToCluster(inode.sector))
	}
	return nil
}

// Remove marks the inode for deletion at its last close. Current
// openers keep reading and writing it until then.
func Remove(inode *Inode) {
	inode.removed = true
}

// DenyWrite blocks writers of the inode. May be called at most once
// per opener.
func DenyWrite(inode *Inode) {
	inode.denyWriteCount++
	if inode.denyWriteCount > inode.openCount {
		panic(fmt.Sprintf(
			"inode `%d`: deny-write count `%d` exceeds open count `%d`",
			inode.sector,
			inode.denyWriteCount,
			inode.openCount,
		))
	}
}

// AllowWrite undoes one DenyWrite. Must be called exactly once per
// prior DenyWrite, before that opener closes.
func AllowWrite(inode *Inode) {
	if inode.denyWriteCount <= 0 {
		panic(fmt.Sprintf(
			"inode `%d`: allow-write with deny-write count `%d`",
			inode.sector,
			inode.denyWriteCount,
		))
	}
	if inode.denyWriteCount > inode.openCount {
		panic(fmt.Sprintf(
			"inode `%d`: deny-write count `%d` exceeds open count `%d`",
			inode.sector,
			inode.denyWriteCount,
			inode.openCount,
		))
	}
	inode.denyWriteCount--
}

const (
	OutOfClustersErr ConstError = "out of free clusters"
)
