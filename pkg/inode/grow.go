package inode

import (
	"fmt"

	"github.com/chainfs/chainfs/pkg/math"
	. "github.com/chainfs/chainfs/pkg/types"
)

// grow extends the file to `newLength` bytes, allocating and
// zero-filling clusters one at a time from the chain tail. The
// length is updated optimistically up front; if the allocator runs
// dry partway through, it rolls back to the largest length every
// byte of which is backed by committed, zero-filled storage, and
// grow returns false. Shrinking is not supported.
func grow(fs *FileSystem, inode *Inode, newLength Byte) (bool, error) {
	origin := inode.rec.Length
	if newLength < origin {
		panic(fmt.Sprintf(
			"growing inode `%d` from `%d` to smaller length `%d`",
			inode.sector,
			origin,
			newLength,
		))
	}

	clusterBytes := fs.FAT.ClusterBytes()

	// locate the tail by walking the whole chain; translating the
	// end-of-file position would miss it in the state a previously
	// failed grow leaves behind (length exactly at the last cluster
	// boundary).
	tail := fs.FAT.SectorToCluster(inode.rec.Start)
	backed := clusterBytes
	for {
		next := fs.FAT.Follow(tail)
		if next == ClusterEOC {
			break
		}
		tail = next
		backed += clusterBytes
	}

	inode.rec.Length = newLength

	// keep one cluster beyond the last data byte, matching Create,
	// so the end-of-file position stays translatable.
	need := (newLength/clusterBytes + 1) * clusterBytes
	for backed < need {
		next, ok := fs.FAT.CreateChain(tail)
		if !ok {
			inode.rec.Length = math.Min(newLength, backed)
			return false, nil
		}
		if err := zeroFillCluster(fs, next); err != nil {
			inode.rec.Length = math.Min(newLength, backed)
			return false, fmt.Errorf(
				"growing inode `%d` to `%d` bytes: %w",
				inode.sector,
				newLength,
				err,
			)
		}
		tail = next
		backed += clusterBytes
	}
	return true, nil
}

func zeroFillCluster(fs *FileSystem, cluster Cluster) error {
	var zeros [SectorSize]byte
	sector := fs.FAT.ClusterToSector(cluster)
	for i := Sector(0); i < fs.FAT.SectorsPerCluster(); i++ {
		if err := fs.Device.WriteSector(sector+i, zeros[:]); err != nil {
			return fmt.Errorf(
				"zero-filling cluster `%d`: %w",
				cluster,
				err,
			)
		}
	}
	return nil
}
