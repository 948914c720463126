package inode

import (
	"fmt"

	. "github.com/chainfs/chainfs/pkg/types"
)

// byteToSector maps logical byte position `pos` within the file to
// the device sector holding it, walking the allocation chain from
// the head. The walk is linear in the cluster index; there are no
// index blocks. Returns false when `pos` is past the end of the file
// or past the backed portion of the chain.
func byteToSector(fs *FileSystem, inode *Inode, pos Byte) (Sector, bool) {
	if pos < 0 {
		panic(fmt.Sprintf("translating negative offset `%d`", pos))
	}
	if pos > inode.rec.Length {
		return SectorNil, false
	}

	clusterBytes := fs.FAT.ClusterBytes()
	nth := pos / clusterBytes

	cluster := fs.FAT.SectorToCluster(inode.rec.Start)
	for i := Byte(0); i < nth; i++ {
		cluster = fs.FAT.Follow(cluster)
		if cluster == ClusterEOC {
			return SectorNil, false
		}
	}

	clusterOfs := pos - nth*clusterBytes
	return fs.FAT.ClusterToSector(cluster) + Sector(clusterOfs/SectorSize),
		true
}
