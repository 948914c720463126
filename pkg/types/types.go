package types

// Byte is a logical byte count or byte offset. It is signed so that
// offset arithmetic (`length - offset`) can go negative without
// wrapping.
type Byte int64

// Sector is a physical device sector number.
type Sector uint32

// Cluster is a chain-allocator unit number. A cluster spans one or
// more device sectors.
type Cluster uint32

const (
	// SectorSize is the fixed size of every device sector.
	SectorSize Byte = 512

	SectorNil Sector = 0

	// ClusterNil marks a free FAT entry; cluster 0 is never part of
	// a chain.
	ClusterNil Cluster = 0

	// ClusterEOC terminates a chain.
	ClusterEOC Cluster = 0xffffffff
)

type ConstError string

func (err ConstError) Error() string { return string(err) }
