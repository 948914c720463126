package inode

import (
	"encoding/binary"

	. "github.com/chainfs/chainfs/pkg/types"
)

// RecordMagic identifies an inode record. It is stamped at creation
// and reserved for corruption detection; nothing in this layer
// validates it.
const RecordMagic uint32 = 0x494e4f44 // "INOD"

// Record is the on-device description of one file. It occupies
// exactly one sector; everything past the fields is zero padding.
type Record struct {
	// Start is the first sector of the file's data chain. Distinct
	// from the sector the record itself lives in.
	Start Sector

	// Length is the file size in bytes.
	Length Byte

	Magic uint32
}

func EncodeRecord(rec *Record, b *[SectorSize]byte) {
	p := b[:]
	binary.LittleEndian.PutUint32(p[recordStartStart:], uint32(rec.Start))
	binary.LittleEndian.PutUint64(p[recordLengthStart:], uint64(rec.Length))
	binary.LittleEndian.PutUint32(p[recordMagicStart:], rec.Magic)
	for i := recordPadStart; i < SectorSize; i++ {
		p[i] = 0
	}
}

func DecodeRecord(rec *Record, b *[SectorSize]byte) {
	p := b[:]
	rec.Start = Sector(binary.LittleEndian.Uint32(p[recordStartStart:]))
	rec.Length = Byte(binary.LittleEndian.Uint64(p[recordLengthStart:]))
	rec.Magic = binary.LittleEndian.Uint32(p[recordMagicStart:])
}

const (
	recordStartStart = 0
	recordStartSize  = 4
	recordStartEnd   = recordStartStart + recordStartSize

	recordLengthStart = recordStartEnd
	recordLengthSize  = 8
	recordLengthEnd   = recordLengthStart + recordLengthSize

	recordMagicStart = recordLengthEnd
	recordMagicSize  = 4
	recordMagicEnd   = recordMagicStart + recordMagicSize

	recordPadStart Byte = recordMagicEnd
)

// The record must fit in one sector; this conversion fails to
// compile if the fields ever outgrow it.
const _ = uint64(SectorSize - recordPadStart)
