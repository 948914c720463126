package inode

import (
	"bytes"
	"testing"

	"github.com/chainfs/chainfs/pkg/disk"
	"github.com/chainfs/chainfs/pkg/fat"
	. "github.com/chainfs/chainfs/pkg/types"
)

func newTestFS(t *testing.T, sectors, sectorsPerCluster Sector) *FileSystem {
	t.Helper()
	device := disk.NewMemDevice(sectors)
	table, err := fat.Format(device, &fat.FormatParams{
		SectorsPerCluster: sectorsPerCluster,
	})
	if err != nil {
		t.Fatalf("Format(): unexpected err: %v", err)
	}
	return NewFileSystem(device, table)
}

// mustCreate allocates a record sector the way the directory layer
// would and creates an inode there.
func mustCreate(t *testing.T, fs *FileSystem, length Byte) Sector {
	t.Helper()
	cluster, ok := fs.FAT.CreateChain(ClusterNil)
	if !ok {
		t.Fatalf("CreateChain(): out of clusters allocating record sector")
	}
	sector := fs.FAT.ClusterToSector(cluster)
	if err := Create(fs, sector, length); err != nil {
		t.Fatalf("Create(): unexpected err: %v", err)
	}
	return sector
}

func mustOpen(t *testing.T, fs *FileSystem, sector Sector) *Inode {
	t.Helper()
	handle, err := Open(fs, sector)
	if err != nil {
		t.Fatalf("Open(): unexpected err: %v", err)
	}
	return handle
}

func TestRoundTrip(t *testing.T) {
	fs := newTestFS(t, 1024, 1)

	input := make([]byte, 3000)
	for i := range input {
		input[i] = byte(i % 251)
	}

	sector := mustCreate(t, fs, Byte(len(input)))
	handle := mustOpen(t, fs, sector)
	defer Close(fs, handle)

	n, err := WriteAt(fs, handle, input, 0)
	if err != nil {
		t.Fatalf("WriteAt(): unexpected err: %v", err)
	}
	if n != Byte(len(input)) {
		t.Fatalf(
			"WriteAt(): wanted `%d` bytes written; found `%d`",
			len(input),
			n,
		)
	}

	output := make([]byte, len(input))
	n, err = ReadAt(fs, handle, output, 0)
	if err != nil {
		t.Fatalf("ReadAt(): unexpected err: %v", err)
	}
	if n != Byte(len(input)) {
		t.Fatalf(
			"ReadAt(): wanted `%d` bytes read; found `%d`",
			len(input),
			n,
		)
	}
	if !bytes.Equal(input, output) {
		t.Fatalf("ReadAt(): read data differs from written data")
	}
}

func TestReadPastEnd(t *testing.T) {
	fs := newTestFS(t, 1024, 1)
	sector := mustCreate(t, fs, 100)
	handle := mustOpen(t, fs, sector)
	defer Close(fs, handle)

	buf := make([]byte, 200)
	n, err := ReadAt(fs, handle, buf, 50)
	if err != nil {
		t.Fatalf("ReadAt(): unexpected err: %v", err)
	}
	if n != 50 {
		t.Fatalf("ReadAt(): wanted `50` bytes at end of file; found `%d`", n)
	}

	n, err = ReadAt(fs, handle, buf, 100)
	if err != nil {
		t.Fatalf("ReadAt(): unexpected err: %v", err)
	}
	if n != 0 {
		t.Fatalf("ReadAt(): wanted `0` bytes past end of file; found `%d`", n)
	}
}

func TestGrowthMonotonic(t *testing.T) {
	fs := newTestFS(t, 1024, 1)
	sector := mustCreate(t, fs, 0)
	handle := mustOpen(t, fs, sector)
	defer Close(fs, handle)

	offsets := []Byte{0, 700, 100, 2000, 1500, 0}
	previous := Byte(0)
	for _, offset := range offsets {
		if _, err := WriteAt(
			fs,
			handle,
			[]byte("payload"),
			offset,
		); err != nil {
			t.Fatalf("WriteAt(): unexpected err: %v", err)
		}
		if handle.Length() < previous {
			t.Fatalf(
				"Length(): shrank from `%d` to `%d`",
				previous,
				handle.Length(),
			)
		}
		previous = handle.Length()
	}
}

func TestGrowthExhaustion(t *testing.T) {
	// 16 sectors: boot + 1 FAT sector + 14 clusters. The record
	// takes one cluster and the empty file's chain another, leaving
	// 12.
	fs := newTestFS(t, 16, 1)
	sector := mustCreate(t, fs, 0)
	handle := mustOpen(t, fs, sector)
	defer Close(fs, handle)

	input := make([]byte, 20*SectorSize)
	for i := range input {
		input[i] = byte(i % 127)
	}

	n, err := WriteAt(fs, handle, input, 0)
	if err != nil {
		t.Fatalf("WriteAt(): unexpected err: %v", err)
	}

	// 12 granted clusters plus the one the empty file already owned
	// back exactly 13 sectors.
	wanted := 13 * SectorSize
	if handle.Length() != wanted {
		t.Fatalf(
			"Length(): wanted rollback to `%d`; found `%d`",
			wanted,
			handle.Length(),
		)
	}
	if n != wanted {
		t.Fatalf("WriteAt(): wanted `%d` bytes written; found `%d`", wanted, n)
	}
	if free := fs.FAT.FreeClusters(); free != 0 {
		t.Fatalf("FreeClusters(): wanted `0`; found `%d`", free)
	}

	// everything within the committed length reads back intact.
	output := make([]byte, len(input))
	n, err = ReadAt(fs, handle, output, 0)
	if err != nil {
		t.Fatalf("ReadAt(): unexpected err: %v", err)
	}
	if n != wanted {
		t.Fatalf("ReadAt(): wanted `%d` bytes read; found `%d`", wanted, n)
	}
	if !bytes.Equal(input[:wanted], output[:wanted]) {
		t.Fatalf("ReadAt(): committed data differs from written data")
	}
}

func TestCreateFailureLeavesNoFile(t *testing.T) {
	fs := newTestFS(t, 16, 1)

	// burn clusters until only three are free.
	for fs.FAT.FreeClusters() > 3 {
		if _, ok := fs.FAT.CreateChain(ClusterNil); !ok {
			t.Fatalf("CreateChain(): unexpected exhaustion")
		}
	}

	// 5 sectors of data need 6 clusters; creation must fail and
	// release the partial chain.
	if err := Create(fs, fs.FAT.ClusterToSector(1), 5*SectorSize); err == nil {
		t.Fatalf("Create(): wanted out-of-clusters err; found nil")
	}
	if free := fs.FAT.FreeClusters(); free != 3 {
		t.Fatalf(
			"FreeClusters(): wanted `3` after failed create; found `%d`",
			free,
		)
	}
}

func TestReopenDedup(t *testing.T) {
	fs := newTestFS(t, 1024, 1)
	sector := mustCreate(t, fs, 0)

	h1 := mustOpen(t, fs, sector)
	h2 := mustOpen(t, fs, sector)
	if h1 != h2 {
		t.Fatalf("Open(): wanted the same instance for both opens")
	}
	if h1.openCount != 2 {
		t.Fatalf("Open(): wanted open count `2`; found `%d`", h1.openCount)
	}

	if err := Close(fs, h1); err != nil {
		t.Fatalf("Close(): unexpected err: %v", err)
	}
	if h2.openCount != 1 {
		t.Fatalf("Close(): wanted open count `1`; found `%d`", h2.openCount)
	}
	if _, registered := fs.open[sector]; !registered {
		t.Fatalf("Close(): inode unregistered while still open")
	}

	if err := Close(fs, h2); err != nil {
		t.Fatalf("Close(): unexpected err: %v", err)
	}
	if _, registered := fs.open[sector]; registered {
		t.Fatalf("Close(): inode still registered after last close")
	}
}

func TestCloseFlushesRecord(t *testing.T) {
	fs := newTestFS(t, 1024, 1)
	sector := mustCreate(t, fs, 0)

	handle := mustOpen(t, fs, sector)
	if _, err := WriteAt(fs, handle, []byte("hello"), 0); err != nil {
		t.Fatalf("WriteAt(): unexpected err: %v", err)
	}
	if err := Close(fs, handle); err != nil {
		t.Fatalf("Close(): unexpected err: %v", err)
	}

	// a fresh open reads the flushed record back from the device.
	handle = mustOpen(t, fs, sector)
	defer Close(fs, handle)
	if handle.Length() != 5 {
		t.Fatalf(
			"Length(): wanted `5` after reopen; found `%d`",
			handle.Length(),
		)
	}
}

func TestCloseNil(t *testing.T) {
	fs := newTestFS(t, 1024, 1)
	if err := Close(fs, nil); err != nil {
		t.Fatalf("Close(nil): unexpected err: %v", err)
	}
}

func TestDenyWrite(t *testing.T) {
	fs := newTestFS(t, 1024, 1)
	sector := mustCreate(t, fs, Byte(len("original")))

	h1 := mustOpen(t, fs, sector)
	defer Close(fs, h1)
	if _, err := WriteAt(fs, h1, []byte("original"), 0); err != nil {
		t.Fatalf("WriteAt(): unexpected err: %v", err)
	}

	// denial applies to sibling handles of the same inode too.
	h2 := mustOpen(t, fs, sector)
	defer Close(fs, h2)
	DenyWrite(h1)

	n, err := WriteAt(fs, h2, []byte("clobbers"), 0)
	if err != nil {
		t.Fatalf("WriteAt(): unexpected err: %v", err)
	}
	if n != 0 {
		t.Fatalf(
			"WriteAt(): wanted `0` bytes while write-denied; found `%d`",
			n,
		)
	}

	buf := make([]byte, len("original"))
	if _, err := ReadAt(fs, h2, buf, 0); err != nil {
		t.Fatalf("ReadAt(): unexpected err: %v", err)
	}
	if !bytes.Equal(buf, []byte("original")) {
		t.Fatalf(
			"ReadAt(): device contents changed by a denied write: `%s`",
			buf,
		)
	}

	AllowWrite(h1)
	n, err = WriteAt(fs, h2, []byte("clobbers"), 0)
	if err != nil {
		t.Fatalf("WriteAt(): unexpected err: %v", err)
	}
	if n != Byte(len("clobbers")) {
		t.Fatalf(
			"WriteAt(): wanted `%d` bytes after allow-write; found `%d`",
			len("clobbers"),
			n,
		)
	}
}

func TestAllowWriteUnderflowPanics(t *testing.T) {
	fs := newTestFS(t, 1024, 1)
	sector := mustCreate(t, fs, 0)
	handle := mustOpen(t, fs, sector)
	defer Close(fs, handle)

	defer func() {
		if recover() == nil {
			t.Fatalf("AllowWrite(): wanted panic on counter underflow")
		}
	}()
	AllowWrite(handle)
}

func TestDenyWriteOverflowPanics(t *testing.T) {
	fs := newTestFS(t, 1024, 1)
	sector := mustCreate(t, fs, 0)
	handle := mustOpen(t, fs, sector)
	defer Close(fs, handle)

	DenyWrite(handle)
	defer func() {
		if recover() == nil {
			t.Fatalf(
				"DenyWrite(): wanted panic on exceeding the open count",
			)
		}
	}()
	DenyWrite(handle)
}

func TestDeferredDelete(t *testing.T) {
	fs := newTestFS(t, 1024, 1)
	baseline := fs.FAT.FreeClusters()

	sector := mustCreate(t, fs, 0)
	h1 := mustOpen(t, fs, sector)
	h2 := mustOpen(t, fs, sector)

	Remove(h1)

	// still fully usable through the sibling handle.
	if _, err := WriteAt(fs, h2, []byte("still here"), 0); err != nil {
		t.Fatalf("WriteAt(): unexpected err: %v", err)
	}
	buf := make([]byte, len("still here"))
	if _, err := ReadAt(fs, h2, buf, 0); err != nil {
		t.Fatalf("ReadAt(): unexpected err: %v", err)
	}
	if !bytes.Equal(buf, []byte("still here")) {
		t.Fatalf("ReadAt(): wanted `still here`; found `%s`", buf)
	}

	if err := Close(fs, h1); err != nil {
		t.Fatalf("Close(): unexpected err: %v", err)
	}
	if free := fs.FAT.FreeClusters(); free == baseline {
		t.Fatalf("Close(): chains released before the last close")
	}

	if err := Close(fs, h2); err != nil {
		t.Fatalf("Close(): unexpected err: %v", err)
	}
	if free := fs.FAT.FreeClusters(); free != baseline {
		t.Fatalf(
			"Close(): wanted `%d` free clusters after delete; found `%d`",
			baseline,
			free,
		)
	}
}

// TestScenario walks the end-to-end sequence: create an empty file,
// write 5000 bytes, read them back, then write 100 bytes at offset
// 10000 and check the zero-filled gap.
func TestScenario(t *testing.T) {
	fs := newTestFS(t, 4096, 1)
	sector := mustCreate(t, fs, 0)
	handle := mustOpen(t, fs, sector)
	defer Close(fs, handle)

	input := make([]byte, 5000)
	for i := range input {
		input[i] = byte(i%253 + 1)
	}
	n, err := WriteAt(fs, handle, input, 0)
	if err != nil {
		t.Fatalf("WriteAt(): unexpected err: %v", err)
	}
	if n != 5000 {
		t.Fatalf("WriteAt(): wanted `5000` bytes written; found `%d`", n)
	}
	if handle.Length() != 5000 {
		t.Fatalf("Length(): wanted `5000`; found `%d`", handle.Length())
	}

	output := make([]byte, 5000)
	if _, err := ReadAt(fs, handle, output, 0); err != nil {
		t.Fatalf("ReadAt(): unexpected err: %v", err)
	}
	if !bytes.Equal(input, output) {
		t.Fatalf("ReadAt(): read data differs from written data")
	}

	tail := make([]byte, 100)
	for i := range tail {
		tail[i] = 0xab
	}
	n, err = WriteAt(fs, handle, tail, 10000)
	if err != nil {
		t.Fatalf("WriteAt(): unexpected err: %v", err)
	}
	if n != 100 {
		t.Fatalf("WriteAt(): wanted `100` bytes written; found `%d`", n)
	}
	if handle.Length() != 10100 {
		t.Fatalf("Length(): wanted `10100`; found `%d`", handle.Length())
	}

	// the gap between the old end and the new write reads as zeros.
	gap := make([]byte, 5000)
	if _, err := ReadAt(fs, handle, gap, 5000); err != nil {
		t.Fatalf("ReadAt(): unexpected err: %v", err)
	}
	for i, b := range gap {
		if b != 0 {
			t.Fatalf(
				"ReadAt(): wanted zero at offset `%d`; found `%#x`",
				5000+i,
				b,
			)
		}
	}

	readTail := make([]byte, 100)
	if _, err := ReadAt(fs, handle, readTail, 10000); err != nil {
		t.Fatalf("ReadAt(): unexpected err: %v", err)
	}
	if !bytes.Equal(tail, readTail) {
		t.Fatalf("ReadAt(): tail data differs from written data")
	}
}

func TestMultiSectorClusters(t *testing.T) {
	fs := newTestFS(t, 1024, 4)

	input := make([]byte, 3*4*SectorSize+37)
	for i := range input {
		input[i] = byte(i % 256)
	}

	sector := mustCreate(t, fs, 0)
	handle := mustOpen(t, fs, sector)
	defer Close(fs, handle)

	n, err := WriteAt(fs, handle, input, 0)
	if err != nil {
		t.Fatalf("WriteAt(): unexpected err: %v", err)
	}
	if n != Byte(len(input)) {
		t.Fatalf(
			"WriteAt(): wanted `%d` bytes written; found `%d`",
			len(input),
			n,
		)
	}

	output := make([]byte, len(input))
	if _, err := ReadAt(fs, handle, output, 0); err != nil {
		t.Fatalf("ReadAt(): unexpected err: %v", err)
	}
	if !bytes.Equal(input, output) {
		t.Fatalf("ReadAt(): read data differs from written data")
	}
}
