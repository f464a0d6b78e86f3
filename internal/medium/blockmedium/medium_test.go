package blockmedium

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"unicode/utf16"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deploymenttheory/go-bootstage/internal/types"
)

const testBlockSize = 512

// Disk geometry shared by the tests: 256 blocks total, with the system
// partition spanning blocks 34..161. Catalog extents are relative to the
// partition start.
const (
	testTotalBlocks = 256
	testESPFirst    = 34
	testESPLast     = 161
)

const testESPUniqueGUID = "7bff22a9-42a7-40b0-b2a0-e227a93c8ffd"

type diskPartition struct {
	typeGUID   string
	uniqueGUID string
	name       string
	firstLBA   uint64
	lastLBA    uint64
}

// putMixedEndianGUID writes a canonical GUID string in GPT's on-disk
// mixed-endian layout.
func putMixedEndianGUID(dst []byte, s string) {
	u := uuid.MustParse(s)
	dst[0], dst[1], dst[2], dst[3] = u[3], u[2], u[1], u[0]
	dst[4], dst[5] = u[5], u[4]
	dst[6], dst[7] = u[7], u[6]
	copy(dst[8:16], u[8:16])
}

func putUTF16LEName(dst []byte, name string) {
	codes := utf16.Encode([]rune(name))
	for i, c := range codes {
		if 2*i+1 >= len(dst) {
			break
		}
		binary.LittleEndian.PutUint16(dst[2*i:], c)
	}
}

// writeGPT lays a valid primary partition table over the disk image:
// header at LBA 1, a 128-entry array at LBA 2, checksums computed.
func writeGPT(t *testing.T, disk []byte, partitions ...diskPartition) {
	t.Helper()

	const entryCount = 128
	entryArray := make([]byte, entryCount*types.GptPartitionEntrySize)
	for i, p := range partitions {
		e := entryArray[i*types.GptPartitionEntrySize:]
		putMixedEndianGUID(e[0:16], p.typeGUID)
		putMixedEndianGUID(e[16:32], p.uniqueGUID)
		binary.LittleEndian.PutUint64(e[32:40], p.firstLBA)
		binary.LittleEndian.PutUint64(e[40:48], p.lastLBA)
		putUTF16LEName(e[56:128], p.name)
	}
	copy(disk[2*testBlockSize:], entryArray)

	h := disk[types.GptHeaderLBA*testBlockSize:]
	binary.LittleEndian.PutUint64(h[0:8], types.GptSignature)
	binary.LittleEndian.PutUint32(h[8:12], 0x00010000)
	binary.LittleEndian.PutUint32(h[12:16], types.GptHeaderSize)
	binary.LittleEndian.PutUint64(h[24:32], types.GptHeaderLBA)
	binary.LittleEndian.PutUint64(h[32:40], testTotalBlocks-1)
	binary.LittleEndian.PutUint64(h[40:48], 34)
	binary.LittleEndian.PutUint64(h[48:56], testTotalBlocks-2)
	putMixedEndianGUID(h[56:72], "ee5a0bfa-5e1b-4c6e-9ccc-5b2a0d65a4d1")
	binary.LittleEndian.PutUint64(h[72:80], 2)
	binary.LittleEndian.PutUint32(h[80:84], entryCount)
	binary.LittleEndian.PutUint32(h[84:88], types.GptPartitionEntrySize)
	binary.LittleEndian.PutUint32(h[88:92], crc32.ChecksumIEEE(entryArray))
	binary.LittleEndian.PutUint32(h[16:20], crc32.ChecksumIEEE(h[:types.GptHeaderSize]))
}

func catalogEntry(name string, imageLength uint64, flags uint32, extents ...types.Extent) types.BootCatalogEntryT {
	var entry types.BootCatalogEntryT
	copy(entry.Name[:], name)
	entry.ImageLength = imageLength
	entry.Flags = flags
	entry.ExtentCount = uint32(len(extents))
	copy(entry.Extents[:], extents)
	return entry
}

// buildBootDisk assembles a bootable disk image: a GPT with a system
// partition and a data partition, and a boot catalog at the start of the
// system partition. Image bytes are written separately with writeImage.
func buildBootDisk(t *testing.T, entries ...types.BootCatalogEntryT) []byte {
	t.Helper()

	disk := make([]byte, testTotalBlocks*testBlockSize)
	writeGPT(t, disk,
		diskPartition{types.EspTypeGUID, testESPUniqueGUID, "EFI System", testESPFirst, testESPLast},
		diskPartition{"0FC63DAF-8483-4772-8E79-3D69D8477DE4", "9bd9e1d2-1070-40ab-83a3-3a6b4c9f2d30", "rootfs", 162, 250},
	)

	array := make([]byte, len(entries)*types.BootCatalogEntrySize)
	for i, entry := range entries {
		var buf bytes.Buffer
		require.NoError(t, binary.Write(&buf, binary.LittleEndian, entry))
		copy(array[i*types.BootCatalogEntrySize:], buf.Bytes())
	}
	header := types.BootCatalogHeader{
		Magic:           types.BootCatalogMagic,
		Version:         types.BootCatalogVersion,
		EntryCount:      uint32(len(entries)),
		EntryArrayCRC32: crc32.ChecksumIEEE(array),
	}
	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, header))

	espStart := testESPFirst * testBlockSize
	copy(disk[espStart:], buf.Bytes())
	copy(disk[espStart+types.BootCatalogHeaderSize:], array)

	return disk
}

// writeImage scatters content across the extents, whole blocks at a
// time. Extents are partition-relative, so offsets shift by the system
// partition's first block.
func writeImage(disk []byte, content []byte, extents ...types.Extent) {
	off := 0
	for _, ext := range extents {
		start := (testESPFirst + int(ext.StartLBA)) * testBlockSize
		size := int(ext.BlockCount) * testBlockSize
		n := copy(disk[start:start+size], content[off:])
		off += n
		if off >= len(content) {
			break
		}
	}
}

func testContent(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i % 251)
	}
	return b
}

func TestNew(t *testing.T) {
	t.Run("NilDevice", func(t *testing.T) {
		_, err := New(nil, testBlockSize, "test")
		assert.Error(t, err)
	})

	t.Run("ZeroBlockSize", func(t *testing.T) {
		_, err := New(bytes.NewReader(buildBootDisk(t)), 0, "test")
		assert.Error(t, err)
	})

	t.Run("ReadsPartitionsAndCatalog", func(t *testing.T) {
		disk := buildBootDisk(t,
			catalogEntry("vmlinuz", 1000, types.BootCatalogEntryDefault, types.Extent{StartLBA: 4, BlockCount: 2}),
		)
		medium, err := New(bytes.NewReader(disk), testBlockSize, "test")
		require.NoError(t, err)

		assert.Equal(t, types.GptSignature, medium.Header().Signature)
		assert.Len(t, medium.Partitions(), 2)

		esp, ok := medium.SystemPartition()
		require.True(t, ok)
		assert.Equal(t, uint64(testESPFirst), esp.FirstLBA)

		require.Len(t, medium.CatalogEntries(), 1)
		assert.Contains(t, medium.Describe(), testESPUniqueGUID)
	})

	t.Run("CorruptPartitionTable", func(t *testing.T) {
		disk := buildBootDisk(t)
		disk[testBlockSize+40] ^= 0xff

		_, err := New(bytes.NewReader(disk), testBlockSize, "test")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "partition table")
	})

	t.Run("CorruptCatalog", func(t *testing.T) {
		disk := buildBootDisk(t)
		binary.LittleEndian.PutUint32(disk[testESPFirst*testBlockSize:], 0xdeadbeef)

		_, err := New(bytes.NewReader(disk), testBlockSize, "test")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "boot catalog")
	})
}

func TestOpen(t *testing.T) {
	t.Run("SingleExtentImage", func(t *testing.T) {
		content := testContent(1000)
		disk := buildBootDisk(t,
			catalogEntry("vmlinuz", uint64(len(content)), 0, types.Extent{StartLBA: 4, BlockCount: 2}),
		)
		writeImage(disk, content, types.Extent{StartLBA: 4, BlockCount: 2})

		medium, err := New(bytes.NewReader(disk), testBlockSize, "test")
		require.NoError(t, err)

		file, err := medium.Open("vmlinuz")
		require.NoError(t, err)
		defer file.Close()

		assert.Equal(t, "vmlinuz", file.Name())
		assert.Equal(t, int64(len(content)), file.Size())

		got := make([]byte, file.Size())
		n, err := file.ReadAt(got, 0)
		require.NoError(t, err)
		assert.Equal(t, len(content), n)
		assert.Equal(t, content, got)
	})

	t.Run("MultiExtentImage", func(t *testing.T) {
		content := testContent(1500)
		extents := []types.Extent{
			{StartLBA: 8, BlockCount: 1},
			{StartLBA: 12, BlockCount: 2},
		}
		disk := buildBootDisk(t, catalogEntry("scattered", uint64(len(content)), 0, extents...))
		writeImage(disk, content, extents...)

		medium, err := New(bytes.NewReader(disk), testBlockSize, "test")
		require.NoError(t, err)

		file, err := medium.Open("scattered")
		require.NoError(t, err)
		defer file.Close()

		got := make([]byte, file.Size())
		_, err = file.ReadAt(got, 0)
		require.NoError(t, err)
		assert.Equal(t, content, got)
	})

	t.Run("ReadAcrossExtentBoundary", func(t *testing.T) {
		content := testContent(1500)
		extents := []types.Extent{
			{StartLBA: 8, BlockCount: 1},
			{StartLBA: 12, BlockCount: 2},
		}
		disk := buildBootDisk(t, catalogEntry("scattered", uint64(len(content)), 0, extents...))
		writeImage(disk, content, extents...)

		medium, err := New(bytes.NewReader(disk), testBlockSize, "test")
		require.NoError(t, err)
		file, err := medium.Open("scattered")
		require.NoError(t, err)
		defer file.Close()

		// The first extent ends at byte 512; this read straddles it.
		got := make([]byte, 24)
		n, err := file.ReadAt(got, 500)
		require.NoError(t, err)
		assert.Equal(t, 24, n)
		assert.Equal(t, content[500:524], got)
	})

	t.Run("ReadAtEndOfImage", func(t *testing.T) {
		content := testContent(1000)
		disk := buildBootDisk(t,
			catalogEntry("vmlinuz", uint64(len(content)), 0, types.Extent{StartLBA: 4, BlockCount: 2}),
		)
		writeImage(disk, content, types.Extent{StartLBA: 4, BlockCount: 2})

		medium, err := New(bytes.NewReader(disk), testBlockSize, "test")
		require.NoError(t, err)
		file, err := medium.Open("vmlinuz")
		require.NoError(t, err)
		defer file.Close()

		got := make([]byte, 100)
		n, err := file.ReadAt(got, 950)
		assert.Equal(t, 50, n)
		assert.ErrorIs(t, err, io.EOF)

		_, err = file.ReadAt(got, 1000)
		assert.ErrorIs(t, err, io.EOF)
	})

	t.Run("UndersizedEntryReadsShort", func(t *testing.T) {
		// The entry declares 2000 bytes but its single extent holds 512.
		disk := buildBootDisk(t,
			catalogEntry("liar", 2000, 0, types.Extent{StartLBA: 20, BlockCount: 1}),
		)
		medium, err := New(bytes.NewReader(disk), testBlockSize, "test")
		require.NoError(t, err)

		file, err := medium.Open("liar")
		require.NoError(t, err)
		defer file.Close()

		assert.Equal(t, int64(2000), file.Size())
		got := make([]byte, 2000)
		n, err := file.ReadAt(got, 0)
		assert.Equal(t, 512, n)
		assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	})

	t.Run("MissingImage", func(t *testing.T) {
		disk := buildBootDisk(t,
			catalogEntry("vmlinuz", 512, 0, types.Extent{StartLBA: 4, BlockCount: 1}),
		)
		medium, err := New(bytes.NewReader(disk), testBlockSize, "test")
		require.NoError(t, err)

		_, err = medium.Open("absent")
		require.Error(t, err)
		assert.ErrorIs(t, err, fs.ErrNotExist)
	})
}

func TestExtractImage(t *testing.T) {
	t.Run("ReassemblesExtents", func(t *testing.T) {
		content := testContent(1500)
		extents := []types.Extent{
			{StartLBA: 8, BlockCount: 1},
			{StartLBA: 12, BlockCount: 2},
		}
		disk := buildBootDisk(t, catalogEntry("scattered", uint64(len(content)), 0, extents...))
		writeImage(disk, content, extents...)

		medium, err := New(bytes.NewReader(disk), testBlockSize, "test")
		require.NoError(t, err)

		data, err := medium.ExtractImage("scattered")
		require.NoError(t, err)
		assert.Equal(t, content, data)
	})

	t.Run("UndersizedEntry", func(t *testing.T) {
		disk := buildBootDisk(t,
			catalogEntry("liar", 2000, 0, types.Extent{StartLBA: 20, BlockCount: 1}),
		)
		medium, err := New(bytes.NewReader(disk), testBlockSize, "test")
		require.NoError(t, err)

		_, err = medium.ExtractImage("liar")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "declares")
	})

	t.Run("MissingImage", func(t *testing.T) {
		disk := buildBootDisk(t,
			catalogEntry("vmlinuz", 512, 0, types.Extent{StartLBA: 4, BlockCount: 1}),
		)
		medium, err := New(bytes.NewReader(disk), testBlockSize, "test")
		require.NoError(t, err)

		_, err = medium.ExtractImage("absent")
		assert.ErrorIs(t, err, fs.ErrNotExist)
	})
}

func TestListImages(t *testing.T) {
	disk := buildBootDisk(t,
		catalogEntry("vmlinuz", 1000, types.BootCatalogEntryDefault, types.Extent{StartLBA: 4, BlockCount: 2}),
		catalogEntry("rescue", 512, 0, types.Extent{StartLBA: 6, BlockCount: 1}),
	)
	medium, err := New(bytes.NewReader(disk), testBlockSize, "test")
	require.NoError(t, err)

	images, err := medium.ListImages()
	require.NoError(t, err)
	require.Len(t, images, 2)
	assert.Equal(t, "vmlinuz", images[0].Name)
	assert.Equal(t, uint64(1000), images[0].Size)
	assert.Equal(t, "rescue", images[1].Name)
}

func TestDefaultImage(t *testing.T) {
	t.Run("FlaggedEntry", func(t *testing.T) {
		disk := buildBootDisk(t,
			catalogEntry("rescue", 512, 0, types.Extent{StartLBA: 6, BlockCount: 1}),
			catalogEntry("vmlinuz", 1000, types.BootCatalogEntryDefault, types.Extent{StartLBA: 4, BlockCount: 2}),
		)
		medium, err := New(bytes.NewReader(disk), testBlockSize, "test")
		require.NoError(t, err)

		name, ok := medium.DefaultImage()
		require.True(t, ok)
		assert.Equal(t, "vmlinuz", name)
	})

	t.Run("FallsBackToFirst", func(t *testing.T) {
		disk := buildBootDisk(t,
			catalogEntry("rescue", 512, 0, types.Extent{StartLBA: 6, BlockCount: 1}),
			catalogEntry("vmlinuz", 1000, 0, types.Extent{StartLBA: 4, BlockCount: 2}),
		)
		medium, err := New(bytes.NewReader(disk), testBlockSize, "test")
		require.NoError(t, err)

		name, ok := medium.DefaultImage()
		require.True(t, ok)
		assert.Equal(t, "rescue", name)
	})
}

func TestNoSystemPartition(t *testing.T) {
	disk := make([]byte, testTotalBlocks*testBlockSize)
	writeGPT(t, disk,
		diskPartition{"0FC63DAF-8483-4772-8E79-3D69D8477DE4", "9bd9e1d2-1070-40ab-83a3-3a6b4c9f2d30", "rootfs", 34, 250},
	)

	medium, err := New(bytes.NewReader(disk), testBlockSize, "test")
	require.NoError(t, err)

	_, ok := medium.SystemPartition()
	assert.False(t, ok)
	assert.Nil(t, medium.CatalogEntries())
	assert.Contains(t, medium.Describe(), "no system partition")

	_, err = medium.Open("vmlinuz")
	assert.ErrorIs(t, err, ErrNoSystemPartition)

	_, err = medium.ExtractImage("vmlinuz")
	assert.ErrorIs(t, err, ErrNoSystemPartition)

	_, err = medium.ListImages()
	assert.ErrorIs(t, err, ErrNoSystemPartition)

	_, ok = medium.DefaultImage()
	assert.False(t, ok)
}

func TestFromFile(t *testing.T) {
	t.Run("OpensDiskImage", func(t *testing.T) {
		content := testContent(800)
		disk := buildBootDisk(t,
			catalogEntry("vmlinuz", uint64(len(content)), 0, types.Extent{StartLBA: 4, BlockCount: 2}),
		)
		writeImage(disk, content, types.Extent{StartLBA: 4, BlockCount: 2})

		path := filepath.Join(t.TempDir(), "boot.img")
		require.NoError(t, os.WriteFile(path, disk, 0o644))

		medium, err := FromFile(path, testBlockSize)
		require.NoError(t, err)
		defer medium.Close()

		file, err := medium.Open("vmlinuz")
		require.NoError(t, err)
		defer file.Close()

		got := make([]byte, file.Size())
		_, err = file.ReadAt(got, 0)
		require.NoError(t, err)
		assert.Equal(t, content, got)
	})

	t.Run("MissingFile", func(t *testing.T) {
		_, err := FromFile(filepath.Join(t.TempDir(), "absent.img"), testBlockSize)
		require.Error(t, err)
	})
}
