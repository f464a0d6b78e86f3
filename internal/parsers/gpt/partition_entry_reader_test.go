package gpt

import (
	"bytes"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deploymenttheory/go-bootstage/internal/types"
)

func TestReadEntries(t *testing.T) {
	t.Run("FindsPartitions", func(t *testing.T) {
		esp := espTestPartition()
		data := testPartition{
			typeGUID:   "0FC63DAF-8483-4772-8E79-3D69D8477DE4",
			uniqueGUID: "7ad555a2-81ff-4c34-b7ec-07eb68b68e51",
			name:       "rootfs",
			firstLBA:   98,
			lastLBA:    120,
		}

		disk := buildTestDisk(t, esp, data)
		header, entries, err := ReadPartitionTable(bytes.NewReader(disk), testBlockSize)
		require.NoError(t, err)
		require.NotNil(t, header)
		require.Len(t, entries, 2)

		assert.Equal(t, uint64(34), entries[0].FirstLBA)
		assert.Equal(t, uint64(97), entries[0].LastLBA)
		assert.Equal(t, "EFI System", PartitionName(&entries[0]))
		assert.Equal(t, "rootfs", PartitionName(&entries[1]))
	})

	t.Run("SkipsEmptyEntries", func(t *testing.T) {
		disk := buildTestDisk(t, espTestPartition())
		_, entries, err := ReadPartitionTable(bytes.NewReader(disk), testBlockSize)
		require.NoError(t, err)
		assert.Len(t, entries, 1)
	})

	t.Run("NoEntriesDeclared", func(t *testing.T) {
		disk := buildTestDisk(t)
		_, entries, err := ReadPartitionTable(bytes.NewReader(disk), testBlockSize)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("CorruptArrayChecksum", func(t *testing.T) {
		disk := buildTestDisk(t, espTestPartition())
		// Damage the first entry without refreshing the array checksum.
		disk[2*testBlockSize] ^= 0xff

		_, _, err := ReadPartitionTable(bytes.NewReader(disk), testBlockSize)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "entry array checksum")
	})

	t.Run("TruncatedArray", func(t *testing.T) {
		disk := buildTestDisk(t, espTestPartition())
		_, _, err := ReadPartitionTable(bytes.NewReader(disk[:3*testBlockSize]), testBlockSize)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "short read")
	})
}

func TestNewEntryReaderGuards(t *testing.T) {
	header := &types.GptHeader{SizeOfPartitionEntry: types.GptPartitionEntrySize}

	_, err := NewEntryReader(nil, testBlockSize, header)
	assert.Error(t, err)

	_, err = NewEntryReader(bytes.NewReader(nil), 0, header)
	assert.Error(t, err)

	_, err = NewEntryReader(bytes.NewReader(nil), testBlockSize, nil)
	assert.Error(t, err)
}

func TestFindSystemPartition(t *testing.T) {
	t.Run("Present", func(t *testing.T) {
		disk := buildTestDisk(t, espTestPartition())
		_, entries, err := ReadPartitionTable(bytes.NewReader(disk), testBlockSize)
		require.NoError(t, err)

		esp, ok := FindSystemPartition(entries)
		require.True(t, ok)
		assert.True(t, IsSystemPartition(&esp))
		assert.Equal(t, uint64(34), esp.FirstLBA)
	})

	t.Run("Absent", func(t *testing.T) {
		disk := buildTestDisk(t, testPartition{
			typeGUID:   "0FC63DAF-8483-4772-8E79-3D69D8477DE4",
			uniqueGUID: "7ad555a2-81ff-4c34-b7ec-07eb68b68e51",
			name:       "rootfs",
			firstLBA:   34,
			lastLBA:    97,
		})
		_, entries, err := ReadPartitionTable(bytes.NewReader(disk), testBlockSize)
		require.NoError(t, err)

		_, ok := FindSystemPartition(entries)
		assert.False(t, ok)
	})
}

func TestGUIDMixedEndianConversion(t *testing.T) {
	// On-disk byte order for the ESP type GUID, per UEFI 2.10 appendix A.
	onDisk := [16]byte{
		0x28, 0x73, 0x2a, 0xc1, 0x1f, 0xf8, 0xd2, 0x11,
		0xba, 0x4b, 0x00, 0xa0, 0xc9, 0x3e, 0xc9, 0x3b,
	}
	got := guidFromMixedEndian(onDisk)
	assert.Equal(t, uuid.MustParse(types.EspTypeGUID), got)
}

func TestPartitionTypeGUIDRendering(t *testing.T) {
	disk := buildTestDisk(t, espTestPartition())
	_, entries, err := ReadPartitionTable(bytes.NewReader(disk), testBlockSize)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	assert.Equal(t, "c12a7328-f81f-11d2-ba4b-00a0c93ec93b", PartitionTypeGUID(&entries[0]).String())
	assert.Equal(t, "d1b1b684-8b31-4d15-9ad4-31c0c06d16f5", UniquePartitionGUID(&entries[0]).String())
}
