package gpt

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"strings"
	"unicode/utf16"

	"github.com/google/uuid"

	"github.com/deploymenttheory/go-bootstage/internal/types"
)

// maxPartitionEntries caps how many entries a header may declare before the
// table is treated as corrupt rather than merely large.
const maxPartitionEntries = 1024

// EntryReader reads and validates the GPT partition entry array described
// by an already-validated header.
type EntryReader struct {
	device    io.ReaderAt
	blockSize uint64
	header    *types.GptHeader
}

// NewEntryReader creates a reader for the partition entry array.
func NewEntryReader(device io.ReaderAt, blockSize uint64, header *types.GptHeader) (*EntryReader, error) {
	if device == nil {
		return nil, fmt.Errorf("device reader cannot be nil")
	}
	if blockSize == 0 {
		return nil, fmt.Errorf("logical block size cannot be zero")
	}
	if header == nil {
		return nil, fmt.Errorf("GPT header cannot be nil")
	}
	if header.SizeOfPartitionEntry != types.GptPartitionEntrySize {
		return nil, fmt.Errorf("unsupported partition entry size %d, expected %d", header.SizeOfPartitionEntry, types.GptPartitionEntrySize)
	}
	return &EntryReader{device: device, blockSize: blockSize, header: header}, nil
}

// ReadEntries reads the full partition entry array, verifies the array
// checksum declared by the header, and returns the in-use entries.
func (r *EntryReader) ReadEntries() ([]types.GptPartitionEntry, error) {
	count := r.header.NumberOfPartitionEntries
	if count == 0 {
		return []types.GptPartitionEntry{}, nil
	}
	if count > maxPartitionEntries {
		return nil, fmt.Errorf("implausible partition entry count %d", count)
	}

	arrayLen := uint64(count) * uint64(r.header.SizeOfPartitionEntry)
	offset := int64(r.header.PartitionEntryLBA * r.blockSize)
	data := make([]byte, arrayLen)

	n, err := r.device.ReadAt(data, offset)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to read partition entry array at offset %d: %w", offset, err)
	}
	if uint64(n) < arrayLen {
		return nil, fmt.Errorf("short read for partition entry array: read %d bytes, expected %d", n, arrayLen)
	}

	if sum := crc32.ChecksumIEEE(data); sum != r.header.PartitionEntryArrayCRC32 {
		return nil, fmt.Errorf("partition entry array checksum mismatch: computed %08X, header declares %08X", sum, r.header.PartitionEntryArrayCRC32)
	}

	entries := make([]types.GptPartitionEntry, 0, count)
	reader := bytes.NewReader(data)
	for i := uint32(0); i < count; i++ {
		var entry types.GptPartitionEntry
		if err := binary.Read(reader, binary.LittleEndian, &entry); err != nil {
			return nil, fmt.Errorf("failed to parse partition entry %d: %w", i, err)
		}
		if entry.PartitionTypeGUID == [16]byte{} {
			continue
		}
		entries = append(entries, entry)
	}

	return entries, nil
}

// ReadPartitionTable reads and validates the primary GPT of a device in one
// call, returning the header and the in-use partition entries.
func ReadPartitionTable(device io.ReaderAt, blockSize uint64) (*types.GptHeader, []types.GptPartitionEntry, error) {
	headerReader, err := NewHeaderReader(device, blockSize)
	if err != nil {
		return nil, nil, err
	}
	header, err := headerReader.ReadHeader()
	if err != nil {
		return nil, nil, err
	}

	entryReader, err := NewEntryReader(device, blockSize, header)
	if err != nil {
		return nil, nil, err
	}
	entries, err := entryReader.ReadEntries()
	if err != nil {
		return nil, nil, err
	}

	return header, entries, nil
}

// FindSystemPartition returns the first EFI System Partition among entries.
func FindSystemPartition(entries []types.GptPartitionEntry) (types.GptPartitionEntry, bool) {
	for _, entry := range entries {
		if IsSystemPartition(&entry) {
			return entry, true
		}
	}
	return types.GptPartitionEntry{}, false
}

// IsSystemPartition reports whether the entry's type GUID marks it as an
// EFI System Partition.
func IsSystemPartition(entry *types.GptPartitionEntry) bool {
	return strings.EqualFold(PartitionTypeGUID(entry).String(), types.EspTypeGUID)
}

// PartitionTypeGUID returns the entry's partition type GUID.
func PartitionTypeGUID(entry *types.GptPartitionEntry) uuid.UUID {
	return guidFromMixedEndian(entry.PartitionTypeGUID)
}

// UniquePartitionGUID returns the GUID unique to this partition.
func UniquePartitionGUID(entry *types.GptPartitionEntry) uuid.UUID {
	return guidFromMixedEndian(entry.UniquePartitionGUID)
}

// PartitionName decodes the entry's UTF-16LE name, stopping at the first
// null code unit.
func PartitionName(entry *types.GptPartitionEntry) string {
	return decodeUTF16LE(entry.PartitionName[:])
}

// DiskGUID returns the disk's unique GUID from the header.
func DiskGUID(header *types.GptHeader) uuid.UUID {
	return guidFromMixedEndian(header.DiskGUID)
}

// guidFromMixedEndian converts GPT's on-disk GUID layout, where the first
// three fields are little-endian, into an RFC 4122 UUID.
func guidFromMixedEndian(g [16]byte) uuid.UUID {
	var b [16]byte
	b[0], b[1], b[2], b[3] = g[3], g[2], g[1], g[0]
	b[4], b[5] = g[5], g[4]
	b[6], b[7] = g[7], g[6]
	copy(b[8:], g[8:])
	return uuid.UUID(b)
}

// decodeUTF16LE decodes a UTF-16 little-endian byte slice into a string,
// stopping at the first null code unit.
func decodeUTF16LE(b []byte) string {
	if len(b)%2 != 0 {
		return ""
	}
	u16s := make([]uint16, 0, len(b)/2)
	for i := 0; i+1 < len(b); i += 2 {
		val := binary.LittleEndian.Uint16(b[i : i+2])
		if val == 0 {
			break
		}
		u16s = append(u16s, val)
	}
	return string(utf16.Decode(u16s))
}
