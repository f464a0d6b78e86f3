package gpt

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/deploymenttheory/go-bootstage/internal/types"
)

// HeaderReader reads and validates the primary GPT header of a block medium.
// Validation is strict: a bad signature, an implausible geometry, or a
// checksum mismatch all fail construction rather than parse on.
type HeaderReader struct {
	device    io.ReaderAt
	blockSize uint64
}

// NewHeaderReader creates a reader for the primary GPT header.
func NewHeaderReader(device io.ReaderAt, blockSize uint64) (*HeaderReader, error) {
	if device == nil {
		return nil, fmt.Errorf("device reader cannot be nil")
	}
	if blockSize == 0 {
		return nil, fmt.Errorf("logical block size cannot be zero")
	}
	return &HeaderReader{device: device, blockSize: blockSize}, nil
}

// ReadHeader reads the GPT header at LBA 1 and verifies its signature,
// geometry, and header checksum.
func (r *HeaderReader) ReadHeader() (*types.GptHeader, error) {
	offset := int64(types.GptHeaderLBA) * int64(r.blockSize)
	block := make([]byte, r.blockSize)

	n, err := r.device.ReadAt(block, offset)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to read GPT header block at offset %d: %w", offset, err)
	}
	if n < types.GptHeaderSize {
		return nil, fmt.Errorf("short read for GPT header: read %d bytes, expected at least %d", n, types.GptHeaderSize)
	}

	var header types.GptHeader
	if err := binary.Read(bytes.NewReader(block[:types.GptHeaderSize]), binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("failed to parse GPT header: %w", err)
	}

	if header.Signature != types.GptSignature {
		return nil, fmt.Errorf("invalid GPT signature: expected %X, got %X", types.GptSignature, header.Signature)
	}
	if header.HeaderSize < types.GptHeaderSize || uint64(header.HeaderSize) > uint64(n) {
		return nil, fmt.Errorf("implausible GPT header size %d", header.HeaderSize)
	}
	if header.MyLBA != types.GptHeaderLBA {
		return nil, fmt.Errorf("GPT header reports MyLBA %d, expected %d", header.MyLBA, types.GptHeaderLBA)
	}
	if header.SizeOfPartitionEntry != types.GptPartitionEntrySize {
		return nil, fmt.Errorf("unsupported partition entry size %d, expected %d", header.SizeOfPartitionEntry, types.GptPartitionEntrySize)
	}

	if sum := headerChecksum(block[:header.HeaderSize]); sum != header.HeaderCRC32 {
		return nil, fmt.Errorf("GPT header checksum mismatch: computed %08X, header declares %08X", sum, header.HeaderCRC32)
	}

	return &header, nil
}

// headerChecksum computes the CRC32 of a header image with its own
// checksum field (bytes 16..19) treated as zero, per the specification.
func headerChecksum(data []byte) uint32 {
	scratch := make([]byte, len(data))
	copy(scratch, data)
	binary.LittleEndian.PutUint32(scratch[16:20], 0)
	return crc32.ChecksumIEEE(scratch)
}
