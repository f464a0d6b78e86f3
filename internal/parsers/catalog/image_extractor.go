// File: internal/parsers/catalog/image_extractor.go
package catalog

import (
	"bytes"
	"fmt"
	"io"

	"github.com/deploymenttheory/go-bootstage/internal/types"
)

// ImageExtractor reads a catalog entry's image bytes out of its extents.
// It holds the entry, a reader windowed to the boot partition, and the
// partition's logical block size.
type ImageExtractor struct {
	entry     types.BootCatalogEntryT
	partition io.ReaderAt
	blockSize uint64
}

// NewImageExtractor creates a new extractor instance. Returns an error if
// the reader is nil, the block size is zero, or the entry declares more
// extents than the layout allows.
func NewImageExtractor(entry types.BootCatalogEntryT, partition io.ReaderAt, blockSize uint64) (*ImageExtractor, error) {
	if partition == nil {
		return nil, fmt.Errorf("partition reader cannot be nil")
	}
	if blockSize == 0 {
		return nil, fmt.Errorf("block size cannot be zero")
	}
	if entry.ExtentCount > types.BootCatalogMaxExtents {
		return nil, fmt.Errorf("entry declares %d extents, at most %d allowed", entry.ExtentCount, types.BootCatalogMaxExtents)
	}
	return &ImageExtractor{
		entry:     entry,
		partition: partition,
		blockSize: blockSize,
	}, nil
}

// ImageData reads the image content by walking the entry's extents in
// order. Extents cover whole blocks; the concatenation is truncated to the
// entry's declared image length. Extents that together cover less than the
// declared length make the image unreadable and fail the read.
func (e *ImageExtractor) ImageData() ([]byte, error) {
	expectedSize := int64(e.entry.ImageLength)
	if expectedSize == 0 {
		return []byte{}, nil
	}

	imageData := bytes.NewBuffer(make([]byte, 0, expectedSize))
	var totalBytesRead int64

	for i := uint32(0); i < e.entry.ExtentCount; i++ {
		extent := e.entry.Extents[i]
		if extent.BlockCount == 0 {
			continue
		}

		remaining := expectedSize - totalBytesRead
		if remaining <= 0 {
			break
		}

		offset := int64(extent.StartLBA) * int64(e.blockSize)
		bytesToRead := int64(extent.BlockCount) * int64(e.blockSize)
		if bytesToRead > remaining {
			bytesToRead = remaining
		}

		chunk := make([]byte, bytesToRead)
		n, err := e.partition.ReadAt(chunk, offset)
		if err != nil && err != io.EOF {
			return nil, fmt.Errorf("failed to read extent %d (offset %d, size %d): %w", i, offset, bytesToRead, err)
		}
		if int64(n) < bytesToRead {
			return nil, fmt.Errorf("short read on extent %d: read %d bytes, expected %d", i, n, bytesToRead)
		}

		imageData.Write(chunk[:n])
		totalBytesRead += int64(n)
	}

	if totalBytesRead != expectedSize {
		return nil, fmt.Errorf("extents cover %d bytes, entry declares %d", totalBytesRead, expectedSize)
	}

	return imageData.Bytes(), nil
}

// Validate checks that the entry's image is fully readable according to
// its extents and declared length.
func (e *ImageExtractor) Validate() error {
	if _, err := e.ImageData(); err != nil {
		return fmt.Errorf("boot image validation failed: %w", err)
	}
	return nil
}
