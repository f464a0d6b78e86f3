// File: internal/parsers/catalog/boot_catalog_reader.go
package catalog

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/deploymenttheory/go-bootstage/internal/types"
)

// CatalogReader parses and validates the boot catalog found at the start
// of a boot partition. Construction fails on a bad magic, an unknown
// version, an implausible entry count, or an entry array checksum
// mismatch; a reader that exists holds a fully validated catalog.
type CatalogReader struct {
	partition io.ReaderAt
	header    types.BootCatalogHeader
	entries   []types.BootCatalogEntryT
}

// NewCatalogReader reads the catalog from the start of the partition.
// The reader must be windowed to the partition: offset 0 is the first
// byte of the boot partition, not of the whole medium.
func NewCatalogReader(partition io.ReaderAt) (*CatalogReader, error) {
	if partition == nil {
		return nil, fmt.Errorf("partition reader cannot be nil")
	}
	r := &CatalogReader{partition: partition}
	if err := r.parse(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *CatalogReader) parse() error {
	headerData := make([]byte, types.BootCatalogHeaderSize)
	n, err := r.partition.ReadAt(headerData, 0)
	if err != nil && err != io.EOF {
		return fmt.Errorf("failed to read boot catalog header: %w", err)
	}
	if n < types.BootCatalogHeaderSize {
		return fmt.Errorf("short read for boot catalog header: read %d bytes, expected %d", n, types.BootCatalogHeaderSize)
	}

	if err := binary.Read(bytes.NewReader(headerData), binary.LittleEndian, &r.header); err != nil {
		return fmt.Errorf("failed to parse boot catalog header: %w", err)
	}

	if r.header.Magic != types.BootCatalogMagic {
		return fmt.Errorf("invalid boot catalog magic: expected %08X, got %08X", types.BootCatalogMagic, r.header.Magic)
	}
	if r.header.Version != types.BootCatalogVersion {
		return fmt.Errorf("unsupported boot catalog version %d, expected %d", r.header.Version, types.BootCatalogVersion)
	}
	if r.header.EntryCount > types.BootCatalogMaxEntries {
		return fmt.Errorf("implausible boot catalog entry count %d", r.header.EntryCount)
	}
	if r.header.EntryCount == 0 {
		r.entries = []types.BootCatalogEntryT{}
		return nil
	}

	arrayLen := int(r.header.EntryCount) * types.BootCatalogEntrySize
	arrayData := make([]byte, arrayLen)
	n, err = r.partition.ReadAt(arrayData, types.BootCatalogHeaderSize)
	if err != nil && err != io.EOF {
		return fmt.Errorf("failed to read boot catalog entry array: %w", err)
	}
	if n < arrayLen {
		return fmt.Errorf("short read for boot catalog entry array: read %d bytes, expected %d", n, arrayLen)
	}

	if sum := crc32.ChecksumIEEE(arrayData); sum != r.header.EntryArrayCRC32 {
		return fmt.Errorf("boot catalog entry array checksum mismatch: computed %08X, header declares %08X", sum, r.header.EntryArrayCRC32)
	}

	entries := make([]types.BootCatalogEntryT, 0, r.header.EntryCount)
	reader := bytes.NewReader(arrayData)
	for i := uint32(0); i < r.header.EntryCount; i++ {
		var entry types.BootCatalogEntryT
		if err := binary.Read(reader, binary.LittleEndian, &entry); err != nil {
			return fmt.Errorf("failed to parse boot catalog entry %d: %w", i, err)
		}
		if entry.ExtentCount > types.BootCatalogMaxExtents {
			return fmt.Errorf("boot catalog entry %d declares %d extents, at most %d allowed", i, entry.ExtentCount, types.BootCatalogMaxExtents)
		}
		entries = append(entries, entry)
	}
	r.entries = entries

	return nil
}

// Magic returns the catalog magic field.
func (r *CatalogReader) Magic() uint32 {
	return r.header.Magic
}

// Version returns the catalog layout version.
func (r *CatalogReader) Version() uint32 {
	return r.header.Version
}

// EntryCount returns the number of entries in the catalog.
func (r *CatalogReader) EntryCount() uint32 {
	return r.header.EntryCount
}

// Entries returns a copy of the catalog entries.
// Returning a copy prevents external modification of the internal slice.
func (r *CatalogReader) Entries() []types.BootCatalogEntryT {
	entriesCopy := make([]types.BootCatalogEntryT, len(r.entries))
	copy(entriesCopy, r.entries)
	return entriesCopy
}

// FindEntry returns the catalog entry with the given name.
func (r *CatalogReader) FindEntry(name string) (types.BootCatalogEntryT, bool) {
	for _, entry := range r.entries {
		if EntryName(&entry) == name {
			return entry, true
		}
	}
	return types.BootCatalogEntryT{}, false
}

// DefaultEntry returns the entry flagged as the medium's default, falling
// back to the first entry when none is flagged.
func (r *CatalogReader) DefaultEntry() (types.BootCatalogEntryT, bool) {
	for _, entry := range r.entries {
		if entry.Flags&types.BootCatalogEntryDefault != 0 {
			return entry, true
		}
	}
	if len(r.entries) > 0 {
		return r.entries[0], true
	}
	return types.BootCatalogEntryT{}, false
}

// EntryName returns the UTF-8 name of a catalog entry, stopping at the
// first null byte.
func EntryName(entry *types.BootCatalogEntryT) string {
	if i := bytes.IndexByte(entry.Name[:], 0); i >= 0 {
		return string(entry.Name[:i])
	}
	return string(entry.Name[:])
}
