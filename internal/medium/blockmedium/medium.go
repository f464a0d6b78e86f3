// Package blockmedium exposes a GPT-partitioned block device image as a
// boot medium. The images it serves are the entries of the boot catalog
// held on the EFI system partition.
package blockmedium

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/deploymenttheory/go-bootstage/internal/interfaces"
	"github.com/deploymenttheory/go-bootstage/internal/parsers/catalog"
	"github.com/deploymenttheory/go-bootstage/internal/parsers/gpt"
	"github.com/deploymenttheory/go-bootstage/internal/types"
)

// ErrNoSystemPartition is returned when the medium's partition table is
// valid but carries no EFI system partition to serve images from.
var ErrNoSystemPartition = errors.New("medium has no EFI system partition")

// Medium serves boot images out of the boot catalog on a GPT disk.
type Medium struct {
	device    io.ReaderAt
	blockSize uint64
	name      string

	header     *types.GptHeader
	partitions []types.GptPartitionEntry

	// Set when the partition table carries an EFI system partition.
	esp       types.GptPartitionEntry
	hasESP    bool
	partition *io.SectionReader
	catalog   *catalog.CatalogReader

	// Set when the medium owns the backing file.
	file *os.File
}

// Compile-time checks to ensure Medium implements the medium interfaces
var (
	_ interfaces.BootMedium   = (*Medium)(nil)
	_ interfaces.MediumLister = (*Medium)(nil)
)

// New creates a medium over a raw device image. The partition table must
// validate; a missing system partition is tolerated here and reported
// when an image is requested.
func New(device io.ReaderAt, blockSize uint64, name string) (*Medium, error) {
	if device == nil {
		return nil, fmt.Errorf("device cannot be nil")
	}
	if blockSize == 0 {
		return nil, fmt.Errorf("block size cannot be zero")
	}
	if name == "" {
		name = "gpt"
	}

	header, partitions, err := gpt.ReadPartitionTable(device, blockSize)
	if err != nil {
		return nil, fmt.Errorf("failed to read partition table: %w", err)
	}

	m := &Medium{
		device:     device,
		blockSize:  blockSize,
		name:       name,
		header:     header,
		partitions: partitions,
	}

	esp, ok := gpt.FindSystemPartition(partitions)
	if !ok {
		return m, nil
	}
	if esp.LastLBA < esp.FirstLBA {
		return nil, fmt.Errorf("system partition ends at block %d before it starts at block %d", esp.LastLBA, esp.FirstLBA)
	}

	offset := int64(esp.FirstLBA) * int64(blockSize)
	length := int64(esp.LastLBA-esp.FirstLBA+1) * int64(blockSize)
	m.partition = io.NewSectionReader(device, offset, length)

	reader, err := catalog.NewCatalogReader(m.partition)
	if err != nil {
		return nil, fmt.Errorf("failed to read boot catalog: %w", err)
	}

	m.esp = esp
	m.hasESP = true
	m.catalog = reader
	return m, nil
}

// FromFile opens a disk image file as a medium. Close releases the file.
func FromFile(path string, blockSize uint64) (*Medium, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open disk image: %w", err)
	}
	m, err := New(f, blockSize, filepath.Base(path))
	if err != nil {
		f.Close()
		return nil, err
	}
	m.file = f
	return m, nil
}

// Close releases the backing file when the medium owns one.
func (m *Medium) Close() error {
	if m.file != nil {
		return m.file.Close()
	}
	return nil
}

// Describe returns a short human-readable description of the medium.
func (m *Medium) Describe() string {
	if !m.hasESP {
		return fmt.Sprintf("gpt medium %q, no system partition", m.name)
	}
	return fmt.Sprintf("gpt medium %q, system partition %s", m.name, gpt.UniquePartitionGUID(&m.esp))
}

// Open opens the catalog entry with the given name. The returned file
// reads lazily through the entry's extents; an entry whose extents cover
// fewer bytes than it declares reads short.
func (m *Medium) Open(path string) (interfaces.ImageFile, error) {
	if !m.hasESP {
		return nil, fmt.Errorf("failed to open %q: %w", path, ErrNoSystemPartition)
	}
	entry, ok := m.catalog.FindEntry(path)
	if !ok {
		return nil, fmt.Errorf("failed to open %q: %w", path, fs.ErrNotExist)
	}
	return &imageFile{
		name: path,
		size: int64(entry.ImageLength),
		view: newExtentView(entry, m.partition, m.blockSize),
	}, nil
}

// ExtractImage reads the named catalog entry's full content in one eager
// pass over its extents, verifying that they cover the declared image
// length.
func (m *Medium) ExtractImage(name string) ([]byte, error) {
	if !m.hasESP {
		return nil, fmt.Errorf("failed to extract %q: %w", name, ErrNoSystemPartition)
	}
	entry, ok := m.catalog.FindEntry(name)
	if !ok {
		return nil, fmt.Errorf("failed to extract %q: %w", name, fs.ErrNotExist)
	}
	extractor, err := catalog.NewImageExtractor(entry, m.partition, m.blockSize)
	if err != nil {
		return nil, fmt.Errorf("failed to extract %q: %w", name, err)
	}
	data, err := extractor.ImageData()
	if err != nil {
		return nil, fmt.Errorf("failed to extract %q: %w", name, err)
	}
	return data, nil
}

// ListImages returns one entry per catalog entry.
func (m *Medium) ListImages() ([]interfaces.ImageInfo, error) {
	if !m.hasESP {
		return nil, ErrNoSystemPartition
	}
	entries := m.catalog.Entries()
	images := make([]interfaces.ImageInfo, 0, len(entries))
	for i := range entries {
		images = append(images, interfaces.ImageInfo{
			Name: catalog.EntryName(&entries[i]),
			Size: entries[i].ImageLength,
		})
	}
	return images, nil
}

// DefaultImage returns the name of the catalog's default entry.
func (m *Medium) DefaultImage() (string, bool) {
	if !m.hasESP {
		return "", false
	}
	entry, ok := m.catalog.DefaultEntry()
	if !ok {
		return "", false
	}
	return catalog.EntryName(&entry), true
}

// Header returns the validated partition table header.
func (m *Medium) Header() *types.GptHeader {
	return m.header
}

// Partitions returns the non-empty partition entries.
func (m *Medium) Partitions() []types.GptPartitionEntry {
	out := make([]types.GptPartitionEntry, len(m.partitions))
	copy(out, m.partitions)
	return out
}

// SystemPartition returns the EFI system partition entry, if present.
func (m *Medium) SystemPartition() (types.GptPartitionEntry, bool) {
	return m.esp, m.hasESP
}

// CatalogEntries returns the boot catalog entries, or nil when the
// medium has no system partition.
func (m *Medium) CatalogEntries() []types.BootCatalogEntryT {
	if !m.hasESP {
		return nil
	}
	return m.catalog.Entries()
}

// imageFile is a lazily-read catalog image. Size reports the length the
// catalog entry declares, which the loader checks against the bytes it
// actually reads.
type imageFile struct {
	name string
	size int64
	view *extentView
}

func (f *imageFile) ReadAt(p []byte, off int64) (int, error) {
	return f.view.ReadAt(p, off)
}

func (f *imageFile) Close() error {
	return nil
}

func (f *imageFile) Size() int64 {
	return f.size
}

func (f *imageFile) Name() string {
	return f.name
}

// extentView presents a catalog entry's extents as one contiguous
// read-only byte range, truncated to the declared image length.
type extentView struct {
	partition io.ReaderAt
	blockSize uint64
	length    int64
	extents   []types.Extent
}

func newExtentView(entry types.BootCatalogEntryT, partition io.ReaderAt, blockSize uint64) *extentView {
	count := entry.ExtentCount
	if count > types.BootCatalogMaxExtents {
		count = types.BootCatalogMaxExtents
	}
	extents := make([]types.Extent, 0, count)
	for i := uint32(0); i < count; i++ {
		if entry.Extents[i].BlockCount == 0 {
			continue
		}
		extents = append(extents, entry.Extents[i])
	}
	return &extentView{
		partition: partition,
		blockSize: blockSize,
		length:    int64(entry.ImageLength),
		extents:   extents,
	}
}

func (v *extentView) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("invalid offset %d", off)
	}
	if off >= v.length {
		return 0, io.EOF
	}
	atEnd := false
	if max := v.length - off; int64(len(p)) > max {
		p = p[:max]
		atEnd = true
	}

	total := 0
	logical := int64(0)
	for _, ext := range v.extents {
		if total == len(p) {
			break
		}
		extentBytes := int64(ext.BlockCount) * int64(v.blockSize)
		cursor := off + int64(total)
		if cursor >= logical+extentBytes {
			logical += extentBytes
			continue
		}

		within := cursor - logical
		n := extentBytes - within
		if remaining := int64(len(p) - total); n > remaining {
			n = remaining
		}
		read, err := v.partition.ReadAt(p[total:total+int(n)], int64(ext.StartLBA)*int64(v.blockSize)+within)
		total += read
		if err != nil {
			return total, fmt.Errorf("failed to read extent at block %d: %w", ext.StartLBA, err)
		}
		logical += extentBytes
	}

	if total < len(p) {
		// The extents cover fewer bytes than the entry declares.
		return total, io.ErrUnexpectedEOF
	}
	if atEnd {
		return total, io.EOF
	}
	return total, nil
}
