package types

// Boot catalog structures.
// The boot catalog is the on-medium directory of kernel images stored in a
// boot partition: a fixed header block followed by fixed-size entries, each
// naming an image and listing the extents holding its bytes. It fills the
// role a full filesystem driver would, without being one.

// BootCatalogMagic is the value of the catalog magic field.
// The magic was chosen so it reads as "BCAT" in hex dumps.
const BootCatalogMagic uint32 = 'B' | 'C'<<8 | 'A'<<16 | 'T'<<24

// BootCatalogVersion is the current catalog layout version.
const BootCatalogVersion uint32 = 1

// BootCatalogHeaderSize is the size in bytes of the catalog header.
const BootCatalogHeaderSize = 16

// BootCatalogEntrySize is the size in bytes of one catalog entry.
const BootCatalogEntrySize = 128

// BootCatalogNameSize is the size in bytes of the entry name field,
// UTF-8 and null-terminated.
const BootCatalogNameSize = 64

// BootCatalogMaxExtents is the number of extent slots per entry. An image
// stored in more pieces than this cannot be described by the catalog.
const BootCatalogMaxExtents = 3

// BootCatalogMaxEntries bounds the entry count a header may declare;
// protects parsers from allocating on a corrupt count.
const BootCatalogMaxEntries = 64

// BootCatalogEntryDefault marks the entry the medium prefers when the
// operator does not pick one.
const BootCatalogEntryDefault uint32 = 0x00000001

// Extent is a contiguous run of logical blocks within the boot partition.
type Extent struct {
	// The first block of the run, relative to the partition start.
	StartLBA uint64
	// The number of blocks in the run.
	BlockCount uint64
}

// BootCatalogHeader is the fixed header at the start of the catalog block.
type BootCatalogHeader struct {
	// The catalog magic; always BootCatalogMagic.
	Magic uint32
	// The catalog layout version; always BootCatalogVersion.
	Version uint32
	// The number of entries following the header.
	EntryCount uint32
	// CRC32 of the whole entry array.
	EntryArrayCRC32 uint32
}

// BootCatalogEntryT is the on-medium layout of one catalog entry.
type BootCatalogEntryT struct {
	// The image name, UTF-8, null-terminated.
	Name [BootCatalogNameSize]byte
	// The exact size in bytes of the image. Extents cover whole blocks;
	// reads truncate to this length.
	ImageLength uint64
	// Entry flag bits.
	Flags uint32
	// The number of extents in use.
	ExtentCount uint32
	// The extents holding the image bytes, in read order.
	Extents [BootCatalogMaxExtents]Extent
}
