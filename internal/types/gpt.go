package types

// GUID Partition Table structures, per UEFI Specification 2.10 section 5.3.
// All multi-byte fields are little-endian on the medium.

// GptSignature is the 8-byte header signature, "EFI PART" read as a
// little-endian uint64.
const GptSignature uint64 = 0x5452415020494645

// GptHeaderSize is the size in bytes of the defined GPT header fields.
// The remainder of the header block is reserved and must be zero, but is
// not covered by the header checksum.
const GptHeaderSize = 92

// GptPartitionEntrySize is the size in bytes of one partition entry.
// The specification allows larger power-of-two sizes, but 128 is what
// every tool writes in practice.
const GptPartitionEntrySize = 128

// GptHeaderLBA is the logical block holding the primary GPT header.
// LBA 0 carries the protective MBR.
const GptHeaderLBA = 1

// DefaultLogicalBlockSize is the logical block size assumed when the
// medium does not report one.
const DefaultLogicalBlockSize = 512

// EspTypeGUID is the partition type GUID of an EFI System Partition,
// the partition a boot medium exposes its kernel images on.
const EspTypeGUID = "C12A7328-F81F-11D2-BA4B-00A0C93EC93B"

// GptHeader represents the defined fields of a GPT header.
type GptHeader struct {
	// The header signature; always GptSignature.
	Signature uint64
	// The specification revision, 0x00010000 for 2.10.
	Revision uint32
	// The size in bytes of the header covered by HeaderCRC32.
	HeaderSize uint32
	// CRC32 of the first HeaderSize bytes, computed with this field zero.
	HeaderCRC32 uint32
	// Reserved; must be zero.
	Reserved uint32
	// The LBA holding this header.
	MyLBA uint64
	// The LBA of the alternate (backup) header.
	AlternateLBA uint64
	// The first LBA usable by partitions.
	FirstUsableLBA uint64
	// The last LBA usable by partitions.
	LastUsableLBA uint64
	// The disk's unique GUID, stored in GPT mixed-endian layout.
	DiskGUID [16]byte
	// The starting LBA of the partition entry array.
	PartitionEntryLBA uint64
	// The number of entries in the partition entry array.
	NumberOfPartitionEntries uint32
	// The size in bytes of each partition entry.
	SizeOfPartitionEntry uint32
	// CRC32 of the whole partition entry array.
	PartitionEntryArrayCRC32 uint32
}

// GptPartitionEntry represents one entry in the partition entry array.
type GptPartitionEntry struct {
	// The partition type GUID; all zeros marks an unused entry.
	PartitionTypeGUID [16]byte
	// The GUID unique to this partition.
	UniquePartitionGUID [16]byte
	// The first LBA of the partition.
	FirstLBA uint64
	// The last LBA of the partition, inclusive.
	LastLBA uint64
	// Attribute bits.
	Attributes uint64
	// The partition name, UTF-16LE, null-terminated (36 code units).
	PartitionName [72]byte
}
