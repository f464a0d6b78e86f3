package formats

import (
	"fmt"

	"github.com/deploymenttheory/go-bootstage/internal/interfaces"
	"github.com/deploymenttheory/go-bootstage/internal/parsers/elfformat"
	"github.com/deploymenttheory/go-bootstage/internal/types"
)

// ELF64Name is the registry name of the ELF64 format.
const ELF64Name = "elf64"

// ELF64 interprets unikernel-style 64-bit ELF images.
type ELF64 struct{}

// Compile-time check to ensure ELF64 implements ImageFormat
var _ interfaces.ImageFormat = (*ELF64)(nil)

// NewELF64 creates the ELF64 format.
func NewELF64() *ELF64 {
	return &ELF64{}
}

// Name returns the short format name used in diagnostics.
func (f *ELF64) Name() string {
	return ELF64Name
}

// IsValidHeader reports whether data begins with a 64-bit ELF identifier.
func (f *ELF64) IsValidHeader(data []byte) bool {
	return elfformat.HasSignature(data)
}

// EntryOffset returns the entry point as an offset into the image buffer,
// measured from the lowest physical load address.
func (f *ELF64) EntryOffset(data []byte) (uint64, error) {
	reader, err := elfformat.NewImageReader(data)
	if err != nil {
		return 0, err
	}
	offset, err := reader.EntryOffset()
	if err != nil {
		return 0, err
	}
	if offset >= uint64(len(data)) {
		return 0, fmt.Errorf("entry offset %#x outside the %d-byte image", offset, len(data))
	}
	return offset, nil
}

// LoadAddress returns the lowest physical load address for
// position-dependent (ET_EXEC) images. Relocatable ET_DYN images report
// no fixed address.
func (f *ELF64) LoadAddress(data []byte) (types.PhysAddr, bool) {
	reader, err := elfformat.NewImageReader(data)
	if err != nil {
		return 0, false
	}
	if !reader.IsPositionDependent() {
		return 0, false
	}
	addr, err := reader.LowestLoadAddress()
	if err != nil {
		return 0, false
	}
	return addr, true
}
