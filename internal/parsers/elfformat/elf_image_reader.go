package elfformat

import (
	"bytes"
	"debug/elf"
	"fmt"

	"github.com/deploymenttheory/go-bootstage/internal/types"
)

// ImageReader interprets a 64-bit ELF executable held in a flat buffer.
// The buffer is treated as the image's memory layout beginning at the
// lowest physical load address, the way unikernel-style kernels are
// linked and placed.
type ImageReader struct {
	file *elf.File
}

// HasSignature reports whether data begins with a 64-bit ELF identifier.
// It is the cheap detection pre-check; NewImageReader performs the full
// structural validation.
func HasSignature(data []byte) bool {
	if len(data) < elf.EI_NIDENT {
		return false
	}
	if string(data[0:4]) != elf.ELFMAG {
		return false
	}
	return elf.Class(data[elf.EI_CLASS]) == elf.ELFCLASS64
}

// NewImageReader parses the buffer as a 64-bit ELF executable.
func NewImageReader(data []byte) (*ImageReader, error) {
	file, err := elf.NewFile(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ELF image: %w", err)
	}
	if file.Class != elf.ELFCLASS64 {
		return nil, fmt.Errorf("unsupported ELF class %s, expected ELFCLASS64", file.Class)
	}
	if file.Type != elf.ET_EXEC && file.Type != elf.ET_DYN {
		return nil, fmt.Errorf("ELF type %s is not an executable image", file.Type)
	}
	return &ImageReader{file: file}, nil
}

// Machine returns the target machine architecture.
func (r *ImageReader) Machine() elf.Machine {
	return r.file.Machine
}

// Type returns the ELF object type.
func (r *ImageReader) Type() elf.Type {
	return r.file.Type
}

// Entry returns the raw entry point address from the ELF header.
func (r *ImageReader) Entry() uint64 {
	return r.file.Entry
}

// LoadSegments returns the PT_LOAD program headers in file order.
func (r *ImageReader) LoadSegments() []elf.ProgHeader {
	var segments []elf.ProgHeader
	for _, prog := range r.file.Progs {
		if prog.Type == elf.PT_LOAD {
			segments = append(segments, prog.ProgHeader)
		}
	}
	return segments
}

// LowestLoadAddress returns the smallest physical load address among the
// PT_LOAD segments, the address the image expects to be placed at.
func (r *ImageReader) LowestLoadAddress() (types.PhysAddr, error) {
	segments := r.LoadSegments()
	if len(segments) == 0 {
		return 0, fmt.Errorf("ELF image has no loadable segments")
	}
	lowest := segments[0].Paddr
	for _, seg := range segments[1:] {
		if seg.Paddr < lowest {
			lowest = seg.Paddr
		}
	}
	return types.PhysAddr(lowest), nil
}

// EntryOffset returns the entry point as a byte offset from the lowest
// physical load address.
func (r *ImageReader) EntryOffset() (uint64, error) {
	lowest, err := r.LowestLoadAddress()
	if err != nil {
		return 0, err
	}
	if r.file.Entry < uint64(lowest) {
		return 0, fmt.Errorf("entry point %#x below the lowest load address %#x", r.file.Entry, uint64(lowest))
	}
	return r.file.Entry - uint64(lowest), nil
}

// IsPositionDependent reports whether the image must be placed at its
// linked physical address. ET_DYN images relocate freely.
func (r *ImageReader) IsPositionDependent() bool {
	return r.file.Type == elf.ET_EXEC
}
