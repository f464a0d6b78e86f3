package peformat

import (
	"encoding/binary"
	"fmt"
)

// PE32+ header layout constants, per the Microsoft PE/COFF specification.
const (
	dosMagic      uint16 = 0x5a4d
	peSignature   uint32 = 0x00004550
	pe32PlusMagic uint16 = 0x020b

	dosHeaderSize        = 64
	peSignatureOffsetPos = 0x3c
	coffHeaderSize       = 20

	// The standard plus Windows-specific fields of a PE32+ optional
	// header; data directories follow and may be absent.
	minOptionalHeaderSize = 112
)

// MachineAmd64 is the COFF machine type of an x86-64 image.
const MachineAmd64 uint16 = 0x8664

// SubsystemEFIApplication is the Windows subsystem value UEFI
// applications are linked with.
const SubsystemEFIApplication uint16 = 10

// HeaderReader provides access to the headers of a PE32+ image held in a
// flat buffer. The buffer is not copied; callers must not mutate it while
// the reader is in use.
type HeaderReader struct {
	data      []byte
	peOffset  int
	optOffset int
	optSize   int
}

// HasSignature reports whether data carries the MZ and PE signature pair.
// It is the cheap detection pre-check; NewHeaderReader performs the full
// structural validation.
func HasSignature(data []byte) bool {
	if len(data) < dosHeaderSize {
		return false
	}
	if binary.LittleEndian.Uint16(data[0:2]) != dosMagic {
		return false
	}
	peOff := binary.LittleEndian.Uint32(data[peSignatureOffsetPos : peSignatureOffsetPos+4])
	if int64(peOff)+4 > int64(len(data)) {
		return false
	}
	return binary.LittleEndian.Uint32(data[peOff:peOff+4]) == peSignature
}

// NewHeaderReader validates the DOS, COFF, and PE32+ optional headers of
// the buffer and returns a reader over them.
func NewHeaderReader(data []byte) (*HeaderReader, error) {
	if len(data) < dosHeaderSize {
		return nil, fmt.Errorf("image too small for a DOS header: %d bytes", len(data))
	}
	if binary.LittleEndian.Uint16(data[0:2]) != dosMagic {
		return nil, fmt.Errorf("missing MZ signature")
	}

	peOffset := int(binary.LittleEndian.Uint32(data[peSignatureOffsetPos:]))
	if peOffset < dosHeaderSize || peOffset+4+coffHeaderSize > len(data) {
		return nil, fmt.Errorf("PE header offset %d out of bounds", peOffset)
	}
	if binary.LittleEndian.Uint32(data[peOffset:]) != peSignature {
		return nil, fmt.Errorf("missing PE signature at offset %d", peOffset)
	}

	optOffset := peOffset + 4 + coffHeaderSize
	optSize := int(binary.LittleEndian.Uint16(data[peOffset+4+16:]))
	if optSize < minOptionalHeaderSize {
		return nil, fmt.Errorf("optional header size %d below the PE32+ minimum %d", optSize, minOptionalHeaderSize)
	}
	if optOffset+optSize > len(data) {
		return nil, fmt.Errorf("optional header extends past the end of the image")
	}
	if magic := binary.LittleEndian.Uint16(data[optOffset:]); magic != pe32PlusMagic {
		return nil, fmt.Errorf("optional header magic %#04x is not PE32+", magic)
	}

	return &HeaderReader{
		data:      data,
		peOffset:  peOffset,
		optOffset: optOffset,
		optSize:   optSize,
	}, nil
}

// Machine returns the COFF machine type.
func (r *HeaderReader) Machine() uint16 {
	return binary.LittleEndian.Uint16(r.data[r.peOffset+4:])
}

// NumberOfSections returns the COFF section count.
func (r *HeaderReader) NumberOfSections() uint16 {
	return binary.LittleEndian.Uint16(r.data[r.peOffset+6:])
}

// EntryPointRVA returns the entry point, relative to the image base.
func (r *HeaderReader) EntryPointRVA() uint32 {
	return binary.LittleEndian.Uint32(r.data[r.optOffset+16:])
}

// ImageBase returns the preferred load address of the image.
func (r *HeaderReader) ImageBase() uint64 {
	return binary.LittleEndian.Uint64(r.data[r.optOffset+24:])
}

// SectionAlignment returns the in-memory section alignment.
func (r *HeaderReader) SectionAlignment() uint32 {
	return binary.LittleEndian.Uint32(r.data[r.optOffset+32:])
}

// SizeOfImage returns the in-memory image size, including headers.
func (r *HeaderReader) SizeOfImage() uint32 {
	return binary.LittleEndian.Uint32(r.data[r.optOffset+56:])
}

// Subsystem returns the Windows subsystem the image targets.
func (r *HeaderReader) Subsystem() uint16 {
	return binary.LittleEndian.Uint16(r.data[r.optOffset+68:])
}
