package formats

import (
	"fmt"

	"github.com/deploymenttheory/go-bootstage/internal/interfaces"
	"github.com/deploymenttheory/go-bootstage/internal/parsers/peformat"
	"github.com/deploymenttheory/go-bootstage/internal/types"
)

// PE32PlusName is the registry name of the PE32+ format.
const PE32PlusName = "pe32+"

// PE32Plus interprets UEFI-style PE32+ images.
type PE32Plus struct{}

// Compile-time check to ensure PE32Plus implements ImageFormat
var _ interfaces.ImageFormat = (*PE32Plus)(nil)

// NewPE32Plus creates the PE32+ format.
func NewPE32Plus() *PE32Plus {
	return &PE32Plus{}
}

// Name returns the short format name used in diagnostics.
func (f *PE32Plus) Name() string {
	return PE32PlusName
}

// IsValidHeader reports whether data carries the MZ/PE signature pair.
func (f *PE32Plus) IsValidHeader(data []byte) bool {
	return peformat.HasSignature(data)
}

// EntryOffset returns the entry point RVA as an offset into the image
// buffer. A malformed header or an entry outside the buffer is an error.
func (f *PE32Plus) EntryOffset(data []byte) (uint64, error) {
	reader, err := peformat.NewHeaderReader(data)
	if err != nil {
		return 0, err
	}
	entry := uint64(reader.EntryPointRVA())
	if entry >= uint64(len(data)) {
		return 0, fmt.Errorf("entry offset %#x outside the %d-byte image", entry, len(data))
	}
	return entry, nil
}

// LoadAddress always reports no fixed address: PE images carry a
// preferred base but are built to relocate.
func (f *PE32Plus) LoadAddress(data []byte) (types.PhysAddr, bool) {
	return 0, false
}
