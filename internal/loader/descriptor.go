// Package loader implements the stage loader: it discovers a kernel image
// on a boot medium, validates it against the registered executable
// formats, places it in firmware-allocated memory, builds the handoff
// record at the commit point, and performs the irreversible control
// transfer. Every failure before the commit point surfaces as a
// *types.OutcomeError and leaves the firmware in its pre-boot state.
package loader

import (
	"github.com/deploymenttheory/go-bootstage/internal/interfaces"
	"github.com/deploymenttheory/go-bootstage/internal/types"
)

// ImageDescriptor carries everything the loader knows about a located
// kernel image. The format fields are populated by validation; placement
// must not run before they are.
type ImageDescriptor struct {
	// Path is the medium path the image was read from.
	Path string
	// Buffer holds the raw image bytes. Its length equals the size the
	// medium reported at read time.
	Buffer []byte
	// Format is the executable format that recognized the image.
	Format interfaces.ImageFormat
	// EntryOffset is the entry point offset within the placed image.
	EntryOffset uint64
	// LoadAddress is the address a position-dependent image must be
	// placed at. Meaningful only when HasLoadAddress is set.
	LoadAddress    types.PhysAddr
	HasLoadAddress bool
}

// Pages returns the number of whole pages the image occupies when placed.
func (d *ImageDescriptor) Pages() uint64 {
	return types.PagesFor(uint64(len(d.Buffer)))
}

// Validated reports whether the descriptor has passed format validation.
func (d *ImageDescriptor) Validated() bool {
	return d.Format != nil
}
