package interfaces

import (
	"github.com/deploymenttheory/go-bootstage/internal/types"
)

// ImageFormat recognizes and interprets one executable image format.
// Implementations are registered with the format registry; detection
// runs in registration order.
type ImageFormat interface {
	// Name returns the short format name used in diagnostics
	Name() string

	// IsValidHeader reports whether data begins with this format's header
	IsValidHeader(data []byte) bool

	// EntryOffset returns the entry point as a byte offset into the image
	// buffer. A recognized header with a malformed structure or an entry
	// offset outside the buffer is an error.
	EntryOffset(data []byte) (uint64, error)

	// LoadAddress returns the physical address the image is linked to run
	// at. Position-independent formats return ok=false and may be placed
	// anywhere.
	LoadAddress(data []byte) (types.PhysAddr, bool)
}
