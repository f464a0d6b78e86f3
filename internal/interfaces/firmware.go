// Package interfaces defines the capability contracts between the stage
// loader, the kernel entry shim, and the firmware environment they run
// against. Every collaborator is a narrow interface so tests can substitute
// recording doubles for each capability independently.
package interfaces

import (
	"errors"

	"github.com/deploymenttheory/go-bootstage/internal/types"
)

// ErrStaleMapKey is returned by ExitBootServices when the supplied map key no
// longer matches the current memory map revision. The caller re-snapshots the
// map and retries exactly once.
var ErrStaleMapKey = errors.New("memory map key is stale")

// AllocateType selects the placement policy for a page allocation
type AllocateType int

const (
	// AllocateAnyPages places the allocation anywhere in conventional memory
	AllocateAnyPages AllocateType = iota

	// AllocateMaxAddress places the allocation at or below the given address
	AllocateMaxAddress

	// AllocateAddress places the allocation exactly at the given address
	AllocateAddress
)

// FrameAllocator provides page-granular allocation of physical memory frames
type FrameAllocator interface {
	// AllocatePages allocates pages of the given memory type. The address
	// argument is the request address for AllocateAddress, the ceiling for
	// AllocateMaxAddress, and ignored for AllocateAnyPages.
	AllocatePages(allocType AllocateType, memType types.MemoryType, pages uint64, addr types.PhysAddr) (types.PhysAddr, error)

	// FreePages releases pages previously obtained from AllocatePages
	FreePages(addr types.PhysAddr, pages uint64) error
}

// MemoryMapper provides snapshots of the current physical memory layout
type MemoryMapper interface {
	// MemoryMap returns a sorted, coalesced snapshot of the memory map
	// together with the key identifying this revision of the map
	MemoryMap() (types.MemoryMap, error)
}

// BootTransition provides the one-way exit from the boot services phase
type BootTransition interface {
	// ExitBootServices terminates boot services using the given map key.
	// A stale key fails with ErrStaleMapKey and leaves the services usable.
	ExitBootServices(mapKey uint64) error
}

// RuntimeLocator reports the firmware table region that stays valid after
// the commit point, for the loader to carry into the handoff record.
type RuntimeLocator interface {
	// RuntimeTable returns the address and byte size of the runtime table
	RuntimeTable() (types.PhysAddr, uint64)
}

// BootServices aggregates the firmware capabilities available before the
// commit point. After a successful ExitBootServices none of the boot-time
// methods may be called again.
type BootServices interface {
	FrameAllocator
	MemoryMapper
	BootTransition
	RuntimeLocator
}

// PhysicalMemory provides bounds-checked access to physical address space
type PhysicalMemory interface {
	// ReadPhysical fills buf from physical memory starting at addr
	ReadPhysical(addr types.PhysAddr, buf []byte) error

	// WritePhysical copies data into physical memory starting at addr
	WritePhysical(addr types.PhysAddr, data []byte) error
}
