// Package types defines the data structures shared across the boot stages.
// The layouts of on-medium structures follow the UEFI Specification 2.10
// conventions (little-endian, LBA-addressed) unless noted otherwise.
package types

// Firmware page size in bytes. All firmware allocations are made in whole
// pages of this size.
const PageSize = 4096

// PhysAddr represents a physical memory address.
// Modeled as an unsigned integer to match EFI_PHYSICAL_ADDRESS.
type PhysAddr uint64

// Add returns the address offset by n bytes.
func (p PhysAddr) Add(n uint64) PhysAddr {
	return p + PhysAddr(n)
}

// AlignDown returns the address rounded down to the given alignment.
// align must be a power of two.
func (p PhysAddr) AlignDown(align uint64) PhysAddr {
	return p &^ PhysAddr(align-1)
}

// IsPageAligned reports whether the address falls on a page boundary.
func (p PhysAddr) IsPageAligned() bool {
	return p%PageSize == 0
}

// VirtAddr represents a virtual memory address.
// Boot-time mappings are identity mappings, so virtual addresses in the
// memory map mirror their physical counterparts until the kernel builds
// its own page tables.
type VirtAddr uint64

// PagesFor returns the number of whole pages needed to hold size bytes.
func PagesFor(size uint64) uint64 {
	return (size + PageSize - 1) / PageSize
}
