package types

import "fmt"

// MemoryType classifies a region in the firmware memory map.
// Values mirror EFI_MEMORY_TYPE so map snapshots stay comparable with what
// real firmware reports.
type MemoryType uint32

const (
	MemoryReserved MemoryType = iota
	MemoryLoaderCode
	MemoryLoaderData
	MemoryBootServicesCode
	MemoryBootServicesData
	MemoryRuntimeServicesCode
	MemoryRuntimeServicesData
	MemoryConventional
	MemoryUnusable
	MemoryACPIReclaim
	MemoryACPINVS
	MemoryMappedIO
	MemoryMappedIOPortSpace
	MemoryPalCode
	MemoryPersistent
	MemoryMaxType
)

// Memory attribute bits, per UEFI Specification 2.10 section 7.2.
const (
	MemoryAttributeWriteBack uint64 = 0x0000000000000008
	MemoryAttributeRuntime   uint64 = 0x8000000000000000
)

// String returns a short name for the memory type.
func (t MemoryType) String() string {
	switch t {
	case MemoryReserved:
		return "reserved"
	case MemoryLoaderCode:
		return "loader-code"
	case MemoryLoaderData:
		return "loader-data"
	case MemoryBootServicesCode:
		return "boot-services-code"
	case MemoryBootServicesData:
		return "boot-services-data"
	case MemoryRuntimeServicesCode:
		return "runtime-services-code"
	case MemoryRuntimeServicesData:
		return "runtime-services-data"
	case MemoryConventional:
		return "conventional"
	case MemoryUnusable:
		return "unusable"
	case MemoryACPIReclaim:
		return "acpi-reclaim"
	case MemoryACPINVS:
		return "acpi-nvs"
	case MemoryMappedIO:
		return "mmio"
	case MemoryMappedIOPortSpace:
		return "mmio-port"
	case MemoryPalCode:
		return "pal-code"
	case MemoryPersistent:
		return "persistent"
	default:
		return fmt.Sprintf("memory-type-%d", uint32(t))
	}
}

// MemoryDescriptor describes one contiguous region in the memory map.
// Field layout follows EFI_MEMORY_DESCRIPTOR.
type MemoryDescriptor struct {
	Type          MemoryType
	PhysicalStart PhysAddr
	VirtualStart  VirtAddr
	NumberOfPages uint64
	Attribute     uint64
}

// PhysicalEnd returns the first address past the region.
func (d MemoryDescriptor) PhysicalEnd() PhysAddr {
	return d.PhysicalStart.Add(d.NumberOfPages * PageSize)
}

// SizeBytes returns the region size in bytes.
func (d MemoryDescriptor) SizeBytes() uint64 {
	return d.NumberOfPages * PageSize
}

// MemoryMap is a point-in-time snapshot of the firmware memory layout.
// The MapKey identifies the snapshot; it changes whenever the layout
// changes, and ExitBootServices only accepts the current key.
type MemoryMap struct {
	Descriptors []MemoryDescriptor
	MapKey      uint64
}

// Validate checks the structural invariants of the snapshot: at least one
// descriptor, every descriptor non-empty, and descriptors sorted by
// physical start without overlap.
func (m MemoryMap) Validate() error {
	if len(m.Descriptors) == 0 {
		return fmt.Errorf("memory map has no descriptors")
	}
	for i, d := range m.Descriptors {
		if d.NumberOfPages == 0 {
			return fmt.Errorf("descriptor %d has zero pages", i)
		}
		if !d.PhysicalStart.IsPageAligned() {
			return fmt.Errorf("descriptor %d starts at unaligned address %#x", i, uint64(d.PhysicalStart))
		}
		if i > 0 {
			prev := m.Descriptors[i-1]
			if d.PhysicalStart < prev.PhysicalEnd() {
				return fmt.Errorf("descriptor %d at %#x overlaps previous region ending at %#x",
					i, uint64(d.PhysicalStart), uint64(prev.PhysicalEnd()))
			}
		}
	}
	return nil
}

// LargestConventional returns the largest conventional-memory descriptor in
// the snapshot. ok is false when the snapshot contains none.
func (m MemoryMap) LargestConventional() (MemoryDescriptor, bool) {
	var best MemoryDescriptor
	found := false
	for _, d := range m.Descriptors {
		if d.Type != MemoryConventional {
			continue
		}
		if !found || d.NumberOfPages > best.NumberOfPages {
			best = d
			found = true
		}
	}
	return best, found
}

// TotalPages returns the page count of all descriptors of the given type.
func (m MemoryMap) TotalPages(t MemoryType) uint64 {
	var total uint64
	for _, d := range m.Descriptors {
		if d.Type == t {
			total += d.NumberOfPages
		}
	}
	return total
}

// Clone returns a deep copy of the snapshot so callers can hold it across
// later map changes.
func (m MemoryMap) Clone() MemoryMap {
	out := MemoryMap{MapKey: m.MapKey}
	if m.Descriptors != nil {
		out.Descriptors = make([]MemoryDescriptor, len(m.Descriptors))
		copy(out.Descriptors, m.Descriptors)
	}
	return out
}
