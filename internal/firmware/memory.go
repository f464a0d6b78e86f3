// Package firmware implements the simulated firmware environment the
// stage loader runs against: a physical RAM arena, a page-granular frame
// allocator, memory map snapshots with stale-key semantics, and the
// one-way exit from boot services. Real firmware supplies the same
// capabilities through the interfaces package; nothing in the loader
// knows which one it is talking to.
package firmware

import (
	"fmt"

	"github.com/deploymenttheory/go-bootstage/internal/interfaces"
	"github.com/deploymenttheory/go-bootstage/internal/types"
)

// DefaultRAMBase is where the simulated arena starts. Memory below 1 MiB
// stays out of the pool, the way firmware leaves legacy ranges alone.
const DefaultRAMBase types.PhysAddr = 0x100000

// DefaultRAMSize is the arena size used when configuration does not
// override it.
const DefaultRAMSize uint64 = 64 << 20

// RAM is a bounds-checked arena of simulated physical memory.
type RAM struct {
	base types.PhysAddr
	data []byte
}

// Compile-time check to ensure RAM implements PhysicalMemory
var _ interfaces.PhysicalMemory = (*RAM)(nil)

// NewRAM creates an arena of size bytes starting at base. Both must be
// page aligned.
func NewRAM(base types.PhysAddr, size uint64) (*RAM, error) {
	if !base.IsPageAligned() {
		return nil, fmt.Errorf("arena base %#x is not page aligned", uint64(base))
	}
	if size == 0 || size%types.PageSize != 0 {
		return nil, fmt.Errorf("arena size %#x is not a positive multiple of the page size", size)
	}
	return &RAM{
		base: base,
		data: make([]byte, size),
	}, nil
}

// Base returns the first address of the arena.
func (r *RAM) Base() types.PhysAddr {
	return r.base
}

// Size returns the arena size in bytes.
func (r *RAM) Size() uint64 {
	return uint64(len(r.data))
}

// End returns the first address past the arena.
func (r *RAM) End() types.PhysAddr {
	return r.base.Add(uint64(len(r.data)))
}

// ReadPhysical fills buf from the arena starting at addr.
func (r *RAM) ReadPhysical(addr types.PhysAddr, buf []byte) error {
	off, err := r.offsetFor(addr, uint64(len(buf)))
	if err != nil {
		return err
	}
	copy(buf, r.data[off:off+uint64(len(buf))])
	return nil
}

// WritePhysical copies data into the arena starting at addr.
func (r *RAM) WritePhysical(addr types.PhysAddr, data []byte) error {
	off, err := r.offsetFor(addr, uint64(len(data)))
	if err != nil {
		return err
	}
	copy(r.data[off:], data)
	return nil
}

func (r *RAM) offsetFor(addr types.PhysAddr, length uint64) (uint64, error) {
	if addr < r.base || addr > r.End() {
		return 0, fmt.Errorf("address %#x outside the arena [%#x, %#x)", uint64(addr), uint64(r.base), uint64(r.End()))
	}
	off := uint64(addr - r.base)
	if off+length > uint64(len(r.data)) {
		return 0, fmt.Errorf("access of %d bytes at %#x runs past the end of the arena", length, uint64(addr))
	}
	return off, nil
}
