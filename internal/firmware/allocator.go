package firmware

import (
	"fmt"

	"github.com/deploymenttheory/go-bootstage/internal/interfaces"
	"github.com/deploymenttheory/go-bootstage/internal/types"
)

// region is a run of pages carrying a single memory type. The allocator
// keeps its regions sorted by start, non-overlapping, and covering the
// whole arena; conventional regions are free, every other type is in use.
type region struct {
	start   types.PhysAddr
	pages   uint64
	memType types.MemoryType
}

func (r region) end() types.PhysAddr {
	return r.start.Add(r.pages * types.PageSize)
}

// Allocator hands out page frames from a physical arena, first fit from
// the bottom. It records who owns what: frees must match an outstanding
// allocation exactly.
type Allocator struct {
	regions []region
	allocs  map[types.PhysAddr]uint64
}

// NewAllocator creates an allocator whose arena is one free region.
func NewAllocator(base types.PhysAddr, size uint64) (*Allocator, error) {
	if !base.IsPageAligned() {
		return nil, fmt.Errorf("arena base %#x is not page aligned", uint64(base))
	}
	if size == 0 || size%types.PageSize != 0 {
		return nil, fmt.Errorf("arena size %#x is not a positive multiple of the page size", size)
	}
	return &Allocator{
		regions: []region{{start: base, pages: size / types.PageSize, memType: types.MemoryConventional}},
		allocs:  make(map[types.PhysAddr]uint64),
	}, nil
}

// Allocate obtains pages of the given memory type. The addr argument is
// the exact address for AllocateAddress and the highest permitted last
// byte for AllocateMaxAddress.
func (a *Allocator) Allocate(allocType interfaces.AllocateType, memType types.MemoryType, pages uint64, addr types.PhysAddr) (types.PhysAddr, error) {
	if pages == 0 {
		return 0, fmt.Errorf("cannot allocate zero pages")
	}
	if memType == types.MemoryConventional || memType >= types.MemoryMaxType {
		return 0, fmt.Errorf("invalid memory type %d for an allocation", memType)
	}

	var base types.PhysAddr
	switch allocType {
	case interfaces.AllocateAnyPages:
		b, ok := a.findFree(pages, 0, false)
		if !ok {
			return 0, fmt.Errorf("no free run of %d pages", pages)
		}
		base = b
	case interfaces.AllocateMaxAddress:
		b, ok := a.findFree(pages, addr, true)
		if !ok {
			return 0, fmt.Errorf("no free run of %d pages below %#x", pages, uint64(addr))
		}
		base = b
	case interfaces.AllocateAddress:
		if !addr.IsPageAligned() {
			return 0, fmt.Errorf("requested address %#x is not page aligned", uint64(addr))
		}
		if !a.rangeFree(addr, pages) {
			return 0, fmt.Errorf("range of %d pages at %#x is not free", pages, uint64(addr))
		}
		base = addr
	default:
		return 0, fmt.Errorf("unknown allocate type %d", allocType)
	}

	a.carve(base, pages, memType)
	a.allocs[base] = pages
	return base, nil
}

// Free releases an outstanding allocation. The address and page count
// must match the original allocation exactly.
func (a *Allocator) Free(addr types.PhysAddr, pages uint64) error {
	owned, ok := a.allocs[addr]
	if !ok {
		return fmt.Errorf("no outstanding allocation at %#x", uint64(addr))
	}
	if owned != pages {
		return fmt.Errorf("allocation at %#x holds %d pages, not %d", uint64(addr), owned, pages)
	}

	delete(a.allocs, addr)
	a.setConventional(addr, pages)
	a.coalesce()
	return nil
}

// Reserve marks a range with a memory type without recording an
// allocation. Used for firmware-owned carve-outs that are never freed.
func (a *Allocator) Reserve(addr types.PhysAddr, pages uint64, memType types.MemoryType) error {
	if !addr.IsPageAligned() {
		return fmt.Errorf("reserved address %#x is not page aligned", uint64(addr))
	}
	if memType == types.MemoryConventional {
		return fmt.Errorf("cannot reserve a range as conventional memory")
	}
	if !a.rangeFree(addr, pages) {
		return fmt.Errorf("range of %d pages at %#x is not free", pages, uint64(addr))
	}
	a.carve(addr, pages, memType)
	return nil
}

// OutstandingAllocations returns how many allocations have not been
// freed. Reservations do not count.
func (a *Allocator) OutstandingAllocations() int {
	return len(a.allocs)
}

// findFree returns the start of the lowest free run of the requested
// size. When bounded, the run's last byte must not exceed max.
func (a *Allocator) findFree(pages uint64, max types.PhysAddr, bounded bool) (types.PhysAddr, bool) {
	for _, r := range a.regions {
		if r.memType != types.MemoryConventional || r.pages < pages {
			continue
		}
		if bounded && r.start.Add(pages*types.PageSize)-1 > max {
			continue
		}
		return r.start, true
	}
	return 0, false
}

// rangeFree reports whether [addr, addr+pages) lies entirely inside one
// free region. Free neighbors are always coalesced, so a free span never
// straddles regions.
func (a *Allocator) rangeFree(addr types.PhysAddr, pages uint64) bool {
	end := addr.Add(pages * types.PageSize)
	for _, r := range a.regions {
		if addr >= r.start && addr < r.end() {
			return r.memType == types.MemoryConventional && end <= r.end()
		}
	}
	return false
}

// carve splits the region containing [base, base+pages) and assigns the
// carved middle the given type. The range must already be known to fit.
func (a *Allocator) carve(base types.PhysAddr, pages uint64, memType types.MemoryType) {
	for i, r := range a.regions {
		if base < r.start || base >= r.end() {
			continue
		}

		var out []region
		if base > r.start {
			out = append(out, region{start: r.start, pages: uint64(base-r.start) / types.PageSize, memType: r.memType})
		}
		out = append(out, region{start: base, pages: pages, memType: memType})
		carvedEnd := base.Add(pages * types.PageSize)
		if carvedEnd < r.end() {
			out = append(out, region{start: carvedEnd, pages: uint64(r.end()-carvedEnd) / types.PageSize, memType: r.memType})
		}

		a.regions = append(a.regions[:i], append(out, a.regions[i+1:]...)...)
		return
	}
}

func (a *Allocator) setConventional(addr types.PhysAddr, pages uint64) {
	for i := range a.regions {
		if a.regions[i].start == addr && a.regions[i].pages == pages {
			a.regions[i].memType = types.MemoryConventional
			return
		}
	}
}

// coalesce merges adjacent free regions. In-use regions stay distinct so
// each allocation remains individually freeable.
func (a *Allocator) coalesce() {
	merged := a.regions[:0]
	for _, r := range a.regions {
		if len(merged) > 0 {
			last := &merged[len(merged)-1]
			if last.memType == types.MemoryConventional && r.memType == types.MemoryConventional && last.end() == r.start {
				last.pages += r.pages
				continue
			}
		}
		merged = append(merged, r)
	}
	a.regions = merged
}
