package firmware

import (
	"github.com/deploymenttheory/go-bootstage/internal/types"
)

// Snapshot returns EFI-style descriptors for the allocator's current
// layout: sorted by physical start, adjacent runs of the same type and
// attributes merged. Runtime-services regions carry the runtime
// attribute so the post-boot environment knows to preserve them.
func (a *Allocator) Snapshot() []types.MemoryDescriptor {
	descriptors := make([]types.MemoryDescriptor, 0, len(a.regions))
	for _, r := range a.regions {
		attr := attributesFor(r.memType)
		if n := len(descriptors); n > 0 {
			last := &descriptors[n-1]
			if last.Type == r.memType && last.Attribute == attr && last.PhysicalEnd() == r.start {
				last.NumberOfPages += r.pages
				continue
			}
		}
		descriptors = append(descriptors, types.MemoryDescriptor{
			Type:          r.memType,
			PhysicalStart: r.start,
			NumberOfPages: r.pages,
			Attribute:     attr,
		})
	}
	return descriptors
}

func attributesFor(memType types.MemoryType) uint64 {
	attr := types.MemoryAttributeWriteBack
	if memType == types.MemoryRuntimeServicesCode || memType == types.MemoryRuntimeServicesData {
		attr |= types.MemoryAttributeRuntime
	}
	return attr
}
