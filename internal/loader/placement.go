package loader

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/deploymenttheory/go-bootstage/internal/interfaces"
	"github.com/deploymenttheory/go-bootstage/internal/types"
)

// AllocateAndPlace requests loader-code pages sized to the image and
// copies the image bytes into them. Position-dependent images are placed
// exactly at their declared load address; everything else goes wherever
// the allocator finds room. Any failure releases the partial allocation
// and fails with InsufficientMemory.
func (l *Loader) AllocateAndPlace(desc *ImageDescriptor) (types.PhysAddr, error) {
	if desc == nil || !desc.Validated() {
		return 0, l.fail(types.OutcomeImageCorrupt, stagePlace,
			fmt.Errorf("descriptor has not passed validation"))
	}

	pages := desc.Pages()
	allocType := interfaces.AllocateAnyPages
	requestAddr := types.PhysAddr(0)
	if desc.HasLoadAddress {
		allocType = interfaces.AllocateAddress
		requestAddr = desc.LoadAddress
	}

	base, err := l.services.AllocatePages(allocType, types.MemoryLoaderCode, pages, requestAddr)
	if err != nil {
		return 0, l.fail(types.OutcomeInsufficientMemory, stagePlace,
			fmt.Errorf("failed to allocate %d pages for %q: %w", pages, desc.Path, err))
	}

	if err := l.memory.WritePhysical(base, desc.Buffer); err != nil {
		if freeErr := l.services.FreePages(base, pages); freeErr != nil {
			l.logger.Warn("failed to release pages after placement failure",
				zap.Uint64("base", uint64(base)),
				zap.Error(freeErr))
		}
		return 0, l.fail(types.OutcomeInsufficientMemory, stagePlace,
			fmt.Errorf("failed to place %q at %#x: %w", desc.Path, uint64(base), err))
	}

	l.logger.Debug("image placed",
		zap.String("path", desc.Path),
		zap.Uint64("base", uint64(base)),
		zap.Uint64("pages", pages))
	l.console.Print("placed %s at %#x (%d pages)", desc.Path, uint64(base), pages)
	return base, nil
}
