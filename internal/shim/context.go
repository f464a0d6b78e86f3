package shim

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/deploymenttheory/go-bootstage/internal/types"
)

// DefaultStackPages is the size of the private kernel stack the shim
// carves before entering the kernel body.
const DefaultStackPages uint64 = 16

// EstablishContext sets up the minimal execution environment the kernel
// requires: interrupts masked, and a private zeroed stack carved from
// the top of the largest conventional region in the accepted memory map,
// its top aligned down to 16 bytes. Must complete before any code that
// assumes a stable execution context runs.
func (s *Shim) EstablishContext(ctx *Context) error {
	if ctx == nil || ctx.Record == nil {
		return types.NewOutcomeError(types.OutcomeServicesUnavailable, "establish context",
			fmt.Errorf("no accepted handoff context"))
	}

	region, ok := ctx.Record.MemoryMap.LargestConventional()
	if !ok {
		return types.NewOutcomeError(types.OutcomeServicesUnavailable, "establish context",
			fmt.Errorf("memory map has no conventional region for the kernel stack"))
	}

	stackBytes := DefaultStackPages * types.PageSize
	if region.SizeBytes() < stackBytes {
		return types.NewOutcomeError(types.OutcomeServicesUnavailable, "establish context",
			fmt.Errorf("largest conventional region holds %d bytes, the stack needs %d", region.SizeBytes(), stackBytes))
	}

	top := region.PhysicalEnd().AlignDown(16)
	base := top - types.PhysAddr(stackBytes)

	// The kernel must not inherit whatever the loader left behind.
	s.state.MaskInterrupts()
	if err := s.memory.WritePhysical(base, make([]byte, stackBytes)); err != nil {
		return types.NewOutcomeError(types.OutcomeServicesUnavailable, "establish context",
			fmt.Errorf("failed to zero the kernel stack at %#x: %w", uint64(base), err))
	}
	s.state.SetStackPointer(top)

	ctx.StackTop = top
	ctx.StackBase = base
	s.logger.Debug("execution context established",
		zap.Uint64("stackTop", uint64(top)),
		zap.Uint64("stackBase", uint64(base)))
	return nil
}
