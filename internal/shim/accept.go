// Package shim implements the kernel entry shim: the first code a placed
// image runs. It accepts the handoff record, establishes the minimal
// execution context the kernel needs, and enters the kernel body. The
// shim runs strictly after the commit point, so it holds no boot-time
// capabilities at all; its only inputs are the record, physical memory,
// and the machine state.
package shim

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/deploymenttheory/go-bootstage/internal/interfaces"
	"github.com/deploymenttheory/go-bootstage/internal/types"
)

// Shim is the kernel entry shim.
type Shim struct {
	memory interfaces.PhysicalMemory
	state  interfaces.MachineState
	logger *zap.Logger
}

// New creates a shim over the machine capabilities.
func New(memory interfaces.PhysicalMemory, state interfaces.MachineState, logger *zap.Logger) (*Shim, error) {
	if memory == nil {
		return nil, fmt.Errorf("physical memory capability cannot be nil")
	}
	if state == nil {
		return nil, fmt.Errorf("machine state capability cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Shim{memory: memory, state: state, logger: logger}, nil
}

// Context is the validated execution context the shim hands to the
// kernel body. Read-only once EnterKernel runs.
type Context struct {
	// Record is the accepted handoff record.
	Record *types.HandoffRecord
	// StackTop and StackBase bound the private kernel stack carved by
	// EstablishContext. The stack grows down from StackTop.
	StackTop  types.PhysAddr
	StackBase types.PhysAddr
}

// Accept validates the handoff record before trusting any field: magic,
// version, the post-boot-services flag, and the memory map's sanity. The
// record is the shim's only source of truth about the machine, so a
// record that fails here means the loader never reached the commit point
// and the shim refuses with ServicesUnavailable, touching nothing.
func (s *Shim) Accept(record *types.HandoffRecord) (*Context, error) {
	if err := record.Validate(); err != nil {
		return nil, types.NewOutcomeError(types.OutcomeServicesUnavailable, "accept handoff",
			fmt.Errorf("handoff record rejected: %w", err))
	}

	s.logger.Debug("handoff record accepted",
		zap.Int("descriptors", len(record.MemoryMap.Descriptors)),
		zap.String("cmdline", record.CommandLine))
	return &Context{Record: record}, nil
}
