package interfaces

import (
	"github.com/deploymenttheory/go-bootstage/internal/types"
)

// ControlPort performs the irreversible transfer of control to a placed
// kernel image. On real hardware Jump never returns on success. Simulated
// ports run the guest in-process and report its termination through the
// returned error.
type ControlPort interface {
	// Jump transfers control to the entry address with the handoff record
	Jump(entry types.PhysAddr, record *types.HandoffRecord, state MachineState) error
}

// MachineState provides the minimal pre-kernel machine setup performed by
// the entry shim
type MachineState interface {
	// MaskInterrupts disables external interrupt delivery
	MaskInterrupts()

	// SetStackPointer installs the top of the kernel stack
	SetStackPointer(top types.PhysAddr)
}
