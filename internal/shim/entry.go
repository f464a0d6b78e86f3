package shim

import (
	"fmt"

	"github.com/deploymenttheory/go-bootstage/internal/interfaces"
	"github.com/deploymenttheory/go-bootstage/internal/machine"
	"github.com/deploymenttheory/go-bootstage/internal/types"
)

// KernelMain is the kernel body the shim enters. The body is out of
// scope for this core; simulated kernels record what they were given or
// print through their own devices. A body that returns nil ran to
// completion, which a simulated machine reports as a halt.
type KernelMain func(ctx *Context) error

// EnterKernel makes the single non-returning call into the kernel body.
// A nil body stands in for a kernel that does nothing and halts.
func (s *Shim) EnterKernel(ctx *Context, kernelMain KernelMain) error {
	if ctx == nil {
		return fmt.Errorf("cannot enter the kernel without an established context")
	}
	if kernelMain == nil {
		return nil
	}
	return kernelMain(ctx)
}

// Enter is the shim's whole job in order: accept the record, establish
// the execution context, enter the kernel body.
func (s *Shim) Enter(record *types.HandoffRecord, kernelMain KernelMain) error {
	ctx, err := s.Accept(record)
	if err != nil {
		return err
	}
	if err := s.EstablishContext(ctx); err != nil {
		return err
	}
	return s.EnterKernel(ctx, kernelMain)
}

// Guest adapts the shim to a simulated control port: the returned guest
// runs Enter against whatever record comes through the jump. The state
// capability was fixed at construction, so the port's copy is ignored.
func (s *Shim) Guest(kernelMain KernelMain) machine.Guest {
	return func(_ types.PhysAddr, record *types.HandoffRecord, _ interfaces.MachineState) error {
		return s.Enter(record, kernelMain)
	}
}
