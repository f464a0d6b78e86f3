package machine

import (
	"errors"

	"github.com/deploymenttheory/go-bootstage/internal/interfaces"
	"github.com/deploymenttheory/go-bootstage/internal/types"
)

// ErrHalted is how a simulated control port reports that the guest ran to
// completion and the machine halted. Real hardware never returns from a
// successful jump; in-process simulation needs a way to say "control went
// through and ended", and this sentinel is it.
var ErrHalted = errors.New("machine halted")

// Guest is the code a simulated port jumps into in place of a real
// kernel image.
type Guest func(entry types.PhysAddr, record *types.HandoffRecord, state interfaces.MachineState) error

// SimPort is an in-process control port. Jump runs the configured guest
// exactly once, records what went through, and reports how it ended.
type SimPort struct {
	guest  Guest
	jumped bool
	entry  types.PhysAddr
	record *types.HandoffRecord
}

// Compile-time check to ensure SimPort implements ControlPort
var _ interfaces.ControlPort = (*SimPort)(nil)

// NewSimPort creates a port that jumps into guest. A nil guest halts
// immediately, standing in for a kernel that does nothing.
func NewSimPort(guest Guest) *SimPort {
	return &SimPort{guest: guest}
}

// Jump transfers control to the guest. A guest that runs to completion
// halts the machine, reported as ErrHalted; guest faults propagate
// unchanged. Control can only ever go through a port once; a second jump
// is a design error and panics.
func (p *SimPort) Jump(entry types.PhysAddr, record *types.HandoffRecord, state interfaces.MachineState) error {
	if p.jumped {
		panic("control port jumped twice")
	}
	p.jumped = true
	p.entry = entry
	p.record = record

	if p.guest != nil {
		if err := p.guest(entry, record, state); err != nil {
			return err
		}
	}
	return ErrHalted
}

// Jumped reports whether control has gone through the port.
func (p *SimPort) Jumped() bool {
	return p.jumped
}

// Entry returns the entry address of the jump.
func (p *SimPort) Entry() types.PhysAddr {
	return p.entry
}

// Record returns the handoff record that went through the port.
func (p *SimPort) Record() *types.HandoffRecord {
	return p.record
}
