// Package machine models the machine-level end of the handoff: the
// control port that transfers to a placed image, and the minimal machine
// state the entry shim establishes before any kernel code runs.
package machine

import (
	"github.com/deploymenttheory/go-bootstage/internal/interfaces"
	"github.com/deploymenttheory/go-bootstage/internal/types"
)

// State is the simulated machine state. It records what was done to it;
// tests assert on the recorded values where real hardware would simply
// be in that state.
type State struct {
	interruptsMasked bool
	stackPointer     types.PhysAddr
	stackSet         bool
}

// Compile-time check to ensure State implements MachineState
var _ interfaces.MachineState = (*State)(nil)

// NewState creates a machine state with interrupts deliverable and no
// stack installed.
func NewState() *State {
	return &State{}
}

// MaskInterrupts disables external interrupt delivery.
func (s *State) MaskInterrupts() {
	s.interruptsMasked = true
}

// SetStackPointer installs the top of the kernel stack.
func (s *State) SetStackPointer(top types.PhysAddr) {
	s.stackPointer = top
	s.stackSet = true
}

// InterruptsMasked reports whether interrupts have been masked.
func (s *State) InterruptsMasked() bool {
	return s.interruptsMasked
}

// StackPointer returns the installed stack top. ok is false when no
// stack has been installed.
func (s *State) StackPointer() (types.PhysAddr, bool) {
	return s.stackPointer, s.stackSet
}
