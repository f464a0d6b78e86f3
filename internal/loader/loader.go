package loader

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/deploymenttheory/go-bootstage/internal/formats"
	"github.com/deploymenttheory/go-bootstage/internal/interfaces"
	"github.com/deploymenttheory/go-bootstage/internal/types"
)

// Stage names reported inside outcome errors.
const (
	stageLocate   = "locate image"
	stageValidate = "validate image"
	stagePlace    = "allocate and place"
	stageHandoff  = "build handoff"
)

// Phase tracks the loader's progress through the boot state machine.
// Rejected is terminal-with-report; KernelRunning is terminal-without-report.
type Phase int

const (
	PhasePreBoot Phase = iota
	PhaseImageLoaded
	PhaseValidated
	PhaseRejected
	PhaseHandoffBuilt
	PhaseKernelRunning
)

// String returns the canonical name of the phase.
func (p Phase) String() string {
	switch p {
	case PhasePreBoot:
		return "PreBoot"
	case PhaseImageLoaded:
		return "ImageLoaded"
	case PhaseValidated:
		return "Validated"
	case PhaseRejected:
		return "Rejected"
	case PhaseHandoffBuilt:
		return "HandoffBuilt"
	case PhaseKernelRunning:
		return "KernelRunning"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// Capabilities bundles the firmware and machine capabilities the loader
// borrows. Each field is a narrow interface so tests can substitute a
// double for every collaborator independently.
type Capabilities struct {
	// Services is the boot services set: allocation, memory map
	// snapshots, and the one-way exit.
	Services interfaces.BootServices
	// Memory is bounds-checked physical address space.
	Memory interfaces.PhysicalMemory
	// Console carries operator-visible diagnostics. Never decision logic,
	// and never touched after the commit point.
	Console interfaces.Console
	// Port performs the control transfer.
	Port interfaces.ControlPort
	// State is the machine state handed to the entry shim.
	State interfaces.MachineState
}

// Loader is the stage loader. It borrows its capabilities for the
// duration of one boot attempt and owns nothing after a transfer.
type Loader struct {
	services interfaces.BootServices
	memory   interfaces.PhysicalMemory
	console  interfaces.Console
	port     interfaces.ControlPort
	state    interfaces.MachineState
	registry *formats.Registry
	logger   *zap.Logger

	phase Phase
}

// New creates a stage loader over the given capabilities.
func New(caps Capabilities, registry *formats.Registry, logger *zap.Logger) (*Loader, error) {
	if caps.Services == nil {
		return nil, fmt.Errorf("boot services capability cannot be nil")
	}
	if caps.Memory == nil {
		return nil, fmt.Errorf("physical memory capability cannot be nil")
	}
	if caps.Console == nil {
		return nil, fmt.Errorf("console capability cannot be nil")
	}
	if caps.Port == nil {
		return nil, fmt.Errorf("control port capability cannot be nil")
	}
	if caps.State == nil {
		return nil, fmt.Errorf("machine state capability cannot be nil")
	}
	if registry == nil {
		return nil, fmt.Errorf("format registry cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Loader{
		services: caps.Services,
		memory:   caps.Memory,
		console:  caps.Console,
		port:     caps.Port,
		state:    caps.State,
		registry: registry,
		logger:   logger,
		phase:    PhasePreBoot,
	}, nil
}

// Phase returns the loader's current position in the boot state machine.
func (l *Loader) Phase() Phase {
	return l.phase
}

// Boot runs the whole pipeline for one image: locate, validate, place,
// build the handoff record, and transfer control. On any pre-commit
// failure it returns a *types.OutcomeError with every allocation released
// and the medium handle closed. On a successful transfer control does not
// come back through Boot on real hardware; a simulated port reports the
// guest's termination, which Boot propagates untranslated.
func (l *Loader) Boot(medium interfaces.BootMedium, path, cmdline string) error {
	desc, err := l.LocateImage(medium, path)
	if err != nil {
		return err
	}

	if err := l.ValidateImage(desc); err != nil {
		return err
	}

	base, err := l.AllocateAndPlace(desc)
	if err != nil {
		return err
	}

	record, err := l.BuildHandoff(cmdline)
	if err != nil {
		// A failed exit leaves boot services usable; release the placed
		// image to restore the pre-boot state.
		if freeErr := l.services.FreePages(base, desc.Pages()); freeErr != nil {
			l.logger.Warn("failed to release placed image after handoff failure",
				zap.Uint64("base", uint64(base)),
				zap.Error(freeErr))
		}
		return err
	}

	entry := base.Add(desc.EntryOffset)
	return l.Transfer(entry, record)
}

// fail marks the attempt rejected and wraps the cause as an outcome error.
func (l *Loader) fail(outcome types.Outcome, stage string, err error) *types.OutcomeError {
	l.phase = PhaseRejected
	outcomeErr := types.NewOutcomeError(outcome, stage, err)
	l.logger.Debug("boot attempt rejected",
		zap.String("stage", stage),
		zap.String("outcome", outcome.String()),
		zap.Error(err))
	return outcomeErr
}
