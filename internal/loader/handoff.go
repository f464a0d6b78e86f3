package loader

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/deploymenttheory/go-bootstage/internal/interfaces"
	"github.com/deploymenttheory/go-bootstage/internal/types"
)

// BuildHandoff is the last pre-commit step: it snapshots and validates
// the memory map, then exits boot services against the snapshot's key.
// An allocation between snapshot and exit moves the key, so a stale-key
// failure is retried exactly once against a fresh snapshot. A failed exit
// leaves boot services usable and fails with ServicesUnavailable; a
// successful exit is the commit point, after which no boot service,
// medium handle, or console may be touched.
func (l *Loader) BuildHandoff(cmdline string) (*types.HandoffRecord, error) {
	tableAddr, tableSize := l.services.RuntimeTable()

	snapshot, err := l.snapshotMap()
	if err != nil {
		return nil, err
	}

	l.logger.Debug("exiting boot services",
		zap.Uint64("mapKey", snapshot.MapKey),
		zap.Int("descriptors", len(snapshot.Descriptors)))
	l.console.Print("exiting boot services with map key %d", snapshot.MapKey)

	if err := l.services.ExitBootServices(snapshot.MapKey); err != nil {
		if !errors.Is(err, interfaces.ErrStaleMapKey) {
			return nil, l.fail(types.OutcomeServicesUnavailable, stageHandoff,
				fmt.Errorf("failed to exit boot services: %w", err))
		}

		// The one retry: something allocated between snapshot and exit.
		snapshot, err = l.snapshotMap()
		if err != nil {
			return nil, err
		}
		if err := l.services.ExitBootServices(snapshot.MapKey); err != nil {
			return nil, l.fail(types.OutcomeServicesUnavailable, stageHandoff,
				fmt.Errorf("failed to exit boot services on retry: %w", err))
		}
	}

	l.phase = PhaseHandoffBuilt
	return &types.HandoffRecord{
		Magic:            types.HandoffMagic,
		Version:          types.HandoffVersion,
		PostBootServices: true,
		MemoryMap:        snapshot,
		RuntimeTable:     tableAddr,
		RuntimeTableSize: tableSize,
		CommandLine:      cmdline,
	}, nil
}

// Transfer jumps into the placed image at the entry address. On real
// hardware a successful jump never returns, so a port reporting success
// by returning nil is a broken port and Transfer panics. A simulated port
// reports the guest's termination through its error, which Transfer
// propagates untranslated.
func (l *Loader) Transfer(entry types.PhysAddr, record *types.HandoffRecord) error {
	l.phase = PhaseKernelRunning
	err := l.port.Jump(entry, record, l.state)
	if err == nil {
		panic("control returned through transfer")
	}
	return err
}

func (l *Loader) snapshotMap() (types.MemoryMap, error) {
	snapshot, err := l.services.MemoryMap()
	if err != nil {
		return types.MemoryMap{}, l.fail(types.OutcomeServicesUnavailable, stageHandoff,
			fmt.Errorf("failed to snapshot memory map: %w", err))
	}
	if err := snapshot.Validate(); err != nil {
		return types.MemoryMap{}, l.fail(types.OutcomeServicesUnavailable, stageHandoff,
			fmt.Errorf("memory map failed validation: %w", err))
	}
	return snapshot, nil
}
