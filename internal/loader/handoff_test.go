package loader

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deploymenttheory/go-bootstage/internal/formats"
	"github.com/deploymenttheory/go-bootstage/internal/interfaces"
	"github.com/deploymenttheory/go-bootstage/internal/types"
)

// nilPort pretends a jump succeeded by returning, which no real or
// simulated port may do.
type nilPort struct{}

func (nilPort) Jump(types.PhysAddr, *types.HandoffRecord, interfaces.MachineState) error {
	return nil
}

func TestBuildHandoffRecord(t *testing.T) {
	env := newTestEnv(t, nil)
	desc := locateAndValidate(t, env, "vmlinuz", buildPE32Plus(t, 0x400, 0x1000))
	_, err := env.loader.AllocateAndPlace(desc)
	require.NoError(t, err)

	record, err := env.loader.BuildHandoff("root=/dev/vda1")
	require.NoError(t, err)

	require.NoError(t, record.Validate())
	assert.Equal(t, types.HandoffMagic, record.Magic)
	assert.Equal(t, types.HandoffVersion, record.Version)
	assert.True(t, record.PostBootServices)
	assert.Equal(t, "root=/dev/vda1", record.CommandLine)

	wantTable, wantSize := env.sim.RuntimeTable()
	assert.Equal(t, wantTable, record.RuntimeTable)
	assert.Equal(t, wantSize, record.RuntimeTableSize)

	assert.Equal(t, uint64(1), record.MemoryMap.TotalPages(types.MemoryLoaderCode),
		"the snapshot carries the placed image")
	assert.True(t, env.sim.Exited(), "a successful handoff is the commit point")
}

func TestBuildHandoffRetriesStaleKeyOnce(t *testing.T) {
	stale := &staleExitServices{failures: 1}
	env := newTestEnvServices(t, nil, func(s interfaces.BootServices) interfaces.BootServices {
		stale.BootServices = s
		return stale
	})

	record, err := env.loader.BuildHandoff("")
	require.NoError(t, err)
	require.NoError(t, record.Validate())

	assert.Equal(t, 2, stale.exitCalls, "one failed exit, one retry")
	assert.True(t, env.sim.Exited())
}

func TestBuildHandoffGivesUpAfterOneRetry(t *testing.T) {
	stale := &staleExitServices{failures: 2}
	env := newTestEnvServices(t, nil, func(s interfaces.BootServices) interfaces.BootServices {
		stale.BootServices = s
		return stale
	})

	_, err := env.loader.BuildHandoff("")
	assert.ErrorIs(t, err, &types.OutcomeError{Outcome: types.OutcomeServicesUnavailable})

	assert.Equal(t, 2, stale.exitCalls, "exactly one retry, never a third attempt")
	assert.False(t, env.sim.Exited())
	assert.Equal(t, PhaseRejected, env.loader.Phase())

	// Boot services stay usable for the firmware's fallback entry.
	_, err = env.sim.MemoryMap()
	assert.NoError(t, err)
}

func TestTransferPanicsWhenPortReturns(t *testing.T) {
	env := newTestEnv(t, nil)

	record := &types.HandoffRecord{
		Magic:            types.HandoffMagic,
		Version:          types.HandoffVersion,
		PostBootServices: true,
	}

	l, err := New(Capabilities{
		Services: env.sim,
		Memory:   env.ram,
		Console:  &recordingConsole{},
		Port:     nilPort{},
		State:    env.state,
	}, formats.DefaultRegistry(), nil)
	require.NoError(t, err)

	assert.PanicsWithValue(t, "control returned through transfer", func() {
		_ = l.Transfer(0x100000, record)
	})
}
