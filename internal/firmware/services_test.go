package firmware

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deploymenttheory/go-bootstage/internal/interfaces"
	"github.com/deploymenttheory/go-bootstage/internal/types"
)

func testServices(t *testing.T) *Services {
	t.Helper()
	ram, err := NewRAM(0x100000, 1<<20)
	require.NoError(t, err)
	services, err := NewServices(ram, 4, nil)
	require.NoError(t, err)
	return services
}

func TestNewServices(t *testing.T) {
	t.Run("NilRAM", func(t *testing.T) {
		_, err := NewServices(nil, 4, nil)
		assert.Error(t, err)
	})

	t.Run("TableLargerThanArena", func(t *testing.T) {
		ram, err := NewRAM(0x100000, 16*types.PageSize)
		require.NoError(t, err)
		_, err = NewServices(ram, 16, nil)
		assert.Error(t, err)
	})

	t.Run("RuntimeTableAtArenaTop", func(t *testing.T) {
		services := testServices(t)
		table, size := services.RuntimeTable()
		assert.Equal(t, types.PhysAddr(0x200000-4*types.PageSize), table)
		assert.Equal(t, uint64(4*types.PageSize), size)
	})
}

func TestMemoryMapSnapshot(t *testing.T) {
	services := testServices(t)

	mm, err := services.MemoryMap()
	require.NoError(t, err)
	require.NoError(t, mm.Validate())

	// Free space below, the reserved runtime table at the top.
	require.Len(t, mm.Descriptors, 2)
	assert.Equal(t, types.MemoryConventional, mm.Descriptors[0].Type)
	assert.Equal(t, types.MemoryRuntimeServicesData, mm.Descriptors[1].Type)

	largest, ok := mm.LargestConventional()
	require.True(t, ok)
	assert.Equal(t, types.PhysAddr(0x100000), largest.PhysicalStart)
}

func TestMapKeyChangesOnLayoutChange(t *testing.T) {
	services := testServices(t)

	before, err := services.MemoryMap()
	require.NoError(t, err)

	base, err := services.AllocatePages(interfaces.AllocateAnyPages, types.MemoryLoaderData, 2, 0)
	require.NoError(t, err)

	after, err := services.MemoryMap()
	require.NoError(t, err)
	assert.NotEqual(t, before.MapKey, after.MapKey, "allocation must move the key")

	require.NoError(t, services.FreePages(base, 2))
	final, err := services.MemoryMap()
	require.NoError(t, err)
	assert.NotEqual(t, after.MapKey, final.MapKey, "free must move the key")
}

func TestExitBootServices(t *testing.T) {
	t.Run("StaleKeyRejected", func(t *testing.T) {
		services := testServices(t)

		mm, err := services.MemoryMap()
		require.NoError(t, err)

		// The layout changes between snapshot and exit.
		_, err = services.AllocatePages(interfaces.AllocateAnyPages, types.MemoryLoaderData, 1, 0)
		require.NoError(t, err)

		err = services.ExitBootServices(mm.MapKey)
		require.Error(t, err)
		assert.ErrorIs(t, err, interfaces.ErrStaleMapKey)
		assert.False(t, services.Exited(), "failed exit leaves services usable")

		// A fresh snapshot's key is accepted.
		mm, err = services.MemoryMap()
		require.NoError(t, err)
		require.NoError(t, services.ExitBootServices(mm.MapKey))
		assert.True(t, services.Exited())
	})

	t.Run("CurrentKeyCommits", func(t *testing.T) {
		services := testServices(t)
		mm, err := services.MemoryMap()
		require.NoError(t, err)

		require.NoError(t, services.ExitBootServices(mm.MapKey))
		assert.True(t, services.Exited())
	})
}

func TestBootServicesUnusableAfterExit(t *testing.T) {
	exited := func(t *testing.T) *Services {
		t.Helper()
		services := testServices(t)
		mm, err := services.MemoryMap()
		require.NoError(t, err)
		require.NoError(t, services.ExitBootServices(mm.MapKey))
		return services
	}

	t.Run("AllocatePanics", func(t *testing.T) {
		services := exited(t)
		assert.PanicsWithValue(t, "boot services used after exit", func() {
			services.AllocatePages(interfaces.AllocateAnyPages, types.MemoryLoaderData, 1, 0)
		})
	})

	t.Run("FreePanics", func(t *testing.T) {
		services := exited(t)
		assert.PanicsWithValue(t, "boot services used after exit", func() {
			services.FreePages(0x100000, 1)
		})
	})

	t.Run("MemoryMapPanics", func(t *testing.T) {
		services := exited(t)
		assert.PanicsWithValue(t, "boot services used after exit", func() {
			services.MemoryMap()
		})
	})

	t.Run("SecondExitPanics", func(t *testing.T) {
		services := exited(t)
		assert.PanicsWithValue(t, "boot services used after exit", func() {
			services.ExitBootServices(0)
		})
	})

	t.Run("DiagnosticAccessorsStillWork", func(t *testing.T) {
		services := exited(t)
		assert.True(t, services.Exited())
		assert.Zero(t, services.OutstandingAllocations())
	})
}

func TestOutstandingAllocations(t *testing.T) {
	services := testServices(t)
	assert.Zero(t, services.OutstandingAllocations())

	base, err := services.AllocatePages(interfaces.AllocateAnyPages, types.MemoryLoaderData, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, services.OutstandingAllocations())

	require.NoError(t, services.FreePages(base, 2))
	assert.Zero(t, services.OutstandingAllocations())
}
