package firmware

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/deploymenttheory/go-bootstage/internal/interfaces"
	"github.com/deploymenttheory/go-bootstage/internal/types"
)

// DefaultRuntimeTablePages is the size of the firmware-owned runtime
// table region carved from the top of the arena.
const DefaultRuntimeTablePages uint64 = 4

// msgUsedAfterExit is the panic raised when any boot service is touched
// after a successful ExitBootServices. Reaching it is a design error in
// the caller, never a recoverable fault.
const msgUsedAfterExit = "boot services used after exit"

// Services is the simulated boot services set: the frame allocator,
// memory map snapshots, and the one-way exit, glued together over a RAM
// arena. Every layout change bumps the map key, so an ExitBootServices
// with a key from before the change fails with ErrStaleMapKey.
type Services struct {
	ram    *RAM
	alloc  *Allocator
	logger *zap.Logger

	mapKey uint64
	exited bool

	runtimeTable    types.PhysAddr
	runtimeTablePgs uint64
}

// Compile-time check to ensure Services implements BootServices
var _ interfaces.BootServices = (*Services)(nil)

// NewServices creates boot services over the arena, reserving
// runtimeTablePages at the top of the arena as the runtime table region.
func NewServices(ram *RAM, runtimeTablePages uint64, logger *zap.Logger) (*Services, error) {
	if ram == nil {
		return nil, fmt.Errorf("ram arena cannot be nil")
	}
	if runtimeTablePages == 0 || runtimeTablePages*types.PageSize >= ram.Size() {
		return nil, fmt.Errorf("runtime table of %d pages does not fit the arena", runtimeTablePages)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	alloc, err := NewAllocator(ram.Base(), ram.Size())
	if err != nil {
		return nil, fmt.Errorf("failed to create allocator: %w", err)
	}

	tableBase := ram.End() - types.PhysAddr(runtimeTablePages*types.PageSize)
	if err := alloc.Reserve(tableBase, runtimeTablePages, types.MemoryRuntimeServicesData); err != nil {
		return nil, fmt.Errorf("failed to reserve runtime table region: %w", err)
	}

	return &Services{
		ram:             ram,
		alloc:           alloc,
		logger:          logger,
		mapKey:          1,
		runtimeTable:    tableBase,
		runtimeTablePgs: runtimeTablePages,
	}, nil
}

// AllocatePages allocates pages of the given memory type and bumps the
// map key. Panics if called after a successful exit.
func (s *Services) AllocatePages(allocType interfaces.AllocateType, memType types.MemoryType, pages uint64, addr types.PhysAddr) (types.PhysAddr, error) {
	s.ensureUsable()

	base, err := s.alloc.Allocate(allocType, memType, pages, addr)
	if err != nil {
		return 0, fmt.Errorf("allocate pages: %w", err)
	}
	s.mapKey++
	s.logger.Debug("pages allocated",
		zap.Uint64("base", uint64(base)),
		zap.Uint64("pages", pages),
		zap.String("type", memType.String()))
	return base, nil
}

// FreePages releases a previous allocation and bumps the map key.
// Panics if called after a successful exit.
func (s *Services) FreePages(addr types.PhysAddr, pages uint64) error {
	s.ensureUsable()

	if err := s.alloc.Free(addr, pages); err != nil {
		return fmt.Errorf("free pages: %w", err)
	}
	s.mapKey++
	s.logger.Debug("pages freed",
		zap.Uint64("base", uint64(addr)),
		zap.Uint64("pages", pages))
	return nil
}

// MemoryMap returns the current layout snapshot together with the key
// identifying this revision. Panics if called after a successful exit.
func (s *Services) MemoryMap() (types.MemoryMap, error) {
	s.ensureUsable()

	return types.MemoryMap{
		Descriptors: s.alloc.Snapshot(),
		MapKey:      s.mapKey,
	}, nil
}

// ExitBootServices terminates boot services. A stale map key fails with
// ErrStaleMapKey and leaves the services usable; a matching key flips the
// services into the exited state for good. A second call once exited is a
// design error and panics.
func (s *Services) ExitBootServices(mapKey uint64) error {
	s.ensureUsable()

	if mapKey != s.mapKey {
		return fmt.Errorf("exit boot services with key %d, current %d: %w", mapKey, s.mapKey, interfaces.ErrStaleMapKey)
	}
	s.exited = true
	s.logger.Debug("boot services exited", zap.Uint64("mapKey", mapKey))
	return nil
}

// Exited reports whether boot services have been exited.
func (s *Services) Exited() bool {
	return s.exited
}

// RuntimeTable returns the address and size of the firmware table region
// that survives the commit point.
func (s *Services) RuntimeTable() (types.PhysAddr, uint64) {
	return s.runtimeTable, s.runtimeTablePgs * types.PageSize
}

// OutstandingAllocations returns how many loader allocations have not
// been freed. Diagnostic accessor; usable at any time.
func (s *Services) OutstandingAllocations() int {
	return s.alloc.OutstandingAllocations()
}

func (s *Services) ensureUsable() {
	if s.exited {
		panic(msgUsedAfterExit)
	}
}
