package types

import "fmt"

// HandoffMagic is the value of the handoff record magic field.
// The magic was chosen so it reads as "HOFF" in hex dumps.
const HandoffMagic uint32 = 'H' | 'O'<<8 | 'F'<<16 | 'F'<<24

// HandoffVersion is the current handoff record layout version.
const HandoffVersion uint32 = 1

// HandoffRecord is the single structure carrying all information from the
// stage loader to the kernel entry shim across the commit point. It is
// constructed exactly once, immediately after a successful exit from boot
// services, and is read-only once the shim accepts it.
type HandoffRecord struct {
	// Magic identifies the record; always HandoffMagic.
	Magic uint32
	// Version is the record layout version; always HandoffVersion.
	Version uint32
	// PostBootServices is set when the record was built after a successful
	// ExitBootServices. A record with this flag clear must be rejected:
	// it means the loader never reached the commit point.
	PostBootServices bool
	// MemoryMap is the validated snapshot the successful exit was made
	// against. This is the kernel's only description of physical memory.
	MemoryMap MemoryMap
	// RuntimeTable and RuntimeTableSize locate the firmware table region
	// that stays valid after the commit point, preserved for runtime
	// inspection by the kernel.
	RuntimeTable     PhysAddr
	RuntimeTableSize uint64
	// CommandLine is the configuration blob selected for this boot entry.
	CommandLine string
}

// Validate checks the record's structural sanity: magic, version, the
// post-boot-services flag, and a non-empty, well-formed memory map.
func (r *HandoffRecord) Validate() error {
	if r == nil {
		return fmt.Errorf("handoff record is nil")
	}
	if r.Magic != HandoffMagic {
		return fmt.Errorf("invalid handoff magic: got %#x, want %#x", r.Magic, HandoffMagic)
	}
	if r.Version != HandoffVersion {
		return fmt.Errorf("unsupported handoff version: got %d, want %d", r.Version, HandoffVersion)
	}
	if !r.PostBootServices {
		return fmt.Errorf("post-boot-services flag is not set")
	}
	if err := r.MemoryMap.Validate(); err != nil {
		return fmt.Errorf("invalid memory map: %w", err)
	}
	return nil
}
