// Package boot implements the bootloader handoff contract and the
// per-hardware-thread bring-up sequence (spec.md §6): it is the one place
// that knows the order every other package must be initialized in.
package boot

import "mem"

/// MemoryMapEntry is one bootloader-reported physical region (spec.md §6
/// "memory map: array of {base, len, kind}"), the direct analogue of
/// gopher-os's multiboot.MemoryMapEntry — except the Limine-style
/// protocol this kernel targets hands the kernel a plain pre-decoded
/// array rather than a tagged info blob to scan, so there is no
/// findTagByType/VisitMemRegions step to reproduce here.
type MemoryMapEntry struct {
	Base   mem.Pa_t
	Length mem.Size
	Kind   mem.RegionKind
}

/// SMPEntry describes one hardware thread the bootloader discovered
/// (spec.md §6's SMP table): its ACPI processor id, its local APIC id,
/// and the rendezvous slot the BSP writes an address into to release it
/// (spec.md §6 "Per-CPU bring-up").
type SMPEntry struct {
	ProcessorID uint32
	LAPICID     uint32
	GotoAddress *uint64
}

/// Handoff is the bootloader handoff contract in its entirety (spec.md
/// §6): this is the kernel's whole configuration surface, decoded once
/// at entry rather than read from a file, modeled after gopher-os's
/// hal/multiboot package the way SPEC_FULL.md's Configuration section
/// describes.
type Handoff struct {
	MemoryMap  []MemoryMapEntry
	HHDMOffset uintptr

	// SMP is nil on a uniprocessor boot or when the bootloader provides
	// no SMP response.
	SMP []SMPEntry

	// RSDP is the physical address of the ACPI root system description
	// pointer, or 0 if the bootloader provided none. ACPI table parsing
	// itself is out of scope (spec.md §1 excludes device drivers); boot
	// only carries the pointer through for a future consumer.
	RSDP mem.Pa_t

	// Modules is the raw contents of the bootloader's module archive (a
	// tar of driver ELF images), or nil if none was supplied. Unpacking
	// and loading modules beyond the first task is out of spec.md's
	// scope; boot exposes the bytes unopened.
	Modules []byte
}

/// Regions converts the handoff's memory map into mem.Region values,
/// the shape mem.InitLedger consumes.
func (h *Handoff) Regions() []mem.Region {
	regions := make([]mem.Region, len(h.MemoryMap))
	for i, e := range h.MemoryMap {
		regions[i] = mem.Region{Base: e.Base, Length: e.Length, Kind: e.Kind}
	}
	return regions
}
