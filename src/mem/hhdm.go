package mem

import "unsafe"

/// HHDM is the higher-half direct mapping offset the bootloader
/// establishes before handoff: for every physical address P < ram top,
/// virtual address HHDM+P aliases the same byte (spec.md §4.B). Once set
/// at boot it never changes, so HHDM is passed by value everywhere; it
/// carries no mutable state.
type HHDM struct {
	offset uintptr
}

/// NewHHDM wraps the bootloader-reported HHDM virtual offset (spec.md
/// §6's bootloader handoff table).
func NewHHDM(offset uintptr) HHDM {
	return HHDM{offset: offset}
}

/// Offset returns the raw virtual offset.
func (h HHDM) Offset() uintptr {
	return h.offset
}

/// ToVirt returns the direct-mapped virtual address aliasing the given
/// physical address.
func (h HHDM) ToVirt(p Pa_t) uintptr {
	return h.offset + uintptr(p)
}

/// ToPhys recovers the physical address backing a direct-mapped virtual
/// address previously produced by ToVirt. It panics if v does not fall
/// within the direct map, which would indicate a programming error.
func (h HHDM) ToPhys(v uintptr) Pa_t {
	if v < h.offset {
		panic("mem: address below HHDM offset")
	}
	return Pa_t(v - h.offset)
}

/// Frame returns a *Pmap_t overlaying the given frame through the direct
/// map, the idiom biscuit calls Dmap: every caller that needs to read or
/// zero a page-table page does so through this alias rather than via a
/// dedicated kernel mapping.
func (h HHDM) Frame(f Frame) *Pmap_t {
	return (*Pmap_t)(unsafe.Pointer(h.ToVirt(f.Address())))
}

/// Bytes returns a byte slice view of an arbitrary-length region starting
/// at p, for copying data (e.g. ELF segment contents) into or out of a
/// frame via its direct-map alias.
func (h HHDM) Bytes(p Pa_t, length int) []byte {
	ptr := (*byte)(unsafe.Pointer(h.ToVirt(p)))
	return unsafe.Slice(ptr, length)
}
