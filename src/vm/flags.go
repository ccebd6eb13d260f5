package vm

import "mem"

/// MapAttrs is the architecture-neutral permission/caching vocabulary a
/// caller passes to Map and SetFlags; AddressSpace compiles it to the
/// matching PTE bits.
type MapAttrs struct {
	Writable     bool
	User         bool
	NoExecute    bool
	WriteThrough bool
	Uncacheable  bool
	Global       bool
}

func (a MapAttrs) encode() mem.Pa_t {
	var f mem.Pa_t
	if a.Writable {
		f |= mem.PTE_W
	}
	if a.User {
		f |= mem.PTE_U
	}
	if a.NoExecute {
		f |= mem.PTE_NX
	}
	if a.WriteThrough {
		f |= mem.PTE_PWT
	}
	if a.Uncacheable {
		f |= mem.PTE_PCD
	}
	if a.Global {
		f |= mem.PTE_G
	}
	return f
}

func decodeAttrs(pte mem.Pa_t) MapAttrs {
	return MapAttrs{
		Writable:     pte&mem.PTE_W != 0,
		User:         pte&mem.PTE_U != 0,
		NoExecute:    pte&mem.PTE_NX != 0,
		WriteThrough: pte&mem.PTE_PWT != 0,
		Uncacheable:  pte&mem.PTE_PCD != 0,
		Global:       pte&mem.PTE_G != 0,
	}
}

// attrMask covers every bit encode/decode touch, so SetFlags can clear
// exactly the bits it's about to rewrite without disturbing PTE_P, the
// address, or PTE_PS.
const attrMask = mem.PTE_W | mem.PTE_U | mem.PTE_NX | mem.PTE_PWT | mem.PTE_PCD | mem.PTE_G

/// SetMode selects how SetFlags combines new flags with the flags already
/// present on a leaf entry.
type SetMode int

const (
	/// SetModeSet replaces the flags outright.
	SetModeSet SetMode = iota
	/// SetModeInsert ORs the new flags into the existing set.
	SetModeInsert
	/// SetModeRemove clears the named flags from the existing set.
	SetModeRemove
)
