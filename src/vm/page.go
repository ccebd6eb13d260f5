package vm

import "mem"

/// Page identifies a virtual page by its page-frame number (address >>
/// PGSHIFT). Alignment to the page boundary is a type-level invariant: the
/// only constructors are PageFromAddress, which rejects a misaligned
/// address, and PageFromIndex, which cannot produce one.
type Page uint64

/// PageFromAddress validates that va is page-aligned and returns the Page
/// it denotes. A misaligned address cannot construct a Page at all,
/// matching spec.md §3's "alignment is a type-level invariant."
func PageFromAddress(va uintptr) (Page, bool) {
	if va&uintptr(mem.PGOFFSET) != 0 {
		return 0, false
	}
	return Page(va >> mem.PGSHIFT), true
}

/// PageFromIndex wraps a pre-shifted page-frame number.
func PageFromIndex(idx uint64) Page {
	return Page(idx)
}

/// Address returns the page's base virtual address.
func (p Page) Address() uintptr {
	return uintptr(p) << mem.PGSHIFT
}

/// InUserHalf reports whether p's PML4 index falls below halfBoundary
/// (spec.md §4.C "Kernel-half sharing") — the boundary syscall argument
/// validation uses to reject a pointer into kernel space (spec.md §4.H).
func (p Page) InUserHalf() bool {
	return levelIndex(p, 4) < halfBoundary
}

// levelIndex extracts the 9-bit index this page occupies at the given
// table level (4 = PML4 down to 1 = PT), per spec.md §4.C's bit ranges
// [47:39], [38:30], [29:21], [20:12].
func levelIndex(p Page, level int) int {
	shift := uint(9 * (level - 1))
	return int((uint64(p) >> shift) & 0x1ff)
}
