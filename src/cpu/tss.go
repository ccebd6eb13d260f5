package cpu

import "unsafe"

/// istCount is the number of Interrupt Stack Table slots an x86_64 TSS
/// carries. Slot 0 is unused (IST indices in the IDT are 1-based);
/// spec.md §4.D reserves slots for double-fault and NMI.
const istCount = 7

const (
	/// ISTDoubleFault is the IST slot the IDT's double-fault gate
	/// references (original_source/kernel/lib/src/structures/gdt.rs's
	/// DOUBLE_FAULT_IST_INDEX).
	ISTDoubleFault = 1
	/// ISTNMI is the IST slot the NMI gate references.
	ISTNMI = 2
)

// Byte offsets within the 104-byte x86_64 TSS (Intel SDM Vol. 3 §8.7,
// Figure 8-11). RSP0 sits at a deliberately unaligned offset, not at
// offset 0 or 8; IST1 is a contiguous run of seven 8-byte pointers
// starting at 36.
const (
	tssSize      = 104
	offRSP0      = 4
	offIST1      = 36
	offIOMapBase = 102
)

/// TSS is the 64-bit task state segment, encoded as its exact
/// architectural byte layout rather than a naturally-aligned Go struct:
/// a struct{reserved0 uint32; rsp [3]uint64; ...} would have the
/// compiler align rsp to an 8-byte boundary, inserting 4 padding bytes
/// after reserved0 and shifting every field that follows, landing IST1
/// (the double-fault/NMI stacks, spec.md §4.D) at whatever offset Go's
/// layout happens to produce rather than the one LTR's hardware walker
/// reads from. Only the IST slots and RSP0 are meaningful on x86_64
/// without hardware task-switching; the rest of the bytes exist to
/// match the size LTR expects.
type TSS [tssSize]byte

func putUint64(b []byte, off int, v uint64) {
	for i := 0; i < 8; i++ {
		b[off+i] = byte(v >> (8 * uint(i)))
	}
}

func putUint16(b []byte, off int, v uint16) {
	b[off] = byte(v)
	b[off+1] = byte(v >> 8)
}

/// NewTSS builds a TSS with the kernel stack (RSP0) and IST stack tops
/// callers have already allocated and zeroed. istStacks is indexed the
/// same way HandleVector's ist parameter is: index 0 is never read (the
/// IDT gate's "no IST" value), and index N holds the stack for hardware
/// IST slot N, which lives at offIST1+(N-1)*8.
func NewTSS(rsp0 uintptr, istStacks [istCount]uintptr) *TSS {
	t := &TSS{}
	putUint64(t[:], offRSP0, uint64(rsp0))
	for i := 1; i < istCount; i++ {
		putUint64(t[:], offIST1+8*(i-1), uint64(istStacks[i]))
	}
	putUint16(t[:], offIOMapBase, tssSize)
	return t
}

// descriptor encodes the TSS as a 16-byte system descriptor pair
// (original_source/kernel/lib/src/structures/gdt.rs's `Entry::tss`):
// base address split across bits, a limit covering sizeof(TSS)-1, and
// type 0b1001 (64-bit TSS, available).
func (t *TSS) descriptor() (low, high uint64) {
	ptr := uint64(uintptr(unsafe.Pointer(t)))
	limit := uint64(tssSize) - 1

	low = uint64(descPresent) | ((ptr & 0xffffff) << 16) | (((ptr >> 24) & 0xff) << 56) | limit | (0b1001 << 40)
	high = (ptr & 0xffffffff00000000) >> 32
	return low, high
}
