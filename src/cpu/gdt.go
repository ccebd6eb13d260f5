package cpu

import "unsafe"

/// descFlag is one bit of an x86_64 segment descriptor's access/flags
/// byte pair, named the way original_source/kernel/lib/src/structures/
/// gdt.rs's bitflags vocabulary does (`ACCESSED`, `WRITABLE`, ...).
type descFlag uint64

const (
	descAccessed    descFlag = 1 << 40
	descWritable    descFlag = 1 << 41
	descConforming  descFlag = 1 << 42
	descExecutable  descFlag = 1 << 43
	descUserSegment descFlag = 1 << 44
	descDPL3        descFlag = 3 << 45
	descPresent     descFlag = 1 << 47
	descLongMode    descFlag = 1 << 53
	descSize32      descFlag = 1 << 54
	descGranularity descFlag = 1 << 55
	descMaxLimit    descFlag = (0xf << 48) | 0xffff
)

const descCommon = descUserSegment | descPresent | descWritable | descGranularity | descMaxLimit

const (
	kernelCode64Desc = descCommon | descExecutable | descLongMode
	kernelDataDesc   = descCommon | descSize32
	userDataDesc     = descCommon | descSize32 | descDPL3
	userCode64Desc   = descCommon | descExecutable | descLongMode | descDPL3
)

// Segment selectors, fixed by the order the syscall/sysret mechanism
// requires (spec.md §4.D): kernel selectors contiguous, user selectors
// contiguous, in the specific arrangement IA32_STAR expects.
const (
	SelNull       = 0x00
	SelKernelCode = 0x08
	SelKernelData = 0x10
	SelUserData   = 0x18 | 3 // RPL 3
	SelUserCode64 = 0x20 | 3 // RPL 3
	SelTSS        = 0x28
)

/// GDT is the per-hardware-thread global descriptor table: the fixed
/// five entries spec.md §4.D names, plus a system-descriptor pair
/// describing this CPU's TSS (original_source/kernel/lib/src/structures/
/// gdt.rs's `Entry::tss`).
type GDT struct {
	entries [7]uint64
}

/// BuildGDT lays out the five fixed entries in the order the syscall
/// mechanism requires, then appends the TSS system descriptor.
func BuildGDT(tss *TSS) *GDT {
	g := &GDT{}
	g.entries[0] = 0
	g.entries[1] = uint64(kernelCode64Desc)
	g.entries[2] = uint64(kernelDataDesc)
	g.entries[3] = uint64(userDataDesc)
	g.entries[4] = uint64(userCode64Desc)
	low, high := tss.descriptor()
	g.entries[5] = low
	g.entries[6] = high
	return g
}

// dtPointer is the LGDT/LIDT operand: a 16-bit limit immediately
// followed by an 8-byte base, with no padding between them. Go has no
// packed-struct attribute — struct{limit uint16; base uint64} aligns
// base to offset 8, leaving 6 zero bytes between the two fields, so
// LGDT/LIDT would read six padding bytes and the low two bytes of base
// instead of the real pointer. A plain byte array has no alignment to
// fight.
type dtPointer [10]byte

func newDTPointer(limit uint16, base uint64) dtPointer {
	var p dtPointer
	p[0] = byte(limit)
	p[1] = byte(limit >> 8)
	for i := 0; i < 8; i++ {
		p[2+i] = byte(base >> (8 * uint(i)))
	}
	return p
}

func (g *GDT) pointer() dtPointer {
	return newDTPointer(
		uint16(len(g.entries)*8-1),
		uint64(uintptr(unsafe.Pointer(&g.entries[0]))),
	)
}

/// Load installs this GDT via LGDT, reloads the segment registers
/// (zeroing ES/DS/FS/GS after loading CS via a far return, spec.md
/// §4.D), and loads the TSS selector via LTR.
func (g *GDT) Load() {
	p := g.pointer()
	lgdt(&p)
	reloadSegments(SelKernelCode, SelKernelData)
	ltr(SelTSS)
}
