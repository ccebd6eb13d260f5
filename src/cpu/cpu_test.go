package cpu

import (
	"testing"
	"unsafe"
)

// fakeMSRs lets tests exercise ReadMSR/WriteMSR without the privileged
// RDMSR/WRMSR instructions, the same hook idiom vm uses for INVLPG/CR3.
func fakeMSRs(t *testing.T) map[MSR]uint64 {
	t.Helper()
	regs := map[MSR]uint64{}
	origRead, origWrite := readMSRFn, writeMSRFn
	readMSRFn = func(m MSR) uint64 { return regs[m] }
	writeMSRFn = func(m MSR, v uint64) { regs[m] = v }
	t.Cleanup(func() { readMSRFn, writeMSRFn = origRead, origWrite })
	return regs
}

func TestLocalsGSBaseRoundTrip(t *testing.T) {
	fakeMSRs(t)
	InitLocals(2)

	l0 := Local(0)
	l0.HwthreadID = 0
	l0.LoadGSBase()

	got := Current()
	if got != l0 {
		t.Fatalf("Current() = %p, want %p", got, l0)
	}
	if got.HwthreadID != 0 {
		t.Fatalf("HwthreadID = %d, want 0", got.HwthreadID)
	}
}

func TestLocalsKernelStackTopIsFirstField(t *testing.T) {
	// The syscall trampoline loads gs:0x0 expecting KernelStackTop;
	// verify the field really is at offset 0 so that contract holds.
	var l Locals
	l.KernelStackTop = 0xdeadbeef
	first := *(*uintptr)(unsafe.Pointer(&l))
	if first != l.KernelStackTop {
		t.Fatalf("KernelStackTop not at offset 0")
	}
}

func TestGDTEntryOrderAndSelectors(t *testing.T) {
	istStacks := [istCount]uintptr{}
	tss := NewTSS(0x1000, istStacks)
	g := BuildGDT(tss)

	if g.entries[0] != 0 {
		t.Fatalf("entry 0 (null) = %#x, want 0", g.entries[0])
	}
	if g.entries[1] != uint64(kernelCode64Desc) {
		t.Fatalf("entry 1 (kernel code) mismatch")
	}
	if g.entries[2] != uint64(kernelDataDesc) {
		t.Fatalf("entry 2 (kernel data) mismatch")
	}
	if g.entries[3] != uint64(userDataDesc) {
		t.Fatalf("entry 3 (user data) mismatch")
	}
	if g.entries[4] != uint64(userCode64Desc) {
		t.Fatalf("entry 4 (user code) mismatch")
	}

	// Selectors derive from entry index * 8, with RPL 3 on the user
	// entries: the syscall/sysret mechanism depends on this spacing.
	if SelKernelCode != 1*8 || SelKernelData != 2*8 {
		t.Fatalf("kernel selectors not contiguous from a fixed base")
	}
	if SelUserData&^3 != 3*8 || SelUserCode64&^3 != 4*8 {
		t.Fatalf("user selectors not contiguous from a fixed base")
	}
}

func TestTSSDescriptorEncodesPresentBit(t *testing.T) {
	istStacks := [istCount]uintptr{}
	istStacks[ISTDoubleFault] = 0x2000
	tss := NewTSS(0x1000, istStacks)

	low, _ := tss.descriptor()
	if low&uint64(descPresent) == 0 {
		t.Fatalf("TSS descriptor missing present bit")
	}
	got := uint64(0)
	for i := 0; i < 8; i++ {
		got |= uint64(tss[offIST1+i]) << (8 * uint(i))
	}
	if got != 0x2000 {
		t.Fatalf("double-fault IST slot not preserved: got %#x", got)
	}
}
