package cpu

import "unsafe"

/// Timer is the per-CPU preemption clock interface (spec.md §9 "Dynamic
/// dispatch (timer)"): the two concrete strategies (TSC-deadline,
/// APIC-oneshot) share these three operations and are stored as the
/// tagged Locals.Timer field rather than switched on a type tag.
type Timer interface {
	SetNextWait(multiplier uint64)
	Enable()
	Disable()
}

/// Scheduler is the minimal surface cpu needs to drive the preemption
/// tick without importing the proc package, which itself depends on cpu
/// for Locals access.
type Scheduler interface {
	Tick()
}

/// Locals is the per-hardware-thread block anchored at GS-base (spec.md
/// §4.D). KernelStackTop is deliberately the first field: the syscall
/// trampoline loads it from gs:0x0 without otherwise knowing the
/// struct's layout (spec.md §4.H). SyscallScratch is deliberately the
/// second field, at gs:0x8: the trampoline has no free general-purpose
/// register to hold the user RSP across the stack swap (every GPR is
/// live with either the vector, an argument, or a SysV-preserved value),
/// so it parks it here instead, the same per-CPU-scratch-slot technique
/// real x86_64 kernel entry paths use.
type Locals struct {
	KernelStackTop uintptr
	SyscallScratch uintptr
	HwthreadID     uint32
	Scheduler      Scheduler
	Timer          Timer
	IDT            unsafe.Pointer
	// CurrentFrame and CurrentGPRs point at the interrupt-return frame
	// and register snapshot trap's Dispatch is currently servicing.
	// Stored as unsafe.Pointer, the same way IDT is, so cpu does not
	// need to import trap to hold them.
	CurrentFrame unsafe.Pointer
	CurrentGPRs  unsafe.Pointer
}

var perCPU []*Locals

/// InitLocals allocates one Locals block per hardware thread. Call once
/// at boot, before any application processor branches into the common
/// setup routine (spec.md §6 "Per-CPU bring-up").
func InitLocals(n int) {
	perCPU = make([]*Locals, n)
	for i := range perCPU {
		perCPU[i] = &Locals{HwthreadID: uint32(i)}
	}
}

/// Local returns the Locals block for the given hardware thread id,
/// before it has necessarily loaded its own GS-base (used by the BSP to
/// set up an AP's block before that AP is running).
func Local(id int) *Locals {
	return perCPU[id]
}

/// LoadGSBase installs l's address into IA32_GS_BASE, so that Current
/// called on this hardware thread afterward recovers l.
func (l *Locals) LoadGSBase() {
	WriteMSR(IA32GSBase, uint64(uintptr(unsafe.Pointer(l))))
}

/// Current returns the calling hardware thread's Locals block, read back
/// from IA32_GS_BASE.
func Current() *Locals {
	return (*Locals)(unsafe.Pointer(uintptr(ReadMSR(IA32GSBase))))
}
