package trap

/// Frame is the interrupt stack frame the CPU pushes on any trap: the
/// saved instruction pointer, code segment, flags, stack pointer and
/// stack segment (64-bit mode pushes RSP and SS on every trap, with or
/// without a privilege-level change). The
/// scheduler reschedules a task by overwriting this struct in place and
/// letting the common stub `iretq` into it (spec.md §4.F/G step 4).
type Frame struct {
	RIP    uint64
	CS     uint64
	RFLAGS uint64
	RSP    uint64
	SS     uint64
}

/// GPRs is the canonical general-purpose-register snapshot the low-level
/// IRQ stub pushes before calling Dispatch, and restores from afterward
/// (spec.md §4.D "IRQ handoff"). Field order is the reverse of the push
/// order (RAX is pushed first, R15 last, so R15 sits at offset 0), so an
/// assembly stub can address it purely by SP offset.
type GPRs struct {
	R15, R14, R13, R12 uint64
	R11, R10, R9, R8   uint64
	RBP, RDI, RSI      uint64
	RDX, RCX, RBX, RAX uint64
}
