package cpu

/// MSR names a model-specific register by its index, so call sites read
/// as "IA32KernelGSBase" rather than a bare hex constant
/// (original_source/kernel/lib/src/registers/msr.rs's typed-register
/// idiom).
type MSR uint32

const (
	/// IA32APICBase holds the local APIC's physical base and the
	/// enable/BSP flags.
	IA32APICBase MSR = 0x0000001b
	/// IA32GSBase is the current GS-segment base; Locals.LoadGSBase
	/// writes here.
	IA32GSBase MSR = 0xc0000101
	/// IA32KernelGSBase is swapped into GS-base by `swapgs`; the
	/// syscall trampoline leaves the value here for userland.
	IA32KernelGSBase MSR = 0xc0000102
	/// IA32TSCDeadline holds the TSC value at which the next
	/// TSC-deadline timer interrupt fires.
	IA32TSCDeadline MSR = 0x000006e0
	/// IA32STAR holds the segment selectors `syscall`/`sysret` install.
	IA32STAR MSR = 0xc0000081
	/// IA32LSTAR holds the virtual address `syscall` jumps to.
	IA32LSTAR MSR = 0xc0000082
	/// IA32FMASK holds the RFLAGS mask `syscall` applies to the saved
	/// flags.
	IA32FMASK MSR = 0xc0000084
)

// readMSR and writeMSR are implemented in msr_amd64.s.
func readMSR(msr MSR) uint64
func writeMSR(msr MSR, val uint64)

// readMSRFn and writeMSRFn indirect the privileged RDMSR/WRMSR
// instructions so hosted tests can stub register access instead of
// faulting, matching vm's invlpgFn/loadCR3Fn hook pattern.
var (
	readMSRFn  = readMSR
	writeMSRFn = writeMSR
)

/// ReadMSR reads the named model-specific register.
func ReadMSR(msr MSR) uint64 {
	return readMSRFn(msr)
}

/// WriteMSR writes val to the named model-specific register.
func WriteMSR(msr MSR, val uint64) {
	writeMSRFn(msr, val)
}
