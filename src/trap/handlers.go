package trap

import (
	"unsafe"

	"golang.org/x/arch/x86/x86asm"

	"cpu"
	"defs"
	"klog"
)

// Page-fault error-code bits (Intel SDM vol 3A §4.7).
const (
	pfPresent = 1 << 0
	pfWrite   = 1 << 1
	pfUser    = 1 << 2
)

// readCR2 is implemented in handlers_amd64.s.
func readCR2() uintptr

// readCR2Fn is hooked in tests so PageFaultHandler can run without the
// privileged MOV-from-CR2 instruction, the same seam vm and cpu use.
var readCR2Fn = readCR2

// pageFaultReasonFromErrorCode classifies the x86 page-fault error code
// bits into the two causes the core distinguishes (spec.md §4.D/E) and
// reads the faulting address from CR2 through readCR2Fn, so tests can
// exercise the classification directly by hooking that seam.
func pageFaultReasonFromErrorCode(errorCode uint64) (uintptr, defs.PageFaultReason) {
	reason := defs.PFNotMapped
	if errorCode&pfPresent != 0 {
		reason = defs.PFBadPermissions
	}
	return readCR2Fn(), reason
}

/// PageFaultHandler classifies and reports an unhandled page fault
/// (spec.md §4.D/E, §7 "Trap"). The core carries no demand paging or
/// copy-on-write, so every page fault reaching this handler is fatal.
func PageFaultHandler(errorCode uint64) (uintptr, defs.PageFaultReason) {
	addr, reason := pageFaultReasonFromErrorCode(errorCode)
	klog.Errorf("page fault at %#x (write=%v user=%v): %s",
		addr, errorCode&pfWrite != 0, errorCode&pfUser != 0, reason)
	return addr, reason
}

/// decodeFaultingInstruction disassembles the bytes at rip for
/// diagnostic logging on a #GP or #UD, using x86asm the way biscuit's
/// own tooling already depends on golang.org/x/arch.
func decodeFaultingInstruction(rip uintptr) string {
	// The faulting code is still mapped in the current address space;
	// x86asm only needs a handful of bytes to decode one instruction.
	const maxInstrLen = 15
	b := unsafe.Slice((*byte)(unsafe.Pointer(rip)), maxInstrLen)
	inst, err := x86asm.Decode(b, 64)
	if err != nil {
		return "<undecodable>"
	}
	return inst.String()
}

/// GeneralProtectionHandler logs the faulting instruction and selector
/// error code for a #GP. There is no segmentation-based protection
/// model left to recover from here, so this is fatal.
func GeneralProtectionHandler(frame *Frame, errorCode uint64) {
	klog.Errorf("general protection fault at %#x (selector error %#x): %s",
		frame.RIP, errorCode, decodeFaultingInstruction(uintptr(frame.RIP)))
}

/// InvalidOpcodeHandler logs the offending instruction bytes for a #UD.
func InvalidOpcodeHandler(frame *Frame) {
	klog.Errorf("invalid opcode at %#x: %s",
		frame.RIP, decodeFaultingInstruction(uintptr(frame.RIP)))
}

/// DoubleFaultHandler runs on the IST double-fault stack (cpu.ISTDoubleFault).
/// A double fault means the first handler itself faulted; the kernel
/// cannot trust its own state past this point, so this never returns.
func DoubleFaultHandler(frame *Frame) {
	klog.Errorf("double fault at %#x, halting", frame.RIP)
	cpu.DisableInterrupts()
	for {
		cpu.Halt()
	}
}
