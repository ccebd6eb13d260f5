// Package scall implements the System-Call Entry (spec.md §4.H): the
// `syscall`/`sysret` trampoline and the vector dispatch table for the
// four Klog* syscalls (spec.md §6).
package scall

import (
	"cpu"
	"defs"
	"klog"
	"mem"
	"proc"
	"vm"
)

// Regs is the snapshot sysenter's trampoline builds on the kernel stack
// before calling into dispatch, and restores from before sysretq. Field
// order matches the trampoline's push order in reverse (the last value
// pushed sits at the lowest address, this struct's offset 0), the same
// convention trap.GPRs documents for the interrupt path.
type Regs struct {
	// Syscall ABI argument/return registers (spec.md §6). RAX carries
	// the vector on entry and the status code on return; RDX carries the
	// secondary return value. R10 stands in for RCX, which `syscall`
	// clobbers with the return RIP.
	R9, R8, R10, RDX, RSI, RDI, RAX uint64

	// SysV-preserved set, saved and restored around Dispatch so it can
	// call into arbitrary Go code without corrupting userland's view of
	// these registers (spec.md §4.H "Trampoline").
	R15, R14, R13, R12, RBP, RBX uint64

	// User return context. Dispatch may rewrite any of these before
	// returning, which changes where and how sysretq resumes userland.
	UserRIP    uint64
	UserRFLAGS uint64
	UserRSP    uint64
}

// sysenter is the trampoline installed at IA32_LSTAR, implemented in
// entry_amd64.s. It is never called by Go code; the `syscall` instruction
// jumps to it directly.
func sysenter()

// dispatch is called by sysenter with a pointer to the live Regs frame.
// It is a plain Go function reached via the stack-based ABI0 calling
// convention every hand-written assembly caller uses.
func dispatch(r *Regs) {
	status, secondary := Dispatch(defs.Vector(r.RAX), r.RDI, r.RSI, r.RDX, r.R10, r.R8, r.R9)
	r.RAX = uint64(status)
	r.RDX = secondary
}

// Dispatch implements the syscall vector table (spec.md §6 "System-call
// ABI (exposed)"): it validates pointer arguments against the current
// task's address space before any dereference, then routes to the
// matching handler. A panic anywhere in a handler is recovered and
// coerced to EINVALARG, since syscalls must always return (spec.md §7
// "User-visible failure").
func Dispatch(vector defs.Vector, arg0, arg1, arg2, arg3, arg4, arg5 uint64) (status defs.Err_t, secondary uint64) {
	defer func() {
		if recover() != nil {
			status, secondary = defs.EINVALARG, 0
		}
	}()

	switch vector {
	case defs.KlogInfo, defs.KlogError, defs.KlogDebug, defs.KlogTrace:
		return klogSyscall(vector, arg0, arg1), 0
	default:
		return defs.EINVALVECTOR, 0
	}
}

func klogSyscall(vector defs.Vector, strPtr, strLen uint64) defs.Err_t {
	b, err := validateUserSlice(uintptr(strPtr), uintptr(strLen))
	if err != defs.EOK {
		return err
	}
	msg := string(b)
	switch vector {
	case defs.KlogInfo:
		klog.Infof("%s", msg)
	case defs.KlogError:
		klog.Errorf("%s", msg)
	case defs.KlogDebug:
		klog.Debugf("%s", msg)
	case defs.KlogTrace:
		klog.Tracef("%s", msg)
	}
	return defs.EOK
}

// currentAddressSpaceFn indirects the lookup of the running task's
// address space, so tests can stub it without a real GS-base MSR or a
// real *proc.Scheduler driving a real task.
var currentAddressSpaceFn = currentAddressSpace

func currentAddressSpace() *vm.AddressSpace {
	sched, ok := cpu.Current().Scheduler.(*proc.Scheduler)
	if !ok || sched == nil {
		return nil
	}
	return sched.CurrentAddressSpace()
}

// validateUserSlice resolves a userland (ptr, len) pair against the
// current task's address space before any dereference (spec.md §6
// "Arguments that are pointers must be validated"), returning a fresh
// copy of the bytes read through the HHDM rather than the raw user
// pointer, so a
// misbehaving task can never trick the kernel into reading kernel
// memory by racing a remap after validation.
func validateUserSlice(ptr, length uintptr) ([]byte, defs.Err_t) {
	as := currentAddressSpaceFn()
	if as == nil {
		return nil, defs.EBADPTR
	}

	start, ok := vm.PageFromAddress(ptr &^ uintptr(pageMask))
	if !ok {
		return nil, defs.EBADPTR
	}
	endPage, ok := vm.PageFromAddress((ptr + length + pageMask) &^ uintptr(pageMask))
	if !ok {
		return nil, defs.EBADPTR
	}

	for p := start; p < endPage; p++ {
		if !p.InUserHalf() {
			return nil, defs.EBADPTR
		}
		if _, mapped := as.GetMappedTo(p); !mapped {
			return nil, defs.EBADPTR
		}
	}

	// Re-walk to copy out the bytes via the HHDM, page by page, since the
	// user range may span more than one (non-contiguous) physical frame.
	hhdm := as.HHDM()
	out := make([]byte, 0, length)
	remaining := length
	cur := ptr
	for remaining > 0 {
		page, _ := vm.PageFromAddress(cur &^ uintptr(pageMask))
		frame, _ := as.GetMappedTo(page)
		offset := cur - page.Address()
		n := uintptr(pageMask+1) - offset
		if n > remaining {
			n = remaining
		}
		src := hhdm.Bytes(frame.Address()+mem.Pa_t(offset), int(n))
		out = append(out, src...)
		cur += n
		remaining -= n
	}
	return out, defs.EOK
}

const pageMask = 0xfff
