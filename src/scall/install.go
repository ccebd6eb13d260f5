package scall

import (
	"reflect"

	"cpu"
)

// rflagsTF and rflagsIF are the RFLAGS bits IA32_FMASK clears on every
// `syscall` entry, so the trampoline runs with interrupts off and no
// stray single-step trap (spec.md §4.H "Trampoline").
const (
	rflagsTF = 1 << 8
	rflagsIF = 1 << 9
)

// Install programs the three MSRs that turn the `syscall`/`sysret` pair
// into a functioning entry point (spec.md §4.H). It must run once per
// hardware thread, after the GDT carrying the selectors below is loaded.
//
// IA32_STAR packs two selector bases rather than four selectors: bits
// 47:32 name the `syscall` kernel CS (kernel SS is implicitly CS+8), and
// bits 63:48 name a `sysret` base from which CS64 = base+16 and SS =
// base+8. That only reproduces this kernel's real selectors because the
// GDT lays SelKernelCode immediately below SelKernelData, and
// SelUserData immediately below SelUserCode64 by exactly 8 less than
// SelUserCode64-8 — i.e. sysretBase+8 = SelUserData and
// sysretBase+16 = SelUserCode64.
func Install() {
	sysretBase := uint64(cpu.SelUserData&^3) - 8
	star := sysretBase<<48 | uint64(cpu.SelKernelCode&^3)<<32
	cpu.WriteMSR(cpu.IA32STAR, star)
	cpu.WriteMSR(cpu.IA32LSTAR, uint64(reflect.ValueOf(sysenter).Pointer()))
	cpu.WriteMSR(cpu.IA32FMASK, rflagsTF|rflagsIF)
}
