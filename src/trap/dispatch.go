package trap

import "cpu"

/// Stubs names the one assembly entry point per vector InstallIDT
/// registers: a CPU trap carries no register naming which vector fired,
/// so each handled vector needs its own tiny stub (it pushes GPRs,
/// builds the Frame alias, and calls Dispatch with its own vector as a
/// compile-time immediate) rather than one address shared by every
/// gate. Assembling these is out of this package's scope; src/boot
/// supplies them.
type Stubs struct {
	PageFault, GPFault, InvalidOp, DoubleFault, NMI, Timer uintptr
}

/// InstallIDT builds and loads the standard exception table for this
/// hardware thread: double-fault and NMI route through their IST
/// stacks, everything else runs on the current stack (spec.md §4.D).
/// The timer vector drives whatever cpu.Scheduler is installed in this
/// hardware thread's Locals at the moment it fires; Dispatch has
/// already stashed the current Frame/GPRs there by the time Tick runs
/// (spec.md §4.F/G step 1).
func InstallIDT(stubs Stubs) *IDT {
	idt := NewIDT()

	idt.HandleVector(VecPageFault, 0, stubs.PageFault, func(v Vector, frame *Frame, gprs *GPRs, errorCode uint64) {
		PageFaultHandler(errorCode)
		panic(errString("unhandled page fault"))
	})
	idt.HandleVector(VecGPFault, 0, stubs.GPFault, func(v Vector, frame *Frame, gprs *GPRs, errorCode uint64) {
		GeneralProtectionHandler(frame, errorCode)
		panic(errString("unhandled general protection fault"))
	})
	idt.HandleVector(VecInvalidOp, 0, stubs.InvalidOp, func(v Vector, frame *Frame, gprs *GPRs, errorCode uint64) {
		InvalidOpcodeHandler(frame)
		panic(errString("unhandled invalid opcode"))
	})
	idt.HandleVector(VecDoubleFault, cpu.ISTDoubleFault, stubs.DoubleFault, func(v Vector, frame *Frame, gprs *GPRs, errorCode uint64) {
		DoubleFaultHandler(frame)
	})
	idt.HandleVector(VecNMI, cpu.ISTNMI, stubs.NMI, func(v Vector, frame *Frame, gprs *GPRs, errorCode uint64) {})

	idt.HandleVector(VecTimer, 0, stubs.Timer, func(v Vector, frame *Frame, gprs *GPRs, errorCode uint64) {
		if sched := currentLocalsFn().Scheduler; sched != nil {
			sched.Tick()
		}
	})

	idt.Load()
	return idt
}

/// FromStub is the single Go-side landing point every one of src/boot's
/// six assembly stubs calls into once it has pushed GPRs and read off the
/// hardware-pushed Frame and (real or fabricated) error code: it recovers
/// this hardware thread's loaded IDT from Locals and calls IDT.Dispatch,
/// so the stub never needs a method value (the same thin-forwarder
/// idiom scall.dispatch uses to reach scall.Dispatch). vector arrives widened to uint64 because the
/// stub builds it from a compile-time immediate with MOVQ, not MOVB.
func FromStub(vector uint64, frame *Frame, gprs *GPRs, errorCode uint64) {
	idt := (*IDT)(currentLocalsFn().IDT)
	idt.Dispatch(Vector(vector), frame, gprs, errorCode)
}

type errString string

func (e errString) Error() string { return string(e) }
