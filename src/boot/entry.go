package boot

import (
	"reflect"

	"trap"
)

// The six assembly entry points are implemented in entry_amd64.s; each
// is installed into trap.Stubs as a bare machine address a CPU trap gate
// jumps to directly, never called as an ordinary Go function.
func pageFaultStub()
func gpFaultStub()
func invalidOpStub()
func doubleFaultStub()
func nmiStub()
func timerStub()

func stubAddr(f func()) uintptr {
	return reflect.ValueOf(f).Pointer()
}

// trapStubs builds the six stub addresses InstallIDT needs, in the same
// stack-based-ABI0-pointer idiom src/scall's Install uses for sysenter.
func trapStubs() trap.Stubs {
	return trap.Stubs{
		PageFault:   stubAddr(pageFaultStub),
		GPFault:     stubAddr(gpFaultStub),
		InvalidOp:   stubAddr(invalidOpStub),
		DoubleFault: stubAddr(doubleFaultStub),
		NMI:         stubAddr(nmiStub),
		Timer:       stubAddr(timerStub),
	}
}

// dispatch is the single Go-side landing point every stub in
// entry_amd64.s calls into; it only exists so the hand-written assembly
// can reach trap.FromStub via the same-package stack-based ABI0 call
// convention entry_amd64.s's commentary describes (a cross-package
// symbol reference from assembly is needlessly fragile when a one-line
// same-package forwarder does the job, the same reasoning scall.dispatch
// already follows for Dispatch).
func dispatch(vector uint64, frame *trap.Frame, gprs *trap.GPRs, errorCode uint64) {
	trap.FromStub(vector, frame, gprs, errorCode)
}
