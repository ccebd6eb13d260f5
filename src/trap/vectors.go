// Package trap implements the interrupt descriptor table, exception
// handlers, and APIC timer calibration (spec.md §4.D/E): interrupt
// dispatch, Per-CPU Locals' companion half.
package trap

/// Vector names an IDT slot. Vectors 0-31 are architectural exceptions;
/// 32 and above are IRQs (spec.md §4.D).
type Vector uint8

const (
	VecDivideByZero Vector = 0
	VecDebug        Vector = 1
	VecNMI          Vector = 2
	VecBreakpoint   Vector = 3
	VecOverflow     Vector = 4
	VecBoundRange   Vector = 5
	VecInvalidOp    Vector = 6
	VecDeviceNA     Vector = 7
	VecDoubleFault  Vector = 8
	VecInvalidTSS   Vector = 10
	VecSegmentNP    Vector = 11
	VecStackFault   Vector = 12
	VecGPFault      Vector = 13
	VecPageFault    Vector = 14
	VecFPException  Vector = 16
	VecAlignment    Vector = 17
	VecMachineCheck Vector = 18
	VecSIMDFP       Vector = 19
)

// IRQ vectors start at 32, the first slot free of architectural
// exceptions; the timer, spurious, and error vectors are reserved within
// this range (spec.md §4.D).
const (
	IRQBase    Vector = 32
	VecTimer   Vector = IRQBase
	VecSpurious Vector = 0xff
	VecAPICErr Vector = IRQBase + 1
)
