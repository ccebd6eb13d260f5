package trap

import "cpu"

// msWindow is the sampling window used to calibrate an uncalibrated
// clock source against the PIT/TSC, matching the original's MS_WINDOW.
const msWindow = 10

// busyWaitMsec and readTSC are hooks so calibration can be driven
// deterministically in a hosted go test run, the same seam vm uses for
// INVLPG/CR3 and cpu uses for RDMSR/WRMSR.
var (
	busyWaitMsecFn = busyWaitMsec
	readTSCFn      = readTSC
	cpuidFn        = cpuid
)

// ioWaitItersPerMsec is a fixed, conservatively low iteration count for
// the port-0x80 dummy-write delay (the same I/O idiom DisableLegacyPIC
// uses between PIC command bytes); it under-calibrates on modern
// hardware but that only makes the resulting frequency estimate low,
// never wedges the spin.
const ioWaitItersPerMsec = 50000

func busyWaitMsec(ms uint64) {
	for i := uint64(0); i < ms*ioWaitItersPerMsec; i++ {
		outb(picWaitPort, 0)
	}
}

// readTSC and cpuid are implemented in timer_amd64.s.
func readTSC() uint64
func cpuid(leaf, subleaf uint32) (eax, ebx, ecx, edx uint32)

/// apicOneshotTimer drives cpu.Timer via the local APIC's built-in
/// one-shot countdown register, calibrated against a busy-wait sample
/// (original_source's local_state/timer.rs APICTimer).
type apicOneshotTimer struct {
	apic       *APIC
	ticksPerMs uint32
}

/// NewAPICOneshotTimer calibrates and arms a.
func NewAPICOneshotTimer(a *APIC, vector Vector) *apicOneshotTimer {
	t := &apicOneshotTimer{apic: a}
	a.setTimerOneshot(vector)

	busyWaitMsecFn(1)
	a.write(apicRegTimerInit, 0xffffffff)
	busyWaitMsecFn(msWindow)
	elapsed := uint32(0xffffffff) - a.read(apicRegTimerCur)
	t.ticksPerMs = elapsed / msWindow
	return t
}

func (t *apicOneshotTimer) SetNextWait(multiplier uint64) {
	t.apic.write(apicRegTimerInit, t.ticksPerMs*uint32(multiplier))
}

func (t *apicOneshotTimer) Enable() {
	t.apic.setTimerOneshot(VecTimer)
}

func (t *apicOneshotTimer) Disable() {
	t.apic.maskTimer()
}

var _ cpu.Timer = (*apicOneshotTimer)(nil)

/// tscDeadlineTimer drives cpu.Timer via IA32_TSC_DEADLINE, preferred
/// whenever CPUID reports the TSC-deadline LVT mode (original_source's
/// local_state/timer.rs TSCTimer / get_best_timer).
type tscDeadlineTimer struct {
	apic        *APIC
	ticksPerMs  uint64
}

/// NewTSCDeadlineTimer calibrates via CPUID leaf 0x15 when the
/// processor reports a usable crystal ratio, falling back to a
/// busy-wait TSC sample otherwise.
func NewTSCDeadlineTimer(a *APIC, vector Vector) *tscDeadlineTimer {
	t := &tscDeadlineTimer{apic: a}
	a.setTimerTSCDeadline(vector)

	if eax, ebx, ecx, _ := cpuidFn(0x15, 0); ebx != 0 && eax != 0 {
		t.ticksPerMs = uint64(ecx) * uint64(ebx) / uint64(eax) / 1000
		return t
	}

	busyWaitMsecFn(1)
	start := readTSCFn()
	busyWaitMsecFn(msWindow)
	end := readTSCFn()
	t.ticksPerMs = (end - start) / msWindow
	return t
}

func (t *tscDeadlineTimer) SetNextWait(multiplier uint64) {
	cpu.WriteMSR(cpu.IA32TSCDeadline, readTSCFn()+t.ticksPerMs*multiplier)
}

func (t *tscDeadlineTimer) Enable() {
	t.apic.setTimerTSCDeadline(VecTimer)
}

func (t *tscDeadlineTimer) Disable() {
	t.apic.maskTimer()
}

var _ cpu.Timer = (*tscDeadlineTimer)(nil)

// hasTSCDeadline reports whether CPUID leaf 1's ECX bit 24 (TSC_DL) is
// set, the original's cpu::has_feature(Feature::TSC_DL) check.
func hasTSCDeadline() bool {
	_, _, ecx, _ := cpuidFn(1, 0)
	return ecx&(1<<24) != 0
}

/// NewBestTimer picks the TSC-deadline strategy when the processor
/// supports it, falling back to the APIC one-shot strategy otherwise
/// (original_source's get_best_timer).
func NewBestTimer(a *APIC, vector Vector) cpu.Timer {
	if hasTSCDeadline() {
		return NewTSCDeadlineTimer(a, vector)
	}
	return NewAPICOneshotTimer(a, vector)
}
