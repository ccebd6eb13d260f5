package boot

import (
	"sync/atomic"
	"unsafe"

	"cpu"
	"defs"
	"elf"
	"klog"
	"mem"
	"proc"
	"scall"
	"trap"
	"vm"
)

// elfLoadFn indirects elf.Load so a hosted test can exercise Kmain's
// wiring without a real ELF image or page-table tree, the same seam the
// rest of the corpus wraps around expensive or privileged calls.
var elfLoadFn = elf.Load

// perCPUStackBytes sizes the kernel and IST stacks every hardware thread
// gets at bring-up. The source leaves this unspecified; 64 KiB is
// generous for a kernel stack with no recursion-heavy subsystem.
const perCPUStackBytes = 64 * int(mem.KiB)

// memoryReady is the shared atomic flag application processors spin on
// until the BSP finishes ledger and kernel-address-space init (spec.md
// §6 "Per-CPU bring-up"). original_source calls this SMP_MEMORY_READY;
// the source's plain spin is coarse but correct, and this keeps that
// design rather than building the
// per-CPU initialization barrier the source's own comments suggest as a
// future cleanup.
var memoryReady atomic.Bool

var (
	kernelLedger *mem.Ledger
	kernelAS     *vm.AddressSpace
	kernelHHDM   mem.HHDM
)

// newStackFn indirects plain allocation so a hosted test can cap stack
// sizes instead of allocating real 64 KiB slabs per call, the same
// indirection seam the rest of the corpus uses around privileged or
// expensive primitives.
var newStackFn = func(n int) []byte { return make([]byte, n) }

func stackTop(s []byte) uintptr {
	if len(s) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&s[len(s)-1])) + 1
}

// bringUpHardwareThread is the common CPU-setup routine spec.md §6
// names: every hardware thread, BSP or AP, runs exactly this sequence
// once memory init has completed. It installs this CPU's Locals block,
// GDT/TSS, IDT, local APIC and timer, syscall MSRs, and an idle-only
// scheduler, then enables interrupts so the timer can start dispatching.
func bringUpHardwareThread(id int) {
	l := cpu.Local(id)
	l.KernelStackTop = stackTop(newStackFn(perCPUStackBytes))

	var istStacks [7]uintptr
	istStacks[cpu.ISTDoubleFault] = stackTop(newStackFn(perCPUStackBytes))
	istStacks[cpu.ISTNMI] = stackTop(newStackFn(perCPUStackBytes))
	tss := cpu.NewTSS(l.KernelStackTop, istStacks)
	cpu.BuildGDT(tss).Load()
	// GDT.Load rewrites GS, which clears the GS base, so the Locals
	// pointer is written only after it.
	l.LoadGSBase()

	trap.InstallIDT(trapStubs())

	apicBase := mem.Pa_t(cpu.ReadMSR(cpu.IA32APICBase) &^ 0xfff)
	apic := trap.NewAPIC(kernelHHDM.ToVirt(apicBase))
	apic.EnableSpurious(trap.VecSpurious)
	timer := trap.NewBestTimer(apic, trap.VecTimer)
	l.Timer = timer

	scall.Install()

	idleStack := newStackFn(perCPUStackBytes)
	sched := proc.NewScheduler(id, idleStack, kernelAS)
	l.Scheduler = sched

	timer.Enable()
	timer.SetNextWait(1)
	cpu.EnableInterrupts()
}

// apTrampoline is implemented in entry_amd64.s: Limine's SMP bring-up
// protocol jumps here directly once goto_address is written, handing it
// one System-V-ABI argument in DI, not Go's stack-based ABI0. apEntry is
// its one-line Go-side landing point, the same thin-forwarder idiom
// entry.go's dispatch uses for the IDT stubs.
//
// The real wire-format argument is a pointer to a struct carrying this
// hardware thread's processor/LAPIC id and an extra_argument field
// reserved for exactly this use; this kernel's simplified Handoff
// contract does not mirror that struct byte-for-byte (DESIGN.md notes
// this as a deliberate simplification), so apEntry treats the value
// forwarded in DI directly as the hwthread index releaseApplicationProcessors
// assigned it.
func apTrampoline()

func apEntry(hwthreadID uintptr) {
	for !memoryReady.Load() {
		cpu.Halt()
	}
	bringUpHardwareThread(int(hwthreadID))
	for {
		cpu.Halt()
	}
}

// Kmain is the bootstrap processor's entry point, called once control
// reaches Go code with h fully populated (spec.md §6). It performs the
// full init order SPEC_FULL.md's component table implies: ledger, kernel
// address space, this CPU's bring-up, release of any waiting APs, and
// the first task.
func Kmain(h *Handoff, initImage []byte) {
	kernelHHDM = mem.NewHHDM(h.HHDMOffset)

	ledger, err := mem.InitLedger(kernelHHDM, h.Regions())
	if err != defs.EOK {
		panic("boot: InitLedger failed")
	}
	kernelLedger = ledger

	as, err := vm.InitKernelSpace(kernelLedger, kernelHHDM)
	if err != defs.EOK {
		panic("boot: InitKernelSpace failed")
	}
	kernelAS = as

	nHwthreads := 1
	if len(h.SMP) > 0 {
		nHwthreads = len(h.SMP)
	}
	cpu.InitLocals(nHwthreads)

	// Remap and mask the legacy 8259 once, before any local APIC is
	// enabled.
	trap.DisableLegacyPIC()
	bringUpHardwareThread(0)

	memoryReady.Store(true)
	releaseApplicationProcessors(h)

	startInitTask(initImage)

	for {
		cpu.Halt()
	}
}

// releaseApplicationProcessors writes apTrampoline's address into every
// non-BSP hardware thread's rendezvous slot (spec.md §6 "Application
// processors spin-wait ... then branch via their goto_address"). Entry 0
// of the SMP table is taken to be the BSP, the simplifying assumption
// DESIGN.md records against the handoff's Open Question on BSP
// identification.
func releaseApplicationProcessors(h *Handoff) {
	trampoline := uint64(stubAddr(apTrampoline))
	for i, e := range h.SMP {
		if i == 0 || e.GotoAddress == nil {
			continue
		}
		atomic.StoreUint64((*uint64)(unsafe.Pointer(e.GotoAddress)), trampoline)
	}
}

// startInitTask loads the first userland image via the Process Loader
// and queues it on the BSP's scheduler (spec.md §4.I, §4.F/G).
func startInitTask(image []byte) {
	res, err := elfLoadFn(kernelLedger, kernelHHDM, image)
	if err != defs.EOK {
		klog.Errorf("boot: failed to load init image: %d", err)
		return
	}

	stack := newStackFn(perCPUStackBytes)
	task := proc.NewTask(1, res.Entry, stack, res.AS, 1, true, 0)
	for _, f := range res.Frames {
		task.Own(f)
	}

	cpu.Local(0).Scheduler.(*proc.Scheduler).QueueTask(task)
}
