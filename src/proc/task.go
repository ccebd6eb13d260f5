// Package proc implements the Task record and per-CPU Scheduler
// (spec.md §4.F/G): a FIFO queue of preemptive tasks, context-switched
// by rewriting the interrupt return frame in place.
package proc

import (
	"unsafe"

	"cpu"
	"defs"
	"mem"
	"trap"
	"vm"
)

// rflagsIF is the interrupt-enable bit; a newly created task runs with
// interrupts enabled and nothing else set unless the caller asks for
// more (spec.md §4.F "RFLAGS = caller-supplied, defaulting to IF only").
const rflagsIF = 1 << 9

/// Task is one schedulable unit of execution: an entry point, an owned
/// stack, an owned address space, and a context snapshot that is only
/// meaningful while the task is not the one currently running (spec.md
/// §4.F).
type Task struct {
	ID       defs.Tid_t
	Priority uint8
	Stack    []byte
	AS       *vm.AddressSpace
	Frame    trap.Frame
	GPRs     trap.GPRs

	// OwnedFrames is the leaf-frame registry spec.md §9 describes as
	// the owner of record for data frames a page-table tree terminates
	// in: AddressSpace.Destroy frees only intermediate tables, so
	// whatever mapped a leaf (AutoMap, the ELF loader) must record it
	// here for Scheduler's exit step to free explicitly.
	OwnedFrames []mem.Frame
}

/// Own records f as owned by this task, for freeing at exit.
func (t *Task) Own(f mem.Frame) {
	t.OwnedFrames = append(t.OwnedFrames, f)
}

/// NewTask builds a task whose context snapshot simulates having been
/// interrupted at entry with RSP at the top of its stack, per spec.md
/// §4.F. user selects the CS/SS pair (user-mode RPL 3 vs. kernel).
func NewTask(id defs.Tid_t, entry uintptr, stack []byte, as *vm.AddressSpace, priority uint8, user bool, rflags uint64) *Task {
	if rflags == 0 {
		rflags = rflagsIF
	}
	cs, ss := uint64(cpu.SelKernelCode), uint64(cpu.SelKernelData)
	if user {
		cs, ss = uint64(cpu.SelUserCode64), uint64(cpu.SelUserData)
	}
	return &Task{
		ID:       id,
		Priority: priority,
		Stack:    stack,
		AS:       as,
		Frame: trap.Frame{
			RIP:    uint64(entry),
			CS:     cs,
			RFLAGS: rflags,
			RSP:    uint64(uintptr(stackTop(stack))),
			SS:     ss,
		},
	}
}

func stackTop(stack []byte) uintptr {
	if len(stack) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&stack[len(stack)-1])) + 1
}
