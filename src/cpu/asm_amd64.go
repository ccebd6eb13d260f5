package cpu

// lgdt loads the global descriptor table register from p. Implemented
// in asm_amd64.s.
func lgdt(p *dtPointer)

// ltr loads the task register with the TSS selector sel.
func ltr(sel uint16)

// reloadSegments performs the far-return dance required to change CS,
// then zeroes ES/DS/FS/GS (spec.md §4.D: "segment registers ES/DS/FS/GS
// are zeroed after loading CS via a far return").
func reloadSegments(codeSel, dataSel uint16)

// EnableInterrupts and DisableInterrupts wrap STI/CLI, the primitive the
// "interrupt cell" locking discipline (spec.md §5) is built from.
func EnableInterrupts()
func DisableInterrupts()

// Halt executes HLT, parking the CPU until the next interrupt.
func Halt()
