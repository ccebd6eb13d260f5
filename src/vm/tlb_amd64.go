package vm

// invlpg flushes the single TLB entry for the page containing va on this
// CPU, following Map/Unmap's obligation to invalidate after rewriting a
// leaf (spec.md §4.C). Implemented in tlb_amd64.s.
func invlpg(va uintptr)

// loadCR3 writes root into CR3, switching the currently active page
// table and implicitly flushing all non-global TLB entries. Implemented
// in cr3_amd64.s.
func loadCR3(root uintptr)
