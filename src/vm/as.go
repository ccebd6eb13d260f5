// Package vm implements the address-space mapper (spec.md §4.C): the
// 4-level x86_64 page-table tree, the rent-from-PFM intermediate-table
// discipline, and kernel-half sharing across address spaces.
package vm

import (
	"sync"

	"defs"
	"mem"
)

// halfBoundary is the PML4 index at which the kernel half begins. Indices
// below it are user (canonical-low), indices at or above it are kernel
// (canonical-high) — spec.md §4.C "Kernel-half sharing".
const halfBoundary = 256

// invlpgFn and loadCR3Fn indirect the two privileged, assembly-backed
// instructions so hosted tests can stub them out rather than trap,
// matching gopher-os's activePDTFn/switchPDTFn hook pattern.
var (
	invlpgFn  = invlpg
	loadCR3Fn = loadCR3
)

/// AddressSpace owns one page-table tree rooted at a frame rented from the
/// physical frame manager. The mutex serializes all tree mutation; reads
/// that only need a point-in-time snapshot (GetMappedTo, GetFlags) also
/// take it, since a concurrent Map could be rewriting intermediate tables.
type AddressSpace struct {
	mu sync.Mutex

	ledger *mem.Ledger
	hhdm   mem.HHDM
	root   mem.Frame
}

/// kernelRoot is the canonical kernel root page table, built once by
/// InitKernelSpace. Every user AddressSpace is born by copying its upper
/// half verbatim (spec.md §4.C).
var kernelRoot *mem.Pmap_t

/// InitKernelSpace rents the frame that becomes the canonical kernel root
/// and returns an AddressSpace over it. It must run exactly once, before
/// any call to NewAddressSpace.
func InitKernelSpace(ledger *mem.Ledger, hhdm mem.HHDM) (*AddressSpace, defs.Err_t) {
	f, err := ledger.NextFrame()
	if err != defs.EOK {
		return nil, err
	}
	table := hhdm.Frame(f)
	for i := range table {
		table[i] = 0
	}
	kernelRoot = table
	return &AddressSpace{ledger: ledger, hhdm: hhdm, root: f}, defs.EOK
}

/// NewAddressSpace allocates a fresh root frame, copies the kernel's upper
/// half into it, and zeroes the lower (user) half, per spec.md §4.C.
/// InitKernelSpace must have already run.
func NewAddressSpace(ledger *mem.Ledger, hhdm mem.HHDM) (*AddressSpace, defs.Err_t) {
	if kernelRoot == nil {
		panic("vm: NewAddressSpace before InitKernelSpace")
	}
	f, err := ledger.NextFrame()
	if err != defs.EOK {
		return nil, err
	}
	table := hhdm.Frame(f)
	for i := 0; i < halfBoundary; i++ {
		table[i] = 0
	}
	for i := halfBoundary; i < 512; i++ {
		table[i] = kernelRoot[i]
	}
	return &AddressSpace{ledger: ledger, hhdm: hhdm, root: f}, defs.EOK
}

/// Root returns the frame backing this address space's top-level table,
/// the value swap_into() would load into CR3.
func (as *AddressSpace) Root() mem.Frame {
	return as.root
}

/// HHDM returns the direct-map accessor this address space was built
/// with, so callers that already hold an AddressSpace (the syscall
/// pointer-validation path, the ELF loader) can resolve a mapped frame
/// to bytes without separately threading an mem.HHDM value through.
func (as *AddressSpace) HHDM() mem.HHDM {
	return as.hhdm
}

// walk descends from the root to the entry at the requested depth (1 =
// PT leaf, 2 = PD leaf, 3 = PDPT leaf), renting and zeroing intermediate
// tables on the way down when create is set. It returns a pointer into
// the live table, aliased through the HHDM, so callers may read or write
// it directly.
func (as *AddressSpace) walk(page Page, depth int, create bool) (*mem.Pa_t, defs.Err_t) {
	if depth < 1 || depth > 3 {
		panic("vm: bad depth")
	}
	table := as.hhdm.Frame(as.root)
	for lvl := 4; lvl > depth; lvl-- {
		idx := levelIndex(page, lvl)
		pte := &table[idx]
		if *pte&mem.PTE_P == 0 {
			if !create {
				return nil, defs.ENOTMAPPED
			}
			nf, err := as.ledger.NextFrame()
			if err != defs.EOK {
				return nil, err
			}
			child := as.hhdm.Frame(nf)
			for i := range child {
				child[i] = 0
			}
			*pte = nf.Address() | mem.PTE_P | mem.PTE_W | mem.PTE_U
		} else if *pte&mem.PTE_PS != 0 {
			return nil, defs.EHUGECONFLICT
		}
		table = as.hhdm.Frame(mem.FrameFromAddress(*pte & mem.PTE_ADDR))
	}
	return &table[levelIndex(page, depth)], defs.EOK
}

// lookup walks from the root without a fixed target depth, stopping at
// whichever level first presents a leaf (a PT entry, or a huge PD/PDPT
// entry). Used by GetMappedTo and GetFlags, which don't know a page's
// mapped depth in advance.
func (as *AddressSpace) lookup(page Page) (*mem.Pa_t, int, defs.Err_t) {
	table := as.hhdm.Frame(as.root)
	for lvl := 4; lvl >= 1; lvl-- {
		idx := levelIndex(page, lvl)
		pte := &table[idx]
		if *pte&mem.PTE_P == 0 {
			return nil, 0, defs.ENOTMAPPED
		}
		if lvl == 1 || *pte&mem.PTE_PS != 0 {
			return pte, lvl, defs.EOK
		}
		table = as.hhdm.Frame(mem.FrameFromAddress(*pte & mem.PTE_ADDR))
	}
	return nil, 0, defs.ENOTMAPPED
}

/// Map installs a mapping from page to frame at the given depth (1 = 4
/// KiB, 2 = 2 MiB, 3 = 1 GiB). When takeFrame is set, frame is first
/// lock_frame'd against the PFM; failure aborts before the tree is
/// touched. On success the page's TLB entry is invalidated on this CPU.
func (as *AddressSpace) Map(page Page, depth int, frame mem.Frame, takeFrame bool, attrs MapAttrs) defs.Err_t {
	as.mu.Lock()
	defer as.mu.Unlock()

	if takeFrame {
		if err := as.ledger.LockFrame(frame); err != defs.EOK {
			return err
		}
	}
	entry, err := as.walk(page, depth, true)
	if err != defs.EOK {
		if takeFrame {
			as.ledger.FreeFrame(frame)
		}
		return err
	}
	if *entry&mem.PTE_P != 0 {
		if takeFrame {
			as.ledger.FreeFrame(frame)
		}
		return defs.EALREADYMAPPED
	}

	flags := attrs.encode() | mem.PTE_P
	if depth != 1 {
		flags |= mem.PTE_PS
	}
	*entry = frame.Address() | flags
	invlpgFn(page.Address())
	return defs.EOK
}

/// Unmap clears the leaf present at page (depthHint names the level a
/// caller believes the mapping lives at, matching get_flags/get_mapped_to
/// usage patterns), optionally freeing the backing frame back to the PFM.
func (as *AddressSpace) Unmap(page Page, depthHint int, freeFrame bool) defs.Err_t {
	as.mu.Lock()
	defer as.mu.Unlock()

	entry, err := as.walk(page, depthHint, false)
	if err != defs.EOK || *entry&mem.PTE_P == 0 {
		return defs.ENOTMAPPED
	}
	frame := mem.FrameFromAddress(*entry & mem.PTE_ADDR)
	*entry = 0
	invlpgFn(page.Address())
	if freeFrame {
		as.ledger.FreeFrame(frame)
	}
	return defs.EOK
}

/// AutoMap rents any frame from the PFM and maps it at page with attrs, a
/// convenience for callers that don't care which physical frame backs a
/// new 4 KiB mapping.
func (as *AddressSpace) AutoMap(page Page, attrs MapAttrs) defs.Err_t {
	f, err := as.ledger.NextFrame()
	if err != defs.EOK {
		return err
	}
	if err := as.Map(page, 1, f, false, attrs); err != defs.EOK {
		as.ledger.FreeFrame(f)
		return err
	}
	return defs.EOK
}

/// GetMappedTo reports the frame page currently resolves to, if any.
func (as *AddressSpace) GetMappedTo(page Page) (mem.Frame, bool) {
	as.mu.Lock()
	defer as.mu.Unlock()

	entry, _, err := as.lookup(page)
	if err != defs.EOK {
		return 0, false
	}
	return mem.FrameFromAddress(*entry & mem.PTE_ADDR), true
}

/// GetFlags reports the MapAttrs of page's current leaf, if any.
func (as *AddressSpace) GetFlags(page Page) (MapAttrs, bool) {
	as.mu.Lock()
	defer as.mu.Unlock()

	entry, _, err := as.lookup(page)
	if err != defs.EOK {
		return MapAttrs{}, false
	}
	return decodeAttrs(*entry), true
}

/// SetFlags rewrites the flags of an existing leaf at the given depth,
/// combining new with old according to mode. It does not touch the
/// address or present bits.
func (as *AddressSpace) SetFlags(page Page, depth int, attrs MapAttrs, mode SetMode) defs.Err_t {
	as.mu.Lock()
	defer as.mu.Unlock()

	entry, err := as.walk(page, depth, false)
	if err != defs.EOK || *entry&mem.PTE_P == 0 {
		return defs.ENOTMAPPED
	}

	preserved := *entry &^ attrMask
	newBits := attrs.encode() & attrMask
	switch mode {
	case SetModeSet:
		*entry = preserved | newBits
	case SetModeInsert:
		*entry = preserved | (*entry & attrMask) | newBits
	case SetModeRemove:
		*entry = preserved | ((*entry & attrMask) &^ newBits)
	default:
		panic("vm: bad SetMode")
	}
	invlpgFn(page.Address())
	return defs.EOK
}

/// Destroy walks the user half and frees every intermediate table frame
/// it owns, then frees the root frame itself. It does NOT free leaf data
/// frames: a page-table tree can only be traversed from its root, but
/// the leaves it terminates in are owned by whatever allocated them (a
/// task's frame registry, spec.md §9 "Cyclic ownership"), not by the
/// tree structure — callers must free those separately before or after
/// calling Destroy. The kernel half is never touched: its PML4 slots
/// hold values copied from kernelRoot, not frames this address space
/// rented, so recursing into indices 256-511 would double-free tables
/// every other address space still references.
func (as *AddressSpace) Destroy() {
	as.mu.Lock()
	defer as.mu.Unlock()

	table := as.hhdm.Frame(as.root)
	for i := 0; i < halfBoundary; i++ {
		pte := table[i]
		if pte&mem.PTE_P == 0 {
			continue
		}
		if pte&mem.PTE_PS == 0 {
			as.freeTables(mem.FrameFromAddress(pte&mem.PTE_ADDR), 3)
		}
	}
	as.ledger.FreeFrame(as.root)
}

// freeTables recursively frees the intermediate page-table frames under
// f (itself a table frame at the given depth: 3 = PDPT, 2 = PD, 1 = PT),
// skipping any entry that is a leaf (a PT entry, or a huge PD/PDPT
// entry) since leaves are not owned by the tree.
func (as *AddressSpace) freeTables(f mem.Frame, depth int) {
	if depth > 1 {
		table := as.hhdm.Frame(f)
		for i := range table {
			pte := table[i]
			if pte&mem.PTE_P == 0 || pte&mem.PTE_PS != 0 {
				continue
			}
			as.freeTables(mem.FrameFromAddress(pte&mem.PTE_ADDR), depth-1)
		}
	}
	as.ledger.FreeFrame(f)
}

/// FreeFrame returns a leaf data frame this address space's caller owns
/// directly to the physical frame manager, the counterpart Destroy's doc
/// comment describes: Destroy never touches leaves, so whatever tracks
/// leaf ownership (a task's frame registry) calls this explicitly.
func (as *AddressSpace) FreeFrame(f mem.Frame) defs.Err_t {
	return as.ledger.FreeFrame(f)
}

/// SwapInto writes this address space's root frame into CR3. Unsafe: the
/// caller must ensure the kernel half is valid and that any CPU still
/// referencing the previous address space has been quiesced first
/// (spec.md §4.C).
func (as *AddressSpace) SwapInto() {
	loadCR3Fn(uintptr(as.root.Address()))
}
