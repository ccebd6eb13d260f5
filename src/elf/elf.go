// Package elf implements the Process Loader (spec.md §4.I): it parses a
// loadable ELF image, walks its PT_LOAD program headers, and populates a
// fresh address space through the mapper in src/vm.
package elf

import (
	"bytes"
	stdelf "debug/elf"

	"defs"
	"mem"
	"util"
	"vm"
)

/// Result is everything Load recovers from an image: the populated
/// address space (not yet wrapped in a Task), its entry point, and the
/// leaf data frames Load mapped into it. A caller building a Task must
/// call Task.Own on every frame in Frames, since AddressSpace.Destroy
/// frees only the intermediate page-table tree, never the leaves it
/// terminates in (spec.md §9 "Cyclic ownership").
type Result struct {
	AS     *vm.AddressSpace
	Entry  uintptr
	Frames []mem.Frame
}

/// Load parses elfImage, walks its PT_LOAD segments, and maps each one
/// into a fresh address space built from ledger/hhdm: the virtual range
/// is rounded out to whole pages, permissions are derived from the
/// segment's flags (X→RX, W→RW, else RO), file bytes are copied in
/// through the HHDM and the remainder up to p_memsz is left zeroed,
/// per spec.md §4.I.
func Load(ledger *mem.Ledger, hhdm mem.HHDM, elfImage []byte) (*Result, defs.Err_t) {
	f, err := stdelf.NewFile(bytes.NewReader(elfImage))
	if err != nil {
		return nil, defs.EBADELF
	}
	defer f.Close()

	if f.Class != stdelf.ELFCLASS64 || f.Machine != stdelf.EM_X86_64 ||
		f.Type != stdelf.ET_EXEC && f.Type != stdelf.ET_DYN {
		return nil, defs.EBADELF
	}

	as, aserr := vm.NewAddressSpace(ledger, hhdm)
	if aserr != defs.EOK {
		return nil, aserr
	}

	res := &Result{AS: as, Entry: uintptr(f.Entry)}

	for _, prog := range f.Progs {
		if prog.Type != stdelf.PT_LOAD {
			continue
		}
		if err := loadSegment(as, ledger, hhdm, prog, elfImage, res); err != defs.EOK {
			as.Destroy()
			return nil, err
		}
	}

	return res, defs.EOK
}

// loadSegment maps one PT_LOAD segment page by page, copying file bytes
// in and leaving the rest of each page zeroed, and records every frame
// it maps into res.Frames.
func loadSegment(as *vm.AddressSpace, ledger *mem.Ledger, hhdm mem.HHDM, prog *stdelf.Prog, elfImage []byte, res *Result) defs.Err_t {
	attrs := segmentAttrs(prog.Flags)

	start := util.Rounddown(uintptr(prog.Vaddr), uintptr(mem.PGSIZE))
	end := util.Roundup(uintptr(prog.Vaddr+prog.Memsz), uintptr(mem.PGSIZE))

	for va := start; va < end; va += uintptr(mem.PGSIZE) {
		page, ok := vm.PageFromAddress(va)
		if !ok {
			return defs.EBADELF
		}

		f, ferr := ledger.NextFrame()
		if ferr != defs.EOK {
			return ferr
		}
		if merr := as.Map(page, 1, f, false, attrs); merr != defs.EOK {
			ledger.FreeFrame(f)
			return merr
		}
		res.Frames = append(res.Frames, f)

		// A leaf frame fresh off the ledger is not pre-zeroed the way vm
		// zeroes a newly rented table frame, so zero the whole page before
		// copying in whatever part of it the file image covers; the rest
		// (.bss, or past p_filesz within this page) is left zero, matching
		// spec.md §4.I's zero-fill.
		dst := hhdm.Bytes(f.Address(), mem.PGSIZE)
		for i := range dst {
			dst[i] = 0
		}
		copyFileBytes(dst, va, prog, elfImage)
	}
	return defs.EOK
}

// overlap returns the intersection of [aStart,aEnd) and [bStart,bEnd),
// or an empty (equal) range if they don't intersect.
func overlap(aStart, aEnd, bStart, bEnd uintptr) (uintptr, uintptr) {
	s := aStart
	if bStart > s {
		s = bStart
	}
	e := aEnd
	if bEnd < e {
		e = bEnd
	}
	if e < s {
		e = s
	}
	return s, e
}

// copyFileBytes copies the portion of prog's file image that lands on
// the page starting at va into dst, a PGSIZE-length slice aliasing that
// page's physical frame through the HHDM.
func copyFileBytes(dst []byte, va uintptr, prog *stdelf.Prog, elfImage []byte) {
	segFileStart := uintptr(prog.Vaddr)
	segFileEnd := uintptr(prog.Vaddr) + uintptr(prog.Filesz)

	s, e := overlap(va, va+uintptr(mem.PGSIZE), segFileStart, segFileEnd)
	if s >= e {
		return
	}
	fileOff := prog.Off + uint64(s-segFileStart)
	n := uint64(e - s)
	if fileOff+n > uint64(len(elfImage)) {
		n = uint64(len(elfImage)) - fileOff
	}
	copy(dst[s-va:], elfImage[fileOff:fileOff+n])
}

// segmentAttrs maps a PT_LOAD segment's ELF permission flags onto the
// architecture-neutral MapAttrs vocabulary: X→RX, W→RW, otherwise RO
// (spec.md §4.I).
func segmentAttrs(flags stdelf.ProgFlag) vm.MapAttrs {
	attrs := vm.MapAttrs{User: true, NoExecute: true}
	if flags&stdelf.PF_W != 0 {
		attrs.Writable = true
	}
	if flags&stdelf.PF_X != 0 {
		attrs.NoExecute = false
	}
	return attrs
}
