package boot

import (
	"testing"
	"unsafe"

	"mem"
)

func TestHandoffRegionsConvertsMemoryMap(t *testing.T) {
	h := &Handoff{
		MemoryMap: []MemoryMapEntry{
			{Base: 0x1000, Length: 0x2000, Kind: mem.RegionUsable},
			{Base: 0x8000000, Length: 0x1000, Kind: mem.RegionReserved},
		},
	}

	regions := h.Regions()
	if len(regions) != 2 {
		t.Fatalf("got %d regions, want 2", len(regions))
	}
	if regions[0].Base != 0x1000 || regions[0].Length != 0x2000 || regions[0].Kind != mem.RegionUsable {
		t.Fatalf("regions[0] = %+v", regions[0])
	}
	if regions[1].Kind != mem.RegionReserved {
		t.Fatalf("regions[1].Kind = %v, want RegionReserved", regions[1].Kind)
	}
}

func TestReleaseApplicationProcessorsSkipsBSPAndNilSlots(t *testing.T) {
	var bspSlot, ap1Slot, ap2Slot uint64
	h := &Handoff{SMP: []SMPEntry{
		{ProcessorID: 0, GotoAddress: &bspSlot},
		{ProcessorID: 1, GotoAddress: nil},
		{ProcessorID: 2, GotoAddress: &ap2Slot},
	}}
	_ = ap1Slot

	releaseApplicationProcessors(h)

	if bspSlot != 0 {
		t.Fatalf("BSP's own slot (index 0) was written: %#x", bspSlot)
	}
	if ap2Slot == 0 {
		t.Fatalf("AP slot at index 2 was not written")
	}
}

func TestStackTopOfEmptyStackIsZero(t *testing.T) {
	if got := stackTop(nil); got != 0 {
		t.Fatalf("stackTop(nil) = %#x, want 0", got)
	}
}

func TestStackTopIsOnePastLastByte(t *testing.T) {
	s := make([]byte, 16)
	top := stackTop(s)
	if top == 0 {
		t.Fatalf("stackTop returned 0 for a non-empty slice")
	}
	if want := uintptr(unsafe.Pointer(&s[0])) + uintptr(len(s)); top != want {
		t.Fatalf("stackTop = %#x, want %#x (one past the last byte)", top, want)
	}
}
