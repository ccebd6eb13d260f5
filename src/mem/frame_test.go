package mem

import (
	"runtime"
	"testing"
	"unsafe"

	"defs"
)

func testHHDM(buf []uint64) HHDM {
	return hhdmFor(buf, 0)
}

// hhdmFor builds an HHDM whose offset makes physical address `base` alias
// buf[0], so tests can exercise non-zero physical bases without actually
// owning that physical memory.
func hhdmFor(buf []uint64, base Pa_t) HHDM {
	addr := uintptr(unsafe.Pointer(&buf[0]))
	return NewHHDM(addr - uintptr(base))
}

func newTestLedger(t *testing.T, frames uint64) *Ledger {
	t.Helper()
	backing := make([]uint64, wordsNeeded(frames)+1)
	// The ledger reaches backing only through a uintptr, so keep it alive
	// for the whole test.
	t.Cleanup(func() { runtime.KeepAlive(backing) })
	h := testHHDM(backing)
	return NewLedger(h, 0, Frame(frames))
}

func TestNextFrameDistinct(t *testing.T) {
	l := newTestLedger(t, 64)

	f1, err := l.NextFrame()
	if err != defs.EOK {
		t.Fatalf("NextFrame: %v", err)
	}
	f2, err := l.NextFrame()
	if err != defs.EOK {
		t.Fatalf("NextFrame: %v", err)
	}
	if f1 == f2 {
		t.Fatalf("NextFrame returned the same frame twice: %d", f1)
	}
	if err := l.LockFrame(f1); err != defs.EALREADYALLOC {
		t.Fatalf("LockFrame on an already-allocated frame: got %v, want EALREADYALLOC", err)
	}
}

func TestLedgerConservation(t *testing.T) {
	l := newTestLedger(t, 64)

	rented := 0
	var frames []Frame
	for i := 0; i < 10; i++ {
		f, err := l.NextFrame()
		if err != defs.EOK {
			t.Fatalf("NextFrame: %v", err)
		}
		frames = append(frames, f)
		rented++
	}

	freed := 0
	for _, f := range frames[:4] {
		if err := l.FreeFrame(f); err != defs.EOK {
			t.Fatalf("FreeFrame: %v", err)
		}
		freed++
	}

	stats := l.Stats()
	wantAllocated := Size(rented-freed) * Size(PGSIZE)
	if stats.AllocatedBytes != wantAllocated {
		t.Fatalf("allocated bytes = %d, want %d", stats.AllocatedBytes, wantAllocated)
	}
}

func TestFreeFrameNotAllocated(t *testing.T) {
	l := newTestLedger(t, 16)
	if err := l.FreeFrame(3); err != defs.ENOTALLOC {
		t.Fatalf("FreeFrame on unallocated frame: got %v, want ENOTALLOC", err)
	}
}

func TestReserveFrameIsOneWay(t *testing.T) {
	l := newTestLedger(t, 16)
	l.ReserveFrame(5)
	if got := l.GetState(5); got != Reserved {
		t.Fatalf("state = %v, want Reserved", got)
	}
	if err := l.LockFrame(5); err != defs.EALREADYALLOC {
		t.Fatalf("LockFrame on a reserved frame: got %v, want EALREADYALLOC", err)
	}
}

func TestNextFramesContiguousAndAligned(t *testing.T) {
	l := newTestLedger(t, 256)

	// Burn a few frames so the contiguous run cannot start at frame 0.
	l.ReserveFrame(0)
	l.ReserveFrame(1)

	start, err := l.NextFrames(4, 2) // 4 frames aligned to 1<<2 = 4.
	if err != defs.EOK {
		t.Fatalf("NextFrames: %v", err)
	}
	if uint64(start)%4 != 0 {
		t.Fatalf("start frame %d not aligned to 4", start)
	}
	for i := 0; i < 4; i++ {
		if got := l.GetState(start + Frame(i)); got != Allocated {
			t.Fatalf("frame %d = %v, want Allocated", start+Frame(i), got)
		}
	}
}

func TestInitLedgerReservesNonConventionalRegions(t *testing.T) {
	usableBase := Pa_t(1 * MiB)
	buf := make([]uint64, wordsNeeded(uint64((128*MiB)/Size(PGSIZE)))+1)
	h := hhdmFor(buf, usableBase)

	regions := []Region{
		{Base: 0, Length: Size(usableBase), Kind: RegionReserved},
		{Base: usableBase, Length: 127 * MiB, Kind: RegionUsable},
	}

	ledger, err := InitLedger(h, regions)
	if err != defs.EOK {
		t.Fatalf("InitLedger: %v", err)
	}

	if got := ledger.GetState(0); got != Reserved {
		t.Fatalf("frame 0 (sub-1MiB legacy region) = %v, want Reserved", got)
	}

	stats := ledger.Stats()
	if stats.TotalMemory < 128*MiB {
		t.Fatalf("total memory = %d, want >= 128MiB", stats.TotalMemory)
	}
}
