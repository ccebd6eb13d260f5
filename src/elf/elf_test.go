package elf

import (
	stdelf "debug/elf"
	"testing"

	"mem"
)

func TestSegmentAttrsExecutableIsReadExecuteNoWrite(t *testing.T) {
	attrs := segmentAttrs(stdelf.PF_R | stdelf.PF_X)
	if attrs.Writable {
		t.Fatalf("executable segment marked writable")
	}
	if attrs.NoExecute {
		t.Fatalf("executable segment marked no-execute")
	}
	if !attrs.User {
		t.Fatalf("segment not marked user-accessible")
	}
}

func TestSegmentAttrsWritableIsReadWriteNoExecute(t *testing.T) {
	attrs := segmentAttrs(stdelf.PF_R | stdelf.PF_W)
	if !attrs.Writable {
		t.Fatalf("writable segment not marked writable")
	}
	if !attrs.NoExecute {
		t.Fatalf("data segment not marked no-execute")
	}
}

func TestSegmentAttrsReadOnlyIsNoWriteNoExecute(t *testing.T) {
	attrs := segmentAttrs(stdelf.PF_R)
	if attrs.Writable || !attrs.NoExecute {
		t.Fatalf("read-only segment got %+v", attrs)
	}
}

func TestOverlapIntersectsRanges(t *testing.T) {
	s, e := overlap(0x1000, 0x2000, 0x1800, 0x3000)
	if s != 0x1800 || e != 0x2000 {
		t.Fatalf("overlap = [%#x,%#x), want [0x1800,0x2000)", s, e)
	}
}

func TestOverlapDisjointRangesIsEmpty(t *testing.T) {
	s, e := overlap(0x1000, 0x2000, 0x3000, 0x4000)
	if s != e {
		t.Fatalf("overlap = [%#x,%#x), want empty", s, e)
	}
}

func TestCopyFileBytesCopiesOverlapOnly(t *testing.T) {
	image := []byte("0123456789abcdef")
	prog := &stdelf.Prog{ProgHeader: stdelf.ProgHeader{
		Off:    4,
		Vaddr:  0x1000,
		Filesz: 8,
	}}

	dst := make([]byte, 16)
	copyFileBytes(dst, 0x1000, prog, image)

	if string(dst[:8]) != "456789ab" {
		t.Fatalf("dst[:8] = %q, want %q", dst[:8], "456789ab")
	}
	for _, b := range dst[8:] {
		if b != 0 {
			t.Fatalf("dst past p_filesz not left zero: %v", dst[8:])
		}
	}
}

func TestCopyFileBytesPageBeforeSegmentIsUntouched(t *testing.T) {
	image := []byte("hello world")
	prog := &stdelf.Prog{ProgHeader: stdelf.ProgHeader{
		Off:    0,
		Vaddr:  0x2000,
		Filesz: uint64(len(image)),
	}}

	dst := make([]byte, 16)
	copyFileBytes(dst, 0x1000, prog, image)

	for _, b := range dst {
		if b != 0 {
			t.Fatalf("page before segment start was written: %v", dst)
		}
	}
}

func TestLoadRejectsNonELFImage(t *testing.T) {
	if _, err := Load(nil, mem.HHDM{}, []byte("not an elf")); err == 0 {
		t.Fatalf("expected EBADELF for a non-ELF image")
	}
}
