package scall

import (
	"testing"
	"unsafe"

	"defs"
	"mem"
	"vm"
)

// stubAddressSpace points currentAddressSpaceFn at a fixed AddressSpace,
// so Dispatch/validateUserSlice can run without a real per-CPU scheduler
// or GS-base MSR behind it.
func stubAddressSpace(t *testing.T, as *vm.AddressSpace) {
	t.Helper()
	orig := currentAddressSpaceFn
	currentAddressSpaceFn = func() *vm.AddressSpace { return as }
	t.Cleanup(func() { currentAddressSpaceFn = orig })
}

func newTestAddressSpace(t *testing.T, frames uint64) *vm.AddressSpace {
	t.Helper()
	backing := make([]uint64, frames*uint64(mem.PGSIZE)/8)
	h := mem.NewHHDM(uintptr(unsafe.Pointer(&backing[0])))
	ledger, err := mem.InitLedger(h, []mem.Region{
		{Base: 0, Length: mem.Size(frames) * mem.Size(mem.PGSIZE), Kind: mem.RegionUsable},
	})
	if err != defs.EOK {
		t.Fatalf("InitLedger: %v", err)
	}
	if _, err := vm.InitKernelSpace(ledger, h); err != defs.EOK {
		t.Fatalf("InitKernelSpace: %v", err)
	}
	as, err := vm.NewAddressSpace(ledger, h)
	if err != defs.EOK {
		t.Fatalf("NewAddressSpace: %v", err)
	}
	return as
}

func TestDispatchUnknownVectorReturnsEINVALVECTOR(t *testing.T) {
	stubAddressSpace(t, nil)
	status, _ := Dispatch(defs.Vector(0xdead), 0, 0, 0, 0, 0, 0)
	if status != defs.EINVALVECTOR {
		t.Fatalf("status = %v, want EINVALVECTOR", status)
	}
}

func TestDispatchKlogSucceedsOnMappedUserPointer(t *testing.T) {
	as := newTestAddressSpace(t, 4096)
	stubAddressSpace(t, as)

	page, _ := vm.PageFromAddress(0x1000)
	if err := as.AutoMap(page, vm.MapAttrs{Writable: true, User: true}); err != defs.EOK {
		t.Fatalf("AutoMap: %v", err)
	}
	frame, _ := as.GetMappedTo(page)
	copy(as.HHDM().Bytes(frame.Address(), 5), []byte("hello"))

	status, _ := Dispatch(defs.KlogInfo, uint64(page.Address()), 5, 0, 0, 0, 0)
	if status != defs.EOK {
		t.Fatalf("status = %v, want EOK", status)
	}
}

func TestDispatchRejectsKernelHalfPointer(t *testing.T) {
	as := newTestAddressSpace(t, 4096)
	stubAddressSpace(t, as)

	status, _ := Dispatch(defs.KlogInfo, 0xffff800000000000, 5, 0, 0, 0, 0)
	if status != defs.EBADPTR {
		t.Fatalf("status = %v, want EBADPTR", status)
	}
}

func TestDispatchRejectsUnmappedUserPointer(t *testing.T) {
	as := newTestAddressSpace(t, 4096)
	stubAddressSpace(t, as)

	status, _ := Dispatch(defs.KlogInfo, 0x2000, 5, 0, 0, 0, 0)
	if status != defs.EBADPTR {
		t.Fatalf("status = %v, want EBADPTR", status)
	}
}

func TestDispatchRecoversHandlerPanic(t *testing.T) {
	stubAddressSpace(t, nil)
	orig := currentAddressSpaceFn
	currentAddressSpaceFn = func() *vm.AddressSpace { panic("boom") }
	t.Cleanup(func() { currentAddressSpaceFn = orig })

	status, _ := Dispatch(defs.KlogInfo, 0x1000, 5, 0, 0, 0, 0)
	if status != defs.EINVALARG {
		t.Fatalf("status = %v, want EINVALARG", status)
	}
}

func TestValidateUserSliceRejectsNoAddressSpace(t *testing.T) {
	stubAddressSpace(t, nil)
	_, err := validateUserSlice(0x1000, 5)
	if err != defs.EBADPTR {
		t.Fatalf("err = %v, want EBADPTR", err)
	}
}
