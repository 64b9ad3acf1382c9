package palloc_test

import (
	"testing"

	"pagingos/internal/kerrno"
	"pagingos/internal/palloc"
	"pagingos/internal/ptable"
)

// fakeKernel stands in for vmm.Proc in these tests: it just tracks how
// far Grow has extended the arena and records protection toggles, since
// palloc.Arena only needs the GrowFunc/Protector contracts, not a real
// VM manager (package palloc has no dependency on package vmm).
type fakeKernel struct {
	cap       int
	writable  map[uintptr]bool
	overCapAt int // Grow fails once the arena would exceed this many bytes; 0 means unlimited
}

func newFakeKernel(overCapAt int) *fakeKernel {
	return &fakeKernel{writable: make(map[uintptr]bool), overCapAt: overCapAt}
}

func (k *fakeKernel) Grow(n int) kerrno.Errno {
	if k.overCapAt != 0 && k.cap+n > k.overCapAt {
		return kerrno.EOVERCAP
	}
	k.cap += n
	return 0
}

func (k *fakeKernel) MarkFlags(va uintptr, mask ptable.Flags) kerrno.Errno {
	if mask&ptable.Writable != 0 {
		k.writable[va] = true
	}
	return 0
}

func (k *fakeKernel) ClearFlags(va uintptr, mask ptable.Flags) kerrno.Errno {
	if mask&ptable.Writable != 0 {
		k.writable[va] = false
	}
	return 0
}

const base = ptable.PageSize

func TestPmallocIsPageAligned(t *testing.T) {
	k := newFakeKernel(0)
	a := palloc.NewArena(base, k.Grow, k)

	p, ok := a.Pmalloc()
	if !ok {
		t.Fatalf("Pmalloc failed")
	}
	if uintptr(p)%ptable.PageSize != 0 {
		t.Fatalf("pmalloc result %#x is not page-aligned", p)
	}

	if ok := a.Pfree(p); ok != 1 {
		t.Fatalf("Pfree = %d, want 1", ok)
	}

	p2, ok := a.Pmalloc()
	if !ok {
		t.Fatalf("second Pmalloc failed")
	}
	if uintptr(p2)%ptable.PageSize != 0 {
		t.Fatalf("re-pmalloc result %#x is not page-aligned", p2)
	}
}

func TestProtectPageRejectsNonPmallocPointer(t *testing.T) {
	k := newFakeKernel(0)
	a := palloc.NewArena(base, k.Grow, k)

	p, ok := a.Malloc(64)
	if !ok {
		t.Fatalf("Malloc failed")
	}
	if got := a.ProtectPage(p); got != -1 {
		t.Fatalf("ProtectPage on a plain malloc block = %d, want -1", got)
	}
	if got := a.Pfree(p); got != -1 {
		t.Fatalf("Pfree on a plain malloc block = %d, want -1", got)
	}
}

func TestProtectPageIsIdempotent(t *testing.T) {
	k := newFakeKernel(0)
	a := palloc.NewArena(base, k.Grow, k)

	p, ok := a.Pmalloc()
	if !ok {
		t.Fatalf("Pmalloc failed")
	}
	if got := a.ProtectPage(p); got != 1 {
		t.Fatalf("ProtectPage = %d, want 1", got)
	}
	if got := a.ProtectPage(p); got != 1 {
		t.Fatalf("second ProtectPage = %d, want 1", got)
	}
	if k.writable[uintptr(p)] {
		t.Fatalf("expected page to remain non-writable after repeated protect_page")
	}
}

func TestPfreeRoundTripLeavesArenaUnchanged(t *testing.T) {
	k := newFakeKernel(0)
	a := palloc.NewArena(base, k.Grow, k)

	p, ok := a.Pmalloc()
	if !ok {
		t.Fatalf("Pmalloc failed")
	}
	capAfterFirst := k.cap
	if got := a.Pfree(p); got != 1 {
		t.Fatalf("Pfree = %d, want 1", got)
	}

	p2, ok := a.Pmalloc()
	if !ok {
		t.Fatalf("re-pmalloc failed")
	}
	if p2 != p {
		t.Fatalf("re-pmalloc returned %#x, want the freed block %#x back (first fit)", p2, p)
	}
	if k.cap != capAfterFirst {
		t.Fatalf("arena grew again on a round-trip pmalloc/pfree/pmalloc: cap=%d, want %d", k.cap, capAfterFirst)
	}
}

func TestMallocSplitsAndFreeCoalesces(t *testing.T) {
	k := newFakeKernel(0)
	a := palloc.NewArena(base, k.Grow, k)

	p1, ok := a.Malloc(64)
	if !ok {
		t.Fatalf("Malloc 1 failed")
	}
	p2, ok := a.Malloc(64)
	if !ok {
		t.Fatalf("Malloc 2 failed")
	}
	if p1 == p2 {
		t.Fatalf("two live allocations returned the same pointer")
	}
	if err := a.Free(p1); err != 0 {
		t.Fatalf("Free p1: %v", err)
	}
	if err := a.Free(p2); err != 0 {
		t.Fatalf("Free p2: %v", err)
	}

	// After freeing both, a single allocation big enough to span what
	// used to be p1+p2 should succeed without growing the arena again,
	// proving free() coalesced the two blocks back together.
	capBefore := k.cap
	if _, ok := a.Malloc(120); !ok {
		t.Fatalf("Malloc after coalesce failed")
	}
	if k.cap != capBefore {
		t.Fatalf("arena grew even though the coalesced free space should have fit 120 bytes")
	}
}

func TestBigMallocDoesNotPanic(t *testing.T) {
	k := newFakeKernel(0)
	a := palloc.NewArena(base, k.Grow, k)

	p, ok := a.Malloc(21 * ptable.PageSize)
	if !ok {
		t.Fatalf("Malloc(21 pages) failed")
	}
	if err := a.Free(p); err != 0 {
		t.Fatalf("Free: %v", err)
	}
}

func TestMallocFailsWhenKernelRefusesGrowth(t *testing.T) {
	k := newFakeKernel(minGrowCeiling())
	a := palloc.NewArena(base, k.Grow, k)

	if _, ok := a.Malloc(33 * ptable.PageSize); ok {
		t.Fatalf("expected Malloc to fail once the kernel refuses to grow further")
	}
}

func minGrowCeiling() int {
	return 4096 // small enough that a 33-page request always overflows it
}
