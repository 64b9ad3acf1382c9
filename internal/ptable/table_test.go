package ptable

import "testing"

func TestWalkNoAllocateReturnsNil(t *testing.T) {
	tbl := NewTable()
	if _, ok := tbl.Walk(0x4000, false); ok {
		t.Fatalf("expected no entry without allocate")
	}
}

func TestWalkAllocatesOnce(t *testing.T) {
	tbl := NewTable()
	e1, ok := tbl.Walk(0x4000, true)
	if !ok {
		t.Fatalf("expected allocation to succeed")
	}
	e2, ok := tbl.Walk(0x4000, false)
	if !ok || e1 != e2 {
		t.Fatalf("expected the same entry on re-lookup")
	}
}

func TestRemoveClearsEntry(t *testing.T) {
	tbl := NewTable()
	tbl.Walk(0x4000, true)
	tbl.Remove(0x4000)
	if _, ok := tbl.Walk(0x4000, false); ok {
		t.Fatalf("expected entry removed")
	}
}

func TestPageDownUp(t *testing.T) {
	if PageDown(0x4fff) != 0x4000 {
		t.Fatalf("PageDown wrong: %#x", PageDown(0x4fff))
	}
	if PageUp(0x4001) != 0x5000 {
		t.Fatalf("PageUp wrong: %#x", PageUp(0x4001))
	}
	if PageUp(0x4000) != 0x4000 {
		t.Fatalf("PageUp of aligned addr should be itself: %#x", PageUp(0x4000))
	}
}
