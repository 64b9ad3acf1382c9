// Package swapfile implements the per-process swap store. The
// file-system driver owes this package nothing more than the ability to
// create a per-process file and read/write a byte range, so the store
// depends on the narrowest interface expressing that contract rather
// than on a concrete disk driver.
package swapfile

import (
	"fmt"
	"io"
)

// Backing is the byte-range read/write/truncate contract the fs driver
// provides.
type Backing interface {
	io.ReaderAt
	io.WriterAt
	Truncate(size int64) error
	Close() error
}

// K is the resident-set capacity and therefore the number of slots in
// the swap file.
const K = 16

// PageSize is the size in bytes of one slot.
const PageSize = 4096

// emptySlot marks a slot with no occupant.
const emptySlot = -1

// File is a process's swap store: a fixed K*PageSize-byte backing file
// partitioned into K page-sized slots. Slot i occupies the byte range
// [i*PageSize, (i+1)*PageSize).
type File struct {
	backing Backing
	// owner[i] is the virtual page address occupying slot i, or
	// emptySlot. Occupancy is tracked here, in memory, never in the
	// file itself.
	owner []int64
}

// New sizes backing to K slots and returns an empty store. Callers
// create the store lazily, on a process's first eviction.
func New(backing Backing) (*File, error) {
	if err := backing.Truncate(int64(K * PageSize)); err != nil {
		return nil, fmt.Errorf("swapfile: truncate: %w", err)
	}
	f := &File{backing: backing, owner: make([]int64, K)}
	for i := range f.owner {
		f.owner[i] = emptySlot
	}
	return f, nil
}

// AllocateSlot finds the first empty slot, assigns it to va, and returns
// its index. It fails if the store is full; the caller must have ensured
// capacity first.
func (f *File) AllocateSlot(va uintptr) (int, bool) {
	for i, o := range f.owner {
		if o == emptySlot {
			f.owner[i] = int64(va)
			return i, true
		}
	}
	return 0, false
}

// FreeSlot clears slot index's occupant.
func (f *File) FreeSlot(index int) {
	f.owner[index] = emptySlot
}

// SlotOf returns the slot index holding va, if any.
func (f *File) SlotOf(va uintptr) (int, bool) {
	for i, o := range f.owner {
		if o == int64(va) {
			return i, true
		}
	}
	return 0, false
}

// WriteSlot persists src (exactly PageSize bytes) at slot index's byte
// range.
func (f *File) WriteSlot(index int, src []byte) error {
	if len(src) != PageSize {
		panic("swapfile: WriteSlot: wrong page size")
	}
	_, err := f.backing.WriteAt(src, int64(index)*PageSize)
	return err
}

// ReadSlot reads slot index's contents into dst (exactly PageSize bytes).
func (f *File) ReadSlot(index int, dst []byte) error {
	if len(dst) != PageSize {
		panic("swapfile: ReadSlot: wrong page size")
	}
	_, err := f.backing.ReadAt(dst, int64(index)*PageSize)
	return err
}

// Used reports how many slots currently hold a page.
func (f *File) Used() int {
	n := 0
	for _, o := range f.owner {
		if o != emptySlot {
			n++
		}
	}
	return n
}

// Close releases the backing store.
func (f *File) Close() error {
	return f.backing.Close()
}

// Clone copies every occupied slot from f into a freshly created store
// backed by dst, giving a forked child an independent snapshot of its
// parent's swap contents.
func (f *File) Clone(dst Backing) (*File, error) {
	child, err := New(dst)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, PageSize)
	for i, o := range f.owner {
		if o == emptySlot {
			continue
		}
		if err := f.ReadSlot(i, buf); err != nil {
			return nil, fmt.Errorf("swapfile: clone: read slot %d: %w", i, err)
		}
		if err := child.WriteSlot(i, buf); err != nil {
			return nil, fmt.Errorf("swapfile: clone: write slot %d: %w", i, err)
		}
		child.owner[i] = o
	}
	return child, nil
}
