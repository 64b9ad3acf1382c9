package vmm

import (
	"pagingos/internal/kerrno"
	"pagingos/internal/ptable"
	"pagingos/internal/resident"
)

// GrowProc grows or shrinks the process image by delta bytes. Growth
// past MaxTotalPages fails with EOVERCAP and leaves the image untouched;
// shrinking below zero clamps at zero.
func (p *Proc) GrowProc(delta int) kerrno.Errno {
	p.mu.Lock()
	defer p.mu.Unlock()

	if delta == 0 {
		return 0
	}
	if delta > 0 {
		return p.growUp(delta)
	}
	p.shrinkDown(-delta)
	return 0
}

func (p *Proc) growUp(delta int) kerrno.Errno {
	oldSize := p.TotalSize
	newSize := oldSize + uintptr(delta)
	newPages := ptable.PageUp(newSize) / ptable.PageSize
	if newPages > MaxTotalPages {
		return kerrno.EOVERCAP
	}

	start := ptable.PageUp(oldSize)
	allocated := []uintptr{}
	for va := start; va < ptable.PageUp(newSize); va += ptable.PageSize {
		if err := p.mapFreshPage(va); err != 0 {
			// Unwind everything just mapped, leaving the process
			// at its original size.
			for _, v := range allocated {
				p.unmapPage(v)
			}
			return err
		}
		allocated = append(allocated, va)
	}
	p.TotalSize = newSize
	return 0
}

// mapFreshPage evicts a victim if the resident set is full, then
// allocates, zeroes, and maps a brand-new writable page at va. Under
// NONE paging is disabled and every page stays resident: the residency
// cap does not apply, and growUp's MaxTotalPages check is the sole
// limit.
func (p *Proc) mapFreshPage(va uintptr) kerrno.Errno {
	if p.Resident.Policy() != resident.NONE && p.ResidentSize >= K*ptable.PageSize {
		if err := p.evictOne(); err != 0 {
			return err
		}
	}
	fr, ok := p.frames.Alloc()
	if !ok {
		// The per-process resident cap hasn't been hit, but the
		// shared physical pool has: evict one of this process's own
		// pages to make room.
		if err := p.evictOne(); err != 0 {
			return kerrno.ENOMEM
		}
		fr, ok = p.frames.Alloc()
		if !ok {
			return kerrno.ENOMEM
		}
	}
	pte, _ := p.Table.Walk(va, true)
	pte.SetResident(fr, ptable.Writable|ptable.User)
	p.Resident.Insert(va)
	p.ResidentSize += ptable.PageSize
	return 0
}

// unmapPage frees va's frame (or swap slot) and clears its entry.
func (p *Proc) unmapPage(va uintptr) {
	pte, ok := p.Table.Lookup(va)
	if !ok {
		return
	}
	switch {
	case pte.Has(ptable.Present):
		p.frames.Free(pte.Frame)
		p.Resident.Remove(va)
		p.ResidentSize -= ptable.PageSize
		if pte.Has(ptable.PMalloced) && !pte.Has(ptable.Writable) {
			p.ProtectedCount = decrementFloor(p.ProtectedCount)
		}
	case pte.Has(ptable.PagedOut):
		if idx, ok := p.Swap.SlotOf(va); ok {
			p.Swap.FreeSlot(idx)
		}
	}
	pte.Clear()
	p.Table.Remove(va)
}

func decrementFloor(n int) int {
	if n == 0 {
		return 0
	}
	return n - 1
}

// shrinkDown walks from the rounded-up new size to the rounded-up old
// size, freeing every page in that range.
func (p *Proc) shrinkDown(delta int) {
	oldSize := p.TotalSize
	if uintptr(delta) > oldSize {
		delta = int(oldSize)
	}
	newSize := oldSize - uintptr(delta)
	for va := ptable.PageUp(newSize); va < ptable.PageUp(oldSize); va += ptable.PageSize {
		p.unmapPage(va)
	}
	p.TotalSize = newSize
}
