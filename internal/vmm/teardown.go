package vmm

import "pagingos/internal/ptable"

// Teardown frees every frame mapped in [0, TotalSize), destroys the swap
// file, and resets the page table, resident set, sizes, and protected
// count. Killed, FaultCount, and PagedOutTotal are left as they were, so
// Killed can still be read after teardown. The flat lazily
// populated Table has no separately allocated intermediate tables to
// release.
func (p *Proc) Teardown() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for va := uintptr(0); va < ptable.PageUp(p.TotalSize); va += ptable.PageSize {
		pte, ok := p.Table.Lookup(va)
		if !ok {
			continue
		}
		if pte.Has(ptable.Present) {
			p.frames.Free(pte.Frame)
		}
		pte.Clear()
	}
	p.Table = ptable.NewTable()
	p.Resident = nil
	p.TotalSize = 0
	p.ResidentSize = 0
	p.ProtectedCount = 0

	if p.Swap != nil {
		p.Swap.Close()
		p.Swap = nil
	}
}
