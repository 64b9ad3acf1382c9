package vmm

import (
	"pagingos/internal/kerrno"
	"pagingos/internal/ptable"
	"pagingos/internal/resident"
)

// Fork constructs child as an independent snapshot of p at the current
// instant: resident pages are copied byte for byte into fresh frames,
// paged-out pages are carried across as metadata only (their bytes
// arrive with the swap-file clone), and the resident queue, slot table,
// protection count, and total size follow. The child's fault counters
// start at zero.
func (p *Proc) Fork(child *Proc) kerrno.Errno {
	p.mu.Lock()
	defer p.mu.Unlock()
	child.mu.Lock()
	defer child.mu.Unlock()

	// Set before copying so a Teardown after a failed fork walks, and
	// frees, every page already copied into the child.
	child.TotalSize = p.TotalSize
	for va := uintptr(0); va < ptable.PageUp(p.TotalSize); va += ptable.PageSize {
		pte, ok := p.Table.Lookup(va)
		if !ok {
			continue
		}
		switch {
		case pte.Has(ptable.PagedOut):
			cpte, _ := child.Table.Walk(va, true)
			cpte.Flags = ptable.PagedOut
			if pte.Has(ptable.PMalloced) {
				cpte.Flags |= ptable.PMalloced
			}
		case pte.Has(ptable.Present):
			fr, ok := child.frames.Alloc()
			if !ok {
				return kerrno.ENOMEM
			}
			copy(child.frames.Bytes(fr), p.frames.Bytes(pte.Frame))
			cpte, _ := child.Table.Walk(va, true)
			cpte.SetResident(fr, pte.Flags&^(ptable.PagedOut))
		}
	}

	child.Resident = resident.NewSetFrom(p.Resident.Policy(), p.Resident.Pages())
	child.ResidentSize = p.ResidentSize
	child.ProtectedCount = p.ProtectedCount
	child.FaultCount = 0
	child.PagedOutTotal = 0

	if p.Swap != nil {
		backing, err := child.swapFactory(child.Name)
		if err != nil {
			return kerrno.ENOMEM
		}
		sf, err := p.Swap.Clone(backing)
		if err != nil {
			return kerrno.ENOMEM
		}
		child.Swap = sf
	}

	return 0
}
