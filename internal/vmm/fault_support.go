package vmm

import (
	"pagingos/internal/kerrno"
	"pagingos/internal/ptable"
)

// evictOne picks a victim via the resident set's policy, writes its
// contents to the swap store, and flips its PTE to paged-out, freeing
// its frame. Callers hold p's lock.
func (p *Proc) evictOne() kerrno.Errno {
	victim, ok := p.Resident.ChooseVictim(accessedAdapter{p})
	if !ok {
		// Every resident page is protected, or the policy is NONE.
		// Protected pages are never evicted, so this surfaces as
		// exhaustion.
		return kerrno.ENOMEM
	}
	if err := p.ensureSwap(); err != nil {
		return kerrno.ENOMEM
	}
	slot, ok := p.Swap.AllocateSlot(victim)
	if !ok {
		return kerrno.ENOMEM
	}
	pte, ok := p.Table.Lookup(victim)
	if !ok {
		panic("vmm: evictOne: resident page missing its PTE")
	}
	if err := p.Swap.WriteSlot(slot, p.frames.Bytes(pte.Frame)); err != nil {
		return kerrno.ENOMEM
	}
	p.frames.Free(pte.Frame)
	pte.SetPagedOut()
	p.ResidentSize -= ptable.PageSize
	p.PagedOutTotal++
	p.logf("pid %d: evict va %#x to slot %d\n", p.Pid, victim, slot)
	return 0
}

// SwapIn brings va's page back from the swap store: evicting a victim if
// the resident set is full, allocating a fresh frame, reading the slot
// into it, remapping va writable (preserving PMalloced), releasing the
// slot, and flushing the TLB. Callers hold p's lock.
func (p *Proc) SwapIn(va uintptr) kerrno.Errno {
	if p.Swap == nil {
		panic("vmm: swap_in: page marked paged-out but no swap file exists")
	}
	index, ok := p.Swap.SlotOf(va)
	if !ok {
		panic("vmm: swap_in: no swap slot for paged-out page")
	}

	if p.ResidentSize == K*ptable.PageSize {
		if err := p.evictOne(); err != 0 {
			return err
		}
	}

	fr, ok := p.frames.Alloc()
	if !ok {
		// The shared pool is dry even though this process is under
		// its residency cap: evict one of its own pages to free a
		// frame.
		if err := p.evictOne(); err != 0 {
			return kerrno.ENOMEM
		}
		fr, ok = p.frames.Alloc()
		if !ok {
			// An eviction just freed a frame; failing to get one
			// back means the accounting is broken.
			panic("vmm: swap_in: out of frames after eviction")
		}
	}
	if err := p.Swap.ReadSlot(index, p.frames.Bytes(fr)); err != nil {
		p.frames.Free(fr)
		return kerrno.EFAULT
	}

	pte, _ := p.Table.Walk(va, true)
	wasPMalloced := pte.Has(ptable.PMalloced)
	perms := ptable.Writable | ptable.User
	if wasPMalloced {
		perms |= ptable.PMalloced
	}
	pte.SetResident(fr, perms)

	p.Resident.Insert(va)
	p.Swap.FreeSlot(index)
	p.ResidentSize += ptable.PageSize
	p.TLBFlush()
	p.FaultCount++
	p.logf("pid %d: swap in va %#x from slot %d\n", p.Pid, va, index)
	return 0
}
