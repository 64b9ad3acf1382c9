package vmm

import (
	"pagingos/internal/kerrno"
	"pagingos/internal/ptable"
)

// MarkFlags sets mask's bits on va's PTE and flushes the TLB. Re-enabling
// Writable on a page that had it off drops the protected count.
func (p *Proc) MarkFlags(va uintptr, mask ptable.Flags) kerrno.Errno {
	p.mu.Lock()
	defer p.mu.Unlock()
	pte, ok := p.Table.Lookup(va)
	if !ok {
		return kerrno.EFAULT
	}
	wasWritable := pte.Has(ptable.Writable)
	pte.Mark(mask)
	if mask&ptable.Writable != 0 && !wasWritable {
		p.ProtectedCount = decrementFloor(p.ProtectedCount)
	}
	p.TLBFlush()
	return 0
}

// ClearFlags clears mask's bits on va's PTE and flushes the TLB,
// adjusting the protected count symmetrically with MarkFlags.
func (p *Proc) ClearFlags(va uintptr, mask ptable.Flags) kerrno.Errno {
	p.mu.Lock()
	defer p.mu.Unlock()
	pte, ok := p.Table.Lookup(va)
	if !ok {
		return kerrno.EFAULT
	}
	wasWritable := pte.Has(ptable.Writable)
	pte.ClearFlags(mask)
	if mask&ptable.Writable != 0 && wasWritable {
		p.ProtectedCount++
	}
	p.TLBFlush()
	return 0
}

// CheckFlags returns the masked bits of va's PTE without mutating
// anything.
func (p *Proc) CheckFlags(va uintptr, mask ptable.Flags) (ptable.Flags, kerrno.Errno) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pte, ok := p.Table.Lookup(va)
	if !ok {
		return 0, kerrno.EFAULT
	}
	return pte.Check(mask), 0
}
