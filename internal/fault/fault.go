// Package fault implements the page-fault decision tree: given a
// faulting virtual address, decide whether to swap a page in, synthesize
// a general-protection violation, or panic on an impossible PTE state.
package fault

import (
	"pagingos/internal/kerrno"
	"pagingos/internal/ptable"
	"pagingos/internal/vmm"
)

// Access describes the kind of memory access that faulted.
type Access int

const (
	Read Access = iota
	Write
)

// Outcome reports how a fault was resolved, for callers (the trap glue)
// that must decide whether to kill the process.
type Outcome int

const (
	Resumed Outcome = iota // the faulting instruction may be retried
	Killed                 // a general-protection violation; process must die
)

// Handle resolves a page fault for proc at address fa:
//
//	no PTE, or neither Present nor PagedOut set: GP-fault, kill
//	PagedOut set: swap the page in
//	Present set and write attempt to a non-writable page:
//	    PMalloced set: GP-fault, kill
//	    otherwise: kernel bug (panic)
func Handle(proc *vmm.Proc, fa uintptr, access Access) (Outcome, kerrno.Errno) {
	proc.Lock()
	defer proc.Unlock()

	va := ptable.PageDown(fa)
	pte, ok := proc.Table.Lookup(va)
	if !ok || !pte.Any(ptable.Present|ptable.PagedOut) {
		return Killed, kerrno.EFAULT
	}

	if pte.Has(ptable.PagedOut) {
		if err := proc.SwapIn(va); err != 0 {
			return Killed, err
		}
		return Resumed, 0
	}

	// Present now, since exactly one of Present/PagedOut holds for any
	// mapped page.
	if access == Write && !pte.Has(ptable.Writable) {
		if pte.Has(ptable.PMalloced) {
			return Killed, kerrno.EFAULT
		}
		// No COW and no shared mappings here, so a non-pmalloc user
		// page is never legitimately mapped read-only.
		panic("fault: write fault on non-writable, non-pmalloc page")
	}

	return Resumed, 0
}
