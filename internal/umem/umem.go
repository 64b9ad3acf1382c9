// Package umem copies bytes between a process's virtual address space
// and a plain []byte, the way the syscall boundary moves user data: a
// touched page that is paged out is faulted in first, and a write to a
// protected page kills the process.
package umem

import (
	"pagingos/internal/fault"
	"pagingos/internal/kerrno"
	"pagingos/internal/ptable"
	"pagingos/internal/vmm"
)

// ReadAt copies len(dst) bytes from proc's virtual memory starting at va
// into dst, swapping in paged-out pages as needed.
func ReadAt(proc *vmm.Proc, va uintptr, dst []byte) kerrno.Errno {
	return walkCopy(proc, va, dst, fault.Read, false)
}

// WriteAt copies len(src) bytes from src into proc's virtual memory at
// va. A write to a non-writable page takes the same fault path a user
// store instruction would: if the page is a protected pmalloc page the
// process is killed and EFAULT is returned.
func WriteAt(proc *vmm.Proc, va uintptr, src []byte) kerrno.Errno {
	return walkCopy(proc, va, src, fault.Write, true)
}

func walkCopy(proc *vmm.Proc, va uintptr, buf []byte, access fault.Access, write bool) kerrno.Errno {
	remaining := buf
	addr := va
	for len(remaining) > 0 {
		page := ptable.PageDown(addr)
		proc.Lock()
		pte, ok := proc.Table.Lookup(page)
		needsFault := !ok || pte.Has(ptable.PagedOut) || (write && !pte.Has(ptable.Writable))
		proc.Unlock()

		if needsFault {
			outcome, errno := fault.Handle(proc, addr, access)
			if outcome == fault.Killed {
				proc.Kill()
				return errno
			}
			proc.Lock()
			pte, ok = proc.Table.Lookup(page)
			proc.Unlock()
			if !ok {
				return kerrno.EFAULT
			}
		}

		off := int(addr - page)
		n := ptable.PageSize - off
		if n > len(remaining) {
			n = len(remaining)
		}

		proc.Lock()
		if write {
			pte.Mark(ptable.Accessed | ptable.Dirty)
			copy(proc.Frames().Bytes(pte.Frame)[off:], remaining[:n])
		} else {
			pte.Mark(ptable.Accessed)
			copy(remaining[:n], proc.Frames().Bytes(pte.Frame)[off:])
		}
		proc.Unlock()

		remaining = remaining[n:]
		addr += uintptr(n)
	}
	return 0
}
