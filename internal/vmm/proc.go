// Package vmm implements the top-level virtual-memory manager: growing
// and shrinking a process image, fork, teardown, eviction and swap-in,
// and the page-protection toggles the flag syscalls expose.
package vmm

import (
	"fmt"
	"io"
	"sync"

	"pagingos/internal/frame"
	"pagingos/internal/ptable"
	"pagingos/internal/resident"
	"pagingos/internal/swapfile"
)

// K is the resident-set capacity per process, in pages.
const K = 16

// MaxTotalPages is the ceiling on a process's total mapped pages.
const MaxTotalPages = 32

// SwapBackingFactory creates a fresh Backing for a new swap file, letting
// callers choose disk-backed (swapfile.CreateTemp) or in-memory storage.
type SwapBackingFactory func(procName string) (swapfile.Backing, error)

// Proc is one process's VM record. Only one CPU ever mutates a given
// process's VM state at a time (its own kernel context, or its parent
// during fork); the mutex documents and enforces that invariant.
type Proc struct {
	mu sync.Mutex

	Name   string
	Pid    int
	Killed bool

	TotalSize    uintptr
	ResidentSize uintptr

	Table    *ptable.Table
	Resident *resident.Set
	Swap     *swapfile.File

	ProtectedCount int
	FaultCount     int
	PagedOutTotal  int

	frames      *frame.Pool
	swapFactory SwapBackingFactory
	console     io.Writer
}

// NewProc creates an empty process VM record; the process table creates
// one when a slot leaves the unused state.
func NewProc(name string, pid int, policy resident.Policy, frames *frame.Pool, swapFactory SwapBackingFactory) *Proc {
	return &Proc{
		Name:        name,
		Pid:         pid,
		Table:       ptable.NewTable(),
		Resident:    resident.NewSet(policy),
		frames:      frames,
		swapFactory: swapFactory,
	}
}

// SetConsole directs eviction/swap-in trace output to w. With no console
// set the traces are dropped.
func (p *Proc) SetConsole(w io.Writer) {
	p.console = w
}

func (p *Proc) logf(format string, args ...interface{}) {
	if p.console != nil {
		fmt.Fprintf(p.console, format, args...)
	}
}

// ensureSwap lazily creates the swap file on the process's first
// eviction.
func (p *Proc) ensureSwap() error {
	if p.Swap != nil {
		return nil
	}
	backing, err := p.swapFactory(p.Name)
	if err != nil {
		return fmt.Errorf("vmm: create swap file: %w", err)
	}
	sf, err := swapfile.New(backing)
	if err != nil {
		return err
	}
	p.Swap = sf
	return nil
}

// Lock/Unlock expose the VM-record mutex to the fault package, which
// must hold it across the whole lookup/swap-in sequence.
func (p *Proc) Lock()   { p.mu.Lock() }
func (p *Proc) Unlock() { p.mu.Unlock() }

// accessedAdapter lets package resident inspect and clear the Accessed
// and PMalloced bits of this process's PTEs without depending on package
// ptable's concrete layout.
type accessedAdapter struct{ p *Proc }

func (a accessedAdapter) Accessed(va uintptr) bool {
	pte, ok := a.p.Table.Lookup(va)
	return ok && pte.Has(ptable.Accessed)
}

func (a accessedAdapter) ClearAccessed(va uintptr) {
	if pte, ok := a.p.Table.Lookup(va); ok {
		pte.ClearFlags(ptable.Accessed)
	}
}

func (a accessedAdapter) Protected(va uintptr) bool {
	pte, ok := a.p.Table.Lookup(va)
	return ok && pte.Has(ptable.PMalloced)
}

// Frames returns the physical frame pool backing this process.
func (p *Proc) Frames() *frame.Pool { return p.frames }

// TLBFlush models reloading the page-directory base register after a PTE
// mutation that could affect the running CPU. There is no real TLB in
// this simulation; the hook marks every call site where the hardware
// flush belongs.
func (p *Proc) TLBFlush() {}

// Kill marks the process killed; the next return to user space is
// responsible for tearing it down. In-flight disk I/O is never
// interrupted.
func (p *Proc) Kill() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Killed = true
}

// IsKilled reports whether Kill has been called.
func (p *Proc) IsKilled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Killed
}
