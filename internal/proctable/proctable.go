// Package proctable models the few process-table fields the VM core
// reads (pid, name, lifecycle state) and nothing more. It does not
// schedule, sleep, or wake anything; the scheduler proper is an external
// collaborator.
package proctable

import (
	"sync"

	"pagingos/internal/vmm"
)

// State is a process's lifecycle state. A slot moves Unused -> Embryo
// when its VM record is created and back to Unused when the record is
// destroyed.
type State int

const (
	Unused State = iota
	Embryo
	Sleeping
	Runnable
	Running
	Zombie
)

// String renders a state as the short abbreviation the console dump
// prints.
func (s State) String() string {
	switch s {
	case Unused:
		return "unused"
	case Embryo:
		return "embryo"
	case Sleeping:
		return "sleep"
	case Runnable:
		return "runble"
	case Running:
		return "run"
	case Zombie:
		return "zombie"
	default:
		return "???"
	}
}

// Entry is one live process-table slot.
type Entry struct {
	Pid   int
	Name  string
	State State
	VM    *vmm.Proc
}

// Table is a minimal process table: pid allocation plus a live-entry
// list, enough to drive fork/exit bookkeeping and the console dump.
type Table struct {
	mu      sync.Mutex
	entries []*Entry
	nextPid int
}

// NewTable returns an empty process table. Pids start at 1.
func NewTable() *Table {
	return &Table{nextPid: 1}
}

// Alloc allocates a new pid and installs an Embryo entry wrapping vm.
func (t *Table) Alloc(name string, vm *vmm.Proc) *Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	e := &Entry{Pid: t.nextPid, Name: name, State: Embryo, VM: vm}
	t.nextPid++
	t.entries = append(t.entries, e)
	return e
}

// SetState transitions e's lifecycle state (Embryo -> Runnable after
// fork, Running -> Zombie on exit).
func (t *Table) SetState(e *Entry, s State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e.State = s
}

// Remove deletes e from the table, returning its slot to Unused.
func (t *Table) Remove(e *Entry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, x := range t.entries {
		if x == e {
			t.entries = append(t.entries[:i], t.entries[i+1:]...)
			return
		}
	}
}

// Live returns a snapshot of the currently live entries, in pid order.
func (t *Table) Live() []*Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Entry, len(t.entries))
	copy(out, t.entries)
	return out
}
