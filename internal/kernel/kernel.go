// Package kernel composes the system-wide singletons, the physical
// frame pool and the process table, into one boot-time object that owns
// them and hands them to every process as explicit dependencies. It is
// the seam a console or test harness drives: spawn, fork, exit, wait,
// kill, and the process dump.
package kernel

import (
	"fmt"
	"io"

	"pagingos/internal/diag"
	"pagingos/internal/frame"
	"pagingos/internal/kerrno"
	"pagingos/internal/proctable"
	"pagingos/internal/resident"
	"pagingos/internal/swapfile"
	"pagingos/internal/sysvm"
	"pagingos/internal/vmm"

	"github.com/google/pprof/profile"
)

// Config carries the boot-time switches.
type Config struct {
	// Policy selects the replacement policy for every process.
	Policy resident.Policy
	// Frames sizes the physical frame pool.
	Frames int
	// SwapDir is the directory swap files are created in; empty keeps
	// them in memory.
	SwapDir string
	// Console receives boot and paging traces; nil discards them.
	Console io.Writer
}

// Kernel owns the boot-time singletons.
type Kernel struct {
	cfg     Config
	frames  *frame.Pool
	procs   *proctable.Table
	console io.Writer
}

// Boot initializes the frame pool and process table.
func Boot(cfg Config) *Kernel {
	k := &Kernel{
		cfg:     cfg,
		frames:  frame.NewPool(cfg.Frames),
		procs:   proctable.NewTable(),
		console: cfg.Console,
	}
	k.logf("boot: %d frames, policy %v\n", cfg.Frames, cfg.Policy)
	return k
}

func (k *Kernel) logf(format string, args ...interface{}) {
	if k.console != nil {
		fmt.Fprintf(k.console, format, args...)
	}
}

func (k *Kernel) backingFactory(name string) (swapfile.Backing, error) {
	if k.cfg.SwapDir == "" {
		return swapfile.NewMemBacking(), nil
	}
	return swapfile.CreateTemp(k.cfg.SwapDir, ".swap."+name+".")
}

func (k *Kernel) newVM(name string) *vmm.Proc {
	vm := vmm.NewProc(name, 0, k.cfg.Policy, k.frames, k.backingFactory)
	vm.SetConsole(k.console)
	return vm
}

// Spawn creates a fresh runnable process with an empty address space.
func (k *Kernel) Spawn(name string) *proctable.Entry {
	vm := k.newVM(name)
	e := k.procs.Alloc(name, vm)
	vm.Pid = e.Pid
	k.procs.SetState(e, proctable.Runnable)
	return e
}

// Fork creates a child that is an independent snapshot of parent. On
// failure the half-built child is torn down and nothing is left in the
// process table.
func (k *Kernel) Fork(parent *proctable.Entry) (*proctable.Entry, kerrno.Errno) {
	vm := k.newVM(parent.Name)
	e := k.procs.Alloc(parent.Name, vm)
	vm.Pid = e.Pid
	if err := sysvm.Fork(parent.VM, vm); err != 0 {
		vm.Teardown()
		k.procs.Remove(e)
		return nil, err
	}
	k.procs.SetState(e, proctable.Runnable)
	return e, 0
}

// Exit tears down e's address space and leaves it a zombie for Wait.
func (k *Kernel) Exit(e *proctable.Entry) {
	sysvm.Exit(e.VM)
	k.procs.SetState(e, proctable.Zombie)
}

// Kill marks e killed; its next return to user space exits.
func (k *Kernel) Kill(e *proctable.Entry) {
	sysvm.Kill(e.VM)
}

// Wait reaps a zombie child, reporting whether it was killed rather than
// exiting normally. Waiting on a live process is a caller bug.
func (k *Kernel) Wait(e *proctable.Entry) bool {
	if e.State != proctable.Zombie {
		panic("kernel: Wait on a process that has not exited")
	}
	killed := e.VM.IsKilled()
	k.procs.Remove(e)
	return killed
}

// Dump writes the per-process console report plus the free-frame line.
func (k *Kernel) Dump(w io.Writer) {
	diag.Dump(w, k.procs.Live(), k.frames.Stats())
}

// Snapshot exports the live processes' resident-set counters as a pprof
// profile.
func (k *Kernel) Snapshot() *profile.Profile {
	return diag.Snapshot(k.procs.Live())
}

// FrameStats reports the frame pool's free/total counts.
func (k *Kernel) FrameStats() frame.Stats {
	return k.frames.Stats()
}
