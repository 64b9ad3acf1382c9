// Package diag implements the console process dump (one line per live
// process plus a free/total frame summary, the report an operator
// triggers from the console) and a pprof export of the same counters so
// the per-process memory picture can be fed to `go tool pprof`.
package diag

import (
	"io"
	"strconv"
	"time"

	"github.com/google/pprof/profile"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"pagingos/internal/frame"
	"pagingos/internal/proctable"
	"pagingos/internal/ptable"
)

// Dump prints one line per process (pid, state, name, total_size,
// paged_out_pages, protected_pages, page_faults, total_paged_out)
// followed by the free/total frame line. Numeric columns are grouped
// with golang.org/x/text/message so large byte counts stay readable.
func Dump(w io.Writer, entries []*proctable.Entry, frames frame.Stats) {
	p := message.NewPrinter(language.English)
	for _, e := range entries {
		var total, pagedOutPages, protectedPages, faults, pagedOutTotal int
		if e.VM != nil {
			total = int(e.VM.TotalSize)
			if e.VM.Swap != nil {
				pagedOutPages = e.VM.Swap.Used()
			}
			protectedPages = e.VM.ProtectedCount
			faults = e.VM.FaultCount
			pagedOutTotal = e.VM.PagedOutTotal
		}
		p.Fprintf(w, "%d %s %s %d %d %d %d %d\n",
			e.Pid, e.State, e.Name, total, pagedOutPages, protectedPages, faults, pagedOutTotal)
	}
	p.Fprintf(w, "%d / %d free pages in the system\n", frames.Free, frames.Total)
}

// Snapshot turns the resident-set counters of every live process into a
// pprof-format profile: one sample per process, value = resident page
// count, labelled with pid and command name.
func Snapshot(entries []*proctable.Entry) *profile.Profile {
	prof := &profile.Profile{
		SampleType: []*profile.ValueType{{Type: "resident_pages", Unit: "count"}},
		PeriodType: &profile.ValueType{Type: "space", Unit: "bytes"},
		Period:     ptable.PageSize,
		TimeNanos:  time.Now().UnixNano(),
	}
	for _, e := range entries {
		if e.VM == nil {
			continue
		}
		residentPages := int64(e.VM.ResidentSize / ptable.PageSize)
		prof.Sample = append(prof.Sample, &profile.Sample{
			Value: []int64{residentPages},
			Label: map[string][]string{
				"pid":  {strconv.Itoa(e.Pid)},
				"name": {e.Name},
			},
		})
	}
	return prof
}
