// Package resident tracks a process's resident set and chooses eviction
// victims under the configured replacement policy. The policy is a
// tagged variant with a single ChooseVictim operation rather than a
// build-time conditional.
package resident

// Policy selects replacement-policy behavior. The zero value is LIFO.
type Policy int

const (
	LIFO Policy = iota
	SCFIFO
	NONE
)

// String names the policy for boot traces and dumps.
func (p Policy) String() string {
	switch p {
	case LIFO:
		return "LIFO"
	case SCFIFO:
		return "SCFIFO"
	case NONE:
		return "NONE"
	default:
		return "???"
	}
}

// AccessedFunc lets the queue inspect and clear a page's Accessed bit
// without depending on the PTE representation.
type AccessedFunc interface {
	// Accessed reports whether va's PTE has the Accessed bit set.
	Accessed(va uintptr) bool
	// ClearAccessed clears va's PTE Accessed bit.
	ClearAccessed(va uintptr)
	// Protected reports whether va's page is pinned against eviction
	// (a pmalloc page).
	Protected(va uintptr) bool
}

// Set is the ordered queue of resident virtual pages for one process.
// Its order and eviction rule depend on Policy.
type Set struct {
	policy Policy
	// order holds virtual page addresses in policy-specific order:
	// LIFO is used as a stack (push/pop the back), SCFIFO as a FIFO
	// queue (push the back, scan/evict from the front).
	order []uintptr
}

// NewSet returns an empty resident set governed by policy.
func NewSet(policy Policy) *Set {
	return &Set{policy: policy}
}

// NewSetFrom returns a resident set governed by policy and pre-populated
// with pages in the given order, used by fork to copy the parent's
// resident queue.
func NewSetFrom(policy Policy, pages []uintptr) *Set {
	order := make([]uintptr, len(pages))
	copy(order, pages)
	return &Set{policy: policy, order: order}
}

// Policy returns the configured replacement policy.
func (s *Set) Policy() Policy {
	return s.policy
}

// Len reports the number of resident pages.
func (s *Set) Len() int {
	return len(s.order)
}

// Insert enqueues va as newly resident.
func (s *Set) Insert(va uintptr) {
	s.order = append(s.order, va)
}

// Remove deletes va from the resident set, for pages that leave
// residency without going through eviction (deallocation, exit).
func (s *Set) Remove(va uintptr) {
	for i, v := range s.order {
		if v == va {
			s.order = append(s.order[:i], s.order[i+1:]...)
			return
		}
	}
}

// ChooseVictim selects and removes an eviction victim according to the
// configured policy. Pages reported Protected are never chosen; the scan
// moves on to the next candidate instead. It returns ok=false if no
// evictable page exists (NONE policy, or every resident page is
// protected).
func (s *Set) ChooseVictim(a AccessedFunc) (uintptr, bool) {
	switch s.policy {
	case NONE:
		return 0, false
	case LIFO:
		return s.chooseLIFO(a)
	case SCFIFO:
		return s.chooseSCFIFO(a)
	default:
		panic("resident: unknown policy")
	}
}

func (s *Set) chooseLIFO(a AccessedFunc) (uintptr, bool) {
	for i := len(s.order) - 1; i >= 0; i-- {
		va := s.order[i]
		if a.Protected(va) {
			continue
		}
		s.order = append(s.order[:i], s.order[i+1:]...)
		return va, true
	}
	return 0, false
}

// chooseSCFIFO implements second-chance FIFO: inspect the front; if
// Accessed is set, clear it and move the entry to the back; otherwise
// evict it. Each visit clears a bit, so at most one full pass can go by
// without an eviction; the 2n bound covers that worst case (every page
// accessed, or protected pages cycling through) before concluding no
// victim exists.
func (s *Set) chooseSCFIFO(a AccessedFunc) (uintptr, bool) {
	n := len(s.order)
	evictable := false
	for _, va := range s.order {
		if !a.Protected(va) {
			evictable = true
			break
		}
	}
	if !evictable {
		return 0, false
	}
	for visited := 0; visited < 2*n; visited++ {
		va := s.order[0]
		s.order = s.order[1:]
		if a.Protected(va) {
			s.order = append(s.order, va)
			continue
		}
		if a.Accessed(va) {
			a.ClearAccessed(va)
			s.order = append(s.order, va)
			continue
		}
		return va, true
	}
	panic("resident: SCFIFO scan failed to converge")
}

// Pages returns a snapshot of the resident addresses in queue order.
func (s *Set) Pages() []uintptr {
	out := make([]uintptr, len(s.order))
	copy(out, s.order)
	return out
}
