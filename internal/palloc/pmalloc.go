package palloc

import "pagingos/internal/ptable"

// pmallocPlan describes how to carve a one-page, page-aligned block out
// of a larger free block. prefixSize and trailingSize are 0 when that
// side of the split isn't needed.
type pmallocPlan struct {
	prefixSize   int
	trailingSize int
}

// planPmalloc decides whether b can yield a pmalloc block and, if so,
// how to split it:
//
//   - payload already page-aligned, exact one-page size: no split.
//   - payload already page-aligned, larger: two-way split, trailing
//     remainder only.
//   - payload not aligned: find the next header position whose payload
//     is page-aligned; three-way split if there is room for a nonzero
//     prefix, the page block, and at least a header of trailing space;
//     two-way (prefix + page) if it fits exactly.
func planPmalloc(b *block) (pmallocPlan, bool) {
	payload := b.addr + headerSize
	if payload%PageSize == 0 {
		switch {
		case b.size == pageBlockSize:
			return pmallocPlan{}, true
		case b.size > pageBlockSize:
			return pmallocPlan{trailingSize: b.size - pageBlockSize}, true
		default:
			return pmallocPlan{}, false
		}
	}

	// Smallest header address >= b.addr+headerSize whose payload is
	// page-aligned. The prefix is then at least one header long, so it
	// stands alone as a free block.
	pageHeaderAddr := nextAlignedHeader(payload)
	prefixSize := int(pageHeaderAddr - b.addr)

	trailingStart := pageHeaderAddr + pageBlockSize
	blockEnd := b.addr + uintptr(b.size)
	if trailingStart > blockEnd {
		return pmallocPlan{}, false
	}
	trailingSize := int(blockEnd - trailingStart)
	if trailingSize > 0 && trailingSize < headerSize {
		// No room to leave a valid trailing free block.
		return pmallocPlan{}, false
	}
	return pmallocPlan{prefixSize: prefixSize, trailingSize: trailingSize}, true
}

// nextAlignedHeader returns the smallest address h >= minAddr such that
// h+headerSize is a multiple of PageSize.
func nextAlignedHeader(minAddr uintptr) uintptr {
	rem := (minAddr + headerSize) % PageSize
	if rem == 0 {
		return minAddr
	}
	return minAddr + (PageSize - rem)
}

// Pmalloc returns a one-page block whose payload address is a multiple
// of PageSize (so the preceding header sits at payload-headerSize). The
// kernel-side PMalloced PTE bit is the authoritative marker, since fork
// must preserve it; the block's own flag is derived bookkeeping. Fails
// (ok=false) when no block can be split to fit and the kernel refuses
// further growth.
func (a *Arena) Pmalloc() (Ptr, bool) {
	for {
		if idx, ok := a.findPmallocFit(); ok {
			p := a.splitForPmalloc(idx)
			if err := a.protector.MarkFlags(uintptr(p), ptable.PMalloced); err != 0 {
				a.Free(p)
				return 0, false
			}
			return p, true
		}
		// Arena growth for pmalloc uses page-sized, exact increments
		// so remainder blocks land at deterministic alignment. Two
		// pages hold one aligned header+page span from most starting
		// offsets; when they do not, the next growth merges into the
		// same trailing free block, and four pages always do.
		if err := a.growArenaBy(2 * PageSize); err != 0 {
			return 0, false
		}
	}
}

func (a *Arena) findPmallocFit() (int, bool) {
	for i, b := range a.blocks {
		if !b.free {
			continue
		}
		if _, ok := planPmalloc(b); ok {
			return i, true
		}
	}
	return 0, false
}

func (a *Arena) splitForPmalloc(idx int) Ptr {
	b := a.blocks[idx]
	plan, ok := planPmalloc(b)
	if !ok {
		panic("palloc: splitForPmalloc called on a block that doesn't fit")
	}

	pageAddr := b.addr + uintptr(plan.prefixSize)
	repl := make([]*block, 0, 3)
	if plan.prefixSize > 0 {
		repl = append(repl, &block{addr: b.addr, size: plan.prefixSize, free: true})
	}
	repl = append(repl, &block{addr: pageAddr, size: pageBlockSize, free: false, pmalloced: true})
	if plan.trailingSize > 0 {
		repl = append(repl, &block{addr: pageAddr + pageBlockSize, size: plan.trailingSize, free: true})
	}
	a.blocks = replaceAt(a.blocks, idx, repl)
	return Ptr(pageAddr + headerSize)
}

// ProtectPage verifies p is a live pmalloc block and clears Writable on
// its page via the kernel. Returns 1 on success, -1 if p is not a
// pmalloc result.
func (a *Arena) ProtectPage(p Ptr) int {
	idx, ok := a.findBlockByPayload(uintptr(p))
	if !ok || a.blocks[idx].free || !a.blocks[idx].pmalloced || a.blocks[idx].size != pageBlockSize {
		return -1
	}
	if uintptr(p)%PageSize != 0 {
		return -1
	}
	if err := a.protector.ClearFlags(uintptr(p), ptable.Writable); err != 0 {
		return -1
	}
	return 1
}

// Pfree verifies p is a live pmalloc block, re-enables Writable, clears
// the PMalloced marker on both sides of the boundary, and returns the
// block to the free list. Returns 1 on success, -1 if p is not a pmalloc
// result.
func (a *Arena) Pfree(p Ptr) int {
	idx, ok := a.findBlockByPayload(uintptr(p))
	if !ok || a.blocks[idx].free || !a.blocks[idx].pmalloced {
		return -1
	}
	if err := a.protector.MarkFlags(uintptr(p), ptable.Writable); err != 0 {
		return -1
	}
	if err := a.protector.ClearFlags(uintptr(p), ptable.PMalloced); err != 0 {
		return -1
	}
	a.blocks[idx].pmalloced = false
	if err := a.Free(p); err != 0 {
		return -1
	}
	return 1
}
