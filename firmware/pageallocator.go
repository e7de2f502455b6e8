// Package firmware implements the boot-time and runtime services that sit
// around the core: a PageAllocator, a VariableStore, and a Clock.
package firmware

import "github.com/edujime23/warden/werr"

// Filler is the subset of *dram.DRAM (or a bus-backed RAM region) the
// PageAllocator zero-fills freshly handed-out frames through. dram.DRAM
// satisfies this directly; *bus.Bus does not expose Fill, so boot code
// wiring a RAM region through the bus should hand the allocator the
// backing *dram.DRAM instead.
type Filler interface {
	Fill(addr, n uint64, v byte) error
}

// PageAllocator is a bump allocator with a best-effort coalescing
// free-list, over a bus RAM region handed to it at construction: ram is
// the backing store, regionBase is the byte offset within ram where the
// allocator's frame 0 starts, and pageSize is the frame size in bytes.
// Frames are zero-filled on every AllocPages call, including ones
// satisfied from the free-list, since a freed frame's previous tenant may
// have left it dirty.
type PageAllocator struct {
	ram        Filler
	regionBase uint64
	pageSize   uint64
	maxFrames  uint64

	next uint64
	free []run // non-overlapping, coalesced eagerly; kept in insertion order, not sorted.
}

type run struct {
	base, n uint64
}

// NewPageAllocator constructs an allocator over maxFrames page-size frames
// of ram, starting at regionBase.
func NewPageAllocator(ram Filler, regionBase, pageSize, maxFrames uint64) *PageAllocator {
	return &PageAllocator{ram: ram, regionBase: regionBase, pageSize: pageSize, maxFrames: maxFrames}
}

// AllocPages returns n contiguous, zero-filled frames, preferring the
// free-list over extending the bump pointer, or fails OutOfFrames.
func (a *PageAllocator) AllocPages(n uint64) (uint64, error) {
	if n == 0 {
		return 0, werr.New(werr.BadConfig, "firmware.alloc_pages", 0)
	}

	for i, r := range a.free {
		if r.n >= n {
			base := r.base
			if r.n == n {
				a.free = append(a.free[:i], a.free[i+1:]...)
			} else {
				a.free[i] = run{base: r.base + n, n: r.n - n}
			}
			return base, a.zeroFrames(base, n)
		}
	}

	if a.next+n > a.maxFrames {
		return 0, werr.New(werr.OutOfFrames, "firmware.alloc_pages", a.next)
	}
	base := a.next
	a.next += n
	return base, a.zeroFrames(base, n)
}

// zeroFrames fills the n frames starting at base with zero bytes.
func (a *PageAllocator) zeroFrames(base, n uint64) error {
	if a.ram == nil {
		return nil
	}
	addr := a.regionBase + base*a.pageSize
	return a.ram.Fill(addr, n*a.pageSize, 0)
}

// FreePages returns [base, base+n) to the free-list, coalescing with any
// adjacent run on either side.
func (a *PageAllocator) FreePages(base, n uint64) {
	if n == 0 {
		return
	}
	merged := run{base: base, n: n}

	kept := make([]run, 0, len(a.free)+1)
	for _, r := range a.free {
		switch {
		case r.base+r.n == merged.base:
			merged.base, merged.n = r.base, r.n+merged.n
		case merged.base+merged.n == r.base:
			merged.n += r.n
		default:
			kept = append(kept, r)
		}
	}
	kept = append(kept, merged)
	a.free = kept
}

// Reset drops every allocation, including the free-list.
func (a *PageAllocator) Reset() {
	a.next = 0
	a.free = nil
}
