// Package arena implements the bump-allocated memory region backing the
// write-path memtable: the table arena (row pointers, variable-length
// payloads, live for the memtable's whole life) and the buffer arena
// (one probe row at a time, bulk-reset after every insert).
//
// The allocator hands out []byte slices rather than raw offsets. A slice
// returned by Allocate stays valid across later growth (until Reset,
// after which the same bytes are handed out again), because growth
// never mutates the old backing array in place — it
// copies into a new, bigger one and keeps writing there. That gives the
// "row pointer borrows from the arena for exactly the memtable's
// lifetime" contract for free, without interior pointers.
package arena

import "github.com/skylakedb/memtable/pkg/memtracker"

const minChunk = 4 << 10 // 4KiB, doubled from here on growth

// Arena is a single growing byte buffer with bulk reset and release.
type Arena struct {
	tracker *memtracker.Tracker
	buf     []byte
}

// New creates an arena reporting its growth into tracker. tracker may be
// nil for tests that don't care about accounting.
func New(tracker *memtracker.Tracker) *Arena {
	return &Arena{tracker: tracker}
}

// Allocate returns an n-byte region. The slice is 3-index so appends by
// later callers of Allocate can never alias into it.
func (a *Arena) Allocate(n int) ([]byte, error) {
	if n == 0 {
		return nil, nil
	}
	if len(a.buf)+n > cap(a.buf) {
		if err := a.grow(len(a.buf) + n); err != nil {
			return nil, err
		}
	}
	start := len(a.buf)
	a.buf = a.buf[:start+n]
	return a.buf[start : start+n : start+n], nil
}

func (a *Arena) grow(need int) error {
	newCap := cap(a.buf)
	if newCap == 0 {
		newCap = minChunk
	}
	for newCap < need {
		newCap *= 2
	}
	delta := int64(newCap - cap(a.buf))
	if a.tracker != nil {
		if err := a.tracker.Consume(delta); err != nil {
			return err
		}
	}
	grown := make([]byte, len(a.buf), newCap)
	copy(grown, a.buf)
	a.buf = grown
	return nil
}

// Reset returns the arena to empty in O(1) without touching the tracker:
// the capacity (and thus the accounted high-water) is retained so the
// next round of allocations doesn't have to grow again. This is what the
// façade calls on the buffer arena after every Insert.
func (a *Arena) Reset() {
	a.buf = a.buf[:0]
}

// Release gives the arena's whole backing capacity back to the tracker.
// Safe to call more than once.
func (a *Arena) Release() {
	if a.tracker != nil && a.buf != nil {
		a.tracker.Release(int64(cap(a.buf)))
	}
	a.buf = nil
}

// Len reports the live (used) byte count, for accounting assertions.
func (a *Arena) Len() int { return len(a.buf) }

// Cap reports the high-water capacity currently held.
func (a *Arena) Cap() int { return cap(a.buf) }
