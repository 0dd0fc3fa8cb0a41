// Package aggregate implements the per-column merge functions and the
// aggregate object pool that backs HLL/bitmap columns. Every memtable
// keeps two pools co-scoped with its two arenas: a scratch pool (reset
// after every Insert) and a durable pool (memtable-lifetime). On the
// "not found" path the façade transfers scratch's outstanding objects
// into durable without reallocating them — see Pool.AcquireFrom.
package aggregate

import (
	"github.com/RoaringBitmap/roaring/v2"
	"github.com/axiomhq/hyperloglog"
)

type stateKind uint8

const (
	stateHLL stateKind = iota
	stateBitmap
)

type state struct {
	kind stateKind
	hll  *hyperloglog.Sketch
	bmp  *roaring.Bitmap
}

// Pool is an append-only registry of aggregate-state objects, addressed
// by the uint32 handle a row cell stores.
type Pool struct {
	states []*state
}

func NewPool() *Pool { return &Pool{} }

// NewHLL creates a fresh HLL sketch, optionally seeded with one item
// (the column's own row value), and returns its handle.
func (p *Pool) NewHLL(seed []byte) uint32 {
	sk := hyperloglog.New()
	if seed != nil {
		sk.Insert(seed)
	}
	p.states = append(p.states, &state{kind: stateHLL, hll: sk})
	return uint32(len(p.states) - 1)
}

// NewBitmap creates a fresh roaring bitmap, optionally seeded with one
// value decoded as a little-endian uint32.
func (p *Pool) NewBitmap(seed []byte) uint32 {
	bmp := roaring.New()
	if len(seed) >= 4 {
		bmp.Add(decodeUint32(seed))
	}
	p.states = append(p.states, &state{kind: stateBitmap, bmp: bmp})
	return uint32(len(p.states) - 1)
}

func (p *Pool) HLL(handle uint32) *hyperloglog.Sketch    { return p.states[handle].hll }
func (p *Pool) Bitmap(handle uint32) *roaring.Bitmap { return p.states[handle].bmp }

// Reset drops the pool's bookkeeping only. Objects that were transferred
// out via AcquireFrom are already owned by the destination pool and are
// unaffected; anything left behind (the "found" / merge-in-place path
// never minted new durable objects) becomes eligible for GC.
func (p *Pool) Reset() {
	p.states = p.states[:0]
}

// AcquireFrom appends scratch's outstanding objects onto p by pointer —
// no reallocation — and returns the base handle: every handle minted by
// scratch during the call that's about to commit must be rebased by this
// amount (see rowcodec.CopyRow) to address its new slot in p.
func (p *Pool) AcquireFrom(scratch *Pool) (base uint32) {
	base = uint32(len(p.states))
	p.states = append(p.states, scratch.states...)
	return base
}

// adopt appends a single foreign state object onto p by pointer and
// returns its new handle in p's addressing space. Used when a single
// aggregate-state cell crosses pools outside the bulk AcquireFrom path
// (e.g. a copyCell overwrite under UNIQUE/AggReplace semantics).
func (p *Pool) adopt(s *state) uint32 {
	p.states = append(p.states, s)
	return uint32(len(p.states) - 1)
}

func decodeUint32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
