// Package memtracker implements the hierarchical memory accounting used by
// every arena in the write path. A tracker mirrors the shape the olap
// memtable's MemPool reports into: children consume against their own
// limit first, then bubble the delta up to their parent.
package memtracker

import (
	"fmt"
	"sync/atomic"
)

// Unlimited disables the byte ceiling for a tracker.
const Unlimited int64 = -1

// Tracker is a node in a memory-accounting tree. All operations are safe
// for concurrent use across trackers even though a single memtable's own
// arenas are single-writer (the tracker may be shared by sibling tablets).
type Tracker struct {
	name     string
	limit    int64
	consumed int64
	parent   *Tracker
}

// NewRoot creates a tracker with no parent, e.g. one per ingestion process.
func NewRoot(name string, limit int64) *Tracker {
	return &Tracker{name: name, limit: limit}
}

// NewChild creates a tracker reporting into t, named after its tablet.
func (t *Tracker) NewChild(name string, limit int64) *Tracker {
	return &Tracker{name: name, limit: limit, parent: t}
}

// Consumed returns the live bytes accounted to this tracker alone.
func (t *Tracker) Consumed() int64 {
	return atomic.LoadInt64(&t.consumed)
}

// Consume reports delta additional bytes. If the local limit (or any
// ancestor's limit) would be exceeded, the whole chain is rolled back and
// an error naming the tracker that refused the allocation is returned.
func (t *Tracker) Consume(delta int64) error {
	if delta == 0 {
		return nil
	}
	if err := t.tryConsumeLocal(delta); err != nil {
		return err
	}
	if t.parent != nil {
		if err := t.parent.Consume(delta); err != nil {
			t.tryConsumeLocal(-delta) // rollback this node only; caller rolls back nothing else
			return err
		}
	}
	return nil
}

func (t *Tracker) tryConsumeLocal(delta int64) error {
	next := atomic.AddInt64(&t.consumed, delta)
	if t.limit != Unlimited && next > t.limit {
		atomic.AddInt64(&t.consumed, -delta)
		return fmt.Errorf("memtracker: %q would exceed limit of %d bytes (requested %d more, at %d)",
			t.name, t.limit, delta, next-delta)
	}
	return nil
}

// Release gives delta bytes back, propagating to the parent chain.
func (t *Tracker) Release(delta int64) {
	if delta == 0 {
		return
	}
	atomic.AddInt64(&t.consumed, -delta)
	if t.parent != nil {
		t.parent.Release(delta)
	}
}

func (t *Tracker) Name() string { return t.name }
