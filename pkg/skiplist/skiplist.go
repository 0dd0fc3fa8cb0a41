// Package skiplist implements the memtable's ordered index: a
// probabilistic multi-level ordered map over row pointers, generalized
// from the arena-backed skip lists the example pack's memtable variants
// build on top of (mor_arenaskl, segment_ring_arenaskl) into one keyed
// by an arbitrary comparator over *rowcodec.Row pointers rather than raw
// byte keys.
//
// All internal nodes are ordinary Go heap values; there is no per-node
// destructor because the façade never frees a node individually — the
// owning table arena is reset/released as a whole when the memtable
// closes, and the nodes (along with everything they point at) become
// eligible for GC together.
package skiplist

import (
	"math/rand"

	"github.com/skylakedb/memtable/pkg/rowcodec"
)

const maxHeight = 12
const branching = 4 // p = 1/branching

// CompareFunc is a total order over two encoded rows.
type CompareFunc func(a, b *rowcodec.Row) int

type node struct {
	row  *rowcodec.Row
	next []*node
}

// Hint caches the predecessor chain produced by Find so a subsequent
// InsertWithHint can skip re-searching. It is only valid for as long as
// no mutation has happened to the list since the Find call that produced
// it — enforced by comparing generation against the list's current one.
type Hint struct {
	prev       [maxHeight]*node
	generation uint64
}

// List is an ordered index in either allow-duplicates mode (DUP: equal
// keys keep arrival order, every Insert succeeds) or reject-duplicates
// mode (AGG/UNIQUE: equal-key Insert is a caller error, the façade
// always goes through Find + InsertWithHint instead).
type List struct {
	cmp      CompareFunc
	allowDup bool
	rnd      *rand.Rand

	head       *node
	height     int
	generation uint64
	length     int
}

// New creates an empty list. seed makes height selection reproducible
// for tests; production callers can pass time.Now().UnixNano().
func New(cmp CompareFunc, allowDup bool, seed int64) *List {
	return &List{
		cmp:      cmp,
		allowDup: allowDup,
		rnd:      rand.New(rand.NewSource(seed)),
		head:     &node{next: make([]*node, maxHeight)},
		height:   1,
	}
}

func (l *List) randomHeight() int {
	h := 1
	for h < maxHeight && l.rnd.Intn(branching) == 0 {
		h++
	}
	return h
}

// search walks the list from the top level down. When throughEqual is
// true, it advances past nodes equal to row too (used by Insert in
// allow-duplicates mode, so a new duplicate lands after every existing
// equal-keyed node and so preserves arrival order); when false it stops
// at the first node >= row (used by Find/reject-duplicates Insert).
func (l *List) search(row *rowcodec.Row, throughEqual bool) (preds [maxHeight]*node, cand *node) {
	prev := l.head
	for level := l.height - 1; level >= 0; level-- {
		for prev.next[level] != nil {
			c := l.cmp(prev.next[level].row, row)
			if c < 0 || (throughEqual && c == 0) {
				prev = prev.next[level]
				continue
			}
			break
		}
		preds[level] = prev
	}
	for level := l.height; level < maxHeight; level++ {
		preds[level] = l.head
	}
	if preds[0] != nil {
		cand = preds[0].next[0]
	}
	return
}

// Find reports whether an equal key exists and returns the matching row
// (nil if not found) plus a traversal hint for InsertWithHint.
func (l *List) Find(row *rowcodec.Row) (found bool, existing *rowcodec.Row, hint Hint) {
	preds, cand := l.search(row, false)
	hint = Hint{prev: preds, generation: l.generation}
	if cand != nil && l.cmp(cand.row, row) == 0 {
		return true, cand.row, hint
	}
	return false, nil, hint
}

// Insert inserts row without a hint. In allow-duplicates mode this
// always succeeds (duplicates keep arrival order); in reject-duplicates
// mode an equal key already present is an InvariantViolation — the
// façade never calls Insert on this path, it always goes through Find +
// InsertWithHint, so reaching this panic means the index or a caller
// violated the contract.
func (l *List) Insert(row *rowcodec.Row) (overwritten bool) {
	if l.allowDup {
		preds, _ := l.search(row, true)
		l.insertAt(row, preds)
		return false
	}
	found, _, hint := l.Find(row)
	if found {
		panic("skiplist: InvariantViolation: duplicate key observed under reject-duplicates Insert")
	}
	l.insertAt(row, hint.prev)
	return false
}

// InsertWithHint inserts at the location hint identifies. hint (and
// found) must come from the most recent Find call with no intervening
// mutation — violated hints panic rather than silently corrupting the
// index, since a stale hint is always a caller bug under the
// single-threaded model spec.md assumes.
func (l *List) InsertWithHint(row *rowcodec.Row, found bool, hint Hint) {
	if hint.generation != l.generation {
		panic("skiplist: InvariantViolation: stale hint passed to InsertWithHint")
	}
	if found && !l.allowDup {
		panic("skiplist: InvariantViolation: insert_with_hint called with found=true under reject-duplicates mode")
	}
	l.insertAt(row, hint.prev)
}

func (l *List) insertAt(row *rowcodec.Row, preds [maxHeight]*node) {
	height := l.randomHeight()
	if height > l.height {
		l.height = height
	}
	n := &node{row: row, next: make([]*node, height)}
	for level := 0; level < height; level++ {
		n.next[level] = preds[level].next[level]
		preds[level].next[level] = n
	}
	l.generation++
	l.length++
}

// Len is the number of entries currently in the index (distinct keys for
// AGG/UNIQUE, one per successful insert for DUP).
func (l *List) Len() int { return l.length }

// Iterator yields rows in comparator order.
type Iterator struct {
	cur *node
}

// SeekFirst returns an iterator positioned at the smallest key.
func (l *List) SeekFirst() *Iterator {
	return &Iterator{cur: l.head.next[0]}
}

func (it *Iterator) Valid() bool { return it.cur != nil }

func (it *Iterator) Next() {
	it.cur = it.cur.next[0]
}

func (it *Iterator) Row() *rowcodec.Row {
	return it.cur.row
}
