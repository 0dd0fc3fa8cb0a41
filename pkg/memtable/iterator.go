package memtable

import (
	"github.com/skylakedb/memtable/pkg/rowcodec"
	"github.com/skylakedb/memtable/pkg/skiplist"
	"github.com/skylakedb/memtable/pkg/writer"
)

// rowIterator adapts the skip list's iterator to writer.RowIterator,
// finalizing a row (bitmap RunOptimize, mainly) lazily each time Row is
// called on it rather than in one upfront pass over the whole index.
type rowIterator struct {
	it *skiplist.Iterator
	m  *MemTable
}

// Iterator returns a row iterator over the memtable's index in
// comparator order, satisfying writer.FlushableMemTable's fast path.
func (m *MemTable) Iterator() writer.RowIterator {
	return &rowIterator{it: m.index.SeekFirst(), m: m}
}

func (r *rowIterator) Valid() bool { return r.it.Valid() }

func (r *rowIterator) Next() { r.it.Next() }

func (r *rowIterator) Row() *rowcodec.Row {
	row := r.it.Row()
	r.m.agg.Finalize(row, r.m.durablePool)
	return row
}
