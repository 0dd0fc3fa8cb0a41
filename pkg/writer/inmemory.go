package writer

import (
	"sync"

	"github.com/skylakedb/memtable/pkg/rowcodec"
)

// InMemory is a reference RowSetWriter that has no fast path — every
// flush falls back to the façade's streaming loop. Grounded on the
// teacher's pkg/sst.IO reference implementation shape (Get/Scan/Create
// collapsed here to the one operation a row-set writer needs: AddRow).
type InMemory struct {
	mu    sync.Mutex
	Rows  []*rowcodec.Row
	Flushes int
}

func NewInMemory() *InMemory { return &InMemory{} }

func (w *InMemory) AddRow(row *rowcodec.Row) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.Rows = append(w.Rows, row)
	return nil
}

func (w *InMemory) FlushSingleMemTable(mt FlushableMemTable, flushedBytes *int64) error {
	return ErrNotImplemented
}

func (w *InMemory) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.Flushes++
	return nil
}

// FastPath is a reference RowSetWriter that implements the fast path
// itself by driving mt.Iterator(), exercising the branch InMemory never
// takes.
type FastPath struct {
	mu      sync.Mutex
	Rows    []*rowcodec.Row
	Flushes int
}

func NewFastPath() *FastPath { return &FastPath{} }

func (w *FastPath) AddRow(row *rowcodec.Row) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.Rows = append(w.Rows, row)
	return nil
}

func (w *FastPath) FlushSingleMemTable(mt FlushableMemTable, flushedBytes *int64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	it := mt.Iterator()
	var n int64
	for it.Valid() {
		w.Rows = append(w.Rows, it.Row())
		n += int64(mt.RowWidth())
		it.Next()
	}
	*flushedBytes = n
	w.Flushes++
	return nil
}

func (w *FastPath) Flush() error { return nil }
