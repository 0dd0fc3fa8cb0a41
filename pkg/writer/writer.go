// Package writer defines the row-set writer collaborator the memtable
// streams finalized rows to. It is intentionally opaque to persistence
// format per spec.md §1 — this package only carries the interface
// contract and a couple of reference implementations used by tests and
// the benchmark binary.
package writer

import (
	"errors"

	"github.com/skylakedb/memtable/pkg/rowcodec"
)

// ErrNotImplemented is the distinguished status FlushSingleMemTable
// returns to tell the façade to fall back to streaming rows one at a
// time via AddRow/Flush. It must never escape to a caller of
// MemTable.Flush — the façade recovers it locally.
var ErrNotImplemented = errors.New("writer: flush_single_memtable not implemented")

// RowIterator yields finalized rows in comparator order. Implementations
// in this module finalize lazily as the iterator advances.
type RowIterator interface {
	Valid() bool
	Next()
	Row() *rowcodec.Row
}

// FlushableMemTable is the narrow surface of *memtable.MemTable a writer
// needs for its fast path, kept here (rather than importing pkg/memtable
// directly) so the two packages don't form an import cycle: pkg/memtable
// depends on RowSetWriter, and a RowSetWriter's FlushSingleMemTable needs
// to drive a memtable — this interface is the seam.
type FlushableMemTable interface {
	TabletID() int64
	RowWidth() int
	Iterator() RowIterator
}

// RowSetWriter is the external collaborator a memtable flushes into.
type RowSetWriter interface {
	// AddRow consumes one finalized row. Used by the fallback streaming
	// loop when FlushSingleMemTable isn't implemented.
	AddRow(row *rowcodec.Row) error

	// FlushSingleMemTable is an optional fast path: the writer drives
	// its own traversal of mt instead of receiving rows one at a time.
	// Returns ErrNotImplemented to request the fallback loop.
	FlushSingleMemTable(mt FlushableMemTable, flushedBytes *int64) error

	// Flush finalizes the row set after the fallback loop has streamed
	// every row. Not called when FlushSingleMemTable handled the flush.
	Flush() error
}
