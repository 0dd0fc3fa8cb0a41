// Package memtable implements the write-path memory table: an ordered,
// row-addressed buffer that absorbs incoming rows for a single tablet,
// merges them according to the tablet's key model, and flushes the
// sorted result into an external row-set writer. Grounded on
// doris::MemTable (be/src/olap/memtable.cpp).
package memtable

import (
	"github.com/skylakedb/memtable/pkg/aggregate"
	"github.com/skylakedb/memtable/pkg/arena"
	"github.com/skylakedb/memtable/pkg/comparator"
	"github.com/skylakedb/memtable/pkg/memtracker"
	"github.com/skylakedb/memtable/pkg/rowcodec"
	"github.com/skylakedb/memtable/pkg/skiplist"
	"github.com/skylakedb/memtable/pkg/writer"
)

// State is the memtable's lifecycle: Open -> Flushing -> Closed.
type State int

const (
	Open State = iota
	Flushing
	Closed
)

// MemTable is the public façade coordinating the arena pool, row codec,
// comparator, ordered index, and aggregator. Not safe for concurrent
// use: a memtable is owned by a single writer goroutine for its whole
// life (spec.md §5) — ingest parallelism comes from running many
// memtables, orchestrated by pkg/tablet, never from sharing one.
type MemTable struct {
	tabletID int64
	schema   *rowcodec.Schema
	writer   writer.RowSetWriter
	tracker  *memtracker.Tracker

	tableArena  *arena.Arena
	bufferArena *arena.Arena

	durablePool *aggregate.Pool
	scratchPool *aggregate.Pool

	cmp   comparator.Comparator
	index *skiplist.List
	agg   *aggregate.Aggregator

	state        State
	rowsInserted int64
	flushSize    int64
	flushErr     error
}

// New creates a memtable for tabletID over schema, flushing into rsw and
// reporting its own memory into a child of parent named after the
// tablet.
func New(tabletID int64, schema *rowcodec.Schema, rsw writer.RowSetWriter, parent *memtracker.Tracker) *MemTable {
	tracker := parent
	if parent != nil {
		tracker = parent.NewChild(tabletName(tabletID), memtracker.Unlimited)
	}
	cmp := comparator.New(schema)
	return &MemTable{
		tabletID:    tabletID,
		schema:      schema,
		writer:      rsw,
		tracker:     tracker,
		tableArena:  arena.New(tracker),
		bufferArena: arena.New(tracker),
		durablePool: aggregate.NewPool(),
		scratchPool: aggregate.NewPool(),
		cmp:         cmp,
		index:       skiplist.New(func(a, b *rowcodec.Row) int { return cmp.Compare(a, b) }, schema.KeyModel == rowcodec.DUP, tabletID),
		agg:         aggregate.New(schema),
	}
}

func tabletName(id int64) string {
	return "memtable." + itoa(id)
}

func itoa(id int64) string {
	if id == 0 {
		return "0"
	}
	neg := id < 0
	if neg {
		id = -id
	}
	var buf [20]byte
	i := len(buf)
	for id > 0 {
		i--
		buf[i] = byte('0' + id%10)
		id /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// TabletID returns the tablet this memtable belongs to.
func (m *MemTable) TabletID() int64 { return m.tabletID }

// KeyModel returns the schema's key model.
func (m *MemTable) KeyModel() rowcodec.KeyModel { return m.schema.KeyModel }

// RowsInserted is the number of successful Insert calls — not the
// number of distinct keys (spec.md §3 invariant).
func (m *MemTable) RowsInserted() int64 { return m.rowsInserted }

// RowWidth is the schema's fixed row width.
func (m *MemTable) RowWidth() int { return m.schema.RowWidth() }

// MemoryUsage is the live high-water of both arenas.
func (m *MemTable) MemoryUsage() int64 {
	return int64(m.tableArena.Cap() + m.bufferArena.Cap())
}

// FlushSize is the byte count recorded by the most recent Flush.
func (m *MemTable) FlushSize() int64 { return m.flushSize }

// State returns the memtable's current lifecycle state.
func (m *MemTable) State() State { return m.state }

// Insert encodes input and merges it into the memtable according to the
// schema's key model. rows_inserted increments only after a successful
// insert (spec.md §9's deviation from the increment-first source: a
// failed allocation must not leave the counter ahead of the index).
func (m *MemTable) Insert(input rowcodec.InputRow) error {
	if m.state != Open {
		panic("memtable: Insert called outside the Open state")
	}

	if m.schema.KeyModel == rowcodec.DUP {
		if err := m.insertDup(input); err != nil {
			return err
		}
		m.rowsInserted++
		return nil
	}

	if err := m.insertMerge(input); err != nil {
		return err
	}
	m.rowsInserted++
	return nil
}

func (m *MemTable) insertDup(input rowcodec.InputRow) error {
	fixed, err := m.tableArena.Allocate(m.schema.RowWidth())
	if err != nil {
		return memLimitErr("insert (DUP): table arena allocation", err)
	}
	row := rowcodec.NewRow(m.schema, fixed)
	if err := rowcodec.Encode(m.schema, input, row, m.tableArena, m.durablePool); err != nil {
		return memLimitErr("insert (DUP): encoding variable-length payload", err)
	}
	overwritten := m.index.Insert(row)
	if overwritten {
		panic("memtable: InvariantViolation: duplicate key model observed overwrite in index")
	}
	return nil
}

func (m *MemTable) insertMerge(input rowcodec.InputRow) error {
	// Bound buffer-arena high-water to one row: always reset before
	// returning, success or failure (spec.md testable property #6).
	defer func() {
		m.bufferArena.Reset()
		m.scratchPool.Reset()
	}()

	scratchFixed, err := m.bufferArena.Allocate(m.schema.RowWidth())
	if err != nil {
		return memLimitErr("insert: buffer arena allocation", err)
	}
	scratch := rowcodec.NewRow(m.schema, scratchFixed)
	if err := rowcodec.Encode(m.schema, input, scratch, m.bufferArena, m.scratchPool); err != nil {
		return memLimitErr("insert: encoding variable-length payload", err)
	}

	found, existing, hint := m.index.Find(scratch)
	if found {
		var err error
		if m.schema.SequenceColIdx >= 0 {
			err = m.agg.UpdateWithSequence(existing, scratch, m.schema.SequenceColIdx, m.tableArena, m.durablePool, m.scratchPool)
		} else {
			err = m.agg.Update(existing, scratch, m.tableArena, m.durablePool, m.scratchPool)
		}
		if err != nil {
			return memLimitErr("insert: merging into existing row", err)
		}
		return nil
	}

	dstFixed, err := m.tableArena.Allocate(m.schema.RowWidth())
	if err != nil {
		return memLimitErr("insert: table arena allocation", err)
	}
	dst := rowcodec.NewRow(m.schema, dstFixed)
	base := m.durablePool.AcquireFrom(m.scratchPool)
	if err := rowcodec.CopyRow(dst, scratch, m.tableArena, base); err != nil {
		return memLimitErr("insert: copying row into table arena", err)
	}
	m.index.InsertWithHint(dst, found, hint)
	return nil
}

// Flush drains the memtable into its writer in comparator order and
// transitions Open -> Flushing. It tries the writer's fast path first
// (FlushSingleMemTable driving m.Iterator() directly) and falls back to
// streaming each row through AddRow/Flush when the writer declines it,
// mirroring doris::MemTable::_do_flush's two-path structure. Flush is
// not idempotent in the sense of re-running the drain — calling it again
// on an already-Flushing or Closed memtable returns the error recorded
// by the first attempt (nil if that attempt succeeded), since the index
// has already been handed to the writer once.
func (m *MemTable) Flush() error {
	if m.state != Open {
		return m.flushErr
	}
	m.state = Flushing

	var flushed int64
	err := m.writer.FlushSingleMemTable(m, &flushed)
	if err == writer.ErrNotImplemented {
		flushed = 0
		for it := m.index.SeekFirst(); it.Valid(); it.Next() {
			row := it.Row()
			m.agg.Finalize(row, m.durablePool)
			if err := m.writer.AddRow(row); err != nil {
				m.flushErr = writerErr("flush: streaming row to writer", err)
				return m.flushErr
			}
			flushed += int64(m.schema.RowWidth())
		}
		if err := m.writer.Flush(); err != nil {
			m.flushErr = writerErr("flush: finalizing writer", err)
			return m.flushErr
		}
	} else if err != nil {
		m.flushErr = writerErr("flush: fast path", err)
		return m.flushErr
	}

	m.flushSize = flushed
	return nil
}

// Close flushes any unflushed data, then releases both arenas. Safe to
// call more than once. If a prior Flush (here or explicit) failed, Close
// re-raises that same error rather than silently discarding it.
func (m *MemTable) Close() error {
	if m.state == Open {
		if err := m.Flush(); err != nil {
			m.state = Closed
			m.tableArena.Release()
			m.bufferArena.Release()
			return err
		}
	}
	if m.state == Closed {
		return m.flushErr
	}
	m.state = Closed
	m.tableArena.Release()
	m.bufferArena.Release()
	return m.flushErr
}
