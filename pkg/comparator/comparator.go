// Package comparator implements the memtable's total order over encoded
// rows: lexicographic over the leading key columns, or Z-order
// interleaving of the first k of them with a lexicographic tiebreak on
// the rest. One comparator instance is owned per memtable and is never
// shared across goroutines, mirroring olap's RowCursorComparator /
// TupleRowZOrderComparator split in memtable.cpp.
package comparator

import (
	"bytes"

	"github.com/skylakedb/memtable/pkg/rowcodec"
)

// Comparator is a pure three-way comparison over two encoded rows.
type Comparator interface {
	Compare(a, b *rowcodec.Row) int
}

// New builds the comparator named by schema's sort discipline.
func New(schema *rowcodec.Schema) Comparator {
	switch schema.SortKind {
	case rowcodec.ZOrder:
		return &zOrder{schema: schema}
	default:
		return &lexicographic{schema: schema}
	}
}

type lexicographic struct {
	schema *rowcodec.Schema
}

func (c *lexicographic) Compare(a, b *rowcodec.Row) int {
	return compareColumns(c.schema, a, b, 0, c.schema.KeyColumns)
}

// compareColumns compares columns [from, to) in schema order, nulls sort
// low.
func compareColumns(schema *rowcodec.Schema, a, b *rowcodec.Row, from, to int) int {
	for i := from; i < to; i++ {
		aNull, bNull := a.IsNull(i), b.IsNull(i)
		switch {
		case aNull && bNull:
			continue
		case aNull:
			return -1
		case bNull:
			return 1
		}
		if c := compareCell(schema.Columns[i].Type, a, b, i); c != 0 {
			return c
		}
	}
	return 0
}

func compareCell(t rowcodec.ColumnType, a, b *rowcodec.Row, i int) int {
	switch t {
	case rowcodec.TypeFloat32, rowcodec.TypeFloat64:
		af, bf := a.GetFloat64(i), b.GetFloat64(i)
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	case rowcodec.TypeVarchar:
		return bytes.Compare(a.GetBytes(i), b.GetBytes(i))
	case rowcodec.TypeUint64:
		au, bu := a.GetUint64(i), b.GetUint64(i)
		switch {
		case au < bu:
			return -1
		case au > bu:
			return 1
		default:
			return 0
		}
	default:
		ai, bi := a.GetInt64(i), b.GetInt64(i)
		switch {
		case ai < bi:
			return -1
		case ai > bi:
			return 1
		default:
			return 0
		}
	}
}
