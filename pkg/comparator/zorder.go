package comparator

import "github.com/skylakedb/memtable/pkg/rowcodec"

type zOrder struct {
	schema *rowcodec.Schema
}

func (c *zOrder) Compare(a, b *rowcodec.Row) int {
	k := c.schema.ZOrderColumns
	za := interleave(c.schema, a, k)
	zb := interleave(c.schema, b, k)
	for i := range za {
		if za[i] != zb[i] {
			if za[i] < zb[i] {
				return -1
			}
			return 1
		}
	}
	// Tiebreak lexicographically on the remaining key columns.
	return compareColumns(c.schema, a, b, k, c.schema.KeyColumns)
}

// bitWidth returns the order-preserving unsigned bit width of column i's
// type; signed types are handled by orderPreservingUnsigned below.
func bitWidth(t rowcodec.ColumnType) int {
	switch t {
	case rowcodec.TypeInt8, rowcodec.TypeUint8, rowcodec.TypeBool:
		return 8
	case rowcodec.TypeInt16, rowcodec.TypeUint16:
		return 16
	case rowcodec.TypeInt32, rowcodec.TypeUint32:
		return 32
	default:
		return 64
	}
}

// orderPreservingUnsigned maps column i's value onto a uint64 keyspace
// such that the natural unsigned ordering matches the type's own
// ordering — signed values get their sign bit flipped. TypeUint64 reads
// through GetUint64 rather than GetInt64, which sign-widens and would
// corrupt values >= 2^63.
func orderPreservingUnsigned(t rowcodec.ColumnType, row *rowcodec.Row, i int) uint64 {
	switch t {
	case rowcodec.TypeInt8:
		return uint64(uint8(row.GetInt64(i)) ^ 0x80)
	case rowcodec.TypeInt16:
		return uint64(uint16(row.GetInt64(i)) ^ 0x8000)
	case rowcodec.TypeInt32:
		return uint64(uint32(row.GetInt64(i)) ^ 0x80000000)
	case rowcodec.TypeInt64:
		return uint64(row.GetInt64(i)) ^ 0x8000000000000000
	case rowcodec.TypeUint64:
		return row.GetUint64(i)
	default:
		return uint64(row.GetInt64(i))
	}
}

// interleave builds the Z-order key for the first k columns: round-robin
// over columns, most-significant bit first, widened to the widest
// column's bit width (the fixed bit-rank schedule spec.md §9 asks for).
func interleave(schema *rowcodec.Schema, row *rowcodec.Row, k int) []byte {
	if k == 0 {
		return nil
	}
	vals := make([]uint64, k)
	widths := make([]int, k)
	maxBits := 0
	for i := 0; i < k; i++ {
		col := schema.Columns[i]
		widths[i] = bitWidth(col.Type)
		if row.IsNull(i) {
			vals[i] = 0
		} else {
			vals[i] = orderPreservingUnsigned(col.Type, row, i)
		}
		if widths[i] > maxBits {
			maxBits = widths[i]
		}
	}

	out := make([]byte, 0, (maxBits*k+7)/8)
	var cur byte
	curBits := 0
	for bitPos := maxBits - 1; bitPos >= 0; bitPos-- {
		for i := 0; i < k; i++ {
			if bitPos >= widths[i] {
				continue
			}
			bit := byte((vals[i] >> uint(bitPos)) & 1)
			cur = cur<<1 | bit
			curBits++
			if curBits == 8 {
				out = append(out, cur)
				cur, curBits = 0, 0
			}
		}
	}
	if curBits > 0 {
		cur <<= uint(8 - curBits)
		out = append(out, cur)
	}
	return out
}
