package rowcodec

import (
	"encoding/binary"
	"math"
)

// Row is the encoded, schema-shaped view over a row's storage: a
// contiguous fixed-width byte block (null bitmap + primitive columns,
// arena-allocated) plus two small side arrays for the columns that can't
// live inline — variable-length payloads and aggregate-state pool
// handles. The side arrays are metadata only; their referenced bytes and
// aggregate objects still live entirely inside the owning arena/pool.
type Row struct {
	Schema *Schema
	Fixed  []byte   // len == Schema.RowWidth()
	Varlen [][]byte // len == len(Schema.Columns); nil entries for non-varlen columns
	AggH   []uint32 // len == len(Schema.Columns); meaningful only for agg-state columns
}

// NewRow wraps a freshly allocated fixed-region block. fixed must be
// exactly schema.RowWidth() bytes, typically obtained from an arena.
func NewRow(schema *Schema, fixed []byte) *Row {
	return &Row{
		Schema: schema,
		Fixed:  fixed,
		Varlen: make([][]byte, len(schema.Columns)),
		AggH:   make([]uint32, len(schema.Columns)),
	}
}

func (r *Row) nullByteBit(col int) (int, byte) {
	return col / 8, 1 << uint(col%8)
}

func (r *Row) IsNull(col int) bool {
	b, mask := r.nullByteBit(col)
	return r.Fixed[b]&mask != 0
}

func (r *Row) SetNull(col int, null bool) {
	b, mask := r.nullByteBit(col)
	if null {
		r.Fixed[b] |= mask
	} else {
		r.Fixed[b] &^= mask
	}
}

func (r *Row) fixedSlot(col int) []byte {
	off := r.Schema.fixedOffset[col]
	w := r.Schema.Columns[col].Type.fixedWidth()
	return r.Fixed[off : off+w]
}

// GetInt64 reads any fixed-width integer/bool column widened to int64.
func (r *Row) GetInt64(col int) int64 {
	slot := r.fixedSlot(col)
	switch r.Schema.Columns[col].Type {
	case TypeInt8:
		return int64(int8(slot[0]))
	case TypeUint8, TypeBool:
		return int64(slot[0])
	case TypeInt16:
		return int64(int16(binary.BigEndian.Uint16(slot)))
	case TypeUint16:
		return int64(binary.BigEndian.Uint16(slot))
	case TypeInt32:
		return int64(int32(binary.BigEndian.Uint32(slot)))
	case TypeUint32:
		return int64(binary.BigEndian.Uint32(slot))
	case TypeInt64:
		return int64(binary.BigEndian.Uint64(slot))
	case TypeUint64:
		return int64(binary.BigEndian.Uint64(slot))
	default:
		panic("rowcodec: GetInt64 on non-integer column")
	}
}

// GetUint64 reads a TypeUint64 column without the sign-corrupting
// widening GetInt64 applies for values >= 2^63; comparators must use
// this accessor for unsigned columns instead of GetInt64.
func (r *Row) GetUint64(col int) uint64 {
	slot := r.fixedSlot(col)
	if r.Schema.Columns[col].Type != TypeUint64 {
		panic("rowcodec: GetUint64 on non-uint64 column")
	}
	return binary.BigEndian.Uint64(slot)
}

// SetInt64 writes v into a fixed-width integer/bool column, narrowing as
// the schema's declared type dictates.
func (r *Row) SetInt64(col int, v int64) {
	slot := r.fixedSlot(col)
	switch r.Schema.Columns[col].Type {
	case TypeInt8, TypeUint8, TypeBool:
		slot[0] = byte(v)
	case TypeInt16, TypeUint16:
		binary.BigEndian.PutUint16(slot, uint16(v))
	case TypeInt32, TypeUint32:
		binary.BigEndian.PutUint32(slot, uint32(v))
	case TypeInt64, TypeUint64:
		binary.BigEndian.PutUint64(slot, uint64(v))
	default:
		panic("rowcodec: SetInt64 on non-integer column")
	}
}

func (r *Row) GetFloat64(col int) float64 {
	slot := r.fixedSlot(col)
	switch r.Schema.Columns[col].Type {
	case TypeFloat32:
		bits := binary.BigEndian.Uint32(slot)
		return float64(math.Float32frombits(bits))
	case TypeFloat64:
		bits := binary.BigEndian.Uint64(slot)
		return math.Float64frombits(bits)
	default:
		panic("rowcodec: GetFloat64 on non-float column")
	}
}

func (r *Row) SetFloat64(col int, v float64) {
	slot := r.fixedSlot(col)
	switch r.Schema.Columns[col].Type {
	case TypeFloat32:
		binary.BigEndian.PutUint32(slot, math.Float32bits(float32(v)))
	case TypeFloat64:
		binary.BigEndian.PutUint64(slot, math.Float64bits(v))
	default:
		panic("rowcodec: SetFloat64 on non-float column")
	}
}

func (r *Row) GetBytes(col int) []byte { return r.Varlen[col] }

// SetBytes copies data into dataArena and records the resulting slice as
// the column's out-of-band payload.
func (r *Row) SetBytes(col int, data []byte, dataArena allocator) error {
	dst, err := dataArena.Allocate(len(data))
	if err != nil {
		return err
	}
	copy(dst, data)
	r.Varlen[col] = dst
	return nil
}

func (r *Row) AggHandle(col int) uint32      { return r.AggH[col] }
func (r *Row) SetAggHandle(col int, h uint32) { r.AggH[col] = h }

// allocator is the slice of *arena.Arena's surface rowcodec depends on;
// kept narrow here so this package never imports pkg/arena.
type allocator interface {
	Allocate(n int) ([]byte, error)
}
