package rowcodec

// InputValue is one slot of an upstream input tuple: a null bit plus a
// value pointer, exactly the accessor shape spec.md's external
// interfaces section describes, made concrete and Go-safe instead of
// reaching through an unsafe offset into a foreign buffer.
type InputValue struct {
	Null  bool
	Int   int64
	Float float64
	Bytes []byte // used for TypeVarchar and as the single item fed into an HLL/bitmap column
}

// InputRow is the upstream tuple the memtable consumes through a single
// Insert call. The memtable never retains its Values slice beyond the
// call.
type InputRow struct {
	Values []InputValue
}

// AggPool is the narrow surface of the aggregate object pool (see
// pkg/aggregate) that Encode needs: allocate new durable/scratch state
// and seed it with the row's first value.
type AggPool interface {
	NewHLL(seed []byte) uint32
	NewBitmap(seed []byte) uint32
}

// Encode populates dst from row according to schema, using dataArena for
// every out-of-band byte (variable-length payloads) and pool for every
// aggregate-state column. Schema/type mismatches between row and schema
// are a caller bug (the upstream planner's responsibility per spec.md
// §4.6) and panic rather than return an error; only arena exhaustion
// during a variable-length allocation is returned, since that's the one
// failure spec.md asks the façade to surface as MemoryLimitExceeded.
func Encode(schema *Schema, row InputRow, dst *Row, dataArena allocator, pool AggPool) error {
	if len(row.Values) != len(schema.Columns) {
		panic("rowcodec: input row arity does not match schema")
	}
	for i, col := range schema.Columns {
		v := row.Values[i]
		if v.Null {
			if !col.Nullable {
				panic("rowcodec: null value for non-nullable column")
			}
			dst.SetNull(i, true)
			continue
		}
		dst.SetNull(i, false)
		switch col.Type {
		case TypeInt8, TypeInt16, TypeInt32, TypeInt64,
			TypeUint8, TypeUint16, TypeUint32, TypeUint64, TypeBool:
			dst.SetInt64(i, v.Int)
		case TypeFloat32, TypeFloat64:
			dst.SetFloat64(i, v.Float)
		case TypeVarchar:
			if err := dst.SetBytes(i, v.Bytes, dataArena); err != nil {
				return err
			}
		case TypeHLL:
			dst.SetAggHandle(i, pool.NewHLL(v.Bytes))
		case TypeBitmap:
			dst.SetAggHandle(i, pool.NewBitmap(v.Bytes))
		default:
			panic("rowcodec: unknown column type in Encode")
		}
	}
	return nil
}

// CopyRow deep-copies src (typically buffer-arena-backed) into dst
// (typically table-arena-backed), rebasing every aggregate-state handle
// by aggBase so that handles minted in a scratch pool address the right
// slot after the scratch pool's outstanding objects are appended onto
// the durable pool (see aggregate.Pool.AcquireFrom).
func CopyRow(dst, src *Row, dataArena allocator, aggBase uint32) error {
	copy(dst.Fixed, src.Fixed)
	for i, col := range dst.Schema.Columns {
		switch {
		case col.Type.isVarlen():
			if src.Varlen[i] != nil {
				if err := dst.SetBytes(i, src.Varlen[i], dataArena); err != nil {
					return err
				}
			}
		case col.Type.isAggState():
			if !src.IsNull(i) {
				dst.SetAggHandle(i, src.AggHandle(i)+aggBase)
			}
		}
	}
	return nil
}
