package aggregate

import "github.com/skylakedb/memtable/pkg/rowcodec"

// Allocator is the arena surface aggregation needs for side allocations
// (e.g. replacing a varchar cell in place requires a fresh out-of-band
// copy in the table arena).
type Allocator interface {
	Allocate(n int) ([]byte, error)
}

// Aggregator applies schema's per-column aggregate functions to merge
// one row into another in place. One instance is owned per memtable.
type Aggregator struct {
	schema *rowcodec.Schema
}

func New(schema *rowcodec.Schema) *Aggregator {
	return &Aggregator{schema: schema}
}

// Update merges src into dst column-by-column for every non-key column,
// dispatching on each column's configured AggFunc. dstPool/srcPool
// resolve aggregate-state handles for dst and src respectively — they
// may be the same pool (both durable, if called on two index rows,
// which never happens in this façade) or table/scratch as usual. Under
// the UNIQUE key model every column is treated as AggReplace, so the
// later arrival wins regardless of the column's configured AggFunc.
func (a *Aggregator) Update(dst, src *rowcodec.Row, tableArena Allocator, dstPool, srcPool *Pool) error {
	for i, col := range a.schema.Columns {
		if a.schema.IsKeyColumn(i) {
			continue
		}
		if src.IsNull(i) {
			continue
		}
		wasNull := dst.IsNull(i)
		dst.SetNull(i, false)
		fn := col.Agg
		if a.schema.KeyModel == rowcodec.UNIQUE {
			fn = rowcodec.AggReplace
		}
		switch fn {
		case rowcodec.AggSum:
			dst.SetInt64(i, dst.GetInt64(i)+src.GetInt64(i))
		case rowcodec.AggMin:
			if v := src.GetInt64(i); wasNull || v < dst.GetInt64(i) {
				dst.SetInt64(i, v)
			}
		case rowcodec.AggMax:
			if v := src.GetInt64(i); wasNull || v > dst.GetInt64(i) {
				dst.SetInt64(i, v)
			}
		case rowcodec.AggHLLUnion:
			dstPool.HLL(dst.AggHandle(i)).Merge(srcPool.HLL(src.AggHandle(i)))
		case rowcodec.AggBitmapUnion:
			dstPool.Bitmap(dst.AggHandle(i)).Or(srcPool.Bitmap(src.AggHandle(i)))
		default: // AggNone, AggReplace
			if err := copyCell(dst, src, i, col.Type, tableArena, dstPool, srcPool); err != nil {
				return err
			}
		}
	}
	return nil
}

// UpdateWithSequence implements UNIQUE-with-sequence-column semantics:
// if src's sequence value is >= dst's, every non-key column in dst is
// overwritten from src wholesale (ignoring each column's own AggFunc);
// otherwise the call is a no-op. Ties resolve to the later arrival
// (src), matching spec.md scenario 5.
func (a *Aggregator) UpdateWithSequence(dst, src *rowcodec.Row, seqIdx int, tableArena Allocator, dstPool, srcPool *Pool) error {
	if src.GetInt64(seqIdx) < dst.GetInt64(seqIdx) {
		return nil
	}
	for i, col := range a.schema.Columns {
		if a.schema.IsKeyColumn(i) {
			continue
		}
		if src.IsNull(i) {
			dst.SetNull(i, true)
			continue
		}
		dst.SetNull(i, false)
		if err := copyCell(dst, src, i, col.Type, tableArena, dstPool, srcPool); err != nil {
			return err
		}
	}
	return nil
}

// copyCell copies one non-key cell from src to dst. For agg-state
// columns, dstPool/srcPool must be the pools that resolve dst's and
// src's handles respectively: when they differ, the referenced object
// is adopted into dstPool so dst's handle stays valid after srcPool is
// reset (raw handle copy would alias a scratch-pool slot that gets
// reused by the next insert).
func copyCell(dst, src *rowcodec.Row, i int, t rowcodec.ColumnType, tableArena Allocator, dstPool, srcPool *Pool) error {
	switch {
	case t.IsVarlen():
		return dst.SetBytes(i, src.GetBytes(i), tableArena)
	case t.IsAggState():
		h := src.AggHandle(i)
		if dstPool != srcPool {
			h = dstPool.adopt(srcPool.states[h])
		}
		dst.SetAggHandle(i, h)
		return nil
	default:
		if t == rowcodec.TypeFloat32 || t == rowcodec.TypeFloat64 {
			dst.SetFloat64(i, src.GetFloat64(i))
		} else {
			dst.SetInt64(i, src.GetInt64(i))
		}
		return nil
	}
}

// Finalize converts non-finalized aggregate state into its
// externally-visible representation. HLL sketches stay as their live
// state (the estimate is computed on read); bitmap aggregates compact
// via RunOptimize.
func (a *Aggregator) Finalize(row *rowcodec.Row, pool *Pool) {
	for i, col := range a.schema.Columns {
		if col.Agg != rowcodec.AggBitmapUnion || row.IsNull(i) {
			continue
		}
		pool.Bitmap(row.AggHandle(i)).RunOptimize()
	}
}
