package tablet

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skylakedb/memtable/pkg/rowcodec"
	"github.com/skylakedb/memtable/pkg/writer"
)

func testSchema() *rowcodec.Schema {
	return rowcodec.NewSchema([]rowcodec.ColumnSpec{
		{Name: "k", Type: rowcodec.TypeInt64},
	}, rowcodec.DUP, 1, rowcodec.Lexicographic, 0, -1)
}

func TestCreateMemTableRegistersUnderTabletID(t *testing.T) {
	writers := map[int64]*writer.InMemory{}
	o, err := NewOrchestrator(func(id int64) writer.RowSetWriter {
		w := writer.NewInMemory()
		writers[id] = w
		return w
	}, nil, Opts{})
	require.NoError(t, err)
	defer o.Close()

	mt, err := o.CreateMemTable(7, testSchema())
	require.NoError(t, err)
	assert.Equal(t, int64(7), mt.TabletID())
}

func TestFlushAllFlushesEveryRegisteredTablet(t *testing.T) {
	writers := map[int64]*writer.InMemory{}
	o, err := NewOrchestrator(func(id int64) writer.RowSetWriter {
		w := writer.NewInMemory()
		writers[id] = w
		return w
	}, nil, Opts{})
	require.NoError(t, err)
	defer o.Close()

	mt1, err := o.CreateMemTable(1, testSchema())
	require.NoError(t, err)
	mt2, err := o.CreateMemTable(2, testSchema())
	require.NoError(t, err)

	require.NoError(t, mt1.Insert(rowcodec.InputRow{Values: []rowcodec.InputValue{{Int: 1}}}))
	require.NoError(t, mt2.Insert(rowcodec.InputRow{Values: []rowcodec.InputValue{{Int: 2}}}))

	require.NoError(t, o.FlushAll(context.Background()))

	assert.Equal(t, 1, writers[1].Flushes)
	assert.Equal(t, 1, writers[2].Flushes)
}

func TestEnqueueFlushDrainsThroughWorkerPool(t *testing.T) {
	writers := map[int64]*writer.InMemory{}
	o, err := NewOrchestrator(func(id int64) writer.RowSetWriter {
		w := writer.NewInMemory()
		writers[id] = w
		return w
	}, nil, Opts{PoolSize: 2})
	require.NoError(t, err)
	defer o.Close()

	o.Start(context.Background())

	mt, err := o.CreateMemTable(5, testSchema())
	require.NoError(t, err)
	require.NoError(t, mt.Insert(rowcodec.InputRow{Values: []rowcodec.InputValue{{Int: 1}}}))

	o.EnqueueFlush(5)

	require.Eventually(t, func() bool {
		w, ok := writers[5]
		return ok && w.Flushes == 1
	}, time.Second, 5*time.Millisecond)
}

// TestCloseWaitsForInFlightPoolFlushBeforeClosingMemtable guards against
// Close racing an async flush still running on a pool goroutine: enqueue
// a flush, then immediately Close, and require the flush to have landed
// exactly once with no panic from a concurrent mt.Close().
func TestCloseWaitsForInFlightPoolFlushBeforeClosingMemtable(t *testing.T) {
	writers := map[int64]*writer.InMemory{}
	o, err := NewOrchestrator(func(id int64) writer.RowSetWriter {
		w := writer.NewInMemory()
		writers[id] = w
		return w
	}, nil, Opts{PoolSize: 1})
	require.NoError(t, err)

	o.Start(context.Background())

	mt, err := o.CreateMemTable(9, testSchema())
	require.NoError(t, err)
	require.NoError(t, mt.Insert(rowcodec.InputRow{Values: []rowcodec.InputValue{{Int: 1}}}))

	o.EnqueueFlush(9)
	require.NoError(t, o.Close())

	assert.Equal(t, 1, writers[9].Flushes)
}

func TestCloseIsIdempotentAndReturnsErrClosedOnSecondCall(t *testing.T) {
	o, err := NewOrchestrator(func(id int64) writer.RowSetWriter {
		return writer.NewInMemory()
	}, nil, Opts{})
	require.NoError(t, err)

	require.NoError(t, o.Close())
	assert.ErrorIs(t, o.Close(), ErrClosed)
}

func TestAvgFlushDurationIsZeroBeforeAnyFlush(t *testing.T) {
	o, err := NewOrchestrator(func(id int64) writer.RowSetWriter {
		return writer.NewInMemory()
	}, nil, Opts{})
	require.NoError(t, err)
	defer o.Close()

	assert.Equal(t, time.Duration(0), o.AvgFlushDuration())
}
