// Command memtable-bench drives synthetic inserts into a single memtable
// and reports throughput and flush statistics, in the spirit of the
// teacher's cmd/benchmark (global atomic counters printed periodically,
// here from the inserting goroutine itself; flag-free constants turned into flags here since this
// binary exercises one memtable rather than a matrix of tree variants).
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sync/atomic"
	"time"

	"github.com/skylakedb/memtable/pkg/memtable"
	"github.com/skylakedb/memtable/pkg/memtracker"
	"github.com/skylakedb/memtable/pkg/rowcodec"
	"github.com/skylakedb/memtable/pkg/writer"
)

var (
	rows        = flag.Int("rows", 2_000_000, "number of rows to insert")
	keyRange    = flag.Int64("key-range", 100_000, "distinct key values, for AGG/UNIQUE merge pressure")
	keyModel    = flag.String("key-model", "agg", "dup | agg | unique")
	memLimitMB  = flag.Int64("mem-limit-mb", 0, "0 disables the memory ceiling")
	reportEvery = flag.Duration("report-every", 2*time.Second, "progress print interval")
)

var insertedCounter atomic.Int64
var rejectedCounter atomic.Int64

func main() {
	flag.Parse()

	model, err := parseKeyModel(*keyModel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	schema := rowcodec.NewSchema(
		[]rowcodec.ColumnSpec{
			{Name: "key", Type: rowcodec.TypeInt64},
			{Name: "value", Type: rowcodec.TypeInt64, Agg: rowcodec.AggSum},
		},
		model, 1, rowcodec.Lexicographic, 0, -1,
	)

	limit := memtracker.Unlimited
	if *memLimitMB > 0 {
		limit = *memLimitMB << 20
	}
	tracker := memtracker.NewRoot("memtable-bench", limit)

	w := writer.NewInMemory()
	mt := memtable.New(1, schema, w, tracker)

	fmt.Printf("** memtable-bench ** rows=%d key-range=%d key-model=%s mem-limit-mb=%d\n",
		*rows, *keyRange, model, *memLimitMB)

	// A memtable is single-writer (spec.md §5): progress is sampled
	// from this same goroutine between inserts rather than from a
	// concurrent reporter, which would race the arena's growing buffer.
	start := time.Now()
	nextReport := start.Add(*reportEvery)
	rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
	for i := 0; i < *rows; i++ {
		key := rnd.Int63n(*keyRange)
		err := mt.Insert(rowcodec.InputRow{Values: []rowcodec.InputValue{
			{Int: key},
			{Int: 1},
		}})
		if err != nil {
			rejectedCounter.Add(1)
			continue
		}
		insertedCounter.Add(1)

		if now := time.Now(); now.After(nextReport) {
			fmt.Printf("  ... inserted=%d rejected=%d memory=%d bytes\n",
				insertedCounter.Load(), rejectedCounter.Load(), mt.MemoryUsage())
			nextReport = now.Add(*reportEvery)
		}
	}
	elapsed := time.Since(start)

	flushStart := time.Now()
	if err := mt.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "flush failed: %v\n", err)
		os.Exit(1)
	}
	flushElapsed := time.Since(flushStart)

	fmt.Printf("inserted=%d rejected=%d elapsed=%s throughput=%.0f rows/sec\n",
		insertedCounter.Load(), rejectedCounter.Load(), elapsed, float64(insertedCounter.Load())/elapsed.Seconds())
	fmt.Printf("flush: rows-inserted=%d bytes=%d duration=%s\n", mt.RowsInserted(), mt.FlushSize(), flushElapsed)
}

func parseKeyModel(s string) (rowcodec.KeyModel, error) {
	switch s {
	case "dup":
		return rowcodec.DUP, nil
	case "agg":
		return rowcodec.AGG, nil
	case "unique":
		return rowcodec.UNIQUE, nil
	default:
		return 0, fmt.Errorf("unknown -key-model %q (want dup, agg, or unique)", s)
	}
}
