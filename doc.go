// Package diskarray gives array indexing semantics to n-dimensional data that
// can only be read or written one block at a time.
//
// A Backend reads and writes axis-aligned blocks. An Array wraps a backend and
// resolves index expressions against its chunk grid into a Plan of block
// operations, then runs the plan and assembles the result:
//
//	arr, _ := diskarray.New[float32](store)
//	col, _ := arr.Get(ctx, diskarray.All(), diskarray.At(3))
//	pts, _ := arr.Get(ctx, diskarray.Ints(1, 1500), diskarray.Span(0, 10))
//
// Values walks every element while keeping a single chunk in memory:
//
//	it := arr.Values()
//	for coord, v := range it.All(ctx) {
//		...
//	}
//	if err := it.Err(); err != nil {
//		...
//	}
//
// # Batching
//
// How sparse selections are grouped into blocks is set by a BatchStrategy:
// ChunkRead (the default) reads one block per intersected chunk, SubRanges
// reads contiguous runs unless the selection is dense, and NoBatch reads one
// block per run.
//
// # Caching
//
// A Cache is itself a Backend. Put it between an Array and a slow backend to
// keep recently used chunks in memory:
//
//	cache, _ := diskarray.NewCache[float32](store, diskarray.DefaultCacheSizeMB, true)
//	defer cache.Close()
//	arr, _ := diskarray.New[float32](cache)
//
// With spilling enabled, evicted chunks are kept in memory-mapped temp files.
package diskarray
