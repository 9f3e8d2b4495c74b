package graph

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// shardFixture is a three-file graph: a.go calls b.go calls c.go.
func shardFixture() []UnifiedFunction {
	return []UnifiedFunction{
		entry(fn("a.go:A:1", "a.go", 1, 10, "b.go:B:1")),
		fn("b.go:B:1", "b.go", 1, 10, "c.go:C:1", "missing.go:Gone:1"),
		reads(fn("c.go:C:1", "c.go", 1, 10), "users", 4, "email"),
	}
}

func TestShardStore_GetFunction(t *testing.T) {
	ctx := context.Background()
	loader := newMemLoader(shardFixture()...)
	s := NewShardStore(&CallGraphIndex{}, loader, ShardStoreOptions{CacheCapacity: 10})

	got, err := s.GetFunction(ctx, "b.go:B:1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "b.go", got.File)
	assert.Equal(t, []string{"a.go:A:1"}, got.CallerIDs)

	// Dangling ids resolve to nothing without error.
	gone, err := s.GetFunction(ctx, "missing.go:Gone:1")
	require.NoError(t, err)
	assert.Nil(t, gone)

	noFile, err := s.GetFunction(ctx, "builtin")
	require.NoError(t, err)
	assert.Nil(t, noFile)

	assert.Equal(t, FormatSharded, s.Format())
}

func TestShardStore_CachesShards(t *testing.T) {
	ctx := context.Background()
	loader := newMemLoader(shardFixture()...)
	s := NewShardStore(&CallGraphIndex{}, loader, ShardStoreOptions{CacheCapacity: 10})

	for i := 0; i < 3; i++ {
		_, err := s.GetFunction(ctx, "a.go:A:1")
		require.NoError(t, err)
	}
	assert.Equal(t, 1, loader.loadCount("a.go"))

	stats := s.CacheStats()
	assert.Equal(t, int64(2), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, 1, stats.Loaded)
	assert.Equal(t, 10, stats.Capacity)
}

func TestShardStore_EvictionReloads(t *testing.T) {
	ctx := context.Background()
	loader := newMemLoader(shardFixture()...)
	s := NewShardStore(&CallGraphIndex{}, loader, ShardStoreOptions{CacheCapacity: 2})

	for _, id := range []string{"a.go:A:1", "b.go:B:1", "c.go:C:1"} {
		f, err := s.GetFunction(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, f)
	}
	stats := s.CacheStats()
	assert.Equal(t, 2, stats.Loaded, "cache never exceeds capacity")
	assert.Equal(t, int64(1), stats.Evictions)

	// a.go was evicted; asking again reloads it and still answers correctly.
	f, err := s.GetFunction(ctx, "a.go:A:1")
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, 2, loader.loadCount("a.go"))
}

func TestShardStore_MissingShardIsEmpty(t *testing.T) {
	ctx := context.Background()
	s := NewShardStore(&CallGraphIndex{}, newMemLoader(), ShardStoreOptions{})

	fns, err := s.FunctionsInFile(ctx, "nothing.go")
	require.NoError(t, err)
	assert.Empty(t, fns)
}

func TestShardStore_LoadFailureIsScoped(t *testing.T) {
	ctx := context.Background()
	loader := newMemLoader(shardFixture()...)
	loader.fail["broken.go"] = errCorrupt
	s := NewShardStore(&CallGraphIndex{}, loader, ShardStoreOptions{})

	_, err := s.GetFunction(ctx, "broken.go:X:1")
	require.Error(t, err)
	var le *LoadError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, "broken.go", le.Path)
	assert.Equal(t, "shard", le.Kind)
	assert.ErrorIs(t, err, errCorrupt)

	// Other shards are unaffected.
	f, err := s.GetFunction(ctx, "c.go:C:1")
	require.NoError(t, err)
	assert.NotNil(t, f)
}

func TestShardStore_ResolvedFileHints(t *testing.T) {
	ctx := context.Background()
	// The callee lives in a file whose name contains a colon, so the id
	// heuristic alone cannot find it.
	caller := FunctionNode{
		ID: "main.go:main:1", Name: "main", File: "main.go", StartLine: 1, EndLine: 5,
		Calls: []CallEdge{{Target: "run", ResolvedID: "odd", ResolvedFile: "dir:x/odd.go"}},
	}
	callee := FunctionNode{ID: "odd", Name: "odd", File: "dir:x/odd.go", StartLine: 1, EndLine: 3}
	loader := &memLoader{
		shards: map[string]*CallGraphShard{
			"main.go":      {File: "main.go", Functions: []FunctionNode{caller}},
			"dir:x/odd.go": {File: "dir:x/odd.go", Functions: []FunctionNode{callee}},
		},
		fail:  map[string]error{},
		loads: map[string]int{},
	}
	s := NewShardStore(&CallGraphIndex{}, loader, ShardStoreOptions{})

	before, err := s.GetFunction(ctx, "odd")
	require.NoError(t, err)
	assert.Nil(t, before, "no hint yet and no colon in the id")

	_, err = s.GetFunction(ctx, "main.go:main:1")
	require.NoError(t, err)

	after, err := s.GetFunction(ctx, "odd")
	require.NoError(t, err)
	require.NotNil(t, after, "resolvedFile hint from the caller's shard")
	assert.Equal(t, "dir:x/odd.go", after.File)
}

func TestShardStore_IndexSummaries(t *testing.T) {
	ctx := context.Background()
	idx := &CallGraphIndex{
		Summary: IndexSummary{
			TotalFunctions: 3, TotalFiles: 3, EntryPoints: 1, DataAccessors: 1,
			TotalCalls: 3, ResolvedCalls: 2, UnresolvedCalls: 1, Tables: 1,
		},
		TopEntryPoints:   []IndexRef{{ID: "a.go:A:1", File: "a.go"}},
		TopDataAccessors: []IndexRef{{ID: "c.go:C:1"}},
	}
	s := NewShardStore(idx, newMemLoader(shardFixture()...), ShardStoreOptions{})

	eps, err := s.EntryPoints(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.go:A:1"}, eps)

	das, err := s.DataAccessors(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"c.go:C:1"}, das)

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, FormatSharded, stats.Format)
	assert.Equal(t, 3, stats.TotalFunctions)
	assert.Equal(t, 3, stats.TotalCallSites)
	assert.Equal(t, 1, stats.UnresolvedCalls)
	assert.Equal(t, 1, stats.TotalTables)
	assert.Zero(t, s.CacheStats().Misses, "summaries never load shards")
}

func TestShardStore_ForEachFunction(t *testing.T) {
	ctx := context.Background()

	t.Run("visits everything without filling the cache", func(t *testing.T) {
		s := NewShardStore(&CallGraphIndex{}, newMemLoader(shardFixture()...), ShardStoreOptions{ScanConcurrency: 2})

		var mu sync.Mutex
		seen := map[string]bool{}
		require.NoError(t, s.ForEachFunction(ctx, func(f UnifiedFunction) error {
			mu.Lock()
			defer mu.Unlock()
			seen[f.ID] = true
			return nil
		}))
		assert.Len(t, seen, 3)
		assert.Zero(t, s.CacheStats().Loaded)
	})

	t.Run("index file list wins over listing", func(t *testing.T) {
		idx := &CallGraphIndex{Files: []string{"c.go"}}
		s := NewShardStore(idx, newMemLoader(shardFixture()...), ShardStoreOptions{})

		var seen []string
		require.NoError(t, s.ForEachFunction(ctx, func(f UnifiedFunction) error {
			seen = append(seen, f.ID)
			return nil
		}))
		assert.Equal(t, []string{"c.go:C:1"}, seen)
	})

	t.Run("failed shards are reported after the full walk", func(t *testing.T) {
		loader := newMemLoader(shardFixture()...)
		loader.fail["broken.go"] = errCorrupt
		s := NewShardStore(&CallGraphIndex{}, loader, ShardStoreOptions{})

		count := 0
		err := s.ForEachFunction(ctx, func(UnifiedFunction) error {
			count++
			return nil
		})
		assert.Equal(t, 3, count)
		loads, rest := LoadErrors(err)
		require.Len(t, loads, 1)
		assert.Equal(t, "broken.go", loads[0].Path)
		assert.NoError(t, rest)
	})

	t.Run("callback error stops the walk", func(t *testing.T) {
		s := NewShardStore(&CallGraphIndex{}, newMemLoader(shardFixture()...), ShardStoreOptions{ScanConcurrency: 1})
		stop := errors.New("stop")
		err := s.ForEachFunction(ctx, func(UnifiedFunction) error { return stop })
		assert.ErrorIs(t, err, stop)
	})
}

func TestShardStore_ConcurrentMissesShareOneLoad(t *testing.T) {
	ctx := context.Background()
	loader := newMemLoader(shardFixture()...)
	loader.gate = make(chan struct{})
	s := NewShardStore(&CallGraphIndex{}, loader, ShardStoreOptions{})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f, err := s.GetFunction(ctx, "a.go:A:1")
			assert.NoError(t, err)
			assert.NotNil(t, f)
		}()
	}
	close(loader.gate)
	wg.Wait()

	// Goroutines that arrive after the first load completes hit the cache;
	// those that arrive during it share the in-flight load.
	assert.Equal(t, 1, loader.loadCount("a.go"))
}

func TestShardStore_WarmAndInvalidate(t *testing.T) {
	ctx := context.Background()
	loader := newMemLoader(shardFixture()...)
	s := NewShardStore(&CallGraphIndex{}, loader, ShardStoreOptions{})

	require.NoError(t, s.Warm(ctx, []string{"a.go", "b.go", "c.go"}))
	assert.Equal(t, 3, s.CacheStats().Loaded)

	assert.True(t, s.Invalidate("b.go"))
	assert.False(t, s.Invalidate("b.go"))
	assert.Equal(t, 2, s.CacheStats().Loaded)

	_, err := s.GetFunction(ctx, "b.go:B:1")
	require.NoError(t, err)
	assert.Equal(t, 2, loader.loadCount("b.go"))

	loader.fail["broken.go"] = errCorrupt
	err = s.Warm(ctx, []string{"broken.go"})
	loads, _ := LoadErrors(err)
	assert.Len(t, loads, 1)
}

func TestShardStore_CancelledCallerDoesNotFailSharedLoad(t *testing.T) {
	loader := newMemLoader(shardFixture()...)
	loader.gate = make(chan struct{})
	s := NewShardStore(&CallGraphIndex{}, loader, ShardStoreOptions{})
	e := NewEngine(s)

	// The first caller owns the load of a.go and is then cancelled.
	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := s.GetFunction(ctxA, "a.go:A:1")
		errA <- err
	}()
	require.Eventually(t, func() bool { return loader.entered.Load() == 1 }, time.Second, time.Millisecond)

	type outcome struct {
		res *ReachabilityResult
		err error
	}
	second := make(chan outcome, 1)
	go func() {
		res, err := e.ReachableData(context.Background(), "a.go", 1, DefaultReachOptions())
		second <- outcome{res, err}
	}()

	cancelA()
	assert.ErrorIs(t, <-errA, context.Canceled)

	close(loader.gate)
	got := <-second
	require.NoError(t, got.err)
	assert.Equal(t, []string{"users"}, got.res.Tables)
	assert.Equal(t, 3, got.res.FunctionsTraversed)
	assert.Equal(t, 1, loader.loadCount("a.go"))
	assert.Contains(t, s.shards.Keys(), "a.go", "the shared load is cached even though its starter gave up")
}

func TestShardStore_DanglingFilesStayOutOfCache(t *testing.T) {
	ctx := context.Background()
	loader := newMemLoader(
		fn("a.go:A:1", "a.go", 1, 10, "ghost1.go:X:1", "ghost2.go:Y:1", "b.go:B:1"),
		reads(fn("b.go:B:1", "b.go", 1, 10), "users", 3, "email"),
	)
	s := NewShardStore(&CallGraphIndex{}, loader, ShardStoreOptions{CacheCapacity: 2})
	e := NewEngine(s)

	res, err := e.ReachableData(ctx, "a.go", 1, DefaultReachOptions())
	require.NoError(t, err)
	assert.Equal(t, []string{"users"}, res.Tables)
	assert.Equal(t, 2, res.UnresolvedCalls)

	assert.ElementsMatch(t, []string{"a.go", "b.go"}, s.shards.Keys())
	stats := s.CacheStats()
	assert.Equal(t, 2, stats.Loaded)
	assert.Zero(t, stats.Evictions)

	// Files known to have no shard are not read again.
	_, err = e.ReachableData(ctx, "a.go", 1, DefaultReachOptions())
	require.NoError(t, err)
	assert.Equal(t, 1, loader.loadCount("ghost1.go"))
	assert.Equal(t, 1, loader.loadCount("ghost2.go"))

	// Invalidate forgets that a file had no shard.
	s.Invalidate("ghost1.go")
	_, err = s.GetFunction(ctx, "ghost1.go:X:1")
	require.NoError(t, err)
	assert.Equal(t, 2, loader.loadCount("ghost1.go"))
	assert.ElementsMatch(t, []string{"a.go", "b.go"}, s.shards.Keys())
}

func TestShardStore_InvalidateDuringLoadWins(t *testing.T) {
	ctx := context.Background()
	loader := newMemLoader(shardFixture()...)
	loader.gate = make(chan struct{})
	s := NewShardStore(&CallGraphIndex{}, loader, ShardStoreOptions{})

	done := make(chan error, 1)
	go func() {
		f, err := s.GetFunction(ctx, "b.go:B:1")
		if err == nil && f == nil {
			err = errors.New("b.go:B:1 not found")
		}
		done <- err
	}()
	require.Eventually(t, func() bool { return loader.entered.Load() == 1 }, time.Second, time.Millisecond)

	assert.False(t, s.Invalidate("b.go"), "nothing cached yet")
	close(loader.gate)
	require.NoError(t, <-done, "the in-flight caller still gets its answer")

	assert.Empty(t, s.shards.Keys(), "a load that predates Invalidate is not cached")

	_, err := s.GetFunction(ctx, "b.go:B:1")
	require.NoError(t, err)
	assert.Equal(t, 2, loader.loadCount("b.go"))
	assert.Equal(t, []string{"b.go"}, s.shards.Keys())
}
