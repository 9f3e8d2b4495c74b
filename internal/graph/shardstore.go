package graph

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/dusk-indust/callreach/internal/cache"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Compile-time assertion: *ShardStore satisfies Source.
var _ Source = (*ShardStore)(nil)

// ShardLoader reads per-file shards from storage.
// Implementations: storage.FileLoader (production), in-memory loaders in tests.
type ShardLoader interface {
	// LoadShard decodes the shard for a source file. It returns (nil, nil)
	// when no shard exists for the file.
	LoadShard(ctx context.Context, file string) (*CallGraphShard, error)

	// ListShards returns the source files that have a shard.
	ListShards(ctx context.Context) ([]string, error)
}

// ShardStoreOptions tunes a ShardStore. Zero values pick defaults.
type ShardStoreOptions struct {
	CacheCapacity   int // shards kept decoded; default cache.DefaultCapacity
	HintCapacity    int // id -> file hints remembered; default 65536
	ScanConcurrency int // shards decoded in parallel by ForEachFunction; default 8
}

const (
	defaultHintCapacity    = 1 << 16
	defaultScanConcurrency = 8
	missingCapacity        = 1024
)

// CacheStats is a snapshot of the shard cache counters.
type CacheStats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
	Loaded    int   `json:"loaded"`
	Capacity  int   `json:"capacity"`
}

// ShardStore implements Source over the sharded format. The index is held
// for the store's lifetime; shards are decoded on first use and kept in a
// bounded LRU. An evicted shard is reloaded on its next use.
type ShardStore struct {
	index  *CallGraphIndex
	loader ShardLoader

	shards  *cache.LRU[string, *loadedShard]
	missing *cache.LRU[string, struct{}] // files known to have no shard
	hints   *cache.LRU[string, string]   // function id -> owning file
	loads   singleflight.Group

	// gens is bumped by Invalidate. A load started under an older
	// generation is not cached.
	genMu sync.Mutex
	gens  map[string]uint64

	scanConcurrency int
}

// loadedShard is a decoded shard, already normalized.
type loadedShard struct {
	file      string
	functions []UnifiedFunction
	missing   bool // no shard exists for file
}

// NewShardStore returns a store reading shards through loader.
func NewShardStore(index *CallGraphIndex, loader ShardLoader, opts ShardStoreOptions) *ShardStore {
	if index == nil {
		index = &CallGraphIndex{}
	}
	if opts.HintCapacity <= 0 {
		opts.HintCapacity = defaultHintCapacity
	}
	if opts.ScanConcurrency <= 0 {
		opts.ScanConcurrency = defaultScanConcurrency
	}
	s := &ShardStore{
		index:           index,
		loader:          loader,
		shards:          cache.NewLRU[string, *loadedShard](opts.CacheCapacity),
		missing:         cache.NewLRU[string, struct{}](missingCapacity),
		hints:           cache.NewLRU[string, string](opts.HintCapacity),
		gens:            make(map[string]uint64),
		scanConcurrency: opts.ScanConcurrency,
	}
	for _, refs := range [][]IndexRef{index.TopEntryPoints, index.TopDataAccessors} {
		for _, ref := range refs {
			if ref.File != "" {
				s.hints.Put(ref.ID, ref.File)
			}
		}
	}
	return s
}

// Format reports FormatSharded.
func (s *ShardStore) Format() Format {
	return FormatSharded
}

// Index returns the sharded index.
func (s *ShardStore) Index() *CallGraphIndex {
	return s.index
}

// GetFunction locates the owning file of id, loads that shard and scans it.
// Known file hints are tried before the id heuristic.
func (s *ShardStore) GetFunction(ctx context.Context, id string) (*UnifiedFunction, error) {
	for _, file := range s.candidateFiles(id) {
		sh, err := s.shard(ctx, file)
		if err != nil {
			return nil, err
		}
		for i := range sh.functions {
			if sh.functions[i].ID == id {
				fn := sh.functions[i]
				return &fn, nil
			}
		}
	}
	return nil, nil
}

// candidateFiles returns the files that may own id, best guess first.
func (s *ShardStore) candidateFiles(id string) []string {
	var out []string
	if hinted, ok := s.hints.Peek(id); ok && hinted != "" {
		out = append(out, hinted)
	}
	if guessed := FileFromID(id); guessed != "" && (len(out) == 0 || out[0] != guessed) {
		out = append(out, guessed)
	}
	return out
}

// FunctionsInFile returns the functions of file's shard, ordered by start line.
func (s *ShardStore) FunctionsInFile(ctx context.Context, file string) ([]UnifiedFunction, error) {
	sh, err := s.shard(ctx, file)
	if err != nil {
		return nil, err
	}
	out := make([]UnifiedFunction, len(sh.functions))
	copy(out, sh.functions)
	return out, nil
}

// EntryPoints returns the index's bounded top entry point list. It is a
// summary written by the producer and may omit entry points on large projects.
func (s *ShardStore) EntryPoints(_ context.Context) ([]string, error) {
	return refIDs(s.index.TopEntryPoints), nil
}

// DataAccessors returns the index's bounded top data accessor list, with the
// same caveat as EntryPoints.
func (s *ShardStore) DataAccessors(_ context.Context) ([]string, error) {
	return refIDs(s.index.TopDataAccessors), nil
}

// ForEachFunction decodes every shard with bounded parallelism and calls fn
// serially. Shards already cached are reused; shards decoded here are not
// inserted into the cache so a full scan does not flush the working set.
func (s *ShardStore) ForEachFunction(ctx context.Context, fn func(UnifiedFunction) error) error {
	files, err := s.files(ctx)
	if err != nil {
		return err
	}

	var (
		mu       sync.Mutex
		loadErrs []error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.scanConcurrency)

	for _, file := range files {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			sh, err := s.peekOrDecode(gctx, file)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				mu.Lock()
				loadErrs = append(loadErrs, err)
				mu.Unlock()
				return nil
			}
			mu.Lock()
			defer mu.Unlock()
			for _, uf := range sh.functions {
				if err := fn(uf); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return errors.Join(loadErrs...)
}

// files lists shard files: the index's file list when present, otherwise
// whatever the loader finds in storage.
func (s *ShardStore) files(ctx context.Context) ([]string, error) {
	if len(s.index.Files) > 0 {
		return append([]string(nil), s.index.Files...), nil
	}
	files, err := s.loader.ListShards(ctx)
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// Stats reports the index summary.
func (s *ShardStore) Stats(_ context.Context) (*GraphStats, error) {
	sum := s.index.Summary
	return &GraphStats{
		Format:          FormatSharded,
		TotalFunctions:  sum.TotalFunctions,
		TotalFiles:      sum.TotalFiles,
		EntryPoints:     sum.EntryPoints,
		DataAccessors:   sum.DataAccessors,
		TotalTables:     sum.Tables,
		TotalCallSites:  sum.TotalCalls,
		ResolvedCalls:   sum.ResolvedCalls,
		UnresolvedCalls: sum.UnresolvedCalls,
	}, nil
}

// Warm loads the given files into the cache in parallel. Load failures are
// returned joined; the remaining shards are still cached.
func (s *ShardStore) Warm(ctx context.Context, files []string) error {
	var (
		mu   sync.Mutex
		errs []error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.scanConcurrency)
	for _, file := range files {
		g.Go(func() error {
			if _, err := s.shard(gctx, file); err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return errors.Join(errs...)
}

// Invalidate drops file's shard from the cache so the next use rereads it.
// A load of file already in flight still answers its callers but is not
// cached.
func (s *ShardStore) Invalidate(file string) bool {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	s.gens[file]++
	s.missing.Delete(file)
	return s.shards.Delete(file)
}

func (s *ShardStore) generation(file string) uint64 {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	return s.gens[file]
}

// store caches sh unless file was invalidated after the load began.
// Missing shards go to the negative cache so they never take a slot from a
// real shard.
func (s *ShardStore) store(ctx context.Context, file string, gen uint64, sh *loadedShard) {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	if s.gens[file] != gen {
		return
	}
	if sh.missing {
		s.missing.Put(file, struct{}{})
		return
	}
	if s.shards.Put(file, sh) {
		recordCacheEviction(ctx)
	}
}

// CacheStats returns the shard cache counters.
func (s *ShardStore) CacheStats() CacheStats {
	hits, misses := s.shards.Stats()
	return CacheStats{
		Hits:      hits,
		Misses:    misses,
		Evictions: s.shards.Evictions(),
		Loaded:    s.shards.Len(),
		Capacity:  s.shards.Capacity(),
	}
}

// shard returns file's decoded shard through the cache. Concurrent misses
// for the same file share one load. The shared load ignores the callers'
// cancellation; each caller stops waiting when its own ctx is done.
func (s *ShardStore) shard(ctx context.Context, file string) (*loadedShard, error) {
	if sh, ok := s.shards.Get(file); ok {
		recordCacheHit(ctx)
		return sh, nil
	}
	if _, ok := s.missing.Get(file); ok {
		return &loadedShard{file: file, missing: true}, nil
	}
	recordCacheMiss(ctx)

	gen := s.generation(file)
	key := file + "\x00" + strconv.FormatUint(gen, 10)
	loadCtx := context.WithoutCancel(ctx)
	ch := s.loads.DoChan(key, func() (any, error) {
		if sh, ok := s.shards.Peek(file); ok {
			return sh, nil
		}
		sh, err := s.decode(loadCtx, file)
		if err != nil {
			return nil, err
		}
		s.store(loadCtx, file, gen, sh)
		return sh, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*loadedShard), nil
	}
}

// peekOrDecode returns a cached shard without touching LRU order, or decodes
// it without caching.
func (s *ShardStore) peekOrDecode(ctx context.Context, file string) (*loadedShard, error) {
	if sh, ok := s.shards.Peek(file); ok {
		return sh, nil
	}
	return s.decode(ctx, file)
}

// decode reads and normalizes one shard, recording id hints on the way. A
// missing shard decodes to an empty one.
func (s *ShardStore) decode(ctx context.Context, file string) (*loadedShard, error) {
	start := time.Now()
	raw, err := s.loader.LoadShard(ctx, file)
	recordShardLoad(ctx, time.Since(start), err == nil)
	if err != nil {
		var le *LoadError
		if errors.As(err, &le) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, &LoadError{Kind: "shard", Path: file, Err: err}
	}

	sh := &loadedShard{file: file}
	if raw == nil {
		sh.missing = true
		return sh, nil
	}
	sh.functions = make([]UnifiedFunction, 0, len(raw.Functions))
	for _, node := range raw.Functions {
		if node.File == "" {
			node.File = file
		}
		s.hints.Put(node.ID, node.File)
		for _, call := range node.Calls {
			if call.ResolvedFile != "" {
				if id := call.CalleeID(); id != "" {
					s.hints.Put(id, call.ResolvedFile)
				}
			}
		}
		sh.functions = append(sh.functions, Unify(node))
	}
	sortFunctions(sh.functions)
	return sh, nil
}

func refIDs(refs []IndexRef) []string {
	out := make([]string, 0, len(refs))
	for _, r := range refs {
		out = append(out, r.ID)
	}
	return out
}
