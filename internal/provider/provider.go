// Package provider is the public entry point to a project's call graph. It
// resolves the storage format once, owns the shard cache and answers
// lookups and reachability queries through one object.
package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dusk-indust/callreach/internal/config"
	"github.com/dusk-indust/callreach/internal/graph"
	"github.com/dusk-indust/callreach/internal/storage"
)

// Options configures a Provider. Zero values pick the package defaults.
type Options struct {
	StateDir        string
	CacheCapacity   int
	HintCapacity    int
	ScanConcurrency int
	MaxDepth        *int // default depth for DefaultReachOptions; nil selects graph.DefaultMaxDepth
	MaxFunctions    int
	QueryTimeout    time.Duration // 0 disables the wall-clock budget
	Sensitivity     *graph.Sensitivity
	Watch           bool
	Logger          *slog.Logger
}

// OptionsFromConfig maps a project config onto provider options.
func OptionsFromConfig(cfg *config.ProjectConfig, logger *slog.Logger) Options {
	if cfg == nil {
		cfg = config.Default()
	}
	depth := cfg.Depth()
	return Options{
		StateDir:        cfg.StateDir,
		CacheCapacity:   cfg.CacheCapacity,
		HintCapacity:    cfg.HintCapacity,
		ScanConcurrency: cfg.ScanConcurrency,
		MaxDepth:        &depth,
		MaxFunctions:    cfg.MaxFunctions,
		QueryTimeout:    cfg.Timeout(),
		Sensitivity:     graph.NewSensitivity(cfg.SensitiveFields, cfg.SensitiveTables),
		Watch:           cfg.Watch,
		Logger:          logger,
	}
}

// ProviderStats is GraphStats plus the runtime state of the provider and its
// shard cache.
type ProviderStats struct {
	graph.GraphStats
	Initialized    bool  `json:"initialized"`
	Available      bool  `json:"available"`
	CacheHits      int64 `json:"cacheHits"`
	CacheMisses    int64 `json:"cacheMisses"`
	CacheEvictions int64 `json:"cacheEvictions"`
	ShardsLoaded   int   `json:"shardsLoaded"`
	CacheCapacity  int   `json:"cacheCapacity"`
}

// Provider answers call-graph queries for one project root.
//
// Initialize must be called once before lookups. The format chosen there is
// fixed for the provider's lifetime. Reachability queries and stats on an
// uninitialized provider, or one with no call graph, return empty results.
// Safe for concurrent use.
type Provider struct {
	root   string
	layout storage.Layout
	opts   Options
	logger *slog.Logger

	initOnce sync.Once
	initErr  error

	mu          sync.RWMutex
	initialized bool
	format      graph.Format
	src         graph.Source
	shards      *graph.ShardStore
	engine      *graph.Engine
	watcher     *storage.ShardWatcher
}

// New returns a provider for the project at root. It does not touch storage
// until Initialize.
func New(root string, opts Options) *Provider {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Provider{
		root:   root,
		layout: storage.NewLayout(root, opts.StateDir),
		opts:   opts,
		logger: logger.With(slog.String("component", "callgraph_provider")),
		format: graph.FormatNone,
	}
}

// Root returns the project root the provider was created for.
func (p *Provider) Root() string {
	return p.root
}

// Layout returns the storage layout the provider reads from.
func (p *Provider) Layout() storage.Layout {
	return p.layout
}

// Initialize detects the storage format and loads what that format needs up
// front: the whole legacy graph, or the sharded index. It runs once; later
// calls return the first call's result.
//
// A graph that is detected but cannot be decoded leaves the provider
// initialized with that format but unavailable, and the load error is
// returned.
func (p *Provider) Initialize(ctx context.Context) error {
	p.initOnce.Do(func() {
		p.initErr = p.initialize(ctx)
	})
	return p.initErr
}

func (p *Provider) initialize(ctx context.Context) error {
	start := time.Now()
	format := storage.DetectFormat(p.layout)

	var (
		src    graph.Source
		shards *graph.ShardStore
		err    error
	)
	switch format {
	case graph.FormatLegacy:
		var g *graph.LegacyGraph
		if g, err = storage.LoadLegacy(p.layout); err == nil {
			src = graph.NewLegacyStore(g)
		}
	case graph.FormatSharded:
		var idx *graph.CallGraphIndex
		if idx, err = storage.LoadIndex(p.layout); err == nil {
			shards = graph.NewShardStore(idx, storage.NewFileLoader(p.layout), graph.ShardStoreOptions{
				CacheCapacity:   p.opts.CacheCapacity,
				HintCapacity:    p.opts.HintCapacity,
				ScanConcurrency: p.opts.ScanConcurrency,
			})
			src = shards
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.initialized = true
	p.format = format
	if err != nil {
		p.logger.Error("call graph load failed",
			slog.String("format", string(format)),
			slog.Any("error", err),
		)
		return fmt.Errorf("provider: initialize: %w", err)
	}
	p.src = src
	p.shards = shards
	if src != nil {
		p.engine = graph.NewEngine(src,
			graph.WithSensitivity(p.opts.Sensitivity),
			graph.WithMaxFunctions(p.maxFunctions()),
		)
	}
	if shards != nil && p.opts.Watch {
		p.startWatcher(ctx, shards)
	}

	p.logger.Info("call graph initialized",
		slog.String("root", p.root),
		slog.String("format", string(format)),
		slog.Duration("took", time.Since(start)),
	)
	return nil
}

// startWatcher is best effort: a watcher that cannot start only costs
// freshness. Caller holds p.mu.
func (p *Provider) startWatcher(ctx context.Context, shards *graph.ShardStore) {
	w, err := storage.NewShardWatcher(p.layout, shards, p.logger, 0)
	if err == nil {
		err = w.Start(context.WithoutCancel(ctx))
	}
	if err != nil {
		p.logger.Warn("shard watcher not started", slog.Any("error", err))
		if w != nil {
			_ = w.Stop()
		}
		return
	}
	p.watcher = w
}

func (p *Provider) maxFunctions() int {
	if p.opts.MaxFunctions == 0 {
		return graph.DefaultMaxFunctions
	}
	return p.opts.MaxFunctions
}

// IsAvailable reports whether a call graph was found and loaded. It never
// touches storage.
func (p *Provider) IsAvailable() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.src != nil
}

// Format returns the active format; FormatNone before Initialize.
func (p *Provider) Format() graph.Format {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.format
}

// DefaultReachOptions returns forward query options at the configured depth.
func (p *Provider) DefaultReachOptions() graph.ReachOptions {
	depth := graph.DefaultMaxDepth
	if p.opts.MaxDepth != nil && *p.opts.MaxDepth >= 0 {
		depth = *p.opts.MaxDepth
	}
	return graph.ReachOptions{MaxDepth: depth}
}

// DefaultInverseOptions returns inverse query options for table/field at the
// configured depth.
func (p *Provider) DefaultInverseOptions(table, field string) graph.InverseOptions {
	return graph.InverseOptions{Table: table, Field: field, MaxDepth: p.DefaultReachOptions().MaxDepth}
}

// source returns the active source. It fails with ErrNotInitialized before
// Initialize and returns a nil source when no graph is available.
func (p *Provider) source() (graph.Source, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.initialized {
		return nil, graph.ErrNotInitialized
	}
	return p.src, nil
}

// GetFunction returns the function with id, or nil if it does not exist.
func (p *Provider) GetFunction(ctx context.Context, id string) (*graph.UnifiedFunction, error) {
	src, err := p.source()
	if err != nil || src == nil {
		return nil, err
	}
	return src.GetFunction(ctx, id)
}

// FunctionsInFile returns the functions defined in file, by start line.
func (p *Provider) FunctionsInFile(ctx context.Context, file string) ([]graph.UnifiedFunction, error) {
	src, err := p.source()
	if err != nil || src == nil {
		return nil, err
	}
	return src.FunctionsInFile(ctx, file)
}

// FunctionAtLine returns the innermost function of file containing line.
func (p *Provider) FunctionAtLine(ctx context.Context, file string, line int) (*graph.UnifiedFunction, error) {
	src, err := p.source()
	if err != nil || src == nil {
		return nil, err
	}
	return graph.FunctionAtLine(ctx, src, file, line)
}

// EntryPoints returns entry point ids. Under the sharded format this is the
// index's bounded top list and may be incomplete.
func (p *Provider) EntryPoints(ctx context.Context) ([]string, error) {
	src, err := p.source()
	if err != nil || src == nil {
		return nil, err
	}
	return src.EntryPoints(ctx)
}

// DataAccessors returns data accessor ids, with the same caveat as
// EntryPoints.
func (p *Provider) DataAccessors(ctx context.Context) ([]string, error) {
	src, err := p.source()
	if err != nil || src == nil {
		return nil, err
	}
	return src.DataAccessors(ctx)
}

// ReachableData runs a forward reachability query from file:line. Without an
// available graph the result is empty.
func (p *Provider) ReachableData(ctx context.Context, file string, line int, opts graph.ReachOptions) (*graph.ReachabilityResult, error) {
	engine := p.currentEngine()
	if engine == nil {
		return emptyReachability(), nil
	}
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	res, err := engine.ReachableData(ctx, file, line, opts)
	if err != nil {
		return nil, fmt.Errorf("provider: reachable data from %s:%d: %w", file, line, err)
	}
	p.logQuery("reachable_data", res.LoadErrors, res.Truncated,
		slog.String("file", file),
		slog.Int("line", line),
		slog.Int("functions_traversed", res.FunctionsTraversed),
		slog.Int("accesses", len(res.ReachableAccess)),
	)
	return res, nil
}

// PathsToData runs an inverse reachability query for a table and optional
// field. Without an available graph the result is empty.
func (p *Provider) PathsToData(ctx context.Context, opts graph.InverseOptions) (*graph.InverseReachabilityResult, error) {
	engine := p.currentEngine()
	if engine == nil {
		return emptyInverse(opts), nil
	}
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	res, err := engine.PathsToData(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("provider: paths to %s: %w", opts.Table, err)
	}
	p.logQuery("paths_to_data", res.LoadErrors, res.Truncated,
		slog.String("table", opts.Table),
		slog.String("field", opts.Field),
		slog.Int("accessors", res.TotalAccessors),
		slog.Int("entry_points", len(res.EntryPoints)),
	)
	return res, nil
}

// Stats returns graph counts for the active format. Before Initialize, or
// with no call graph, the counts are zero.
func (p *Provider) Stats(ctx context.Context) (*graph.GraphStats, error) {
	src, err := p.source()
	if errors.Is(err, graph.ErrNotInitialized) {
		return &graph.GraphStats{Format: graph.FormatNone}, nil
	}
	if err != nil {
		return nil, err
	}
	if src == nil {
		return &graph.GraphStats{Format: p.Format()}, nil
	}
	return src.Stats(ctx)
}

// ProviderStats adds cache counters and provider state to Stats. It never
// fails: an uninitialized provider reports zero counts.
func (p *Provider) ProviderStats(ctx context.Context) *ProviderStats {
	out := &ProviderStats{}
	p.mu.RLock()
	out.Initialized = p.initialized
	out.Available = p.src != nil
	out.Format = p.format
	src, shards := p.src, p.shards
	p.mu.RUnlock()

	if src != nil {
		if gs, err := src.Stats(ctx); err == nil && gs != nil {
			out.GraphStats = *gs
		}
	}
	if shards != nil {
		cs := shards.CacheStats()
		out.CacheHits = cs.Hits
		out.CacheMisses = cs.Misses
		out.CacheEvictions = cs.Evictions
		out.ShardsLoaded = cs.Loaded
		out.CacheCapacity = cs.Capacity
	}
	return out
}

// Warm preloads shards for files into the cache. It is a no-op for formats
// other than sharded.
func (p *Provider) Warm(ctx context.Context, files []string) error {
	p.mu.RLock()
	shards := p.shards
	p.mu.RUnlock()
	if shards == nil {
		return nil
	}
	return shards.Warm(ctx, files)
}

// Close stops the shard watcher if one is running.
func (p *Provider) Close() error {
	p.mu.Lock()
	w := p.watcher
	p.watcher = nil
	p.mu.Unlock()
	if w == nil {
		return nil
	}
	return w.Stop()
}

func (p *Provider) currentEngine() *graph.Engine {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.engine
}

func (p *Provider) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.opts.QueryTimeout > 0 {
		return context.WithTimeout(ctx, p.opts.QueryTimeout)
	}
	return context.WithCancel(ctx)
}

func (p *Provider) logQuery(query string, loadErrs []string, truncated bool, attrs ...slog.Attr) {
	attrs = append(attrs, slog.String("query", query))
	level := slog.LevelDebug
	if len(loadErrs) > 0 || truncated {
		level = slog.LevelWarn
		attrs = append(attrs,
			slog.Int("load_errors", len(loadErrs)),
			slog.Bool("truncated", truncated),
		)
	}
	p.logger.LogAttrs(context.Background(), level, "call graph query", attrs...)
}

func emptyReachability() *graph.ReachabilityResult {
	return &graph.ReachabilityResult{
		ReachableAccess: []graph.ReachableDataAccess{},
		Tables:          []string{},
		SensitiveFields: []graph.SensitiveFieldAccess{},
	}
}

func emptyInverse(opts graph.InverseOptions) *graph.InverseReachabilityResult {
	return &graph.InverseReachabilityResult{
		Target:      graph.InverseTarget{Table: opts.Table, Field: opts.Field},
		EntryPoints: []string{},
		Paths:       []graph.InversePath{},
	}
}
