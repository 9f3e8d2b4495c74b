package graph

import (
	"context"
	"sort"
)

// Source is the format-independent view of a call graph.
// Implementations: MemStore (legacy graph, tests), ShardStore (sharded index).
// The reachability engine reads the graph only through this interface.
//
// Lookups return (nil, nil) when a function is absent. A non-nil error means
// the backing data could not be loaded; it is a *LoadError unless the context
// was cancelled.
type Source interface {
	Format() Format

	// Lookups.
	GetFunction(ctx context.Context, id string) (*UnifiedFunction, error)
	FunctionsInFile(ctx context.Context, file string) ([]UnifiedFunction, error)

	// Summaries. For the sharded format these are the index's bounded top
	// lists and may be incomplete.
	EntryPoints(ctx context.Context) ([]string, error)
	DataAccessors(ctx context.Context) ([]string, error)

	// ForEachFunction visits every function exactly once. Per-file load
	// failures do not stop the walk; they are returned joined at the end.
	// An error returned by fn stops the walk and is returned as-is.
	ForEachFunction(ctx context.Context, fn func(UnifiedFunction) error) error

	Stats(ctx context.Context) (*GraphStats, error)
}

// FunctionAtLine returns the innermost function in file whose range contains
// line: among all candidates the one with the smallest span wins, ties broken
// by the later start line. Returns nil when no function covers the line.
func FunctionAtLine(ctx context.Context, src Source, file string, line int) (*UnifiedFunction, error) {
	if line < 1 {
		return nil, ErrInvalidLine
	}
	fns, err := src.FunctionsInFile(ctx, file)
	if err != nil {
		return nil, err
	}
	var best *UnifiedFunction
	for i := range fns {
		fn := &fns[i]
		if !fn.Contains(line) {
			continue
		}
		if best == nil || fn.Span() < best.Span() ||
			(fn.Span() == best.Span() && fn.StartLine > best.StartLine) {
			best = fn
		}
	}
	if best == nil {
		return nil, nil
	}
	out := *best
	return &out, nil
}

// sortFunctions orders functions by start line, then id.
func sortFunctions(fns []UnifiedFunction) {
	sort.Slice(fns, func(i, j int) bool {
		if fns[i].StartLine != fns[j].StartLine {
			return fns[i].StartLine < fns[j].StartLine
		}
		return fns[i].ID < fns[j].ID
	})
}
