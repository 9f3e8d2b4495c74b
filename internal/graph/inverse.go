package graph

import (
	"context"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
)

// InverseOptions selects the data an inverse query starts from.
type InverseOptions struct {
	Table string // compared case-insensitively
	Field string // optional; when set the access must list this exact field

	// MaxDepth bounds how many caller levels are walked from each accessor.
	// Negative values select DefaultMaxDepth.
	MaxDepth int
}

// accessorMatch is a function that touches the target data, with the access
// sites that matched.
type accessorMatch struct {
	fn     UnifiedFunction
	points []DataAccessPoint
}

// PathsToData answers "which entry points can reach this data?".
//
// Every function whose data accesses match the table (and field, if given)
// is an accessor. Table names match case-insensitively, since extractors
// report them as written in each query; field names match exactly. From each accessor the caller edges are walked
// breadth-first with a per-accessor visited set. Reaching an entry point
// records the path in caller-to-accessor order and stops that branch.
// TotalAccessors counts matching accessors whether or not any entry point
// reaches them.
func (e *Engine) PathsToData(ctx context.Context, opts InverseOptions) (*InverseReachabilityResult, error) {
	if opts.MaxDepth < 0 {
		opts.MaxDepth = DefaultMaxDepth
	}
	ctx, span := startQuerySpan(ctx, "PathsToData",
		attribute.String("callgraph.table", opts.Table),
		attribute.String("callgraph.field", opts.Field),
		attribute.Int("callgraph.max_depth", opts.MaxDepth),
	)
	defer span.End()
	started := time.Now()

	result := &InverseReachabilityResult{
		Target:      InverseTarget{Table: opts.Table, Field: opts.Field},
		EntryPoints: []string{},
		Paths:       []InversePath{},
	}
	if opts.Table == "" {
		return result, nil
	}
	b := newBudget(e.maxFunctions)

	var accessors []accessorMatch
	scanErr := e.src.ForEachFunction(ctx, func(fn UnifiedFunction) error {
		if points := matchAccess(&fn, opts); len(points) > 0 {
			accessors = append(accessors, accessorMatch{fn: fn, points: points})
		}
		return nil
	})
	if rest := b.absorb(scanErr); rest != nil {
		span.RecordError(rest)
		return nil, rest
	}
	sort.Slice(accessors, func(i, j int) bool { return accessors[i].fn.ID < accessors[j].fn.ID })
	result.TotalAccessors = len(accessors)

	known, err := e.knownEntryPoints(ctx)
	if err != nil {
		if rest := b.absorb(err); rest != nil {
			return nil, rest
		}
	}

	entries := make(map[string]bool)
	for i := range accessors {
		acc := &accessors[i]
		if err := e.walkCallers(ctx, acc, opts.MaxDepth, known, b, entries, result); err != nil {
			span.RecordError(err)
			return nil, err
		}
		if b.truncated {
			break
		}
	}

	for id := range entries {
		result.EntryPoints = append(result.EntryPoints, id)
	}
	sort.Strings(result.EntryPoints)
	result.UnresolvedCalls = b.unresolved
	result.Truncated = b.truncated
	result.LoadErrors = b.loadErrs

	span.SetAttributes(
		attribute.Int("callgraph.accessors", result.TotalAccessors),
		attribute.Int("callgraph.entry_points", len(result.EntryPoints)),
	)
	recordQuery(ctx, "paths_to_data", time.Since(started), len(result.Paths))
	return result, nil
}

// walkCallers runs the caller-direction BFS for one accessor.
func (e *Engine) walkCallers(
	ctx context.Context,
	acc *accessorMatch,
	maxDepth int,
	known map[string]bool,
	b *budget,
	entries map[string]bool,
	result *InverseReachabilityResult,
) error {
	visited := make(map[string]bool)
	queue := []hop{{id: acc.fn.ID, fn: &acc.fn}}

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		cur := queue[0]
		queue = queue[1:]

		if cur.depth > maxDepth || visited[cur.id] {
			continue
		}
		if b.exhausted() {
			return nil
		}
		visited[cur.id] = true

		fn, err := e.resolve(ctx, cur, b)
		if err != nil {
			return err
		}
		if fn == nil {
			continue
		}
		b.used++

		// Path runs accessor -> ... -> fn while walking outward.
		path := extendPath(cur.parent, fn)
		if fn.IsEntryPoint || known[fn.ID] {
			entries[fn.ID] = true
			ordered := reversePath(path)
			for _, point := range acc.points {
				result.Paths = append(result.Paths, InversePath{
					EntryPoint:  fn.ID,
					Path:        ordered,
					AccessPoint: point,
					Depth:       cur.depth,
				})
			}
			continue
		}

		for _, caller := range fn.CallerIDs {
			if !visited[caller] {
				queue = append(queue, hop{id: caller, depth: cur.depth + 1, parent: path})
			}
		}
	}
	return nil
}

// knownEntryPoints returns the ids the source lists as entry points.
func (e *Engine) knownEntryPoints(ctx context.Context) (map[string]bool, error) {
	ids, err := e.src.EntryPoints(ctx)
	known := make(map[string]bool, len(ids))
	for _, id := range ids {
		known[id] = true
	}
	return known, err
}

// matchAccess returns the access sites of fn on the requested table/field.
// Table names compare case-insensitively; fields compare exactly.
func matchAccess(fn *UnifiedFunction, opts InverseOptions) []DataAccessPoint {
	var points []DataAccessPoint
	for _, da := range fn.DataAccess {
		if !strings.EqualFold(da.Table, opts.Table) {
			continue
		}
		if opts.Field != "" && !da.HasField(opts.Field) {
			continue
		}
		points = append(points, accessPoint(fn, da))
	}
	return points
}

// reversePath returns path in the opposite order.
func reversePath(path []CallPathNode) []CallPathNode {
	out := make([]CallPathNode, len(path))
	for i, n := range path {
		out[len(path)-1-i] = n
	}
	return out
}
