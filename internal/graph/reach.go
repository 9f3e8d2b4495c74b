package graph

import (
	"context"
	"errors"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
)

// ReachOptions controls a forward reachability query.
type ReachOptions struct {
	// MaxDepth is the deepest call level expanded; 0 means only the starting
	// function. Negative values select DefaultMaxDepth.
	MaxDepth int

	// SensitiveOnly filters ReachableAccess down to sensitive tables. Tables
	// and SensitiveFields are not filtered.
	SensitiveOnly bool
}

// DefaultReachOptions returns MaxDepth 10 with no filtering.
func DefaultReachOptions() ReachOptions {
	return ReachOptions{MaxDepth: DefaultMaxDepth}
}

// ReachableData answers "what data can the code at file:line reach?".
//
// The innermost function containing the line is the starting point. Callees
// are expanded breadth-first; each function id is expanded at most once per
// query, so cycles and recursion terminate, and the first path discovered to
// a function is the one reported. Dangling callee ids are counted in
// UnresolvedCalls and skipped. Shards that fail to load are listed in
// LoadErrors and skipped. Only context cancellation returns an error.
func (e *Engine) ReachableData(ctx context.Context, file string, line int, opts ReachOptions) (*ReachabilityResult, error) {
	if opts.MaxDepth < 0 {
		opts.MaxDepth = DefaultMaxDepth
	}
	ctx, span := startQuerySpan(ctx, "ReachableData",
		attribute.String("callgraph.file", file),
		attribute.Int("callgraph.line", line),
		attribute.Int("callgraph.max_depth", opts.MaxDepth),
	)
	defer span.End()
	started := time.Now()

	result := &ReachabilityResult{
		ReachableAccess: []ReachableDataAccess{},
		Tables:          []string{},
		SensitiveFields: []SensitiveFieldAccess{},
	}
	b := newBudget(e.maxFunctions)

	origin, err := FunctionAtLine(ctx, e.src, file, line)
	if err != nil {
		if errors.Is(err, ErrInvalidLine) {
			return result, nil
		}
		if rest := b.absorb(err); rest != nil {
			span.RecordError(rest)
			return nil, rest
		}
		result.LoadErrors = b.loadErrs
		return result, nil
	}
	if origin == nil {
		return result, nil
	}
	node := pathNode(origin)
	result.Origin = &node

	tables := make(map[string]bool)
	sensitive := make(map[string]*SensitiveFieldAccess)
	sensitivePaths := make(map[string]map[string]bool)
	visited := make(map[string]bool)

	queue := []hop{{id: origin.ID, fn: origin}}
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			span.RecordError(err)
			return nil, err
		}
		cur := queue[0]
		queue = queue[1:]

		if cur.depth > opts.MaxDepth || visited[cur.id] {
			continue
		}
		if b.exhausted() {
			break
		}
		visited[cur.id] = true

		fn, err := e.resolve(ctx, cur, b)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		if fn == nil {
			continue
		}
		b.used++
		if cur.depth > result.MaxDepth {
			result.MaxDepth = cur.depth
		}

		path := extendPath(cur.parent, fn)
		for _, da := range fn.DataAccess {
			tables[da.Table] = true
			result.ReachableAccess = append(result.ReachableAccess, ReachableDataAccess{
				Table:       da.Table,
				Operation:   da.Operation,
				Fields:      append([]string(nil), da.Fields...),
				AccessPoint: accessPoint(fn, da),
				Path:        path,
				Depth:       cur.depth,
			})

			for _, field := range da.Fields {
				if !e.sensitivity.IsSensitiveField(field) {
					continue
				}
				key := da.Table + "." + field
				agg, ok := sensitive[key]
				if !ok {
					agg = &SensitiveFieldAccess{Table: da.Table, Field: field, Key: key}
					sensitive[key] = agg
					sensitivePaths[key] = make(map[string]bool)
				}
				agg.AccessCount++
				if pk := pathKey(path); !sensitivePaths[key][pk] {
					sensitivePaths[key][pk] = true
					agg.Paths = append(agg.Paths, path)
				}
			}
		}

		for _, callee := range fn.CalleeIDs {
			if !visited[callee] {
				queue = append(queue, hop{id: callee, depth: cur.depth + 1, parent: path})
			}
		}
	}

	result.FunctionsTraversed = b.used
	result.UnresolvedCalls = b.unresolved
	result.Truncated = b.truncated
	result.LoadErrors = b.loadErrs

	for t := range tables {
		result.Tables = append(result.Tables, t)
	}
	sort.Strings(result.Tables)

	for _, agg := range sensitive {
		result.SensitiveFields = append(result.SensitiveFields, *agg)
	}
	sort.Slice(result.SensitiveFields, func(i, j int) bool {
		return result.SensitiveFields[i].Key < result.SensitiveFields[j].Key
	})

	if opts.SensitiveOnly {
		filtered := result.ReachableAccess[:0]
		for _, ra := range result.ReachableAccess {
			if e.sensitivity.IsSensitiveTable(ra.Table) {
				filtered = append(filtered, ra)
			}
		}
		result.ReachableAccess = filtered
	}

	span.SetAttributes(
		attribute.Int("callgraph.functions_traversed", result.FunctionsTraversed),
		attribute.Int("callgraph.accesses", len(result.ReachableAccess)),
		attribute.Bool("callgraph.truncated", result.Truncated),
	)
	recordQuery(ctx, "reachable_data", time.Since(started), len(result.ReachableAccess))
	return result, nil
}
