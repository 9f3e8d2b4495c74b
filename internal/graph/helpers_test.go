package graph

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
)

// fn builds a normalized function for fixtures. Callers are derived later by
// linkCallers so fixtures only list outgoing calls.
func fn(id, file string, start, end int, callees ...string) UnifiedFunction {
	return UnifiedFunction{
		ID:        id,
		Name:      id,
		File:      file,
		StartLine: start,
		EndLine:   end,
		CalleeIDs: callees,
	}
}

// reads attaches a read access to f.
func reads(f UnifiedFunction, table string, line int, fields ...string) UnifiedFunction {
	f.DataAccess = append(f.DataAccess, DataAccessRef{
		Table:     table,
		Operation: OpRead,
		Fields:    fields,
		Line:      line,
	})
	f.IsDataAccessor = true
	return f
}

// entry marks f as an entry point.
func entry(f UnifiedFunction) UnifiedFunction {
	f.IsEntryPoint = true
	return f
}

// linkCallers fills CallerIDs from every function's CalleeIDs.
func linkCallers(fns []UnifiedFunction) []UnifiedFunction {
	idx := make(map[string]int, len(fns))
	for i := range fns {
		idx[fns[i].ID] = i
		fns[i].CallerIDs = nil
	}
	for _, f := range fns {
		for _, callee := range f.CalleeIDs {
			if j, ok := idx[callee]; ok {
				fns[j].CallerIDs = append(fns[j].CallerIDs, f.ID)
			}
		}
	}
	return fns
}

// newMemSource builds a MemStore holding fns with caller edges linked.
func newMemSource(t *testing.T, fns ...UnifiedFunction) *MemStore {
	t.Helper()
	m := NewMemStore()
	for _, f := range linkCallers(fns) {
		m.AddFunction(f)
	}
	return m
}

// toNode converts a normalized function back into its wire form.
func toNode(f UnifiedFunction) FunctionNode {
	calls := make([]CallEdge, len(f.CalleeIDs))
	for i, c := range f.CalleeIDs {
		calls[i] = CallEdge{Target: c}
	}
	return FunctionNode{
		ID:             f.ID,
		Name:           f.Name,
		File:           f.File,
		StartLine:      f.StartLine,
		EndLine:        f.EndLine,
		IsEntryPoint:   f.IsEntryPoint,
		IsDataAccessor: f.IsDataAccessor,
		Calls:          calls,
		CalledBy:       f.CallerIDs,
		DataAccess:     f.DataAccess,
	}
}

// memLoader is an in-memory ShardLoader that counts loads per file.
type memLoader struct {
	mu     sync.Mutex
	shards map[string]*CallGraphShard
	fail   map[string]error
	loads  map[string]int
	total   atomic.Int64
	entered atomic.Int64  // LoadShard calls started, counted before the gate
	gate    chan struct{} // when set, LoadShard blocks until closed
}

func newMemLoader(fns ...UnifiedFunction) *memLoader {
	l := &memLoader{
		shards: make(map[string]*CallGraphShard),
		fail:   make(map[string]error),
		loads:  make(map[string]int),
	}
	for _, f := range linkCallers(fns) {
		sh, ok := l.shards[f.File]
		if !ok {
			sh = &CallGraphShard{File: f.File}
			l.shards[f.File] = sh
		}
		sh.Functions = append(sh.Functions, toNode(f))
	}
	return l
}

func (l *memLoader) LoadShard(ctx context.Context, file string) (*CallGraphShard, error) {
	l.entered.Add(1)
	if l.gate != nil {
		select {
		case <-l.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	l.total.Add(1)
	l.mu.Lock()
	defer l.mu.Unlock()
	l.loads[file]++
	if err, ok := l.fail[file]; ok {
		return nil, err
	}
	return l.shards[file], nil
}

func (l *memLoader) ListShards(_ context.Context) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var files []string
	for f := range l.shards {
		files = append(files, f)
	}
	for f := range l.fail {
		files = append(files, f)
	}
	sort.Strings(files)
	return files, nil
}

func (l *memLoader) loadCount(file string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loads[file]
}

var errCorrupt = errors.New("unexpected end of JSON input")

// pathIDs flattens a path to its function ids.
func pathIDs(path []CallPathNode) []string {
	ids := make([]string, len(path))
	for i, n := range path {
		ids[i] = n.FunctionID
	}
	return ids
}

func joinErrs(errs ...error) error {
	return errors.Join(errs...)
}
