package graph

import (
	"context"
	"sort"
	"sync"
)

// Compile-time assertion: *MemStore satisfies Source.
var _ Source = (*MemStore)(nil)

// MemStore implements Source over a call graph held entirely in memory. It
// backs the legacy single-file format and is the fixture store in tests.
// Thread-safe via sync.RWMutex.
type MemStore struct {
	mu            sync.RWMutex
	format        Format
	functions     map[string]UnifiedFunction
	byFile        map[string][]string // file -> function ids, in insertion order
	entryPoints   []string            // explicit list from the legacy document, if any
	dataAccessors []string
}

// NewMemStore returns an empty MemStore reporting the legacy format.
func NewMemStore() *MemStore {
	return &MemStore{
		format:    FormatLegacy,
		functions: make(map[string]UnifiedFunction),
		byFile:    make(map[string][]string),
	}
}

// NewLegacyStore builds a MemStore from a decoded legacy graph. Map keys win
// over the id field when a node omits its id.
func NewLegacyStore(g *LegacyGraph) *MemStore {
	m := NewMemStore()
	if g == nil {
		return m
	}
	ids := make([]string, 0, len(g.Functions))
	for id := range g.Functions {
		ids = append(ids, id)
	}
	// Deterministic per-file ordering regardless of map iteration.
	sort.Strings(ids)
	for _, id := range ids {
		node := g.Functions[id]
		if node.ID == "" {
			node.ID = id
		}
		m.AddNode(node)
	}
	m.entryPoints = append([]string(nil), g.EntryPoints...)
	m.dataAccessors = append([]string(nil), g.DataAccessors...)
	return m
}

// AddNode normalizes and stores a wire function node.
func (m *MemStore) AddNode(node FunctionNode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.put(Unify(node))
}

// AddFunction stores an already normalized function, replacing any function
// with the same id.
func (m *MemStore) AddFunction(fn UnifiedFunction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.put(fn)
}

func (m *MemStore) put(fn UnifiedFunction) {
	if old, ok := m.functions[fn.ID]; ok {
		m.byFile[old.File] = removeID(m.byFile[old.File], fn.ID)
	}
	m.functions[fn.ID] = fn
	m.byFile[fn.File] = append(m.byFile[fn.File], fn.ID)
}

// Format reports the format this store stands for.
func (m *MemStore) Format() Format {
	return m.format
}

// GetFunction returns the function with the given id, or nil if not found.
func (m *MemStore) GetFunction(_ context.Context, id string) (*UnifiedFunction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	fn, ok := m.functions[id]
	if !ok {
		return nil, nil
	}
	return &fn, nil
}

// FunctionsInFile returns the functions defined in file, ordered by start line.
func (m *MemStore) FunctionsInFile(_ context.Context, file string) ([]UnifiedFunction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := m.byFile[file]
	out := make([]UnifiedFunction, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.functions[id])
	}
	sortFunctions(out)
	return out, nil
}

// EntryPoints returns the graph's entry point ids. The explicit list from the
// legacy document is used when present, otherwise functions are scanned.
func (m *MemStore) EntryPoints(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.entryPoints) > 0 {
		return append([]string(nil), m.entryPoints...), nil
	}
	return m.scan(func(fn UnifiedFunction) bool { return fn.IsEntryPoint }), nil
}

// DataAccessors returns the ids of functions that access data directly.
func (m *MemStore) DataAccessors(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.dataAccessors) > 0 {
		return append([]string(nil), m.dataAccessors...), nil
	}
	return m.scan(func(fn UnifiedFunction) bool { return fn.IsDataAccessor }), nil
}

// scan returns the sorted ids of functions matching keep. Caller holds mu.
func (m *MemStore) scan(keep func(UnifiedFunction) bool) []string {
	var out []string
	for id, fn := range m.functions {
		if keep(fn) {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// ForEachFunction visits functions file by file in sorted file order.
func (m *MemStore) ForEachFunction(ctx context.Context, fn func(UnifiedFunction) error) error {
	m.mu.RLock()
	files := make([]string, 0, len(m.byFile))
	for f := range m.byFile {
		files = append(files, f)
	}
	m.mu.RUnlock()
	sort.Strings(files)

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		fns, _ := m.FunctionsInFile(ctx, f)
		for _, uf := range fns {
			if err := fn(uf); err != nil {
				return err
			}
		}
	}
	return nil
}

// Stats counts functions, files, tables and call sites. A call site counts as
// resolved when its callee id names a function present in the store.
func (m *MemStore) Stats(_ context.Context) (*GraphStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := &GraphStats{
		Format:         m.format,
		TotalFunctions: len(m.functions),
	}
	tables := make(map[string]bool)
	for _, fn := range m.functions {
		if fn.IsEntryPoint {
			stats.EntryPoints++
		}
		if fn.IsDataAccessor {
			stats.DataAccessors++
		}
		for _, da := range fn.DataAccess {
			tables[da.Table] = true
		}
		stats.TotalCallSites += len(fn.CalleeIDs)
		for _, callee := range fn.CalleeIDs {
			if _, ok := m.functions[callee]; ok {
				stats.ResolvedCalls++
			}
		}
	}
	for _, ids := range m.byFile {
		if len(ids) > 0 {
			stats.TotalFiles++
		}
	}
	stats.TotalTables = len(tables)
	stats.UnresolvedCalls = stats.TotalCallSites - stats.ResolvedCalls
	return stats, nil
}

// removeID returns ids without id.
func removeID(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
