package graph

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemStore_GetFunction(t *testing.T) {
	ctx := context.Background()
	m := newMemSource(t,
		fn("a.go:A:1", "a.go", 1, 10, "b.go:B:1"),
		fn("b.go:B:1", "b.go", 1, 5),
	)

	got, err := m.GetFunction(ctx, "a.go:A:1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, []string{"b.go:B:1"}, got.CalleeIDs)

	b, err := m.GetFunction(ctx, "b.go:B:1")
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.Equal(t, []string{"a.go:A:1"}, b.CallerIDs)

	missing, err := m.GetFunction(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing, "absent functions are nil, not errors")
}

func TestMemStore_ReplaceKeepsFileIndexConsistent(t *testing.T) {
	ctx := context.Background()
	m := NewMemStore()
	m.AddFunction(fn("x", "old.go", 1, 2))
	m.AddFunction(fn("x", "new.go", 1, 2))

	old, err := m.FunctionsInFile(ctx, "old.go")
	require.NoError(t, err)
	assert.Empty(t, old)

	moved, err := m.FunctionsInFile(ctx, "new.go")
	require.NoError(t, err)
	assert.Len(t, moved, 1)
}

func TestNewLegacyStore(t *testing.T) {
	ctx := context.Background()
	g := &LegacyGraph{
		Functions: map[string]FunctionNode{
			"api.go:Handle:3": {
				Name: "Handle", File: "api.go", StartLine: 3, EndLine: 12,
				IsEntryPoint: true,
				Calls:        []CallEdge{{Target: "db.go:Find:1"}, {Target: "fmt.Println"}},
			},
			"db.go:Find:1": {
				ID: "db.go:Find:1", Name: "Find", File: "db.go", StartLine: 1, EndLine: 8,
				CalledBy:   []string{"api.go:Handle:3"},
				DataAccess: []DataAccessRef{{Table: "users", Operation: OpRead, Fields: []string{"email"}, Line: 4}},
			},
		},
		EntryPoints: []string{"api.go:Handle:3"},
	}
	m := NewLegacyStore(g)

	assert.Equal(t, FormatLegacy, m.Format())

	handle, err := m.GetFunction(ctx, "api.go:Handle:3")
	require.NoError(t, err)
	require.NotNil(t, handle, "map key fills a missing id")
	assert.Equal(t, "api.go:Handle:3", handle.ID)

	eps, err := m.EntryPoints(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"api.go:Handle:3"}, eps)

	accessors, err := m.DataAccessors(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"db.go:Find:1"}, accessors, "scanned when the document has no list")

	stats, err := m.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, &GraphStats{
		Format:          FormatLegacy,
		TotalFunctions:  2,
		TotalFiles:      2,
		EntryPoints:     1,
		DataAccessors:   1,
		TotalTables:     1,
		TotalCallSites:  2,
		ResolvedCalls:   1,
		UnresolvedCalls: 1,
	}, stats)
}

func TestNewLegacyStore_Nil(t *testing.T) {
	m := NewLegacyStore(nil)
	stats, err := m.Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.TotalFunctions)
}

func TestMemStore_ForEachFunction(t *testing.T) {
	ctx := context.Background()
	m := newMemSource(t,
		fn("b.go:B:1", "b.go", 1, 5),
		fn("a.go:A2:20", "a.go", 20, 30),
		fn("a.go:A1:1", "a.go", 1, 10),
	)

	var seen []string
	require.NoError(t, m.ForEachFunction(ctx, func(f UnifiedFunction) error {
		seen = append(seen, f.ID)
		return nil
	}))
	assert.Equal(t, []string{"a.go:A1:1", "a.go:A2:20", "b.go:B:1"}, seen)

	stop := errors.New("stop")
	err := m.ForEachFunction(ctx, func(UnifiedFunction) error { return stop })
	assert.ErrorIs(t, err, stop)
}

func TestFunctionAtLine(t *testing.T) {
	ctx := context.Background()
	m := newMemSource(t,
		fn("outer", "a.go", 1, 50),
		fn("inner", "a.go", 10, 20),
		fn("closure", "a.go", 12, 14),
		fn("other", "b.go", 1, 100),
	)

	cases := []struct {
		name string
		line int
		want string
	}{
		{"innermost of two", 15, "inner"},
		{"innermost of three", 13, "closure"},
		{"outer only", 30, "outer"},
		{"boundary start", 10, "inner"},
		{"boundary end", 20, "inner"},
		{"past end of file functions", 51, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := FunctionAtLine(ctx, m, "a.go", tc.line)
			require.NoError(t, err)
			if tc.want == "" {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tc.want, got.ID)
		})
	}

	t.Run("unknown file", func(t *testing.T) {
		got, err := FunctionAtLine(ctx, m, "missing.go", 1)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("invalid line", func(t *testing.T) {
		_, err := FunctionAtLine(ctx, m, "a.go", 0)
		assert.ErrorIs(t, err, ErrInvalidLine)
	})
}
