package mcptools

import (
	"context"
	"fmt"

	"github.com/dusk-indust/callreach/internal/graph"
	"github.com/dusk-indust/callreach/internal/provider"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// CallGraphService holds the provider used by MCP tool handlers.
type CallGraphService struct {
	provider *provider.Provider
}

// NewCallGraphService creates a CallGraphService over an initialized provider.
func NewCallGraphService(p *provider.Provider) *CallGraphService {
	return &CallGraphService{provider: p}
}

// ReachableData lists the data reachable from the function at file:line.
func (s *CallGraphService) ReachableData(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input ReachableDataInput,
) (*mcp.CallToolResult, ReachableDataOutput, error) {
	if input.File == "" {
		return nil, ReachableDataOutput{}, fmt.Errorf("file is required")
	}
	if input.Line < 1 {
		return nil, ReachableDataOutput{}, fmt.Errorf("line must be 1 or greater, got %d", input.Line)
	}

	opts := s.provider.DefaultReachOptions()
	if input.MaxDepth != nil {
		opts.MaxDepth = *input.MaxDepth
	}
	opts.SensitiveOnly = input.SensitiveOnly

	res, err := s.provider.ReachableData(ctx, input.File, input.Line, opts)
	if err != nil {
		return nil, ReachableDataOutput{}, fmt.Errorf("reachable data: %w", err)
	}
	return nil, ReachableDataOutput{Result: *res}, nil
}

// PathsToData lists entry points that can reach a table (and field).
func (s *CallGraphService) PathsToData(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input PathsToDataInput,
) (*mcp.CallToolResult, PathsToDataOutput, error) {
	if input.Table == "" {
		return nil, PathsToDataOutput{}, fmt.Errorf("table is required")
	}

	opts := s.provider.DefaultInverseOptions(input.Table, input.Field)
	if input.MaxDepth != nil {
		opts.MaxDepth = *input.MaxDepth
	}

	res, err := s.provider.PathsToData(ctx, opts)
	if err != nil {
		return nil, PathsToDataOutput{}, fmt.Errorf("paths to data: %w", err)
	}
	return nil, PathsToDataOutput{Result: *res}, nil
}

// GetFunction looks up one function by id.
func (s *CallGraphService) GetFunction(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input GetFunctionInput,
) (*mcp.CallToolResult, FunctionOutput, error) {
	if input.ID == "" {
		return nil, FunctionOutput{}, fmt.Errorf("id is required")
	}
	fn, err := s.provider.GetFunction(ctx, input.ID)
	if err != nil {
		return nil, FunctionOutput{}, fmt.Errorf("get function: %w", err)
	}
	return nil, functionOutput(fn), nil
}

// FunctionAtLine finds the innermost function containing file:line.
func (s *CallGraphService) FunctionAtLine(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input FunctionAtLineInput,
) (*mcp.CallToolResult, FunctionOutput, error) {
	if input.File == "" {
		return nil, FunctionOutput{}, fmt.Errorf("file is required")
	}
	fn, err := s.provider.FunctionAtLine(ctx, input.File, input.Line)
	if err != nil {
		return nil, FunctionOutput{}, fmt.Errorf("function at line: %w", err)
	}
	return nil, functionOutput(fn), nil
}

// GraphStats returns function, table and call-site counts.
func (s *CallGraphService) GraphStats(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	_ GraphStatsInput,
) (*mcp.CallToolResult, GraphStatsOutput, error) {
	stats, err := s.provider.Stats(ctx)
	if err != nil {
		return nil, GraphStatsOutput{}, fmt.Errorf("graph stats: %w", err)
	}
	return nil, GraphStatsOutput{Stats: *stats}, nil
}

// ProviderStats returns graph counts plus shard cache counters.
func (s *CallGraphService) ProviderStats(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	_ ProviderStatsInput,
) (*mcp.CallToolResult, ProviderStatsOutput, error) {
	ps := s.provider.ProviderStats(ctx)
	return nil, ProviderStatsOutput{
		Initialized: ps.Initialized,
		Available:   ps.Available,
		Stats:       ps.GraphStats,
		Cache: graph.CacheStats{
			Hits:      ps.CacheHits,
			Misses:    ps.CacheMisses,
			Evictions: ps.CacheEvictions,
			Loaded:    ps.ShardsLoaded,
			Capacity:  ps.CacheCapacity,
		},
	}, nil
}

func functionOutput(fn *graph.UnifiedFunction) FunctionOutput {
	if fn == nil {
		return FunctionOutput{}
	}
	return FunctionOutput{Found: true, Function: fn}
}
