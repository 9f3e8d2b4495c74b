package mcptools

import "github.com/dusk-indust/callreach/internal/graph"

// --- MCP Tool Input Types ---
// These structs define the JSON schema for each MCP tool's input.
// The MCP Go SDK auto-generates JSON schemas from struct tags.

// ReachableDataInput is the input for the reachable_data MCP tool.
type ReachableDataInput struct {
	File          string `json:"file" jsonschema:"project-relative source file path"`
	Line          int    `json:"line" jsonschema:"1-indexed line inside the function to start from"`
	MaxDepth      *int   `json:"maxDepth,omitempty" jsonschema:"deepest call level to follow (default: configured depth, 0 = starting function only)"`
	SensitiveOnly bool   `json:"sensitiveOnly,omitempty" jsonschema:"only list accesses to sensitive tables"`
}

// ReachableDataOutput is the result of the reachable_data MCP tool.
type ReachableDataOutput struct {
	Result graph.ReachabilityResult `json:"result"`
}

// PathsToDataInput is the input for the paths_to_data MCP tool.
type PathsToDataInput struct {
	Table    string `json:"table" jsonschema:"table name (case-insensitive)"`
	Field    string `json:"field,omitempty" jsonschema:"restrict to accesses that list this field"`
	MaxDepth *int   `json:"maxDepth,omitempty" jsonschema:"caller levels to walk from each accessor (default: configured depth)"`
}

// PathsToDataOutput is the result of the paths_to_data MCP tool.
type PathsToDataOutput struct {
	Result graph.InverseReachabilityResult `json:"result"`
}

// GetFunctionInput is the input for the get_function MCP tool.
type GetFunctionInput struct {
	ID string `json:"id" jsonschema:"function id as recorded in the call graph"`
}

// FunctionAtLineInput is the input for the function_at_line MCP tool.
type FunctionAtLineInput struct {
	File string `json:"file" jsonschema:"project-relative source file path"`
	Line int    `json:"line" jsonschema:"1-indexed line number"`
}

// FunctionOutput is the result of the get_function and function_at_line MCP tools.
type FunctionOutput struct {
	Found    bool                   `json:"found"`
	Function *graph.UnifiedFunction `json:"function,omitempty"`
}

// GraphStatsInput is the input for the graph_stats MCP tool.
type GraphStatsInput struct{}

// GraphStatsOutput is the result of the graph_stats MCP tool.
type GraphStatsOutput struct {
	Stats graph.GraphStats `json:"stats"`
}

// ProviderStatsInput is the input for the provider_stats MCP tool.
type ProviderStatsInput struct{}

// ProviderStatsOutput is the result of the provider_stats MCP tool.
type ProviderStatsOutput struct {
	Initialized bool             `json:"initialized"`
	Available   bool             `json:"available"`
	Stats       graph.GraphStats `json:"stats"`
	Cache       graph.CacheStats `json:"cache"`
}
