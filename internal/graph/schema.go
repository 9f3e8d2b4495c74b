package graph

import (
	"encoding/json"
	"fmt"
)

// --- Enums ---

// Format identifies which on-disk call-graph representation backs a Source.
type Format string

const (
	FormatNone    Format = "none"
	FormatLegacy  Format = "legacy"  // single-file graph, fully decoded at startup
	FormatSharded Format = "sharded" // index + one shard per source file, loaded lazily
)

// DataOperation classifies a data access.
type DataOperation string

const (
	OpRead   DataOperation = "read"
	OpWrite  DataOperation = "write"
	OpDelete DataOperation = "delete"
)

// --- Wire models ---

// DataAccessRef is one data access performed directly by a function.
type DataAccessRef struct {
	Table      string        `json:"table"`
	Operation  DataOperation `json:"operation"`
	Fields     []string      `json:"fields,omitempty"`
	Line       int           `json:"line"`
	Confidence float64       `json:"confidence,omitempty"` // 0 means unspecified (treated as 1.0)
}

// HasField reports whether field is listed on the access.
func (d DataAccessRef) HasField(field string) bool {
	for _, f := range d.Fields {
		if f == field {
			return true
		}
	}
	return false
}

// CallEdge is one outgoing call. On disk a call is either a bare target
// string or an object carrying the raw target text plus an optional resolved
// function id.
type CallEdge struct {
	Target       string `json:"target"`
	ResolvedID   string `json:"resolvedId,omitempty"`
	ResolvedFile string `json:"resolvedFile,omitempty"`
	Line         int    `json:"line,omitempty"`
	Resolved     bool   `json:"resolved,omitempty"`
}

// CalleeID returns the function id this call points at: the resolved id when
// the producer supplied one, otherwise the raw target text.
func (c CallEdge) CalleeID() string {
	if c.ResolvedID != "" {
		return c.ResolvedID
	}
	return c.Target
}

// UnmarshalJSON accepts both call encodings.
func (c *CallEdge) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*c = CallEdge{Target: s}
		return nil
	}
	type wire CallEdge
	var w wire
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("call edge: %w", err)
	}
	*c = CallEdge(w)
	return nil
}

// FunctionNode is a function as written by the extractors. The legacy graph
// and the shards share this encoding.
type FunctionNode struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	File           string          `json:"file"`
	StartLine      int             `json:"startLine"`
	EndLine        int             `json:"endLine"`
	IsEntryPoint   bool            `json:"isEntryPoint,omitempty"`
	IsDataAccessor bool            `json:"isDataAccessor,omitempty"`
	Calls          []CallEdge      `json:"calls,omitempty"`
	CalledBy       []string        `json:"calledBy,omitempty"`
	DataAccess     []DataAccessRef `json:"dataAccess,omitempty"`
}

// LegacyStats is the stats block of the legacy graph document.
type LegacyStats struct {
	TotalFunctions      int `json:"totalFunctions"`
	TotalCallSites      int `json:"totalCallSites"`
	ResolvedCallSites   int `json:"resolvedCallSites"`
	UnresolvedCallSites int `json:"unresolvedCallSites"`
	TotalDataAccessors  int `json:"totalDataAccessors"`
}

// LegacyGraph is the single-file call graph: a flat map of id to function.
type LegacyGraph struct {
	Version       string                  `json:"version,omitempty"`
	Functions     map[string]FunctionNode `json:"functions"`
	EntryPoints   []string                `json:"entryPoints,omitempty"`
	DataAccessors []string                `json:"dataAccessors,omitempty"`
	Stats         LegacyStats             `json:"stats"`
}

// CallGraphShard holds every function defined in one source file.
type CallGraphShard struct {
	File      string         `json:"file"`
	Functions []FunctionNode `json:"functions"`
}

// IndexSummary is the global summary carried by the sharded index.
type IndexSummary struct {
	TotalFunctions  int `json:"totalFunctions"`
	TotalFiles      int `json:"totalFiles"`
	EntryPoints     int `json:"entryPoints"`
	DataAccessors   int `json:"dataAccessors"`
	TotalCalls      int `json:"totalCalls"`
	ResolvedCalls   int `json:"resolvedCalls"`
	UnresolvedCalls int `json:"unresolvedCalls"`
	Tables          int `json:"tables,omitempty"`
}

// IndexRef is an entry of the index's bounded top lists.
type IndexRef struct {
	ID   string `json:"id"`
	File string `json:"file,omitempty"`
}

// CallGraphIndex is the global sharded index. The top lists are bounded
// summaries written by the producer, not an exhaustive enumeration.
type CallGraphIndex struct {
	Version          string       `json:"version,omitempty"`
	GeneratedAt      string       `json:"generatedAt,omitempty"`
	Summary          IndexSummary `json:"summary"`
	TopEntryPoints   []IndexRef   `json:"topEntryPoints,omitempty"`
	TopDataAccessors []IndexRef   `json:"topDataAccessors,omitempty"`
	Files            []string     `json:"files,omitempty"`
}

// --- Unified view ---

// UnifiedFunction is the format-independent view of a function that the
// reachability engine works against.
type UnifiedFunction struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	File           string          `json:"file"`
	StartLine      int             `json:"startLine"`
	EndLine        int             `json:"endLine"`
	IsEntryPoint   bool            `json:"isEntryPoint"`
	IsDataAccessor bool            `json:"isDataAccessor"`
	CalleeIDs      []string        `json:"calleeIds"`
	CallerIDs      []string        `json:"callerIds"`
	DataAccess     []DataAccessRef `json:"dataAccess"`
}

// Unify normalizes a wire FunctionNode. Calls are reduced to callee ids,
// preferring resolved ids over raw target text; empty targets are dropped.
func Unify(n FunctionNode) UnifiedFunction {
	callees := make([]string, 0, len(n.Calls))
	for _, c := range n.Calls {
		if id := c.CalleeID(); id != "" {
			callees = append(callees, id)
		}
	}
	endLine := n.EndLine
	if endLine < n.StartLine {
		endLine = n.StartLine
	}
	return UnifiedFunction{
		ID:             n.ID,
		Name:           n.Name,
		File:           n.File,
		StartLine:      n.StartLine,
		EndLine:        endLine,
		IsEntryPoint:   n.IsEntryPoint,
		IsDataAccessor: n.IsDataAccessor || len(n.DataAccess) > 0,
		CalleeIDs:      callees,
		CallerIDs:      append([]string(nil), n.CalledBy...),
		DataAccess:     n.DataAccess,
	}
}

// Contains reports whether line falls inside the function's range.
func (f UnifiedFunction) Contains(line int) bool {
	return line >= f.StartLine && line <= f.EndLine
}

// Span is the number of lines covered minus one; smaller is more nested.
func (f UnifiedFunction) Span() int {
	return f.EndLine - f.StartLine
}

// --- Results ---

// CallPathNode is one hop of a call path.
type CallPathNode struct {
	FunctionID string `json:"functionId"`
	Name       string `json:"name"`
	File       string `json:"file"`
	Line       int    `json:"line"`
}

// DataAccessPoint is a concrete data access site.
type DataAccessPoint struct {
	ID         string        `json:"id"`
	Table      string        `json:"table"`
	Operation  DataOperation `json:"operation"`
	Fields     []string      `json:"fields"`
	File       string        `json:"file"`
	Line       int           `json:"line"`
	Confidence float64       `json:"confidence"`
	FunctionID string        `json:"functionId"`
}

// ReachableDataAccess is a data access found by forward traversal, with the
// call path that leads to it.
type ReachableDataAccess struct {
	Table       string          `json:"table"`
	Operation   DataOperation   `json:"operation"`
	Fields      []string        `json:"fields"`
	AccessPoint DataAccessPoint `json:"accessPoint"`
	Path        []CallPathNode  `json:"path"`
	Depth       int             `json:"depth"`
}

// SensitiveFieldAccess aggregates every reachable access to one sensitive
// table.field.
type SensitiveFieldAccess struct {
	Table       string           `json:"table"`
	Field       string           `json:"field"`
	Key         string           `json:"key"` // "table.field"
	Paths       [][]CallPathNode `json:"paths"`
	AccessCount int              `json:"accessCount"`
}

// ReachabilityResult is the answer to "what data can this code reach?".
type ReachabilityResult struct {
	Origin             *CallPathNode          `json:"origin,omitempty"`
	ReachableAccess    []ReachableDataAccess  `json:"reachableAccess"`
	Tables             []string               `json:"tables"`
	SensitiveFields    []SensitiveFieldAccess `json:"sensitiveFields"`
	MaxDepth           int                    `json:"maxDepth"`
	FunctionsTraversed int                    `json:"functionsTraversed"`
	UnresolvedCalls    int                    `json:"unresolvedCalls"`
	Truncated          bool                   `json:"truncated,omitempty"`
	LoadErrors         []string               `json:"loadErrors,omitempty"`
}

// InverseTarget names the data an inverse query is about.
type InverseTarget struct {
	Table string `json:"table"`
	Field string `json:"field,omitempty"`
}

// InversePath is one route from an entry point down to a data access, in
// caller-to-accessor order.
type InversePath struct {
	EntryPoint  string          `json:"entryPoint"`
	Path        []CallPathNode  `json:"path"`
	AccessPoint DataAccessPoint `json:"accessPoint"`
	Depth       int             `json:"depth"`
}

// InverseReachabilityResult is the answer to "which entry points reach this
// data?".
type InverseReachabilityResult struct {
	Target          InverseTarget `json:"target"`
	EntryPoints     []string      `json:"entryPoints"`
	Paths           []InversePath `json:"paths"`
	TotalAccessors  int           `json:"totalAccessors"`
	UnresolvedCalls int           `json:"unresolvedCalls"`
	Truncated       bool          `json:"truncated,omitempty"`
	LoadErrors      []string      `json:"loadErrors,omitempty"`
}

// GraphStats summarizes the active call graph.
type GraphStats struct {
	Format          Format `json:"format"`
	TotalFunctions  int    `json:"totalFunctions"`
	TotalFiles      int    `json:"totalFiles"`
	EntryPoints     int    `json:"entryPoints"`
	DataAccessors   int    `json:"dataAccessors"`
	TotalTables     int    `json:"totalTables"`
	TotalCallSites  int    `json:"totalCallSites"`
	ResolvedCalls   int    `json:"resolvedCalls"`
	UnresolvedCalls int    `json:"unresolvedCalls"`
}
