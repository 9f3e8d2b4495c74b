package graph

import (
	"context"
	"fmt"
	"strings"
)

// DefaultMaxDepth bounds traversals when the caller does not choose a depth.
const DefaultMaxDepth = 10

// DefaultMaxFunctions is the default breadth budget of a single query.
const DefaultMaxFunctions = 50000

// Engine answers forward and inverse reachability queries against any Source.
// It never mutates the source; shard loads happen only as a side effect of
// lookups. Safe for concurrent use if the Source is.
type Engine struct {
	src          Source
	sensitivity  *Sensitivity
	maxFunctions int
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithSensitivity replaces the default sensitive-name dictionaries.
func WithSensitivity(s *Sensitivity) EngineOption {
	return func(e *Engine) {
		if s != nil {
			e.sensitivity = s
		}
	}
}

// WithMaxFunctions caps how many functions one query may expand. A query that
// hits the cap returns what it found so far with Truncated set. n <= 0
// disables the cap.
func WithMaxFunctions(n int) EngineOption {
	return func(e *Engine) { e.maxFunctions = n }
}

// NewEngine returns an engine reading from src.
func NewEngine(src Source, opts ...EngineOption) *Engine {
	e := &Engine{
		src:          src,
		sensitivity:  DefaultSensitivity(),
		maxFunctions: DefaultMaxFunctions,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Source returns the engine's function source.
func (e *Engine) Source() Source {
	return e.src
}

// hop is a BFS queue entry: the function to expand, its depth and the path
// that led to its parent. fn is set when the function is already resolved.
type hop struct {
	id     string
	fn     *UnifiedFunction
	depth  int
	parent []CallPathNode
}

// budget tracks one query's expansion count and recoverable failures.
type budget struct {
	limit      int
	used       int
	truncated  bool
	unresolved int
	loadErrs   []string
	seenErrs   map[string]bool
}

func newBudget(limit int) *budget {
	return &budget{limit: limit, seenErrs: make(map[string]bool)}
}

// exhausted reports whether another expansion would exceed the cap.
func (b *budget) exhausted() bool {
	if b.limit > 0 && b.used >= b.limit {
		b.truncated = true
		return true
	}
	return false
}

// absorb records recoverable load failures carried by err. It returns err
// unchanged if err contains anything else (such as context cancellation).
func (b *budget) absorb(err error) error {
	loads, rest := LoadErrors(err)
	for _, le := range loads {
		msg := le.Error()
		if !b.seenErrs[msg] {
			b.seenErrs[msg] = true
			b.loadErrs = append(b.loadErrs, msg)
		}
	}
	return rest
}

// resolve returns the function for h, looking it up if needed. A nil
// function with a nil error means the edge was dangling or failed to load and
// has been recorded.
func (e *Engine) resolve(ctx context.Context, h hop, b *budget) (*UnifiedFunction, error) {
	if h.fn != nil {
		return h.fn, nil
	}
	fn, err := e.src.GetFunction(ctx, h.id)
	if err != nil {
		if rest := b.absorb(err); rest != nil {
			return nil, rest
		}
		return nil, nil
	}
	if fn == nil {
		b.unresolved++
	}
	return fn, nil
}

// pathNode converts a function into a path hop.
func pathNode(fn *UnifiedFunction) CallPathNode {
	return CallPathNode{
		FunctionID: fn.ID,
		Name:       fn.Name,
		File:       fn.File,
		Line:       fn.StartLine,
	}
}

// extendPath returns a new slice holding parent followed by fn.
func extendPath(parent []CallPathNode, fn *UnifiedFunction) []CallPathNode {
	out := make([]CallPathNode, len(parent)+1)
	copy(out, parent)
	out[len(parent)] = pathNode(fn)
	return out
}

// accessPoint synthesizes the access site record for da inside fn.
func accessPoint(fn *UnifiedFunction, da DataAccessRef) DataAccessPoint {
	confidence := da.Confidence
	if confidence <= 0 {
		confidence = 1.0
	}
	return DataAccessPoint{
		ID:         fmt.Sprintf("%s:%d:%s", fn.File, da.Line, da.Table),
		Table:      da.Table,
		Operation:  da.Operation,
		Fields:     append([]string(nil), da.Fields...),
		File:       fn.File,
		Line:       da.Line,
		Confidence: confidence,
		FunctionID: fn.ID,
	}
}

// pathKey identifies a path by its function ids.
func pathKey(path []CallPathNode) string {
	ids := make([]string, len(path))
	for i, n := range path {
		ids[i] = n.FunctionID
	}
	return strings.Join(ids, "\x00")
}
