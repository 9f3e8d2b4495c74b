package export

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dusk-indust/callreach/internal/graph"
)

// mermaidBuilder assigns stable alphanumeric node ids and deduplicates edges.
type mermaidBuilder struct {
	sb      strings.Builder
	nodeIDs map[string]string
	edges   map[string]bool
	nextID  int
}

func newMermaidBuilder() *mermaidBuilder {
	b := &mermaidBuilder{
		nodeIDs: make(map[string]string),
		edges:   make(map[string]bool),
	}
	b.sb.WriteString("flowchart LR\n")
	return b
}

// function declares a function node once and returns its Mermaid id.
func (b *mermaidBuilder) function(n graph.CallPathNode) string {
	key := "fn:" + n.FunctionID
	if id, ok := b.nodeIDs[key]; ok {
		return id
	}
	id := b.newID("F")
	b.nodeIDs[key] = id
	b.sb.WriteString(fmt.Sprintf("  %s[\"%s<br/>%s:%d\"]\n", id, escapeLabel(n.Name), shortPath(n.File), n.Line))
	return id
}

// table declares a table node (cylinder shape) once.
func (b *mermaidBuilder) table(name string) string {
	key := "table:" + name
	if id, ok := b.nodeIDs[key]; ok {
		return id
	}
	id := b.newID("T")
	b.nodeIDs[key] = id
	b.sb.WriteString(fmt.Sprintf("  %s[(\"%s\")]\n", id, escapeLabel(name)))
	return id
}

func (b *mermaidBuilder) newID(prefix string) string {
	id := fmt.Sprintf("%s%d", prefix, b.nextID)
	b.nextID++
	return id
}

func (b *mermaidBuilder) edge(from, to, label string) {
	key := from + ">" + to + ":" + label
	if b.edges[key] {
		return
	}
	b.edges[key] = true
	if label == "" {
		b.sb.WriteString(fmt.Sprintf("  %s --> %s\n", from, to))
		return
	}
	b.sb.WriteString(fmt.Sprintf("  %s -->|%s| %s\n", from, escapeLabel(label), to))
}

// path emits the call edges along path and returns the last node's id.
func (b *mermaidBuilder) path(path []graph.CallPathNode) string {
	var prev string
	for _, n := range path {
		id := b.function(n)
		if prev != "" {
			b.edge(prev, id, "")
		}
		prev = id
	}
	return prev
}

// classify appends a class assignment for the given node keys.
func (b *mermaidBuilder) classify(class string, keys []string) {
	var ids []string
	seen := make(map[string]bool)
	for _, k := range keys {
		if id, ok := b.nodeIDs[k]; ok && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return
	}
	sort.Strings(ids)
	b.sb.WriteString(fmt.Sprintf("  class %s %s\n", strings.Join(ids, ","), class))
}

// ReachabilityMermaid renders the call paths of a forward query as a
// flowchart: the origin on the left, reached tables as cylinders on the
// right. Tables holding sensitive fields are highlighted.
func ReachabilityMermaid(res *graph.ReachabilityResult) string {
	b := newMermaidBuilder()
	if res == nil || res.Origin == nil {
		return b.sb.String()
	}
	origin := b.function(*res.Origin)

	for _, ra := range res.ReachableAccess {
		last := b.path(ra.Path)
		if last == "" {
			last = origin
		}
		b.edge(last, b.table(ra.Table), string(ra.Operation))
	}

	sensitive := make([]string, 0, len(res.SensitiveFields))
	for _, sf := range res.SensitiveFields {
		sensitive = append(sensitive, "table:"+sf.Table)
	}
	b.sb.WriteString("  classDef origin stroke-width:3px\n")
	b.sb.WriteString("  classDef sensitive fill:#fdd,stroke:#c33\n")
	b.classify("origin", []string{"fn:" + res.Origin.FunctionID})
	b.classify("sensitive", sensitive)
	return b.sb.String()
}

// InverseMermaid renders every entry-point-to-data path of an inverse query.
func InverseMermaid(res *graph.InverseReachabilityResult) string {
	b := newMermaidBuilder()
	if res == nil {
		return b.sb.String()
	}
	target := res.Target.Table
	if res.Target.Field != "" {
		target += "." + res.Target.Field
	}

	var entries []string
	for _, p := range res.Paths {
		last := b.path(p.Path)
		if last == "" {
			continue
		}
		b.edge(last, b.table(target), string(p.AccessPoint.Operation))
		entries = append(entries, "fn:"+p.EntryPoint)
	}
	b.sb.WriteString("  classDef entry stroke-width:3px\n")
	b.classify("entry", entries)
	return b.sb.String()
}

// escapeLabel makes s safe inside a quoted Mermaid label.
func escapeLabel(s string) string {
	return strings.NewReplacer(`"`, "#quot;", "|", "#124;").Replace(s)
}

// shortPath returns the last 2 path segments for readability.
func shortPath(path string) string {
	parts := strings.Split(filepath.ToSlash(path), "/")
	if len(parts) <= 2 {
		return path
	}
	return strings.Join(parts[len(parts)-2:], "/")
}
