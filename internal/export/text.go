package export

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/dusk-indust/callreach/internal/graph"
	"github.com/dusk-indust/callreach/internal/provider"
)

// WriteReachabilityText writes a short human-readable report of a forward
// query.
func WriteReachabilityText(w io.Writer, res *graph.ReachabilityResult) error {
	ew := &errWriter{w: w}
	if res == nil || res.Origin == nil {
		ew.printf("No function found at the requested line.\n")
		return ew.err
	}
	ew.printf("Origin: %s (%s:%d)\n", res.Origin.Name, res.Origin.File, res.Origin.Line)
	ew.printf("Functions traversed: %d (max depth %d)\n", res.FunctionsTraversed, res.MaxDepth)
	if res.UnresolvedCalls > 0 {
		ew.printf("Unresolved calls skipped: %d\n", res.UnresolvedCalls)
	}
	if res.Truncated {
		ew.printf("Traversal stopped early: function budget reached.\n")
	}

	ew.printf("\nTables (%d): %s\n", len(res.Tables), joinOrNone(res.Tables))

	if len(res.ReachableAccess) > 0 {
		ew.printf("\nAccesses:\n")
		tw := tabwriter.NewWriter(ew, 0, 4, 2, ' ', 0)
		for _, ra := range res.ReachableAccess {
			fmt.Fprintf(tw, "  %s\t%s\t%s\t%s:%d\tdepth %d\n",
				ra.Operation, ra.Table, strings.Join(ra.Fields, ","),
				ra.AccessPoint.File, ra.AccessPoint.Line, ra.Depth)
		}
		tw.Flush()
	}

	if len(res.SensitiveFields) > 0 {
		ew.printf("\nSensitive fields:\n")
		for _, sf := range res.SensitiveFields {
			ew.printf("  %s  accesses=%d paths=%d\n", sf.Key, sf.AccessCount, len(sf.Paths))
			for _, p := range sf.Paths {
				ew.printf("    %s\n", formatPath(p))
			}
		}
	}
	writeLoadErrors(ew, res.LoadErrors)
	return ew.err
}

// WriteInverseText writes a short human-readable report of an inverse query.
func WriteInverseText(w io.Writer, res *graph.InverseReachabilityResult) error {
	ew := &errWriter{w: w}
	target := res.Target.Table
	if res.Target.Field != "" {
		target += "." + res.Target.Field
	}
	ew.printf("Target: %s\n", target)
	ew.printf("Accessors: %d\n", res.TotalAccessors)
	ew.printf("Entry points (%d): %s\n", len(res.EntryPoints), joinOrNone(res.EntryPoints))
	if res.Truncated {
		ew.printf("Traversal stopped early: function budget reached.\n")
	}

	if len(res.Paths) > 0 {
		ew.printf("\nPaths:\n")
		for _, p := range res.Paths {
			ew.printf("  [%s %s:%d] %s\n",
				p.AccessPoint.Operation, p.AccessPoint.File, p.AccessPoint.Line, formatPath(p.Path))
		}
	}
	writeLoadErrors(ew, res.LoadErrors)
	return ew.err
}

// WriteStatsText writes provider statistics as an aligned table.
func WriteStatsText(w io.Writer, ps *provider.ProviderStats) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	rows := []struct {
		label string
		value any
	}{
		{"Format", ps.Format},
		{"Functions", ps.TotalFunctions},
		{"Files", ps.TotalFiles},
		{"Entry points", ps.EntryPoints},
		{"Data accessors", ps.DataAccessors},
		{"Tables", ps.TotalTables},
		{"Call sites", ps.TotalCallSites},
		{"Resolved calls", ps.ResolvedCalls},
		{"Unresolved calls", ps.UnresolvedCalls},
	}
	if ps.Format == graph.FormatSharded {
		rows = append(rows, []struct {
			label string
			value any
		}{
			{"Shards loaded", fmt.Sprintf("%d/%d", ps.ShardsLoaded, ps.CacheCapacity)},
			{"Cache hits", ps.CacheHits},
			{"Cache misses", ps.CacheMisses},
			{"Cache evictions", ps.CacheEvictions},
		}...)
	}
	for _, r := range rows {
		if _, err := fmt.Fprintf(tw, "%s:\t%v\n", r.label, r.value); err != nil {
			return err
		}
	}
	return tw.Flush()
}

func writeLoadErrors(ew *errWriter, errs []string) {
	if len(errs) == 0 {
		return
	}
	ew.printf("\nLoad errors (%d):\n", len(errs))
	for _, e := range errs {
		ew.printf("  %s\n", e)
	}
}

// formatPath renders a call path as "a -> b -> c".
func formatPath(path []graph.CallPathNode) string {
	names := make([]string, len(path))
	for i, n := range path {
		names[i] = n.Name
	}
	return strings.Join(names, " -> ")
}

func joinOrNone(items []string) string {
	if len(items) == 0 {
		return "(none)"
	}
	return strings.Join(items, ", ")
}

// errWriter keeps the first write error so report code can print freely.
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) Write(p []byte) (int, error) {
	if e.err != nil {
		return 0, e.err
	}
	n, err := e.w.Write(p)
	e.err = err
	return n, err
}

func (e *errWriter) printf(format string, args ...any) {
	fmt.Fprintf(e, format, args...)
}
