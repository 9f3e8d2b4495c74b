package export

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/dusk-indust/callreach/internal/graph"
)

// Query kinds carried in an export envelope.
const (
	KindReachableData = "reachable_data"
	KindPathsToData   = "paths_to_data"
	KindStats         = "stats"
)

// QueryExport is the top-level JSON export structure. Exactly one of the
// result fields is set, matching Kind.
type QueryExport struct {
	Kind       string       `json:"kind"`
	Root       string       `json:"root"`
	Format     graph.Format `json:"format"`
	ExportedAt string       `json:"exportedAt"`

	Reachability *graph.ReachabilityResult        `json:"reachability,omitempty"`
	Inverse      *graph.InverseReachabilityResult `json:"inverse,omitempty"`
	Stats        any                              `json:"stats,omitempty"`
}

// NewReachabilityExport wraps a forward reachability result.
func NewReachabilityExport(root string, format graph.Format, res *graph.ReachabilityResult) *QueryExport {
	return &QueryExport{
		Kind:         KindReachableData,
		Root:         root,
		Format:       format,
		ExportedAt:   time.Now().UTC().Format(time.RFC3339),
		Reachability: res,
	}
}

// NewInverseExport wraps an inverse reachability result.
func NewInverseExport(root string, format graph.Format, res *graph.InverseReachabilityResult) *QueryExport {
	return &QueryExport{
		Kind:       KindPathsToData,
		Root:       root,
		Format:     format,
		ExportedAt: time.Now().UTC().Format(time.RFC3339),
		Inverse:    res,
	}
}

// NewStatsExport wraps graph or provider statistics.
func NewStatsExport(root string, format graph.Format, stats any) *QueryExport {
	return &QueryExport{
		Kind:       KindStats,
		Root:       root,
		Format:     format,
		ExportedAt: time.Now().UTC().Format(time.RFC3339),
		Stats:      stats,
	}
}

// WriteJSON writes v as indented JSON followed by a newline.
func WriteJSON(w io.Writer, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}
	_, err = w.Write(append(out, '\n'))
	return err
}
