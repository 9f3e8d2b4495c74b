package storage

import (
	"os"

	"github.com/dusk-indust/callreach/internal/graph"
)

// DetectFormat probes the layout once: the sharded index wins over the
// legacy graph, and neither present means FormatNone.
func DetectFormat(l Layout) graph.Format {
	if isFile(l.IndexPath()) {
		return graph.FormatSharded
	}
	if isFile(l.LegacyPath()) {
		return graph.FormatLegacy
	}
	return graph.FormatNone
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
