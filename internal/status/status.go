package status

import (
	"os"
	"time"

	"github.com/dusk-indust/callreach/internal/graph"
	"github.com/dusk-indust/callreach/internal/storage"
)

// ArtifactInfo describes one call-graph artifact on disk.
type ArtifactInfo struct {
	Name    string    `json:"name"`    // human-readable name (e.g. "Sharded index")
	Path    string    `json:"path"`    // absolute or root-relative path that was probed
	Present bool      `json:"present"` // a regular file (or directory, for the shard dir) exists
	Size    int64     `json:"size,omitempty"`
	ModTime time.Time `json:"modTime,omitzero"`
}

// StorageStatus holds what a project's state directory contains and which
// format detection would choose.
type StorageStatus struct {
	StateDir   string       `json:"stateDir"`
	Format     graph.Format `json:"format"`
	Legacy     ArtifactInfo `json:"legacy"`
	Index      ArtifactInfo `json:"index"`
	ShardDir   ArtifactInfo `json:"shardDir"`
	ShardCount int          `json:"shardCount"`

	// Shadowed is set when both formats are present; the legacy graph is
	// then ignored.
	Shadowed bool `json:"shadowed,omitempty"`
}

// Inspect checks which call-graph artifacts exist under l. It reads
// directory entries and file metadata only, never artifact contents.
func Inspect(l storage.Layout) StorageStatus {
	st := StorageStatus{
		StateDir: l.StateDir,
		Format:   storage.DetectFormat(l),
		Legacy:   statFile("Legacy graph", l.LegacyPath()),
		Index:    statFile("Sharded index", l.IndexPath()),
		ShardDir: statDir("Shard directory", l.ShardDir()),
	}
	st.Shadowed = st.Legacy.Present && st.Index.Present

	if st.ShardDir.Present {
		entries, err := os.ReadDir(l.ShardDir())
		if err == nil {
			for _, e := range entries {
				if _, ok := storage.SourceFile(e.Name()); ok && !e.IsDir() {
					st.ShardCount++
				}
			}
		}
	}
	return st
}

func statFile(name, path string) ArtifactInfo {
	info := ArtifactInfo{Name: name, Path: path}
	fi, err := os.Stat(path)
	if err != nil || !fi.Mode().IsRegular() {
		return info
	}
	info.Present = true
	info.Size = fi.Size()
	info.ModTime = fi.ModTime()
	return info
}

func statDir(name, path string) ArtifactInfo {
	info := ArtifactInfo{Name: name, Path: path}
	fi, err := os.Stat(path)
	if err != nil || !fi.IsDir() {
		return info
	}
	info.Present = true
	info.ModTime = fi.ModTime()
	return info
}
