// Package storage reads call-graph artifacts from a project's tool-state
// directory: the legacy single-file graph, the sharded index and per-file
// shards. It never writes them.
package storage

import (
	"net/url"
	"path/filepath"
	"strings"
)

// DefaultStateDir is the tool-state directory, relative to the project root.
const DefaultStateDir = ".callreach"

const (
	legacyFile   = "call-graph.json"
	shardedDir   = "callgraph"
	indexFile    = "index.json"
	shardFileDir = "files"
	shardExt     = ".json"
)

// Layout locates call-graph artifacts under one state directory.
type Layout struct {
	StateDir string // absolute or relative to the working directory
}

// NewLayout returns the layout for a project root. An empty stateDir selects
// DefaultStateDir; a relative one is joined to root.
func NewLayout(root, stateDir string) Layout {
	if stateDir == "" {
		stateDir = DefaultStateDir
	}
	if !filepath.IsAbs(stateDir) {
		stateDir = filepath.Join(root, stateDir)
	}
	return Layout{StateDir: stateDir}
}

// LegacyPath is the single-file legacy graph.
func (l Layout) LegacyPath() string {
	return filepath.Join(l.StateDir, legacyFile)
}

// IndexPath is the sharded index document.
func (l Layout) IndexPath() string {
	return filepath.Join(l.StateDir, shardedDir, indexFile)
}

// ShardDir holds one document per source file.
func (l Layout) ShardDir() string {
	return filepath.Join(l.StateDir, shardedDir, shardFileDir)
}

// ShardPath returns the shard document for a project-relative source file.
// The file name is path-escaped so nested paths map to one flat directory
// without collisions.
func (l Layout) ShardPath(file string) string {
	return filepath.Join(l.ShardDir(), ShardName(file))
}

// ShardName returns the escaped base name of file's shard document.
func ShardName(file string) string {
	return url.PathEscape(filepath.ToSlash(file)) + shardExt
}

// SourceFile reverses ShardName. ok is false for names that are not shard
// documents.
func SourceFile(name string) (file string, ok bool) {
	if !strings.HasSuffix(name, shardExt) {
		return "", false
	}
	file, err := url.PathUnescape(strings.TrimSuffix(name, shardExt))
	if err != nil || file == "" {
		return "", false
	}
	return file, true
}
