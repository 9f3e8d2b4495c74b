package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"

	"github.com/dusk-indust/callreach/internal/graph"
)

// Compile-time assertion: *FileLoader satisfies graph.ShardLoader.
var _ graph.ShardLoader = (*FileLoader)(nil)

// FileLoader reads shards from a layout's shard directory.
type FileLoader struct {
	layout Layout
}

// NewFileLoader returns a loader for l.
func NewFileLoader(l Layout) *FileLoader {
	return &FileLoader{layout: l}
}

// LoadShard reads file's shard. A missing shard document is (nil, nil);
// unreadable or malformed documents are *graph.LoadError.
func (fl *FileLoader) LoadShard(ctx context.Context, file string) (*graph.CallGraphShard, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sh, err := decodeFile(fl.layout.ShardPath(file), DecodeShard)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, &graph.LoadError{Kind: "shard", Path: file, Err: err}
	}
	if sh.File == "" {
		sh.File = file
	}
	return sh, nil
}

// ListShards returns the source files with a shard document, sorted. A
// missing shard directory lists nothing.
func (fl *FileLoader) ListShards(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(fl.layout.ShardDir())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("storage: list shards: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if file, ok := SourceFile(e.Name()); ok {
			files = append(files, file)
		}
	}
	sort.Strings(files)
	return files, nil
}
