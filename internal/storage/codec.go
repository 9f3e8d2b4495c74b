package storage

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/dusk-indust/callreach/internal/graph"
)

// DecodeLegacy decodes a legacy call-graph document.
func DecodeLegacy(r io.Reader) (*graph.LegacyGraph, error) {
	var g graph.LegacyGraph
	if err := json.NewDecoder(r).Decode(&g); err != nil {
		return nil, fmt.Errorf("storage: decode legacy graph: %w", err)
	}
	if g.Functions == nil {
		g.Functions = make(map[string]graph.FunctionNode)
	}
	return &g, nil
}

// DecodeIndex decodes a sharded index document.
func DecodeIndex(r io.Reader) (*graph.CallGraphIndex, error) {
	var idx graph.CallGraphIndex
	if err := json.NewDecoder(r).Decode(&idx); err != nil {
		return nil, fmt.Errorf("storage: decode index: %w", err)
	}
	return &idx, nil
}

// DecodeShard decodes one per-file shard document.
func DecodeShard(r io.Reader) (*graph.CallGraphShard, error) {
	var sh graph.CallGraphShard
	if err := json.NewDecoder(r).Decode(&sh); err != nil {
		return nil, fmt.Errorf("storage: decode shard: %w", err)
	}
	return &sh, nil
}

// LoadLegacy reads and decodes the legacy graph of l. Failures are reported
// as *graph.LoadError.
func LoadLegacy(l Layout) (*graph.LegacyGraph, error) {
	path := l.LegacyPath()
	g, err := decodeFile(path, DecodeLegacy)
	if err != nil {
		return nil, &graph.LoadError{Kind: "legacy graph", Path: path, Err: err}
	}
	return g, nil
}

// LoadIndex reads and decodes the sharded index of l. Failures are reported
// as *graph.LoadError.
func LoadIndex(l Layout) (*graph.CallGraphIndex, error) {
	path := l.IndexPath()
	idx, err := decodeFile(path, DecodeIndex)
	if err != nil {
		return nil, &graph.LoadError{Kind: "index", Path: path, Err: err}
	}
	return idx, nil
}

func decodeFile[T any](path string, decode func(io.Reader) (*T, error)) (*T, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return decode(f)
}
