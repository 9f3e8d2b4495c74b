package graph

import (
	"errors"
	"fmt"
)

// Sentinel errors for graph queries.
var (
	// ErrNotInitialized is returned by operations that need the storage
	// format to have been resolved first.
	ErrNotInitialized = errors.New("call graph provider not initialized")

	// ErrInvalidLine is returned for line numbers below 1.
	ErrInvalidLine = errors.New("line numbers are 1-indexed")
)

// LoadError reports that a piece of stored call-graph data could not be read
// or decoded. It affects only the operation that triggered the load; other
// shards remain usable.
type LoadError struct {
	Kind string // "shard", "index", "legacy graph"
	Path string // source file for shards, storage path otherwise
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("could not load %s for file %s: %v", e.Kind, e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// LoadErrors splits err into the load failures it carries. The remainder is
// any error that is not a *LoadError (nil if there is none).
func LoadErrors(err error) (loads []*LoadError, rest error) {
	if err == nil {
		return nil, nil
	}
	var others []error
	var walk func(error)
	walk = func(e error) {
		if joined, ok := e.(interface{ Unwrap() []error }); ok {
			for _, inner := range joined.Unwrap() {
				walk(inner)
			}
			return
		}
		var le *LoadError
		if errors.As(e, &le) {
			loads = append(loads, le)
			return
		}
		others = append(others, e)
	}
	walk(err)
	return loads, errors.Join(others...)
}
