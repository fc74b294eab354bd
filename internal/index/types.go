// Package index owns the ANN graph and the id-to-metadata map for
// semdex. It is the single unit of truth for what is indexed: every
// mutation goes through it, every mutation updates both structures under
// one writer lock, and every mutation is written through to disk before
// the call returns.
package index

import (
	"errors"
	"fmt"

	"github.com/semdex/semdex/internal/extract"
)

// Record is an indexed vector with its metadata.
type Record struct {
	ID     uint64
	Vector []float32
	Meta   extract.FileMetadata
}

// Indexed reports whether the record actually carries a vector. The
// scanner returns zero Records for unsupported or empty files; callers
// must check before treating one as indexed.
func (r Record) Indexed() bool {
	return len(r.Vector) > 0
}

// Result is a single search hit, ordered by ascending distance.
type Result struct {
	ID       uint64
	Distance float32
	Meta     extract.FileMetadata
}

// Config configures the vector index.
type Config struct {
	// Dimension is the vector dimension. Must be positive.
	Dimension int

	// IndexPath is where the ANN graph snapshot is persisted.
	IndexPath string

	// MetaPath is where the id map is persisted.
	MetaPath string

	// M is the HNSW max connections per layer (default: 16).
	M int

	// EfSearch is the HNSW query-time search width (default: 20).
	EfSearch int
}

// ErrDimensionMismatch indicates a vector of the wrong length was passed
// to Add or Search. The store is left unchanged.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}

// ErrCorruptIndex indicates the persisted artifact pair is inconsistent:
// one of the graph snapshot and the id map exists without the other.
// Startup refuses to fabricate a fresh store over a half-missing one.
var ErrCorruptIndex = errors.New("index artifacts are inconsistent: one of snapshot/id-map exists without the other")

// PersistenceError indicates a write-through to disk failed after the
// in-memory mutation succeeded. In-memory state is now ahead of disk;
// a later successful mutation re-syncs the artifacts.
type PersistenceError struct {
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist index to %s: %v", e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
