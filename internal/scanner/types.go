// Package scanner walks directory trees, runs extraction and embedding
// on supported files, and populates the vector index. The monitor reuses
// its single-file entry point so there is exactly one indexing pipeline.
package scanner

import (
	"crypto/sha256"
	"encoding/binary"
	"path/filepath"
	"time"

	"github.com/semdex/semdex/internal/index"
)

// pathIDRange bounds ids to an 8-digit space. Two distinct paths that
// reduce to the same id silently overwrite each other; the id space and
// that behavior are deliberate and documented, not accidental.
const pathIDRange = 100_000_000

// PathID derives the stable id for a file from its canonical absolute
// path. It is pure: the same path always yields the same id, across
// restarts, which is how deletions and re-scans find the same file.
func PathID(path string) uint64 {
	sum := sha256.Sum256([]byte(CanonicalPath(path)))
	return binary.BigEndian.Uint64(sum[:8]) % pathIDRange
}

// CanonicalPath resolves a path to its absolute, symlink-free form.
// If resolution fails (for example the file no longer exists) the
// absolute form is returned so ids stay derivable for deletions.
func CanonicalPath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved
	}
	return abs
}

// Report is the immutable summary of one scan pass. It is never mutated
// after construction and is safe to hand across goroutines.
type Report struct {
	Records      []index.Record
	ScanTime     time.Time
	Duration     time.Duration
	ScannedPaths []string
	Errors       []string
}

// Merge combines per-root reports into one: union of records,
// concatenation of paths and errors. The inputs are not modified.
func Merge(reports ...*Report) *Report {
	merged := &Report{ScanTime: time.Now()}
	for _, r := range reports {
		if r == nil {
			continue
		}
		merged.Records = append(merged.Records, r.Records...)
		merged.ScannedPaths = append(merged.ScannedPaths, r.ScannedPaths...)
		merged.Errors = append(merged.Errors, r.Errors...)
		if !r.ScanTime.IsZero() && r.ScanTime.Before(merged.ScanTime) {
			merged.ScanTime = r.ScanTime
		}
		if r.Duration > merged.Duration {
			merged.Duration = r.Duration
		}
	}
	return merged
}

// Config configures the scanner.
type Config struct {
	// Workers bounds the multi-root fan-out (0 = GOMAXPROCS).
	Workers int

	// LogPath is the append-only scan report file ("" disables it).
	LogPath string

	// Notify receives human-readable progress strings. It must not
	// block; notifications are fire-and-forget.
	Notify func(string)
}
