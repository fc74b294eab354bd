// Package extract turns files into text plus structural metadata.
// It is the boundary the scanner and monitor speak to: every supported
// file type gets an Extractor, and all extractors report failures with
// the same small set of error kinds so callers can decide what is a
// skip and what is a real problem.
package extract

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// FileMetadata is the metadata stored alongside every indexed vector.
// It is produced by an extractor and owned by the index once stored.
type FileMetadata struct {
	Path         string    // Canonical absolute path
	Filename     string    // Base name
	FileType     string    // Extension without the dot (pdf, txt, md)
	SizeBytes    int64     // File size in bytes
	CreatedAt    time.Time // When the file was first processed
	LastModified time.Time // Filesystem mtime at extraction
	PageCount    int       // Number of pages (PDFs only, 0 otherwise)
}

// Content is the result of a successful extraction.
type Content struct {
	Meta FileMetadata
	Text string
}

// ErrNotFound indicates the file does not exist.
var ErrNotFound = errors.New("file not found")

// ErrUnsupportedType indicates no extractor handles the file type.
var ErrUnsupportedType = errors.New("unsupported file type")

// ExtractionError wraps an underlying failure while reading or parsing a
// file. Scans record it and move on; it never aborts a batch.
type ExtractionError struct {
	Path string
	Err  error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s: %v", e.Path, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// Extractor extracts text content and metadata from a file.
type Extractor interface {
	// Supports reports whether this extractor handles the given path.
	Supports(path string) bool

	// Extract returns the file's text and metadata.
	// Errors are ErrNotFound, ErrUnsupportedType, or *ExtractionError.
	Extract(path string) (*Content, error)
}

// Registry dispatches to the first extractor that supports a path.
type Registry struct {
	extractors []Extractor
}

// NewRegistry creates a registry over the given extractors, consulted in
// order.
func NewRegistry(extractors ...Extractor) *Registry {
	return &Registry{extractors: extractors}
}

// DefaultRegistry returns a registry with the text and PDF extractors.
func DefaultRegistry() *Registry {
	return NewRegistry(NewTextExtractor(), NewPDFExtractor())
}

// Supports reports whether any registered extractor handles the path.
func (r *Registry) Supports(path string) bool {
	for _, e := range r.extractors {
		if e.Supports(path) {
			return true
		}
	}
	return false
}

// Extract dispatches to the first matching extractor.
func (r *Registry) Extract(path string) (*Content, error) {
	for _, e := range r.extractors {
		if e.Supports(path) {
			return e.Extract(path)
		}
	}
	return nil, ErrUnsupportedType
}

// fileType returns the lowercased extension without the leading dot.
func fileType(path string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
}
