package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultMaxTextSize is the maximum plain-text file size (50MB).
const DefaultMaxTextSize = 50 * 1024 * 1024

// textExtensions are the plain-text extensions the extractor accepts.
var textExtensions = map[string]bool{
	".txt": true,
	".md":  true,
}

// TextExtractor extracts content from plain-text files (.txt, .md).
type TextExtractor struct {
	maxSize int64
}

// NewTextExtractor creates a text extractor with the default size cap.
func NewTextExtractor() *TextExtractor {
	return &TextExtractor{maxSize: DefaultMaxTextSize}
}

// NewTextExtractorWithLimit creates a text extractor with a custom size
// cap in bytes. Zero or negative means the default.
func NewTextExtractorWithLimit(maxSize int64) *TextExtractor {
	if maxSize <= 0 {
		maxSize = DefaultMaxTextSize
	}
	return &TextExtractor{maxSize: maxSize}
}

// Supports reports whether the path has a plain-text extension.
func (t *TextExtractor) Supports(path string) bool {
	return textExtensions[strings.ToLower(filepath.Ext(path))]
}

// Extract reads the whole file and pairs it with filesystem metadata.
func (t *TextExtractor) Extract(path string) (*Content, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, &ExtractionError{Path: path, Err: err}
	}

	if info.Size() > t.maxSize {
		return nil, &ExtractionError{
			Path: path,
			Err:  fmt.Errorf("file too large (%d bytes, max %d)", info.Size(), t.maxSize),
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ExtractionError{Path: path, Err: err}
	}

	return &Content{
		Meta: FileMetadata{
			Path:         path,
			Filename:     filepath.Base(path),
			FileType:     fileType(path),
			SizeBytes:    info.Size(),
			CreatedAt:    info.ModTime(),
			LastModified: info.ModTime(),
		},
		Text: strings.TrimSpace(string(data)),
	}, nil
}
