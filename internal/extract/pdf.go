package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDFExtractor extracts text from PDF files, capped at a page count.
type PDFExtractor struct {
	maxPages int
}

// NewPDFExtractor creates a PDF extractor that reads the first page only.
func NewPDFExtractor() *PDFExtractor {
	return &PDFExtractor{maxPages: 1}
}

// NewPDFExtractorWithPages creates a PDF extractor reading up to maxPages
// pages. Zero or negative means all pages.
func NewPDFExtractorWithPages(maxPages int) *PDFExtractor {
	return &PDFExtractor{maxPages: maxPages}
}

// Supports reports whether the path has a .pdf extension.
func (p *PDFExtractor) Supports(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".pdf")
}

// Extract parses the PDF and returns page-delimited text plus metadata.
func (p *PDFExtractor) Extract(path string) (*Content, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, &ExtractionError{Path: path, Err: err}
	}

	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, &ExtractionError{Path: path, Err: err}
	}
	defer func() { _ = f.Close() }()

	pageCount := reader.NumPage()
	limit := pageCount
	if p.maxPages > 0 && p.maxPages < limit {
		limit = p.maxPages
	}

	var sb strings.Builder
	for i := 1; i <= limit; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// A single unreadable page does not fail the document.
			continue
		}
		if text != "" {
			fmt.Fprintf(&sb, "--- Page %d ---\n%s", i, text)
		}
	}

	return &Content{
		Meta: FileMetadata{
			Path:         path,
			Filename:     filepath.Base(path),
			FileType:     "pdf",
			SizeBytes:    info.Size(),
			CreatedAt:    info.ModTime(),
			LastModified: info.ModTime(),
			PageCount:    pageCount,
		},
		Text: strings.TrimSpace(sb.String()),
	}, nil
}
