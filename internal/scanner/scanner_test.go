package scanner

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/semdex/semdex/internal/embed"
	"github.com/semdex/semdex/internal/extract"
	"github.com/semdex/semdex/internal/index"
	"github.com/semdex/semdex/internal/logging"
)

func newTestScanner(t *testing.T, cfg Config) (*Scanner, *index.Index) {
	t.Helper()
	dir := t.TempDir()
	idx, err := index.New(index.Config{
		Dimension: embed.StaticDimensions,
		IndexPath: filepath.Join(dir, "index.hnsw"),
		MetaPath:  filepath.Join(dir, "index.meta"),
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })

	embedder := embed.NewStaticEmbedder()
	s := New(idx, embedder, extract.DefaultRegistry(), cfg, logging.NewTestLogger())
	return s, idx
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestScanDirectory_MixedFiles(t *testing.T) {
	// Given a directory with one supported text file and one file with
	// an unsupported extension
	root := t.TempDir()
	writeFile(t, root, "notes.txt", "quarterly revenue projections")
	writeFile(t, root, "binary.exe", "\x7fELF")

	s, idx := newTestScanner(t, Config{})

	// When the directory is scanned
	report := s.ScanDirectory(context.Background(), root)

	// Then only the supported file is indexed and nothing is an error
	assert.Len(t, report.Records, 1)
	assert.Empty(t, report.Errors)
	assert.Equal(t, 1, idx.Count())
	assert.Equal(t, "notes.txt", report.Records[0].Meta.Filename)
}

func TestScanDirectory_Recursive(t *testing.T) {
	// Given nested directories with supported files at both levels
	root := t.TempDir()
	writeFile(t, root, "top.md", "architecture overview")
	sub := filepath.Join(root, "deep", "deeper")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	writeFile(t, sub, "leaf.txt", "meeting minutes from march")

	s, idx := newTestScanner(t, Config{})

	// When the root is scanned
	report := s.ScanDirectory(context.Background(), root)

	// Then files from every depth are indexed
	assert.Len(t, report.Records, 2)
	assert.Equal(t, 2, idx.Count())
}

func TestScanDirectory_MissingRoot(t *testing.T) {
	// Given a path that does not exist
	s, idx := newTestScanner(t, Config{})

	// When it is scanned
	report := s.ScanDirectory(context.Background(), filepath.Join(t.TempDir(), "nope"))

	// Then the report carries an error entry and the index is untouched
	assert.Empty(t, report.Records)
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0], "does not exist")
	assert.Equal(t, 0, idx.Count())
}

func TestScanDirectory_EmptyFileSkipped(t *testing.T) {
	// Given a supported file with only whitespace content
	root := t.TempDir()
	writeFile(t, root, "blank.txt", "   \n\t ")

	s, idx := newTestScanner(t, Config{})

	// When the directory is scanned
	report := s.ScanDirectory(context.Background(), root)

	// Then the file is skipped without being treated as an error
	assert.Empty(t, report.Records)
	assert.Empty(t, report.Errors)
	assert.Equal(t, 0, idx.Count())
}

func TestScanDirectories_MergesRoots(t *testing.T) {
	// Given two roots with one supported file each, plus a missing root
	rootA := t.TempDir()
	rootB := t.TempDir()
	writeFile(t, rootA, "a.txt", "first corpus document")
	writeFile(t, rootB, "b.md", "second corpus document")
	missing := filepath.Join(t.TempDir(), "gone")

	s, idx := newTestScanner(t, Config{Workers: 2})

	// When all roots are scanned concurrently
	report := s.ScanDirectories(context.Background(), []string{rootA, rootB, missing})

	// Then records merge across roots and the bad root only adds an error
	assert.Len(t, report.Records, 2)
	assert.Len(t, report.Errors, 1)
	assert.Len(t, report.ScannedPaths, 3)
	assert.Equal(t, 2, idx.Count())
}

func TestScanFile_UnsupportedReturnsZeroRecord(t *testing.T) {
	// Given a file whose extension no extractor supports
	root := t.TempDir()
	path := writeFile(t, root, "photo.jpg", "not really a photo")

	s, _ := newTestScanner(t, Config{})

	// When it is scanned directly
	record, err := s.ScanFile(context.Background(), path)

	// Then it is neither indexed nor an error
	require.NoError(t, err)
	assert.False(t, record.Indexed())
}

func TestScanFile_RescanKeepsSingleEntry(t *testing.T) {
	// Given an already-indexed file
	root := t.TempDir()
	path := writeFile(t, root, "doc.txt", "original body")

	s, idx := newTestScanner(t, Config{})
	first, err := s.ScanFile(context.Background(), path)
	require.NoError(t, err)
	require.True(t, first.Indexed())

	// When the file changes and is scanned again
	require.NoError(t, os.WriteFile(path, []byte("revised body"), 0o644))
	second, err := s.ScanFile(context.Background(), path)
	require.NoError(t, err)

	// Then the id is stable and the index still holds one entry
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, idx.Count())
}

func TestScanDirectory_WritesReportLog(t *testing.T) {
	// Given a scanner configured with a scan log path
	root := t.TempDir()
	writeFile(t, root, "logged.txt", "content worth indexing")
	logPath := filepath.Join(t.TempDir(), "logs", "scan_result.log")

	s, _ := newTestScanner(t, Config{LogPath: logPath})

	// When two scans run back to back
	s.ScanDirectory(context.Background(), root)
	s.ScanDirectory(context.Background(), root)

	// Then the log accumulates both passes
	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(data), "File System Scan Results"))
	assert.Contains(t, string(data), "logged.txt")
}

func TestScanDirectory_NotifiesProgress(t *testing.T) {
	// Given a progress sink
	root := t.TempDir()
	writeFile(t, root, "seen.txt", "progress should mention this file")

	var messages []string
	s, _ := newTestScanner(t, Config{Notify: func(msg string) { messages = append(messages, msg) }})

	// When the directory is scanned
	s.ScanDirectory(context.Background(), root)

	// Then the sink saw both the scan start and the file
	require.NotEmpty(t, messages)
	joined := strings.Join(messages, "\n")
	assert.Contains(t, joined, "Scanning")
	assert.Contains(t, joined, "seen.txt")
}

func TestPathID_StableAndBounded(t *testing.T) {
	// Given the same path spelled two ways
	root := t.TempDir()
	path := writeFile(t, root, "stable.txt", "x")
	dotted := filepath.Join(root, ".", "stable.txt")

	// When ids are derived
	a := PathID(path)
	b := PathID(dotted)

	// Then both spellings agree and the id is in range
	assert.Equal(t, a, b)
	assert.Less(t, a, uint64(100_000_000))
}

func TestMerge_CombinesReports(t *testing.T) {
	// Given two reports with distinct content
	r1 := &Report{ScannedPaths: []string{"/a"}, Errors: []string{"boom"}}
	r2 := &Report{ScannedPaths: []string{"/b"}}

	// When merged with a nil entry in between
	merged := Merge(r1, nil, r2)

	// Then paths and errors concatenate
	assert.Equal(t, []string{"/a", "/b"}, merged.ScannedPaths)
	assert.Equal(t, []string{"boom"}, merged.Errors)
}
