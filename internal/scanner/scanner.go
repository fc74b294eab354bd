package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/semdex/semdex/internal/embed"
	"github.com/semdex/semdex/internal/extract"
	"github.com/semdex/semdex/internal/index"
)

// Scanner produces index records from directory subtrees.
type Scanner struct {
	index      *index.Index
	embedder   embed.Embedder
	extractors *extract.Registry
	logger     *slog.Logger
	cfg        Config
}

// New creates a scanner over the given index, embedder and extractors.
func New(idx *index.Index, embedder embed.Embedder, extractors *extract.Registry, cfg Config, logger *slog.Logger) *Scanner {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{
		index:      idx,
		embedder:   embedder,
		extractors: extractors,
		logger:     logger,
		cfg:        cfg,
	}
}

// ScanDirectory scans one directory subtree depth-first and indexes every
// supported file in it.
//
// A missing root yields a report whose only content is an error entry;
// it is not a failure of the call, so scans of other roots can continue.
// Per-file failures (permissions, extraction) are recorded in the report
// and never abort the remainder of the scan.
func (s *Scanner) ScanDirectory(ctx context.Context, root string) *Report {
	start := time.Now()
	canonical := CanonicalPath(root)
	report := &Report{
		ScanTime:     start,
		ScannedPaths: []string{canonical},
	}

	info, err := os.Stat(canonical)
	if err != nil || !info.IsDir() {
		report.Errors = append(report.Errors, fmt.Sprintf("path %q does not exist or is not a directory", root))
		report.Duration = time.Since(start)
		return report
	}

	s.notify(fmt.Sprintf("Scanning %s", canonical))
	s.walk(ctx, canonical, report)
	report.Duration = time.Since(start)

	s.logger.Info("scan complete",
		slog.String("root", canonical),
		slog.Int("files", len(report.Records)),
		slog.Int("errors", len(report.Errors)),
		slog.Duration("duration", report.Duration))

	if s.cfg.LogPath != "" {
		if err := s.writeReport(report); err != nil {
			s.logger.Warn("failed to write scan log",
				slog.String("path", s.cfg.LogPath),
				slog.String("error", err.Error()))
		}
	}
	return report
}

// walk visits direct children depth-first in directory-listing order.
// The order is not guaranteed across platforms and callers must not
// depend on it.
func (s *Scanner) walk(ctx context.Context, dir string, report *Report) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("read %q: %v", dir, err))
		return
	}

	for _, entry := range entries {
		select {
		case <-ctx.Done():
			report.Errors = append(report.Errors, fmt.Sprintf("scan of %q cancelled", dir))
			return
		default:
		}

		path := filepath.Join(dir, entry.Name())
		if entry.IsDir() {
			s.walk(ctx, path, report)
			continue
		}
		if !s.extractors.Supports(path) {
			continue
		}

		record, err := s.ScanFile(ctx, path)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("index %q: %v", path, err))
		}
		if record.Indexed() {
			report.Records = append(report.Records, record)
		}
	}
}

// ScanDirectories fans ScanDirectory out across a bounded worker pool
// and merges the per-root reports. There is no ordering guarantee
// between roots.
func (s *Scanner) ScanDirectories(ctx context.Context, roots []string) *Report {
	if len(roots) == 0 {
		return &Report{ScanTime: time.Now()}
	}

	reports := make([]*Report, len(roots))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)
	for i, root := range roots {
		g.Go(func() error {
			r := s.ScanDirectory(gctx, root)
			mu.Lock()
			reports[i] = r
			mu.Unlock()
			return nil
		})
	}
	// Workers never return errors; per-root failures live in the reports.
	_ = g.Wait()

	return Merge(reports...)
}

// ScanFile extracts, embeds and indexes a single file. It is the entry
// point the change monitor reuses so both paths share one pipeline.
//
// An unsupported file or one whose extraction yields no text returns a
// zero Record and no error; callers must check Record.Indexed() before
// treating the result as indexed. If the file's id is already present
// the old entry is replaced, never duplicated.
func (s *Scanner) ScanFile(ctx context.Context, path string) (index.Record, error) {
	canonical := CanonicalPath(path)
	if !s.extractors.Supports(canonical) {
		return index.Record{}, nil
	}

	content, err := s.extractors.Extract(canonical)
	if err != nil {
		if errors.Is(err, extract.ErrUnsupportedType) {
			return index.Record{}, nil
		}
		return index.Record{}, err
	}
	if content.Text == "" {
		return index.Record{}, nil
	}

	s.notify(fmt.Sprintf("Indexing %s", canonical))

	vector, err := s.embedder.Embed(ctx, content.Text)
	if err != nil {
		return index.Record{}, fmt.Errorf("embed %q: %w", canonical, err)
	}

	id := PathID(canonical)
	record := index.Record{ID: id, Vector: vector, Meta: content.Meta}

	// Add replaces any existing entry for this id, so a re-scan of a
	// modified file is a delete-and-reinsert under the same id.
	if err := s.index.Add(id, vector, content.Meta); err != nil {
		var pErr *index.PersistenceError
		if errors.As(err, &pErr) {
			// Indexed in memory; disk is behind. Surface it, keep the record.
			return record, pErr
		}
		return index.Record{}, err
	}

	return record, nil
}

// notify delivers a progress string to the configured sink, if any.
func (s *Scanner) notify(msg string) {
	if s.cfg.Notify != nil {
		s.cfg.Notify(msg)
	}
}

// writeReport appends a human-readable report of one scan pass to the
// scan log. The log is a diagnostics artifact only; failures to write it
// never affect index state.
func (s *Scanner) writeReport(report *Report) error {
	if err := os.MkdirAll(filepath.Dir(s.cfg.LogPath), 0o755); err != nil {
		return err
	}

	f, err := os.OpenFile(s.cfg.LogPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	fmt.Fprintf(f, "File System Scan Results\n")
	fmt.Fprintf(f, "==================================================\n")
	fmt.Fprintf(f, "Scan started at: %s\n", report.ScanTime.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(f, "Scanned directories:\n")
	for _, p := range report.ScannedPaths {
		fmt.Fprintf(f, "- %s\n", p)
	}
	fmt.Fprintf(f, "==================================================\n")

	records := make([]index.Record, len(report.Records))
	copy(records, report.Records)
	sort.Slice(records, func(i, j int) bool { return records[i].Meta.Path < records[j].Meta.Path })
	for _, r := range records {
		fmt.Fprintf(f, "indexed id=%d path=%s type=%s size=%d\n",
			r.ID, r.Meta.Path, r.Meta.FileType, r.Meta.SizeBytes)
	}
	for _, e := range report.Errors {
		fmt.Fprintf(f, "error: %s\n", e)
	}
	fmt.Fprintf(f, "files=%d errors=%d duration=%s\n\n",
		len(report.Records), len(report.Errors), report.Duration)

	return nil
}
