// Package monitor consumes watcher change events and keeps the index in
// step with the filesystem. It owns the debounce and suppression state;
// the watcher below it stays stateless and the scanner above it does the
// actual indexing.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/semdex/semdex/internal/index"
	"github.com/semdex/semdex/internal/scanner"
	"github.com/semdex/semdex/internal/watcher"
)

// Options configures the change monitor.
type Options struct {
	// Cooldown is the minimum interval between two processing passes
	// for the same path. Default: 1s.
	Cooldown time.Duration

	// CreateSuppression is how long modify events are swallowed after
	// a create of the same path, since most writers fire both back to
	// back. Default: 2s.
	CreateSuppression time.Duration

	// SettleWait is the pause before reading a just-changed file, so
	// the writer has time to finish. Default: 200ms.
	SettleWait time.Duration

	// Workers bounds concurrent file processing. Default: 4.
	Workers int

	// StopTimeout bounds the drain of in-flight work in Stop.
	// Default: 10s.
	StopTimeout time.Duration

	// Notify receives a human-readable line per applied change. It
	// must not block.
	Notify func(path string, kind watcher.Kind)
}

// WithDefaults returns options with defaults applied for zero values.
func (o Options) WithDefaults() Options {
	if o.Cooldown == 0 {
		o.Cooldown = time.Second
	}
	if o.CreateSuppression == 0 {
		o.CreateSuppression = 2 * time.Second
	}
	if o.SettleWait == 0 {
		o.SettleWait = 200 * time.Millisecond
	}
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.StopTimeout == 0 {
		o.StopTimeout = 10 * time.Second
	}
	return o
}

// ChangeMonitor applies watcher events to the index through the
// scanner's single-file pipeline.
type ChangeMonitor struct {
	scanner *scanner.Scanner
	index   *index.Index
	opts    Options
	logger  *slog.Logger

	group *errgroup.Group

	mu              sync.Mutex
	lastProcessed   map[string]time.Time
	recentlyCreated map[string]time.Time

	stopOnce sync.Once
}

// New creates a monitor over the given scanner and index.
func New(s *scanner.Scanner, idx *index.Index, opts Options, logger *slog.Logger) *ChangeMonitor {
	if logger == nil {
		logger = slog.Default()
	}
	opts = opts.WithDefaults()

	g := &errgroup.Group{}
	g.SetLimit(opts.Workers)

	return &ChangeMonitor{
		scanner:         s,
		index:           idx,
		opts:            opts,
		logger:          logger,
		group:           g,
		lastProcessed:   make(map[string]time.Time),
		recentlyCreated: make(map[string]time.Time),
	}
}

// Run consumes events until the channel closes or the context is
// cancelled, then drains in-flight work. The channel is normally a
// watcher's Events(); any ChangeEvent source works.
func (m *ChangeMonitor) Run(ctx context.Context, events <-chan watcher.ChangeEvent) error {
	for {
		select {
		case <-ctx.Done():
			return m.drain()
		case ev, ok := <-events:
			if !ok {
				return m.drain()
			}
			m.dispatch(ctx, ev)
		}
	}
}

// dispatch routes one event. Deletes and directory removals are applied
// inline: they only touch index state and must not lose to a full
// worker pool. File content changes go through the pool.
func (m *ChangeMonitor) dispatch(ctx context.Context, ev watcher.ChangeEvent) {
	switch ev.Kind {
	case watcher.Deleted:
		m.handleDelete(ev.Path)
		// A removed directory produces one event for itself, not one
		// per file beneath it. The subtree sweep catches those; for a
		// plain file delete nothing matches and it costs one pass over
		// the id set.
		if err := m.RemoveSubtree(ev.Path); err != nil {
			m.logger.Error("subtree removal incomplete",
				slog.String("path", ev.Path),
				slog.String("error", err.Error()))
		}

	case watcher.Moved:
		// The destination path arrives as its own create event; the
		// departure leaves a stale entry we cannot reconcile without
		// the new name.
		m.logger.Warn("path moved, old index entry retained until next scan",
			slog.String("path", ev.Path))

	case watcher.Created, watcher.Modified:
		if ev.IsDir {
			// New directories hold no content; their files arrive as
			// separate events.
			return
		}
		if m.suppressed(ev) {
			return
		}
		m.group.Go(func() error {
			m.processFile(ctx, ev)
			return nil
		})
	}
}

// suppressed applies the cooldown and post-create bookkeeping. Expired
// entries are dropped lazily here, so no timer goroutines exist.
func (m *ChangeMonitor) suppressed(ev watcher.ChangeEvent) bool {
	now := ev.Timestamp
	if now.IsZero() {
		now = time.Now()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if created, ok := m.recentlyCreated[ev.Path]; ok {
		if now.Sub(created) < m.opts.CreateSuppression {
			if ev.Kind == watcher.Modified {
				return true
			}
		} else {
			delete(m.recentlyCreated, ev.Path)
		}
	}
	if ev.Kind == watcher.Created {
		m.recentlyCreated[ev.Path] = now
	}

	if last, ok := m.lastProcessed[ev.Path]; ok && now.Sub(last) < m.opts.Cooldown {
		return true
	}
	m.lastProcessed[ev.Path] = now
	return false
}

// processFile waits out the settle window, re-checks existence and runs
// the file through the scanner pipeline.
func (m *ChangeMonitor) processFile(ctx context.Context, ev watcher.ChangeEvent) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(m.opts.SettleWait):
	}

	// The file may be gone by the time the settle window ends.
	if _, err := os.Stat(ev.Path); err != nil {
		m.handleDelete(ev.Path)
		return
	}

	record, err := m.scanner.ScanFile(ctx, ev.Path)
	if err != nil {
		m.logger.Error("failed to index changed file",
			slog.String("path", ev.Path),
			slog.String("kind", ev.Kind.String()),
			slog.String("error", err.Error()))
		return
	}
	if !record.Indexed() {
		return
	}

	m.logger.Info("indexed changed file",
		slog.String("path", ev.Path),
		slog.String("kind", ev.Kind.String()),
		slog.Uint64("id", record.ID))
	m.notify(ev.Path, ev.Kind)
}

// handleDelete removes a path from the index. Removing an id that was
// never indexed is a no-op, so unsupported files cost nothing here.
func (m *ChangeMonitor) handleDelete(path string) {
	id := scanner.PathID(path)
	if err := m.index.Remove(id); err != nil {
		m.logger.Error("failed to remove deleted file from index",
			slog.String("path", path),
			slog.String("error", err.Error()))
		return
	}

	m.mu.Lock()
	delete(m.lastProcessed, path)
	delete(m.recentlyCreated, path)
	m.mu.Unlock()

	m.logger.Info("removed deleted file from index", slog.String("path", path))
	m.notify(path, watcher.Deleted)
}

// RemoveSubtree removes every indexed file whose metadata places it
// under dir. Per-file failures are aggregated; the walk never stops at
// the first error.
func (m *ChangeMonitor) RemoveSubtree(dir string) error {
	prefix := scanner.CanonicalPath(dir) + string(filepath.Separator)

	var errs []error
	removed := 0
	for _, id := range m.index.IDs() {
		meta, ok := m.index.Metadata(id)
		if !ok {
			continue
		}
		if !strings.HasPrefix(meta.Path, prefix) {
			continue
		}
		if err := m.index.Remove(id); err != nil {
			errs = append(errs, fmt.Errorf("remove %q: %w", meta.Path, err))
			continue
		}
		removed++
	}

	if removed > 0 || len(errs) > 0 {
		m.logger.Info("removed subtree from index",
			slog.String("dir", dir),
			slog.Int("removed", removed),
			slog.Int("errors", len(errs)))
	}
	return errors.Join(errs...)
}

// Stop waits for in-flight work to finish, bounded by StopTimeout.
func (m *ChangeMonitor) Stop() error {
	var err error
	m.stopOnce.Do(func() {
		finished := make(chan struct{})
		go func() {
			_ = m.group.Wait()
			close(finished)
		}()
		select {
		case <-finished:
		case <-time.After(m.opts.StopTimeout):
			err = fmt.Errorf("timed out after %s waiting for in-flight work", m.opts.StopTimeout)
		}
	})
	return err
}

// drain is Run's shutdown path.
func (m *ChangeMonitor) drain() error {
	return m.Stop()
}

// notify delivers one applied-change notification, if a sink is set.
func (m *ChangeMonitor) notify(path string, kind watcher.Kind) {
	if m.opts.Notify != nil {
		m.opts.Notify(path, kind)
	}
}
