package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// FSWatcher watches a set of directory trees with fsnotify and emits
// ChangeEvents on a buffered channel. New subdirectories are added to
// the watch as they are created, so the coverage stays recursive.
type FSWatcher struct {
	fsWatcher     *fsnotify.Watcher
	events        chan ChangeEvent
	errors        chan error
	stopCh        chan struct{}
	roots         []string
	opts          Options
	logger        *slog.Logger
	mu            sync.RWMutex
	stopped       bool
	droppedEvents atomic.Uint64
}

// NewFSWatcher creates a watcher with the given options.
func NewFSWatcher(opts Options, logger *slog.Logger) (*FSWatcher, error) {
	opts = opts.WithDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	return &FSWatcher{
		fsWatcher: fsw,
		events:    make(chan ChangeEvent, opts.EventBufferSize),
		errors:    make(chan error, 10),
		stopCh:    make(chan struct{}),
		opts:      opts,
		logger:    logger,
	}, nil
}

// Start begins watching the given roots recursively and blocks until
// the context is cancelled or Stop is called. Roots that cannot be
// watched fail the call before any event is emitted.
func (w *FSWatcher) Start(ctx context.Context, roots ...string) error {
	if len(roots) == 0 {
		return fmt.Errorf("no roots to watch")
	}

	for _, root := range roots {
		abs, err := filepath.Abs(root)
		if err != nil {
			return fmt.Errorf("resolve %q: %w", root, err)
		}
		if err := w.addRecursive(abs); err != nil {
			return fmt.Errorf("watch %q: %w", abs, err)
		}
		w.roots = append(w.roots, abs)
	}

	w.logger.Info("watching for changes",
		slog.Int("roots", len(w.roots)),
		slog.String("first", w.roots[0]))

	for {
		select {
		case <-ctx.Done():
			_ = w.Stop()
			return ctx.Err()
		case <-w.stopCh:
			return nil
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return nil
			}
			w.handleFsnotifyEvent(event)
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return nil
			}
			w.emitError(err)
		}
	}
}

// handleFsnotifyEvent converts, filters and forwards one raw event.
func (w *FSWatcher) handleFsnotifyEvent(event fsnotify.Event) {
	if w.shouldIgnore(event.Name) {
		return
	}

	// After a delete or rename the path no longer stats; IsDir stays
	// false for those and consumers fall back to id-based removal.
	isDir := false
	if info, err := os.Stat(event.Name); err == nil {
		isDir = info.IsDir()
	}

	var kind Kind
	switch {
	case event.Op&fsnotify.Create != 0:
		kind = Created
		// Keep coverage recursive as new subtrees appear.
		if isDir {
			if err := w.addRecursive(event.Name); err != nil {
				w.emitError(fmt.Errorf("watch new directory %q: %w", event.Name, err))
			}
		}
	case event.Op&fsnotify.Write != 0:
		kind = Modified
	case event.Op&fsnotify.Remove != 0:
		kind = Deleted
	case event.Op&fsnotify.Rename != 0:
		kind = Moved
	case event.Op&fsnotify.Chmod != 0:
		// Permission churn never changes content.
		return
	default:
		return
	}

	w.emit(ChangeEvent{
		Path:      event.Name,
		Kind:      kind,
		IsDir:     isDir,
		Timestamp: time.Now(),
	})
}

// shouldIgnore filters out noise files that never hold content.
func (w *FSWatcher) shouldIgnore(path string) bool {
	base := filepath.Base(path)
	for _, name := range w.opts.IgnoreNames {
		if base == name {
			return true
		}
	}
	for _, suffix := range w.opts.IgnoreSuffixes {
		if strings.HasSuffix(base, suffix) {
			return true
		}
	}
	return false
}

// addRecursive adds root and every directory under it to the watch.
func (w *FSWatcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable entries are skipped, not fatal.
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		return w.fsWatcher.Add(path)
	})
}

// emit forwards an event without ever blocking the fsnotify loop.
// The read lock is held across the send so Stop cannot close the
// channel between the stopped check and the send.
func (w *FSWatcher) emit(event ChangeEvent) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.stopped {
		return
	}

	select {
	case w.events <- event:
	default:
		count := w.droppedEvents.Add(1)
		w.logger.Warn("event buffer full, dropping event",
			slog.String("path", event.Path),
			slog.String("kind", event.Kind.String()),
			slog.Uint64("total_dropped", count))
	}
}

func (w *FSWatcher) emitError(err error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.stopped {
		return
	}

	select {
	case w.errors <- err:
	default:
	}
}

// Stop stops the watcher and closes its channels. Safe to call more
// than once.
func (w *FSWatcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return nil
	}
	w.stopped = true
	close(w.stopCh)

	err := w.fsWatcher.Close()
	close(w.events)
	close(w.errors)
	return err
}

// Events returns the channel of change events. The channel is closed
// when the watcher stops.
func (w *FSWatcher) Events() <-chan ChangeEvent {
	return w.events
}

// Errors returns the channel of non-fatal watcher errors.
func (w *FSWatcher) Errors() <-chan error {
	return w.errors
}

// DroppedEvents returns the number of events dropped due to a full
// buffer since the watcher started.
func (w *FSWatcher) DroppedEvents() uint64 {
	return w.droppedEvents.Load()
}
