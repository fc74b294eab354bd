package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/semdex/semdex/internal/logging"
)

func startWatcher(t *testing.T, root string) *FSWatcher {
	t.Helper()
	w, err := NewFSWatcher(Options{}, logging.NewTestLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = w.Start(ctx, root) }()
	t.Cleanup(func() {
		cancel()
		_ = w.Stop()
	})

	// Give the watch registration a moment to take effect.
	time.Sleep(100 * time.Millisecond)
	return w
}

// collectEvents drains events for a path until the deadline.
func collectEvents(w *FSWatcher, path string, deadline time.Duration) []ChangeEvent {
	var got []ChangeEvent
	timer := time.After(deadline)
	for {
		select {
		case ev, ok := <-w.Events():
			if !ok {
				return got
			}
			if path == "" || ev.Path == path {
				got = append(got, ev)
			}
		case <-timer:
			return got
		}
	}
}

func TestFSWatcher_ReportsCreate(t *testing.T) {
	// Given a watched directory
	root := t.TempDir()
	w := startWatcher(t, root)

	// When a file is created in it
	path := filepath.Join(root, "fresh.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	// Then a Created event for that path is emitted
	events := collectEvents(w, path, 2*time.Second)
	require.NotEmpty(t, events)
	assert.Equal(t, Created, events[0].Kind)
	assert.False(t, events[0].IsDir)
	assert.False(t, events[0].Timestamp.IsZero())
}

func TestFSWatcher_ReportsDelete(t *testing.T) {
	// Given a watched directory containing a file
	root := t.TempDir()
	path := filepath.Join(root, "doomed.txt")
	require.NoError(t, os.WriteFile(path, []byte("bye"), 0o644))
	w := startWatcher(t, root)

	// When the file is removed
	require.NoError(t, os.Remove(path))

	// Then a Deleted event for that path is emitted
	events := collectEvents(w, path, 2*time.Second)
	require.NotEmpty(t, events)
	assert.Equal(t, Deleted, events[len(events)-1].Kind)
}

func TestFSWatcher_NewSubdirectoryIsWatched(t *testing.T) {
	// Given a watched directory
	root := t.TempDir()
	w := startWatcher(t, root)

	// When a subdirectory is created and then a file inside it
	sub := filepath.Join(root, "nested")
	require.NoError(t, os.Mkdir(sub, 0o755))
	time.Sleep(200 * time.Millisecond)
	inner := filepath.Join(sub, "inner.txt")
	require.NoError(t, os.WriteFile(inner, []byte("deep"), 0o644))

	// Then the file inside the new subdirectory is reported too
	events := collectEvents(w, inner, 2*time.Second)
	require.NotEmpty(t, events)
	assert.Equal(t, Created, events[0].Kind)
}

func TestFSWatcher_IgnoresNoiseFiles(t *testing.T) {
	// Given a watched directory
	root := t.TempDir()
	w := startWatcher(t, root)

	// When only ignorable files are touched
	for _, name := range []string{"Thumbs.db", "desktop.ini", "download.crdownload", "edit.swp", "partial.tmp"} {
		require.NoError(t, os.WriteFile(filepath.Join(root, name), []byte("x"), 0o644))
	}

	// Then no events are emitted for them
	events := collectEvents(w, "", time.Second)
	assert.Empty(t, events)
}

func TestFSWatcher_RenameReportsMoved(t *testing.T) {
	// Given a watched directory containing a file
	root := t.TempDir()
	oldPath := filepath.Join(root, "before.txt")
	require.NoError(t, os.WriteFile(oldPath, []byte("content"), 0o644))
	w := startWatcher(t, root)

	// When the file is renamed within the tree
	require.NoError(t, os.Rename(oldPath, filepath.Join(root, "after.txt")))

	// Then the old path surfaces as a Moved event
	events := collectEvents(w, oldPath, 2*time.Second)
	require.NotEmpty(t, events)
	assert.Equal(t, Moved, events[0].Kind)
}

func TestFSWatcher_StopIsIdempotent(t *testing.T) {
	// Given a running watcher
	root := t.TempDir()
	w, err := NewFSWatcher(Options{}, logging.NewTestLogger())
	require.NoError(t, err)
	go func() { _ = w.Start(context.Background(), root) }()
	time.Sleep(100 * time.Millisecond)

	// When Stop is called twice
	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())

	// Then the events channel is closed
	_, ok := <-w.Events()
	assert.False(t, ok)
}

func TestFSWatcher_StopDuringEmitDoesNotPanic(t *testing.T) {
	// Given a watcher whose event buffer is full, so emits keep hitting
	// the channel while another goroutine stops the watcher
	w, err := NewFSWatcher(Options{EventBufferSize: 1}, logging.NewTestLogger())
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 5000; i++ {
			w.emit(ChangeEvent{Path: "/tmp/busy.txt", Kind: Modified, Timestamp: time.Now()})
		}
	}()

	// When Stop closes the channels mid-stream
	time.Sleep(time.Millisecond)
	require.NoError(t, w.Stop())

	// Then the emitter finishes without a send on a closed channel and
	// the events channel drains to closure
	<-done
	for range w.Events() {
	}
}

func TestOptions_WithDefaults(t *testing.T) {
	// Given zero-valued options
	opts := Options{}.WithDefaults()

	// Then every field carries its default
	assert.Equal(t, 1000, opts.EventBufferSize)
	assert.Contains(t, opts.IgnoreNames, "Thumbs.db")
	assert.Contains(t, opts.IgnoreSuffixes, ".tmp")
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "created", Created.String())
	assert.Equal(t, "modified", Modified.String())
	assert.Equal(t, "deleted", Deleted.String())
	assert.Equal(t, "moved", Moved.String())
}
