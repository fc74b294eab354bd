// Package watcher turns raw filesystem notifications into a stream of
// change events on a channel. It does no debouncing and no indexing of
// its own; consumers decide what an event means.
package watcher

import (
	"time"
)

// Kind classifies a filesystem change.
type Kind int

const (
	// Created indicates a new file or directory appeared.
	Created Kind = iota
	// Modified indicates an existing file's content changed.
	Modified
	// Deleted indicates a file or directory was removed.
	Deleted
	// Moved indicates a file or directory left its old path. The new
	// path arrives, if at all, as a separate Created event.
	Moved
)

func (k Kind) String() string {
	switch k {
	case Created:
		return "created"
	case Modified:
		return "modified"
	case Deleted:
		return "deleted"
	case Moved:
		return "moved"
	default:
		return "unknown"
	}
}

// ChangeEvent is one observed filesystem change. Paths are absolute.
type ChangeEvent struct {
	Path      string
	Kind      Kind
	IsDir     bool
	Timestamp time.Time
}

// Options configures the watcher behavior.
type Options struct {
	// EventBufferSize is the size of the event channel buffer.
	// Events are dropped, not blocked on, when the buffer is full.
	// Default: 1000
	EventBufferSize int

	// IgnoreNames are exact file names to never report.
	IgnoreNames []string

	// IgnoreSuffixes are path suffixes to never report.
	IgnoreSuffixes []string
}

// DefaultOptions returns the default watcher options. The default
// ignore set covers OS metadata files and in-flight temporaries that
// churn constantly and never hold indexable content.
func DefaultOptions() Options {
	return Options{
		EventBufferSize: 1000,
		IgnoreNames:     []string{"desktop.ini", "Thumbs.db", ".DS_Store"},
		IgnoreSuffixes:  []string{".tmp", ".crdownload", ".part", ".swp", "~"},
	}
}

// WithDefaults returns options with defaults applied for zero values.
func (o Options) WithDefaults() Options {
	defaults := DefaultOptions()
	if o.EventBufferSize == 0 {
		o.EventBufferSize = defaults.EventBufferSize
	}
	if o.IgnoreNames == nil {
		o.IgnoreNames = defaults.IgnoreNames
	}
	if o.IgnoreSuffixes == nil {
		o.IgnoreSuffixes = defaults.IgnoreSuffixes
	}
	return o
}
