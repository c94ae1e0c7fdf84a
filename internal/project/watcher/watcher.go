// Package watcher detects external filesystem changes under a project root
// and decides when the editor should refresh its view of them.
//
// FSWatcher wraps a recursive fsnotify watch and delivers batched
// ChangeEvents. Coordinator debounces those events: it is fed from any
// goroutine with Record and drained by the consumer loop with Tick, which
// reports at most one Refresh per quiet window.
package watcher

import (
	"errors"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Common errors returned by watcher operations.
var (
	ErrWatcherClosed    = errors.New("watcher is closed")
	ErrAlreadyStarted   = errors.New("watcher already started")
	ErrPathNotExist     = errors.New("path does not exist")
	ErrRootNotDirectory = errors.New("root is not a directory")
)

// ChangeEvent reports a batch of changed paths.
type ChangeEvent struct {
	// Paths are absolute paths of changed files and directories.
	Paths []string

	// FullRefresh is set when a path lies under the repository metadata
	// directory, where a change is too broad to enumerate.
	FullRefresh bool
}

// Refresh is the coalesced work a fired debounce window hands downstream.
type Refresh struct {
	// Paths are the distinct changed paths, sorted.
	Paths []string

	// Full requests that every open document be refreshed.
	Full bool
}

// Affects reports whether a document at path needs refreshing: the refresh is
// full, no specific paths were recorded, the path itself changed, or its
// directory lies under a changed path.
func (r Refresh) Affects(path string) bool {
	if r.Full || len(r.Paths) == 0 {
		return true
	}
	dir := filepath.Dir(path)
	for _, p := range r.Paths {
		if path == p || dir == p || strings.HasPrefix(dir, p+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Stats provides watcher status information.
type Stats struct {
	// WatchedPaths is the number of directories being watched.
	WatchedPaths int

	// TotalEvents is the number of raw events accepted.
	TotalEvents int64

	// Batches is the number of ChangeEvents delivered.
	Batches int64

	// Errors is the total number of errors encountered.
	Errors int64

	// LastError is the most recent error, if any.
	LastError error

	// StartTime is when the watcher was started.
	StartTime time.Time
}

// Config holds watcher configuration options.
type Config struct {
	// BatchInterval groups raw events into one ChangeEvent.
	// Default: 250ms
	BatchInterval time.Duration

	// IgnorePatterns are extra gitignore-style patterns, relative to root.
	IgnorePatterns []string

	// UseGitignore also applies the root .gitignore.
	// Default: true
	UseGitignore bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		BatchInterval: 250 * time.Millisecond,
		UseGitignore:  true,
	}
}

// WatcherOption configures a watcher.
type WatcherOption func(*Config)

// WithBatchInterval sets the batching interval.
func WithBatchInterval(d time.Duration) WatcherOption {
	return func(c *Config) {
		c.BatchInterval = d
	}
}

// WithIgnorePatterns adds ignore patterns.
func WithIgnorePatterns(patterns []string) WatcherOption {
	return func(c *Config) {
		c.IgnorePatterns = append(c.IgnorePatterns, patterns...)
	}
}

// WithGitignore toggles use of the root .gitignore.
func WithGitignore(enabled bool) WatcherOption {
	return func(c *Config) {
		c.UseGitignore = enabled
	}
}
