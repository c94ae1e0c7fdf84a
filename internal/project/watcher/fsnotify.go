package watcher

import (
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/dshills/keysync/internal/logging"
)

// FSWatcher watches a project root recursively with fsnotify and delivers
// batched ChangeEvents to a sink.
type FSWatcher struct {
	mu sync.Mutex

	root    string
	gitDir  string
	config  Config
	watcher *fsnotify.Watcher
	ignore  *Ignorer
	log     *logrus.Entry

	// Watched directories
	paths map[string]bool

	// Open files per directory registered with Track
	tracked map[string]map[string]bool

	// Stats
	startTime   time.Time
	totalEvents atomic.Int64
	batches     atomic.Int64
	totalErrors atomic.Int64
	lastError   error

	// Lifecycle
	started  bool
	closed   bool
	closeCh  chan struct{}
	closedWg sync.WaitGroup
}

// NewFSWatcher creates a watcher for the directory root. Watching begins
// with Start.
func NewFSWatcher(root string, opts ...WatcherOption) (*FSWatcher, error) {
	config := DefaultConfig()
	for _, opt := range opts {
		opt(&config)
	}
	if config.BatchInterval <= 0 {
		config.BatchInterval = DefaultConfig().BatchInterval
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrPathNotExist
		}
		return nil, err
	}
	if !info.IsDir() {
		return nil, ErrRootNotDirectory
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &FSWatcher{
		root:      absRoot,
		gitDir:    filepath.Join(absRoot, ".git"),
		config:    config,
		watcher:   fsw,
		ignore:    NewIgnorer(absRoot, config.IgnorePatterns, config.UseGitignore),
		log:       logging.NewLogger("watcher"),
		paths:     make(map[string]bool),
		tracked:   make(map[string]map[string]bool),
		startTime: time.Now(),
		closeCh:   make(chan struct{}),
	}, nil
}

// Root returns the absolute watched root.
func (w *FSWatcher) Root() string {
	return w.root
}

// Start watches every non-ignored directory under root plus the metadata
// directory itself, and begins delivering ChangeEvents to sink from a
// background goroutine. sink must not block for long.
func (w *FSWatcher) Start(sink func(ChangeEvent)) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrWatcherClosed
	}
	if w.started {
		w.mu.Unlock()
		return ErrAlreadyStarted
	}
	w.started = true
	w.mu.Unlock()

	w.watchTree(w.root)
	if info, err := os.Stat(w.gitDir); err == nil && info.IsDir() {
		w.watch(w.gitDir)
	}

	w.closedWg.Add(1)
	go w.processLoop(sink)

	w.log.WithFields(logrus.Fields{
		"root":        w.root,
		"directories": w.Stats().WatchedPaths,
	}).Debug("watching project")
	return nil
}

// watchTree adds watches for dir and its non-ignored subdirectories.
// The metadata directory's subtree is skipped.
func (w *FSWatcher) watchTree(dir string) {
	_ = filepath.WalkDir(dir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if p == w.gitDir || w.ignore.Match(p, true) {
			return filepath.SkipDir
		}
		w.watch(p)
		return nil
	})
}

func (w *FSWatcher) watch(dir string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed || w.paths[dir] {
		return
	}
	if w.tracked[dir] != nil {
		w.paths[dir] = true
		return
	}
	if err := w.watcher.Add(dir); err != nil {
		w.recordErrorLocked(err)
		return
	}
	w.paths[dir] = true
}

// Close stops the watcher.
func (w *FSWatcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.closeCh)
	w.mu.Unlock()

	w.closedWg.Wait()
	return w.watcher.Close()
}

// Stats returns watcher statistics.
func (w *FSWatcher) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	return Stats{
		WatchedPaths: len(w.paths),
		TotalEvents:  w.totalEvents.Load(),
		Batches:      w.batches.Load(),
		Errors:       w.totalErrors.Load(),
		LastError:    w.lastError,
		StartTime:    w.startTime,
	}
}

// IsWatching returns true if the directory is being watched.
func (w *FSWatcher) IsWatching(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.paths[path]
}

// processLoop gathers raw events and flushes them once per batch interval.
func (w *FSWatcher) processLoop(sink func(ChangeEvent)) {
	defer w.closedWg.Done()

	ticker := time.NewTicker(w.config.BatchInterval)
	defer ticker.Stop()

	pending := make(map[string]struct{})
	full := false

	for {
		select {
		case <-w.closeCh:
			return

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if w.accept(ev) {
				pending[ev.Name] = struct{}{}
				if w.ignore.IsGitPath(ev.Name) {
					full = true
				}
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.recordError(err)
			w.log.WithError(err).Warn("watch error")

		case <-ticker.C:
			if len(pending) == 0 && !full {
				continue
			}
			batch := ChangeEvent{Paths: sortedKeys(pending), FullRefresh: full}
			pending = make(map[string]struct{})
			full = false
			w.batches.Add(1)
			sink(batch)
		}
	}
}

// accept filters a raw event and keeps newly created directories watched.
// Ignore rules only decide which directories get a watch; every file event
// from a watched directory is delivered.
func (w *FSWatcher) accept(ev fsnotify.Event) bool {
	if ev.Op == fsnotify.Chmod {
		return false
	}
	if w.ignore.IsGitPath(ev.Name) {
		w.totalEvents.Add(1)
		return true
	}

	if ev.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if w.ignore.Match(ev.Name, true) {
				return false
			}
			w.watchTree(ev.Name)
		}
	}
	w.totalEvents.Add(1)
	return true
}

// Track makes sure changes to the file at path are reported even when its
// directory is excluded by ignore rules. It is called for every open
// document and undone with Untrack.
func (w *FSWatcher) Track(path string) error {
	dir := filepath.Dir(path)

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrWatcherClosed
	}
	files := w.tracked[dir]
	if files == nil {
		if !w.paths[dir] {
			if err := w.watcher.Add(dir); err != nil {
				w.recordErrorLocked(err)
				return err
			}
		}
		files = make(map[string]bool)
		w.tracked[dir] = files
	}
	files[path] = true
	return nil
}

// Untrack reverses Track. The directory watch added for the file is removed
// once no tracked file needs it.
func (w *FSWatcher) Untrack(path string) {
	dir := filepath.Dir(path)

	w.mu.Lock()
	defer w.mu.Unlock()
	files := w.tracked[dir]
	if files == nil {
		return
	}
	delete(files, path)
	if len(files) > 0 {
		return
	}
	delete(w.tracked, dir)
	if !w.paths[dir] && !w.closed {
		_ = w.watcher.Remove(dir)
	}
}

// IsTracked reports whether the directory holding path is watched, either
// as part of the tree or because an open file in it was tracked.
func (w *FSWatcher) IsTracked(path string) bool {
	dir := filepath.Dir(path)
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.paths[dir] || w.tracked[dir] != nil
}

func (w *FSWatcher) recordError(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.recordErrorLocked(err)
}

func (w *FSWatcher) recordErrorLocked(err error) {
	w.totalErrors.Add(1)
	w.lastError = err
}
