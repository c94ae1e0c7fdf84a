// Package app wires the sync subsystems together and exposes the
// editor-facing API.
//
// An App owns the filesystem watcher and its debounce coordinator, the git
// worker, the open document set, the autosave manager and one language
// server session per file extension. Everything except the background
// watcher, git and LSP goroutines runs on the goroutine that calls Tick; App
// itself is not safe for concurrent use.
package app

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/dshills/keysync/internal/config"
	"github.com/dshills/keysync/internal/integration/git"
	"github.com/dshills/keysync/internal/logging"
	"github.com/dshills/keysync/internal/lsp"
	"github.com/dshills/keysync/internal/project/autosave"
	"github.com/dshills/keysync/internal/project/filestore"
	"github.com/dshills/keysync/internal/project/watcher"
)

// SessionStarter launches a language server session.
type SessionStarter func(ctx context.Context, cfg lsp.ServerConfig, root string, opts ...lsp.Option) (*lsp.Session, error)

// Options configures the application.
type Options struct {
	// Root is the project directory.
	Root string

	// Config is the loaded configuration. The zero value is replaced by
	// config.Default().
	Config *config.Config

	// NoWatch disables the filesystem watcher. Changes can still be fed
	// to the coordinator with NotifyChange.
	NoWatch bool

	// GitOptions are passed to the git worker.
	GitOptions []git.WorkerOption

	// StartSession replaces lsp.Start.
	StartSession SessionStarter
}

// App is the central coordinator of the sync core.
type App struct {
	root   string
	config config.Config
	log    *logrus.Entry

	ctx    context.Context
	cancel context.CancelFunc

	watcher     *watcher.FSWatcher
	coordinator *watcher.Coordinator
	git         *git.Worker
	documents   *filestore.Store
	autosave    *autosave.Manager

	sessions     map[string]*lsp.Session
	lspFailed    map[string]bool
	startSession SessionStarter

	snapshot    git.Snapshot
	owed        *watcher.Refresh
	gitWarned   bool
	completions []lsp.CompletionItem

	status  string
	metrics *Metrics
	closed  atomic.Bool
}

// New creates an App for opts.Root and starts watching it.
func New(opts Options) (*App, error) {
	cfg := config.Default()
	if opts.Config != nil {
		cfg = *opts.Config
	}

	root, err := resolveRoot(opts.Root)
	if err != nil {
		return nil, &InitError{Component: "root", Err: err}
	}

	configDir, err := cfg.ResolvedConfigDir()
	if err != nil {
		return nil, &InitError{Component: "config dir", Err: err}
	}

	ctx, cancel := context.WithCancel(context.Background())
	app := &App{
		root:         root,
		config:       cfg,
		log:          logging.NewLogger("app").WithField("root", root),
		ctx:          ctx,
		cancel:       cancel,
		documents:    filestore.NewStore(),
		autosave:     autosave.NewManager(filepath.Join(configDir, "autosave"), cfg.Autosave.Interval),
		sessions:     make(map[string]*lsp.Session),
		lspFailed:    make(map[string]bool),
		startSession: opts.StartSession,
		metrics:      NewMetrics(),
	}
	if app.startSession == nil {
		app.startSession = lsp.Start
	}

	var coordOpts []watcher.CoordinatorOption
	if cfg.Watch.MaxDeferral > 0 {
		coordOpts = append(coordOpts, watcher.WithMaxDeferral(cfg.Watch.MaxDeferral))
	}
	app.coordinator = watcher.NewCoordinator(cfg.Watch.Debounce, coordOpts...)

	if cfg.Git.Enabled {
		app.git = git.NewWorker(root, opts.GitOptions...)
	}

	if !opts.NoWatch {
		if err := app.startWatcher(); err != nil {
			cancel()
			return nil, &InitError{Component: "watcher", Err: err}
		}
	}

	app.log.Debug("application initialized")
	return app, nil
}

func (app *App) startWatcher() error {
	w, err := watcher.NewFSWatcher(app.root,
		watcher.WithBatchInterval(app.config.Watch.BatchInterval),
		watcher.WithIgnorePatterns(app.config.Watch.Ignore),
	)
	if err != nil {
		return err
	}
	if err := w.Start(app.coordinator.Record); err != nil {
		_ = w.Close()
		return err
	}
	app.watcher = w
	return nil
}

// resolveRoot returns root as an absolute path with symlinks resolved, so
// that it matches the paths the watcher reports.
func resolveRoot(root string) (string, error) {
	if root == "" {
		root = "."
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return "", watcher.ErrRootNotDirectory
	}
	return abs, nil
}

// Shutdown stops the watcher, waits for an in-flight git run and closes
// every language server. It is safe to call more than once.
func (app *App) Shutdown() {
	if app.closed.Swap(true) {
		return
	}
	app.cancel()

	if app.watcher != nil {
		if err := app.watcher.Close(); err != nil {
			app.log.WithError(err).Debug("watcher close")
		}
	}
	if app.git != nil {
		_, _, _ = app.git.Wait()
	}
	for ext, s := range app.sessions {
		if err := s.Close(); err != nil {
			app.log.WithError(err).WithField("ext", ext).Debug("lsp close")
		}
	}
	app.sessions = make(map[string]*lsp.Session)
	app.log.Debug("application shut down")
}

// NotifyChange records a filesystem change as if the watcher had seen it.
func (app *App) NotifyChange(ev watcher.ChangeEvent) {
	app.coordinator.Record(ev)
}

// Root returns the absolute project root.
func (app *App) Root() string {
	return app.root
}

// Config returns the configuration in effect.
func (app *App) Config() config.Config {
	return app.config
}

// Status returns the most recent status message.
func (app *App) Status() string {
	return app.status
}

// Snapshot returns the latest git snapshot.
func (app *App) Snapshot() git.Snapshot {
	return app.snapshot
}

// Documents returns the open documents in order.
func (app *App) Documents() []*filestore.Document {
	return app.documents.OpenDocuments()
}

// Active returns the active document, or nil.
func (app *App) Active() *filestore.Document {
	return app.documents.Active()
}

// Completions returns the items of the last completion response.
func (app *App) Completions() []lsp.CompletionItem {
	return app.completions
}

// Metrics returns the application's counters.
func (app *App) Metrics() *Metrics {
	return app.metrics
}

// AutosavePath returns where the autosave for an open document is written.
func (app *App) AutosavePath(path string) string {
	return app.autosave.PathFor(path)
}

func (app *App) setStatus(msg string) {
	app.status = msg
	app.log.Info(msg)
}

// rel returns path relative to the root for display.
func (app *App) rel(path string) string {
	if rel, err := filepath.Rel(app.root, path); err == nil && !strings.HasPrefix(rel, "..") {
		return rel
	}
	return path
}

// abs resolves path against the root.
func (app *App) abs(path string) string {
	if !filepath.IsAbs(path) {
		path = filepath.Join(app.root, path)
	}
	return filepath.Clean(path)
}
