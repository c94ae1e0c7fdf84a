package app

import (
	"fmt"
	"time"

	"github.com/dshills/keysync/internal/integration/git"
	"github.com/dshills/keysync/internal/project/filestore"
	"github.com/dshills/keysync/internal/project/watcher"
)

// Tick runs one pass of the sync loop: filesystem, git, language servers
// and autosave, in that order. It reports whether any visible state
// changed.
func (app *App) Tick(now time.Time) bool {
	app.metrics.ticks.Add(1)
	changed := app.PollFilesystem(now)
	changed = app.PollGit() || changed
	changed = app.PollLSP() || changed
	changed = app.PollAutosave(now) || changed
	return changed
}

// PollFilesystem advances the debounce coordinator. When a refresh fires
// the active document is reconciled with disk first, then the git worker
// is dispatched, or owed a run if it is busy.
func (app *App) PollFilesystem(now time.Time) bool {
	r, fired := app.coordinator.Tick(now)
	if !fired {
		return false
	}
	app.metrics.refreshes.Add(1)
	if r.Full {
		app.metrics.fullRefreshes.Add(1)
	}
	app.log.WithField("paths", len(r.Paths)).WithField("full", r.Full).Debug("refresh fired")

	app.reconcileActive()
	app.requestGit(r)
	return true
}

func (app *App) reconcileActive() {
	doc := app.documents.Active()
	if doc == nil {
		return
	}

	res := filestore.Reconcile(doc, app.rel(doc.Path))
	switch res.Outcome {
	case filestore.Reloaded:
		app.metrics.reloads.Add(1)
		app.syncLSP(doc)
		app.clearAutosave(doc.Path)
	case filestore.ConflictRaised:
		app.metrics.conflicts.Add(1)
	case filestore.RemovedClosed:
		app.closeDocument(doc)
	case filestore.ReadFailed:
		app.log.WithError(res.Err).Warn("reconcile")
	}
	if res.Status != "" {
		app.setStatus(res.Status)
	}
}

// requestGit starts a git run covering the documents r affects. A run that
// cannot start now is remembered and merged with later requests.
func (app *App) requestGit(r watcher.Refresh) {
	if app.git == nil || app.closed.Load() {
		return
	}
	if app.owed != nil {
		r = mergeRefresh(*app.owed, r)
		app.owed = nil
	}
	if app.git.Busy() {
		app.owe(r)
		return
	}

	var docs []git.DocumentRequest
	for _, doc := range app.documents.OpenDocuments() {
		if r.Affects(doc.Path) {
			docs = append(docs, git.DocumentRequest{Path: doc.Path, LineCount: doc.LineCount()})
		}
	}
	if err := app.git.Spawn(app.ctx, docs); err != nil {
		app.owe(r)
		return
	}
	app.metrics.gitRuns.Add(1)
}

func (app *App) owe(r watcher.Refresh) {
	app.owed = &r
	app.metrics.gitOwed.Add(1)
}

// mergeRefresh combines two refresh scopes. Either being full, or either
// covering every path, makes the result full.
func mergeRefresh(a, b watcher.Refresh) watcher.Refresh {
	if a.Full || b.Full || len(a.Paths) == 0 || len(b.Paths) == 0 {
		return watcher.Refresh{Full: true}
	}
	seen := make(map[string]struct{}, len(a.Paths)+len(b.Paths))
	var paths []string
	for _, p := range append(append([]string(nil), a.Paths...), b.Paths...) {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		paths = append(paths, p)
	}
	return watcher.Refresh{Paths: paths}
}

// PollGit collects a finished git run without blocking. The snapshot
// replaces the previous one and its line status is applied to the
// documents it covers. An owed run is dispatched afterwards.
func (app *App) PollGit() bool {
	if app.git == nil {
		return false
	}
	snap, ok, err := app.git.Poll()
	if !ok {
		return false
	}

	if err != nil {
		app.setStatus(fmt.Sprintf("Git worker failed: %v", err))
	} else {
		if snap.Unavailable && !app.gitWarned {
			app.gitWarned = true
			app.setStatus("Missing tools: git")
		}
		app.snapshot = snap
		for _, dl := range snap.Lines {
			if doc, ok := app.documents.Get(dl.Path); ok {
				app.setLines(doc, dl)
			}
		}
	}

	if app.owed != nil {
		r := *app.owed
		app.owed = nil
		app.requestGit(r)
	}
	return true
}

// applyLines copies the current snapshot's line status onto doc, if the
// snapshot covers it.
func (app *App) applyLines(doc *filestore.Document) {
	if dl, ok := app.snapshot.LinesFor(doc.Path); ok {
		app.setLines(doc, dl)
	}
}

// setLines stores line status computed for the document's current line
// count. Results for an older buffer are dropped until the next run.
func (app *App) setLines(doc *filestore.Document, dl git.DocumentLines) {
	if len(dl.Status) != doc.LineCount() {
		return
	}
	doc.LineStatus = dl.Status
	doc.Hunks = dl.Hunks
}

// PollAutosave writes dirty documents when the autosave interval has
// elapsed.
func (app *App) PollAutosave(now time.Time) bool {
	if !app.config.Autosave.Enabled {
		return false
	}
	n, err := app.autosave.Tick(now, app.documents.OpenDocuments())
	app.metrics.autosaveWrites.Add(uint64(n))
	if err != nil {
		app.metrics.autosaveErrors.Add(1)
		app.setStatus(fmt.Sprintf("Autosave failed: %v", err))
		return true
	}
	return n > 0
}
