package app

import (
	"errors"
	"fmt"

	"github.com/dshills/keysync/internal/project/filestore"
	"github.com/dshills/keysync/internal/project/watcher"
)

// Open opens the file at path, or switches to it when it is already open.
// Relative paths are resolved against the root.
func (app *App) Open(path string) (*filestore.Document, error) {
	abs := app.abs(path)
	rel := app.rel(abs)

	if i, ok := app.documents.Index(abs); ok {
		if err := app.documents.Activate(i); err != nil {
			return nil, err
		}
		return app.documents.Active(), nil
	}

	doc, err := filestore.Load(abs)
	if err != nil {
		if errors.Is(err, filestore.ErrBinaryFile) {
			app.setStatus(fmt.Sprintf("Cannot open binary file: %s", rel))
		} else {
			app.setStatus(fmt.Sprintf("Failed to open %s: %v", rel, errors.Unwrap(err)))
		}
		return nil, NewOperationError("open", rel, err)
	}
	app.documents.Add(doc)
	app.trackFile(abs)
	app.applyLines(doc)
	app.setStatus(fmt.Sprintf("Opened %s", rel))

	app.attachLSP(doc)
	if app.config.Autosave.Enabled && app.autosave.Check(doc) {
		app.setStatus(fmt.Sprintf("Unsaved changes to %s were recovered: accept or discard", rel))
	}
	app.requestGit(watcher.Refresh{Paths: []string{abs}})
	return doc, nil
}

// MarkDirty replaces the active document's text as an edit.
func (app *App) MarkDirty(text string) error {
	doc := app.documents.Active()
	if doc == nil {
		return ErrNoActiveDocument
	}
	doc.SetText(text)
	app.syncLSP(doc)
	return nil
}

// Save writes the active document and forces a full refresh.
func (app *App) Save() error {
	doc := app.documents.Active()
	if doc == nil {
		return ErrNoActiveDocument
	}
	rel := app.rel(doc.Path)
	if err := filestore.Save(doc); err != nil {
		app.setStatus(fmt.Sprintf("Save failed: %v", errors.Unwrap(err)))
		return NewOperationError("save", rel, err)
	}
	app.clearAutosave(doc.Path)
	app.coordinator.Force()
	app.setStatus(fmt.Sprintf("Saved %s", rel))
	return nil
}

// Close closes the active document.
func (app *App) Close() error {
	doc := app.documents.Active()
	if doc == nil {
		return ErrNoActiveDocument
	}
	app.closeDocument(doc)
	app.setStatus(fmt.Sprintf("Closed %s", app.rel(doc.Path)))
	return nil
}

func (app *App) closeDocument(doc *filestore.Document) {
	if app.watcher != nil {
		app.watcher.Untrack(doc.Path)
	}
	app.detachLSP(doc)
	app.clearAutosave(doc.Path)
	if err := app.documents.Remove(doc.Path); err != nil {
		app.log.WithError(err).Debug("close")
	}
}

// ResolveConflict applies r to the active document's conflict.
func (app *App) ResolveConflict(r filestore.ConflictResolution) error {
	doc := app.documents.Active()
	if doc == nil {
		return ErrNoActiveDocument
	}
	status, err := doc.ResolveConflict(r)
	if err != nil {
		return NewOperationError("resolve conflict", app.rel(doc.Path), err)
	}
	if r == filestore.ResolveReloadDisk {
		app.syncLSP(doc)
		app.clearAutosave(doc.Path)
	}
	app.setStatus(status)
	return nil
}

// AcceptRecovery replaces the active document's text with its autosave.
func (app *App) AcceptRecovery() error {
	doc := app.documents.Active()
	if doc == nil {
		return ErrNoActiveDocument
	}
	if err := doc.AcceptRecovery(); err != nil {
		return NewOperationError("recover", app.rel(doc.Path), err)
	}
	app.syncLSP(doc)
	app.setStatus("Recovered autosave content")
	return nil
}

// DiscardRecovery deletes the active document's autosave.
func (app *App) DiscardRecovery() error {
	doc := app.documents.Active()
	if doc == nil {
		return ErrNoActiveDocument
	}
	if err := doc.DiscardRecovery(); err != nil {
		return NewOperationError("discard recovery", app.rel(doc.Path), err)
	}
	app.clearAutosave(doc.Path)
	app.setStatus("Discarded autosave")
	return nil
}

// CancelRecovery closes the recovery prompt and keeps the autosave on disk,
// so it is offered again the next time the file is opened.
func (app *App) CancelRecovery() error {
	doc := app.documents.Active()
	if doc == nil {
		return ErrNoActiveDocument
	}
	if !doc.Recovery.Open {
		return NewOperationError("cancel recovery", app.rel(doc.Path), filestore.ErrNoRecovery)
	}
	doc.Recovery = filestore.RecoveryState{}
	app.setStatus("Recovery canceled")
	return nil
}

// trackFile keeps external edits of an open file visible even when its
// directory is excluded from the recursive watch.
func (app *App) trackFile(path string) {
	if app.watcher == nil {
		return
	}
	if err := app.watcher.Track(path); err != nil {
		app.log.WithError(err).WithField("path", path).Warn("watch open file")
	}
}

func (app *App) clearAutosave(path string) {
	if err := app.autosave.Clear(path); err != nil {
		app.log.WithError(err).Warn("clear autosave")
	}
}
