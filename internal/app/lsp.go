package app

import (
	"fmt"
	"maps"
	"path/filepath"
	"slices"
	"strings"

	"github.com/dshills/keysync/internal/lsp"
	"github.com/dshills/keysync/internal/project/filestore"
)

func extOf(path string) string {
	return strings.TrimPrefix(filepath.Ext(path), ".")
}

// sessionFor returns the running session for path's extension, starting it
// on first use. A server that failed to start is not retried.
func (app *App) sessionFor(path string) (*lsp.Session, string) {
	ext := extOf(path)
	if !app.config.LSP.Enabled || ext == "" {
		return nil, ext
	}
	if s, ok := app.sessions[ext]; ok {
		return s, ext
	}
	if app.lspFailed[ext] {
		return nil, ext
	}
	srv, ok := app.config.LSP.ServerFor(ext)
	if !ok {
		return nil, ext
	}

	s, err := app.startSession(app.ctx, lsp.ServerConfig{
		Command:    srv.Command,
		Args:       srv.Args,
		LanguageID: srv.LanguageID,
	}, app.root, lsp.WithInitTimeout(app.config.LSP.InitTimeout))
	if err != nil {
		app.lspFailed[ext] = true
		app.setStatus(fmt.Sprintf("LSP unavailable: %v", err))
		return nil, ext
	}
	app.sessions[ext] = s
	app.log.WithField("ext", ext).WithField("session", s.ID()).Debug("language server started")
	app.setStatus("LSP connected")
	return s, ext
}

// attachLSP announces a newly opened document to its language server.
func (app *App) attachLSP(doc *filestore.Document) {
	s, ext := app.sessionFor(doc.Path)
	if s == nil {
		return
	}
	srv, _ := app.config.LSP.ServerFor(ext)
	version, err := s.DidOpen(doc.Path, srv.LanguageID, doc.Text())
	if err != nil {
		app.log.WithError(err).Warn("didOpen")
		return
	}
	doc.LSP = filestore.LSPBinding{URI: string(lsp.FilePathToURI(doc.Path)), Version: version}
}

// syncLSP sends the document's full text as a new version.
func (app *App) syncLSP(doc *filestore.Document) {
	if doc.LSP.URI == "" {
		return
	}
	s, ok := app.sessions[extOf(doc.Path)]
	if !ok {
		return
	}
	version, err := s.DidChange(doc.Path, doc.Text())
	if err != nil {
		app.log.WithError(err).Warn("didChange")
		return
	}
	doc.LSP.Version = version
}

func (app *App) detachLSP(doc *filestore.Document) {
	if doc.LSP.URI == "" {
		return
	}
	if s, ok := app.sessions[extOf(doc.Path)]; ok {
		if err := s.DidClose(doc.Path); err != nil {
			app.log.WithError(err).Debug("didClose")
		}
	}
	doc.LSP = filestore.LSPBinding{}
}

func (app *App) activeSession() (*filestore.Document, *lsp.Session, error) {
	doc := app.documents.Active()
	if doc == nil {
		return nil, nil, ErrNoActiveDocument
	}
	s, ok := app.sessions[extOf(doc.Path)]
	if !ok || doc.LSP.URI == "" {
		return doc, nil, NewOperationError("lsp", app.rel(doc.Path), lsp.ErrNoServer)
	}
	return doc, s, nil
}

// RequestCompletion asks for completions at the active document's cursor.
// The answer arrives through PollLSP.
func (app *App) RequestCompletion() error {
	doc, s, err := app.activeSession()
	if err != nil {
		return err
	}
	c := doc.Cursor()
	if _, err := s.RequestCompletion(doc.Path, lsp.Position{Line: c.Row, Character: c.Col}); err != nil {
		return NewOperationError("completion", app.rel(doc.Path), err)
	}
	app.completions = nil
	app.setStatus("Completion requested")
	return nil
}

// RequestDefinition asks for the definition at the active document's
// cursor. The answer arrives through PollLSP.
func (app *App) RequestDefinition() error {
	doc, s, err := app.activeSession()
	if err != nil {
		return err
	}
	c := doc.Cursor()
	if _, err := s.RequestDefinition(doc.Path, lsp.Position{Line: c.Row, Character: c.Col}); err != nil {
		return NewOperationError("definition", app.rel(doc.Path), err)
	}
	app.setStatus("Go to definition requested")
	return nil
}

// PollLSP applies the events every language server produced since the
// last call.
func (app *App) PollLSP() bool {
	changed := false
	for _, ext := range slices.Sorted(maps.Keys(app.sessions)) {
		for _, ev := range app.sessions[ext].Poll() {
			app.metrics.lspEvents.Add(1)
			app.handleLSP(ext, ev)
			changed = true
		}
	}
	return changed
}

func (app *App) handleLSP(ext string, ev lsp.Event) {
	switch ev := ev.(type) {
	case lsp.DiagnosticsEvent:
		if doc, ok := app.documents.ByURI(string(ev.URI)); ok {
			doc.LSP.Diagnostics = ev.Diagnostics
		}

	case lsp.CompletionEvent:
		app.completions = ev.Items
		if len(ev.Items) == 0 {
			app.setStatus("No completions")
		} else {
			app.setStatus(fmt.Sprintf("%d completion items", len(ev.Items)))
		}

	case lsp.DefinitionEvent:
		if !ev.Found {
			app.setStatus("No definition found")
			return
		}
		doc, err := app.Open(ev.Path)
		if err != nil {
			return
		}
		doc.SetCursor(filestore.Cursor{Row: ev.Line, Col: ev.Col})
		app.setStatus("Jumped to definition")

	case lsp.ErrorEvent:
		if ev.Err.IsMethodNotFound() {
			app.setStatus(fmt.Sprintf("%s not supported by %s server", requestName(ev.Kind), ext))
			return
		}
		switch ev.Kind {
		case lsp.RequestCompletion:
			app.setStatus(fmt.Sprintf("Completion error: %s", ev.Err.Message))
		case lsp.RequestDefinition:
			app.setStatus(fmt.Sprintf("Definition error: %s", ev.Err.Message))
		}

	case lsp.ClosedEvent:
		s := app.sessions[ext]
		delete(app.sessions, ext)
		app.lspFailed[ext] = true
		_ = s.Close()
		for _, doc := range app.documents.OpenDocuments() {
			if extOf(doc.Path) == ext {
				doc.LSP = filestore.LSPBinding{}
			}
		}
		app.setStatus(fmt.Sprintf("LSP unavailable: %s server exited", ext))
	}
}

func requestName(kind lsp.RequestKind) string {
	if kind == lsp.RequestDefinition {
		return "Definition"
	}
	return "Completion"
}
