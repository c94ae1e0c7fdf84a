package lsp

import (
	"net/url"
	"path/filepath"
	"runtime"
)

// DocumentURI represents a URI as used in LSP.
// It is typically a file:// URI.
type DocumentURI string

// Position in a text document expressed as zero-based line and character offset.
type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

// LSP method names used by the client.
const (
	MethodInitialize         = "initialize"
	MethodInitialized        = "initialized"
	MethodDidOpen            = "textDocument/didOpen"
	MethodDidChange          = "textDocument/didChange"
	MethodDidClose           = "textDocument/didClose"
	MethodCompletion         = "textDocument/completion"
	MethodDefinition         = "textDocument/definition"
	MethodPublishDiagnostics = "textDocument/publishDiagnostics"
)

// CompletionTriggerInvoked is the completion trigger kind for an explicit
// request.
const CompletionTriggerInvoked = 1

// FilePathToURI converts a file path to a DocumentURI.
func FilePathToURI(path string) DocumentURI {
	if path == "" {
		return ""
	}

	if !filepath.IsAbs(path) {
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
	}

	path = filepath.ToSlash(path)

	// On Windows, add extra slash for drive letter
	if runtime.GOOS == "windows" && len(path) >= 2 && path[1] == ':' {
		path = "/" + path
	}

	u := &url.URL{
		Scheme: "file",
		Path:   path,
	}
	return DocumentURI(u.String())
}

// URIToFilePath converts a DocumentURI to a file path. ok is false for
// URIs that do not name a local file.
func URIToFilePath(uri DocumentURI) (path string, ok bool) {
	if uri == "" {
		return "", false
	}

	u, err := url.Parse(string(uri))
	if err != nil || u.Scheme != "file" {
		return "", false
	}

	path = u.Path

	// On Windows, remove leading slash before drive letter
	if runtime.GOOS == "windows" && len(path) >= 3 && path[0] == '/' && path[2] == ':' {
		path = path[1:]
	}

	return filepath.FromSlash(path), path != ""
}
