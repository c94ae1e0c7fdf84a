// Package filestore provides open document management for the editor core.
//
// A Document tracks a buffer's text, cursor and dirty flag together with the
// text last seen on disk, any pending external-change conflict or autosave
// recovery, the git line status of the buffer and its language server
// binding. Store keeps the ordered set of open documents and the active one.
// Reconcile decides what to do when the file under the active document
// changes on disk.
//
// None of these types are safe for concurrent use; they belong to the
// goroutine that drives the editor.
package filestore

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dshills/keysync/internal/integration/git"
	"github.com/dshills/keysync/internal/lsp"
)

// Cursor is a zero-based (row, column) position; Col counts runes.
type Cursor struct {
	Row int
	Col int
}

// ConflictState records on-disk text that diverged from both the buffer and
// the last snapshot while the buffer had unsaved edits.
type ConflictState struct {
	// Open is set while the user must decide how to resolve the conflict.
	Open bool

	// DiskText is the diverging on-disk text.
	DiskText string
}

// RecoveryState is an autosave recovery offered when the document opened.
type RecoveryState struct {
	// Open is set while the recovery prompt is shown.
	Open bool

	// Text is the recovered buffer text. It is never applied automatically.
	Text string
}

// LSPBinding ties a document to a language server session.
type LSPBinding struct {
	// URI is the file:// URI the server knows the document by. Empty when
	// the document is not synced with a server.
	URI string

	// Version is the last version sent to the server.
	Version int

	// Diagnostics are the latest diagnostics published for URI.
	Diagnostics []lsp.Diagnostic
}

// Document represents an open file in the editor.
type Document struct {
	// Path is the absolute path to the file.
	Path string

	// DiskSnapshot is the file text as of the last open, save, reload or
	// conflict resolution.
	DiskSnapshot string

	Conflict ConflictState
	Recovery RecoveryState

	// LineStatus holds one git status per buffer line.
	LineStatus []git.LineStatus

	// Hunks index the buffer's changes against HEAD for navigation.
	Hunks []git.Hunk

	LSP LSPBinding

	// CRLF records that the file on disk uses CRLF line endings. Buffer
	// text always uses LF; Save restores CRLF.
	CRLF bool

	// OpenedAt is when the document was opened.
	OpenedAt time.Time

	// ModifiedAt is when the buffer text last changed.
	ModifiedAt time.Time

	lines  []string
	cursor Cursor
	dirty  bool
}

// NewDocument creates a clean Document whose buffer and snapshot are text.
func NewDocument(path, text string) *Document {
	now := time.Now()
	return &Document{
		Path:         path,
		DiskSnapshot: text,
		OpenedAt:     now,
		ModifiedAt:   now,
		lines:        TextToLines(text),
	}
}

// TextToLines splits text into buffer lines. A trailing newline yields a
// final empty line, carriage returns before newlines are dropped, and empty
// text is a single empty line. Text with a carriage return therefore does
// not round-trip through Text.
func TextToLines(text string) []string {
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}

// Text returns the buffer text with lines joined by newlines.
func (d *Document) Text() string {
	return strings.Join(d.lines, "\n")
}

// Lines returns a copy of the buffer lines.
func (d *Document) Lines() []string {
	return append([]string(nil), d.lines...)
}

// LineCount returns the number of buffer lines. It is never zero.
func (d *Document) LineCount() int {
	return len(d.lines)
}

// Cursor returns the cursor position.
func (d *Document) Cursor() Cursor {
	return d.cursor
}

// SetCursor moves the cursor, clamped to the buffer.
func (d *Document) SetCursor(c Cursor) {
	d.cursor = d.clamp(c)
}

// IsDirty returns true if the buffer has unsaved changes.
func (d *Document) IsDirty() bool {
	return d.dirty
}

// SetText replaces the buffer as an editing mutation and marks it dirty.
func (d *Document) SetText(text string) {
	d.replace(text)
	d.dirty = true
}

// Reload replaces the buffer with text read from disk. The document becomes
// clean and text becomes the snapshot.
func (d *Document) Reload(text string) {
	d.replace(text)
	d.dirty = false
	d.DiskSnapshot = text
}

// ContentForSave returns the buffer text terminated by a newline.
func (d *Document) ContentForSave() string {
	content := d.Text()
	if !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	return content
}

// MarkSaved records that content was written to disk. The buffer takes on
// the written content, including the newline added on save, so that it
// matches the file. Any conflict is dropped since the file now holds the
// buffer.
func (d *Document) MarkSaved(content string) {
	if content != d.Text() {
		d.replace(content)
	}
	d.dirty = false
	d.DiskSnapshot = content
	d.Conflict = ConflictState{}
}

// OfferRecovery opens the recovery prompt with text.
func (d *Document) OfferRecovery(text string) {
	d.Recovery = RecoveryState{Open: true, Text: text}
}

// AcceptRecovery replaces the buffer with the recovered text. The document
// is dirty afterwards since the text was never saved.
func (d *Document) AcceptRecovery() error {
	if !d.Recovery.Open {
		return ErrNoRecovery
	}
	d.SetText(d.Recovery.Text)
	d.Recovery = RecoveryState{}
	return nil
}

// DiscardRecovery closes the recovery prompt without touching the buffer.
func (d *Document) DiscardRecovery() error {
	if !d.Recovery.Open {
		return ErrNoRecovery
	}
	d.Recovery = RecoveryState{}
	return nil
}

func (d *Document) replace(text string) {
	d.lines = TextToLines(text)
	d.cursor = d.clamp(d.cursor)
	d.ModifiedAt = time.Now()
}

func (d *Document) clamp(c Cursor) Cursor {
	if c.Row < 0 {
		c.Row = 0
	}
	if c.Row > len(d.lines)-1 {
		c.Row = len(d.lines) - 1
	}
	if c.Col < 0 {
		c.Col = 0
	}
	if n := utf8.RuneCountInString(d.lines[c.Row]); c.Col > n {
		c.Col = n
	}
	return c
}
