package lsp

import (
	"github.com/tidwall/gjson"
)

// MaxCompletionItems caps the items kept from one completion response.
const MaxCompletionItems = 40

// Event is produced by Session.Poll.
type Event interface {
	event()
}

// Diagnostic is one diagnostic attached to a document.
type Diagnostic struct {
	// Line is 1-based.
	Line     int
	Severity string
	Message  string
}

// DiagnosticsEvent carries the diagnostics published for a document.
type DiagnosticsEvent struct {
	URI         DocumentURI
	Diagnostics []Diagnostic
}

// CompletionItem is a single completion candidate.
type CompletionItem struct {
	Label string

	// InsertText is empty when the label itself is inserted.
	InsertText string
	Detail     string
}

// Text returns the text to insert for the item.
func (c CompletionItem) Text() string {
	if c.InsertText != "" {
		return c.InsertText
	}
	return c.Label
}

// CompletionEvent answers the current completion request.
type CompletionEvent struct {
	ID    int64
	Items []CompletionItem
}

// DefinitionEvent answers the current definition request. Found is false
// when the server returned no usable location.
type DefinitionEvent struct {
	ID    int64
	Found bool
	URI   DocumentURI
	Path  string
	Line  int
	Col   int
}

// ErrorEvent is an error-shaped answer to the current request of Kind.
type ErrorEvent struct {
	Kind RequestKind
	ID   int64
	Err  *RPCError
}

// ClosedEvent reports that the server's output ended.
type ClosedEvent struct{}

func (DiagnosticsEvent) event() {}
func (CompletionEvent) event() {}
func (DefinitionEvent) event() {}
func (ErrorEvent) event() {}
func (ClosedEvent) event() {}

// SeverityName maps an LSP diagnostic severity to its name.
func SeverityName(severity int64) string {
	switch severity {
	case 1:
		return "error"
	case 2:
		return "warning"
	case 3:
		return "info"
	case 4:
		return "hint"
	default:
		return "unknown"
	}
}

func parseDiagnostics(params gjson.Result) DiagnosticsEvent {
	ev := DiagnosticsEvent{URI: DocumentURI(params.Get("uri").String())}
	params.Get("diagnostics").ForEach(func(_, d gjson.Result) bool {
		ev.Diagnostics = append(ev.Diagnostics, Diagnostic{
			Line:     int(d.Get("range.start.line").Int()) + 1,
			Severity: SeverityName(d.Get("severity").Int()),
			Message:  d.Get("message").String(),
		})
		return true
	})
	return ev
}

// parseCompletion accepts a bare item array, a CompletionList, or an object
// with a completions array. Items without a label are skipped.
func parseCompletion(result gjson.Result) []CompletionItem {
	var list gjson.Result
	switch {
	case result.IsArray():
		list = result
	case result.Get("completions").IsArray():
		list = result.Get("completions")
	default:
		list = result.Get("items")
	}

	var items []CompletionItem
	list.ForEach(func(_, it gjson.Result) bool {
		label := it.Get("label")
		if label.Type != gjson.String {
			label = label.Get("left")
		}
		if label.Type != gjson.String || label.String() == "" {
			return true
		}
		insert := it.Get("insertText")
		if insert.Type != gjson.String {
			insert = it.Get("textEdit.newText")
		}
		items = append(items, CompletionItem{
			Label:      label.String(),
			InsertText: insert.String(),
			Detail:     it.Get("detail").String(),
		})
		return len(items) < MaxCompletionItems
	})
	return items
}

// parseDefinition takes the first location of an array result, or the
// result itself, accepting both Location and LocationLink shapes.
func parseDefinition(id int64, result gjson.Result) DefinitionEvent {
	ev := DefinitionEvent{ID: id}
	item := result
	if result.IsArray() {
		item = result.Get("0")
	}
	if !item.IsObject() {
		return ev
	}

	uri := item.Get("uri")
	if !uri.Exists() {
		uri = item.Get("targetUri")
	}
	rng := item.Get("range")
	if !rng.Exists() {
		rng = item.Get("targetSelectionRange")
	}

	path, ok := URIToFilePath(DocumentURI(uri.String()))
	if !ok {
		return ev
	}
	ev.Found = true
	ev.URI = DocumentURI(uri.String())
	ev.Path = path
	ev.Line = int(rng.Get("start.line").Int())
	ev.Col = int(rng.Get("start.character").Int())
	return ev
}
