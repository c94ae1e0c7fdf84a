package lsp

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

// CodeInternalError is the JSON-RPC code for an internal server error.
const CodeInternalError = -32603

// CodeContentModified is the LSP code for a request invalidated by an edit.
const CodeContentModified = -32801

// fakeServer is the server end of a pair of pipes connected to a Session.
type fakeServer struct {
	t        *testing.T
	toClient *mockPipe
	toServer *mockPipe
	received chan gjson.Result
}

func newFakeServer(t *testing.T) *fakeServer {
	f := &fakeServer{
		t:        t,
		toClient: newMockPipe(),
		toServer: newMockPipe(),
		received: make(chan gjson.Result, 64),
	}
	go func() {
		defer close(f.received)
		r := bufio.NewReader(f.toServer.reader)
		for {
			body, err := readFrame(r)
			if err != nil {
				return
			}
			f.received <- gjson.ParseBytes(body)
		}
	}()
	return f
}

// Close implements io.Closer for the client side of the pipes.
func (f *fakeServer) Close() error {
	f.toServer.Close()
	f.toClient.Close()
	return nil
}

func (f *fakeServer) next() gjson.Result {
	f.t.Helper()
	select {
	case msg, ok := <-f.received:
		require.True(f.t, ok, "client stream closed")
		return msg
	case <-time.After(2 * time.Second):
		f.t.Fatal("no message from client")
		return gjson.Result{}
	}
}

// drain discards client messages until the stream closes.
func (f *fakeServer) drain() {
	for range f.received {
	}
}

func (f *fakeServer) send(body string) {
	f.t.Helper()
	_, err := f.toClient.writer.Write([]byte(frame(body)))
	require.NoError(f.t, err)
}

func (f *fakeServer) connect(ctx context.Context, opts ...Option) (*Session, error) {
	return Connect(ctx, f.toClient.reader, f.toServer.writer, f, "/work/project", opts...)
}

// handshake answers initialize after some unrelated traffic.
func (f *fakeServer) handshake() gjson.Result {
	init := f.next()
	f.send(`{"jsonrpc":"2.0","method":"window/logMessage","params":{"type":3,"message":"starting"}}`)
	f.send(fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"result":{"status":"other request"}}`, init.Get("id").Int()+100))
	f.send(fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"result":{"capabilities":{}}}`, init.Get("id").Int()))
	return init
}

func connected(t *testing.T) (*Session, *fakeServer) {
	t.Helper()
	f := newFakeServer(t)
	initCh := make(chan gjson.Result, 1)
	go func() { initCh <- f.handshake() }()

	s, err := f.connect(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	<-initCh

	initialized := f.next()
	require.Equal(t, MethodInitialized, initialized.Get("method").String())
	return s, f
}

func pollUntil(t *testing.T, s *Session, n int) []Event {
	t.Helper()
	var events []Event
	require.Eventually(t, func() bool {
		events = append(events, s.Poll()...)
		return len(events) >= n
	}, 2*time.Second, 5*time.Millisecond)
	return events
}

func TestConnect_Handshake(t *testing.T) {
	f := newFakeServer(t)
	initCh := make(chan gjson.Result, 1)
	go func() { initCh <- f.handshake() }()

	s, err := f.connect(context.Background(), WithClientInfo("keysync-test", "1.2.3"))
	require.NoError(t, err)
	defer s.Close()

	init := <-initCh
	assert.Equal(t, MethodInitialize, init.Get("method").String())
	assert.Equal(t, "2.0", init.Get("jsonrpc").String())
	assert.Equal(t, int64(os.Getpid()), init.Get("params.processId").Int())
	assert.Equal(t, "file:///work/project", init.Get("params.rootUri").String())
	assert.True(t, init.Get("params.capabilities.textDocument.publishDiagnostics").IsObject())
	assert.True(t, init.Get("params.capabilities.textDocument.completion").IsObject())
	assert.Equal(t, "keysync-test", init.Get("params.clientInfo.name").String())
	assert.Equal(t, "1.2.3", init.Get("params.clientInfo.version").String())

	initialized := f.next()
	assert.Equal(t, MethodInitialized, initialized.Get("method").String())
	assert.False(t, initialized.Get("id").Exists())

	assert.NotEmpty(t, s.ID())
	assert.Equal(t, "/work/project", s.Root())
	assert.Empty(t, s.Poll(), "traffic before the initialize response is discarded")
}

func TestConnect_ErrorShapedResultAborts(t *testing.T) {
	f := newFakeServer(t)
	go func() {
		init := f.next()
		f.send(fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"error":{"code":-32603,"message":"boom"}}`, init.Get("id").Int()))
	}()

	_, err := f.connect(context.Background())
	var rpcErr *RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, CodeInternalError, rpcErr.Code)
	assert.Equal(t, "boom", rpcErr.Message)
}

func TestConnect_Timeout(t *testing.T) {
	f := newFakeServer(t)
	go f.drain()

	start := time.Now()
	_, err := f.connect(context.Background(), WithInitTimeout(50*time.Millisecond))
	assert.ErrorIs(t, err, ErrInitTimeout)
	assert.Less(t, time.Since(start), time.Second)
}

func TestConnect_ServerExits(t *testing.T) {
	f := newFakeServer(t)
	go func() {
		f.next()
		f.toClient.writer.Close()
	}()

	_, err := f.connect(context.Background())
	assert.ErrorIs(t, err, ErrInitMissing)
}

func TestConnect_ContextCancelled(t *testing.T) {
	f := newFakeServer(t)
	go f.drain()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.connect(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStart_MissingBinary(t *testing.T) {
	_, err := Start(context.Background(), ServerConfig{Command: "keysync-no-such-language-server"}, t.TempDir())
	var serr *ServerError
	require.ErrorAs(t, err, &serr)
	assert.True(t, errors.Is(err, exec.ErrNotFound))

	_, err = Start(context.Background(), ServerConfig{}, t.TempDir())
	assert.ErrorIs(t, err, ErrNoServer)
}

func TestSession_DocumentVersions(t *testing.T) {
	s, f := connected(t)
	path := filepath.FromSlash("/work/project/main.rs")

	v, err := s.DidOpen(path, "rust", "fn main() {}")
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	open := f.next()
	assert.Equal(t, MethodDidOpen, open.Get("method").String())
	assert.Equal(t, "file:///work/project/main.rs", open.Get("params.textDocument.uri").String())
	assert.Equal(t, "rust", open.Get("params.textDocument.languageId").String())
	assert.Equal(t, int64(1), open.Get("params.textDocument.version").Int())
	assert.Equal(t, "fn main() {}", open.Get("params.textDocument.text").String())

	_, err = s.DidOpen(path, "rust", "")
	assert.ErrorIs(t, err, ErrDocumentAlreadyOpen)

	for want := 2; want <= 3; want++ {
		v, err = s.DidChange(path, fmt.Sprintf("fn main() { %d }", want))
		require.NoError(t, err)
		assert.Equal(t, want, v)

		change := f.next()
		assert.Equal(t, MethodDidChange, change.Get("method").String())
		assert.Equal(t, int64(want), change.Get("params.textDocument.version").Int())
		changes := change.Get("params.contentChanges").Array()
		require.Len(t, changes, 1)
		assert.Equal(t, fmt.Sprintf("fn main() { %d }", want), changes[0].Get("text").String())
	}

	got, ok := s.Version(path)
	require.True(t, ok)
	assert.Equal(t, 3, got)

	require.NoError(t, s.DidClose(path))
	closeMsg := f.next()
	assert.Equal(t, MethodDidClose, closeMsg.Get("method").String())
	assert.Equal(t, "file:///work/project/main.rs", closeMsg.Get("params.textDocument.uri").String())

	_, ok = s.Version(path)
	assert.False(t, ok)
	_, err = s.DidChange(path, "x")
	assert.ErrorIs(t, err, ErrDocumentNotOpen)
	assert.ErrorIs(t, s.DidClose(path), ErrDocumentNotOpen)
}

func TestSession_CompletionLastRequestWins(t *testing.T) {
	s, f := connected(t)
	path := filepath.FromSlash("/work/project/main.rs")

	first, err := s.RequestCompletion(path, Position{Line: 2, Character: 4})
	require.NoError(t, err)
	req := f.next()
	assert.Equal(t, MethodCompletion, req.Get("method").String())
	assert.Equal(t, first, req.Get("id").Int())
	assert.Equal(t, int64(2), req.Get("params.position.line").Int())
	assert.Equal(t, int64(4), req.Get("params.position.character").Int())
	assert.Equal(t, int64(1), req.Get("params.context.triggerKind").Int())

	second, err := s.RequestCompletion(path, Position{Line: 2, Character: 5})
	require.NoError(t, err)
	f.next()
	assert.Greater(t, second, first)

	pending, ok := s.Pending(RequestCompletion)
	require.True(t, ok)
	assert.Equal(t, second, pending)

	f.send(fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"result":[{"label":"stale"}]}`, first))
	f.send(fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"result":{"isIncomplete":false,"items":[{"label":"fresh"}]}}`, second))

	events := pollUntil(t, s, 1)
	require.Len(t, events, 1)
	ev, ok := events[0].(CompletionEvent)
	require.True(t, ok)
	assert.Equal(t, second, ev.ID)
	assert.Equal(t, []CompletionItem{{Label: "fresh"}}, ev.Items)

	_, ok = s.Pending(RequestCompletion)
	assert.False(t, ok, "a matching response consumes the pending id")
}

func TestSession_Definition(t *testing.T) {
	s, f := connected(t)
	path := filepath.FromSlash("/work/project/main.rs")

	id, err := s.RequestDefinition(path, Position{Line: 1, Character: 1})
	require.NoError(t, err)
	req := f.next()
	assert.Equal(t, MethodDefinition, req.Get("method").String())
	assert.False(t, req.Get("params.context").Exists())

	f.send(fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"result":[{"uri":"file:///work/project/lib.rs","range":{"start":{"line":9,"character":3},"end":{"line":9,"character":8}}}]}`, id))

	events := pollUntil(t, s, 1)
	ev, ok := events[0].(DefinitionEvent)
	require.True(t, ok)
	assert.True(t, ev.Found)
	assert.Equal(t, filepath.FromSlash("/work/project/lib.rs"), ev.Path)
	assert.Equal(t, 9, ev.Line)
	assert.Equal(t, 3, ev.Col)
}

func TestSession_ErrorResponse(t *testing.T) {
	s, f := connected(t)

	id, err := s.RequestDefinition("/work/project/main.rs", Position{})
	require.NoError(t, err)
	f.next()
	f.send(fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"error":{"code":-32801,"message":"content modified"}}`, id))

	events := pollUntil(t, s, 1)
	ev, ok := events[0].(ErrorEvent)
	require.True(t, ok)
	assert.Equal(t, RequestDefinition, ev.Kind)
	assert.Equal(t, CodeContentModified, ev.Err.Code)
	assert.Equal(t, "content modified", ev.Err.Message)
}

func TestSession_Diagnostics(t *testing.T) {
	s, f := connected(t)

	f.send(`{"jsonrpc":"2.0","method":"textDocument/publishDiagnostics","params":{"uri":"file:///work/project/main.rs","diagnostics":[` +
		`{"range":{"start":{"line":0,"character":0},"end":{"line":0,"character":1}},"severity":1,"message":"expected item"},` +
		`{"range":{"start":{"line":4,"character":0},"end":{"line":4,"character":1}},"severity":2,"message":"unused"}]}}`)

	events := pollUntil(t, s, 1)
	ev, ok := events[0].(DiagnosticsEvent)
	require.True(t, ok)
	assert.Equal(t, DocumentURI("file:///work/project/main.rs"), ev.URI)
	assert.Equal(t, []Diagnostic{
		{Line: 1, Severity: "error", Message: "expected item"},
		{Line: 5, Severity: "warning", Message: "unused"},
	}, ev.Diagnostics)
}

func TestSession_ClosedOnce(t *testing.T) {
	s, f := connected(t)
	f.toClient.writer.Close()

	events := pollUntil(t, s, 1)
	assert.Equal(t, []Event{ClosedEvent{}}, events)
	assert.True(t, s.Ended())
	assert.Empty(t, s.Poll())
}

func TestSession_PollNeverBlocks(t *testing.T) {
	s, _ := connected(t)

	done := make(chan struct{})
	go func() {
		s.Poll()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Poll blocked")
	}
}
