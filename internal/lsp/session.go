package lsp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/sjson"

	"github.com/dshills/keysync/internal/logging"
)

// DefaultInitTimeout bounds the initialize handshake.
const DefaultInitTimeout = 3 * time.Second

// ServerConfig describes how to launch a language server.
type ServerConfig struct {
	// Command is the executable name or path.
	Command string

	// Args are passed to the command.
	Args []string

	// LanguageID is sent in didOpen.
	LanguageID string
}

// RequestKind identifies the logical operation behind a request id.
type RequestKind int

const (
	RequestCompletion RequestKind = iota
	RequestDefinition
)

// String returns the kind name.
func (k RequestKind) String() string {
	switch k {
	case RequestCompletion:
		return "completion"
	case RequestDefinition:
		return "definition"
	default:
		return "unknown"
	}
}

// Session is a connection to one language server.
//
// Start and Connect block for the initialize handshake; every other method
// returns without waiting for the server. A Session is used from a single
// goroutine.
type Session struct {
	id        string
	root      string
	transport *Transport
	cmd       *exec.Cmd
	log       *logrus.Entry

	initTimeout time.Duration
	clientName  string
	clientVer   string

	versions map[DocumentURI]int
	pending  map[RequestKind]int64
	ended    bool
}

// Option configures a Session.
type Option func(*Session)

// WithInitTimeout sets how long the handshake may take.
func WithInitTimeout(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.initTimeout = d
		}
	}
}

// WithClientInfo sets the clientInfo sent in initialize.
func WithClientInfo(name, version string) Option {
	return func(s *Session) {
		s.clientName = name
		s.clientVer = version
	}
}

// Start launches the server process described by cfg with root as its
// workspace and performs the initialize handshake.
func Start(ctx context.Context, cfg ServerConfig, root string, opts ...Option) (*Session, error) {
	if cfg.Command == "" {
		return nil, ErrNoServer
	}
	cmd := exec.Command(cfg.Command, cfg.Args...)
	cmd.Dir = root
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, &ServerError{Command: cfg.Command, Err: err}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &ServerError{Command: cfg.Command, Err: err}
	}
	if err := cmd.Start(); err != nil {
		return nil, &ServerError{Command: cfg.Command, Err: err}
	}

	s, err := connect(ctx, stdout, stdin, processCloser{cmd: cmd, stdin: stdin}, root, opts)
	if err != nil {
		return nil, &ServerError{Command: cfg.Command, Err: err}
	}
	s.cmd = cmd
	s.log = s.log.WithField("server", cfg.Command)
	return s, nil
}

// Connect performs the initialize handshake over an existing stream.
func Connect(ctx context.Context, r io.Reader, w io.Writer, c io.Closer, root string, opts ...Option) (*Session, error) {
	return connect(ctx, r, w, c, root, opts)
}

func connect(ctx context.Context, r io.Reader, w io.Writer, c io.Closer, root string, opts []Option) (*Session, error) {
	s := &Session{
		id:          uuid.NewString(),
		root:        root,
		transport:   NewTransport(r, w, c),
		initTimeout: DefaultInitTimeout,
		clientName:  "keysync",
		clientVer:   "dev",
		versions:    make(map[DocumentURI]int),
		pending:     make(map[RequestKind]int64),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = logging.NewLogger("lsp").WithField("session", s.id)

	if err := s.initialize(ctx); err != nil {
		_ = s.transport.Close()
		return nil, err
	}
	s.log.Debug("session initialized")
	return s, nil
}

// initialize sends initialize and waits for the matching response,
// discarding anything else the server sends meanwhile.
func (s *Session) initialize(ctx context.Context) error {
	params, err := s.initializeParams()
	if err != nil {
		return err
	}
	id, err := s.transport.Request(MethodInitialize, params)
	if err != nil {
		return err
	}

	timer := time.NewTimer(s.initTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return ErrInitTimeout
		case msg, ok := <-s.transport.Inbound():
			if !ok {
				return ErrInitMissing
			}
			if msg.Kind != KindResponse || msg.ID != id {
				continue
			}
			if errorShaped(msg.Result) {
				return fmt.Errorf("LSP initialize error: %w", rpcErrorFrom(msg.Result))
			}
			return s.transport.Notify(MethodInitialized, `{}`)
		}
	}
}

func (s *Session) initializeParams() (string, error) {
	params := `{}`
	var err error
	set := func(path string, value any) {
		if err == nil {
			params, err = sjson.Set(params, path, value)
		}
	}
	set("processId", os.Getpid())
	set("rootUri", string(FilePathToURI(s.root)))
	set("capabilities.textDocument.publishDiagnostics", map[string]any{})
	set("capabilities.textDocument.completion", map[string]any{})
	set("clientInfo.name", s.clientName)
	set("clientInfo.version", s.clientVer)
	if err != nil {
		return "", fmt.Errorf("build initialize params: %w", err)
	}
	return params, nil
}

// ID returns the session's log correlation id.
func (s *Session) ID() string {
	return s.id
}

// Root returns the workspace root.
func (s *Session) Root() string {
	return s.root
}

// Close shuts the session down and stops the server process.
func (s *Session) Close() error {
	return s.transport.Close()
}

// DidOpen announces a document at version 1 and returns the version.
func (s *Session) DidOpen(path, languageID, text string) (int, error) {
	uri := FilePathToURI(path)
	if _, open := s.versions[uri]; open {
		return 0, ErrDocumentAlreadyOpen
	}
	params, err := buildParams(map[string]any{
		"textDocument.uri":        string(uri),
		"textDocument.languageId": languageID,
		"textDocument.version":    1,
		"textDocument.text":       text,
	})
	if err != nil {
		return 0, err
	}
	if err := s.transport.Notify(MethodDidOpen, params); err != nil {
		return 0, err
	}
	s.versions[uri] = 1
	return 1, nil
}

// DidChange sends the full new text of an open document under the next
// version and returns that version.
func (s *Session) DidChange(path, text string) (int, error) {
	uri := FilePathToURI(path)
	version, open := s.versions[uri]
	if !open {
		return 0, ErrDocumentNotOpen
	}
	version++
	params, err := buildParams(map[string]any{
		"textDocument.uri":      string(uri),
		"textDocument.version":  version,
		"contentChanges.0.text": text,
	})
	if err != nil {
		return 0, err
	}
	if err := s.transport.Notify(MethodDidChange, params); err != nil {
		return 0, err
	}
	s.versions[uri] = version
	return version, nil
}

// DidClose ends a document's lifetime on the server.
func (s *Session) DidClose(path string) error {
	uri := FilePathToURI(path)
	if _, open := s.versions[uri]; !open {
		return ErrDocumentNotOpen
	}
	delete(s.versions, uri)
	params, err := buildParams(map[string]any{"textDocument.uri": string(uri)})
	if err != nil {
		return err
	}
	return s.transport.Notify(MethodDidClose, params)
}

// Version returns the last version sent for path.
func (s *Session) Version(path string) (int, bool) {
	v, ok := s.versions[FilePathToURI(path)]
	return v, ok
}

// RequestCompletion asks for completions at pos. Any earlier completion
// request is superseded.
func (s *Session) RequestCompletion(path string, pos Position) (int64, error) {
	params, err := buildParams(map[string]any{
		"textDocument.uri":    string(FilePathToURI(path)),
		"position.line":       pos.Line,
		"position.character":  pos.Character,
		"context.triggerKind": CompletionTriggerInvoked,
	})
	if err != nil {
		return 0, err
	}
	return s.request(RequestCompletion, MethodCompletion, params)
}

// RequestDefinition asks for the definition at pos. Any earlier definition
// request is superseded.
func (s *Session) RequestDefinition(path string, pos Position) (int64, error) {
	params, err := buildParams(map[string]any{
		"textDocument.uri":   string(FilePathToURI(path)),
		"position.line":      pos.Line,
		"position.character": pos.Character,
	})
	if err != nil {
		return 0, err
	}
	return s.request(RequestDefinition, MethodDefinition, params)
}

func (s *Session) request(kind RequestKind, method, params string) (int64, error) {
	id, err := s.transport.Request(method, params)
	if err != nil {
		return 0, err
	}
	if old, ok := s.pending[kind]; ok {
		s.log.WithFields(logrus.Fields{"kind": kind, "id": old}).Debug("request superseded")
	}
	s.pending[kind] = id
	return id, nil
}

// Pending returns the outstanding request id of kind.
func (s *Session) Pending(kind RequestKind) (int64, bool) {
	id, ok := s.pending[kind]
	return id, ok
}

// Poll drains inbound messages without blocking and returns the events
// they produce. Responses to superseded requests are dropped. A
// ClosedEvent is returned once when the server's output ends.
func (s *Session) Poll() []Event {
	var events []Event
	for {
		select {
		case msg, ok := <-s.transport.Inbound():
			if !ok {
				if !s.ended {
					s.ended = true
					s.pending = make(map[RequestKind]int64)
					events = append(events, ClosedEvent{})
				}
				return events
			}
			if ev := s.handle(msg); ev != nil {
				events = append(events, ev)
			}
		default:
			return events
		}
	}
}

func (s *Session) handle(msg Inbound) Event {
	if msg.Kind == KindNotification {
		if msg.Method == MethodPublishDiagnostics {
			return parseDiagnostics(msg.Params)
		}
		return nil
	}

	for kind, id := range s.pending {
		if id != msg.ID {
			continue
		}
		delete(s.pending, kind)
		if errorShaped(msg.Result) {
			return ErrorEvent{Kind: kind, ID: msg.ID, Err: rpcErrorFrom(msg.Result)}
		}
		switch kind {
		case RequestCompletion:
			return CompletionEvent{ID: msg.ID, Items: parseCompletion(msg.Result)}
		case RequestDefinition:
			return parseDefinition(msg.ID, msg.Result)
		}
	}
	s.log.WithField("id", msg.ID).Debug("dropped stale response")
	return nil
}

// Ended reports whether the server's output has ended.
func (s *Session) Ended() bool {
	return s.ended
}

// buildParams assembles a JSON object from sjson paths.
func buildParams(fields map[string]any) (string, error) {
	params := `{}`
	for path, value := range fields {
		var err error
		if params, err = sjson.Set(params, path, value); err != nil {
			return "", fmt.Errorf("build params %s: %w", path, err)
		}
	}
	return params, nil
}

// processCloser closes the server's stdin and then stops the process.
type processCloser struct {
	cmd   *exec.Cmd
	stdin io.Closer
}

func (p processCloser) Close() error {
	err := p.stdin.Close()
	if p.cmd.Process != nil {
		if kerr := p.cmd.Process.Kill(); kerr != nil && !errors.Is(kerr, os.ErrProcessDone) {
			err = errors.Join(err, kerr)
		}
		_ = p.cmd.Wait()
	}
	return err
}
