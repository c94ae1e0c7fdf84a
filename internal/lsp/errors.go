package lsp

import (
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

// Standard errors returned by the LSP client.
var (
	// ErrShutdown indicates the session or transport has been shut down.
	ErrShutdown = errors.New("lsp client shut down")

	// ErrNoServer indicates no server is configured for the language.
	ErrNoServer = errors.New("no server configured for language")

	// ErrInitTimeout indicates the server did not answer initialize in time.
	ErrInitTimeout = errors.New("LSP initialize timeout")

	// ErrInitMissing indicates the server closed its output before
	// answering initialize.
	ErrInitMissing = errors.New("LSP initialize response missing")

	// ErrDocumentNotOpen indicates the document is not open.
	ErrDocumentNotOpen = errors.New("document not open")

	// ErrDocumentAlreadyOpen indicates the document is already open.
	ErrDocumentAlreadyOpen = errors.New("document already open")

	// ErrFrameTooLarge indicates an inbound frame declared a length over
	// the frame size limit.
	ErrFrameTooLarge = errors.New("LSP frame too large")
)

// RPCError represents a JSON-RPC error from the server.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *RPCError) Error() string {
	if e.Data != nil {
		return fmt.Sprintf("rpc error %d: %s (data: %v)", e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// CodeMethodNotFound is the JSON-RPC code for an unimplemented method.
const CodeMethodNotFound = -32601

// IsMethodNotFound reports whether the server does not implement the
// requested method.
func (e *RPCError) IsMethodNotFound() bool {
	return e != nil && e.Code == CodeMethodNotFound
}

// errorShaped reports whether a response payload looks like an error
// object, i.e. carries both a code and a message.
func errorShaped(payload gjson.Result) bool {
	return payload.IsObject() && payload.Get("code").Exists() && payload.Get("message").Exists()
}

// rpcErrorFrom converts an error-shaped payload into an RPCError.
func rpcErrorFrom(payload gjson.Result) *RPCError {
	e := &RPCError{
		Code:    int(payload.Get("code").Int()),
		Message: payload.Get("message").String(),
	}
	if data := payload.Get("data"); data.Exists() {
		e.Data = data.Value()
	}
	return e
}

// ServerError represents an error related to server lifecycle.
type ServerError struct {
	Command string
	Err     error
}

// Error implements the error interface.
func (e *ServerError) Error() string {
	return fmt.Sprintf("server %s: %v", e.Command, e.Err)
}

// Unwrap returns the underlying error.
func (e *ServerError) Unwrap() error {
	return e.Err
}
