// Package lsp is a minimal Language Server Protocol client for the editor
// core.
//
// It speaks JSON-RPC 2.0 to a language server child process over stdio and
// covers the subset the editor needs: the initialize handshake, full-text
// document synchronization, completion, go-to-definition and published
// diagnostics.
//
// # Architecture
//
//   - Transport: Content-Length framing over a byte stream. A writer
//     goroutine owns the output stream and is fed frames through a channel,
//     so concurrent senders never interleave partial frames. A reader
//     goroutine parses frames, classifies them as notifications or
//     responses and delivers them on the Inbound channel.
//   - Session: one server. Start spawns the process and blocks on the
//     initialize handshake for at most the init timeout; everything after
//     that is asynchronous. The session tracks per-document versions and at
//     most one pending request id per kind, newest wins.
//   - Poll: drains inbound messages without blocking and turns them into
//     Events (diagnostics, completion items, definition targets, errors).
//
// # Usage
//
//	s, err := lsp.Start(ctx, lsp.ServerConfig{Command: "gopls"}, root)
//	if err != nil {
//	    return err
//	}
//	defer s.Close()
//
//	s.DidOpen(path, "go", text)
//	s.RequestCompletion(path, lsp.Position{Line: 3, Character: 7})
//
//	// once per UI tick
//	for _, ev := range s.Poll() {
//	    switch ev := ev.(type) {
//	    case lsp.CompletionEvent:
//	        ...
//	    }
//	}
//
// Outbound messages are assembled with sjson and inbound messages are read
// with gjson; the client never needs full protocol structs since only a
// handful of fields are consumed.
package lsp
