package lsp

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// MessageKind classifies an inbound message.
type MessageKind int

const (
	// KindNotification is a message carrying a method. Server-to-client
	// requests are delivered as notifications too.
	KindNotification MessageKind = iota

	// KindResponse is a message carrying an integer id and no method.
	KindResponse
)

// String returns the kind name.
func (k MessageKind) String() string {
	if k == KindResponse {
		return "response"
	}
	return "notification"
}

// Inbound is a classified message read from the server.
type Inbound struct {
	Kind MessageKind

	// Method is set for notifications.
	Method string

	// Params is the notification params, possibly empty.
	Params gjson.Result

	// ID is set for responses.
	ID int64

	// Result is the response's result, or its error object when there is
	// no result. The two are not distinguished here; see errorShaped.
	Result gjson.Result
}

// Transport handles JSON-RPC 2.0 framing over a byte stream.
//
// The output stream is written only by the writer goroutine, which drains
// a channel of complete frames. The reader goroutine parses frames and
// delivers them on Inbound; the channel is closed when the stream ends or
// breaks.
type Transport struct {
	reader *bufio.Reader
	writer io.Writer
	closer io.Closer

	nextID atomic.Int64
	out    chan []byte
	in     chan Inbound

	writeErr   atomic.Pointer[error]
	closed     atomic.Bool
	done       chan struct{}
	writerDone sync.WaitGroup
}

// Queue sizes for the frame channels.
const (
	outboundQueue = 64
	inboundQueue  = 256
)

// NewTransport creates a transport over r and w and starts its reader and
// writer goroutines. c, when non-nil, is closed by Close.
func NewTransport(r io.Reader, w io.Writer, c io.Closer) *Transport {
	t := &Transport{
		reader: bufio.NewReaderSize(r, 64*1024),
		writer: w,
		closer: c,
		out:    make(chan []byte, outboundQueue),
		in:     make(chan Inbound, inboundQueue),
		done:   make(chan struct{}),
	}
	t.writerDone.Add(1)
	go t.writeLoop()
	go t.readLoop()
	return t
}

// Inbound returns the channel of classified inbound messages.
func (t *Transport) Inbound() <-chan Inbound {
	return t.in
}

// Request sends a request and returns its id. params must be a JSON value.
func (t *Transport) Request(method, params string) (int64, error) {
	id := t.nextID.Add(1)
	frame, err := buildFrame(id, method, params)
	if err != nil {
		return 0, err
	}
	if err := t.send(frame); err != nil {
		return 0, err
	}
	return id, nil
}

// Notify sends a notification. params must be a JSON value.
func (t *Transport) Notify(method, params string) error {
	frame, err := buildFrame(0, method, params)
	if err != nil {
		return err
	}
	return t.send(frame)
}

// Close stops the writer, closes the underlying stream and waits for the
// writer to exit. The reader exits once the stream reports end of input.
func (t *Transport) Close() error {
	if t.closed.Swap(true) {
		return nil
	}
	close(t.done)

	var err error
	if t.closer != nil {
		err = t.closer.Close()
	}
	t.writerDone.Wait()
	return err
}

// IsClosed returns true if the transport has been closed.
func (t *Transport) IsClosed() bool {
	return t.closed.Load()
}

// send queues a frame for the writer goroutine.
func (t *Transport) send(frame []byte) error {
	if t.closed.Load() {
		return ErrShutdown
	}
	if errp := t.writeErr.Load(); errp != nil {
		return *errp
	}
	select {
	case t.out <- frame:
		return nil
	case <-t.done:
		return ErrShutdown
	}
}

// writeLoop owns the output stream. After a write fails every later send
// reports that error.
func (t *Transport) writeLoop() {
	defer t.writerDone.Done()
	for {
		select {
		case <-t.done:
			return
		case frame := <-t.out:
			if _, err := t.writer.Write(frame); err != nil {
				err = fmt.Errorf("write frame: %w", err)
				t.writeErr.CompareAndSwap(nil, &err)
				return
			}
		}
	}
}

// readLoop reads frames until the stream ends or a frame is truncated.
func (t *Transport) readLoop() {
	defer close(t.in)

	for {
		body, err := readFrame(t.reader)
		if err != nil {
			return
		}
		if body == nil {
			continue
		}
		msg, ok := classify(body)
		if !ok {
			continue
		}
		select {
		case t.in <- msg:
		case <-t.done:
			return
		}
	}
}

// maxFrameSize bounds the declared Content-Length of an inbound frame.
const maxFrameSize = 64 << 20

// readFrame reads one Content-Length framed body. A frame with a missing or
// zero length yields a nil body and no error. A stream that ends inside the
// headers or the body yields an error.
func readFrame(r *bufio.Reader) ([]byte, error) {
	length := 0
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return nil, err
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}
		name, value, ok := strings.Cut(line, ":")
		if ok && strings.EqualFold(strings.TrimSpace(name), "Content-Length") {
			if n, err := strconv.Atoi(strings.TrimSpace(value)); err == nil && n > 0 {
				length = n
			} else {
				length = 0
			}
		}
	}
	if length == 0 {
		return nil, nil
	}
	if length > maxFrameSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, length)
	}

	var body bytes.Buffer
	if _, err := io.CopyN(&body, r, int64(length)); err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body.Bytes(), nil
}

// classify decides what an inbound body is. Invalid JSON and messages with
// neither a method nor an integer id are dropped.
func classify(body []byte) (Inbound, bool) {
	if !gjson.ValidBytes(body) {
		return Inbound{}, false
	}
	msg := gjson.ParseBytes(body)

	if method := msg.Get("method"); method.Type == gjson.String {
		return Inbound{
			Kind:   KindNotification,
			Method: method.String(),
			Params: msg.Get("params"),
		}, true
	}

	id := msg.Get("id")
	if id.Type != gjson.Number || id.Num != float64(int64(id.Num)) {
		return Inbound{}, false
	}
	result := msg.Get("result")
	if !result.Exists() {
		result = msg.Get("error")
	}
	return Inbound{
		Kind:   KindResponse,
		ID:     id.Int(),
		Result: result,
	}, true
}

// buildFrame assembles a framed JSON-RPC message. A zero id makes a
// notification.
func buildFrame(id int64, method, params string) ([]byte, error) {
	msg := `{"jsonrpc":"2.0"}`
	var err error
	if id != 0 {
		if msg, err = sjson.Set(msg, "id", id); err != nil {
			return nil, fmt.Errorf("build %s: %w", method, err)
		}
	}
	if msg, err = sjson.Set(msg, "method", method); err != nil {
		return nil, fmt.Errorf("build %s: %w", method, err)
	}
	if params != "" {
		if !gjson.Valid(params) {
			return nil, fmt.Errorf("build %s: invalid params", method)
		}
		if msg, err = sjson.SetRaw(msg, "params", params); err != nil {
			return nil, fmt.Errorf("build %s: %w", method, err)
		}
	}
	return []byte(fmt.Sprintf("Content-Length: %d\r\n\r\n%s", len(msg), msg)), nil
}
