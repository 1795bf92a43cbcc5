// Package jsonrpc implements line-delimited JSON-RPC 2.0 framing over an
// io.Reader/io.Writer pair (SPEC_FULL.md §6): one JSON value per line, no
// Content-Length headers. This is pure wire framing with no corpus
// dependency fitting better than stdlib encoding/json and bufio
// (see DESIGN.md).
package jsonrpc

import (
	"bufio"
	"encoding/json"
	"io"
	"sync"

	"github.com/kanbanmcp/kanban-mcp/internal/errs"
)

const Version = "2.0"

// Request is an inbound tools/list, tools/call, resources/list, or
// resources/read message.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// IsNotification reports whether the request carries no id (a
// fire-and-forget call expecting no response).
func (r Request) IsNotification() bool { return len(r.ID) == 0 }

// Response is an outbound reply to a Request carrying the same id.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  any             `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Error is the wire shape of SPEC_FULL.md §7: code -32000, message is the
// error kind, data carries the human-readable detail.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// ErrorFrom maps an errs.Error (or any error) to the wire Error shape.
func ErrorFrom(err error) *Error {
	kind := errs.KindOf(err)
	return &Error{
		Code:    -32000,
		Message: string(kind),
		Data:    map[string]string{"detail": err.Error()},
	}
}

// Notification is an outbound server-initiated message, e.g.
// notifications/publish {event, uri}.
type Notification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// Conn frames newline-delimited JSON-RPC messages over r/w. Writes are
// serialized with a mutex since notifications and responses may be
// emitted from different goroutines (the watcher publishes
// asynchronously while requests are handled synchronously).
type Conn struct {
	scanner *bufio.Scanner
	w       io.Writer
	writeMu sync.Mutex
}

// NewConn wraps r/w in line-delimited JSON-RPC framing.
func NewConn(r io.Reader, w io.Writer) *Conn {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	return &Conn{scanner: scanner, w: w}
}

// ReadRequest blocks for the next line and decodes it as a Request. It
// returns io.EOF when the input stream closes.
func (c *Conn) ReadRequest() (*Request, error) {
	if !c.scanner.Scan() {
		if err := c.scanner.Err(); err != nil {
			return nil, errs.WrapInternal(err, "read request line")
		}
		return nil, io.EOF
	}
	line := c.scanner.Bytes()
	if len(line) == 0 {
		return c.ReadRequest()
	}
	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		return nil, errs.WrapInvalid(err, "parse jsonrpc request")
	}
	return &req, nil
}

// WriteResponse encodes and writes one Response line.
func (c *Conn) WriteResponse(resp Response) error {
	resp.JSONRPC = Version
	return c.writeLine(resp)
}

// WriteNotification encodes and writes one Notification line.
func (c *Conn) WriteNotification(n Notification) error {
	n.JSONRPC = Version
	return c.writeLine(n)
}

func (c *Conn) writeLine(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errs.WrapInternal(err, "encode jsonrpc message")
	}
	data = append(data, '\n')

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.w.Write(data); err != nil {
		return errs.WrapInternal(err, "write jsonrpc message")
	}
	return nil
}
