// Package daemonclient dials a termwrightd Unix socket and issues
// requests over the newline-delimited JSON control protocol, for use
// by the termwright CLI and by anything else that wants to drive a
// session without linking against internal/session directly.
package daemonclient

import (
	"bufio"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
)

// Client is a connection to one termwrightd socket. Safe for
// concurrent use; requests are serialized over the wire and matched to
// their response by ID.
type Client struct {
	conn   net.Conn
	reader *bufio.Reader

	nextID atomic.Uint64

	mu sync.Mutex // serializes request/response round trips
}

// Dial connects to the daemon listening on socketPath.
func Dial(socketPath string) (*Client, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", socketPath, err)
	}
	return &Client{conn: conn, reader: bufio.NewReader(conn)}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error { return c.conn.Close() }

// Error is returned when the daemon's response carries an error.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %s", e.Code, e.Message) }

// Call sends method with params (marshaled to JSON, may be nil) and
// decodes the result into out (may be nil to discard it).
func (c *Client) Call(method string, params, out any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextID.Add(1)
	req := struct {
		ID     uint64 `json:"id"`
		Method string `json:"method"`
		Params any    `json:"params,omitempty"`
	}{ID: id, Method: method, Params: params}

	line, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}
	line = append(line, '\n')
	if _, err := c.conn.Write(line); err != nil {
		return fmt.Errorf("writing request: %w", err)
	}

	respLine, err := c.reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	var resp struct {
		ID     uint64          `json:"id"`
		Result json.RawMessage `json:"result"`
		Error  *Error          `json:"error"`
	}
	if err := json.Unmarshal([]byte(respLine), &resp); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	if resp.ID != id {
		return fmt.Errorf("response id %d does not match request id %d", resp.ID, id)
	}
	if resp.Error != nil {
		return resp.Error
	}
	if out != nil && len(resp.Result) > 0 {
		if err := json.Unmarshal(resp.Result, out); err != nil {
			return fmt.Errorf("decoding result: %w", err)
		}
	}
	return nil
}

// RawWrite base64-encodes b and issues a raw request, the same
// primitive the attach command uses to forward keystrokes verbatim.
func (c *Client) RawWrite(b []byte) error {
	return c.Call("raw", map[string]string{"bytes_base64": base64.StdEncoding.EncodeToString(b)}, nil)
}

// Screen fetches the current screen rendered as plain text.
func (c *Client) Screen() (string, error) {
	var text string
	err := c.Call("screen", map[string]string{"format": "text"}, &text)
	return text, err
}

// ScreenJSON fetches the current screen as a structured JSON object
// (the full Cell/Color grid, or the compact form when compact is
// true). Unlike Screen, the result is returned undecoded since its
// shape depends on the format and callers generally want to unmarshal
// it into their own type.
func (c *Client) ScreenJSON(compact bool) (json.RawMessage, error) {
	format := "json"
	if compact {
		format = "json_compact"
	}
	var raw json.RawMessage
	err := c.Call("screen", map[string]string{"format": format}, &raw)
	return raw, err
}
