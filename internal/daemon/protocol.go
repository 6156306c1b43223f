// Package daemon exposes a Session over a newline-delimited JSON
// protocol on a Unix domain socket: one request per line in, one
// response per line out, dispatched by method name.
package daemon

import (
	"encoding/json"

	"github.com/termwright/termwright/internal/termerr"
)

// ProtocolVersion is the wire protocol version reported by handshake.
const ProtocolVersion = 1

// Request is one line of client input.
type Request struct {
	ID     uint64          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Response is one line of server output, exactly one per Request.
type Response struct {
	ID     uint64          `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *ResponseError  `json:"error,omitempty"`
}

// ResponseError mirrors the daemon's closed error taxonomy on the wire.
type ResponseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func ok(id uint64, value any) Response {
	if value == nil {
		return Response{ID: id}
	}
	b, err := json.Marshal(value)
	if err != nil {
		return errorResponse(id, termerr.Internal(err))
	}
	return Response{ID: id, Result: b}
}

func errorResponse(id uint64, err error) Response {
	code, msg := wireError(err)
	return Response{ID: id, Error: &ResponseError{Code: code, Message: msg}}
}

// wireError maps any error into a stable wire code and message,
// defaulting unrecognized errors into the "error" catch-all rather
// than leaking Go-internal details as a distinct code.
func wireError(err error) (code, message string) {
	if terr, ok := termerr.As(err); ok {
		return codeName(terr.Code).String(), terr.Error()
	}
	return "error", err.Error()
}

type codeName termerr.Code

func (c codeName) String() string {
	switch termerr.Code(c) {
	case termerr.CodeInvalidParams:
		return "invalid_params"
	case termerr.CodeUnknownMethod:
		return "unknown_method"
	case termerr.CodeSpawn:
		return "spawn_failed"
	case termerr.CodeIo:
		return "io_error"
	case termerr.CodeTimeout:
		return "timeout"
	case termerr.CodeAlreadyExited:
		return "already_exited"
	case termerr.CodeSessionClosed:
		return "session_closed"
	default:
		return "error"
	}
}

// HandshakeResult is returned by the handshake method.
type HandshakeResult struct {
	ProtocolVersion   int    `json:"protocol_version"`
	TermwrightVersion string `json:"termwright_version"`
	Pid               int    `json:"pid"`
}

// StatusResult is returned by the status method.
type StatusResult struct {
	Exited   bool `json:"exited"`
	ExitCode *int `json:"exit_code,omitempty"`
}

// CapabilitiesResult advertises supplemented methods and per-feature
// availability so clients can probe for optional extensions instead
// of guessing from a version number alone.
type CapabilitiesResult struct {
	ProtocolVersion int             `json:"protocol_version"`
	Methods         []string        `json:"methods"`
	Features        map[string]bool `json:"features"`
}

// features reports availability for the optional extensions named in
// the supplemented feature set: screenshot rendering is on the wire
// but never produces an image, everything else is fully implemented.
var features = map[string]bool{
	"screenshot":          false,
	"mouse":               true,
	"resize":              true,
	"colors":              true,
	"negative_assertions": true,
	"pattern_gone":        true,
}

// WaitForExitResult is returned by wait_for_exit.
type WaitForExitResult struct {
	ExitCode int `json:"exit_code"`
}

type screenParams struct {
	Format string `json:"format"`
}

type resizeParams struct {
	Rows int `json:"rows"`
	Cols int `json:"cols"`
}

type typeParams struct {
	Text string `json:"text"`
}

type pressParams struct {
	Key string `json:"key"`
}

type hotkeyParams struct {
	Ctrl *bool `json:"ctrl"`
	Alt  *bool `json:"alt"`
	Ch   string `json:"ch"`
}

type rawParams struct {
	BytesBase64 string `json:"bytes_base64"`
}

type mouseMoveParams struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

type mouseClickParams struct {
	Row    int    `json:"row"`
	Col    int    `json:"col"`
	Button string `json:"button"`
}

type mouseScrollParams struct {
	Row       int    `json:"row"`
	Col       int    `json:"col"`
	Direction string `json:"direction"`
	Count     int    `json:"count"`
}

type waitForTextParams struct {
	Text      string `json:"text"`
	TimeoutMs int64  `json:"timeout_ms"`
}

type waitForPatternParams struct {
	Pattern   string `json:"pattern"`
	TimeoutMs int64  `json:"timeout_ms"`
}

type waitForIdleParams struct {
	IdleMs    int64 `json:"idle_ms"`
	DurationMs int64 `json:"duration_ms"`
	TimeoutMs int64 `json:"timeout_ms"`
}

type waitForTextGoneParams struct {
	Text      string `json:"text"`
	TimeoutMs int64  `json:"timeout_ms"`
}

type waitForPatternGoneParams struct {
	Pattern   string `json:"pattern"`
	TimeoutMs int64  `json:"timeout_ms"`
}

type waitForExitParams struct {
	TimeoutMs int64 `json:"timeout_ms"`
}

type notExpectTextParams struct {
	Text string `json:"text"`
}

type notExpectPatternParams struct {
	Pattern string `json:"pattern"`
}

type screenshotParams struct {
	Font       *string  `json:"font"`
	FontSize   *float64 `json:"font_size"`
	LineHeight *float64 `json:"line_height"`
}
