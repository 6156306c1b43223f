package daemon

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/termwright/termwright/internal/session"
	"github.com/termwright/termwright/internal/termerr"
)

// Version is the termwright release string reported by handshake.
const Version = "0.1.0"

// Server listens on a Unix domain socket and serves one Session to
// any number of sequential clients, closing and removing the socket
// once a client sends close or the child process exits on its own.
type Server struct {
	sess *session.Session
	log  *slog.Logger

	socketPath string
	ln         net.Listener

	mu     sync.Mutex
	closed bool
	closeCh chan struct{}
}

// Listen binds the Unix socket at socketPath, removing any stale
// socket left over from a previous run, and returns a Server ready to
// Serve. The socket is created with 0600 permissions since the
// protocol carries unauthenticated control of the child process.
func Listen(socketPath string, sess *session.Session, log *slog.Logger) (*Server, error) {
	if log == nil {
		log = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(socketPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating socket dir: %w", err)
	}
	_ = os.Remove(socketPath)

	ln, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("binding socket: %w", err)
	}
	if err := os.Chmod(socketPath, 0o600); err != nil {
		ln.Close()
		return nil, fmt.Errorf("setting socket permissions: %w", err)
	}

	return &Server{
		sess:       sess,
		log:        log,
		socketPath: socketPath,
		ln:         ln,
		closeCh:    make(chan struct{}),
	}, nil
}

// Addr returns the socket path the server is bound to.
func (s *Server) Addr() string { return s.socketPath }

// Serve accepts client connections until Close is called or the
// session's child process exits, serving each connection in turn.
// Only one client is served at a time, matching the reference
// implementation's sequential hand-off model.
func (s *Server) Serve() error {
	go func() {
		select {
		case <-s.sess.Exited():
			s.Close()
		case <-s.closeCh:
		}
	}()

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			select {
			case <-s.closeCh:
				return nil
			default:
				return fmt.Errorf("accept: %w", err)
			}
		}

		s.log.Debug("client connected", "remote", conn.RemoteAddr())
		shouldClose := s.serveClient(conn)
		if shouldClose {
			s.log.Info("client requested close")
			s.Close()
			return nil
		}
	}
}

// Close shuts down the listener and removes the socket file. Safe to
// call more than once.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.closeCh)
	err := s.ln.Close()
	_ = os.Remove(s.socketPath)
	return err
}

// serveClient drains newline-delimited requests from conn until it
// disconnects or sends close, reporting whether the daemon itself
// should now shut down.
func (s *Server) serveClient(conn net.Conn) (shouldClose bool) {
	defer conn.Close()

	reader := bufio.NewReader(conn)
	for {
		line, err := reader.ReadString('\n')
		if len(line) == 0 && err != nil {
			return false
		}

		var req Request
		if jsonErr := json.Unmarshal([]byte(line), &req); jsonErr != nil {
			writeResponse(conn, errorResponse(0, termerr.InvalidParams(jsonErr.Error())))
			if err != nil {
				return false
			}
			continue
		}

		resp, closing := s.dispatch(&req)
		writeResponse(conn, resp)
		if closing {
			return true
		}
		if err != nil {
			return false
		}
	}
}

func writeResponse(conn net.Conn, resp Response) {
	b, err := json.Marshal(resp)
	if err != nil {
		return
	}
	b = append(b, '\n')
	_, _ = conn.Write(b)
}

// dispatch executes one request against the session and reports
// whether the client asked the daemon to close.
func (s *Server) dispatch(req *Request) (resp Response, closing bool) {
	switch req.Method {
	case "handshake":
		return ok(req.ID, HandshakeResult{
			ProtocolVersion:   ProtocolVersion,
			TermwrightVersion: Version,
			Pid:               os.Getpid(),
		}), false

	case "capabilities":
		return ok(req.ID, CapabilitiesResult{
			ProtocolVersion: ProtocolVersion,
			Methods:         supportedMethods,
			Features:        features,
		}), false

	case "status":
		code, exited := s.sess.ExitCode()
		result := StatusResult{Exited: exited}
		if exited {
			result.ExitCode = &code
		}
		return ok(req.ID, result), false

	case "screen":
		return s.handleScreen(req), false

	case "screenshot":
		return errorResponse(req.ID, fmt.Errorf("screenshot rendering is not available in this build")), false

	case "resize":
		return s.handleResize(req), false

	case "type":
		return s.handleType(req), false

	case "press":
		return s.handlePress(req), false

	case "hotkey":
		return s.handleHotkey(req), false

	case "raw":
		return s.handleRaw(req), false

	case "mouse_move":
		return s.handleMouseMove(req), false

	case "mouse_click":
		return s.handleMouseClick(req), false

	case "mouse_scroll":
		return s.handleMouseScroll(req), false

	case "wait_for_text":
		return s.handleWaitForText(req), false

	case "wait_for_pattern":
		return s.handleWaitForPattern(req), false

	case "wait_for_text_gone":
		return s.handleWaitForTextGone(req), false

	case "wait_for_pattern_gone":
		return s.handleWaitForPatternGone(req), false

	case "wait_for_idle":
		return s.handleWaitForIdle(req), false

	case "wait_for_exit":
		return s.handleWaitForExit(req), false

	case "not_expect_text":
		return s.handleNotExpectText(req), false

	case "not_expect_pattern":
		return s.handleNotExpectPattern(req), false

	case "close":
		s.sess.Close()
		return errorResponse(req.ID, termerr.SessionClosed()), true

	default:
		return errorResponse(req.ID, termerr.UnknownMethod(req.Method)), false
	}
}

var supportedMethods = []string{
	"handshake", "capabilities", "status", "screen", "screenshot", "resize",
	"type", "press", "hotkey", "raw",
	"mouse_move", "mouse_click", "mouse_scroll",
	"wait_for_text", "wait_for_pattern", "wait_for_text_gone", "wait_for_pattern_gone",
	"wait_for_idle", "wait_for_exit",
	"not_expect_text", "not_expect_pattern", "close",
}

func (s *Server) handleScreen(req *Request) Response {
	var params screenParams
	_ = json.Unmarshal(req.Params, &params)

	scr := s.sess.Screen()
	switch params.Format {
	case "json":
		b, err := scr.ToJSON()
		if err != nil {
			return errorResponse(req.ID, termerr.Internal(err))
		}
		return Response{ID: req.ID, Result: b}
	case "json_compact":
		b, err := scr.ToJSONCompact()
		if err != nil {
			return errorResponse(req.ID, termerr.Internal(err))
		}
		return Response{ID: req.ID, Result: b}
	default:
		return ok(req.ID, scr.Text())
	}
}

func (s *Server) handleResize(req *Request) Response {
	var params resizeParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResponse(req.ID, termerr.InvalidParams(err.Error()))
	}
	if err := s.sess.Resize(params.Rows, params.Cols); err != nil {
		return errorResponse(req.ID, err)
	}
	return ok(req.ID, nil)
}

func (s *Server) handleType(req *Request) Response {
	var params typeParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResponse(req.ID, termerr.InvalidParams(err.Error()))
	}
	if _, err := s.sess.Write([]byte(params.Text)); err != nil {
		return errorResponse(req.ID, err)
	}
	return ok(req.ID, nil)
}

func (s *Server) handlePress(req *Request) Response {
	var params pressParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResponse(req.ID, termerr.InvalidParams(err.Error()))
	}
	seq, err := session.EncodeKey(params.Key)
	if err != nil {
		return errorResponse(req.ID, err)
	}
	if _, err := s.sess.Write(seq); err != nil {
		return errorResponse(req.ID, err)
	}
	return ok(req.ID, nil)
}

func (s *Server) handleHotkey(req *Request) Response {
	var params hotkeyParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResponse(req.ID, termerr.InvalidParams(err.Error()))
	}
	runes := []rune(params.Ch)
	if len(runes) != 1 {
		return errorResponse(req.ID, termerr.InvalidParams("hotkey: ch must be exactly one character"))
	}
	ctrl := params.Ctrl != nil && *params.Ctrl
	alt := params.Alt != nil && *params.Alt
	seq, err := session.EncodeHotkey(ctrl, alt, runes[0])
	if err != nil {
		return errorResponse(req.ID, err)
	}
	if _, err := s.sess.Write(seq); err != nil {
		return errorResponse(req.ID, err)
	}
	return ok(req.ID, nil)
}

func (s *Server) handleRaw(req *Request) Response {
	var params rawParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResponse(req.ID, termerr.InvalidParams(err.Error()))
	}
	b, err := base64.StdEncoding.DecodeString(params.BytesBase64)
	if err != nil {
		return errorResponse(req.ID, termerr.InvalidParams("bytes_base64: "+err.Error()))
	}
	if _, err := s.sess.Write(b); err != nil {
		return errorResponse(req.ID, err)
	}
	return ok(req.ID, nil)
}

func (s *Server) handleMouseMove(req *Request) Response {
	var params mouseMoveParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResponse(req.ID, termerr.InvalidParams(err.Error()))
	}
	if _, err := s.sess.Write(session.EncodeMouseMove(params.Row, params.Col)); err != nil {
		return errorResponse(req.ID, err)
	}
	return ok(req.ID, nil)
}

func (s *Server) handleMouseClick(req *Request) Response {
	var params mouseClickParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResponse(req.ID, termerr.InvalidParams(err.Error()))
	}
	seq, err := session.EncodeMouseClick(params.Row, params.Col, params.Button)
	if err != nil {
		return errorResponse(req.ID, err)
	}
	if _, err := s.sess.Write(seq); err != nil {
		return errorResponse(req.ID, err)
	}
	return ok(req.ID, nil)
}

func (s *Server) handleMouseScroll(req *Request) Response {
	var params mouseScrollParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResponse(req.ID, termerr.InvalidParams(err.Error()))
	}
	seq, err := session.EncodeMouseScroll(params.Row, params.Col, params.Direction, params.Count)
	if err != nil {
		return errorResponse(req.ID, err)
	}
	if _, err := s.sess.Write(seq); err != nil {
		return errorResponse(req.ID, err)
	}
	return ok(req.ID, nil)
}

func (s *Server) handleWaitForText(req *Request) Response {
	var params waitForTextParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResponse(req.ID, termerr.InvalidParams(err.Error()))
	}
	res, err := s.sess.WaitForText(context.Background(), params.Text, durationMs(params.TimeoutMs))
	if err != nil {
		return errorResponse(req.ID, err)
	}
	return ok(req.ID, res)
}

func (s *Server) handleWaitForPattern(req *Request) Response {
	var params waitForPatternParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResponse(req.ID, termerr.InvalidParams(err.Error()))
	}
	re, err := regexp.Compile(params.Pattern)
	if err != nil {
		return errorResponse(req.ID, termerr.InvalidParams("pattern: "+err.Error()))
	}
	res, err := s.sess.WaitForPattern(context.Background(), re, durationMs(params.TimeoutMs))
	if err != nil {
		return errorResponse(req.ID, err)
	}
	return ok(req.ID, res)
}

func (s *Server) handleWaitForTextGone(req *Request) Response {
	var params waitForTextGoneParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResponse(req.ID, termerr.InvalidParams(err.Error()))
	}
	if err := s.sess.WaitForTextGone(context.Background(), params.Text, durationMs(params.TimeoutMs)); err != nil {
		return errorResponse(req.ID, err)
	}
	return ok(req.ID, nil)
}

func (s *Server) handleWaitForPatternGone(req *Request) Response {
	var params waitForPatternGoneParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResponse(req.ID, termerr.InvalidParams(err.Error()))
	}
	re, err := regexp.Compile(params.Pattern)
	if err != nil {
		return errorResponse(req.ID, termerr.InvalidParams("pattern: "+err.Error()))
	}
	if err := s.sess.WaitForPatternGone(context.Background(), re, durationMs(params.TimeoutMs)); err != nil {
		return errorResponse(req.ID, err)
	}
	return ok(req.ID, nil)
}

func (s *Server) handleWaitForIdle(req *Request) Response {
	var params waitForIdleParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResponse(req.ID, termerr.InvalidParams(err.Error()))
	}
	idleMs := params.IdleMs
	if idleMs == 0 {
		idleMs = params.DurationMs
	}
	if idleMs <= 0 {
		return errorResponse(req.ID, termerr.InvalidParams("idle_ms must be positive"))
	}
	if err := s.sess.WaitForIdle(context.Background(), durationMs(idleMs), durationMs(params.TimeoutMs)); err != nil {
		return errorResponse(req.ID, err)
	}
	return ok(req.ID, nil)
}

func (s *Server) handleWaitForExit(req *Request) Response {
	var params waitForExitParams
	_ = json.Unmarshal(req.Params, &params)

	timeout := durationMs(params.TimeoutMs)
	if timeout <= 0 {
		timeout = session.DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	code, err := s.sess.WaitForExit(ctx)
	if err != nil {
		return errorResponse(req.ID, termerr.Timeout("process to exit"))
	}
	return ok(req.ID, WaitForExitResult{ExitCode: code})
}

func (s *Server) handleNotExpectText(req *Request) Response {
	var params notExpectTextParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResponse(req.ID, termerr.InvalidParams(err.Error()))
	}
	if err := s.sess.NotExpectText(params.Text); err != nil {
		return errorResponse(req.ID, err)
	}
	return ok(req.ID, nil)
}

func (s *Server) handleNotExpectPattern(req *Request) Response {
	var params notExpectPatternParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResponse(req.ID, termerr.InvalidParams(err.Error()))
	}
	re, err := regexp.Compile(params.Pattern)
	if err != nil {
		return errorResponse(req.ID, termerr.InvalidParams("pattern: "+err.Error()))
	}
	if err := s.sess.NotExpectPattern(re); err != nil {
		return errorResponse(req.ID, err)
	}
	return ok(req.ID, nil)
}

func durationMs(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
