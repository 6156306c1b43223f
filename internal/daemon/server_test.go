package daemon

import (
	"bufio"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/termwright/termwright/internal/session"
)

func startTestDaemon(t *testing.T, command []string) (*Server, net.Conn) {
	t.Helper()

	sess := session.New(command, session.WithSize(10, 40))
	if err := sess.Start(); err != nil {
		t.Fatalf("session.Start: %v", err)
	}
	t.Cleanup(sess.Close)

	socketPath := filepath.Join(t.TempDir(), "termwright.sock")
	srv, err := Listen(socketPath, sess, nil)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	t.Cleanup(func() { srv.Close() })

	go srv.Serve()

	var conn net.Conn
	for i := 0; i < 50; i++ {
		conn, err = net.Dial("unix", socketPath)
		if err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	return srv, conn
}

func call(t *testing.T, conn net.Conn, reader *bufio.Reader, id uint64, method string, params any) Response {
	t.Helper()
	req := Request{ID: id, Method: method}
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			t.Fatalf("marshal params: %v", err)
		}
		req.Params = b
	}
	line, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	line = append(line, '\n')
	if _, err := conn.Write(line); err != nil {
		t.Fatalf("write request: %v", err)
	}

	respLine, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	var resp Response
	if err := json.Unmarshal([]byte(respLine), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	return resp
}

func TestHandshakeReturnsProtocolVersion(t *testing.T) {
	_, conn := startTestDaemon(t, []string{"/bin/sh", "-c", "sleep 2"})
	reader := bufio.NewReader(conn)

	resp := call(t, conn, reader, 1, "handshake", nil)
	if resp.Error != nil {
		t.Fatalf("handshake error: %+v", resp.Error)
	}
	var result HandshakeResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if result.ProtocolVersion != ProtocolVersion {
		t.Errorf("protocol_version = %d, want %d", result.ProtocolVersion, ProtocolVersion)
	}
}

func TestTypeAndWaitForText(t *testing.T) {
	_, conn := startTestDaemon(t, []string{"/bin/sh", "-c", "read line; echo \"got: $line\""})
	reader := bufio.NewReader(conn)

	resp := call(t, conn, reader, 1, "type", map[string]any{"text": "hello\n"})
	if resp.Error != nil {
		t.Fatalf("type error: %+v", resp.Error)
	}

	resp = call(t, conn, reader, 2, "wait_for_text", map[string]any{"text": "got: hello", "timeout_ms": 5000})
	if resp.Error != nil {
		t.Fatalf("wait_for_text error: %+v", resp.Error)
	}
}

func TestWaitForTextGone(t *testing.T) {
	_, conn := startTestDaemon(t, []string{"/bin/sh", "-c", "printf loading; sleep 0.05; printf '\\033[2K\\rdone'; sleep 2"})
	reader := bufio.NewReader(conn)

	resp := call(t, conn, reader, 1, "wait_for_text", map[string]any{"text": "loading", "timeout_ms": 3000})
	if resp.Error != nil {
		t.Fatalf("wait_for_text error: %+v", resp.Error)
	}

	resp = call(t, conn, reader, 2, "wait_for_text_gone", map[string]any{"text": "loading", "timeout_ms": 3000})
	if resp.Error != nil {
		t.Fatalf("wait_for_text_gone error: %+v", resp.Error)
	}
}

func TestWaitForPatternGone(t *testing.T) {
	_, conn := startTestDaemon(t, []string{"/bin/sh", "-c", "printf 'status: busy'; sleep 0.05; printf '\\033[2K\\rstatus: idle'; sleep 2"})
	reader := bufio.NewReader(conn)

	resp := call(t, conn, reader, 1, "wait_for_pattern", map[string]any{"pattern": "status: \\w+", "timeout_ms": 3000})
	if resp.Error != nil {
		t.Fatalf("wait_for_pattern error: %+v", resp.Error)
	}

	resp = call(t, conn, reader, 2, "wait_for_pattern_gone", map[string]any{"pattern": "status: busy", "timeout_ms": 3000})
	if resp.Error != nil {
		t.Fatalf("wait_for_pattern_gone error: %+v", resp.Error)
	}
}

func TestCapabilitiesReportsFeaturesAndGoneMethods(t *testing.T) {
	_, conn := startTestDaemon(t, []string{"/bin/sh", "-c", "sleep 2"})
	reader := bufio.NewReader(conn)

	resp := call(t, conn, reader, 1, "capabilities", nil)
	if resp.Error != nil {
		t.Fatalf("capabilities error: %+v", resp.Error)
	}
	var result CapabilitiesResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if result.Features["screenshot"] {
		t.Error("features[screenshot] = true, want false")
	}
	if !result.Features["pattern_gone"] {
		t.Error("features[pattern_gone] = false, want true")
	}

	var hasTextGone, hasPatternGone bool
	for _, m := range result.Methods {
		switch m {
		case "wait_for_text_gone":
			hasTextGone = true
		case "wait_for_pattern_gone":
			hasPatternGone = true
		}
	}
	if !hasTextGone || !hasPatternGone {
		t.Errorf("methods = %v, missing wait_for_text_gone/wait_for_pattern_gone", result.Methods)
	}
}

func TestUnknownMethodReturnsError(t *testing.T) {
	_, conn := startTestDaemon(t, []string{"/bin/sh", "-c", "sleep 2"})
	reader := bufio.NewReader(conn)

	resp := call(t, conn, reader, 1, "frobnicate", nil)
	if resp.Error == nil {
		t.Fatal("expected error for unknown method")
	}
	if resp.Error.Code != "unknown_method" {
		t.Errorf("code = %q, want unknown_method", resp.Error.Code)
	}
}

func TestCloseShutsDownSocket(t *testing.T) {
	srv, conn := startTestDaemon(t, []string{"/bin/sh", "-c", "sleep 2"})
	reader := bufio.NewReader(conn)

	resp := call(t, conn, reader, 1, "close", nil)
	if resp.Error == nil || resp.Error.Code != "session_closed" {
		t.Fatalf("close response = %+v, want session_closed error marker", resp.Error)
	}

	time.Sleep(100 * time.Millisecond)
	if _, err := os.Stat(srv.Addr()); !os.IsNotExist(err) {
		t.Errorf("socket file still exists after close: %v", err)
	}
}

func TestScreenTextFormat(t *testing.T) {
	_, conn := startTestDaemon(t, []string{"/bin/sh", "-c", "printf hi; sleep 2"})
	reader := bufio.NewReader(conn)

	call(t, conn, reader, 1, "wait_for_text", map[string]any{"text": "hi", "timeout_ms": 3000})
	resp := call(t, conn, reader, 2, "screen", map[string]any{"format": "text"})
	if resp.Error != nil {
		t.Fatalf("screen error: %+v", resp.Error)
	}
	var text string
	if err := json.Unmarshal(resp.Result, &text); err != nil {
		t.Fatalf("unmarshal screen text: %v", err)
	}
	if len(text) == 0 {
		t.Error("expected non-empty screen text")
	}
}
