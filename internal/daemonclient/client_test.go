package daemonclient

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/termwright/termwright/internal/daemon"
	"github.com/termwright/termwright/internal/session"
)

func startDaemon(t *testing.T, command []string) string {
	t.Helper()

	sess := session.New(command, session.WithSize(10, 40))
	if err := sess.Start(); err != nil {
		t.Fatalf("session.Start: %v", err)
	}
	t.Cleanup(sess.Close)

	socketPath := filepath.Join(t.TempDir(), "termwright.sock")
	srv, err := daemon.Listen(socketPath, sess, nil)
	if err != nil {
		t.Fatalf("daemon.Listen: %v", err)
	}
	t.Cleanup(func() { srv.Close() })
	go srv.Serve()

	return socketPath
}

func dialWithRetry(t *testing.T, socketPath string) *Client {
	t.Helper()
	var lastErr error
	for i := 0; i < 50; i++ {
		c, err := Dial(socketPath)
		if err == nil {
			return c
		}
		lastErr = err
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("dial: %v", lastErr)
	return nil
}

func TestClientCallHandshake(t *testing.T) {
	socketPath := startDaemon(t, []string{"/bin/sh", "-c", "sleep 2"})
	client := dialWithRetry(t, socketPath)
	defer client.Close()

	var result struct {
		ProtocolVersion int `json:"protocol_version"`
	}
	if err := client.Call("handshake", nil, &result); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if result.ProtocolVersion != 1 {
		t.Errorf("protocol_version = %d, want 1", result.ProtocolVersion)
	}
}

func TestClientRawWriteAndScreen(t *testing.T) {
	socketPath := startDaemon(t, []string{"/bin/sh", "-c", "printf ready; read line"})
	client := dialWithRetry(t, socketPath)
	defer client.Close()

	deadline := time.Now().Add(3 * time.Second)
	for {
		text, err := client.Screen()
		if err != nil {
			t.Fatalf("Screen: %v", err)
		}
		if strings.Contains(text, "ready") {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("child output %q never appeared", "ready")
		}
		time.Sleep(20 * time.Millisecond)
	}

	if err := client.RawWrite([]byte("\n")); err != nil {
		t.Fatalf("RawWrite: %v", err)
	}
}

func TestClientScreenJSON(t *testing.T) {
	socketPath := startDaemon(t, []string{"/bin/sh", "-c", "printf ready; read line"})
	client := dialWithRetry(t, socketPath)
	defer client.Close()

	deadline := time.Now().Add(3 * time.Second)
	for {
		raw, err := client.ScreenJSON(false)
		if err != nil {
			t.Fatalf("ScreenJSON: %v", err)
		}
		var decoded struct {
			Cells [][]struct {
				Char string `json:"char"`
			} `json:"cells"`
		}
		if err := json.Unmarshal(raw, &decoded); err != nil {
			t.Fatalf("unmarshal screen JSON: %v", err)
		}
		found := false
		for _, row := range decoded.Cells {
			for _, cell := range row {
				if strings.Contains(cell.Char, "r") {
					found = true
				}
			}
		}
		if found || time.Now().After(deadline) {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestClientUnknownMethodReturnsError(t *testing.T) {
	socketPath := startDaemon(t, []string{"/bin/sh", "-c", "sleep 2"})
	client := dialWithRetry(t, socketPath)
	defer client.Close()

	err := client.Call("not_a_method", nil, nil)
	if err == nil {
		t.Fatal("expected error for unknown method")
	}
	daemonErr, ok := err.(*Error)
	if !ok {
		t.Fatalf("got %T, want *Error", err)
	}
	if daemonErr.Code != "unknown_method" {
		t.Errorf("code = %q, want unknown_method", daemonErr.Code)
	}
}
