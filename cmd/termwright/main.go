// termwright is a thin command-line client for a running termwrightd
// daemon.
//
// Usage:
//
//	termwright --socket <path> screen
//	termwright --socket <path> type <text>
//	termwright --socket <path> press <key>
//	termwright --socket <path> attach
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/termwright/termwright/internal/daemonclient"
)

// attachExitReason describes why an attach command ended, matching the
// outcomes a client of an interactive session needs to distinguish.
type attachExitReason string

const (
	attachExited      attachExitReason = "exited"
	attachDetached    attachExitReason = "detached"
	attachInterrupted attachExitReason = "interrupted"
)

func main() {
	var socketPath string
	flag.StringVar(&socketPath, "socket", "", "path to the termwrightd socket")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `termwright - control a running termwrightd session

Usage:
  termwright --socket <path> screen
  termwright --socket <path> type <text>
  termwright --socket <path> press <key>
  termwright --socket <path> attach

Flags:
`)
		flag.PrintDefaults()
	}
	flag.Parse()

	if socketPath == "" {
		fatal("--socket is required")
	}

	args := flag.Args()
	if len(args) == 0 {
		fatal("usage: termwright --socket <path> <screen|type|press|attach> [args...]")
	}

	client, err := daemonclient.Dial(socketPath)
	if err != nil {
		fatal("%v", err)
	}
	defer client.Close()

	switch args[0] {
	case "screen":
		cmdScreen(client)
	case "type":
		if len(args) < 2 {
			fatal("usage: termwright type <text>")
		}
		cmdType(client, args[1])
	case "press":
		if len(args) < 2 {
			fatal("usage: termwright press <key>")
		}
		cmdPress(client, args[1])
	case "attach":
		cmdAttach(client)
	default:
		fatal("unknown command: %s", args[0])
	}
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "termwright: "+format+"\n", args...)
	os.Exit(1)
}

func cmdScreen(client *daemonclient.Client) {
	text, err := client.Screen()
	if err != nil {
		fatal("%v", err)
	}
	fmt.Println(text)
}

func cmdType(client *daemonclient.Client, text string) {
	if err := client.Call("type", map[string]string{"text": text}, nil); err != nil {
		fatal("%v", err)
	}
}

func cmdPress(client *daemonclient.Client, key string) {
	if err := client.Call("press", map[string]string{"key": key}, nil); err != nil {
		fatal("%v", err)
	}
}

// cmdAttach puts the local terminal into raw mode, switches to the
// alternate screen buffer, forwards stdin verbatim to the session via
// the raw method, resizes the remote session to track SIGWINCH, and
// periodically redraws the remote screen until Ctrl+\ or a signal
// ends the session.
func cmdAttach(client *daemonclient.Client) {
	stdinFd := int(os.Stdin.Fd())
	if !term.IsTerminal(stdinFd) {
		fatal("attach requires an interactive terminal")
	}

	oldState, err := term.MakeRaw(stdinFd)
	if err != nil {
		fatal("setting raw mode: %v", err)
	}
	defer term.Restore(stdinFd, oldState)

	fmt.Print("\x1b[?1049h")
	defer fmt.Print("\x1b[?1049l")

	if cols, rows, err := term.GetSize(stdinFd); err == nil {
		client.Call("resize", map[string]int{"rows": rows, "cols": cols}, nil)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGWINCH)
	defer signal.Stop(sigCh)

	detach := make(chan struct{})
	go forwardStdin(client, detach)

	redraw := func() {
		text, err := client.Screen()
		if err != nil {
			return
		}
		fmt.Print("\x1b[?2026h\x1b[H\x1b[2J")
		fmt.Print(text)
		fmt.Print("\x1b[?2026l")
	}
	redraw()

	var reason attachExitReason
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
loop:
	for {
		select {
		case sig := <-sigCh:
			if sig == syscall.SIGWINCH {
				if cols, rows, err := term.GetSize(stdinFd); err == nil {
					client.Call("resize", map[string]int{"rows": rows, "cols": cols}, nil)
				}
				redraw()
				continue
			}
			reason = attachInterrupted
			break loop
		case <-detach:
			reason = attachDetached
			break loop
		case <-ticker.C:
			redraw()
			var status struct {
				Exited bool `json:"exited"`
			}
			if err := client.Call("status", nil, &status); err == nil && status.Exited {
				reason = attachExited
				break loop
			}
		}
	}

	fmt.Fprintf(os.Stderr, "\n[%s]\n", reason)
}

func forwardStdin(client *daemonclient.Client, detach chan struct{}) {
	buf := make([]byte, 256)
	for {
		n, err := os.Stdin.Read(buf)
		if err != nil {
			close(detach)
			return
		}
		if n == 0 {
			continue
		}
		if buf[0] == 0x1c { // Ctrl+\ detaches
			close(detach)
			return
		}
		if err := client.RawWrite(buf[:n]); err != nil {
			close(detach)
			return
		}
	}
}
