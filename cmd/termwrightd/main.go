// termwrightd hosts a single headless terminal session behind a Unix
// domain socket, speaking the newline-delimited JSON control protocol.
//
// Usage:
//
//	termwrightd [flags] -- <command> [args...]
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	flag "github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/termwright/termwright/internal/daemon"
	"github.com/termwright/termwright/internal/dirs"
	"github.com/termwright/termwright/internal/session"
)

func main() {
	var (
		rows           int
		cols           int
		socketPath     string
		noDefaultEnv   bool
		noQueryEmul    bool
		debug          bool
	)

	flag.IntVar(&rows, "rows", 24, "initial terminal rows")
	flag.IntVar(&cols, "cols", 80, "initial terminal columns")
	flag.StringVar(&socketPath, "socket", dirs.SocketPath(os.Getpid()), "Unix socket path to listen on")
	flag.BoolVar(&noDefaultEnv, "no-default-env", false, "do not inject TERM/COLORTERM defaults into the child's environment")
	flag.BoolVar(&noQueryEmul, "no-osc-emulation", false, "do not synthesize responses to cursor position / OSC color queries")
	flag.BoolVar(&debug, "debug", false, "enable debug logging")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `termwrightd - headless terminal automation daemon

Usage:
  termwrightd [flags] -- <command> [args...]

Flags:
`)
		flag.PrintDefaults()
	}
	flag.Parse()

	command := flag.Args()
	if len(command) == 0 {
		fmt.Fprintln(os.Stderr, "termwrightd: missing command, usage: termwrightd [flags] -- <command> [args...]")
		os.Exit(1)
	}

	slog.SetDefault(slog.New(newLogHandler(debug)))

	opts := []session.Option{session.WithSize(rows, cols)}
	if noDefaultEnv {
		opts = append(opts, session.WithoutDefaultEnv())
	}
	if noQueryEmul {
		opts = append(opts, session.WithoutQueryEmulation())
	}

	sess := session.New(command, opts...)
	if err := sess.Start(); err != nil {
		fatal("starting session: %v", err)
	}

	srv, err := daemon.Listen(socketPath, sess, slog.Default())
	if err != nil {
		sess.Close()
		fatal("listening on %s: %v", socketPath, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		srv.Close()
		sess.Close()
	}()

	fmt.Println(srv.Addr())

	if err := srv.Serve(); err != nil {
		fatal("serving: %v", err)
	}
}

// newLogHandler picks a text handler for interactive terminals and a
// JSON handler otherwise, matching how structured loggers in this
// codebase choose their rendering based on stderr's terminal-ness.
func newLogHandler(debug bool) slog.Handler {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if term.IsTerminal(int(os.Stderr.Fd())) {
		return slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.NewJSONHandler(os.Stderr, opts)
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "termwrightd: "+format+"\n", args...)
	os.Exit(1)
}
