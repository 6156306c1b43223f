// Package session owns the composite {PTY, child, screen, pump} that
// represents one automation target: it drives the PTY Host and VT
// Consumer, serializes writes to the child, and exposes the wait
// primitives and input encoders that sit on top of the Screen Model.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/termwright/termwright/internal/ptyio"
	"github.com/termwright/termwright/internal/screen"
	"github.com/termwright/termwright/internal/termerr"
	"github.com/termwright/termwright/internal/vt"
)

// State is a Session's lifecycle stage.
type State int

const (
	StateStarting State = iota
	StateRunning
	StateExited
	StateKilled
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateExited:
		return "exited"
	case StateKilled:
		return "killed"
	default:
		return "unknown"
	}
}

// Config configures a Session, built via the With* functional options.
type Config struct {
	Rows, Cols     int
	Command        []string
	EnvPolicy      ptyio.EnvPolicy
	QueryEmulation bool
	Logger         *slog.Logger
}

// Option configures a Config.
type Option func(*Config)

// WithSize sets the initial PTY and screen dimensions.
func WithSize(rows, cols int) Option {
	return func(c *Config) { c.Rows, c.Cols = rows, cols }
}

// WithEnv sets the TERM value the environment policy injects.
func WithEnv(term string) Option {
	return func(c *Config) { c.EnvPolicy.Term = term }
}

// WithoutDefaultEnv disables TERM/COLORTERM/NO_COLOR injection.
func WithoutDefaultEnv() Option {
	return func(c *Config) { c.EnvPolicy.Disabled = true }
}

// WithoutQueryEmulation disables synthetic responses to cursor
// position and color queries.
func WithoutQueryEmulation() Option {
	return func(c *Config) { c.QueryEmulation = false }
}

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

func defaultConfig(command []string) Config {
	return Config{
		Rows: 24, Cols: 80,
		Command:        command,
		QueryEmulation: true,
		Logger:         slog.Default(),
	}
}

// Session owns exactly one PTY pair, one child process, one Screen,
// and one I/O Pump task.
type Session struct {
	cfg Config
	log *slog.Logger

	scr      *screen.Screen
	consumer *vt.Consumer

	mu       sync.Mutex
	state    State
	pair     ptyio.Pair
	proc     *ptyio.Process
	exitCode int
	exitedCh chan struct{} // closed exactly once, when the child exits

	writeMu sync.Mutex // serializes all writes to the PTY, in submission order
}

// New constructs a Session for command, applying opts over the
// defaults (24x80, default env policy, query emulation on).
func New(command []string, opts ...Option) *Session {
	cfg := defaultConfig(command)
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Session{
		cfg:      cfg,
		log:      cfg.Logger,
		scr:      screen.New(cfg.Rows, cfg.Cols),
		exitedCh: make(chan struct{}),
	}
}

// Screen returns the Session's Screen Model for read access.
func (s *Session) Screen() *screen.Screen { return s.scr }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ExitCode returns the child's exit code and whether it has exited.
func (s *Session) ExitCode() (code int, exited bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exitCode, s.state == StateExited || s.state == StateKilled
}

// Start opens the PTY, spawns the child, and launches the I/O Pump.
func (s *Session) Start() error {
	s.mu.Lock()
	if s.state != StateStarting {
		s.mu.Unlock()
		return fmt.Errorf("session already started")
	}
	s.mu.Unlock()

	pair, err := ptyio.OpenReal(uint16(s.cfg.Rows), uint16(s.cfg.Cols))
	if err != nil {
		return termerr.Spawn("opening pty", err)
	}

	env := s.cfg.EnvPolicy.Apply(os.Environ())
	proc, err := ptyio.Spawn(s.cfg.Command, pair.SlaveFile(), env)
	if err != nil {
		pair.Close()
		return termerr.Spawn("spawning child", err)
	}
	pair.CloseSlave()

	s.mu.Lock()
	s.pair = pair
	s.proc = proc
	s.state = StateRunning
	s.consumer = vt.New(s.scr)
	s.mu.Unlock()

	s.log.Info("session started", "command", s.cfg.Command, "rows", s.cfg.Rows, "cols", s.cfg.Cols)

	go s.pump()
	return nil
}

// Resize updates both the PTY window size and the Screen dimensions,
// and triggers SIGWINCH to the child's process group.
func (s *Session) Resize(rows, cols int) error {
	s.mu.Lock()
	pair := s.pair
	proc := s.proc
	s.mu.Unlock()

	if pair == nil {
		return fmt.Errorf("resize: session not started")
	}
	if err := pair.SetSize(uint16(rows), uint16(cols)); err != nil {
		return termerr.Io("resizing pty", err)
	}
	s.consumer.Resize(rows, cols)
	if proc != nil {
		_ = proc.Signal(syscall.SIGWINCH)
	}
	return nil
}

// Write sends bytes to the child's stdin, serialized against every
// other writer so multi-byte input sequences never interleave.
func (s *Session) Write(p []byte) (int, error) {
	s.mu.Lock()
	pair := s.pair
	state := s.state
	s.mu.Unlock()

	if state == StateExited || state == StateKilled {
		return 0, termerr.AlreadyExited()
	}
	if pair == nil {
		return 0, fmt.Errorf("write: session not started")
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	n, err := pair.Master().Write(p)
	if err != nil {
		return n, termerr.Io("writing to pty", err)
	}
	return n, nil
}

// Kill sends SIGTERM, waits up to a grace period, then SIGKILL.
func (s *Session) Kill() error {
	s.mu.Lock()
	proc := s.proc
	s.mu.Unlock()
	if proc == nil {
		return nil
	}

	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return termerr.Io("sending SIGTERM", err)
	}
	s.mu.Lock()
	if s.state == StateRunning {
		s.state = StateKilled
	}
	s.mu.Unlock()

	select {
	case <-s.exitedCh:
		return nil
	case <-time.After(3 * time.Second):
	}

	if err := proc.Signal(syscall.SIGKILL); err != nil {
		return termerr.Io("sending SIGKILL", err)
	}
	<-s.exitedCh
	return nil
}

// WaitForExit blocks until the child exits or ctx is cancelled,
// whichever comes first.
func (s *Session) WaitForExit(ctx context.Context) (int, error) {
	select {
	case <-s.exitedCh:
		code, _ := s.ExitCode()
		return code, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Exited returns a channel closed exactly once, when the child exits.
func (s *Session) Exited() <-chan struct{} { return s.exitedCh }

// Close kills the child if still running and releases the PTY.
func (s *Session) Close() {
	s.mu.Lock()
	state := s.state
	pair := s.pair
	s.mu.Unlock()

	if state == StateRunning {
		_ = s.Kill()
	}
	if pair != nil {
		pair.Close()
	}
}
