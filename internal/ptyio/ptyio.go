// Package ptyio hosts a PTY master/slave pair and the child process
// attached to it, applying the session's environment policy before
// spawn.
package ptyio

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"

	"github.com/creack/pty"
)

// Pair is a PTY master/slave connection. RealPair wraps an actual
// kernel PTY; FakePair wraps a Unix socketpair for tests that don't
// need a real terminal device.
type Pair interface {
	// Master is the end the host reads/writes.
	Master() io.ReadWriteCloser
	// SlaveFile is the end handed to the child as stdin/stdout/stderr.
	SlaveFile() *os.File
	// SetSize updates the PTY window size, triggering SIGWINCH to the
	// foreground process group on a real PTY.
	SetSize(rows, cols uint16) error
	// Close closes both ends.
	Close() error
	// CloseSlave closes just the slave side, once the child has it.
	CloseSlave() error
}

// RealPair is a Pair backed by an actual kernel pseudo-terminal.
type RealPair struct {
	master, slave *os.File
}

// OpenReal allocates a real PTY pair sized to (rows, cols).
func OpenReal(rows, cols uint16) (*RealPair, error) {
	master, slave, err := pty.Open()
	if err != nil {
		return nil, fmt.Errorf("opening pty: %w", err)
	}
	if err := pty.Setsize(master, &pty.Winsize{Rows: rows, Cols: cols}); err != nil {
		master.Close()
		slave.Close()
		return nil, fmt.Errorf("sizing pty: %w", err)
	}
	return &RealPair{master: master, slave: slave}, nil
}

func (p *RealPair) Master() io.ReadWriteCloser { return p.master }
func (p *RealPair) SlaveFile() *os.File        { return p.slave }

func (p *RealPair) SetSize(rows, cols uint16) error {
	return pty.Setsize(p.master, &pty.Winsize{Rows: rows, Cols: cols})
}

func (p *RealPair) Close() error {
	p.master.Close()
	if p.slave != nil {
		p.slave.Close()
	}
	return nil
}

func (p *RealPair) CloseSlave() error {
	if p.slave == nil {
		return nil
	}
	err := p.slave.Close()
	p.slave = nil
	return err
}

// FakePair is a Pair backed by a bidirectional Unix socketpair, for
// tests that exercise the I/O Pump without a real PTY device.
type FakePair struct {
	master, slave *os.File
	rows, cols    uint16
}

// OpenFake creates a socketpair-backed Pair.
func OpenFake() (*FakePair, error) {
	fds, err := syscall.Socketpair(syscall.AF_UNIX, syscall.SOCK_STREAM, 0)
	if err != nil {
		return nil, fmt.Errorf("creating socketpair: %w", err)
	}
	return &FakePair{
		master: os.NewFile(uintptr(fds[0]), "fake-pty-master"),
		slave:  os.NewFile(uintptr(fds[1]), "fake-pty-slave"),
		rows:   24,
		cols:   80,
	}, nil
}

func (p *FakePair) Master() io.ReadWriteCloser { return p.master }
func (p *FakePair) SlaveFile() *os.File        { return p.slave }

func (p *FakePair) SetSize(rows, cols uint16) error {
	p.rows, p.cols = rows, cols
	return nil
}

func (p *FakePair) Close() error {
	p.master.Close()
	if p.slave != nil {
		p.slave.Close()
	}
	return nil
}

func (p *FakePair) CloseSlave() error {
	if p.slave == nil {
		return nil
	}
	err := p.slave.Close()
	p.slave = nil
	return err
}

// EnvPolicy controls the default environment injection described for
// the PTY Host: ensure a 256-color TERM, ensure COLORTERM=truecolor,
// and strip any inherited NO_COLOR.
type EnvPolicy struct {
	Disabled bool
	Term     string // defaults to "xterm-256color"
}

// Apply returns base with the policy applied, leaving base untouched
// when Disabled.
func (p EnvPolicy) Apply(base []string) []string {
	if p.Disabled {
		return base
	}
	term := p.Term
	if term == "" {
		term = "xterm-256color"
	}
	out := make([]string, 0, len(base)+2)
	hasTerm, hasColorTerm := false, false
	for _, kv := range base {
		switch {
		case hasPrefix(kv, "TERM="):
			hasTerm = true
			out = append(out, "TERM="+term)
		case hasPrefix(kv, "COLORTERM="):
			hasColorTerm = true
			out = append(out, "COLORTERM=truecolor")
		case hasPrefix(kv, "NO_COLOR="):
			// dropped
		default:
			out = append(out, kv)
		}
	}
	if !hasTerm {
		out = append(out, "TERM="+term)
	}
	if !hasColorTerm {
		out = append(out, "COLORTERM=truecolor")
	}
	return out
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

// Process is a spawned child process attached to a PTY slave.
type Process struct {
	cmd *exec.Cmd
}

// Spawn starts cmd with slave as stdin/stdout/stderr, making the child
// a new session leader with the PTY as its controlling terminal.
func Spawn(args []string, slave *os.File, env []string) (*Process, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("spawning process: empty command")
	}
	cmd := exec.Command(args[0], args[1:]...)
	cmd.Env = env
	cmd.Stdin = slave
	cmd.Stdout = slave
	cmd.Stderr = slave
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid:  true,
		Setctty: true,
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting process: %w", err)
	}
	return &Process{cmd: cmd}, nil
}

// Wait blocks until the process exits and returns its exit code.
func (p *Process) Wait() (int, error) {
	err := p.cmd.Wait()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return exitErr.ExitCode(), nil
		}
		return -1, err
	}
	return 0, nil
}

// Signal sends sig to the process, a no-op if it never started.
func (p *Process) Signal(sig syscall.Signal) error {
	if p.cmd.Process == nil {
		return nil
	}
	return p.cmd.Process.Signal(sig)
}

// Pid returns the child's process ID.
func (p *Process) Pid() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}
