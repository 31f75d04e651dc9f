// Package pty runs terminal multiplexer attach clients under
// server-held pseudo-terminals.
//
// A remote viewer cannot attach to tmux directly: attach-session wants a
// controlling terminal. The observation server therefore opens a PTY
// pair, runs `tmux attach-session` on the slave side, and bridges the
// master side to WebSocket clients. The session itself keeps running in
// tmux whether or not a bridge client exists.
package pty

import (
	"io"
	"os/exec"
)

// PTY is the master side of a pseudo-terminal pair.
type PTY interface {
	io.Reader
	io.Writer
	io.Closer

	// Resize changes the terminal window size. tmux redraws the attached
	// session to match.
	Resize(rows, cols uint16) error
}

// StartOptions configures the process started on the slave side.
type StartOptions struct {
	// Command and Args form the argv — for the bridge, a tmux attach
	// client.
	Command string
	Args    []string

	// Env for the process. Nil inherits the server's environment.
	Env []string

	// InitialRows and InitialCols size the PTY before the process starts.
	InitialRows uint16
	InitialCols uint16
}

// Process is a running PTY-backed process.
type Process struct {
	// PTY is the master side, carrying the process's terminal I/O.
	PTY PTY

	// Cmd is the underlying exec.Cmd.
	Cmd *exec.Cmd

	pid int
}

// PID returns the process ID.
func (p *Process) PID() int {
	return p.pid
}

// Wait blocks until the process exits and returns its exit code.
// Returns -1 when the process ended without an exit status (killed).
func (p *Process) Wait() (int, error) {
	err := p.Cmd.Wait()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return exitErr.ExitCode(), nil
		}
		return -1, err
	}
	return 0, nil
}

// Kill terminates the process.
func (p *Process) Kill() error {
	if p.Cmd.Process != nil {
		return p.Cmd.Process.Kill()
	}
	return nil
}

// Close closes the PTY master.
func (p *Process) Close() error {
	return p.PTY.Close()
}
