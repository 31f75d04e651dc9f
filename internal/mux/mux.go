// Package mux abstracts the terminal multiplexer that smux orchestrates.
//
// The session manager never manipulates multiplexer state directly: every
// existence check, creation, attach, listing, and kill goes through the
// Multiplexer interface, and the live session set is re-queried on demand
// rather than cached. The production implementation shells out to tmux;
// tests substitute Fake.
package mux

import (
	"fmt"
	"io"
	"strings"
)

// Multiplexer is the capability smux requires from the underlying
// terminal multiplexer.
type Multiplexer interface {
	// HasSession reports whether a session with the given name exists.
	HasSession(name string) bool

	// NewSession creates a detached session running command. An empty
	// command lets the multiplexer fall back to its default shell.
	NewSession(name, command string) error

	// Attach attaches the controlling terminal to the named session and
	// blocks until the user detaches or the session ends.
	Attach(name string) error

	// List writes the multiplexer's own list-sessions output verbatim to
	// stdout/stderr. A nonzero delegated exit code is returned as an error.
	List(stdout, stderr io.Writer) error

	// Sessions returns the names of all live sessions. A multiplexer
	// server that is not running counts as zero sessions, not an error.
	Sessions() ([]string, error)

	// KillSession terminates the named session.
	KillSession(name string) error

	// CapturePane returns the content of the named session's active pane,
	// limited to the last maxLines lines (0 for no limit).
	CapturePane(name string, maxLines int) (string, error)

	// AttachCommand returns the argv for an attach client suitable for
	// running under a server-held PTY.
	AttachCommand(name string) (string, []string)
}

// Error records a delegated multiplexer command failure. The exit code
// and diagnostic output of the underlying command are preserved so
// callers can propagate them unchanged.
type Error struct {
	Args     []string
	ExitCode int
	Output   string
	Err      error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("tmux %s: %v", strings.Join(e.Args, " "), e.Err)
	if e.Output != "" {
		msg += " (" + e.Output + ")"
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}
