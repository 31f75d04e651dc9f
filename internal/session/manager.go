// Package session implements the session-name allocation and dispatch
// layer smux adds on top of the terminal multiplexer.
package session

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/agent-sandbox/smux/internal/model"
	"github.com/agent-sandbox/smux/internal/mux"
)

// DefaultShell is the absolute fallback when the user has no configured
// interactive shell.
const DefaultShell = "/bin/bash"

// Manager translates an invocation (optional name, optional command) into
// multiplexer operations: find-or-create-and-attach, list, or kill. It
// holds no session state of its own — the live session set is re-queried
// from the multiplexer on every decision.
type Manager struct {
	mux          mux.Multiplexer
	defaultShell string
	now          func() time.Time
}

// Config holds configuration for the session manager.
type Config struct {
	// DefaultShell is used when $SHELL is unset. Defaults to /bin/bash.
	DefaultShell string

	// Now supplies the clock for fallback session names. Defaults to
	// time.Now.
	Now func() time.Time
}

// NewManager creates a new session manager over the given multiplexer.
func NewManager(m mux.Multiplexer, config Config) *Manager {
	if config.DefaultShell == "" {
		config.DefaultShell = DefaultShell
	}
	if config.Now == nil {
		config.Now = defaultNow
	}
	return &Manager{
		mux:          m,
		defaultShell: config.DefaultShell,
		now:          config.Now,
	}
}

// DefaultCommand returns the command a new session runs when none was
// supplied: the user's configured interactive shell, or the absolute
// fallback.
func (m *Manager) DefaultCommand() string {
	if shell := os.Getenv("SHELL"); shell != "" {
		return shell
	}
	return m.defaultShell
}

// Ensure makes sure a session with the given name exists, creating it
// detached with the given command if absent. The command only applies to
// a newly created session; an existing session keeps whatever it was
// running. Reports whether a session was created.
//
// The existence check and the creation are two separate delegated calls:
// two concurrent invocations targeting the same fresh name can both see
// "absent" and both attempt creation. The multiplexer rejects the second
// (duplicate session), which is the accepted resolution of that race.
func (m *Manager) Ensure(name, command string) (created bool, err error) {
	if !model.ValidSessionName(name) {
		return false, fmt.Errorf("%w: %q", model.ErrInvalidSessionName, name)
	}
	if m.mux.HasSession(name) {
		return false, nil
	}
	if command == "" {
		command = m.DefaultCommand()
	}
	if err := m.mux.NewSession(name, command); err != nil {
		return false, err
	}
	return true, nil
}

// Open is the find-or-create-and-attach flow. An empty name allocates
// one from the phonetic pool. The attach blocks until the user detaches
// or the session ends; any delegated failure propagates unchanged.
func (m *Manager) Open(name, command string) error {
	if name == "" {
		name = m.AllocateName()
	}
	if _, err := m.Ensure(name, command); err != nil {
		return err
	}
	return m.mux.Attach(name)
}

// List delegates to the multiplexer's list operation, output and exit
// code verbatim.
func (m *Manager) List(stdout, stderr io.Writer) error {
	return m.mux.List(stdout, stderr)
}

// Kill terminates the named session. An empty name fails fast with
// ErrSessionNameRequired before any multiplexer call.
func (m *Manager) Kill(name string) error {
	if name == "" {
		return model.ErrSessionNameRequired
	}
	return m.mux.KillSession(name)
}
