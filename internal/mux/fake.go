package mux

import (
	"fmt"
	"io"
	"sync"
)

// Fake is an in-memory Multiplexer for tests. It tracks the live session
// set and records every delegated call so tests can assert which
// operations were (and were not) attempted.
type Fake struct {
	mu       sync.Mutex
	sessions map[string]string // name -> command

	// Call records, in invocation order.
	NewCalls    []string
	AttachCalls []string
	KillCalls   []string
	ListCalls   int

	// ListOutput is what List writes verbatim to stdout.
	ListOutput string

	// Failure injection. When set, the corresponding call returns the
	// error without mutating state.
	NewErr    error
	AttachErr error
	KillErr   error
	ListErr   error

	// Captured maps session names to pane content for CapturePane.
	Captured map[string]string
}

// NewFake returns a Fake with the given names already live. Commands for
// pre-seeded sessions are empty.
func NewFake(names ...string) *Fake {
	f := &Fake{sessions: make(map[string]string)}
	for _, n := range names {
		f.sessions[n] = ""
	}
	return f
}

func (f *Fake) HasSession(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.sessions[name]
	return ok
}

func (f *Fake) NewSession(name, command string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.NewCalls = append(f.NewCalls, name)
	if f.NewErr != nil {
		return f.NewErr
	}
	if _, ok := f.sessions[name]; ok {
		return &Error{
			Args:     []string{"new-session", "-d", "-s", name},
			ExitCode: 1,
			Output:   fmt.Sprintf("duplicate session: %s", name),
			Err:      fmt.Errorf("exit status 1"),
		}
	}
	f.sessions[name] = command
	return nil
}

func (f *Fake) Attach(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.AttachCalls = append(f.AttachCalls, name)
	return f.AttachErr
}

func (f *Fake) List(stdout, stderr io.Writer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ListCalls++
	if f.ListErr != nil {
		return f.ListErr
	}
	_, err := io.WriteString(stdout, f.ListOutput)
	return err
}

func (f *Fake) Sessions() ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ListErr != nil {
		return nil, f.ListErr
	}
	names := make([]string, 0, len(f.sessions))
	for n := range f.sessions {
		names = append(names, n)
	}
	return names, nil
}

func (f *Fake) KillSession(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.KillCalls = append(f.KillCalls, name)
	if f.KillErr != nil {
		return f.KillErr
	}
	delete(f.sessions, name)
	return nil
}

func (f *Fake) CapturePane(name string, maxLines int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	content, ok := f.Captured[name]
	if !ok {
		if _, live := f.sessions[name]; !live {
			return "", &Error{
				Args:     []string{"capture-pane", "-t", name},
				ExitCode: 1,
				Output:   fmt.Sprintf("can't find session: %s", name),
				Err:      fmt.Errorf("exit status 1"),
			}
		}
	}
	if maxLines > 0 {
		return tailLines(content, maxLines), nil
	}
	return content, nil
}

// AttachCommand returns a command that simply blocks on stdin, which is
// enough for PTY bridge tests.
func (f *Fake) AttachCommand(name string) (string, []string) {
	return "/bin/cat", nil
}

// Command returns the command a session was created with.
func (f *Fake) Command(name string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions[name]
}

var _ Multiplexer = (*Fake)(nil)
