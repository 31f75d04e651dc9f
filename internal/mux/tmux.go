package mux

import (
	"io"
	"os"
	"os/exec"
	"strings"
)

// Tmux is the production Multiplexer backed by the tmux binary.
//
// By default it targets the user's regular tmux server. Inside a sandbox
// the helper usually runs against a dedicated server instead: SocketPath
// adds -S so sessions never mix with a personal tmux, and ConfigFile adds
// -f on new-session (pass /dev/null to keep ~/.tmux.conf out of the
// sandbox). The -f flag only matters on new-session because that is the
// command that may start the server.
type Tmux struct {
	// SocketPath, when non-empty, targets a dedicated tmux server via -S.
	SocketPath string

	// ConfigFile, when non-empty, is passed as -f on new-session.
	ConfigFile string
}

// NewTmux returns a Tmux configured from the environment: SMUX_SOCKET
// selects a dedicated server socket and SMUX_CONFIG a config file. Both
// default to empty, which means the user's regular tmux server.
func NewTmux() *Tmux {
	return &Tmux{
		SocketPath: os.Getenv("SMUX_SOCKET"),
		ConfigFile: os.Getenv("SMUX_CONFIG"),
	}
}

// serverArgs returns the flags that select the target server, prepended
// to every tmux invocation.
func (t *Tmux) serverArgs() []string {
	if t.SocketPath == "" {
		return nil
	}
	return []string{"-S", t.SocketPath}
}

// HasSession reports whether a session with the given name exists.
// Returns false when the tmux server is not running.
func (t *Tmux) HasSession(name string) bool {
	args := append(t.serverArgs(), "has-session", "-t", name)
	return exec.Command("tmux", args...).Run() == nil
}

// NewSession creates a detached session. When command is non-empty the
// session runs it instead of the default shell; tmux hands a single
// argument to the shell, so the joined command string passes through
// unsplit.
func (t *Tmux) NewSession(name, command string) error {
	var args []string
	if t.ConfigFile != "" {
		args = append(args, "-f", t.ConfigFile)
	}
	args = append(args, t.serverArgs()...)
	args = append(args, "new-session", "-d", "-s", name)
	if command != "" {
		args = append(args, command)
	}
	return t.run(args)
}

// Attach hands the controlling terminal to a tmux attach client and
// blocks until the user detaches or the session ends. The tmux client's
// exit status is propagated unchanged (as an *exec.ExitError).
func (t *Tmux) Attach(name string) error {
	args := append(t.serverArgs(), "attach-session", "-t", name)
	cmd := exec.Command("tmux", args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// List streams tmux's own list-sessions output to the given writers,
// format and exit code untouched.
func (t *Tmux) List(stdout, stderr io.Writer) error {
	args := append(t.serverArgs(), "list-sessions")
	cmd := exec.Command("tmux", args...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	return cmd.Run()
}

// Sessions returns the names of all live sessions. tmux exits nonzero
// with "no server running" when no server exists; that is an empty
// session set, not a failure.
func (t *Tmux) Sessions() ([]string, error) {
	args := append(t.serverArgs(), "list-sessions", "-F", "#{session_name}")
	output, err := exec.Command("tmux", args...).CombinedOutput()
	if err != nil {
		text := strings.TrimSpace(string(output))
		if strings.Contains(text, "no server running") ||
			strings.Contains(text, "error connecting to") {
			return nil, nil
		}
		return nil, t.wrap(args, output, err)
	}

	var names []string
	for _, line := range strings.Split(strings.TrimSpace(string(output)), "\n") {
		if line != "" {
			names = append(names, line)
		}
	}
	return names, nil
}

// KillSession terminates the named session.
func (t *Tmux) KillSession(name string) error {
	args := append(t.serverArgs(), "kill-session", "-t", name)
	return t.run(args)
}

// CapturePane captures the visible content and scrollback of the named
// session's active pane, trimmed to the last maxLines lines (0 = all).
func (t *Tmux) CapturePane(name string, maxLines int) (string, error) {
	args := append(t.serverArgs(), "capture-pane", "-t", name, "-p", "-S", "-", "-E", "-")
	output, err := exec.Command("tmux", args...).CombinedOutput()
	if err != nil {
		return "", t.wrap(args, output, err)
	}
	if maxLines <= 0 {
		return string(output), nil
	}
	return tailLines(string(output), maxLines), nil
}

// AttachCommand returns the argv for an attach client to run under a
// server-held PTY.
func (t *Tmux) AttachCommand(name string) (string, []string) {
	return "tmux", append(t.serverArgs(), "attach-session", "-t", name)
}

// run executes a tmux command, wrapping any failure with its exit code
// and diagnostic output.
func (t *Tmux) run(args []string) error {
	output, err := exec.Command("tmux", args...).CombinedOutput()
	if err != nil {
		return t.wrap(args, output, err)
	}
	return nil
}

func (t *Tmux) wrap(args []string, output []byte, err error) error {
	code := -1
	if exitErr, ok := err.(*exec.ExitError); ok {
		code = exitErr.ExitCode()
	}
	return &Error{
		Args:     args,
		ExitCode: code,
		Output:   strings.TrimSpace(string(output)),
		Err:      err,
	}
}

// tailLines returns the last n lines of s, tail -n style: a trailing
// newline terminates the final line rather than starting a new one.
func tailLines(s string, n int) string {
	if len(s) == 0 {
		return s
	}
	searchFrom := len(s) - 1
	if s[searchFrom] == '\n' {
		searchFrom--
	}
	count := 0
	for i := searchFrom; i >= 0; i-- {
		if s[i] == '\n' {
			count++
			if count == n {
				return s[i+1:]
			}
		}
	}
	return s
}

var _ Multiplexer = (*Tmux)(nil)
