// Command smux manages named terminal multiplexer sessions for the
// sandbox. With no arguments it finds a free phonetic name, creates a
// detached session running the default shell, and attaches; with a name
// it attaches to that session, creating it first if needed.
//
//	smux                  attach to a fresh auto-named session
//	smux <name>           find-or-create-and-attach to <name>
//	smux <name> <cmd...>  same, running <cmd...> if newly created
//	smux ls               list sessions (tmux output verbatim)
//	smux kill <name>      terminate <name>
package main

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/agent-sandbox/smux/internal/model"
	"github.com/agent-sandbox/smux/internal/mux"
	"github.com/agent-sandbox/smux/internal/session"
)

func main() {
	manager := session.NewManager(mux.NewTmux(), session.Config{})
	os.Exit(run(os.Args[1:], manager))
}

func run(args []string, manager *session.Manager) int {
	if len(args) > 0 {
		switch args[0] {
		case "ls":
			return report(manager.List(os.Stdout, os.Stderr))
		case "kill":
			name := ""
			if len(args) > 1 {
				name = args[1]
			}
			err := manager.Kill(name)
			if errors.Is(err, model.ErrSessionNameRequired) {
				fmt.Fprintln(os.Stderr, "smux: kill requires a session name")
				fmt.Fprintln(os.Stderr, "usage: smux kill <name>")
				return 2
			}
			return report(err)
		// Only flag-spelled help is intercepted; a bare word is always a
		// session name, so `smux help` opens a session called help.
		case "-h", "--help":
			usage(os.Stdout)
			return 0
		}
	}

	var name, command string
	if len(args) > 0 {
		name = args[0]
		command = strings.Join(args[1:], " ")
	}
	return report(manager.Open(name, command))
}

// report maps an error to the process exit code, propagating delegated
// tmux exit codes unchanged.
func report(err error) int {
	if err == nil {
		return 0
	}

	var muxErr *mux.Error
	if errors.As(err, &muxErr) {
		if muxErr.Output != "" {
			fmt.Fprintln(os.Stderr, muxErr.Output)
		}
		if muxErr.ExitCode >= 0 {
			return muxErr.ExitCode
		}
		return 1
	}

	// Attach and ls run with inherited stdio, so tmux has already
	// written its own diagnostics; only the exit code is left to carry.
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}

	fmt.Fprintf(os.Stderr, "smux: %v\n", err)
	return 1
}

func usage(w *os.File) {
	fmt.Fprint(w, `usage: smux [name [command...]] | ls | kill <name>

  smux                  attach to a fresh auto-named session
  smux <name>           find-or-create-and-attach to <name>
  smux <name> <cmd...>  same, running <cmd...> if newly created
  smux ls               list sessions
  smux kill <name>      terminate <name>

environment:
  SMUX_SOCKET  dedicated tmux server socket (tmux -S)
  SMUX_CONFIG  tmux config file for new servers (tmux -f)
  SHELL        command for new sessions when none is given
`)
}
