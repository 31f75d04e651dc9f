package mux

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestTailLines(t *testing.T) {
	tests := []struct {
		name  string
		input string
		n     int
		want  string
	}{
		{"empty", "", 3, ""},
		{"fewer lines than limit", "a\nb\n", 5, "a\nb\n"},
		{"exact limit", "a\nb\nc\n", 3, "a\nb\nc\n"},
		{"trims oldest", "a\nb\nc\nd\n", 2, "c\nd\n"},
		{"no trailing newline", "a\nb\nc", 2, "b\nc"},
		{"single line", "only\n", 1, "only\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tailLines(tt.input, tt.n); got != tt.want {
				t.Errorf("tailLines(%q, %d) = %q, want %q", tt.input, tt.n, got, tt.want)
			}
		})
	}
}

func TestTmuxArgConstruction(t *testing.T) {
	t.Run("no socket means no -S", func(t *testing.T) {
		tm := &Tmux{}
		if args := tm.serverArgs(); len(args) != 0 {
			t.Errorf("expected no server args, got %v", args)
		}
	})

	t.Run("socket adds -S", func(t *testing.T) {
		tm := &Tmux{SocketPath: "/run/smux/default"}
		args := tm.serverArgs()
		if len(args) != 2 || args[0] != "-S" || args[1] != "/run/smux/default" {
			t.Errorf("unexpected server args: %v", args)
		}
	})

	t.Run("attach command targets the session", func(t *testing.T) {
		tm := &Tmux{SocketPath: "/tmp/sock"}
		bin, args := tm.AttachCommand("alpha")
		if bin != "tmux" {
			t.Errorf("expected tmux binary, got %q", bin)
		}
		joined := strings.Join(args, " ")
		if joined != "-S /tmp/sock attach-session -t alpha" {
			t.Errorf("unexpected attach args: %q", joined)
		}
	})
}

func TestFakeSessionLifecycle(t *testing.T) {
	f := NewFake("alpha")

	if !f.HasSession("alpha") {
		t.Error("seeded session should exist")
	}
	if f.HasSession("bravo") {
		t.Error("unseeded session should not exist")
	}

	if err := f.NewSession("bravo", "echo hi"); err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if !f.HasSession("bravo") {
		t.Error("created session should exist")
	}
	if got := f.Command("bravo"); got != "echo hi" {
		t.Errorf("command = %q, want %q", got, "echo hi")
	}

	// Duplicate creation mirrors tmux's "duplicate session" failure.
	err := f.NewSession("bravo", "")
	if err == nil {
		t.Fatal("duplicate NewSession should fail")
	}
	var muxErr *Error
	if !errors.As(err, &muxErr) {
		t.Fatalf("expected *mux.Error, got %T", err)
	}
	if muxErr.ExitCode != 1 {
		t.Errorf("exit code = %d, want 1", muxErr.ExitCode)
	}

	if err := f.KillSession("bravo"); err != nil {
		t.Fatalf("KillSession: %v", err)
	}
	if f.HasSession("bravo") {
		t.Error("killed session should be gone")
	}
}

func TestFakeListPassthrough(t *testing.T) {
	f := NewFake()
	f.ListOutput = "alpha: 1 windows (created Thu Aug 27 10:00:00 2026)\n"

	var out bytes.Buffer
	if err := f.List(&out, &out); err != nil {
		t.Fatalf("List: %v", err)
	}
	if out.String() != f.ListOutput {
		t.Errorf("list output = %q, want %q", out.String(), f.ListOutput)
	}
	if f.ListCalls != 1 {
		t.Errorf("list calls = %d, want 1", f.ListCalls)
	}
}
