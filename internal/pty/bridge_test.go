//go:build !windows

package pty

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/agent-sandbox/smux/internal/mux"
)

// The Fake multiplexer's AttachCommand is /bin/cat, which under a PTY
// (echo on) reflects everything written to it — enough to exercise the
// bridge's read/write plumbing without a tmux server.
func TestBridge_AttachRoundTrip(t *testing.T) {
	fake := mux.NewFake("alpha")
	bridge := NewBridge(fake, "")
	defer bridge.Close()

	var mu sync.Mutex
	var seen []byte
	client, err := bridge.Attach(AttachOptions{
		SessionName: "alpha",
		OutputCallback: func(data []byte) {
			mu.Lock()
			seen = append(seen, data...)
			mu.Unlock()
		},
	})
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}

	if err := client.Write([]byte("hello\r")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		ok := bytes.Contains(seen, []byte("hello"))
		mu.Unlock()
		if ok {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	mu.Lock()
	if !bytes.Contains(seen, []byte("hello")) {
		mu.Unlock()
		t.Fatalf("output callback never saw the echoed input")
	}
	mu.Unlock()

	if !bytes.Contains(client.History(), []byte("hello")) {
		t.Error("scrollback should hold the echoed input")
	}
}

func TestBridge_SharedClientPerSession(t *testing.T) {
	fake := mux.NewFake("alpha")
	bridge := NewBridge(fake, "")
	defer bridge.Close()

	first, err := bridge.Attach(AttachOptions{SessionName: "alpha"})
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}
	second, err := bridge.Attach(AttachOptions{SessionName: "alpha"})
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}

	if first != second {
		t.Error("same session should share one attach client")
	}
}

func TestBridge_DetachClosesClient(t *testing.T) {
	fake := mux.NewFake("alpha")
	bridge := NewBridge(fake, "")
	defer bridge.Close()

	client, err := bridge.Attach(AttachOptions{SessionName: "alpha"})
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}

	if err := bridge.Detach("alpha"); err != nil {
		t.Fatalf("Detach: %v", err)
	}

	select {
	case <-client.ClosedChan():
	case <-time.After(5 * time.Second):
		t.Fatal("client did not close after Detach")
	}

	// waitLoop removes the client; give it a moment.
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := bridge.Get("alpha"); !ok {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Error("client still registered after exit")
}

func TestBridge_AttachRequiresName(t *testing.T) {
	bridge := NewBridge(mux.NewFake(), "")
	if _, err := bridge.Attach(AttachOptions{}); err == nil {
		t.Error("expected error for empty session name")
	}
}
