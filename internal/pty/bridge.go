package pty

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/agent-sandbox/smux/internal/buffer"
	"github.com/agent-sandbox/smux/internal/logger"
	"github.com/agent-sandbox/smux/internal/mux"
)

const (
	// DefaultScrollbackSize is the per-session scrollback cache (64KB).
	DefaultScrollbackSize = 64 * 1024

	// readBufferSize is the chunk size for reading attach output.
	readBufferSize = 4096
)

// AttachClient is one PTY-held tmux attach client, shared by every
// WebSocket viewer of the same session.
type AttachClient struct {
	SessionName string
	Process     *Process
	Scrollback  *buffer.RingBuffer
	Recorder    *logger.Recorder

	// OutputCallback receives every chunk of attach output. Set by the
	// WebSocket layer to broadcast to viewers.
	OutputCallback func(data []byte)

	// ExitCallback fires when the attach client exits — the session
	// ended or the bridge detached.
	ExitCallback func(exitCode int, err error)

	mu       sync.RWMutex
	closed   bool
	closedCh chan struct{}
}

// Bridge manages the attach clients the observation server holds, one
// per watched session.
type Bridge struct {
	mux mux.Multiplexer

	// ScrollbackSize is the scrollback cache capacity per session.
	ScrollbackSize int

	// LogDir is where recordings are written. Empty disables recording.
	LogDir string

	mu      sync.RWMutex
	clients map[string]*AttachClient
}

// NewBridge creates a Bridge over the given multiplexer.
func NewBridge(m mux.Multiplexer, logDir string) *Bridge {
	return &Bridge{
		mux:            m,
		ScrollbackSize: DefaultScrollbackSize,
		LogDir:         logDir,
		clients:        make(map[string]*AttachClient),
	}
}

// AttachOptions configures a bridge attach.
type AttachOptions struct {
	// SessionName is the tmux session to attach to.
	SessionName string

	// Command is recorded in the cast header; informational only.
	Command string

	// Rows and Cols size the viewer terminal.
	Rows uint16
	Cols uint16

	// OutputCallback and ExitCallback as on AttachClient.
	OutputCallback func(data []byte)
	ExitCallback   func(exitCode int, err error)
}

// Attach returns the existing attach client for the session or starts a
// new one. The returned client's Scrollback already holds any output
// seen since the bridge first attached.
func (b *Bridge) Attach(opts AttachOptions) (*AttachClient, error) {
	if opts.SessionName == "" {
		return nil, fmt.Errorf("session name is required")
	}

	b.mu.Lock()
	if existing, ok := b.clients[opts.SessionName]; ok {
		b.mu.Unlock()
		return existing, nil
	}
	b.mu.Unlock()

	if opts.Rows == 0 {
		opts.Rows = 24
	}
	if opts.Cols == 0 {
		opts.Cols = 80
	}

	var recorder *logger.Recorder
	if b.LogDir != "" {
		path := filepath.Join(b.LogDir, opts.SessionName+".cast")
		var err error
		recorder, err = logger.NewRecorder(path)
		if err != nil {
			return nil, fmt.Errorf("failed to create recorder: %w", err)
		}
		if err := recorder.WriteHeader(int(opts.Cols), int(opts.Rows), opts.SessionName, opts.Command); err != nil {
			recorder.Close()
			return nil, fmt.Errorf("failed to write recorder header: %w", err)
		}
	}

	bin, args := b.mux.AttachCommand(opts.SessionName)
	process, err := Start(StartOptions{
		Command:     bin,
		Args:        args,
		Env:         attachEnv(),
		InitialRows: opts.Rows,
		InitialCols: opts.Cols,
	})
	if err != nil {
		if recorder != nil {
			recorder.Close()
		}
		return nil, fmt.Errorf("failed to start attach client: %w", err)
	}

	client := &AttachClient{
		SessionName:    opts.SessionName,
		Process:        process,
		Scrollback:     buffer.NewRingBuffer(b.ScrollbackSize),
		Recorder:       recorder,
		OutputCallback: opts.OutputCallback,
		ExitCallback:   opts.ExitCallback,
		closedCh:       make(chan struct{}),
	}

	b.mu.Lock()
	// Re-check: another viewer may have raced us here. Keep the first.
	if existing, ok := b.clients[opts.SessionName]; ok {
		b.mu.Unlock()
		client.Close()
		return existing, nil
	}
	b.clients[opts.SessionName] = client
	b.mu.Unlock()

	log.Printf("Started attach client for session %s (pid %d)", opts.SessionName, process.PID())

	go client.readLoop()
	go client.waitLoop(b)

	return client, nil
}

// attachEnv ensures the attach client has a TERM; tmux refuses to start
// without one.
func attachEnv() []string {
	env := os.Environ()
	if os.Getenv("TERM") == "" {
		env = append(env, "TERM=xterm-256color")
	}
	return env
}

// Get returns the attach client for a session, if one is live.
func (b *Bridge) Get(name string) (*AttachClient, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	c, ok := b.clients[name]
	return c, ok
}

// Detach closes the attach client for a session. The tmux session keeps
// running; only the server-side viewer goes away.
func (b *Bridge) Detach(name string) error {
	b.mu.RLock()
	c, ok := b.clients[name]
	b.mu.RUnlock()

	if !ok {
		return fmt.Errorf("no attach client for session %q", name)
	}
	return c.Close()
}

// remove drops a client from the bridge after it has exited.
func (b *Bridge) remove(name string) {
	b.mu.Lock()
	delete(b.clients, name)
	b.mu.Unlock()
}

// Close closes all attach clients.
func (b *Bridge) Close() error {
	b.mu.Lock()
	clients := make([]*AttachClient, 0, len(b.clients))
	for _, c := range b.clients {
		clients = append(clients, c)
	}
	b.mu.Unlock()

	var firstErr error
	for _, c := range clients {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// readLoop pumps attach output into the scrollback, the recorder, and
// the output callback.
func (c *AttachClient) readLoop() {
	buf := make([]byte, readBufferSize)

	for {
		n, err := c.Process.PTY.Read(buf)
		if n > 0 {
			data := buf[:n]

			c.Scrollback.Write(data)
			if c.Recorder != nil {
				c.Recorder.WriteOutput(data)
			}
			if cb := c.outputCallback(); cb != nil {
				cb(data)
			}
		}
		if err != nil {
			// EOF or EIO: the attach client is gone. waitLoop owns
			// cleanup.
			return
		}
	}
}

// waitLoop waits for the attach client to exit and cleans up.
func (c *AttachClient) waitLoop(b *Bridge) {
	exitCode, err := c.Process.Wait()

	if cb := c.exitCallback(); cb != nil {
		cb(exitCode, err)
	}

	c.Close()
	b.remove(c.SessionName)
}

// Write forwards viewer input to the attached session.
func (c *AttachClient) Write(data []byte) error {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return fmt.Errorf("attach client is closed")
	}
	c.mu.RUnlock()

	if _, err := c.Process.PTY.Write(data); err != nil {
		return fmt.Errorf("failed to write to attach client: %w", err)
	}
	if c.Recorder != nil {
		c.Recorder.WriteInput(data)
	}
	return nil
}

// Resize resizes the viewer terminal.
func (c *AttachClient) Resize(rows, cols uint16) error {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return fmt.Errorf("attach client is closed")
	}
	c.mu.RUnlock()

	return c.Process.PTY.Resize(rows, cols)
}

// History returns the scrollback seen so far.
func (c *AttachClient) History() []byte {
	return c.Scrollback.ReadAll()
}

// SetOutputCallback replaces the output callback.
func (c *AttachClient) SetOutputCallback(cb func(data []byte)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.OutputCallback = cb
}

func (c *AttachClient) outputCallback() func(data []byte) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.OutputCallback
}

func (c *AttachClient) exitCallback() func(exitCode int, err error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ExitCallback
}

// Close kills the attach client and releases its resources. Safe to
// call more than once.
func (c *AttachClient) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.closedCh)
	c.mu.Unlock()

	var firstErr error
	if err := c.Process.Kill(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := c.Process.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if c.Recorder != nil {
		if err := c.Recorder.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// IsClosed reports whether the client has been closed.
func (c *AttachClient) IsClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// ClosedChan is closed when the attach client exits.
func (c *AttachClient) ClosedChan() <-chan struct{} {
	return c.closedCh
}
