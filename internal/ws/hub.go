// Package ws fans one bridged attach stream out to WebSocket viewers.
package ws

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
)

// MessageType represents the type of a WebSocket message.
type MessageType string

const (
	// Viewer -> server message types.
	MessageTypeStdin  MessageType = "stdin"
	MessageTypeResize MessageType = "resize"
	MessageTypePing   MessageType = "ping"

	// Server -> viewer message types.
	MessageTypeStdout  MessageType = "stdout"
	MessageTypeHistory MessageType = "history"
	MessageTypeStatus  MessageType = "status"
	MessageTypePong    MessageType = "pong"
	MessageTypeError   MessageType = "error"
)

// Message is the wire format between server and viewers.
type Message struct {
	Type  MessageType `json:"type"`
	Data  string      `json:"data,omitempty"`
	Rows  uint16      `json:"rows,omitempty"`
	Cols  uint16      `json:"cols,omitempty"`
	State string      `json:"state,omitempty"`
	Code  *int        `json:"code,omitempty"`
	Error string      `json:"error,omitempty"`
}

// Client is one connected viewer.
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	session string
	send    chan []byte
	mu      sync.Mutex
	closed  bool
}

// NewClient creates a viewer client for the given session.
func NewClient(hub *Hub, conn *websocket.Conn, session string) *Client {
	return &Client{
		hub:     hub,
		conn:    conn,
		session: session,
		send:    make(chan []byte, 256),
	}
}

// Send queues a message for the viewer. A viewer that cannot keep up is
// dropped rather than allowed to stall the broadcast.
func (c *Client) Send(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	select {
	case c.send <- data:
	default:
		c.closeLocked()
	}
}

// Close closes the client.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
}

func (c *Client) closeLocked() {
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// Session returns the session this viewer watches.
func (c *Client) Session() string {
	return c.session
}

// Conn returns the underlying WebSocket connection.
func (c *Client) Conn() *websocket.Conn {
	return c.conn
}

// SendChan returns the outbound queue, consumed by the write pump.
func (c *Client) SendChan() <-chan []byte {
	return c.send
}

// Hub is the set of viewers watching one session.
type Hub struct {
	session string

	mu      sync.RWMutex
	clients map[*Client]bool

	onMessage func(client *Client, msg *Message)
	onEmpty   func()
}

// NewHub creates a Hub for the given session.
func NewHub(session string) *Hub {
	return &Hub{
		session: session,
		clients: make(map[*Client]bool),
	}
}

// Session returns the session this hub serves.
func (h *Hub) Session() string {
	return h.session
}

// SetOnMessage sets the callback for inbound viewer messages.
func (h *Hub) SetOnMessage(callback func(client *Client, msg *Message)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onMessage = callback
}

// SetOnEmpty sets the callback invoked when the last viewer leaves.
func (h *Hub) SetOnEmpty(callback func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onEmpty = callback
}

// Register adds a viewer.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client] = true
}

// Unregister removes a viewer, firing the on-empty callback if it was
// the last one.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	delete(h.clients, client)
	remaining := len(h.clients)
	onEmpty := h.onEmpty
	h.mu.Unlock()

	client.Close()

	if remaining == 0 && onEmpty != nil {
		onEmpty()
	}
}

// Broadcast sends raw bytes to every viewer.
func (h *Hub) Broadcast(data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		client.Send(data)
	}
}

// BroadcastMessage sends a Message to every viewer.
func (h *Hub) BroadcastMessage(msg *Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	h.Broadcast(data)
	return nil
}

// ClientCount returns the number of connected viewers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleMessage routes an inbound message to the message callback.
func (h *Hub) HandleMessage(client *Client, msg *Message) {
	h.mu.RLock()
	callback := h.onMessage
	h.mu.RUnlock()

	if callback != nil {
		callback(client, msg)
	}
}

// Close disconnects every viewer.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.clients = make(map[*Client]bool)
	h.mu.Unlock()

	for _, client := range clients {
		client.Close()
	}
}

// HubManager holds the hub for each watched session.
type HubManager struct {
	mu   sync.RWMutex
	hubs map[string]*Hub
}

// NewHubManager creates an empty HubManager.
func NewHubManager() *HubManager {
	return &HubManager{hubs: make(map[string]*Hub)}
}

// GetOrCreate returns the session's hub, creating it if needed.
func (m *HubManager) GetOrCreate(session string) *Hub {
	m.mu.Lock()
	defer m.mu.Unlock()

	if hub, ok := m.hubs[session]; ok {
		return hub
	}
	hub := NewHub(session)
	m.hubs[session] = hub
	return hub
}

// Get returns the session's hub or nil.
func (m *HubManager) Get(session string) *Hub {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.hubs[session]
}

// Remove closes and drops the session's hub.
func (m *HubManager) Remove(session string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if hub, ok := m.hubs[session]; ok {
		hub.Close()
		delete(m.hubs, session)
	}
}

// Close closes all hubs.
func (m *HubManager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, hub := range m.hubs {
		hub.Close()
	}
	m.hubs = make(map[string]*Hub)
}
