package ws

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/agent-sandbox/smux/internal/pty"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 8192
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler upgrades viewer connections and wires them to the session's
// attach client.
type Handler struct {
	hubManager *HubManager
	bridge     *pty.Bridge
}

// NewHandler creates a WebSocket handler over the given bridge.
func NewHandler(hubManager *HubManager, bridge *pty.Bridge) *Handler {
	return &Handler{
		hubManager: hubManager,
		bridge:     bridge,
	}
}

// HandleConnection upgrades an HTTP request to a viewer connection for
// the named session, attaching the bridge to the session if this is the
// first viewer.
func (h *Handler) HandleConnection(w http.ResponseWriter, r *http.Request, sessionName string) error {
	// Upgrade before touching the bridge: a failed upgrade registers no
	// viewer, so an attach started here would run (and record) with
	// nobody watching until something else tore it down.
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	attach, err := h.bridge.Attach(pty.AttachOptions{
		SessionName: sessionName,
		OutputCallback: func(data []byte) {
			h.BroadcastOutput(sessionName, data)
		},
		ExitCallback: func(exitCode int, err error) {
			h.broadcastExit(sessionName, exitCode, err)
		},
	})
	if err != nil {
		msg, _ := json.Marshal(&Message{
			Type:  MessageTypeError,
			Error: "failed to attach: " + err.Error(),
		})
		conn.WriteMessage(websocket.TextMessage, msg)
		conn.Close()
		return err
	}

	hub := h.hubManager.GetOrCreate(sessionName)

	client := NewClient(hub, conn, sessionName)
	hub.Register(client)

	hub.SetOnMessage(func(c *Client, msg *Message) {
		h.handleMessage(c, msg, attach)
	})

	// The attach client may predate this hub's current callback wiring;
	// refresh it on every connection.
	attach.SetOutputCallback(func(data []byte) {
		h.BroadcastOutput(sessionName, data)
	})

	// Replay the scrollback so a late viewer sees the session as it is,
	// not a blank screen.
	h.sendHistory(client, attach)

	go h.writePump(client)
	go h.readPump(client, hub)

	return nil
}

// sendHistory sends the buffered scrollback to a freshly joined viewer.
func (h *Handler) sendHistory(client *Client, attach *pty.AttachClient) {
	history := attach.History()
	if len(history) == 0 {
		return
	}

	msg := &Message{
		Type: MessageTypeHistory,
		Data: string(history),
	}

	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("Failed to marshal history message: %v", err)
		return
	}

	client.Send(data)
}

// handleMessage processes incoming messages from viewers.
func (h *Handler) handleMessage(client *Client, msg *Message, attach *pty.AttachClient) {
	switch msg.Type {
	case MessageTypeStdin:
		h.handleStdin(client, msg, attach)
	case MessageTypeResize:
		h.handleResize(msg, attach)
	case MessageTypePing:
		h.handlePing(client)
	}
}

// handleStdin forwards viewer keystrokes to the attached session.
func (h *Handler) handleStdin(client *Client, msg *Message, attach *pty.AttachClient) {
	if msg.Data == "" {
		return
	}

	if err := attach.Write([]byte(msg.Data)); err != nil {
		log.Printf("Failed to write to attach client: %v", err)
		h.BroadcastError(client.Session(), "session input failed: "+err.Error())
	}
}

// handleResize resizes the attach client's terminal.
func (h *Handler) handleResize(msg *Message, attach *pty.AttachClient) {
	if msg.Rows == 0 || msg.Cols == 0 {
		return
	}

	if err := attach.Resize(msg.Rows, msg.Cols); err != nil {
		log.Printf("Failed to resize attach client: %v", err)
	}
}

// handlePing answers a viewer's application-level ping.
func (h *Handler) handlePing(client *Client) {
	msg := &Message{Type: MessageTypePong}
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	client.Send(data)
}

// readPump pumps messages from the WebSocket connection to the hub.
func (h *Handler) readPump(client *Client, hub *Hub) {
	defer func() {
		hub.Unregister(client)
		client.Conn().Close()
	}()

	client.Conn().SetReadLimit(maxMessageSize)
	client.Conn().SetReadDeadline(time.Now().Add(pongWait))
	client.Conn().SetPongHandler(func(string) error {
		client.Conn().SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := client.Conn().ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		var msg Message
		if err := json.Unmarshal(message, &msg); err != nil {
			log.Printf("Failed to unmarshal message: %v", err)
			continue
		}

		hub.HandleMessage(client, &msg)
	}
}

// writePump pumps messages from the hub to the WebSocket connection.
func (h *Handler) writePump(client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.Conn().Close()
	}()

	for {
		select {
		case message, ok := <-client.SendChan():
			client.Conn().SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel
				client.Conn().WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			// One message per frame so viewers can JSON-decode each frame
			// on its own.
			if err := client.Conn().WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

			n := len(client.SendChan())
			for i := 0; i < n; i++ {
				queuedMsg := <-client.SendChan()
				client.Conn().SetWriteDeadline(time.Now().Add(writeWait))
				if err := client.Conn().WriteMessage(websocket.TextMessage, queuedMsg); err != nil {
					return
				}
			}
		case <-ticker.C:
			client.Conn().SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.Conn().WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// BroadcastOutput broadcasts attach output to all connected viewers.
// ANSI sequences pass through untouched; the viewer's terminal emulator
// interprets them.
func (h *Handler) BroadcastOutput(sessionName string, data []byte) {
	hub := h.hubManager.Get(sessionName)
	if hub == nil {
		return
	}

	msg := &Message{
		Type: MessageTypeStdout,
		Data: string(data),
	}
	hub.BroadcastMessage(msg)
}

// broadcastExit tells viewers the attach client ended.
func (h *Handler) broadcastExit(sessionName string, exitCode int, err error) {
	state := "detached"
	var code *int
	if err != nil {
		state = "failed"
	} else {
		code = &exitCode
	}
	h.BroadcastStatus(sessionName, state, code)
}

// BroadcastStatus broadcasts a session state change to all viewers.
func (h *Handler) BroadcastStatus(sessionName string, state string, exitCode *int) {
	hub := h.hubManager.Get(sessionName)
	if hub == nil {
		return
	}

	msg := &Message{
		Type:  MessageTypeStatus,
		State: state,
		Code:  exitCode,
	}
	hub.BroadcastMessage(msg)
}

// BroadcastError broadcasts an error message to all viewers.
func (h *Handler) BroadcastError(sessionName string, errMsg string) {
	hub := h.hubManager.Get(sessionName)
	if hub == nil {
		return
	}

	msg := &Message{
		Type:  MessageTypeError,
		Error: errMsg,
	}
	hub.BroadcastMessage(msg)
}

// SetCheckOrigin sets a custom origin checker for the WebSocket upgrader.
func SetCheckOrigin(fn func(r *http.Request) bool) {
	upgrader.CheckOrigin = fn
}
