package ws

import (
	"log"
	"net/http"

	"github.com/agent-sandbox/smux/internal/pty"
)

// Service ties the bridge to the WebSocket layer: viewers join a
// session's hub, the bridge holds one attach client per watched
// session, and the attach client is released when the last viewer
// leaves.
type Service struct {
	hubManager *HubManager
	bridge     *pty.Bridge
	handler    *Handler
}

// NewService creates a WebSocket service over the given bridge.
func NewService(bridge *pty.Bridge) *Service {
	hubManager := NewHubManager()
	handler := NewHandler(hubManager, bridge)

	return &Service{
		hubManager: hubManager,
		bridge:     bridge,
		handler:    handler,
	}
}

// Handler returns the WebSocket handler.
func (s *Service) Handler() *Handler {
	return s.handler
}

// HubManager returns the hub manager.
func (s *Service) HubManager() *HubManager {
	return s.hubManager
}

// Serve connects a viewer to a session. The hub's on-empty callback is
// installed here so the bridge detaches once nobody is watching — the
// tmux session itself keeps running.
func (s *Service) Serve(w http.ResponseWriter, r *http.Request, sessionName string) error {
	hub := s.hubManager.GetOrCreate(sessionName)
	hub.SetOnEmpty(func() {
		if err := s.bridge.Detach(sessionName); err == nil {
			log.Printf("Last viewer left session %s, detached", sessionName)
		}
		s.hubManager.Remove(sessionName)
	})

	return s.handler.HandleConnection(w, r, sessionName)
}

// DetachSession disconnects all viewers of a session and releases its
// attach client. Called when a session is killed.
func (s *Service) DetachSession(sessionName string) {
	s.hubManager.Remove(sessionName)
	s.bridge.Detach(sessionName)
}

// ViewerCount returns the number of connected viewers for a session.
func (s *Service) ViewerCount(sessionName string) int {
	hub := s.hubManager.Get(sessionName)
	if hub == nil {
		return 0
	}
	return hub.ClientCount()
}

// Close disconnects every viewer and closes all attach clients.
func (s *Service) Close() {
	s.hubManager.Close()
	s.bridge.Close()
}
