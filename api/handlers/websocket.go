// Package handlers provides HTTP API request handlers.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/agent-sandbox/smux/internal/mux"
	"github.com/agent-sandbox/smux/internal/ws"
)

// WebSocketHandler handles WebSocket attach requests.
type WebSocketHandler struct {
	mux       mux.Multiplexer
	wsService *ws.Service
}

// NewWebSocketHandler creates a new WebSocketHandler.
func NewWebSocketHandler(m mux.Multiplexer, wsService *ws.Service) *WebSocketHandler {
	return &WebSocketHandler{
		mux:       m,
		wsService: wsService,
	}
}

// Attach handles WS /api/sessions/:name/attach - attaches a viewer to a
// live session.
func (h *WebSocketHandler) Attach(c *gin.Context) {
	name := c.Param("name")

	if !h.mux.HasSession(name) {
		sendError(c, http.StatusNotFound, "SESSION_NOT_FOUND", "Session "+name+" not found")
		return
	}

	// Errors past this point go over the upgraded connection.
	h.wsService.Serve(c.Writer, c.Request, name)
}

// RegisterRoutes registers the WebSocket handler routes on a Gin router group.
func (h *WebSocketHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/sessions/:name/attach", h.Attach)
}
