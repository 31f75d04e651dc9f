// Package handlers provides HTTP API request handlers.
package handlers

import (
	"errors"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/agent-sandbox/smux/internal/model"
	"github.com/agent-sandbox/smux/internal/mux"
	"github.com/agent-sandbox/smux/internal/preview"
	"github.com/agent-sandbox/smux/internal/repository"
	"github.com/agent-sandbox/smux/internal/session"
	"github.com/agent-sandbox/smux/internal/ws"
)

// previewCaptureLines is how many pane lines are captured to derive a
// session's preview line.
const previewCaptureLines = 20

// SessionHandler handles HTTP requests for session management. Live
// state always comes from the multiplexer; the journal only enriches it
// with creation metadata.
type SessionHandler struct {
	manager   *session.Manager
	mux       mux.Multiplexer
	journal   *repository.Journal
	wsService *ws.Service

	// logDir is where the bridge writes recordings; empty disables them.
	logDir string
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(manager *session.Manager, m mux.Multiplexer, journal *repository.Journal, wsService *ws.Service, logDir string) *SessionHandler {
	return &SessionHandler{
		manager:   manager,
		mux:       m,
		journal:   journal,
		wsService: wsService,
		logDir:    logDir,
	}
}

// SessionResponse represents a session in API responses.
type SessionResponse struct {
	Name        string `json:"name"`
	Command     string `json:"command,omitempty"`
	Alive       bool   `json:"alive"`
	Created     bool   `json:"created,omitempty"`
	Viewers     int    `json:"viewers"`
	PreviewLine string `json:"previewLine,omitempty"`
	LogFilePath string `json:"logFilePath,omitempty"`
	Duration    string `json:"duration,omitempty"`
	CreatedAt   string `json:"createdAt,omitempty"`
	KilledAt    string `json:"killedAt,omitempty"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error details.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// sendError sends an error response with the appropriate status code.
func sendError(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// toSessionResponse converts a model.Session to SessionResponse.
func toSessionResponse(s *model.Session) *SessionResponse {
	resp := &SessionResponse{
		Name:        s.Name,
		Command:     s.Command,
		Alive:       s.Alive,
		PreviewLine: s.PreviewLine,
		LogFilePath: s.LogFilePath,
	}
	if !s.CreatedAt.IsZero() {
		resp.CreatedAt = s.CreatedAt.Format(time.RFC3339)
		resp.Duration = formatDuration(s.Duration())
	}
	if s.KilledAt != nil {
		resp.KilledAt = s.KilledAt.Format(time.RFC3339)
	}
	return resp
}

// formatDuration formats a duration as a human-readable string.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return time.Duration(h*time.Hour + m*time.Minute + s*time.Second).String()
	}
	if m > 0 {
		return time.Duration(m*time.Minute + s*time.Second).String()
	}
	return time.Duration(s * time.Second).String()
}

// enrich fills a live session's metadata from its open journal row, if
// one exists. Sessions created outside smux stay bare.
func (h *SessionHandler) enrich(c *gin.Context, s *model.Session) {
	entry, err := h.journal.Current(c.Request.Context(), s.Name)
	if err != nil {
		return
	}
	s.Command = entry.Command
	s.LogFilePath = entry.LogFilePath
	s.CreatedAt = entry.CreatedAt
	s.KilledAt = entry.KilledAt
}

// List handles GET /api/sessions - lists all live sessions.
func (h *SessionHandler) List(c *gin.Context) {
	names, err := h.mux.Sessions()
	if err != nil {
		sendError(c, http.StatusBadGateway, "MUX_ERROR", "Failed to list sessions: "+err.Error())
		return
	}

	response := make([]*SessionResponse, 0, len(names))
	for _, name := range names {
		s := &model.Session{Name: name, Alive: true}
		h.enrich(c, s)

		if capture, err := h.mux.CapturePane(name, previewCaptureLines); err == nil {
			s.PreviewLine = preview.Line(capture)
		}

		resp := toSessionResponse(s)
		if h.wsService != nil {
			resp.Viewers = h.wsService.ViewerCount(name)
		}
		response = append(response, resp)
	}

	c.JSON(http.StatusOK, response)
}

// Create handles POST /api/sessions - find-or-create a session. An
// empty name allocates the first free phonetic name; an empty command
// falls back to the default shell. Finding an existing session is not
// an error: the response says whether one was created.
func (h *SessionHandler) Create(c *gin.Context) {
	var req model.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body: "+err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	name := req.Name
	if name == "" {
		name = h.manager.AllocateName()
	}
	command := req.Command
	if command == "" {
		command = h.manager.DefaultCommand()
	}

	created, err := h.manager.Ensure(name, command)
	if err != nil {
		var muxErr *mux.Error
		if errors.As(err, &muxErr) {
			sendError(c, http.StatusBadGateway, "MUX_ERROR", muxErr.Output)
			return
		}
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create session: "+err.Error())
		return
	}

	s := &model.Session{Name: name, Alive: true}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
		logPath := ""
		if h.logDir != "" {
			logPath = filepath.Join(h.logDir, name+".cast")
		}
		if _, err := h.journal.RecordCreated(c.Request.Context(), name, command, logPath); err != nil {
			// The session exists either way; journal loss only costs
			// metadata.
			sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Session created but not journaled: "+err.Error())
			return
		}
	}
	h.enrich(c, s)

	resp := toSessionResponse(s)
	resp.Created = created
	c.JSON(status, resp)
}

// Get handles GET /api/sessions/:name - gets a specific session. A dead
// session with journal history is still reported, with alive=false.
func (h *SessionHandler) Get(c *gin.Context) {
	name := c.Param("name")

	alive := h.mux.HasSession(name)
	s := &model.Session{Name: name, Alive: alive}

	entry, err := h.journal.Current(c.Request.Context(), name)
	if err == nil {
		s.Command = entry.Command
		s.LogFilePath = entry.LogFilePath
		s.CreatedAt = entry.CreatedAt
		s.KilledAt = entry.KilledAt
	} else if !errors.Is(err, model.ErrSessionNotFound) {
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to read journal: "+err.Error())
		return
	}

	if !alive && err != nil {
		// Fall back to the most recent historical entry before giving up.
		history, histErr := h.journal.History(c.Request.Context(), name)
		if histErr != nil || len(history) == 0 {
			sendError(c, http.StatusNotFound, "SESSION_NOT_FOUND", "Session "+name+" not found")
			return
		}
		latest := history[0]
		s.Command = latest.Command
		s.LogFilePath = latest.LogFilePath
		s.CreatedAt = latest.CreatedAt
		s.KilledAt = latest.KilledAt
	}

	if alive {
		if capture, err := h.mux.CapturePane(name, previewCaptureLines); err == nil {
			s.PreviewLine = preview.Line(capture)
		}
	}

	resp := toSessionResponse(s)
	if h.wsService != nil {
		resp.Viewers = h.wsService.ViewerCount(name)
	}
	c.JSON(http.StatusOK, resp)
}

// Delete handles DELETE /api/sessions/:name - kills a session.
func (h *SessionHandler) Delete(c *gin.Context) {
	name := c.Param("name")

	if !h.mux.HasSession(name) {
		sendError(c, http.StatusNotFound, "SESSION_NOT_FOUND", "Session "+name+" not found")
		return
	}

	if err := h.manager.Kill(name); err != nil {
		var muxErr *mux.Error
		if errors.As(err, &muxErr) {
			sendError(c, http.StatusBadGateway, "MUX_ERROR", muxErr.Output)
			return
		}
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to kill session: "+err.Error())
		return
	}

	// Disconnect any viewers, then close out the journal row.
	if h.wsService != nil {
		h.wsService.DetachSession(name)
	}
	if err := h.journal.RecordKilled(c.Request.Context(), name); err != nil {
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Session killed but not journaled: "+err.Error())
		return
	}

	c.Status(http.StatusNoContent)
}

// GetLogs handles GET /api/sessions/:name/logs - downloads the
// session's asciicast recording, if the bridge has recorded one.
func (h *SessionHandler) GetLogs(c *gin.Context) {
	name := c.Param("name")

	entry, err := h.journal.Current(c.Request.Context(), name)
	if errors.Is(err, model.ErrSessionNotFound) {
		history, histErr := h.journal.History(c.Request.Context(), name)
		if histErr != nil || len(history) == 0 {
			sendError(c, http.StatusNotFound, "SESSION_NOT_FOUND", "Session "+name+" not found")
			return
		}
		entry = history[0]
	} else if err != nil {
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to read journal: "+err.Error())
		return
	}

	if entry.LogFilePath == "" {
		sendError(c, http.StatusNotFound, "LOG_NOT_FOUND", "No recording for session "+name)
		return
	}

	c.Header("Content-Type", "application/x-asciicast")
	c.Header("Content-Disposition", "attachment; filename="+name+".cast")
	c.File(entry.LogFilePath)
}

// RegisterRoutes registers the session handler routes on a Gin router group.
func (h *SessionHandler) RegisterRoutes(rg *gin.RouterGroup) {
	sessions := rg.Group("/sessions")
	{
		sessions.POST("", h.Create)
		sessions.GET("", h.List)
		sessions.GET("/:name", h.Get)
		sessions.DELETE("/:name", h.Delete)
		sessions.GET("/:name/logs", h.GetLogs)
	}
}
