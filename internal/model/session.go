package model

import (
	"strings"
	"time"
)

// Session describes a multiplexer session as the observation API reports
// it: the live state queried from tmux, enriched with journal metadata
// when the session was created through smux.
type Session struct {
	Name        string     `json:"name"`
	Command     string     `json:"command,omitempty"`
	Alive       bool       `json:"alive"`
	PreviewLine string     `json:"previewLine,omitempty"`
	LogFilePath string     `json:"logFilePath,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	KilledAt    *time.Time `json:"killedAt,omitempty"`
}

// Duration returns how long the session has existed (or existed for,
// when it has already been killed).
func (s *Session) Duration() time.Duration {
	if s.KilledAt != nil {
		return s.KilledAt.Sub(s.CreatedAt)
	}
	return time.Since(s.CreatedAt)
}

// CreateSessionRequest represents a request to create a new session.
// An empty Name asks for an auto-allocated one; an empty Command falls
// back to the default shell.
type CreateSessionRequest struct {
	Name    string `json:"name"`
	Command string `json:"command"`
}

// Validate validates the create session request.
func (r *CreateSessionRequest) Validate() error {
	if r.Name != "" && !ValidSessionName(r.Name) {
		return ErrInvalidSessionName
	}
	return nil
}

// ValidSessionName reports whether name is usable as a tmux session
// name. tmux reserves ':' and '.' as target separators, and names with
// whitespace break every downstream shell invocation.
func ValidSessionName(name string) bool {
	if name == "" {
		return false
	}
	return !strings.ContainsAny(name, ":. \t\n")
}
