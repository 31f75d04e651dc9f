package model

import "errors"

var (
	// ErrSessionNameRequired is returned when an operation that needs an
	// explicit session name (kill) is invoked without one.
	ErrSessionNameRequired = errors.New("session name is required")

	// ErrInvalidSessionName is returned when a session name contains
	// characters tmux cannot accept.
	ErrInvalidSessionName = errors.New("invalid session name")

	// ErrSessionNotFound is returned when a session is not found.
	ErrSessionNotFound = errors.New("session not found")
)
