// Package session ties one game's conversation history to a stable id and
// persists it for resume.
package session

import (
	"time"

	"github.com/google/uuid"

	"github.com/talesmith-ai/talesmith/internal/history"
)

// Session is one running game.
type Session struct {
	ID        string
	CreatedAt time.Time
	History   *history.History
}

// New creates a fresh session with an empty history.
func New(window int) *Session {
	return &Session{
		ID:        uuid.NewString(),
		CreatedAt: time.Now(),
		History:   history.New(window),
	}
}
