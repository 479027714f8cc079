// Package history holds the bounded, append-only conversation log for one
// game session.
package history

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Turn roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
	RoleTool      = "tool"
)

// DefaultWindow is the number of most recent turns kept for context.
const DefaultWindow = 20

// Turn is one message in the conversation. Immutable once appended; assistant
// content is sanitized before it gets here.
type Turn struct {
	ID         string    `json:"id"`
	Role       string    `json:"role"`
	Content    string    `json:"content"`
	ToolCallID string    `json:"tool_call_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// History is the ordered turn log, bounded to the most recent window turns.
// Oldest turns are evicted first. Only the orchestrator appends; everyone
// else reads copies.
type History struct {
	mu     sync.RWMutex
	turns  []Turn
	window int
}

// New creates an empty history with the given eviction window.
func New(window int) *History {
	if window <= 0 {
		window = DefaultWindow
	}
	return &History{window: window}
}

// Append adds a turn. Assistant content is sanitized on the way in so leaked
// protocol markers never persist. Returns the stored turn.
func (h *History) Append(role, content string) Turn {
	if role == RoleAssistant {
		content = SanitizeAssistant(content)
	}
	return h.push(Turn{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	})
}

// AppendTool adds a synthetic tool-result turn keyed by the originating call's
// correlation id.
func (h *History) AppendTool(toolCallID, content string) Turn {
	return h.push(Turn{
		ID:         uuid.NewString(),
		Role:       RoleTool,
		Content:    content,
		ToolCallID: toolCallID,
		CreatedAt:  time.Now().UTC(),
	})
}

// Replay re-adds a previously persisted turn verbatim. Stored content was
// already sanitized at live-append time, so replaying must not sanitize again
// or the replayed history could diverge from the live one.
func (h *History) Replay(t Turn) {
	h.push(t)
}

func (h *History) push(t Turn) Turn {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.turns = append(h.turns, t)
	if len(h.turns) > h.window {
		h.turns = append(h.turns[:0], h.turns[len(h.turns)-h.window:]...)
	}
	return t
}

// Turns returns a copy of the current window, oldest first.
func (h *History) Turns() []Turn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]Turn(nil), h.turns...)
}

// Len returns the number of retained turns.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.turns)
}

// Clear drops all turns, used on new-game and load-game.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = nil
}
