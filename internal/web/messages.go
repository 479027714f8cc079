package web

import "time"

// Message types
const (
	// inbound
	MessageTypeChat          = "chat"
	MessageTypeClear         = "clear"
	MessageTypeLoadSession   = "load_session"
	MessageTypeDeleteSession = "delete_session"
	MessageTypeGetSessions   = "get_sessions"
	MessageTypeGetModels     = "get_models"
	MessageTypeRefreshModels = "refresh_models"

	// outbound
	MessageTypeNarrative     = "narrative"
	MessageTypeUIUpdate      = "ui_update"
	MessageTypeCapacity      = "capacity"
	MessageTypeModelSwitch   = "model_switch"
	MessageTypeRateLimitWait = "rate_limit_wait"
	MessageTypeTurnFailed    = "turn_failed"
	MessageTypeSessions      = "sessions"
	MessageTypeModels        = "models"
	MessageTypeSession       = "session"
	MessageTypeError         = "error"
)

// WebMessage represents a message sent over WebSocket
type WebMessage struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp,omitempty"`

	// chat / narrative
	Content string `json:"content,omitempty"`
	Model   string `json:"model,omitempty"`
	// nil means tools stay enabled; false turns the chat turn into plain
	// narration with no interface update.
	ToolsEnabled *bool `json:"tools_enabled,omitempty"`

	// ui_update
	Code   string `json:"code,omitempty"`
	CallID string `json:"call_id,omitempty"`

	// capacity
	Capacity *CapacityInfo `json:"capacity,omitempty"`

	// model_switch
	FromModel string `json:"from_model,omitempty"`
	ToModel   string `json:"to_model,omitempty"`

	// rate_limit_wait
	Seconds float64 `json:"seconds,omitempty"`

	// turn_failed
	Category  string `json:"category,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
	Error     string `json:"error,omitempty"`

	// sessions / models / session bookkeeping
	SessionID string   `json:"session_id,omitempty"`
	Sessions  []string `json:"sessions,omitempty"`
	Models    []string `json:"models,omitempty"`

	// replayed history on session load
	Turns []TurnInfo `json:"turns,omitempty"`
}

// CapacityInfo is the wire form of a rate-limit snapshot.
type CapacityInfo struct {
	LimitRequests     int     `json:"limit_requests"`
	RemainingRequests int     `json:"remaining_requests"`
	LimitTokens       int     `json:"limit_tokens"`
	RemainingTokens   int     `json:"remaining_tokens"`
	RequestPercent    float64 `json:"request_percent"`
	TokenPercent      float64 `json:"token_percent"`
	Warning           bool    `json:"warning"`
}

// TurnInfo is the wire form of one history turn, sent when a session is
// loaded so the client can rebuild the chat view.
type TurnInfo struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}
