package llm

// Message is one entry of the outbound chat-completion message list. Only the
// wire-relevant fields are carried; local bookkeeping (turn ids, timestamps)
// stays in the history package and must never reach the provider.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolCall is a function invocation requested by the model.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall carries the function name and its raw argument string. The
// argument string is opaque here; decoding and repair happen in the toolcall
// package.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolDefinition describes one callable function offered to the model.
type ToolDefinition struct {
	Type     string             `json:"type"`
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition is the JSON-schema description of a function.
type FunctionDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"`
}

// Tool choice modes accepted by the provider.
const (
	ToolChoiceAuto     = "auto"
	ToolChoiceRequired = "required"
	ToolChoiceNone     = "none"
)

// CompletionRequest represents one chat-completion call.
type CompletionRequest struct {
	Model       string           `json:"model"`
	Messages    []Message        `json:"messages"`
	Tools       []ToolDefinition `json:"tools,omitempty"`
	ToolChoice  string           `json:"tool_choice,omitempty"`
	Temperature float64          `json:"temperature"`
	TopP        float64          `json:"top_p,omitempty"`
	MaxTokens   int              `json:"max_tokens,omitempty"`
}

// ModelInfo is one entry of the provider's model listing.
type ModelInfo struct {
	ID                  string `json:"id"`
	OwnedBy             string `json:"owned_by,omitempty"`
	Active              bool   `json:"active,omitempty"`
	ContextWindow       int    `json:"context_window,omitempty"`
	MaxCompletionTokens int    `json:"max_completion_tokens,omitempty"`
}
