// Package prompt holds the fixed game-master system prompt and the tool
// schema offered to the model.
package prompt

import (
	"github.com/talesmith-ai/talesmith/internal/llm"
	"github.com/talesmith-ai/talesmith/internal/toolcall"
)

// System is the game-master prompt. It is prepended to every outbound
// message list and never stored in conversation history.
const System = `You are the game master of an interactive text adventure. ` +
	`Narrate the world vividly in second person, react to whatever the player tries, ` +
	`and keep the story moving with concrete situations and choices. ` +
	`Track the fiction in your own words; there is no hidden game state beyond this conversation. ` +
	`Whenever the scene, the player's options, or their belongings change meaningfully, call the ` +
	toolcall.UpdateInterfaceTool + ` tool with a single self-contained HTML fragment that renders ` +
	`the game's interactive surface (scene art placeholder, status line, action buttons). ` +
	`The tool takes one JSON object with one "code" string field. ` +
	`Keep the fragment small, avoid raw newlines inside the JSON string, and never paste interface ` +
	`code into your narration.`

// ToolResultAck is the fixed acknowledgement stored as the synthetic tool
// turn after a successful interface update.
const ToolResultAck = "Interface updated and shown to the player."

// Tools returns the tool definitions attached to provider calls.
func Tools() []llm.ToolDefinition {
	return []llm.ToolDefinition{
		{
			Type: "function",
			Function: llm.FunctionDefinition{
				Name:        toolcall.UpdateInterfaceTool,
				Description: "Replace the game's interactive surface with a new HTML fragment.",
				Parameters: map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"code": map[string]interface{}{
							"type":        "string",
							"description": "A self-contained HTML fragment for the game's current interactive surface.",
						},
					},
					"required": []string{"code"},
				},
			},
		},
	}
}
