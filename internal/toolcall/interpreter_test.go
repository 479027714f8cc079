package toolcall

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talesmith-ai/talesmith/internal/llm"
)

func call(args string) llm.ToolCall {
	return llm.ToolCall{
		ID:   "call_1",
		Type: "function",
		Function: llm.FunctionCall{
			Name:      UpdateInterfaceTool,
			Arguments: args,
		},
	}
}

func TestResolveValidArguments(t *testing.T) {
	res := Resolve(call(`{"code": "<div>Hi</div>"}`))

	require.True(t, res.OK())
	assert.Equal(t, "call_1", res.CallID)
	instr, ok := res.Instruction.(UpdateInterface)
	require.True(t, ok)
	assert.Equal(t, "<div>Hi</div>", instr.Code)
}

func TestResolveRepairsRawNewlineInString(t *testing.T) {
	// A raw newline inside a JSON string value is invalid; repair escapes it
	// and the second parse succeeds.
	res := Resolve(call("{\"code\": \"<div>Hi</div>\n\"}"))

	require.True(t, res.OK())
	instr := res.Instruction.(UpdateInterface)
	assert.Equal(t, "<div>Hi</div>\n", instr.Code)
}

func TestResolveRepairsEscapedApostrophe(t *testing.T) {
	res := Resolve(call(`{"code": "the dragon\'s lair"}`))

	require.True(t, res.OK())
	instr := res.Instruction.(UpdateInterface)
	assert.Equal(t, "the dragon's lair", instr.Code)
}

func TestResolveFailsWhenRepairDoesNotHelp(t *testing.T) {
	res := Resolve(call(`{"code": `))

	require.False(t, res.OK())
	assert.NotEmpty(t, res.Failure.Message)
	assert.Contains(t, res.Failure.Hint, UpdateInterfaceTool)
}

func TestResolveRejectsEmptyCode(t *testing.T) {
	res := Resolve(call(`{"code": ""}`))

	require.False(t, res.OK())
	assert.Contains(t, res.Failure.Message, "empty code")
}

func TestResolveUnknownTool(t *testing.T) {
	res := Resolve(llm.ToolCall{
		ID:       "call_2",
		Function: llm.FunctionCall{Name: "teleport_player", Arguments: `{}`},
	})

	require.False(t, res.OK())
	assert.Contains(t, res.Failure.Message, "teleport_player")
}

func TestRepairEscapesControlCharsOnlyInsideStrings(t *testing.T) {
	// Newlines between JSON tokens are legal and must survive.
	in := "{\n\"code\": \"a\nb\"\n}"
	want := "{\n\"code\": \"a\\nb\"\n}"
	assert.Equal(t, want, Repair(in))
}

func TestRepairPreservesExistingEscapes(t *testing.T) {
	in := `{"code": "line\nbreak \"quoted\""}`
	assert.Equal(t, in, Repair(in))
}

func TestRepairKeepsEscapedBackslashBeforeApostrophe(t *testing.T) {
	// \\' is legal JSON (escaped backslash, then a plain apostrophe); the
	// apostrophe fix must not eat the second backslash.
	in := `{"code": "dir\\'s contents"}`
	assert.Equal(t, in, Repair(in))
}

func TestResolveRepairPreservesEscapedBackslash(t *testing.T) {
	// Broken by a raw newline but also containing a legal \\' sequence; the
	// repair pass must fix the newline without corrupting the backslash.
	res := Resolve(call("{\"code\": \"a\\\\'b\nc\"}"))

	require.True(t, res.OK())
	instr := res.Instruction.(UpdateInterface)
	assert.Equal(t, "a\\'b\nc", instr.Code)
}

func TestRepairTab(t *testing.T) {
	in := "{\"code\": \"a\tb\"}"
	assert.Equal(t, `{"code": "a\tb"}`, Repair(in))
}
