package history

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWindowBound(t *testing.T) {
	h := New(5)

	for i := 0; i < 12; i++ {
		h.Append(RoleUser, fmt.Sprintf("turn %d", i))
	}

	turns := h.Turns()
	require.Len(t, turns, 5)

	// The most recent 5 in original relative order.
	for i, turn := range turns {
		assert.Equal(t, fmt.Sprintf("turn %d", 7+i), turn.Content)
	}
}

func TestAppendUnderWindow(t *testing.T) {
	h := New(20)
	h.Append(RoleUser, "hello")
	h.Append(RoleAssistant, "hi there")

	turns := h.Turns()
	require.Len(t, turns, 2)
	assert.Equal(t, RoleUser, turns[0].Role)
	assert.Equal(t, RoleAssistant, turns[1].Role)
	assert.NotEmpty(t, turns[0].ID)
	assert.False(t, turns[0].CreatedAt.IsZero())
}

func TestReplayMatchesLiveHistory(t *testing.T) {
	live := New(5)
	for i := 0; i < 9; i++ {
		if i%2 == 0 {
			live.Append(RoleUser, fmt.Sprintf("msg %d", i))
		} else {
			live.Append(RoleAssistant, fmt.Sprintf("reply %d <|eot_id|>", i))
		}
	}

	replayed := New(5)
	for _, turn := range live.Turns() {
		replayed.Replay(turn)
	}

	assert.Equal(t, live.Turns(), replayed.Turns())
}

func TestReplayAppliesEvictionWindow(t *testing.T) {
	var stored []Turn
	live := New(3)
	for i := 0; i < 7; i++ {
		stored = append(stored, live.Append(RoleUser, fmt.Sprintf("msg %d", i)))
	}

	// Replaying the full original sequence through a fresh history must land
	// on the same window as live accumulation did.
	replayed := New(3)
	for _, turn := range stored {
		replayed.Replay(turn)
	}

	assert.Equal(t, live.Turns(), replayed.Turns())
}

func TestAppendToolCarriesCorrelationID(t *testing.T) {
	h := New(20)
	turn := h.AppendTool("call_abc123", "Interface updated.")

	assert.Equal(t, RoleTool, turn.Role)
	assert.Equal(t, "call_abc123", turn.ToolCallID)
	assert.Equal(t, "Interface updated.", turn.Content)
}

func TestClear(t *testing.T) {
	h := New(20)
	h.Append(RoleUser, "hello")
	h.Clear()
	assert.Zero(t, h.Len())
}

func TestSanitizeAssistant(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "tool call block",
			in:   "You enter the cave. <tool_call>{\"name\":\"update_interface\"}</tool_call> It is dark.",
			want: "You enter the cave.  It is dark.",
		},
		{
			name: "function marker",
			in:   "Onward! <function=update_interface>{\"code\":\"<div/>\"}</function>",
			want: "Onward!",
		},
		{
			name: "special tokens",
			in:   "The door creaks open.<|eot_id|>",
			want: "The door creaks open.",
		},
		{
			name: "leaked markup fence",
			in:   "Here you go:\n```html\n<div>inventory</div>\n```\nWhat next?",
			want: "Here you go:\n\nWhat next?",
		},
		{
			name: "clean text untouched",
			in:   "A plain sentence with 2 < 3 math.",
			want: "A plain sentence with 2 < 3 math.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeAssistant(tt.in))
		})
	}
}

func TestAppendSanitizesAssistantOnly(t *testing.T) {
	h := New(20)
	h.Append(RoleAssistant, "Hello<|eot_id|>")
	h.Append(RoleUser, "literal <|eot_id|> from the player")

	turns := h.Turns()
	assert.Equal(t, "Hello", turns[0].Content)
	assert.Equal(t, "literal <|eot_id|> from the player", turns[1].Content)
}
