package history

import (
	"regexp"
	"strings"
)

// Models occasionally leak their tool-call plumbing into plain narrative
// text instead of (or in addition to) the structured tool_calls field. These
// fragments must never reach the client or be replayed into later prompts.
var (
	// <tool_call>{...}</tool_call> blocks, the most common leak.
	toolCallBlockPattern = regexp.MustCompile(`(?s)<tool_call>.*?</tool_call>`)

	// Llama-style <function=name>{...}</function> markers.
	functionMarkerPattern = regexp.MustCompile(`(?s)<function=[^>]*>.*?</function>`)

	// Special chat-template tokens such as <|eot_id|> or <|python_tag|>.
	specialTokenPattern = regexp.MustCompile(`<\|[^|>]*\|>`)

	// Raw interface markup dumped as prose instead of through the tool.
	leakedMarkupPattern = regexp.MustCompile("(?s)```(?:html|jsx?)\\n.*?```")
)

// SanitizeAssistant strips internal protocol markers and leaked markup
// fragments from assistant narrative before it is stored or shown.
func SanitizeAssistant(content string) string {
	content = toolCallBlockPattern.ReplaceAllString(content, "")
	content = functionMarkerPattern.ReplaceAllString(content, "")
	content = specialTokenPattern.ReplaceAllString(content, "")
	content = leakedMarkupPattern.ReplaceAllString(content, "")
	return strings.TrimSpace(content)
}
