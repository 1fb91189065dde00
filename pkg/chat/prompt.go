package chat

import "strings"

// DefaultSystemPrompt is the fixed instruction prepended to every prompt.
const DefaultSystemPrompt = "You are a direct, technical assistant. " +
	"Use the short chat history and answer clearly, no fluff."

// BuildPrompt renders the windowed transcript into a single completion
// prompt: the system instruction, a separator, one "ROLE: content" line per
// turn, and a trailing assistant cue. Content is inserted verbatim.
func BuildPrompt(systemPrompt string, window Transcript) string {
	var b strings.Builder
	b.WriteString(systemPrompt)
	b.WriteString("\n\nConversation:\n")
	for i, turn := range window {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(strings.ToUpper(turn.Role))
		b.WriteString(": ")
		b.WriteString(turn.Content)
	}
	b.WriteString("\nASSISTANT:")
	return b.String()
}
