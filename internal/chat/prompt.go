package chat

import (
	"strings"

	"botforge/pkg/domain"
)

// BuildPrompt flattens persona, knowledge, and conversation history into the
// single text payload sent to the generation endpoint. The knowledge section
// appears only when knowledge is non-empty, the history section only when
// prior turns exist. No truncation is applied: arbitrarily long histories and
// knowledge blobs pass through as-is.
func BuildPrompt(name, description, knowledge string, history []domain.Turn, userText string) string {
	var b strings.Builder
	b.WriteString("You are ")
	b.WriteString(name)
	b.WriteString(". ")
	b.WriteString(description)
	b.WriteString("\n\n")
	if knowledge != "" {
		b.WriteString("Use this knowledge to answer questions:\n")
		b.WriteString(knowledge)
	}
	b.WriteString("\n\nRespond to the user's message in a helpful and engaging way.")
	b.WriteString("\n\n")
	if len(history) > 0 {
		b.WriteString("Previous conversation:\n")
		b.WriteString(renderHistory(history))
		b.WriteString("\n")
	}
	b.WriteString("\nUser: ")
	b.WriteString(userText)
	b.WriteString("\nAssistant:")
	return b.String()
}

func renderHistory(history []domain.Turn) string {
	lines := make([]string, 0, len(history))
	for _, turn := range history {
		label := "Assistant"
		if turn.Role == domain.RoleUser {
			label = "User"
		}
		lines = append(lines, label+": "+turn.Text)
	}
	return strings.Join(lines, "\n")
}
