package summarize

import (
	"strings"

	"github.com/dgallion1/convoscope/internal/conversation"
)

const SummaryPrompt = `You are a helpful assistant that summarizes a single conversation. Provide one concise bullet point describing only the main topic of the conversation.
If the conversation is inappropriate, mark it as "INAPPROPRIATE TO SUMMARIZE" instead of summarizing.
Do not use any formatting or special characters other than the bullet point itself.`

// BuildPrompt renders the summary prompt for one conversation.
func BuildPrompt(doc conversation.Document) string {
	var sb strings.Builder
	sb.WriteString(SummaryPrompt)
	sb.WriteString("\n\nConversation:\n")
	sb.WriteString(doc.Flatten())
	sb.WriteString("\n\nSummary (one bullet point):")
	return sb.String()
}
