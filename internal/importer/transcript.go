package importer

import (
	"strings"

	"github.com/dgallion1/convoscope/internal/conversation"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
	RoleTool      = "tool"
)

// roleAliases maps speaker labels found in transcripts to message roles.
var roleAliases = map[string]string{
	"user":      RoleUser,
	"human":     RoleUser,
	"assistant": RoleAssistant,
	"ai":        RoleAssistant,
	"model":     RoleAssistant,
	"bot":       RoleAssistant,
	"system":    RoleSystem,
	"tool":      RoleTool,
}

// NormalizeRole maps a speaker label to a role, reporting whether it is known.
func NormalizeRole(label string) (string, bool) {
	r, ok := roleAliases[strings.ToLower(strings.TrimSpace(label))]
	return r, ok
}

// transcriptBuilder accumulates messages from a stream of headings and
// lines. Text before the first speaker marker belongs to the user.
type transcriptBuilder struct {
	messages  []conversation.Message
	role      string
	content   strings.Builder
	breakNext bool
}

// heading switches speaker when text is a bare role label such as
// "Assistant" or "User:". It reports whether text was consumed.
func (b *transcriptBuilder) heading(text string) bool {
	role, ok := NormalizeRole(strings.TrimSuffix(strings.TrimSpace(text), ":"))
	if !ok {
		return false
	}
	b.flush()
	b.role = role
	return true
}

// line adds one line of text. A "role: text" prefix starts a new message.
func (b *transcriptBuilder) line(text string) {
	if label, rest, found := strings.Cut(text, ":"); found {
		if role, ok := NormalizeRole(label); ok {
			b.flush()
			b.role = role
			text = strings.TrimSpace(rest)
		}
	}
	if strings.TrimSpace(text) == "" {
		return
	}
	if b.content.Len() > 0 {
		if b.breakNext {
			b.content.WriteString("\n\n")
		} else {
			b.content.WriteString("\n")
		}
	}
	b.breakNext = false
	b.content.WriteString(text)
}

// lines feeds a block of text one trimmed line at a time.
func (b *transcriptBuilder) lines(block string) {
	for _, l := range strings.Split(block, "\n") {
		b.line(strings.TrimSpace(l))
	}
}

// paragraph marks a paragraph break before the next line.
func (b *transcriptBuilder) paragraph() {
	b.breakNext = true
}

// message appends a complete message.
func (b *transcriptBuilder) message(role, content string) {
	b.flush()
	content = strings.TrimSpace(content)
	if content == "" {
		return
	}
	r, ok := NormalizeRole(role)
	if !ok {
		r = RoleUser
	}
	b.messages = append(b.messages, conversation.Message{Role: r, Content: content})
}

func (b *transcriptBuilder) flush() {
	content := strings.TrimSpace(b.content.String())
	b.content.Reset()
	b.breakNext = false
	if content == "" {
		return
	}
	role := b.role
	if role == "" {
		role = RoleUser
	}
	b.messages = append(b.messages, conversation.Message{Role: role, Content: content})
}

func (b *transcriptBuilder) build(title string) *Transcript {
	b.flush()
	return &Transcript{Title: title, Messages: b.messages}
}
