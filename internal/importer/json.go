package importer

import (
	"encoding/json"
	"fmt"
	"io"
)

type jsonMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type jsonConversation struct {
	ID             string        `json:"id"`
	ConversationID string        `json:"conversation_id"`
	Model          string        `json:"model"`
	Language       string        `json:"language"`
	Turn           int           `json:"turn"`
	Redacted       bool          `json:"redacted"`
	Conversation   []jsonMessage `json:"conversation"`
	Messages       []jsonMessage `json:"messages"`
}

// JSONParser handles either a bare array of {role, content} messages or a
// conversation record with "conversation" or "messages" and metadata.
type JSONParser struct{}

func (p *JSONParser) Parse(r io.Reader, filename string) (*Transcript, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var b transcriptBuilder
	var msgs []jsonMessage
	if err := json.Unmarshal(raw, &msgs); err == nil {
		for _, m := range msgs {
			b.message(m.Role, m.Content)
		}
		return b.build(baseTitle(filename)), nil
	}

	var conv jsonConversation
	if err := json.Unmarshal(raw, &conv); err != nil {
		return nil, fmt.Errorf("parse json: %w", err)
	}
	msgs = conv.Conversation
	if len(msgs) == 0 {
		msgs = conv.Messages
	}
	for _, m := range msgs {
		b.message(m.Role, m.Content)
	}

	t := b.build(baseTitle(filename))
	t.ID = conv.ID
	if t.ID == "" {
		t.ID = conv.ConversationID
	}
	t.Model = conv.Model
	t.Language = conv.Language
	t.Turn = conv.Turn
	t.Redacted = conv.Redacted
	return t, nil
}
