package conversation

import "strings"

// NextSeparator divides documents when several transcripts share one prompt.
const NextSeparator = "\n\n--- NEXT CONVERSATION ---\n\n"

// Document is one stored chat conversation.
type Document struct {
	ID          string    `json:"id"`
	Model       string    `json:"model,omitempty"`
	Language    string    `json:"language,omitempty"`
	Turn        int       `json:"turn,omitempty"`
	Redacted    bool      `json:"redacted,omitempty"`
	Messages    []Message `json:"messages"`
	Summary     string    `json:"summary,omitempty"`
	Embedding   []float32 `json:"embedding,omitempty"`
	Coordinates *Point    `json:"coordinates,omitempty"`
}

// Message is a single turn. Role is free-form ("user", "assistant", ...).
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Point is a position on the 2D projection of the corpus.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Flatten renders the document as "role: content" pairs joined by a single
// space. This is the form used for token estimation and embedding.
func (d Document) Flatten() string {
	return d.join(" ")
}

// Transcript renders the document one message per line for prompts.
func (d Document) Transcript() string {
	return d.join("\n")
}

func (d Document) join(sep string) string {
	var sb strings.Builder
	for i, m := range d.Messages {
		if i > 0 {
			sb.WriteString(sep)
		}
		sb.WriteString(m.Role)
		sb.WriteString(": ")
		sb.WriteString(m.Content)
	}
	return sb.String()
}

// JoinTranscripts renders several documents into one prompt block.
func JoinTranscripts(docs []Document) string {
	parts := make([]string, len(docs))
	for i, d := range docs {
		parts[i] = d.Transcript()
	}
	return strings.Join(parts, NextSeparator)
}

// IDs returns the identifiers of docs in order.
func IDs(docs []Document) []string {
	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	return ids
}

// IDSet returns the identifiers of docs as a set.
func IDSet(docs []Document) map[string]bool {
	set := make(map[string]bool, len(docs))
	for _, d := range docs {
		set[d.ID] = true
	}
	return set
}
