// Package answer turns a tiered document set into one final answer.
package answer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dgallion1/convoscope/internal/conversation"
	"github.com/dgallion1/convoscope/internal/llm"
	"github.com/dgallion1/convoscope/internal/retry"
)

// Fallback is returned when the model gives back nothing.
const Fallback = "Unable to answer the question based on the provided conversations."

const defaultMaxTokens = 1000

// Tiers gives the boundaries inside an ordered document slice: the first
// HighlyRelevant documents, then RelevantUnselected more; everything after
// that is other selected material.
type Tiers struct {
	HighlyRelevant     int `json:"highlyRelevant"`
	RelevantUnselected int `json:"relevantUnselected"`
	Other              int `json:"other"`
}

// Split cuts docs at the tier boundaries, clamping counts that run past the
// end of the slice.
func (t Tiers) Split(docs []conversation.Document) (high, unselected, other []conversation.Document) {
	h := clamp(t.HighlyRelevant, 0, len(docs))
	u := clamp(h+t.RelevantUnselected, h, len(docs))
	return docs[:h], docs[h:u], docs[u:]
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// BuildPrompt renders the question and the tiered conversations into a
// single prompt. Empty tiers are left out.
func BuildPrompt(question string, docs []conversation.Document, tiers Tiers) string {
	high, unselected, other := tiers.Split(docs)

	var sb strings.Builder
	sb.WriteString("You are a sharp, succinct assistant that answers questions using a set of conversations between users and an AI assistant.\n")
	sb.WriteString("Answer truthfully using ONLY information found in the conversations below. If the answer is not in them, say so.\n")
	sb.WriteString("The conversations are grouped by relevance. Weight the HIGHLY RELEVANT conversations most heavily; use the other groups for supporting detail.\n\n")
	fmt.Fprintf(&sb, "Question: %s\n", question)

	writeTier(&sb, "HIGHLY RELEVANT CONVERSATIONS", high)
	writeTier(&sb, "RELEVANT CONVERSATIONS (NOT SELECTED)", unselected)
	writeTier(&sb, "OTHER SELECTED CONVERSATIONS", other)

	sb.WriteString("\nAnswer only the question, with no other commentary.\n")
	fmt.Fprintf(&sb, "Question: %s\n", question)
	return sb.String()
}

func writeTier(sb *strings.Builder, label string, docs []conversation.Document) {
	if len(docs) == 0 {
		return
	}
	fmt.Fprintf(sb, "\n=== %s (%d) ===\n", label, len(docs))
	sb.WriteString(conversation.JoinTranscripts(docs))
	sb.WriteString("\n")
}

// Synthesizer makes the single answering call.
type Synthesizer struct {
	llm       llm.Completer
	retry     retry.Policy
	maxTokens int
	log       *slog.Logger
}

func NewSynthesizer(completer llm.Completer, policy retry.Policy, maxTokens int, log *slog.Logger) *Synthesizer {
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &Synthesizer{llm: completer, retry: policy, maxTokens: maxTokens, log: log}
}

// Answer issues exactly one completion (plus rate-limit retries) and
// returns its trimmed text, or Fallback when the reply is blank.
func (s *Synthesizer) Answer(ctx context.Context, question string, docs []conversation.Document, tiers Tiers) (string, error) {
	prompt := BuildPrompt(question, docs, tiers)
	text, err := retry.Do(ctx, s.retry, s.log, func(ctx context.Context) (string, error) {
		return s.llm.Complete(ctx, llm.Request{
			Prompt:    prompt,
			MaxTokens: s.maxTokens,
			Format:    llm.FormatText,
		})
	})
	if err != nil {
		return "", fmt.Errorf("synthesize answer: %w", err)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return Fallback, nil
	}
	return text, nil
}
