package answer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/dgallion1/convoscope/internal/conversation"
	"github.com/dgallion1/convoscope/internal/llm"
	"github.com/dgallion1/convoscope/internal/retry"
)

func doc(id, content string) conversation.Document {
	return conversation.Document{ID: id, Messages: []conversation.Message{
		{Role: "user", Content: content},
		{Role: "assistant", Content: "reply to " + content},
	}}
}

func TestBuildPrompt_TiersInOrder(t *testing.T) {
	docs := []conversation.Document{doc("a", "alpha"), doc("b", "bravo"), doc("c", "charlie"), doc("d", "delta")}
	prompt := BuildPrompt("what about bravo?", docs, Tiers{HighlyRelevant: 1, RelevantUnselected: 2, Other: 1})

	high := strings.Index(prompt, "HIGHLY RELEVANT CONVERSATIONS (1)")
	unsel := strings.Index(prompt, "RELEVANT CONVERSATIONS (NOT SELECTED) (2)")
	other := strings.Index(prompt, "OTHER SELECTED CONVERSATIONS (1)")
	if high < 0 || unsel < 0 || other < 0 {
		t.Fatalf("missing tier label in prompt:\n%s", prompt)
	}
	if !(high < unsel && unsel < other) {
		t.Errorf("tiers out of order: %d %d %d", high, unsel, other)
	}

	alpha := strings.Index(prompt, "user: alpha")
	bravo := strings.Index(prompt, "user: bravo")
	delta := strings.Index(prompt, "user: delta")
	if !(high < alpha && alpha < unsel && unsel < bravo && bravo < other && other < delta) {
		t.Error("documents rendered in the wrong tier")
	}
	if !strings.Contains(prompt, "user: bravo\nassistant: reply to bravo") {
		t.Error("expected role: content transcript lines")
	}
	if !strings.Contains(prompt, "ONLY") {
		t.Error("expected the use-only-context constraint")
	}
	if !strings.HasSuffix(strings.TrimSpace(prompt), "Question: what about bravo?") {
		t.Error("expected the question repeated at the end")
	}
	if strings.Count(prompt, "what about bravo?") != 2 {
		t.Error("expected the question twice")
	}
}

func TestBuildPrompt_EmptyTiersOmitted(t *testing.T) {
	docs := []conversation.Document{doc("a", "alpha")}
	prompt := BuildPrompt("q", docs, Tiers{HighlyRelevant: 1})
	if strings.Contains(prompt, "NOT SELECTED") || strings.Contains(prompt, "OTHER SELECTED") {
		t.Errorf("expected empty tiers to be omitted:\n%s", prompt)
	}
}

func TestTiersSplit_Clamps(t *testing.T) {
	docs := []conversation.Document{doc("a", "1"), doc("b", "2")}
	high, unsel, other := Tiers{HighlyRelevant: 5, RelevantUnselected: 3}.Split(docs)
	if len(high) != 2 || len(unsel) != 0 || len(other) != 0 {
		t.Errorf("unexpected split %d/%d/%d", len(high), len(unsel), len(other))
	}
}

type countingModel struct {
	reply string
	err   error
	calls int
	last  llm.Request
}

func (m *countingModel) Complete(_ context.Context, req llm.Request) (string, error) {
	m.calls++
	m.last = req
	return m.reply, m.err
}

func newSynth(m llm.Completer) *Synthesizer {
	p := retry.Policy{MaxAttempts: 3, InitialDelay: time.Millisecond, Sleep: func(context.Context, time.Duration) error { return nil }}
	return NewSynthesizer(m, p, 0, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestAnswer_TrimsReply(t *testing.T) {
	m := &countingModel{reply: "  Bravo is a letter.\n"}
	got, err := newSynth(m).Answer(context.Background(), "q", []conversation.Document{doc("a", "x")}, Tiers{HighlyRelevant: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "Bravo is a letter." {
		t.Errorf("unexpected answer %q", got)
	}
	if m.calls != 1 {
		t.Errorf("expected exactly one call, got %d", m.calls)
	}
	if m.last.Format != llm.FormatText || m.last.MaxTokens != 1000 {
		t.Errorf("unexpected request %+v", m.last)
	}
}

func TestAnswer_EmptyReplyFallsBack(t *testing.T) {
	m := &countingModel{reply: "   "}
	got, err := newSynth(m).Answer(context.Background(), "q", nil, Tiers{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != Fallback {
		t.Errorf("expected fallback, got %q", got)
	}
}

func TestAnswer_RateLimitExhaustionPropagates(t *testing.T) {
	m := &countingModel{err: &llm.RateLimitError{StatusCode: 429}}
	_, err := newSynth(m).Answer(context.Background(), "q", nil, Tiers{})
	if !llm.IsRateLimited(err) {
		t.Fatalf("expected rate limit error, got %v", err)
	}
	if m.calls != 3 {
		t.Errorf("expected 3 attempts, got %d", m.calls)
	}
}

func TestAnswer_ProviderErrorPropagates(t *testing.T) {
	boom := &llm.ProviderError{Message: "down"}
	m := &countingModel{err: boom}
	_, err := newSynth(m).Answer(context.Background(), "q", nil, Tiers{})
	if !errors.Is(err, boom) {
		t.Fatalf("expected provider error, got %v", err)
	}
	if m.calls != 1 {
		t.Errorf("expected a single attempt, got %d", m.calls)
	}
}
