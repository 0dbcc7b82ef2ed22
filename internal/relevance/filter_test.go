package relevance

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dgallion1/convoscope/internal/conversation"
	"github.com/dgallion1/convoscope/internal/llm"
	"github.com/dgallion1/convoscope/internal/retry"
	"github.com/dgallion1/convoscope/internal/tokens"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// thousandTokenDocs builds n documents of exactly 1000 estimated tokens,
// tagged "doc-NN " so a fake model can tell them apart.
func thousandTokenDocs(n int) []conversation.Document {
	docs := make([]conversation.Document, n)
	for i := range docs {
		tag := fmt.Sprintf("doc-%02d ", i)
		docs[i] = conversation.Document{
			ID:       fmt.Sprintf("doc-%02d", i),
			Messages: []conversation.Message{{Role: "user", Content: tag + strings.Repeat("x", 3994-len(tag))}},
		}
	}
	return docs
}

// fakeModel answers filter-question, batch and document prompts.
type fakeModel struct {
	relevantBatch func(prompt string) bool
	relevantDoc   func(prompt string) bool
	filterReply   string

	mu            sync.Mutex
	batchCalls    int
	docCalls      int
	questionCalls int

	inFlight atomic.Int32
	peak     atomic.Int32
}

func (m *fakeModel) Complete(_ context.Context, req llm.Request) (string, error) {
	cur := m.inFlight.Add(1)
	defer m.inFlight.Add(-1)
	for {
		old := m.peak.Load()
		if cur <= old || m.peak.CompareAndSwap(old, cur) {
			break
		}
	}
	time.Sleep(time.Millisecond)

	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case strings.Contains(req.Prompt, `"filterQuestion" property`):
		m.questionCalls++
		if m.filterReply != "" {
			return m.filterReply, nil
		}
		return `{"filterQuestion":"Does this mention cooking?"}`, nil
	case strings.Contains(req.Prompt, "Batch of conversations:"):
		m.batchCalls++
		return fmt.Sprintf(`{"isRelevant":%t}`, m.relevantBatch(req.Prompt)), nil
	default:
		m.docCalls++
		return fmt.Sprintf(`{"isRelevant":%t}`, m.relevantDoc(req.Prompt)), nil
	}
}

func containsAnyDoc(prompt string, lo, hi int) bool {
	for i := lo; i < hi; i++ {
		if strings.Contains(prompt, fmt.Sprintf("doc-%02d ", i)) {
			return true
		}
	}
	return false
}

func newTestFilter(m llm.Completer) *Filter {
	cfg := DefaultConfig()
	cfg.Retry = retry.Policy{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		Sleep:        func(context.Context, time.Duration) error { return nil },
	}
	return NewFilter(m, cfg, discardLogger())
}

func TestFilter_UnderBudgetSkipsModel(t *testing.T) {
	docs := []conversation.Document{
		{ID: "a", Messages: []conversation.Message{{Role: "user", Content: strings.Repeat("y", 594)}}},
		{ID: "b", Messages: []conversation.Message{{Role: "user", Content: strings.Repeat("y", 594)}}},
		{ID: "c", Messages: []conversation.Message{{Role: "user", Content: strings.Repeat("y", 794)}}},
	}
	if total := tokens.Total(docs); total != 500 {
		t.Fatalf("expected 500 tokens, got %d", total)
	}
	m := &fakeModel{}
	res, err := newTestFilter(m).Filter(context.Background(), "what?", docs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Stage != StageUnderBudget || len(res.Documents) != 3 {
		t.Fatalf("expected all 3 documents at stage 0, got %d at %s", len(res.Documents), res.Stage)
	}
	if m.questionCalls+m.batchCalls+m.docCalls != 0 {
		t.Error("expected no model calls under budget")
	}
	if res.FilterQuestion != "" {
		t.Errorf("expected no filter question, got %q", res.FilterQuestion)
	}
}

func TestFilter_BatchStageSufficient(t *testing.T) {
	docs := thousandTokenDocs(40)
	m := &fakeModel{
		relevantBatch: func(p string) bool { return containsAnyDoc(p, 0, 12) },
		relevantDoc:   func(string) bool { return true },
	}
	res, err := newTestFilter(m).Filter(context.Background(), "cooking?", docs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.batchCalls != 10 {
		t.Errorf("expected 10 batch calls, got %d", m.batchCalls)
	}
	if m.docCalls != 0 {
		t.Errorf("expected no individual calls, got %d", m.docCalls)
	}
	if res.Stage != StageBatch {
		t.Errorf("expected batch stage, got %s", res.Stage)
	}
	if len(res.Documents) != 12 {
		t.Fatalf("expected 12 documents, got %d", len(res.Documents))
	}
	for i, d := range res.Documents {
		if d.ID != docs[i].ID {
			t.Errorf("position %d: expected %s, got %s", i, docs[i].ID, d.ID)
		}
	}
	if res.FilterQuestion != "Does this mention cooking?" {
		t.Errorf("unexpected filter question %q", res.FilterQuestion)
	}
	if peak := m.peak.Load(); peak > 5 {
		t.Errorf("expected at most 5 concurrent calls, saw %d", peak)
	}
}

func TestFilter_IndividualStage(t *testing.T) {
	docs := thousandTokenDocs(40)
	m := &fakeModel{
		relevantBatch: func(p string) bool { return containsAnyDoc(p, 0, 24) },
		relevantDoc: func(p string) bool {
			for i := 0; i < 24; i += 2 {
				if strings.Contains(p, fmt.Sprintf("doc-%02d ", i)) {
					return true
				}
			}
			return false
		},
	}
	res, err := newTestFilter(m).Filter(context.Background(), "cooking?", docs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Stage != StageIndividual {
		t.Fatalf("expected individual stage, got %s", res.Stage)
	}
	if m.docCalls != 24 {
		t.Errorf("expected 24 individual calls, got %d", m.docCalls)
	}
	if len(res.Documents) != 12 {
		t.Fatalf("expected 12 documents, got %d", len(res.Documents))
	}
	for i, d := range res.Documents {
		if want := fmt.Sprintf("doc-%02d", 2*i); d.ID != want {
			t.Errorf("position %d: expected %s, got %s", i, want, d.ID)
		}
	}
	if peak := m.peak.Load(); peak > 5 {
		t.Errorf("expected at most 5 concurrent calls, saw %d", peak)
	}
}

type scriptedModel struct {
	reply func(req llm.Request) (string, error)
	calls atomic.Int32
}

func (s *scriptedModel) Complete(_ context.Context, req llm.Request) (string, error) {
	s.calls.Add(1)
	return s.reply(req)
}

// Malformed verdicts silently drop documents. This pins the exclude-by-default
// behaviour so a change to it is a visible decision.
func TestFilter_MalformedVerdictExcludes(t *testing.T) {
	m := &scriptedModel{reply: func(req llm.Request) (string, error) {
		if strings.Contains(req.Prompt, `"filterQuestion" property`) {
			return `{"filterQuestion":"fq"}`, nil
		}
		return "sure, looks relevant", nil
	}}
	res, err := newTestFilter(m).Filter(context.Background(), "q", thousandTokenDocs(20))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Documents) != 0 {
		t.Errorf("expected every document excluded, got %d", len(res.Documents))
	}
}

func TestFilter_ProviderErrorExcludesOnlyThatBatch(t *testing.T) {
	m := &scriptedModel{reply: func(req llm.Request) (string, error) {
		switch {
		case strings.Contains(req.Prompt, `"filterQuestion" property`):
			return `{"filterQuestion":"fq"}`, nil
		case containsAnyDoc(req.Prompt, 0, 4):
			return "", &llm.ProviderError{StatusCode: 500, Message: "down"}
		default:
			return `{"isRelevant":true}`, nil
		}
	}}
	docs := thousandTokenDocs(20)
	res, err := newTestFilter(m).Filter(context.Background(), "q", docs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Stage != StageBatch || len(res.Documents) != 16 {
		t.Fatalf("expected 16 documents at batch stage, got %d at %s", len(res.Documents), res.Stage)
	}
	if res.Documents[0].ID != "doc-04" {
		t.Errorf("expected first survivor doc-04, got %s", res.Documents[0].ID)
	}
}

func TestFilter_RateLimitExhaustionFails(t *testing.T) {
	m := &scriptedModel{reply: func(req llm.Request) (string, error) {
		if strings.Contains(req.Prompt, `"filterQuestion" property`) {
			return `{"filterQuestion":"fq"}`, nil
		}
		if containsAnyDoc(req.Prompt, 8, 12) {
			return "", &llm.RateLimitError{StatusCode: 429}
		}
		return `{"isRelevant":true}`, nil
	}}
	_, err := newTestFilter(m).Filter(context.Background(), "q", thousandTokenDocs(20))
	if !llm.IsRateLimited(err) {
		t.Fatalf("expected rate limit error, got %v", err)
	}
}

func TestFilterQuestion_Fallbacks(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		err   error
	}{
		{"malformed", "not json", nil},
		{"empty question", `{"filterQuestion":"  "}`, nil},
		{"provider error", "", &llm.ProviderError{Message: "down"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &scriptedModel{reply: func(llm.Request) (string, error) { return tt.reply, tt.err }}
			got, err := newTestFilter(m).FilterQuestion(context.Background(), "q")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != DefaultFilterQuestion {
				t.Errorf("expected default question, got %q", got)
			}
		})
	}
}

func TestFilterQuestion_RetriesRateLimit(t *testing.T) {
	m := &scriptedModel{}
	m.reply = func(llm.Request) (string, error) {
		if m.calls.Load() < 3 {
			return "", &llm.RateLimitError{StatusCode: 429}
		}
		return `{"filterQuestion":"fq?"}`, nil
	}
	got, err := newTestFilter(m).FilterQuestion(context.Background(), "q")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "fq?" || m.calls.Load() != 3 {
		t.Errorf("expected fq? after 3 calls, got %q after %d", got, m.calls.Load())
	}
}
