package report

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/convoscope/internal/answer"
	"github.com/dgallion1/convoscope/internal/conversation"
	"github.com/dgallion1/convoscope/internal/llm"
	"github.com/dgallion1/convoscope/internal/relevance"
	"github.com/dgallion1/convoscope/internal/retry"
)

type fakeStore struct {
	docs []conversation.Document
	hits []string

	fetchAllLimit int
	searchFilter  []string
	searchCalled  bool
}

func (f *fakeStore) byID() map[string]conversation.Document {
	m := make(map[string]conversation.Document, len(f.docs))
	for _, d := range f.docs {
		m[d.ID] = d
	}
	return m
}

func (f *fakeStore) FetchByIDs(_ context.Context, ids []string) ([]conversation.Document, error) {
	m := f.byID()
	var out []conversation.Document
	for _, id := range ids {
		if d, ok := m[id]; ok {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeStore) FetchAll(_ context.Context, limit int) ([]conversation.Document, error) {
	f.fetchAllLimit = limit
	if limit > 0 && limit < len(f.docs) {
		return f.docs[:limit], nil
	}
	return f.docs, nil
}

func (f *fakeStore) VectorSearch(ctx context.Context, _ []float32, _, _ int, filterIDs []string) ([]conversation.Document, error) {
	f.searchCalled = true
	f.searchFilter = filterIDs
	return f.FetchByIDs(ctx, f.hits)
}

type fakeEmbedder struct {
	err error
}

func (e fakeEmbedder) Embed(context.Context, string) ([]float32, error) {
	return []float32{1, 0}, e.err
}

// fakeModel says yes to every relevance check and records answer prompts.
type fakeModel struct {
	mu            sync.Mutex
	answerPrompts []string
	verdictCalls  int
}

func (m *fakeModel) Complete(_ context.Context, req llm.Request) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case strings.Contains(req.Prompt, `"filterQuestion" property`):
		return `{"filterQuestion":"fq"}`, nil
	case strings.Contains(req.Prompt, `"isRelevant" property`):
		m.verdictCalls++
		return `{"isRelevant":true}`, nil
	default:
		m.answerPrompts = append(m.answerPrompts, req.Prompt)
		return "the answer", nil
	}
}

func smallDoc(id string) conversation.Document {
	return conversation.Document{ID: id, Messages: []conversation.Message{{Role: "user", Content: "about " + id}}}
}

func bigDoc(id string) conversation.Document {
	tag := id + " "
	return conversation.Document{ID: id, Messages: []conversation.Message{{Role: "user", Content: tag + strings.Repeat("x", 3994-len(tag))}}}
}

func newTestService(store Store, emb llm.Embedder, model llm.Completer) *Service {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	policy := retry.Policy{MaxAttempts: 2, InitialDelay: time.Millisecond, Sleep: func(context.Context, time.Duration) error { return nil }}
	fcfg := relevance.DefaultConfig()
	fcfg.Retry = policy
	filter := relevance.NewFilter(model, fcfg, log)
	synth := answer.NewSynthesizer(model, policy, 0, log)
	return NewService(store, emb, filter, synth, Config{Retry: policy}, log)
}

func TestAsk_BlankQuestionIsValidationError(t *testing.T) {
	store := &fakeStore{}
	svc := newTestService(store, fakeEmbedder{}, &fakeModel{})

	_, err := svc.Ask(context.Background(), Request{Question: "   "})
	require.Error(t, err)
	assert.True(t, IsValidation(err))
	assert.False(t, store.searchCalled)
}

func TestAsk_SelectionTiers(t *testing.T) {
	store := &fakeStore{
		docs: []conversation.Document{smallDoc("a"), smallDoc("b"), smallDoc("c"), smallDoc("x")},
		hits: []string{"b", "x"},
	}
	model := &fakeModel{}
	svc := newTestService(store, fakeEmbedder{}, model)

	resp, err := svc.Ask(context.Background(), Request{Question: "what about b?", IDs: []string{"a", "b", " c ", "a", "missing"}})
	require.NoError(t, err)

	assert.Nil(t, store.searchFilter, "a selection searches the whole corpus")
	assert.Equal(t, "the answer", resp.Answer)
	assert.Equal(t, []string{"b", "x", "a", "c"}, resp.RelevantDocumentIDs)
	assert.Equal(t, 4, resp.RelevantDocumentsCount)
	assert.Equal(t, answer.Tiers{HighlyRelevant: 1, RelevantUnselected: 1, Other: 2}, resp.Tiers)
	assert.Equal(t, "under_budget", resp.FilterStage)
	assert.Empty(t, resp.FilterQuestion)
	assert.Zero(t, model.verdictCalls)

	require.Len(t, model.answerPrompts, 1)
	assert.Contains(t, model.answerPrompts[0], "HIGHLY RELEVANT CONVERSATIONS (1)")
	assert.Contains(t, model.answerPrompts[0], "RELEVANT CONVERSATIONS (NOT SELECTED) (1)")
}

func TestAsk_CorpusLimitRestrictsSearch(t *testing.T) {
	store := &fakeStore{
		docs: []conversation.Document{smallDoc("a"), smallDoc("b"), smallDoc("c"), smallDoc("d")},
		hits: []string{"c"},
	}
	svc := newTestService(store, fakeEmbedder{}, &fakeModel{})

	resp, err := svc.Ask(context.Background(), Request{Question: "q", Limit: 3})
	require.NoError(t, err)
	assert.Equal(t, 3, store.fetchAllLimit)
	assert.Equal(t, []string{"a", "b", "c"}, store.searchFilter)
	assert.Equal(t, []string{"c", "a", "b"}, resp.RelevantDocumentIDs)
	assert.Equal(t, answer.Tiers{HighlyRelevant: 1, Other: 2}, resp.Tiers)
}

func TestAsk_FiltersAndDownsamplesOverBudget(t *testing.T) {
	docs := []conversation.Document{bigDoc("hit")}
	for i := range 30 {
		docs = append(docs, bigDoc(fmt.Sprintf("o%02d", i)))
	}
	store := &fakeStore{docs: docs, hits: []string{"hit"}}
	model := &fakeModel{}
	svc := newTestService(store, fakeEmbedder{}, model)

	resp, err := svc.Ask(context.Background(), Request{Question: "q"})
	require.NoError(t, err)

	assert.Equal(t, "individual", resp.FilterStage)
	assert.Equal(t, "fq", resp.FilterQuestion)
	// 1000 (hit) + 30*1000 others halves once to 15 others: 16000 tokens.
	assert.Equal(t, 16, resp.RelevantDocumentsCount)
	assert.Equal(t, "hit", resp.RelevantDocumentIDs[0])
	assert.Equal(t, "o00", resp.RelevantDocumentIDs[1])
	assert.Equal(t, "o02", resp.RelevantDocumentIDs[2])
	assert.Equal(t, answer.Tiers{HighlyRelevant: 1, Other: 15}, resp.Tiers)
	// 8 batch checks then 30 individual checks.
	assert.Equal(t, 38, model.verdictCalls)
}

func TestAsk_RateLimitedEmbeddingFails(t *testing.T) {
	store := &fakeStore{docs: []conversation.Document{smallDoc("a")}}
	svc := newTestService(store, fakeEmbedder{err: &llm.RateLimitError{StatusCode: 429}}, &fakeModel{})

	_, err := svc.Ask(context.Background(), Request{Question: "q"})
	require.Error(t, err)
	assert.True(t, llm.IsRateLimited(err))
	assert.False(t, IsValidation(err))
}

func TestAsk_NegativeLimit(t *testing.T) {
	svc := newTestService(&fakeStore{}, fakeEmbedder{}, &fakeModel{})
	_, err := svc.Ask(context.Background(), Request{Question: "q", Limit: -1})
	assert.True(t, IsValidation(err))
}
