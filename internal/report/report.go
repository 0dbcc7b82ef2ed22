// Package report answers a natural-language question over a selection of
// the corpus: similarity search picks the strongest matches, the relevance
// filter prunes the rest, the downsampler enforces the prompt budget and a
// single completion writes the answer.
package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dgallion1/convoscope/internal/answer"
	"github.com/dgallion1/convoscope/internal/batcher"
	"github.com/dgallion1/convoscope/internal/conversation"
	"github.com/dgallion1/convoscope/internal/llm"
	"github.com/dgallion1/convoscope/internal/relevance"
	"github.com/dgallion1/convoscope/internal/retry"
	"github.com/dgallion1/convoscope/internal/tokens"
)

// ValidationError is a malformed request. It is never retried.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// IsValidation reports whether err is, or wraps, a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Store is the slice of the conversation store the service reads from.
type Store interface {
	FetchByIDs(ctx context.Context, ids []string) ([]conversation.Document, error)
	FetchAll(ctx context.Context, limit int) ([]conversation.Document, error)
	VectorSearch(ctx context.Context, query []float32, candidates, limit int, filterIDs []string) ([]conversation.Document, error)
}

// Config tunes the search stage and the prompt budget.
type Config struct {
	Ceiling          int
	SearchCandidates int
	SearchLimit      int
	Retry            retry.Policy
}

// Request is one question. IDs, when present, is the user's explicit
// selection; otherwise the first Limit conversations of the corpus are used
// (all of them when Limit is zero).
type Request struct {
	Question string   `json:"question"`
	IDs      []string `json:"ids,omitempty"`
	Limit    int      `json:"limit,omitempty"`
}

// Response is what the UI renders.
type Response struct {
	Question               string       `json:"question"`
	FilterQuestion         string       `json:"filterQuestion,omitempty"`
	Answer                 string       `json:"answer"`
	RelevantDocumentsCount int          `json:"relevantDocumentsCount"`
	RelevantDocumentIDs    []string     `json:"relevantDocumentIds"`
	Tiers                  answer.Tiers `json:"tiers"`
	FilterStage            string       `json:"filterStage"`
}

// Service wires the question pipeline together.
type Service struct {
	store    Store
	embedder llm.Embedder
	filter   *relevance.Filter
	synth    *answer.Synthesizer
	cfg      Config
	log      *slog.Logger
}

func NewService(store Store, embedder llm.Embedder, filter *relevance.Filter, synth *answer.Synthesizer, cfg Config, log *slog.Logger) *Service {
	if cfg.Ceiling <= 0 {
		cfg.Ceiling = filter.Config().Ceiling
	}
	if cfg.SearchCandidates <= 0 {
		cfg.SearchCandidates = 100
	}
	if cfg.SearchLimit <= 0 {
		cfg.SearchLimit = 20
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = retry.DefaultPolicy()
	}
	return &Service{store: store, embedder: embedder, filter: filter, synth: synth, cfg: cfg, log: log}
}

// Ask runs the full pipeline for one question.
func (s *Service) Ask(ctx context.Context, req Request) (Response, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return Response{}, &ValidationError{Field: "question", Message: "question is required"}
	}
	if req.Limit < 0 {
		return Response{}, &ValidationError{Field: "limit", Message: "limit must not be negative"}
	}
	ids := cleanIDs(req.IDs)
	log := s.log.With("question", question, "selected", len(ids))

	var pool []conversation.Document
	var err error
	if len(ids) > 0 {
		pool, err = s.store.FetchByIDs(ctx, ids)
	} else {
		pool, err = s.store.FetchAll(ctx, req.Limit)
	}
	if err != nil {
		return Response{}, fmt.Errorf("load conversations: %w", err)
	}

	vector, err := retry.Do(ctx, s.cfg.Retry, log, func(ctx context.Context) ([]float32, error) {
		return s.embedder.Embed(ctx, question)
	})
	if err != nil {
		return Response{}, fmt.Errorf("embed question: %w", err)
	}

	// A selection searches the whole corpus so close matches outside it
	// can still be surfaced; a corpus request searches only its own pool.
	var searchFilter []string
	if len(ids) == 0 && req.Limit > 0 {
		searchFilter = conversation.IDs(pool)
	}
	hits, err := s.store.VectorSearch(ctx, vector, s.cfg.SearchCandidates, s.cfg.SearchLimit, searchFilter)
	if err != nil {
		return Response{}, fmt.Errorf("vector search: %w", err)
	}

	high, unselected, other := splitTiers(pool, hits, len(ids) > 0)
	log.Info("tiers", "highly_relevant", len(high), "relevant_unselected", len(unselected), "other", len(other))

	filtered, err := s.filter.Filter(ctx, question, other)
	if err != nil {
		return Response{}, fmt.Errorf("filter conversations: %w", err)
	}

	combined := make([]conversation.Document, 0, len(high)+len(unselected)+len(filtered.Documents))
	combined = append(combined, high...)
	combined = append(combined, unselected...)
	combined = append(combined, filtered.Documents...)
	final := batcher.Downsample(combined, len(high), s.cfg.Ceiling)
	tiers := recountTiers(final, len(high), conversation.IDSet(unselected))
	log.Info("downsampled", "before", len(combined), "after", len(final), "tokens", tokens.Total(final))

	text, err := s.synth.Answer(ctx, question, final, tiers)
	if err != nil {
		return Response{}, err
	}

	return Response{
		Question:               question,
		FilterQuestion:         filtered.FilterQuestion,
		Answer:                 text,
		RelevantDocumentsCount: len(final),
		RelevantDocumentIDs:    conversation.IDs(final),
		Tiers:                  tiers,
		FilterStage:            filtered.Stage.String(),
	}, nil
}

// splitTiers partitions search hits and the candidate pool. With an
// explicit selection, hits inside it are highly relevant and hits outside
// it are relevant but unselected. Without one every hit is highly relevant.
// Pool documents that were not hits make up the other tier.
func splitTiers(pool, hits []conversation.Document, selected bool) (high, unselected, other []conversation.Document) {
	inPool := conversation.IDSet(pool)
	hitIDs := conversation.IDSet(hits)

	for _, h := range hits {
		if !selected || inPool[h.ID] {
			high = append(high, h)
		} else {
			unselected = append(unselected, h)
		}
	}
	for _, d := range pool {
		if !hitIDs[d.ID] {
			other = append(other, d)
		}
	}
	return high, unselected, other
}

// recountTiers derives tier sizes after downsampling. The highly relevant
// prefix is never thinned, so only the tail needs counting.
func recountTiers(final []conversation.Document, high int, unselected map[string]bool) answer.Tiers {
	t := answer.Tiers{HighlyRelevant: min(high, len(final))}
	for _, d := range final[t.HighlyRelevant:] {
		if unselected[d.ID] {
			t.RelevantUnselected++
		} else {
			t.Other++
		}
	}
	return t
}

func cleanIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
