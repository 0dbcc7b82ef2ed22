// Package embedding computes and stores conversation embeddings.
package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dgallion1/convoscope/internal/conversation"
	"github.com/dgallion1/convoscope/internal/llm"
	"github.com/dgallion1/convoscope/internal/pool"
	"github.com/dgallion1/convoscope/internal/retry"
)

const DefaultConcurrency = 10

// Store is what the job reads conversations from and writes vectors to.
type Store interface {
	FetchAll(ctx context.Context, limit int) ([]conversation.Document, error)
	UpdateEmbedding(ctx context.Context, id string, vector []float32) error
}

// Summary reports a finished run.
type Summary struct {
	Documents int `json:"documents"`
	Embedded  int `json:"embedded"`
	Skipped   int `json:"skipped"`
}

type Job struct {
	embedder    llm.Embedder
	store       Store
	concurrency int
	retry       retry.Policy
	log         *slog.Logger
}

func New(embedder llm.Embedder, store Store, concurrency int, policy retry.Policy, log *slog.Logger) *Job {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	if policy.MaxAttempts <= 0 {
		policy = retry.DefaultPolicy()
	}
	return &Job{embedder: embedder, store: store, concurrency: concurrency, retry: policy, log: log}
}

// EmbedText embeds a single string, retrying on rate limits.
func (j *Job) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("embed: empty text")
	}
	return retry.Do(ctx, j.retry, j.log, func(ctx context.Context) ([]float32, error) {
		return j.embedder.Embed(ctx, text)
	})
}

// Run embeds every stored conversation and saves the vectors. Conversations
// with no text are skipped. The first failure, in corpus order, is returned
// after every in-flight call has settled.
func (j *Job) Run(ctx context.Context) (Summary, error) {
	docs, err := j.store.FetchAll(ctx, 0)
	if err != nil {
		return Summary{}, fmt.Errorf("load conversations: %w", err)
	}
	j.log.Info("embedding started", "documents", len(docs), "concurrency", j.concurrency)

	p := pool.New(j.concurrency)
	results := pool.Map(ctx, p, docs, func(_ int, doc conversation.Document) (bool, error) {
		text := doc.Flatten()
		if strings.TrimSpace(text) == "" {
			return false, nil
		}
		vector, err := j.EmbedText(ctx, text)
		if err != nil {
			return false, err
		}
		if err := j.store.UpdateEmbedding(ctx, doc.ID, vector); err != nil {
			return false, fmt.Errorf("save embedding: %w", err)
		}
		return true, nil
	})

	sum := Summary{Documents: len(docs)}
	var firstErr error
	for i, r := range results {
		switch {
		case r.Err != nil:
			if firstErr == nil {
				firstErr = fmt.Errorf("embed %s: %w", docs[i].ID, r.Err)
			}
		case r.Value:
			sum.Embedded++
		default:
			sum.Skipped++
		}
	}
	if firstErr != nil {
		j.log.Error("embedding failed", "embedded", sum.Embedded, "error", firstErr)
		return sum, firstErr
	}
	j.log.Info("embedding finished", "embedded", sum.Embedded, "skipped", sum.Skipped)
	return sum, nil
}
