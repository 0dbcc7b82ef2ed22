// Package relevance prunes a document set down to the conversations worth
// sending to the answer stage, using as few model calls as it can.
package relevance

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dgallion1/convoscope/internal/batcher"
	"github.com/dgallion1/convoscope/internal/conversation"
	"github.com/dgallion1/convoscope/internal/llm"
	"github.com/dgallion1/convoscope/internal/pool"
	"github.com/dgallion1/convoscope/internal/retry"
	"github.com/dgallion1/convoscope/internal/tokens"
)

// Stage records how far filtering had to go.
type Stage int

const (
	StageUnderBudget Stage = iota
	StageBatch
	StageIndividual
)

func (s Stage) String() string {
	switch s {
	case StageUnderBudget:
		return "under_budget"
	case StageBatch:
		return "batch"
	case StageIndividual:
		return "individual"
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

const (
	filterQuestionMaxTokens = 100
	verdictMaxTokens        = 20
)

// Config tunes the filter.
type Config struct {
	Ceiling       int
	BatchFraction float64
	Concurrency   int
	Retry         retry.Policy
}

// DefaultConfig matches a 16k-token prompt budget.
func DefaultConfig() Config {
	return Config{
		Ceiling:       16000,
		BatchFraction: 0.25,
		Concurrency:   5,
		Retry:         retry.DefaultPolicy(),
	}
}

// Result is the surviving documents in their original order.
type Result struct {
	Documents      []conversation.Document
	Stage          Stage
	FilterQuestion string
}

// Filter decides which documents are plausibly relevant to a question.
type Filter struct {
	llm llm.Completer
	cfg Config
	log *slog.Logger
}

func NewFilter(completer llm.Completer, cfg Config, log *slog.Logger) *Filter {
	def := DefaultConfig()
	if cfg.Ceiling <= 0 {
		cfg.Ceiling = def.Ceiling
	}
	if cfg.BatchFraction <= 0 || cfg.BatchFraction > 1 {
		cfg.BatchFraction = def.BatchFraction
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = def.Retry
	}
	return &Filter{llm: completer, cfg: cfg, log: log}
}

// Config returns the effective configuration.
func (f *Filter) Config() Config {
	return f.cfg
}

// Filter returns the documents worth answering from. Sets already under the
// ceiling come back untouched. Otherwise whole batches are screened first,
// then single documents if the batch survivors are still over budget.
// Unreadable or failed verdicts count as "not relevant"; only an exhausted
// rate limit fails the call.
func (f *Filter) Filter(ctx context.Context, question string, docs []conversation.Document) (Result, error) {
	total := tokens.Total(docs)
	if total <= f.cfg.Ceiling {
		return Result{Documents: docs, Stage: StageUnderBudget}, nil
	}

	filterQuestion, err := f.FilterQuestion(ctx, question)
	if err != nil {
		return Result{}, err
	}

	p := pool.New(f.cfg.Concurrency)
	batchCeiling := int(float64(f.cfg.Ceiling) * f.cfg.BatchFraction)
	batches := batcher.Partition(docs, batchCeiling)
	f.log.Info("batch filter", "documents", len(docs), "tokens", total, "batches", len(batches), "batch_ceiling", batchCeiling)

	verdicts := pool.Map(ctx, p, batches, func(i int, b batcher.Batch) (bool, error) {
		return f.verdict(ctx, buildBatchPrompt(question, filterQuestion, b.Docs), "batch", i)
	})
	var kept []batcher.Batch
	for i, v := range verdicts {
		if v.Err != nil {
			return Result{}, v.Err
		}
		if v.Value {
			kept = append(kept, batches[i])
		}
	}
	survivors := batcher.Flatten(kept)

	res := Result{Documents: survivors, Stage: StageBatch, FilterQuestion: filterQuestion}
	if tokens.Total(survivors) <= f.cfg.Ceiling {
		f.log.Info("batch filter done", "kept_batches", len(kept), "documents", len(survivors))
		return res, nil
	}

	f.log.Info("individual filter", "documents", len(survivors))
	docVerdicts := pool.Map(ctx, p, survivors, func(i int, d conversation.Document) (bool, error) {
		return f.verdict(ctx, buildDocumentPrompt(question, filterQuestion, d), "document", i)
	})
	var relevant []conversation.Document
	for i, v := range docVerdicts {
		if v.Err != nil {
			return Result{}, v.Err
		}
		if v.Value {
			relevant = append(relevant, survivors[i])
		}
	}
	res.Documents = relevant
	res.Stage = StageIndividual
	f.log.Info("individual filter done", "documents", len(relevant))
	return res, nil
}

// FilterQuestion asks the model for a yes/no screening question derived
// from question, falling back to DefaultFilterQuestion.
func (f *Filter) FilterQuestion(ctx context.Context, question string) (string, error) {
	reply, err := retry.Do(ctx, f.cfg.Retry, f.log, func(ctx context.Context) (string, error) {
		return f.llm.Complete(ctx, llm.Request{
			Prompt:    buildFilterQuestionPrompt(question),
			MaxTokens: filterQuestionMaxTokens,
			Format:    llm.FormatJSON,
		})
	})
	if err != nil {
		if llm.IsRateLimited(err) || ctx.Err() != nil {
			return "", err
		}
		f.log.Warn("filter question failed, using default", "error", err)
		return DefaultFilterQuestion, nil
	}

	var parsed struct {
		FilterQuestion string `json:"filterQuestion"`
	}
	if err := llm.DecodeJSON(reply, &parsed); err != nil || strings.TrimSpace(parsed.FilterQuestion) == "" {
		f.log.Warn("unusable filter question, using default", "error", err)
		return DefaultFilterQuestion, nil
	}
	return strings.TrimSpace(parsed.FilterQuestion), nil
}

// verdict runs one yes/no check. Only rate-limit exhaustion and
// cancellation are returned as errors.
func (f *Filter) verdict(ctx context.Context, prompt, unit string, idx int) (bool, error) {
	reply, err := retry.Do(ctx, f.cfg.Retry, f.log, func(ctx context.Context) (string, error) {
		return f.llm.Complete(ctx, llm.Request{
			Prompt:    prompt,
			MaxTokens: verdictMaxTokens,
			Format:    llm.FormatJSON,
		})
	})
	if err != nil {
		if llm.IsRateLimited(err) || ctx.Err() != nil {
			return false, err
		}
		f.log.Warn("relevance check failed, excluding", "unit", unit, "index", idx, "error", err)
		return false, nil
	}

	var parsed struct {
		IsRelevant bool `json:"isRelevant"`
	}
	if err := llm.DecodeJSON(reply, &parsed); err != nil {
		f.log.Warn("malformed relevance verdict, excluding", "unit", unit, "index", idx, "error", err)
		return false, nil
	}
	return parsed.IsRelevant, nil
}
