// Package summarize writes a one-line summary for each conversation and
// optionally stores it.
package summarize

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/dgallion1/convoscope/internal/conversation"
	"github.com/dgallion1/convoscope/internal/llm"
	"github.com/dgallion1/convoscope/internal/pool"
	"github.com/dgallion1/convoscope/internal/retry"
)

// Placeholder is stored when the model gives nothing usable.
const Placeholder = "No summary available."

const (
	DefaultConcurrency = 50
	DefaultMaxTokens   = 1000
	progressEvery      = 100
)

// Saver persists a summary and reports whether the stored value changed.
type Saver interface {
	UpdateSummary(ctx context.Context, id, summary string) (bool, error)
}

// Result is one summarized conversation.
type Result struct {
	DocID      string `json:"docId"`
	Summary    string `json:"summary"`
	WasUpdated bool   `json:"wasUpdated"`
}

// Config tunes a run.
type Config struct {
	Concurrency int
	MaxTokens   int
	Retry       retry.Policy
}

type Summarizer struct {
	llm   llm.Completer
	saver Saver
	cfg   Config
	log   *slog.Logger
}

// New builds a Summarizer. saver may be nil when results are never saved.
func New(completer llm.Completer, saver Saver, cfg Config, log *slog.Logger) *Summarizer {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = retry.DefaultPolicy()
	}
	return &Summarizer{llm: completer, saver: saver, cfg: cfg, log: log}
}

// Run summarizes docs, returning results in input order. When save is set
// each summary is written back through the Saver. Rate-limit exhaustion or
// a failed save aborts the run; any other model failure yields Placeholder.
func (s *Summarizer) Run(ctx context.Context, docs []conversation.Document, save bool) ([]Result, error) {
	if save && s.saver == nil {
		return nil, fmt.Errorf("summarize: no store configured for saving")
	}
	total := len(docs)
	s.log.Info("summarize started", "documents", total, "save", save)

	var processed, updated atomic.Int64
	p := pool.New(s.cfg.Concurrency)
	results := pool.Map(ctx, p, docs, func(_ int, doc conversation.Document) (Result, error) {
		res, err := s.one(ctx, doc, save)
		if err != nil {
			return res, err
		}
		if res.WasUpdated {
			updated.Add(1)
		}
		if n := processed.Add(1); n%progressEvery == 0 {
			s.log.Info("summarize progress",
				"processed", n,
				"total", total,
				"percent", int(n*100/int64(total)),
				"updated", updated.Load())
		}
		return res, nil
	})

	out := make([]Result, len(results))
	for i, r := range results {
		if r.Err != nil {
			return nil, fmt.Errorf("summarize %s: %w", docs[i].ID, r.Err)
		}
		out[i] = r.Value
	}
	s.log.Info("summarize finished", "documents", total, "updated", updated.Load())
	return out, nil
}

func (s *Summarizer) one(ctx context.Context, doc conversation.Document, save bool) (Result, error) {
	reply, err := retry.Do(ctx, s.cfg.Retry, s.log, func(ctx context.Context) (string, error) {
		return s.llm.Complete(ctx, llm.Request{
			Prompt:    BuildPrompt(doc),
			MaxTokens: s.cfg.MaxTokens,
			Format:    llm.FormatText,
		})
	})
	if err != nil {
		if llm.IsRateLimited(err) || ctx.Err() != nil {
			return Result{}, err
		}
		s.log.Warn("summary failed, using placeholder", "doc_id", doc.ID, "error", err)
		reply = ""
	}

	summary := strings.TrimSpace(reply)
	if summary == "" {
		summary = Placeholder
	}

	res := Result{DocID: doc.ID, Summary: summary}
	if save {
		changed, err := s.saver.UpdateSummary(ctx, doc.ID, summary)
		if err != nil {
			return Result{}, fmt.Errorf("save summary: %w", err)
		}
		res.WasUpdated = changed
	}
	return res, nil
}
