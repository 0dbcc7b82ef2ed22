// Package app assembles the long-lived components shared by the server and
// the command-line tool.
package app

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgallion1/convoscope/internal/answer"
	"github.com/dgallion1/convoscope/internal/api"
	"github.com/dgallion1/convoscope/internal/config"
	"github.com/dgallion1/convoscope/internal/embedding"
	"github.com/dgallion1/convoscope/internal/llm"
	"github.com/dgallion1/convoscope/internal/pipeline"
	"github.com/dgallion1/convoscope/internal/projection"
	"github.com/dgallion1/convoscope/internal/relevance"
	"github.com/dgallion1/convoscope/internal/report"
	"github.com/dgallion1/convoscope/internal/retry"
	"github.com/dgallion1/convoscope/internal/store"
	"github.com/dgallion1/convoscope/internal/summarize"
	"github.com/dgallion1/convoscope/internal/vectorindex"
)

type App struct {
	Config config.Config
	Log    *slog.Logger

	Store *store.Store
	LLM   llm.Client
	Stats *llm.Stats
	Model string

	Reports    *report.Service
	Summarizer *summarize.Summarizer
	Embedder   *embedding.Job
	Projector  *projection.Projector

	closers []func() error
}

// New opens the store and builds every service from cfg.
func New(cfg config.Config, log *slog.Logger) (*App, error) {
	st, err := store.Open(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	a := &App{Config: cfg, Log: log, Store: st}
	a.closers = append(a.closers, st.Close)

	if cfg.QdrantHost != "" {
		idx, err := vectorindex.Dial(vectorindex.Config{
			Host:       cfg.QdrantHost,
			Port:       cfg.QdrantPort,
			Collection: cfg.QdrantCollection,
		}, log.With("component", "qdrant"))
		if err != nil {
			a.Close()
			return nil, err
		}
		st.SetIndex(idx)
		a.closers = append(a.closers, idx.Close)
	}

	openaiClient := llm.NewOpenAIClient(llm.OpenAIConfig{
		APIKey:         cfg.OpenAIAPIKey,
		BaseURL:        cfg.OpenAIBaseURL,
		Model:          cfg.OpenAIModel,
		EmbeddingModel: cfg.EmbeddingModel,
		EmbeddingDims:  cfg.EmbeddingDims,
		Timeout:        cfg.LLMTimeout,
	})
	a.closers = append(a.closers, closeFunc(openaiClient.Close))

	var completer llm.Completer = openaiClient
	if cfg.LLMProvider == config.ProviderAnthropic {
		anthropic := llm.NewAnthropicClient(cfg.AnthropicAPIKey, cfg.AnthropicModel)
		a.closers = append(a.closers, closeFunc(anthropic.Close))
		completer = anthropic
	}

	a.Stats = llm.NewStats(cfg.StatsWindow)
	instrumented := llm.Instrument(completer, openaiClient, a.Stats)
	a.Model = instrumented.Model()
	a.LLM = llm.Throttle(instrumented, cfg.LLMRequestsPerSecond, cfg.LLMBurst)

	a.build()
	return a, nil
}

// build wires the services on top of Store and LLM.
func (a *App) build() {
	cfg := a.Config
	policy := retry.Policy{MaxAttempts: cfg.RetryAttempts, InitialDelay: cfg.RetryInitialDelay}

	filter := relevance.NewFilter(a.LLM, relevance.Config{
		Ceiling:       cfg.Ceiling,
		BatchFraction: cfg.BatchFraction,
		Concurrency:   cfg.FilterConcurrency,
		Retry:         policy,
	}, a.Log.With("component", "relevance"))
	synth := answer.NewSynthesizer(a.LLM, policy, cfg.AnswerMaxTokens, a.Log.With("component", "answer"))

	a.Embedder = embedding.New(a.LLM, a.Store, cfg.EmbedConcurrency, policy, a.Log.With("component", "embedding"))
	a.Reports = report.NewService(a.Store, a.LLM, filter, synth, report.Config{
		Ceiling:          cfg.Ceiling,
		SearchCandidates: cfg.SearchCandidates,
		SearchLimit:      cfg.SearchLimit,
		Retry:            policy,
	}, a.Log.With("component", "report"))
	a.Summarizer = summarize.New(a.LLM, a.Store, summarize.Config{
		Concurrency: cfg.SummarizeConcurrency,
		Retry:       policy,
	}, a.Log.With("component", "summarize"))
	a.Projector = projection.New(a.Store, cfg.ProjectConcurrency, a.Log.With("component", "projection"))
}

// Runners maps each background job kind to the service that runs it.
func (a *App) Runners() map[pipeline.JobKind]pipeline.Runner {
	return map[pipeline.JobKind]pipeline.Runner{
		pipeline.KindEmbed:     pipeline.EmbedRunner(a.Embedder),
		pipeline.KindSummarize: pipeline.SummarizeRunner(a.Summarizer, a.Store),
		pipeline.KindProject:   pipeline.ProjectRunner(a.Projector),
	}
}

// APIDeps exposes the services to the HTTP handlers.
func (a *App) APIDeps(jobs api.Jobs) api.Deps {
	return api.Deps{
		Corpus:     a.Store,
		Reports:    a.Reports,
		Embedder:   a.Embedder,
		Summarizer: a.Summarizer,
		Jobs:       jobs,
		Stats:      a.Stats,
		Model:      a.Model,
	}
}

// Close releases everything New opened, most recent first.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if len(errs) > 0 {
		return fmt.Errorf("close: %w", errors.Join(errs...))
	}
	return nil
}

func closeFunc(f func()) func() error {
	return func() error {
		f()
		return nil
	}
}
