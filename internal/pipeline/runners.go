package pipeline

import (
	"context"
	"fmt"

	"github.com/dgallion1/convoscope/internal/conversation"
	"github.com/dgallion1/convoscope/internal/embedding"
	"github.com/dgallion1/convoscope/internal/projection"
	"github.com/dgallion1/convoscope/internal/summarize"
)

// Loader fetches the conversations a summarize job covers.
type Loader interface {
	FetchByIDs(ctx context.Context, ids []string) ([]conversation.Document, error)
	FetchAll(ctx context.Context, limit int) ([]conversation.Document, error)
}

// EmbedRunner embeds the whole corpus.
func EmbedRunner(j *embedding.Job) Runner {
	return RunnerFunc(func(ctx context.Context, _ *Job) (any, error) {
		return j.Run(ctx)
	})
}

// ProjectRunner recomputes map coordinates.
func ProjectRunner(p *projection.Projector) Runner {
	return RunnerFunc(func(ctx context.Context, _ *Job) (any, error) {
		return p.Run(ctx)
	})
}

// SummarizeRunner summarizes the job's selection, or the first Limit
// conversations when no ids are given.
func SummarizeRunner(s *summarize.Summarizer, loader Loader) Runner {
	return RunnerFunc(func(ctx context.Context, job *Job) (any, error) {
		docs, err := LoadSelection(ctx, loader, job.Params.IDs, job.Params.Limit)
		if err != nil {
			return nil, err
		}
		return s.Run(ctx, docs, job.Params.Save)
	})
}

// LoadSelection resolves ids, or the first limit conversations when ids is
// empty.
func LoadSelection(ctx context.Context, loader Loader, ids []string, limit int) ([]conversation.Document, error) {
	var docs []conversation.Document
	var err error
	if len(ids) > 0 {
		docs, err = loader.FetchByIDs(ctx, ids)
	} else {
		docs, err = loader.FetchAll(ctx, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("load conversations: %w", err)
	}
	return docs, nil
}
