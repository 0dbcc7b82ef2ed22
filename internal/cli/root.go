// Package cli is the convoscope command-line tool. Every command runs
// in-process against the same services the HTTP server uses.
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/dgallion1/convoscope/internal/conversation"
	"github.com/dgallion1/convoscope/internal/embedding"
	"github.com/dgallion1/convoscope/internal/importer"
	"github.com/dgallion1/convoscope/internal/pipeline"
	"github.com/dgallion1/convoscope/internal/projection"
	"github.com/dgallion1/convoscope/internal/report"
	"github.com/dgallion1/convoscope/internal/summarize"
)

type Asker interface {
	Ask(ctx context.Context, req report.Request) (report.Response, error)
}

type Summarizer interface {
	Run(ctx context.Context, docs []conversation.Document, save bool) ([]summarize.Result, error)
}

type Embedder interface {
	Run(ctx context.Context) (embedding.Summary, error)
}

type Projector interface {
	Run(ctx context.Context) (projection.Summary, error)
}

// Corpus loads selections and stores imported conversations.
type Corpus interface {
	pipeline.Loader
	Save(ctx context.Context, doc conversation.Document) error
}

// Services are what the commands run against. Close, if set, is called
// once the command finishes.
type Services struct {
	Corpus     Corpus
	Reports    Asker
	Summarizer Summarizer
	Embedder   Embedder
	Projector  Projector
	Import     importer.Options
	Close      func() error
}

// Opener builds the services on first use, so --help never touches the
// data directory or the network.
type Opener func(log *slog.Logger) (*Services, error)

type root struct {
	open    Opener
	verbose bool
	svc     *Services
}

// NewRootCmd assembles the command tree.
func NewRootCmd(open Opener) *cobra.Command {
	r := &root{open: open}
	cmd := &cobra.Command{
		Use:           "convoscope",
		Short:         "Ask questions across a corpus of chat conversations",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().BoolVarP(&r.verbose, "verbose", "v", false, "log pipeline progress to stderr")

	cmd.AddCommand(
		newAskCmd(r),
		newSummarizeCmd(r),
		newEmbedCmd(r),
		newProjectCmd(r),
		newImportCmd(r),
	)
	return cmd
}

func (r *root) services() (*Services, error) {
	if r.svc != nil {
		return r.svc, nil
	}
	if r.open == nil {
		return nil, errors.New("no services configured")
	}
	level := slog.LevelWarn
	if r.verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	svc, err := r.open(log)
	if err != nil {
		return nil, err
	}
	r.svc = svc
	return svc, nil
}

func (r *root) close() {
	if r.svc == nil {
		return
	}
	if r.svc.Close != nil {
		if err := r.svc.Close(); err != nil {
			fmt.Fprintln(os.Stderr, warning("close:"), err)
		}
	}
	r.svc = nil
}
