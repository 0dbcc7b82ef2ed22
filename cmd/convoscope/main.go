package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"

	"github.com/dgallion1/convoscope/internal/app"
	"github.com/dgallion1/convoscope/internal/cli"
	"github.com/dgallion1/convoscope/internal/config"
	"github.com/dgallion1/convoscope/internal/importer"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := cli.NewRootCmd(open)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("error:"), err)
		os.Exit(1)
	}
}

func open(log *slog.Logger) (*cli.Services, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a, err := app.New(cfg, log)
	if err != nil {
		return nil, err
	}
	return &cli.Services{
		Corpus:     a.Store,
		Reports:    a.Reports,
		Summarizer: a.Summarizer,
		Embedder:   a.Embedder,
		Projector:  a.Projector,
		Import:     importer.Options{PDFFallbackPdftotext: cfg.PDFFallbackPdftotext},
		Close:      a.Close,
	}, nil
}
