package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dgallion1/convoscope/internal/config"
	"github.com/dgallion1/convoscope/internal/conversation"
	"github.com/dgallion1/convoscope/internal/llm"
	"github.com/dgallion1/convoscope/internal/pipeline"
	"github.com/dgallion1/convoscope/internal/report"
	"github.com/dgallion1/convoscope/internal/store"
	"github.com/dgallion1/convoscope/internal/summarize"
)

// Corpus is the conversation store as the API sees it.
type Corpus interface {
	pipeline.Loader
	Save(ctx context.Context, doc conversation.Document) error
	Coords(ctx context.Context) ([]store.CoordView, error)
	Meta(ctx context.Context) ([]store.MetaView, error)
	VectorSearch(ctx context.Context, query []float32, candidates, limit int, filterIDs []string) ([]conversation.Document, error)
	AddVote(ctx context.Context, question, vote string) error
	Votes(ctx context.Context) ([]store.VoteTally, error)
}

// Asker answers report questions.
type Asker interface {
	Ask(ctx context.Context, req report.Request) (report.Response, error)
}

// TextEmbedder embeds a single string.
type TextEmbedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

// Summarizer summarizes a loaded selection synchronously.
type Summarizer interface {
	Run(ctx context.Context, docs []conversation.Document, save bool) ([]summarize.Result, error)
}

// Jobs queues and tracks background jobs.
type Jobs interface {
	Submit(job *pipeline.Job) error
	GetJob(id string) *pipeline.Job
}

// Deps are the collaborators the handlers call.
type Deps struct {
	Corpus     Corpus
	Reports    Asker
	Embedder   TextEmbedder
	Summarizer Summarizer
	Jobs       Jobs
	Stats      *llm.Stats
	Model      string
}

// Server is the HTTP API server for convoscope.
type Server struct {
	router chi.Router
	deps   Deps
	log    *slog.Logger
	cfg    config.Config
}

// NewServer creates and configures the HTTP server.
func NewServer(deps Deps, log *slog.Logger, cfg config.Config) *Server {
	s := &Server{
		deps: deps,
		log:  log,
		cfg:  cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/report", s.handleReportGet)
		r.Post("/report", s.handleReportPost)

		r.Get("/data", s.handleData)
		r.Post("/search", s.handleSearch)

		r.Post("/embed", s.handleEmbed)
		r.Get("/summarize", s.handleSummarize)
		r.Post("/summarize", s.handleSummarizeJob)
		r.Post("/projection", s.handleProjection)
		r.Get("/jobs/{jobID}/status", s.handleJobStatus)

		r.Post("/conversations/import", s.handleImport)

		r.Get("/questions/votes", s.handleListVotes)
		r.Post("/questions/votes", s.handleVote)

		r.Get("/stats/llm", s.handleLLMStats)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
