package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dgallion1/convoscope/internal/pipeline"
)

// handleEmbed embeds the text query parameter when given; otherwise it
// queues a job that embeds the whole corpus.
func (s *Server) handleEmbed(w http.ResponseWriter, r *http.Request) {
	if text := r.URL.Query().Get("text"); strings.TrimSpace(text) != "" {
		vector, err := s.deps.Embedder.EmbedText(r.Context(), text)
		if err != nil {
			failRequest(w, s.log, "embed", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"embedding": vector})
		return
	}
	s.submit(w, pipeline.NewJob(pipeline.KindEmbed, pipeline.Params{}))
}

// handleSummarize summarizes the selection synchronously.
func (s *Server) handleSummarize(w http.ResponseWriter, r *http.Request) {
	params, err := summarizeParams(r)
	if err != nil {
		failRequest(w, s.log, "summarize", err)
		return
	}
	docs, err := pipeline.LoadSelection(r.Context(), s.deps.Corpus, params.IDs, params.Limit)
	if err != nil {
		failRequest(w, s.log, "summarize", err)
		return
	}
	results, err := s.deps.Summarizer.Run(r.Context(), docs, params.Save)
	if err != nil {
		failRequest(w, s.log, "summarize", err)
		return
	}
	writeJSON(w, http.StatusOK, firstN(results, 0))
}

// handleSummarizeJob queues the same work as a background job.
func (s *Server) handleSummarizeJob(w http.ResponseWriter, r *http.Request) {
	params, err := summarizeParams(r)
	if err != nil {
		failRequest(w, s.log, "summarize", err)
		return
	}
	s.submit(w, pipeline.NewJob(pipeline.KindSummarize, params))
}

func summarizeParams(r *http.Request) (pipeline.Params, error) {
	limit, err := queryLimit(r)
	if err != nil {
		return pipeline.Params{}, err
	}
	q := r.URL.Query()
	return pipeline.Params{
		IDs:   splitIDs(q.Get("ids")),
		Limit: limit,
		Save:  q.Get("saveToDocument") == "true",
	}, nil
}

func (s *Server) handleProjection(w http.ResponseWriter, r *http.Request) {
	s.submit(w, pipeline.NewJob(pipeline.KindProject, pipeline.Params{}))
}

func (s *Server) submit(w http.ResponseWriter, job *pipeline.Job) {
	if err := s.deps.Jobs.Submit(job); err != nil {
		failRequest(w, s.log, "submit job", err)
		return
	}
	s.log.Info("job queued", "job_id", job.ID, "kind", job.Kind)
	writeJSON(w, http.StatusAccepted, map[string]any{
		"jobId":   job.ID,
		"kind":    job.Kind,
		"status":  pipeline.StatusQueued,
		"pollUrl": fmt.Sprintf("/api/jobs/%s/status", job.ID),
	})
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job := s.deps.Jobs.GetJob(jobID)
	if job == nil {
		jsonError(w, "job not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, job.Snapshot())
}
