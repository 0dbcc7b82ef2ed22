package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/dgallion1/convoscope/internal/store"
)

const (
	defaultSearchCandidates = 100
	defaultSearchLimit      = 100
)

// handleData serves the UI's data views: map coordinates, conversation
// metadata, or full conversations for a selection.
func (s *Server) handleData(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit, err := queryLimit(r)
	if err != nil {
		failRequest(w, s.log, "data", err)
		return
	}

	switch r.URL.Query().Get("dataType") {
	case "coords":
		coords, err := s.deps.Corpus.Coords(ctx)
		if err != nil {
			failRequest(w, s.log, "data", err)
			return
		}
		writeJSON(w, http.StatusOK, firstN(coords, limit))
	case "full":
		meta, err := s.deps.Corpus.Meta(ctx)
		if err != nil {
			failRequest(w, s.log, "data", err)
			return
		}
		writeJSON(w, http.StatusOK, firstN(meta, limit))
	case "ids":
		ids := splitIDs(r.URL.Query().Get("ids"))
		if len(ids) == 0 {
			jsonError(w, "ids query parameter is required", http.StatusBadRequest)
			return
		}
		docs, err := s.deps.Corpus.FetchByIDs(ctx, ids)
		if err != nil {
			failRequest(w, s.log, "data", err)
			return
		}
		writeJSON(w, http.StatusOK, docs)
	default:
		jsonError(w, "dataType must be one of coords, full, ids", http.StatusBadRequest)
	}
}

// firstN returns at most n items; n <= 0 means all. A nil slice becomes
// empty so clients always get a JSON array.
func firstN[T any](items []T, n int) []T {
	if items == nil {
		return []T{}
	}
	if n > 0 && n < len(items) {
		return items[:n]
	}
	return items
}

type searchRequest struct {
	QueryVector   []float32 `json:"queryVector"`
	NumCandidates int       `json:"numCandidates"`
	Limit         int       `json:"limit"`
	IDs           []string  `json:"ids,omitempty"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4<<20)).Decode(&req); err != nil {
		jsonError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if len(req.QueryVector) == 0 {
		jsonError(w, "invalid query vector", http.StatusBadRequest)
		return
	}
	if req.NumCandidates <= 0 {
		req.NumCandidates = defaultSearchCandidates
	}
	if req.Limit <= 0 {
		req.Limit = defaultSearchLimit
	}

	docs, err := s.deps.Corpus.VectorSearch(r.Context(), req.QueryVector, req.NumCandidates, req.Limit, req.IDs)
	if err != nil {
		failRequest(w, s.log, "search", err)
		return
	}
	writeJSON(w, http.StatusOK, firstN(docs, 0))
}

type voteRequest struct {
	Question string `json:"question"`
	Vote     string `json:"vote"`
}

func (s *Server) handleVote(w http.ResponseWriter, r *http.Request) {
	var req voteRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		jsonError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	req.Question = strings.TrimSpace(req.Question)
	if req.Question == "" || (req.Vote != store.VoteUp && req.Vote != store.VoteDown) {
		jsonError(w, "question and a vote of up or down are required", http.StatusBadRequest)
		return
	}
	if err := s.deps.Corpus.AddVote(r.Context(), req.Question, req.Vote); err != nil {
		failRequest(w, s.log, "vote", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleListVotes(w http.ResponseWriter, r *http.Request) {
	tallies, err := s.deps.Corpus.Votes(r.Context())
	if err != nil {
		failRequest(w, s.log, "votes", err)
		return
	}
	writeJSON(w, http.StatusOK, firstN(tallies, 0))
}
