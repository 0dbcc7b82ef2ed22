package api

import (
	"encoding/json"
	"net/http"

	"github.com/dgallion1/convoscope/internal/report"
)

func (s *Server) handleReportGet(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		failRequest(w, s.log, "report", err)
		return
	}
	q := r.URL.Query()
	s.answer(w, r, report.Request{
		Question: q.Get("question"),
		IDs:      splitIDs(q.Get("ids")),
		Limit:    limit,
	})
}

func (s *Server) handleReportPost(w http.ResponseWriter, r *http.Request) {
	var req report.Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		jsonError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	s.answer(w, r, req)
}

func (s *Server) answer(w http.ResponseWriter, r *http.Request, req report.Request) {
	resp, err := s.deps.Reports.Ask(r.Context(), req)
	if err != nil {
		failRequest(w, s.log, "report", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
