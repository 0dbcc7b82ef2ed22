package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/dgallion1/convoscope/internal/llm"
	"github.com/dgallion1/convoscope/internal/pipeline"
	"github.com/dgallion1/convoscope/internal/report"
	"github.com/dgallion1/convoscope/internal/store"
)

// Error categories returned alongside every error message.
const (
	CategoryBadRequest  = "bad_request"
	CategoryNotFound    = "not_found"
	CategoryTooLarge    = "too_large"
	CategoryRateLimited = "rate_limited"
	CategoryUnavailable = "unavailable"
	CategoryInternal    = "internal"
)

func categoryFor(code int) string {
	switch code {
	case http.StatusBadRequest:
		return CategoryBadRequest
	case http.StatusNotFound:
		return CategoryNotFound
	case http.StatusRequestEntityTooLarge:
		return CategoryTooLarge
	case http.StatusTooManyRequests:
		return CategoryRateLimited
	case http.StatusServiceUnavailable:
		return CategoryUnavailable
	}
	return CategoryInternal
}

// statusFor maps a domain error to an HTTP status.
func statusFor(err error) int {
	switch {
	case report.IsValidation(err):
		return http.StatusBadRequest
	case llm.IsRateLimited(err):
		return http.StatusTooManyRequests
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, pipeline.ErrQueueFull):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]string{"error": msg, "category": categoryFor(code)})
}

// failRequest logs err and writes it with its mapped status. Internal
// failures are not echoed to the client.
func failRequest(w http.ResponseWriter, log *slog.Logger, op string, err error) {
	code := statusFor(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		log.Error(op+" failed", "error", err)
		msg = op + " failed"
	} else {
		log.Warn(op+" rejected", "error", err, "status", code)
	}
	jsonError(w, msg, code)
}

// splitIDs parses a comma-separated id list, dropping blanks.
func splitIDs(raw string) []string {
	var ids []string
	for _, id := range strings.Split(raw, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// queryLimit reads a non-negative "limit" query parameter; absent means 0.
func queryLimit(r *http.Request) (int, error) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, &report.ValidationError{Field: "limit", Message: "limit must be a non-negative integer"}
	}
	return n, nil
}
