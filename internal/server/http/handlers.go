package httpserver

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/helixir/paper-search-service/internal/export"
)

// Validation constants.
const (
	minQueryLength     = 3
	maxQueryLength     = 10000
	maxRequestBodySize = 1 << 20 // 1 MB limit for request bodies
)

var validate = validator.New()

// startSearchRequest is the JSON request body for starting a search session.
type startSearchRequest struct {
	Query string `json:"query" validate:"required"`
}

// startSearch handles POST /searches.
// It creates a new search session and waits briefly for the workflow to
// reach its first checkpoint so clients get something to review immediately.
func (s *Server) startSearch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodySize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	var req startSearchRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	req.Query = strings.TrimSpace(req.Query)
	if len(req.Query) < minQueryLength {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("query must be at least %d characters", minQueryLength))
		return
	}
	if len(req.Query) > maxQueryLength {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("query must be at most %d characters", maxQueryLength))
		return
	}

	sess, err := s.sessions.Start(ctx, req.Query)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	view, err := s.sessions.WaitForCheckpointOrComplete(ctx, sess.ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, startResponseFromView(view))
}

// getSearch handles GET /searches/{sessionID}.
// It returns the session's current state including any pending checkpoint.
func (s *Server) getSearch(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	view, err := s.sessions.View(sess)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// cancelSearch handles DELETE /searches/{sessionID}.
func (s *Server) cancelSearch(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Cancel(chi.URLParam(r, "sessionID")); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cancelSearchResponse{
		Success: true,
		Message: "session cancelled",
	})
}

// submitDecision handles POST /searches/{sessionID}/decision.
// It answers the session's pending checkpoint and waits for the workflow to
// reach its next pause or finish.
func (s *Server) submitDecision(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := chi.URLParam(r, "sessionID")

	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodySize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	var req decisionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "signature and a valid action (approve, edit, reject) are required")
		return
	}

	view, err := s.sessions.SubmitDecision(ctx, sessionID, req.Signature, decisionFromRequest(req))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// exportSearch handles GET /searches/{sessionID}/export?format=json|bibtex|markdown.
// It renders a completed session's collection in the requested format.
func (s *Server) exportSearch(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	formatParam := r.URL.Query().Get("format")
	if formatParam == "" {
		formatParam = string(export.FormatJSON)
	}
	format, err := export.ParseFormat(formatParam)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	collection, err := s.sessions.Result(sessionID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	out, err := export.Export(*collection, format)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", fmt.Sprintf("search-%s.%s", sessionID, format.Extension())))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out)
}
