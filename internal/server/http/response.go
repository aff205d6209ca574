package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/helixir/paper-search-service/internal/domain"
	"github.com/helixir/paper-search-service/internal/session"
	"github.com/helixir/paper-search-service/internal/workflow"
)

// startSearchResponse is returned when a search session is created.
type startSearchResponse struct {
	SessionID string         `json:"session_id"`
	Query     string         `json:"query"`
	Status    session.Status `json:"status"`
	CreatedAt time.Time      `json:"created_at"`

	// Checkpoint is the first pending checkpoint, when the workflow reached
	// one within the creation wait window.
	Checkpoint *session.CheckpointView `json:"checkpoint,omitempty"`
}

// cancelSearchResponse confirms a cancellation.
type cancelSearchResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// decisionRequest is the JSON body for answering a checkpoint.
type decisionRequest struct {
	Signature   string          `json:"signature" validate:"required"`
	Action      string          `json:"action" validate:"required,oneof=approve edit reject"`
	RevisedData json.RawMessage `json:"revised_data,omitempty"`
	Note        string          `json:"note,omitempty"`
}

func startResponseFromView(view *session.SessionView) startSearchResponse {
	return startSearchResponse{
		SessionID:  view.ID,
		Query:      view.Query,
		Status:     view.Status,
		CreatedAt:  view.CreatedAt,
		Checkpoint: view.Checkpoint,
	}
}

// writeDomainError maps domain errors to HTTP status codes and writes a JSON
// error response. Internal error details are not leaked to clients.
func writeDomainError(w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "resource not found")
	case errors.Is(err, domain.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrInvalidDecision):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, domain.ErrNoPendingCheckpoint):
		writeError(w, http.StatusConflict, "no checkpoint is awaiting a decision")
	case errors.Is(err, domain.ErrSessionComplete):
		writeError(w, http.StatusConflict, "session is already complete")
	case errors.Is(err, domain.ErrSessionNotComplete):
		writeError(w, http.StatusConflict, "session has not completed yet")
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// decisionFromRequest converts a request body into a workflow decision.
func decisionFromRequest(req decisionRequest) workflow.Decision {
	return workflow.Decision{
		Action:      workflow.DecisionAction(req.Action),
		RevisedData: req.RevisedData,
		Note:        req.Note,
	}
}
